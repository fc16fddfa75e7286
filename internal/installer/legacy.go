package installer

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var docsAtPattern = regexp.MustCompile(`LOCAL DOCS AT:\s*(\S+)/docs/`)

// markerPathPattern matches an absolute or ~-relative path ending in a
// directory whose name contains marker.
func markerPathPattern(marker string) *regexp.Regexp {
	return regexp.MustCompile(`(~?[/\\][^"'\s]*?` + regexp.QuoteMeta(marker) + `[^"'\s/\\]*)`)
}

// legacyCandidates extracts install directories mentioned in a command file
// or in hook commands. Paths are expanded but not checked for existence.
func legacyCandidates(commandFile string, hookCommands, markers []string, home string) []string {
	var found []string
	var texts []string
	if data, err := os.ReadFile(commandFile); err == nil {
		content := string(data)
		for _, m := range docsAtPattern.FindAllStringSubmatch(content, -1) {
			found = append(found, expandHome(m[1], home))
		}
		texts = append(texts, content)
	}
	texts = append(texts, hookCommands...)

	for _, text := range texts {
		for _, marker := range markers {
			for _, m := range markerPathPattern(marker).FindAllString(text, -1) {
				found = append(found, expandHome(m, home))
			}
		}
	}
	return found
}

// DetectLegacy returns existing install directories other than target that
// are referenced by the command file or by hook commands. markers are the
// legacy markers; paths are only extracted around them.
func DetectLegacy(target, commandFile string, hookCommands, markers []string, home string) []string {
	var out []string
	seen := map[string]bool{}
	for _, p := range legacyCandidates(commandFile, hookCommands, markers, home) {
		p = filepath.Clean(p)
		if seen[p] || samePath(p, target) {
			continue
		}
		seen[p] = true
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			out = append(out, p)
		}
	}
	return out
}

func expandHome(p, home string) string {
	if p == "~" {
		return home
	}
	if strings.HasPrefix(p, "~/") || strings.HasPrefix(p, `~\`) {
		return filepath.Join(home, p[2:])
	}
	return p
}

func samePath(a, b string) bool {
	ra, errA := filepath.EvalSymlinks(a)
	rb, errB := filepath.EvalSymlinks(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return ra == rb
}
