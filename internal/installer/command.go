package installer

import (
	"bytes"
	"fmt"
	"os"
	"text/template"
)

var commandTemplate = template.Must(template.New("command").Parse(`Execute the docmirror helper to read the local documentation mirror at {{.InstallDir}}

Usage:
- /{{.Name}} - List all available documentation topics
- /{{.Name}} <topic> - Read specific documentation with link to official docs
- /{{.Name}} -t - Check sync status without reading a doc
- /{{.Name}} -t <topic> - Check freshness then read documentation
- /{{.Name}} what's new - Show recent documentation changes
- /{{.Name}} changelog - Show the release notes of the host application
- /{{.Name}} uninstall - Show how to remove the integration

LOCAL DOCS AT: {{.DocsDir}}/
COMMUNITY MIRROR: {{.RepoURL}}
OFFICIAL DOCS: {{.OfficialDocsURL}}

Reading a topic never waits for the network. "-t" checks the mirror against
GitHub first and updates it in the background when it is behind.

Execute: "{{.Helper}}" docs "$ARGUMENTS"
`))

// CommandData fills the slash command template.
type CommandData struct {
	Name            string
	InstallDir      string
	DocsDir         string
	RepoURL         string
	OfficialDocsURL string
	Helper          string
}

// RenderCommand returns the content of the slash command file.
func RenderCommand(d CommandData) ([]byte, error) {
	var buf bytes.Buffer
	if err := commandTemplate.Execute(&buf, d); err != nil {
		return nil, fmt.Errorf("failed to render command file: %w", err)
	}
	return buf.Bytes(), nil
}

func writeCommand(path string, content []byte) (bool, error) {
	if have, err := os.ReadFile(path); err == nil && bytes.Equal(have, content) {
		return false, nil
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return false, err
	}
	return true, nil
}
