package app

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/blackwell-systems/docmirror/internal/freshness"
)

// maxHookInput caps how much of the hook payload is read from stdin.
const maxHookInput = 1 << 20

var hookCheckCmd = &cobra.Command{
	Use:    "hook-check",
	Short:  "Hook target: refresh the mirror when a doc file is read",
	Hidden: true,
	Long: `Run by the assistant's PreToolUse hook with the tool call as JSON on
stdin. When the tool reads a file inside the mirror, a rate-limited freshness
check runs. hook-check always exits 0 so it never blocks the tool call;
problems are written to the log file.`,
	Args: cobra.NoArgs,
	RunE: runHookCheck,
}

func init() {
	RootCmd.AddCommand(hookCheckCmd)
}

// hookInput is the subset of the hook payload hook-check reads.
type hookInput struct {
	Cwd       string `json:"cwd"`
	ToolInput struct {
		FilePath string `json:"file_path"`
		Path     string `json:"path"`
	} `json:"tool_input"`
}

func runHookCheck(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		// Never fail the tool call over our own configuration.
		return nil
	}
	defer e.close()
	log := e.log.With(zap.String("command", "hook-check"))

	in := cmd.InOrStdin()
	if !stdinIsTerminal(in) {
		path, err := hookTarget(in)
		if err != nil {
			log.Debug("ignoring hook payload", zap.Error(err))
			return nil
		}
		if !within(e.paths.InstallDir, path) {
			return nil
		}
	}

	st, err := e.openStore()
	if err != nil {
		log.Warn("hook check skipped", zap.Error(err))
		return nil
	}
	defer st.Close()

	status, err := e.checker(st).Check(cmd.Context(), freshness.Options{})
	switch {
	case err != nil:
		log.Warn("freshness check failed", zap.Error(err))
	case status.Err != nil:
		log.Info("freshness check degraded", zap.Error(status.Err))
	case !status.Skipped:
		log.Info("freshness check done",
			zap.Bool("current", status.Current),
			zap.Int("behind", status.BehindBy),
			zap.Bool("syncing", status.Syncing))
	}
	return nil
}

// hookTarget returns the absolute path the tool call is about to read.
func hookTarget(r io.Reader) (string, error) {
	var in hookInput
	if err := json.NewDecoder(io.LimitReader(r, maxHookInput)).Decode(&in); err != nil {
		return "", err
	}
	path := in.ToolInput.FilePath
	if path == "" {
		path = in.ToolInput.Path
	}
	if path != "" && !filepath.IsAbs(path) && in.Cwd != "" {
		path = filepath.Join(in.Cwd, path)
	}
	return path, nil
}

// within reports whether path is dir or below it.
func within(dir, path string) bool {
	if path == "" {
		return false
	}
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		dir = resolved
	}
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func stdinIsTerminal(in io.Reader) bool {
	f, ok := in.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}
