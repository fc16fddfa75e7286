package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/docmirror/internal/docs"
	"github.com/blackwell-systems/docmirror/internal/freshness"
	"github.com/blackwell-systems/docmirror/internal/mirror"
	"github.com/blackwell-systems/docmirror/internal/output"
)

var docsCmd = &cobra.Command{
	Use:   "docs [-t] [topic | what's new | changelog | uninstall]",
	Short: "Read documentation from the local mirror",
	Long: `Reads documentation from the local mirror. This is what the /docs slash
command runs.

Reading never waits for the network. -t first checks the mirror against the
remote (bounded by freshness_timeout) and updates it when it is behind.

Arguments may be passed as one string, as the slash command does.`,
	Example: `  docmirror docs
  docmirror docs hooks
  docmirror docs -t hooks
  docmirror docs "what's new"
  docmirror docs changelog`,
	DisableFlagParsing: true,
	RunE:               runDocs,
}

func init() {
	RootCmd.AddCommand(docsCmd)
}

// docsRequest is the parsed slash command argument string.
type docsRequest struct {
	check  bool
	action string // list, whatsnew, changelog, uninstall, read, help
	topic  string
}

func parseDocsArgs(args []string) docsRequest {
	fields := strings.Fields(strings.Join(args, " "))
	var req docsRequest
	if len(fields) > 0 && fields[0] == "-t" {
		req.check = true
		fields = fields[1:]
	}

	full := strings.ToLower(strings.Join(fields, " "))
	switch {
	case len(fields) == 0:
		req.action = "list"
	case full == "-h" || full == "--help" || full == "help":
		req.action = "help"
	case full == "what's new" || full == "whats new" || full == "what is new" || full == "what’s new":
		req.action = "whatsnew"
	case full == "changelog":
		req.action = "changelog"
	case full == "uninstall":
		req.action = "uninstall"
	default:
		req.action = "read"
		req.topic = fields[0]
	}
	return req
}

func runDocs(cmd *cobra.Command, args []string) error {
	req := parseDocsArgs(args)
	if req.action == "help" {
		return cmd.Help()
	}

	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.close()

	out := cmd.OutOrStdout()
	ctx := cmd.Context()
	lib := docs.New(e.paths.InstallDir, e.git)

	if req.check {
		if err := checkFreshness(ctx, out, e, lib); err != nil {
			return err
		}
	}

	switch req.action {
	case "list":
		err = listTopics(out, e, lib)
	case "whatsnew":
		err = showWhatsNew(ctx, out, e, lib)
	case "changelog":
		err = showChangelog(ctx, out, e)
	case "uninstall":
		showUninstallHelp(out, e)
	case "read":
		err = readTopic(out, e, lib, req.topic)
	}
	if err != nil {
		return err
	}

	if !req.check && (req.action == "list" || req.action == "read") {
		fmt.Fprintln(out)
		fmt.Fprintln(out, output.Dim(fmt.Sprintf("Reading from local docs (run /%s -t to check freshness)", e.cfg.CommandName)))
	}
	return nil
}

func header(out io.Writer, e *env) {
	fmt.Fprintf(out, "COMMUNITY MIRROR: %s\n", e.cfg.RepoURL)
	fmt.Fprintf(out, "OFFICIAL DOCS: %s\n\n", e.cfg.OfficialDocsURL)
}

func checkFreshness(ctx context.Context, out io.Writer, e *env, lib *docs.Library) error {
	if updated, err := lib.LastUpdated(ctx); err == nil && !updated.IsZero() {
		fmt.Fprintf(out, "Docs last updated: %s\n", output.FormatRelativeTime(updated))
	}

	st, err := e.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	var status freshness.Status
	err = output.Spin(out, "Checking for updates", e.cfg.FreshnessTimeout, func() error {
		var err error
		status, err = e.checker(st).Check(ctx, freshness.Options{Force: true})
		return err
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(out, freshnessLine(status))
	fmt.Fprintln(out)
	return nil
}

func freshnessLine(s freshness.Status) string {
	switch {
	case s.Err != nil:
		return output.Warn("Could not check for updates: %v (showing local copy)", s.Err)
	case s.Syncing:
		return output.Warn("%d update(s) available; updating in the background", s.BehindBy)
	case s.Current && s.Outcome != "" && s.Outcome != mirror.UpToDate:
		return output.OK("Documentation updated (%s)", s.Outcome)
	case s.Current:
		return output.OK("Already up to date")
	default:
		return output.Warn("%d update(s) available", s.BehindBy)
	}
}

func listTopics(out io.Writer, e *env, lib *docs.Library) error {
	header(out, e)
	topics, err := lib.Topics()
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "Available documentation topics:")
	fmt.Fprintln(out)
	if len(topics) == 0 {
		fmt.Fprintln(out, "  No documentation files found")
		fmt.Fprintln(out, "  Run 'docmirror install' to set up the mirror.")
	}
	for _, line := range docs.Columns(topics, min(output.TerminalWidth(60), 100)) {
		fmt.Fprintln(out, line)
	}

	name := e.cfg.CommandName
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Usage: /%s <topic>\n", name)
	fmt.Fprintf(out, "       /%s -t         # Check sync status\n", name)
	fmt.Fprintf(out, "       /%s what's new # Show recent changes\n", name)
	return nil
}

func readTopic(out io.Writer, e *env, lib *docs.Library, topic string) error {
	header(out, e)
	doc, err := lib.Find(topic)
	if errors.Is(err, docs.ErrTopicNotFound) {
		return topicNotFound(out, lib, topic)
	}
	if err != nil {
		return err
	}

	content := doc.Content
	if stdoutIsTerminal(out) {
		content = docs.Render(content, output.TerminalWidth(80))
	}
	fmt.Fprint(out, content)
	if !strings.HasSuffix(content, "\n") {
		fmt.Fprintln(out)
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Official page: %s/%s\n", strings.TrimRight(e.cfg.OfficialDocsURL, "/"), doc.Topic)
	return nil
}

func topicNotFound(out io.Writer, lib *docs.Library, topic string) error {
	fmt.Fprintln(out, output.Fail("Documentation for '%s' not found", topic))
	fmt.Fprintln(out)

	similar, err := lib.Similar(topic, 5)
	if err != nil {
		return err
	}
	if len(similar) > 0 {
		fmt.Fprintln(out, "Similar topics:")
		for _, t := range similar {
			fmt.Fprintf(out, "  - %s\n", t)
		}
		return nil
	}

	topics, err := lib.Topics()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "Available topics:")
	for i, t := range topics {
		if i == 10 {
			fmt.Fprintf(out, "  ... and %d more\n", len(topics)-10)
			break
		}
		fmt.Fprintf(out, "  - %s\n", t)
	}
	return nil
}

func showWhatsNew(ctx context.Context, out io.Writer, e *env, lib *docs.Library) error {
	updates, err := lib.WhatsNew(ctx, docs.WhatsNewOptions{})
	if err != nil {
		return err
	}

	fmt.Fprintln(out, output.Heading("Recent documentation updates:"))
	fmt.Fprintln(out)
	if len(updates) == 0 {
		fmt.Fprintln(out, "No recent changes found")
	}

	repo := strings.TrimSuffix(e.cfg.RepoURL, ".git")
	official := strings.TrimRight(e.cfg.OfficialDocsURL, "/")
	for _, u := range updates {
		fmt.Fprintf(out, "* %s: %s\n", output.FormatRelativeTime(u.Commit.Time), u.Commit.Subject)
		fmt.Fprintf(out, "  Commit: %s/commit/%s\n", repo, u.Commit.ShortHash())
		for _, f := range u.Files {
			fmt.Fprintf(out, "  [%s] %s: %s/%s\n", f.Status, f.Topic, official, f.Topic)
			for _, line := range strings.Split(strings.TrimRight(f.Diff, "\n"), "\n") {
				if line != "" {
					fmt.Fprintf(out, "      %s\n", line)
				}
			}
		}
		fmt.Fprintln(out)
	}
	fmt.Fprintf(out, "Full history: %s/commits/%s/docs\n", repo, e.cfg.Branch)
	return nil
}

func showChangelog(ctx context.Context, out io.Writer, e *env) error {
	var body string
	err := output.Spin(out, "Fetching changelog", 0, func() error {
		var err error
		body, err = docs.NewChangelogClient(e.cfg.ChangelogURL).Fetch(ctx)
		return err
	})
	if err != nil {
		return err
	}

	latest := docs.LatestReleases(body, 3)
	if stdoutIsTerminal(out) {
		latest = docs.Render(latest, output.TerminalWidth(80))
	}
	fmt.Fprint(out, latest)
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Full changelog: %s\n", e.cfg.ChangelogURL)
	return nil
}

func showUninstallHelp(out io.Writer, e *env) {
	fmt.Fprintln(out, "To remove the integration, run:")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  %q uninstall\n", e.paths.HelperBin)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Add --purge to delete the mirror and docmirror's state as well.")
}

func stdoutIsTerminal(out io.Writer) bool {
	f, ok := out.(*os.File)
	return ok && isatty.IsTerminal(f.Fd()) && os.Getenv("NO_COLOR") == ""
}
