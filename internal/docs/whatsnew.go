package docs

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/blackwell-systems/docmirror/internal/vcs"
)

// Update is one commit that touched the docs directory.
type Update struct {
	Commit vcs.Commit
	Files  []FileChange
}

// FileChange is a topic added, modified or deleted by a commit.
type FileChange struct {
	Topic  string
	Status string // A, M, D, R
	Diff   string
}

// WhatsNewOptions bound the history walk.
type WhatsNewOptions struct {
	Limit    int // commits, default 5
	MaxLines int // diff lines per file, default 12
}

// WhatsNew returns the most recent commits touching the docs directory,
// newest first, each with a condensed diff of the topics it changed.
func (l *Library) WhatsNew(ctx context.Context, opts WhatsNewOptions) ([]Update, error) {
	if opts.Limit <= 0 {
		opts.Limit = 5
	}
	if opts.MaxLines <= 0 {
		opts.MaxLines = 12
	}

	commits, err := l.git.Log(ctx, l.Root, opts.Limit, "docs")
	if err != nil {
		return nil, fmt.Errorf("failed to read docs history: %w", err)
	}

	updates := make([]Update, 0, len(commits))
	for _, c := range commits {
		changes, err := l.git.ChangedFiles(ctx, l.Root, c.Hash, "docs")
		if err != nil {
			return nil, fmt.Errorf("failed to list files of %s: %w", c.ShortHash(), err)
		}

		u := Update{Commit: c}
		for _, ch := range changes {
			if path.Ext(ch.Path) != ".md" {
				continue
			}
			fc := FileChange{Topic: strings.TrimSuffix(path.Base(ch.Path), ".md"), Status: ch.Status}
			if fc.Diff, err = l.fileDiff(ctx, c.Hash, ch, opts.MaxLines); err != nil {
				return nil, err
			}
			u.Files = append(u.Files, fc)
		}
		updates = append(updates, u)
	}
	return updates, nil
}

func (l *Library) fileDiff(ctx context.Context, hash string, ch vcs.Change, maxLines int) (string, error) {
	before, err := l.git.Show(ctx, l.Root, hash+"^", ch.Path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s before %s: %w", ch.Path, hash, err)
	}
	after, err := l.git.Show(ctx, l.Root, hash, ch.Path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s at %s: %w", ch.Path, hash, err)
	}
	return Condense(before, after, maxLines), nil
}
