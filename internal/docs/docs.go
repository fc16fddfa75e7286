// Package docs reads the documentation mirror: topic listing and lookup,
// recent changes from git history, and the host application's changelog.
// It never touches the network except for the changelog.
package docs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/blackwell-systems/docmirror/internal/vcs"
)

// ErrTopicNotFound is returned by Find when no topic matches.
var ErrTopicNotFound = errors.New("topic not found")

// Library reads topics from the docs directory of a mirror.
type Library struct {
	Root string // the mirror working copy
	git  *vcs.Git
}

// Doc is a topic file read from the mirror.
type Doc struct {
	Topic   string
	Path    string
	Content string
}

// New returns a Library for the mirror at root.
func New(root string, git *vcs.Git) *Library {
	return &Library{Root: root, git: git}
}

// Dir returns the docs directory.
func (l *Library) Dir() string {
	return filepath.Join(l.Root, "docs")
}

// Topics returns the sorted names of all topic files. A missing docs
// directory yields no topics.
func (l *Library) Topics() ([]string, error) {
	entries, err := os.ReadDir(l.Dir())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}

	var topics []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".md" {
			continue
		}
		topics = append(topics, strings.TrimSuffix(e.Name(), ".md"))
	}
	sort.Strings(topics)
	return topics, nil
}

// Find resolves a topic by exact name, then case-insensitively, then as a
// substring of a topic name. The first match in sorted order wins.
func (l *Library) Find(topic string) (*Doc, error) {
	topic = strings.TrimSuffix(strings.TrimSpace(topic), ".md")
	if topic == "" || strings.ContainsAny(topic, `/\`) {
		return nil, fmt.Errorf("%w: %q", ErrTopicNotFound, topic)
	}

	topics, err := l.Topics()
	if err != nil {
		return nil, err
	}
	name, ok := match(topics, topic)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTopicNotFound, topic)
	}

	path := filepath.Join(l.Dir(), name+".md")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read topic %s: %w", name, err)
	}
	return &Doc{Topic: name, Path: path, Content: string(data)}, nil
}

func match(topics []string, topic string) (string, bool) {
	for _, t := range topics {
		if t == topic {
			return t, true
		}
	}
	lower := strings.ToLower(topic)
	for _, t := range topics {
		if strings.ToLower(t) == lower {
			return t, true
		}
	}
	for _, t := range topics {
		if strings.Contains(strings.ToLower(t), lower) {
			return t, true
		}
	}
	return "", false
}

// Similar returns up to limit topics whose name contains topic or is
// contained in it, ignoring case.
func (l *Library) Similar(topic string, limit int) ([]string, error) {
	topics, err := l.Topics()
	if err != nil {
		return nil, err
	}
	lower := strings.ToLower(topic)
	var out []string
	for _, t := range topics {
		lt := strings.ToLower(t)
		if strings.Contains(lt, lower) || strings.Contains(lower, lt) {
			out = append(out, t)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// LastUpdated returns the time of the newest commit touching the docs
// directory, or the zero time when there is none.
func (l *Library) LastUpdated(ctx context.Context) (time.Time, error) {
	return l.git.LastCommitTime(ctx, l.Root, "docs")
}
