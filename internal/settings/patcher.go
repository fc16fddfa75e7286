// Package settings patches the host application's settings.json. Only hook
// groups carrying a docmirror marker are ever added or removed; every other
// key and entry is written back byte-for-byte in its original order.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pmezard/go-difflib/difflib"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.uber.org/zap"

	"github.com/blackwell-systems/docmirror/internal/fault"
)

const defaultPerm fs.FileMode = 0o644

// Patcher applies and removes hook entries under a cross-process lock.
type Patcher struct {
	LockTimeout time.Duration
	log         *zap.Logger
}

// New creates a Patcher. A nil logger is replaced with a no-op logger.
func New(log *zap.Logger) *Patcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Patcher{LockTimeout: DefaultLockTimeout, log: log}
}

// Apply makes spec the single marker-carrying group in hooks.<Event>. Any
// group carrying the marker or a legacy marker is dropped first, and the new
// group is appended. It reports whether the file content changed.
func (p *Patcher) Apply(ctx context.Context, path string, spec HookSpec) (bool, error) {
	if err := spec.Validate(); err != nil {
		return false, fmt.Errorf("invalid hook: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fault.FromFS("create settings directory", err)
	}

	unlock, err := p.lock(ctx, path)
	if err != nil {
		return false, err
	}
	defer unlock()

	old, perm, err := readSettings(path)
	if err != nil {
		return false, err
	}
	updated, err := applyHook(old, spec)
	if err != nil {
		return false, err
	}
	if string(updated) == string(old) {
		p.log.Debug("settings already up to date", zap.String("path", path))
		return false, nil
	}
	if err := writeFileAtomic(path, updated, perm); err != nil {
		return false, fault.FromFS("write settings", err)
	}
	p.log.Info("hook applied",
		zap.String("path", path),
		zap.String("event", spec.Event),
		zap.String("matcher", spec.Matcher))
	return true, nil
}

// Remove deletes every hook group carrying one of markers from all events.
// Event arrays emptied by the removal are deleted, as is the hooks object
// when it became empty as a result. A document without matching groups is
// not rewritten.
func (p *Patcher) Remove(ctx context.Context, path string, markers ...string) (int, error) {
	if len(markers) == 0 {
		return 0, nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}

	unlock, err := p.lock(ctx, path)
	if err != nil {
		return 0, err
	}
	defer unlock()

	old, perm, err := readSettings(path)
	if err != nil {
		return 0, err
	}
	updated, n, err := removeHooks(old, markers)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	if err := writeFileAtomic(path, updated, perm); err != nil {
		return 0, fault.FromFS("write settings", err)
	}
	p.log.Info("hooks removed", zap.String("path", path), zap.Int("count", n))
	return n, nil
}

// Find returns the hook commands carrying one of markers, across all
// events. Events whose value is not an array are skipped.
func (p *Patcher) Find(path string, markers ...string) ([]Hook, error) {
	data, _, err := readSettings(path)
	if err != nil {
		return nil, err
	}
	doc, err := parseDocument(data)
	if err != nil {
		return nil, err
	}
	hooks, err := doc.hooks()
	if err != nil || hooks == nil {
		return nil, err
	}

	var found []Hook
	for pair := hooks.Oldest(); pair != nil; pair = pair.Next() {
		arr, _, err := eventArray(hooks, pair.Key)
		if err != nil {
			continue
		}
		for _, raw := range arr {
			var g hookGroup
			if json.Unmarshal(raw, &g) != nil {
				continue
			}
			for _, h := range g.Hooks {
				if containsAny(h.Command, markers) {
					found = append(found, Hook{Event: pair.Key, Matcher: g.Matcher, Command: h.Command})
				}
			}
		}
	}
	return found, nil
}

// Preview returns a unified diff of what Apply would write. An empty string
// means Apply would leave the file unchanged.
func (p *Patcher) Preview(path string, spec HookSpec) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", fmt.Errorf("invalid hook: %w", err)
	}
	old, _, err := readSettings(path)
	if err != nil {
		return "", err
	}
	updated, err := applyHook(old, spec)
	if err != nil {
		return "", err
	}
	if string(updated) == string(old) {
		return "", nil
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(old)),
		B:        difflib.SplitLines(string(updated)),
		FromFile: path,
		ToFile:   path + " (patched)",
		Context:  3,
	})
}

// Replace writes data over the settings file under the lock, keeping the
// current mode. data must be a JSON object.
func (p *Patcher) Replace(ctx context.Context, path string, data []byte) error {
	if _, err := parseDocument(data); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fault.FromFS("create settings directory", err)
	}

	unlock, err := p.lock(ctx, path)
	if err != nil {
		return err
	}
	defer unlock()

	_, perm, err := readSettings(path)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(path, data, perm); err != nil {
		return fault.FromFS("write settings", err)
	}
	p.log.Info("settings replaced", zap.String("path", path), zap.Int("bytes", len(data)))
	return nil
}

func (p *Patcher) lock(ctx context.Context, path string) (func(), error) {
	timeout := p.LockTimeout
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	lctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	l, err := acquireLock(lctx, path)
	if err != nil {
		return nil, fault.FromFS("lock settings", err)
	}
	return func() {
		if err := l.release(); err != nil {
			p.log.Warn("failed to release settings lock", zap.String("lock", l.path), zap.Error(err))
		}
	}, nil
}

// readSettings returns the file content and mode. A missing file reads as
// empty with the default mode.
func readSettings(path string) ([]byte, fs.FileMode, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, defaultPerm, nil
	}
	if err != nil {
		return nil, 0, fault.FromFS("read settings", err)
	}
	perm := defaultPerm
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}
	return data, perm, nil
}

func applyHook(data []byte, spec HookSpec) ([]byte, error) {
	doc, err := parseDocument(data)
	if err != nil {
		return nil, err
	}
	hooks, err := doc.hooks()
	if err != nil {
		return nil, err
	}
	if hooks == nil {
		hooks = orderedmap.New[string, json.RawMessage]()
	}
	arr, _, err := eventArray(hooks, spec.Event)
	if err != nil {
		return nil, err
	}
	kept, _ := filterGroups(arr, spec.Markers())

	group, err := marshalNoEscape(spec.group())
	if err != nil {
		return nil, fmt.Errorf("encode hook: %w", err)
	}
	kept = append(kept, group)
	hooks.Set(spec.Event, encodeArray(kept))

	encoded, err := encodeObject(hooks)
	if err != nil {
		return nil, err
	}
	doc.root.Set(hooksKey, encoded)
	return doc.bytes()
}

func removeHooks(data []byte, markers []string) ([]byte, int, error) {
	doc, err := parseDocument(data)
	if err != nil {
		return nil, 0, err
	}
	hooks, err := doc.hooks()
	if err != nil || hooks == nil {
		return nil, 0, err
	}

	removed := 0
	var emptied []string
	updates := map[string]json.RawMessage{}
	for pair := hooks.Oldest(); pair != nil; pair = pair.Next() {
		arr, _, err := eventArray(hooks, pair.Key)
		if err != nil {
			// Not ours to judge; leave foreign shapes alone.
			continue
		}
		kept, n := filterGroups(arr, markers)
		if n == 0 {
			continue
		}
		removed += n
		if len(kept) == 0 {
			emptied = append(emptied, pair.Key)
			continue
		}
		updates[pair.Key] = encodeArray(kept)
	}
	if removed == 0 {
		return data, 0, nil
	}

	for key, value := range updates {
		hooks.Set(key, value)
	}
	for _, key := range emptied {
		hooks.Delete(key)
	}
	if hooks.Len() == 0 {
		doc.root.Delete(hooksKey)
	} else {
		encoded, err := encodeObject(hooks)
		if err != nil {
			return nil, 0, err
		}
		doc.root.Set(hooksKey, encoded)
	}

	out, err := doc.bytes()
	if err != nil {
		return nil, 0, err
	}
	return out, removed, nil
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if m != "" && strings.Contains(s, m) {
			return true
		}
	}
	return false
}
