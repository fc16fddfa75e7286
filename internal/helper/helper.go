// Package helper installs the docmirror binary at a stable path under the
// state directory. The hook and the slash command call that copy, so they
// keep working when the binary the user ran moves or is removed.
package helper

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Install copies src to dst with mode 0755. An empty src means the running
// executable. Nothing is written when dst already is src or has the same
// content. It reports whether dst changed.
func Install(src, dst string) (bool, error) {
	if src == "" {
		self, err := os.Executable()
		if err != nil {
			return false, fmt.Errorf("failed to get executable path: %w", err)
		}
		src = self
	}
	if resolved, err := filepath.EvalSymlinks(src); err == nil {
		src = resolved
	}

	if same(src, dst) {
		return false, nil
	}

	want, err := os.ReadFile(src)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", src, err)
	}
	if have, err := os.ReadFile(dst); err == nil && bytes.Equal(have, want) {
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return false, fmt.Errorf("create %s: %w", filepath.Dir(dst), err)
	}
	if err := copyFile(bytes.NewReader(want), dst); err != nil {
		return false, err
	}
	return true, nil
}

// Remove deletes the installed copy. A missing file is not an error.
func Remove(dst string) error {
	if err := os.Remove(dst); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", dst, err)
	}
	return nil
}

// copyFile writes src to a temp file beside dst and renames it into place,
// which also works while the old dst is executing.
func copyFile(src io.Reader, dst string) error {
	out, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".tmp-*")
	if err != nil {
		return fmt.Errorf("open dest: %w", err)
	}
	tmp := out.Name()

	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("write: %w", err)
	}
	if err := out.Chmod(0o755); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("chmod: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

func same(a, b string) bool {
	ia, err := os.Stat(a)
	if err != nil {
		return false
	}
	ib, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ia, ib)
}
