package vcs

import (
	"context"
	"errors"
	"os/exec"
	"strings"

	"github.com/blackwell-systems/docmirror/internal/fault"
)

var networkPatterns = []string{
	"could not resolve host",
	"unable to access",
	"failed to connect",
	"connection timed out",
	"connection refused",
	"operation timed out",
	"network is unreachable",
	"authentication failed",
	"could not read from remote repository",
	"repository not found",
	"terminal prompts disabled",
	"could not read username",
	"permission denied (publickey",
	"ssl certificate problem",
	"the remote end hung up",
}

var conflictPatterns = []string{
	"would be overwritten",
	"not possible to fast-forward",
	"diverging branches",
	"have diverged",
	"index.lock",
	"another git process",
	"you have unstaged changes",
	"needs merge",
	"unmerged",
	"conflict",
}

var permissionPatterns = []string{
	"permission denied",
	"read-only file system",
	"operation not permitted",
}

// Classify maps a git failure to a fault kind. Stderr patterns are checked
// in order network, conflict, permission, so that "Permission denied
// (publickey)" is treated as an authentication problem.
func Classify(err error) fault.Kind {
	if err == nil {
		return fault.KindUnknown
	}
	if errors.Is(err, exec.ErrNotFound) {
		return fault.KindPrerequisiteMissing
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fault.KindNetwork
	}

	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		return fault.KindUnknown
	}

	msg := strings.ToLower(cmdErr.Result.Stderr + "\n" + cmdErr.Result.Stdout)
	switch {
	case containsAny(msg, networkPatterns):
		return fault.KindNetwork
	case containsAny(msg, conflictPatterns):
		return fault.KindDirtyWorkingTree
	case containsAny(msg, permissionPatterns):
		return fault.KindPermission
	default:
		return fault.KindUnknown
	}
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
