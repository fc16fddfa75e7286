// Package fault classifies docmirror failures so that callers can decide
// whether to abort, warn, or continue, and so that the CLI can map them to
// stable exit codes for scripting.
package fault

import (
	"errors"
	"fmt"
	"io/fs"
)

// Kind identifies a class of failure.
type Kind int

const (
	// KindUnknown is any error that was not classified.
	KindUnknown Kind = iota
	// KindPrerequisiteMissing means a required executable is not on PATH.
	KindPrerequisiteMissing
	// KindPermission means the filesystem refused access.
	KindPermission
	// KindParse means an existing file could not be parsed and must not be overwritten.
	KindParse
	// KindUnexpectedLayout means a path exists but holds something we did not create.
	KindUnexpectedLayout
	// KindNetwork means the remote could not be reached or refused authentication.
	KindNetwork
	// KindDirtyWorkingTree means the mirror has local changes that block a clean update.
	KindDirtyWorkingTree
	// KindPartialUninstall aggregates independent uninstall step failures.
	KindPartialUninstall
)

func (k Kind) String() string {
	switch k {
	case KindPrerequisiteMissing:
		return "prerequisite missing"
	case KindPermission:
		return "permission denied"
	case KindParse:
		return "parse error"
	case KindUnexpectedLayout:
		return "unexpected file layout"
	case KindNetwork:
		return "network error"
	case KindDirtyWorkingTree:
		return "dirty working tree"
	case KindPartialUninstall:
		return "partial uninstall"
	default:
		return "error"
	}
}

// Exit codes. 1 is used for anything unclassified.
const (
	ExitOK               = 0
	ExitGeneric          = 1
	ExitPrerequisite     = 2
	ExitNetwork          = 3
	ExitPermission       = 4
	ExitParse            = 5
	ExitPartialUninstall = 6
	ExitDirty            = 7
)

// Error is a classified failure. Step names the workflow step that failed
// and Remedy is a one-line suggestion printed to the user.
type Error struct {
	Kind   Kind
	Step   string
	Err    error
	Remedy string
}

func (e *Error) Error() string {
	switch {
	case e.Step != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Step, e.Err)
	case e.Err != nil:
		return e.Err.Error()
	case e.Step != "":
		return fmt.Sprintf("%s: %s", e.Step, e.Kind)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns a classified error wrapping err.
func New(kind Kind, step string, err error) *Error {
	return &Error{Kind: kind, Step: step, Err: err}
}

// WithRemedy sets the remedy and returns the error for chaining.
func (e *Error) WithRemedy(remedy string) *Error {
	e.Remedy = remedy
	return e
}

// Errorf builds a classified error from a format string.
func Errorf(kind Kind, step, format string, args ...any) *Error {
	return New(kind, step, fmt.Errorf(format, args...))
}

// KindOf returns the Kind of the outermost classified error in err's chain,
// or KindUnknown if there is none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// RemedyOf returns the remedy attached to err, if any.
func RemedyOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Remedy
	}
	return ""
}

// ExitCode maps err to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch KindOf(err) {
	case KindPrerequisiteMissing:
		return ExitPrerequisite
	case KindNetwork:
		return ExitNetwork
	case KindPermission:
		return ExitPermission
	case KindParse, KindUnexpectedLayout:
		return ExitParse
	case KindPartialUninstall:
		return ExitPartialUninstall
	case KindDirtyWorkingTree:
		return ExitDirty
	default:
		return ExitGeneric
	}
}

// FromFS classifies a filesystem error. Permission errors become
// KindPermission; everything else is returned wrapped with the step only.
func FromFS(step string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrPermission) {
		return New(KindPermission, step, err).WithRemedy("check the ownership and permissions of the path above")
	}
	return fmt.Errorf("%s: %w", step, err)
}
