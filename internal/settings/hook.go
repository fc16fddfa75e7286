package settings

import (
	"errors"
	"fmt"
	"strings"
)

// HookSpec describes the single hook entry docmirror owns in the host
// settings file. It is serialized as
//
//	{"matcher": Matcher, "hooks": [{"type": "command", "command": Command}]}
//
// inside the array at hooks.<Event>.
type HookSpec struct {
	Event         string   // trigger, e.g. "PreToolUse"
	Matcher       string   // tool name pattern, e.g. "Read"
	Command       string   // shell command the host runs
	Timeout       int      // seconds; 0 leaves the host default
	Marker        string   // substring of Command identifying our entry
	LegacyMarkers []string // markers of entries written by older installers
}

// Validate checks that the spec can be found again after it is written.
func (s HookSpec) Validate() error {
	if s.Event == "" {
		return errors.New("hook event is required")
	}
	if s.Command == "" {
		return errors.New("hook command is required")
	}
	if s.Marker == "" {
		return errors.New("hook marker is required")
	}
	if !strings.Contains(s.Command, s.Marker) {
		return fmt.Errorf("hook command %q does not contain marker %q", s.Command, s.Marker)
	}
	return nil
}

// Markers returns the current marker followed by the legacy ones.
func (s HookSpec) Markers() []string {
	return append([]string{s.Marker}, s.LegacyMarkers...)
}

// hookGroup is the on-disk shape of one entry in a hook event array.
type hookGroup struct {
	Matcher string        `json:"matcher,omitempty"`
	Hooks   []hookCommand `json:"hooks"`
}

type hookCommand struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	Timeout int    `json:"timeout,omitempty"`
}

func (s HookSpec) group() hookGroup {
	return hookGroup{
		Matcher: s.Matcher,
		Hooks:   []hookCommand{{Type: "command", Command: s.Command, Timeout: s.Timeout}},
	}
}

// Hook is a hook entry found in a settings file.
type Hook struct {
	Event   string
	Matcher string
	Command string
}
