package settings

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/blackwell-systems/docmirror/internal/fault"
)

const hooksKey = "hooks"

// object is a JSON object whose key order survives a rewrite. Values stay
// raw so that anything docmirror does not own is written back untouched.
type object = *orderedmap.OrderedMap[string, json.RawMessage]

// document is a parsed settings file.
type document struct {
	root object
}

// parseDocument parses settings content. Empty content is an empty
// document; anything that is not a JSON object is a ParseError.
func parseDocument(data []byte) (*document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return &document{root: orderedmap.New[string, json.RawMessage]()}, nil
	}
	root, err := parseObject(trimmed)
	if err != nil {
		return nil, err
	}
	return &document{root: root}, nil
}

func parseObject(data []byte) (object, error) {
	if !json.Valid(data) {
		return nil, fault.New(fault.KindParse, "parse settings", errors.New("content is not valid JSON"))
	}
	if data[0] != '{' {
		return nil, fault.New(fault.KindParse, "parse settings", errors.New("expected a JSON object"))
	}
	om := orderedmap.New[string, json.RawMessage]()
	if err := json.Unmarshal(data, om); err != nil {
		return nil, fault.New(fault.KindParse, "parse settings", err)
	}
	return om, nil
}

// hooks returns the hooks object, or nil when the key is absent.
func (d *document) hooks() (object, error) {
	raw, ok := d.root.Get(hooksKey)
	if !ok {
		return nil, nil
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fault.Errorf(fault.KindParse, "parse settings", "%q must be an object", hooksKey)
	}
	return parseObject(trimmed)
}

// eventArray returns the array stored at hooks.<event>. A missing key
// yields (nil, false, nil).
func eventArray(hooks object, event string) ([]json.RawMessage, bool, error) {
	raw, ok := hooks.Get(event)
	if !ok {
		return nil, false, nil
	}
	var arr []json.RawMessage
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, true, fault.Errorf(fault.KindParse, "parse settings", "%s.%s must be an array", hooksKey, event)
	}
	if err := json.Unmarshal(trimmed, &arr); err != nil {
		return nil, true, fault.New(fault.KindParse, "parse settings", err)
	}
	return arr, true, nil
}

// groupMatches reports whether an array entry carries any of the markers.
// Entries that are not hook groups never match, so they are never touched.
func groupMatches(raw json.RawMessage, markers []string) bool {
	var g hookGroup
	if err := json.Unmarshal(raw, &g); err != nil {
		return false
	}
	for _, h := range g.Hooks {
		if containsAny(h.Command, markers) {
			return true
		}
	}
	return false
}

func filterGroups(arr []json.RawMessage, markers []string) (kept []json.RawMessage, removed int) {
	kept = make([]json.RawMessage, 0, len(arr))
	for _, raw := range arr {
		if groupMatches(raw, markers) {
			removed++
			continue
		}
		kept = append(kept, raw)
	}
	return kept, removed
}

// bytes serializes the document with two-space indentation and a trailing
// newline, keeping key order and leaving string escapes as the user wrote them.
func (d *document) bytes() ([]byte, error) {
	compact, err := encodeObject(d.root)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, compact, "", "  "); err != nil {
		return nil, fmt.Errorf("format settings: %w", err)
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

func encodeObject(om object) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for pair := om.Oldest(); pair != nil; pair = pair.Next() {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		key, err := marshalNoEscape(pair.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(bytes.TrimSpace(pair.Value))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func encodeArray(arr []json.RawMessage) []byte {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, raw := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(bytes.TrimSpace(raw))
	}
	buf.WriteByte(']')
	return buf.Bytes()
}

// marshalNoEscape is json.Marshal without HTML escaping, so "&&" in a
// command is written back as-is.
func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
