package lead

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

var ErrNoJSON = errors.New("reply contains no JSON object")

// ParseReply decodes a model reply into a Record. A reply that does not
// start with '{' is searched for a ```json fence, then any ``` fence, and the
// fence interior is decoded instead. Non-string field values are coerced.
func ParseReply(reply string) (Record, error) {
	body := strings.TrimSpace(reply)
	if body == "" {
		return Record{}, ErrNoJSON
	}
	if !strings.HasPrefix(body, "{") {
		inner, ok := fenceInterior(body, "```json")
		if !ok {
			inner, ok = fenceInterior(body, "```")
		}
		if !ok {
			return Record{}, ErrNoJSON
		}
		body = inner
	}

	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return Record{}, fmt.Errorf("decode lead json: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Record{}, errors.New("decode lead json: trailing data after object")
	}
	if fields == nil {
		return Record{}, ErrNoJSON
	}
	return Record{
		Name:       coerce(fields["name"]),
		Phone:      coerce(fields["phone"]),
		Email:      coerce(fields["email"]),
		PainPoints: coerce(fields["pain_points"]),
	}, nil
}

// fenceInterior returns the text between the first occurrence of open and the
// next ``` after it.
func fenceInterior(s, open string) (string, bool) {
	start := strings.Index(s, open)
	if start < 0 {
		return "", false
	}
	rest := s[start+len(open):]
	if end := strings.Index(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest), true
}

func coerce(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := coerce(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "; ")
	default:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(t); err != nil {
			return fmt.Sprint(t)
		}
		return strings.TrimSpace(buf.String())
	}
}
