package decompose

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/digital-iq/llm-report/pkg/models"
)

// Tier names the parse strategy that produced a result.
type Tier string

const (
	// TierStrict means the whole response decoded as one JSON value.
	TierStrict Tier = "strict"
	// TierLenient means subtasks were recovered from embedded JSON fragments.
	TierLenient Tier = "lenient"
)

// ParseResult is the outcome of a successful parse.
type ParseResult struct {
	Subtasks []models.SubtaskDescriptor
	Tier     Tier
}

// Field aliases accepted from the decomposer. The first key is canonical.
var (
	titleKeys       = []string{"title", "subtask", "subtask_title"}
	purposeKeys     = []string{"purpose"}
	formatKeys      = []string{"expected_format", "format"}
	instructionKeys = []string{"instruction", "manager2_prompt", "prompt"}
)

// ParseResponse extracts subtask descriptors from raw decomposer output.
// The whole text is decoded first; if that fails, every brace or bracket
// delimited fragment that decodes is collected instead. Every collected
// element must carry all descriptor fields.
func ParseResponse(raw string) (ParseResult, error) {
	if items, ok := DecodeStrict(raw); ok {
		subtasks, err := Validate(items)
		if err != nil {
			return ParseResult{}, err
		}
		return ParseResult{Subtasks: subtasks, Tier: TierStrict}, nil
	}

	items := ExtractLenient(raw)
	if len(items) == 0 {
		return ParseResult{}, fmt.Errorf("%w (got %d chars): %q", ErrNoSubtasksExtracted, len(raw), preview(raw))
	}
	subtasks, err := Validate(items)
	if err != nil {
		return ParseResult{}, err
	}
	return ParseResult{Subtasks: subtasks, Tier: TierLenient}, nil
}

// DecodeStrict decodes the entire text as a single JSON value. A single
// object becomes a one-element list, and an object wrapping a "subtasks"
// list is unwrapped. ok is false when the text is not an object or list.
func DecodeStrict(raw string) (items []map[string]any, ok bool) {
	var value any
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &value); err != nil {
		return nil, false
	}
	return collect(value)
}

// ExtractLenient scans raw for balanced {...} and [...] fragments and
// decodes each one independently. Decoded objects are appended as one
// subtask, decoded lists contribute every element. Fragments that
// do not decode are skipped and scanning resumes inside them.
func ExtractLenient(raw string) []map[string]any {
	var items []map[string]any
	for i := 0; i < len(raw); {
		c := raw[i]
		if c != '{' && c != '[' {
			i++
			continue
		}
		end := matchClose(raw, i)
		if end < 0 {
			i++
			continue
		}
		var value any
		if err := json.Unmarshal([]byte(raw[i:end+1]), &value); err != nil {
			i++
			continue
		}
		if found, ok := collect(value); ok {
			items = append(items, found...)
		}
		i = end + 1
	}
	return items
}

// collect turns a decoded JSON value into candidate subtask objects.
func collect(value any) ([]map[string]any, bool) {
	switch v := value.(type) {
	case map[string]any:
		if inner, ok := v["subtasks"].([]any); ok && len(v) == 1 {
			return objects(inner), true
		}
		return []map[string]any{v}, true
	case []any:
		return objects(v), true
	default:
		return nil, false
	}
}

// objects keeps every list element in place. A non-object element becomes
// an empty object so Validate reports it at its own position.
func objects(list []any) []map[string]any {
	out := make([]map[string]any, 0, len(list))
	for _, el := range list {
		obj, ok := el.(map[string]any)
		if !ok {
			obj = map[string]any{}
		}
		out = append(out, obj)
	}
	return out
}

// Validate converts decoded objects into descriptors, failing on the first
// object that lacks a required field.
func Validate(items []map[string]any) ([]models.SubtaskDescriptor, error) {
	subtasks := make([]models.SubtaskDescriptor, 0, len(items))
	for i, item := range items {
		d := models.SubtaskDescriptor{
			Title:          field(item, titleKeys),
			Purpose:        field(item, purposeKeys),
			ExpectedFormat: field(item, formatKeys),
			Instruction:    field(item, instructionKeys),
		}
		if missing := d.MissingFields(); len(missing) > 0 {
			return nil, &ValidationError{Position: i + 1, Missing: missing}
		}
		subtasks = append(subtasks, d)
	}
	return subtasks, nil
}

// field returns the first non-empty value among keys. Non-string values
// are rendered as compact JSON.
func field(item map[string]any, keys []string) string {
	for _, key := range keys {
		raw, ok := item[key]
		if !ok || raw == nil {
			continue
		}
		var s string
		switch v := raw.(type) {
		case string:
			s = v
		default:
			b, err := json.Marshal(v)
			if err != nil {
				continue
			}
			s = string(b)
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// matchClose returns the index of the delimiter closing the one at start,
// or -1 when the fragment is unbalanced. Delimiters inside JSON strings
// are ignored.
func matchClose(s string, start int) int {
	var stack []byte
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return -1
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i
			}
		}
	}
	return -1
}

func preview(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 500 {
		return s[:500] + "... (truncated)"
	}
	return s
}
