// Package fetch defines the record-source boundary and the defensive
// normalization applied once at ingestion, so every later component can read
// attributes and tags without shape-checking.
package fetch

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"topiclens/internal/domain"
)

// Source supplies the conversations for a time window. Implementations may
// return records with missing or malformed structured data; Normalize
// handles that, callers never see it.
type Source interface {
	Records(ctx context.Context, from, to time.Time) ([]domain.Conversation, error)
}

// NormalizeAttributes flattens an arbitrary raw attribute map into
// string-valued attributes. Absent input yields an empty map, never nil, so
// downstream accessors need no nil checks. Unrepresentable values (nested
// objects) are dropped rather than guessed at.
func NormalizeAttributes(raw map[string]any) map[string]string {
	out := make(map[string]string, len(raw))
	for key, value := range raw {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if s, ok := scalarString(value); ok {
			out[key] = s
			continue
		}
		if list, ok := value.([]any); ok {
			var parts []string
			for _, item := range list {
				if s, ok := scalarString(item); ok && s != "" {
					parts = append(parts, s)
				}
			}
			if len(parts) > 0 {
				out[key] = strings.Join(parts, ",")
			}
		}
	}
	return out
}

// NormalizeTags accepts the inconsistent shapes sources use for tags — a
// single string, a list, or nothing — and always returns a flat list.
func NormalizeTags(raw any) []string {
	switch v := raw.(type) {
	case nil:
		return nil
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return nil
		}
		return []string{v}
	case []any:
		var out []string
		for _, item := range v {
			if s, ok := scalarString(item); ok {
				s = strings.TrimSpace(s)
				if s != "" {
					out = append(out, s)
				}
			}
		}
		return out
	case []string:
		var out []string
		for _, s := range v {
			s = strings.TrimSpace(s)
			if s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		if s, ok := scalarString(raw); ok && s != "" {
			return []string{s}
		}
		return nil
	}
}

func scalarString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case bool:
		return strconv.FormatBool(x), true
	case fmt.Stringer:
		return strings.TrimSpace(x.String()), true
	default:
		return "", false
	}
}
