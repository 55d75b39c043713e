// Package template renders {{name}} placeholders at invocation time.
package template

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/waffletower/InvokeAI/internal/domain"
)

// RenderString replaces {{name}} placeholders with values from vars.
// Non-string values are rendered as JSON. Missing names and malformed
// placeholders are errors.
func RenderString(input string, vars map[string]any) (string, error) {
	if input == "" {
		return "", nil
	}

	var out strings.Builder
	rest := input
	for {
		start := strings.Index(rest, "{{")
		if start == -1 {
			out.WriteString(rest)
			return out.String(), nil
		}

		out.WriteString(rest[:start])
		rest = rest[start+2:]

		end := strings.Index(rest, "}}")
		if end == -1 {
			return "", &domain.OpError{
				Op:   "template.render",
				Kind: domain.KindInvalidConfig,
				Err:  fmt.Errorf("%w: unclosed template expression", domain.ErrInvalidConfig),
			}
		}

		key := strings.TrimSpace(rest[:end])
		if key == "" {
			return "", &domain.OpError{
				Op:   "template.render",
				Kind: domain.KindInvalidConfig,
				Err:  fmt.Errorf("%w: empty template expression", domain.ErrInvalidConfig),
			}
		}

		value, ok := vars[key]
		if !ok {
			return "", &domain.OpError{
				Op:   "template.render",
				Kind: domain.KindMissingVar,
				Err:  fmt.Errorf("%w: %s", domain.ErrMissingVar, key),
			}
		}

		s, err := stringify(value)
		if err != nil {
			return "", &domain.OpError{Op: "template.render", Kind: domain.KindExecution, Path: key, Err: err}
		}
		out.WriteString(s)
		rest = rest[end+2:]
	}
}

func stringify(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprint(int64(t)), nil
		}
		return fmt.Sprint(t), nil
	case json.Number:
		return t.String(), nil
	case int, int64, bool:
		return fmt.Sprint(t), nil
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}
