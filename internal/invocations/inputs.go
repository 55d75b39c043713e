package invocations

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/waffletower/InvokeAI/internal/graph"
)

// inputs reads typed node inputs. Values may come straight from YAML or
// back from JSON storage, so numbers are accepted in any numeric form.
type inputs struct {
	n *graph.Node
}

func in(n *graph.Node) inputs { return inputs{n: n} }

func (i inputs) raw(name string) (any, bool) {
	v, ok := i.n.Input(name)
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func (i inputs) Int(name string, def int) (int, error) {
	v, ok := i.raw(name)
	if !ok {
		return def, nil
	}
	n, err := toInt(v)
	if err != nil {
		return 0, fmt.Errorf("input %s: %w", name, err)
	}
	return n, nil
}

func (i inputs) Float(name string, def float64) (float64, error) {
	v, ok := i.raw(name)
	if !ok {
		return def, nil
	}
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case json.Number:
		return t.Float64()
	}
	n, err := toInt(v)
	if err != nil {
		return 0, fmt.Errorf("input %s: expected number, got %T", name, v)
	}
	return float64(n), nil
}

func (i inputs) String(name, def string) (string, error) {
	v, ok := i.raw(name)
	if !ok {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("input %s: expected string, got %T", name, v)
	}
	return s, nil
}

func (i inputs) List(name string) ([]any, error) {
	v, ok := i.raw(name)
	if !ok {
		return []any{}, nil
	}
	l, ok := graph.AsList(v)
	if !ok {
		return nil, fmt.Errorf("input %s: expected list, got %T", name, v)
	}
	return l, nil
}

func (i inputs) Map(name string) (map[string]any, error) {
	v, ok := i.raw(name)
	if !ok {
		return map[string]any{}, nil
	}
	switch m := v.(type) {
	case map[string]any:
		return m, nil
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out, nil
	}
	return nil, fmt.Errorf("input %s: expected map, got %T", name, v)
}

// Has reports whether the input is set.
func (i inputs) Has(name string) bool {
	_, ok := i.raw(name)
	return ok
}

func toInt(v any) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case int8:
		return int(t), nil
	case int16:
		return int(t), nil
	case int32:
		return int(t), nil
	case int64:
		return int(t), nil
	case uint:
		return int(t), nil
	case uint8:
		return int(t), nil
	case uint16:
		return int(t), nil
	case uint32:
		return int(t), nil
	case uint64:
		return int(t), nil
	case float32:
		return floatToInt(float64(t))
	case float64:
		return floatToInt(t)
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return int(n), nil
		}
		f, err := t.Float64()
		if err != nil {
			return 0, fmt.Errorf("expected int, got %q", t)
		}
		return floatToInt(f)
	}
	return 0, fmt.Errorf("expected int, got %T", v)
}

func floatToInt(f float64) (int, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("expected int, got %v", f)
	}
	return int(f), nil
}
