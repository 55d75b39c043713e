package invocations

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PaesslerAG/jsonpath"

	"github.com/waffletower/InvokeAI/internal/graph"
)

func init() {
	Register(graph.Definition{
		Type:        "jsonpath",
		Description: "Evaluates a JSONPath expression against a JSON document",
		Inputs:      graph.Fields{"json": graph.String, "path": graph.String},
		Outputs:     graph.Fields{"value": graph.Any, "text": graph.String},
	}, invokeJSONPath)
}

func invokeJSONPath(_ context.Context, _ *InvocationContext, n *graph.Node) (graph.Output, error) {
	body, err := in(n).String("json", "")
	if err != nil {
		return graph.Output{}, err
	}
	expr, err := in(n).String("path", "")
	if err != nil {
		return graph.Output{}, err
	}

	val, text, err := Extract([]byte(body), expr)
	if err != nil {
		return graph.Output{}, err
	}
	return output("jsonpath", "value", val, "text", text), nil
}

// Extract evaluates expr against a JSON body. It returns the raw value and
// a string rendering of it; a single-element result is unwrapped.
func Extract(body []byte, expr string) (any, string, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, "", fmt.Errorf("jsonpath: empty expression")
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, "", fmt.Errorf("jsonpath (%s): body is not valid JSON: %w", expr, err)
	}

	val, err := jsonpath.Get(expr, doc)
	if err != nil {
		return nil, "", fmt.Errorf("jsonpath (%s): %w", expr, err)
	}
	if arr, ok := val.([]any); ok && len(arr) == 1 {
		val = arr[0]
	}
	if isEmptyValue(val) {
		return nil, "", fmt.Errorf("jsonpath (%s): no value found", expr)
	}

	text, err := toString(val)
	if err != nil {
		return nil, "", fmt.Errorf("jsonpath (%s): cannot render value: %w", expr, err)
	}
	return val, text, nil
}

func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}

func toString(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case float64, bool, int, int64:
		return fmt.Sprint(t), nil
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}
