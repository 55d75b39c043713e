package invocations

import (
	"context"

	"github.com/waffletower/InvokeAI/internal/app/template"
	"github.com/waffletower/InvokeAI/internal/graph"
)

func init() {
	Register(graph.Definition{
		Type:        "template",
		Description: "Renders {{name}} placeholders from vars",
		Inputs:      graph.Fields{"template": graph.String, "vars": graph.Any},
		Outputs:     graph.Fields{"value": graph.String},
		Verbatim:    []string{"template"},
	}, func(_ context.Context, _ *InvocationContext, n *graph.Node) (graph.Output, error) {
		tmpl, err := in(n).String("template", "")
		if err != nil {
			return graph.Output{}, err
		}
		vars, err := in(n).Map("vars")
		if err != nil {
			return graph.Output{}, err
		}
		s, err := template.RenderString(tmpl, vars)
		if err != nil {
			return graph.Output{}, err
		}
		return output("template", "value", s), nil
	})

	Register(graph.Definition{
		Type:        "show",
		Description: "Logs a value and passes it through",
		Inputs:      graph.Fields{"value": graph.Any},
		Outputs:     graph.Fields{"value": graph.Any},
	}, func(_ context.Context, ic *InvocationContext, n *graph.Node) (graph.Output, error) {
		v, _ := n.Input("value")
		ic.Log.Info("show", "session", ic.SessionID, "node", n.ID, "value", v)
		return output("show", "value", v), nil
	})
}
