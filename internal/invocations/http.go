package invocations

import (
	"context"
	"fmt"

	"github.com/waffletower/InvokeAI/internal/graph"
	"github.com/waffletower/InvokeAI/internal/infra/httpclient"
)

var httpOutputs = graph.Fields{
	"status":    graph.Int,
	"body":      graph.String,
	"headers":   graph.Any,
	"truncated": graph.Bool,
}

func init() {
	Register(graph.Definition{
		Type:        "http_get",
		Description: "Fetches a URL",
		Inputs:      graph.Fields{"url": graph.String, "headers": graph.Any},
		Outputs:     httpOutputs,
	}, func(ctx context.Context, ic *InvocationContext, n *graph.Node) (graph.Output, error) {
		return doHTTP(ctx, ic, n, "GET")
	})

	Register(graph.Definition{
		Type:        "http_request",
		Description: "Sends an HTTP request with an optional body",
		Inputs: graph.Fields{
			"method":       graph.String,
			"url":          graph.String,
			"headers":      graph.Any,
			"body":         graph.String,
			"content_type": graph.String,
		},
		Outputs: httpOutputs,
	}, func(ctx context.Context, ic *InvocationContext, n *graph.Node) (graph.Output, error) {
		method, err := in(n).String("method", "GET")
		if err != nil {
			return graph.Output{}, err
		}
		return doHTTP(ctx, ic, n, method)
	})
}

func doHTTP(ctx context.Context, ic *InvocationContext, n *graph.Node, method string) (graph.Output, error) {
	url, err := in(n).String("url", "")
	if err != nil {
		return graph.Output{}, err
	}
	body, err := in(n).String("body", "")
	if err != nil {
		return graph.Output{}, err
	}
	contentType, err := in(n).String("content_type", "application/json")
	if err != nil {
		return graph.Output{}, err
	}
	rawHeaders, err := in(n).Map("headers")
	if err != nil {
		return graph.Output{}, err
	}
	headers := make(map[string]string, len(rawHeaders))
	for k, v := range rawHeaders {
		headers[k] = fmt.Sprint(v)
	}

	req, err := httpclient.BuildRequest(ctx, httpclient.Request{
		Method:      method,
		URL:         url,
		Headers:     headers,
		Body:        body,
		ContentType: contentType,
	})
	if err != nil {
		return graph.Output{}, err
	}

	resp, err := ic.HTTP.Do(ctx, req)
	if err != nil {
		return graph.Output{}, fmt.Errorf("%s %s: %w", req.Method, url, err)
	}
	ic.Log.Debug("http.done",
		"session", ic.SessionID,
		"node", n.ID,
		"method", req.Method,
		"url", url,
		"status", resp.Status,
		"duration_ms", resp.Duration.Milliseconds(),
	)

	respHeaders := make(map[string]any, len(resp.Headers))
	for k := range resp.Headers {
		respHeaders[k] = resp.Headers.Get(k)
	}
	return output(n.Type,
		"status", resp.Status,
		"body", string(resp.Body),
		"headers", respHeaders,
		"truncated", resp.Truncated,
	), nil
}
