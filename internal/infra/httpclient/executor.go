package httpclient

import (
	"context"
	"io"
	"net/http"
	"time"
)

// Response captures what an invocation needs from an HTTP reply.
type Response struct {
	Status    int
	Headers   http.Header
	Body      []byte
	Truncated bool
	Duration  time.Duration
}

// Executor runs requests with a timeout and a body size cap.
type Executor struct {
	client       *http.Client
	timeout      time.Duration
	maxBodyBytes int64
}

type ExecutorOption func(*Executor)

// WithTimeout sets the default timeout applied to requests.
func WithTimeout(timeout time.Duration) ExecutorOption {
	return func(e *Executor) { e.timeout = timeout }
}

// WithClient sets a custom HTTP client.
func WithClient(client *http.Client) ExecutorOption {
	return func(e *Executor) { e.client = client }
}

// WithMaxBodyBytes caps the kept response body; n <= 0 keeps everything.
func WithMaxBodyBytes(n int64) ExecutorOption {
	return func(e *Executor) { e.maxBodyBytes = n }
}

func NewExecutor(opts ...ExecutorOption) *Executor {
	cfg := DefaultConfig()
	e := &Executor{
		client:       New(cfg),
		timeout:      cfg.Timeout,
		maxBodyBytes: cfg.MaxBodyBytes,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Do executes req and reads at most the configured number of body bytes.
func (e *Executor) Do(ctx context.Context, req *http.Request) (Response, error) {
	start := time.Now()
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	resp, err := e.client.Do(req.WithContext(ctx))
	if err != nil {
		return Response{Duration: time.Since(start)}, err
	}
	defer resp.Body.Close()

	var r io.Reader = resp.Body
	if e.maxBodyBytes > 0 {
		r = io.LimitReader(resp.Body, e.maxBodyBytes+1)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return Response{Status: resp.StatusCode, Duration: time.Since(start)}, err
	}

	truncated := false
	if e.maxBodyBytes > 0 && int64(len(body)) > e.maxBodyBytes {
		body = body[:e.maxBodyBytes]
		truncated = true
	}

	return Response{
		Status:    resp.StatusCode,
		Headers:   resp.Header.Clone(),
		Body:      body,
		Truncated: truncated,
		Duration:  time.Since(start),
	}, nil
}
