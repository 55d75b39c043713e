package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestOpErrorWrapUnwrap(t *testing.T) {
	root := errors.New("root")
	err := &OpError{
		Op:   "graph.add_edge",
		Kind: KindInvalidGraph,
		Path: "a.b",
		Err:  root,
	}

	if !errors.Is(err, root) {
		t.Fatalf("expected errors.Is to match cause")
	}

	var got *OpError
	if !errors.As(err, &got) {
		t.Fatalf("expected errors.As to match OpError")
	}
	if got.Kind != KindInvalidGraph {
		t.Fatalf("expected kind %s", KindInvalidGraph)
	}
	if !strings.Contains(err.Error(), "(path=a.b)") {
		t.Fatalf("expected path in message, got %q", err.Error())
	}
}

func TestIsKindForOpError(t *testing.T) {
	err := &OpError{Op: "x", Kind: KindInvalidConfig}

	if !IsKind(err, KindInvalidConfig) {
		t.Fatalf("expected IsKind to match")
	}
	if IsKind(errors.New("plain"), KindInvalidConfig) {
		t.Fatalf("expected plain error not to match")
	}
}

func TestKindOfDefaultsToExecution(t *testing.T) {
	if got := KindOf(errors.New("boom")); got != KindExecution {
		t.Fatalf("expected execution, got %s", got)
	}

	wrapped := &OpError{Op: "x", Kind: KindNodeExecuted}
	if got := KindOf(errors.Join(errors.New("ctx"), wrapped)); got != KindNodeExecuted {
		t.Fatalf("expected node_executed, got %s", got)
	}
}

func TestNilOpErrorString(t *testing.T) {
	var e *OpError
	if e.Error() != "<nil>" {
		t.Fatalf("expected <nil>")
	}
	if e.Unwrap() != nil {
		t.Fatalf("expected nil unwrap")
	}
}
