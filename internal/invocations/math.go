package invocations

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/waffletower/InvokeAI/internal/graph"
)

// MaxCollectionSize bounds the lists range and random_range may build.
const MaxCollectionSize = 1 << 20

var errDivideByZero = errors.New("divide by zero")

func init() {
	Register(graph.Definition{
		Type:        "integer",
		Description: "A constant integer",
		Inputs:      graph.Fields{"value": graph.Int},
		Outputs:     graph.Fields{"value": graph.Int},
	}, func(_ context.Context, _ *InvocationContext, n *graph.Node) (graph.Output, error) {
		v, err := in(n).Int("value", 0)
		if err != nil {
			return graph.Output{}, err
		}
		return output("integer", "value", v), nil
	})

	Register(graph.Definition{
		Type:        "float",
		Description: "A constant float",
		Inputs:      graph.Fields{"value": graph.Float},
		Outputs:     graph.Fields{"value": graph.Float},
	}, func(_ context.Context, _ *InvocationContext, n *graph.Node) (graph.Output, error) {
		v, err := in(n).Float("value", 0)
		if err != nil {
			return graph.Output{}, err
		}
		return output("float", "value", v), nil
	})

	Register(graph.Definition{
		Type:        "string",
		Description: "A constant string",
		Inputs:      graph.Fields{"value": graph.String},
		Outputs:     graph.Fields{"value": graph.String},
	}, func(_ context.Context, _ *InvocationContext, n *graph.Node) (graph.Output, error) {
		v, err := in(n).String("value", "")
		if err != nil {
			return graph.Output{}, err
		}
		return output("string", "value", v), nil
	})

	binary("add", "Adds two integers", func(a, b int) (int, error) { return a + b, nil })
	binary("subtract", "Subtracts b from a", func(a, b int) (int, error) { return a - b, nil })
	binary("multiply", "Multiplies two integers", func(a, b int) (int, error) { return a * b, nil })
	binary("divide", "Divides a by b, rounding toward zero", func(a, b int) (int, error) {
		if b == 0 {
			return 0, errDivideByZero
		}
		return a / b, nil
	})

	Register(graph.Definition{
		Type:        "range",
		Description: "Integers from start up to stop by step",
		Inputs:      graph.Fields{"start": graph.Int, "stop": graph.Int, "step": graph.Int},
		Outputs:     graph.Fields{"collection": graph.ListOf(graph.Int)},
	}, invokeRange)

	Register(graph.Definition{
		Type:        "random_range",
		Description: "size random integers in [low, high)",
		Inputs:      graph.Fields{"low": graph.Int, "high": graph.Int, "size": graph.Int, "seed": graph.Int},
		Outputs:     graph.Fields{"collection": graph.ListOf(graph.Int)},
	}, invokeRandomRange)

	Register(graph.Definition{
		Type:        "random_int",
		Description: "One random integer in [low, high)",
		Inputs:      graph.Fields{"low": graph.Int, "high": graph.Int, "seed": graph.Int},
		Outputs:     graph.Fields{"value": graph.Int},
	}, func(_ context.Context, ic *InvocationContext, n *graph.Node) (graph.Output, error) {
		r, low, high, err := randomArgs(ic, n)
		if err != nil {
			return graph.Output{}, err
		}
		return output("random_int", "value", low+r.Intn(high-low)), nil
	})
}

func binary(typ, desc string, op func(a, b int) (int, error)) {
	Register(graph.Definition{
		Type:        typ,
		Description: desc,
		Inputs:      graph.Fields{"a": graph.Int, "b": graph.Int},
		Outputs:     graph.Fields{"value": graph.Int},
	}, func(_ context.Context, _ *InvocationContext, n *graph.Node) (graph.Output, error) {
		a, err := in(n).Int("a", 0)
		if err != nil {
			return graph.Output{}, err
		}
		b, err := in(n).Int("b", 0)
		if err != nil {
			return graph.Output{}, err
		}
		v, err := op(a, b)
		if err != nil {
			return graph.Output{}, err
		}
		return output(typ, "value", v), nil
	})
}

func invokeRange(_ context.Context, _ *InvocationContext, n *graph.Node) (graph.Output, error) {
	start, err := in(n).Int("start", 0)
	if err != nil {
		return graph.Output{}, err
	}
	stop, err := in(n).Int("stop", 10)
	if err != nil {
		return graph.Output{}, err
	}
	step, err := in(n).Int("step", 1)
	if err != nil {
		return graph.Output{}, err
	}
	if step == 0 {
		return graph.Output{}, errors.New("range: step must not be zero")
	}

	count := rangeLen(start, stop, step)
	if count > MaxCollectionSize {
		return graph.Output{}, fmt.Errorf("range: %d elements exceeds the limit of %d", count, MaxCollectionSize)
	}
	out := make([]any, 0, count)
	for i := start; (step > 0 && i < stop) || (step < 0 && i > stop); i += step {
		out = append(out, i)
		if len(out) == int(count) {
			break
		}
	}
	return output("range", "collection", out), nil
}

// rangeLen counts the values of range(start, stop, step) without
// overflowing.
func rangeLen(start, stop, step int) uint64 {
	var span, stride uint64
	switch {
	case step > 0 && stop > start:
		span, stride = uint64(stop)-uint64(start), uint64(step)
	case step < 0 && stop < start:
		span, stride = uint64(start)-uint64(stop), uint64(-(step+1))+1
	default:
		return 0
	}
	return (span-1)/stride + 1
}

func invokeRandomRange(_ context.Context, ic *InvocationContext, n *graph.Node) (graph.Output, error) {
	r, low, high, err := randomArgs(ic, n)
	if err != nil {
		return graph.Output{}, err
	}
	size, err := in(n).Int("size", 1)
	if err != nil {
		return graph.Output{}, err
	}
	if size < 0 {
		return graph.Output{}, errors.New("random_range: size must not be negative")
	}
	if size > MaxCollectionSize {
		return graph.Output{}, fmt.Errorf("random_range: size %d exceeds the limit of %d", size, MaxCollectionSize)
	}

	out := make([]any, size)
	for i := range out {
		out[i] = low + r.Intn(high-low)
	}
	return output("random_range", "collection", out), nil
}

// randomArgs reads low/high and builds a generator. A fixed seed makes the
// output reproducible; without one the clock seeds it.
func randomArgs(ic *InvocationContext, n *graph.Node) (*rand.Rand, int, int, error) {
	low, err := in(n).Int("low", 0)
	if err != nil {
		return nil, 0, 0, err
	}
	high, err := in(n).Int("high", 100)
	if err != nil {
		return nil, 0, 0, err
	}
	if high <= low {
		return nil, 0, 0, errors.New("random: high must be greater than low")
	}

	seed := ic.Now().UnixNano()
	if in(n).Has("seed") {
		s, err := in(n).Int("seed", 0)
		if err != nil {
			return nil, 0, 0, err
		}
		seed = int64(s)
	}
	return rand.New(rand.NewSource(seed)), low, high, nil
}
