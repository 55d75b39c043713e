package graph

import (
	"errors"

	"github.com/waffletower/InvokeAI/internal/domain"
)

var (
	ErrNodeNotFound        = errors.New("node not found")
	ErrNodeAlreadyInGraph  = errors.New("node already in graph")
	ErrInvalidEdge         = errors.New("invalid edge")
	ErrInvalidNode         = errors.New("invalid node")
	ErrNodeAlreadyExecuted = errors.New("node already executed")
	ErrCycle               = errors.New("graph contains a cycle")
)

func notFound(op, path string) error {
	return &domain.OpError{Op: op, Kind: domain.KindNotFound, Path: path, Err: ErrNodeNotFound}
}

func invalid(op, path string, err error) error {
	return &domain.OpError{Op: op, Kind: domain.KindInvalidGraph, Path: path, Err: err}
}

func executed(op, path string) error {
	return &domain.OpError{Op: op, Kind: domain.KindNodeExecuted, Path: path, Err: ErrNodeAlreadyExecuted}
}
