package domain

import "time"

// NodeReport is the outcome of one prepared node in a graph run.
type NodeReport struct {
	SourceNodeID string         `json:"source_node_id"`
	PreparedID   string         `json:"prepared_id"`
	Type         string         `json:"type"`
	Values       map[string]any `json:"values,omitempty"`
	Error        string         `json:"error,omitempty"`
}

// Failed reports whether the node ended in error.
func (n NodeReport) Failed() bool { return n.Error != "" }

// RunReport summarises a finished (or abandoned) graph run.
type RunReport struct {
	SessionID       string    `json:"session_id"`
	GraphName       string    `json:"graph_name"`
	GraphPath       string    `json:"graph_path,omitempty"`
	EnvironmentName string    `json:"environment,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`

	Complete bool         `json:"complete"`
	History  []string     `json:"history"`
	Nodes    []NodeReport `json:"nodes"`
}

// Failures counts nodes that ended in error.
func (r RunReport) Failures() int {
	n := 0
	for _, nr := range r.Nodes {
		if nr.Failed() {
			n++
		}
	}
	return n
}

// Duration is zero until both timestamps are set.
func (r RunReport) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.EndedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}
