package domain

import "time"

// QueueItem asks a worker to run one prepared node of a session.
type QueueItem struct {
	GraphExecutionStateID string `json:"graph_execution_state_id"`
	InvocationID          string `json:"invocation_id"`
	InvokeAll             bool   `json:"invoke_all"`
}

// EventType names an invocation lifecycle event.
type EventType string

const (
	EventInvocationStarted  EventType = "invocation_started"
	EventInvocationComplete EventType = "invocation_complete"
	EventInvocationError    EventType = "invocation_error"
	EventSessionComplete    EventType = "graph_execution_state_complete"
)

// Event reports progress of a session. NodeID is the prepared node id and
// SourceNodeID the node path in the source graph.
type Event struct {
	Type                  EventType      `json:"type"`
	GraphExecutionStateID string         `json:"graph_execution_state_id"`
	NodeID                string         `json:"node_id,omitempty"`
	SourceNodeID          string         `json:"source_node_id,omitempty"`
	Result                map[string]any `json:"result,omitempty"`
	Error                 string         `json:"error,omitempty"`
	At                    time.Time      `json:"at"`
}
