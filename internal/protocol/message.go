// Package protocol defines the message envelope used for every exchange
// between the orchestrator and the evaluator agents. Messages are immutable
// after construction; responses and errors are derived from the request they
// answer so that task and addressing stay consistent across the log.
package protocol

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the direction of a message.
type Kind string

const (
	KindRequest  Kind = "REQUEST"
	KindResponse Kind = "RESPONSE"
	KindError    Kind = "ERROR"
)

// Status tracks the lifecycle of the task a message carries.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Message is the unit of inter-agent communication. Payload carries the
// request data, Result carries response data; both are opaque to the
// transport. A message is never mutated after construction.
type Message struct {
	ID        string         `json:"message_id"`
	SessionID string         `json:"session_id,omitempty"`
	Sender    string         `json:"sender"`
	Receiver  string         `json:"receiver"`
	Kind      Kind           `json:"message_type"`
	Timestamp time.Time      `json:"timestamp"`
	Task      string         `json:"task,omitempty"`
	Payload   map[string]any `json:"data,omitempty"`
	Status    Status         `json:"status"`
	Result    map[string]any `json:"result,omitempty"`
}

// NewRequest builds a PENDING request from sender to receiver.
func NewRequest(sessionID, sender, receiver, task string, payload map[string]any) *Message {
	return &Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Sender:    sender,
		Receiver:  receiver,
		Kind:      KindRequest,
		Timestamp: time.Now().UTC(),
		Task:      task,
		Payload:   payload,
		Status:    StatusPending,
	}
}

// NewResponse builds a COMPLETED response to req. Sender and receiver are
// swapped and the task is copied so the response can be matched back to its
// request.
func NewResponse(req *Message, result map[string]any) *Message {
	return &Message{
		ID:        uuid.NewString(),
		SessionID: req.SessionID,
		Sender:    req.Receiver,
		Receiver:  req.Sender,
		Kind:      KindResponse,
		Timestamp: time.Now().UTC(),
		Task:      req.Task,
		Payload:   req.Payload,
		Status:    StatusCompleted,
		Result:    result,
	}
}

// NewError builds a FAILED error message answering req. The reason is
// carried in the result under "error".
func NewError(req *Message, reason string) *Message {
	return &Message{
		ID:        uuid.NewString(),
		SessionID: req.SessionID,
		Sender:    req.Receiver,
		Receiver:  req.Sender,
		Kind:      KindError,
		Timestamp: time.Now().UTC(),
		Task:      req.Task,
		Payload:   req.Payload,
		Status:    StatusFailed,
		Result:    map[string]any{"error": reason},
	}
}

// Answers reports whether m is a response or error matching the given
// request: same task, addressed back to the request's sender.
func (m *Message) Answers(req *Message) bool {
	if m.Kind == KindRequest {
		return false
	}
	return m.Task == req.Task && m.Sender == req.Receiver && m.Receiver == req.Sender
}

// ErrorReason returns the human-readable reason of an ERROR message, or ""
// for other kinds.
func (m *Message) ErrorReason() string {
	if m.Kind != KindError {
		return ""
	}
	if reason, ok := m.Result["error"].(string); ok {
		return reason
	}
	return "unknown error"
}

// Marshal renders the wire form.
func (m *Message) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// Unmarshal parses the wire form produced by Marshal.
func Unmarshal(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
