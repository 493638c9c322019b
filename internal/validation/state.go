package validation

import (
	"abvalid/internal/protocol"
)

// EvaluatorResult is one evaluator's accepted outcome: a score in [0,100]
// plus whatever detail structure the evaluator attached.
type EvaluatorResult struct {
	Score  float64        `json:"score"`
	Detail map[string]any `json:"detail,omitempty"`
}

// State accumulates one validation run. It is owned by a single workflow
// engine for the run's duration and is never shared across runs; the message
// log is append-only.
type State struct {
	SessionID string              `json:"session_id"`
	Context   *Context            `json:"context"`
	Log       []*protocol.Message `json:"message_log"`

	// Planned is the evaluator set chosen during planning, in plan order.
	Planned []string `json:"planned,omitempty"`

	// Results maps evaluator name to its accepted outcome, populated as
	// responses arrive.
	Results map[string]EvaluatorResult `json:"results,omitempty"`

	// Synthesis is nil until the synthesizing stage completes.
	Synthesis *Synthesis `json:"synthesis,omitempty"`

	Done       bool   `json:"done"`
	Failed     bool   `json:"failed"`
	FailReason string `json:"fail_reason,omitempty"`
}

// NewState creates the initial state for one run.
func NewState(sessionID string, ctx *Context) *State {
	return &State{
		SessionID: sessionID,
		Context:   ctx,
		Log:       []*protocol.Message{},
		Results:   make(map[string]EvaluatorResult),
	}
}

// Append records messages in the run log. Only the workflow engine appends;
// concurrent producers hand their messages to the engine through the
// executor's collector, so no lock is needed here.
func (s *State) Append(msgs ...*protocol.Message) {
	s.Log = append(s.Log, msgs...)
}

// Fail moves the state to the absorbing FAILED terminal.
func (s *State) Fail(reason string) {
	s.Failed = true
	s.FailReason = reason
}

// Terminal reports whether the run has reached DONE or FAILED.
func (s *State) Terminal() bool {
	return s.Done || s.Failed
}
