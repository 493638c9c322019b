// Package workflow drives one validation run through an explicit state
// machine: PLANNING → DELEGATING → EXECUTING → SYNTHESIZING → DONE, with
// FAILED absorbing from any stage. Stages run strictly in sequence; the only
// fan-out concurrency lives inside the executing stage.
package workflow

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"abvalid/internal/executor"
	"abvalid/internal/orchestrator"
	"abvalid/internal/protocol"
	"abvalid/internal/validation"
)

// Stage enumerates the workflow states.
type Stage int

const (
	StagePlanning Stage = iota
	StageDelegating
	StageExecuting
	StageSynthesizing
	StageDone
	StageFailed
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StagePlanning:
		return "PLANNING"
	case StageDelegating:
		return "DELEGATING"
	case StageExecuting:
		return "EXECUTING"
	case StageSynthesizing:
		return "SYNTHESIZING"
	case StageDone:
		return "DONE"
	case StageFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether the stage is absorbing.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed
}

// Engine owns the workflow state for the duration of one run. Engines are
// cheap; build one per run or reuse across sequential runs, but never share
// one state across concurrent runs.
type Engine struct {
	orch   *orchestrator.Orchestrator
	exec   *executor.Executor
	logger *zap.Logger
}

// NewEngine wires the orchestrating agent and the executor into a runnable
// pipeline.
func NewEngine(orch *orchestrator.Orchestrator, exec *executor.Executor, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{orch: orch, exec: exec, logger: logger}
}

// Run executes the full pipeline for one context and returns the terminal
// state. The returned error is non-nil exactly when the state is FAILED; the
// state is always returned so callers can audit the message log either way.
func (e *Engine) Run(ctx context.Context, vc *validation.Context) (*validation.State, error) {
	vc.ApplyDefaults()
	state := validation.NewState(uuid.NewString(), vc)

	stage := StagePlanning
	var (
		requests  []*protocol.Message
		responses []*protocol.Message
	)

	for !stage.Terminal() {
		if err := ctx.Err(); err != nil {
			return e.fail(state, stage, fmt.Errorf("run canceled: %w", err))
		}
		e.logger.Debug("entering stage",
			zap.String("stage", stage.String()),
			zap.String("session", state.SessionID))

		switch stage {
		case StagePlanning:
			planned, err := e.orch.Plan(vc)
			if err != nil {
				return e.fail(state, stage, err)
			}
			state.Planned = planned
			state.Append(planMessage(state, planned))
			stage = StageDelegating

		case StageDelegating:
			reqs, err := e.orch.Delegate(state.SessionID, vc, state.Planned)
			if err != nil {
				return e.fail(state, stage, err)
			}
			requests = reqs
			state.Append(requests...)
			stage = StageExecuting

		case StageExecuting:
			// Outcomes arrive in timestamp order, not request order.
			responses = e.exec.Execute(ctx, requests, vc)
			state.Append(responses...)
			stage = StageSynthesizing

		case StageSynthesizing:
			synthesis, err := e.orch.Synthesize(state.Planned, responses)
			if err != nil {
				return e.fail(state, stage, err)
			}
			for _, entry := range synthesis.Responded {
				state.Results[entry.Name] = validation.EvaluatorResult{
					Score:  entry.Score,
					Detail: entry.Detail,
				}
			}
			state.Synthesis = synthesis
			state.Append(synthesisMessage(state, synthesis))
			state.Done = true
			stage = StageDone
		}
	}

	e.logger.Info("run finished",
		zap.String("session", state.SessionID),
		zap.String("stage", stage.String()))
	return state, nil
}

// fail moves the run into the absorbing FAILED state.
func (e *Engine) fail(state *validation.State, stage Stage, err error) (*validation.State, error) {
	reason := fmt.Sprintf("%s: %v", stage, err)
	state.Fail(reason)
	e.logger.Warn("run failed",
		zap.String("session", state.SessionID),
		zap.String("stage", stage.String()),
		zap.Error(err))
	return state, fmt.Errorf("workflow failed in %s: %w", stage, err)
}

// planMessage records the planning decision on the log. The orchestrator
// addresses it to itself, mirroring how evaluator traffic is logged.
func planMessage(state *validation.State, planned []string) *protocol.Message {
	names := make([]any, 0, len(planned))
	for _, n := range planned {
		names = append(names, n)
	}
	msg := protocol.NewRequest(state.SessionID, orchestrator.AgentID, orchestrator.AgentID,
		"plan_validation", map[string]any{"evaluators": names})
	return protocol.NewResponse(msg, map[string]any{
		"plan": fmt.Sprintf("delegating to %d evaluators", len(planned)),
	})
}

// synthesisMessage records the final aggregation on the log.
func synthesisMessage(state *validation.State, s *validation.Synthesis) *protocol.Message {
	msg := protocol.NewRequest(state.SessionID, orchestrator.AgentID, orchestrator.AgentID,
		"synthesize_results", nil)
	return protocol.NewResponse(msg, map[string]any{
		"score":    s.FinalScore,
		"decision": s.Decision,
	})
}
