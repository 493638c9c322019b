// Package orchestrator implements the orchestrating agent: it plans which
// evaluators apply to an experiment, builds their request messages, and
// synthesizes their responses into a weighted final score with automatic
// weight re-normalization.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"abvalid/internal/agent"
	"abvalid/internal/protocol"
	"abvalid/internal/validation"
)

// DefaultThreshold is the inclusive pass mark for the final score.
const DefaultThreshold = 70.0

// AgentID is the orchestrator's identity on the message log.
const AgentID = "orchestrator"

// ErrNoResponses is returned by Synthesize when zero evaluators produced a
// usable score. No default score is ever fabricated.
var ErrNoResponses = errors.New("no evaluators responded")

// DefaultRegistrations is the standard evaluator table: four dimensions
// whose nominal weights sum to 1.0.
func DefaultRegistrations() []agent.Registration {
	return []agent.Registration{
		{Name: "data", AgentID: "data_validator", Task: "validate_data_quality", Weight: 0.20},
		{Name: "code", AgentID: "code_validator", Task: "validate_code_quality", Weight: 0.10},
		{Name: "report", AgentID: "report_validator", Task: "validate_report_quality", Weight: 0.30},
		{Name: "statistical", AgentID: "stats_validator", Task: "validate_statistical_rigor", Weight: 0.40},
	}
}

// Orchestrator coordinates the evaluator set. It satisfies the same
// capability contract as the evaluators it dispatches to.
type Orchestrator struct {
	registry  *agent.Registry
	threshold float64
	logger    *zap.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithThreshold overrides the pass threshold.
func WithThreshold(t float64) Option {
	return func(o *Orchestrator) { o.threshold = t }
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New builds an orchestrator over a validated registry.
func New(registry *agent.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:  registry,
		threshold: DefaultThreshold,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Threshold returns the configured pass mark.
func (o *Orchestrator) Threshold() float64 {
	return o.threshold
}

// Plan decides which evaluators apply to the context. Data and statistical
// validation are mandatory; code and report validation are skipped when the
// context carries no file for them. The result is deterministic for a given
// context: registration order, filtered.
func (o *Orchestrator) Plan(vc *validation.Context) ([]string, error) {
	if vc == nil {
		return nil, fmt.Errorf("plan: nil context")
	}
	if vc.DatasetPath == "" {
		return nil, fmt.Errorf("plan: context has no dataset path")
	}
	if vc.Hypothesis == "" {
		return nil, fmt.Errorf("plan: context has no hypothesis")
	}

	planned := make([]string, 0, o.registry.Len())
	for _, reg := range o.registry.Entries() {
		switch reg.Name {
		case "code":
			if vc.CodePath == "" {
				o.logger.Debug("skipping evaluator, no input", zap.String("evaluator", reg.Name))
				continue
			}
		case "report":
			if vc.ReportPath == "" {
				o.logger.Debug("skipping evaluator, no input", zap.String("evaluator", reg.Name))
				continue
			}
		}
		planned = append(planned, reg.Name)
	}
	o.logger.Info("planned evaluators", zap.Strings("evaluators", planned))
	return planned, nil
}

// Delegate builds one REQUEST per planned evaluator, addressed to that
// evaluator's agent and carrying the full context. Evaluators are stateless
// across runs, so each request is self-contained.
func (o *Orchestrator) Delegate(sessionID string, vc *validation.Context, planned []string) ([]*protocol.Message, error) {
	requests := make([]*protocol.Message, 0, len(planned))
	for _, name := range planned {
		reg, ok := o.registry.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("delegate: unknown evaluator %q", name)
		}
		req := protocol.NewRequest(sessionID, AgentID, reg.AgentID, reg.Task, map[string]any{
			"context": vc.Payload(),
		})
		requests = append(requests, req)
		o.logger.Debug("delegating",
			zap.String("evaluator", name),
			zap.String("task", reg.Task),
			zap.String("message_id", req.ID))
	}
	return requests, nil
}

// Synthesize combines evaluator responses into the final score. It is a pure
// function of its inputs: the planned set (in plan order) and the collected
// response/error messages. Responded evaluators keep their relative weight
// ratios; missing ones are recorded with the reason they dropped out.
func (o *Orchestrator) Synthesize(planned []string, responses []*protocol.Message) (*validation.Synthesis, error) {
	type accepted struct {
		reg    agent.Registration
		score  float64
		detail map[string]any
	}
	var (
		responded []accepted
		missing   []validation.MissingEvaluator
	)

	for _, name := range planned {
		reg, ok := o.registry.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("synthesize: unknown evaluator %q", name)
		}
		msg := findAnswer(responses, reg)
		switch {
		case msg == nil:
			missing = append(missing, validation.MissingEvaluator{
				Name: name, NominalWeight: reg.Weight, Reason: "no response",
			})
		case msg.Kind == protocol.KindError || msg.Status == protocol.StatusFailed:
			missing = append(missing, validation.MissingEvaluator{
				Name: name, NominalWeight: reg.Weight, Reason: "error: " + msg.ErrorReason(),
			})
		default:
			score, err := ScoreFromResult(msg.Result)
			if err != nil {
				// Malformed scores are rejected, never clamped.
				missing = append(missing, validation.MissingEvaluator{
					Name: name, NominalWeight: reg.Weight, Reason: "error: " + err.Error(),
				})
				continue
			}
			detail, _ := msg.Result["details"].(map[string]any)
			responded = append(responded, accepted{reg: reg, score: score, detail: detail})
		}
	}

	if len(responded) == 0 {
		return nil, ErrNoResponses
	}

	// Re-normalize over the responded subset. The division guarantees the
	// re-normalized weights sum to 1.0 and preserves pairwise weight ratios
	// no matter which evaluators are missing.
	totalWeight := 0.0
	for _, a := range responded {
		totalWeight += a.reg.Weight
	}

	final := 0.0
	breakdown := make([]validation.EvaluatorScore, 0, len(responded))
	for _, a := range responded {
		w := a.reg.Weight / totalWeight
		contribution := a.score * w
		final += contribution
		breakdown = append(breakdown, validation.EvaluatorScore{
			Name:          a.reg.Name,
			Score:         a.score,
			NominalWeight: a.reg.Weight,
			Weight:        w,
			Contribution:  contribution,
			Detail:        a.detail,
		})
	}

	final = roundHalfEven1(final)
	decision := validation.DecisionBad
	if final >= o.threshold {
		decision = validation.DecisionGood
	}

	o.logger.Info("synthesis complete",
		zap.Float64("final_score", final),
		zap.String("decision", decision),
		zap.Int("responded", len(responded)),
		zap.Int("missing", len(missing)))

	return &validation.Synthesis{
		FinalScore:      final,
		Threshold:       o.threshold,
		Decision:        decision,
		Responded:       breakdown,
		Missing:         missing,
		EvaluatorsUsed:  len(responded),
		EvaluatorsTotal: len(planned),
	}, nil
}

// Handle satisfies the evaluator contract for the orchestrator itself. It
// answers orchestration-level tasks; evaluator tasks are not its job.
func (o *Orchestrator) Handle(_ context.Context, req *protocol.Message, _ *validation.Context) (*protocol.Message, error) {
	if req.Task == "orchestrate_validation" {
		return protocol.NewResponse(req, map[string]any{"status": "orchestration initiated"}), nil
	}
	return protocol.NewError(req, fmt.Sprintf("unknown task: %s", req.Task)), nil
}

// ScoreFromResult extracts and validates the numeric score of a response
// result. Scores outside [0,100] are rejected, not clamped.
func ScoreFromResult(result map[string]any) (float64, error) {
	raw, ok := result["score"]
	if !ok {
		return 0, fmt.Errorf("result carries no score")
	}
	var score float64
	switch v := raw.(type) {
	case float64:
		score = v
	case float32:
		score = float64(v)
	case int:
		score = float64(v)
	case int64:
		score = float64(v)
	default:
		return 0, fmt.Errorf("score has non-numeric type %T", raw)
	}
	if math.IsNaN(score) || score < 0 || score > 100 {
		return 0, fmt.Errorf("score %v out of range [0,100]", score)
	}
	return score, nil
}

// findAnswer locates the response or error answering the evaluator's
// request. Completion order is not guaranteed, so the log is scanned by
// sender and task rather than position.
func findAnswer(responses []*protocol.Message, reg agent.Registration) *protocol.Message {
	for _, m := range responses {
		if m == nil || m.Kind == protocol.KindRequest {
			continue
		}
		if m.Sender == reg.AgentID && m.Task == reg.Task {
			return m
		}
	}
	return nil
}

// roundHalfEven1 rounds to one decimal place with round-half-to-even.
func roundHalfEven1(x float64) float64 {
	return math.RoundToEven(x*10) / 10
}
