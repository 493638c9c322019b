// Package evaluators provides the built-in evaluator implementations: four
// deterministic heuristic validators (data, code, report, statistical) and a
// fixed-score evaluator used to exercise the protocol and the weighting
// algorithm without touching the filesystem.
package evaluators

import (
	"context"

	"abvalid/internal/protocol"
	"abvalid/internal/validation"
)

// Static returns a fixed score with canned detail. Useful for protocol
// testing and dry runs of the orchestration pipeline.
type Static struct {
	Score  float64
	Detail map[string]any
}

// NewStatic builds a fixed-score evaluator.
func NewStatic(score float64) *Static {
	return &Static{Score: score}
}

// Handle answers every request with the configured score.
func (s *Static) Handle(ctx context.Context, req *protocol.Message, _ *validation.Context) (*protocol.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result := map[string]any{"score": s.Score}
	if s.Detail != nil {
		result["details"] = s.Detail
	}
	return protocol.NewResponse(req, result), nil
}

// StaticScores is the canonical fixed-score table for dry runs, one entry
// per default evaluator agent ID.
func StaticScores() map[string]float64 {
	return map[string]float64{
		"data_validator":   85.0,
		"code_validator":   78.0,
		"report_validator": 92.0,
		"stats_validator":  88.0,
	}
}
