package validation

// Decision values for a completed synthesis. The threshold comparison is
// inclusive: a final score exactly at the threshold is GOOD.
const (
	DecisionGood = "GOOD"
	DecisionBad  = "BAD"
)

// EvaluatorScore is the per-evaluator breakdown entry for an evaluator that
// responded. Weight is the re-normalized weight over the responded subset;
// Contribution is Score * Weight.
type EvaluatorScore struct {
	Name          string         `json:"name"`
	Score         float64        `json:"score"`
	NominalWeight float64        `json:"nominal_weight"`
	Weight        float64        `json:"weight"`
	Contribution  float64        `json:"contribution"`
	Detail        map[string]any `json:"detail,omitempty"`
}

// MissingEvaluator records an evaluator that was planned but produced no
// usable score, with the reason it is absent from the weighted sum.
type MissingEvaluator struct {
	Name          string  `json:"name"`
	NominalWeight float64 `json:"nominal_weight"`
	Reason        string  `json:"reason"`
}

// Synthesis is the final aggregation: the weighted score, the pass/fail
// decision, and the audit breakdown. It is written into the state exactly
// once, by the synthesizing stage.
type Synthesis struct {
	FinalScore      float64            `json:"final_score"`
	Threshold       float64            `json:"threshold"`
	Decision        string             `json:"decision"`
	Responded       []EvaluatorScore   `json:"breakdown"`
	Missing         []MissingEvaluator `json:"missing,omitempty"`
	EvaluatorsUsed  int                `json:"evaluators_used"`
	EvaluatorsTotal int                `json:"evaluators_total"`
}
