// Package validation holds the run-scoped data model: the immutable
// experiment context supplied by the caller and the workflow state that
// accumulates messages and results over one validation run.
package validation

// Default statistical design parameters, applied when the caller leaves the
// fields zero. These are the only fallback values the engine invents.
const (
	DefaultSignificanceLevel = 0.05
	DefaultPower             = 0.80
)

// Context describes the experiment under validation. It is read-only for
// the whole run; the engine never re-derives hypothesis or metrics.
type Context struct {
	Hypothesis         string   `json:"hypothesis" yaml:"hypothesis"`
	SuccessMetrics     []string `json:"success_metrics" yaml:"success_metrics"`
	DatasetPath        string   `json:"dataset_path" yaml:"dataset_path"`
	CodePath           string   `json:"code_path,omitempty" yaml:"code_path"`
	ReportPath         string   `json:"report_path,omitempty" yaml:"report_path"`
	ExpectedEffectSize float64  `json:"expected_effect_size" yaml:"expected_effect_size"`
	SignificanceLevel  float64  `json:"significance_level" yaml:"significance_level"`
	Power              float64  `json:"power" yaml:"power"`
}

// ApplyDefaults fills the documented fallback values for the statistical
// design parameters. No other field is defaulted.
func (c *Context) ApplyDefaults() {
	if c.SignificanceLevel == 0 {
		c.SignificanceLevel = DefaultSignificanceLevel
	}
	if c.Power == 0 {
		c.Power = DefaultPower
	}
}

// Payload renders the context as a message payload. Evaluators are stateless
// across runs, so every request carries the full context.
func (c *Context) Payload() map[string]any {
	metrics := make([]any, 0, len(c.SuccessMetrics))
	for _, m := range c.SuccessMetrics {
		metrics = append(metrics, m)
	}
	return map[string]any{
		"hypothesis":           c.Hypothesis,
		"success_metrics":      metrics,
		"dataset_path":         c.DatasetPath,
		"code_path":            c.CodePath,
		"report_path":          c.ReportPath,
		"expected_effect_size": c.ExpectedEffectSize,
		"significance_level":   c.SignificanceLevel,
		"power":                c.Power,
	}
}
