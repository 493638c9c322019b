package evaluators

import (
	"context"
	"fmt"
	"math"

	"abvalid/internal/protocol"
	"abvalid/internal/validation"
)

// Statistical validates the experimental design: achieved power against the
// target, significance level, effect size plausibility, and metric
// definition. Rubric: power 40, alpha 20, effect size 20, design 20.
//
// Power is computed with the normal approximation of the two-sample t-test:
//
//	power = Phi(|d| * sqrt(n/2) - z_{1-alpha/2})
//
// where n is the per-group sample size taken from the dataset.
type Statistical struct{}

// NewStatistical builds the statistical-rigor evaluator.
func NewStatistical() *Statistical {
	return &Statistical{}
}

// Handle scores the statistical design described by the context.
func (s *Statistical) Handle(ctx context.Context, req *protocol.Message, vc *validation.Context) (*protocol.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	_, rows, err := readCSV(vc.DatasetPath)
	if err != nil {
		return protocol.NewError(req, fmt.Sprintf("dataset unreadable: %v", err)), nil
	}
	perGroup := float64(len(rows)) / 2

	achieved := AchievedPower(vc.ExpectedEffectSize, vc.SignificanceLevel, perGroup)
	powerPts := powerPoints(achieved, vc.Power)
	alphaPts := alphaPoints(vc.SignificanceLevel)
	effectPts := effectPoints(vc.ExpectedEffectSize)
	designPts := designPoints(vc)

	score := powerPts + alphaPts + effectPts + designPts
	return protocol.NewResponse(req, map[string]any{
		"score":           score,
		"validation_type": "statistical_rigor",
		"checks_performed": []any{
			"power_analysis", "significance_check", "effect_size_check", "design_check",
		},
		"details": map[string]any{
			"achieved_power":  achieved,
			"target_power":    vc.Power,
			"per_group_n":     perGroup,
			"power_points":    powerPts,
			"alpha_points":    alphaPts,
			"effect_points":   effectPts,
			"design_points":   designPts,
		},
	}), nil
}

// AchievedPower returns the approximate power of a two-sided two-sample
// t-test with effect size d, significance level alpha, and per-group sample
// size n.
func AchievedPower(d, alpha, n float64) float64 {
	if d <= 0 || alpha <= 0 || alpha >= 1 || n <= 1 {
		return 0
	}
	zCrit := zQuantile(1 - alpha/2)
	return phi(math.Abs(d)*math.Sqrt(n/2) - zCrit)
}

// RequiredSampleSize returns the per-group sample size needed to reach the
// target power for the given effect size and significance level.
func RequiredSampleSize(d, alpha, power float64) float64 {
	if d <= 0 || alpha <= 0 || alpha >= 1 || power <= 0 || power >= 1 {
		return 0
	}
	z := zQuantile(1-alpha/2) + zQuantile(power)
	return 2 * (z / d) * (z / d)
}

// phi is the standard normal CDF.
func phi(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

// zQuantile is the standard normal quantile function.
func zQuantile(p float64) float64 {
	return math.Sqrt2 * math.Erfinv(2*p-1)
}

// powerPoints: full 40 when the achieved power reaches the target, scaled
// linearly below it.
func powerPoints(achieved, target float64) float64 {
	if target <= 0 {
		return 0
	}
	if achieved >= target {
		return 40
	}
	return 40 * achieved / target
}

// alphaPoints: 20 for a conventional significance level, partial credit for
// a lax one.
func alphaPoints(alpha float64) float64 {
	switch {
	case alpha > 0 && alpha <= 0.05:
		return 20
	case alpha <= 0.1:
		return 14
	case alpha <= 0.2:
		return 6
	default:
		return 0
	}
}

// effectPoints: 20 when the expected effect size is in a plausible range
// for an online experiment.
func effectPoints(d float64) float64 {
	switch {
	case d >= 0.01 && d <= 1.0:
		return 20
	case d > 1.0 && d <= 2.0:
		return 10
	default:
		return 0
	}
}

// designPoints: 20 when hypothesis and success metrics are both defined.
func designPoints(vc *validation.Context) float64 {
	points := 0.0
	if vc.Hypothesis != "" {
		points += 10
	}
	if len(vc.SuccessMetrics) > 0 {
		points += 10
	}
	return points
}
