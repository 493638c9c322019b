package evaluators

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"abvalid/internal/protocol"
	"abvalid/internal/validation"
)

// Report validates the analysis report: structure, conclusions,
// actionability, and completeness. Rubric: structure 30, conclusions 30,
// actionability 25, completeness 15.
type Report struct{}

// NewReport builds the report-quality evaluator.
func NewReport() *Report {
	return &Report{}
}

var numberPattern = regexp.MustCompile(`\d`)

// Handle scores the report referenced by the context.
func (r *Report) Handle(ctx context.Context, req *protocol.Message, vc *validation.Context) (*protocol.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if vc.ReportPath == "" {
		return protocol.NewError(req, "no report file supplied"), nil
	}

	raw, err := os.ReadFile(vc.ReportPath)
	if err != nil {
		return protocol.NewError(req, fmt.Sprintf("report unreadable: %v", err)), nil
	}
	text := string(raw)
	lower := strings.ToLower(text)

	structure := structurePoints(text)
	conclusions := conclusionPoints(lower)
	actionability := actionabilityPoints(lower)
	completeness := completenessSections(lower)

	score := structure + conclusions + actionability + completeness
	return protocol.NewResponse(req, map[string]any{
		"score":           score,
		"validation_type": "report_quality",
		"checks_performed": []any{
			"structure_check", "conclusions_check", "actionability_check", "completeness_check",
		},
		"details": map[string]any{
			"structure":     structure,
			"conclusions":   conclusions,
			"actionability": actionability,
			"completeness":  completeness,
		},
	}), nil
}

// structurePoints: 30 for a report with headings and non-trivial length.
func structurePoints(text string) float64 {
	points := 0.0
	headings := strings.Count(text, "\n#") // markdown sections
	if strings.HasPrefix(text, "#") {
		headings++
	}
	switch {
	case headings >= 3:
		points += 20
	case headings >= 1:
		points += 10
	}
	if len(text) >= 500 {
		points += 10
	} else if len(text) >= 100 {
		points += 5
	}
	return points
}

// conclusionPoints: 30 when conclusions exist and are backed by numbers.
func conclusionPoints(lower string) float64 {
	points := 0.0
	if strings.Contains(lower, "conclusion") || strings.Contains(lower, "summary") ||
		strings.Contains(lower, "finding") {
		points += 15
	}
	if numberPattern.MatchString(lower) {
		points += 15
	}
	return points
}

// actionabilityPoints: 25 when the report recommends something.
func actionabilityPoints(lower string) float64 {
	for _, kw := range []string{"recommend", "should", "next step", "action", "suggest"} {
		if strings.Contains(lower, kw) {
			return 25
		}
	}
	return 0
}

// completenessSections: 15, five points per key section present.
func completenessSections(lower string) float64 {
	points := 0.0
	for _, section := range []string{"method", "result", "conclusion"} {
		if strings.Contains(lower, section) {
			points += 5
		}
	}
	return points
}
