package orchestrator

import (
	"fmt"
	"strings"

	"abvalid/internal/validation"
)

// Summary renders a synthesis as a human-readable report for CLI output and
// audit logs.
func Summary(s *validation.Synthesis) string {
	rule := strings.Repeat("=", 60)
	thin := strings.Repeat("-", 60)

	var b strings.Builder
	b.WriteString(rule + "\n")
	b.WriteString("EXPERIMENT VALIDATION SUMMARY\n")
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "Final Score: %.1f/100\n", s.FinalScore)
	fmt.Fprintf(&b, "Decision: %s (threshold %.1f)\n\n", s.Decision, s.Threshold)
	b.WriteString("Score Breakdown:\n")
	b.WriteString(thin + "\n")

	for _, e := range s.Responded {
		fmt.Fprintf(&b, "  %-12s %6.1f  (weight %.0f%%, re-normalized %.1f%%, contribution %.1f)\n",
			e.Name, e.Score, e.NominalWeight*100, e.Weight*100, e.Contribution)
	}
	for _, m := range s.Missing {
		fmt.Fprintf(&b, "  %-12s MISSING (weight %.0f%%): %s\n",
			m.Name, m.NominalWeight*100, m.Reason)
	}

	b.WriteString(thin + "\n")
	fmt.Fprintf(&b, "Evaluators Used: %d/%d\n", s.EvaluatorsUsed, s.EvaluatorsTotal)
	b.WriteString(rule)
	return b.String()
}
