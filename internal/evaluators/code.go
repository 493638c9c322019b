package evaluators

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"

	"abvalid/internal/protocol"
	"abvalid/internal/validation"
)

// Code validates the analysis source file with line-level heuristics:
// structure, error handling, and documentation density. The final score is
// the mean of a basic well-formedness check (0 or 100) and the style score,
// matching the original rubric's syntax/style split.
type Code struct{}

// NewCode builds the code-quality evaluator.
func NewCode() *Code {
	return &Code{}
}

// Handle scores the analysis code referenced by the context.
func (c *Code) Handle(ctx context.Context, req *protocol.Message, vc *validation.Context) (*protocol.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if vc.CodePath == "" {
		return protocol.NewError(req, "no code file supplied"), nil
	}

	raw, err := os.ReadFile(vc.CodePath)
	if err != nil {
		return protocol.NewError(req, fmt.Sprintf("code unreadable: %v", err)), nil
	}
	lines := strings.Split(string(raw), "\n")

	wellFormed := 0.0
	if len(strings.TrimSpace(string(raw))) > 0 && balancedBrackets(string(raw)) {
		wellFormed = 100.0
	}
	style := styleScore(lines)
	score := (wellFormed + style) / 2

	return protocol.NewResponse(req, map[string]any{
		"score":           score,
		"validation_type": "code_quality",
		"checks_performed": []any{
			"well_formedness_check", "structure_check", "error_handling_check", "documentation_check",
		},
		"details": map[string]any{
			"well_formed": wellFormed,
			"style":       style,
			"lines":       float64(len(lines)),
		},
	}), nil
}

// balancedBrackets is the cheap well-formedness proxy: every bracket class
// closes as often as it opens.
func balancedBrackets(src string) bool {
	pairs := [][2]rune{{'(', ')'}, {'[', ']'}, {'{', '}'}}
	for _, p := range pairs {
		if strings.Count(src, string(p[0])) != strings.Count(src, string(p[1])) {
			return false
		}
	}
	return true
}

// styleScore: structure 40, error handling 30, documentation 30.
func styleScore(lines []string) float64 {
	var (
		total     int
		comments  int
		functions int
		handling  int
	)
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		total++
		if strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "//") ||
			strings.HasPrefix(trimmed, "\"\"\"") || strings.HasPrefix(trimmed, "'''") {
			comments++
		}
		if strings.HasPrefix(trimmed, "def ") || strings.HasPrefix(trimmed, "func ") ||
			strings.HasPrefix(trimmed, "function ") || strings.HasPrefix(trimmed, "class ") {
			functions++
		}
		if strings.Contains(trimmed, "try") || strings.Contains(trimmed, "except") ||
			strings.Contains(trimmed, "if err") || strings.Contains(trimmed, "catch") ||
			strings.Contains(trimmed, "raise ") {
			handling++
		}
	}
	if total == 0 {
		return 0
	}

	structure := 20.0
	if functions > 0 {
		structure = 40
	}

	errorHandling := 0.0
	if handling > 0 {
		errorHandling = 30
	}

	docRatio := float64(comments) / float64(total)
	documentation := 30 * math.Min(1, docRatio/0.1) // 10% comment lines earns full credit

	return structure + errorHandling + documentation
}
