package evaluators

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"abvalid/internal/orchestrator"
	"abvalid/internal/protocol"
	"abvalid/internal/validation"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// goodCSV produces a clean two-column numeric dataset with the given row count.
func goodCSV(rows int) string {
	var b strings.Builder
	b.WriteString("group,conversion\n")
	for i := 0; i < rows; i++ {
		fmt.Fprintf(&b, "%d,%d\n", i%2, i%7)
	}
	return b.String()
}

func testRequest(receiver, task string) *protocol.Message {
	return protocol.NewRequest("sess", "orchestrator", receiver, task, nil)
}

func scoreOf(t *testing.T, msg *protocol.Message) float64 {
	t.Helper()
	require.Equal(t, protocol.KindResponse, msg.Kind, "expected a response, got: %s", msg.ErrorReason())
	score, err := orchestrator.ScoreFromResult(msg.Result)
	require.NoError(t, err)
	return score
}

func TestStatic(t *testing.T) {
	s := NewStatic(85)
	req := testRequest("data_validator", "validate_data_quality")

	resp, err := s.Handle(context.Background(), req, nil)
	require.NoError(t, err)
	assert.Equal(t, 85.0, scoreOf(t, resp))
	assert.True(t, resp.Answers(req))
}

func TestStatic_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewStatic(85).Handle(ctx, testRequest("data_validator", "t"), nil)
	assert.Error(t, err)
}

func TestStaticScores_CoversAllAgents(t *testing.T) {
	scores := StaticScores()
	for _, id := range []string{"data_validator", "code_validator", "report_validator", "stats_validator"} {
		assert.Contains(t, scores, id)
	}
}

func TestRequiredSampleSize(t *testing.T) {
	// Classic case: d=0.5, alpha=0.05, power=0.80 needs ~63 per group.
	n := RequiredSampleSize(0.5, 0.05, 0.80)
	assert.InDelta(t, 62.8, n, 0.5)

	// Smaller effects need more samples.
	assert.Greater(t, RequiredSampleSize(0.2, 0.05, 0.80), n)

	// Degenerate parameters yield zero, not NaN.
	assert.Zero(t, RequiredSampleSize(0, 0.05, 0.80))
	assert.Zero(t, RequiredSampleSize(0.5, 0, 0.80))
	assert.Zero(t, RequiredSampleSize(0.5, 0.05, 1.0))
}

func TestAchievedPower(t *testing.T) {
	// At the required sample size the achieved power hits the target.
	n := RequiredSampleSize(0.5, 0.05, 0.80)
	assert.InDelta(t, 0.80, AchievedPower(0.5, 0.05, n), 0.01)

	// Monotonic in sample size.
	assert.Less(t, AchievedPower(0.5, 0.05, 20), AchievedPower(0.5, 0.05, 200))

	// Degenerate parameters yield zero power.
	assert.Zero(t, AchievedPower(0, 0.05, 100))
	assert.Zero(t, AchievedPower(0.5, 0.05, 1))
}

func TestData_CleanDataset(t *testing.T) {
	vc := &validation.Context{
		Hypothesis:         "h",
		DatasetPath:        writeFile(t, "results.csv", goodCSV(100)),
		ExpectedEffectSize: 1.0,
		SignificanceLevel:  0.05,
		Power:              0.80,
	}
	resp, err := NewData().Handle(context.Background(),
		testRequest("data_validator", "validate_data_quality"), vc)
	require.NoError(t, err)

	// 100 clean numeric rows with a large expected effect max out the rubric.
	assert.Equal(t, 100.0, scoreOf(t, resp))
}

func TestData_MissingValuesLowerScore(t *testing.T) {
	vc := func(csv string) *validation.Context {
		return &validation.Context{
			DatasetPath:        writeFile(t, "results.csv", csv),
			ExpectedEffectSize: 1.0,
			SignificanceLevel:  0.05,
			Power:              0.80,
		}
	}

	clean, err := NewData().Handle(context.Background(),
		testRequest("data_validator", "validate_data_quality"), vc(goodCSV(100)))
	require.NoError(t, err)

	var b strings.Builder
	b.WriteString("group,conversion\n")
	for i := 0; i < 100; i++ {
		if i%5 == 0 {
			fmt.Fprintf(&b, "%d,\n", i%2) // 10% of cells missing
		} else {
			fmt.Fprintf(&b, "%d,%d\n", i%2, i%7)
		}
	}
	holes, err := NewData().Handle(context.Background(),
		testRequest("data_validator", "validate_data_quality"), vc(b.String()))
	require.NoError(t, err)

	assert.Less(t, scoreOf(t, holes), scoreOf(t, clean))
}

func TestData_SmallDatasetLowerScore(t *testing.T) {
	vc := &validation.Context{
		DatasetPath:        writeFile(t, "results.csv", goodCSV(10)),
		ExpectedEffectSize: 0.2,
		SignificanceLevel:  0.05,
		Power:              0.80,
	}
	resp, err := NewData().Handle(context.Background(),
		testRequest("data_validator", "validate_data_quality"), vc)
	require.NoError(t, err)
	assert.Less(t, scoreOf(t, resp), 70.0)
}

func TestData_UnreadableDataset(t *testing.T) {
	vc := &validation.Context{DatasetPath: "/nonexistent/results.csv"}
	resp, err := NewData().Handle(context.Background(),
		testRequest("data_validator", "validate_data_quality"), vc)
	require.NoError(t, err)
	assert.Equal(t, protocol.KindError, resp.Kind)
	assert.Contains(t, resp.ErrorReason(), "unreadable")
}

func TestData_EmptyDataset(t *testing.T) {
	vc := &validation.Context{DatasetPath: writeFile(t, "empty.csv", "")}
	resp, err := NewData().Handle(context.Background(),
		testRequest("data_validator", "validate_data_quality"), vc)
	require.NoError(t, err)
	assert.Equal(t, protocol.KindError, resp.Kind)
	assert.Contains(t, resp.ErrorReason(), "empty")
}

func TestStatistical_SoundDesign(t *testing.T) {
	vc := &validation.Context{
		Hypothesis:         "new flow lifts conversion",
		SuccessMetrics:     []string{"conversion_rate"},
		DatasetPath:        writeFile(t, "results.csv", goodCSV(200)),
		ExpectedEffectSize: 0.5,
		SignificanceLevel:  0.05,
		Power:              0.80,
	}
	resp, err := NewStatistical().Handle(context.Background(),
		testRequest("stats_validator", "validate_statistical_rigor"), vc)
	require.NoError(t, err)

	// 100 per group exceeds the ~63 required for d=0.5; everything passes.
	assert.Equal(t, 100.0, scoreOf(t, resp))
}

func TestStatistical_UnderpoweredDesign(t *testing.T) {
	vc := &validation.Context{
		Hypothesis:         "new flow lifts conversion",
		SuccessMetrics:     []string{"conversion_rate"},
		DatasetPath:        writeFile(t, "results.csv", goodCSV(20)),
		ExpectedEffectSize: 0.2,
		SignificanceLevel:  0.05,
		Power:              0.80,
	}
	resp, err := NewStatistical().Handle(context.Background(),
		testRequest("stats_validator", "validate_statistical_rigor"), vc)
	require.NoError(t, err)
	assert.Less(t, scoreOf(t, resp), 80.0)
}

func TestStatistical_LaxAlphaLosesPoints(t *testing.T) {
	build := func(alpha float64) *validation.Context {
		return &validation.Context{
			Hypothesis:         "h",
			SuccessMetrics:     []string{"m"},
			DatasetPath:        writeFile(t, "results.csv", goodCSV(200)),
			ExpectedEffectSize: 0.5,
			SignificanceLevel:  alpha,
			Power:              0.80,
		}
	}
	req := testRequest("stats_validator", "validate_statistical_rigor")

	strictResp, err := NewStatistical().Handle(context.Background(), req, build(0.05))
	require.NoError(t, err)
	laxResp, err := NewStatistical().Handle(context.Background(), req, build(0.15))
	require.NoError(t, err)

	assert.Greater(t, scoreOf(t, strictResp), scoreOf(t, laxResp))
}

func TestCode_WellDocumentedSource(t *testing.T) {
	src := `# Analysis of the A/B test results.
# Loads the dataset, runs a two-sample t-test, and prints the outcome.
import pandas as pd
from scipy import stats

def load(path):
    # Missing files are a hard error.
    try:
        return pd.read_csv(path)
    except FileNotFoundError:
        raise SystemExit("dataset not found")

def analyze(df):
    # Two-sided Welch t-test across groups.
    a = df[df.group == 0].conversion
    b = df[df.group == 1].conversion
    return stats.ttest_ind(a, b, equal_var=False)

print(analyze(load("results.csv")))
`
	vc := &validation.Context{CodePath: writeFile(t, "analysis.py", src)}
	resp, err := NewCode().Handle(context.Background(),
		testRequest("code_validator", "validate_code_quality"), vc)
	require.NoError(t, err)
	assert.Equal(t, 100.0, scoreOf(t, resp))
}

func TestCode_UnbalancedBrackets(t *testing.T) {
	vc := &validation.Context{CodePath: writeFile(t, "analysis.py", "def f(:\n    pass\n")}
	resp, err := NewCode().Handle(context.Background(),
		testRequest("code_validator", "validate_code_quality"), vc)
	require.NoError(t, err)
	assert.Less(t, scoreOf(t, resp), 60.0)
}

func TestCode_MissingFile(t *testing.T) {
	cases := []struct {
		name string
		vc   *validation.Context
	}{
		{name: "no_path", vc: &validation.Context{}},
		{name: "unreadable", vc: &validation.Context{CodePath: "/nonexistent/analysis.py"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := NewCode().Handle(context.Background(),
				testRequest("code_validator", "validate_code_quality"), tc.vc)
			require.NoError(t, err)
			assert.Equal(t, protocol.KindError, resp.Kind)
		})
	}
}

func TestReport_CompleteReport(t *testing.T) {
	report := `# A/B Test Report

## Method

We split 10000 users evenly and measured conversion over 14 days.

## Results

The treatment group converted at 5.4% against 5.0% for control, a relative
lift of 8% (p = 0.03, 95% CI [0.1%, 0.7%]).

## Conclusion

The new checkout flow outperforms the old one. We recommend rolling it out
to all users as the next step, and we should monitor conversion for a week.

Padding so the report clears the length gate: the experiment ran without
interference, guardrail metrics held steady, and no seasonality was observed
during the measurement window.
`
	vc := &validation.Context{ReportPath: writeFile(t, "report.md", report)}
	resp, err := NewReport().Handle(context.Background(),
		testRequest("report_validator", "validate_report_quality"), vc)
	require.NoError(t, err)
	assert.Equal(t, 100.0, scoreOf(t, resp))
}

func TestReport_ThinReportScoresLow(t *testing.T) {
	vc := &validation.Context{ReportPath: writeFile(t, "report.md", "it went fine")}
	resp, err := NewReport().Handle(context.Background(),
		testRequest("report_validator", "validate_report_quality"), vc)
	require.NoError(t, err)
	assert.Less(t, scoreOf(t, resp), 30.0)
}

func TestReport_MissingFile(t *testing.T) {
	cases := []struct {
		name string
		vc   *validation.Context
	}{
		{name: "no_path", vc: &validation.Context{}},
		{name: "unreadable", vc: &validation.Context{ReportPath: "/nonexistent/report.md"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := NewReport().Handle(context.Background(),
				testRequest("report_validator", "validate_report_quality"), tc.vc)
			require.NoError(t, err)
			assert.Equal(t, protocol.KindError, resp.Kind)
		})
	}
}
