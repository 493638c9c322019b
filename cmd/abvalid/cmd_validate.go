package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"abvalid/internal/agent"
	"abvalid/internal/config"
	"abvalid/internal/evaluators"
	"abvalid/internal/executor"
	"abvalid/internal/orchestrator"
	"abvalid/internal/store"
	"abvalid/internal/validation"
	"abvalid/internal/workflow"
)

var (
	contextPath string
	useStatic   bool
	strict      bool

	hypothesis  string
	metrics     []string
	datasetPath string
	codePath    string
	reportPath  string
	effectSize  float64
	alpha       float64
	power       float64
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Run a validation over an experiment submission",
	Long: `Runs the full validation pipeline: plan the evaluator set, delegate
requests, execute evaluators concurrently, and synthesize the weighted
final score. The experiment context comes from --context (YAML) or from
the individual flags.

Example:
  abvalid validate --context experiment.yaml
  abvalid validate --dataset results.csv --hypothesis "new flow lifts conversion" \
      --metrics conversion_rate --effect-size 0.05`,
	RunE: runValidate,
}

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List archived validation runs",
	RunE:  runHistory,
}

func init() {
	validateCmd.Flags().StringVar(&contextPath, "context", "", "experiment context file (YAML)")
	validateCmd.Flags().BoolVar(&useStatic, "static", false, "use fixed-score evaluators (protocol dry run)")
	validateCmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero on a BAD decision")
	validateCmd.Flags().StringVar(&hypothesis, "hypothesis", "", "experiment hypothesis")
	validateCmd.Flags().StringSliceVar(&metrics, "metrics", nil, "success metrics")
	validateCmd.Flags().StringVar(&datasetPath, "dataset", "", "dataset file (CSV)")
	validateCmd.Flags().StringVar(&codePath, "code", "", "analysis code file")
	validateCmd.Flags().StringVar(&reportPath, "report", "", "analysis report file")
	validateCmd.Flags().Float64Var(&effectSize, "effect-size", 0, "expected effect size")
	validateCmd.Flags().Float64Var(&alpha, "alpha", 0, "significance level (default 0.05)")
	validateCmd.Flags().Float64Var(&power, "power", 0, "target statistical power (default 0.80)")

	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of runs to list")
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	vc, err := loadContext()
	if err != nil {
		return err
	}

	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	orch := orchestrator.New(registry,
		orchestrator.WithThreshold(cfg.Threshold),
		orchestrator.WithLogger(logger.Named("orchestrator")))
	exec := executor.New(buildAgents(),
		executor.WithCallTimeout(cfg.EvaluatorTimeout),
		executor.WithLogger(logger.Named("executor")))
	engine := workflow.NewEngine(orch, exec, logger.Named("workflow"))

	state, runErr := engine.Run(cmd.Context(), vc)

	if cfg.HistoryDB != "" {
		if err := archive(cfg.HistoryDB, state); err != nil {
			logger.Warn("failed to archive run", zap.Error(err))
		}
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Validation failed: %s\n", state.FailReason)
		return runErr
	}

	fmt.Println(orchestrator.Summary(state.Synthesis))
	fmt.Printf("Session: %s (%d messages logged)\n", state.SessionID, len(state.Log))

	// Exiting here would skip the logger Sync in PersistentPostRun; the exit
	// code is applied in main after the command tree unwinds.
	exitCode = decideExit(strict, state.Synthesis.Decision)
	return nil
}

// decideExit maps a completed run's decision to the process exit code.
func decideExit(strict bool, decision string) int {
	if strict && decision != validation.DecisionGood {
		return 2
	}
	return 0
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.HistoryDB == "" {
		return fmt.Errorf("run archiving is disabled (no history_db configured)")
	}

	rs, err := store.Open(cfg.HistoryDB)
	if err != nil {
		return err
	}
	defer rs.Close()

	runs, err := rs.ListRuns(historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No archived runs.")
		return nil
	}

	for _, r := range runs {
		status := fmt.Sprintf("%.1f %s", r.FinalScore, r.Decision)
		if r.Failed {
			status = "FAILED: " + r.FailReason
		}
		fmt.Printf("%s  %s  %-40.40s  %s\n",
			r.CreatedAt.Format("2006-01-02 15:04"), r.SessionID[:8], r.Hypothesis, status)
	}
	return nil
}

// loadContext builds the validation context from the --context file, with
// individual flags overriding file values.
func loadContext() (*validation.Context, error) {
	vc := &validation.Context{}
	if contextPath != "" {
		data, err := os.ReadFile(contextPath)
		if err != nil {
			return nil, fmt.Errorf("read context: %w", err)
		}
		if err := yaml.Unmarshal(data, vc); err != nil {
			return nil, fmt.Errorf("parse context: %w", err)
		}
	}
	if hypothesis != "" {
		vc.Hypothesis = hypothesis
	}
	if len(metrics) > 0 {
		vc.SuccessMetrics = metrics
	}
	if datasetPath != "" {
		vc.DatasetPath = datasetPath
	}
	if codePath != "" {
		vc.CodePath = codePath
	}
	if reportPath != "" {
		vc.ReportPath = reportPath
	}
	if effectSize != 0 {
		vc.ExpectedEffectSize = effectSize
	}
	if alpha != 0 {
		vc.SignificanceLevel = alpha
	}
	if power != 0 {
		vc.Power = power
	}
	return vc, nil
}

// buildRegistry starts from the default evaluator table and applies any
// weight overrides from the config. The registry constructor re-validates
// the sum-to-1.0 invariant.
func buildRegistry(cfg *config.Config) (*agent.Registry, error) {
	regs := orchestrator.DefaultRegistrations()
	if len(cfg.Weights) > 0 {
		known := make(map[string]bool, len(regs))
		for i, reg := range regs {
			known[reg.Name] = true
			if w, ok := cfg.Weights[reg.Name]; ok {
				regs[i].Weight = w
			}
		}
		for name := range cfg.Weights {
			if !known[name] {
				return nil, fmt.Errorf("config: weight for unknown evaluator %q", name)
			}
		}
	}
	return agent.NewRegistry(regs)
}

// buildAgents wires the evaluator implementations, keyed by agent ID.
func buildAgents() map[string]agent.Evaluator {
	if useStatic {
		agents := make(map[string]agent.Evaluator)
		for id, score := range evaluators.StaticScores() {
			agents[id] = evaluators.NewStatic(score)
		}
		return agents
	}
	return map[string]agent.Evaluator{
		"data_validator":   evaluators.NewData(),
		"code_validator":   evaluators.NewCode(),
		"report_validator": evaluators.NewReport(),
		"stats_validator":  evaluators.NewStatistical(),
	}
}

// archive persists a terminal state to the run store.
func archive(dbPath string, state *validation.State) error {
	rs, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer rs.Close()
	return rs.SaveRun(state)
}
