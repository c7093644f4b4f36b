package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/joelkehle/ideaforge/internal/analysis"
	"github.com/joelkehle/ideaforge/internal/marketdata"
	"github.com/joelkehle/ideaforge/internal/pipeline"
)

var (
	ideaFile     string
	idea         analysis.Submission
	ideaStage    string
	outFormat    string
	offline      bool
	noMarket     bool
	saveResult   bool
	analyzeLimit time.Duration
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze one startup idea and print the report",
	Long: `Analyze runs the full validation pipeline for one idea without starting
the server. The idea comes from flags or from a JSON file with the same
fields as POST /analyze.

Example:
  ideaforge analyze --problem "Families waste food" --solution "AI meal planner" --industry "Food & Beverage"
  ideaforge analyze --file idea.json --format markdown
  ideaforge analyze --file idea.json --offline --no-market`,
}

func init() {
	// Assigned here rather than in the literal: readIdea reads analyzeCmd,
	// which would otherwise form an initialization cycle.
	analyzeCmd.RunE = runAnalyze
	f := analyzeCmd.Flags()
	f.StringVar(&ideaFile, "file", "", "JSON file with the idea (use - for stdin)")
	f.StringVar(&idea.StartupName, "name", "", "startup name")
	f.StringVar(&idea.Description, "description", "", "one-line description")
	f.StringVar(&idea.Problem, "problem", "", "problem being solved")
	f.StringVar(&idea.Solution, "solution", "", "proposed solution")
	f.StringVar(&idea.TargetMarket, "target", "", "target market")
	f.StringVar(&idea.Industry, "industry", "", "industry: "+strings.Join(analysis.Industries, ", "))
	f.StringVar(&ideaStage, "stage", "idea", "stage: idea, mvp, launched, growing")
	f.StringVar(&outFormat, "format", "json", "output format: json or markdown")
	f.BoolVar(&offline, "offline", false, "skip language models and use the offline engine")
	f.BoolVar(&noMarket, "no-market", false, "skip public market data fetches")
	f.BoolVar(&saveResult, "save", false, "save the result to the configured history store")
	f.DurationVar(&analyzeLimit, "timeout", 3*time.Minute, "overall timeout")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	sub, err := readIdea(cmd.InOrStdin())
	if err != nil {
		return err
	}
	if outFormat != "json" && outFormat != "markdown" {
		return fmt.Errorf("unknown --format %q (supported: json, markdown)", outFormat)
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), analyzeLimit)
	defer cancel()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	var snapshots pipeline.SnapshotBuilder
	if !noMarket {
		mdCfg := cfg.MarketDataConfig()
		mdCfg.Logger = a.logger
		snapshots = marketdata.NewBuilder(mdCfg)
	}
	caller := pipeline.PrimaryCaller(a.registry)
	if offline {
		caller = nil
	}
	analyzer := pipeline.NewAnalyzer(snapshots, caller, a.logger).WithProgress(progressPrinter(cmd.ErrOrStderr()))

	res, err := analyzer.Analyze(ctx, sub)
	if err != nil {
		var ve *analysis.ValidationError
		if errors.As(err, &ve) {
			return fmt.Errorf("%w: %s", err, ve.Hint)
		}
		return err
	}

	id := ""
	if saveResult {
		entry, err := a.store.Save(ctx, res.Submission, res.Analysis, &res.Snapshot)
		if err != nil {
			return fmt.Errorf("save result: %w", err)
		}
		id = entry.ID
		a.logger.Info("analyze saved", zap.String("id", id))
	}
	return writeResult(cmd.OutOrStdout(), outFormat, id, res)
}

// readIdea merges the JSON file, if any, with explicitly set flags. Flags
// win over file values.
func readIdea(stdin io.Reader) (analysis.Submission, error) {
	var sub analysis.Submission
	if ideaFile != "" {
		var (
			raw []byte
			err error
		)
		if ideaFile == "-" {
			raw, err = io.ReadAll(stdin)
		} else {
			raw, err = os.ReadFile(ideaFile)
		}
		if err != nil {
			return sub, fmt.Errorf("read idea: %w", err)
		}
		if err := json.Unmarshal(raw, &sub); err != nil {
			return sub, fmt.Errorf("parse idea: %w", err)
		}
	}
	set := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	set(&sub.StartupName, idea.StartupName)
	set(&sub.Description, idea.Description)
	set(&sub.Problem, idea.Problem)
	set(&sub.Solution, idea.Solution)
	set(&sub.TargetMarket, idea.TargetMarket)
	set(&sub.Industry, idea.Industry)
	if sub.Stage == "" || analyzeCmd.Flags().Changed("stage") {
		sub.Stage = analysis.Stage(ideaStage)
	}
	return sub, nil
}

func progressPrinter(w io.Writer) pipeline.ProgressFn {
	return func(step, message string) {
		fmt.Fprintf(w, "[%s] %s\n", step, message)
	}
}

type analyzeOutput struct {
	ID         string                     `json:"id,omitempty"`
	Analysis   analysis.Analysis          `json:"analysis"`
	Comparison analysis.ComparisonMetrics `json:"comparison"`
	Attempts   []pipeline.Attempt         `json:"attempts"`
}

func writeResult(w io.Writer, format, id string, res pipeline.Result) error {
	if format == "markdown" {
		report := analysis.Report{
			ID:         id,
			CreatedAt:  time.Now().UTC(),
			Submission: res.Submission,
			Analysis:   res.Analysis,
			Comparison: res.Comparison,
		}
		_, err := io.WriteString(w, analysis.BuildMarkdown(report))
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(analyzeOutput{ID: id, Analysis: res.Analysis, Comparison: res.Comparison, Attempts: res.Attempts})
}
