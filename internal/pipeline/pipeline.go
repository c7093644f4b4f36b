// Package pipeline runs one idea through market-data collection, the
// analysis strategy ladder and the comparison calculator.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/joelkehle/ideaforge/internal/analysis"
	"github.com/joelkehle/ideaforge/internal/llm"
)

type Strategy string

const (
	StrategyPrimaryFull    Strategy = "primary-full"
	StrategyPrimaryReduced Strategy = "primary-reduced"
	StrategyMock           Strategy = "mock"
)

// Ladder is the order strategies are tried in.
var Ladder = []Strategy{StrategyPrimaryFull, StrategyPrimaryReduced, StrategyMock}

// PrimaryOrder is the provider preference for analysis.
var PrimaryOrder = []analysis.Source{analysis.SourceGemini, analysis.SourceOpenAI, analysis.SourceAnthropic, analysis.SourceGateway}

type StrategyError struct {
	Strategy Strategy
	Err      error
}

func (e *StrategyError) Error() string { return fmt.Sprintf("%s: %v", e.Strategy, e.Err) }
func (e *StrategyError) Unwrap() error { return e.Err }

// Attempt records how one strategy went.
type Attempt struct {
	Strategy  Strategy        `json:"strategy"`
	Provider  analysis.Source `json:"provider,omitempty"`
	OK        bool            `json:"ok"`
	Class     string          `json:"errorClass,omitempty"`
	Error     string          `json:"error,omitempty"`
	ElapsedMS int64           `json:"elapsedMs"`
}

type Result struct {
	Submission analysis.Submission
	Signals    analysis.Signals
	Snapshot   analysis.MarketSnapshot
	Analysis   analysis.Analysis
	Comparison analysis.ComparisonMetrics
	Attempts   []Attempt
}

// SnapshotBuilder gathers market data for a submission. It never fails;
// missing fields are left empty.
type SnapshotBuilder interface {
	Build(ctx context.Context, sub analysis.Submission) analysis.MarketSnapshot
}

type ProgressFn func(step, message string)

type Analyzer struct {
	snapshots SnapshotBuilder
	caller    llm.Caller
	logger    *zap.Logger
	progress  ProgressFn
}

// NewAnalyzer wires an analyzer. A nil caller sends every request to the
// offline engine.
func NewAnalyzer(snapshots SnapshotBuilder, caller llm.Caller, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{snapshots: snapshots, caller: caller, logger: logger}
}

// WithProgress returns a copy that reports each step to fn.
func (a *Analyzer) WithProgress(fn ProgressFn) *Analyzer {
	cp := *a
	cp.progress = fn
	return &cp
}

// PrimaryCaller picks the preferred configured provider, or nil.
func PrimaryCaller(r *llm.Registry) llm.Caller {
	p, ok := r.First(PrimaryOrder...)
	if !ok {
		return nil
	}
	return p
}

var tracer = otel.Tracer("github.com/joelkehle/ideaforge/internal/pipeline")

// Analyze validates the submission and always returns a complete analysis
// for a valid one. Only validation errors are returned.
func (a *Analyzer) Analyze(ctx context.Context, sub analysis.Submission) (Result, error) {
	sub = sub.Normalize()
	if err := sub.Validate(); err != nil {
		return Result{Submission: sub}, err
	}
	ctx, span := tracer.Start(ctx, "pipeline.analyze")
	defer span.End()
	span.SetAttributes(attribute.String("idea.industry", sub.Industry), attribute.String("idea.stage", string(sub.Stage)))

	res := Result{Submission: sub}
	a.emit("signals", "Extracting solution signals...")
	res.Signals = analysis.ExtractSignals(sub.Solution, sub.Problem, sub.Industry)

	a.emit("market_data", "Collecting market data...")
	if a.snapshots != nil {
		res.Snapshot = a.snapshots.Build(ctx, sub)
	}

	for i := 0; i < len(Ladder); i++ {
		strategy := Ladder[i]
		a.emit(string(strategy), fmt.Sprintf("Running %s analysis...", strategy))
		start := time.Now()
		out, err := a.run(ctx, strategy, res)
		att := Attempt{Strategy: strategy, ElapsedMS: time.Since(start).Milliseconds()}
		if strategy != StrategyMock && a.caller != nil {
			att.Provider = a.caller.Name()
		}
		if err == nil {
			att.OK = true
			res.Attempts = append(res.Attempts, att)
			res.Analysis = out
			a.logger.Info("analyze strategy_ok", zap.String("strategy", string(strategy)), zap.String("source", string(out.Source)), zap.Int64("elapsed_ms", att.ElapsedMS))
			break
		}
		class := llm.Classify(err)
		att.Class = class.String()
		att.Error = err.Error()
		res.Attempts = append(res.Attempts, att)
		a.logger.Warn("analyze strategy_failed", zap.String("strategy", string(strategy)), zap.String("class", att.Class), zap.Error(err))
		if class == llm.ClassAuth {
			// Auth failures go straight to mock.
			i = len(Ladder) - 2
		}
	}

	res.Comparison = analysis.Compare(sub, res.Snapshot, res.Analysis.ScoreVector.Partial())
	span.SetAttributes(
		attribute.String("analysis.source", string(res.Analysis.Source)),
		attribute.Int("analysis.overall", res.Analysis.OverallScore),
		attribute.Int("comparison.overall", res.Comparison.OverallComparisonScore),
	)
	return res, nil
}

func (a *Analyzer) run(ctx context.Context, strategy Strategy, res Result) (analysis.Analysis, error) {
	ctx, span := tracer.Start(ctx, "pipeline.strategy")
	defer span.End()
	span.SetAttributes(attribute.String("strategy", string(strategy)))

	var (
		out analysis.Analysis
		err error
	)
	switch strategy {
	case StrategyMock:
		out = analysis.MockAnalysis(res.Submission, res.Snapshot)
	case StrategyPrimaryFull:
		out, err = a.generate(ctx, fullPrompt(res.Submission, res.Signals, res.Snapshot), res.Snapshot)
	case StrategyPrimaryReduced:
		out, err = a.generate(ctx, reducedPrompt(res.Submission), res.Snapshot)
	default:
		err = fmt.Errorf("unknown strategy")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return out, &StrategyError{Strategy: strategy, Err: err}
	}
	return out, nil
}

// generate asks the provider for one report. Any failure, content or
// transport, is returned so the ladder moves to the next strategy.
func (a *Analyzer) generate(ctx context.Context, prompt string, snap analysis.MarketSnapshot) (analysis.Analysis, error) {
	if a.caller == nil {
		return analysis.Analysis{}, llm.ErrNotConfigured
	}
	raw, err := a.caller.GenerateJSON(ctx, systemPrompt, prompt)
	if err != nil {
		return analysis.Analysis{}, err
	}
	out, err := decodeAnalysis(raw, snap)
	if err != nil {
		return analysis.Analysis{}, err
	}
	out.Source = a.caller.Name()
	return out, nil
}

// decodeAnalysis parses a model reply, requires all six score axes, clamps
// the scores and attaches the snapshot echo before checking the schema.
func decodeAnalysis(raw string, snap analysis.MarketSnapshot) (analysis.Analysis, error) {
	raw = strings.TrimSpace(llm.StripCodeFences(raw))
	if raw == "" {
		return analysis.Analysis{}, errors.New("empty response")
	}
	out, scores, err := analysis.DecodeAnalysis([]byte(raw))
	if err != nil {
		return analysis.Analysis{}, fmt.Errorf("json parse: %w", err)
	}
	if missing := scores.Missing(); len(missing) > 0 {
		return analysis.Analysis{}, fmt.Errorf("schema: missing %s", strings.Join(missing, ", "))
	}
	out.ScoreVector = out.ScoreVector.Clamp()
	for i := range out.MonetizationStrategies {
		m := &out.MonetizationStrategies[i]
		m.Fit = max(0, min(100, m.Fit))
	}
	out.RealWorldData = analysis.EchoSnapshot(snap)
	if err := analysis.ValidateAnalysis(out); err != nil {
		return analysis.Analysis{}, fmt.Errorf("schema: %w", err)
	}
	return out, nil
}

func (a *Analyzer) emit(step, msg string) {
	if a.progress != nil {
		a.progress(step, msg)
	}
}
