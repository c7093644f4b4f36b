package analysis

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Stage string

const (
	StageIdea     Stage = "idea"
	StageMVP      Stage = "mvp"
	StageLaunched Stage = "launched"
	StageGrowing  Stage = "growing"
)

func (s Stage) Valid() bool {
	switch s {
	case StageIdea, StageMVP, StageLaunched, StageGrowing:
		return true
	default:
		return false
	}
}

type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

func (c Complexity) Valid() bool {
	return c == ComplexityLow || c == ComplexityMedium || c == ComplexityHigh
}

// Source records which strategy produced an Analysis. It is metadata and
// carries no weight in schema validation.
type Source string

const (
	SourceGemini    Source = "gemini"
	SourceOpenAI    Source = "openai"
	SourceAnthropic Source = "anthropic"
	SourceGateway   Source = "gateway"
	SourceMock      Source = "mock"
)

// Industries offered by the submission form. Anything else is accepted and
// falls through to the default tables.
var Industries = []string{
	"Technology",
	"Healthcare",
	"Finance",
	"E-commerce",
	"Education",
	"Entertainment",
	"Food & Beverage",
	"Real Estate",
	"Transportation",
	"Other",
}

// Submission is the idea as entered on the form.
type Submission struct {
	StartupName  string `json:"startupName"`
	Description  string `json:"description"`
	Problem      string `json:"problem"`
	Solution     string `json:"solution"`
	TargetMarket string `json:"targetMarket"`
	Industry     string `json:"industry"`
	Stage        Stage  `json:"stage"`
}

type ValidationError struct {
	Field string
	Hint  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid submission: %s", e.Field)
}

// Normalize trims every field and lower-cases the stage. An empty stage is
// treated as idea.
func (s Submission) Normalize() Submission {
	s.StartupName = strings.TrimSpace(s.StartupName)
	s.Description = strings.TrimSpace(s.Description)
	s.Problem = strings.TrimSpace(s.Problem)
	s.Solution = strings.TrimSpace(s.Solution)
	s.TargetMarket = strings.TrimSpace(s.TargetMarket)
	s.Industry = strings.TrimSpace(s.Industry)
	s.Stage = Stage(strings.ToLower(strings.TrimSpace(string(s.Stage))))
	if s.Stage == "" {
		s.Stage = StageIdea
	}
	return s
}

func (s Submission) Validate() error {
	if s.Problem == "" {
		return &ValidationError{Field: "problem", Hint: "Describe the problem your startup solves"}
	}
	if s.Solution == "" {
		return &ValidationError{Field: "solution", Hint: "Describe your proposed solution"}
	}
	if s.Industry == "" {
		return &ValidationError{Field: "industry", Hint: "Pick an industry: " + strings.Join(Industries, ", ")}
	}
	if !s.Stage.Valid() {
		return &ValidationError{Field: "stage", Hint: "Stage must be one of idea, mvp, launched, growing"}
	}
	return nil
}

// Opt is an explicitly optional value. It encodes as the value or null.
type Opt[T any] struct {
	Value T
	Valid bool
}

func Some[T any](v T) Opt[T] { return Opt[T]{Value: v, Valid: true} }

func None[T any]() Opt[T] { return Opt[T]{} }

func (o Opt[T]) Get() (T, bool) { return o.Value, o.Valid }

func (o Opt[T]) Or(def T) T {
	if o.Valid {
		return o.Value
	}
	return def
}

func (o Opt[T]) MarshalJSON() ([]byte, error) {
	if !o.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

func (o *Opt[T]) UnmarshalJSON(b []byte) error {
	if strings.TrimSpace(string(b)) == "null" {
		*o = Opt[T]{}
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}

type Competitor struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Similarity  Opt[int] `json:"similarity"`
	Funding     string   `json:"funding,omitempty"`
	Website     string   `json:"website,omitempty"`
}

type ExistingProduct struct {
	Name     string `json:"name"`
	Platform string `json:"platform"`
	URL      string `json:"url,omitempty"`
}

type MarketValidation struct {
	SearchTrends       string            `json:"searchTrends"`
	DiscussionActivity string            `json:"discussionActivity"`
	ExistingProducts   []ExistingProduct `json:"existingProducts"`
}

type IndustryInsights struct {
	Trends        []string `json:"trends"`
	Challenges    []string `json:"challenges"`
	Opportunities []string `json:"opportunities"`
}

type FundingRound struct {
	Company string `json:"company"`
	Amount  string `json:"amount"`
	Date    string `json:"date"`
}

type FundingLandscape struct {
	AverageRaise string         `json:"averageRaise"`
	Investors    []string       `json:"investors"`
	RecentRounds []FundingRound `json:"recentRounds"`
}

type TechnicalFeasibility struct {
	Complexity        Complexity `json:"complexity"`
	RequiredResources []string   `json:"requiredResources"`
	SimilarTechStack  []string   `json:"similarTechStack"`
}

type NewsItem struct {
	Title  string `json:"title"`
	Source string `json:"source"`
	Date   string `json:"date"`
}

// MarketSnapshot is the external-data bundle gathered for one submission.
// Monetary values are USD billions; Growth is a percentage. A nil
// Competitors slice means no competitor search ran; an empty one means the
// search ran and found nothing.
type MarketSnapshot struct {
	TotalMarket       Opt[float64]              `json:"totalMarket"`
	AddressableMarket Opt[float64]              `json:"addressableMarket"`
	Growth            Opt[float64]              `json:"growth"`
	Competitors       []Competitor              `json:"competitors"`
	Validation        Opt[MarketValidation]     `json:"validation"`
	Insights          Opt[IndustryInsights]     `json:"insights"`
	Funding           Opt[FundingLandscape]     `json:"funding"`
	Technical         Opt[TechnicalFeasibility] `json:"technical"`
	News              []NewsItem                `json:"news"`
}

// ScoreVector holds the six report axes. Competition and RiskLevel read
// "higher is worse"; the other four read "higher is better".
type ScoreVector struct {
	OverallScore    int `json:"overallScore"`
	MarketPotential int `json:"marketPotential"`
	Feasibility     int `json:"feasibility"`
	Competition     int `json:"competition"`
	RiskLevel       int `json:"riskLevel"`
	InnovationIndex int `json:"innovationIndex"`
}

func (v ScoreVector) Clamp() ScoreVector {
	return ScoreVector{
		OverallScore:    clampScore(v.OverallScore),
		MarketPotential: clampScore(v.MarketPotential),
		Feasibility:     clampScore(v.Feasibility),
		Competition:     clampScore(v.Competition),
		RiskLevel:       clampScore(v.RiskLevel),
		InnovationIndex: clampScore(v.InnovationIndex),
	}
}

func (v ScoreVector) Partial() PartialScores {
	return PartialScores{
		OverallScore:    Some(v.OverallScore),
		MarketPotential: Some(v.MarketPotential),
		Feasibility:     Some(v.Feasibility),
		Competition:     Some(v.Competition),
		RiskLevel:       Some(v.RiskLevel),
		InnovationIndex: Some(v.InnovationIndex),
	}
}

// PartialScores is a score vector where any axis may be missing.
type PartialScores struct {
	OverallScore    Opt[int] `json:"overallScore"`
	MarketPotential Opt[int] `json:"marketPotential"`
	Feasibility     Opt[int] `json:"feasibility"`
	Competition     Opt[int] `json:"competition"`
	RiskLevel       Opt[int] `json:"riskLevel"`
	InnovationIndex Opt[int] `json:"innovationIndex"`
}

// UnmarshalJSON accepts fractional scores and rounds them half up.
func (p *PartialScores) UnmarshalJSON(b []byte) error {
	var w struct {
		OverallScore    Opt[float64] `json:"overallScore"`
		MarketPotential Opt[float64] `json:"marketPotential"`
		Feasibility     Opt[float64] `json:"feasibility"`
		Competition     Opt[float64] `json:"competition"`
		RiskLevel       Opt[float64] `json:"riskLevel"`
		InnovationIndex Opt[float64] `json:"innovationIndex"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*p = PartialScores{
		OverallScore:    roundOpt(w.OverallScore),
		MarketPotential: roundOpt(w.MarketPotential),
		Feasibility:     roundOpt(w.Feasibility),
		Competition:     roundOpt(w.Competition),
		RiskLevel:       roundOpt(w.RiskLevel),
		InnovationIndex: roundOpt(w.InnovationIndex),
	}
	return nil
}

func roundOpt(o Opt[float64]) Opt[int] {
	if v, ok := o.Get(); ok {
		return Some(roundHalfUp(v))
	}
	return None[int]()
}

// Missing lists the absent axes by JSON name.
func (p PartialScores) Missing() []string {
	var out []string
	for _, ax := range []struct {
		name string
		ok   bool
	}{
		{"overallScore", p.OverallScore.Valid},
		{"marketPotential", p.MarketPotential.Valid},
		{"feasibility", p.Feasibility.Valid},
		{"competition", p.Competition.Valid},
		{"riskLevel", p.RiskLevel.Valid},
		{"innovationIndex", p.InnovationIndex.Valid},
	} {
		if !ax.ok {
			out = append(out, ax.name)
		}
	}
	return out
}

// Vector fills absent axes with zero.
func (p PartialScores) Vector() ScoreVector {
	return ScoreVector{
		OverallScore:    p.OverallScore.Or(0),
		MarketPotential: p.MarketPotential.Or(0),
		Feasibility:     p.Feasibility.Or(0),
		Competition:     p.Competition.Or(0),
		RiskLevel:       p.RiskLevel.Or(0),
		InnovationIndex: p.InnovationIndex.Or(0),
	}
}

type SWOT struct {
	Strengths     []string `json:"strengths"`
	Weaknesses    []string `json:"weaknesses"`
	Opportunities []string `json:"opportunities"`
	Threats       []string `json:"threats"`
}

type Audience struct {
	Name        string `json:"name"`
	Age         string `json:"age"`
	Description string `json:"description"`
}

type Monetization struct {
	Name string `json:"name"`
	Fit  int    `json:"fit"`
}

func (m *Monetization) UnmarshalJSON(b []byte) error {
	var w struct {
		Name string  `json:"name"`
		Fit  float64 `json:"fit"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*m = Monetization{Name: w.Name, Fit: roundHalfUp(w.Fit)}
	return nil
}

type RoadmapPhase struct {
	Phase    string `json:"phase"`
	Title    string `json:"title"`
	Duration string `json:"duration"`
}

type FundingInfo struct {
	AverageFunding   string         `json:"averageFunding"`
	TypicalInvestors []string       `json:"typicalInvestors"`
	RecentRounds     []FundingRound `json:"recentRounds"`
}

// RealWorldData is the snapshot echo carried inside every report. Values are
// strings at full precision ("5200", "520.04", "13.2%").
type RealWorldData struct {
	MarketSize           string                    `json:"marketSize"`
	AddressableMarket    string                    `json:"addressableMarket"`
	MarketGrowth         string                    `json:"marketGrowth"`
	Competitors          []Competitor              `json:"competitors"`
	MarketValidation     Opt[MarketValidation]     `json:"marketValidation"`
	IndustryInsights     Opt[IndustryInsights]     `json:"industryInsights"`
	FundingInfo          FundingInfo               `json:"fundingInfo"`
	TechnicalFeasibility Opt[TechnicalFeasibility] `json:"technicalFeasibility"`
	IndustryTrends       []string                  `json:"industryTrends"`
	RecentNews           []NewsItem                `json:"recentNews"`
}

// Analysis is the validation report. The mock engine and every LLM
// provider produce this same shape.
type Analysis struct {
	ScoreVector
	SWOT                   SWOT           `json:"swot"`
	TargetAudience         []Audience     `json:"targetAudience"`
	MonetizationStrategies []Monetization `json:"monetizationStrategies"`
	PitchTips              []string       `json:"pitchTips"`
	Roadmap                []RoadmapPhase `json:"roadmap"`
	RealWorldData          RealWorldData  `json:"realWorldData"`
	Source                 Source         `json:"source,omitempty"`
}

// ComparisonMetrics cross-checks a score vector against market data.
type ComparisonMetrics struct {
	MarketAlignmentScore      int      `json:"marketAlignmentScore"`
	CompetitionFitScore       int      `json:"competitionFitScore"`
	TechnicalFeasibilityScore int      `json:"technicalFeasibilityScore"`
	MarketValidationScore     int      `json:"marketValidationScore"`
	OverallComparisonScore    int      `json:"overallComparisonScore"`
	Insights                  []string `json:"insights"`
}
