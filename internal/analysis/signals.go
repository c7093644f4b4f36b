package analysis

import (
	"strings"
)

type ComplexityTier string

const (
	ComplexityTierHigh     ComplexityTier = "HIGH"
	ComplexityTierMedium   ComplexityTier = "MEDIUM"
	ComplexityTierModerate ComplexityTier = "MODERATE"
)

type InnovationTier string

const (
	InnovationHigh     InnovationTier = "HIGH"
	InnovationModerate InnovationTier = "MODERATE"
)

type ScopeTier string

const (
	ScopeNiche    ScopeTier = "NICHE"
	ScopeBroad    ScopeTier = "BROAD"
	ScopeModerate ScopeTier = "MODERATE"
)

type FitTier string

const (
	FitStrong   FitTier = "STRONG"
	FitModerate FitTier = "MODERATE"
)

// Signals are the qualitative tags extracted from the free-text fields.
type Signals struct {
	Complexity ComplexityTier `json:"complexity"`
	Innovation InnovationTier `json:"innovation"`
	Scope      ScopeTier      `json:"scope"`
	Fit        FitTier        `json:"fit"`
	// Notes holds one human-readable line per tier plus an optional
	// industry note, in that order.
	Notes []string `json:"notes"`
}

// Characteristics renders the notes as a bullet list for prompts.
func (s Signals) Characteristics() string {
	lines := make([]string, len(s.Notes))
	for i, n := range s.Notes {
		lines[i] = "- " + n
	}
	return strings.Join(lines, "\n")
}

type signalText struct {
	solution string
	problem  string
	industry string
}

type rule[T any] struct {
	name  string
	match func(signalText) bool
	tag   T
	note  string
}

// firstMatch walks rules in order; the first matching rule wins.
func firstMatch[T any](rules []rule[T], in signalText, def T, defNote string) (T, string) {
	for _, r := range rules {
		if r.match(in) {
			return r.tag, r.note
		}
	}
	return def, defNote
}

func solutionHasAny(words ...string) func(signalText) bool {
	return func(in signalText) bool { return containsAny(in.solution, words...) }
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

var complexityRules = []rule[ComplexityTier]{
	{name: "ai-ml", match: solutionHasAny("ai", "machine learning", "ml"), tag: ComplexityTierHigh,
		note: "HIGH complexity: Requires AI/ML expertise and infrastructure"},
	{name: "blockchain", match: solutionHasAny("blockchain", "crypto", "web3"), tag: ComplexityTierHigh,
		note: "HIGH complexity: Requires blockchain technology and expertise"},
	{name: "software", match: solutionHasAny("app", "mobile", "software"), tag: ComplexityTierMedium,
		note: "MEDIUM complexity: Software development required"},
	{name: "platform", match: solutionHasAny("platform", "saas", "marketplace"), tag: ComplexityTierMedium,
		note: "MEDIUM complexity: Platform/marketplace requires network effects"},
}

var innovationKeywords = []string{"revolutionary", "breakthrough", "first", "only", "new", "unique", "novel", "innovative"}

var innovationRules = []rule[InnovationTier]{
	{name: "keyword", match: func(in signalText) bool {
		return containsAny(in.solution, innovationKeywords...) || containsAny(in.problem, innovationKeywords...)
	}, tag: InnovationHigh, note: "HIGH innovation potential: Novel approach or first-mover advantage possible"},
	{name: "not-derivative", match: func(in signalText) bool {
		return !strings.Contains(in.solution, "similar") && !strings.Contains(in.solution, "like")
	}, tag: InnovationHigh, note: "HIGH innovation potential: Novel approach or first-mover advantage possible"},
}

var scopeRules = []rule[ScopeTier]{
	{name: "niche", match: solutionHasAny("niche", "specific", "targeted"), tag: ScopeNiche,
		note: "NICHE market scope: Targets specific segment"},
	{name: "broad", match: solutionHasAny("global", "everyone", "all"), tag: ScopeBroad,
		note: "BROAD market scope: Targets large addressable market"},
}

var fitRules = []rule[FitTier]{
	{name: "first-word-overlap", match: func(in signalText) bool {
		p := firstWord(in.problem)
		s := firstWord(in.solution)
		return (p != "" && strings.Contains(in.solution, p)) || (s != "" && strings.Contains(in.problem, s))
	}, tag: FitStrong, note: "STRONG problem-solution fit: Solution directly addresses stated problem"},
}

var industryRules = []rule[string]{
	{name: "healthcare-remote", match: func(in signalText) bool {
		return in.industry == "healthcare" && containsAny(in.solution, "tele", "remote")
	}, note: "Healthcare remote solutions: High demand post-COVID, but regulatory considerations"},
	{name: "fintech", match: func(in signalText) bool {
		return in.industry == "finance" && containsAny(in.solution, "payment", "fintech")
	}, note: "Fintech solution: Highly competitive but large market opportunity"},
	{name: "edtech", match: func(in signalText) bool {
		return in.industry == "education" && containsAny(in.solution, "online", "learn")
	}, note: "EdTech solution: Growing market but requires user engagement"},
}

func firstWord(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, ' '); i >= 0 {
		return s[:i]
	}
	return s
}

// ExtractSignals classifies an idea by case-insensitive substring matching.
// Within each tier the first matching rule wins.
func ExtractSignals(solution, problem, industry string) Signals {
	in := signalText{
		solution: strings.ToLower(solution),
		problem:  strings.ToLower(problem),
		industry: strings.ToLower(strings.TrimSpace(industry)),
	}
	var s Signals
	var note string

	s.Complexity, note = firstMatch(complexityRules, in, ComplexityTierModerate, "MODERATE complexity: Standard development approach")
	s.Notes = append(s.Notes, note)
	s.Innovation, note = firstMatch(innovationRules, in, InnovationModerate, "MODERATE innovation: Incremental improvement on existing solutions")
	s.Notes = append(s.Notes, note)
	s.Scope, note = firstMatch(scopeRules, in, ScopeModerate, "MODERATE market scope: Standard market approach")
	s.Notes = append(s.Notes, note)
	s.Fit, note = firstMatch(fitRules, in, FitModerate, "MODERATE problem-solution fit: Solution addresses problem but connection may need validation")
	s.Notes = append(s.Notes, note)
	if _, note = firstMatch(industryRules, in, "", ""); note != "" {
		s.Notes = append(s.Notes, note)
	}
	return s
}
