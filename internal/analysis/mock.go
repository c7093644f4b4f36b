package analysis

import (
	"fmt"
	"math"
	"strings"
)

const maxSWOTItems = 4

var baseScores = ScoreVector{
	OverallScore:    65,
	MarketPotential: 70,
	Feasibility:     75,
	Competition:     50,
	RiskLevel:       45,
	InnovationIndex: 70,
}

type scoreOverride struct {
	name  string
	match func(solution string) bool
	apply func(*ScoreVector)
}

// First match wins: a solution mentioning both AI and blockchain is scored
// as AI.
var complexityOverrides = []scoreOverride{
	{name: "ai-ml", match: func(s string) bool { return containsAny(s, "ai", "machine learning", "ml") },
		apply: func(v *ScoreVector) { v.Feasibility, v.InnovationIndex, v.RiskLevel = 55, 80, 60 }},
	{name: "blockchain", match: func(s string) bool { return containsAny(s, "blockchain", "crypto") },
		apply: func(v *ScoreVector) { v.Feasibility, v.InnovationIndex, v.RiskLevel = 45, 75, 70 }},
	{name: "app", match: func(s string) bool { return containsAny(s, "app", "mobile") },
		apply: func(v *ScoreVector) { v.Feasibility, v.InnovationIndex = 80, 65 }},
}

var stageOverrides = map[Stage]struct{ risk, overall int }{
	StageGrowing:  {25, 80},
	StageLaunched: {35, 75},
	StageMVP:      {50, 68},
	StageIdea:     {65, 60},
}

// MockScores computes the deterministic score vector used when no model
// provider is reachable.
func MockScores(sub Submission, snap MarketSnapshot) ScoreVector {
	v := baseScores
	solution := strings.ToLower(sub.Solution)

	for _, o := range complexityOverrides {
		if o.match(solution) {
			o.apply(&v)
			break
		}
	}

	st, ok := stageOverrides[sub.Stage]
	if !ok {
		st = stageOverrides[StageIdea]
	}
	v.RiskLevel, v.OverallScore = st.risk, st.overall

	if n := len(snap.Competitors); n > 0 {
		avg := averageSimilarity(snap.Competitors)
		v.Competition = roundHalfUp(math.Min(95, 40+avg*0.5+float64(n)*5))
		v.InnovationIndex = roundHalfUp(math.Max(30, 100-avg))
	}

	if tam, ok := snap.AddressableMarket.Get(); ok {
		switch {
		case tam > 100:
			v.MarketPotential = 85
		case tam > 50:
			v.MarketPotential = 75
		case tam < 10:
			v.MarketPotential = 55
		}
	}
	return v.Clamp()
}

// MockAnalysis builds a complete report from the deterministic scores and
// templated content. It never fails; missing snapshot fields fall back to
// display defaults.
func MockAnalysis(sub Submission, snap MarketSnapshot) Analysis {
	scores := MockScores(sub, snap)
	rwd := EchoSnapshot(snap)
	if len(rwd.Competitors) == 0 {
		rwd.Competitors = capCompetitors(FallbackCompetitors(sub.Solution, sub.Industry))
	}
	if !rwd.TechnicalFeasibility.Valid {
		rwd.TechnicalFeasibility = Some(TechnicalFeasibility{
			Complexity:        ComplexityMedium,
			RequiredResources: []string{"Development Team"},
			SimilarTechStack:  []string{"React", "Node.js"},
		})
	}
	if !rwd.MarketValidation.Valid {
		rwd.MarketValidation = Some(MarketValidation{
			SearchTrends:       "Moderate interest",
			DiscussionActivity: "Moderate discussion",
			ExistingProducts:   []ExistingProduct{},
		})
	}

	return Analysis{
		ScoreVector:            scores,
		SWOT:                   mockSWOT(sub, snap),
		TargetAudience:         mockAudience(sub),
		MonetizationStrategies: []Monetization{{"Subscription", 75}, {"Freemium", 65}, {"Transaction Fees", 55}},
		PitchTips: []string{
			fmt.Sprintf("Clearly articulate how %s solves %s", truncate(sub.Solution, 40), truncate(sub.Problem, 30)),
			"Highlight your target market and addressable market size",
			"Demonstrate technical feasibility",
			"Address competitive landscape",
		},
		Roadmap: []RoadmapPhase{
			{Phase: "Phase 1", Title: "Validate Market Need", Duration: "3-6 months"},
			{Phase: "Phase 2", Title: "Build MVP", Duration: "6-9 months"},
			{Phase: "Phase 3", Title: "Launch & Iterate", Duration: "9-12 months"},
			{Phase: "Phase 4", Title: "Scale", Duration: "12+ months"},
		},
		RealWorldData: rwd,
		Source:        SourceMock,
	}
}

func mockSWOT(sub Submission, snap MarketSnapshot) SWOT {
	addressable := defaultAddressable
	if v, ok := snap.AddressableMarket.Get(); ok {
		addressable = FormatAddressable(v)
	}
	growth := defaultMarketGrowth
	if v, ok := snap.Growth.Get(); ok {
		growth = FormatGrowth(v)
	}

	stageLine := "Early stage opportunity"
	if sub.Stage != StageIdea {
		stageLine = fmt.Sprintf("Already at %s stage - proven concept", sub.Stage)
	}
	strengths := []string{
		fmt.Sprintf("Targeting %s with %s", sub.TargetMarket, truncate(sub.Solution, 50)),
		fmt.Sprintf("Market size of $%sB addressable market", addressable),
		stageLine,
	}

	var weaknesses []string
	if n := len(snap.Competitors); n > 0 {
		weaknesses = append(weaknesses, fmt.Sprintf("%d competitors identified", n))
	} else {
		weaknesses = append(weaknesses, "Market validation needed")
	}
	if sub.Stage == StageIdea {
		weaknesses = append(weaknesses, "Early stage - no market validation yet")
	}
	if t, ok := snap.Technical.Get(); ok && t.Complexity == ComplexityHigh {
		weaknesses = append(weaknesses, "High technical complexity")
	}

	ins := snap.Insights.Or(IndustryInsights{})
	opportunities := append(firstN(ins.Opportunities, 2), fmt.Sprintf("Market growing at %s", growth))

	threats := []string{"Unvalidated market demand"}
	if len(snap.Competitors) > 0 {
		threats[0] = "Strong competition in market"
	}
	threats = append(threats, firstN(ins.Challenges, 2)...)

	return SWOT{
		Strengths:     firstN(strengths, maxSWOTItems),
		Weaknesses:    firstN(weaknesses, maxSWOTItems),
		Opportunities: firstN(opportunities, maxSWOTItems),
		Threats:       firstN(threats, maxSWOTItems),
	}
}

func mockAudience(sub Submission) []Audience {
	name := firstWord(sub.TargetMarket)
	if name == "" {
		name = "Primary Users"
	}
	desc := sub.TargetMarket
	if desc == "" {
		desc = "Target market users"
	}
	return []Audience{{Name: name, Age: "25-45", Description: desc}}
}

// averageSimilarity treats a missing similarity as 50.
func averageSimilarity(cs []Competitor) float64 {
	if len(cs) == 0 {
		return 0
	}
	total := 0
	for _, c := range cs {
		total += c.Similarity.Or(50)
	}
	return float64(total) / float64(len(cs))
}

func firstN(in []string, n int) []string {
	out := make([]string, 0, n)
	for _, s := range in {
		if len(out) == n {
			break
		}
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}
