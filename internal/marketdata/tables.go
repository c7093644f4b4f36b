package marketdata

import (
	"fmt"
	"strings"
	"time"

	"github.com/joelkehle/ideaforge/internal/analysis"
)

type industrySize struct {
	billions float64
	growth   float64
}

// 2024 estimates, USD billions.
var industrySizes = map[string]industrySize{
	"Technology":      {5200, 13.2},
	"Healthcare":      {4800, 16.1},
	"Finance":         {3100, 9.4},
	"E-commerce":      {5800, 15.8},
	"Education":       {2800, 19.3},
	"Entertainment":   {2400, 8.7},
	"Food & Beverage": {1950, 6.1},
	"Real Estate":     {3400, 7.2},
	"Transportation":  {1100, 10.5},
}

const (
	defaultTotalMarket       = 1500.0
	defaultGrowth            = 10.0
	defaultTAMMultiplier     = 0.10
	fallbackAddressable      = 150.0
)

var tamMultipliers = []struct {
	keywords   []string
	multiplier float64
}{
	{[]string{"enterprise", "b2b"}, 0.15},
	{[]string{"consumer", "b2c"}, 0.12},
	{[]string{"saas", "platform"}, 0.08},
	{[]string{"niche", "specific"}, 0.05},
}

func tamMultiplier(solution string) float64 {
	lower := strings.ToLower(solution)
	for _, m := range tamMultipliers {
		for _, k := range m.keywords {
			if strings.Contains(lower, k) {
				return m.multiplier
			}
		}
	}
	return defaultTAMMultiplier
}

var industryInsights = map[string]analysis.IndustryInsights{
	"Technology": {
		Trends: []string{
			"AI integration is becoming standard across all products",
			"Cloud-native architecture is the default for new startups",
			"API-first approach enables faster integrations",
		},
		Challenges: []string{
			"High technical talent competition and costs",
			"Rapid technology obsolescence",
			"Data privacy and security regulations",
		},
		Opportunities: []string{
			"AI-powered automation solutions",
			"Developer tooling and infrastructure",
			"SaaS for underserved niches",
		},
	},
	"Healthcare": {
		Trends: []string{
			"Telemedicine adoption accelerated post-COVID",
			"AI-assisted diagnostics gaining regulatory approval",
			"Patient data interoperability becoming critical",
		},
		Challenges: []string{
			"Strict regulatory compliance (HIPAA, FDA)",
			"Long sales cycles with healthcare institutions",
			"High barrier to entry for clinical validation",
		},
		Opportunities: []string{
			"Mental health and wellness platforms",
			"Chronic disease management tools",
			"Healthcare data analytics",
		},
	},
	"Finance": {
		Trends: []string{
			"Embedded finance and banking-as-a-service growing",
			"Cryptocurrency and blockchain integration",
			"Real-time payment processing becoming standard",
		},
		Challenges: []string{
			"Financial regulations and compliance (PCI-DSS, KYC)",
			"Trust and security requirements are high",
			"Competition from established financial institutions",
		},
		Opportunities: []string{
			"Fintech for underserved markets",
			"Personal finance management tools",
			"Alternative lending and credit solutions",
		},
	},
	"E-commerce": {
		Trends: []string{
			"Social commerce and influencer-driven sales",
			"Sustainability and eco-friendly products",
			"Personalization and AI recommendations",
		},
		Challenges: []string{
			"Customer acquisition costs rising",
			"Logistics and fulfillment complexity",
			"Intense competition from Amazon and large players",
		},
		Opportunities: []string{
			"Niche marketplaces",
			"B2B e-commerce platforms",
			"D2C brand building tools",
		},
	},
	"Education": {
		Trends: []string{
			"Hybrid learning models becoming permanent",
			"Micro-credentials and skill-based learning",
			"Gamification and interactive content",
		},
		Challenges: []string{
			"Student engagement and retention",
			"Content creation costs",
			"Competition from free resources",
		},
		Opportunities: []string{
			"Corporate training and upskilling",
			"Language learning platforms",
			"Specialized skill training",
		},
	},
}

var defaultInsights = analysis.IndustryInsights{
	Trends:        []string{"Industry showing steady growth"},
	Challenges:    []string{"Market competition", "Customer acquisition"},
	Opportunities: []string{"Digital transformation", "Emerging markets"},
}

func insightsFor(industry string) analysis.IndustryInsights {
	if ins, ok := industryInsights[industry]; ok {
		return ins
	}
	return defaultInsights
}

type stageFunding struct {
	averageRaise string
	investors    []string
	roundAmounts []string
}

var fundingByStage = map[analysis.Stage]stageFunding{
	analysis.StageIdea: {
		averageRaise: "$75K - $750K",
		investors:    []string{"Angel Investors", "Friends & Family", "Pre-seed Funds", "Accelerators"},
		roundAmounts: []string{"$150K", "$350K", "$500K"},
	},
	analysis.StageMVP: {
		averageRaise: "$500K - $3M",
		investors:    []string{"Seed Funds", "Angel Groups", "Early-stage VCs", "Corporate VCs"},
		roundAmounts: []string{"$1.2M", "$2.5M", "$3M"},
	},
	analysis.StageLaunched: {
		averageRaise: "$1M - $8M",
		investors:    []string{"Seed Funds", "Series A VCs", "Strategic Investors", "Family Offices"},
		roundAmounts: []string{"$2M", "$5M", "$7M"},
	},
	analysis.StageGrowing: {
		averageRaise: "$5M - $25M",
		investors:    []string{"Series A VCs", "Growth Investors", "Corporate VCs", "Private Equity"},
		roundAmounts: []string{"$8M", "$15M", "$22M"},
	},
}

// Illustrative rounds are dated this many days before the request.
var roundAgeDays = []int{11, 38, 74}

// FundingLandscape returns the stage table with three illustrative recent
// rounds. Unknown stages use the idea row.
func FundingLandscape(industry string, stage analysis.Stage, now time.Time) analysis.FundingLandscape {
	f, ok := fundingByStage[stage]
	if !ok {
		f = fundingByStage[analysis.StageIdea]
	}
	label := industry
	if label == "" {
		label = "Other"
	}
	rounds := make([]analysis.FundingRound, 0, len(f.roundAmounts))
	for i, amount := range f.roundAmounts {
		rounds = append(rounds, analysis.FundingRound{
			Company: fmt.Sprintf("%s Startup %d", label, i+1),
			Amount:  amount,
			Date:    now.UTC().AddDate(0, 0, -roundAgeDays[i]).Format("2006-01-02"),
		})
	}
	investors := make([]string, len(f.investors))
	copy(investors, f.investors)
	return analysis.FundingLandscape{AverageRaise: f.averageRaise, Investors: investors, RecentRounds: rounds}
}

type techProfile struct {
	keywords   []string
	complexity analysis.Complexity
	resources  []string
	stack      []string
}

var techProfiles = []techProfile{
	{
		keywords:   []string{"ai", "machine learning", "ml", "blockchain", "crypto"},
		complexity: analysis.ComplexityHigh,
		resources:  []string{"AI/ML Engineers", "Data Scientists", "Cloud Infrastructure"},
		stack:      []string{"Python", "TensorFlow/PyTorch", "Cloud AI Services"},
	},
	{
		keywords:   []string{"app", "mobile", "software", "platform"},
		complexity: analysis.ComplexityMedium,
		resources:  []string{"Software Developers", "UI/UX Designers", "DevOps"},
		stack:      []string{"React/Next.js", "Node.js", "PostgreSQL/MongoDB", "AWS/Vercel"},
	},
	{
		keywords:   []string{"website", "landing page"},
		complexity: analysis.ComplexityLow,
		resources:  []string{"Web Developer", "Designer"},
		stack:      []string{"React", "Tailwind CSS", "Hosting Platform"},
	},
}

var regulatedIndustries = map[string]struct{ resources, stack []string }{
	"Healthcare": {
		resources: []string{"HIPAA Compliance Expert", "Medical Advisor"},
		stack:     []string{"HIPAA-compliant Infrastructure"},
	},
	"Finance": {
		resources: []string{"Security Expert", "Compliance Officer"},
		stack:     []string{"PCI-DSS Compliant Systems", "Encryption Tools"},
	},
}

// TechnicalFeasibility classifies the solution's build complexity by keyword.
// The first matching profile wins; the default is medium with no lists.
func TechnicalFeasibility(solution, industry string) analysis.TechnicalFeasibility {
	lower := strings.ToLower(solution)
	out := analysis.TechnicalFeasibility{Complexity: analysis.ComplexityMedium}
	for _, p := range techProfiles {
		if containsAny(lower, p.keywords) {
			out.Complexity = p.complexity
			out.RequiredResources = append(out.RequiredResources, p.resources...)
			out.SimilarTechStack = append(out.SimilarTechStack, p.stack...)
			break
		}
	}
	if extra, ok := regulatedIndustries[industry]; ok {
		out.RequiredResources = append(out.RequiredResources, extra.resources...)
		out.SimilarTechStack = append(out.SimilarTechStack, extra.stack...)
	}
	if len(out.SimilarTechStack) == 0 {
		out.SimilarTechStack = []string{"Standard Web Stack"}
	}
	if len(out.RequiredResources) == 0 {
		out.RequiredResources = []string{"Development Team"}
	}
	return out
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
