package analysis

import (
	"fmt"
	"strings"
)

// Weights of the four comparison sub-scores, in percent. They sum to 100.
const (
	WeightMarketAlignment      = 30
	WeightCompetitionFit       = 25
	WeightTechnicalFeasibility = 25
	WeightMarketValidation     = 20
)

const comparisonBase = 50.0

// WeightedOverall combines the four clamped sub-scores, rounding half up.
// Integer arithmetic keeps the .5 case exact.
func WeightedOverall(alignment, competitionFit, technical, validation int) int {
	sum := WeightMarketAlignment*alignment +
		WeightCompetitionFit*competitionFit +
		WeightTechnicalFeasibility*technical +
		WeightMarketValidation*validation
	return (sum + 50) / 100
}

// Compare reconciles a score vector with fetched market data. It is pure:
// identical inputs always produce identical output. Absent fields skip
// their contribution and leave the base of 50 in place.
func Compare(sub Submission, snap MarketSnapshot, scores PartialScores) ComparisonMetrics {
	var insights []string

	alignment := comparisonBase
	if tam, ok := snap.AddressableMarket.Get(); ok {
		switch {
		case tam > 100:
			alignment += 20
			insights = append(insights, "Your solution targets a large addressable market (>$100B)")
		case tam > 50:
			alignment += 10
			insights = append(insights, "Your solution targets a substantial addressable market (>$50B)")
		case tam < 10:
			alignment -= 15
			insights = append(insights, "Your solution targets a niche market - validate demand carefully")
		}
	}
	if growth, ok := snap.Growth.Get(); ok {
		switch {
		case growth > 15:
			alignment += 15
			insights = append(insights, fmt.Sprintf("Market is growing rapidly (%s)", FormatGrowth(growth)))
		case growth > 10:
			alignment += 8
			insights = append(insights, fmt.Sprintf("Market shows healthy growth (%s)", FormatGrowth(growth)))
		case growth < 5:
			alignment -= 10
			insights = append(insights, "Market growth is slow - ensure strong product-market fit")
		}
	}
	if mp, ok := scores.MarketPotential.Get(); ok {
		alignment = (alignment + float64(mp)) / 2
	}

	competitionFit := comparisonBase
	if n := len(snap.Competitors); n > 0 {
		avg := averageSimilarity(snap.Competitors)
		switch {
		case avg > 70:
			competitionFit = 40 - float64(n*3)
			insights = append(insights, fmt.Sprintf("Strong competition detected - %d similar competitors with %d%% average similarity", n, roundHalfUp(avg)))
		case avg > 50:
			competitionFit = 55
			insights = append(insights, "Moderate competition - differentiate your solution clearly")
		default:
			competitionFit = 70
			if n < 3 {
				competitionFit += 10
			}
			insights = append(insights, "Lower competition - opportunity for market differentiation")
		}
		if n > 5 {
			competitionFit -= 15
		} else if n < 3 {
			competitionFit += 10
		}
	} else if snap.Competitors != nil {
		competitionFit = 60
		insights = append(insights, "Limited competitor data - market may be untapped or unvalidated")
	}
	if c, ok := scores.Competition.Get(); ok {
		competitionFit = (competitionFit + float64(100-c)) / 2
	}

	technical := comparisonBase
	if tf, ok := snap.Technical.Get(); ok {
		switch tf.Complexity {
		case ComplexityLow:
			technical = 85
			insights = append(insights, "Low technical complexity - faster to market")
		case ComplexityMedium:
			technical = 65
			insights = append(insights, "Medium technical complexity - standard development timeline")
		default:
			technical = 45
			insights = append(insights, "High technical complexity - requires expert team and significant resources")
		}
		switch sub.Stage {
		case StageGrowing:
			technical += 15
			insights = append(insights, "You're already in growth stage - technical feasibility proven")
		case StageLaunched:
			technical += 10
			insights = append(insights, "Product is launched - technical barriers overcome")
		case StageMVP:
			technical += 5
		default:
			technical -= 10
			insights = append(insights, "Early stage - technical feasibility needs validation")
		}
	}
	if f, ok := scores.Feasibility.Get(); ok {
		technical = (technical + float64(f)) / 2
	}

	validation := comparisonBase
	if mv, ok := snap.Validation.Get(); ok {
		trends := strings.ToLower(mv.SearchTrends)
		switch {
		case strings.Contains(trends, "high"):
			validation += 20
			insights = append(insights, "High search interest indicates validated market demand")
		case strings.Contains(trends, "moderate"):
			validation += 10
			insights = append(insights, "Moderate search interest - emerging market opportunity")
		default:
			validation -= 10
			insights = append(insights, "Low search interest - validate market demand before proceeding")
		}
		discussion := strings.ToLower(mv.DiscussionActivity)
		switch {
		case strings.Contains(discussion, "high"), strings.Contains(discussion, "strong"):
			validation += 15
			insights = append(insights, "High discussion activity - strong market signal")
		case strings.Contains(discussion, "limited"), strings.Contains(discussion, "low"):
			validation -= 15
			insights = append(insights, "Limited discussion - market may be unvalidated")
		}
		switch n := len(mv.ExistingProducts); {
		case n == 0:
			validation += 10
			insights = append(insights, "No existing similar products - blue ocean opportunity (validate demand)")
		case n > 5:
			validation -= 15
			insights = append(insights, fmt.Sprintf("%d existing products found - highly competitive market", n))
		default:
			validation += 5
			insights = append(insights, fmt.Sprintf("%d existing products - moderate competition", n))
		}
	}

	m := ComparisonMetrics{
		MarketAlignmentScore:      clampScore(roundHalfUp(alignment)),
		CompetitionFitScore:       clampScore(roundHalfUp(competitionFit)),
		TechnicalFeasibilityScore: clampScore(roundHalfUp(technical)),
		MarketValidationScore:     clampScore(roundHalfUp(validation)),
	}
	m.OverallComparisonScore = WeightedOverall(m.MarketAlignmentScore, m.CompetitionFitScore, m.TechnicalFeasibilityScore, m.MarketValidationScore)
	m.Insights = append([]string{summaryInsight(m.OverallComparisonScore)}, insights...)
	return m
}

func summaryInsight(overall int) string {
	switch {
	case overall >= 80:
		return "Excellent alignment with real-world market data - strong opportunity"
	case overall >= 65:
		return "Good alignment with market data - viable opportunity with proper execution"
	case overall >= 50:
		return "Moderate alignment - validate assumptions and refine strategy"
	default:
		return "Lower alignment with market data - consider pivoting or addressing gaps"
	}
}
