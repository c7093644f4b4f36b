package analysis

import (
	"fmt"
	"strings"
	"time"
)

// Reference URLs used in the report markdown.
const (
	tamSamSomURL = "https://www.investopedia.com/terms/t/tam.asp"
	swotURL      = "https://www.investopedia.com/terms/s/swot.asp"
)

const Disclaimer = "This report is an automated first look at a startup idea. Scores are heuristic and should be validated with real customers before any investment decision."

// Report is everything needed to render a stored validation as a document.
type Report struct {
	ID         string
	CreatedAt  time.Time
	Submission Submission
	Analysis   Analysis
	Comparison ComparisonMetrics
}

// BuildMarkdown renders a report as GitHub-flavoured markdown.
func BuildMarkdown(r Report) string {
	var b strings.Builder
	a := r.Analysis
	sub := r.Submission

	title := sub.StartupName
	if title == "" {
		title = "Untitled idea"
	}
	fmt.Fprintf(&b, "# Startup Validation Report: %s\n\n", sanitize(title))
	if r.ID != "" {
		fmt.Fprintf(&b, "- Reference: %s\n", r.ID)
	}
	if !r.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "- Date: %s\n", r.CreatedAt.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "- Industry: %s\n", sanitize(sub.Industry))
	fmt.Fprintf(&b, "- Stage: %s\n", sub.Stage)
	if a.Source != "" {
		fmt.Fprintf(&b, "- Source: %s\n", a.Source)
	}
	fmt.Fprintf(&b, "\n%s\n\n", Disclaimer)

	fmt.Fprintf(&b, "## The Idea\n\n")
	writeField(&b, "Description", sub.Description)
	writeField(&b, "Problem", sub.Problem)
	writeField(&b, "Solution", sub.Solution)
	writeField(&b, "Target market", sub.TargetMarket)

	fmt.Fprintf(&b, "## Scores\n\n")
	fmt.Fprintf(&b, "| Axis | Score | Reading |\n|---|---:|---|\n")
	fmt.Fprintf(&b, "| Overall | %d | higher is better |\n", a.OverallScore)
	fmt.Fprintf(&b, "| Market potential | %d | higher is better |\n", a.MarketPotential)
	fmt.Fprintf(&b, "| Feasibility | %d | higher is better |\n", a.Feasibility)
	fmt.Fprintf(&b, "| Competition | %d | higher means more competition |\n", a.Competition)
	fmt.Fprintf(&b, "| Risk level | %d | higher means more risk |\n", a.RiskLevel)
	fmt.Fprintf(&b, "| Innovation index | %d | higher is better |\n\n", a.InnovationIndex)

	fmt.Fprintf(&b, "## Market Data Alignment\n\n")
	c := r.Comparison
	fmt.Fprintf(&b, "Overall comparison score: **%d**\n\n", c.OverallComparisonScore)
	fmt.Fprintf(&b, "| Metric | Score | Weight |\n|---|---:|---:|\n")
	fmt.Fprintf(&b, "| Market alignment | %d | %d%% |\n", c.MarketAlignmentScore, WeightMarketAlignment)
	fmt.Fprintf(&b, "| Competition fit | %d | %d%% |\n", c.CompetitionFitScore, WeightCompetitionFit)
	fmt.Fprintf(&b, "| Technical feasibility | %d | %d%% |\n", c.TechnicalFeasibilityScore, WeightTechnicalFeasibility)
	fmt.Fprintf(&b, "| Market validation | %d | %d%% |\n\n", c.MarketValidationScore, WeightMarketValidation)
	writeList(&b, c.Insights)

	fmt.Fprintf(&b, "## [SWOT](%s)\n\n", swotURL)
	writeSection(&b, "Strengths", a.SWOT.Strengths)
	writeSection(&b, "Weaknesses", a.SWOT.Weaknesses)
	writeSection(&b, "Opportunities", a.SWOT.Opportunities)
	writeSection(&b, "Threats", a.SWOT.Threats)

	rwd := a.RealWorldData
	fmt.Fprintf(&b, "## Market Snapshot\n\n")
	fmt.Fprintf(&b, "- Total market: $%sB\n", rwd.MarketSize)
	fmt.Fprintf(&b, "- Addressable market ([TAM](%s)): $%sB\n", tamSamSomURL, rwd.AddressableMarket)
	fmt.Fprintf(&b, "- Growth: %s\n", rwd.MarketGrowth)
	if tf, ok := rwd.TechnicalFeasibility.Get(); ok {
		fmt.Fprintf(&b, "- Technical complexity: %s\n", tf.Complexity)
	}
	fmt.Fprintf(&b, "- Typical raise: %s\n\n", rwd.FundingInfo.AverageFunding)

	if len(rwd.Competitors) > 0 {
		fmt.Fprintf(&b, "### Competitors\n\n| Name | Similarity | Description |\n|---|---:|---|\n")
		for _, comp := range rwd.Competitors {
			sim := "n/a"
			if s, ok := comp.Similarity.Get(); ok {
				sim = fmt.Sprintf("%d%%", s)
			}
			fmt.Fprintf(&b, "| %s | %s | %s |\n", cell(comp.Name), sim, cell(comp.Description))
		}
		b.WriteString("\n")
	}
	if len(rwd.RecentNews) > 0 {
		fmt.Fprintf(&b, "### Recent News\n\n")
		for _, n := range rwd.RecentNews {
			fmt.Fprintf(&b, "- %s (%s, %s)\n", sanitize(n.Title), sanitize(n.Source), n.Date)
		}
		b.WriteString("\n")
	}

	if len(a.TargetAudience) > 0 {
		fmt.Fprintf(&b, "## Target Audience\n\n")
		for _, aud := range a.TargetAudience {
			fmt.Fprintf(&b, "- **%s** (%s): %s\n", sanitize(aud.Name), aud.Age, sanitize(aud.Description))
		}
		b.WriteString("\n")
	}
	if len(a.MonetizationStrategies) > 0 {
		fmt.Fprintf(&b, "## Monetization\n\n| Strategy | Fit |\n|---|---:|\n")
		for _, m := range a.MonetizationStrategies {
			fmt.Fprintf(&b, "| %s | %d |\n", cell(m.Name), m.Fit)
		}
		b.WriteString("\n")
	}
	if len(a.Roadmap) > 0 {
		fmt.Fprintf(&b, "## Roadmap\n\n")
		for _, p := range a.Roadmap {
			fmt.Fprintf(&b, "- **%s: %s** (%s)\n", sanitize(p.Phase), sanitize(p.Title), p.Duration)
		}
		b.WriteString("\n")
	}
	if len(a.PitchTips) > 0 {
		fmt.Fprintf(&b, "## Pitch Tips\n\n")
		writeList(&b, a.PitchTips)
	}
	return b.String()
}

func writeField(b *strings.Builder, label, v string) {
	if strings.TrimSpace(v) == "" {
		return
	}
	fmt.Fprintf(b, "**%s:** %s\n\n", label, sanitize(v))
}

func writeSection(b *strings.Builder, heading string, items []string) {
	fmt.Fprintf(b, "### %s\n\n", heading)
	if len(items) == 0 {
		b.WriteString("- None identified\n\n")
		return
	}
	writeList(b, items)
}

func writeList(b *strings.Builder, items []string) {
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", sanitize(it))
	}
	b.WriteString("\n")
}

func sanitize(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}

func cell(s string) string {
	return strings.ReplaceAll(sanitize(s), "|", "\\|")
}
