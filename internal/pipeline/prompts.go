package pipeline

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/joelkehle/ideaforge/internal/analysis"
)

const systemPrompt = "You are a startup analyst who validates early-stage business ideas. Score each idea on its own merits using the market data provided. Return strict JSON only."

const analysisSchemaPrompt = `Required JSON schema:
{
  "overallScore": 0-100,
  "marketPotential": 0-100,
  "feasibility": 0-100,
  "competition": 0-100 (higher = more competition),
  "riskLevel": 0-100 (higher = more risk),
  "innovationIndex": 0-100,
  "swot": {"strengths":["string"],"weaknesses":["string"],"opportunities":["string"],"threats":["string"]},
  "targetAudience": [{"name":"string","age":"string","description":"string"}],
  "monetizationStrategies": [{"name":"string","fit":0-100}],
  "pitchTips": ["string"],
  "roadmap": [{"phase":"string","title":"string","duration":"string"}]
}
All scores are integers.`

var whitespaceRe = regexp.MustCompile(`\s+`)

// fingerprint tags a request so the model treats each idea separately.
func fingerprint(sub analysis.Submission) string {
	part := func(s string, n int) string {
		r := []rune(s)
		if len(r) > n {
			r = r[:n]
		}
		return whitespaceRe.ReplaceAllString(string(r), "-")
	}
	return part(sub.Solution, 50) + "-" + part(sub.Problem, 30) + "-" + part(sub.TargetMarket, 20)
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// fullPrompt carries the extracted signals and the market snapshot.
func fullPrompt(sub analysis.Submission, sig analysis.Signals, snap analysis.MarketSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ANALYSIS REQUEST ID: %s\n\n", fingerprint(sub))
	fmt.Fprintf(&b, "You are analyzing %q. Each idea is different and must be scored on its own characteristics, not on generic defaults.\n\n", sub.StartupName)

	b.WriteString("SOLUTION CHARACTERISTICS:\n")
	b.WriteString(sig.Characteristics())
	fmt.Fprintf(&b, "\nComplexity: %s. Innovation: %s. Market scope: %s. Problem-solution fit: %s.\n\n", sig.Complexity, sig.Innovation, sig.Scope, sig.Fit)

	b.WriteString("STARTUP DETAILS:\n")
	fmt.Fprintf(&b, "Startup Name: %q\nDescription: %q\nProblem: %q\nSolution: %q\nTarget Market: %q\nIndustry: %q\nStage: %q\n\n",
		sub.StartupName, sub.Description, sub.Problem, sub.Solution, sub.TargetMarket, sub.Industry, sub.Stage)

	b.WriteString("REAL-WORLD MARKET CONTEXT:\n")
	writeMarketContext(&b, sub, snap)

	b.WriteString("\nSCORING GUIDELINES:\n")
	writeGuidelines(&b, sub, snap)

	b.WriteString("\nSWOT: use the competitor, insight and funding data above. Name specific competitors in weaknesses and threats; use the listed opportunities and trends in opportunities.\n\n")
	b.WriteString("Different solutions must receive different scores. Justify each score against this solution, not the industry average.\n\n")
	b.WriteString(analysisSchemaPrompt)
	return b.String()
}

func writeMarketContext(b *strings.Builder, sub analysis.Submission, snap analysis.MarketSnapshot) {
	rwd := analysis.EchoSnapshot(snap)
	fmt.Fprintf(b, "- Total industry market: %s billion USD\n", rwd.MarketSize)
	fmt.Fprintf(b, "- Addressable market (TAM): %s billion USD\n", rwd.AddressableMarket)
	fmt.Fprintf(b, "- Market growth: %s\n", rwd.MarketGrowth)

	if len(snap.Competitors) > 0 {
		b.WriteString("Competitors:\n")
		for i, c := range snap.Competitors {
			fmt.Fprintf(b, "%d. %s (similarity %d%%): %s\n", i+1, c.Name, c.Similarity.Or(50), c.Description)
			if c.Funding != "" {
				fmt.Fprintf(b, "   funding: %s\n", c.Funding)
			}
			if c.Website != "" {
				fmt.Fprintf(b, "   website: %s\n", c.Website)
			}
		}
	} else {
		fmt.Fprintf(b, "No direct competitors found for %q. Decide whether this is an open market or an unvalidated one.\n", clip(sub.Solution, 80))
	}

	if mv, ok := snap.Validation.Get(); ok {
		fmt.Fprintf(b, "Validation signals: search interest %s; discussion %s; %d existing products\n", mv.SearchTrends, mv.DiscussionActivity, len(mv.ExistingProducts))
		for i, p := range mv.ExistingProducts {
			fmt.Fprintf(b, "   %d. %s (%s)\n", i+1, p.Name, p.Platform)
		}
	}
	if ins, ok := snap.Insights.Get(); ok {
		writeNumbered(b, "Industry trends", ins.Trends)
		writeNumbered(b, "Industry challenges", ins.Challenges)
		writeNumbered(b, "Industry opportunities", ins.Opportunities)
	}
	if f, ok := snap.Funding.Get(); ok {
		fmt.Fprintf(b, "Funding: average raise %s at %s stage; typical investors %s\n", f.AverageRaise, sub.Stage, strings.Join(f.Investors, ", "))
		for _, r := range f.RecentRounds {
			fmt.Fprintf(b, "   %s: %s (%s)\n", r.Company, r.Amount, r.Date)
		}
	}
	if tf, ok := snap.Technical.Get(); ok {
		fmt.Fprintf(b, "Technical complexity: %s; required resources: %s; similar stack: %s\n",
			strings.ToUpper(string(tf.Complexity)), strings.Join(tf.RequiredResources, ", "), strings.Join(tf.SimilarTechStack, ", "))
	}
	for _, n := range snap.News {
		fmt.Fprintf(b, "News: %s (%s, %s)\n", n.Title, n.Source, n.Date)
	}
}

func writeNumbered(b *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "%s:\n", heading)
	for i, it := range items {
		fmt.Fprintf(b, "  %d. %s\n", i+1, it)
	}
}

func writeGuidelines(b *strings.Builder, sub analysis.Submission, snap analysis.MarketSnapshot) {
	if tam, ok := snap.AddressableMarket.Get(); ok {
		switch {
		case tam > 100:
			b.WriteString("- Large TAM: market potential 70-90.\n")
		case tam > 50:
			b.WriteString("- Medium TAM: market potential 55-75.\n")
		default:
			b.WriteString("- Niche TAM: market potential 40-65.\n")
		}
	}
	if tf, ok := snap.Technical.Get(); ok {
		switch tf.Complexity {
		case analysis.ComplexityHigh:
			b.WriteString("- High complexity: feasibility 35-60, add 15-25 to risk.\n")
		case analysis.ComplexityMedium:
			b.WriteString("- Medium complexity: feasibility 60-80, add 5-10 to risk.\n")
		default:
			b.WriteString("- Low complexity: feasibility 75-95, subtract 5-10 from risk.\n")
		}
	}
	switch sub.Stage {
	case analysis.StageGrowing:
		b.WriteString("- Growing stage: risk 15-35.\n")
	case analysis.StageLaunched:
		b.WriteString("- Launched stage: risk 25-45.\n")
	case analysis.StageMVP:
		b.WriteString("- MVP stage: risk 40-60.\n")
	default:
		b.WriteString("- Idea stage: risk 60-80.\n")
	}
	if n := len(snap.Competitors); n > 0 {
		total := 0
		for _, c := range snap.Competitors {
			total += c.Similarity.Or(50)
		}
		avg := (total + n/2) / n
		fmt.Fprintf(b, "- %d competitors with %d%% average similarity.\n", n, avg)
		switch {
		case avg > 70:
			b.WriteString("- High similarity: innovation 25-45.\n")
		case avg >= 40:
			b.WriteString("- Moderate similarity: innovation 45-70.\n")
		default:
			b.WriteString("- Low similarity: innovation 65-85.\n")
		}
		if n > 2 {
			b.WriteString("- Competition 60-85; the idea must differentiate strongly.\n")
		} else {
			b.WriteString("- Competition 40-60.\n")
		}
	} else {
		b.WriteString("- No competitors found: competition 20-40, but confirm the market exists.\n")
	}
}

// reducedPrompt is used when the full prompt fails. It carries only the
// submission text.
func reducedPrompt(sub analysis.Submission) string {
	return fmt.Sprintf(`Analyze this startup idea and provide a comprehensive validation assessment:

Startup Name: %s
Description: %s
Problem: %s
Solution: %s
Target Market: %s
Industry: %s
Current Stage: %s

Note: Some real-world data could not be fetched. Provide analysis based on general industry knowledge.

%s`, sub.StartupName, sub.Description, sub.Problem, sub.Solution, sub.TargetMarket, sub.Industry, sub.Stage, analysisSchemaPrompt)
}
