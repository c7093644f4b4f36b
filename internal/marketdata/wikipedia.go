package marketdata

import (
	"context"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/joelkehle/ideaforge/internal/analysis"
)

const DefaultWikipediaBaseURL = "https://en.wikipedia.org/api/rest_v1"

var marketFigureRe = regexp.MustCompile(`(?i)\$?(\d+(?:\.\d+)?)\s*(billion|million|trillion)`)

type wikiSummary struct {
	Extract     string `json:"extract"`
	ExtractHTML string `json:"extract_html"`
}

// summaryText flattens the HTML extract to text, falling back to the plain
// extract.
func (w wikiSummary) summaryText() string {
	if strings.TrimSpace(w.ExtractHTML) != "" {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(w.ExtractHTML))
		if err == nil {
			if text := strings.Join(strings.Fields(doc.Text()), " "); text != "" {
				return text
			}
		}
	}
	return w.Extract
}

func (b *Builder) wikiSummary(ctx context.Context, title string) (string, error) {
	var out wikiSummary
	u := b.cfg.WikipediaBaseURL + "/page/summary/" + url.PathEscape(title)
	if err := b.client.getJSON(ctx, u, &out); err != nil {
		return "", err
	}
	return out.summaryText(), nil
}

// parseMarketFigure converts the first "$N billion" style mention to
// billions of USD.
func parseMarketFigure(text string) (float64, bool) {
	m := marketFigureRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	switch strings.ToLower(m[2]) {
	case "trillion":
		return math.Round(v * 1000), true
	case "billion":
		return math.Round(v), true
	default:
		return math.Round(v/100) / 10, true
	}
}

type marketSize struct {
	total, addressable, growth float64
}

// fetchMarketSize uses the curated industry table when the industry is
// known and the Wikipedia figure otherwise.
func (b *Builder) fetchMarketSize(ctx context.Context, industry, solution string) (marketSize, error) {
	row, known := industrySizes[industry]
	if !known {
		row = industrySize{billions: defaultTotalMarket, growth: defaultGrowth}
		text, err := b.wikiSummary(ctx, industry+"_industry")
		if err != nil {
			return marketSize{}, err
		}
		if v, ok := parseMarketFigure(text); ok {
			row.billions = v
		}
	}
	return marketSize{
		total:       row.billions,
		addressable: math.Round(row.billions*tamMultiplier(solution)*10) / 10,
		growth:      row.growth,
	}, nil
}

const (
	maxWikiTrendSentences = 3
	minTrendSentenceLen   = 50
	maxTrendSentenceLen   = 200
	maxTrends             = 5
)

// fetchInsights merges Wikipedia sentences with the industry table and keeps
// only trends relevant to the solution. A Wikipedia failure only loses the
// extra sentences.
func (b *Builder) fetchInsights(ctx context.Context, industry, solution string) (analysis.IndustryInsights, error) {
	var trends []string
	text, err := b.wikiSummary(ctx, industry)
	if err == nil {
		for _, s := range strings.Split(text, ".") {
			if len(trends) == maxWikiTrendSentences {
				break
			}
			if len(s) > minTrendSentenceLen {
				trends = append(trends, truncateRunes(strings.TrimSpace(s), maxTrendSentenceLen))
			}
		}
	}
	table := insightsFor(industry)
	trends = append(trends, table.Trends...)
	if len(trends) > maxTrends {
		trends = trends[:maxTrends]
	}
	out := analysis.IndustryInsights{
		Trends:        relevantTrends(trends, industry, solution),
		Challenges:    append([]string(nil), table.Challenges...),
		Opportunities: append([]string(nil), table.Opportunities...),
	}
	return out, err
}

func relevantTrends(trends []string, industry, solution string) []string {
	words := strings.Fields(strings.ToLower(solution))
	ind := strings.ToLower(industry)
	out := []string{}
	for _, t := range trends {
		lower := strings.ToLower(t)
		keep := ind != "" && strings.Contains(lower, ind)
		for _, w := range words {
			if keep {
				break
			}
			keep = len(w) > 4 && strings.Contains(lower, w)
		}
		if keep {
			out = append(out, t)
		}
	}
	return out
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
