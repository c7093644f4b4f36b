package marketdata

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/joelkehle/ideaforge/internal/analysis"
)

const DefaultDuckDuckGoBaseURL = "https://api.duckduckgo.com/"

const (
	maxRawCompetitors      = 8
	maxCompetitors         = 6
	minCompetitors         = 3
	maxCompetitorDescLen   = 150
	maxExistingProducts    = 5
	validationQueryKeyword = 3
)

var (
	topicNameRe    = regexp.MustCompile(`^([^\-:(]+)`)
	leadArticleRe  = regexp.MustCompile(`(?i)^(the|a|an)\s+`)
	resultSplitter = regexp.MustCompile(`[-:]`)
)

type ddgTopic struct {
	Text     string `json:"Text"`
	FirstURL string `json:"FirstURL"`
}

type ddgResponse struct {
	AbstractText  string     `json:"AbstractText"`
	RelatedTopics []ddgTopic `json:"RelatedTopics"`
	Results       []ddgTopic `json:"Results"`
}

func (b *Builder) ddgSearch(ctx context.Context, query string) (ddgResponse, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("no_html", "1")
	var out ddgResponse
	err := b.client.getJSON(ctx, b.cfg.DuckDuckGoBaseURL+"?"+q.Encode(), &out)
	return out, err
}

// fetchCompetitors runs three instant-answer queries and turns related
// topics and results into competitors scored by word overlap with the
// solution. The list is topped up from the curated catalogue when fewer
// than three are found.
func (b *Builder) fetchCompetitors(ctx context.Context, solution, industry string) ([]analysis.Competitor, error) {
	queries := []string{solution + " alternative", solution + " competitor", solution + " vs"}
	var found []analysis.Competitor
	seen := map[string]bool{}
	add := func(c analysis.Competitor) {
		key := strings.ToLower(c.Name)
		if seen[key] {
			return
		}
		seen[key] = true
		found = append(found, c)
	}

	failures := 0
	var lastErr error
	for _, q := range queries {
		resp, err := b.ddgSearch(ctx, q)
		if err != nil {
			failures++
			lastErr = err
			continue
		}
		for _, t := range resp.RelatedTopics {
			if t.Text == "" || len(found) >= maxRawCompetitors {
				continue
			}
			name, rest := topicName(t.Text)
			if len(name) <= 2 || len(name) >= 60 {
				continue
			}
			desc := truncateRunes(strings.TrimLeft(rest, " -:"), maxCompetitorDescLen)
			if desc == "" {
				desc = name + " in " + industry
			}
			add(analysis.Competitor{
				Name:        name,
				Description: desc,
				Similarity:  analysis.Some(similarityPercent(solution, t.Text)),
			})
		}
		if len(found) >= maxRawCompetitors {
			continue
		}
		for _, r := range resp.Results {
			if r.Text == "" || r.FirstURL == "" {
				continue
			}
			name := resultName(r.Text, r.FirstURL)
			if name == "" {
				continue
			}
			add(analysis.Competitor{
				Name:        name,
				Description: truncateRunes(r.Text, maxCompetitorDescLen),
				Website:     r.FirstURL,
				Similarity:  analysis.Some(similarityPercent(solution, r.Text)),
			})
		}
	}
	if failures == len(queries) {
		return nil, lastErr
	}
	return mergeCompetitors(found, solution, industry), nil
}

// mergeCompetitors sorts by similarity, caps the list and supplements it
// from the fallback catalogue.
func mergeCompetitors(found []analysis.Competitor, solution, industry string) []analysis.Competitor {
	sort.SliceStable(found, func(i, j int) bool {
		return found[i].Similarity.Or(0) > found[j].Similarity.Or(0)
	})
	if len(found) > maxCompetitors {
		found = found[:maxCompetitors]
	}
	if len(found) == 0 {
		return analysis.FallbackCompetitors(solution, industry)
	}
	if len(found) < minCompetitors {
		for _, fb := range analysis.FallbackCompetitors(solution, industry) {
			if !containsName(found, fb.Name) {
				found = append(found, fb)
			}
		}
		if len(found) > maxCompetitors {
			found = found[:maxCompetitors]
		}
	}
	return found
}

func containsName(cs []analysis.Competitor, name string) bool {
	for _, c := range cs {
		if strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

// topicName splits a related-topic text into a company name and the text
// that follows it.
func topicName(text string) (name, rest string) {
	m := topicNameRe.FindStringSubmatch(text)
	if m == nil {
		name = truncateRunes(text, 40)
		return name, strings.TrimPrefix(text, name)
	}
	return leadArticleRe.ReplaceAllString(strings.TrimSpace(m[1]), ""), text[len(m[0]):]
}

func resultName(text, firstURL string) string {
	if name := strings.TrimSpace(resultSplitter.Split(text, 2)[0]); name != "" {
		return name
	}
	u, err := url.Parse(firstURL)
	if err != nil {
		return ""
	}
	host := strings.TrimPrefix(u.Hostname(), "www.")
	return strings.Split(host, ".")[0]
}

func platformOf(rawURL string) string {
	switch {
	case strings.Contains(rawURL, "github"):
		return "GitHub"
	case strings.Contains(rawURL, "producthunt"):
		return "Product Hunt"
	case strings.Contains(rawURL, "reddit"):
		return "Reddit"
	default:
		return "Web"
	}
}

var errNoProblemKeywords = errors.New("problem statement has no searchable keywords")

// fetchValidation gauges discussion volume for the problem statement and
// lists existing products that show up for it.
func (b *Builder) fetchValidation(ctx context.Context, problem string) (analysis.MarketValidation, error) {
	kw := ExtractKeywords(problem)
	if len(kw) == 0 {
		return analysis.MarketValidation{}, errNoProblemKeywords
	}
	if len(kw) > validationQueryKeyword {
		kw = kw[:validationQueryKeyword]
	}
	resp, err := b.ddgSearch(ctx, strings.Join(kw, " ")+" problem solution")
	if err != nil {
		return analysis.MarketValidation{}, err
	}

	out := analysis.MarketValidation{ExistingProducts: []analysis.ExistingProduct{}}
	switch n := len(resp.RelatedTopics); {
	case n > 5:
		out.DiscussionActivity = "High discussion volume - strong market signal"
	case n > 2:
		out.DiscussionActivity = "Moderate discussion - validate market need"
	default:
		out.DiscussionActivity = "Low discussion - may indicate untapped opportunity or lack of market"
	}
	results := resp.Results
	if len(results) > maxExistingProducts {
		results = results[:maxExistingProducts]
	}
	for _, r := range results {
		if r.Text == "" || r.FirstURL == "" {
			continue
		}
		out.ExistingProducts = append(out.ExistingProducts, analysis.ExistingProduct{
			Name:     strings.TrimSpace(resultSplitter.Split(r.Text, 2)[0]),
			Platform: platformOf(r.FirstURL),
			URL:      r.FirstURL,
		})
	}
	switch n := len(out.ExistingProducts); {
	case n > 3:
		out.SearchTrends = "High search interest - competitive market"
	case n > 1:
		out.SearchTrends = "Moderate search interest - emerging market"
	default:
		out.SearchTrends = "Low search interest - validate market demand"
	}
	return out, nil
}

func defaultValidation() analysis.MarketValidation {
	return analysis.MarketValidation{
		SearchTrends:       "Moderate interest",
		DiscussionActivity: "Limited discussion",
		ExistingProducts:   []analysis.ExistingProduct{},
	}
}
