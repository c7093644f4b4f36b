package marketdata

import (
	"context"
	"net/url"
	"strings"

	"github.com/joelkehle/ideaforge/internal/analysis"
)

const DefaultNewsAPIBaseURL = "https://newsapi.org/v2"

const maxNewsItems = 3

type newsArticle struct {
	Title       string `json:"title"`
	PublishedAt string `json:"publishedAt"`
	Source      struct {
		Name string `json:"name"`
	} `json:"source"`
}

type newsResponse struct {
	Status   string        `json:"status"`
	Articles []newsArticle `json:"articles"`
}

// fetchNews returns up to three popular articles about the idea. It is only
// called when a NewsAPI key is configured.
func (b *Builder) fetchNews(ctx context.Context, sub analysis.Submission) ([]analysis.NewsItem, error) {
	query := strings.Join(ExtractKeywords(sub.Solution), " ") + " OR " +
		strings.Join(ExtractKeywords(sub.Problem), " ") + " " + sub.Industry
	q := url.Values{}
	q.Set("q", strings.TrimSpace(query))
	q.Set("sortBy", "popularity")
	q.Set("pageSize", "5")
	q.Set("language", "en")
	q.Set("apiKey", b.cfg.NewsAPIKey)

	var resp newsResponse
	if err := b.client.getJSON(ctx, b.cfg.NewsAPIBaseURL+"/everything?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	out := []analysis.NewsItem{}
	for _, a := range resp.Articles {
		if len(out) == maxNewsItems {
			break
		}
		out = append(out, analysis.NewsItem{Title: a.Title, Source: a.Source.Name, Date: a.PublishedAt})
	}
	return out, nil
}
