package marketdata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/joelkehle/ideaforge/internal/analysis"
)

var fixedNow = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

type upstream struct {
	ddgCalls  int32
	wikiCalls int32
	newsCalls int32
	ddgDown   bool
	ddgHang   bool
}

func (u *upstream) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/wiki/page/summary/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&u.wikiCalls, 1)
		title := strings.TrimPrefix(r.URL.Path, "/wiki/page/summary/")
		switch title {
		case "Technology":
			writeJSON(t, w, map[string]string{
				"extract": "plain extract",
				"extract_html": "<p><b>Technology</b> is the application of conceptual knowledge to achieve practical goals in a reproducible way. " +
					"Short one. Mobile technology is reshaping scheduling for consumer services everywhere today.</p>",
			})
		case "Underwater Basket Weaving_industry":
			writeJSON(t, w, map[string]string{"extract": "The industry was worth $2.5 trillion in 2020."})
		default:
			http.NotFound(w, r)
		}
	})
	mux.HandleFunc("/ddg/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&u.ddgCalls, 1)
		if u.ddgHang {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		if u.ddgDown {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		if r.URL.Query().Get("format") != "json" {
			t.Errorf("expected format=json, got %q", r.URL.RawQuery)
		}
		if strings.HasSuffix(r.URL.Query().Get("q"), "problem solution") {
			writeJSON(t, w, map[string]any{
				"RelatedTopics": []map[string]string{{"Text": "a"}, {"Text": "b"}, {"Text": "c"}},
				"Results": []map[string]string{
					{"Text": "DogWalk - open source scheduler", "FirstURL": "https://github.com/x/dogwalk"},
					{"Text": "r/dogs: walkers thread", "FirstURL": "https://www.reddit.com/r/dogs"},
				},
			})
			return
		}
		writeJSON(t, w, map[string]any{
			"RelatedTopics": []map[string]string{
				{"Text": "Rover - Dog walking and pet sitting app", "FirstURL": "https://duckduckgo.com/Rover"},
				{"Text": "Wag: on-demand dog walkers", "FirstURL": "https://duckduckgo.com/Wag"},
				{"FirstURL": "https://duckduckgo.com/empty"},
			},
			"Results": []map[string]string{
				{"Text": "Time To Pet - scheduling software for pet businesses", "FirstURL": "https://www.timetopet.com"},
			},
		})
	})
	mux.HandleFunc("/news/everything", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&u.newsCalls, 1)
		if r.URL.Query().Get("apiKey") != "news-key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		var articles []map[string]any
		for _, title := range []string{"One", "Two", "Three", "Four"} {
			articles = append(articles, map[string]any{
				"title":       title,
				"publishedAt": "2026-02-20T10:00:00Z",
				"source":      map[string]string{"name": "Wire"},
			})
		}
		writeJSON(t, w, map[string]any{"status": "ok", "articles": articles})
	})
	return mux
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode: %v", err)
	}
}

func newTestBuilder(srv *httptest.Server, mutate func(*Config)) *Builder {
	cfg := Config{
		WikipediaBaseURL:  srv.URL + "/wiki",
		DuckDuckGoBaseURL: srv.URL + "/ddg/",
		NewsAPIBaseURL:    srv.URL + "/news",
		Timeout:           time.Second,
		RatePerSecond:     -1,
		HTTPClient:        srv.Client(),
		Logger:            zap.NewNop(),
		Now:               func() time.Time { return fixedNow },
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewBuilder(cfg)
}

func dogWalkerSubmission() analysis.Submission {
	return analysis.Submission{
		StartupName:  "Pawsome",
		Problem:      "Dog owners struggle finding reliable walkers",
		Solution:     "Mobile app for scheduling dog walkers",
		TargetMarket: "Urban pet owners",
		Industry:     "Technology",
		Stage:        analysis.StageMVP,
	}
}

func TestBuildKnownIndustry(t *testing.T) {
	up := &upstream{}
	srv := httptest.NewServer(up.handler(t))
	defer srv.Close()

	b := newTestBuilder(srv, func(c *Config) { c.NewsAPIKey = "news-key" })
	snap := b.Build(context.Background(), dogWalkerSubmission())

	if snap.TotalMarket.Or(0) != 5200 || snap.AddressableMarket.Or(0) != 520 || snap.Growth.Or(0) != 13.2 {
		t.Fatalf("unexpected market size: %+v %+v %+v", snap.TotalMarket, snap.AddressableMarket, snap.Growth)
	}

	var names []string
	for _, c := range snap.Competitors {
		names = append(names, c.Name)
	}
	if strings.Join(names, ",") != "Wag,Time To Pet,Rover" {
		t.Fatalf("unexpected competitors: %v", names)
	}
	if snap.Competitors[0].Similarity.Or(-1) != 20 || snap.Competitors[1].Similarity.Or(-1) != 17 {
		t.Fatalf("unexpected similarity: %+v", snap.Competitors)
	}
	if snap.Competitors[1].Website != "https://www.timetopet.com" {
		t.Fatalf("expected website from result, got %q", snap.Competitors[1].Website)
	}
	if snap.Competitors[2].Description != "Dog walking and pet sitting app" {
		t.Fatalf("unexpected description: %q", snap.Competitors[2].Description)
	}

	v, ok := snap.Validation.Get()
	if !ok {
		t.Fatal("expected validation")
	}
	if !strings.HasPrefix(v.DiscussionActivity, "Moderate discussion") || !strings.HasPrefix(v.SearchTrends, "Moderate search interest") {
		t.Fatalf("unexpected validation: %+v", v)
	}
	if len(v.ExistingProducts) != 2 || v.ExistingProducts[0].Platform != "GitHub" || v.ExistingProducts[1].Platform != "Reddit" {
		t.Fatalf("unexpected products: %+v", v.ExistingProducts)
	}

	ins, _ := snap.Insights.Get()
	if len(ins.Trends) != 2 || !strings.HasPrefix(ins.Trends[0], "Technology is the application") {
		t.Fatalf("unexpected trends: %q", ins.Trends)
	}
	if len(ins.Challenges) != 3 {
		t.Fatalf("expected table challenges, got %v", ins.Challenges)
	}

	f, _ := snap.Funding.Get()
	if f.AverageRaise != "$500K - $3M" || f.RecentRounds[0].Date != "2026-02-18" {
		t.Fatalf("unexpected funding: %+v", f)
	}
	tech, _ := snap.Technical.Get()
	if tech.Complexity != analysis.ComplexityMedium {
		t.Fatalf("unexpected complexity: %s", tech.Complexity)
	}
	if len(snap.News) != 3 || snap.News[0].Source != "Wire" {
		t.Fatalf("unexpected news: %+v", snap.News)
	}
}

func TestBuildFallsBackPerField(t *testing.T) {
	up := &upstream{ddgDown: true}
	srv := httptest.NewServer(up.handler(t))
	defer srv.Close()

	sub := analysis.Submission{
		Problem:  "Weavers cannot find buyers",
		Solution: "Handmade basket subscription",
		Industry: "Underwater Basket Weaving",
		Stage:    analysis.StageIdea,
	}
	snap := newTestBuilder(srv, nil).Build(context.Background(), sub)

	if snap.TotalMarket.Or(0) != 2500 || snap.AddressableMarket.Or(0) != 250 || snap.Growth.Or(0) != 10 {
		t.Fatalf("expected wikipedia figure with default growth, got %v %v %v", snap.TotalMarket, snap.AddressableMarket, snap.Growth)
	}
	want := analysis.FallbackCompetitors(sub.Solution, sub.Industry)
	if len(snap.Competitors) != len(want) || snap.Competitors[0].Name != want[0].Name {
		t.Fatalf("expected fallback competitors, got %+v", snap.Competitors)
	}
	v, _ := snap.Validation.Get()
	if v.SearchTrends != "Moderate interest" || v.DiscussionActivity != "Limited discussion" {
		t.Fatalf("expected default validation, got %+v", v)
	}
	ins, _ := snap.Insights.Get()
	if strings.Join(ins.Challenges, ",") != "Market competition,Customer acquisition" {
		t.Fatalf("expected default insights, got %+v", ins)
	}
	if snap.News == nil || len(snap.News) != 0 {
		t.Fatalf("expected empty news, got %+v", snap.News)
	}
	if atomic.LoadInt32(&up.newsCalls) != 0 {
		t.Fatal("news must not be fetched without a key")
	}
}

func TestBuildTimeoutIsPerField(t *testing.T) {
	up := &upstream{ddgHang: true}
	srv := httptest.NewServer(up.handler(t))
	defer srv.Close()

	b := newTestBuilder(srv, func(c *Config) { c.Timeout = 50 * time.Millisecond })
	start := time.Now()
	snap := b.Build(context.Background(), dogWalkerSubmission())
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("build took %s; fetch timeout not applied", elapsed)
	}
	if snap.TotalMarket.Or(0) != 5200 {
		t.Fatalf("market size should not be affected by a slow search: %v", snap.TotalMarket)
	}
	if snap.Competitors[0].Name != "Microsoft" && snap.Competitors[0].Name != "Salesforce" {
		t.Fatalf("expected catalogue competitors, got %+v", snap.Competitors)
	}
}

func TestBuildCachesResponses(t *testing.T) {
	up := &upstream{}
	srv := httptest.NewServer(up.handler(t))
	defer srv.Close()

	b := newTestBuilder(srv, func(c *Config) { c.CacheTTL = time.Minute })
	b.Build(context.Background(), dogWalkerSubmission())
	first := atomic.LoadInt32(&up.ddgCalls)
	b.Build(context.Background(), dogWalkerSubmission())
	if got := atomic.LoadInt32(&up.ddgCalls); got != first {
		t.Fatalf("expected cached search responses, calls went %d -> %d", first, got)
	}
}
