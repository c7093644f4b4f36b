// Package marketdata gathers the public market signals that feed an idea
// analysis: market size, competitors, validation, industry insights,
// funding and technical feasibility.
package marketdata

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/joelkehle/ideaforge/internal/analysis"
)

const (
	DefaultTimeout       = 4 * time.Second
	DefaultCacheTTL      = 15 * time.Minute
	DefaultRatePerSecond = 2.0
	DefaultUserAgent     = "IdeaForge/1.0 (+https://github.com/joelkehle/ideaforge)"
)

type Config struct {
	WikipediaBaseURL  string
	DuckDuckGoBaseURL string
	NewsAPIBaseURL    string
	NewsAPIKey        string
	// Timeout bounds each individual fetch, not the whole snapshot.
	Timeout  time.Duration
	CacheTTL time.Duration
	// RatePerSecond limits requests per upstream host. Negative disables it.
	RatePerSecond float64
	UserAgent     string
	HTTPClient    *http.Client
	Logger        *zap.Logger
	Now           func() time.Time
}

// Builder assembles a MarketSnapshot by fanning out one fetch per field.
// Every field degrades to its own default; Build never fails.
type Builder struct {
	cfg    Config
	client *jsonClient
	log    *zap.Logger
}

func NewBuilder(cfg Config) *Builder {
	if cfg.WikipediaBaseURL == "" {
		cfg.WikipediaBaseURL = DefaultWikipediaBaseURL
	}
	if cfg.DuckDuckGoBaseURL == "" {
		cfg.DuckDuckGoBaseURL = DefaultDuckDuckGoBaseURL
	}
	if cfg.NewsAPIBaseURL == "" {
		cfg.NewsAPIBaseURL = DefaultNewsAPIBaseURL
	}
	cfg.WikipediaBaseURL = strings.TrimRight(cfg.WikipediaBaseURL, "/")
	cfg.NewsAPIBaseURL = strings.TrimRight(cfg.NewsAPIBaseURL, "/")
	cfg.NewsAPIKey = strings.TrimSpace(cfg.NewsAPIKey)
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.CacheTTL < 0 {
		cfg.CacheTTL = 0
	}
	if cfg.RatePerSecond == 0 {
		cfg.RatePerSecond = DefaultRatePerSecond
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 2 * cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.L()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Builder{
		cfg:    cfg,
		client: newJSONClient(cfg.HTTPClient, cfg.CacheTTL, cfg.RatePerSecond, cfg.UserAgent),
		log:    cfg.Logger,
	}
}

var tracer = otel.Tracer("github.com/joelkehle/ideaforge/internal/marketdata")

// Build gathers the snapshot for a submission. Each fetch runs with its own
// timeout; a failed fetch is logged and replaced by that field's fallback.
func (b *Builder) Build(ctx context.Context, sub analysis.Submission) analysis.MarketSnapshot {
	ctx, span := tracer.Start(ctx, "marketdata.Build")
	defer span.End()

	var (
		snap        analysis.MarketSnapshot
		size        marketSize
		competitors []analysis.Competitor
		validation  analysis.MarketValidation
		insights    analysis.IndustryInsights
		news        []analysis.NewsItem
	)

	// Fetches report nil to the group; each failure is handled per field.
	var g errgroup.Group
	g.Go(func() error {
		var err error
		size, err = runFetch(ctx, b, "market_size", func(ctx context.Context) (marketSize, error) {
			return b.fetchMarketSize(ctx, sub.Industry, sub.Solution)
		})
		if err != nil {
			size = marketSize{total: defaultTotalMarket, addressable: fallbackAddressable, growth: defaultGrowth}
		}
		return nil
	})
	g.Go(func() error {
		var err error
		competitors, err = runFetch(ctx, b, "competitors", func(ctx context.Context) ([]analysis.Competitor, error) {
			return b.fetchCompetitors(ctx, sub.Solution, sub.Industry)
		})
		if err != nil {
			competitors = analysis.FallbackCompetitors(sub.Solution, sub.Industry)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		validation, err = runFetch(ctx, b, "validation", func(ctx context.Context) (analysis.MarketValidation, error) {
			return b.fetchValidation(ctx, sub.Problem)
		})
		if err != nil {
			validation = defaultValidation()
		}
		return nil
	})
	g.Go(func() error {
		// A failed summary still yields the curated table rows.
		insights, _ = runFetch(ctx, b, "insights", func(ctx context.Context) (analysis.IndustryInsights, error) {
			return b.fetchInsights(ctx, sub.Industry, sub.Solution)
		})
		return nil
	})
	if b.cfg.NewsAPIKey != "" {
		g.Go(func() error {
			news, _ = runFetch(ctx, b, "news", func(ctx context.Context) ([]analysis.NewsItem, error) {
				return b.fetchNews(ctx, sub)
			})
			return nil
		})
	}
	_ = g.Wait()

	snap.TotalMarket = analysis.Some(size.total)
	snap.AddressableMarket = analysis.Some(size.addressable)
	snap.Growth = analysis.Some(size.growth)
	snap.Competitors = competitors
	snap.Validation = analysis.Some(validation)
	snap.Insights = analysis.Some(insights)
	snap.Funding = analysis.Some(FundingLandscape(sub.Industry, sub.Stage, b.cfg.Now()))
	snap.Technical = analysis.Some(TechnicalFeasibility(sub.Solution, sub.Industry))
	snap.News = news
	if snap.News == nil {
		snap.News = []analysis.NewsItem{}
	}
	span.SetAttributes(attribute.Int("competitors", len(snap.Competitors)))
	return snap
}

// runFetch wraps one fetch in a span and its own deadline and logs failures.
func runFetch[T any](ctx context.Context, b *Builder, field string, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := tracer.Start(ctx, "marketdata.fetch."+field)
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	start := time.Now()
	v, err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		b.log.Warn("marketdata fetch_failed",
			zap.String("field", field),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return v, err
	}
	b.log.Debug("marketdata fetch_ok", zap.String("field", field), zap.Duration("elapsed", time.Since(start)))
	return v, nil
}
