package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/joelkehle/ideaforge/internal/chat"
	"github.com/joelkehle/ideaforge/internal/config"
	"github.com/joelkehle/ideaforge/internal/llm"
	"github.com/joelkehle/ideaforge/internal/marketdata"
	"github.com/joelkehle/ideaforge/internal/pipeline"
	"github.com/joelkehle/ideaforge/internal/server"
	"github.com/joelkehle/ideaforge/internal/store"
	"github.com/joelkehle/ideaforge/internal/telemetry"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve starts the HTTP API: /analyze, /chat, /compare, /history and
/report-pdf. Providers without an API key are skipped; with none configured
analysis uses the offline engine and chat replies with setup instructions.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}

// app holds everything built from configuration.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *llm.Registry
	analyzer *pipeline.Analyzer
	store    store.Store
	shutdown telemetry.ShutdownFunc
}

func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger, err := telemetry.NewLogger(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	shutdown, err := telemetry.Setup(ctx, telemetry.Options{
		TracingEndpoint: cfg.Tracing.Endpoint,
		SentryDSN:       cfg.Sentry.DSN,
		Environment:     cfg.Sentry.Environment,
		Version:         Version,
	}, logger)
	if err != nil {
		return nil, err
	}
	registry, err := llm.NewRegistry(cfg.LLMClientConfig(), logger)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(cfg.Store.Backend, cfg.Store.Path, cfg.StoreOptions())
	if err != nil {
		return nil, err
	}
	mdCfg := cfg.MarketDataConfig()
	mdCfg.Logger = logger
	analyzer := pipeline.NewAnalyzer(marketdata.NewBuilder(mdCfg), pipeline.PrimaryCaller(registry), logger)
	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		analyzer: analyzer,
		store:    st,
		shutdown: shutdown,
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("store close_failed", zap.Error(err))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.shutdown(ctx); err != nil {
		a.logger.Warn("telemetry shutdown_failed", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	defer a.Close()

	var renderer server.ReportPDFRenderer
	pdf := server.NewChromiumPDFRenderer(cfg.Server.WebDir, cfg.Server.ChromePath)
	if pdf.Available() {
		renderer = pdf
	} else {
		a.logger.Warn("pdf renderer_unavailable", zap.String("hint", "install chromium or set server.chrome_path"))
	}

	providers := a.registry.Configured()
	if len(providers) == 0 {
		a.logger.Warn("llm no_providers", zap.String("hint", "set GOOGLE_GENERATIVE_AI_API_KEY, OPENAI_API_KEY, ANTHROPIC_API_KEY or AI_GATEWAY_API_KEY"))
	}

	srv := server.New(server.Options{
		Analyzer: a.analyzer,
		Chat:     chat.NewService(a.registry, a.logger),
		Store:    a.store,
		Registry: a.registry,
		Renderer: renderer,
		WebDir:   cfg.Server.WebDir,
		Logger:   a.logger,
		Sentry:   cfg.Sentry.DSN != "",
		Debug:    cfg.Log.Level == "debug",
	})
	a.logger.Info("serve starting",
		zap.String("addr", cfg.Server.Addr),
		zap.String("store", cfg.Store.Backend),
		zap.Int("providers", len(providers)),
	)
	return srv.Run(ctx, cfg.Server.Addr)
}
