// Package server exposes the analysis pipeline, chat and history over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime/debug"
	"time"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/joelkehle/ideaforge/internal/analysis"
	"github.com/joelkehle/ideaforge/internal/chat"
	"github.com/joelkehle/ideaforge/internal/llm"
	"github.com/joelkehle/ideaforge/internal/pipeline"
	"github.com/joelkehle/ideaforge/internal/store"
)

const maxBodyBytes = 1 << 20

// ReportPDFRenderer turns a stored report into a PDF document.
type ReportPDFRenderer interface {
	Render(ctx context.Context, report analysis.Report) ([]byte, error)
}

type Options struct {
	Analyzer *pipeline.Analyzer
	Chat     *chat.Service
	Store    store.Store
	Registry *llm.Registry
	Renderer ReportPDFRenderer
	WebDir   string
	Logger   *zap.Logger
	// Sentry installs the sentry middleware. sentry.Init must already have run.
	Sentry bool
	Debug  bool
}

type Server struct {
	analyzer *pipeline.Analyzer
	chat     *chat.Service
	store    store.Store
	registry *llm.Registry
	renderer ReportPDFRenderer
	webDir   string
	logger   *zap.Logger
	engine   *gin.Engine
}

func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Store == nil {
		opts.Store = store.NewMemory(store.Options{})
	}
	if opts.Analyzer == nil {
		opts.Analyzer = pipeline.NewAnalyzer(nil, nil, opts.Logger)
	}
	if opts.Chat == nil {
		opts.Chat = chat.NewService(opts.Registry, opts.Logger)
	}
	if !opts.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	s := &Server{
		analyzer: opts.Analyzer,
		chat:     opts.Chat,
		store:    opts.Store,
		registry: opts.Registry,
		renderer: opts.Renderer,
		webDir:   opts.WebDir,
		logger:   opts.Logger,
	}

	r := gin.New()
	r.Use(s.recovery())
	if opts.Sentry {
		r.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	r.Use(corsMiddleware(), s.requestLogger())
	s.routes(r)
	s.engine = r
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes(r *gin.Engine) {
	r.GET("/healthz", s.handleHealth)

	r.POST("/analyze", s.handleAnalyze)
	r.POST("/chat", s.handleChat)
	r.POST("/compare", s.handleCompare)
	api := r.Group("/api")
	{
		api.POST("/analyze", s.handleAnalyze)
		api.POST("/chat", s.handleChat)
	}

	history := r.Group("/history")
	{
		history.GET("", s.handleHistoryList)
		history.DELETE("", s.handleHistoryClear)
		history.GET("/latest", s.handleHistoryLatest)
		history.GET("/export.xlsx", s.handleHistoryExport)
		history.GET("/:id", s.handleHistoryGet)
		history.DELETE("/:id", s.handleHistoryDelete)
	}
	r.GET("/report-pdf/:id", s.handleReportPDF)

	if s.webDir != "" {
		files := http.FileServer(http.Dir(s.webDir))
		r.NoRoute(func(c *gin.Context) {
			if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
				writeError(c, http.StatusNotFound, "not found", "")
				return
			}
			c.Header("Cache-Control", "no-store")
			files.ServeHTTP(c.Writer, c.Request)
		})
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	s.logger.Info("server shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("http panic_recovered", zap.Any("panic", r), zap.String("path", c.Request.URL.Path), zap.String("stack", string(debug.Stack())))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			}
		}()
		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Int64("elapsed_ms", time.Since(start).Milliseconds()),
		)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if origin := c.Request.Header.Get("Origin"); origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Headers", "Content-Type, Accept, Origin, Cache-Control, X-Requested-With")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func writeError(c *gin.Context, status int, msg, hint string) {
	body := gin.H{"error": msg}
	if hint != "" {
		body["hint"] = hint
	}
	c.AbortWithStatusJSON(status, body)
}

// capture reports err to sentry when the middleware is installed.
func capture(c *gin.Context, err error) {
	if hub := sentrygin.GetHubFromContext(c); hub != nil {
		hub.CaptureException(err)
	}
}

func readBody(c *gin.Context) ([]byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	return c.GetRawData()
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"providers": s.registry.Configured(),
		"pdf":       s.renderer != nil,
	})
}

type analyzeResponse struct {
	analysis.Analysis
	ID         string                     `json:"id,omitempty"`
	Comparison analysis.ComparisonMetrics `json:"comparison"`
	Attempts   []pipeline.Attempt         `json:"attempts"`
}

func (s *Server) handleAnalyze(c *gin.Context) {
	var sub analysis.Submission
	if err := c.ShouldBindJSON(&sub); err != nil {
		writeError(c, http.StatusBadRequest, "Invalid request body", "Send the idea as a JSON object")
		return
	}
	res, err := s.analyzer.Analyze(c.Request.Context(), sub)
	if err != nil {
		var ve *analysis.ValidationError
		if errors.As(err, &ve) {
			writeError(c, http.StatusBadRequest, "Missing or invalid field: "+ve.Field, ve.Hint)
			return
		}
		s.logger.Error("analyze failed", zap.Error(err))
		capture(c, err)
		writeError(c, http.StatusInternalServerError, "Failed to analyze startup idea", "")
		return
	}

	out := analyzeResponse{Analysis: res.Analysis, Comparison: res.Comparison, Attempts: res.Attempts}
	entry, err := s.store.Save(c.Request.Context(), res.Submission, res.Analysis, &res.Snapshot)
	if err != nil {
		// Save failures do not fail the request.
		s.logger.Warn("history save_failed", zap.Error(err))
		capture(c, err)
	} else {
		out.ID = entry.ID
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleChat(c *gin.Context) {
	raw, err := readBody(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, "Invalid messages format", "")
		return
	}
	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	err = s.chat.Stream(c.Request.Context(), raw, c.Writer)
	if err == nil {
		return
	}
	if re, ok := chat.IsRequestError(err); ok && !c.Writer.Written() {
		c.Writer.Header().Del("Content-Type")
		c.JSON(re.Status, re.Body)
		return
	}
	// Output already reached the client.
	s.logger.Warn("chat stream_aborted", zap.Error(err))
	capture(c, err)
}

type compareRequest struct {
	ID             string              `json:"id"`
	FormData       analysis.Submission `json:"formData"`
	AnalysisResult json.RawMessage     `json:"analysisResult"`
}

func (s *Server) handleCompare(c *gin.Context) {
	var req compareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "Invalid request body", "Send {id} or {formData, analysisResult}")
		return
	}

	var (
		sub    analysis.Submission
		a      analysis.Analysis
		scores analysis.PartialScores
		snap   analysis.MarketSnapshot
	)
	switch {
	case req.ID != "":
		entry, err := s.store.Get(c.Request.Context(), req.ID)
		if err != nil {
			s.historyError(c, err)
			return
		}
		sub, a = entry.FormData, entry.AnalysisResult
		scores = a.ScoreVector.Partial()
		snap = entrySnapshot(entry)
	case len(req.AnalysisResult) > 0:
		// Axes the client left out stay absent instead of reading as zero.
		var err error
		a, scores, err = analysis.DecodeAnalysis(req.AnalysisResult)
		if err != nil {
			writeError(c, http.StatusBadRequest, "Invalid analysisResult", "")
			return
		}
		sub = req.FormData
		snap = analysis.SnapshotFromEcho(a.RealWorldData)
	default:
		writeError(c, http.StatusBadRequest, "Nothing to compare", "Send {id} or {formData, analysisResult}")
		return
	}

	c.JSON(http.StatusOK, analysis.Compare(sub.Normalize(), snap, scores))
}

func (s *Server) historyError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(c, http.StatusNotFound, "History entry not found", "")
		return
	}
	s.logger.Error("history failed", zap.Error(err))
	capture(c, err)
	writeError(c, http.StatusInternalServerError, "History unavailable", "")
}

func (s *Server) handleHistoryList(c *gin.Context) {
	entries, err := s.store.List(c.Request.Context())
	if err != nil {
		s.historyError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (s *Server) handleHistoryLatest(c *gin.Context) {
	e, err := s.store.Latest(c.Request.Context())
	if err != nil {
		s.historyError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (s *Server) handleHistoryGet(c *gin.Context) {
	e, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.historyError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (s *Server) handleHistoryDelete(c *gin.Context) {
	if err := s.store.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.historyError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id")})
}

func (s *Server) handleHistoryClear(c *gin.Context) {
	if err := s.store.Clear(c.Request.Context()); err != nil {
		s.historyError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleared": true})
}

func (s *Server) handleReportPDF(c *gin.Context) {
	entry, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.historyError(c, err)
		return
	}
	if s.renderer == nil {
		writeError(c, http.StatusServiceUnavailable, "PDF export unavailable", "Install Chromium to enable PDF export")
		return
	}
	report := ReportFromEntry(entry)
	pdf, err := s.renderer.Render(c.Request.Context(), report)
	if err != nil {
		if errors.Is(err, ErrRendererUnavailable) {
			writeError(c, http.StatusServiceUnavailable, "PDF export unavailable", "Install Chromium to enable PDF export")
			return
		}
		s.logger.Error("pdf render_failed", zap.String("id", entry.ID), zap.Error(err))
		capture(c, err)
		writeError(c, http.StatusInternalServerError, "Failed to render PDF", "")
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+reportFilename(entry)+`.pdf"`)
	c.Data(http.StatusOK, "application/pdf", pdf)
}

// entrySnapshot returns the market data an entry was scored against. Entries
// saved without one fall back to parsing the report's echo.
func entrySnapshot(e store.Entry) analysis.MarketSnapshot {
	if e.Snapshot != nil {
		return *e.Snapshot
	}
	return analysis.SnapshotFromEcho(e.AnalysisResult.RealWorldData)
}

// ReportFromEntry rebuilds the document view of a stored entry, including
// comparison metrics recomputed from its market snapshot.
func ReportFromEntry(e store.Entry) analysis.Report {
	snap := entrySnapshot(e)
	return analysis.Report{
		ID:         e.ID,
		CreatedAt:  e.Timestamp,
		Submission: e.FormData,
		Analysis:   e.AnalysisResult,
		Comparison: analysis.Compare(e.FormData, snap, e.AnalysisResult.ScoreVector.Partial()),
	}
}
