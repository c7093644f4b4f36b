package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"

	"github.com/joelkehle/ideaforge/internal/analysis"
	"github.com/joelkehle/ideaforge/internal/chat"
	"github.com/joelkehle/ideaforge/internal/llm"
	"github.com/joelkehle/ideaforge/internal/pipeline"
	"github.com/joelkehle/ideaforge/internal/store"
)

type fixedSnapshots struct{ snap analysis.MarketSnapshot }

func (f fixedSnapshots) Build(context.Context, analysis.Submission) analysis.MarketSnapshot {
	return f.snap
}

type fakeRenderer struct {
	got analysis.Report
	err error
}

func (f *fakeRenderer) Render(_ context.Context, r analysis.Report) ([]byte, error) {
	f.got = r
	if f.err != nil {
		return nil, f.err
	}
	return []byte("%PDF-1.4 fake"), nil
}

type fakeProvider struct {
	name   analysis.Source
	tokens []string
	err    error
}

func (f *fakeProvider) Name() analysis.Source { return f.name }

func (f *fakeProvider) GenerateJSON(context.Context, string, string) (string, error) {
	return "", f.err
}

func (f *fakeProvider) StreamChat(_ context.Context, _ string, _ []llm.Message, onToken func(string) error) error {
	if f.err != nil {
		return f.err
	}
	for _, tok := range f.tokens {
		if err := onToken(tok); err != nil {
			return err
		}
	}
	return nil
}

func validIdea() analysis.Submission {
	return analysis.Submission{
		StartupName:  "MealMate",
		Description:  "Meal planning for busy families",
		Problem:      "Families waste food and time deciding what to cook",
		Solution:     "An AI app that plans weekly meals and orders groceries",
		TargetMarket: "Busy parents",
		Industry:     "Food & Beverage",
		Stage:        analysis.StageIdea,
	}
}

func mockAnalysis() analysis.Analysis {
	return analysis.MockAnalysis(validIdea(), analysis.MarketSnapshot{})
}

func newTestServer(t *testing.T, opts Options) (*Server, store.Store) {
	t.Helper()
	if opts.Store == nil {
		opts.Store = store.NewMemory(store.Options{})
	}
	return New(opts), opts.Store
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestAnalyzeReturnsReportAndSavesHistory(t *testing.T) {
	s, st := newTestServer(t, Options{})

	rec := do(t, s, http.MethodPost, "/analyze", validIdea())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	got := decode[map[string]any](t, rec)
	id, _ := got["id"].(string)
	if id == "" {
		t.Fatalf("expected id in response: %v", got)
	}
	if got["source"] != "mock" {
		t.Fatalf("expected mock source without providers, got %v", got["source"])
	}
	if _, ok := got["overallScore"].(float64); !ok {
		t.Fatalf("expected flattened score vector, got %v", got)
	}
	if _, ok := got["comparison"].(map[string]any); !ok {
		t.Fatalf("expected comparison metrics, got %v", got["comparison"])
	}

	latest, err := st.Latest(context.Background())
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.ID != id {
		t.Fatalf("expected latest %s, got %s", id, latest.ID)
	}
}

func TestAnalyzeAPIAlias(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	rec := do(t, s, http.MethodPost, "/api/analyze", validIdea())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAnalyzeRejectsInvalidSubmission(t *testing.T) {
	s, st := newTestServer(t, Options{})

	sub := validIdea()
	sub.Problem = "   "
	rec := do(t, s, http.MethodPost, "/analyze", sub)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	body := decode[map[string]string](t, rec)
	if !strings.Contains(body["error"], "problem") || body["hint"] == "" {
		t.Fatalf("expected error and hint for problem, got %v", body)
	}

	rec = do(t, s, http.MethodPost, "/analyze", "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", rec.Code)
	}
	if entries, _ := st.List(context.Background()); len(entries) != 0 {
		t.Fatalf("expected nothing saved, got %d", len(entries))
	}
}

func TestChatWithoutProvidersStreamsSetupMessage(t *testing.T) {
	s, _ := newTestServer(t, Options{Registry: llm.NewRegistryWith()})

	rec := do(t, s, http.MethodPost, "/chat", `{"messages":[{"role":"user","content":"hi"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/plain; charset=utf-8" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if rec.Body.String() != chat.SetupMessage {
		t.Fatalf("expected setup message, got %q", rec.Body.String())
	}
}

func TestChatStreamsProviderTokens(t *testing.T) {
	reg := llm.NewRegistryWith(&fakeProvider{name: analysis.SourceOpenAI, tokens: []string{"Hello", ", ", "founder"}})
	s, _ := newTestServer(t, Options{Registry: reg})

	rec := do(t, s, http.MethodPost, "/api/chat", `[{"role":"user","content":"hi"}]`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "Hello, founder" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestChatErrorsAreJSON(t *testing.T) {
	s, _ := newTestServer(t, Options{Registry: llm.NewRegistryWith()})
	rec := do(t, s, http.MethodPost, "/chat", `{"messages":[]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("expected json error, got %q", ct)
	}

	reg := llm.NewRegistryWith(&fakeProvider{name: analysis.SourceAnthropic, err: errors.New("boom")})
	s, _ = newTestServer(t, Options{Registry: reg})
	rec = do(t, s, http.MethodPost, "/chat", `{"messages":[{"role":"user","content":"hi"}]}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	body := decode[chat.ErrorBody](t, rec)
	if body.Error != "AI provider error" || !strings.Contains(body.Hint, "anthropic") {
		t.Fatalf("unexpected error body %+v", body)
	}
}

func TestHistoryRoutes(t *testing.T) {
	st := store.NewMemory(store.Options{})
	s, _ := newTestServer(t, Options{Store: st})
	ctx := context.Background()

	first, _ := st.Save(ctx, validIdea(), mockAnalysis(), nil)
	second, _ := st.Save(ctx, validIdea(), mockAnalysis(), nil)

	rec := do(t, s, http.MethodGet, "/history", nil)
	list := decode[[]store.Entry](t, rec)
	if len(list) != 2 || list[0].ID != first.ID || list[1].ID != second.ID {
		t.Fatalf("expected oldest-first list, got %+v", list)
	}

	rec = do(t, s, http.MethodGet, "/history/"+first.ID, nil)
	if rec.Code != http.StatusOK || decode[store.Entry](t, rec).ID != first.ID {
		t.Fatalf("get by id failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, s, http.MethodDelete, "/history/"+second.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete failed: %d", rec.Code)
	}
	rec = do(t, s, http.MethodGet, "/history/latest", nil)
	if decode[store.Entry](t, rec).ID != first.ID {
		t.Fatalf("expected latest to fall back to %s", first.ID)
	}

	rec = do(t, s, http.MethodDelete, "/history/"+second.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 deleting twice, got %d", rec.Code)
	}

	rec = do(t, s, http.MethodDelete, "/history", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("clear failed: %d", rec.Code)
	}
	rec = do(t, s, http.MethodGet, "/history/latest", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after clear, got %d", rec.Code)
	}
}

func TestHistoryExportWorkbook(t *testing.T) {
	st := store.NewMemory(store.Options{Now: func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }})
	s, _ := newTestServer(t, Options{Store: st})
	e, _ := st.Save(context.Background(), validIdea(), mockAnalysis(), nil)

	rec := do(t, s, http.MethodGet, "/history/export.xlsx", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(historySheet)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header plus one row, got %d", len(rows))
	}
	if rows[0][0] != "ID" || rows[1][0] != e.ID || rows[1][2] != "MealMate" {
		t.Fatalf("unexpected rows: %v", rows)
	}
	if rows[1][1] != "2026-03-01T12:00:00Z" {
		t.Fatalf("unexpected timestamp cell %q", rows[1][1])
	}
}

func TestReportPDF(t *testing.T) {
	st := store.NewMemory(store.Options{})
	e, _ := st.Save(context.Background(), validIdea(), mockAnalysis(), nil)

	s, _ := newTestServer(t, Options{Store: st})
	rec := do(t, s, http.MethodGet, "/report-pdf/"+e.ID, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without renderer, got %d", rec.Code)
	}

	r := &fakeRenderer{}
	s, _ = newTestServer(t, Options{Store: st, Renderer: r})
	rec = do(t, s, http.MethodGet, "/report-pdf/"+e.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "application/pdf" {
		t.Fatalf("unexpected content type %q", rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "ideaforge-mealmate-") {
		t.Fatalf("unexpected disposition %q", rec.Header().Get("Content-Disposition"))
	}
	if r.got.ID != e.ID || r.got.Comparison.OverallComparisonScore == 0 {
		t.Fatalf("renderer got incomplete report: %+v", r.got)
	}

	rec = do(t, s, http.MethodGet, "/report-pdf/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	s, _ = newTestServer(t, Options{Store: st, Renderer: &fakeRenderer{err: ErrRendererUnavailable}})
	rec = do(t, s, http.MethodGet, "/report-pdf/"+e.ID, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 from unavailable renderer, got %d", rec.Code)
	}
}

func TestCompareByIDAndPayload(t *testing.T) {
	st := store.NewMemory(store.Options{})
	a := mockAnalysis()
	e, _ := st.Save(context.Background(), validIdea(), a, nil)
	s, _ := newTestServer(t, Options{Store: st})

	rec := do(t, s, http.MethodPost, "/compare", map[string]string{"id": e.ID})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	byID := decode[analysis.ComparisonMetrics](t, rec)

	rec = do(t, s, http.MethodPost, "/compare", map[string]any{"formData": validIdea(), "analysisResult": a})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	byPayload := decode[analysis.ComparisonMetrics](t, rec)
	if byID.OverallComparisonScore != byPayload.OverallComparisonScore {
		t.Fatalf("expected identical metrics, got %d vs %d", byID.OverallComparisonScore, byPayload.OverallComparisonScore)
	}

	rec = do(t, s, http.MethodPost, "/compare", map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty request, got %d", rec.Code)
	}
	rec = do(t, s, http.MethodPost, "/compare", map[string]string{"id": "missing"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = do(t, s, http.MethodPost, "/compare", `{"formData":{"stage":"idea"},"analysisResult":{"marketPotential":70.5,"competition":39.5}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected fractional scores to be accepted, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestStoredComparisonMatchesAnalyzeResponse(t *testing.T) {
	snaps := map[string]analysis.MarketSnapshot{
		"threshold values": {AddressableMarket: analysis.Some(100.04), Growth: analysis.Some(15.04), TotalMarket: analysis.Some(900.0)},
		"empty snapshot":   {},
	}
	for name, snap := range snaps {
		t.Run(name, func(t *testing.T) {
			r := &fakeRenderer{}
			s, st := newTestServer(t, Options{
				Analyzer: pipeline.NewAnalyzer(fixedSnapshots{snap: snap}, nil, nil),
				Renderer: r,
			})
			rec := do(t, s, http.MethodPost, "/analyze", validIdea())
			if rec.Code != http.StatusOK {
				t.Fatalf("analyze: %d %s", rec.Code, rec.Body.String())
			}
			resp := decode[struct {
				ID         string                     `json:"id"`
				Comparison analysis.ComparisonMetrics `json:"comparison"`
			}](t, rec)

			rec = do(t, s, http.MethodPost, "/compare", map[string]string{"id": resp.ID})
			byID := decode[analysis.ComparisonMetrics](t, rec)
			if byID.MarketAlignmentScore != resp.Comparison.MarketAlignmentScore ||
				byID.CompetitionFitScore != resp.Comparison.CompetitionFitScore ||
				byID.TechnicalFeasibilityScore != resp.Comparison.TechnicalFeasibilityScore ||
				byID.MarketValidationScore != resp.Comparison.MarketValidationScore ||
				byID.OverallComparisonScore != resp.Comparison.OverallComparisonScore {
				t.Fatalf("stored comparison %+v differs from analyze response %+v", byID, resp.Comparison)
			}

			if rec := do(t, s, http.MethodGet, "/report-pdf/"+resp.ID, nil); rec.Code != http.StatusOK {
				t.Fatalf("report: %d", rec.Code)
			}
			if r.got.Comparison.OverallComparisonScore != resp.Comparison.OverallComparisonScore {
				t.Fatalf("report comparison %+v differs from analyze response %+v", r.got.Comparison, resp.Comparison)
			}
			if e, _ := st.Get(context.Background(), resp.ID); e.Snapshot == nil {
				t.Fatal("expected the snapshot to be saved with the entry")
			}
		})
	}
}

func TestHealthListsProviders(t *testing.T) {
	reg := llm.NewRegistryWith(&fakeProvider{name: analysis.SourceGemini})
	s, _ := newTestServer(t, Options{Registry: reg})
	rec := do(t, s, http.MethodGet, "/healthz", nil)
	body := decode[struct {
		Status    string   `json:"status"`
		Providers []string `json:"providers"`
	}](t, rec)
	if body.Status != "ok" || len(body.Providers) != 1 || body.Providers[0] != "gemini" {
		t.Fatalf("unexpected health body %+v", body)
	}
}

func TestRecoveryReturnsJSON(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	s.engine.GET("/boom", func(*gin.Context) { panic("boom") })

	rec := do(t, s, http.MethodGet, "/boom", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if body := decode[map[string]string](t, rec); body["error"] != "internal server error" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestStaticFilesFromWebDir(t *testing.T) {
	dir := t.TempDir()
	if err := writeFile(dir, "index.html", "<h1>IdeaForge</h1>"); err != nil {
		t.Fatalf("write: %v", err)
	}
	s, _ := newTestServer(t, Options{WebDir: dir})
	rec := do(t, s, http.MethodGet, "/", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "IdeaForge") {
		t.Fatalf("expected index, got %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("expected no-store, got %q", rec.Header().Get("Cache-Control"))
	}
}
