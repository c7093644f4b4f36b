package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/joelkehle/ideaforge/internal/analysis"
)

const (
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultGeminiModel   = "gemini-1.5-flash"

	// modelDiscoveryBackoff is how long a failed model listing is remembered.
	modelDiscoveryBackoff = time.Minute
)

// httpStatusError is a non-2xx reply from a provider reached over plain HTTP.
type httpStatusError struct {
	Code    int
	Status  string
	Message string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("status %d %s: %s", e.Code, e.Status, e.Message)
}

func isModelNotFound(err error) bool {
	var se *httpStatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == http.StatusNotFound || se.Status == "NOT_FOUND"
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig map[string]any  `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (r geminiResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

// GeminiCaller calls the Generative Language REST API directly.
type GeminiCaller struct {
	http *http.Client
	cfg  ProviderConfig

	discover singleflight.Group
	mu       sync.Mutex
	models   []string
	failedAt time.Time
}

func NewGeminiCaller(cfg ProviderConfig) (*GeminiCaller, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGeminiBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &GeminiCaller{http: hc, cfg: cfg}, nil
}

func (g *GeminiCaller) Name() analysis.Source { return analysis.SourceGemini }

func (g *GeminiCaller) GenerateJSON(ctx context.Context, system, prompt string) (string, error) {
	ctx, cancel := withTimeout(ctx, g.cfg)
	defer cancel()
	body := geminiRequest{
		Contents: foldSystem(system, []Message{{Role: RoleUser, Content: prompt}}),
		GenerationConfig: map[string]any{
			"temperature":      g.cfg.temperature(),
			"responseMimeType": "application/json",
		},
	}
	resp, err := g.post(ctx, g.cfg.Model, "generateContent", nil, body)
	if err != nil {
		return "", wrapErr(g.Name(), err)
	}
	defer resp.Body.Close()
	var out geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", wrapErr(g.Name(), fmt.Errorf("decode response: %w", err))
	}
	return StripCodeFences(out.text()), nil
}

// StreamChat tries each available model in turn, moving on only when a
// model is reported missing.
func (g *GeminiCaller) StreamChat(ctx context.Context, system string, messages []Message, onToken func(string) error) error {
	ctx, cancel := withTimeout(ctx, g.cfg)
	defer cancel()
	body := geminiRequest{
		Contents:         foldSystem(system, messages),
		GenerationConfig: map[string]any{"temperature": g.cfg.temperature()},
	}
	var lastErr error
	for _, model := range g.candidateModels(ctx) {
		resp, err := g.post(ctx, model, "streamGenerateContent", url.Values{"alt": {"sse"}}, body)
		if err != nil {
			if isModelNotFound(err) {
				lastErr = err
				continue
			}
			return wrapErr(g.Name(), err)
		}
		err = readSSE(resp.Body, func(data []byte) error {
			var chunk geminiResponse
			if err := json.Unmarshal(data, &chunk); err != nil {
				return fmt.Errorf("decode stream chunk: %w", err)
			}
			if t := chunk.text(); t != "" {
				return onToken(t)
			}
			return nil
		})
		resp.Body.Close()
		return err
	}
	if lastErr == nil {
		lastErr = &httpStatusError{Code: http.StatusNotFound, Status: "NOT_FOUND", Message: "no gemini model available"}
	}
	return wrapErr(g.Name(), lastErr)
}

func (g *GeminiCaller) post(ctx context.Context, model, method string, query url.Values, body geminiRequest) (*http.Response, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("%s/models/%s:%s", g.cfg.BaseURL, url.PathEscape(model), method)
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.cfg.APIKey)
	resp, err := g.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, readStatusError(resp)
	}
	return resp, nil
}

// candidateModels returns the configured model followed by any other
// generation-capable gemini models the key can see. Concurrent callers share
// one listing request; a failed listing is not retried for a minute.
func (g *GeminiCaller) candidateModels(ctx context.Context) []string {
	configured := []string{g.cfg.Model}
	if models, ok := g.cachedModels(); ok {
		return models
	}
	v, err, _ := g.discover.Do("models", func() (any, error) {
		// A listing that finished while this caller waited counts too.
		if models, ok := g.cachedModels(); ok {
			return models, nil
		}
		discovered, err := g.listModels(ctx)
		g.mu.Lock()
		defer g.mu.Unlock()
		if err != nil {
			g.failedAt = time.Now()
			return nil, err
		}
		out := configured
		for _, m := range discovered {
			if m != g.cfg.Model {
				out = append(out, m)
			}
		}
		g.models, g.failedAt = out, time.Time{}
		return out, nil
	})
	if err != nil {
		return configured
	}
	return v.([]string)
}

// cachedModels reports the discovered list, or just the configured model
// while a recent listing failure is remembered.
func (g *GeminiCaller) cachedModels() ([]string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.models != nil {
		return g.models, true
	}
	if !g.failedAt.IsZero() && time.Since(g.failedAt) < modelDiscoveryBackoff {
		return []string{g.cfg.Model}, true
	}
	return nil, false
}

func (g *GeminiCaller) listModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.BaseURL+"/models", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-goog-api-key", g.cfg.APIKey)
	resp, err := g.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, readStatusError(resp)
	}
	var payload struct {
		Models []struct {
			Name                       string   `json:"name"`
			SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	var names []string
	for _, m := range payload.Models {
		name := strings.TrimPrefix(m.Name, "models/")
		if !strings.Contains(name, "gemini") || strings.Contains(name, "embedding") {
			continue
		}
		for _, method := range m.SupportedGenerationMethods {
			if method == "generateContent" || method == "streamGenerateContent" {
				names = append(names, name)
				break
			}
		}
	}
	return names, nil
}

func readStatusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var payload struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	se := &httpStatusError{Code: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	if json.Unmarshal(raw, &payload) == nil && payload.Error.Message != "" {
		se.Message = payload.Error.Message
		se.Status = payload.Error.Status
	}
	return se
}

// foldSystem merges the system prompt into the first user turn, since the
// chat payload has no separate system role.
func foldSystem(system string, messages []Message) []geminiContent {
	out := make([]geminiContent, 0, len(messages)+1)
	folded := system == ""
	if !folded && (len(messages) == 0 || messages[0].Role != RoleUser) {
		out = append(out, geminiContent{Role: "user", Parts: []geminiPart{{Text: system}}})
		folded = true
	}
	for _, m := range messages {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		text := m.Content
		if !folded && role == "user" {
			text = system + "\n\n---\n\nUser: " + text
			folded = true
		}
		out = append(out, geminiContent{Role: role, Parts: []geminiPart{{Text: text}}})
	}
	return out
}

// readSSE invokes fn with the payload of every "data:" line.
func readSSE(r io.Reader, fn func([]byte) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), 4<<20)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if !bytes.HasPrefix(line, []byte("data:")) {
			continue
		}
		data := bytes.TrimSpace(line[len("data:"):])
		if len(data) == 0 || string(data) == "[DONE]" {
			continue
		}
		if err := fn(data); err != nil {
			return err
		}
	}
	return sc.Err()
}
