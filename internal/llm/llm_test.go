package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/sashabaranov/go-openai"

	"github.com/joelkehle/ideaforge/internal/analysis"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Class
	}{
		{"not configured", fmt.Errorf("wrap: %w", ErrNotConfigured), ClassAuth},
		{"deadline", context.DeadlineExceeded, ClassTimeout},
		{"openai 401", &openai.APIError{HTTPStatusCode: 401, Message: "bad key"}, ClassAuth},
		{"openai 429", &openai.APIError{HTTPStatusCode: 429}, ClassRateLimit},
		{"openai request 503", &openai.RequestError{HTTPStatusCode: 503, Err: errors.New("down")}, ClassServer},
		{"gemini 404", &httpStatusError{Code: 404, Status: "NOT_FOUND"}, ClassClient},
		{"gemini 403", &httpStatusError{Code: 403, Status: "PERMISSION_DENIED"}, ClassAuth},
		{"message api key", errors.New("API key not valid. Please pass a valid API key."), ClassAuth},
		{"message unauthenticated", errors.New("GatewayAuthenticationError: Unauthenticated request"), ClassAuth},
		{"message status", errors.New("upstream returned status code 502"), ClassServer},
		{"unknown", errors.New("boom"), ClassUnknown},
		{"provider error keeps class", &ProviderError{Provider: analysis.SourceOpenAI, Class: ClassTimeout, Err: errors.New("x")}, ClassTimeout},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.err); got != tc.want {
				t.Fatalf("Classify(%v) = %s, want %s", tc.err, got, tc.want)
			}
		})
	}
}

func TestWrapErrDoesNotDoubleWrap(t *testing.T) {
	inner := wrapErr(analysis.SourceGemini, &httpStatusError{Code: 500})
	outer := wrapErr(analysis.SourceOpenAI, inner)
	var pe *ProviderError
	if !errors.As(outer, &pe) || pe.Provider != analysis.SourceGemini || pe.Class != ClassServer {
		t.Fatalf("unexpected wrap: %#v", outer)
	}
}

func TestStripCodeFences(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\n{\"a\":1}```":       `{"a":1}`,
		"  {\"a\":1}  ":           `{"a":1}`,
	}
	for in, want := range cases {
		if got := StripCodeFences(in); got != want {
			t.Fatalf("StripCodeFences(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFoldSystem(t *testing.T) {
	got := foldSystem("be nice", []Message{{Role: RoleUser, Content: "hi"}, {Role: RoleAssistant, Content: "hello"}})
	if len(got) != 2 {
		t.Fatalf("expected 2 contents, got %d", len(got))
	}
	if got[0].Parts[0].Text != "be nice\n\n---\n\nUser: hi" || got[1].Role != "model" {
		t.Fatalf("unexpected fold: %+v", got)
	}

	got = foldSystem("be nice", []Message{{Role: RoleAssistant, Content: "welcome"}, {Role: RoleUser, Content: "hi"}})
	if len(got) != 3 || got[0].Role != "user" || got[0].Parts[0].Text != "be nice" || got[2].Parts[0].Text != "hi" {
		t.Fatalf("system should be its own leading user turn: %+v", got)
	}
}

func TestGeminiGenerateJSON(t *testing.T) {
	var gotBody geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gemini-1.5-flash:generateContent" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "g-key" {
			t.Errorf("missing api key header")
		}
		if r.URL.Query().Get("key") != "" {
			t.Errorf("key must not be sent in the query string")
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"`+"```json\\n{\\\"ok\\\":true}\\n```"+`"}]}}]}`)
	}))
	defer srv.Close()

	g, err := NewGeminiCaller(ProviderConfig{APIKey: "g-key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewGeminiCaller: %v", err)
	}
	out, err := g.GenerateJSON(context.Background(), "sys", "prompt")
	if err != nil {
		t.Fatalf("GenerateJSON: %v", err)
	}
	if out != `{"ok":true}` {
		t.Fatalf("got %q", out)
	}
	if gotBody.GenerationConfig["responseMimeType"] != "application/json" || gotBody.GenerationConfig["temperature"] != 0.9 {
		t.Fatalf("unexpected generation config: %v", gotBody.GenerationConfig)
	}
	if !strings.HasPrefix(gotBody.Contents[0].Parts[0].Text, "sys\n\n---\n\nUser: prompt") {
		t.Fatalf("system not folded: %+v", gotBody.Contents)
	}
}

func TestGeminiStreamFallsThroughMissingModels(t *testing.T) {
	var tried []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/models":
			_, _ = io.WriteString(w, `{"models":[
				{"name":"models/gemini-retired","supportedGenerationMethods":["generateContent"]},
				{"name":"models/text-embedding-004","supportedGenerationMethods":["embedContent"]},
				{"name":"models/gemini-embedding-001","supportedGenerationMethods":["generateContent"]},
				{"name":"models/gemini-counter","supportedGenerationMethods":["countTokens"]},
				{"name":"models/gemini-2.0-flash","supportedGenerationMethods":["generateContent","streamGenerateContent"]}
			]}`)
		case strings.HasSuffix(r.URL.Path, ":streamGenerateContent"):
			model := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/models/"), ":streamGenerateContent")
			tried = append(tried, model)
			if r.URL.Query().Get("alt") != "sse" {
				t.Errorf("stream must request sse")
			}
			if model != "gemini-2.0-flash" {
				w.WriteHeader(http.StatusNotFound)
				_, _ = io.WriteString(w, `{"error":{"code":404,"message":"model not found","status":"NOT_FOUND"}}`)
				return
			}
			_, _ = io.WriteString(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"Hel\"}]}}]}\n\n")
			_, _ = io.WriteString(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"lo\"}]}}]}\n\n")
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	g, err := NewGeminiCaller(ProviderConfig{APIKey: "g-key", BaseURL: srv.URL, Model: "gemini-1.5-flash"})
	if err != nil {
		t.Fatalf("NewGeminiCaller: %v", err)
	}
	var sb strings.Builder
	err = g.StreamChat(context.Background(), "sys", []Message{{Role: RoleUser, Content: "hi"}}, func(tok string) error {
		sb.WriteString(tok)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	if sb.String() != "Hello" {
		t.Fatalf("got %q", sb.String())
	}
	want := []string{"gemini-1.5-flash", "gemini-retired", "gemini-2.0-flash"}
	if strings.Join(tried, ",") != strings.Join(want, ",") {
		t.Fatalf("tried %v, want %v", tried, want)
	}
}

func TestGeminiModelListingIsSharedAndFailureRemembered(t *testing.T) {
	var listings, streams atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			listings.Add(1)
			time.Sleep(50 * time.Millisecond)
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, `{"error":{"code":500,"message":"backend error","status":"INTERNAL"}}`)
			return
		}
		streams.Add(1)
		_, _ = io.WriteString(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"ok\"}]}}]}\n\n")
	}))
	defer srv.Close()

	g, _ := NewGeminiCaller(ProviderConfig{APIKey: "g-key", BaseURL: srv.URL})
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := g.StreamChat(context.Background(), "", []Message{{Role: RoleUser, Content: "hi"}}, func(string) error { return nil })
			if err != nil {
				t.Errorf("StreamChat: %v", err)
			}
		}()
	}
	wg.Wait()
	if err := g.StreamChat(context.Background(), "", []Message{{Role: RoleUser, Content: "again"}}, func(string) error { return nil }); err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	if got := listings.Load(); got != 1 {
		t.Fatalf("expected one model listing, got %d", got)
	}
	if got := streams.Load(); got != 6 {
		t.Fatalf("expected every chat to use the configured model, got %d streams", got)
	}
}

func TestGeminiStreamStopsOnAuthError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			_, _ = io.WriteString(w, `{"models":[{"name":"models/gemini-2.0-flash","supportedGenerationMethods":["generateContent"]}]}`)
			return
		}
		calls++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`)
	}))
	defer srv.Close()

	g, _ := NewGeminiCaller(ProviderConfig{APIKey: "bad", BaseURL: srv.URL})
	err := g.StreamChat(context.Background(), "", []Message{{Role: RoleUser, Content: "hi"}}, func(string) error { return nil })
	if err == nil {
		t.Fatalf("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
	var pe *ProviderError
	if !errors.As(err, &pe) || pe.Provider != analysis.SourceGemini || pe.Class != ClassAuth {
		t.Fatalf("expected gemini auth error, got %v", err)
	}
}

func TestOpenAIGenerateJSONAndStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer o-key" {
			t.Errorf("unexpected auth header %q", r.Header.Get("Authorization"))
		}
		var req openai.ChatCompletionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Messages[0].Role != openai.ChatMessageRoleSystem {
			t.Errorf("system message must lead, got %s", req.Messages[0].Role)
		}
		if req.Stream {
			w.Header().Set("Content-Type", "text/event-stream")
			for _, tok := range []string{"Hi", " there"} {
				chunk := openai.ChatCompletionStreamResponse{Choices: []openai.ChatCompletionStreamChoice{{Delta: openai.ChatCompletionStreamChoiceDelta{Content: tok}}}}
				raw, _ := json.Marshal(chunk)
				fmt.Fprintf(w, "data: %s\n\n", raw)
			}
			_, _ = io.WriteString(w, "data: [DONE]\n\n")
			return
		}
		if req.ResponseFormat == nil || req.ResponseFormat.Type != openai.ChatCompletionResponseFormatTypeJSONObject {
			t.Errorf("json response format not requested")
		}
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Role: "assistant", Content: `{"overallScore":70}`}}},
		})
	}))
	defer srv.Close()

	o, err := NewOpenAICaller(ProviderConfig{APIKey: "o-key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewOpenAICaller: %v", err)
	}
	out, err := o.GenerateJSON(context.Background(), "sys", "prompt")
	if err != nil || out != `{"overallScore":70}` {
		t.Fatalf("GenerateJSON = %q, %v", out, err)
	}
	var sb strings.Builder
	err = o.StreamChat(context.Background(), "sys", []Message{{Role: RoleUser, Content: "hi"}}, func(tok string) error {
		sb.WriteString(tok)
		return nil
	})
	if err != nil || sb.String() != "Hi there" {
		t.Fatalf("StreamChat = %q, %v", sb.String(), err)
	}
}

func TestOpenAIAuthFailureIsClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	o, _ := NewGatewayCaller(ProviderConfig{APIKey: "bad", BaseURL: srv.URL})
	_, err := o.GenerateJSON(context.Background(), "", "prompt")
	if Classify(err) != ClassAuth {
		t.Fatalf("expected auth class, got %s (%v)", Classify(err), err)
	}
	if o.Name() != analysis.SourceGateway || o.cfg.Model != DefaultGatewayModel {
		t.Fatalf("unexpected gateway setup: %s %s", o.Name(), o.cfg.Model)
	}
}

type fakeMessager struct {
	params    anthropic.MessageNewParams
	resp      *anthropic.Message
	err       error
	streamErr error
}

func (f *fakeMessager) New(_ context.Context, params anthropic.MessageNewParams, _ ...option.RequestOption) (*anthropic.Message, error) {
	f.params = params
	return f.resp, f.err
}

func (f *fakeMessager) NewStreaming(_ context.Context, params anthropic.MessageNewParams, _ ...option.RequestOption) *ssestream.Stream[anthropic.MessageStreamEventUnion] {
	f.params = params
	return ssestream.NewStream[anthropic.MessageStreamEventUnion](nil, f.streamErr)
}

func TestAnthropicGenerateJSON(t *testing.T) {
	fake := &fakeMessager{resp: &anthropic.Message{Content: []anthropic.ContentBlockUnion{
		{Type: "text", Text: "```json\n{\"ok\":true}\n```"},
	}}}
	a := newAnthropicCallerWith(fake, ProviderConfig{})
	out, err := a.GenerateJSON(context.Background(), "sys", "prompt")
	if err != nil {
		t.Fatalf("GenerateJSON: %v", err)
	}
	if out != `{"ok":true}` {
		t.Fatalf("got %q", out)
	}
	if string(fake.params.Model) != DefaultAnthropicModel || len(fake.params.System) != 1 || fake.params.System[0].Text != "sys" {
		t.Fatalf("unexpected params: %+v", fake.params)
	}
}

func TestAnthropicStreamError(t *testing.T) {
	fake := &fakeMessager{streamErr: errors.New("overloaded: status 529")}
	a := newAnthropicCallerWith(fake, ProviderConfig{})
	err := a.StreamChat(context.Background(), "", []Message{{Role: RoleUser, Content: "hi"}}, func(string) error { return nil })
	if Classify(err) != ClassServer {
		t.Fatalf("expected server class, got %v", err)
	}
	if len(fake.params.Messages) != 1 {
		t.Fatalf("expected one message, got %d", len(fake.params.Messages))
	}
}

func TestRegistrySkipsUnconfigured(t *testing.T) {
	r, err := NewRegistry(Config{
		OpenAI:  ProviderConfig{APIKey: "o"},
		Gateway: ProviderConfig{APIKey: "  "},
	}, nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	got := r.Configured()
	if len(got) != 1 || got[0] != analysis.SourceOpenAI {
		t.Fatalf("configured = %v", got)
	}
	p, ok := r.First(analysis.SourceGemini, analysis.SourceOpenAI)
	if !ok || p.Name() != analysis.SourceOpenAI {
		t.Fatalf("First picked %v", p)
	}
	if _, ok := r.Get(analysis.SourceGemini); ok {
		t.Fatalf("gemini should not be configured")
	}
}

func TestNewProviderUnknown(t *testing.T) {
	if _, err := NewProvider("ollama", ProviderConfig{APIKey: "x"}); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}
