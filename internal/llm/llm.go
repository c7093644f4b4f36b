// Package llm wraps the chat-completion providers used for idea analysis
// and the co-founder chat.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/sashabaranov/go-openai"

	"github.com/joelkehle/ideaforge/internal/analysis"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn. System prompts are passed separately.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Caller produces a JSON document for a prompt.
type Caller interface {
	Name() analysis.Source
	GenerateJSON(ctx context.Context, system, prompt string) (string, error)
}

// Streamer streams a chat reply token by token. onToken errors abort the
// stream and are returned unchanged.
type Streamer interface {
	Name() analysis.Source
	StreamChat(ctx context.Context, system string, messages []Message, onToken func(string) error) error
}

type Provider interface {
	Caller
	Streamer
}

// ErrNotConfigured means the provider has no credentials.
var ErrNotConfigured = errors.New("llm provider not configured")

type Class int

const (
	ClassUnknown Class = iota
	ClassAuth
	ClassTimeout
	ClassRateLimit
	ClassServer
	ClassClient
)

func (c Class) String() string {
	switch c {
	case ClassAuth:
		return "auth"
	case ClassTimeout:
		return "timeout"
	case ClassRateLimit:
		return "rate_limit"
	case ClassServer:
		return "server"
	case ClassClient:
		return "client"
	default:
		return "unknown"
	}
}

// ProviderError tags a provider failure with its class.
type ProviderError struct {
	Provider analysis.Source
	Class    Class
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s error: %v", e.Provider, e.Class, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func wrapErr(provider analysis.Source, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &ProviderError{Provider: provider, Class: Classify(err), Err: err}
}

var statusCodeRe = regexp.MustCompile(`status(?:\s+code)?[:=\s]+(\d{3})`)

// Classify buckets a provider error. Missing or rejected credentials are
// ClassAuth so callers can skip straight to offline analysis.
func Classify(err error) Class {
	if err == nil {
		return ClassUnknown
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Class
	}
	if errors.Is(err, ErrNotConfigured) {
		return ClassAuth
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ClassTimeout
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "unauthenticated") || strings.Contains(msg, "api key") || strings.Contains(msg, "unauthorized") {
		return ClassAuth
	}
	if code := statusCode(err); code != 0 {
		return classifyStatus(code)
	}
	switch {
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "resource_exhausted"):
		return ClassRateLimit
	case strings.Contains(msg, "server error"), strings.Contains(msg, "unavailable"):
		return ClassServer
	}
	return ClassUnknown
}

func classifyStatus(code int) Class {
	switch {
	case code == 401 || code == 403:
		return ClassAuth
	case code == 429:
		return ClassRateLimit
	case code >= 500:
		return ClassServer
	case code >= 400:
		return ClassClient
	default:
		return ClassUnknown
	}
}

func statusCode(err error) int {
	var oaAPI *openai.APIError
	if errors.As(err, &oaAPI) {
		return oaAPI.HTTPStatusCode
	}
	var oaReq *openai.RequestError
	if errors.As(err, &oaReq) {
		return oaReq.HTTPStatusCode
	}
	var an *anthropic.Error
	if errors.As(err, &an) {
		return an.StatusCode
	}
	var gs *httpStatusError
	if errors.As(err, &gs) {
		return gs.Code
	}
	if m := statusCodeRe.FindStringSubmatch(strings.ToLower(err.Error())); len(m) == 2 {
		code, _ := strconv.Atoi(m[1])
		return code
	}
	return 0
}

// StripCodeFences removes a surrounding markdown code fence, if any.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		parts := strings.SplitN(s, "\n", 2)
		if len(parts) == 2 {
			s = parts[1]
		} else {
			s = strings.TrimPrefix(s, "```json")
			s = strings.TrimPrefix(s, "```")
		}
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
	}
	return s
}

func withTimeout(ctx context.Context, cfg ProviderConfig) (context.Context, context.CancelFunc) {
	if cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, cfg.Timeout)
}
