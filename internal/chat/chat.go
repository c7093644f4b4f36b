// Package chat serves the co-founder assistant: it normalises the posted
// conversation, picks a provider and streams the reply.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/joelkehle/ideaforge/internal/analysis"
	"github.com/joelkehle/ideaforge/internal/llm"
)

// ProviderOrder is the preference used to pick the chat provider.
var ProviderOrder = []analysis.Source{analysis.SourceGemini, analysis.SourceOpenAI, analysis.SourceGateway, analysis.SourceAnthropic}

const SystemPrompt = `You are an AI Co-Founder named "AI Co-founder" for IdeaForge AI. You are a realistic, helpful and knowledgeable co-founder who can answer any question the user asks, not only questions about startups.

Your personality:
- Friendly and conversational
- Helpful on any topic: science, history, coding, general knowledge and more
- An expert co-founder when the conversation is about startups
- Engaging, natural and thorough

Be specific and actionable. Ask clarifying questions when needed. Use concrete examples and data points when possible.

When discussing startup ideas:
1. Be encouraging but honest about challenges
2. Provide specific, actionable advice
3. Reference relevant industry benchmarks when applicable
4. Suggest next steps the founder can take immediately`

const SetupMessage = `API Key Required

To use the AI Co-Founder, set up an API key in your environment:

1. For Google Gemini (free tier available):
   Set GOOGLE_GENERATIVE_AI_API_KEY
   Get your key at: https://makersuite.google.com/app/apikey

2. For OpenAI:
   Set OPENAI_API_KEY
   Get your key at: https://platform.openai.com/api-keys

After setting the key, restart the server.`

// ErrorBody is the JSON error shape of the chat endpoint.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

// RequestError is returned when nothing has been streamed yet and the
// caller should answer with Status and Body instead.
type RequestError struct {
	Status int
	Body   ErrorBody
	Err    error
}

func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Body.Error, e.Err)
	}
	return e.Body.Error
}

func (e *RequestError) Unwrap() error { return e.Err }

func badRequest(msg string) *RequestError {
	return &RequestError{Status: http.StatusBadRequest, Body: ErrorBody{Error: msg}}
}

type rawPart struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	Content string `json:"content"`
}

type rawMessage struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	Text    string    `json:"text"`
	Parts   []rawPart `json:"parts"`
}

// ParseMessages accepts either a bare array of messages or an object with a
// "messages" array. Messages may carry plain content or typed parts; empty
// messages are dropped.
func ParseMessages(raw []byte) ([]llm.Message, error) {
	raw = bytes.TrimSpace(raw)
	var list []json.RawMessage
	switch {
	case len(raw) > 0 && raw[0] == '[':
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, badRequest("Invalid messages format")
		}
	case len(raw) > 0 && raw[0] == '{':
		var wrapper struct {
			Messages json.RawMessage `json:"messages"`
		}
		if err := json.Unmarshal(raw, &wrapper); err != nil {
			return nil, badRequest("Invalid messages format")
		}
		if len(wrapper.Messages) == 0 || string(wrapper.Messages) == "null" {
			return nil, badRequest("Invalid messages format")
		}
		if err := json.Unmarshal(wrapper.Messages, &list); err != nil {
			return nil, badRequest("Invalid messages format")
		}
	default:
		return nil, badRequest("Invalid messages format")
	}
	if len(list) == 0 {
		return nil, badRequest("No messages provided")
	}

	out := make([]llm.Message, 0, len(list))
	for _, item := range list {
		var m rawMessage
		if err := json.Unmarshal(item, &m); err != nil {
			continue
		}
		content := m.Content
		if content == "" {
			content = m.Text
		}
		if m.Parts != nil {
			var sb strings.Builder
			for _, p := range m.Parts {
				if p.Type != "text" {
					continue
				}
				if p.Text != "" {
					sb.WriteString(p.Text)
				} else {
					sb.WriteString(p.Content)
				}
			}
			if sb.Len() > 0 {
				content = sb.String()
			}
		}
		if strings.TrimSpace(content) == "" {
			continue
		}
		role := llm.RoleUser
		if m.Role == llm.RoleAssistant {
			role = llm.RoleAssistant
		}
		out = append(out, llm.Message{Role: role, Content: content})
	}
	if len(out) == 0 {
		return nil, badRequest("No valid messages found")
	}
	return out, nil
}

type Service struct {
	registry *llm.Registry
	logger   *zap.Logger
}

func NewService(registry *llm.Registry, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{registry: registry, logger: logger}
}

type countingWriter struct {
	w io.Writer
	n int
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += n
	return n, err
}

func (c *countingWriter) Flush() {
	if f, ok := c.w.(interface{ Flush() }); ok {
		f.Flush()
	}
}

// Stream writes the assistant reply to w as it arrives. A *RequestError
// means nothing was written. Any other error means the stream was cut
// short after some output.
func (s *Service) Stream(ctx context.Context, raw []byte, w io.Writer) error {
	messages, err := ParseMessages(raw)
	if err != nil {
		return err
	}
	provider, ok := s.registry.First(ProviderOrder...)
	if !ok {
		s.logger.Warn("chat no_provider")
		_, err := io.WriteString(w, SetupMessage)
		return err
	}

	cw := &countingWriter{w: w}
	err = s.streamWith(ctx, provider, messages, cw)
	if err == nil {
		return nil
	}
	s.logger.Warn("chat provider_failed", zap.String("provider", string(provider.Name())), zap.Error(err))
	if cw.n > 0 {
		return err
	}

	if provider.Name() == analysis.SourceGemini {
		if fallback, ok := s.registry.Get(analysis.SourceOpenAI); ok {
			s.logger.Info("chat fallback", zap.String("provider", string(fallback.Name())))
			ferr := s.streamWith(ctx, fallback, messages, cw)
			if ferr == nil {
				return nil
			}
			s.logger.Warn("chat fallback_failed", zap.Error(ferr))
			if cw.n > 0 {
				return ferr
			}
		}
	}

	return &RequestError{
		Status: http.StatusInternalServerError,
		Body: ErrorBody{
			Error:   "AI provider error",
			Message: err.Error(),
			Hint:    fmt.Sprintf("The %s provider encountered an error. Please check your API key and try again.", provider.Name()),
		},
		Err: err,
	}
}

func (s *Service) streamWith(ctx context.Context, p llm.Streamer, messages []llm.Message, w io.Writer) error {
	return p.StreamChat(ctx, SystemPrompt, messages, func(tok string) error {
		_, err := io.WriteString(w, tok)
		if err != nil {
			return fmt.Errorf("write reply: %w", err)
		}
		if f, ok := w.(interface{ Flush() }); ok {
			f.Flush()
		}
		return nil
	})
}

// IsRequestError reports whether err should be answered with a JSON body.
func IsRequestError(err error) (*RequestError, bool) {
	var re *RequestError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
