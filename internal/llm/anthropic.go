package llm

import (
	"context"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/joelkehle/ideaforge/internal/analysis"
)

const DefaultAnthropicModel = "claude-sonnet-4-5"

// AnthropicMessager is the subset of the Anthropic messages service used
// here. Tests substitute a fake.
type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
	NewStreaming(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[anthropic.MessageStreamEventUnion]
}

type AnthropicCaller struct {
	messages AnthropicMessager
	cfg      ProviderConfig
}

func NewAnthropicCaller(cfg ProviderConfig) (*AnthropicCaller, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	if cfg.Model == "" {
		cfg.Model = DefaultAnthropicModel
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	c := anthropic.NewClient(opts...)
	return &AnthropicCaller{messages: &c.Messages, cfg: cfg}, nil
}

func newAnthropicCallerWith(m AnthropicMessager, cfg ProviderConfig) *AnthropicCaller {
	if cfg.Model == "" {
		cfg.Model = DefaultAnthropicModel
	}
	return &AnthropicCaller{messages: m, cfg: cfg}
}

func (a *AnthropicCaller) Name() analysis.Source { return analysis.SourceAnthropic }

func (a *AnthropicCaller) params(system string, msgs []anthropic.MessageParam) anthropic.MessageNewParams {
	p := anthropic.MessageNewParams{
		Model:       anthropic.Model(a.cfg.Model),
		MaxTokens:   4096,
		Messages:    msgs,
		Temperature: anthropic.Float(a.cfg.temperature()),
	}
	if system != "" {
		p.System = []anthropic.TextBlockParam{{Text: system}}
	}
	return p
}

func (a *AnthropicCaller) GenerateJSON(ctx context.Context, system, prompt string) (string, error) {
	ctx, cancel := withTimeout(ctx, a.cfg)
	defer cancel()
	resp, err := a.messages.New(ctx, a.params(system, []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
	}))
	if err != nil {
		return "", wrapErr(a.Name(), err)
	}
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return StripCodeFences(sb.String()), nil
}

func (a *AnthropicCaller) StreamChat(ctx context.Context, system string, messages []Message, onToken func(string) error) error {
	ctx, cancel := withTimeout(ctx, a.cfg)
	defer cancel()
	msgs := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == RoleAssistant {
			msgs = append(msgs, anthropic.NewAssistantMessage(block))
		} else {
			msgs = append(msgs, anthropic.NewUserMessage(block))
		}
	}
	stream := a.messages.NewStreaming(ctx, a.params(system, msgs))
	defer stream.Close()
	for stream.Next() {
		event := stream.Current()
		delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
		if !ok {
			continue
		}
		text, ok := delta.Delta.AsAny().(anthropic.TextDelta)
		if !ok || text.Text == "" {
			continue
		}
		if err := onToken(text.Text); err != nil {
			return err
		}
	}
	if err := stream.Err(); err != nil {
		return wrapErr(a.Name(), err)
	}
	return nil
}
