package llm

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/joelkehle/ideaforge/internal/analysis"
)

const (
	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultGatewayModel   = "openai/gpt-4o-mini"
	DefaultGatewayBaseURL = "https://ai-gateway.vercel.sh/v1"
	defaultTemperature    = 0.9
)

// OpenAICaller talks to OpenAI or to any OpenAI-compatible gateway.
type OpenAICaller struct {
	client *openai.Client
	cfg    ProviderConfig
	source analysis.Source
}

func NewOpenAICaller(cfg ProviderConfig) (*OpenAICaller, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	return newOpenAICompatible(analysis.SourceOpenAI, cfg)
}

// NewGatewayCaller routes through an OpenAI-compatible AI gateway.
func NewGatewayCaller(cfg ProviderConfig) (*OpenAICaller, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultGatewayModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGatewayBaseURL
	}
	return newOpenAICompatible(analysis.SourceGateway, cfg)
}

func newOpenAICompatible(source analysis.Source, cfg ProviderConfig) (*OpenAICaller, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &OpenAICaller{client: openai.NewClientWithConfig(oc), cfg: cfg, source: source}, nil
}

func (o *OpenAICaller) Name() analysis.Source { return o.source }

func (o *OpenAICaller) chatMessages(system string, messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		if m.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}

func (o *OpenAICaller) GenerateJSON(ctx context.Context, system, prompt string) (string, error) {
	ctx, cancel := withTimeout(ctx, o.cfg)
	defer cancel()
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.cfg.Model,
		Messages:    o.chatMessages(system, []Message{{Role: RoleUser, Content: prompt}}),
		Temperature: float32(o.cfg.temperature()),
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", wrapErr(o.source, err)
	}
	if len(resp.Choices) == 0 {
		return "", wrapErr(o.source, errors.New("no choices returned"))
	}
	return StripCodeFences(resp.Choices[0].Message.Content), nil
}

func (o *OpenAICaller) StreamChat(ctx context.Context, system string, messages []Message, onToken func(string) error) error {
	ctx, cancel := withTimeout(ctx, o.cfg)
	defer cancel()
	stream, err := o.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       o.cfg.Model,
		Messages:    o.chatMessages(system, messages),
		Temperature: float32(o.cfg.temperature()),
		Stream:      true,
	})
	if err != nil {
		return wrapErr(o.source, err)
	}
	defer stream.Close()
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return wrapErr(o.source, err)
		}
		for _, ch := range resp.Choices {
			if ch.Delta.Content == "" {
				continue
			}
			if err := onToken(ch.Delta.Content); err != nil {
				return err
			}
		}
	}
}
