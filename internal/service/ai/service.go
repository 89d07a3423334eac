// Package ai exposes the language-model capability used by the turn pipeline:
// one prompt in, one completion out.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/Corleone-Yang/Sekai-Take-Home/internal/config"
)

// ErrEmptyResponse is returned when the model answers with nothing usable.
var ErrEmptyResponse = errors.New("model returned an empty response")

const (
	defaultMaxTokens = 1024
	systemPrompt     = "You are the narrative engine of an interactive story. Follow the instructions in the user message exactly and output only what is asked for."
)

// Generator turns a prompt into text. Implementations fail on transport or
// quota errors; callers decide the fallback.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a plain function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// chatModel is the slice of eino's BaseChatModel this package relies on.
type chatModel interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// ChatGenerator sends prompts to an eino chat model.
type ChatGenerator struct {
	provider string
	model    string
	chat     chatModel
}

var newChatModel = buildChatModel

// NewChatGenerator builds a generator for the named provider (openai, claude
// or gemini). modelName overrides the provider's configured model when set.
func NewChatGenerator(ctx context.Context, provider, modelName string, provCfg config.ProviderConfig) (*ChatGenerator, error) {
	if modelName == "" {
		modelName = provCfg.Model
	}
	if modelName == "" {
		return nil, fmt.Errorf("model for provider %s not configured", provider)
	}
	if provCfg.APIKey == "" {
		return nil, fmt.Errorf("api key for provider %s not configured", provider)
	}
	cm, err := newChatModel(ctx, provider, modelName, provCfg)
	if err != nil {
		return nil, err
	}
	return &ChatGenerator{provider: provider, model: modelName, chat: cm}, nil
}

func buildChatModel(ctx context.Context, provider, modelName string, provCfg config.ProviderConfig) (chatModel, error) {
	var (
		cm  model.ToolCallingChatModel
		err error
	)
	switch provider {
	case "openai":
		cm, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: provCfg.BaseURL,
			Model:   modelName,
			APIKey:  provCfg.APIKey,
		})
	case "gemini":
		var client *genai.Client
		client, err = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey: provCfg.APIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("create gemini client: %w", err)
		}
		cm, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  modelName,
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		cm, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    provCfg.APIKey,
			Model:     modelName,
			BaseURL:   baseURLPtr,
			MaxTokens: defaultMaxTokens,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", provider, err)
	}
	return cm, nil
}

// Generate sends prompt as a single user turn and returns the trimmed reply.
func (g *ChatGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	msgs := []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(prompt),
	}
	resp, err := g.chat.Generate(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("generate (%s/%s): %w", g.provider, g.model, err)
	}
	if resp == nil {
		return "", ErrEmptyResponse
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// WithTimeout bounds every call to g by d. A non-positive d returns g as is.
func WithTimeout(g Generator, d time.Duration) Generator {
	if d <= 0 {
		return g
	}
	return GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		callCtx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		type result struct {
			text string
			err  error
		}
		done := make(chan result, 1)
		go func() {
			text, err := g.Generate(callCtx, prompt)
			done <- result{text, err}
		}()
		// do not trust the client to honour ctx
		select {
		case r := <-done:
			return r.text, r.err
		case <-callCtx.Done():
			return "", fmt.Errorf("generate: %w", callCtx.Err())
		}
	})
}
