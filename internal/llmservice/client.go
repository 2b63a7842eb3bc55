package llmservice

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"copbot/internal/config"
	"copbot/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Generator produces a single chat completion.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

var thinkRe = regexp.MustCompile(models.ThinkTag)

// Client talks to an OpenAI compatible chat completion endpoint.
type Client struct {
	llm         llms.Model
	model       string
	temperature float64
}

var _ Generator = (*Client)(nil)

func New(cfg *config.LLMConfig) (*Client, error) {
	log.Debug().Str("base_url", cfg.BaseURL).Str("model", cfg.Model).Msg("Creating chat client")
	llm, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
		openai.WithModel(cfg.Model),
		openai.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	)
	if err != nil {
		return nil, fmt.Errorf("initialize chat model: %w", err)
	}
	return NewWithModel(llm, cfg.Model, cfg.Temperature), nil
}

// NewWithModel wraps an existing langchaingo model.
func NewWithModel(llm llms.Model, model string, temperature float64) *Client {
	return &Client{llm: llm, model: model, temperature: temperature}
}

func (c *Client) Generate(ctx context.Context, system, user string) (string, error) {
	var messages []llms.MessageContent
	if system != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, system))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, user))

	res, err := c.llm.GenerateContent(ctx, messages, llms.WithTemperature(c.temperature))
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if len(res.Choices) == 0 {
		return "", errors.New("generate content: empty response")
	}
	return CleanAnswer(res.Choices[0].Content), nil
}

// CleanAnswer removes reasoning blocks some models emit before the answer.
func CleanAnswer(s string) string {
	return strings.TrimSpace(thinkRe.ReplaceAllString(s, ""))
}
