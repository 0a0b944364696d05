package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain_service "address-intelligence/internal/domain/service"
	"address-intelligence/internal/infrastructure/config"
	"address-intelligence/internal/infrastructure/logger"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// ErrDisabled is returned when no API key is configured
var ErrDisabled = domain_service.ErrLLMDisabled

// OpenAIService implements LLMService on the chat completions API
type OpenAIService struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	logger  *logger.Logger
}

var _ domain_service.LLMService = (*OpenAIService)(nil)

// NewOpenAIService creates the client. With LLM disabled or no API key every
// call fails fast with ErrDisabled so callers take their fallback path.
func NewOpenAIService(cfg *config.LLMConfig, timeout time.Duration, logger *logger.Logger) *OpenAIService {
	s := &OpenAIService{
		model:   cfg.Model,
		timeout: timeout,
		logger:  logger.WithComponent("openai"),
	}
	if !cfg.Enabled || cfg.APIKey == "" {
		return s
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	s.client = openai.NewClientWithConfig(clientCfg)
	return s
}

// Complete sends a single user prompt and returns the first choice
func (s *OpenAIService) Complete(ctx context.Context, prompt string, opts domain_service.CompletionOptions) (string, error) {
	if s.client == nil {
		return "", ErrDisabled
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	req := openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if opts.JSONMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	start := time.Now()
	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		s.logger.Warn("Chat completion failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}

	s.logger.Debug("Chat completion succeeded",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("total_tokens", resp.Usage.TotalTokens))
	return resp.Choices[0].Message.Content, nil
}
