package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/ResumeVault/internal/logger"
)

const defaultOpenAIModel = "deepseek-chat"

// OpenAI is a Completer for any OpenAI-compatible chat completion endpoint
// (OpenAI, DeepSeek, Qwen and similar).
type OpenAI struct {
	client    *openai.Client
	modelName string
	logger    *zap.Logger
}

// NewOpenAI builds a client. An empty baseURL uses the OpenAI default.
func NewOpenAI(apiKey, baseURL, model string, timeout time.Duration, log *zap.Logger) (*OpenAI, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if timeout > 0 {
		cfg.HTTPClient = &http.Client{Timeout: timeout}
	}
	if model = strings.TrimSpace(model); model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), modelName: model, logger: logger.OrNop(log)}, nil
}

// Model returns the configured model name.
func (o *OpenAI) Model() string { return o.modelName }

// Complete implements Completer.
func (o *OpenAI) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.modelName,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: 0.1,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode >= 400 && apiErr.HTTPStatusCode < 500 &&
			apiErr.HTTPStatusCode != http.StatusTooManyRequests {
			return "", Permanent(fmt.Errorf("create chat completion: %w", err))
		}
		return "", fmt.Errorf("create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	output := strings.TrimSpace(resp.Choices[0].Message.Content)
	if output == "" {
		return "", ErrEmptyResponse
	}
	o.logger.Debug("openai completion",
		zap.String(logger.FieldModel, o.modelName),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("total_tokens", resp.Usage.TotalTokens))
	return output, nil
}
