package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/dharsanguruparan/ResumeVault/internal/logger"
)

const defaultGeminiModel = "gemini-2.5-flash"

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini is a Completer backed by the Google GenAI API.
type Gemini struct {
	models    contentGenerator
	modelName string
	timeout   time.Duration
	logger    *zap.Logger
}

// NewGemini creates a client for the Gemini API backend.
func NewGemini(ctx context.Context, apiKey, model string, timeout time.Duration, log *zap.Logger) (*Gemini, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newGemini(client.Models, model, timeout, log), nil
}

func newGemini(models contentGenerator, model string, timeout time.Duration, log *zap.Logger) *Gemini {
	if model = strings.TrimSpace(model); model == "" {
		model = defaultGeminiModel
	}
	return &Gemini{models: models, modelName: model, timeout: timeout, logger: logger.OrNop(log)}
}

// Model returns the configured model name.
func (g *Gemini) Model() string { return g.modelName }

// Complete implements Completer.
func (g *Gemini) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	temperature := float32(0.1)
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemPrompt}}},
		ResponseMIMEType:  "application/json",
		Temperature:       &temperature,
	}

	start := time.Now()
	resp, err := g.models.GenerateContent(ctx, g.modelName, genai.Text(userPrompt), cfg)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) && apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != http.StatusTooManyRequests {
			return "", Permanent(fmt.Errorf("generate content: %w", err))
		}
		return "", fmt.Errorf("generate content: %w", err)
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || strings.TrimSpace(part.Text) == "" {
				continue
			}
			builder.WriteString(part.Text)
		}
		break
	}
	output := strings.TrimSpace(builder.String())
	if output == "" {
		return "", ErrEmptyResponse
	}
	g.logger.Debug("gemini completion",
		zap.String(logger.FieldModel, g.modelName),
		zap.Duration("elapsed", time.Since(start)),
		zap.String("preview", logger.TruncateForLog(output, 200)))
	return output, nil
}
