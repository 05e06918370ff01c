// internal/llm/client.go

// Package llm wraps the Gemini SDK behind the two narrow calls the rest
// of the application needs: image transcription and chat generation.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

// Client is a thin veneer over the Gemini API client.
type Client struct {
	genai  *genai.Client
	logger *zap.Logger
}

// NewClient initializes the Gemini client.
func NewClient(ctx context.Context, apiKey string, logger *zap.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &Client{
		genai:  gc,
		logger: logger.Named("llm"),
	}, nil
}

// Transcribe sends an image with the given instruction to a vision
// model and returns the model's raw text reply. Transient API errors
// are retried with exponential backoff; malformed responses are not.
func (c *Client) Transcribe(ctx context.Context, model, instruction string, image []byte) (string, error) {
	parts := []*genai.Part{
		genai.NewPartFromBytes(image, "image/png"),
		genai.NewPartFromText(instruction),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](0.1),
		MaxOutputTokens: 64,
	}
	return c.generate(ctx, model, contents, cfg)
}

// Generate runs a chat-style generation. When jsonOutput is set the
// model is constrained to emit a JSON object.
func (c *Client) Generate(ctx context.Context, model string, contents []*genai.Content, systemPrompt string, jsonOutput bool) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](0.7),
		MaxOutputTokens: 2048,
	}
	if systemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}
	if jsonOutput {
		cfg.ResponseMIMEType = "application/json"
	}
	return c.generate(ctx, model, contents, cfg)
}

func (c *Client) generate(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (string, error) {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 2 * time.Minute
	b.MaxInterval = 30 * time.Second

	var text string

	operation := func() error {
		startTime := time.Now()
		resp, err := c.genai.Models.GenerateContent(ctx, model, contents, cfg)
		duration := time.Since(startTime)

		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			c.logger.Warn("Gemini request failed, retrying...", zap.String("model", model), zap.Error(err))
			return fmt.Errorf("gemini request failed: %w", err)
		}

		out := strings.TrimSpace(resp.Text())
		if out == "" {
			return backoff.Permanent(fmt.Errorf("gemini returned an empty response"))
		}

		c.logger.Info("LLM generation complete.",
			zap.String("model", model),
			zap.Duration("duration", duration),
			zap.Int("chars", len(out)),
		)
		text = out
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", err
	}
	return text, nil
}
