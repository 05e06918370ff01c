// internal/chat/line.go

// Package chat implements the webhook collaborator layer: a LINE-style
// messaging bot that turns conversations into article drafts and hands
// finished drafts to the automation runner.
package chat

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/luyichou/webtech-autopost/internal/config"
)

// textMessage is the only outgoing message shape the bot needs.
type textMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type replyRequest struct {
	ReplyToken string        `json:"replyToken"`
	Messages   []textMessage `json:"messages"`
}

type pushRequest struct {
	To       string        `json:"to"`
	Messages []textMessage `json:"messages"`
}

// LineClient talks to the messaging platform's REST API. Pushes are
// rate limited because the platform meters them per bot.
type LineClient struct {
	endpoint string
	// ContentEndpoint serves binary message content; the platform hosts
	// it on a separate domain.
	ContentEndpoint string

	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewLineClient builds the messaging client from chat configuration.
func NewLineClient(cfg config.ChatConfig, logger *zap.Logger) *LineClient {
	perMinute := cfg.PushPerMinute
	if perMinute <= 0 {
		perMinute = 60
	}
	return &LineClient{
		endpoint:        cfg.APIEndpoint,
		ContentEndpoint: "https://api-data.line.me",
		token:           cfg.ChannelToken,
		httpClient:      &http.Client{Timeout: 30 * time.Second},
		limiter:         rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute),
		logger:          logger.Named("line"),
	}
}

// Reply answers an incoming event using its single-use reply token.
func (c *LineClient) Reply(ctx context.Context, replyToken, text string) error {
	payload := replyRequest{
		ReplyToken: replyToken,
		Messages:   []textMessage{{Type: "text", Text: text}},
	}
	return c.post(ctx, c.endpoint+"/v2/bot/message/reply", payload)
}

// Push sends an unsolicited message. Used for final workflow results:
// the originating reply token is long dead by the time a background
// publish run finishes.
func (c *LineClient) Push(ctx context.Context, userID, text string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("push rate limiter interrupted: %w", err)
	}
	payload := pushRequest{
		To:       userID,
		Messages: []textMessage{{Type: "text", Text: text}},
	}
	return c.post(ctx, c.endpoint+"/v2/bot/message/push", payload)
}

// MessageContent downloads the binary payload of a media message.
func (c *LineClient) MessageContent(ctx context.Context, messageID string) ([]byte, error) {
	url := fmt.Sprintf("%s/v2/bot/message/%s/content", c.ContentEndpoint, messageID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build content request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("content download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("content download returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("content read failed: %w", err)
	}
	return data, nil
}

func (c *LineClient) post(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build message request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("message delivery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		c.logger.Warn("Messaging API rejected the request.",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", respBody))
		return fmt.Errorf("messaging API returned status %d", resp.StatusCode)
	}
	return nil
}
