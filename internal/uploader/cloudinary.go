// internal/uploader/cloudinary.go

// Package uploader pushes images to Cloudinary and returns their public
// URLs for embedding into article content.
package uploader

import (
	"context"
	"crypto/sha1"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/imroc/req/v3"
	"go.uber.org/zap"

	"github.com/luyichou/webtech-autopost/internal/config"
)

// uploadResponse is the slice of Cloudinary's reply we care about.
type uploadResponse struct {
	SecureURL string `json:"secure_url"`
	URL       string `json:"url"`
	PublicID  string `json:"public_id"`
	Error     struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Cloudinary is a signed-upload client for one cloud.
type Cloudinary struct {
	cfg    config.UploaderConfig
	client *req.Client
	logger *zap.Logger

	// now is swappable so signatures are deterministic in tests.
	now func() time.Time
}

// NewCloudinary builds the client from uploader configuration.
func NewCloudinary(cfg config.UploaderConfig, logger *zap.Logger) *Cloudinary {
	client := req.C().
		SetBaseURL(cfg.Endpoint).
		SetTimeout(60 * time.Second)

	return &Cloudinary{
		cfg:    cfg,
		client: client,
		logger: logger.Named("uploader"),
		now:    time.Now,
	}
}

// Upload performs a signed image upload and returns the HTTPS URL.
func (c *Cloudinary) Upload(ctx context.Context, data []byte, name string) (string, error) {
	if c.cfg.CloudName == "" || c.cfg.APIKey == "" || c.cfg.APISecret == "" {
		return "", fmt.Errorf("cloudinary credentials are not configured")
	}

	timestamp := fmt.Sprintf("%d", c.now().Unix())
	params := map[string]string{
		"public_id": name,
		"timestamp": timestamp,
	}
	if c.cfg.Folder != "" {
		params["folder"] = c.cfg.Folder
	}
	signature := signParams(params, c.cfg.APISecret)

	form := map[string]string{
		"api_key":   c.cfg.APIKey,
		"signature": signature,
	}
	for k, v := range params {
		form[k] = v
	}

	var result uploadResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetFileBytes("file", name, data).
		SetFormData(form).
		SetSuccessResult(&result).
		SetErrorResult(&result).
		Post(fmt.Sprintf("/v1_1/%s/image/upload", c.cfg.CloudName))
	if err != nil {
		return "", fmt.Errorf("cloudinary upload failed: %w", err)
	}
	if !resp.IsSuccessState() {
		msg := result.Error.Message
		if msg == "" {
			msg = resp.Status
		}
		return "", fmt.Errorf("cloudinary rejected the upload: %s", msg)
	}

	url := result.SecureURL
	if url == "" {
		url = result.URL
	}
	if url == "" {
		return "", fmt.Errorf("cloudinary reply carried no URL")
	}

	c.logger.Info("Image uploaded.",
		zap.String("public_id", result.PublicID),
		zap.Int("bytes", len(data)))
	return url, nil
}

// signParams builds Cloudinary's request signature: the parameters
// sorted by key, joined as a query string, with the API secret
// appended, hashed with SHA-1.
func signParams(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}
	payload := strings.Join(pairs, "&") + secret
	return fmt.Sprintf("%x", sha1.Sum([]byte(payload)))
}
