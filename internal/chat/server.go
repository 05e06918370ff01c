// internal/chat/server.go
package chat

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/luyichou/webtech-autopost/internal/config"
)

// webhookPayload is the envelope the platform delivers.
type webhookPayload struct {
	Destination string  `json:"destination"`
	Events      []Event `json:"events"`
}

// Server exposes the webhook endpoint over HTTP.
type Server struct {
	cfg     config.ChatConfig
	handler *Handler
	logger  *zap.Logger

	engine *gin.Engine
	srv    *http.Server
}

// NewServer builds the HTTP layer around a Handler.
func NewServer(cfg config.ChatConfig, handler *Handler, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		cfg:     cfg,
		handler: handler,
		logger:  logger.Named("webhook"),
		engine:  engine,
	}

	engine.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	engine.POST("/callback", s.callback)

	return s
}

// Engine exposes the router for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// callback verifies the delivery signature and dispatches the events.
// Event handling itself never fails the request; the platform would
// just redeliver and replay the conversation step.
func (s *Server) callback(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.String(http.StatusBadRequest, "unreadable body")
		return
	}

	signature := c.GetHeader("X-Line-Signature")
	if !ValidSignature(s.cfg.ChannelSecret, signature, body) {
		s.logger.Warn("Webhook delivery with a bad signature rejected.",
			zap.String("remote", c.ClientIP()))
		c.String(http.StatusBadRequest, "bad signature")
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		s.logger.Warn("Undecodable webhook payload.", zap.Error(err))
		c.String(http.StatusBadRequest, "bad payload")
		return
	}

	for _, ev := range payload.Events {
		s.handler.HandleEvent(c.Request.Context(), ev)
	}
	c.String(http.StatusOK, "ok")
}

// Run serves until ctx is cancelled, then shuts down gracefully and
// drains any background publish job.
func (s *Server) Run(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Webhook server listening.", zap.String("addr", s.cfg.Addr))
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down webhook server.")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("Forced webhook server shutdown.", zap.Error(err))
	}

	s.handler.Wait()
	return nil
}
