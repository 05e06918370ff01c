// -- cmd/serve.go --
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luyichou/webtech-autopost/internal/chat"
	"github.com/luyichou/webtech-autopost/internal/llm"
	"github.com/luyichou/webtech-autopost/internal/observability"
	"github.com/luyichou/webtech-autopost/internal/service"
	"github.com/luyichou/webtech-autopost/internal/uploader"
)

// newServeCmd creates the `serve` command: the chat webhook server that
// drafts articles conversationally and publishes them in the background.
func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Runs the chat webhook server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg := appCfg
			if addr != "" {
				cfg.Chat.Addr = addr
			}

			if cfg.Chat.ChannelSecret == "" || cfg.Chat.ChannelToken == "" {
				return fmt.Errorf("chat.channel_secret and chat.channel_token must be configured")
			}

			llmClient, err := llm.NewClient(ctx, cfg.Recognizer.APIKey, logger)
			if err != nil {
				return err
			}
			drafter := llm.NewDrafter(llmClient, cfg.Chat.DraftModel)

			// The webhook path runs unattended: no manual CAPTCHA prompt.
			runner := service.NewRunner(cfg, nil, logger)

			var images chat.ImageHost
			if cfg.Uploader.CloudName != "" {
				images = uploader.NewCloudinary(cfg.Uploader, logger)
			} else {
				logger.Info("Image uploads disabled: no uploader cloud configured.")
			}

			messenger := chat.NewLineClient(cfg.Chat, logger)
			store := chat.NewHistoryStore(cfg.Chat.HistoryFile, cfg.Chat.MaxHistoryTurn)
			handler := chat.NewHandler(messenger, runner, drafter, images, store, cfg.Chat.CommandPrefix, logger)
			server := chat.NewServer(cfg.Chat, handler, logger)

			logger.Info("Webhook server starting.", zap.String("addr", cfg.Chat.Addr))
			return server.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides chat.addr)")
	return cmd
}

func init() {
	rootCmd.AddCommand(newServeCmd())
}
