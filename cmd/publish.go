// -- cmd/publish.go --
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luyichou/webtech-autopost/internal/observability"
	"github.com/luyichou/webtech-autopost/internal/portal"
	"github.com/luyichou/webtech-autopost/internal/service"
)

// newPublishCmd creates the `publish` command: a full login-then-publish
// run with the article given on the command line or from a file.
func newPublishCmd() *cobra.Command {
	var (
		title       string
		content     string
		contentFile string
		category    string
	)

	publishCmd := &cobra.Command{
		Use:   "publish",
		Short: "Logs in and publishes one article to the portal",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()

			if contentFile != "" {
				data, err := os.ReadFile(contentFile)
				if err != nil {
					return fmt.Errorf("could not read content file: %w", err)
				}
				content = string(data)
			}
			if title == "" || content == "" {
				return fmt.Errorf("both --title and --content (or --content-file) are required")
			}

			draft := portal.ArticleDraft{Title: title, Content: content, Category: category}
			logger.Info("Publishing article.", zap.String("title", title), zap.Int("content_len", len(content)))

			runner := service.NewRunner(appCfg, stdinCaptchaPrompt, logger)
			ok, err := runner.Publish(cmd.Context(), draft)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("publish failed; see the screenshot directory %q for diagnostics", appCfg.Browser.ScreenshotDir)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Article published.")
			return nil
		},
	}

	publishCmd.Flags().StringVarP(&title, "title", "t", "", "article title")
	publishCmd.Flags().StringVar(&content, "content", "", "article content (HTML allowed)")
	publishCmd.Flags().StringVar(&contentFile, "content-file", "", "read the article content from a file")
	publishCmd.Flags().StringVar(&category, "category", "", "optional article category")

	return publishCmd
}

func init() {
	rootCmd.AddCommand(newPublishCmd())
}
