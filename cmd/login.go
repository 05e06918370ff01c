// -- cmd/login.go --
package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/luyichou/webtech-autopost/internal/observability"
	"github.com/luyichou/webtech-autopost/internal/service"
)

// newLoginCmd creates the `login` command: a login-only run for
// verifying credentials and the CAPTCHA recognizer.
func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Logs into the portal once to verify credentials and CAPTCHA recognition",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()
			runner := service.NewRunner(appCfg, stdinCaptchaPrompt, logger)

			ok, err := runner.Login(cmd.Context())
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("login failed after %d attempts", appCfg.Retry.MaxLoginAttempts)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Login succeeded.")
			return nil
		},
	}
}

// stdinCaptchaPrompt asks the operator to read the saved CAPTCHA image
// and type the code. Only used by interactive commands; the webhook
// server runs unattended.
func stdinCaptchaPrompt(ctx context.Context, imagePath string) (string, error) {
	fmt.Printf("CAPTCHA recognition failed. Open %s and type the code: ", imagePath)

	type result struct {
		text string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		ch <- result{strings.TrimSpace(line), err}
	}()

	select {
	case r := <-ch:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func init() {
	rootCmd.AddCommand(newLoginCmd())
}
