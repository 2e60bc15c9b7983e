package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/bnema/modelgw/internal/domain"
	"github.com/bnema/modelgw/internal/server"
)

const loginPollInterval = time.Second

func newLoginCmd(app *app) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "login <provider>",
		Short: "Run the browser authorization flow for a provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := domain.ParseProvider(args[0])
			if err != nil {
				return err
			}

			return runLogin(cmd, app, provider, timeout)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "How long to wait for the provider callback")

	return cmd
}

// runLogin hosts the callback endpoint itself for the duration of the
// flow, so the command works without a running `serve` instance.
func runLogin(cmd *cobra.Command, app *app, provider domain.Provider, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	started, err := app.broker.StartLogin(ctx, provider)
	if err != nil {
		return fmt.Errorf("start login: %w", err)
	}

	httpServer := &http.Server{
		Addr:              app.cfg.ListenAddr,
		Handler:           server.NewMux(server.MuxConfig{Broker: app.broker, Logger: app.logger}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.ListenAndServe()
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Open this URL to connect %s:\n%s\n", provider, started.URL)

	if err := openBrowser(started.URL); err != nil {
		app.logger.Debug("could not open browser", "error", err)
	}

	return waitForConnection(ctx, app, provider, serveErr, out)
}

func waitForConnection(ctx context.Context, app *app, provider domain.Provider, serveErr <-chan error, out io.Writer) error {
	ticker := time.NewTicker(loginPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for %s authorization", provider)

		case err := <-serveErr:
			return fmt.Errorf("callback server: %w", err)

		case <-ticker.C:
			if oauthTokenStored(ctx, app, provider) {
				_, _ = fmt.Fprintf(out, "Connected %s\n", provider)
				return nil
			}
		}
	}
}

// oauthTokenStored reports whether the flow has landed a token in the
// settings document. An existing API key does not count as completion.
func oauthTokenStored(ctx context.Context, app *app, provider domain.Provider) bool {
	doc, err := app.store.Load(ctx)
	if err != nil {
		return false
	}

	return doc.Get(domain.ModelPath(provider, domain.KeyOAuthToken)).String() != ""
}
