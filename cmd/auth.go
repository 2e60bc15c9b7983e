package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bnema/modelgw/internal/domain"
)

func newAuthCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage provider credentials",
	}

	cmd.AddCommand(newAuthSetKeyCmd(app), newAuthDisconnectCmd(app))

	return cmd
}

func newAuthSetKeyCmd(app *app) *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "set-key <provider>",
		Short: "Store a static API key for a provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := domain.ParseProvider(args[0])
			if err != nil {
				return err
			}

			if err := app.broker.SetAPIKey(cmd.Context(), provider, key); err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Stored API key for %s\n", provider)
			return nil
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "API key value")
	_ = cmd.MarkFlagRequired("key")

	return cmd
}

func newAuthDisconnectCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect <provider>",
		Short: "Remove all stored credentials for a provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := domain.ParseProvider(args[0])
			if err != nil {
				return err
			}

			if err := app.broker.Disconnect(cmd.Context(), provider); err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Disconnected %s\n", provider)
			return nil
		},
	}
}
