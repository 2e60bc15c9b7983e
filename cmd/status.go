package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bnema/modelgw/internal/domain"
	statusrender "github.com/bnema/modelgw/internal/render/status"
)

func newStatusCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show per-provider connection status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, app, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output statuses as JSON")

	return cmd
}

type statusEntry struct {
	Provider  domain.Provider    `json:"provider"`
	Connected bool               `json:"connected"`
	Method    *domain.AuthMethod `json:"method"`
	ExpiresAt *time.Time         `json:"oauth_expires_at,omitempty"`
}

func runStatus(cmd *cobra.Command, app *app, asJSON bool) error {
	doc, err := app.store.Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	rows := make([]statusrender.Row, 0, len(domain.DetectionOrder))
	entries := make([]statusEntry, 0, len(domain.DetectionOrder))

	for _, provider := range domain.DetectionOrder {
		status, err := app.broker.Status(cmd.Context(), provider)
		if err != nil {
			return fmt.Errorf("status for %s: %w", provider, err)
		}

		row := statusrender.Row{Provider: provider, Status: status}
		entry := statusEntry{Provider: provider, Connected: status.Connected, Method: status.Method}

		if ms := doc.Get(domain.ModelPath(provider, domain.KeyOAuthExpiresAt)).Int(); ms > 0 {
			expiresAt := time.UnixMilli(ms)
			row.ExpiresAt = expiresAt
			entry.ExpiresAt = &expiresAt
		}

		rows = append(rows, row)
		entries = append(entries, entry)
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), statusrender.Render(rows, statusrender.RenderOptions{Now: app.now()}))
	return err
}
