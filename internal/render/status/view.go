// Package status renders per-provider connection status for the terminal.
package status

import (
	"fmt"
	"math"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/bnema/modelgw/internal/domain"
)

// Row is one provider's connection state as shown by the status command.
type Row struct {
	Provider domain.Provider
	Status   domain.ConnectionStatus

	// ExpiresAt is the stored OAuth token expiry, zero when none is known.
	ExpiresAt time.Time
}

type RenderOptions struct {
	Now time.Time
}

func Render(rows []Row, opts RenderOptions) string {
	s := newStyles()

	lines := []string{
		s.title.Render("Provider Connections"),
		s.header.Render(fmt.Sprintf("providers: %d", len(rows))),
	}

	if len(rows) == 0 {
		lines = append(lines, s.empty.Render("No providers configured."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	for _, row := range rows {
		lines = append(lines, s.section.Render(renderRow(row, opts, s)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderRow(row Row, opts RenderOptions, s styles) string {
	parts := []string{
		s.provider.Render(string(row.Provider)),
		stateLine(row.Status, s),
	}

	if line, ok := expiryLine(row, opts, s); ok {
		parts = append(parts, line)
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func stateLine(status domain.ConnectionStatus, s styles) string {
	if !status.Connected {
		return s.disconnected.Render("not connected")
	}

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.connected.Render("connected"),
		" ",
		s.detail.Render(fmt.Sprintf("via %s", methodLabel(status.Method))),
	)
}

func methodLabel(method *domain.AuthMethod) string {
	if method == nil {
		return "unknown"
	}

	return string(*method)
}

func expiryLine(row Row, opts RenderOptions, s styles) (string, bool) {
	if row.ExpiresAt.IsZero() || !row.Status.Connected {
		return "", false
	}
	if row.Status.Method == nil || *row.Status.Method != domain.AuthMethodOAuth {
		return "", false
	}

	now := opts.Now
	if now.IsZero() {
		return s.detail.Render("token expires " + row.ExpiresAt.Format(time.RFC3339)), true
	}

	if !row.ExpiresAt.After(now) {
		return s.warning.Render("token expired " + formatRelativePast(now.Sub(row.ExpiresAt))), true
	}

	return s.detail.Render("token expires " + formatRelativeFuture(row.ExpiresAt, now)), true
}

func formatRelativeFuture(expiresAt, now time.Time) string {
	remaining := expiresAt.Sub(now)
	if remaining < 24*time.Hour {
		hours := int(math.Ceil(remaining.Hours()))
		if hours < 1 {
			hours = 1
		}
		return fmt.Sprintf("in %d %s (%s)", hours, pluralize(hours, "hour"), expiresAt.Format("15:04"))
	}

	days := int(math.Ceil(remaining.Hours() / 24))

	return fmt.Sprintf("in %d %s (%s)", days, pluralize(days, "day"), expiresAt.Format("15:04 on 02 Jan"))
}

func formatRelativePast(elapsed time.Duration) string {
	if elapsed < time.Hour {
		minutes := int(math.Ceil(elapsed.Minutes()))
		if minutes < 1 {
			minutes = 1
		}
		return fmt.Sprintf("%d %s ago", minutes, pluralize(minutes, "minute"))
	}

	hours := int(math.Ceil(elapsed.Hours()))

	return fmt.Sprintf("%d %s ago", hours, pluralize(hours, "hour"))
}

func pluralize(n int, unit string) string {
	if n == 1 {
		return unit
	}

	return unit + "s"
}
