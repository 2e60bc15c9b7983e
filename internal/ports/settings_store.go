package ports

import (
	"context"

	"github.com/bnema/modelgw/internal/domain"
)

// SettingsStore is the durable home of the shared settings document.
// Mutate re-reads the document, applies the transform, and writes the
// whole document back; callers must not cache documents across calls.
type SettingsStore interface {
	Load(ctx context.Context) (*domain.Document, error)
	Mutate(ctx context.Context, transform func(*domain.Document) error) error
}
