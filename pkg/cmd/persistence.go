package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leadflow/leadflow/pkg/persistence"
	"github.com/leadflow/leadflow/pkg/persistence/file"
	"github.com/leadflow/leadflow/pkg/persistence/postgresql"
)

// NewPersistence picks the backend from the database URL scheme:
// postgres:// or postgresql:// for PostgreSQL, anything else is a file root.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open PostgreSQL persistence: %w", err)
		}

		return p, nil
	default:
		p, err := file.NewPersistence(databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open file persistence: %w", err)
		}

		return p, nil
	}
}

func parsePersistenceProvider(databaseURL string) string {
	scheme, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	switch scheme {
	case "postgres", "postgresql":
		return "postgresql"
	default:
		return "file"
	}
}
