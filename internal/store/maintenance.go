package store

import (
	"context"
	"fmt"
)

// CheckHealth returns diagnostic information about the database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	ctx = ensureContext(ctx)
	health := DatabaseHealth{DBPath: s.path}

	version, err := s.SchemaVersion(ctx)
	if err != nil {
		return health, err
	}
	health.SchemaVersion = version

	var integrity string
	if err := s.db.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&integrity); err != nil {
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityOK = integrity == "ok"

	if health.Comics, err = s.ComicStats(ctx); err != nil {
		return health, err
	}
	if health.Tasks, err = s.TaskStats(ctx); err != nil {
		return health, err
	}
	return health, nil
}
