package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// GetOption returns the stored value for name and whether it exists.
func (s *Store) GetOption(ctx context.Context, name string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ensureContext(ctx), `SELECT value FROM configuration_options WHERE name = ?`, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get option %q: %w", name, err)
	}
	return value, true, nil
}

// SetOption stores value under name, replacing any previous value.
func (s *Store) SetOption(ctx context.Context, name, value string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("set option: name is required")
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO configuration_options (name, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		name, value, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("set option %q: %w", name, err)
	}
	return nil
}

// DeleteOption removes a stored option, reporting whether it existed.
func (s *Store) DeleteOption(ctx context.Context, name string) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM configuration_options WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("delete option %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListOptions returns every stored option.
func (s *Store) ListOptions(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT name, value FROM configuration_options ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list options: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		out[name] = value
	}
	return out, rows.Err()
}
