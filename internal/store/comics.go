package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const comicColumns = "id, file_path, archive_type, state, publisher, series, volume, issue_number, title, cover_date, page_count, recreate_marked, organize_marked, metadata_update_marked, metadata_source, created_at, updated_at"

func scanComic(scanner rowScanner) (*Comic, error) {
	var (
		c              Comic
		state          string
		publisher      sql.NullString
		series         sql.NullString
		volume         sql.NullString
		issueNumber    sql.NullString
		title          sql.NullString
		coverDate      sql.NullString
		recreate       int
		organize       int
		metadataUpdate int
		metadataSource sql.NullString
		createdRaw     string
		updatedRaw     string
	)
	if err := scanner.Scan(
		&c.ID, &c.FilePath, &c.ArchiveType, &state,
		&publisher, &series, &volume, &issueNumber, &title, &coverDate,
		&c.PageCount, &recreate, &organize, &metadataUpdate, &metadataSource,
		&createdRaw, &updatedRaw,
	); err != nil {
		return nil, err
	}
	c.State = ComicState(state)
	c.Publisher = publisher.String
	c.Series = series.String
	c.Volume = volume.String
	c.IssueNumber = issueNumber.String
	c.Title = title.String
	c.CoverDate = coverDate.String
	c.RecreateMarked = recreate != 0
	c.OrganizeMarked = organize != 0
	c.MetadataUpdateMarked = metadataUpdate != 0
	c.MetadataSource = metadataSource.String
	if created, err := parseTimeString(createdRaw); err == nil {
		c.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		c.UpdatedAt = updated
	}
	return &c, nil
}

// CreateComic inserts a new comic record in the added state.
func (s *Store) CreateComic(ctx context.Context, filePath, archiveType string) (*Comic, error) {
	filePath = strings.TrimSpace(filePath)
	if filePath == "" {
		return nil, errors.New("create comic: file path is required")
	}
	now := time.Now().UTC()
	res, err := s.execWithRetry(ctx,
		`INSERT INTO comics (file_path, archive_type, state, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		filePath, strings.ToLower(strings.TrimSpace(archiveType)), ComicAdded, formatTime(now), formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("insert comic: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("comic id: %w", err)
	}
	return &Comic{
		ID:          id,
		FilePath:    filePath,
		ArchiveType: strings.ToLower(strings.TrimSpace(archiveType)),
		State:       ComicAdded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// GetComic fetches a comic by identifier. It returns nil without error when
// the comic does not exist.
func (s *Store) GetComic(ctx context.Context, id int64) (*Comic, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+comicColumns+` FROM comics WHERE id = ?`, id)
	comic, err := scanComic(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get comic %d: %w", id, err)
	}
	return comic, nil
}

// FindComicByPath fetches a comic by archive path, returning nil when absent.
func (s *Store) FindComicByPath(ctx context.Context, filePath string) (*Comic, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+comicColumns+` FROM comics WHERE file_path = ?`, filePath)
	comic, err := scanComic(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find comic by path: %w", err)
	}
	return comic, nil
}

// SaveComic persists every mutable column of the comic.
func (s *Store) SaveComic(ctx context.Context, comic *Comic) error {
	if comic == nil || comic.ID == 0 {
		return errors.New("save comic: comic has no identifier")
	}
	comic.UpdatedAt = time.Now().UTC()
	res, err := s.execWithRetry(ctx, `UPDATE comics SET
		file_path = ?, archive_type = ?, state = ?, publisher = ?, series = ?, volume = ?,
		issue_number = ?, title = ?, cover_date = ?, page_count = ?, recreate_marked = ?,
		organize_marked = ?, metadata_update_marked = ?, metadata_source = ?, updated_at = ?
		WHERE id = ?`,
		comic.FilePath, comic.ArchiveType, comic.State,
		nullableString(comic.Publisher), nullableString(comic.Series), nullableString(comic.Volume),
		nullableString(comic.IssueNumber), nullableString(comic.Title), nullableString(comic.CoverDate),
		comic.PageCount, boolToInt(comic.RecreateMarked), boolToInt(comic.OrganizeMarked),
		boolToInt(comic.MetadataUpdateMarked), nullableString(comic.MetadataSource),
		formatTime(comic.UpdatedAt), comic.ID,
	)
	if err != nil {
		return fmt.Errorf("update comic %d: %w", comic.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update comic %d: %w", comic.ID, sql.ErrNoRows)
	}
	return nil
}

// DeleteComic removes a comic and, through the foreign key cascade, its pages.
func (s *Store) DeleteComic(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM comics WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete comic %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListComics returns comics ordered by id, optionally filtered by state.
func (s *Store) ListComics(ctx context.Context, states ...ComicState) ([]*Comic, error) {
	query := `SELECT ` + comicColumns + ` FROM comics`
	args := make([]any, 0, len(states))
	if len(states) > 0 {
		query += ` WHERE state IN (` + makePlaceholders(len(states)) + `)`
		for _, state := range states {
			args = append(args, state)
		}
	}
	query += ` ORDER BY id`
	return s.queryComics(ctx, query, args...)
}

// GetComics fetches the comics with the given identifiers in id order,
// silently skipping identifiers that do not exist.
func (s *Store) GetComics(ctx context.Context, ids []int64) ([]*Comic, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.queryComics(ctx,
		`SELECT `+comicColumns+` FROM comics WHERE id IN (`+makePlaceholders(len(ids))+`) ORDER BY id`,
		int64Args(ids)...)
}

// ComicStats returns a count of comics grouped by state.
func (s *Store) ComicStats(ctx context.Context) (map[ComicState]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT state, COUNT(1) FROM comics GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("comic stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[ComicState]int)
	for rows.Next() {
		var state ComicState
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, err
		}
		stats[state] = count
	}
	return stats, rows.Err()
}

func (s *Store) queryComics(ctx context.Context, query string, args ...any) ([]*Comic, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query comics: %w", err)
	}
	defer rows.Close()

	var comics []*Comic
	for rows.Next() {
		comic, err := scanComic(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comic: %w", err)
		}
		comics = append(comics, comic)
	}
	return comics, rows.Err()
}
