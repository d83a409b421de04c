package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const pageColumns = "id, comic_id, page_number, filename, hash, state, added_to_cache, cache_pending, created_at, updated_at"

func scanPage(scanner rowScanner) (*Page, error) {
	var (
		p          Page
		hash       sql.NullString
		state      string
		added      int
		pending    int
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(&p.ID, &p.ComicID, &p.PageNumber, &p.Filename, &hash, &state, &added, &pending, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	p.Hash = hash.String
	p.State = PageState(state)
	p.AddedToCache = added != 0
	p.CachePending = pending != 0
	if created, err := parseTimeString(createdRaw); err == nil {
		p.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		p.UpdatedAt = updated
	}
	return &p, nil
}

// ReplacePages swaps the page list of a comic for the provided entries in a
// single transaction and updates the comic's page count. Page numbers are
// assigned from slice order.
func (s *Store) ReplacePages(ctx context.Context, comicID int64, filenames []string) ([]*Page, error) {
	ctx = ensureContext(ctx)
	now := time.Now().UTC()
	pages := make([]*Page, 0, len(filenames))
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		pages = pages[:0]
		if _, err := tx.ExecContext(ctx, `DELETE FROM pages WHERE comic_id = ?`, comicID); err != nil {
			return fmt.Errorf("clear pages: %w", err)
		}
		for idx, name := range filenames {
			res, err := tx.ExecContext(ctx,
				`INSERT INTO pages (comic_id, page_number, filename, state, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
				comicID, idx, name, PageStable, formatTime(now), formatTime(now))
			if err != nil {
				return fmt.Errorf("insert page %d: %w", idx, err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return err
			}
			pages = append(pages, &Page{ID: id, ComicID: comicID, PageNumber: idx, Filename: name, State: PageStable, CreatedAt: now, UpdatedAt: now})
		}
		if _, err := tx.ExecContext(ctx, `UPDATE comics SET page_count = ?, updated_at = ? WHERE id = ?`, len(filenames), formatTime(now), comicID); err != nil {
			return fmt.Errorf("update page count: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("replace pages for comic %d: %w", comicID, err)
	}
	return pages, nil
}

// GetPage fetches a page by identifier, returning nil when absent.
func (s *Store) GetPage(ctx context.Context, id int64) (*Page, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+pageColumns+` FROM pages WHERE id = ?`, id)
	page, err := scanPage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get page %d: %w", id, err)
	}
	return page, nil
}

// PagesForComic lists a comic's pages in page order.
func (s *Store) PagesForComic(ctx context.Context, comicID int64) ([]*Page, error) {
	return s.queryPages(ctx, `SELECT `+pageColumns+` FROM pages WHERE comic_id = ? ORDER BY page_number`, comicID)
}

// SavePage persists every mutable column of the page.
func (s *Store) SavePage(ctx context.Context, page *Page) error {
	if page == nil || page.ID == 0 {
		return errors.New("save page: page has no identifier")
	}
	page.UpdatedAt = time.Now().UTC()
	res, err := s.execWithRetry(ctx,
		`UPDATE pages SET filename = ?, hash = ?, state = ?, added_to_cache = ?, cache_pending = ?, updated_at = ? WHERE id = ?`,
		page.Filename, nullableString(page.Hash), page.State, boolToInt(page.AddedToCache), boolToInt(page.CachePending),
		formatTime(page.UpdatedAt), page.ID)
	if err != nil {
		return fmt.Errorf("update page %d: %w", page.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update page %d: %w", page.ID, sql.ErrNoRows)
	}
	return nil
}

// SetPageHash records the content hash of a page.
func (s *Store) SetPageHash(ctx context.Context, pageID int64, hash string) error {
	_, err := s.execWithRetry(ctx, `UPDATE pages SET hash = ?, updated_at = ? WHERE id = ?`,
		nullableString(strings.ToLower(hash)), formatTime(time.Now()), pageID)
	if err != nil {
		return fmt.Errorf("set page hash %d: %w", pageID, err)
	}
	return nil
}

// PrepareCoverPagesWithoutCacheEntries flags hashed cover pages that have no
// image cache entry as pending so the cache job can pick them up. It returns
// the number of pages newly flagged.
func (s *Store) PrepareCoverPagesWithoutCacheEntries(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `UPDATE pages SET cache_pending = 1, updated_at = ?
		WHERE page_number = 0 AND cache_pending = 0 AND state = ?
		AND hash IS NOT NULL AND hash <> ''
		AND hash NOT IN (SELECT hash FROM image_cache_entries)`,
		formatTime(time.Now()), PageStable)
	if err != nil {
		return 0, fmt.Errorf("prepare cover pages: %w", err)
	}
	return res.RowsAffected()
}

// AddImageCacheEntry records that the image with hash is cached at path.
func (s *Store) AddImageCacheEntry(ctx context.Context, hash, path string) error {
	_, err := s.execWithRetry(ctx,
		`INSERT INTO image_cache_entries (hash, path, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(hash) DO UPDATE SET path = excluded.path`,
		strings.ToLower(hash), path, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("add image cache entry: %w", err)
	}
	return nil
}

// ImageCachePath returns the cached file for hash, or "" when not cached.
func (s *Store) ImageCachePath(ctx context.Context, hash string) (string, error) {
	var path string
	err := s.db.QueryRowContext(ensureContext(ctx), `SELECT path FROM image_cache_entries WHERE hash = ?`, strings.ToLower(hash)).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("image cache lookup: %w", err)
	}
	return path, nil
}

// BlockHash adds a page hash to the blocked list.
func (s *Store) BlockHash(ctx context.Context, hash, label string) error {
	hash = strings.ToLower(strings.TrimSpace(hash))
	if hash == "" {
		return errors.New("block hash: hash is required")
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO blocked_hashes (hash, label, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(hash) DO UPDATE SET label = excluded.label`,
		hash, nullableString(label), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("block hash: %w", err)
	}
	return nil
}

// UnblockHash removes a page hash from the blocked list.
func (s *Store) UnblockHash(ctx context.Context, hash string) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM blocked_hashes WHERE hash = ?`, strings.ToLower(strings.TrimSpace(hash)))
	if err != nil {
		return false, fmt.Errorf("unblock hash: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *Store) queryPages(ctx context.Context, query string, args ...any) ([]*Page, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pages: %w", err)
	}
	defer rows.Close()

	var pages []*Page
	for rows.Next() {
		page, err := scanPage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		pages = append(pages, page)
	}
	return pages, rows.Err()
}
