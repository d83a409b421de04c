package store

import (
	"context"
	"fmt"
)

type eligibilityQuery struct {
	table string
	where string
	args  []any
}

var eligibilityQueries = map[EligibilityKind]eligibilityQuery{
	EligibleUnprocessedComics: {
		table: "comics",
		where: "state = ?",
		args:  []any{ComicUnprocessed},
	},
	EligiblePagesWithoutHash: {
		table: "pages",
		where: "state = ? AND (hash IS NULL OR hash = '')",
		args:  []any{PageStable},
	},
	EligibleBlockedPages: {
		table: "pages",
		where: "state = ? AND hash IN (SELECT hash FROM blocked_hashes)",
		args:  []any{PageStable},
	},
	EligibleCoverPagesWithoutCache: {
		table: "pages",
		where: "state = ? AND cache_pending = 1 AND added_to_cache = 0",
		args:  []any{PageStable},
	},
	EligibleComicsForMetadata: {
		table: "comics",
		where: "metadata_update_marked = 1 AND state IN (?, ?)",
		args:  []any{ComicStable, ComicChanged},
	},
	EligibleComicsForRecreation: {
		table: "comics",
		where: "recreate_marked = 1 AND state IN (?, ?)",
		args:  []any{ComicStable, ComicChanged},
	},
	EligibleComicsForPurge: {
		table: "comics",
		where: "state = ?",
		args:  []any{ComicDeleted},
	},
	EligibleComicsForOrganization: {
		table: "comics",
		where: "organize_marked = 1 AND state IN (?, ?)",
		args:  []any{ComicStable, ComicChanged},
	},
}

func lookupEligibility(kind EligibilityKind, table string) (eligibilityQuery, error) {
	q, ok := eligibilityQueries[kind]
	if !ok {
		return eligibilityQuery{}, fmt.Errorf("unknown eligibility kind %q", kind)
	}
	if table != "" && q.table != table {
		return eligibilityQuery{}, fmt.Errorf("eligibility kind %q selects %s, not %s", kind, q.table, table)
	}
	return q, nil
}

// CountEligible answers how many records currently qualify for kind.
func (s *Store) CountEligible(ctx context.Context, kind EligibilityKind) (int64, error) {
	q, err := lookupEligibility(kind, "")
	if err != nil {
		return 0, err
	}
	var count int64
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT COUNT(1) FROM `+q.table+` WHERE `+q.where, q.args...)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count %s: %w", kind, err)
	}
	return count, nil
}

// EligibleComics returns up to limit comics qualifying for kind with an id
// greater than afterID, in id order. Callers page through results by passing
// the last id seen.
func (s *Store) EligibleComics(ctx context.Context, kind EligibilityKind, afterID int64, limit int) ([]*Comic, error) {
	q, err := lookupEligibility(kind, "comics")
	if err != nil {
		return nil, err
	}
	args := append(append([]any{}, q.args...), afterID, limit)
	return s.queryComics(ctx,
		`SELECT `+comicColumns+` FROM comics WHERE `+q.where+` AND id > ? ORDER BY id LIMIT ?`, args...)
}

// EligiblePages returns up to limit pages qualifying for kind with an id
// greater than afterID, in id order.
func (s *Store) EligiblePages(ctx context.Context, kind EligibilityKind, afterID int64, limit int) ([]*Page, error) {
	q, err := lookupEligibility(kind, "pages")
	if err != nil {
		return nil, err
	}
	args := append(append([]any{}, q.args...), afterID, limit)
	return s.queryPages(ctx,
		`SELECT `+pageColumns+` FROM pages WHERE `+q.where+` AND id > ? ORDER BY id LIMIT ?`, args...)
}
