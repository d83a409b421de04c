package lifecycle

import (
	"context"
	"log/slog"

	"comicshelf/internal/logging"
	"comicshelf/internal/store"
)

// PageEvent names a page lifecycle event.
type PageEvent string

const (
	PageMarkForDeletion   PageEvent = "mark_for_deletion"
	PageUnmarkForDeletion PageEvent = "unmark_for_deletion"
	PageSavedToCache      PageEvent = "saved_to_cache"
)

// PageSaver persists pages.
type PageSaver interface {
	SavePage(ctx context.Context, page *store.Page) error
}

// PageHandler is the page state machine.
type PageHandler = Handler[store.PageState, PageEvent, store.Page]

// PageListener observes page transitions.
type PageListener = Listener[store.PageState, store.Page]

func pageTransitions() map[PageEvent]Transition[store.PageState, store.Page] {
	return map[PageEvent]Transition[store.PageState, store.Page]{
		PageMarkForDeletion: {
			From:  []store.PageState{store.PageStable},
			To:    store.PageDeleted,
			Apply: func(p *store.Page) { p.CachePending = false },
		},
		PageUnmarkForDeletion: {
			From: []store.PageState{store.PageDeleted},
			To:   store.PageStable,
		},
		PageSavedToCache: {
			From: []store.PageState{store.PageStable},
			To:   store.PageStable,
			Apply: func(p *store.Page) {
				p.AddedToCache = true
				p.CachePending = false
			},
		},
	}
}

// NewPageHandler constructs the page state machine backed by saver.
func NewPageHandler(saver PageSaver, logger *slog.Logger) *PageHandler {
	return NewHandler("page", pageTransitions(), Accessors[store.PageState, store.Page]{
		State:    func(p *store.Page) store.PageState { return p.State },
		SetState: func(p *store.Page, s store.PageState) { p.State = s },
		Save:     saver.SavePage,
		Attrs: func(p *store.Page) []logging.Attr {
			return []logging.Attr{
				logging.Int64(logging.FieldPageID, p.ID),
				logging.Int64(logging.FieldComicID, p.ComicID),
			}
		},
	}, logger)
}
