package lifecycle

import (
	"context"
	"log/slog"

	"comicshelf/internal/logging"
	"comicshelf/internal/store"
)

// ComicEvent names a comic lifecycle event.
type ComicEvent string

const (
	ComicReadyForProcessing      ComicEvent = "ready_for_processing"
	ComicContentsProcessed       ComicEvent = "contents_processed"
	ComicProcessingComplete      ComicEvent = "processing_complete"
	ComicDetailsUpdated          ComicEvent = "details_updated"
	ComicMarkedForMetadataUpdate ComicEvent = "marked_for_metadata_update"
	ComicMetadataUpdated         ComicEvent = "metadata_updated"
	ComicMarkedForRecreation     ComicEvent = "marked_for_recreation"
	ComicArchiveRecreated        ComicEvent = "archive_recreated"
	ComicMarkedForOrganization   ComicEvent = "marked_for_organization"
	ComicOrganized               ComicEvent = "organized"
	ComicMarkedForDeletion       ComicEvent = "marked_for_deletion"
	ComicUnmarkedForDeletion     ComicEvent = "unmarked_for_deletion"
)

// ComicSaver persists comics.
type ComicSaver interface {
	SaveComic(ctx context.Context, comic *store.Comic) error
}

// ComicHandler is the comic state machine.
type ComicHandler = Handler[store.ComicState, ComicEvent, store.Comic]

// ComicListener observes comic transitions.
type ComicListener = Listener[store.ComicState, store.Comic]

var settled = []store.ComicState{store.ComicStable, store.ComicChanged}

func comicTransitions() map[ComicEvent]Transition[store.ComicState, store.Comic] {
	live := []store.ComicState{
		store.ComicAdded, store.ComicUnprocessed, store.ComicContentsProcessed,
		store.ComicStable, store.ComicChanged,
	}
	return map[ComicEvent]Transition[store.ComicState, store.Comic]{
		ComicReadyForProcessing: {
			From: []store.ComicState{store.ComicAdded, store.ComicStable, store.ComicChanged},
			To:   store.ComicUnprocessed,
		},
		ComicContentsProcessed: {
			From: []store.ComicState{store.ComicUnprocessed},
			To:   store.ComicContentsProcessed,
		},
		ComicProcessingComplete: {
			From: []store.ComicState{store.ComicContentsProcessed},
			To:   store.ComicStable,
		},
		ComicDetailsUpdated: {
			From:  settled,
			To:    store.ComicChanged,
			Apply: func(c *store.Comic) { c.OrganizeMarked = true },
		},
		ComicMarkedForMetadataUpdate: {
			From:  settled,
			To:    store.ComicChanged,
			Apply: func(c *store.Comic) { c.MetadataUpdateMarked = true },
		},
		ComicMetadataUpdated: {
			From: settled,
			To:   store.ComicChanged,
			Apply: func(c *store.Comic) {
				c.MetadataUpdateMarked = false
				c.OrganizeMarked = true
			},
		},
		ComicMarkedForRecreation: {
			From:  settled,
			To:    store.ComicChanged,
			Apply: func(c *store.Comic) { c.RecreateMarked = true },
		},
		ComicArchiveRecreated: {
			From:  settled,
			To:    store.ComicStable,
			Apply: func(c *store.Comic) { c.RecreateMarked = false },
		},
		ComicMarkedForOrganization: {
			From:  settled,
			To:    store.ComicChanged,
			Apply: func(c *store.Comic) { c.OrganizeMarked = true },
		},
		ComicOrganized: {
			From:  settled,
			To:    store.ComicStable,
			Apply: func(c *store.Comic) { c.OrganizeMarked = false },
		},
		ComicMarkedForDeletion: {
			From: live,
			To:   store.ComicDeleted,
		},
		ComicUnmarkedForDeletion: {
			From: []store.ComicState{store.ComicDeleted},
			To:   store.ComicStable,
		},
	}
}

// NewComicHandler constructs the comic state machine backed by saver.
func NewComicHandler(saver ComicSaver, logger *slog.Logger) *ComicHandler {
	return NewHandler("comic", comicTransitions(), Accessors[store.ComicState, store.Comic]{
		State:    func(c *store.Comic) store.ComicState { return c.State },
		SetState: func(c *store.Comic, s store.ComicState) { c.State = s },
		Save:     saver.SaveComic,
		Attrs: func(c *store.Comic) []logging.Attr {
			return []logging.Attr{
				logging.Int64(logging.FieldComicID, c.ID),
				logging.String("filename", c.Filename()),
			}
		},
	}, logger)
}
