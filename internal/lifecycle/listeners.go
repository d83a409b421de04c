package lifecycle

import (
	"context"
	"errors"
	"log/slog"

	"comicshelf/internal/events"
	"comicshelf/internal/logging"
	"comicshelf/internal/notifications"
	"comicshelf/internal/store"
)

// ComicNotificationListener publishes every comic transition.
func ComicNotificationListener(svc notifications.Service, logger *slog.Logger) ComicListener {
	return func(ctx context.Context, from, to store.ComicState, comic *store.Comic) error {
		err := svc.Publish(ctx, notifications.EventComicStateChanged, notifications.Payload{
			"comicId":  comic.ID,
			"filename": comic.Filename(),
			"from":     string(from),
			"to":       string(to),
		})
		return filterThrottled(ctx, logger, err)
	}
}

// PageNotificationListener publishes every page transition.
func PageNotificationListener(svc notifications.Service, logger *slog.Logger) PageListener {
	return func(ctx context.Context, from, to store.PageState, page *store.Page) error {
		err := svc.Publish(ctx, notifications.EventPageStateChanged, notifications.Payload{
			"pageId":       page.ID,
			"comicId":      page.ComicID,
			"from":         string(from),
			"to":           string(to),
			"addedToCache": page.AddedToCache,
		})
		return filterThrottled(ctx, logger, err)
	}
}

func filterThrottled(ctx context.Context, logger *slog.Logger, err error) error {
	if errors.Is(err, notifications.ErrThrottled) && !errors.Is(err, notifications.ErrPublish) {
		if logger != nil {
			logger.DebugContext(ctx, "notification throttled", logging.Error(err))
		}
		return nil
	}
	return err
}

// Publisher is the bus surface the trigger listener needs.
type Publisher interface {
	Publish(event events.Event) error
}

// ComicTriggerListener publishes bus events that wake the job initiators
// interested in the comic's new state.
func ComicTriggerListener(bus Publisher) ComicListener {
	return func(_ context.Context, from, to store.ComicState, comic *store.Comic) error {
		var errs []error
		for _, topic := range comicTopics(from, to, comic) {
			if err := bus.Publish(events.Event{Topic: topic, ComicID: comic.ID, Reason: string(to)}); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}

func comicTopics(from, to store.ComicState, comic *store.Comic) []events.Topic {
	var topics []events.Topic
	switch {
	case to == store.ComicUnprocessed:
		topics = append(topics, events.TopicComicsUnprocessed)
	case to == store.ComicContentsProcessed:
		topics = append(topics, events.TopicPagesHashRequired)
	case to == store.ComicDeleted:
		topics = append(topics, events.TopicComicsMarkedForDeletion)
	case to == store.ComicStable && from == store.ComicContentsProcessed:
		topics = append(topics, events.TopicComicsProcessed)
	}
	if to == store.ComicDeleted {
		return topics
	}
	if comic.RecreateMarked {
		topics = append(topics, events.TopicComicsMarkedForRecreation)
	}
	if comic.MetadataUpdateMarked {
		topics = append(topics, events.TopicComicsMarkedForMetadata)
	}
	if comic.OrganizeMarked {
		topics = append(topics, events.TopicComicsMarkedForOrganizing)
	}
	return topics
}
