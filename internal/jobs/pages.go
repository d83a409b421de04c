package jobs

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"comicshelf/internal/batch"
	"comicshelf/internal/events"
	"comicshelf/internal/fileutil"
	"comicshelf/internal/lifecycle"
	"comicshelf/internal/logging"
	"comicshelf/internal/services"
	"comicshelf/internal/store"
)

func (b *Bodies) loadPageHashes(ctx context.Context, exec *batch.Execution) error {
	cache := &archiveCache{store: b.store}
	defer cache.Close()
	touched := map[int64]struct{}{}

	err := batch.ProcessChunks(ctx, exec, b.chunkSize(ctx), b.pageReader(store.EligiblePagesWithoutHash), pageID,
		func(ctx context.Context, page *store.Page) error {
			_, reader, err := cache.open(ctx, page.ComicID)
			if err != nil {
				return err
			}
			hash, err := reader.HashPage(page.Filename)
			if err != nil {
				return err
			}
			touched[page.ComicID] = struct{}{}
			return b.store.SetPageHash(ctx, page.ID, hash)
		})
	cache.Close()

	for id := range touched {
		comic, getErr := b.store.GetComic(ctx, id)
		if getErr != nil || comic == nil {
			continue
		}
		if completeErr := b.completeIfHashed(ctx, comic); completeErr != nil {
			b.logger.Debug("completion check failed", logging.Int64(logging.FieldComicID, id), logging.Error(completeErr))
		}
	}
	if len(touched) > 0 {
		b.publish(events.TopicPagesHashed)
	}
	return err
}

func (b *Bodies) markBlockedPages(ctx context.Context, exec *batch.Execution) error {
	affected := map[int64]struct{}{}
	err := batch.ProcessChunks(ctx, exec, b.chunkSize(ctx), b.pageReader(store.EligibleBlockedPages), pageID,
		func(ctx context.Context, page *store.Page) error {
			b.pages.FireEvent(ctx, page, lifecycle.PageMarkForDeletion)
			affected[page.ComicID] = struct{}{}
			return nil
		})

	for id := range affected {
		comic, getErr := b.store.GetComic(ctx, id)
		if getErr != nil || comic == nil || !settled(comic) || comic.RecreateMarked {
			continue
		}
		b.comics.FireEvent(ctx, comic, lifecycle.ComicMarkedForRecreation)
	}
	return err
}

func (b *Bodies) addCoversToImageCache(ctx context.Context, exec *batch.Execution) error {
	if strings.TrimSpace(b.cacheDir) == "" {
		return services.Wrap(services.ErrConfiguration, "jobs", "image cache", "Image cache directory is not configured", nil)
	}
	cache := &archiveCache{store: b.store}
	defer cache.Close()
	return batch.ProcessChunks(ctx, exec, b.chunkSize(ctx), b.pageReader(store.EligibleCoverPagesWithoutCache), pageID,
		func(ctx context.Context, page *store.Page) error {
			return b.cacheCover(ctx, cache, page)
		})
}

// cacheCover copies a cover page into the image cache, named by its hash.
func (b *Bodies) cacheCover(ctx context.Context, cache *archiveCache, page *store.Page) error {
	if len(page.Hash) < 2 {
		return fmt.Errorf("page %d has no hash", page.ID)
	}
	existing, err := b.store.ImageCachePath(ctx, page.Hash)
	if err != nil {
		return err
	}
	if existing == "" {
		_, reader, err := cache.open(ctx, page.ComicID)
		if err != nil {
			return err
		}
		target := filepath.Join(b.cacheDir, page.Hash[:2], page.Hash+strings.ToLower(filepath.Ext(page.Filename)))
		err = fileutil.WriteFileAtomic(target, func(w io.Writer) error {
			rc, err := reader.OpenPage(page.Filename)
			if err != nil {
				return err
			}
			defer rc.Close()
			_, err = io.Copy(w, rc)
			return err
		})
		if err != nil {
			return services.Wrap(services.ErrTransient, "jobs", "write cache entry", "Cannot write cover image", err)
		}
		if err := b.store.AddImageCacheEntry(ctx, page.Hash, target); err != nil {
			return err
		}
	}
	b.pages.FireEvent(ctx, page, lifecycle.PageSavedToCache)
	return nil
}
