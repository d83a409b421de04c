package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"

	"comicshelf/internal/archive"
	"comicshelf/internal/batch"
	"comicshelf/internal/lifecycle"
	"comicshelf/internal/logging"
	"comicshelf/internal/metadata"
	"comicshelf/internal/options"
	"comicshelf/internal/services"
	"comicshelf/internal/store"
)

func (b *Bodies) processComics(ctx context.Context, exec *batch.Execution) error {
	return batch.ProcessChunks(ctx, exec, b.chunkSize(ctx), b.comicReader(store.EligibleUnprocessedComics), comicID, b.processComic)
}

// processComic refreshes the page list and embedded metadata of an
// unprocessed comic and advances it to contents_processed.
func (b *Bodies) processComic(ctx context.Context, comic *store.Comic) error {
	reader, err := archive.Open(comic.FilePath)
	if err != nil {
		return services.Wrap(services.ErrValidation, "jobs", "open archive", fmt.Sprintf("Cannot read %s", comic.FilePath), err)
	}
	names := reader.Pages()
	info, infoErr := reader.ComicInfo()
	_ = reader.Close()
	if infoErr != nil {
		logging.WarnWithContext(b.logger, "embedded metadata unreadable", "comicinfo_invalid",
			logging.Int64(logging.FieldComicID, comic.ID),
			logging.Error(infoErr),
			logging.String(logging.FieldImpact, "metadata falls back to the file name"),
		)
	}

	current, err := b.store.PagesForComic(ctx, comic.ID)
	if err != nil {
		return err
	}
	if !samePages(current, names) {
		if _, err := b.store.ReplacePages(ctx, comic.ID, names); err != nil {
			return err
		}
	}
	comic.PageCount = len(names)
	if metadata.Apply(comic, info, false) {
		comic.MetadataSource = metadata.SourceComicInfo
	}

	b.comics.FireEvent(ctx, comic, lifecycle.ComicContentsProcessed)
	return b.completeIfHashed(ctx, comic)
}

func samePages(pages []*store.Page, names []string) bool {
	if len(pages) != len(names) {
		return false
	}
	for idx, page := range pages {
		if page.Filename != names[idx] {
			return false
		}
	}
	return true
}

// completeIfHashed finishes processing once every page of comic carries a
// hash. Comics left without a series are queued for a metadata update.
func (b *Bodies) completeIfHashed(ctx context.Context, comic *store.Comic) error {
	if comic.State != store.ComicContentsProcessed {
		return nil
	}
	pages, err := b.store.PagesForComic(ctx, comic.ID)
	if err != nil {
		return err
	}
	for _, page := range pages {
		if page.State == store.PageStable && page.Hash == "" {
			return nil
		}
	}
	b.comics.FireEvent(ctx, comic, lifecycle.ComicProcessingComplete)
	if comic.State == store.ComicStable && comic.Series == "" {
		b.comics.FireEvent(ctx, comic, lifecycle.ComicMarkedForMetadataUpdate)
	}
	return nil
}

func (b *Bodies) updateMetadata(ctx context.Context, exec *batch.Execution) error {
	return batch.ProcessChunks(ctx, exec, b.chunkSize(ctx), b.comicReader(store.EligibleComicsForMetadata), comicID, b.updateComicMetadata)
}

func (b *Bodies) updateComicMetadata(ctx context.Context, comic *store.Comic) error {
	if !settled(comic) {
		return nil
	}
	info, source, err := b.metadata.Lookup(ctx, comic)
	if err != nil {
		return services.Wrap(services.ErrExternal, "jobs", "metadata lookup", "Metadata sources failed", err)
	}
	if info == nil {
		b.logger.Info("no metadata found", logging.Int64(logging.FieldComicID, comic.ID), logging.String("filename", comic.Filename()))
		b.comics.FireEvent(ctx, comic, lifecycle.ComicMetadataUpdated)
		return nil
	}
	metadata.Apply(comic, info, true)
	comic.MetadataSource = source
	b.comics.FireEvent(ctx, comic, lifecycle.ComicMetadataUpdated)
	if source != metadata.SourceComicInfo && !comic.RecreateMarked {
		// Embed what was found so the archive carries it from now on.
		b.comics.FireEvent(ctx, comic, lifecycle.ComicMarkedForRecreation)
	}
	return nil
}

func (b *Bodies) recreateComics(ctx context.Context, exec *batch.Execution) error {
	return batch.ProcessChunks(ctx, exec, b.chunkSize(ctx), b.comicReader(store.EligibleComicsForRecreation), comicID, b.recreateComic)
}

// recreateComic rewrites the archive without deleted pages and with the
// current metadata embedded. Hashes of surviving pages carry over.
func (b *Bodies) recreateComic(ctx context.Context, comic *store.Comic) error {
	if !settled(comic) {
		return nil
	}
	pages, err := b.store.PagesForComic(ctx, comic.ID)
	if err != nil {
		return err
	}
	var kept []string
	hashes := make(map[string]string, len(pages))
	for _, page := range pages {
		if page.State == store.PageDeleted {
			continue
		}
		kept = append(kept, page.Filename)
		hashes[page.Filename] = page.Hash
	}

	written, err := archive.Rewrite(comic.FilePath, comic.FilePath, func(name string) bool {
		return slices.Contains(kept, name)
	}, metadata.ToComicInfo(comic, len(kept)))
	if err != nil {
		return services.Wrap(services.ErrTransient, "jobs", "rewrite archive", fmt.Sprintf("Cannot rewrite %s", comic.FilePath), err)
	}

	replaced, err := b.store.ReplacePages(ctx, comic.ID, kept)
	if err != nil {
		return err
	}
	for _, page := range replaced {
		if hash := hashes[page.Filename]; hash != "" {
			if err := b.store.SetPageHash(ctx, page.ID, hash); err != nil {
				return err
			}
		}
	}
	comic.PageCount = written
	b.comics.FireEvent(ctx, comic, lifecycle.ComicArchiveRecreated)
	return nil
}

func (b *Bodies) purgeLibrary(ctx context.Context, exec *batch.Execution) error {
	deleteFiles := b.options != nil && b.options.FeatureEnabled(ctx, options.KeyDeleteRemovedFiles)
	return batch.ProcessChunks(ctx, exec, b.chunkSize(ctx), b.comicReader(store.EligibleComicsForPurge), comicID,
		func(ctx context.Context, comic *store.Comic) error {
			return b.purgeComic(ctx, comic, deleteFiles)
		})
}

func (b *Bodies) purgeComic(ctx context.Context, comic *store.Comic, deleteFile bool) error {
	if deleteFile {
		if err := os.Remove(comic.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return services.Wrap(services.ErrTransient, "jobs", "remove file", fmt.Sprintf("Cannot remove %s", comic.FilePath), err)
		}
	}
	if _, err := b.store.DeleteComic(ctx, comic.ID); err != nil {
		return err
	}
	b.logger.Info("comic purged",
		logging.Int64(logging.FieldComicID, comic.ID),
		logging.String("path", comic.FilePath),
		logging.Bool("file_removed", deleteFile),
	)
	return nil
}

func (b *Bodies) organizeLibrary(ctx context.Context, exec *batch.Execution) error {
	targetDir, _ := exec.Params.String(ParamTargetDirectory)
	rule, _ := exec.Params.String(ParamRenamingRule)
	return batch.ProcessChunks(ctx, exec, b.chunkSize(ctx), b.comicReader(store.EligibleComicsForOrganization), comicID,
		func(ctx context.Context, comic *store.Comic) error {
			if !settled(comic) {
				return nil
			}
			result, err := b.organizer.Relocate(ctx, comic, targetDir, rule)
			if err != nil {
				return err
			}
			comic.FilePath = result.Target
			b.comics.FireEvent(ctx, comic, lifecycle.ComicOrganized)
			return nil
		})
}
