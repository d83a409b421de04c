package jobs

import (
	"context"
	"fmt"

	"comicshelf/internal/events"
	"comicshelf/internal/options"
	"comicshelf/internal/store"
)

// Batch job identifiers.
const (
	JobProcessComics    = "process_comics"
	JobLoadPageHashes   = "load_page_hashes"
	JobMarkBlockedPages = "mark_blocked_pages"
	JobAddCoversToCache = "add_covers_to_image_cache"
	JobUpdateMetadata   = "update_metadata"
	JobRecreateComics   = "recreate_comics"
	JobPurgeLibrary     = "purge_library"
	JobOrganizeLibrary  = "organize_library"
)

// Job specific launch parameters.
const (
	ParamTargetDirectory = "targetDirectory"
	ParamRenamingRule    = "renamingRule"
)

// CoverPreparer flags cover pages that still need an image cache entry.
type CoverPreparer interface {
	PrepareCoverPagesWithoutCacheEntries(ctx context.Context) (int64, error)
}

// Definitions returns the launch rules for every job type.
func Definitions(preparer CoverPreparer, opts ConfigurationStore) []Definition {
	return []Definition{
		{
			JobID:          JobProcessComics,
			Kind:           store.EligibleUnprocessedComics,
			ErrorThreshold: true,
			Topics:         []events.Topic{events.TopicComicsUnprocessed},
		},
		{
			JobID:          JobLoadPageHashes,
			Kind:           store.EligiblePagesWithoutHash,
			ErrorThreshold: true,
			Topics:         []events.Topic{events.TopicPagesHashRequired},
		},
		{
			JobID:          JobMarkBlockedPages,
			Kind:           store.EligibleBlockedPages,
			ErrorThreshold: true,
			Topics:         []events.Topic{events.TopicPagesHashed},
		},
		{
			JobID:          JobAddCoversToCache,
			Kind:           store.EligibleCoverPagesWithoutCache,
			Prepare:        prepareCoverPages(preparer, opts),
			ErrorThreshold: true,
			Topics:         []events.Topic{events.TopicComicsProcessed},
		},
		{
			JobID:          JobUpdateMetadata,
			Kind:           store.EligibleComicsForMetadata,
			ErrorThreshold: true,
			Topics:         []events.Topic{events.TopicComicsMarkedForMetadata},
		},
		{
			JobID:          JobRecreateComics,
			Kind:           store.EligibleComicsForRecreation,
			ErrorThreshold: true,
			Topics:         []events.Topic{events.TopicComicsMarkedForRecreation},
		},
		{
			JobID:          JobPurgeLibrary,
			Kind:           store.EligibleComicsForPurge,
			ErrorThreshold: true,
			Topics:         []events.Topic{events.TopicComicsMarkedForDeletion},
		},
		{
			JobID: JobOrganizeLibrary,
			Kind:  store.EligibleComicsForOrganization,
			Required: []Requirement{
				{Option: options.KeyTargetDirectory, Param: ParamTargetDirectory},
				{Option: options.KeyRenamingRule, Param: ParamRenamingRule},
			},
			ErrorThreshold: true,
			Topics:         []events.Topic{events.TopicComicsMarkedForOrganizing},
		},
	}
}

func prepareCoverPages(preparer CoverPreparer, opts ConfigurationStore) func(context.Context) error {
	if preparer == nil {
		return nil
	}
	return func(ctx context.Context) error {
		if opts != nil && opts.FeatureEnabled(ctx, options.FeatureSkipCachePrepare) {
			return nil
		}
		if _, err := preparer.PrepareCoverPagesWithoutCacheEntries(ctx); err != nil {
			return fmt.Errorf("prepare cover pages: %w", err)
		}
		return nil
	}
}
