package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"comicshelf/internal/archive"
	"comicshelf/internal/batch"
	"comicshelf/internal/config"
	"comicshelf/internal/events"
	"comicshelf/internal/lifecycle"
	"comicshelf/internal/logging"
	"comicshelf/internal/metadata"
	"comicshelf/internal/options"
	"comicshelf/internal/organizer"
	"comicshelf/internal/store"
)

// Bodies implements the batch jobs.
type Bodies struct {
	store     *store.Store
	comics    *lifecycle.ComicHandler
	pages     *lifecycle.PageHandler
	options   ConfigurationStore
	organizer *organizer.Organizer
	metadata  metadata.Chain
	bus       lifecycle.Publisher
	cacheDir  string
	logger    *slog.Logger
}

// BodiesConfig carries the collaborators of the job bodies. Metadata and Bus
// are optional.
type BodiesConfig struct {
	Store     *store.Store
	Comics    *lifecycle.ComicHandler
	Pages     *lifecycle.PageHandler
	Options   ConfigurationStore
	Organizer *organizer.Organizer
	Metadata  metadata.Chain
	Bus       lifecycle.Publisher
	CacheDir  string
	Logger    *slog.Logger
}

// NewBodies constructs the job bodies.
func NewBodies(cfg BodiesConfig) *Bodies {
	source := cfg.Metadata
	if len(source) == 0 {
		source = metadata.Default()
	}
	org := cfg.Organizer
	if org == nil {
		org = organizer.New(cfg.Logger)
	}
	return &Bodies{
		store:     cfg.Store,
		comics:    cfg.Comics,
		pages:     cfg.Pages,
		options:   cfg.Options,
		organizer: org,
		metadata:  source,
		bus:       cfg.Bus,
		cacheDir:  cfg.CacheDir,
		logger:    logging.NewComponentLogger(cfg.Logger, "jobs"),
	}
}

// Jobs returns the batch job definitions backed by these bodies.
func (b *Bodies) Jobs() []batch.Job {
	base := []string{batch.ParamStartedAt}
	return []batch.Job{
		{ID: JobProcessComics, Description: "Read new and rescanned archives", Required: base, Restartable: true, Run: b.processComics},
		{ID: JobLoadPageHashes, Description: "Hash pages that have no content hash", Required: base, Restartable: true, Run: b.loadPageHashes},
		{ID: JobMarkBlockedPages, Description: "Delete pages whose hash is blocked", Required: base, Restartable: true, Run: b.markBlockedPages},
		{ID: JobAddCoversToCache, Description: "Copy cover pages into the image cache", Required: base, Restartable: true, Run: b.addCoversToImageCache},
		{ID: JobUpdateMetadata, Description: "Refresh metadata of marked comics", Required: base, Restartable: true, Run: b.updateMetadata},
		{ID: JobRecreateComics, Description: "Rewrite archives of marked comics", Required: base, Restartable: true, Run: b.recreateComics},
		{ID: JobPurgeLibrary, Description: "Remove comics marked for deletion", Required: base, Restartable: true, Run: b.purgeLibrary},
		{
			ID:          JobOrganizeLibrary,
			Description: "Move marked comics to their library location",
			Required:    []string{batch.ParamStartedAt, ParamTargetDirectory, ParamRenamingRule},
			Restartable: true,
			Validate: func(p batch.Params) error {
				rule, _ := p.String(ParamRenamingRule)
				return organizer.ValidateRule(rule)
			},
			Run: b.organizeLibrary,
		},
	}
}

// Register adds every job to engine.
func (b *Bodies) Register(engine *batch.Engine) error {
	for _, job := range b.Jobs() {
		if err := engine.Register(job); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bodies) chunkSize(ctx context.Context) int {
	if b.options == nil {
		return config.Default().Batch.ChunkSize
	}
	return b.options.IntOption(ctx, options.KeyChunkSize, config.Default().Batch.ChunkSize)
}

func (b *Bodies) comicReader(kind store.EligibilityKind) batch.ChunkReader[*store.Comic] {
	return func(ctx context.Context, afterID int64, limit int) ([]*store.Comic, error) {
		return b.store.EligibleComics(ctx, kind, afterID, limit)
	}
}

func (b *Bodies) pageReader(kind store.EligibilityKind) batch.ChunkReader[*store.Page] {
	return func(ctx context.Context, afterID int64, limit int) ([]*store.Page, error) {
		return b.store.EligiblePages(ctx, kind, afterID, limit)
	}
}

func comicID(c *store.Comic) int64 { return c.ID }

func pageID(p *store.Page) int64 { return p.ID }

func settled(comic *store.Comic) bool {
	return comic.State == store.ComicStable || comic.State == store.ComicChanged
}

func (b *Bodies) publish(topic events.Topic) {
	if b.bus == nil {
		return
	}
	if err := b.bus.Publish(events.Event{Topic: topic}); err != nil {
		b.logger.Debug("trigger not published", logging.String("topic", string(topic)), logging.Error(err))
	}
}

// archiveCache keeps the most recently opened archive so consecutive pages
// of one comic share a reader.
type archiveCache struct {
	store   *store.Store
	comicID int64
	comic   *store.Comic
	reader  *archive.Reader
}

func (c *archiveCache) open(ctx context.Context, id int64) (*store.Comic, *archive.Reader, error) {
	if c.reader != nil && c.comicID == id {
		return c.comic, c.reader, nil
	}
	c.Close()
	comic, err := c.store.GetComic(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if comic == nil {
		return nil, nil, fmt.Errorf("comic %d not found", id)
	}
	reader, err := archive.Open(comic.FilePath)
	if err != nil {
		return nil, nil, err
	}
	c.comicID, c.comic, c.reader = id, comic, reader
	return comic, reader, nil
}

func (c *archiveCache) Close() {
	if c.reader != nil {
		_ = c.reader.Close()
	}
	c.comicID, c.comic, c.reader = 0, nil, nil
}
