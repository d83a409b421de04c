package tasks_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"comicshelf/internal/archive"
	"comicshelf/internal/config"
	"comicshelf/internal/lifecycle"
	"comicshelf/internal/logging"
	"comicshelf/internal/organizer"
	"comicshelf/internal/services"
	"comicshelf/internal/store"
	"comicshelf/internal/tasks"
	"comicshelf/internal/testsupport"
)

type library struct {
	cfg      *config.Config
	store    *store.Store
	registry *tasks.Registry
	base     string
}

func newLibrary(t *testing.T) *library {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	lib := &tasks.Library{
		Store:     st,
		Comics:    lifecycle.NewComicHandler(st, logger),
		Organizer: organizer.New(logger),
		Config:    cfg,
		Logger:    logger,
	}
	return &library{cfg: cfg, store: st, registry: tasks.NewDefaultRegistry(lib), base: testsupport.BaseDir(cfg)}
}

// run pushes task through the persisted queue and executes the decoded copy.
func (l *library) run(t *testing.T, task tasks.Encoder) (tasks.Task, error) {
	t.Helper()
	ctx := context.Background()
	rec, err := tasks.Enqueue(ctx, l.store, task)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	decoded, err := l.registry.Decode(rec)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	err = decoded.Start(ctx)
	decoded.AfterExecution(ctx)
	return decoded, err
}

func (l *library) comic(t *testing.T, id int64) *store.Comic {
	t.Helper()
	comic, err := l.store.GetComic(context.Background(), id)
	if err != nil || comic == nil {
		t.Fatalf("GetComic %d: %v", id, err)
	}
	return comic
}

func TestAddComicImportsArchiveOnce(t *testing.T) {
	lib := newLibrary(t)
	path := testsupport.WriteComicArchive(t, filepath.Join(lib.base, "incoming", "Saga 001.cbz"), "01.jpg", "02.jpg")

	decoded, err := lib.run(t, &tasks.AddComic{Path: path})
	if err != nil {
		t.Fatalf("AddComic: %v", err)
	}
	id := decoded.(*tasks.AddComic).ComicID()
	if id == 0 {
		t.Fatal("expected comic id after import")
	}
	if comic := lib.comic(t, id); comic.State != store.ComicUnprocessed || comic.ArchiveType != "cbz" {
		t.Fatalf("unexpected imported comic %#v", comic)
	}

	again, err := lib.run(t, &tasks.AddComic{Path: path})
	if err != nil {
		t.Fatalf("second AddComic: %v", err)
	}
	if again.(*tasks.AddComic).ComicID() != id {
		t.Fatal("expected second import to resolve to the existing comic")
	}
	all, err := lib.store.ListComics(context.Background())
	if err != nil || len(all) != 1 {
		t.Fatalf("expected exactly one comic, got %d (%v)", len(all), err)
	}
}

func TestAddComicLogsSkipDecisionForKnownPath(t *testing.T) {
	lib := newLibrary(t)
	path := testsupport.WriteComicArchive(t, filepath.Join(lib.base, "incoming", "Saga 002.cbz"), "01.jpg")
	first, err := lib.run(t, &tasks.AddComic{Path: path})
	if err != nil {
		t.Fatalf("AddComic: %v", err)
	}

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	lib.registry = tasks.NewDefaultRegistry(&tasks.Library{
		Store:     lib.store,
		Comics:    lifecycle.NewComicHandler(lib.store, logger),
		Organizer: organizer.New(logger),
		Config:    lib.cfg,
		Logger:    logger,
	})
	if _, err := lib.run(t, &tasks.AddComic{Path: path}); err != nil {
		t.Fatalf("second AddComic: %v", err)
	}

	var entry map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var candidate map[string]any
		if err := json.Unmarshal(line, &candidate); err != nil {
			t.Fatalf("decode log line %q: %v", line, err)
		}
		if candidate["msg"] == "comic already in library" {
			entry = candidate
		}
	}
	if entry == nil {
		t.Fatalf("expected skip log, got %s", buf.String())
	}
	if entry["decision_result"] != "skipped" || entry["path"] != path {
		t.Fatalf("unexpected skip log %v", entry)
	}
	if id, ok := entry[logging.FieldComicID].(float64); !ok || int64(id) != first.(*tasks.AddComic).ComicID() {
		t.Fatalf("expected comic id in skip log, got %v", entry)
	}
}

func TestAddComicRejectsUnsupportedFiles(t *testing.T) {
	lib := newLibrary(t)
	text := testsupport.WriteFile(t, filepath.Join(lib.base, "incoming", "notes.txt"), "hello")
	if _, err := lib.run(t, &tasks.AddComic{Path: text}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for extension, got %v", err)
	}
	corrupt := testsupport.WriteFile(t, filepath.Join(lib.base, "incoming", "broken.cbz"), "not a zip")
	if _, err := lib.run(t, &tasks.AddComic{Path: corrupt}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for corrupt archive, got %v", err)
	}
	if _, err := lib.run(t, &tasks.AddComic{Path: "relative.cbz"}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for relative path, got %v", err)
	}
}

func TestDeleteAndUndeleteComics(t *testing.T) {
	lib := newLibrary(t)
	first := testsupport.SeedComic(t, lib.store, filepath.Join(lib.base, "a.cbz"), store.ComicStable)
	second := testsupport.SeedComic(t, lib.store, filepath.Join(lib.base, "b.cbz"), store.ComicChanged)

	_, err := lib.run(t, &tasks.DeleteComics{ComicIDs: []int64{first.ID, 9999, second.ID}})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for missing comic, got %v", err)
	}
	for _, id := range []int64{first.ID, second.ID} {
		if got := lib.comic(t, id).State; got != store.ComicDeleted {
			t.Fatalf("comic %d: expected deleted, got %s", id, got)
		}
	}

	if _, err := lib.run(t, &tasks.UndeleteComics{ComicIDs: []int64{second.ID}}); err != nil {
		t.Fatalf("UndeleteComics: %v", err)
	}
	if got := lib.comic(t, second.ID).State; got != store.ComicStable {
		t.Fatalf("expected restored comic to be stable, got %s", got)
	}
	if got := lib.comic(t, first.ID).State; got != store.ComicDeleted {
		t.Fatalf("expected untouched comic to stay deleted, got %s", got)
	}
}

func TestRescanComicRequiresSettledState(t *testing.T) {
	lib := newLibrary(t)
	stable := testsupport.SeedComic(t, lib.store, filepath.Join(lib.base, "a.cbz"), store.ComicStable)
	deleted := testsupport.SeedComic(t, lib.store, filepath.Join(lib.base, "b.cbz"), store.ComicDeleted)

	if _, err := lib.run(t, &tasks.RescanComic{ComicID: stable.ID}); err != nil {
		t.Fatalf("RescanComic: %v", err)
	}
	if got := lib.comic(t, stable.ID).State; got != store.ComicUnprocessed {
		t.Fatalf("expected unprocessed, got %s", got)
	}
	if _, err := lib.run(t, &tasks.RescanComic{ComicID: deleted.ID}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for deleted comic, got %v", err)
	}
}

func TestMoveComicsRelocatesFiles(t *testing.T) {
	lib := newLibrary(t)
	source := testsupport.WriteComicArchive(t, filepath.Join(lib.base, "incoming", "x.cbz"), "01.jpg")
	comic := testsupport.SeedComic(t, lib.store, source, store.ComicStable)
	dest := filepath.Join(lib.base, "shelf")

	if _, err := lib.run(t, &tasks.MoveComics{ComicIDs: []int64{comic.ID}, Destination: dest}); err != nil {
		t.Fatalf("MoveComics: %v", err)
	}
	moved := lib.comic(t, comic.ID)
	if moved.FilePath != filepath.Join(dest, "x.cbz") {
		t.Fatalf("unexpected path %s", moved.FilePath)
	}
	if _, err := os.Stat(moved.FilePath); err != nil {
		t.Fatalf("moved file missing: %v", err)
	}
	if _, err := os.Stat(source); !os.IsNotExist(err) {
		t.Fatalf("expected source to be gone, got %v", err)
	}
}

func TestConvertComicWritesCBZWithMetadata(t *testing.T) {
	lib := newLibrary(t)
	source := testsupport.WriteComicArchive(t, filepath.Join(lib.base, "incoming", "x.zip"), "01.jpg", "02.jpg")
	comic := testsupport.SeedComic(t, lib.store, source, store.ComicStable, func(c *store.Comic) {
		c.Series = "Saga"
		c.IssueNumber = "1"
		c.PageCount = 2
	})

	if _, err := lib.run(t, &tasks.ConvertComic{ComicID: comic.ID}); err != nil {
		t.Fatalf("ConvertComic: %v", err)
	}
	converted := lib.comic(t, comic.ID)
	want := filepath.Join(lib.base, "incoming", "x.cbz")
	if converted.FilePath != want || converted.State != store.ComicUnprocessed {
		t.Fatalf("unexpected converted comic %#v", converted)
	}
	reader, err := archive.Open(want)
	if err != nil {
		t.Fatalf("open converted archive: %v", err)
	}
	defer reader.Close()
	info, err := reader.ComicInfo()
	if err != nil || info == nil || info.Series != "Saga" {
		t.Fatalf("expected embedded metadata, got %#v (%v)", info, err)
	}
	if len(reader.Pages()) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(reader.Pages()))
	}
	if _, err := os.Stat(source); !os.IsNotExist(err) {
		t.Fatalf("expected original archive to be removed, got %v", err)
	}
}

func TestEnqueueRefusesMonitorAndDecodesIDs(t *testing.T) {
	lib := newLibrary(t)
	monitor := tasks.NewMonitor(tasks.MonitorConfig{Queue: lib.store})
	if _, err := tasks.Enqueue(context.Background(), lib.store, monitor); err == nil {
		t.Fatal("expected monitor task to be rejected")
	}

	rec, err := tasks.Enqueue(context.Background(), lib.store, &tasks.DeleteComics{ComicIDs: []int64{3, 1, 3}})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	decoded, err := lib.registry.Decode(rec)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	ids := decoded.(*tasks.DeleteComics).ComicIDs
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 3 {
		t.Fatalf("unexpected decoded ids %v", ids)
	}

	rec.Properties[tasks.PropComicIDs] = "1,abc"
	if _, err := lib.registry.Decode(rec); !errors.Is(err, tasks.ErrInvalidProperties) {
		t.Fatalf("expected ErrInvalidProperties, got %v", err)
	}
	rec.TaskType = string(tasks.TypeMonitorQueue)
	if _, err := lib.registry.Decode(rec); !errors.Is(err, tasks.ErrNoDecoder) {
		t.Fatalf("expected monitor tasks to have no decoder, got %v", err)
	}
}
