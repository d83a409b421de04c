package tasks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"comicshelf/internal/archive"
	"comicshelf/internal/lifecycle"
	"comicshelf/internal/logging"
	"comicshelf/internal/metadata"
	"comicshelf/internal/services"
	"comicshelf/internal/store"
)

var rescannable = []store.ComicState{store.ComicAdded, store.ComicStable, store.ComicChanged}

func (l *Library) loadComic(ctx context.Context, op string, id int64) (*store.Comic, error) {
	comic, err := l.Store.GetComic(ctx, id)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "tasks", op, "Failed to load comic", err)
	}
	if comic == nil {
		return nil, services.Wrap(services.ErrNotFound, "tasks", op, fmt.Sprintf("Comic %d does not exist", id), nil)
	}
	return comic, nil
}

// AddComic imports a single archive into the library.
type AddComic struct {
	Path string

	lib     *Library
	comicID int64
}

func (t *AddComic) Encode() (Type, Properties) {
	return TypeAddComic, Properties{PropPath: t.Path}
}

func (t *AddComic) Description() string { return "Add comic " + t.Path }

// ComicID reports the id of the imported comic once Start succeeded.
func (t *AddComic) ComicID() int64 { return t.comicID }

func (t *AddComic) Start(ctx context.Context) error {
	path := filepath.Clean(t.Path)
	if !filepath.IsAbs(path) {
		return services.Wrap(services.ErrValidation, "tasks", "add comic", "Path must be absolute: "+t.Path, nil)
	}
	if cfg := t.lib.Config; cfg != nil && !cfg.SupportsExtension(path) {
		return services.Wrap(services.ErrValidation, "tasks", "add comic", "Unsupported file extension: "+filepath.Ext(path), nil)
	}
	archiveType, err := archive.TypeFor(path)
	if err != nil {
		return services.Wrap(services.ErrValidation, "tasks", "add comic", "Unsupported archive", err)
	}

	existing, err := t.lib.Store.FindComicByPath(ctx, path)
	if err != nil {
		return services.Wrap(services.ErrTransient, "tasks", "add comic", "Failed to look up comic", err)
	}
	if existing != nil {
		t.comicID = existing.ID
		attrs := append([]logging.Attr{
			logging.Int64(logging.FieldComicID, existing.ID),
			logging.String("path", path),
		}, logging.DecisionAttrs("comic_import", "skipped", "path already imported")...)
		t.lib.logger().Info("comic already in library", logging.Args(attrs...)...)
		return nil
	}

	reader, err := archive.Open(path)
	if err != nil {
		return services.Wrap(services.ErrValidation, "tasks", "add comic", "Cannot read archive", err)
	}
	_ = reader.Close()

	comic, err := t.lib.Store.CreateComic(ctx, path, archiveType)
	if err != nil {
		return services.Wrap(services.ErrTransient, "tasks", "add comic", "Failed to create comic", err)
	}
	t.comicID = comic.ID
	t.lib.Comics.FireEvent(ctx, comic, lifecycle.ComicReadyForProcessing)
	return nil
}

func (t *AddComic) AfterExecution(context.Context) {}

// ConvertComic rewrites an archive as a CBZ carrying the comic's metadata.
type ConvertComic struct {
	ComicID int64

	lib *Library
}

func (t *ConvertComic) Encode() (Type, Properties) {
	return TypeConvertComic, Properties{PropComicID: strconv.FormatInt(t.ComicID, 10)}
}

func (t *ConvertComic) Description() string {
	return fmt.Sprintf("Convert comic %d", t.ComicID)
}

func (t *ConvertComic) Start(ctx context.Context) error {
	comic, err := t.lib.loadComic(ctx, "convert comic", t.ComicID)
	if err != nil {
		return err
	}
	if !slices.Contains(rescannable, comic.State) {
		return services.Wrap(services.ErrValidation, "tasks", "convert comic",
			fmt.Sprintf("Comic %d is %s", comic.ID, comic.State), nil)
	}

	source := comic.FilePath
	target := strings.TrimSuffix(source, filepath.Ext(source)) + ".cbz"
	if target != source {
		if _, err := os.Stat(target); err == nil {
			return services.Wrap(services.ErrValidation, "tasks", "convert comic", "Target already exists: "+target, nil)
		}
	}
	written, err := archive.Rewrite(source, target, nil, metadata.ToComicInfo(comic, comic.PageCount))
	if err != nil {
		return services.Wrap(services.ErrExternal, "tasks", "convert comic", "Failed to rewrite archive", err)
	}
	if target != source {
		if err := os.Remove(source); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.WarnWithContext(t.lib.logger(), "original archive left behind", "convert_cleanup_failed",
				logging.Int64(logging.FieldComicID, comic.ID),
				logging.String("path", source),
				logging.Error(err),
				logging.String(logging.FieldImpact, "duplicate file remains on disk"),
			)
		}
	}

	comic.FilePath = target
	comic.ArchiveType = "cbz"
	comic.PageCount = written
	t.lib.Comics.FireEvent(ctx, comic, lifecycle.ComicReadyForProcessing)
	return nil
}

func (t *ConvertComic) AfterExecution(context.Context) {}

// RescanComic sends a comic back through content processing.
type RescanComic struct {
	ComicID int64

	lib *Library
}

func (t *RescanComic) Encode() (Type, Properties) {
	return TypeRescanComic, Properties{PropComicID: strconv.FormatInt(t.ComicID, 10)}
}

func (t *RescanComic) Description() string {
	return fmt.Sprintf("Rescan comic %d", t.ComicID)
}

func (t *RescanComic) Start(ctx context.Context) error {
	comic, err := t.lib.loadComic(ctx, "rescan comic", t.ComicID)
	if err != nil {
		return err
	}
	if !slices.Contains(rescannable, comic.State) {
		return services.Wrap(services.ErrValidation, "tasks", "rescan comic",
			fmt.Sprintf("Comic %d is %s", comic.ID, comic.State), nil)
	}
	t.lib.Comics.FireEvent(ctx, comic, lifecycle.ComicReadyForProcessing)
	return nil
}

func (t *RescanComic) AfterExecution(context.Context) {}

// DeleteComics marks comics for deletion; the purge job removes them.
type DeleteComics struct {
	ComicIDs []int64

	lib *Library
}

func (t *DeleteComics) Encode() (Type, Properties) {
	return TypeDeleteComics, Properties{PropComicIDs: formatIDs(t.ComicIDs)}
}

func (t *DeleteComics) Description() string {
	return fmt.Sprintf("Delete %d comic(s)", len(t.ComicIDs))
}

func (t *DeleteComics) Start(ctx context.Context) error {
	return t.lib.eachComic(ctx, "delete comics", t.ComicIDs, func(comic *store.Comic) error {
		if comic.State == store.ComicDeleted {
			return nil
		}
		t.lib.Comics.FireEvent(ctx, comic, lifecycle.ComicMarkedForDeletion)
		return nil
	})
}

func (t *DeleteComics) AfterExecution(context.Context) {}

// UndeleteComics restores comics that were marked for deletion.
type UndeleteComics struct {
	ComicIDs []int64

	lib *Library
}

func (t *UndeleteComics) Encode() (Type, Properties) {
	return TypeUndeleteComics, Properties{PropComicIDs: formatIDs(t.ComicIDs)}
}

func (t *UndeleteComics) Description() string {
	return fmt.Sprintf("Undelete %d comic(s)", len(t.ComicIDs))
}

func (t *UndeleteComics) Start(ctx context.Context) error {
	return t.lib.eachComic(ctx, "undelete comics", t.ComicIDs, func(comic *store.Comic) error {
		if comic.State != store.ComicDeleted {
			return nil
		}
		t.lib.Comics.FireEvent(ctx, comic, lifecycle.ComicUnmarkedForDeletion)
		return nil
	})
}

func (t *UndeleteComics) AfterExecution(context.Context) {}

// MoveComics moves archives into a destination directory as-is.
type MoveComics struct {
	ComicIDs    []int64
	Destination string

	lib *Library
}

func (t *MoveComics) Encode() (Type, Properties) {
	return TypeMoveComics, Properties{
		PropComicIDs:    formatIDs(t.ComicIDs),
		PropDestination: t.Destination,
	}
}

func (t *MoveComics) Description() string {
	return fmt.Sprintf("Move %d comic(s) to %s", len(t.ComicIDs), t.Destination)
}

func (t *MoveComics) Start(ctx context.Context) error {
	dest := filepath.Clean(t.Destination)
	if !filepath.IsAbs(dest) {
		return services.Wrap(services.ErrValidation, "tasks", "move comics", "Destination must be absolute: "+t.Destination, nil)
	}
	return t.lib.eachComic(ctx, "move comics", t.ComicIDs, func(comic *store.Comic) error {
		if comic.State == store.ComicDeleted {
			return nil
		}
		result, err := t.lib.Organizer.MoveInto(ctx, comic, dest)
		if err != nil {
			return err
		}
		if !result.Moved {
			return nil
		}
		comic.FilePath = result.Target
		return t.lib.Store.SaveComic(ctx, comic)
	})
}

func (t *MoveComics) AfterExecution(context.Context) {}

// eachComic applies fn to every id and joins the failures so one bad comic
// does not stop the rest.
func (l *Library) eachComic(ctx context.Context, op string, ids []int64, fn func(*store.Comic) error) error {
	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		comic, err := l.loadComic(ctx, op, id)
		if err == nil {
			err = fn(comic)
		}
		if err != nil {
			logging.WarnWithContext(l.logger(), "comic skipped", "comic_task_failed",
				logging.String(logging.FieldTaskType, op),
				logging.Int64(logging.FieldComicID, id),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, services.ErrorHint(err)),
			)
			errs = append(errs, fmt.Errorf("comic %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
