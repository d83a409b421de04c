package organizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"comicshelf/internal/fileutil"
	"comicshelf/internal/logging"
	"comicshelf/internal/services"
	"comicshelf/internal/store"
)

const maxCollisionAttempts = 1000

// Organizer moves comic archives to their library locations.
type Organizer struct {
	logger *slog.Logger
}

// Result describes a relocation.
type Result struct {
	Source string
	Target string
	Moved  bool
}

// New constructs an Organizer.
func New(logger *slog.Logger) *Organizer {
	return &Organizer{logger: logging.NewComponentLogger(logger, "organizer")}
}

// Plan returns the absolute library path for comic under targetDir using rule.
// The archive keeps its current extension.
func Plan(targetDir, rule string, comic *store.Comic) (string, error) {
	targetDir = strings.TrimSpace(targetDir)
	if targetDir == "" {
		return "", services.Wrap(services.ErrConfiguration, "organizer", "plan", "Target directory is not set", nil)
	}
	relative, err := Expand(rule, comic)
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "organizer", "plan", "Renaming rule is invalid", err)
	}
	return filepath.Join(targetDir, filepath.FromSlash(relative)) + archiveExtension(comic), nil
}

// Relocate moves comic to the path its renaming rule produces. A comic that
// already sits at its planned path is left alone. Collisions with other files
// get a numeric suffix. Directories under targetDir emptied by the move are
// removed. The caller persists the returned target path.
func (o *Organizer) Relocate(ctx context.Context, comic *store.Comic, targetDir, rule string) (Result, error) {
	planned, err := Plan(targetDir, rule, comic)
	if err != nil {
		return Result{}, err
	}
	result, err := o.move(ctx, comic, planned)
	if err != nil {
		return result, err
	}
	if result.Moved {
		pruneEmptyDirs(filepath.Dir(result.Source), targetDir)
	}
	return result, nil
}

// MoveInto moves comic into dir keeping its file name.
func (o *Organizer) MoveInto(ctx context.Context, comic *store.Comic, dir string) (Result, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return Result{}, services.Wrap(services.ErrValidation, "organizer", "move", "Destination directory is required", nil)
	}
	if comic == nil {
		return Result{}, services.Wrap(services.ErrValidation, "organizer", "move", "Comic is required", nil)
	}
	return o.move(ctx, comic, filepath.Join(dir, filepath.Base(comic.FilePath)))
}

func (o *Organizer) move(ctx context.Context, comic *store.Comic, planned string) (Result, error) {
	logger := logging.WithContext(ctx, o.logger)
	source := filepath.Clean(comic.FilePath)
	result := Result{Source: source, Target: source}

	if filepath.Clean(planned) == source {
		logger.Debug("comic already organized", logging.Int64("comic_id", comic.ID), logging.String("path", source))
		return result, nil
	}
	if _, err := os.Stat(source); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return result, services.Wrap(services.ErrNotFound, "organizer", "stat source", fmt.Sprintf("Comic file %q is missing", source), err)
		}
		return result, services.Wrap(services.ErrTransient, "organizer", "stat source", "Unable to inspect comic file", err)
	}

	target, err := nextFreePath(planned, source)
	if err != nil {
		return result, services.Wrap(services.ErrTransient, "organizer", "allocate target", "Unable to allocate a library filename", err)
	}
	if err := fileutil.MoveFile(source, target); err != nil {
		return result, services.Wrap(services.ErrTransient, "organizer", "move", "Failed to move comic into the library", err)
	}

	result.Target = target
	result.Moved = true
	logger.Info("comic relocated",
		logging.Int64("comic_id", comic.ID),
		logging.String("source", source),
		logging.String("target", target),
		logging.String(logging.FieldEventType, "comic_relocated"),
	)
	return result, nil
}

// nextFreePath returns planned, or planned with a " (n)" suffix when another
// file already occupies it.
func nextFreePath(planned, source string) (string, error) {
	ext := filepath.Ext(planned)
	stem := strings.TrimSuffix(planned, ext)
	candidate := planned
	for attempt := 2; attempt <= maxCollisionAttempts+1; attempt++ {
		if candidate == source {
			return candidate, nil
		}
		_, err := os.Stat(candidate)
		if errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
		candidate = fmt.Sprintf("%s (%d)%s", stem, attempt, ext)
	}
	return "", fmt.Errorf("exhausted filename slots for %s", planned)
}

// pruneEmptyDirs removes dir and its empty parents, stopping at root. Nothing
// outside root is touched.
func pruneEmptyDirs(dir, root string) {
	root = filepath.Clean(root)
	dir = filepath.Clean(dir)
	for dir != root && strings.HasPrefix(dir, root+string(filepath.Separator)) {
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

func archiveExtension(comic *store.Comic) string {
	if ext := strings.ToLower(filepath.Ext(comic.FilePath)); ext != "" {
		return ext
	}
	if archiveType := strings.TrimSpace(comic.ArchiveType); archiveType != "" {
		return "." + strings.ToLower(archiveType)
	}
	return ".cbz"
}
