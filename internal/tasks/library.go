package tasks

import (
	"log/slog"

	"comicshelf/internal/config"
	"comicshelf/internal/lifecycle"
	"comicshelf/internal/logging"
	"comicshelf/internal/organizer"
	"comicshelf/internal/store"
)

// Library carries the collaborators the comic tasks operate on.
type Library struct {
	Store     *store.Store
	Comics    *lifecycle.ComicHandler
	Organizer *organizer.Organizer
	Config    *config.Config
	Logger    *slog.Logger
}

func (l *Library) logger() *slog.Logger {
	if l == nil || l.Logger == nil {
		return logging.NewNop()
	}
	return logging.NewComponentLogger(l.Logger, "tasks")
}

// NewDefaultRegistry registers decoders for every persisted task type.
// MONITOR_QUEUE is left out on purpose: the monitor is created in process.
func NewDefaultRegistry(lib *Library) *Registry {
	reg := NewRegistry()
	reg.Register(TypeAddComic, func(props Properties) (Task, error) {
		path, err := requireProp(props, PropPath)
		if err != nil {
			return nil, err
		}
		return &AddComic{Path: path, lib: lib}, nil
	})
	reg.Register(TypeConvertComic, func(props Properties) (Task, error) {
		id, err := parseID(props[PropComicID])
		if err != nil {
			return nil, err
		}
		return &ConvertComic{ComicID: id, lib: lib}, nil
	})
	reg.Register(TypeRescanComic, func(props Properties) (Task, error) {
		id, err := parseID(props[PropComicID])
		if err != nil {
			return nil, err
		}
		return &RescanComic{ComicID: id, lib: lib}, nil
	})
	reg.Register(TypeDeleteComics, func(props Properties) (Task, error) {
		ids, err := parseIDs(props[PropComicIDs])
		if err != nil {
			return nil, err
		}
		return &DeleteComics{ComicIDs: ids, lib: lib}, nil
	})
	reg.Register(TypeUndeleteComics, func(props Properties) (Task, error) {
		ids, err := parseIDs(props[PropComicIDs])
		if err != nil {
			return nil, err
		}
		return &UndeleteComics{ComicIDs: ids, lib: lib}, nil
	})
	reg.Register(TypeMoveComics, func(props Properties) (Task, error) {
		ids, err := parseIDs(props[PropComicIDs])
		if err != nil {
			return nil, err
		}
		dest, err := requireProp(props, PropDestination)
		if err != nil {
			return nil, err
		}
		return &MoveComics{ComicIDs: ids, Destination: dest, lib: lib}, nil
	})
	return reg
}
