package testsupport

import (
	"context"
	"testing"

	"comicshelf/internal/config"
	"comicshelf/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

// SeedComic inserts a comic at path and moves it directly into state. It
// bypasses the lifecycle handlers and is meant for arranging fixtures only.
func SeedComic(t testing.TB, st *store.Store, path string, state store.ComicState, mutate ...func(*store.Comic)) *store.Comic {
	t.Helper()

	ctx := context.Background()
	comic, err := st.CreateComic(ctx, path, "cbz")
	if err != nil {
		t.Fatalf("CreateComic: %v", err)
	}
	comic.State = state
	for _, fn := range mutate {
		fn(comic)
	}
	if err := st.SaveComic(ctx, comic); err != nil {
		t.Fatalf("SaveComic: %v", err)
	}
	return comic
}
