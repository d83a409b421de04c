package organizer_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"comicshelf/internal/logging"
	"comicshelf/internal/organizer"
	"comicshelf/internal/services"
	"comicshelf/internal/store"
	"comicshelf/internal/testsupport"
)

func sampleComic(path string) *store.Comic {
	return &store.Comic{
		ID:          7,
		FilePath:    path,
		ArchiveType: "cbz",
		Publisher:   "Image",
		Series:      "Saga",
		Volume:      "2012",
		IssueNumber: "1",
		Title:       "Chapter One",
		CoverDate:   "2012-03",
	}
}

func TestExpandDefaultRule(t *testing.T) {
	rule := "$PUBLISHER/$SERIES/$VOLUME/$SERIES v$VOLUME #$ISSUE ($COVERDATE)"
	got, err := organizer.Expand(rule, sampleComic("/in/saga.cbz"))
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	want := "Image/Saga/2012/Saga v2012 #001 (2012-03)"
	if got != want {
		t.Fatalf("Expand = %q, want %q", got, want)
	}
}

func TestExpandHandlesMissingAndUnsafeValues(t *testing.T) {
	comic := &store.Comic{Series: "AC/DC: Live", IssueNumber: "Annual 1"}
	got, err := organizer.Expand("$PUBLISHER/$SERIES/$SERIES #$ISSUE ($COVERDATE)", comic)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	want := "Unknown/AC-DC- Live/AC-DC- Live #Annual 1"
	if got != want {
		t.Fatalf("Expand = %q, want %q", got, want)
	}
}

func TestExpandPadsFractionalIssues(t *testing.T) {
	got, err := organizer.Expand("$SERIES $ISSUE", &store.Comic{Series: "X", IssueNumber: "12.5"})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if got != "X 012.5" {
		t.Fatalf("Expand = %q", got)
	}
}

func TestValidateRuleRejectsBadRules(t *testing.T) {
	for _, rule := range []string{"", "   ", "/abs/$SERIES", "../$SERIES", "$SERIES/$NOPE"} {
		if err := organizer.ValidateRule(rule); !errors.Is(err, organizer.ErrInvalidRule) {
			t.Fatalf("ValidateRule(%q) = %v, want ErrInvalidRule", rule, err)
		}
	}
	if err := organizer.ValidateRule("$SERIES/$TITLE"); err != nil {
		t.Fatalf("ValidateRule valid rule: %v", err)
	}
}

func TestPlanRequiresTargetDirectory(t *testing.T) {
	_, err := organizer.Plan("", "$SERIES", sampleComic("/in/a.cbz"))
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("Plan without target = %v, want configuration error", err)
	}
}

func TestRelocateMovesAndPrunes(t *testing.T) {
	root := t.TempDir()
	source := filepath.Join(root, "incoming", "nested", "saga-01.CBZ")
	testsupport.WriteFile(t, source, "cbz-bytes")

	org := organizer.New(logging.NewNop())
	comic := sampleComic(source)
	result, err := org.Relocate(context.Background(), comic, root, "$PUBLISHER/$SERIES/$SERIES #$ISSUE")
	if err != nil {
		t.Fatalf("Relocate: %v", err)
	}
	want := filepath.Join(root, "Image", "Saga", "Saga #001.cbz")
	if !result.Moved || result.Target != want {
		t.Fatalf("unexpected result %+v", result)
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("target missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "incoming")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected emptied source directories to be pruned, stat err=%v", err)
	}
	if _, err := os.Stat(root); err != nil {
		t.Fatalf("target root removed: %v", err)
	}
}

func TestRelocateIsNoopWhenAlreadyOrganized(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "Saga", "Saga #001.cbz")
	testsupport.WriteFile(t, path, "cbz-bytes")

	result, err := organizer.New(logging.NewNop()).Relocate(context.Background(), sampleComic(path), root, "$SERIES/$SERIES #$ISSUE")
	if err != nil {
		t.Fatalf("Relocate: %v", err)
	}
	if result.Moved || result.Target != path {
		t.Fatalf("expected no move, got %+v", result)
	}
}

func TestRelocateAvoidsCollisions(t *testing.T) {
	root := t.TempDir()
	occupied := filepath.Join(root, "Saga #001.cbz")
	testsupport.WriteFile(t, occupied, "cbz-bytes")
	source := filepath.Join(root, "in", "other.cbz")
	testsupport.WriteFile(t, source, "cbz-bytes")

	result, err := organizer.New(logging.NewNop()).Relocate(context.Background(), sampleComic(source), root, "$SERIES #$ISSUE")
	if err != nil {
		t.Fatalf("Relocate: %v", err)
	}
	want := filepath.Join(root, "Saga #001 (2).cbz")
	if result.Target != want {
		t.Fatalf("Target = %q, want %q", result.Target, want)
	}
	if _, err := os.Stat(occupied); err != nil {
		t.Fatalf("occupied file disturbed: %v", err)
	}
}

func TestRelocateMissingSource(t *testing.T) {
	root := t.TempDir()
	_, err := organizer.New(logging.NewNop()).Relocate(context.Background(), sampleComic(filepath.Join(root, "gone.cbz")), root, "$SERIES")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("Relocate missing source = %v, want not found", err)
	}
}

func TestMoveIntoKeepsFileName(t *testing.T) {
	root := t.TempDir()
	source := filepath.Join(root, "a", "book.cbz")
	testsupport.WriteFile(t, source, "cbz-bytes")
	dest := filepath.Join(root, "b")

	result, err := organizer.New(logging.NewNop()).MoveInto(context.Background(), sampleComic(source), dest)
	if err != nil {
		t.Fatalf("MoveInto: %v", err)
	}
	if result.Target != filepath.Join(dest, "book.cbz") {
		t.Fatalf("Target = %q", result.Target)
	}
}
