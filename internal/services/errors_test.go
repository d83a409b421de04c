package services_test

import (
	"errors"
	"strings"
	"testing"

	"comicshelf/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternal, "archive", "rewrite", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternal) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"archive", "rewrite", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected default detail, got %q", err.Error())
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{services.Wrap(services.ErrValidation, "tasks", "decode", "bad id", nil), "validation"},
		{services.Wrap(services.ErrConfiguration, "jobs", "organize", "no rule", nil), "configuration"},
		{services.Wrap(services.ErrNotFound, "tasks", "move", "missing", nil), "not_found"},
		{services.Wrap(services.ErrTimeout, "", "", "", nil), "timeout"},
		{services.Wrap(services.ErrExternal, "", "", "", nil), "external"},
		{errors.New("io"), "transient"},
	}
	for _, tc := range tests {
		if got := services.Classify(tc.err); got != tc.want {
			t.Fatalf("Classify(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
	if hint := services.ErrorHint(errors.New("x")); hint != "check logs for details" {
		t.Fatalf("unexpected default hint %q", hint)
	}
}
