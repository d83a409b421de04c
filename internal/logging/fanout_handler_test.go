package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
)

func TestNewFanoutHandlerNilHandlers(t *testing.T) {
	h := newFanoutHandler(nil, nil)
	if _, ok := h.(NoopHandler); !ok {
		t.Fatalf("expected NoopHandler for all nil handlers, got %T", h)
	}
}

func TestNewFanoutHandlerSingleHandlerUnwrapped(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)
	if h := newFanoutHandler(nil, inner, nil); h != inner {
		t.Fatal("expected single non-nil handler to be returned unwrapped")
	}
}

func TestFanoutHandlerRespectsLevels(t *testing.T) {
	var info, warn bytes.Buffer
	h := newFanoutHandler(
		slog.NewJSONHandler(&info, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewJSONHandler(&warn, &slog.HandlerOptions{Level: slog.LevelWarn}),
	)
	if h.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("expected debug to be disabled")
	}
	slog.New(h).Info("info message")
	if info.Len() == 0 {
		t.Fatal("expected info output")
	}
	if warn.Len() != 0 {
		t.Fatal("expected warn handler to filter info record")
	}
}

func TestFanoutHandlerWithAttrsAndGroup(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	h := newFanoutHandler(slog.NewJSONHandler(&buf1, nil), slog.NewJSONHandler(&buf2, nil))
	logger := slog.New(h.WithAttrs([]slog.Attr{slog.String("key", "value")}).WithGroup("grp"))
	logger.Info("test", slog.String("field", "x"))
	for i, buf := range []*bytes.Buffer{&buf1, &buf2} {
		if !bytes.Contains(buf.Bytes(), []byte(`"key"`)) || !bytes.Contains(buf.Bytes(), []byte(`"grp"`)) {
			t.Fatalf("handler %d missing attrs or group: %s", i, buf.String())
		}
	}
}

func TestTeeLoggerDuplicatesOutput(t *testing.T) {
	var base, extra bytes.Buffer
	logger := TeeLogger(slog.New(slog.NewJSONHandler(&base, nil)), slog.NewJSONHandler(&extra, nil))
	logger.Info("tee")
	if base.Len() == 0 || extra.Len() == 0 {
		t.Fatal("expected both destinations to receive the record")
	}
}
