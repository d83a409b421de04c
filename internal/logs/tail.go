package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// CurrentName is the pointer the daemon keeps to its active run log.
const CurrentName = "comicshelf.log"

const (
	maxLineBytes        = 1024 * 1024
	defaultPollInterval = 250 * time.Millisecond
)

// CurrentPath resolves the active daemon log inside logDir.
func CurrentPath(logDir string) (string, error) {
	pointer := filepath.Join(logDir, CurrentName)
	resolved, err := filepath.EvalSymlinks(pointer)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("no daemon log in %s", logDir)
		}
		return "", fmt.Errorf("resolve %s: %w", pointer, err)
	}
	return resolved, nil
}

// TailResult holds the lines read and the offset to resume from.
type TailResult struct {
	Lines  []string
	Offset int64
}

// Tail returns at most limit trailing lines of path. A missing file yields an
// empty result at offset zero.
func Tail(path string, limit int) (TailResult, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return TailResult{}, nil
		}
		return TailResult{}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return TailResult{}, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return TailResult{}, fmt.Errorf("log path %q is a directory", path)
	}
	if limit <= 0 {
		return TailResult{Offset: info.Size()}, nil
	}

	ring := make([]string, 0, limit)
	start := 0
	offset, err := scanLines(file, func(line string) error {
		if len(ring) < limit {
			ring = append(ring, line)
			return nil
		}
		ring[start] = line
		start = (start + 1) % limit
		return nil
	})
	if err != nil {
		return TailResult{}, err
	}

	lines := make([]string, 0, len(ring))
	lines = append(lines, ring[start:]...)
	lines = append(lines, ring[:start]...)
	return TailResult{Lines: lines, Offset: offset}, nil
}

// FollowOptions configures Follow. A zero Interval polls every 250ms.
type FollowOptions struct {
	Offset   int64
	Interval time.Duration
}

// Follow emits every complete line appended to path after opts.Offset until
// ctx ends or emit fails. When the file shrinks (truncated or replaced) it
// restarts from the beginning.
func Follow(ctx context.Context, path string, opts FollowOptions, emit func(string) error) error {
	interval := opts.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	offset := opts.Offset

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		next, err := readFrom(path, offset, emit)
		if err != nil {
			return err
		}
		offset = next

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func readFrom(path string, offset int64, emit func(string) error) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return offset, fmt.Errorf("stat log file: %w", err)
	}
	if offset > info.Size() {
		offset = 0
	}
	if offset == info.Size() {
		return offset, nil
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("seek log file: %w", err)
	}
	read, err := scanLines(file, emit)
	return offset + read, err
}

// scanLines feeds complete lines to fn and returns the bytes consumed. A
// trailing partial line is left for the next read.
func scanLines(r io.Reader, fn func(string) error) (int64, error) {
	reader := bufio.NewReaderSize(r, 64*1024)
	var consumed int64
	for {
		line, err := reader.ReadString('\n')
		if err == io.EOF {
			return consumed, nil
		}
		if err != nil {
			return consumed, fmt.Errorf("read log file: %w", err)
		}
		consumed += int64(len(line))
		text := line[:len(line)-1]
		if n := len(text); n > 0 && text[n-1] == '\r' {
			text = text[:n-1]
		}
		if len(text) > maxLineBytes {
			text = text[:maxLineBytes]
		}
		if err := fn(text); err != nil {
			return consumed, err
		}
	}
}
