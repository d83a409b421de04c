package tasks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"comicshelf/internal/store"
)

// Type tags a persisted task record.
type Type string

const (
	TypeAddComic       Type = "ADD_COMIC"
	TypeConvertComic   Type = "CONVERT_COMIC"
	TypeDeleteComics   Type = "DELETE_COMICS"
	TypeMoveComics     Type = "MOVE_COMICS"
	TypeRescanComic    Type = "RESCAN_COMIC"
	TypeUndeleteComics Type = "UNDELETE_COMICS"
	TypeMonitorQueue   Type = "MONITOR_QUEUE"
)

// Property keys used by the built-in encoders.
const (
	PropPath        = "path"
	PropComicID     = "comicId"
	PropComicIDs    = "comicIds"
	PropDestination = "destination"
)

// Properties is the string bag persisted alongside a task type.
type Properties map[string]string

var (
	// ErrNoDecoder is returned when a queued record carries an unknown type.
	ErrNoDecoder = errors.New("tasks: no decoder registered")
	// ErrQueueClosed is returned when submitting to a stopped manager.
	ErrQueueClosed = errors.New("tasks: manager is not running")
	// ErrInvalidProperties is returned when a record cannot be decoded.
	ErrInvalidProperties = errors.New("tasks: invalid task properties")
)

// Task is a unit of work executed by the Manager. AfterExecution runs after
// Start returns, whether or not Start failed.
type Task interface {
	Start(ctx context.Context) error
	Description() string
	AfterExecution(ctx context.Context)
}

// Encoder is implemented by tasks that can be persisted.
type Encoder interface {
	Encode() (Type, Properties)
}

// Perpetual marks tasks that run on the manager's control lane instead of
// occupying a worker.
type Perpetual interface {
	Perpetual() bool
}

// Enqueuer persists encoded tasks.
type Enqueuer interface {
	EnqueueTask(ctx context.Context, taskType string, properties map[string]string) (*store.PersistedTask, error)
}

// Enqueue encodes task and appends it to the persisted queue.
func Enqueue(ctx context.Context, queue Enqueuer, task Encoder) (*store.PersistedTask, error) {
	if queue == nil || task == nil {
		return nil, errors.New("tasks: enqueue requires a queue and a task")
	}
	taskType, props := task.Encode()
	if taskType == TypeMonitorQueue {
		return nil, fmt.Errorf("tasks: %s is never persisted", taskType)
	}
	return queue.EnqueueTask(ctx, string(taskType), props)
}

func formatIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

func parseIDs(raw string) ([]int64, error) {
	var ids []int64
	seen := make(map[int64]struct{})
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("%w: comic id %q", ErrInvalidProperties, part)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no comic ids", ErrInvalidProperties)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: comic id %q", ErrInvalidProperties, raw)
	}
	return id, nil
}

func requireProp(props Properties, key string) (string, error) {
	value := strings.TrimSpace(props[key])
	if value == "" {
		return "", fmt.Errorf("%w: %s is required", ErrInvalidProperties, key)
	}
	return value, nil
}
