package store

import (
	"path/filepath"
	"time"
)

// ComicState is the persisted lifecycle state of a comic.
type ComicState string

const (
	ComicAdded             ComicState = "added"
	ComicUnprocessed       ComicState = "unprocessed"
	ComicContentsProcessed ComicState = "contents_processed"
	ComicStable            ComicState = "stable"
	ComicChanged           ComicState = "changed"
	ComicDeleted           ComicState = "deleted"
)

// ComicStates lists every comic state in processing order.
func ComicStates() []ComicState {
	return []ComicState{ComicAdded, ComicUnprocessed, ComicContentsProcessed, ComicStable, ComicChanged, ComicDeleted}
}

// PageState is the persisted lifecycle state of a page.
type PageState string

const (
	PageStable  PageState = "stable"
	PageDeleted PageState = "deleted"
)

// Comic is a single archive in the library.
type Comic struct {
	ID                   int64
	FilePath             string
	ArchiveType          string
	State                ComicState
	Publisher            string
	Series               string
	Volume               string
	IssueNumber          string
	Title                string
	CoverDate            string
	PageCount            int
	RecreateMarked       bool
	OrganizeMarked       bool
	MetadataUpdateMarked bool
	MetadataSource       string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Filename returns the base name of the comic archive.
func (c *Comic) Filename() string {
	if c == nil {
		return ""
	}
	return filepath.Base(c.FilePath)
}

// Page is one image entry inside a comic archive.
type Page struct {
	ID           int64
	ComicID      int64
	PageNumber   int
	Filename     string
	Hash         string
	State        PageState
	AddedToCache bool
	CachePending bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsCover reports whether the page is the first page of its comic.
func (p *Page) IsCover() bool {
	return p != nil && p.PageNumber == 0
}

// PersistedTask is a queued unit of work awaiting the queue monitor.
type PersistedTask struct {
	ID         int64
	TaskType   string
	Properties map[string]string
	EnqueuedAt time.Time
	ClaimedAt  *time.Time
	FinishedAt *time.Time
	Failure    string
}

// Pending reports whether the task has not been claimed yet.
func (t *PersistedTask) Pending() bool {
	return t != nil && t.ClaimedAt == nil
}

// TaskStats summarizes the persisted task queue.
type TaskStats struct {
	Pending  int
	Claimed  int
	Finished int
	Failed   int
}

// ExecutionStatus is the persisted status of a batch job execution.
type ExecutionStatus string

const (
	ExecutionStarting  ExecutionStatus = "starting"
	ExecutionStarted   ExecutionStatus = "started"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionAbandoned ExecutionStatus = "abandoned"
)

// IsRunning reports whether the status represents a live execution.
func (s ExecutionStatus) IsRunning() bool {
	return s == ExecutionStarting || s == ExecutionStarted
}

// Execution records one launch of a batch job.
type Execution struct {
	ID          string
	JobID       string
	ParamsKey   string
	ParamsJSON  string
	Status      ExecutionStatus
	StartedAt   time.Time
	EndedAt     *time.Time
	ExitMessage string
	ReadCount   int64
	WriteCount  int64
	SkipCount   int64
}

// EligibilityKind names a "is there work to do" probe.
type EligibilityKind string

const (
	EligibleUnprocessedComics      EligibilityKind = "unprocessed_comics"
	EligiblePagesWithoutHash       EligibilityKind = "pages_without_hash"
	EligibleBlockedPages           EligibilityKind = "blocked_pages"
	EligibleCoverPagesWithoutCache EligibilityKind = "cover_pages_without_cache"
	EligibleComicsForMetadata      EligibilityKind = "comics_for_metadata_update"
	EligibleComicsForRecreation    EligibilityKind = "comics_for_recreation"
	EligibleComicsForPurge         EligibilityKind = "comics_for_purge"
	EligibleComicsForOrganization  EligibilityKind = "comics_for_organization"
)

// DatabaseHealth is a diagnostic snapshot of the database.
type DatabaseHealth struct {
	DBPath        string
	SchemaVersion string
	IntegrityOK   bool
	Comics        map[ComicState]int
	Tasks         TaskStats
}
