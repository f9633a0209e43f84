package store

import (
	"fmt"
	"time"
)

// QueueStatus represents the lifecycle of a queue item.
type QueueStatus string

const (
	QueueStatusPending   QueueStatus = "pending"
	QueueStatusRunning   QueueStatus = "running"
	QueueStatusCompleted QueueStatus = "completed"
	QueueStatusFailed    QueueStatus = "failed"
)

var allQueueStatuses = []QueueStatus{
	QueueStatusPending,
	QueueStatusRunning,
	QueueStatusCompleted,
	QueueStatusFailed,
}

// QueueStatuses returns every queue status in lifecycle order.
func QueueStatuses() []QueueStatus {
	out := make([]QueueStatus, len(allQueueStatuses))
	copy(out, allQueueStatuses)
	return out
}

// ParseQueueStatus validates a queue status string.
func ParseQueueStatus(value string) (QueueStatus, error) {
	for _, status := range allQueueStatuses {
		if string(status) == value {
			return status, nil
		}
	}
	return "", fmt.Errorf("unknown queue status %q", value)
}

// IsActive reports whether the status blocks another item for the same feature.
func (s QueueStatus) IsActive() bool {
	return s == QueueStatusPending || s == QueueStatusRunning
}

// QueueItem is one scheduled run of an external tool for a feature.
type QueueItem struct {
	ID           int64       `json:"id"`
	RepoName     string      `json:"repoName"`
	FeatureSlug  string      `json:"featureSlug"`
	Status       QueueStatus `json:"status"`
	CLITool      string      `json:"cliTool"`
	CreatedAt    time.Time   `json:"createdAt"`
	EnqueuedAt   time.Time   `json:"enqueuedAt"`
	StartedAt    *time.Time  `json:"startedAt"`
	CompletedAt  *time.Time  `json:"completedAt"`
	ErrorMessage string      `json:"errorMessage"`
	RetryCount   int         `json:"retryCount"`
	WorkerID     string      `json:"workerPid"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

// EnqueueResult reports the outcome of an enqueue request.
type EnqueueResult struct {
	ID            int64 `json:"id"`
	AlreadyQueued bool  `json:"alreadyQueued"`
}

// Repository is a registered code repository.
type Repository struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Feature groups the tasks of one unit of work inside a repository.
type Feature struct {
	RepoName  string    `json:"repoName"`
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

// FeatureScanState is what the scheduler needs to decide on one feature.
type FeatureScanState struct {
	RepoName    string
	FeatureSlug string
	Total       int
	Ready       int
	// LastTaskUpdate is the newest task updated_at, nil without tasks.
	LastTaskUpdate *time.Time
	// LastEnqueuedAt is the newest queue item enqueue time for the pair in
	// any status, nil when the feature has never been queued.
	LastEnqueuedAt *time.Time
	// Active is true while a pending or running item exists.
	Active bool
}

// AllReady reports whether every task of a non-empty feature is ReadyForDevelopment.
func (f FeatureScanState) AllReady() bool {
	return f.Total > 0 && f.Ready == f.Total
}

// Settings is the single mutable runtime configuration row.
type Settings struct {
	CronIntervalSeconds int       `json:"cronIntervalSeconds"`
	BaseReposFolder     string    `json:"baseReposFolder"`
	CLITool             string    `json:"cliTool"`
	WorkerEnabled       bool      `json:"workerEnabled"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// CronInterval returns the configured scan interval.
func (s Settings) CronInterval() time.Duration {
	return time.Duration(s.CronIntervalSeconds) * time.Second
}

// SettingsUpdate carries the fields to change; nil fields keep their value.
type SettingsUpdate struct {
	CronIntervalSeconds *int
	BaseReposFolder     *string
	CLITool             *string
	WorkerEnabled       *bool
}

// DatabaseHealth captures diagnostic information about the database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	MissingTables    []string
	IntegrityCheck   bool
	TotalItems       int
	TotalTasks       int
	Error            string
}
