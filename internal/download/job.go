package download

import (
	"time"
)

// Job status constants representing the job lifecycle
const (
	StatusQueued      = "queued"
	StatusDownloading = "downloading"
	StatusProcessing  = "processing"
	StatusMoving      = "moving"
	StatusCompleted   = "completed"
	StatusFailed      = "failed"
	StatusCancelled   = "cancelled"
)

// UnknownAspectRatio is stored until the processing step has inspected the file.
const UnknownAspectRatio = "Unknown"

// Job is one download row as served by GET /api/downloads/{id}.
type Job struct {
	ID          string    `json:"id"`
	UserID      int64     `json:"user_id"`
	Username    string    `json:"username,omitempty"`
	URL         string    `json:"url"`
	TargetPath  string    `json:"target_path"`
	Status      string    `json:"status"`
	Progress    float64   `json:"progress"`
	AspectRatio string    `json:"aspect_ratio"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsTerminal returns true if the job is in a terminal state
func (j *Job) IsTerminal() bool {
	return IsTerminalStatus(j.Status)
}

// IsTerminalStatus reports whether status ends the lifecycle.
func IsTerminalStatus(status string) bool {
	return status == StatusCompleted || status == StatusFailed || status == StatusCancelled
}

// Clone returns a copy that callers may mutate freely.
func (j *Job) Clone() *Job {
	c := *j
	return &c
}
