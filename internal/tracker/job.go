package tracker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Status is the lifecycle state reported by the download service.
type Status string

// Job status constants representing the job lifecycle
const (
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusProcessing  Status = "processing"
	StatusMoving      Status = "moving"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
)

const (
	// IndeterminateProgress marks a job whose progress is unknown.
	IndeterminateProgress = -1.0

	// UnknownAspectRatio is shown until the service reports a value.
	UnknownAspectRatio = "Unknown"

	// OriginalFileName labels jobs submitted without a file name.
	OriginalFileName = "Original"
)

// IsTerminal returns true if no further transition is expected from s
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// IsKnown reports whether s is one of the documented statuses.
func (s Status) IsKnown() bool {
	switch s {
	case StatusQueued, StatusDownloading, StatusProcessing, StatusMoving,
		StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// rank orders the forward path; failed and cancelled sit outside it.
func (s Status) rank() int {
	switch s {
	case StatusQueued:
		return 0
	case StatusDownloading:
		return 1
	case StatusProcessing:
		return 2
	case StatusMoving:
		return 3
	case StatusCompleted:
		return 4
	}
	return -1
}

// CanTransition reports whether s -> to is an edge of the status graph:
// queued -> downloading -> processing -> moving -> completed, and any
// non-terminal status -> failed or cancelled. Staying put is allowed.
func (s Status) CanTransition(to Status) bool {
	if s == to {
		return true
	}
	if s.IsTerminal() || !s.IsKnown() || !to.IsKnown() {
		return false
	}
	if to == StatusFailed || to == StatusCancelled {
		return true
	}
	return to.rank() == s.rank()+1
}

// Label returns the display text for s.
func (s Status) Label() string {
	switch s {
	case StatusQueued:
		return "Queued"
	case StatusDownloading:
		return "Downloading"
	case StatusProcessing:
		return "Processing"
	case StatusMoving:
		return "Moving File"
	case StatusCompleted:
		return "Completed"
	case StatusFailed:
		return "Failed"
	case StatusCancelled:
		return "Cancelled"
	case "":
		return "Unknown"
	}
	return string(s)
}

// ID identifies a job. The service may encode it as a JSON string or number.
type ID string

// UnmarshalJSON accepts both "42" and 42.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("job id: %w", err)
	}
	if _, err := strconv.ParseFloat(string(n), 64); err != nil {
		return fmt.Errorf("job id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string {
	return string(id)
}

// Record is the locally tracked state of one submitted download.
// ID, URL, TargetPath, FileName and Timestamp never change after creation.
type Record struct {
	ID          ID        `json:"id"`
	URL         string    `json:"url"`
	TargetPath  string    `json:"target_path"`
	FileName    string    `json:"file_name"`
	Status      Status    `json:"status"`
	Progress    float64   `json:"progress"`
	Timestamp   time.Time `json:"timestamp"`
	AspectRatio string    `json:"aspect_ratio"`
}

// NewRecord creates a queued record for a freshly submitted job.
func NewRecord(id ID, url, targetPath, fileName string, now time.Time) Record {
	if fileName == "" {
		fileName = OriginalFileName
	}
	return Record{
		ID:          id,
		URL:         url,
		TargetPath:  targetPath,
		FileName:    fileName,
		Status:      StatusQueued,
		Progress:    0,
		Timestamp:   now,
		AspectRatio: UnknownAspectRatio,
	}
}

// IsTerminal returns true if the record is in a terminal state
func (r Record) IsTerminal() bool {
	return r.Status.IsTerminal()
}

// Indeterminate reports whether progress should render as a spinner.
func (r Record) Indeterminate() bool {
	return r.Progress == IndeterminateProgress
}

// MarshalJSON adds the display fields dashboard clients render.
func (r Record) MarshalJSON() ([]byte, error) {
	type plain Record
	dir, name := SplitTargetPath(r.TargetPath)
	return json.Marshal(struct {
		plain
		StatusLabel   string `json:"status_label"`
		Indeterminate bool   `json:"indeterminate"`
		DisplayDir    string `json:"display_dir"`
		DisplayName   string `json:"display_name"`
	}{
		plain:         plain(r),
		StatusLabel:   r.Status.Label(),
		Indeterminate: r.Indeterminate(),
		DisplayDir:    dir,
		DisplayName:   name,
	})
}

// Payload is the subset of a status response the tracker consumes.
// Nil fields were absent from the response.
type Payload struct {
	Status      *Status  `json:"status,omitempty"`
	Progress    *float64 `json:"progress,omitempty"`
	AspectRatio *string  `json:"aspect_ratio,omitempty"`
}

// Entry is one submitted form row.
type Entry struct {
	URL        string `json:"url"`
	TargetPath string `json:"target_path"`
	FileName   string `json:"file_name"`
}
