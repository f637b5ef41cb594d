package tracker

import "time"

// AllTerminal reports whether records is non-empty and every record is terminal.
func AllTerminal(records []Record) bool {
	if len(records) == 0 {
		return false
	}
	for _, rec := range records {
		if !rec.IsTerminal() {
			return false
		}
	}
	return true
}

// NoticeKind distinguishes success and error notices.
type NoticeKind string

const (
	NoticeSuccess NoticeKind = "success"
	NoticeError   NoticeKind = "error"
)

// CompletedMessage is raised once every tracked job is terminal.
const CompletedMessage = "All downloads completed!"

// Notice is a transient, self-clearing message for the view.
type Notice struct {
	Kind      NoticeKind `json:"kind"`
	Message   string     `json:"message"`
	ExpiresAt time.Time  `json:"expires_at"`
}
