package models

import "time"

// FileEvent is a single add/change notification from the watcher.
type FileEvent struct {
	Path      string
	Op        string // "CREATE" or "MODIFY"
	Timestamp time.Time
}
