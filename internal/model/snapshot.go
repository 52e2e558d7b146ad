package model

import (
	"encoding/json"
	"time"
)

// LogWindow is the tail of a log file, oldest line first.
type LogWindow struct {
	Lines []string
	// Exists is false when the log file was absent. An empty but present
	// file yields Exists with no lines.
	Exists bool
	// Size is the file size the window was computed against.
	Size int64
}

// StatusSnapshot reports which of the monitored files exist.
type StatusSnapshot struct {
	TasksFileExists bool
	LogFileExists   bool
	Timestamp       time.Time
}

func (s StatusSnapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		TasksFileExists bool    `json:"tasksFileExists"`
		LogFileExists   bool    `json:"logFileExists"`
		Timestamp       float64 `json:"timestamp"`
	}{
		TasksFileExists: s.TasksFileExists,
		LogFileExists:   s.LogFileExists,
		Timestamp:       float64(s.Timestamp.UnixNano()) / float64(time.Second),
	})
}
