package model

// Status is the status string of a task or subtask as written by the pipeline.
// Values other than the three known ones are kept verbatim.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusComplete   Status = "complete"
)

var knownStatuses = map[Status]bool{
	StatusPending:    true,
	StatusInProgress: true,
	StatusComplete:   true,
}

// IsKnown reports whether s is one of pending, in-progress or complete.
func IsKnown(s Status) bool {
	return knownStatuses[s]
}

// OrDefault returns StatusPending for an empty status.
func (s Status) OrDefault() Status {
	if s == "" {
		return StatusPending
	}
	return s
}
