package model

import "time"

// Operation is a recorded CLI command that mutated data or wrote archives.
type Operation struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt *time.Time // nil while running or if the process died
	Operation  string
	Parameters string
	Status     string // "success" or "error"
}
