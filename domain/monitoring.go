package domain

import "time"

type NodeStatus string

const (
	ALIVE NodeStatus = "ALIVE"
	GHOST NodeStatus = "GHOST"
)

// ProcessStats is the self-reported resource usage a worker attaches to its heartbeats.
type ProcessStats struct {
	PID       int64     `json:"pid"`
	PIDStatus PIDStatus `json:"pid_status"`
	CPU       float64   `json:"cpu"`
	RAM       uint64    `json:"ram"`
	Sessions  int       `json:"sessions"`
}

// WorkerHealth is the scheduler's view of one registered worker.
type WorkerHealth struct {
	ID           Identity
	Status       NodeStatus
	Stats        ProcessStats
	RegisteredAt time.Time
	LastSeen     time.Time
}
