package models

import "time"

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// RunSourceImport tags run-log entries written by reference fee imports.
const RunSourceImport = "reference_import"

// ScrapeRun is one append-only audit entry for an extractor or import run.
type ScrapeRun struct {
	ID           int64      `json:"id"`
	Source       string     `json:"source"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Found        int        `json:"found"`
	New          int        `json:"new"`
	Updated      int        `json:"updated"`
	Status       RunStatus  `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// StoreStats is a coarse view of what the store holds.
type StoreStats struct {
	ListingCount   int            `json:"listing_count"`
	ActiveCount    int            `json:"active_count"`
	ReferenceCount int            `json:"reference_count"`
	BySource       map[string]int `json:"by_source"`
}
