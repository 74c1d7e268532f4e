package models

import (
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

type ScanRun struct {
	ID            int64      `json:"id" db:"id"`
	UUID          uuid.UUID  `json:"uuid" db:"uuid"`
	StartedAt     time.Time  `json:"started_at" db:"started_at"`
	FinishedAt    *time.Time `json:"finished_at" db:"finished_at"`
	Status        RunStatus  `json:"status" db:"status"`
	TermsScanned  int        `json:"terms_scanned" db:"terms_scanned"`
	ListingsFound int        `json:"listings_found" db:"listings_found"`
	ListingsNew   int        `json:"listings_new" db:"listings_new"`
	PriceChanges  int        `json:"price_changes" db:"price_changes"`
	ErrorsCount   int        `json:"errors_count" db:"errors_count"`
}

type SourceStats struct {
	SourceID       string     `json:"source_id" db:"source_id"`
	LastRunAt      *time.Time `json:"last_run_at" db:"last_run_at"`
	LastRunStatus  string     `json:"last_run_status" db:"last_run_status"`
	TotalListings  int        `json:"total_listings" db:"total_listings"`
	ActiveListings int        `json:"active_listings" db:"active_listings"`
}
