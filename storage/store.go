package storage

import (
	"context"
	"time"

	"vinyl_radar/models"
)

// Store is the persistence contract shared by the SQLite and Postgres
// backends. Every call is independently atomic; callers never span a
// transaction across calls.
type Store interface {
	GetListing(ctx context.Context, key string) (*models.Listing, error)
	UpsertListing(ctx context.Context, l *models.Listing) error
	TouchListing(ctx context.Context, key string, t time.Time) error
	MarkInactiveExcept(ctx context.Context, activeKeys []string) (int64, error)
	AppendPriceObservation(ctx context.Context, obs *models.PriceObservation) error
	PriceHistory(ctx context.Context, key string) ([]models.PriceObservation, error)

	ListPreferences(ctx context.Context) ([]models.PreferenceTerm, error)
	AddPreference(ctx context.Context, term *models.PreferenceTerm) error

	CreateRun(ctx context.Context, run *models.ScanRun) (int64, error)
	UpdateRun(ctx context.Context, run *models.ScanRun) error
	Log(ctx context.Context, runID *int64, level models.LogLevel, message, sourceID string) error
	UpdateSourceStats(ctx context.Context, sourceID string, status models.RunStatus) error

	GetPendingCommands(ctx context.Context) ([]models.Command, error)
	MarkCommandProcessed(ctx context.Context, id int64) error

	Close() error
}
