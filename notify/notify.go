package notify

import (
	"context"

	"vinyl_radar/models"
)

// Notifier receives the batch of new listings found by a pass, plus
// per-term failures. Rendering is entirely the implementation's concern.
type Notifier interface {
	NotifyNew(ctx context.Context, listings []models.Listing) error
	NotifyError(ctx context.Context, message, sourceTag string) error
}
