package notify

import (
	"context"
	"log"

	"vinyl_radar/models"
)

// LogNotifier is the fallback for local runs without a webhook configured.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) NotifyNew(ctx context.Context, listings []models.Listing) error {
	if len(listings) == 0 {
		return nil
	}
	log.Printf("New listings:\n%s", renderNewListings(listings))
	return nil
}

func (n *LogNotifier) NotifyError(ctx context.Context, message, sourceTag string) error {
	log.Printf("[%s] scan error: %s", sourceTag, message)
	return nil
}
