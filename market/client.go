package market

import (
	"context"
	"errors"
	"net/http"
	"time"

	"vinyl_radar/config"
	"vinyl_radar/models"
)

// Client is anything that can search a marketplace for a term. Results are
// raw candidates; normalization and keying happen downstream in the
// reconciler, so the engine stays indifferent to which implementation it
// is given.
type Client interface {
	ID() string
	Search(ctx context.Context, term string) ([]models.CandidateListing, error)
}

// TemporaryError marks a failure worth retrying (network errors, 5xx).
// Anything else is permanent: the caller skips the term and reports it.
type TemporaryError struct {
	Err error
}

func (e *TemporaryError) Error() string { return e.Err.Error() }
func (e *TemporaryError) Unwrap() error { return e.Err }

func IsTemporary(err error) bool {
	var t *TemporaryError
	return errors.As(err, &t)
}

func NewClient(cfg *config.SourceConfig, httpClient *http.Client, retryAttempts int) Client {
	switch cfg.Handler {
	case "api":
		return NewAPIClient(cfg, httpClient, retryAttempts)
	case "html":
		return NewHTMLClient(cfg, httpClient, retryAttempts)
	case "synthetic":
		return NewSyntheticClient(cfg)
	default:
		return NewSyntheticClient(cfg)
	}
}

// searchWithRetry runs fn up to attempts times, doubling the wait between
// tries, but only while the failure is classified temporary.
func searchWithRetry(ctx context.Context, attempts int, fn func() ([]models.CandidateListing, error)) ([]models.CandidateListing, error) {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	backoff := time.Second

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoff *= 2
		}

		listings, err := fn()
		if err == nil {
			return listings, nil
		}
		lastErr = err
		if !IsTemporary(err) {
			return nil, err
		}
	}

	return nil, lastErr
}
