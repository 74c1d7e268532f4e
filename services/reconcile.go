package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"vinyl_radar/identity"
	"vinyl_radar/models"
)

type Outcome string

const (
	OutcomeNew          Outcome = "new"
	OutcomeSeenAgain    Outcome = "seen_again"
	OutcomePriceChanged Outcome = "price_changed"
	OutcomeSkipped      Outcome = "skipped"
)

// Store is the slice of the persistence contract the reconciler touches.
// Both storage backends satisfy it.
type Store interface {
	GetListing(ctx context.Context, key string) (*models.Listing, error)
	UpsertListing(ctx context.Context, l *models.Listing) error
	TouchListing(ctx context.Context, key string, t time.Time) error
	AppendPriceObservation(ctx context.Context, obs *models.PriceObservation) error
}

// Result is the outcome of reconciling one candidate, with the full
// listing record for caller-side notification batching.
type Result struct {
	Outcome       Outcome
	Listing       *models.Listing
	PreviousPrice *decimal.Decimal
}

// Reconciler decides, for each fetched candidate, whether it is new,
// already known, known at a different price, or irrelevant, and issues
// at most one write path per outcome.
type Reconciler struct {
	store Store
	now   func() time.Time
}

func NewReconciler(store Store) *Reconciler {
	return &Reconciler{store: store, now: time.Now}
}

// Reconcile processes a single candidate against the configured
// preference terms. Irrelevant candidates cause zero store mutations.
func (r *Reconciler) Reconcile(ctx context.Context, cand *models.CandidateListing, prefs []models.PreferenceTerm) (*Result, error) {
	artist := identity.Normalize(cand.Artist)
	title := identity.Normalize(cand.Title)

	if !Relevant(artist, title, prefs) {
		return &Result{Outcome: OutcomeSkipped}, nil
	}

	key := identity.Key(cand.Seller, cand.Title)

	existing, err := r.store.GetListing(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get listing: %w", err)
	}

	now := r.now()

	if existing == nil {
		listing := &models.Listing{
			Key:              key,
			Seller:           cand.Seller,
			Artist:           cand.Artist,
			Title:            cand.Title,
			NormalizedSeller: identity.Normalize(cand.Seller),
			NormalizedArtist: artist,
			NormalizedTitle:  title,
			Price:            cand.Price,
			Currency:         cand.Currency,
			Condition:        cand.Condition,
			ShippingFee:      cand.ShippingFee,
			Source:           cand.Source,
			URL:              cand.URL,
			FirstSeenAt:      now,
			LastSeenAt:       now,
			IsActive:         true,
		}
		if err := r.store.UpsertListing(ctx, listing); err != nil {
			return nil, fmt.Errorf("insert listing: %w", err)
		}
		if err := r.store.AppendPriceObservation(ctx, &models.PriceObservation{
			ListingKey: key,
			Price:      cand.Price,
			Currency:   cand.Currency,
			ObservedAt: now,
		}); err != nil {
			return nil, fmt.Errorf("append price observation: %w", err)
		}
		return &Result{Outcome: OutcomeNew, Listing: listing}, nil
	}

	if existing.Price.Equal(cand.Price) {
		if err := r.store.TouchListing(ctx, key, now); err != nil {
			return nil, fmt.Errorf("touch listing: %w", err)
		}
		existing.LastSeenAt = now
		existing.IsActive = true
		return &Result{Outcome: OutcomeSeenAgain, Listing: existing}, nil
	}

	previous := existing.Price
	existing.Price = cand.Price
	existing.Currency = cand.Currency
	existing.Condition = cand.Condition
	existing.URL = cand.URL
	existing.LastSeenAt = now
	existing.IsActive = true

	if err := r.store.UpsertListing(ctx, existing); err != nil {
		return nil, fmt.Errorf("update listing: %w", err)
	}
	if err := r.store.AppendPriceObservation(ctx, &models.PriceObservation{
		ListingKey: key,
		Price:      cand.Price,
		Currency:   cand.Currency,
		ObservedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("append price observation: %w", err)
	}

	return &Result{Outcome: OutcomePriceChanged, Listing: existing, PreviousPrice: &previous}, nil
}

// Relevant reports whether a candidate matches the configured interests:
// its normalized artist contains an artist term, or its normalized title
// contains an album term. Genre terms are accepted into the store but not
// consulted here; no fetched candidate carries genre metadata to match
// against yet.
func Relevant(normalizedArtist, normalizedTitle string, prefs []models.PreferenceTerm) bool {
	for _, pref := range prefs {
		value := identity.Normalize(pref.Value)
		if value == "" {
			continue
		}
		switch pref.Type {
		case models.TermArtist:
			if strings.Contains(normalizedArtist, value) {
				return true
			}
		case models.TermAlbum:
			if strings.Contains(normalizedTitle, value) {
				return true
			}
		}
	}
	return false
}

// PassStats tracks aggregate counters for one reconciliation pass.
type PassStats struct {
	Processed    int
	New          int
	SeenAgain    int
	PriceChanges int
	Skipped      int
	Errors       int
}

func (s *PassStats) Aggregate(r *Result) {
	s.Processed++
	switch r.Outcome {
	case OutcomeNew:
		s.New++
	case OutcomeSeenAgain:
		s.SeenAgain++
	case OutcomePriceChanged:
		s.PriceChanges++
	case OutcomeSkipped:
		s.Skipped++
	}
}

func (s *PassStats) ToJSON() json.RawMessage {
	data, _ := json.Marshal(map[string]int{
		"processed":     s.Processed,
		"new":           s.New,
		"seen_again":    s.SeenAgain,
		"price_changes": s.PriceChanges,
		"skipped":       s.Skipped,
		"errors":        s.Errors,
	})
	return data
}
