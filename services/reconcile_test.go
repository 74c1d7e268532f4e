package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"vinyl_radar/identity"
	"vinyl_radar/models"
)

type fakeStore struct {
	listings     map[string]models.Listing
	observations []models.PriceObservation
	upserts      int
	touches      int
}

func newFakeStore() *fakeStore {
	return &fakeStore{listings: make(map[string]models.Listing)}
}

func (s *fakeStore) GetListing(ctx context.Context, key string) (*models.Listing, error) {
	l, ok := s.listings[key]
	if !ok {
		return nil, nil
	}
	copied := l
	return &copied, nil
}

func (s *fakeStore) UpsertListing(ctx context.Context, l *models.Listing) error {
	s.upserts++
	s.listings[l.Key] = *l
	return nil
}

func (s *fakeStore) TouchListing(ctx context.Context, key string, t time.Time) error {
	s.touches++
	if l, ok := s.listings[key]; ok {
		l.LastSeenAt = t
		l.IsActive = true
		s.listings[key] = l
	}
	return nil
}

func (s *fakeStore) AppendPriceObservation(ctx context.Context, obs *models.PriceObservation) error {
	s.observations = append(s.observations, *obs)
	return nil
}

func (s *fakeStore) mutations() int {
	return s.upserts + s.touches + len(s.observations)
}

func artistPref(value string) models.PreferenceTerm {
	return models.PreferenceTerm{Type: models.TermArtist, Value: value}
}

func candidate(seller, artist, title string, price int64) *models.CandidateListing {
	return &models.CandidateListing{
		Seller:    seller,
		Artist:    artist,
		Title:     title,
		Price:     decimal.NewFromInt(price),
		Currency:  "USD",
		Condition: models.ConditionNearMint,
		Source:    "test",
	}
}

func TestReconcile_IrrelevantSkippedWithoutMutations(t *testing.T) {
	store := newFakeStore()
	r := NewReconciler(store)

	prefs := []models.PreferenceTerm{artistPref("pink floyd")}
	cand := candidate("RareVinyl", "Miles Davis", "Kind of Blue", 40)

	result, err := r.Reconcile(context.Background(), cand, prefs)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if result.Outcome != OutcomeSkipped {
		t.Fatalf("expected skipped, got %s", result.Outcome)
	}
	if store.mutations() != 0 {
		t.Fatalf("expected zero store mutations, got %d", store.mutations())
	}
}

func TestReconcile_NewThenSeenAgain(t *testing.T) {
	store := newFakeStore()
	r := NewReconciler(store)

	prefs := []models.PreferenceTerm{artistPref("pink floyd")}
	cand := candidate("RareVinyl", "Pink Floyd", "The Wall", 50)

	first, err := r.Reconcile(context.Background(), cand, prefs)
	if err != nil {
		t.Fatalf("first reconcile failed: %v", err)
	}
	if first.Outcome != OutcomeNew {
		t.Fatalf("expected new, got %s", first.Outcome)
	}
	if !first.Listing.IsActive {
		t.Fatalf("new listing should be active")
	}
	if len(store.observations) != 1 {
		t.Fatalf("expected 1 price observation, got %d", len(store.observations))
	}

	second, err := r.Reconcile(context.Background(), cand, prefs)
	if err != nil {
		t.Fatalf("second reconcile failed: %v", err)
	}
	if second.Outcome != OutcomeSeenAgain {
		t.Fatalf("expected seen_again, got %s", second.Outcome)
	}
	if len(store.observations) != 1 {
		t.Fatalf("seen_again must not append observations, got %d", len(store.observations))
	}
}

func TestReconcile_PriceChanged(t *testing.T) {
	store := newFakeStore()
	r := NewReconciler(store)

	prefs := []models.PreferenceTerm{artistPref("pink floyd")}

	before, err := r.Reconcile(context.Background(), candidate("RareVinyl", "Pink Floyd", "The Wall", 100), prefs)
	if err != nil {
		t.Fatalf("seed reconcile failed: %v", err)
	}
	seededLastSeen := before.Listing.LastSeenAt

	result, err := r.Reconcile(context.Background(), candidate("RareVinyl", "Pink Floyd", "The Wall", 120), prefs)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if result.Outcome != OutcomePriceChanged {
		t.Fatalf("expected price_changed, got %s", result.Outcome)
	}
	if result.PreviousPrice == nil || !result.PreviousPrice.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected previous price 100, got %v", result.PreviousPrice)
	}
	if !result.Listing.Price.Equal(decimal.NewFromInt(120)) {
		t.Fatalf("expected price 120, got %s", result.Listing.Price)
	}
	if len(store.observations) != 2 {
		t.Fatalf("expected exactly 2 observations, got %d", len(store.observations))
	}
	if !store.observations[1].Price.Equal(decimal.NewFromInt(120)) {
		t.Fatalf("expected new observation at 120, got %s", store.observations[1].Price)
	}
	if result.Listing.LastSeenAt.Before(seededLastSeen) {
		t.Fatalf("last seen must not go backwards")
	}
}

func TestReconcile_PriceIndependentIdentity(t *testing.T) {
	store := newFakeStore()
	r := NewReconciler(store)

	prefs := []models.PreferenceTerm{artistPref("pink floyd")}

	first, _ := r.Reconcile(context.Background(), candidate("RareVinyl", "Pink Floyd", "The Wall", 100), prefs)
	second, err := r.Reconcile(context.Background(), candidate("RareVinyl", "Pink Floyd", "The Wall", 120), prefs)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if second.Outcome == OutcomeNew {
		t.Fatalf("price change alone must not mint a new listing")
	}
	if first.Listing.Key != second.Listing.Key {
		t.Fatalf("keys differ across prices: %s vs %s", first.Listing.Key, second.Listing.Key)
	}
}

func TestReconcile_AlbumPreferenceMatchesTitle(t *testing.T) {
	store := newFakeStore()
	r := NewReconciler(store)

	prefs := []models.PreferenceTerm{{Type: models.TermAlbum, Value: "the wall"}}
	cand := candidate("Dusty Grooves", "Unknown Tribute Band", "The Wall (Deluxe Reissue)", 30)

	result, err := r.Reconcile(context.Background(), cand, prefs)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if result.Outcome != OutcomeNew {
		t.Fatalf("expected new via album match, got %s", result.Outcome)
	}
}

func TestReconcile_GenrePreferenceNotConsulted(t *testing.T) {
	store := newFakeStore()
	r := NewReconciler(store)

	prefs := []models.PreferenceTerm{{Type: models.TermGenre, Value: "jazz"}}
	cand := candidate("Spin City Records", "Jazz Messengers", "Moanin'", 25)

	result, err := r.Reconcile(context.Background(), cand, prefs)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if result.Outcome != OutcomeSkipped {
		t.Fatalf("genre terms must not drive relevance, got %s", result.Outcome)
	}
	if store.mutations() != 0 {
		t.Fatalf("expected zero mutations, got %d", store.mutations())
	}
}

func TestReconcile_NormalizedScenario(t *testing.T) {
	store := newFakeStore()
	r := NewReconciler(store)

	prefs := []models.PreferenceTerm{artistPref("pink floyd")}
	cand := candidate("RareVinyl", "Pink Floyd", "The Wall", 50)

	result, err := r.Reconcile(context.Background(), cand, prefs)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if result.Outcome != OutcomeNew {
		t.Fatalf("expected new, got %s", result.Outcome)
	}
	if result.Listing.Key != identity.Key("rarevinyl", "the wall") {
		t.Fatalf("key not derived from normalized seller and title")
	}
	if result.Listing.NormalizedArtist != "pink floyd" {
		t.Fatalf("unexpected normalized artist %q", result.Listing.NormalizedArtist)
	}

	repeat, err := r.Reconcile(context.Background(), cand, prefs)
	if err != nil {
		t.Fatalf("repeat reconcile failed: %v", err)
	}
	if repeat.Outcome != OutcomeSeenAgain {
		t.Fatalf("expected seen_again on repeated pass, got %s", repeat.Outcome)
	}
}

func TestRelevant_EmptyTermsNeverMatch(t *testing.T) {
	if Relevant("pink floyd", "the wall", []models.PreferenceTerm{artistPref("  ")}) {
		t.Fatalf("blank preference value must not match everything")
	}
	if Relevant("pink floyd", "the wall", nil) {
		t.Fatalf("no preferences means nothing is relevant")
	}
}
