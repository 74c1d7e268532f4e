package storage

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"vinyl_radar/identity"
	"vinyl_radar/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testListing(seller, title string, price int64) *models.Listing {
	now := time.Now().UTC().Truncate(time.Second)
	normSeller := identity.Normalize(seller)
	normTitle := identity.Normalize(title)
	return &models.Listing{
		Key:              identity.Key(normSeller, normTitle),
		Seller:           seller,
		Artist:           "Pink Floyd",
		Title:            title,
		NormalizedSeller: normSeller,
		NormalizedArtist: "pink floyd",
		NormalizedTitle:  normTitle,
		Price:            decimal.NewFromInt(price),
		Currency:         "USD",
		Condition:        models.ConditionNearMint,
		Source:           "waxtrade",
		URL:              "https://waxtrade.example.com/l/1",
		FirstSeenAt:      now,
		LastSeenAt:       now,
		IsActive:         true,
	}
}

func TestSQLiteStore_ListingRoundtrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	missing, err := store.GetListing(ctx, "nope")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown key")
	}

	l := testListing("RareVinyl", "The Wall", 50)
	fee := decimal.RequireFromString("12.50")
	l.ShippingFee = &fee

	if err := store.UpsertListing(ctx, l); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	got, err := store.GetListing(ctx, l.Key)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got == nil {
		t.Fatalf("listing not found after upsert")
	}
	if got.Seller != "RareVinyl" || got.NormalizedTitle != "the wall" {
		t.Fatalf("unexpected listing: %+v", got)
	}
	if !got.Price.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected price 50, got %s", got.Price)
	}
	if got.ShippingFee == nil || !got.ShippingFee.Equal(fee) {
		t.Fatalf("shipping fee lost in roundtrip: %v", got.ShippingFee)
	}
	if !got.IsActive {
		t.Fatalf("new listing should be active")
	}

	// Upsert on the same key updates price, never duplicates
	l.Price = decimal.RequireFromString("59.99")
	if err := store.UpsertListing(ctx, l); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	got, _ = store.GetListing(ctx, l.Key)
	if !got.Price.Equal(decimal.RequireFromString("59.99")) {
		t.Fatalf("expected updated price, got %s", got.Price)
	}
}

func TestSQLiteStore_TouchListing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	l := testListing("RareVinyl", "The Wall", 50)
	if err := store.UpsertListing(ctx, l); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	later := l.LastSeenAt.Add(time.Hour)
	if err := store.TouchListing(ctx, l.Key, later); err != nil {
		t.Fatalf("touch failed: %v", err)
	}

	got, _ := store.GetListing(ctx, l.Key)
	if !got.LastSeenAt.After(l.LastSeenAt) {
		t.Fatalf("touch did not advance last_seen_at")
	}
}

func TestSQLiteStore_MarkInactiveExcept(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := testListing("RareVinyl", "The Wall", 50)
	b := testListing("WaxStacks", "Animals", 40)
	for _, l := range []*models.Listing{a, b} {
		if err := store.UpsertListing(ctx, l); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
	}

	swept, err := store.MarkInactiveExcept(ctx, []string{a.Key})
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if swept != 1 {
		t.Fatalf("expected 1 swept listing, got %d", swept)
	}

	gotA, _ := store.GetListing(ctx, a.Key)
	gotB, _ := store.GetListing(ctx, b.Key)
	if !gotA.IsActive {
		t.Fatalf("listing A should stay active")
	}
	if gotB.IsActive {
		t.Fatalf("listing B should be inactive")
	}

	// Sweeping again is a no-op
	swept, err = store.MarkInactiveExcept(ctx, []string{a.Key})
	if err != nil {
		t.Fatalf("second sweep failed: %v", err)
	}
	if swept != 0 {
		t.Fatalf("expected idempotent sweep, got %d", swept)
	}
}

func TestSQLiteStore_PriceHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	l := testListing("RareVinyl", "The Wall", 100)
	if err := store.UpsertListing(ctx, l); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	base := time.Now().UTC().Truncate(time.Second)
	for i, price := range []string{"100", "120.50", "95"} {
		obs := &models.PriceObservation{
			ListingKey: l.Key,
			Price:      decimal.RequireFromString(price),
			Currency:   "USD",
			ObservedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if err := store.AppendPriceObservation(ctx, obs); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	history, err := store.PriceHistory(ctx, l.Key)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 observations, got %d", len(history))
	}
	if !history[1].Price.Equal(decimal.RequireFromString("120.50")) {
		t.Fatalf("expected 120.50 second, got %s", history[1].Price)
	}
	if !history[0].ObservedAt.Before(history[2].ObservedAt) {
		t.Fatalf("history must be ordered by observation time")
	}
}

func TestSQLiteStore_PreferencesUnique(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	term := &models.PreferenceTerm{Type: models.TermArtist, Value: "pink floyd"}
	if err := store.AddPreference(ctx, term); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if err := store.AddPreference(ctx, term); err != nil {
		t.Fatalf("duplicate add must be ignored, got %v", err)
	}
	if err := store.AddPreference(ctx, &models.PreferenceTerm{Type: models.TermGenre, Value: "pink floyd"}); err != nil {
		t.Fatalf("same value under another type must insert, got %v", err)
	}

	terms, err := store.ListPreferences(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(terms) != 2 {
		t.Fatalf("expected 2 terms, got %d", len(terms))
	}
}

func TestSQLiteStore_RunLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := &models.ScanRun{
		UUID:      uuid.New(),
		StartedAt: time.Now().UTC(),
		Status:    models.RunStatusRunning,
	}
	id, err := store.CreateRun(ctx, run)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if id == 0 {
		t.Fatalf("expected a run id")
	}
	run.ID = id

	now := time.Now().UTC()
	run.FinishedAt = &now
	run.Status = models.RunStatusCompleted
	run.TermsScanned = 3
	run.ListingsFound = 12
	run.ListingsNew = 4
	run.PriceChanges = 1
	if err := store.UpdateRun(ctx, run); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	if err := store.Log(ctx, &run.ID, models.LogLevelInfo, "pass complete", "waxtrade"); err != nil {
		t.Fatalf("log failed: %v", err)
	}
	if err := store.UpdateSourceStats(ctx, "waxtrade", models.RunStatusCompleted); err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	// Upsert path for an already-known source
	if err := store.UpdateSourceStats(ctx, "waxtrade", models.RunStatusFailed); err != nil {
		t.Fatalf("stats upsert failed: %v", err)
	}
}

func TestSQLiteStore_Commands(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	params, _ := json.Marshal(models.CommandParams{Type: "artist", Value: "King Crimson"})
	_, err := store.db.ExecContext(ctx,
		`INSERT INTO commands (command, params) VALUES (?, ?)`,
		models.CmdAddPreference, string(params))
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	cmds, err := store.GetPendingCommands(ctx)
	if err != nil {
		t.Fatalf("get pending failed: %v", err)
	}
	if len(cmds) != 1 {
		t.Fatalf("expected 1 pending command, got %d", len(cmds))
	}

	parsed, err := ParseCommandParams(&cmds[0])
	if err != nil {
		t.Fatalf("parse params failed: %v", err)
	}
	if parsed.Type != "artist" || parsed.Value != "King Crimson" {
		t.Fatalf("unexpected params: %+v", parsed)
	}

	if err := store.MarkCommandProcessed(ctx, cmds[0].ID); err != nil {
		t.Fatalf("mark processed failed: %v", err)
	}
	cmds, _ = store.GetPendingCommands(ctx)
	if len(cmds) != 0 {
		t.Fatalf("processed command must not be pending")
	}
}

func TestParseCommandParams_Empty(t *testing.T) {
	parsed, err := ParseCommandParams(&models.Command{Command: models.CmdScanNow})
	if err != nil {
		t.Fatalf("nil params must parse, got %v", err)
	}
	if parsed.Type != "" || parsed.Value != "" {
		t.Fatalf("expected empty params, got %+v", parsed)
	}
}
