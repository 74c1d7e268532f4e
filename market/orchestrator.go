package market

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"vinyl_radar/config"
	"vinyl_radar/identity"
	"vinyl_radar/models"
	"vinyl_radar/notify"
	"vinyl_radar/services"
	"vinyl_radar/storage"
)

// Orchestrator drives one reconciliation pass: fetch every configured
// source for every preference term, reconcile each candidate, notify the
// batch of new listings once, then sweep listings absent from the pass.
// Passes never overlap; an overlapping trigger is skipped.
type Orchestrator struct {
	cfg        *config.Config
	store      storage.Store
	reconciler *services.Reconciler
	notifier   notify.Notifier
	clients    []Client
	delay      time.Duration

	mu      sync.Mutex
	running bool
	paused  bool
}

func NewOrchestrator(cfg *config.Config, store storage.Store, reconciler *services.Reconciler, notifier notify.Notifier, httpClient *http.Client) *Orchestrator {
	ids := make([]string, 0, len(cfg.Sources))
	for id := range cfg.Sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	clients := make([]Client, 0, len(ids))
	for _, id := range ids {
		clients = append(clients, NewClient(cfg.Sources[id], httpClient, cfg.Market.RetryAttempts))
	}

	return &Orchestrator{
		cfg:        cfg,
		store:      store,
		reconciler: reconciler,
		notifier:   notifier,
		clients:    clients,
		delay:      time.Duration(cfg.Market.DelayMS) * time.Millisecond,
	}
}

// SetClients replaces the configured marketplace clients. Used by tests.
func (o *Orchestrator) SetClients(clients ...Client) {
	o.clients = clients
}

func (o *Orchestrator) begin() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return false
	}
	o.running = true
	return true
}

func (o *Orchestrator) end() {
	o.mu.Lock()
	o.running = false
	o.mu.Unlock()
}

func (o *Orchestrator) IsPaused() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.paused
}

func (o *Orchestrator) setPaused(paused bool) {
	o.mu.Lock()
	o.paused = paused
	o.mu.Unlock()
}

// RunPass executes one full reconciliation pass. A pass is tolerant of
// per-term fetch failures and per-candidate store failures; it reports
// them and keeps going. The returned error reflects whether the pass as a
// whole can be considered clean.
func (o *Orchestrator) RunPass(ctx context.Context) error {
	if !o.begin() {
		log.Println("Pass already running, skipping trigger")
		return nil
	}
	defer o.end()

	if o.IsPaused() {
		log.Println("Scanner is paused, skipping pass")
		return nil
	}

	prefs, err := o.store.ListPreferences(ctx)
	if err != nil {
		return fmt.Errorf("list preferences: %w", err)
	}
	if len(prefs) == 0 {
		log.Println("No preference terms configured, nothing to scan")
		return nil
	}

	run := &models.ScanRun{
		UUID:      uuid.New(),
		StartedAt: time.Now(),
		Status:    models.RunStatusRunning,
	}
	runID, err := o.store.CreateRun(ctx, run)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	run.ID = runID

	o.log(ctx, run.ID, models.LogLevelInfo, fmt.Sprintf("Starting pass over %d terms, %d sources", len(prefs), len(o.clients)), "")

	stats := &services.PassStats{}
	var newListings []models.Listing
	activeKeys := make(map[string]struct{})
	fetchFailed := false
	firstFetch := true

	for _, term := range prefs {
		for _, client := range o.clients {
			if !firstFetch {
				if err := o.wait(ctx); err != nil {
					return o.abort(ctx, run, err)
				}
			}
			firstFetch = false

			candidates, err := client.Search(ctx, term.Value)
			if err != nil {
				if ctx.Err() != nil {
					return o.abort(ctx, run, ctx.Err())
				}
				fetchFailed = true
				run.ErrorsCount++
				stats.Errors++
				o.report(ctx, run.ID, fmt.Sprintf("search %q failed: %v", term.Value, err), client.ID())
				continue
			}

			for i := range candidates {
				result, err := o.reconciler.Reconcile(ctx, &candidates[i], prefs)
				if err != nil {
					run.ErrorsCount++
					stats.Errors++
					o.report(ctx, run.ID, fmt.Sprintf("reconcile %q by %q: %v", candidates[i].Title, candidates[i].Seller, err), client.ID())
					continue
				}

				stats.Aggregate(result)
				switch result.Outcome {
				case services.OutcomeNew:
					newListings = append(newListings, *result.Listing)
					activeKeys[result.Listing.Key] = struct{}{}
				case services.OutcomeSeenAgain, services.OutcomePriceChanged:
					activeKeys[result.Listing.Key] = struct{}{}
				}
			}
			run.ListingsFound += len(candidates)
		}
		run.TermsScanned++
	}

	if len(newListings) > 0 {
		if err := o.notifier.NotifyNew(ctx, newListings); err != nil {
			log.Printf("Warning: new-listing notification failed: %v", err)
		}
	}

	// A failed term means part of the marketplace was never seen this
	// pass; sweeping on partial knowledge would strobe listings between
	// active and inactive.
	if !fetchFailed {
		keys := make([]string, 0, len(activeKeys))
		for key := range activeKeys {
			keys = append(keys, key)
		}
		if swept, err := o.store.MarkInactiveExcept(ctx, keys); err != nil {
			log.Printf("Warning: deactivation sweep failed: %v", err)
		} else if swept > 0 {
			o.log(ctx, run.ID, models.LogLevelInfo, fmt.Sprintf("Deactivated %d listings absent from this pass", swept), "")
		}
	}

	now := time.Now()
	run.FinishedAt = &now
	run.Status = models.RunStatusCompleted
	if fetchFailed {
		run.Status = models.RunStatusFailed
	}
	run.ListingsNew = stats.New
	run.PriceChanges = stats.PriceChanges
	if err := o.store.UpdateRun(ctx, run); err != nil {
		log.Printf("Warning: failed to update run: %v", err)
	}

	for _, client := range o.clients {
		if err := o.store.UpdateSourceStats(ctx, client.ID(), run.Status); err != nil {
			log.Printf("Warning: failed to update stats for %s: %v", client.ID(), err)
		}
	}

	o.log(ctx, run.ID, models.LogLevelInfo,
		fmt.Sprintf("Pass complete: %d found, %d new, %d price changes, %d skipped, %d errors",
			run.ListingsFound, stats.New, stats.PriceChanges, stats.Skipped, stats.Errors), "")

	if fetchFailed {
		return fmt.Errorf("pass finished with %d errors", run.ErrorsCount)
	}
	return nil
}

func (o *Orchestrator) abort(ctx context.Context, run *models.ScanRun, cause error) error {
	now := time.Now()
	run.FinishedAt = &now
	run.Status = models.RunStatusFailed
	if err := o.store.UpdateRun(ctx, run); err != nil {
		log.Printf("Warning: failed to update aborted run: %v", err)
	}
	return cause
}

func (o *Orchestrator) wait(ctx context.Context) error {
	if o.delay <= 0 {
		return nil
	}
	select {
	case <-time.After(o.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// report logs a pass-level failure and forwards it on the notifier's
// error channel.
func (o *Orchestrator) report(ctx context.Context, runID int64, message, sourceID string) {
	o.log(ctx, runID, models.LogLevelError, message, sourceID)
	if err := o.notifier.NotifyError(ctx, message, sourceID); err != nil {
		log.Printf("Warning: error notification failed: %v", err)
	}
}

func (o *Orchestrator) log(ctx context.Context, runID int64, level models.LogLevel, message, sourceID string) {
	log.Printf("[%s] %s", level, message)
	if err := o.store.Log(ctx, &runID, level, message, sourceID); err != nil {
		log.Printf("Warning: failed to persist log: %v", err)
	}
}

func (o *Orchestrator) HandleCommand(ctx context.Context, cmd *models.Command) error {
	params, err := storage.ParseCommandParams(cmd)
	if err != nil {
		return err
	}

	switch cmd.Command {
	case models.CmdScanNow:
		return o.RunPass(ctx)
	case models.CmdPause:
		o.setPaused(true)
		log.Println("Scanner paused")
	case models.CmdResume:
		o.setPaused(false)
		log.Println("Scanner resumed")
	case models.CmdAddPreference:
		return o.addPreference(ctx, params)
	}

	return nil
}

func (o *Orchestrator) addPreference(ctx context.Context, params *models.CommandParams) error {
	termType := models.TermType(params.Type)
	switch termType {
	case models.TermArtist, models.TermGenre, models.TermAlbum:
	default:
		return fmt.Errorf("unknown preference type %q", params.Type)
	}

	value := identity.Normalize(params.Value)
	if value == "" {
		return fmt.Errorf("empty preference value")
	}

	return o.store.AddPreference(ctx, &models.PreferenceTerm{Type: termType, Value: value})
}

// SeedPreferences loads the configured interest lists into the store.
// Insertions are idempotent, so re-seeding on every start is safe.
func (o *Orchestrator) SeedPreferences(ctx context.Context) error {
	seed := func(termType models.TermType, values []string) error {
		for _, value := range values {
			normalized := identity.Normalize(value)
			if normalized == "" {
				continue
			}
			if err := o.store.AddPreference(ctx, &models.PreferenceTerm{Type: termType, Value: normalized}); err != nil {
				return fmt.Errorf("seed %s %q: %w", termType, value, err)
			}
		}
		return nil
	}

	if err := seed(models.TermArtist, o.cfg.Preferences.Artists); err != nil {
		return err
	}
	if err := seed(models.TermGenre, o.cfg.Preferences.Genres); err != nil {
		return err
	}
	return seed(models.TermAlbum, o.cfg.Preferences.Albums)
}
