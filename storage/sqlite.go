package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"vinyl_radar/models"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS listings (
		key TEXT PRIMARY KEY,
		seller TEXT,
		artist TEXT,
		title TEXT,
		normalized_seller TEXT,
		normalized_artist TEXT,
		normalized_title TEXT,
		price TEXT NOT NULL,
		currency TEXT,
		condition TEXT,
		shipping_fee TEXT,
		source TEXT,
		url TEXT,
		first_seen_at DATETIME,
		last_seen_at DATETIME,
		is_active BOOLEAN DEFAULT TRUE
	);

	CREATE TABLE IF NOT EXISTS price_observations (
		id INTEGER PRIMARY KEY,
		listing_key TEXT NOT NULL,
		price TEXT NOT NULL,
		currency TEXT,
		observed_at DATETIME,
		FOREIGN KEY (listing_key) REFERENCES listings(key)
	);

	CREATE TABLE IF NOT EXISTS preferences (
		id INTEGER PRIMARY KEY,
		type TEXT NOT NULL,
		value TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(type, value)
	);

	CREATE TABLE IF NOT EXISTS scan_runs (
		id INTEGER PRIMARY KEY,
		uuid TEXT,
		started_at DATETIME,
		finished_at DATETIME,
		status TEXT,
		terms_scanned INTEGER,
		listings_found INTEGER,
		listings_new INTEGER,
		price_changes INTEGER,
		errors_count INTEGER
	);

	CREATE TABLE IF NOT EXISTS scan_logs (
		id INTEGER PRIMARY KEY,
		run_id INTEGER,
		timestamp DATETIME,
		level TEXT,
		message TEXT,
		source_id TEXT
	);

	CREATE TABLE IF NOT EXISTS source_stats (
		source_id TEXT PRIMARY KEY,
		last_run_at DATETIME,
		last_run_status TEXT,
		total_listings INTEGER,
		active_listings INTEGER
	);

	CREATE TABLE IF NOT EXISTS commands (
		id INTEGER PRIMARY KEY,
		command TEXT,
		params JSON,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		processed_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_listings_active ON listings(is_active);
	CREATE INDEX IF NOT EXISTS idx_listings_artist ON listings(normalized_artist);
	CREATE INDEX IF NOT EXISTS idx_observations_key ON price_observations(listing_key, observed_at);
	CREATE INDEX IF NOT EXISTS idx_commands_pending ON commands(processed_at) WHERE processed_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_logs_run ON scan_logs(run_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON scan_runs(status, started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) GetListing(ctx context.Context, key string) (*models.Listing, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT key, seller, artist, title, normalized_seller, normalized_artist, normalized_title,
			price, currency, condition, shipping_fee, source, url,
			first_seen_at, last_seen_at, COALESCE(is_active, TRUE)
		FROM listings WHERE key = ?`, key)

	return scanListing(row)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanListing(row rowScanner) (*models.Listing, error) {
	var l models.Listing
	var price string
	var shipping sql.NullString
	err := row.Scan(&l.Key, &l.Seller, &l.Artist, &l.Title,
		&l.NormalizedSeller, &l.NormalizedArtist, &l.NormalizedTitle,
		&price, &l.Currency, &l.Condition, &shipping, &l.Source, &l.URL,
		&l.FirstSeenAt, &l.LastSeenAt, &l.IsActive)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	l.Price, err = decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("parse price for %s: %w", l.Key, err)
	}
	if shipping.Valid {
		fee, err := decimal.NewFromString(shipping.String)
		if err != nil {
			return nil, fmt.Errorf("parse shipping fee for %s: %w", l.Key, err)
		}
		l.ShippingFee = &fee
	}
	return &l, nil
}

func (s *SQLiteStore) UpsertListing(ctx context.Context, l *models.Listing) error {
	var shipping interface{}
	if l.ShippingFee != nil {
		shipping = l.ShippingFee.String()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO listings (key, seller, artist, title, normalized_seller, normalized_artist,
			normalized_title, price, currency, condition, shipping_fee, source, url,
			first_seen_at, last_seen_at, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, TRUE)
		ON CONFLICT(key) DO UPDATE SET
			price = excluded.price,
			currency = excluded.currency,
			condition = excluded.condition,
			shipping_fee = COALESCE(excluded.shipping_fee, shipping_fee),
			url = excluded.url,
			last_seen_at = excluded.last_seen_at,
			is_active = TRUE`,
		l.Key, l.Seller, l.Artist, l.Title, l.NormalizedSeller, l.NormalizedArtist,
		l.NormalizedTitle, l.Price.String(), l.Currency, l.Condition, shipping, l.Source, l.URL,
		l.FirstSeenAt, l.LastSeenAt)
	return err
}

func (s *SQLiteStore) TouchListing(ctx context.Context, key string, t time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE listings SET last_seen_at = ?, is_active = TRUE WHERE key = ?`, t, key)
	return err
}

// MarkInactiveExcept soft-deletes every listing whose key is absent from
// activeKeys. An empty set deactivates everything, so callers only run the
// sweep after a full, failure-free pass.
func (s *SQLiteStore) MarkInactiveExcept(ctx context.Context, activeKeys []string) (int64, error) {
	if len(activeKeys) == 0 {
		result, err := s.db.ExecContext(ctx, `UPDATE listings SET is_active = FALSE WHERE is_active = TRUE`)
		if err != nil {
			return 0, err
		}
		return result.RowsAffected()
	}

	placeholders := strings.Repeat("?,", len(activeKeys))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]interface{}, len(activeKeys))
	for i, key := range activeKeys {
		args[i] = key
	}

	result, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE listings SET is_active = FALSE
		WHERE is_active = TRUE AND key NOT IN (%s)`, placeholders), args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (s *SQLiteStore) AppendPriceObservation(ctx context.Context, obs *models.PriceObservation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO price_observations (listing_key, price, currency, observed_at)
		VALUES (?, ?, ?, ?)`,
		obs.ListingKey, obs.Price.String(), obs.Currency, obs.ObservedAt)
	return err
}

func (s *SQLiteStore) PriceHistory(ctx context.Context, key string) ([]models.PriceObservation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, listing_key, price, currency, observed_at
		FROM price_observations WHERE listing_key = ? ORDER BY observed_at`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var observations []models.PriceObservation
	for rows.Next() {
		var obs models.PriceObservation
		var price string
		if err := rows.Scan(&obs.ID, &obs.ListingKey, &price, &obs.Currency, &obs.ObservedAt); err != nil {
			return nil, err
		}
		obs.Price, err = decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("parse observed price: %w", err)
		}
		observations = append(observations, obs)
	}
	return observations, rows.Err()
}

func (s *SQLiteStore) ListPreferences(ctx context.Context) ([]models.PreferenceTerm, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, value, created_at FROM preferences ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var terms []models.PreferenceTerm
	for rows.Next() {
		var term models.PreferenceTerm
		if err := rows.Scan(&term.ID, &term.Type, &term.Value, &term.CreatedAt); err != nil {
			return nil, err
		}
		terms = append(terms, term)
	}
	return terms, rows.Err()
}

func (s *SQLiteStore) AddPreference(ctx context.Context, term *models.PreferenceTerm) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO preferences (type, value, created_at)
		VALUES (?, ?, ?)`, term.Type, term.Value, time.Now())
	return err
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run *models.ScanRun) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO scan_runs (uuid, started_at, status, terms_scanned, listings_found,
			listings_new, price_changes, errors_count)
		VALUES (?, ?, ?, 0, 0, 0, 0, 0)`,
		run.UUID.String(), run.StartedAt, run.Status)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *SQLiteStore) UpdateRun(ctx context.Context, run *models.ScanRun) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE scan_runs SET finished_at = ?, status = ?, terms_scanned = ?,
			listings_found = ?, listings_new = ?, price_changes = ?, errors_count = ?
		WHERE id = ?`,
		run.FinishedAt, run.Status, run.TermsScanned,
		run.ListingsFound, run.ListingsNew, run.PriceChanges, run.ErrorsCount, run.ID)
	return err
}

func (s *SQLiteStore) Log(ctx context.Context, runID *int64, level models.LogLevel, message, sourceID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scan_logs (run_id, timestamp, level, message, source_id)
		VALUES (?, ?, ?, ?, ?)`,
		runID, time.Now(), level, message, sourceID)
	return err
}

func (s *SQLiteStore) UpdateSourceStats(ctx context.Context, sourceID string, status models.RunStatus) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO source_stats (source_id, last_run_at, last_run_status, total_listings, active_listings)
		SELECT
			?,
			?,
			?,
			(SELECT COUNT(*) FROM listings WHERE source = ?),
			(SELECT COUNT(*) FROM listings WHERE source = ? AND is_active = TRUE)
		WHERE TRUE
		ON CONFLICT(source_id) DO UPDATE SET
			last_run_at = excluded.last_run_at,
			last_run_status = excluded.last_run_status,
			total_listings = excluded.total_listings,
			active_listings = excluded.active_listings`,
		sourceID, time.Now(), status, sourceID, sourceID)
	return err
}

func (s *SQLiteStore) GetPendingCommands(ctx context.Context) ([]models.Command, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, command, params, created_at, processed_at
		FROM commands WHERE processed_at IS NULL ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cmds []models.Command
	for rows.Next() {
		var cmd models.Command
		var params sql.NullString
		if err := rows.Scan(&cmd.ID, &cmd.Command, &params, &cmd.CreatedAt, &cmd.ProcessedAt); err != nil {
			return nil, err
		}
		if params.Valid {
			cmd.Params = json.RawMessage(params.String)
		}
		cmds = append(cmds, cmd)
	}
	return cmds, rows.Err()
}

func (s *SQLiteStore) MarkCommandProcessed(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE commands SET processed_at = ? WHERE id = ?`, time.Now(), id)
	return err
}

func ParseCommandParams(cmd *models.Command) (*models.CommandParams, error) {
	if cmd.Params == nil || string(cmd.Params) == "null" {
		return &models.CommandParams{}, nil
	}
	var params models.CommandParams
	if err := json.Unmarshal(cmd.Params, &params); err != nil {
		return nil, err
	}
	return &params, nil
}
