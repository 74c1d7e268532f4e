package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"vinyl_radar/models"
)

// PostgresStore backs deployments that share one database between the
// daemon and other consumers. Schema-compatible with the SQLite store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS listings (
		key TEXT PRIMARY KEY,
		seller TEXT,
		artist TEXT,
		title TEXT,
		normalized_seller TEXT,
		normalized_artist TEXT,
		normalized_title TEXT,
		price NUMERIC NOT NULL,
		currency TEXT,
		condition TEXT,
		shipping_fee NUMERIC,
		source TEXT,
		url TEXT,
		first_seen_at TIMESTAMPTZ,
		last_seen_at TIMESTAMPTZ,
		is_active BOOLEAN DEFAULT TRUE
	);

	CREATE TABLE IF NOT EXISTS price_observations (
		id BIGSERIAL PRIMARY KEY,
		listing_key TEXT NOT NULL REFERENCES listings(key),
		price NUMERIC NOT NULL,
		currency TEXT,
		observed_at TIMESTAMPTZ
	);

	CREATE TABLE IF NOT EXISTS preferences (
		id BIGSERIAL PRIMARY KEY,
		type TEXT NOT NULL,
		value TEXT NOT NULL,
		created_at TIMESTAMPTZ DEFAULT NOW(),
		UNIQUE(type, value)
	);

	CREATE TABLE IF NOT EXISTS scan_runs (
		id BIGSERIAL PRIMARY KEY,
		uuid UUID,
		started_at TIMESTAMPTZ,
		finished_at TIMESTAMPTZ,
		status TEXT,
		terms_scanned INTEGER DEFAULT 0,
		listings_found INTEGER DEFAULT 0,
		listings_new INTEGER DEFAULT 0,
		price_changes INTEGER DEFAULT 0,
		errors_count INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS scan_logs (
		id BIGSERIAL PRIMARY KEY,
		run_id BIGINT,
		timestamp TIMESTAMPTZ,
		level TEXT,
		message TEXT,
		source_id TEXT
	);

	CREATE TABLE IF NOT EXISTS source_stats (
		source_id TEXT PRIMARY KEY,
		last_run_at TIMESTAMPTZ,
		last_run_status TEXT,
		total_listings INTEGER,
		active_listings INTEGER
	);

	CREATE TABLE IF NOT EXISTS commands (
		id BIGSERIAL PRIMARY KEY,
		command TEXT,
		params JSONB,
		created_at TIMESTAMPTZ DEFAULT NOW(),
		processed_at TIMESTAMPTZ
	);

	CREATE INDEX IF NOT EXISTS idx_listings_active ON listings(is_active);
	CREATE INDEX IF NOT EXISTS idx_listings_artist ON listings(normalized_artist);
	CREATE INDEX IF NOT EXISTS idx_observations_key ON price_observations(listing_key, observed_at);
	CREATE INDEX IF NOT EXISTS idx_logs_run ON scan_logs(run_id, timestamp);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func (s *PostgresStore) GetListing(ctx context.Context, key string) (*models.Listing, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT key, seller, artist, title, normalized_seller, normalized_artist, normalized_title,
			price::text, currency, condition, shipping_fee::text, source, url,
			first_seen_at, last_seen_at, COALESCE(is_active, TRUE)
		FROM listings WHERE key = $1`, key)

	var l models.Listing
	var price string
	var shipping *string
	err := row.Scan(&l.Key, &l.Seller, &l.Artist, &l.Title,
		&l.NormalizedSeller, &l.NormalizedArtist, &l.NormalizedTitle,
		&price, &l.Currency, &l.Condition, &shipping, &l.Source, &l.URL,
		&l.FirstSeenAt, &l.LastSeenAt, &l.IsActive)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	l.Price, err = decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("parse price for %s: %w", l.Key, err)
	}
	if shipping != nil {
		fee, err := decimal.NewFromString(*shipping)
		if err != nil {
			return nil, fmt.Errorf("parse shipping fee for %s: %w", l.Key, err)
		}
		l.ShippingFee = &fee
	}
	return &l, nil
}

func (s *PostgresStore) UpsertListing(ctx context.Context, l *models.Listing) error {
	var shipping *string
	if l.ShippingFee != nil {
		v := l.ShippingFee.String()
		shipping = &v
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO listings (key, seller, artist, title, normalized_seller, normalized_artist,
			normalized_title, price, currency, condition, shipping_fee, source, url,
			first_seen_at, last_seen_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9, $10, $11::numeric, $12, $13, $14, $15, TRUE)
		ON CONFLICT (key) DO UPDATE SET
			price = EXCLUDED.price,
			currency = EXCLUDED.currency,
			condition = EXCLUDED.condition,
			shipping_fee = COALESCE(EXCLUDED.shipping_fee, listings.shipping_fee),
			url = EXCLUDED.url,
			last_seen_at = EXCLUDED.last_seen_at,
			is_active = TRUE`,
		l.Key, l.Seller, l.Artist, l.Title, l.NormalizedSeller, l.NormalizedArtist,
		l.NormalizedTitle, l.Price.String(), l.Currency, l.Condition, shipping, l.Source, l.URL,
		l.FirstSeenAt, l.LastSeenAt)
	return err
}

func (s *PostgresStore) TouchListing(ctx context.Context, key string, t time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE listings SET last_seen_at = $1, is_active = TRUE WHERE key = $2`, t, key)
	return err
}

func (s *PostgresStore) MarkInactiveExcept(ctx context.Context, activeKeys []string) (int64, error) {
	if len(activeKeys) == 0 {
		tag, err := s.pool.Exec(ctx, `UPDATE listings SET is_active = FALSE WHERE is_active = TRUE`)
		if err != nil {
			return 0, err
		}
		return tag.RowsAffected(), nil
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE listings SET is_active = FALSE
		WHERE is_active = TRUE AND key != ALL($1)`, activeKeys)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) AppendPriceObservation(ctx context.Context, obs *models.PriceObservation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO price_observations (listing_key, price, currency, observed_at)
		VALUES ($1, $2::numeric, $3, $4)`,
		obs.ListingKey, obs.Price.String(), obs.Currency, obs.ObservedAt)
	return err
}

func (s *PostgresStore) PriceHistory(ctx context.Context, key string) ([]models.PriceObservation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, listing_key, price::text, currency, observed_at
		FROM price_observations WHERE listing_key = $1 ORDER BY observed_at`, key)
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

func (s *PostgresStore) ListPreferences(ctx context.Context) ([]models.PreferenceTerm, error) {
	rows, err := s.pool.Query(ctx, `
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

func (s *PostgresStore) AddPreference(ctx context.Context, term *models.PreferenceTerm) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO preferences (type, value, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (type, value) DO NOTHING`, term.Type, term.Value)
	return err
}

func (s *PostgresStore) CreateRun(ctx context.Context, run *models.ScanRun) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO scan_runs (uuid, started_at, status)
		VALUES ($1, $2, $3)
		RETURNING id`,
		run.UUID.String(), run.StartedAt, run.Status).Scan(&id)
	return id, err
}

func (s *PostgresStore) UpdateRun(ctx context.Context, run *models.ScanRun) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE scan_runs SET finished_at = $1, status = $2, terms_scanned = $3,
			listings_found = $4, listings_new = $5, price_changes = $6, errors_count = $7
		WHERE id = $8`,
		run.FinishedAt, run.Status, run.TermsScanned,
		run.ListingsFound, run.ListingsNew, run.PriceChanges, run.ErrorsCount, run.ID)
	return err
}

func (s *PostgresStore) Log(ctx context.Context, runID *int64, level models.LogLevel, message, sourceID string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scan_logs (run_id, timestamp, level, message, source_id)
		VALUES ($1, NOW(), $2, $3, $4)`,
		runID, level, message, sourceID)
	return err
}

func (s *PostgresStore) UpdateSourceStats(ctx context.Context, sourceID string, status models.RunStatus) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO source_stats (source_id, last_run_at, last_run_status, total_listings, active_listings)
		SELECT
			$1,
			NOW(),
			$2,
			(SELECT COUNT(*) FROM listings WHERE source = $1),
			(SELECT COUNT(*) FROM listings WHERE source = $1 AND is_active = TRUE)
		ON CONFLICT (source_id) DO UPDATE SET
			last_run_at = EXCLUDED.last_run_at,
			last_run_status = EXCLUDED.last_run_status,
			total_listings = EXCLUDED.total_listings,
			active_listings = EXCLUDED.active_listings`,
		sourceID, status)
	return err
}

func (s *PostgresStore) GetPendingCommands(ctx context.Context) ([]models.Command, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, command, params, created_at, processed_at
		FROM commands WHERE processed_at IS NULL ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cmds []models.Command
	for rows.Next() {
		var cmd models.Command
		var params []byte
		if err := rows.Scan(&cmd.ID, &cmd.Command, &params, &cmd.CreatedAt, &cmd.ProcessedAt); err != nil {
			return nil, err
		}
		if params != nil {
			cmd.Params = json.RawMessage(params)
		}
		cmds = append(cmds, cmd)
	}
	return cmds, rows.Err()
}

func (s *PostgresStore) MarkCommandProcessed(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE commands SET processed_at = NOW() WHERE id = $1`, id)
	return err
}
