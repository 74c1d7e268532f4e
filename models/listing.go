package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Goldmine grading scale, as used by most marketplaces.
const (
	ConditionMint         = "M"
	ConditionNearMint     = "NM"
	ConditionVeryGoodPlus = "VG+"
	ConditionVeryGood     = "VG"
	ConditionGoodPlus     = "G+"
	ConditionGood         = "G"
	ConditionFair         = "F"
	ConditionPoor         = "P"
)

// CandidateListing is a raw search result as returned by a marketplace
// handler. It carries no identity key and no normalized fields; the
// reconciler derives those on ingestion.
type CandidateListing struct {
	Seller      string           `json:"seller"`
	Artist      string           `json:"artist"`
	Title       string           `json:"title"`
	Price       decimal.Decimal  `json:"price"`
	Currency    string           `json:"currency"`
	Condition   string           `json:"condition"`
	ShippingFee *decimal.Decimal `json:"shipping_fee,omitempty"`
	Source      string           `json:"source"`
	URL         string           `json:"url"`
}

// Listing is a persisted sale offer, keyed by its identity key.
// Listings are never deleted; absence from a full scan flips IsActive.
type Listing struct {
	Key              string           `json:"key" db:"key"`
	Seller           string           `json:"seller" db:"seller"`
	Artist           string           `json:"artist" db:"artist"`
	Title            string           `json:"title" db:"title"`
	NormalizedSeller string           `json:"normalized_seller" db:"normalized_seller"`
	NormalizedArtist string           `json:"normalized_artist" db:"normalized_artist"`
	NormalizedTitle  string           `json:"normalized_title" db:"normalized_title"`
	Price            decimal.Decimal  `json:"price" db:"price"`
	Currency         string           `json:"currency" db:"currency"`
	Condition        string           `json:"condition" db:"condition"`
	ShippingFee      *decimal.Decimal `json:"shipping_fee,omitempty" db:"shipping_fee"`
	Source           string           `json:"source" db:"source"`
	URL              string           `json:"url" db:"url"`
	FirstSeenAt      time.Time        `json:"first_seen_at" db:"first_seen_at"`
	LastSeenAt       time.Time        `json:"last_seen_at" db:"last_seen_at"`
	IsActive         bool             `json:"is_active" db:"is_active"`
}

// PriceObservation is one timestamped price sample for a listing.
// Rows are append-only: one at creation, one per price change.
type PriceObservation struct {
	ID         int64           `json:"id" db:"id"`
	ListingKey string          `json:"listing_key" db:"listing_key"`
	Price      decimal.Decimal `json:"price" db:"price"`
	Currency   string          `json:"currency" db:"currency"`
	ObservedAt time.Time       `json:"observed_at" db:"observed_at"`
}
