package market

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"vinyl_radar/config"
	"vinyl_radar/models"
)

// APIClient talks to marketplaces that expose a JSON search endpoint.
type APIClient struct {
	cfg           *config.SourceConfig
	client        *http.Client
	retryAttempts int
}

func NewAPIClient(cfg *config.SourceConfig, client *http.Client, retryAttempts int) *APIClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &APIClient{cfg: cfg, client: client, retryAttempts: retryAttempts}
}

func (c *APIClient) ID() string {
	return c.cfg.ID
}

func (c *APIClient) Search(ctx context.Context, term string) ([]models.CandidateListing, error) {
	return searchWithRetry(ctx, c.retryAttempts, func() ([]models.CandidateListing, error) {
		return c.fetch(ctx, term)
	})
}

func (c *APIClient) fetch(ctx context.Context, term string) ([]models.CandidateListing, error) {
	endpoint := c.cfg.Endpoints["search"]
	if endpoint == "" {
		return nil, fmt.Errorf("source %s has no search endpoint", c.cfg.ID)
	}

	reqBody := map[string]interface{}{
		"query":    term,
		"format":   "vinyl",
		"per_page": 100,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &TemporaryError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, &TemporaryError{Err: fmt.Errorf("%s API error %d", c.cfg.ID, resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%s API error %d: %s", c.cfg.ID, resp.StatusCode, string(respBody))
	}

	var result searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	var listings []models.CandidateListing
	for _, r := range result.Results {
		price, err := decimal.NewFromString(r.Price)
		if err != nil {
			// Unparseable price means an unusable offer, not a dead feed
			continue
		}

		listing := models.CandidateListing{
			Seller:    r.Seller.Name,
			Artist:    r.Artist,
			Title:     r.Title,
			Price:     price,
			Currency:  defaultCurrency(r.Currency),
			Condition: r.Condition,
			Source:    c.cfg.ID,
			URL:       r.URL,
		}
		if r.ShippingFee != "" {
			if fee, err := decimal.NewFromString(r.ShippingFee); err == nil {
				listing.ShippingFee = &fee
			}
		}
		listings = append(listings, listing)
	}

	return listings, nil
}

type searchResponse struct {
	Results []searchResult `json:"results"`
	Paging  struct {
		Page       int `json:"page"`
		PerPage    int `json:"per_page"`
		TotalItems int `json:"total_items"`
	} `json:"paging"`
}

type searchResult struct {
	ID          int64  `json:"id"`
	Artist      string `json:"artist"`
	Title       string `json:"title"`
	Price       string `json:"price"`
	Currency    string `json:"currency"`
	Condition   string `json:"condition"`
	ShippingFee string `json:"shipping_fee"`
	URL         string `json:"url"`
	Seller      struct {
		Name   string `json:"name"`
		Rating string `json:"rating"`
	} `json:"seller"`
}

func defaultCurrency(currency string) string {
	if currency == "" {
		return "USD"
	}
	return currency
}
