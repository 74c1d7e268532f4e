package market

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"vinyl_radar/config"
)

func apiSourceConfig(endpoint string) *config.SourceConfig {
	return &config.SourceConfig{
		ID:        "waxtrade",
		Name:      "WaxTrade",
		Handler:   "api",
		Endpoints: map[string]string{"search": endpoint},
	}
}

func TestAPIClient_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("expected POST, got %s", r.Method)
		}
		var req map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if req["query"] != "pink floyd" {
			t.Errorf("unexpected query %v", req["query"])
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"results": [
				{
					"id": 8841,
					"artist": "Pink Floyd",
					"title": "The Wall",
					"price": "49.99",
					"currency": "USD",
					"condition": "NM",
					"shipping_fee": "5.00",
					"url": "https://waxtrade.example.com/l/8841",
					"seller": {"name": "RareVinyl", "rating": "4.9"}
				},
				{
					"id": 8842,
					"artist": "Pink Floyd",
					"title": "Animals",
					"price": "ask",
					"seller": {"name": "Dusty Grooves"}
				},
				{
					"id": 8843,
					"artist": "Pink Floyd",
					"title": "Meddle",
					"price": "22.50",
					"seller": {"name": "WaxStacks"}
				}
			],
			"paging": {"page": 1, "per_page": 100, "total_items": 3}
		}`))
	}))
	defer server.Close()

	client := NewAPIClient(apiSourceConfig(server.URL+"/search"), server.Client(), 1)

	listings, err := client.Search(context.Background(), "pink floyd")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}

	// The unpriced offer is dropped
	if len(listings) != 2 {
		t.Fatalf("expected 2 listings, got %d", len(listings))
	}

	wall := listings[0]
	if wall.Seller != "RareVinyl" || wall.Title != "The Wall" {
		t.Fatalf("unexpected listing: %+v", wall)
	}
	if !wall.Price.Equal(decimal.RequireFromString("49.99")) {
		t.Fatalf("expected 49.99, got %s", wall.Price)
	}
	if wall.ShippingFee == nil || !wall.ShippingFee.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("expected shipping 5.00, got %v", wall.ShippingFee)
	}
	if wall.Source != "waxtrade" {
		t.Fatalf("source not tagged: %s", wall.Source)
	}

	// Missing currency falls back to USD
	if listings[1].Currency != "USD" {
		t.Fatalf("expected USD default, got %s", listings[1].Currency)
	}
}

func TestAPIClient_RetriesServerErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			http.Error(w, "try later", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results": []}`))
	}))
	defer server.Close()

	client := NewAPIClient(apiSourceConfig(server.URL+"/search"), server.Client(), 3)

	listings, err := client.Search(context.Background(), "pink floyd")
	if err != nil {
		t.Fatalf("expected recovery after retry, got %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
	if len(listings) != 0 {
		t.Fatalf("expected empty result set, got %d", len(listings))
	}
}

func TestAPIClient_DoesNotRetryClientErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.Error(w, "bad query", http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewAPIClient(apiSourceConfig(server.URL+"/search"), server.Client(), 3)

	if _, err := client.Search(context.Background(), "pink floyd"); err == nil {
		t.Fatalf("expected error on 400")
	}
	if attempts != 1 {
		t.Fatalf("400 must not be retried, got %d attempts", attempts)
	}
}
