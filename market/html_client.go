package market

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
	"vinyl_radar/config"
	"vinyl_radar/models"
)

// HTMLClient scrapes server-rendered marketplace search pages.
type HTMLClient struct {
	cfg           *config.SourceConfig
	client        *http.Client
	retryAttempts int
}

func NewHTMLClient(cfg *config.SourceConfig, client *http.Client, retryAttempts int) *HTMLClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTMLClient{cfg: cfg, client: client, retryAttempts: retryAttempts}
}

func (c *HTMLClient) ID() string {
	return c.cfg.ID
}

func (c *HTMLClient) Search(ctx context.Context, term string) ([]models.CandidateListing, error) {
	return searchWithRetry(ctx, c.retryAttempts, func() ([]models.CandidateListing, error) {
		return c.fetch(ctx, term)
	})
}

func (c *HTMLClient) fetch(ctx context.Context, term string) ([]models.CandidateListing, error) {
	endpoint := c.cfg.Endpoints["search"]
	if endpoint == "" {
		return nil, fmt.Errorf("source %s has no search endpoint", c.cfg.ID)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint+"?q="+url.QueryEscape(term), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &TemporaryError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, &TemporaryError{Err: fmt.Errorf("%s returned %d", c.cfg.ID, resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned %d", c.cfg.ID, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, err
	}

	return c.parseSearchPage(doc), nil
}

func (c *HTMLClient) parseSearchPage(doc *goquery.Document) []models.CandidateListing {
	var listings []models.CandidateListing

	doc.Find(".listing-card").Each(func(_ int, sel *goquery.Selection) {
		artist := strings.TrimSpace(sel.Find(".listing-artist").Text())
		title := strings.TrimSpace(sel.Find(".listing-title").Text())
		seller := strings.TrimSpace(sel.Find(".listing-seller").Text())
		if artist == "" || title == "" || seller == "" {
			return
		}

		price, err := parseMoney(sel.Find(".listing-price").Text())
		if err != nil {
			return
		}

		listing := models.CandidateListing{
			Seller:    seller,
			Artist:    artist,
			Title:     title,
			Price:     price,
			Currency:  currencyFromSymbol(sel.Find(".listing-price").Text()),
			Condition: strings.TrimSpace(sel.Find(".listing-condition").Text()),
			Source:    c.cfg.ID,
		}

		if href, ok := sel.Find("a.listing-link").Attr("href"); ok {
			listing.URL = absoluteURL(c.cfg.Endpoints["search"], href)
		}
		if fee, err := parseMoney(sel.Find(".listing-shipping").Text()); err == nil {
			listing.ShippingFee = &fee
		}

		listings = append(listings, listing)
	})

	return listings
}

// parseMoney turns "$1,249.99" or "EUR 35.00" into a decimal.
func parseMoney(text string) (decimal.Decimal, error) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(text) {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return decimal.Zero, fmt.Errorf("no amount in %q", text)
	}
	return decimal.NewFromString(b.String())
}

func currencyFromSymbol(text string) string {
	switch {
	case strings.Contains(text, "€") || strings.Contains(text, "EUR"):
		return "EUR"
	case strings.Contains(text, "£") || strings.Contains(text, "GBP"):
		return "GBP"
	default:
		return "USD"
	}
}

func absoluteURL(base, href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return parsed.ResolveReference(ref).String()
}
