package market

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"vinyl_radar/config"
	"vinyl_radar/models"
)

// SyntheticClient fabricates plausible-looking listings instead of hitting
// a real marketplace. It exists for local runs and tests; the engine never
// knows which implementation it talks to. Results are deterministic per
// (seed, term), except that one listing drifts in price every other call
// so repeated passes exercise the price-change path.
type SyntheticClient struct {
	cfg  *config.SourceConfig
	seed int64

	mu    sync.Mutex
	calls map[string]int
}

var syntheticTitles = []string{
	"The Wall", "Wish You Were Here", "Animals", "Meddle",
	"In the Court of the Crimson King", "Red", "Discipline",
	"Journey in Satchidananda", "Ptah, the El Daoud",
	"A Love Supreme", "Blue Train", "Kind of Blue",
}

var syntheticSellers = []string{
	"RareVinyl", "Spin City Records", "Dusty Grooves", "WaxStacks",
	"The Record Exchange", "Needle & Groove", "Crate Escape",
}

var syntheticConditions = []string{
	models.ConditionNearMint, models.ConditionVeryGoodPlus,
	models.ConditionVeryGood, models.ConditionGoodPlus, models.ConditionMint,
}

func NewSyntheticClient(cfg *config.SourceConfig) *SyntheticClient {
	seed := cfg.Seed
	if seed == 0 {
		seed = 1
	}
	return &SyntheticClient{cfg: cfg, seed: seed, calls: make(map[string]int)}
}

func (c *SyntheticClient) ID() string {
	return c.cfg.ID
}

func (c *SyntheticClient) Search(ctx context.Context, term string) ([]models.CandidateListing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.calls[term]++
	call := c.calls[term]
	c.mu.Unlock()

	rng := rand.New(rand.NewSource(c.seed ^ int64(hashTerm(term))))
	count := 3 + rng.Intn(5)

	var listings []models.CandidateListing
	for i := 0; i < count; i++ {
		title := syntheticTitles[rng.Intn(len(syntheticTitles))]
		seller := syntheticSellers[rng.Intn(len(syntheticSellers))]
		condition := syntheticConditions[rng.Intn(len(syntheticConditions))]
		price := decimal.NewFromInt(int64(18 + rng.Intn(220))).Add(decimal.NewFromFloat(0.99))

		artist := titleCase(term)
		if i%3 == 2 {
			// A share of results is off-interest noise, like a real search
			artist = "Various Artists"
		}

		if i == 0 && call > 1 {
			drift := decimal.NewFromInt(int64(5 * ((call - 1) / 2)))
			price = price.Add(drift)
		}

		listings = append(listings, models.CandidateListing{
			Seller:    seller,
			Artist:    artist,
			Title:     title,
			Price:     price,
			Currency:  "USD",
			Condition: condition,
			Source:    c.cfg.ID,
			URL:       fmt.Sprintf("https://synthetic.example.com/listing/%d", rng.Int63n(1_000_000)),
		})
	}

	return listings, nil
}

func hashTerm(term string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(strings.ToLower(term)))
	return h.Sum32()
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
