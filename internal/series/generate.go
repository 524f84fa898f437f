package series

import (
	"math"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultVolatility = 0.02
	wickSpread        = 0.01
	volumeSeed        = 1000.0
	volumeFloor       = 500.0
)

type genConfig struct {
	now           func() time.Time
	rng           *rand.Rand
	volatility    float64
	uniformVolume bool
}

// Option tweaks Generate.
type Option func(*genConfig)

// WithClock fixes "now" for the last generated point.
func WithClock(now func() time.Time) Option {
	return func(c *genConfig) { c.now = now }
}

// WithRand supplies the random source; use a seeded source for reproducible output.
func WithRand(rng *rand.Rand) Option {
	return func(c *genConfig) { c.rng = rng }
}

// WithVolatility sets the half-width of the per-bucket close/open change.
func WithVolatility(v float64) Option {
	return func(c *genConfig) {
		if v > 0 && v < 1 {
			c.volatility = v
		}
	}
}

// WithUniformVolume draws each volume independently from [1000, 3000)
// instead of walking it from the seed.
func WithUniformVolume() Option {
	return func(c *genConfig) { c.uniformVolume = true }
}

// Generate builds a synthetic daily random-walk series of days+1 points ending
// at now. days below 1 is treated as 1.
func Generate(basePrice float64, days int, opts ...Option) (*Series, error) {
	if basePrice <= 0 || math.IsNaN(basePrice) || math.IsInf(basePrice, 0) {
		return nil, ErrInvalidBasePrice
	}
	if days < 1 {
		days = 1
	}

	cfg := genConfig{
		now:        time.Now,
		volatility: defaultVolatility,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.rng == nil {
		cfg.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	end := cfg.now().UTC()
	points := make([]Point, 0, days+1)
	price := basePrice
	volume := volumeSeed

	for i := days; i >= 0; i-- {
		open := price
		change := (cfg.rng.Float64()*2 - 1) * cfg.volatility
		closePrice := roundPrice(open * (1 + change))
		high := roundPrice(math.Max(open, closePrice) * (1 + cfg.rng.Float64()*wickSpread))
		low := roundPrice(math.Min(open, closePrice) * (1 - cfg.rng.Float64()*wickSpread))

		// rounding may pull the wicks inside the body
		high = math.Max(high, math.Max(open, closePrice))
		low = math.Min(low, math.Min(open, closePrice))

		if cfg.uniformVolume {
			volume = volumeSeed + math.Floor(cfg.rng.Float64()*2000)
		} else {
			volume = math.Max(volumeFloor, volume*(0.9+cfg.rng.Float64()*0.2))
		}

		points = append(points, Point{
			Time:   end.AddDate(0, 0, -i),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePrice,
			Volume: math.Round(volume),
		})
		price = closePrice
	}

	return &Series{points: points}, nil
}

// roundPrice rounds to cents, keeping the raw value when cents would hit zero.
func roundPrice(v float64) float64 {
	r := decimal.NewFromFloat(v).Round(2).InexactFloat64()
	if r <= 0 {
		return v
	}
	return r
}
