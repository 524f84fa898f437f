package market

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const (
	bookDepth   = 10
	tickSize    = 100
	tradeCount  = 10
	tradeSpread = 200
	tradeGap    = 5 * time.Minute
)

// Level is one price level of the book.
type Level struct {
	Price  decimal.Decimal `json:"price"`
	Amount decimal.Decimal `json:"amount"`
	Total  decimal.Decimal `json:"total"`
}

// OrderBook holds asks ascending and bids descending by price.
type OrderBook struct {
	Asks []Level `json:"asks"`
	Bids []Level `json:"bids"`
}

// Spread is the gap between the best ask and the best bid.
func (b OrderBook) Spread() decimal.Decimal {
	if len(b.Asks) == 0 || len(b.Bids) == 0 {
		return decimal.Zero
	}
	return b.Asks[0].Price.Sub(b.Bids[0].Price)
}

// Side is a trade direction.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Trade is one synthetic fill.
type Trade struct {
	ID     string          `json:"id"`
	Price  decimal.Decimal `json:"price"`
	Amount decimal.Decimal `json:"amount"`
	Time   time.Time       `json:"time"`
	Side   Side            `json:"side"`
}

// Book generates synthetic market depth around a base price. It is safe for
// concurrent use.
type Book struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// NewBook creates a generator. A nil rng uses a time-seeded source and a nil
// clock uses time.Now.
func NewBook(rng *rand.Rand, now func() time.Time) *Book {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if now == nil {
		now = time.Now
	}
	return &Book{rng: rng, now: now}
}

// OrderBook returns ten levels per side stepping 100 away from base. Each
// ask and bid pair at the same distance shares an amount in [1, 6). Bids
// stop at the first level that would not be positive.
func (g *Book) OrderBook(base float64) OrderBook {
	g.mu.Lock()
	defer g.mu.Unlock()
	b := decimal.NewFromFloat(base)
	book := OrderBook{
		Asks: make([]Level, 0, bookDepth),
		Bids: make([]Level, 0, bookDepth),
	}
	for i := 0; i < bookDepth; i++ {
		step := decimal.NewFromInt(int64((i + 1) * tickSize))
		amount := decimal.NewFromFloat(1 + g.rng.Float64()*5).Truncate(4)
		ask := b.Add(step)
		bid := b.Sub(step)
		book.Asks = append(book.Asks, Level{Price: ask, Amount: amount, Total: ask.Mul(amount).Round(2)})
		if bid.IsPositive() && len(book.Bids) == i {
			book.Bids = append(book.Bids, Level{Price: bid, Amount: amount, Total: bid.Mul(amount).Round(2)})
		}
	}
	return book
}

// RecentTrades returns ten trades, newest first, five minutes apart, priced
// within 100 of base.
func (g *Book) RecentTrades(base float64) []Trade {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	b := decimal.NewFromFloat(base)
	trades := make([]Trade, 0, tradeCount)
	for i := 0; i < tradeCount; i++ {
		side := Sell
		if g.rng.Float64() > 0.5 {
			side = Buy
		}
		offset := decimal.NewFromFloat((g.rng.Float64() - 0.5) * tradeSpread)
		trades = append(trades, Trade{
			ID:     fmt.Sprintf("trade-%d", i),
			Price:  b.Add(offset).Round(2),
			Amount: decimal.NewFromFloat(1 + g.rng.Float64()*5).Truncate(4),
			Time:   now.Add(-time.Duration(i) * tradeGap),
			Side:   side,
		})
	}
	return trades
}
