// Package market serves the property listings behind each chart and the
// synthetic order book shown next to it.
package market

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

//go:embed markets.json
var embeddedMarkets []byte

// ErrNotFound is returned by Catalog.Get for an unknown id or symbol.
var ErrNotFound = errors.New("property not found")

// Property is one tokenized listing.
type Property struct {
	ID              string   `json:"id"`
	Symbol          string   `json:"symbol"`
	Name            string   `json:"name"`
	City            string   `json:"city,omitempty"`
	Location        string   `json:"location,omitempty"`
	Type            string   `json:"type"`
	CurrentPrice    float64  `json:"current_price"`
	PriceChange24h  float64  `json:"price_change_24h"`
	High24h         float64  `json:"high_24h,omitempty"`
	Low24h          float64  `json:"low_24h,omitempty"`
	Volume24h       float64  `json:"volume_24h,omitempty"`
	MarketCap       float64  `json:"market_cap,omitempty"`
	TotalValue      float64  `json:"total_value,omitempty"`
	AvailableShares int      `json:"available_shares,omitempty"`
	Images          []string `json:"images,omitempty"`
}

// BasePrice is the per-token price charts are generated from.
func (p Property) BasePrice() float64 {
	return p.CurrentPrice / 1000
}

func (p Property) validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return errors.New("id is required")
	}
	if strings.TrimSpace(p.Symbol) == "" {
		return errors.New("symbol is required")
	}
	if !(p.CurrentPrice > 0) {
		return fmt.Errorf("current_price must be positive, got %v", p.CurrentPrice)
	}
	return nil
}

// Source says where a catalog came from.
type Source string

const (
	SourceRemote   Source = "remote"
	SourceEmbedded Source = "embedded"
	SourceFallback Source = "fallback"
)

// Catalog is an immutable, ordered set of properties.
type Catalog struct {
	source     Source
	properties []Property
	index      map[string]int
}

type document struct {
	Properties []Property `json:"properties"`
}

// Parse decodes a markets document. Every property must carry an id, a
// symbol and a positive current price; ids and symbols must be unique.
func Parse(data []byte, source Source) (*Catalog, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("market: decode: %w", err)
	}
	if len(doc.Properties) == 0 {
		return nil, errors.New("market: document has no properties")
	}
	c := &Catalog{source: source, index: make(map[string]int, 2*len(doc.Properties))}
	for i, p := range doc.Properties {
		if err := p.validate(); err != nil {
			return nil, fmt.Errorf("market: properties[%d]: %w", i, err)
		}
		for _, key := range []string{p.ID, strings.ToUpper(p.Symbol)} {
			if _, dup := c.index[key]; dup {
				return nil, fmt.Errorf("market: properties[%d]: duplicate key %q", i, key)
			}
			c.index[key] = i
		}
		c.properties = append(c.properties, p)
	}
	return c, nil
}

// Embedded returns the fixtures compiled into the binary.
func Embedded() (*Catalog, error) {
	return Parse(embeddedMarkets, SourceEmbedded)
}

// Fallback is the single listing used when no other data is usable.
func Fallback() *Catalog {
	p := Property{
		ID:             "1",
		Symbol:         "PROP1",
		Name:           "Sunset Villa Estate",
		Type:           "Residential",
		CurrentPrice:   125000,
		PriceChange24h: 2.5,
		High24h:        127500,
		Low24h:         123000,
		Volume24h:      450000,
		MarketCap:      15000000,
	}
	return &Catalog{
		source:     SourceFallback,
		properties: []Property{p},
		index:      map[string]int{p.ID: 0, p.Symbol: 0},
	}
}

// Source reports where the catalog was loaded from.
func (c *Catalog) Source() Source { return c.source }

// List returns a copy of all properties in document order.
func (c *Catalog) List() []Property {
	out := make([]Property, len(c.properties))
	copy(out, c.properties)
	return out
}

// Get looks up a property by id or, case-insensitively, by symbol.
func (c *Catalog) Get(key string) (Property, error) {
	key = strings.TrimSpace(key)
	if i, ok := c.index[key]; ok {
		return c.properties[i], nil
	}
	if i, ok := c.index[strings.ToUpper(key)]; ok {
		return c.properties[i], nil
	}
	return Property{}, fmt.Errorf("%w: %q", ErrNotFound, key)
}

const maxDocumentBytes = 4 << 20

// Load fetches a markets document from url. Any failure degrades to the
// embedded fixtures, then to Fallback, with a warning; Load never returns nil.
func Load(ctx context.Context, client *http.Client, url string) *Catalog {
	if url != "" {
		c, err := fetch(ctx, client, url)
		if err == nil {
			slog.Info("market data loaded", "url", url, "properties", len(c.properties))
			return c
		}
		slog.Warn("market data fetch failed, using embedded fixtures", "url", url, "error", err)
	}
	c, err := Embedded()
	if err != nil {
		slog.Warn("embedded market fixtures unusable, using fallback", "error", err)
		return Fallback()
	}
	return c
}

func fetch(ctx context.Context, client *http.Client, url string) (*Catalog, error) {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("market: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("market: fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("market: fetch: unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("market: read body: %w", err)
	}
	return Parse(data, SourceRemote)
}
