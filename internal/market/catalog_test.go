package market

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func respond(status int, body string) *http.Client {
	return &http.Client{
		Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: status,
				Body:       io.NopCloser(strings.NewReader(body)),
				Header:     make(http.Header),
			}, nil
		}),
	}
}

func TestEmbeddedFixtures(t *testing.T) {
	c, err := Embedded()
	if err != nil {
		t.Fatalf("Embedded() error = %v", err)
	}
	if got, want := len(c.List()), 6; got != want {
		t.Fatalf("properties = %d; want %d", got, want)
	}
	p, err := c.Get("karen-villas")
	if err != nil {
		t.Fatalf("Get by symbol: %v", err)
	}
	if got, want := p.BasePrice(), 25000.0; got != want {
		t.Fatalf("BasePrice() = %v; want %v", got, want)
	}
	if byID, _ := c.Get("1"); byID.Symbol != p.Symbol {
		t.Fatalf("Get by id = %q; want %q", byID.Symbol, p.Symbol)
	}
	if _, err := c.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(nope) error = %v; want ErrNotFound", err)
	}
}

func TestLoadRemote(t *testing.T) {
	body := `{"properties":[{"id":"9","symbol":"LAKE","name":"Lake","type":"Holiday","current_price":900000}]}`
	c := Load(context.Background(), respond(http.StatusOK, body), "http://example.com/markets.json")
	if got, want := c.Source(), SourceRemote; got != want {
		t.Fatalf("Source() = %q; want %q", got, want)
	}
	if _, err := c.Get("LAKE"); err != nil {
		t.Fatalf("Get(LAKE): %v", err)
	}
}

func TestLoadFallsBackToEmbedded(t *testing.T) {
	for name, client := range map[string]*http.Client{
		"status":  respond(http.StatusBadGateway, "down"),
		"garbage": respond(http.StatusOK, "{not json"),
		"empty":   respond(http.StatusOK, `{"properties":[]}`),
		"invalid": respond(http.StatusOK, `{"properties":[{"id":"1","symbol":"X","current_price":-1}]}`),
		"transport": {Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
			return nil, errors.New("dial refused")
		})},
	} {
		c := Load(context.Background(), client, "http://example.com/markets.json")
		if got, want := c.Source(), SourceEmbedded; got != want {
			t.Fatalf("%s: Source() = %q; want %q", name, got, want)
		}
	}
}

func TestLoadWithoutURLUsesEmbedded(t *testing.T) {
	c := Load(context.Background(), nil, "")
	if got, want := c.Source(), SourceEmbedded; got != want {
		t.Fatalf("Source() = %q; want %q", got, want)
	}
}

func TestFallback(t *testing.T) {
	c := Fallback()
	p, err := c.Get("PROP1")
	if err != nil {
		t.Fatalf("Get(PROP1): %v", err)
	}
	if p.Name != "Sunset Villa Estate" || p.CurrentPrice != 125000 {
		t.Fatalf("fallback property = %+v", p)
	}
}

func TestParseRejectsDuplicates(t *testing.T) {
	doc := `{"properties":[
		{"id":"1","symbol":"A","current_price":1},
		{"id":"1","symbol":"B","current_price":1}]}`
	if _, err := Parse([]byte(doc), SourceRemote); err == nil {
		t.Fatal("expected duplicate id error")
	}
}
