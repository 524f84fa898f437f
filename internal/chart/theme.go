package chart

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/wcharczuk/go-chart/v2/drawing"
)

// Theme holds chart colors as #rgb, #rrggbb, #rrggbbaa, rgb(), rgba() or a
// basic color name.
type Theme struct {
	Up         string `yaml:"up_color" json:"up_color"`
	Down       string `yaml:"down_color" json:"down_color"`
	Background string `yaml:"background_color" json:"background_color"`
	Text       string `yaml:"text_color" json:"text_color"`
	Grid       string `yaml:"grid_color" json:"grid_color"`
	Crosshair  string `yaml:"crosshair_color" json:"crosshair_color"`
}

// DefaultTheme is teal/red candles on white.
func DefaultTheme() Theme {
	return Theme{
		Up:         "#26a69a",
		Down:       "#ef5350",
		Background: "#ffffff",
		Text:       "#000000",
		Grid:       "#c5cbce80",
		Crosshair:  "#758696",
	}
}

type palette struct {
	up, down, background, text, grid, crosshair drawing.Color
}

// Validate checks that every color parses.
func (t Theme) Validate() error {
	_, err := t.palette()
	return err
}

func (t Theme) palette() (palette, error) {
	var p palette
	fields := []struct {
		name string
		raw  string
		dst  *drawing.Color
	}{
		{"up_color", t.Up, &p.up},
		{"down_color", t.Down, &p.down},
		{"background_color", t.Background, &p.background},
		{"text_color", t.Text, &p.text},
		{"grid_color", t.Grid, &p.grid},
		{"crosshair_color", t.Crosshair, &p.crosshair},
	}
	for _, f := range fields {
		c, err := parseColor(f.raw)
		if err != nil {
			return palette{}, fmt.Errorf("theme %s: %w", f.name, err)
		}
		*f.dst = c
	}
	return p, nil
}

// withDefaults fills empty colors from DefaultTheme.
func (t Theme) withDefaults() Theme {
	d := DefaultTheme()
	if t.Up == "" {
		t.Up = d.Up
	}
	if t.Down == "" {
		t.Down = d.Down
	}
	if t.Background == "" {
		t.Background = d.Background
	}
	if t.Text == "" {
		t.Text = d.Text
	}
	if t.Grid == "" {
		t.Grid = d.Grid
	}
	if t.Crosshair == "" {
		t.Crosshair = d.Crosshair
	}
	return t
}

var (
	hexColor = regexp.MustCompile(`^#?(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)
	cssColor = regexp.MustCompile(`^(?:rgb\(\s*\d{1,3}\s*,\s*\d{1,3}\s*,\s*\d{1,3}\s*\)|rgba\(\s*\d{1,3}\s*,\s*\d{1,3}\s*,\s*\d{1,3}\s*,\s*[0-9.]+\s*\))$`)
)

// parseColor checks the shape strictly, since drawing.ParseColor turns
// anything it does not understand into a zero color.
func parseColor(s string) (drawing.Color, error) {
	raw := strings.TrimSpace(s)
	switch {
	case hexColor.MatchString(raw):
		hex := strings.TrimPrefix(raw, "#")
		c := drawing.ColorFromHex(hex[:min(len(hex), 6)])
		if len(hex) == 8 {
			a, _ := strconv.ParseUint(hex[6:], 16, 8)
			c = c.WithAlpha(uint8(a))
		}
		return c, nil
	case cssColor.MatchString(raw):
		return drawing.ParseColor(raw), nil
	}
	if c := drawing.ColorFromKnown(raw); !c.IsZero() || strings.EqualFold(raw, "transparent") {
		return c, nil
	}
	return drawing.Color{}, fmt.Errorf("invalid color %q", s)
}
