package chart

import (
	"testing"

	"github.com/wcharczuk/go-chart/v2/drawing"
)

func TestParseColor(t *testing.T) {
	c, err := parseColor("#c5cbce80")
	if err != nil {
		t.Fatalf("parseColor: %v", err)
	}
	if c.R != 0xc5 || c.G != 0xcb || c.B != 0xce || c.A != 0x80 {
		t.Fatalf("color = %+v", c)
	}

	c, err = parseColor("26a69a")
	if err != nil {
		t.Fatalf("parseColor without hash: %v", err)
	}
	if c.A != 255 {
		t.Fatalf("alpha = %d, want opaque", c.A)
	}

	for _, tc := range []struct {
		in   string
		want drawing.Color
	}{
		{"#fff", drawing.Color{R: 255, G: 255, B: 255, A: 255}},
		{"rgba(197, 203, 206, 0.5)", drawing.Color{R: 197, G: 203, B: 206, A: 127}},
		{"rgb(38,166,154)", drawing.Color{R: 38, G: 166, B: 154, A: 255}},
		{"teal", drawing.ColorTeal},
		{"transparent", drawing.ColorTransparent},
	} {
		got, err := parseColor(tc.in)
		if err != nil {
			t.Fatalf("parseColor(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("parseColor(%q) = %+v, want %+v", tc.in, got, tc.want)
		}
	}

	for _, bad := range []string{"", "#ff", "#zzzzzz", "#1234567", "reddish", "rgb(1,2)", "rgba(1,2,3)"} {
		if _, err := parseColor(bad); err == nil {
			t.Fatalf("parseColor(%q) accepted", bad)
		}
	}
}

func TestThemeWithDefaultsFillsGaps(t *testing.T) {
	got := Theme{Up: "#00ff00"}.withDefaults()
	want := DefaultTheme()
	want.Up = "#00ff00"
	if got != want {
		t.Fatalf("withDefaults() = %+v, want %+v", got, want)
	}
	if err := got.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestNewRendererFallsBackOnBadTheme(t *testing.T) {
	r := NewRenderer(Viewport{Width: 100, Height: 100, PixelRatio: 1}, WithTheme(Theme{Down: "reddish"}))
	if r.theme != DefaultTheme() {
		t.Fatalf("theme = %+v, want defaults", r.theme)
	}
}
