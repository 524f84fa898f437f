package config

import (
	"fmt"
	"os"

	"github.com/dgnsrekt/candleview/internal/chart"
	"gopkg.in/yaml.v3"
)

// ThemeFile is the YAML document read from CHART_THEME_FILE.
type ThemeFile struct {
	Theme chart.Theme `yaml:"theme"`
}

// LoadTheme reads and validates a chart theme file. Colors left out of the
// file keep their defaults. An empty path returns chart.DefaultTheme.
func LoadTheme(path string) (chart.Theme, error) {
	if path == "" {
		return chart.DefaultTheme(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return chart.Theme{}, fmt.Errorf("theme config: %w", err)
	}
	doc := ThemeFile{Theme: chart.DefaultTheme()}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return chart.Theme{}, fmt.Errorf("theme config: %w", err)
	}
	if err := doc.Theme.Validate(); err != nil {
		return chart.Theme{}, fmt.Errorf("theme config: %w", err)
	}
	return doc.Theme, nil
}
