// Package config loads candleview settings from the environment and an
// optional .env file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	minChartSize       = 100
	minCarouselMS      = 1000
	defaultSnapshotMax = 200
)

// Config holds all configuration for the chart service.
type Config struct {
	// HTTP server
	BindAddr         string
	PortCandidates   []string
	PortAutoFallback bool
	LogLevel         string
	LogFile          string

	// Data
	SnapshotDir      string
	SnapshotKeep     int
	JournalDir       string
	MarketDataURL    string
	ChartThemeFile   string
	DefaultTimeframe string

	// Default viewport for rendered charts
	ChartWidth      int
	ChartHeight     int
	ChartPixelRatio float64

	CarouselInterval time.Duration
	SnapshotSchedule string

	// Headless browser capture
	CDPAddress     string
	CDPPort        int
	BrowserCapture bool

	NotifyEndpoint string
}

// Load reads configuration from environment variables and optional .env file.
// Out-of-range numbers are clamped rather than rejected.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		BindAddr:         getEnvOrDefault("CANDLEVIEW_BIND_ADDR", "127.0.0.1:8190"),
		PortCandidates:   getEnvListOrDefault("CANDLEVIEW_PORT_CANDIDATES", []string{"8191", "8192", "8193"}),
		PortAutoFallback: getEnvBoolOrDefault("CANDLEVIEW_PORT_AUTO_FALLBACK", true),
		LogLevel:         strings.ToLower(getEnvOrDefault("CANDLEVIEW_LOG_LEVEL", "info")),
		LogFile:          getEnvOrDefault("CANDLEVIEW_LOG_FILE", "logs/candleview.log"),
		SnapshotDir:      getEnvOrDefault("SNAPSHOT_DIR", "./snapshots"),
		SnapshotKeep:     getEnvIntOrDefault("SNAPSHOT_KEEP", defaultSnapshotMax),
		JournalDir:       getEnvOrDefault("EVENT_JOURNAL_DIR", ""),
		MarketDataURL:    getEnvOrDefault("MARKET_DATA_URL", ""),
		ChartThemeFile:   getEnvOrDefault("CHART_THEME_FILE", ""),
		DefaultTimeframe: strings.ToUpper(getEnvOrDefault("CHART_DEFAULT_TIMEFRAME", "1M")),
		ChartWidth:       getEnvIntOrDefault("CHART_WIDTH", 800),
		ChartHeight:      getEnvIntOrDefault("CHART_HEIGHT", 500),
		ChartPixelRatio:  getEnvFloatOrDefault("CHART_PIXEL_RATIO", 1),
		CarouselInterval: time.Duration(getEnvIntOrDefault("CAROUSEL_INTERVAL_MS", 5000)) * time.Millisecond,
		SnapshotSchedule: getEnvOrDefault("SNAPSHOT_SCHEDULE", ""),
		CDPAddress:       getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:          getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9220),
		BrowserCapture:   getEnvBoolOrDefault("CHROMIUM_CAPTURE", false),
		NotifyEndpoint:   getEnvOrDefault("NOTIFY_ENDPOINT", ""),
	}

	if cfg.ChartWidth < minChartSize {
		cfg.ChartWidth = minChartSize
	}
	if cfg.ChartHeight < minChartSize {
		cfg.ChartHeight = minChartSize
	}
	if !(cfg.ChartPixelRatio > 0) {
		cfg.ChartPixelRatio = 1
	}
	if cfg.CarouselInterval < minCarouselMS*time.Millisecond {
		cfg.CarouselInterval = minCarouselMS * time.Millisecond
	}
	if cfg.SnapshotKeep < 1 {
		cfg.SnapshotKeep = 1
	}
	switch cfg.DefaultTimeframe {
	case "1D", "1W", "1M", "1Y":
	default:
		return nil, fmt.Errorf("config: CHART_DEFAULT_TIMEFRAME must be one of 1D, 1W, 1M, 1Y, got %q", cfg.DefaultTimeframe)
	}
	return cfg, nil
}

// CDPURL returns the CDP HTTP endpoint used by the chromedp remote allocator.
func (c *Config) CDPURL() string {
	return fmt.Sprintf("http://%s:%d", c.CDPAddress, c.CDPPort)
}

// BindHost is the host part of BindAddr, used to expand PortCandidates.
func (c *Config) BindHost() string {
	if i := strings.LastIndex(c.BindAddr, ":"); i >= 0 {
		return c.BindAddr[:i]
	}
	return c.BindAddr
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
		slog.Warn("ignoring malformed integer setting", "key", key, "value", val)
	}
	return defaultVal
}

func getEnvFloatOrDefault(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
		slog.Warn("ignoring malformed number setting", "key", key, "value", val)
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
