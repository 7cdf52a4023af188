// Package config loads unpops settings from defaults, an optional YAML file,
// UNPOPS_* environment variables and command-line overrides, in increasing
// order of precedence.
package config

import "time"

// Config holds all application configuration.
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Data     DataConfig     `mapstructure:"data"`
	Query    QueryConfig    `mapstructure:"query"`
	Rounding RoundingConfig `mapstructure:"rounding"`
	Deck     DeckConfig     `mapstructure:"deck"`
	Filter   FilterConfig   `mapstructure:"filter"`
	Log      LogConfig      `mapstructure:"log"`
}

// APIConfig configures the Data Portal client.
type APIConfig struct {
	BaseURL  string        `mapstructure:"base_url" validate:"required,url"`
	Token    string        `mapstructure:"token"`
	Timeout  time.Duration `mapstructure:"timeout" validate:"gt=0"`
	MaxPages int           `mapstructure:"max_pages" validate:"gte=0"`
}

// DataConfig locates the snapshot file.
type DataConfig struct {
	Dir     string `mapstructure:"dir" validate:"required"`
	Dataset string `mapstructure:"dataset" validate:"required,excludesall=/\\"`
}

// QueryConfig selects the indicator and year range. Zero years mean the
// current year.
type QueryConfig struct {
	Indicator int `mapstructure:"indicator" validate:"gt=0"`
	StartYear int `mapstructure:"start_year" validate:"gte=0"`
	EndYear   int `mapstructure:"end_year" validate:"gte=0"`
}

// RoundingConfig is the significant-figure policy.
type RoundingConfig struct {
	SigFigs         int     `mapstructure:"sig_figs" validate:"gte=1,lte=15"`
	LeadingOneAbove float64 `mapstructure:"leading_one_above" validate:"gte=0"`
}

// DeckConfig describes the generated deck.
type DeckConfig struct {
	ID                int64    `mapstructure:"id" validate:"gte=0"`
	Name              string   `mapstructure:"name" validate:"required"`
	Output            string   `mapstructure:"output" validate:"required"`
	IncludeLocationID bool     `mapstructure:"include_location_id"`
	Tags              []string `mapstructure:"tags" validate:"dive,required"`
}

// FilterConfig points at an optional denylist file.
type FilterConfig struct {
	DenylistFile string `mapstructure:"denylist_file"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn warning error"`
	Format string `mapstructure:"format" validate:"required,oneof=text json"`
}
