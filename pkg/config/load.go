package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to environment variable names, e.g.
// UNPOPS_API_TOKEN for api.token.
const EnvPrefix = "UNPOPS"

// DefaultFileName is looked up in the working directory when no file is given.
const DefaultFileName = "unpops"

var defaults = map[string]any{
	"api.base_url":               "https://population.un.org/dataportalapi/api/v1",
	"api.token":                  "",
	"api.timeout":                "30s",
	"api.max_pages":              1000,
	"data.dir":                   "data",
	"data.dataset":               "countries",
	"query.indicator":            49,
	"query.start_year":           0,
	"query.end_year":             0,
	"rounding.sig_figs":          2,
	"rounding.leading_one_above": 1e8,
	"deck.id":                    20220804,
	"deck.name":                  "Country Populations (UN)",
	"deck.output":                "ankUNpops.apkg",
	"deck.include_location_id":   true,
	"deck.tags":                  []string{"population", "un"},
	"filter.denylist_file":       "",
	"log.level":                  "info",
	"log.format":                 "text",
}

// Options control where configuration is read from.
type Options struct {
	// File is an explicit config file. It must exist when set. When empty,
	// ./unpops.yaml is read if present.
	File string
	// Overrides take precedence over every other source, keyed like the
	// file (e.g. "data.dir").
	Overrides map[string]any
}

// Load builds the configuration and validates it.
func Load(opts Options) (*Config, error) {
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigType("yaml")
	if opts.File != "" {
		v.SetConfigFile(opts.File)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", opts.File, err)
		}
	} else {
		v.SetConfigName(DefaultFileName)
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range opts.Overrides {
		v.Set(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and the year range.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	q := c.Query
	if q.StartYear != 0 && q.EndYear != 0 && q.StartYear > q.EndYear {
		return fmt.Errorf("configuration validation failed: query.start_year %d is after query.end_year %d", q.StartYear, q.EndYear)
	}
	return nil
}
