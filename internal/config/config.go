// Package config loads the operational configuration: which sources are
// active, request ceilings, cache backing, routing endpoints. Search
// criteria are not configuration; they arrive per search.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type SourceConfig struct {
	Name           string `yaml:"name" validate:"required"`
	Enabled        bool   `yaml:"enabled"`
	BaseURL        string `yaml:"base_url" validate:"omitempty,url"`
	RequestCeiling int    `yaml:"request_ceiling" validate:"gte=0"`
	// RequestsPerSec paces calls against this portal. Zero falls back
	// to a conservative default.
	RequestsPerSec float64 `yaml:"requests_per_sec" validate:"gte=0"`
	ProxyURL       string  `yaml:"proxy_url" validate:"omitempty,url"`
}

type CacheConfig struct {
	Backend   string `yaml:"backend" validate:"oneof=memory sqlite redis"`
	Path      string `yaml:"path"`
	RedisAddr string `yaml:"redis_addr"`
	// TTLHours bounds how long cached pages and travel times stay fresh.
	TTLHours int `yaml:"ttl_hours" validate:"gt=0"`
}

type RoutingConfig struct {
	NominatimURL string `yaml:"nominatim_url" validate:"url"`
	ORSURL       string `yaml:"ors_url" validate:"url"`
	ORSAPIKey    string `yaml:"ors_api_key"`
	// IncludeTransit enables the costlier transit-time lookups.
	IncludeTransit bool `yaml:"include_transit"`
	// RequestsPerSec throttles all Nominatim traffic. Zero disables
	// throttling, which public instances do not appreciate.
	RequestsPerSec float64 `yaml:"requests_per_sec" validate:"gte=0"`
}

type Config struct {
	DefaultPlace   string         `yaml:"default_place" validate:"required"`
	Sources        []SourceConfig `yaml:"sources" validate:"min=1,dive"`
	DefaultCeiling int            `yaml:"default_ceiling" validate:"gt=0"`
	ChunkSize      int            `yaml:"chunk_size" validate:"gt=0"`
	ExclusionDB    string         `yaml:"exclusion_db" validate:"required"`
	Cache          CacheConfig    `yaml:"cache"`
	Routing        RoutingConfig  `yaml:"routing"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		DefaultPlace:   "Zurich",
		DefaultCeiling: 25,
		ChunkSize:      10,
		ExclusionDB:    "flatscout.db",
		Sources: []SourceConfig{
			{Name: "immoapi", Enabled: true, BaseURL: "https://api.immoapi.example", RequestCeiling: 25},
		},
		Cache: CacheConfig{
			Backend:  "sqlite",
			Path:     "flatscout-cache.db",
			TTLHours: 12,
		},
		Routing: RoutingConfig{
			NominatimURL:   "https://nominatim.openstreetmap.org",
			ORSURL:         "https://api.openrouteservice.org",
			RequestsPerSec: 1,
		},
	}
}

// Load reads a yaml config file over the defaults and validates the
// result. An empty path returns the defaults untouched.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// CacheTTL returns the configured cache freshness window.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLHours) * time.Hour
}

// ActiveSources returns the enabled source configs.
func (c *Config) ActiveSources() []SourceConfig {
	var active []SourceConfig
	for _, s := range c.Sources {
		if s.Enabled {
			active = append(active, s)
		}
	}
	return active
}

// Ceilings maps each active source to its request ceiling, falling back
// to the global default.
func (c *Config) Ceilings() map[string]int {
	ceilings := make(map[string]int)
	for _, s := range c.ActiveSources() {
		limit := s.RequestCeiling
		if limit <= 0 {
			limit = c.DefaultCeiling
		}
		ceilings[s.Name] = limit
	}
	return ceilings
}
