package main

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/flatscout/flatscout/internal/config"
	"github.com/flatscout/flatscout/internal/engine/area"
	"github.com/flatscout/flatscout/internal/engine/cache"
	"github.com/flatscout/flatscout/internal/engine/route"
	"github.com/flatscout/flatscout/internal/engine/search"
	"github.com/flatscout/flatscout/internal/engine/source"
	"github.com/flatscout/flatscout/internal/engine/storage"
	"github.com/flatscout/flatscout/internal/engine/throttle"
	"github.com/flatscout/flatscout/internal/model"
)

// app holds the wired collaborators one process needs: the search
// engine, the exclusion store and the shared cache.
type app struct {
	cfg        *config.Config
	engine     *search.Engine
	exclusions *storage.ExclusionStore
	store      cache.Store
	logger     *zap.Logger
}

func buildApp(cfgPath string, logger *zap.Logger) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	store, err := openCache(cfg)
	if err != nil {
		return nil, err
	}

	nominatim := route.NewNominatim(cfg.Routing.NominatimURL, throttle.New(cfg.Routing.RequestsPerSec))
	ors := route.NewORS(cfg.Routing.ORSURL, cfg.Routing.ORSAPIKey, throttle.New(cfg.Routing.RequestsPerSec))
	resolver := area.NewResolver(nominatim, ors, nominatim, cfg.DefaultPlace, logger)

	var adapters []source.Adapter
	for _, sc := range cfg.ActiveSources() {
		perSec := sc.RequestsPerSec
		if perSec <= 0 {
			perSec = 2
		}
		client := source.NewClient(sc.ProxyURL, throttle.New(perSec))
		adapters = append(adapters, source.NewImmoAPI(sc.Name, sc.BaseURL, client, store, cfg.CacheTTL(), logger))
	}

	exclusions, err := storage.NewExclusionStore(cfg.ExclusionDB)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("opening exclusion store: %w", err)
	}

	return &app{
		cfg:        cfg,
		engine:     search.NewEngine(resolver, adapters, store, ors, logger),
		exclusions: exclusions,
		store:      store,
		logger:     logger,
	}, nil
}

func openCache(cfg *config.Config) (cache.Store, error) {
	switch cfg.Cache.Backend {
	case "memory":
		return cache.NewMemory(), nil
	case "sqlite":
		return cache.NewSQLite(cfg.Cache.Path)
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
		return cache.NewRedis(rdb, "flatscout:cache:"), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

// searchOptions builds the per-run options: ceilings from config and
// the current exclusion list loaded from disk.
func (a *app) searchOptions() (search.Options, error) {
	excluded, err := a.exclusions.All()
	if err != nil {
		return search.Options{}, fmt.Errorf("loading exclusions: %w", err)
	}
	return search.Options{
		RequestCeiling: a.cfg.Ceilings(),
		DefaultCeiling: a.cfg.DefaultCeiling,
		Excluded:       excluded,
		ChunkSize:      a.cfg.ChunkSize,
		CommuteTTL:     a.cfg.CacheTTL(),
	}, nil
}

// applyTransitToggle strips transit from the requested modes when the
// costlier transit lookups are disabled in config.
func (a *app) applyTransitToggle(criteria *model.SearchCriteria) {
	if a.cfg.Routing.IncludeTransit {
		return
	}
	modes := criteria.Modes[:0]
	for _, m := range criteria.Modes {
		if m != model.ModeTransit {
			modes = append(modes, m)
		}
	}
	criteria.Modes = modes
	delete(criteria.MaxMinutes, model.ModeTransit)
}

func (a *app) Close() {
	a.exclusions.Close()
	a.store.Close()
}
