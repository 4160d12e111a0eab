// Package search runs the whole pipeline for one search: resolve the
// area, fan budgeted source adapters into a merged stream, then dedup,
// filter and enrich each batch before emitting it as a live event.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/flatscout/flatscout/internal/engine/area"
	"github.com/flatscout/flatscout/internal/engine/cache"
	"github.com/flatscout/flatscout/internal/engine/commute"
	"github.com/flatscout/flatscout/internal/engine/dedup"
	"github.com/flatscout/flatscout/internal/engine/geo"
	"github.com/flatscout/flatscout/internal/engine/route"
	"github.com/flatscout/flatscout/internal/engine/source"
	"github.com/flatscout/flatscout/internal/engine/stream"
	"github.com/flatscout/flatscout/internal/model"
)

const (
	defaultChunkSize = 10
	defaultCeiling   = 25
)

// Options tunes one search run.
type Options struct {
	// RequestCeiling caps outbound calls per source, keyed by adapter
	// name. Sources not listed get DefaultCeiling.
	RequestCeiling map[string]int
	DefaultCeiling int

	// Excluded is the previously dismissed listings; anything matching
	// one of them is dropped silently.
	Excluded []model.Listing

	// ChunkSize bounds how many listings one properties event carries.
	ChunkSize int

	// CommuteTTL bounds how long cached travel times stay fresh.
	CommuteTTL time.Duration
}

// Engine wires the search collaborators together. Construct once, run
// many searches.
type Engine struct {
	resolver *area.Resolver
	adapters []source.Adapter
	store    cache.Store
	travel   route.TravelTimeClient
	logger   *zap.Logger
}

// NewEngine builds a search engine over the given adapters. store backs
// the commute-time cache; travel computes fresh travel times.
func NewEngine(resolver *area.Resolver, adapters []source.Adapter, store cache.Store, travel route.TravelTimeClient, logger *zap.Logger) *Engine {
	return &Engine{
		resolver: resolver,
		adapters: adapters,
		store:    store,
		travel:   travel,
		logger:   logger,
	}
}

// Search starts a search and returns its event stream. The channel is
// closed when every source has finished or the context is cancelled.
// Consumers must merge properties batches by listing id: a later batch
// can re-emit an id with refined fields, or emit a composite id that
// supersedes its component ids.
func (e *Engine) Search(ctx context.Context, criteria *model.SearchCriteria, opts Options) <-chan model.Event {
	out := make(chan model.Event)
	go func() {
		defer close(out)
		e.run(ctx, criteria, opts, out)
	}()
	return out
}

func (e *Engine) run(ctx context.Context, criteria *model.SearchCriteria, opts Options, out chan<- model.Event) {
	emit := func(ev model.Event) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	searchArea := e.resolver.Resolve(ctx, criteria, func(ev model.Event) { emit(ev) })
	if ctx.Err() != nil {
		return
	}

	excluded := dedup.NewPropertySet()
	for _, l := range opts.Excluded {
		excluded.AddForLookupOnly(l)
	}

	merged := stream.Merge(ctx, e.logger, e.iterators(criteria, searchArea, opts))

	var enricher *commute.Enricher
	if len(criteria.Modes) > 0 && searchArea.Destination != nil {
		enricher = commute.NewEnricher(e.store, e.travel, *searchArea.Destination, opts.CommuteTTL, e.logger)
	}

	run := &searchRun{
		engine:   e,
		criteria: criteria,
		area:     searchArea,
		excluded: excluded,
		results:  dedup.NewPropertySet(),
		enricher: enricher,
		emitted:  make(map[string]struct{}),
		byPart:   make(map[string]string),
	}

	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	for batch := range merged {
		listings := batch.Listings
		for len(listings) > 0 {
			n := chunkSize
			if n > len(listings) {
				n = len(listings)
			}
			kept := run.processChunk(ctx, listings[:n])
			listings = listings[n:]
			if len(kept) == 0 {
				continue
			}
			if !emit(model.PropertiesEvent{Listings: kept}) {
				return
			}
			if !emit(model.MetadataEvent{ResultCount: len(run.emitted)}) {
				return
			}
		}
	}

	emit(model.ProgressEvent{Message: fmt.Sprintf("search finished, %d result(s)", len(run.emitted))})
}

func (e *Engine) iterators(criteria *model.SearchCriteria, searchArea *model.SearchArea, opts Options) []stream.Iterator {
	ceiling := opts.DefaultCeiling
	if ceiling <= 0 {
		ceiling = defaultCeiling
	}
	iterators := make([]stream.Iterator, 0, len(e.adapters))
	for _, adapter := range e.adapters {
		limit := ceiling
		if c, ok := opts.RequestCeiling[adapter.Name()]; ok {
			limit = c
		}
		q := source.Query{
			Buckets:      criteria.Buckets,
			Places:       searchArea.PlaceNames(),
			CreatedAfter: criteria.CreatedAfter,
			Budget:       model.NewRequestBudget(limit),
		}
		iterators = append(iterators, adapter.Search(q))
	}
	return iterators
}

// searchRun is the single-consumer state of one search. The property
// sets and the emitted index are only ever touched from the run loop.
type searchRun struct {
	engine   *Engine
	criteria *model.SearchCriteria
	area     *model.SearchArea
	excluded *dedup.PropertySet
	results  *dedup.PropertySet
	enricher *commute.Enricher
	emitted  map[string]struct{}
	byPart   map[string]string
}

// processChunk pushes one chunk through the pipeline stages and returns
// the listings worth showing, post-merge.
func (r *searchRun) processChunk(ctx context.Context, chunk []model.Listing) []model.Listing {
	survivors := make([]model.Listing, 0, len(chunk))
	for _, l := range chunk {
		if dup := r.excluded.FindDuplicate(&l); dup != nil {
			r.engine.logger.Debug("dropping excluded listing",
				zap.String("id", l.ID), zap.String("matched", dup.ID))
			continue
		}
		merged := r.results.Add(l)
		if !r.inArea(&merged) {
			continue
		}
		survivors = append(survivors, merged)
	}

	if r.enricher != nil && len(survivors) > 0 {
		survivors = r.enricher.Enrich(ctx, survivors, r.criteria.Modes)
		for i := range survivors {
			r.storeCommute(&survivors[i])
		}
	}

	kept := survivors[:0]
	for _, l := range survivors {
		if len(r.criteria.Modes) > 0 && commute.ExceedsAllBudgets(&l, r.criteria.MaxMinutes) {
			continue
		}
		if !r.matchesFilters(&l) {
			continue
		}
		r.markEmitted(&l)
		kept = append(kept, l)
	}
	return kept
}

// inArea keeps listings inside any reachable-area polygon. Without
// polygons, or without coordinates to test, everything passes.
func (r *searchRun) inArea(l *model.Listing) bool {
	if len(r.area.Polygons) == 0 {
		return true
	}
	if !l.HasCoords() {
		return true
	}
	return geo.AnyPolygonContains(r.area.Polygons, orb.Point{l.Lng, l.Lat})
}

// storeCommute writes freshly enriched travel times back onto the
// result set copy, so a later re-merge of the same property keeps them.
func (r *searchRun) storeCommute(l *model.Listing) {
	if len(l.Commute) == 0 {
		return
	}
	if cur, ok := r.results.Get(l.ID); ok {
		cur.Commute = l.Commute
		r.results.AddForLookupOnly(cur)
	}
}

func (r *searchRun) matchesFilters(l *model.Listing) bool {
	if matchesAnyKeyword(l, r.criteria.ExcludeKeywords) {
		return false
	}
	if r.criteria.Gender != "" && l.Gender != "" && l.Gender != model.GenderAny && l.Gender != r.criteria.Gender {
		return false
	}
	if r.criteria.Duration != "" && l.Duration != "" && l.Duration != r.criteria.Duration {
		return false
	}
	return r.criteria.MatchesBuckets(l)
}

func matchesAnyKeyword(l *model.Listing, keywords []string) bool {
	if len(keywords) == 0 {
		return false
	}
	text := strings.ToLower(l.Title + " " + l.Description + " " + l.Address)
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// markEmitted tracks distinct visible results. When a composite id
// supersedes previously emitted ids, component or smaller composite,
// those are retired so the running count stays honest.
func (r *searchRun) markEmitted(l *model.Listing) {
	for _, prev := range model.SupersededIDs(r.byPart, l.ID) {
		delete(r.emitted, prev)
	}
	r.emitted[l.ID] = struct{}{}
}
