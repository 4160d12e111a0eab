package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/flatscout/flatscout/internal/engine/cache"
	"github.com/flatscout/flatscout/internal/engine/stream"
	"github.com/flatscout/flatscout/internal/model"
)

// FetchPage performs one network round-trip: page N of (place, bucket).
// bucket is nil when the search has no buckets. Pages are newest-first.
type FetchPage func(ctx context.Context, place string, bucket *model.FilterBucket, page int) (Page, error)

// Page is one fetched result page.
type Page struct {
	Listings []model.Listing `json:"listings"`
	HasMore  bool            `json:"has_more"`
}

// EmptyResult marks a zero-listing terminal page as "nothing found", which
// keeps it out of the page cache and retryable on the next search.
func (p Page) EmptyResult() bool { return len(p.Listings) == 0 && !p.HasMore }

type placeBucket struct {
	place  string
	bucket *model.FilterBucket
}

// Paginator walks every (place, bucket) pair of a query page by page,
// implementing stream.Iterator. Per-page fetches are cached under
// (source, place, bucket, page) with a short TTL so repeated searches
// inside the window reuse results instead of re-hitting the source. The
// budget is only spent on actual round-trips, never on cache hits, and
// exhaustion ends the sequence cleanly.
type Paginator struct {
	source string
	query  Query
	store  cache.Store
	ttl    time.Duration
	fetch  FetchPage
	logger *zap.Logger

	pairs   []placeBucket
	pairIdx int
	page    int
}

func NewPaginator(source string, q Query, store cache.Store, ttl time.Duration, fetch FetchPage, logger *zap.Logger) *Paginator {
	var pairs []placeBucket
	for _, place := range q.Places {
		if len(q.Buckets) == 0 {
			pairs = append(pairs, placeBucket{place: place})
			continue
		}
		for i := range q.Buckets {
			pairs = append(pairs, placeBucket{place: place, bucket: &q.Buckets[i]})
		}
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Paginator{
		source: source,
		query:  q,
		store:  store,
		ttl:    ttl,
		fetch:  fetch,
		logger: logger,
		pairs:  pairs,
	}
}

func (p *Paginator) Name() string { return p.source }

// Next yields one page's worth of listings, advancing the cursor. It
// returns stream.End when all pairs are exhausted or the budget is spent.
func (p *Paginator) Next(ctx context.Context) ([]model.Listing, error) {
	for p.pairIdx < len(p.pairs) {
		pair := p.pairs[p.pairIdx]

		pg, err := p.fetchPage(ctx, pair, p.page)
		if errors.Is(err, ErrBudgetExhausted) {
			p.logger.Info("request budget exhausted, stopping source",
				zap.String("source", p.source),
				zap.Int("used", p.query.Budget.Used()))
			return nil, stream.End
		}
		if err != nil {
			// One failing page abandons this place/bucket, not the
			// whole source.
			p.logger.Warn("page fetch failed",
				zap.String("source", p.source),
				zap.String("place", pair.place),
				zap.Int("page", p.page),
				zap.Error(err))
			p.advancePair()
			continue
		}

		fresh, allStale := p.applyCutoff(pg.Listings)

		switch {
		case allStale:
			// Pages are newest-first: a fully stale page means deeper
			// pages are older still.
			p.advancePair()
		case !pg.HasMore || len(pg.Listings) == 0:
			p.advancePair()
		default:
			p.page++
		}

		if len(fresh) > 0 {
			return fresh, nil
		}
	}
	return nil, stream.End
}

func (p *Paginator) advancePair() {
	p.pairIdx++
	p.page = 0
}

// applyCutoff drops listings older than the created-after cutoff and
// reports whether the entire page predated it.
func (p *Paginator) applyCutoff(listings []model.Listing) (fresh []model.Listing, allStale bool) {
	cutoff := p.query.CreatedAfter
	if cutoff == nil || len(listings) == 0 {
		return listings, false
	}
	stale := 0
	for _, l := range listings {
		if l.CreatedAt != nil && l.CreatedAt.Before(*cutoff) {
			stale++
			continue
		}
		fresh = append(fresh, l)
	}
	return fresh, stale == len(listings)
}

func (p *Paginator) fetchPage(ctx context.Context, pair placeBucket, page int) (Page, error) {
	bucketKey := "all"
	if pair.bucket != nil {
		bucketKey = pair.bucket.Name
	}
	key := fmt.Sprintf("page:%s:%s:%s:%d", p.source, pair.place, bucketKey, page)

	return cache.GetOrSetJSON(ctx, p.store, key, p.ttl, func(ctx context.Context) (Page, error) {
		if !p.query.Budget.Spend() {
			return Page{}, ErrBudgetExhausted
		}
		return p.fetch(ctx, pair.place, pair.bucket, page)
	})
}
