// Package source defines the contract every listing source adapter
// fulfills, plus the budgeted pagination machinery shared by HTTP-backed
// adapters.
package source

import (
	"errors"
	"time"

	"github.com/flatscout/flatscout/internal/engine/stream"
	"github.com/flatscout/flatscout/internal/model"
)

// ErrBudgetExhausted is the controlled stop condition raised when a
// source's request budget is spent. It terminates that source's sequence
// and is never propagated past it.
var ErrBudgetExhausted = errors.New("request budget exhausted")

// Query is everything an adapter needs for one search: the filter buckets
// it may push down to the server, the candidate places, an optional
// newest-first cutoff, and the request budget shared across all of this
// source's pagination calls.
type Query struct {
	Buckets      []model.FilterBucket
	Places       []string
	CreatedAfter *time.Time
	Budget       *model.RequestBudget
}

// Adapter produces a lazily-pulled sequence of listing batches for a
// query. Implementations own their pagination cursor and must terminate
// the sequence, not fail the search, when the budget runs out.
type Adapter interface {
	Name() string
	Search(q Query) stream.Iterator
}
