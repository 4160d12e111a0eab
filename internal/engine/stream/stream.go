// Package stream fans independently-paced listing streams into one.
package stream

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/flatscout/flatscout/internal/model"
)

// End terminates an iterator's sequence. It is a controlled stop, not a
// failure.
var End = errors.New("end of stream")

// Iterator is a lazily-pulled sequence of listing batches. Next blocks
// until a batch is available and returns End when the sequence is over.
type Iterator interface {
	Name() string
	Next(ctx context.Context) ([]model.Listing, error)
}

// Batch is one upstream batch tagged with its producing source.
type Batch struct {
	Source   string
	Listings []model.Listing
}

// Merge pulls all iterators concurrently and yields each batch as soon as
// it becomes available: first-available-wins, no cross-source ordering.
// The merged channel closes when every upstream sequence has ended. A
// failing iterator is logged and dropped; the remaining sources keep
// merging, so one misbehaving source never aborts the whole search.
func Merge(ctx context.Context, logger *zap.Logger, sources []Iterator) <-chan Batch {
	out := make(chan Batch)

	var wg sync.WaitGroup
	for _, src := range sources {
		wg.Add(1)
		go func(src Iterator) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					logger.Error("source panicked, dropping it",
						zap.String("source", src.Name()), zap.Any("panic", r))
				}
			}()
			for {
				batch, err := src.Next(ctx)
				if errors.Is(err, End) {
					return
				}
				if err != nil {
					if !errors.Is(err, context.Canceled) {
						logger.Warn("source failed, dropping it",
							zap.String("source", src.Name()), zap.Error(err))
					}
					return
				}
				select {
				case out <- Batch{Source: src.Name(), Listings: batch}:
				case <-ctx.Done():
					return
				}
			}
		}(src)
	}

	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}
