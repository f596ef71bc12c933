package reviews

import (
	"context"
	"sync"
	"time"

	"github.com/reviewagent/reviewagent/internal/logger"
)

// Aggregator issues one concurrent lookup per configured provider, each under
// its own timeout. A slow or failed provider never blocks the others.
type Aggregator struct {
	fetchers []Fetcher
	timeout  time.Duration
}

// NewAggregator creates an aggregator over the given fetchers.
func NewAggregator(timeout time.Duration, fetchers ...Fetcher) *Aggregator {
	return &Aggregator{fetchers: fetchers, timeout: timeout}
}

// Fetch queries every provider concurrently and returns one Result per
// provider. It never returns an error itself: a provider failure (timeout,
// not-found, transport error) is recorded in that provider's Result only.
func (a *Aggregator) Fetch(ctx context.Context, query string) map[Provider]Result {
	out := make(map[Provider]Result, len(a.fetchers))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, f := range a.fetchers {
		wg.Add(1)
		go func(f Fetcher) {
			defer wg.Done()
			fctx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()

			report, err := f.Fetch(fctx, query)
			if err != nil {
				logger.L.Warn("review provider failed", "provider", f.Provider(), "query", query, "error", err)
			}

			mu.Lock()
			out[f.Provider()] = Result{Report: report, Err: err}
			mu.Unlock()
		}(f)
	}
	wg.Wait()
	return out
}
