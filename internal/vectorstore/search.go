package vectorstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kravishan/neuroclimabot-docker-sub000/internal/bucket"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/config"
)

// SearchChunks searches the chunk collections. When b is non-nil only
// that bucket's collection is queried; otherwise the search fans out to
// every collection concurrently and merges. A collection that times out
// contributes nothing and does not fail the search.
func (s *Store) SearchChunks(ctx context.Context, vector []float32, b *bucket.Bucket, k int) ([]SearchResult, error) {
	if b != nil {
		return s.searchChunkCollection(ctx, *b, vector, k)
	}

	merged := s.fanOut(ctx, func(ctx context.Context, bb bucket.Bucket) ([]SearchResult, error) {
		return s.searchChunkCollection(ctx, bb, vector, k)
	})

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	if len(merged) > k {
		merged = merged[:k]
	}
	return merged, nil
}

// SearchSummaries fans out to every summary collection, keeping up to
// kPerCollection hits per collection at or above minScore, merged and
// sorted by descending score.
func (s *Store) SearchSummaries(ctx context.Context, vector []float32, kPerCollection int, minScore float64) ([]SearchResult, error) {
	merged := s.fanOut(ctx, func(ctx context.Context, bb bucket.Bucket) ([]SearchResult, error) {
		return s.searchSummaryCollection(ctx, bb, vector, kPerCollection, minScore)
	})

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	return merged, nil
}

// fanOut runs one search per bucket concurrently under the per-collection
// timeout and merges whatever arrives in time.
func (s *Store) fanOut(ctx context.Context, search func(context.Context, bucket.Bucket) ([]SearchResult, error)) []SearchResult {
	timeout := time.Duration(s.cfg.SearchTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = time.Duration(config.DefaultVectorSearchTimout) * time.Second
	}

	var mu sync.Mutex
	var merged []SearchResult
	var wg sync.WaitGroup

	for _, b := range bucket.All() {
		wg.Add(1)
		go func(b bucket.Bucket) {
			defer wg.Done()

			cctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			results, err := search(cctx, b)
			if err != nil {
				s.logger.Warn("collection search failed",
					"bucket", b,
					"error", err)
				return
			}

			mu.Lock()
			merged = append(merged, results...)
			mu.Unlock()
		}(b)
	}
	wg.Wait()

	return merged
}
