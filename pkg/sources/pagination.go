// Package sources contains the clients for the upstream funding data
// providers and the shared page loop used by the ingestion passes.
package sources

import (
	"context"

	"go.uber.org/zap"
)

// Paginate issues page 1..maxPages sequentially against fetch, concatenating
// the results. Pagination stops at the first page reporting no more results
// or at the page cap. A failed page is logged and skipped without retry, so
// the result can contain gaps; the loop moves on to the next page number.
func Paginate[T any](ctx context.Context, logger *zap.Logger, maxPages int, fetch func(ctx context.Context, page int) ([]T, bool, error)) []T {
	var all []T
	for page := 1; page <= maxPages; page++ {
		if ctx.Err() != nil {
			logger.Warn("pagination stopped", zap.Int("page", page), zap.Error(ctx.Err()))
			return all
		}

		items, hasMore, err := fetch(ctx, page)
		if err != nil {
			logger.Warn("page fetch failed, skipping page", zap.Int("page", page), zap.Error(err))
			continue
		}

		all = append(all, items...)
		if !hasMore {
			break
		}
	}
	return all
}
