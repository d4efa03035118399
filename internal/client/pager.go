package client

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"storefront/exporter/internal/domain"
)

// Pager walks the cursor-paginated listing endpoint. Pages are fetched
// strictly sequentially; the upstream cursor and rate limits do not
// tolerate concurrent walks. There is no retry at this layer.
type Pager struct {
	client StorefrontClient
}

func NewPager(client StorefrontClient) *Pager {
	return &Pager{client: client}
}

// FetchAll accumulates listing records across one or more categories.
// Each category's cursor chain is exhausted before the next begins. A
// positive limit stops the walk once reached; the excess of the final
// page is truncated rather than discarded mid-page. Progress is reported
// after every page.
func (p *Pager) FetchAll(ctx context.Context, department string, categories []string, sortToken string, limit int, progress domain.ProgressFunc) ([]domain.ListingRecord, error) {
	var records []domain.ListingRecord

	total := -1
	if limit > 0 {
		total = limit
	}

	for _, category := range categories {
		cursor := ""
		for {
			page, err := p.client.FetchPage(ctx, department, category, sortToken, cursor)
			if err != nil {
				return nil, fmt.Errorf("paging %s: %w", category, err)
			}

			records = append(records, page.Records...)
			if progress != nil {
				loaded := len(records)
				if limit > 0 && loaded > limit {
					loaded = limit
				}
				progress(loaded, total)
			}

			if limit > 0 && len(records) >= limit {
				log.Debugf("Reached limit %d while paging %s", limit, category)
				return records[:limit], nil
			}

			if page.NextCursor == "" {
				break
			}
			cursor = page.NextCursor
		}
	}

	return records, nil
}
