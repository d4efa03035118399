package service

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"storefront/exporter/internal/cache"
	"storefront/exporter/internal/catalog"
	"storefront/exporter/internal/client"
	"storefront/exporter/internal/domain"
	"storefront/exporter/internal/enrich"
	"storefront/exporter/internal/export"
	"storefront/exporter/internal/images"
	"storefront/exporter/internal/sorting"
)

// Coordinator orchestrates one query end to end: resolve the category
// path, page listings (through the cache for local sorts), sort, enrich
// and export. It owns exactly one cancellation scope per in-flight
// query; starting a new query supersedes the previous one.
type Coordinator struct {
	client       client.StorefrontClient
	pager        *client.Pager
	resolver     *catalog.Resolver
	listingCache *cache.ListingCache
	enricher     *enrich.Enricher
	loader       *images.Loader
	writer       *export.Writer

	mutex      sync.Mutex
	cancel     context.CancelFunc
	warmCancel context.CancelFunc
	generation int

	events chan domain.ProgressEvent
}

// Result is the outcome of one completed query.
type Result struct {
	Rows     []domain.DetailRow
	Workbook []byte
}

func NewCoordinator(
	storefront client.StorefrontClient,
	listingCache *cache.ListingCache,
	loader *images.Loader,
	writer *export.Writer,
) *Coordinator {
	return &Coordinator{
		client:       storefront,
		pager:        client.NewPager(storefront),
		resolver:     catalog.NewResolver(storefront),
		listingCache: listingCache,
		enricher:     enrich.NewEnricher(storefront),
		loader:       loader,
		writer:       writer,
		events:       make(chan domain.ProgressEvent, 64),
	}
}

// Events streams progress updates, at least one per page, item and
// exported row. A lagging consumer applies backpressure to the query
// rather than losing updates; cancelling the query releases any
// blocked send.
func (c *Coordinator) Events() <-chan domain.ProgressEvent {
	return c.events
}

// Run executes a query. A query already in flight is cancelled first;
// its partial results are discarded and its error reads as cancellation,
// never as a user-facing failure.
func (c *Coordinator) Run(ctx context.Context, query domain.Query) (*Result, error) {
	// Classify before any network activity so malformed sorts fail fast.
	spec, err := sorting.Classify(query.Sort)
	if err != nil {
		return nil, err
	}

	qctx, wctx, cancel, generation := c.supersede(ctx)
	defer func() {
		c.release(generation)
		cancel()
	}()

	rows, err := c.collect(qctx, query, spec)
	if err != nil {
		if domain.IsCanceled(err) {
			log.Debugf("Query %q superseded", query.Path)
			return nil, err
		}
		return nil, fmt.Errorf("query %q failed: %w", query.Path, err)
	}

	result := &Result{Rows: rows}

	if c.loader != nil {
		urls := make([]string, 0, len(rows))
		for _, row := range rows {
			urls = append(urls, row.ImageURL)
		}
		// Warm-up runs on its own scope so it keeps filling the preview
		// cache after Run returns (export pauses it, Resume lets it
		// finish). Only the next query cancels it.
		go func() {
			if err := c.loader.WarmPreviews(wctx, urls); err != nil && !domain.IsCanceled(err) {
				log.Debugf("Preview warm-up stopped: %v", err)
			}
		}()
	}

	if c.writer != nil {
		workbook, err := c.export(qctx, rows)
		if err != nil {
			if domain.IsCanceled(err) {
				return nil, err
			}
			return nil, fmt.Errorf("export failed: %w", err)
		}
		result.Workbook = workbook
	}

	return result, nil
}

// collect resolves the query and returns the sorted listing records,
// enriched into detail rows.
func (c *Coordinator) collect(ctx context.Context, query domain.Query, spec domain.SortSpec) ([]domain.DetailRow, error) {
	department, chain, err := c.resolver.ResolvePath(ctx, query.Path)
	if err != nil {
		return nil, err
	}
	leaf := chain[len(chain)-1]

	slugs, err := c.resolver.ExpandLeaf(ctx, department.Slug, leaf, query.Exclude)
	if err != nil {
		return nil, err
	}

	var records []domain.ListingRecord
	if spec.Mode == domain.SortDelegated {
		records, err = c.pager.FetchAll(ctx, department.Slug, slugs, spec.Token, query.Limit, c.progressFunc(ctx, domain.StageListing))
		if err != nil {
			return nil, err
		}
	} else {
		records, err = c.localSorted(ctx, department.Slug, slugs, spec, query.Limit)
		if err != nil {
			return nil, err
		}
	}

	log.Infof("🔄 Enriching %d records for %q", len(records), query.Path)
	return c.enricher.EnrichAll(ctx, records, c.progressFunc(ctx, domain.StageDetail))
}

// localSorted serves a local-field sort: use the cached full snapshot
// for the category set when it is still valid, otherwise fetch the whole
// corpus with the neutral token and overwrite the entry. The sort runs
// over the full corpus; the limit applies after.
func (c *Coordinator) localSorted(ctx context.Context, department string, slugs []string, spec domain.SortSpec, limit int) ([]domain.ListingRecord, error) {
	key := cache.Key(slugs)

	var records []domain.ListingRecord
	if entry := c.listingCache.Get(ctx, key); c.listingCache.Valid(entry) {
		log.Debugf("Using cached listing snapshot %s (%d records)", key, len(entry.Records))
		records = entry.Records
	} else {
		var err error
		records, err = c.pager.FetchAll(ctx, department, slugs, sorting.TokenRelevance, 0, c.progressFunc(ctx, domain.StageListing))
		if err != nil {
			return nil, err
		}
		c.listingCache.Put(key, records)
	}

	sorted := sorting.SortLocal(records, spec.Field, spec.Descending)
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted, nil
}

// export writes the workbook, pausing the preview warmer for the
// duration so both image consumers do not fight for bandwidth.
func (c *Coordinator) export(ctx context.Context, rows []domain.DetailRow) ([]byte, error) {
	if c.loader != nil {
		c.loader.Pause()
		defer c.loader.Resume()
	}

	resolver := export.ImageResolver(func(ctx context.Context, url string) ([]byte, error) {
		if c.loader == nil {
			return nil, nil
		}
		if data, ok := c.loader.Cached(url); ok {
			return data, nil
		}
		return c.loader.ExportBytes(ctx, url)
	})

	return c.writer.Write(ctx, rows, resolver, c.progressFunc(ctx, domain.StageExport))
}

// supersede cancels any in-flight query and its preview warm-up, then
// opens a fresh query scope plus a detached warm-up scope. The warm-up
// scope deliberately outlives Run so post-export warming can finish; it
// dies with the next supersession.
func (c *Coordinator) supersede(ctx context.Context) (context.Context, context.Context, context.CancelFunc, int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.cancel != nil {
		log.Debug("Superseding in-flight query")
		c.cancel()
	}
	if c.warmCancel != nil {
		c.warmCancel()
	}

	qctx, cancel := context.WithCancel(ctx)
	wctx, warmCancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.warmCancel = warmCancel
	c.generation++
	return qctx, wctx, cancel, c.generation
}

func (c *Coordinator) release(generation int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.generation == generation {
		c.cancel = nil
	}
}

// progressFunc adapts component callbacks onto the event stream. Every
// update is delivered: a full buffer blocks the producing query until
// the consumer catches up or the query scope is cancelled.
func (c *Coordinator) progressFunc(ctx context.Context, stage domain.Stage) domain.ProgressFunc {
	return func(loaded, total int) {
		select {
		case c.events <- domain.ProgressEvent{Stage: stage, Loaded: loaded, Total: total}:
		case <-ctx.Done():
		}
	}
}
