package enrich

import (
	"context"
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"

	"storefront/exporter/internal/client"
	"storefront/exporter/internal/domain"
)

// Enricher turns listing records into exportable detail rows. Detail
// fetches run strictly sequentially; one bad fetch degrades to the
// listing record instead of aborting the batch.
type Enricher struct {
	client client.StorefrontClient
}

func NewEnricher(client client.StorefrontClient) *Enricher {
	return &Enricher{client: client}
}

// EnrichAll enriches records in order, reporting progress after each
// item. Cancellation propagates and aborts the batch.
func (e *Enricher) EnrichAll(ctx context.Context, records []domain.ListingRecord, progress domain.ProgressFunc) ([]domain.DetailRow, error) {
	rows := make([]domain.DetailRow, 0, len(records))
	for i := range records {
		row, err := e.Enrich(ctx, records[i])
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
		if progress != nil {
			progress(len(rows), len(records))
		}
	}
	return rows, nil
}

// Enrich fetches the full detail for one listing record and maps it into
// a DetailRow. Any non-cancellation failure falls back to the listing
// record itself, with the record id standing in for the sku. The
// returned error is only ever the cancellation signal.
func (e *Enricher) Enrich(ctx context.Context, record domain.ListingRecord) (domain.DetailRow, error) {
	detail, err := e.client.ProductDetail(ctx, record.ID)
	if err != nil {
		if domain.IsCanceled(err) {
			return domain.DetailRow{}, err
		}
		log.Warnf("Falling back to listing data for %s: %v", record.ID, err)
		return fallbackRow(record), nil
	}

	row := domain.DetailRow{
		Title:         CleanLabel(detail.Title),
		SKU:           detail.SKU,
		ImageURL:      detail.ImageURL,
		CategoryLabel: CleanLabel(detail.CategoryLabel),
		URL:           detail.URL,
	}
	if detail.Brand != nil {
		row.Brand = *detail.Brand
	}
	if detail.Price != nil {
		row.Price = *detail.Price
	}
	if detail.Rating != nil {
		row.Rating = *detail.Rating
	}
	if detail.ReviewCount != nil {
		row.ReviewCount = *detail.ReviewCount
	}
	if row.SKU == "" {
		row.SKU = detail.ID
	}
	if row.ImageURL == "" {
		row.ImageURL = record.ImageURL
	}
	return row, nil
}

func fallbackRow(record domain.ListingRecord) domain.DetailRow {
	row := domain.DetailRow{
		Title:         CleanLabel(record.Title),
		SKU:           record.ID,
		ImageURL:      record.ImageURL,
		CategoryLabel: CleanLabel(record.CategoryLabel),
		URL:           record.URL,
	}
	if record.Brand != nil {
		row.Brand = *record.Brand
	}
	if record.Price != nil {
		row.Price = *record.Price
	}
	if record.Rating != nil {
		row.Rating = *record.Rating
	}
	if record.ReviewCount != nil {
		row.ReviewCount = *record.ReviewCount
	}
	return row
}

var bracketed = regexp.MustCompile(`\[[^\]]*\]`)

// CleanLabel strips bracketed annotations and leading separators from
// titles and category labels.
func CleanLabel(s string) string {
	out := bracketed.ReplaceAllString(s, " ")
	out = strings.Join(strings.Fields(out), " ")
	return strings.TrimLeft(out, ":-/| ")
}
