package enrich

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"

	"storefront/exporter/internal/domain"
)

type detailClient struct {
	details map[string]*domain.ProductDetail
	err     error
	calls   int
}

func (c *detailClient) Departments(context.Context) ([]domain.Department, error) { return nil, nil }

func (c *detailClient) Categories(context.Context, string, string) ([]domain.Category, error) {
	return nil, nil
}

func (c *detailClient) FetchPage(context.Context, string, string, string, string) (*domain.ListingPage, error) {
	return nil, nil
}

func (c *detailClient) ProductDetail(ctx context.Context, id string) (*domain.ProductDetail, error) {
	c.calls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.err != nil {
		return nil, c.err
	}
	detail, ok := c.details[id]
	if !ok {
		return nil, errors.New("unknown product")
	}
	return detail, nil
}

func strPtr(s string) *string   { return &s }
func f64Ptr(v float64) *float64 { return &v }
func intPtr(v int) *int         { return &v }

func sampleListing() domain.ListingRecord {
	return domain.ListingRecord{
		ID:            "prod-42",
		Title:         "[Promo] Great Headphones",
		Brand:         strPtr("Acme"),
		URL:           "https://shop.example/p/prod-42",
		Price:         f64Ptr(99.5),
		Rating:        f64Ptr(4.5),
		ReviewCount:   intPtr(12),
		ImageURL:      "https://img.example/prod-42.jpg",
		CategoryLabel: ": Audio / Headphones",
	}
}

func TestEnrich_MapsDetail(t *testing.T) {
	client := &detailClient{details: map[string]*domain.ProductDetail{
		"prod-42": {
			ID:            "prod-42",
			Title:         "Great Headphones [2024 Edition]",
			Brand:         strPtr("Acme"),
			SKU:           "SKU-777",
			Price:         f64Ptr(89.0),
			Rating:        f64Ptr(4.7),
			ReviewCount:   intPtr(120),
			ImageURL:      "https://img.example/full.jpg",
			CategoryLabel: "Audio: Headphones",
			URL:           "https://shop.example/p/prod-42",
		},
	}}
	e := NewEnricher(client)

	row, err := e.Enrich(context.Background(), sampleListing())
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}
	if row.SKU != "SKU-777" {
		t.Errorf("SKU = %q", row.SKU)
	}
	if row.Title != "Great Headphones" {
		t.Errorf("Title = %q, want bracketed annotation stripped", row.Title)
	}
	if row.Price != 89.0 || row.Rating != 4.7 || row.ReviewCount != 120 {
		t.Errorf("numeric fields = %+v", row)
	}
	if row.ImageURL != "https://img.example/full.jpg" {
		t.Errorf("ImageURL = %q", row.ImageURL)
	}
}

func TestEnrich_FallbackOnFailure(t *testing.T) {
	client := &detailClient{err: errors.New("boom")}
	e := NewEnricher(client)

	record := sampleListing()
	row, err := e.Enrich(context.Background(), record)
	if err != nil {
		t.Fatalf("Enrich must degrade, not fail: %v", err)
	}

	if row.SKU != record.ID {
		t.Errorf("SKU = %q, want listing id %q", row.SKU, record.ID)
	}
	if row.Title != "Great Headphones" {
		t.Errorf("Title = %q", row.Title)
	}
	if row.Brand != "Acme" || row.Price != 99.5 || row.Rating != 4.5 || row.ReviewCount != 12 {
		t.Errorf("fallback fields = %+v", row)
	}
	if row.URL != record.URL || row.ImageURL != record.ImageURL {
		t.Errorf("fallback urls = %+v", row)
	}
	if row.CategoryLabel != "Audio / Headphones" {
		t.Errorf("CategoryLabel = %q, want leading separator trimmed", row.CategoryLabel)
	}
}

func TestEnrich_MissingFieldsFallBackToZero(t *testing.T) {
	client := &detailClient{err: errors.New("boom")}
	e := NewEnricher(client)

	row, err := e.Enrich(context.Background(), domain.ListingRecord{ID: "bare", Title: "Bare"})
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}
	if row.Brand != "" || row.Price != 0 || row.Rating != 0 || row.ReviewCount != 0 {
		t.Errorf("zero fallback violated: %+v", row)
	}
}

func TestEnrich_TimeoutFallsBackToListing(t *testing.T) {
	// The shape a per-request client timeout surfaces with: a url.Error
	// wrapping context.DeadlineExceeded. It must degrade like any other
	// fetch failure, not read as scope cancellation.
	timeout := fmt.Errorf("request failed: %w", &url.Error{
		Op:  "Get",
		URL: "https://api.example/products/prod-42",
		Err: context.DeadlineExceeded,
	})
	client := &detailClient{err: timeout}
	e := NewEnricher(client)

	record := sampleListing()
	row, err := e.Enrich(context.Background(), record)
	if err != nil {
		t.Fatalf("a detail timeout must not abort the batch: %v", err)
	}
	if row.SKU != record.ID {
		t.Errorf("SKU = %q, want listing id %q", row.SKU, record.ID)
	}
}

func TestEnrichAll_CancellationAbortsBatch(t *testing.T) {
	client := &detailClient{}
	e := NewEnricher(client)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.EnrichAll(ctx, []domain.ListingRecord{sampleListing()}, nil)
	if !domain.IsCanceled(err) {
		t.Errorf("err = %v, want cancellation to propagate", err)
	}
}

func TestEnrichAll_ProgressPerItem(t *testing.T) {
	client := &detailClient{err: errors.New("boom")}
	e := NewEnricher(client)

	records := []domain.ListingRecord{
		{ID: "a", Title: "A"},
		{ID: "b", Title: "B"},
		{ID: "c", Title: "C"},
	}

	var updates []int
	rows, err := e.EnrichAll(context.Background(), records, func(loaded, total int) {
		updates = append(updates, loaded)
		if total != 3 {
			t.Errorf("total = %d, want 3", total)
		}
	})
	if err != nil {
		t.Fatalf("EnrichAll failed: %v", err)
	}
	if len(rows) != 3 {
		t.Errorf("rows = %d, want 3", len(rows))
	}
	if len(updates) != 3 || updates[2] != 3 {
		t.Errorf("updates = %v, want one per item", updates)
	}
}

func TestCleanLabel(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"[Sale] Widget", "Widget"},
		{"Widget [Refurb] Pro", "Widget Pro"},
		{": Audio", "Audio"},
		{"- / Headphones", "Headphones"},
		{"Plain", "Plain"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := CleanLabel(tt.in); got != tt.want {
			t.Errorf("CleanLabel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
