package domain

import "time"

// Department is a top-level catalog partition. Fetched once per session.
type Department struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// Category is a node in a department's category tree.
type Category struct {
	DepartmentSlug string `json:"department_slug"`
	Slug           string `json:"slug"`
	Name           string `json:"name"`
	ParentSlug     string `json:"parent_slug,omitempty"`
}

// ListingRecord is the lightweight product shape produced by the pager.
// Fields the upstream may omit are pointers so that missing values stay
// distinguishable from zero values when sorting locally.
type ListingRecord struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Brand         *string    `json:"brand,omitempty"`
	URL           string     `json:"url"`
	Price         *float64   `json:"price,omitempty"`
	Rating        *float64   `json:"rating,omitempty"`
	ReviewCount   *int       `json:"review_count,omitempty"`
	ReleaseDate   *time.Time `json:"release_date,omitempty"`
	ImageURL      string     `json:"image_url,omitempty"`
	CategoryLabel string     `json:"category_label,omitempty"`
}

// ListingPage is one page of listing results plus the continuation cursor.
// An empty NextCursor signals end-of-stream.
type ListingPage struct {
	Records    []ListingRecord `json:"results"`
	NextCursor string          `json:"next_is_after"`
}

// ProductDetail is the full per-product record from the detail endpoint.
type ProductDetail struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Brand         *string  `json:"brand,omitempty"`
	SKU           string   `json:"sku"`
	Price         *float64 `json:"price,omitempty"`
	Rating        *float64 `json:"rating,omitempty"`
	ReviewCount   *int     `json:"review_count,omitempty"`
	ImageURL      string   `json:"image_url,omitempty"`
	CategoryLabel string   `json:"category_label,omitempty"`
	URL           string   `json:"url"`
}

// DetailRow is the exportable unit. Every field is always present so the
// export schema stays stable; missing upstream values fall back to
// empty/zero rather than absent.
type DetailRow struct {
	Title         string  `json:"title"`
	Brand         string  `json:"brand"`
	SKU           string  `json:"sku"`
	Price         float64 `json:"price"`
	Rating        float64 `json:"rating"`
	ReviewCount   int     `json:"review_count"`
	ImageURL      string  `json:"image_url"`
	CategoryLabel string  `json:"category_label"`
	URL           string  `json:"url"`
}

// CacheEntry is a full listing snapshot for one category-set key.
type CacheEntry struct {
	Key       string          `json:"key"`
	Records   []ListingRecord `json:"records"`
	CreatedAt time.Time       `json:"created_at"`
}
