package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.uber.org/ratelimit"
	"resty.dev/v3"

	"storefront/exporter/internal/config"
	"storefront/exporter/internal/domain"
	"storefront/exporter/internal/proxy"
)

// StorefrontClient consumes the upstream catalog REST API: departments,
// category facets, cursor-paginated listings and per-product detail.
type StorefrontClient interface {
	Departments(ctx context.Context) ([]domain.Department, error)
	Categories(ctx context.Context, department, parent string) ([]domain.Category, error)
	FetchPage(ctx context.Context, department, category, sortToken, after string) (*domain.ListingPage, error)
	ProductDetail(ctx context.Context, id string) (*domain.ProductDetail, error)
}

type storefrontClient struct {
	rl         ratelimit.Limiter
	config     config.APIConfig
	httpClient *resty.Client
	apiPrefix  string
}

// NewStorefrontClient builds the API client. Requests are paced with a
// client-side limiter; the upstream cursor does not tolerate bursts.
func NewStorefrontClient(cfg config.APIConfig, proxySupplier proxy.Supplier) StorefrontClient {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(time.Duration(cfg.Timeout)*time.Second).
		SetHeader("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36").
		SetHeader("Accept", "application/json").
		SetTLSClientConfig(&tls.Config{
			InsecureSkipVerify: true,
		})

	if proxySupplier != nil {
		if proxyURL := proxySupplier.Get(); proxyURL != "" {
			client.SetProxy(proxyURL)
			log.Infof("🔗 Using outbound proxy: %s", proxyURL)
		}
	}

	rps := cfg.MaxRequestsPerSecond
	if rps <= 0 {
		rps = 1
	}

	return &storefrontClient{
		rl:         ratelimit.New(rps),
		config:     cfg,
		httpClient: client,
		apiPrefix:  "/api/" + cfg.Version,
	}
}

type departmentsResponse struct {
	Departments []domain.Department `json:"departments"`
}

type categoriesResponse struct {
	Categories []domain.Category `json:"categories"`
}

func (c *storefrontClient) Departments(ctx context.Context) ([]domain.Department, error) {
	var out departmentsResponse
	err := c.getJSON(ctx, c.apiPrefix+"/departments", nil, &out)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch departments: %w", err)
	}
	return out.Departments, nil
}

func (c *storefrontClient) Categories(ctx context.Context, department, parent string) ([]domain.Category, error) {
	params := map[string]string{"department": department}
	if parent != "" {
		params["parent"] = parent
	}

	var out categoriesResponse
	err := c.getJSON(ctx, c.apiPrefix+"/categories", params, &out)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch categories for %s: %w", department, err)
	}
	return out.Categories, nil
}

func (c *storefrontClient) FetchPage(ctx context.Context, department, category, sortToken, after string) (*domain.ListingPage, error) {
	params := map[string]string{
		"department": department,
		"category":   category,
		"sort":       sortToken,
	}
	if after != "" {
		params["after"] = after
	}

	var page domain.ListingPage
	err := c.getJSON(ctx, c.apiPrefix+"/listings", params, &page)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch listing page for %s: %w", category, err)
	}

	log.Debugf("Fetched listing page for %s with %d records", category, len(page.Records))
	return &page, nil
}

func (c *storefrontClient) ProductDetail(ctx context.Context, id string) (*domain.ProductDetail, error) {
	var detail domain.ProductDetail
	err := c.getJSON(ctx, c.apiPrefix+"/products/"+id, nil, &detail)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch product detail for %s: %w", id, err)
	}
	return &detail, nil
}

// getJSON performs one paced GET. The scope is checked before every
// upstream call so a superseded query never hits the network again.
func (c *storefrontClient) getJSON(ctx context.Context, path string, params map[string]string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.rl.Take()

	req := c.httpClient.R().SetContext(ctx).SetResult(out)
	if params != nil {
		req.SetQueryParams(params)
	}

	resp, err := req.Get(path)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode() == http.StatusTooManyRequests {
		return fmt.Errorf("fetching %s: %w", path, domain.ErrRateLimited)
	}
	if resp.IsError() {
		return &domain.UpstreamError{
			URL:        path,
			StatusCode: resp.StatusCode(),
			Status:     resp.Status(),
		}
	}

	return nil
}
