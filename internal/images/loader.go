package images

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"resty.dev/v3"

	"storefront/exporter/internal/config"
	"storefront/exporter/internal/domain"
	"storefront/exporter/internal/proxy"
)

// Loader downloads image bytes for two consumers: a best-effort preview
// warmer feeding a bounded display cache, and the export path, which
// retries before giving up. Image fetching is the only place in the
// pipeline with bounded concurrency.
type Loader struct {
	httpClient *resty.Client
	clock      clock.Clock

	concurrency   int
	batchDelay    time.Duration
	cacheCapacity int
	retryAttempts int
	retryDelay    time.Duration

	mutex   sync.Mutex
	cache   map[string][]byte
	order   []string // insertion order, oldest first
	pauseCh chan struct{}
}

// NewLoader builds a Loader from config. The clock is injected so batch
// delays and backoff are controllable in tests.
func NewLoader(cfg config.ImagesConfig, proxySupplier proxy.Supplier, clk clock.Clock) *Loader {
	client := resty.New().
		SetTimeout(time.Duration(cfg.Timeout)*time.Second).
		SetHeader("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36").
		SetHeader("Accept", "image/avif,image/webp,image/*,*/*;q=0.8").
		SetTLSClientConfig(&tls.Config{
			InsecureSkipVerify: true,
		})

	if proxySupplier != nil {
		if proxyURL := proxySupplier.Get(); proxyURL != "" {
			client.SetProxy(proxyURL)
		}
	}

	concurrency := cfg.PreviewConcurrency
	if concurrency <= 0 {
		concurrency = 2
	}
	attempts := cfg.ExportRetryAttempts
	if attempts <= 0 {
		attempts = 3
	}

	return &Loader{
		httpClient:    client,
		clock:         clk,
		concurrency:   concurrency,
		batchDelay:    time.Duration(cfg.PreviewDelayMs) * time.Millisecond,
		cacheCapacity: cfg.PreviewCacheSize,
		retryAttempts: attempts,
		retryDelay:    time.Duration(cfg.ExportRetryDelayMs) * time.Millisecond,
		cache:         make(map[string][]byte),
	}
}

// Cached returns the cached bytes for url, if present. Lookup does not
// refresh the eviction order.
func (l *Loader) Cached(url string) ([]byte, bool) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	data, ok := l.cache[url]
	return data, ok
}

// Pause stops the preview warmer before its next batch. Export calls it
// so previews do not contend for image-fetch bandwidth.
func (l *Loader) Pause() {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.pauseCh == nil {
		l.pauseCh = make(chan struct{})
	}
}

// Resume releases a paused preview warmer.
func (l *Loader) Resume() {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.pauseCh != nil {
		close(l.pauseCh)
		l.pauseCh = nil
	}
}

// WarmPreviews fetches uncached urls in fixed-size batches with a delay
// between batches. Failures are dropped silently; previews are
// best-effort. Already-cached urls are skipped, so calling again after a
// pause picks up whatever is still missing.
func (l *Loader) WarmPreviews(ctx context.Context, urls []string) error {
	pending := make([]string, 0, len(urls))
	seen := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		if _, ok := l.Cached(u); !ok {
			pending = append(pending, u)
		}
	}

	for start := 0; start < len(pending); start += l.concurrency {
		if err := l.waitIfPaused(ctx); err != nil {
			return err
		}

		end := start + l.concurrency
		if end > len(pending) {
			end = len(pending)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(l.concurrency)
		for _, u := range pending[start:end] {
			u := u
			g.Go(func() error {
				data, err := l.fetch(gctx, u)
				if err != nil {
					if domain.IsCanceled(err) {
						return err
					}
					log.Debugf("Preview fetch dropped for %s: %v", u, err)
					return nil
				}
				l.store(u, data)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		if end < len(pending) && l.batchDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-l.clock.After(l.batchDelay):
			}
		}
	}
	return nil
}

// ExportBytes fetches image bytes for the export path, retrying with
// exponential backoff on rate-limit and transient-connection failures.
// Anything else fails immediately. Exhaustion returns the last error;
// the export writer omits the image rather than failing the export.
func (l *Loader) ExportBytes(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	delay := l.retryDelay

	for attempt := 0; attempt < l.retryAttempts; attempt++ {
		data, err := l.fetch(ctx, url)
		if err == nil {
			return data, nil
		}
		lastErr = err

		if domain.IsCanceled(err) {
			return nil, err
		}
		if !retryable(err) {
			break
		}
		if attempt == l.retryAttempts-1 {
			break
		}

		log.Debugf("Retrying image %s in %v: %v", url, delay, err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-l.clock.After(delay):
		}
		delay *= 2
	}

	return nil, fmt.Errorf("image download failed after retries: %w", lastErr)
}

func (l *Loader) fetch(ctx context.Context, imageURL string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp, err := l.httpClient.R().SetContext(ctx).Get(imageURL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("fetching image: %w", err)
	}

	if resp.StatusCode() == http.StatusTooManyRequests {
		return nil, fmt.Errorf("fetching %s: %w", imageURL, domain.ErrRateLimited)
	}
	if resp.IsError() {
		return nil, &domain.UpstreamError{
			URL:        imageURL,
			StatusCode: resp.StatusCode(),
			Status:     resp.Status(),
		}
	}

	return resp.Bytes(), nil
}

func (l *Loader) store(url string, data []byte) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if _, exists := l.cache[url]; !exists {
		l.order = append(l.order, url)
	}
	l.cache[url] = data

	for l.cacheCapacity > 0 && len(l.order) > l.cacheCapacity {
		oldest := l.order[0]
		l.order = l.order[1:]
		delete(l.cache, oldest)
	}
}

func (l *Loader) waitIfPaused(ctx context.Context) error {
	l.mutex.Lock()
	ch := l.pauseCh
	l.mutex.Unlock()

	if ch == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	}
}

// retryable classifies export-path failures. Rate limiting and transport
// level errors are worth another attempt; a definitive upstream status
// is not.
func retryable(err error) bool {
	if errors.Is(err, domain.ErrRateLimited) {
		return true
	}
	if domain.IsCanceled(err) {
		return false
	}
	var upstream *domain.UpstreamError
	if errors.As(err, &upstream) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
