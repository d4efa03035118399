package container

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"storefront/exporter/internal/blobstore"
	"storefront/exporter/internal/cache"
	"storefront/exporter/internal/client"
	"storefront/exporter/internal/config"
	"storefront/exporter/internal/domain"
	"storefront/exporter/internal/export"
	"storefront/exporter/internal/images"
	"storefront/exporter/internal/imageproxy"
	"storefront/exporter/internal/proxy"
	"storefront/exporter/internal/service"
)

// Container holds all initialized components
type Container struct {
	Config      *config.Config
	Client      client.StorefrontClient
	Store       blobstore.Store
	Cache       *cache.ListingCache
	Images      *images.Loader
	Coordinator *service.Coordinator

	proxyHandler *imageproxy.Handler
	redis        *redis.Client
}

// New creates a new container with all dependencies initialized
func New(cfg *config.Config) (*Container, error) {
	container := &Container{Config: cfg}

	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Log.Level, err)
	}
	log.SetLevel(level)

	proxySupplier := proxy.NewStaticSupplier(cfg.Proxy.URL)

	store, err := container.initStore(cfg)
	if err != nil {
		return nil, err
	}
	container.Store = store

	container.Cache = cache.New(
		store,
		time.Duration(cfg.Cache.TTLMs)*time.Millisecond,
		cfg.Cache.Capacity,
		clock.New(),
	)

	container.Client = client.NewStorefrontClient(cfg.API, proxySupplier)
	container.Images = images.NewLoader(cfg.Images, proxySupplier, clock.New())

	container.Coordinator = service.NewCoordinator(
		container.Client,
		container.Cache,
		container.Images,
		export.NewWriter(),
	)

	if cfg.Proxy.Listen != "" {
		container.proxyHandler = imageproxy.NewHandler(proxySupplier)
	}

	return container, nil
}

func (c *Container) initStore(cfg *config.Config) (blobstore.Store, error) {
	switch cfg.Cache.Backend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Cache.Redis.Host, cfg.Cache.Redis.Port),
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.Database,
		})
		if _, err := rdb.Ping(context.Background()).Result(); err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		log.Info("✅ Connected to Redis successfully")
		c.redis = rdb
		return blobstore.NewRedisStore(rdb), nil
	case "filesystem":
		return blobstore.NewFileStore(afero.NewOsFs(), cfg.Cache.Dir), nil
	case "memory":
		return blobstore.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

// Run executes the configured query and, when enabled, serves the local
// image proxy until the query finishes.
func (c *Container) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	if c.proxyHandler != nil {
		server := &http.Server{
			Addr:    c.Config.Proxy.Listen,
			Handler: c.proxyHandler.Router(),
		}
		g.Go(func() error {
			log.Infof("🚀 Image proxy listening on %s", c.Config.Proxy.Listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		defer cancel()
		return c.runQuery(ctx)
	})

	return g.Wait()
}

func (c *Container) runQuery(ctx context.Context) error {
	query := domain.Query{
		Path:    c.Config.Query.Path,
		Exclude: c.Config.Query.Exclude,
		Sort:    c.Config.Query.Sort,
		Limit:   c.Config.Query.Limit,
	}

	go func() {
		for event := range c.Coordinator.Events() {
			log.Debugf("Progress %s: %d/%d", event.Stage, event.Loaded, event.Total)
		}
	}()

	result, err := c.Coordinator.Run(ctx, query)
	if err != nil {
		return err
	}

	output := c.Config.Query.Output
	if output != "" && result.Workbook != nil {
		if err := os.WriteFile(output, result.Workbook, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", output, err)
		}
		log.Infof("✅ Wrote %s (%d rows)", output, len(result.Rows))
	}
	return nil
}

// Close performs cleanup when shutting down
func (c *Container) Close() error {
	log.Info("Shutting down container...")
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			return err
		}
	}
	log.Info("Container shut down successfully")
	return nil
}
