package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/GitaiQAQ/render-dispatch/internal/blobstore"
	"github.com/GitaiQAQ/render-dispatch/internal/browserpool"
	"github.com/GitaiQAQ/render-dispatch/internal/config"
	"github.com/GitaiQAQ/render-dispatch/internal/handlers"
	"github.com/GitaiQAQ/render-dispatch/internal/logger"
	"github.com/GitaiQAQ/render-dispatch/internal/queue"
	"github.com/GitaiQAQ/render-dispatch/internal/ratelimit"
	"github.com/GitaiQAQ/render-dispatch/internal/router"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the server configuration file")
	flag.Parse()

	env := getEnv("APP_ENV", "development")
	logFile := getEnv("LOG_FILE", "")
	log := logger.Init("render-dispatch", env, logger.ParseLevelFromEnv(), logFile)

	if env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	globalLimiter := ratelimit.NewKeyed(cfg.HTTP.RateLimiting)
	evictStop := make(chan struct{})
	go globalLimiter.RunEviction(time.Hour, evictStop)
	defer close(evictStop)

	buckets, bucketEvictStops, err := buildBuckets(cfg)
	if err != nil {
		log.Error("failed to build buckets", "error", err)
		os.Exit(1)
	}
	defer func() {
		for _, stop := range bucketEvictStops {
			close(stop)
		}
	}()

	q := queue.New(256)

	resolver := &poolResolver{buckets: buckets}
	poolCfg := browserpool.Config{
		Args:              cfg.Browser.Args,
		WindowWidth:       cfg.Browser.WindowWidth,
		WindowHeight:      cfg.Browser.WindowHeight,
		ScreenshotCount:   cfg.Browser.ScreenshotWorkers,
		PDFCount:          cfg.Browser.PDFWorkers,
		NavigationTimeout: time.Duration(cfg.Browser.NavigationTimeout),
	}

	supervisor, err := browserpool.NewSupervisor(poolCfg, resolver, log)
	if err != nil {
		log.Error("failed to launch browser", "error", err)
		os.Exit(1)
	}
	if err := supervisor.Start(ctx, q); err != nil {
		log.Error("failed to start worker pool", "error", err)
		os.Exit(1)
	}

	deps := &handlers.Deps{
		Buckets:      buckets,
		Queue:        q,
		Log:          log,
		ReplyTimeout: 45 * time.Second,
	}

	r := router.Setup(deps, globalLimiter)
	server := &http.Server{
		Addr:    cfg.HTTP.Listen,
		Handler: r,
	}

	go func() {
		log.Info("server starting", "addr", cfg.HTTP.Listen, "env", env, "buckets", len(buckets))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown error", "error", err)
	}

	q.Close()

	if err := supervisor.Shutdown(shutdownCtx); err != nil {
		log.Error("worker pool shutdown error", "error", err)
	}

	log.Info("shutdown complete")
}

// buildBuckets constructs the runtime Bucket set (blob store, rate limiter,
// defaults) from the static config, plus the stop channels for each
// bucket's rate limiter evictor so main can halt them on shutdown. Buckets
// are built concurrently, at most 8 at a time; building a store makes no
// network call to its backend.
func buildBuckets(cfg *config.Config) (map[string]*handlers.Bucket, []chan struct{}, error) {
	buckets := make(map[string]*handlers.Bucket, len(cfg.Buckets))
	var stops []chan struct{}
	var mu sync.Mutex

	g, gCtx := errgroup.WithContext(context.Background())
	sem := make(chan struct{}, 8)

	for name, bktCfg := range cfg.Buckets {
		name, bktCfg := name, bktCfg
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gCtx.Done():
				return gCtx.Err()
			}
			defer func() { <-sem }()

			store, err := buildStore(name, bktCfg)
			if err != nil {
				return fmt.Errorf("bucket %q: %w", name, err)
			}

			limiter := ratelimit.NewKeyed(bktCfg.RateLimiting)
			stop := make(chan struct{})
			go limiter.RunEviction(time.Hour, stop)

			mu.Lock()
			stops = append(stops, stop)
			buckets[name] = &handlers.Bucket{
				Name:               name,
				AccessToken:        bktCfg.AccessToken,
				Store:              store,
				Limiter:            limiter,
				ScreenshotDefaults: bktCfg.ScreenshotDefaults,
				PDFDefaults:        bktCfg.PDFDefaults,
				PresignTTL:         time.Duration(bktCfg.PresignTTL),
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		for _, stop := range stops {
			close(stop)
		}
		return nil, nil, err
	}

	return buckets, stops, nil
}

func buildStore(name string, bktCfg config.Bucket) (blobstore.Store, error) {
	switch bktCfg.Blob.Backend {
	case config.BackendS3:
		return blobstore.NewS3(blobstore.S3Config{
			Endpoint:  bktCfg.Blob.Endpoint,
			Region:    bktCfg.Blob.Region,
			Bucket:    bktCfg.Blob.Bucket,
			AccessKey: bktCfg.Blob.AccessKey,
			SecretKey: bktCfg.Blob.SecretKey,
		}), nil
	case config.BackendLocal, "":
		root := bktCfg.Blob.Root
		if root == "" {
			root = "./static/" + name
		}
		return blobstore.NewLocal(root, name, bktCfg.AccessToken), nil
	default:
		return nil, fmt.Errorf("unknown blob backend %q", bktCfg.Blob.Backend)
	}
}

// poolResolver adapts the static bucket configuration to the interface the
// worker pool uses to find a bucket's store and timing knobs.
type poolResolver struct {
	buckets map[string]*handlers.Bucket
}

func (r *poolResolver) Store(bucket string) (blobstore.Store, error) {
	b, ok := r.buckets[bucket]
	if !ok {
		return nil, fmt.Errorf("unknown bucket %q", bucket)
	}
	return b.Store, nil
}

func (r *poolResolver) PDFSettle(bucket string) time.Duration {
	b, ok := r.buckets[bucket]
	if !ok || b.PDFDefaults.SettleSeconds == 0 {
		return 10 * time.Second
	}
	return time.Duration(b.PDFDefaults.SettleSeconds) * time.Second
}

func (r *poolResolver) PresignTTL(bucket string) time.Duration {
	b, ok := r.buckets[bucket]
	if !ok || b.PresignTTL == 0 {
		return time.Hour
	}
	return b.PresignTTL
}

var _ browserpool.Resolver = (*poolResolver)(nil)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
