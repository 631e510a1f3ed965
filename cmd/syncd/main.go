package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"roadlog/services/sync/internal/api"
	"roadlog/services/sync/internal/config"
	"roadlog/services/sync/internal/docstore"
	"roadlog/services/sync/internal/engine"
	"roadlog/services/sync/internal/enrich"
	"roadlog/services/sync/internal/mapper"
	"roadlog/services/sync/internal/queue"
	"roadlog/services/sync/internal/remote"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuration failed: %v", err)
	}

	ctx := context.Background()

	queueStore, err := queue.NewRedisStore(cfg.RedisAddr)
	if err != nil {
		log.Fatalf("durable queue unavailable: %v", err)
	}
	defer queueStore.Close()

	remoteStore, err := buildRemoteStore(ctx, cfg)
	if err != nil {
		log.Fatalf("remote session store failed: %v", err)
	}
	defer remoteStore.Close()

	docs := buildDocStore(ctx, cfg)
	defer docs.Close()

	weatherCache := enrich.NewCache(cfg.WeatherCacheMaxEntries, enrich.DefaultCacheMaxAge)

	var weather enrich.WeatherService
	if cfg.WeatherBaseURL != "" {
		weather = enrich.NewWeatherClient(cfg.WeatherBaseURL, cfg.WeatherAPIKey, weatherCache)
	} else {
		log.Printf("weather enrichment disabled, no base url configured")
	}

	var routes enrich.RouteInfoService
	if cfg.RouteBaseURL != "" {
		routes = enrich.NewRouteInfoClient(cfg.RouteBaseURL, cfg.RouteAPIKey)
	} else {
		log.Printf("route-info enrichment disabled, no base url configured")
	}

	var geocoder mapper.Geocoder
	if cfg.GeocodeBaseURL != "" {
		geocoder = enrich.NewHTTPGeocoder(cfg.GeocodeBaseURL)
	}

	eng := engine.New(engine.Deps{
		Queue:   queueStore,
		Remote:  remoteStore,
		Docs:    docs,
		Weather: weather,
		Routes:  routes,
		Mapper:  mapper.New(geocoder),
		Signal:  engine.NewSignal(cfg.StartOnline),
	})

	handler := api.NewHandler(
		eng,
		queueStore,
		cfg.Origins(),
		cfg.APIKey,
		cfg.RateLimitRequestsPerSec,
		cfg.RateLimitBurst,
	)

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startBackgroundLoops(
		shutdownCtx,
		eng,
		weatherCache,
		time.Duration(cfg.DrainIntervalSeconds)*time.Second,
		time.Duration(cfg.CacheCleanupIntervalMinutes)*time.Minute,
	)

	go func() {
		log.Printf("sync service listening on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server failed: %v", err)
		}
	}()

	<-shutdownCtx.Done()
	ctxTimeout, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxTimeout); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}

func buildRemoteStore(ctx context.Context, cfg config.Config) (remote.SessionStore, error) {
	if cfg.DatabaseURL != "" {
		return remote.NewPostgres(ctx, cfg.DatabaseURL)
	}
	if cfg.RemoteBaseURL != "" {
		return remote.NewHTTPStore(cfg.RemoteBaseURL, cfg.RemoteAPIKey), nil
	}
	return nil, errors.New("neither database_url nor remote_base_url configured")
}

func buildDocStore(ctx context.Context, cfg config.Config) docstore.Store {
	if cfg.S3Bucket == "" {
		log.Printf("gps trace mirroring disabled, no bucket configured")
		return docstore.NewNoopStore()
	}

	s3Store, err := docstore.NewS3Store(ctx, cfg.S3Region, cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket)
	if err != nil {
		log.Printf("document store unavailable (%v), continuing without trace mirroring", err)
		return docstore.NewNoopStore()
	}
	return s3Store
}
