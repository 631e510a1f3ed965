package main

import (
	"context"
	"log"
	"time"

	"roadlog/services/sync/internal/engine"
	"roadlog/services/sync/internal/enrich"
)

func startBackgroundLoops(
	ctx context.Context,
	eng *engine.Engine,
	weatherCache *enrich.Cache,
	drainInterval time.Duration,
	cacheCleanupInterval time.Duration,
) {
	if drainInterval > 0 {
		go runDrainLoop(ctx, eng, drainInterval)
	}
	if cacheCleanupInterval > 0 {
		go runCacheCleanupLoop(ctx, weatherCache, cacheCleanupInterval)
	}
}

func runDrainLoop(ctx context.Context, eng *engine.Engine, interval time.Duration) {
	runDrainCycle(ctx, eng)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runDrainCycle(ctx, eng)
		}
	}
}

func runDrainCycle(ctx context.Context, eng *engine.Engine) {
	if !eng.Signal().Online() {
		return
	}

	cycleCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	result, err := eng.Drain(cycleCtx)
	if err != nil {
		log.Printf("background drain failed err=%v", err)
		return
	}
	if result.Succeeded > 0 || result.Failed > 0 {
		log.Printf("background drain completed succeeded=%d failed=%d", result.Succeeded, result.Failed)
	}
}

func runCacheCleanupLoop(ctx context.Context, cache *enrich.Cache, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := cache.Cleanup()
			if removed > 0 {
				log.Printf("weather cache cleanup removed=%d remaining=%d", removed, cache.Len())
			}
		}
	}
}
