package enrich

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"roadlog/services/sync/internal/session"
)

const (
	// Cache match tolerances: weather within an hour and ten kilometers of a
	// previous lookup is close enough for session enrichment.
	weatherCacheTimeTolerance = time.Hour
	weatherCacheDistTolMeters = 10_000
)

// WeatherService fetches a weather snapshot for a coordinate and time.
type WeatherService interface {
	Fetch(ctx context.Context, p session.Point, at time.Time) (*session.Weather, error)
}

// WeatherClient calls the weather upstream, consulting the cache before any
// external call and populating it on every success.
type WeatherClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	cache   *Cache
	breaker *gobreaker.CircuitBreaker[*session.Weather]
}

func NewWeatherClient(baseURL, apiKey string, cache *Cache) *WeatherClient {
	return &WeatherClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: defaultTimeout},
		cache:   cache,
		breaker: newBreaker[*session.Weather]("weather"),
	}
}

func (c *WeatherClient) Fetch(ctx context.Context, p session.Point, at time.Time) (*session.Weather, error) {
	if c.cache != nil {
		if entry, ok := c.cache.Find(p, at, weatherCacheTimeTolerance, weatherCacheDistTolMeters); ok {
			w := entry.Weather
			return &w, nil
		}
	}

	w, err := c.breaker.Execute(func() (*session.Weather, error) {
		var out session.Weather
		endpoint := fmt.Sprintf(
			"%s/v1/weather?lat=%s&lon=%s&at=%s",
			c.baseURL,
			url.QueryEscape(fmt.Sprintf("%.6f", p.Lat)),
			url.QueryEscape(fmt.Sprintf("%.6f", p.Lon)),
			url.QueryEscape(at.UTC().Format(time.RFC3339)),
		)
		if c.apiKey != "" {
			endpoint += "&key=" + url.QueryEscape(c.apiKey)
		}
		err := doWithRetry(ctx, "weather fetch", defaultAttempts, func() error {
			return getJSON(ctx, c.client, endpoint, &out)
		})
		if err != nil {
			return nil, err
		}
		return &out, nil
	})
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		c.cache.Add(CacheEntry{Point: p, ObservedAt: at, Weather: *w})
	}
	return w, nil
}

// newBreaker builds the shared circuit-breaker configuration for the
// enrichment upstreams. A tripped breaker degrades enrichment, never the
// session save itself.
func newBreaker[T any](name string) *gobreaker.CircuitBreaker[T] {
	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        name,
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("enrichment breaker state change upstream=%s from=%s to=%s", name, from, to)
		},
	})
}
