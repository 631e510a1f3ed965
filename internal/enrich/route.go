package enrich

import (
	"context"
	"net/http"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"roadlog/services/sync/internal/session"
)

// RouteInfoService classifies a driven path into distance, speed, and
// urban/rural/highway shares.
type RouteInfoService interface {
	Fetch(ctx context.Context, path []session.Point, elapsed time.Duration) (*session.RouteInfo, error)
}

type RouteInfoClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*session.RouteInfo]
}

func NewRouteInfoClient(baseURL, apiKey string) *RouteInfoClient {
	return &RouteInfoClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: defaultTimeout},
		breaker: newBreaker[*session.RouteInfo]("route-info"),
	}
}

type routeInfoRequest struct {
	Path           []session.Point `json:"path"`
	ElapsedSeconds int             `json:"elapsedSeconds"`
	APIKey         string          `json:"apiKey,omitempty"`
}

func (c *RouteInfoClient) Fetch(ctx context.Context, path []session.Point, elapsed time.Duration) (*session.RouteInfo, error) {
	body := routeInfoRequest{
		Path:           path,
		ElapsedSeconds: int(elapsed / time.Second),
		APIKey:         c.apiKey,
	}

	return c.breaker.Execute(func() (*session.RouteInfo, error) {
		var out session.RouteInfo
		err := doWithRetry(ctx, "route-info fetch", defaultAttempts, func() error {
			return postJSON(ctx, c.client, c.baseURL+"/v1/route-info", body, &out)
		})
		if err != nil {
			return nil, err
		}
		return &out, nil
	})
}
