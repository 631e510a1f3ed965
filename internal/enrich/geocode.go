package enrich

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"roadlog/services/sync/internal/session"
)

// HTTPGeocoder resolves coordinates against the reverse-geocoding upstream.
// Failures are expected and absorbed by the mapper with a placeholder label,
// so geocode calls get a single attempt and no breaker.
type HTTPGeocoder struct {
	baseURL string
	client  *http.Client
}

func NewHTTPGeocoder(baseURL string) *HTTPGeocoder {
	return &HTTPGeocoder{
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultTimeout},
	}
}

type reverseGeocodeResponse struct {
	Label string `json:"label"`
}

func (g *HTTPGeocoder) ReverseGeocode(ctx context.Context, p session.Point) (string, error) {
	endpoint := fmt.Sprintf(
		"%s/v1/reverse?lat=%s&lon=%s",
		g.baseURL,
		url.QueryEscape(fmt.Sprintf("%.6f", p.Lat)),
		url.QueryEscape(fmt.Sprintf("%.6f", p.Lon)),
	)

	var out reverseGeocodeResponse
	if err := getJSON(ctx, g.client, endpoint, &out); err != nil {
		return "", err
	}
	return out.Label, nil
}
