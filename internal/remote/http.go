package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	json "github.com/goccy/go-json"

	"roadlog/services/sync/internal/session"
)

// HTTPStore talks to the logbook backend over JSON/HTTPS.
type HTTPStore struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPStore(baseURL, apiKey string) *HTTPStore {
	return &HTTPStore{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *HTTPStore) EnsureRoadbook(ctx context.Context, userID string) (string, error) {
	var listed struct {
		Roadbooks []Roadbook `json:"roadbooks"`
	}
	endpoint := fmt.Sprintf("%s/v1/users/%s/roadbooks?status=active", s.baseURL, url.PathEscape(userID))
	if err := s.do(ctx, http.MethodGet, endpoint, nil, &listed, "list roadbooks"); err != nil {
		return "", err
	}
	if len(listed.Roadbooks) > 0 {
		return listed.Roadbooks[0].ID, nil
	}

	var created Roadbook
	body := map[string]string{"apprenticeId": userID, "status": "active"}
	if err := s.do(ctx, http.MethodPost, s.baseURL+"/v1/roadbooks", body, &created, "create roadbook"); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", &TransientError{Op: "create roadbook", Err: fmt.Errorf("remote returned empty roadbook id")}
	}
	return created.ID, nil
}

func (s *HTTPStore) CreateSession(ctx context.Context, roadbookID, sessionID string, rec session.Record) (Created, error) {
	// PUT on the client-generated id: resubmitting after a failed
	// queue-remove overwrites instead of duplicating.
	endpoint := fmt.Sprintf(
		"%s/v1/roadbooks/%s/sessions/%s",
		s.baseURL,
		url.PathEscape(roadbookID),
		url.PathEscape(sessionID),
	)

	var created Created
	if err := s.do(ctx, http.MethodPut, endpoint, rec, &created, "submit session"); err != nil {
		return Created{}, err
	}
	if created.ID == "" {
		created.ID = sessionID
	}
	return created, nil
}

func (s *HTTPStore) Health(ctx context.Context) error {
	return s.do(ctx, http.MethodGet, s.baseURL+"/healthz", nil, nil, "health")
}

func (s *HTTPStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *HTTPStore) do(ctx context.Context, method, endpoint string, body, out any, op string) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return &TransientError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
	case resp.StatusCode >= 500:
		_, _ = io.Copy(io.Discard, resp.Body)
		return &TransientError{Op: op, Err: fmt.Errorf("remote returned %d", resp.StatusCode)}
	default:
		_, _ = io.Copy(io.Discard, resp.Body)
		return &PermanentError{Op: op, Status: resp.StatusCode}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransientError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
