package enrich

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
)

const (
	defaultTimeout  = 8 * time.Second
	defaultAttempts = 3
	baseRetryDelay  = 250 * time.Millisecond
	maxRetryDelay   = 4 * time.Second
)

// statusError marks a non-2xx upstream response. 4xx responses fail fast;
// 5xx are retryable.
type statusError struct {
	status int
	url    string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("upstream returned %d for %s", e.status, e.url)
}

func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.status >= 500
	}
	// Anything that never produced a response (dial, timeout, reset).
	return true
}

// doWithRetry runs fn with capped exponential backoff on retryable failures.
func doWithRetry(ctx context.Context, op string, attempts int, fn func() error) error {
	if attempts <= 0 {
		attempts = defaultAttempts
	}

	var err error
	delay := baseRetryDelay
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !retryable(err) || attempt == attempts {
			break
		}

		log.Printf("%s attempt %d/%d failed, retrying in %s err=%v", op, attempt, attempts, delay, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxRetryDelay {
			delay = maxRetryDelay
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	return decodeResponse(client, req, out)
}

func postJSON(ctx context.Context, client *http.Client, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return decodeResponse(client, req, out)
}

func decodeResponse(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &statusError{status: resp.StatusCode, url: req.URL.Path}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
