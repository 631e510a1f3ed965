package queue

import (
	"context"
	"time"

	"roadlog/services/sync/internal/session"
)

type RequestKind string

const (
	RequestWeather   RequestKind = "weather"
	RequestRouteInfo RequestKind = "route-info"
)

// PendingSession is a capture parked locally until both remote stores accept
// it. Mutated in place as enrichment data arrives, removed only after the
// remote submission succeeds.
type PendingSession struct {
	ID           string          `json:"id"`
	CreatedAt    time.Time       `json:"createdAt"`
	LocationTime time.Time       `json:"locationTime"`
	Capture      session.Capture `json:"capture"`
	LastError    string          `json:"lastError,omitempty"`
	LastErrorAt  time.Time       `json:"lastErrorAt"`
}

// PendingRequest is an enrichment lookup still owed to a pending session.
// Never outlives its parent: removing the session cascades.
type PendingRequest struct {
	ID        string      `json:"id"`
	SessionID string      `json:"sessionId"`
	Kind      RequestKind `json:"kind"`
	CreatedAt time.Time   `json:"createdAt"`
}

type Store interface {
	// SaveCapture persists a session together with its enrichment requests
	// in one atomic write.
	SaveCapture(ctx context.Context, s PendingSession, reqs []PendingRequest) error
	// SaveSession upserts a single session, last write wins per id.
	SaveSession(ctx context.Context, s PendingSession) error
	Sessions(ctx context.Context) ([]PendingSession, error)
	Requests(ctx context.Context, sessionID string) ([]PendingRequest, error)
	// RemoveSession deletes the session and every request referencing it.
	RemoveSession(ctx context.Context, sessionID string) error
	RemoveRequest(ctx context.Context, requestID string) error
	// MarkFailure records the latest drain failure reason against a session.
	MarkFailure(ctx context.Context, sessionID, reason string) error
	Health(ctx context.Context) error
	Close() error
}

func validSession(p PendingSession) bool {
	return p.ID != "" && p.Capture.UserID != ""
}

func validRequest(r PendingRequest) bool {
	if r.ID == "" || r.SessionID == "" {
		return false
	}
	return r.Kind == RequestWeather || r.Kind == RequestRouteInfo
}
