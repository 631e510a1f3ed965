package remote

import (
	"context"
	"errors"
	"fmt"

	"roadlog/services/sync/internal/session"
)

// Created echoes the remote store's acknowledgement of a submitted session.
type Created struct {
	ID         string `json:"id"`
	RoadbookID string `json:"roadbookId"`
}

// Roadbook is the container a session must belong to.
type Roadbook struct {
	ID           string `json:"id"`
	ApprenticeID string `json:"apprenticeId"`
	Status       string `json:"status"`
}

// SessionStore is the narrow contract the engine holds on the remote
// relational store. CreateSession is an upsert on the client-generated id so
// an at-least-once drain cannot duplicate a session.
type SessionStore interface {
	// EnsureRoadbook returns the user's active roadbook id, creating a
	// default one when none is active.
	EnsureRoadbook(ctx context.Context, userID string) (string, error)
	CreateSession(ctx context.Context, roadbookID, sessionID string, rec session.Record) (Created, error)
	Health(ctx context.Context) error
	Close() error
}

// TransientError covers network failures and 5xx responses; the caller may
// retry or fall back to the offline queue.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// PermanentError covers 4xx responses; retrying cannot help, but the session
// still falls back to the queue so no capture is lost.
type PermanentError struct {
	Op     string
	Status int
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("%s: remote rejected with status %d", e.Op, e.Status)
}

// IsNotFound reports whether err is a permanent parent-not-found rejection.
func IsNotFound(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe) && pe.Status == 404
}
