package engine

import "log"

// Notifier surfaces the two user-visible sync events. Everything else the
// engine does is silent toward the user.
type Notifier interface {
	// SavedOffline fires when a capture was queued instead of submitted.
	SavedOffline(sessionID string)
	// SyncCompleted fires after a drain that submitted at least one session.
	SyncCompleted(count int)
}

type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) SavedOffline(sessionID string) {
	log.Printf("session saved offline, will sync session=%s", sessionID)
}

func (n *LogNotifier) SyncCompleted(count int) {
	log.Printf("sync completed trips=%d", count)
}
