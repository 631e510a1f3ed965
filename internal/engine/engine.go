package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"roadlog/services/sync/internal/docstore"
	"roadlog/services/sync/internal/enrich"
	"roadlog/services/sync/internal/mapper"
	"roadlog/services/sync/internal/queue"
	"roadlog/services/sync/internal/remote"
	"roadlog/services/sync/internal/session"
)

// TraceCollection is the document-store collection holding GPS traces.
const TraceCollection = "session-traces"

// Deps are the engine's collaborators, injected so the engine stays testable
// without any of the real substrates.
type Deps struct {
	Queue    queue.Store
	Remote   remote.SessionStore
	Docs     docstore.Store
	Weather  enrich.WeatherService
	Routes   enrich.RouteInfoService
	Mapper   *mapper.Mapper
	Signal   *Signal
	Notifier Notifier
}

// Engine owns the lifecycle of every pending session and enrichment request
// in the local queue; no other component writes to it.
type Engine struct {
	queue    queue.Store
	remote   remote.SessionStore
	docs     docstore.Store
	weather  enrich.WeatherService
	routes   enrich.RouteInfoService
	mapper   *mapper.Mapper
	signal   *Signal
	notifier Notifier

	draining atomic.Bool
	now      func() time.Time
}

func New(deps Deps) *Engine {
	notifier := deps.Notifier
	if notifier == nil {
		notifier = NewLogNotifier()
	}
	docs := deps.Docs
	if docs == nil {
		docs = docstore.NewNoopStore()
	}
	return &Engine{
		queue:    deps.Queue,
		remote:   deps.Remote,
		docs:     docs,
		weather:  deps.Weather,
		routes:   deps.Routes,
		mapper:   deps.Mapper,
		signal:   deps.Signal,
		notifier: notifier,
		now:      time.Now,
	}
}

// SaveSession accepts a finished capture and always returns a session id:
// the remote id when the online path succeeds, the locally generated one
// when the capture is queued. The only error that reaches the caller besides
// a validation bug is a failure of local persistence itself.
func (e *Engine) SaveSession(ctx context.Context, capture session.Capture) (string, error) {
	if capture.ElapsedSeconds < 0 {
		return "", fmt.Errorf("elapsed time must not be negative, got %d", capture.ElapsedSeconds)
	}

	if e.signal.Online() {
		id, err := e.trySubmitOnline(ctx, capture)
		if err == nil {
			return id, nil
		}
		// Capture-data bugs must not be parked in the queue where they would
		// fail every drain.
		var verr *mapper.ValidationError
		if errors.As(err, &verr) {
			return "", err
		}
		log.Printf("online submit failed, falling back to offline queue err=%v", err)
	}

	return e.enqueueOffline(ctx, capture)
}

// trySubmitOnline is the full online path: ensure roadbook, enrich, map,
// submit, mirror. Enrichment failures degrade silently; everything else is
// returned to SaveSession which decides between propagating and queueing.
func (e *Engine) trySubmitOnline(ctx context.Context, capture session.Capture) (string, error) {
	roadbookID, err := e.remote.EnsureRoadbook(ctx, capture.UserID)
	if err != nil {
		return "", err
	}

	end := e.now()
	start := end.Add(-time.Duration(capture.ElapsedSeconds) * time.Second)
	e.completeEnrichment(ctx, &capture, start)

	rec, err := e.mapper.Map(ctx, mapper.Input{
		Capture:    capture,
		RoadbookID: roadbookID,
		EndedAt:    end,
	})
	if err != nil {
		return "", err
	}

	created, err := e.remote.CreateSession(ctx, roadbookID, uuid.NewString(), rec)
	if err != nil {
		return "", err
	}

	e.mirrorTrace(ctx, created.ID, capture, rec)
	return created.ID, nil
}

// completeEnrichment fills missing weather and route info in place. A failed
// lookup is logged and skipped; a session without enrichment is still valid.
func (e *Engine) completeEnrichment(ctx context.Context, capture *session.Capture, locatedAt time.Time) {
	if capture.Weather == nil && len(capture.Path) > 0 && e.weather != nil {
		w, err := e.weather.Fetch(ctx, capture.Path[0], locatedAt)
		if err != nil {
			log.Printf("weather enrichment skipped err=%v", err)
		} else {
			capture.Weather = w
		}
	}

	if capture.Route == nil && len(capture.Path) >= 2 && e.routes != nil {
		elapsed := time.Duration(capture.ElapsedSeconds) * time.Second
		r, err := e.routes.Fetch(ctx, capture.Path, elapsed)
		if err != nil {
			log.Printf("route-info enrichment skipped err=%v", err)
		} else {
			capture.Route = r
		}
	}
}

func (e *Engine) enqueueOffline(ctx context.Context, capture session.Capture) (string, error) {
	now := e.now()
	p := queue.PendingSession{
		ID:           uuid.NewString(),
		CreatedAt:    now,
		LocationTime: now.Add(-time.Duration(capture.ElapsedSeconds) * time.Second),
		Capture:      capture,
	}

	reqs := make([]queue.PendingRequest, 0, 2)
	if capture.Weather == nil && len(capture.Path) > 0 {
		reqs = append(reqs, queue.PendingRequest{
			ID:        uuid.NewString(),
			SessionID: p.ID,
			Kind:      queue.RequestWeather,
			CreatedAt: now,
		})
	}
	if capture.Route == nil && len(capture.Path) >= 2 {
		reqs = append(reqs, queue.PendingRequest{
			ID:        uuid.NewString(),
			SessionID: p.ID,
			Kind:      queue.RequestRouteInfo,
			CreatedAt: now,
		})
	}

	if err := e.queue.SaveCapture(ctx, p, reqs); err != nil {
		// The one fatal, user-visible failure mode: nothing durable holds the
		// capture anymore.
		return "", fmt.Errorf("offline persistence failed: %w", err)
	}

	e.notifier.SavedOffline(p.ID)
	return p.ID, nil
}

type DrainResult struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Drain walks the snapshot of queued sessions, completing enrichment and
// resubmitting each one independently. Reentrant calls are no-ops. Sessions
// that fail stay queued with their failure reason recorded.
func (e *Engine) Drain(ctx context.Context) (DrainResult, error) {
	if !e.draining.CompareAndSwap(false, true) {
		return DrainResult{}, nil
	}
	defer e.draining.Store(false)

	pending, err := e.queue.Sessions(ctx)
	if err != nil {
		return DrainResult{}, fmt.Errorf("load pending sessions: %w", err)
	}

	result := DrainResult{}
	for _, p := range pending {
		if err := e.processPending(ctx, p); err != nil {
			result.Failed++
			log.Printf("drain failed session=%s err=%v", p.ID, err)
			if markErr := e.queue.MarkFailure(ctx, p.ID, err.Error()); markErr != nil {
				log.Printf("recording drain failure failed session=%s err=%v", p.ID, markErr)
			}
			continue
		}
		result.Succeeded++
	}

	if result.Succeeded > 0 {
		e.notifier.SyncCompleted(result.Succeeded)
	}
	return result, nil
}

func (e *Engine) processPending(ctx context.Context, p queue.PendingSession) error {
	roadbookID, err := e.remote.EnsureRoadbook(ctx, p.Capture.UserID)
	if err != nil {
		return err
	}

	e.completePendingEnrichment(ctx, &p)

	rec, err := e.mapper.Map(ctx, mapper.Input{
		Capture:    p.Capture,
		RoadbookID: roadbookID,
		EndedAt:    p.CreatedAt,
	})
	if err != nil {
		return err
	}

	created, err := e.remote.CreateSession(ctx, roadbookID, p.ID, rec)
	if err != nil {
		return err
	}

	// Remove immediately after remote success so a later failure cannot
	// cause a resubmission; the remote upsert covers the case where this
	// very removal fails.
	if err := e.queue.RemoveSession(ctx, p.ID); err != nil {
		log.Printf("queue removal failed, session will resubmit next drain session=%s err=%v", p.ID, err)
	}

	e.mirrorTrace(ctx, created.ID, p.Capture, rec)
	return nil
}

// completePendingEnrichment resolves the session's stored enrichment
// requests using its captured location and time. Each resolved request is
// deleted individually; ones that still fail ride along until the session
// itself completes and cascades.
func (e *Engine) completePendingEnrichment(ctx context.Context, p *queue.PendingSession) {
	reqs, err := e.queue.Requests(ctx, p.ID)
	if err != nil {
		log.Printf("loading enrichment requests failed session=%s err=%v", p.ID, err)
		return
	}

	enriched := false
	for _, req := range reqs {
		switch req.Kind {
		case queue.RequestWeather:
			if p.Capture.Weather == nil && len(p.Capture.Path) > 0 && e.weather != nil {
				w, err := e.weather.Fetch(ctx, p.Capture.Path[0], p.LocationTime)
				if err != nil {
					log.Printf("queued weather enrichment still unavailable session=%s err=%v", p.ID, err)
					continue
				}
				p.Capture.Weather = w
				enriched = true
			}
		case queue.RequestRouteInfo:
			if p.Capture.Route == nil && len(p.Capture.Path) >= 2 && e.routes != nil {
				elapsed := time.Duration(p.Capture.ElapsedSeconds) * time.Second
				r, err := e.routes.Fetch(ctx, p.Capture.Path, elapsed)
				if err != nil {
					log.Printf("queued route-info enrichment still unavailable session=%s err=%v", p.ID, err)
					continue
				}
				p.Capture.Route = r
				enriched = true
			}
		}

		if err := e.queue.RemoveRequest(ctx, req.ID); err != nil {
			log.Printf("removing completed enrichment request failed id=%s err=%v", req.ID, err)
		}
	}

	if enriched {
		if err := e.queue.SaveSession(ctx, *p); err != nil {
			log.Printf("persisting enriched session failed session=%s err=%v", p.ID, err)
		}
	}
}

type traceDocument struct {
	SessionID  string          `json:"sessionId"`
	Waypoints  []session.Point `json:"waypoints"`
	DistanceKm float64         `json:"distanceKm"`
	RecordedAt time.Time       `json:"recordedAt"`
	Vehicle    string          `json:"vehicle,omitempty"`
}

// mirrorTrace writes the heavy GPS payload to the document store. The
// relational record is the source of truth; a failed mirror is logged only.
func (e *Engine) mirrorTrace(ctx context.Context, sessionID string, capture session.Capture, rec session.Record) {
	if len(capture.Path) == 0 {
		return
	}

	doc := traceDocument{
		SessionID:  sessionID,
		Waypoints:  capture.Path,
		DistanceKm: rec.DistanceKm,
		RecordedAt: rec.EndTime,
		Vehicle:    capture.Vehicle,
	}
	if _, err := e.docs.AddDocument(ctx, TraceCollection, doc); err != nil && !errors.Is(err, docstore.ErrNotConfigured) {
		log.Printf("gps trace mirror failed session=%s err=%v", sessionID, err)
	}
}

// PendingSummary is the queue view exposed on the status endpoint.
type PendingSummary struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"createdAt"`
	LastError   string    `json:"lastError,omitempty"`
	LastErrorAt time.Time `json:"lastErrorAt"`
}

type Status struct {
	Online   bool             `json:"online"`
	Draining bool             `json:"draining"`
	Pending  []PendingSummary `json:"pending"`
}

func (e *Engine) Status(ctx context.Context) (Status, error) {
	pending, err := e.queue.Sessions(ctx)
	if err != nil {
		return Status{}, err
	}

	summaries := make([]PendingSummary, 0, len(pending))
	for _, p := range pending {
		summaries = append(summaries, PendingSummary{
			ID:          p.ID,
			CreatedAt:   p.CreatedAt,
			LastError:   p.LastError,
			LastErrorAt: p.LastErrorAt,
		})
	}

	return Status{
		Online:   e.signal.Online(),
		Draining: e.draining.Load(),
		Pending:  summaries,
	}, nil
}

func (e *Engine) Signal() *Signal {
	return e.signal
}
