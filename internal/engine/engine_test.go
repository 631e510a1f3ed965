package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"roadlog/services/sync/internal/mapper"
	"roadlog/services/sync/internal/queue"
	"roadlog/services/sync/internal/remote"
	"roadlog/services/sync/internal/session"
)

type fakeRemote struct {
	mu         sync.Mutex
	roadbookID string
	ensureErr  error
	createErr  error
	created    []session.Record
	createdIDs []string
	block      chan struct{}
}

func (f *fakeRemote) EnsureRoadbook(_ context.Context, _ string) (string, error) {
	if f.ensureErr != nil {
		return "", f.ensureErr
	}
	if f.roadbookID == "" {
		return "rb-1", nil
	}
	return f.roadbookID, nil
}

func (f *fakeRemote) CreateSession(_ context.Context, _, sessionID string, rec session.Record) (remote.Created, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return remote.Created{}, f.createErr
	}
	f.created = append(f.created, rec)
	f.createdIDs = append(f.createdIDs, sessionID)
	return remote.Created{ID: sessionID, RoadbookID: "rb-1"}, nil
}

func (f *fakeRemote) Health(_ context.Context) error { return nil }
func (f *fakeRemote) Close() error                   { return nil }

func (f *fakeRemote) createCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

type fakeDocs struct {
	mu   sync.Mutex
	err  error
	docs []any
}

func (f *fakeDocs) AddDocument(_ context.Context, _ string, payload any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.docs = append(f.docs, payload)
	return "doc-1", nil
}

func (f *fakeDocs) Close() error { return nil }

type fakeWeather struct {
	weather *session.Weather
	err     error
	gotAt   time.Time
	gotLoc  session.Point
	calls   int
}

func (f *fakeWeather) Fetch(_ context.Context, p session.Point, at time.Time) (*session.Weather, error) {
	f.calls++
	f.gotLoc = p
	f.gotAt = at
	if f.err != nil {
		return nil, f.err
	}
	return f.weather, nil
}

type fakeRoutes struct {
	route *session.RouteInfo
	err   error
	calls int
}

func (f *fakeRoutes) Fetch(_ context.Context, _ []session.Point, _ time.Duration) (*session.RouteInfo, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.route, nil
}

type spyNotifier struct {
	offline []string
	synced  []int
}

func (n *spyNotifier) SavedOffline(id string) { n.offline = append(n.offline, id) }
func (n *spyNotifier) SyncCompleted(c int)    { n.synced = append(n.synced, c) }

type harness struct {
	engine   *Engine
	queue    *queue.RedisStore
	remote   *fakeRemote
	docs     *fakeDocs
	weather  *fakeWeather
	routes   *fakeRoutes
	notifier *spyNotifier
	signal   *Signal
}

func newHarness(t *testing.T, online bool) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := queue.NewRedisStore(mr.Addr())
	if err != nil {
		t.Fatalf("queue store failed: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	h := &harness{
		queue:    store,
		remote:   &fakeRemote{},
		docs:     &fakeDocs{},
		weather:  &fakeWeather{weather: &session.Weather{TemperatureC: 11, Conditions: "Light rain", VisibilityKm: 8}},
		routes:   &fakeRoutes{route: &session.RouteInfo{Summary: session.RouteSummary{TotalDistanceKm: 22.3}, Distribution: session.RoadDistribution{Urban: 60, Rural: 30, Highway: 10}}},
		notifier: &spyNotifier{},
		signal:   NewSignal(online),
	}
	h.engine = New(Deps{
		Queue:    h.queue,
		Remote:   h.remote,
		Docs:     h.docs,
		Weather:  h.weather,
		Routes:   h.routes,
		Mapper:   mapper.New(nil),
		Signal:   h.signal,
		Notifier: h.notifier,
	})
	h.engine.now = func() time.Time {
		return time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)
	}
	return h
}

func captureFixture() session.Capture {
	return session.Capture{
		UserID:         "apprentice-7",
		Comment:        "rainy commute",
		ElapsedSeconds: 1800,
		Path: []session.Point{
			{Lat: 48.85, Lon: 2.35},
			{Lat: 48.86, Lon: 2.34},
		},
		Vehicle: "voiture",
	}
}

func TestSaveSessionOfflineQueuesCapture(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	id, err := h.engine.SaveSession(ctx, captureFixture())
	if err != nil {
		t.Fatalf("offline save failed: %v", err)
	}
	if id == "" {
		t.Fatalf("expected a session id")
	}

	pending, err := h.queue.Sessions(ctx)
	if err != nil {
		t.Fatalf("sessions failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected exactly one pending session, got %d", len(pending))
	}
	p := pending[0]
	if p.ID != id || p.Capture.ElapsedSeconds != 1800 || p.Capture.Vehicle != "voiture" {
		t.Fatalf("pending session fields not preserved: %+v", p)
	}
	if !p.LocationTime.Equal(p.CreatedAt.Add(-30 * time.Minute)) {
		t.Fatalf("expected location time backdated by elapsed, got %v", p.LocationTime)
	}

	reqs, err := h.queue.Requests(ctx, id)
	if err != nil {
		t.Fatalf("requests failed: %v", err)
	}
	if len(reqs) != 2 {
		t.Fatalf("expected weather and route-info requests, got %d", len(reqs))
	}
	kinds := map[queue.RequestKind]bool{}
	for _, r := range reqs {
		if r.SessionID != id {
			t.Fatalf("request not keyed to session: %+v", r)
		}
		kinds[r.Kind] = true
	}
	if !kinds[queue.RequestWeather] || !kinds[queue.RequestRouteInfo] {
		t.Fatalf("expected both request kinds, got %v", kinds)
	}

	if h.remote.createCalls() != 0 {
		t.Fatalf("offline save must not touch the remote store")
	}
	if len(h.notifier.offline) != 1 || h.notifier.offline[0] != id {
		t.Fatalf("expected saved-offline notification for %s, got %v", id, h.notifier.offline)
	}
}

func TestSaveSessionOnlineSubmitsAndMirrors(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	id, err := h.engine.SaveSession(ctx, captureFixture())
	if err != nil {
		t.Fatalf("online save failed: %v", err)
	}
	if h.remote.createCalls() != 1 {
		t.Fatalf("expected one remote submission, got %d", h.remote.createCalls())
	}
	if h.remote.createdIDs[0] != id {
		t.Fatalf("returned id should match submitted id")
	}

	rec := h.remote.created[0]
	if rec.Weather != session.WeatherRainy {
		t.Fatalf("expected enrichment folded into record, got %s", rec.Weather)
	}
	if rec.DistanceKm != 22.3 {
		t.Fatalf("expected route summary distance, got %v", rec.DistanceKm)
	}
	if rec.RoadbookID != "rb-1" {
		t.Fatalf("expected ensured roadbook id, got %q", rec.RoadbookID)
	}

	if len(h.docs.docs) != 1 {
		t.Fatalf("expected gps trace mirrored, got %d docs", len(h.docs.docs))
	}
	pending, _ := h.queue.Sessions(ctx)
	if len(pending) != 0 {
		t.Fatalf("online save must not queue, got %d pending", len(pending))
	}
	if len(h.notifier.offline) != 0 {
		t.Fatalf("unexpected offline notification")
	}
}

func TestSaveSessionFallsBackWhenRemoteFails(t *testing.T) {
	h := newHarness(t, true)
	h.remote.createErr = &remote.TransientError{Op: "submit session", Err: errors.New("connection reset")}
	ctx := context.Background()

	id, err := h.engine.SaveSession(ctx, captureFixture())
	if err != nil {
		t.Fatalf("save must not surface remote failure: %v", err)
	}

	pending, _ := h.queue.Sessions(ctx)
	if len(pending) != 1 || pending[0].ID != id {
		t.Fatalf("expected capture queued after online failure, got %+v", pending)
	}
	if len(h.notifier.offline) != 1 {
		t.Fatalf("expected saved-offline notification")
	}
}

func TestSaveSessionValidationErrorIsNotQueued(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	capture := captureFixture()
	capture.ElapsedSeconds = 1000 * 60 // 1000 minutes, out of range

	_, err := h.engine.SaveSession(ctx, capture)
	var verr *mapper.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	if h.remote.createCalls() != 0 {
		t.Fatalf("invalid record must never reach the remote store")
	}
	pending, _ := h.queue.Sessions(ctx)
	if len(pending) != 0 {
		t.Fatalf("invalid capture must not be queued, got %d", len(pending))
	}
}

func TestSaveSessionRejectsNegativeElapsed(t *testing.T) {
	h := newHarness(t, false)

	capture := captureFixture()
	capture.ElapsedSeconds = -1
	if _, err := h.engine.SaveSession(context.Background(), capture); err == nil {
		t.Fatalf("expected error for negative elapsed time")
	}
}

func TestSaveSessionSurvivesDocStoreFailure(t *testing.T) {
	h := newHarness(t, true)
	h.docs.err = errors.New("document store down")
	ctx := context.Background()

	if _, err := h.engine.SaveSession(ctx, captureFixture()); err != nil {
		t.Fatalf("doc store failure must not fail the save: %v", err)
	}
	if h.remote.createCalls() != 1 {
		t.Fatalf("expected relational submission to stand")
	}
	pending, _ := h.queue.Sessions(ctx)
	if len(pending) != 0 {
		t.Fatalf("doc store failure must not queue the session")
	}
}

func TestDrainIsIdempotent(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	id, err := h.engine.SaveSession(ctx, captureFixture())
	if err != nil {
		t.Fatalf("offline save failed: %v", err)
	}

	h.signal.Set(true)
	result, err := h.engine.Drain(ctx)
	if err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	if result.Succeeded != 1 || result.Failed != 0 {
		t.Fatalf("unexpected drain result: %+v", result)
	}
	if h.remote.createCalls() != 1 || h.remote.createdIDs[0] != id {
		t.Fatalf("expected queued session submitted under its local id")
	}
	if len(h.notifier.synced) != 1 || h.notifier.synced[0] != 1 {
		t.Fatalf("expected sync-completed notification, got %v", h.notifier.synced)
	}

	// Nothing left to resubmit.
	again, err := h.engine.Drain(ctx)
	if err != nil {
		t.Fatalf("second drain failed: %v", err)
	}
	if again.Succeeded != 0 || again.Failed != 0 {
		t.Fatalf("second drain must be empty, got %+v", again)
	}
	if h.remote.createCalls() != 1 {
		t.Fatalf("session resubmitted after successful drain")
	}

	if reqs, _ := h.queue.Requests(ctx, id); len(reqs) != 0 {
		t.Fatalf("expected enrichment requests cascade-deleted, got %d", len(reqs))
	}
}

func TestDrainCompletesMissingEnrichment(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	if _, err := h.engine.SaveSession(ctx, captureFixture()); err != nil {
		t.Fatalf("offline save failed: %v", err)
	}
	pendingBefore, _ := h.queue.Sessions(ctx)

	h.signal.Set(true)
	if _, err := h.engine.Drain(ctx); err != nil {
		t.Fatalf("drain failed: %v", err)
	}

	if h.weather.calls != 1 {
		t.Fatalf("expected one weather backfill, got %d", h.weather.calls)
	}
	if !h.weather.gotAt.Equal(pendingBefore[0].LocationTime) {
		t.Fatalf("weather backfill must use the stored location time, got %v", h.weather.gotAt)
	}
	if h.weather.gotLoc != (session.Point{Lat: 48.85, Lon: 2.35}) {
		t.Fatalf("weather backfill must use the first path point, got %+v", h.weather.gotLoc)
	}

	rec := h.remote.created[0]
	if rec.Weather != session.WeatherRainy {
		t.Fatalf("expected backfilled weather in submitted record, got %s", rec.Weather)
	}
	if len(rec.RoadTypes) != 2 {
		t.Fatalf("expected backfilled road types, got %v", rec.RoadTypes)
	}
}

func TestDrainKeepsFailedSessionQueued(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	id, err := h.engine.SaveSession(ctx, captureFixture())
	if err != nil {
		t.Fatalf("offline save failed: %v", err)
	}

	h.remote.createErr = &remote.TransientError{Op: "submit session", Err: errors.New("503")}
	h.signal.Set(true)
	result, err := h.engine.Drain(ctx)
	if err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	if result.Succeeded != 0 || result.Failed != 1 {
		t.Fatalf("unexpected drain result: %+v", result)
	}

	pending, _ := h.queue.Sessions(ctx)
	if len(pending) != 1 || pending[0].ID != id {
		t.Fatalf("failed session must stay queued, got %+v", pending)
	}
	if pending[0].LastError == "" {
		t.Fatalf("expected failure reason recorded")
	}
	// Enrichment already folded in stays folded for the next attempt.
	if pending[0].Capture.Weather == nil {
		t.Fatalf("expected partially enriched session written back")
	}
	if len(h.notifier.synced) != 0 {
		t.Fatalf("failed drain must not notify completion")
	}

	// Next drain succeeds without re-fetching enrichment.
	weatherCalls := h.weather.calls
	h.remote.createErr = nil
	result, err = h.engine.Drain(ctx)
	if err != nil || result.Succeeded != 1 {
		t.Fatalf("retry drain failed: %+v err=%v", result, err)
	}
	if h.weather.calls != weatherCalls {
		t.Fatalf("expected no duplicate enrichment fetch on retry")
	}
}

func TestDrainReentrancyGuard(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	if _, err := h.engine.SaveSession(ctx, captureFixture()); err != nil {
		t.Fatalf("offline save failed: %v", err)
	}

	h.signal.Set(true)
	h.remote.block = make(chan struct{})

	firstDone := make(chan DrainResult, 1)
	go func() {
		result, _ := h.engine.Drain(ctx)
		firstDone <- result
	}()

	// Wait until the first drain is inside the remote call.
	deadline := time.After(2 * time.Second)
	for !h.engine.draining.Load() {
		select {
		case <-deadline:
			t.Fatalf("first drain never started")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	second, err := h.engine.Drain(ctx)
	if err != nil {
		t.Fatalf("reentrant drain errored: %v", err)
	}
	if second.Succeeded != 0 || second.Failed != 0 {
		t.Fatalf("reentrant drain must be a zero-count no-op, got %+v", second)
	}

	close(h.remote.block)
	first := <-firstDone
	if first.Succeeded != 1 {
		t.Fatalf("original drain should complete, got %+v", first)
	}
}
