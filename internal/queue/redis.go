package queue

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const (
	sessionsKey = "roadlog:pending:sessions"
	requestsKey = "roadlog:pending:requests"
)

// RedisStore keeps the pending collections as two JSON documents under fixed
// keys. The engine is the only writer, so read-modify-write per operation is
// safe; SaveCapture and RemoveSession write both documents in one MULTI/EXEC.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) SaveCapture(ctx context.Context, p PendingSession, reqs []PendingRequest) error {
	if !validSession(p) {
		return fmt.Errorf("refusing to persist pending session without id or user")
	}

	sessions, err := s.readSessions(ctx)
	if err != nil {
		return err
	}
	requests, err := s.readRequests(ctx)
	if err != nil {
		return err
	}

	sessions[p.ID] = p
	for _, r := range reqs {
		if !validRequest(r) {
			return fmt.Errorf("refusing to persist malformed enrichment request session=%s", p.ID)
		}
		requests[r.ID] = r
	}

	sessionsDoc, err := json.Marshal(sessions)
	if err != nil {
		return err
	}
	requestsDoc, err := json.Marshal(requests)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, sessionsKey, sessionsDoc, 0)
	pipe.Set(ctx, requestsKey, requestsDoc, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("persist pending capture: %w", err)
	}
	return nil
}

func (s *RedisStore) SaveSession(ctx context.Context, p PendingSession) error {
	if !validSession(p) {
		return fmt.Errorf("refusing to persist pending session without id or user")
	}

	sessions, err := s.readSessions(ctx)
	if err != nil {
		return err
	}
	sessions[p.ID] = p
	return s.writeDoc(ctx, sessionsKey, sessions)
}

func (s *RedisStore) Sessions(ctx context.Context) ([]PendingSession, error) {
	sessions, err := s.readSessions(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]PendingSession, 0, len(sessions))
	for _, p := range sessions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *RedisStore) Requests(ctx context.Context, sessionID string) ([]PendingRequest, error) {
	requests, err := s.readRequests(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]PendingRequest, 0)
	for _, r := range requests {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *RedisStore) RemoveSession(ctx context.Context, sessionID string) error {
	sessions, err := s.readSessions(ctx)
	if err != nil {
		return err
	}
	requests, err := s.readRequests(ctx)
	if err != nil {
		return err
	}

	delete(sessions, sessionID)
	for id, r := range requests {
		if r.SessionID == sessionID {
			delete(requests, id)
		}
	}

	sessionsDoc, err := json.Marshal(sessions)
	if err != nil {
		return err
	}
	requestsDoc, err := json.Marshal(requests)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, sessionsKey, sessionsDoc, 0)
	pipe.Set(ctx, requestsKey, requestsDoc, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("remove pending session: %w", err)
	}
	return nil
}

func (s *RedisStore) RemoveRequest(ctx context.Context, requestID string) error {
	requests, err := s.readRequests(ctx)
	if err != nil {
		return err
	}
	delete(requests, requestID)
	return s.writeDoc(ctx, requestsKey, requests)
}

func (s *RedisStore) MarkFailure(ctx context.Context, sessionID, reason string) error {
	sessions, err := s.readSessions(ctx)
	if err != nil {
		return err
	}

	p, ok := sessions[sessionID]
	if !ok {
		return nil
	}
	p.LastError = reason
	p.LastErrorAt = time.Now().UTC()
	sessions[sessionID] = p
	return s.writeDoc(ctx, sessionsKey, sessions)
}

func (s *RedisStore) Health(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) readSessions(ctx context.Context) (map[string]PendingSession, error) {
	out := map[string]PendingSession{}
	entries, err := s.readDoc(ctx, sessionsKey)
	if err != nil {
		return nil, err
	}

	for id, raw := range entries {
		var p PendingSession
		if err := json.Unmarshal(raw, &p); err != nil || !validSession(p) {
			log.Printf("dropping malformed pending session id=%s err=%v", id, err)
			continue
		}
		out[p.ID] = p
	}
	return out, nil
}

func (s *RedisStore) readRequests(ctx context.Context) (map[string]PendingRequest, error) {
	out := map[string]PendingRequest{}
	entries, err := s.readDoc(ctx, requestsKey)
	if err != nil {
		return nil, err
	}

	for id, raw := range entries {
		var r PendingRequest
		if err := json.Unmarshal(raw, &r); err != nil || !validRequest(r) {
			log.Printf("dropping malformed enrichment request id=%s err=%v", id, err)
			continue
		}
		out[r.ID] = r
	}
	return out, nil
}

// readDoc loads one collection document. A document that fails to parse is
// reset to empty so one bad write cannot poison every later read.
func (s *RedisStore) readDoc(ctx context.Context, key string) (map[string]json.RawMessage, error) {
	raw, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return map[string]json.RawMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}

	entries := map[string]json.RawMessage{}
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		log.Printf("pending collection unreadable, resetting key=%s err=%v", key, err)
		if err := s.client.Set(ctx, key, "{}", 0).Err(); err != nil {
			log.Printf("reset of corrupted collection failed key=%s err=%v", key, err)
		}
		return map[string]json.RawMessage{}, nil
	}
	return entries, nil
}

func (s *RedisStore) writeDoc(ctx context.Context, key string, doc any) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, key, payload, 0).Err(); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}
