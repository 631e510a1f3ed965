package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"roadlog/services/sync/internal/session"
)

// Postgres implements SessionStore directly against the logbook database,
// for deployments where the sync daemon runs next to it and the HTTP API
// would be a detour. Same contract, same upsert-on-id idempotence.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, err
	}

	return &Postgres{pool: pool}, nil
}

func (p *Postgres) EnsureRoadbook(ctx context.Context, userID string) (string, error) {
	var id string
	err := p.pool.QueryRow(
		ctx,
		`SELECT id FROM roadbooks
		 WHERE apprentice_id = $1 AND status = 'active'
		 ORDER BY created_at DESC
		 LIMIT 1`,
		userID,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", &TransientError{Op: "list roadbooks", Err: err}
	}

	id = uuid.NewString()
	err = p.pool.QueryRow(
		ctx,
		`INSERT INTO roadbooks (id, apprentice_id, status)
		 VALUES ($1, $2, 'active')
		 RETURNING id`,
		id,
		userID,
	).Scan(&id)
	if err != nil {
		return "", &TransientError{Op: "create roadbook", Err: err}
	}
	return id, nil
}

func (p *Postgres) CreateSession(ctx context.Context, roadbookID, sessionID string, rec session.Record) (Created, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	stored := Created{}
	err := p.pool.QueryRow(
		ctx,
		`INSERT INTO sessions (
		   id, roadbook_id, apprentice_id, title, description,
		   date, start_time, end_time, duration_min,
		   start_location, end_location, distance_km,
		   weather, daylight, session_type, road_types, waypoints,
		   notes, status
		 )
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		 ON CONFLICT (id) DO UPDATE
		 SET roadbook_id = EXCLUDED.roadbook_id,
		     title = EXCLUDED.title,
		     description = EXCLUDED.description,
		     date = EXCLUDED.date,
		     start_time = EXCLUDED.start_time,
		     end_time = EXCLUDED.end_time,
		     duration_min = EXCLUDED.duration_min,
		     start_location = EXCLUDED.start_location,
		     end_location = EXCLUDED.end_location,
		     distance_km = EXCLUDED.distance_km,
		     weather = EXCLUDED.weather,
		     daylight = EXCLUDED.daylight,
		     session_type = EXCLUDED.session_type,
		     road_types = EXCLUDED.road_types,
		     waypoints = EXCLUDED.waypoints,
		     notes = EXCLUDED.notes,
		     status = EXCLUDED.status
		 RETURNING id, roadbook_id`,
		sessionID,
		roadbookID,
		rec.ApprenticeID,
		rec.Title,
		rec.Description,
		rec.Date,
		rec.StartTime,
		rec.EndTime,
		rec.DurationMin,
		rec.StartLocation,
		rec.EndLocation,
		rec.DistanceKm,
		string(rec.Weather),
		string(rec.Daylight),
		string(rec.Type),
		rec.RoadTypes,
		rec.Waypoints,
		rec.Notes,
		string(rec.Status),
	).Scan(&stored.ID, &stored.RoadbookID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Created{}, &PermanentError{Op: "submit session", Status: 404}
		}
		return Created{}, &TransientError{Op: "submit session", Err: fmt.Errorf("insert session: %w", err)}
	}

	return stored, nil
}

func (p *Postgres) Health(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
