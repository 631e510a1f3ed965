package mapper

import (
	"fmt"
	"strings"

	"roadlog/services/sync/internal/session"
)

const (
	minDurationMin = 1
	maxDurationMin = 720
	minDistanceKm  = 0.1
	maxDistanceKm  = 10000.0
)

// ValidationError reports every rule a derived record violates. A record
// carrying such an error is a capture bug, not a transient condition: it is
// neither submitted nor queued.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return "invalid session record: " + strings.Join(e.Violations, "; ")
}

func validate(rec session.Record) error {
	violations := []string{}

	if rec.Date.IsZero() {
		violations = append(violations, "date is required")
	}
	if rec.StartTime.IsZero() {
		violations = append(violations, "start time is required")
	}
	if strings.TrimSpace(rec.RoadbookID) == "" {
		violations = append(violations, "roadbookId is required")
	}
	if strings.TrimSpace(rec.ApprenticeID) == "" {
		violations = append(violations, "apprenticeId is required")
	}

	if rec.DurationMin < minDurationMin || rec.DurationMin > maxDurationMin {
		violations = append(violations, fmt.Sprintf(
			"duration %d min outside [%d, %d]", rec.DurationMin, minDurationMin, maxDurationMin))
	}
	// A zero distance is a valid empty-path session; only a positive distance
	// is held to the sane bounds.
	if rec.DistanceKm != 0 && (rec.DistanceKm < minDistanceKm || rec.DistanceKm > maxDistanceKm) {
		violations = append(violations, fmt.Sprintf(
			"distance %.2f km outside [%.1f, %.0f]", rec.DistanceKm, minDistanceKm, maxDistanceKm))
	}

	if !session.ValidWeatherCategory(rec.Weather) {
		violations = append(violations, fmt.Sprintf("unknown weather category %q", rec.Weather))
	}
	if !session.ValidDaylightCategory(rec.Daylight) {
		violations = append(violations, fmt.Sprintf("unknown daylight category %q", rec.Daylight))
	}
	if rec.Type != session.TypePractice && rec.Type != session.TypeExam && rec.Type != session.TypeLesson {
		violations = append(violations, fmt.Sprintf("unknown session type %q", rec.Type))
	}
	if rec.Status != session.StatusPending && rec.Status != session.StatusValidated && rec.Status != session.StatusRejected {
		violations = append(violations, fmt.Sprintf("unknown status %q", rec.Status))
	}
	for _, rt := range rec.RoadTypes {
		if !session.ValidRoadType(rt) {
			violations = append(violations, fmt.Sprintf("unknown road type %q", rt))
		}
	}

	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}
