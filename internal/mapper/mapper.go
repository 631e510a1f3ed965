package mapper

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"roadlog/services/sync/internal/session"
)

// UnknownLocation substitutes a reverse-geocode result that failed or was
// never attempted. Mapping must not fail because a label is missing.
const UnknownLocation = "Unknown location"

// Geocoder resolves a coordinate to a human-readable label.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, p session.Point) (string, error)
}

// Input is everything Map needs to produce a canonical record.
type Input struct {
	Capture    session.Capture
	RoadbookID string
	// EndedAt is the wall-clock end of the trip. The zero value means now.
	EndedAt time.Time
}

// Mapper derives canonical session records from raw captures. It owns no
// state beyond its geocoder; every derivation is deterministic for a fixed
// end time.
type Mapper struct {
	geocoder Geocoder
	now      func() time.Time
}

func New(geocoder Geocoder) *Mapper {
	return &Mapper{geocoder: geocoder, now: time.Now}
}

// Map builds and validates the canonical record. It returns a
// *ValidationError when the derived record violates any rule; such a record
// must never be submitted or queued.
func (m *Mapper) Map(ctx context.Context, in Input) (session.Record, error) {
	capture := in.Capture

	end := in.EndedAt
	if end.IsZero() {
		end = m.now()
	}
	start := end.Add(-time.Duration(capture.ElapsedSeconds) * time.Second)

	rec := session.Record{
		Date:         start,
		StartTime:    start,
		EndTime:      end,
		DurationMin:  capture.ElapsedSeconds / 60,
		DistanceKm:   deriveDistance(capture),
		Weather:      deriveWeatherCategory(capture.Weather),
		Daylight:     deriveDaylightCategory(capture.Weather, end),
		RoadTypes:    deriveRoadTypes(capture.Route),
		Waypoints:    capture.Path,
		Type:         session.TypePractice,
		Status:       session.StatusPending,
		ApprenticeID: capture.UserID,
		RoadbookID:   in.RoadbookID,
		Notes:        capture.Comment,
	}
	rec.StartLocation, rec.EndLocation = m.locationLabels(ctx, capture.Path)
	rec.Title = fmt.Sprintf("Trip on %s", start.Format("Jan 2, 2006"))
	rec.Description = describe(capture, rec.DistanceKm)

	if err := validate(rec); err != nil {
		return session.Record{}, err
	}
	return rec, nil
}

// deriveDistance prefers the route summary; with no summary and at least two
// points it falls back to the geometric chain distance.
func deriveDistance(capture session.Capture) float64 {
	if capture.Route != nil && capture.Route.Summary.TotalDistanceKm > 0 {
		return capture.Route.Summary.TotalDistanceKm
	}
	if len(capture.Path) >= 2 {
		return session.PathDistanceKm(capture.Path)
	}
	return 0
}

func (m *Mapper) locationLabels(ctx context.Context, path []session.Point) (string, string) {
	if len(path) == 0 {
		return UnknownLocation, UnknownLocation
	}
	start := m.geocodeOrUnknown(ctx, path[0])
	end := m.geocodeOrUnknown(ctx, path[len(path)-1])
	return start, end
}

func (m *Mapper) geocodeOrUnknown(ctx context.Context, p session.Point) string {
	if m.geocoder == nil {
		return UnknownLocation
	}
	label, err := m.geocoder.ReverseGeocode(ctx, p)
	if err != nil || strings.TrimSpace(label) == "" {
		if err != nil {
			log.Printf("reverse geocode failed lat=%v lon=%v err=%v", p.Lat, p.Lon, err)
		}
		return UnknownLocation
	}
	return label
}

// describe builds the human-readable summary, omitting any section whose
// source data is absent.
func describe(capture session.Capture, distanceKm float64) string {
	sections := make([]string, 0, 3)

	if capture.Weather != nil && capture.Weather.Conditions != "" {
		sections = append(sections, fmt.Sprintf(
			"Weather: %s, %.0f°C",
			strings.ToLower(capture.Weather.Conditions),
			capture.Weather.TemperatureC,
		))
	}

	if distanceKm > 0 {
		section := fmt.Sprintf("Distance %.1f km", distanceKm)
		if capture.Route != nil && capture.Route.AverageSpeedKmh > 0 {
			section += fmt.Sprintf(" at %.0f km/h average", capture.Route.AverageSpeedKmh)
		}
		sections = append(sections, section)
	}

	if capture.Route != nil {
		dist := capture.Route.Distribution
		if dist.Urban+dist.Rural+dist.Highway > 0 {
			sections = append(sections, fmt.Sprintf(
				"Driving mix: %.0f%% urban, %.0f%% rural, %.0f%% highway",
				dist.Urban, dist.Rural, dist.Highway,
			))
		}
	}

	return strings.Join(sections, ". ")
}
