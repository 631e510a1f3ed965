package session

import "time"

// Point is a single GPS fix, chronological within a path.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Weather is a normalized snapshot from the weather upstream.
type Weather struct {
	TemperatureC float64 `json:"temperatureC"`
	Conditions   string  `json:"conditions"`
	WindSpeedKmh float64 `json:"windSpeedKmh"`
	VisibilityKm float64 `json:"visibilityKm"`
	HumidityPct  float64 `json:"humidityPct"`
	PressureHpa  float64 `json:"pressureHpa"`
}

// RouteInfo is the route classification returned by the route-info upstream.
type RouteInfo struct {
	Summary         RouteSummary     `json:"summary"`
	Distribution    RoadDistribution `json:"urbanRuralDistribution"`
	AverageSpeedKmh float64          `json:"averageSpeedKmh"`
}

type RouteSummary struct {
	TotalDistanceKm      float64 `json:"totalDistanceKm"`
	TotalDurationMinutes float64 `json:"totalDurationMinutes"`
	TrafficDelayMinutes  float64 `json:"trafficDelayMinutes"`
}

// RoadDistribution holds percentage shares, 0-100.
type RoadDistribution struct {
	Urban   float64 `json:"urban"`
	Rural   float64 `json:"rural"`
	Highway float64 `json:"highway"`
}

// Capture is a finished recording handed over by the capture UI. It is
// consumed once by the sync engine and never persisted in this shape.
type Capture struct {
	UserID         string     `json:"userId"`
	Comment        string     `json:"comment"`
	ElapsedSeconds int        `json:"elapsedSeconds"`
	Path           []Point    `json:"path"`
	Weather        *Weather   `json:"weather,omitempty"`
	Route          *RouteInfo `json:"routeInfo,omitempty"`
	Vehicle        string     `json:"vehicle,omitempty"`
}

type WeatherCategory string

const (
	WeatherClear  WeatherCategory = "CLEAR"
	WeatherCloudy WeatherCategory = "CLOUDY"
	WeatherRainy  WeatherCategory = "RAINY"
	WeatherSnowy  WeatherCategory = "SNOWY"
	WeatherFoggy  WeatherCategory = "FOGGY"
	WeatherWindy  WeatherCategory = "WINDY"
	WeatherOther  WeatherCategory = "OTHER"
)

type DaylightCategory string

const (
	DaylightDay      DaylightCategory = "DAY"
	DaylightNight    DaylightCategory = "NIGHT"
	DaylightDawnDusk DaylightCategory = "DAWN_DUSK"
)

type RoadType string

const (
	RoadUrban   RoadType = "URBAN"
	RoadRural   RoadType = "RURAL"
	RoadHighway RoadType = "HIGHWAY"
	RoadOther   RoadType = "OTHER"
)

type Type string

const (
	TypePractice Type = "practice"
	TypeExam     Type = "exam"
	TypeLesson   Type = "lesson"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusValidated Status = "validated"
	StatusRejected  Status = "rejected"
)

// Record is the canonical session shape accepted by the remote relational
// store. It must pass Validate before any network call.
type Record struct {
	Title         string           `json:"title"`
	Description   string           `json:"description"`
	Date          time.Time        `json:"date"`
	StartTime     time.Time        `json:"startTime"`
	EndTime       time.Time        `json:"endTime"`
	DurationMin   int              `json:"duration"`
	StartLocation string           `json:"startLocation"`
	EndLocation   string           `json:"endLocation"`
	DistanceKm    float64          `json:"distance"`
	Weather       WeatherCategory  `json:"weather"`
	Daylight      DaylightCategory `json:"daylight"`
	Type          Type             `json:"type"`
	RoadTypes     []RoadType       `json:"roadTypes"`
	Waypoints     []Point          `json:"waypoints"`
	ApprenticeID  string           `json:"apprenticeId"`
	RoadbookID    string           `json:"roadbookId"`
	Notes         string           `json:"notes"`
	Status        Status           `json:"status"`
}

func ValidWeatherCategory(c WeatherCategory) bool {
	switch c {
	case WeatherClear, WeatherCloudy, WeatherRainy, WeatherSnowy, WeatherFoggy, WeatherWindy, WeatherOther:
		return true
	}
	return false
}

func ValidDaylightCategory(c DaylightCategory) bool {
	switch c {
	case DaylightDay, DaylightNight, DaylightDawnDusk:
		return true
	}
	return false
}

func ValidRoadType(c RoadType) bool {
	switch c {
	case RoadUrban, RoadRural, RoadHighway, RoadOther:
		return true
	}
	return false
}
