package mapper

import (
	"strings"
	"time"

	"roadlog/services/sync/internal/session"
)

// windyThresholdKmh makes high wind speed count as WINDY even when the
// condition text never mentions wind.
const windyThresholdKmh = 20.0

// lowVisibilityKm forces DAWN_DUSK regardless of the hour.
const lowVisibilityKm = 2.0

type weatherRule struct {
	category session.WeatherCategory
	keywords []string
}

// weatherRules is an ordered priority list; the first matching rule wins.
// Precipitation outranks cloud cover so that mixed condition strings such as
// "Partly cloudy with light rain showers" classify by the dominant hazard.
var weatherRules = []weatherRule{
	{session.WeatherRainy, []string{"rain", "shower", "drizzle"}},
	{session.WeatherSnowy, []string{"snow", "blizzard", "sleet"}},
	{session.WeatherFoggy, []string{"fog", "mist", "haze"}},
	{session.WeatherWindy, []string{"wind", "gale"}},
	{session.WeatherCloudy, []string{"cloud", "partial", "overcast"}},
	{session.WeatherClear, []string{"clear", "sun"}},
}

func deriveWeatherCategory(w *session.Weather) session.WeatherCategory {
	if w == nil {
		return session.WeatherOther
	}

	conditions := strings.ToLower(w.Conditions)
	for _, rule := range weatherRules {
		for _, keyword := range rule.keywords {
			if strings.Contains(conditions, keyword) {
				return rule.category
			}
		}
		if rule.category == session.WeatherWindy && w.WindSpeedKmh > windyThresholdKmh {
			return session.WeatherWindy
		}
	}
	return session.WeatherOther
}

func deriveDaylightCategory(w *session.Weather, at time.Time) session.DaylightCategory {
	if w != nil && w.VisibilityKm > 0 && w.VisibilityKm < lowVisibilityKm {
		return session.DaylightDawnDusk
	}

	hour := at.Hour()
	switch {
	case hour >= 7 && hour < 20:
		return session.DaylightDay
	case (hour >= 5 && hour < 7) || (hour >= 20 && hour < 22):
		return session.DaylightDawnDusk
	default:
		return session.DaylightNight
	}
}

// roadTypeShareThreshold is the percentage a road class must exceed to be
// counted; several classes can apply to one session.
const roadTypeShareThreshold = 20.0

func deriveRoadTypes(route *session.RouteInfo) []session.RoadType {
	if route == nil {
		return []session.RoadType{session.RoadOther}
	}

	types := make([]session.RoadType, 0, 3)
	if route.Distribution.Urban > roadTypeShareThreshold {
		types = append(types, session.RoadUrban)
	}
	if route.Distribution.Rural > roadTypeShareThreshold {
		types = append(types, session.RoadRural)
	}
	if route.Distribution.Highway > roadTypeShareThreshold {
		types = append(types, session.RoadHighway)
	}
	if len(types) == 0 {
		return []session.RoadType{session.RoadOther}
	}
	return types
}
