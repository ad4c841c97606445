package journey

import (
	"math"
)

// QuestionType tags the comparison strategy used when scoring a quiz answer.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionTrueFalse      QuestionType = "true_false"
	QuestionFreeText       QuestionType = "free_text"
)

const earthRadiusM = 6371000.0

type Coordinate struct {
	Lat float64 `json:"lat" validate:"latitude"`
	Lon float64 `json:"lon" validate:"longitude"`
}

// DistanceTo returns the great-circle (haversine) distance to `o` in meters.
func (c Coordinate) DistanceTo(o Coordinate) float64 {
	dLat := (o.Lat - c.Lat) * math.Pi / 180
	dLon := (o.Lon - c.Lon) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(c.Lat*math.Pi/180)*math.Cos(o.Lat*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusM * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// Journey is an ordered set of geolocated steps. Authored elsewhere;
// immutable from the engine's perspective.
type Journey struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	StepCount int    `json:"step_count"`
}

// Step is a single waypoint within a journey. OrderIndex is unique per journey;
// RadiusM is always > 0.
type Step struct {
	ID         string     `json:"id"`
	JourneyID  string     `json:"journey_id"`
	OrderIndex int        `json:"order_index"`
	Coordinate Coordinate `json:"coordinate"`
	RadiusM    float64    `json:"radius_m"`
	Points     int        `json:"points"`
}

type QuizQuestion struct {
	ID            string       `json:"id"`
	StepID        string       `json:"step_id"`
	Type          QuestionType `json:"type"`
	Prompt        string       `json:"prompt"`
	CorrectAnswer string       `json:"-"`
	Options       []string     `json:"options,omitempty"`
	BonusPoints   int          `json:"bonus_points"`
}
