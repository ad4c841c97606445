package progress

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/wayquest/backend/core"
	"github.com/wayquest/backend/core/journey"
)

// ValidateStep decides whether the submitted evidence proves presence at the
// step. Pure decision function: no side effects, safe to call concurrently.
// Idempotency for repeated submissions is handled upstream by the service,
// which short-circuits to the recorded outcome when a completion already exists.
//
// Geofence evidence is accepted iff the great-circle distance between the fix
// and the step's registered coordinate is within the step's radius, boundary
// inclusive. Evidence captured longer than maxAge before `now` is rejected as
// stale to prevent validating against a cached location fix.
func ValidateStep(step journey.Step, ev Evidence, now time.Time, maxAge time.Duration) (Acceptance, error) {
	if ev.CapturedAt.Before(now.Add(-maxAge)) {
		return Acceptance{}, ErrStaleEvidence
	}

	switch ev.Method {
	case MethodGeofence:
		if ev.Coordinate == nil {
			return Acceptance{}, core.NewValidationError(nil, core.FieldError{
				Field: "evidence.coordinate",
				Error: "a coordinate is required for geofence validation",
			})
		}
		dist := ev.Coordinate.DistanceTo(step.Coordinate)
		if dist > step.RadiusM {
			return Acceptance{}, &OutOfRangeError{DistanceM: dist, RadiusM: step.RadiusM}
		}
		return Acceptance{Method: MethodGeofence, DistanceM: null.Float64From(dist)}, nil

	default:
		// scanned code or operator override: physical presence was established
		// out of band, nothing to measure.
		return Acceptance{Method: ev.Method}, nil
	}
}
