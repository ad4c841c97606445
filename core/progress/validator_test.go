package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayquest/backend/core"
	"github.com/wayquest/backend/core/journey"
)

// metersPerLatDegree under the engine's earth radius.
const metersPerLatDegree = 111194.92664455873

// northOf returns a coordinate `meters` due north of c.
func northOf(c journey.Coordinate, meters float64) *journey.Coordinate {
	return &journey.Coordinate{Lat: c.Lat + meters/metersPerLatDegree, Lon: c.Lon}
}

func TestValidateStep(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	maxAge := 5 * time.Minute
	anchor := journey.Coordinate{Lat: 48.8584, Lon: 2.2945}
	step := journey.Step{
		ID:         "step1",
		JourneyID:  "jny1",
		OrderIndex: 1,
		Coordinate: anchor,
		RadiusM:    50,
		Points:     10,
	}

	t.Run("geofence within radius", func(t *testing.T) {
		ev := Evidence{Method: MethodGeofence, Coordinate: northOf(anchor, 30), CapturedAt: now}
		acc, err := ValidateStep(step, ev, now, maxAge)
		require.NoError(t, err)
		assert.Equal(t, MethodGeofence, acc.Method)
		require.True(t, acc.DistanceM.Valid)
		assert.InDelta(t, 30, acc.DistanceM.Float64, 0.1)
	})

	t.Run("geofence just inside boundary", func(t *testing.T) {
		ev := Evidence{Method: MethodGeofence, Coordinate: northOf(anchor, 49.9), CapturedAt: now}
		_, err := ValidateStep(step, ev, now, maxAge)
		assert.NoError(t, err)
	})

	t.Run("geofence exactly at the boundary is accepted", func(t *testing.T) {
		coord := northOf(anchor, 50)
		boundaryStep := step
		boundaryStep.RadiusM = coord.DistanceTo(anchor) // radius == measured distance

		ev := Evidence{Method: MethodGeofence, Coordinate: coord, CapturedAt: now}
		acc, err := ValidateStep(boundaryStep, ev, now, maxAge)
		require.NoError(t, err)
		assert.Equal(t, boundaryStep.RadiusM, acc.DistanceM.Float64)
	})

	t.Run("geofence without a coordinate", func(t *testing.T) {
		ev := Evidence{Method: MethodGeofence, CapturedAt: now}
		_, err := ValidateStep(step, ev, now, maxAge)
		var vErr *core.ValidationError
		require.ErrorAs(t, err, &vErr)
		require.Len(t, vErr.Fields, 1)
		assert.Equal(t, "evidence.coordinate", vErr.Fields[0].Field)
	})

	t.Run("geofence outside radius", func(t *testing.T) {
		ev := Evidence{Method: MethodGeofence, Coordinate: northOf(anchor, 60), CapturedAt: now}
		_, err := ValidateStep(step, ev, now, maxAge)
		var oor *OutOfRangeError
		require.ErrorAs(t, err, &oor)
		assert.InDelta(t, 60, oor.DistanceM, 0.1)
		assert.Equal(t, 50.0, oor.RadiusM)
	})

	t.Run("geofence at the exact step coordinate", func(t *testing.T) {
		ev := Evidence{Method: MethodGeofence, Coordinate: &anchor, CapturedAt: now}
		acc, err := ValidateStep(step, ev, now, maxAge)
		require.NoError(t, err)
		assert.Zero(t, acc.DistanceM.Float64)
	})

	t.Run("stale evidence rejected regardless of method", func(t *testing.T) {
		captured := now.Add(-maxAge - time.Second)
		for _, method := range []ValidationMethod{MethodGeofence, MethodCode, MethodManualOverride} {
			ev := Evidence{Method: method, Coordinate: &anchor, CapturedAt: captured}
			_, err := ValidateStep(step, ev, now, maxAge)
			assert.ErrorIs(t, err, ErrStaleEvidence, "method %s", method)
		}
	})

	t.Run("evidence exactly at max age accepted", func(t *testing.T) {
		ev := Evidence{Method: MethodCode, Code: "WQ-123", CapturedAt: now.Add(-maxAge)}
		_, err := ValidateStep(step, ev, now, maxAge)
		assert.NoError(t, err)
	})

	t.Run("code method skips the distance check", func(t *testing.T) {
		ev := Evidence{Method: MethodCode, Code: "WQ-123", CapturedAt: now}
		acc, err := ValidateStep(step, ev, now, maxAge)
		require.NoError(t, err)
		assert.Equal(t, MethodCode, acc.Method)
		assert.False(t, acc.DistanceM.Valid)
	})

	t.Run("manual override accepted as-is", func(t *testing.T) {
		ev := Evidence{Method: MethodManualOverride, CapturedAt: now}
		acc, err := ValidateStep(step, ev, now, maxAge)
		require.NoError(t, err)
		assert.Equal(t, MethodManualOverride, acc.Method)
	})
}
