package progress

import (
	"github.com/volatiletech/null/v8"

	"github.com/wayquest/backend/core/journey"
)

// BuildProgress derives the aggregate for a (user, journey) pair directly from
// the completion ledger. This is the single definition of what the aggregate
// must look like: the live write path and the repair path both converge on it.
func BuildProgress(userID, journeyID string, steps []journey.Step, comps []StepCompletion) JourneyProgress {
	prog := JourneyProgress{
		UserID:    userID,
		JourneyID: journeyID,
		Status:    StatusNotStarted,
	}
	if len(comps) == 0 {
		return prog
	}

	done := make(map[string]bool, len(comps))
	started := comps[0].CompletedAt
	last := comps[0].CompletedAt
	for _, c := range comps {
		done[c.StepID] = true
		prog.TotalPoints += c.PointsEarned
		if c.CompletedAt.Before(started) {
			started = c.CompletedAt
		}
		if c.CompletedAt.After(last) {
			last = c.CompletedAt
		}
	}
	prog.Status = StatusInProgress
	prog.StartedAt = started

	// advisory pointer: the lowest-order step not yet completed. Steps may be
	// visited in any physical order; the pointer never gates acceptance.
	var remaining int
	pointer := null.Int64{}
	for _, s := range steps {
		if done[s.ID] {
			continue
		}
		remaining++
		if !pointer.Valid || int64(s.OrderIndex) < pointer.Int64 {
			pointer = null.Int64From(int64(s.OrderIndex))
		}
	}
	prog.CurrentStepOrder = pointer

	if remaining == 0 && len(steps) > 0 {
		prog.Status = StatusCompleted
		prog.CompletedAt = null.TimeFrom(last)
	}
	return prog
}
