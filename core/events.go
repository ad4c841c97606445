package core

import "time"

// Event names consumed by the analytics collector, the notification service
// and the reward accrual gateway.
const (
	EventCompletionRecorded = "completion_recorded"
	EventJourneyCompleted   = "journey_completed"
)

type ProgressEvent struct {
	Name        string      `json:"name"`
	UserID      string      `json:"user_id"`
	JourneyID   string      `json:"journey_id"`
	StepID      string      `json:"step_id,omitempty"`
	PointsDelta int         `json:"points_delta"`
	Progress    interface{} `json:"progress"`
	OccurredAt  time.Time   `json:"occurred_at"` // UTC
}

// EventService is any service that can deliver progress events to external consumers.
type EventService interface {
	// PublishEvents publishes events concurrently; delivery is best-effort,
	// failures are logged and never fail the originating request.
	PublishEvents(events ...*ProgressEvent)
}
