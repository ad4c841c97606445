package progress

import (
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/wayquest/backend/core"
	"github.com/wayquest/backend/core/journey"
)

// ValidationMethod records how a visitor's presence at a step was established.
type ValidationMethod string

const (
	MethodGeofence       ValidationMethod = "geofence"
	MethodCode           ValidationMethod = "code"
	MethodManualOverride ValidationMethod = "manual_override"
)

// Status of a user's progress on a journey. The only valid transitions are
// not_started -> in_progress -> completed, and completed -> not_started via
// an explicit reset-for-replay.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Evidence is what the client submits to prove presence at a step: a live
// coordinate fix for geofence validation, or a non-geofence method (a scanned
// code, an operator override).
type Evidence struct {
	Method     ValidationMethod    `json:"method" validate:"required,oneof=geofence code manual_override"`
	Coordinate *journey.Coordinate `json:"coordinate,omitempty" validate:"omitempty"`
	Code       string              `json:"code,omitempty"`
	CapturedAt time.Time           `json:"captured_at" validate:"required"` // client capture time, UTC
}

type QuizResponse struct {
	QuestionID string `json:"question_id" validate:"required"`
	Answer     string `json:"answer" validate:"required"`
}

// SubmitStepCompletion is the inbound payload of the submit operation.
// UserID is an opaque identity supplied by the caller.
type SubmitStepCompletion struct {
	UserID    string         `json:"user_id" validate:"required"`
	JourneyID string         `json:"-"`
	StepID    string         `json:"-"`
	Evidence  Evidence       `json:"evidence" validate:"required"`
	Responses []QuizResponse `json:"quiz_responses,omitempty" validate:"omitempty,dive"`
}

func (s *SubmitStepCompletion) Validate(validate *validator.Validate, _ ut.Translator) error {
	s.UserID = core.CleanString(s.UserID)
	s.Evidence.Code = core.CleanString(s.Evidence.Code)
	if err := validate.Struct(s); err != nil {
		return err
	}
	if s.Evidence.Method == MethodGeofence && s.Evidence.Coordinate == nil {
		return core.NewValidationError(nil, core.FieldError{
			Field: "evidence.coordinate",
			Error: "a coordinate is required for geofence validation",
		})
	}
	return nil
}

// StepCompletion is an append-only fact: the user finished the step of the
// journey. (UserID, JourneyID, StepID) is the idempotency key; rows are never
// updated, and only removed by an explicit reset-for-replay.
type StepCompletion struct {
	UserID       string           `json:"user_id"`
	JourneyID    string           `json:"journey_id"`
	StepID       string           `json:"step_id"`
	CompletedAt  time.Time        `json:"completed_at"` // UTC
	PointsEarned int              `json:"points_earned"`
	QuizScore    null.Float64     `json:"quiz_score,omitempty"` // fraction correct; null when the step has no quiz
	Method       ValidationMethod `json:"method"`
}

// JourneyProgress is the derived aggregate, one row per (user, journey),
// recomputable at any time from the completion ledger.
type JourneyProgress struct {
	UserID           string    `json:"user_id"`
	JourneyID        string    `json:"journey_id"`
	Status           Status    `json:"status"`
	CurrentStepOrder null.Int64 `json:"current_step_order"` // lowest uncompleted order; advisory, not gating; null once completed
	TotalPoints      int       `json:"total_points"`
	StartedAt        time.Time `json:"started_at"` // UTC
	CompletedAt      null.Time `json:"completed_at"`
}

// Snapshot is the caller-facing view of a JourneyProgress.
type Snapshot struct {
	Status           Status     `json:"status"`
	CurrentStepOrder *int64     `json:"current_step_order"`
	TotalPoints      int        `json:"total_points"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

func (p JourneyProgress) Snapshot() Snapshot {
	snap := Snapshot{
		Status:           p.Status,
		CurrentStepOrder: p.CurrentStepOrder.Ptr(),
		TotalPoints:      p.TotalPoints,
	}
	if !p.StartedAt.IsZero() {
		at := p.StartedAt
		snap.StartedAt = &at
	}
	if p.CompletedAt.Valid {
		at := p.CompletedAt.Time
		snap.CompletedAt = &at
	}
	return snap
}

// NotStartedSnapshot is the snapshot of a (user, journey) pair with no completions.
func NotStartedSnapshot() Snapshot {
	return Snapshot{Status: StatusNotStarted}
}

// Acceptance is the successful outcome of step validation.
// DistanceM is only set for geofence validation.
type Acceptance struct {
	Method    ValidationMethod `json:"method"`
	DistanceM null.Float64     `json:"distance_m,omitempty"`
}

// Result is what the submit operation returns to the caller.
type Result struct {
	Accepted     bool     `json:"accepted"`
	Duplicate    bool     `json:"duplicate"`
	PointsEarned int      `json:"points_earned"`
	QuizScore    *float64 `json:"quiz_score,omitempty"`
	Progress     Snapshot `json:"progress"`
}

// Report describes what a repair run found and corrected for one (user, journey) pair.
type Report struct {
	UserID      string   `json:"user_id"`
	JourneyID   string   `json:"journey_id"`
	Corrected   bool     `json:"corrected"`
	Anomaly     string   `json:"anomaly,omitempty"`
	Corrections []string `json:"corrections,omitempty"`
}

// AuditEntry is an operator-visible record of a repair correction.
type AuditEntry struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	JourneyID   string    `json:"journey_id"`
	Anomaly     string    `json:"anomaly"`
	Details     string    `json:"details"`
	CorrectedAt time.Time `json:"corrected_at"` // UTC
}
