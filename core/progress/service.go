package progress

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/wayquest/backend/core"
	"github.com/wayquest/backend/core/journey"
)

type (
	// ProgressKey identifies one (user, journey) pair.
	ProgressKey struct {
		UserID    string `json:"user_id"`
		JourneyID string `json:"journey_id"`
	}

	// Repository persists the completion ledger, the derived aggregate and the
	// repair audit log. The ledger is the source of truth; the aggregate is
	// derived and always recomputable from it.
	Repository interface {
		GetCompletion(ctx context.Context, userID, journeyID, stepID string) (StepCompletion, error)
		QueryCompletions(ctx context.Context, userID, journeyID string) ([]StepCompletion, error)
		// RecordCompletion inserts the fact row and updates (or creates) the
		// aggregate in one atomic unit: a completion must never exist without its
		// aggregate update applied. When the idempotency key already exists it
		// returns the current progress together with ErrCompletionExists.
		// The second return value reports whether this write completed the journey.
		RecordCompletion(ctx context.Context, completion StepCompletion) (JourneyProgress, bool, error)
		GetProgress(ctx context.Context, userID, journeyID string) (JourneyProgress, error)
		// RepairPair rebuilds the pair's aggregate from the ledger under the
		// same row lock RecordCompletion takes, then applies the PlanRepair
		// correction and its audit entry in that one transaction. Concurrent
		// live writes serialize on the lock, so repair can never clobber a
		// fresher aggregate with a stale recompute.
		RepairPair(ctx context.Context, userID, journeyID string, correctedAt time.Time) (Report, error)
		// QueryProgressKeys returns every known (user, journey) pair: the union of
		// aggregate rows and ledger rows, so orphans on either side are visited.
		QueryProgressKeys(ctx context.Context) ([]ProgressKey, error)
		// ResetPair atomically removes the pair's completions and aggregate row,
		// archiving the completions first unless archive is false.
		ResetPair(ctx context.Context, userID, journeyID string, archive bool) error
		CreateAuditEntry(ctx context.Context, entry AuditEntry) (AuditEntry, error)
		QueryAuditEntries(ctx context.Context, userID, journeyID string) ([]AuditEntry, error)
	}

	ServiceInterface interface {
		Submit(ctx context.Context, sub SubmitStepCompletion) (Result, error)
		GetSnapshot(ctx context.Context, userID, journeyID string) (Snapshot, error)
		Repair(ctx context.Context, userID, journeyID string) (Report, error)
		RepairAll(ctx context.Context) ([]Report, error)
		ResetForReplay(ctx context.Context, userID, journeyID string) (Snapshot, error)
	}

	Service struct {
		repo   Repository
		defs   journey.ServiceInterface
		events core.EventService
		logger core.Logger
		conf   *core.Config
		nowFn  func() time.Time // mockable
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(
	repo Repository,
	defs journey.ServiceInterface,
	events core.EventService,
	logger core.Logger,
	conf *core.Config,
) *Service {
	return &Service{
		repo:   repo,
		defs:   defs,
		events: events,
		logger: logger,
		conf:   conf,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (svc *Service) policy() ScoringPolicy {
	return ScoringPolicy{
		BonusPolicy:      svc.conf.Progress.BonusPolicy,
		PassingThreshold: svc.conf.Progress.PassingThreshold,
	}
}

// Submit validates the evidence, scores the quiz (if any) and records the
// completion. Resubmissions of an already-completed step are idempotent: they
// return the originally recorded points and snapshot, never duplicate credit
// or a duplicate rejection.
func (svc *Service) Submit(ctx context.Context, sub SubmitStepCompletion) (Result, error) {
	step, err := svc.defs.GetStep(ctx, sub.JourneyID, sub.StepID)
	if err != nil {
		if errors.Cause(err) == journey.ErrStepNotFound {
			return Result{}, ErrInvalidStep
		}
		return Result{}, errors.Wrap(err, "loading step definition")
	}

	// short-circuit to the recorded outcome before re-evaluating evidence:
	// client retries after a timeout must be safe no-ops.
	if existing, err := svc.repo.GetCompletion(ctx, sub.UserID, sub.JourneyID, sub.StepID); err == nil {
		return svc.duplicateResult(ctx, existing)
	} else if errors.Cause(err) != ErrCompletionNotFound {
		return Result{}, errors.Wrap(err, "checking for existing completion")
	}

	now := svc.nowFn()
	acceptance, err := ValidateStep(step, sub.Evidence, now, svc.conf.Progress.MaxEvidenceAge)
	if err != nil {
		return Result{}, err
	}

	points := step.Points
	quizScore := null.Float64{}
	questions, err := svc.defs.QueryStepQuestions(ctx, step.ID)
	if err != nil {
		return Result{}, errors.Wrap(err, "loading quiz questions")
	}
	if len(questions) > 0 {
		score, err := ScoreQuiz(step, questions, sub.Responses, svc.policy())
		if err != nil {
			return Result{}, err
		}
		points = score.Points
		quizScore = null.Float64From(score.FractionCorrect)
	} else if len(sub.Responses) > 0 {
		return Result{}, &ResponseFormatError{Reason: "step has no quiz"}
	}

	completion := StepCompletion{
		UserID:       sub.UserID,
		JourneyID:    sub.JourneyID,
		StepID:       sub.StepID,
		CompletedAt:  now,
		PointsEarned: points,
		QuizScore:    quizScore,
		Method:       acceptance.Method,
	}

	prog, completedJourney, err := svc.repo.RecordCompletion(ctx, completion)
	if err != nil {
		if errors.Cause(err) == ErrCompletionExists {
			// a concurrent writer (second device, racing retry) got there first
			return svc.duplicateResult(ctx, completion)
		}
		return Result{}, errors.Wrap(err, "recording completion")
	}

	svc.publish(prog, completion, completedJourney)

	return Result{
		Accepted:     true,
		PointsEarned: completion.PointsEarned,
		QuizScore:    completion.QuizScore.Ptr(),
		Progress:     prog.Snapshot(),
	}, nil
}

// duplicateResult resolves a resubmission into idempotent success carrying the
// originally recorded outcome.
func (svc *Service) duplicateResult(ctx context.Context, submitted StepCompletion) (Result, error) {
	recorded, err := svc.repo.GetCompletion(ctx, submitted.UserID, submitted.JourneyID, submitted.StepID)
	if err != nil {
		return Result{}, errors.Wrap(err, "loading recorded completion")
	}
	prog, err := svc.repo.GetProgress(ctx, recorded.UserID, recorded.JourneyID)
	if err != nil {
		return Result{}, errors.Wrap(err, "loading progress")
	}
	return Result{
		Accepted:     true,
		Duplicate:    true,
		PointsEarned: recorded.PointsEarned,
		QuizScore:    recorded.QuizScore.Ptr(),
		Progress:     prog.Snapshot(),
	}, nil
}

func (svc *Service) GetSnapshot(ctx context.Context, userID, journeyID string) (Snapshot, error) {
	prog, err := svc.repo.GetProgress(ctx, userID, journeyID)
	if err != nil {
		if errors.Cause(err) == ErrProgressNotFound {
			return NotStartedSnapshot(), nil
		}
		return Snapshot{}, errors.Wrap(err, "loading progress")
	}
	return prog.Snapshot(), nil
}

func (svc *Service) publish(prog JourneyProgress, completion StepCompletion, completedJourney bool) {
	if svc.events == nil {
		return
	}
	snap := prog.Snapshot()
	evts := []*core.ProgressEvent{{
		Name:        core.EventCompletionRecorded,
		UserID:      completion.UserID,
		JourneyID:   completion.JourneyID,
		StepID:      completion.StepID,
		PointsDelta: completion.PointsEarned,
		Progress:    snap,
		OccurredAt:  completion.CompletedAt,
	}}
	if completedJourney {
		evts = append(evts, &core.ProgressEvent{
			Name:        core.EventJourneyCompleted,
			UserID:      completion.UserID,
			JourneyID:   completion.JourneyID,
			PointsDelta: completion.PointsEarned,
			Progress:    snap,
			OccurredAt:  completion.CompletedAt,
		})
	}
	svc.events.PublishEvents(evts...)
}
