package journey

import (
	"context"
	"errors"
)

var (
	// errors
	ErrNotFound     = errors.New("journey not found")
	ErrStepNotFound = errors.New("step not found in this journey")
)

type (
	// Repository reads journey definitions. Definitions are owned and authored
	// by the content-management side and consumed read-only here.
	Repository interface {
		GetJourney(ctx context.Context, id string) (Journey, error)
		// GetStep returns ErrStepNotFound when the step does not belong to the journey.
		GetStep(ctx context.Context, journeyID, stepID string) (Step, error)
		// QuerySteps returns the journey's steps ordered by OrderIndex.
		QuerySteps(ctx context.Context, journeyID string) ([]Step, error)
		QueryStepQuestions(ctx context.Context, stepID string) ([]QuizQuestion, error)
	}

	ServiceInterface interface {
		Get(ctx context.Context, id string) (Journey, error)
		GetStep(ctx context.Context, journeyID, stepID string) (Step, error)
		QuerySteps(ctx context.Context, journeyID string) ([]Step, error)
		QueryStepQuestions(ctx context.Context, stepID string) ([]QuizQuestion, error)
	}

	Service struct {
		repo Repository
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) Get(ctx context.Context, id string) (Journey, error) {
	return svc.repo.GetJourney(ctx, id)
}

func (svc *Service) GetStep(ctx context.Context, journeyID, stepID string) (Step, error) {
	return svc.repo.GetStep(ctx, journeyID, stepID)
}

func (svc *Service) QuerySteps(ctx context.Context, journeyID string) ([]Step, error) {
	return svc.repo.QuerySteps(ctx, journeyID)
}

func (svc *Service) QueryStepQuestions(ctx context.Context, stepID string) ([]QuizQuestion, error) {
	return svc.repo.QueryStepQuestions(ctx, stepID)
}
