package dummydb

import (
	"context"

	"github.com/wayquest/backend/core/journey"
)

type journeyRepository struct {
	db *DB
}

var _ journey.Repository = (*journeyRepository)(nil) // interface compliance check

func NewJourneyRepository(db *DB) journey.Repository {
	return &journeyRepository{db: db}
}

func (repo *journeyRepository) GetJourney(_ context.Context, id string) (journey.Journey, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if jny, ok := repo.db.journeys[id]; ok {
		return jny, nil
	}
	return journey.Journey{}, journey.ErrNotFound
}

func (repo *journeyRepository) GetStep(_ context.Context, journeyID, stepID string) (journey.Step, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, s := range repo.db.steps[journeyID] {
		if s.ID == stepID {
			return s, nil
		}
	}
	return journey.Step{}, journey.ErrStepNotFound
}

func (repo *journeyRepository) QuerySteps(_ context.Context, journeyID string) ([]journey.Step, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	steps := make([]journey.Step, len(repo.db.steps[journeyID]))
	copy(steps, repo.db.steps[journeyID])
	return steps, nil
}

func (repo *journeyRepository) QueryStepQuestions(_ context.Context, stepID string) ([]journey.QuizQuestion, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	questions := make([]journey.QuizQuestion, len(repo.db.questions[stepID]))
	copy(questions, repo.db.questions[stepID])
	return questions, nil
}
