package database

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/wayquest/backend/core/journey"
)

// journeyRepository reads journey definitions. The content-management side
// owns these tables; the engine never writes them.
type journeyRepository struct {
	db *sqlx.DB
}

var _ journey.Repository = (*journeyRepository)(nil) // interface compliance check

func NewJourneyRepository(db *sqlx.DB) *journeyRepository {
	return &journeyRepository{db: db}
}

type journeyRow struct {
	ID        string `db:"id"`
	Name      string `db:"name"`
	StepCount int    `db:"step_count"`
}

type stepRow struct {
	ID         string  `db:"id"`
	JourneyID  string  `db:"journey_id"`
	OrderIndex int     `db:"order_index"`
	Lat        float64 `db:"lat"`
	Lon        float64 `db:"lon"`
	RadiusM    float64 `db:"radius_m"`
	Points     int     `db:"points"`
}

func (r stepRow) step() journey.Step {
	return journey.Step{
		ID:         r.ID,
		JourneyID:  r.JourneyID,
		OrderIndex: r.OrderIndex,
		Coordinate: journey.Coordinate{Lat: r.Lat, Lon: r.Lon},
		RadiusM:    r.RadiusM,
		Points:     r.Points,
	}
}

type questionRow struct {
	ID            string         `db:"id"`
	StepID        string         `db:"step_id"`
	Type          string         `db:"qtype"`
	Prompt        string         `db:"prompt"`
	CorrectAnswer string         `db:"correct_answer"`
	Options       pq.StringArray `db:"options"`
	BonusPoints   int            `db:"bonus_points"`
}

func (r questionRow) question() journey.QuizQuestion {
	return journey.QuizQuestion{
		ID:            r.ID,
		StepID:        r.StepID,
		Type:          journey.QuestionType(r.Type),
		Prompt:        r.Prompt,
		CorrectAnswer: r.CorrectAnswer,
		Options:       r.Options,
		BonusPoints:   r.BonusPoints,
	}
}

func (repo journeyRepository) GetJourney(ctx context.Context, id string) (journey.Journey, error) {
	if _, err := uuid.Parse(id); err != nil {
		return journey.Journey{}, journey.ErrNotFound
	}
	var row journeyRow
	err := repo.db.GetContext(ctx, &row,
		`SELECT id, name, step_count FROM journey WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return journey.Journey{}, journey.ErrNotFound
	}
	if err != nil {
		return journey.Journey{}, errors.Wrap(err, "finding journey")
	}
	return journey.Journey{ID: row.ID, Name: row.Name, StepCount: row.StepCount}, nil
}

func (repo journeyRepository) GetStep(ctx context.Context, journeyID, stepID string) (journey.Step, error) {
	if _, err := uuid.Parse(journeyID); err != nil {
		return journey.Step{}, journey.ErrStepNotFound
	}
	if _, err := uuid.Parse(stepID); err != nil {
		return journey.Step{}, journey.ErrStepNotFound
	}
	var row stepRow
	err := repo.db.GetContext(ctx, &row,
		`SELECT id, journey_id, order_index, lat, lon, radius_m, points
		 FROM step WHERE id = $1 AND journey_id = $2`, stepID, journeyID)
	if err == sql.ErrNoRows {
		return journey.Step{}, journey.ErrStepNotFound
	}
	if err != nil {
		return journey.Step{}, errors.Wrap(err, "finding step")
	}
	return row.step(), nil
}

func (repo journeyRepository) QuerySteps(ctx context.Context, journeyID string) ([]journey.Step, error) {
	var rows []stepRow
	err := repo.db.SelectContext(ctx, &rows,
		`SELECT id, journey_id, order_index, lat, lon, radius_m, points
		 FROM step WHERE journey_id = $1 ORDER BY order_index`, journeyID)
	if err != nil {
		return nil, errors.Wrap(err, "querying steps")
	}
	steps := make([]journey.Step, 0, len(rows))
	for _, row := range rows {
		steps = append(steps, row.step())
	}
	return steps, nil
}

func (repo journeyRepository) QueryStepQuestions(ctx context.Context, stepID string) ([]journey.QuizQuestion, error) {
	var rows []questionRow
	err := repo.db.SelectContext(ctx, &rows,
		`SELECT id, step_id, qtype, prompt, correct_answer, options, bonus_points
		 FROM quiz_question WHERE step_id = $1 ORDER BY id`, stepID)
	if err != nil {
		return nil, errors.Wrap(err, "querying quiz questions")
	}
	questions := make([]journey.QuizQuestion, 0, len(rows))
	for _, row := range rows {
		questions = append(questions, row.question())
	}
	return questions, nil
}
