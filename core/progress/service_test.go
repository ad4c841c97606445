package progress_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayquest/backend/core"
	"github.com/wayquest/backend/core/journey"
	"github.com/wayquest/backend/core/progress"
	eventsvc "github.com/wayquest/backend/services/events"
	dummydb "github.com/wayquest/backend/storage/database/dummy"
)

type noopLogger struct{}

func (noopLogger) Enable(bool)                  {}
func (noopLogger) Debug(string, ...interface{}) {}
func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Warn(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}
func (noopLogger) Fatal(string, ...interface{}) {}

var anchor = journey.Coordinate{Lat: 48.8584, Lon: 2.2945}

// louvre is ~3500m from anchor, well outside every step radius.
var louvre = journey.Coordinate{Lat: 48.8606, Lon: 2.3376}

func testConfig() *core.Config {
	return &core.Config{
		Progress: core.ProgressConfig{
			MaxEvidenceAge:   5 * time.Minute,
			PassingThreshold: 0.5,
			BonusPolicy:      progress.BonusPolicyThreshold,
			ResetRetention:   "archive",
		},
	}
}

// newTestService seeds a 3-step journey (10 points each, step2 carries a
// 2-question quiz) and wires the service against the in-memory store and the
// event recording mock.
func newTestService(t *testing.T, conf *core.Config) (*progress.Service, *dummydb.DB) {
	t.Helper()

	db, err := dummydb.Open()
	require.NoError(t, err)

	steps := []journey.Step{
		{ID: "s1", JourneyID: "jny1", OrderIndex: 1, Coordinate: anchor, RadiusM: 50, Points: 10},
		{ID: "s2", JourneyID: "jny1", OrderIndex: 2, Coordinate: anchor, RadiusM: 50, Points: 10},
		{ID: "s3", JourneyID: "jny1", OrderIndex: 3, Coordinate: anchor, RadiusM: 50, Points: 10},
	}
	questions := map[string][]journey.QuizQuestion{
		"s2": {
			{ID: "q1", StepID: "s2", Type: journey.QuestionMultipleChoice, CorrectAnswer: "B", Options: []string{"A", "B", "C"}, BonusPoints: 5},
			{ID: "q2", StepID: "s2", Type: journey.QuestionFreeText, CorrectAnswer: "Notre Dame"},
		},
	}
	db.AddJourney(journey.Journey{ID: "jny1", Name: "Historic Paris"}, steps, questions)

	journeySvc := journey.NewService(dummydb.NewJourneyRepository(db))
	svc := progress.NewService(dummydb.NewProgressRepository(db), journeySvc, eventsvc.NewConsoleServiceMock(), noopLogger{}, conf)

	eventsvc.ClearSentEvents()
	return svc, db
}

func geofenceSub(userID, stepID string) progress.SubmitStepCompletion {
	coord := anchor
	return progress.SubmitStepCompletion{
		UserID:    userID,
		JourneyID: "jny1",
		StepID:    stepID,
		Evidence: progress.Evidence{
			Method:     progress.MethodGeofence,
			Coordinate: &coord,
			CapturedAt: time.Now().UTC(),
		},
	}
}

func quizSub(userID string, responses []progress.QuizResponse) progress.SubmitStepCompletion {
	sub := geofenceSub(userID, "s2")
	sub.Responses = responses
	return sub
}

var correctResponses = []progress.QuizResponse{
	{QuestionID: "q1", Answer: "B"},
	{QuestionID: "q2", Answer: "notre dame"},
}

func TestServiceSubmit(t *testing.T) {
	ctx := context.Background()

	t.Run("accepts in-range geofence evidence", func(t *testing.T) {
		svc, _ := newTestService(t, testConfig())

		res, err := svc.Submit(ctx, geofenceSub("u1", "s1"))
		require.NoError(t, err)
		assert.True(t, res.Accepted)
		assert.False(t, res.Duplicate)
		assert.Equal(t, 10, res.PointsEarned)
		assert.Nil(t, res.QuizScore)
		assert.Equal(t, progress.StatusInProgress, res.Progress.Status)
		assert.Equal(t, 10, res.Progress.TotalPoints)
		require.NotNil(t, res.Progress.CurrentStepOrder)
		assert.EqualValues(t, 2, *res.Progress.CurrentStepOrder)

		require.Len(t, eventsvc.SentEvents, 1)
		assert.Equal(t, core.EventCompletionRecorded, eventsvc.SentEvents[0].Name)
		assert.Equal(t, 10, eventsvc.SentEvents[0].PointsDelta)
	})

	t.Run("resubmission is an idempotent no-op", func(t *testing.T) {
		svc, _ := newTestService(t, testConfig())

		first, err := svc.Submit(ctx, geofenceSub("u1", "s1"))
		require.NoError(t, err)

		again, err := svc.Submit(ctx, geofenceSub("u1", "s1"))
		require.NoError(t, err)
		assert.True(t, again.Accepted)
		assert.True(t, again.Duplicate)
		assert.Equal(t, first.PointsEarned, again.PointsEarned)
		assert.Equal(t, first.Progress, again.Progress)

		// no double credit, no second event
		snap, err := svc.GetSnapshot(ctx, "u1", "jny1")
		require.NoError(t, err)
		assert.Equal(t, 10, snap.TotalPoints)
		assert.Len(t, eventsvc.SentEvents, 1)
	})

	t.Run("steps may be completed in any physical order", func(t *testing.T) {
		svc, _ := newTestService(t, testConfig())

		_, err := svc.Submit(ctx, geofenceSub("u1", "s3"))
		require.NoError(t, err)
		snap, err := svc.GetSnapshot(ctx, "u1", "jny1")
		require.NoError(t, err)
		require.NotNil(t, snap.CurrentStepOrder)
		assert.EqualValues(t, 1, *snap.CurrentStepOrder)

		_, err = svc.Submit(ctx, geofenceSub("u1", "s1"))
		require.NoError(t, err)
		snap, err = svc.GetSnapshot(ctx, "u1", "jny1")
		require.NoError(t, err)
		require.NotNil(t, snap.CurrentStepOrder)
		assert.EqualValues(t, 2, *snap.CurrentStepOrder)
	})

	t.Run("completing the last step completes the journey", func(t *testing.T) {
		svc, _ := newTestService(t, testConfig())

		var earned int
		for _, sub := range []progress.SubmitStepCompletion{
			geofenceSub("u1", "s1"),
			quizSub("u1", correctResponses),
			geofenceSub("u1", "s3"),
		} {
			res, err := svc.Submit(ctx, sub)
			require.NoError(t, err)
			earned += res.PointsEarned
		}

		snap, err := svc.GetSnapshot(ctx, "u1", "jny1")
		require.NoError(t, err)
		assert.Equal(t, progress.StatusCompleted, snap.Status)
		assert.Equal(t, earned, snap.TotalPoints) // 10 + (10+5 bonus) + 10
		assert.Equal(t, 35, snap.TotalPoints)
		assert.Nil(t, snap.CurrentStepOrder)
		assert.NotNil(t, snap.CompletedAt)

		// 3 completion events plus the journey_completed transition
		require.Len(t, eventsvc.SentEvents, 4)
		assert.Equal(t, core.EventJourneyCompleted, eventsvc.SentEvents[3].Name)
	})

	t.Run("rejects a step outside the journey", func(t *testing.T) {
		svc, _ := newTestService(t, testConfig())

		_, err := svc.Submit(ctx, geofenceSub("u1", "nope"))
		assert.ErrorIs(t, err, progress.ErrInvalidStep)
	})

	t.Run("rejects out-of-range evidence without recording", func(t *testing.T) {
		svc, _ := newTestService(t, testConfig())

		sub := geofenceSub("u1", "s1")
		coord := louvre
		sub.Evidence.Coordinate = &coord
		_, err := svc.Submit(ctx, sub)
		var oor *progress.OutOfRangeError
		require.ErrorAs(t, err, &oor)
		assert.Greater(t, oor.DistanceM, oor.RadiusM)

		snap, err := svc.GetSnapshot(ctx, "u1", "jny1")
		require.NoError(t, err)
		assert.Equal(t, progress.StatusNotStarted, snap.Status)
		assert.Empty(t, eventsvc.SentEvents)
	})

	t.Run("rejects stale evidence", func(t *testing.T) {
		svc, _ := newTestService(t, testConfig())

		sub := geofenceSub("u1", "s1")
		sub.Evidence.CapturedAt = time.Now().UTC().Add(-10 * time.Minute)
		_, err := svc.Submit(ctx, sub)
		assert.ErrorIs(t, err, progress.ErrStaleEvidence)
	})

	t.Run("quiz step requires responses", func(t *testing.T) {
		svc, _ := newTestService(t, testConfig())

		_, err := svc.Submit(ctx, quizSub("u1", nil))
		var rfe *progress.ResponseFormatError
		assert.ErrorAs(t, err, &rfe)
	})

	t.Run("quiz step records the score", func(t *testing.T) {
		svc, _ := newTestService(t, testConfig())

		res, err := svc.Submit(ctx, quizSub("u1", correctResponses))
		require.NoError(t, err)
		assert.Equal(t, 15, res.PointsEarned)
		require.NotNil(t, res.QuizScore)
		assert.Equal(t, 1.0, *res.QuizScore)

		// the recorded score survives resubmission unchanged
		again, err := svc.Submit(ctx, quizSub("u1", nil))
		require.NoError(t, err)
		assert.True(t, again.Duplicate)
		assert.Equal(t, 15, again.PointsEarned)
	})

	t.Run("failed quiz still completes the step", func(t *testing.T) {
		svc, _ := newTestService(t, testConfig())

		res, err := svc.Submit(ctx, quizSub("u1", []progress.QuizResponse{
			{QuestionID: "q1", Answer: "A"},
			{QuestionID: "q2", Answer: "wrong"},
		}))
		require.NoError(t, err)
		assert.True(t, res.Accepted)
		assert.Zero(t, res.PointsEarned)
		require.NotNil(t, res.QuizScore)
		assert.Zero(t, *res.QuizScore)
		assert.Equal(t, progress.StatusInProgress, res.Progress.Status)
	})

	t.Run("responses to a quiz-less step are rejected", func(t *testing.T) {
		svc, _ := newTestService(t, testConfig())

		sub := geofenceSub("u1", "s1")
		sub.Responses = correctResponses
		_, err := svc.Submit(ctx, sub)
		var rfe *progress.ResponseFormatError
		require.ErrorAs(t, err, &rfe)
		assert.Contains(t, rfe.Reason, "no quiz")
	})

	t.Run("proportional policy scales the quiz points", func(t *testing.T) {
		conf := testConfig()
		conf.Progress.BonusPolicy = progress.BonusPolicyProportional
		svc, _ := newTestService(t, conf)

		res, err := svc.Submit(ctx, quizSub("u1", []progress.QuizResponse{
			{QuestionID: "q1", Answer: "A"},
			{QuestionID: "q2", Answer: "notre dame"},
		}))
		require.NoError(t, err)
		assert.Equal(t, 5, res.PointsEarned) // 10 * 0.5, q1 missed so no bonus
	})

	t.Run("users progress independently", func(t *testing.T) {
		svc, _ := newTestService(t, testConfig())

		_, err := svc.Submit(ctx, geofenceSub("u1", "s1"))
		require.NoError(t, err)

		snap, err := svc.GetSnapshot(ctx, "u2", "jny1")
		require.NoError(t, err)
		assert.Equal(t, progress.NotStartedSnapshot(), snap)
	})
}

func TestServiceGetSnapshot(t *testing.T) {
	svc, _ := newTestService(t, testConfig())

	snap, err := svc.GetSnapshot(context.Background(), "stranger", "jny1")
	require.NoError(t, err)
	assert.Equal(t, progress.StatusNotStarted, snap.Status)
	assert.Zero(t, snap.TotalPoints)
	assert.Nil(t, snap.StartedAt)
}
