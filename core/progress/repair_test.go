package progress_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayquest/backend/core/progress"
	dummydb "github.com/wayquest/backend/storage/database/dummy"
)

func playJourney(t *testing.T, svc *progress.Service, userID string) {
	t.Helper()
	ctx := context.Background()
	for _, sub := range []progress.SubmitStepCompletion{
		geofenceSub(userID, "s1"),
		quizSub(userID, correctResponses),
		geofenceSub(userID, "s3"),
	} {
		_, err := svc.Submit(ctx, sub)
		require.NoError(t, err)
	}
}

func auditEntries(t *testing.T, db *dummydb.DB, userID, journeyID string) []progress.AuditEntry {
	t.Helper()
	entries, err := dummydb.NewProgressRepository(db).QueryAuditEntries(context.Background(), userID, journeyID)
	require.NoError(t, err)
	return entries
}

func TestPlanRepair(t *testing.T) {
	expected := progress.JourneyProgress{
		UserID:      "u1",
		JourneyID:   "jny1",
		Status:      progress.StatusInProgress,
		TotalPoints: 10,
	}

	t.Run("nothing stored, nothing recorded", func(t *testing.T) {
		_, ok := progress.PlanRepair(progress.JourneyProgress{}, false, progress.JourneyProgress{}, true)
		assert.False(t, ok)
	})

	t.Run("stored row with empty ledger is deleted", func(t *testing.T) {
		plan, ok := progress.PlanRepair(expected, true, progress.JourneyProgress{}, true)
		require.True(t, ok)
		assert.Equal(t, progress.AnomalyOrphanedProgress, plan.Anomaly)
		assert.True(t, plan.Delete)
	})

	t.Run("ledger without a row recreates it", func(t *testing.T) {
		plan, ok := progress.PlanRepair(progress.JourneyProgress{}, false, expected, false)
		require.True(t, ok)
		assert.Equal(t, progress.AnomalyMissingAggregate, plan.Anomaly)
		assert.False(t, plan.Delete)
		assert.Equal(t, expected, plan.Expected)
	})

	t.Run("matching row needs no correction", func(t *testing.T) {
		_, ok := progress.PlanRepair(expected, true, expected, false)
		assert.False(t, ok)
	})

	t.Run("drifted row is replaced field by field", func(t *testing.T) {
		drifted := expected
		drifted.TotalPoints = 9999
		drifted.Status = progress.StatusCompleted
		plan, ok := progress.PlanRepair(drifted, true, expected, false)
		require.True(t, ok)
		assert.Equal(t, progress.AnomalyAggregateDrift, plan.Anomaly)
		assert.Equal(t, expected, plan.Expected)
		assert.Len(t, plan.Corrections, 2)
	})
}

func TestServiceRepair(t *testing.T) {
	ctx := context.Background()

	t.Run("corrects a drifted aggregate", func(t *testing.T) {
		svc, db := newTestService(t, testConfig())
		playJourney(t, svc, "u1")

		good, err := svc.GetSnapshot(ctx, "u1", "jny1")
		require.NoError(t, err)

		db.CorruptProgress(progress.JourneyProgress{
			UserID:      "u1",
			JourneyID:   "jny1",
			Status:      progress.StatusInProgress,
			TotalPoints: 9999,
		})

		report, err := svc.Repair(ctx, "u1", "jny1")
		require.NoError(t, err)
		assert.True(t, report.Corrected)
		assert.Equal(t, progress.AnomalyAggregateDrift, report.Anomaly)
		assert.NotEmpty(t, report.Corrections)

		snap, err := svc.GetSnapshot(ctx, "u1", "jny1")
		require.NoError(t, err)
		assert.Equal(t, good, snap)

		entries := auditEntries(t, db, "u1", "jny1")
		require.Len(t, entries, 1)
		assert.Equal(t, progress.AnomalyAggregateDrift, entries[0].Anomaly)

		// fixpoint: a second run finds nothing
		report, err = svc.Repair(ctx, "u1", "jny1")
		require.NoError(t, err)
		assert.False(t, report.Corrected)
		assert.Len(t, auditEntries(t, db, "u1", "jny1"), 1)
	})

	t.Run("recreates a missing aggregate from the ledger", func(t *testing.T) {
		svc, db := newTestService(t, testConfig())
		playJourney(t, svc, "u1")

		db.DropProgress("u1", "jny1")

		report, err := svc.Repair(ctx, "u1", "jny1")
		require.NoError(t, err)
		assert.True(t, report.Corrected)
		assert.Equal(t, progress.AnomalyMissingAggregate, report.Anomaly)
		assert.Equal(t, []string{progress.AnomalyMissingAggregate}, report.Corrections)

		snap, err := svc.GetSnapshot(ctx, "u1", "jny1")
		require.NoError(t, err)
		assert.Equal(t, progress.StatusCompleted, snap.Status)
		assert.Equal(t, 35, snap.TotalPoints)
	})

	t.Run("deletes an orphaned aggregate", func(t *testing.T) {
		svc, db := newTestService(t, testConfig())

		db.CorruptProgress(progress.JourneyProgress{
			UserID:      "ghost",
			JourneyID:   "jny1",
			Status:      progress.StatusInProgress,
			TotalPoints: 10,
		})

		report, err := svc.Repair(ctx, "ghost", "jny1")
		require.NoError(t, err)
		assert.True(t, report.Corrected)
		assert.Equal(t, []string{progress.AnomalyOrphanedProgress}, report.Corrections)

		snap, err := svc.GetSnapshot(ctx, "ghost", "jny1")
		require.NoError(t, err)
		assert.Equal(t, progress.NotStartedSnapshot(), snap)
	})

	t.Run("consistent pair is left untouched", func(t *testing.T) {
		svc, db := newTestService(t, testConfig())
		playJourney(t, svc, "u1")

		report, err := svc.Repair(ctx, "u1", "jny1")
		require.NoError(t, err)
		assert.False(t, report.Corrected)
		assert.Empty(t, auditEntries(t, db, "u1", "jny1"))
	})
}

func TestServiceRepairAll(t *testing.T) {
	ctx := context.Background()
	svc, db := newTestService(t, testConfig())

	playJourney(t, svc, "u1")
	_, err := svc.Submit(ctx, geofenceSub("u2", "s1"))
	require.NoError(t, err)

	db.CorruptProgress(progress.JourneyProgress{
		UserID:      "u2",
		JourneyID:   "jny1",
		Status:      progress.StatusCompleted,
		TotalPoints: 500,
	})

	reports, err := svc.RepairAll(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 2)

	var corrected int
	for _, report := range reports {
		if report.Corrected {
			corrected++
			assert.Equal(t, "u2", report.UserID)
		}
	}
	assert.Equal(t, 1, corrected)

	snap, err := svc.GetSnapshot(ctx, "u2", "jny1")
	require.NoError(t, err)
	assert.Equal(t, progress.StatusInProgress, snap.Status)
	assert.Equal(t, 10, snap.TotalPoints)
}

func TestServiceResetForReplay(t *testing.T) {
	ctx := context.Background()

	t.Run("archives completions and allows replay", func(t *testing.T) {
		svc, db := newTestService(t, testConfig())
		playJourney(t, svc, "u1")

		snap, err := svc.ResetForReplay(ctx, "u1", "jny1")
		require.NoError(t, err)
		assert.Equal(t, progress.NotStartedSnapshot(), snap)

		snap, err = svc.GetSnapshot(ctx, "u1", "jny1")
		require.NoError(t, err)
		assert.Equal(t, progress.NotStartedSnapshot(), snap)

		assert.Len(t, db.ArchivedCompletions(), 3)

		entries := auditEntries(t, db, "u1", "jny1")
		require.Len(t, entries, 1)
		assert.Equal(t, progress.AuditResetForReplay, entries[0].Anomaly)

		// the idempotency keys are gone: the same step earns again
		res, err := svc.Submit(ctx, geofenceSub("u1", "s1"))
		require.NoError(t, err)
		assert.False(t, res.Duplicate)
		assert.Equal(t, 10, res.PointsEarned)
		assert.Equal(t, 10, res.Progress.TotalPoints)
	})

	t.Run("delete retention discards the history", func(t *testing.T) {
		conf := testConfig()
		conf.Progress.ResetRetention = "delete"
		svc, db := newTestService(t, conf)
		playJourney(t, svc, "u1")

		_, err := svc.ResetForReplay(ctx, "u1", "jny1")
		require.NoError(t, err)
		assert.Empty(t, db.ArchivedCompletions())
	})

	t.Run("resetting an untouched pair is harmless", func(t *testing.T) {
		svc, _ := newTestService(t, testConfig())

		snap, err := svc.ResetForReplay(ctx, "u1", "jny1")
		require.NoError(t, err)
		assert.Equal(t, progress.NotStartedSnapshot(), snap)
	})
}
