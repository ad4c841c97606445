package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/wayquest/backend/core/journey"
	"github.com/wayquest/backend/core/progress"
)

type progressRepository struct {
	db *sqlx.DB
}

var _ progress.Repository = (*progressRepository)(nil) // interface compliance check

func NewProgressRepository(db *sqlx.DB) *progressRepository {
	return &progressRepository{db: db}
}

type completionRow struct {
	UserID       string       `db:"user_id"`
	JourneyID    string       `db:"journey_id"`
	StepID       string       `db:"step_id"`
	CompletedAt  time.Time    `db:"completed_at"`
	PointsEarned int          `db:"points_earned"`
	QuizScore    null.Float64 `db:"quiz_score"`
	Method       string       `db:"method"`
}

func (r completionRow) completion() progress.StepCompletion {
	return progress.StepCompletion{
		UserID:       r.UserID,
		JourneyID:    r.JourneyID,
		StepID:       r.StepID,
		CompletedAt:  r.CompletedAt.UTC(),
		PointsEarned: r.PointsEarned,
		QuizScore:    r.QuizScore,
		Method:       progress.ValidationMethod(r.Method),
	}
}

type progressRow struct {
	UserID           string    `db:"user_id"`
	JourneyID        string    `db:"journey_id"`
	Status           string    `db:"status"`
	CurrentStepOrder null.Int64 `db:"current_step_order"`
	TotalPoints      int       `db:"total_points"`
	StartedAt        time.Time `db:"started_at"`
	CompletedAt      null.Time `db:"completed_at"`
}

func (r progressRow) progress() progress.JourneyProgress {
	prog := progress.JourneyProgress{
		UserID:           r.UserID,
		JourneyID:        r.JourneyID,
		Status:           progress.Status(r.Status),
		CurrentStepOrder: r.CurrentStepOrder,
		TotalPoints:      r.TotalPoints,
		StartedAt:        r.StartedAt.UTC(),
		CompletedAt:      r.CompletedAt,
	}
	if prog.CompletedAt.Valid {
		prog.CompletedAt.Time = prog.CompletedAt.Time.UTC()
	}
	return prog
}

type auditRow struct {
	ID          string    `db:"id"`
	UserID      string    `db:"user_id"`
	JourneyID   string    `db:"journey_id"`
	Anomaly     string    `db:"anomaly"`
	Details     string    `db:"details"`
	CorrectedAt time.Time `db:"corrected_at"`
}

func (repo progressRepository) GetCompletion(ctx context.Context, userID, journeyID, stepID string) (progress.StepCompletion, error) {
	var row completionRow
	err := repo.db.GetContext(ctx, &row,
		`SELECT user_id, journey_id, step_id, completed_at, points_earned, quiz_score, method
		 FROM step_completion WHERE user_id = $1 AND journey_id = $2 AND step_id = $3`,
		userID, journeyID, stepID)
	if err == sql.ErrNoRows {
		return progress.StepCompletion{}, progress.ErrCompletionNotFound
	}
	if err != nil {
		return progress.StepCompletion{}, errors.Wrap(err, "finding completion")
	}
	return row.completion(), nil
}

func (repo progressRepository) QueryCompletions(ctx context.Context, userID, journeyID string) ([]progress.StepCompletion, error) {
	return queryCompletions(ctx, repo.db, userID, journeyID)
}

func queryCompletions(ctx context.Context, q sqlx.QueryerContext, userID, journeyID string) ([]progress.StepCompletion, error) {
	var rows []completionRow
	err := sqlx.SelectContext(ctx, q, &rows,
		`SELECT user_id, journey_id, step_id, completed_at, points_earned, quiz_score, method
		 FROM step_completion WHERE user_id = $1 AND journey_id = $2 ORDER BY completed_at`,
		userID, journeyID)
	if err != nil {
		return nil, errors.Wrap(err, "querying completions")
	}
	comps := make([]progress.StepCompletion, 0, len(rows))
	for _, row := range rows {
		comps = append(comps, row.completion())
	}
	return comps, nil
}

// RecordCompletion appends the fact row and brings the aggregate in line with
// the ledger, all in one transaction. The aggregate row is locked first so two
// concurrent completion attempts for the same (user, journey) pair serialize:
// the second writer either recomputes on top of the first one's commit, or
// hits the ledger's primary key and reports ErrCompletionExists.
func (repo progressRepository) RecordCompletion(ctx context.Context, c progress.StepCompletion) (progress.JourneyProgress, bool, error) {
	var prog progress.JourneyProgress
	var completedJourney bool

	err := runInTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		// single-writer guard per (user, journey): materialize and lock the
		// aggregate row. Placeholder values are always overwritten below.
		_, err := tx.ExecContext(ctx,
			`INSERT INTO journey_progress (user_id, journey_id, status, total_points, started_at)
			 VALUES ($1, $2, $3, 0, $4)
			 ON CONFLICT (user_id, journey_id) DO NOTHING`,
			c.UserID, c.JourneyID, progress.StatusInProgress, c.CompletedAt)
		if err != nil {
			return errors.Wrap(err, "materializing aggregate row")
		}
		if _, err = tx.ExecContext(ctx,
			`SELECT 1 FROM journey_progress WHERE user_id = $1 AND journey_id = $2 FOR UPDATE`,
			c.UserID, c.JourneyID); err != nil {
			return errors.Wrap(err, "locking aggregate row")
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO step_completion (user_id, journey_id, step_id, completed_at, points_earned, quiz_score, method)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			c.UserID, c.JourneyID, c.StepID, c.CompletedAt, c.PointsEarned, c.QuizScore, string(c.Method))
		if err != nil {
			if isUniqueViolation(err) {
				return progress.ErrCompletionExists
			}
			return errors.Wrap(err, "inserting completion")
		}

		comps, err := queryCompletions(ctx, tx, c.UserID, c.JourneyID)
		if err != nil {
			return err
		}
		steps, err := querySteps(ctx, tx, c.JourneyID)
		if err != nil {
			return err
		}

		prog = progress.BuildProgress(c.UserID, c.JourneyID, steps, comps)
		completedJourney = prog.Status == progress.StatusCompleted
		return upsertProgress(ctx, tx, prog)
	})
	if err != nil {
		return progress.JourneyProgress{}, false, err
	}
	return prog, completedJourney, nil
}

func querySteps(ctx context.Context, q sqlx.QueryerContext, journeyID string) ([]journey.Step, error) {
	var rows []stepRow
	err := sqlx.SelectContext(ctx, q, &rows,
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

func upsertProgress(ctx context.Context, exec sqlx.ExecerContext, prog progress.JourneyProgress) error {
	_, err := exec.ExecContext(ctx,
		`INSERT INTO journey_progress (user_id, journey_id, status, current_step_order, total_points, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (user_id, journey_id) DO UPDATE SET
		   status = EXCLUDED.status,
		   current_step_order = EXCLUDED.current_step_order,
		   total_points = EXCLUDED.total_points,
		   started_at = EXCLUDED.started_at,
		   completed_at = EXCLUDED.completed_at`,
		prog.UserID, prog.JourneyID, string(prog.Status), prog.CurrentStepOrder,
		prog.TotalPoints, prog.StartedAt, prog.CompletedAt)
	return errors.Wrap(err, "upserting progress")
}

func (repo progressRepository) GetProgress(ctx context.Context, userID, journeyID string) (progress.JourneyProgress, error) {
	var row progressRow
	err := repo.db.GetContext(ctx, &row,
		`SELECT user_id, journey_id, status, current_step_order, total_points, started_at, completed_at
		 FROM journey_progress WHERE user_id = $1 AND journey_id = $2`,
		userID, journeyID)
	if err == sql.ErrNoRows {
		return progress.JourneyProgress{}, progress.ErrProgressNotFound
	}
	if err != nil {
		return progress.JourneyProgress{}, errors.Wrap(err, "finding progress")
	}
	return row.progress(), nil
}

// lockProgress takes the per-pair row lock shared with RecordCompletion.
// Returns found=false (no lock) when the row does not exist.
func lockProgress(ctx context.Context, tx *sqlx.Tx, userID, journeyID string) (progress.JourneyProgress, bool, error) {
	var row progressRow
	err := tx.GetContext(ctx, &row,
		`SELECT user_id, journey_id, status, current_step_order, total_points, started_at, completed_at
		 FROM journey_progress WHERE user_id = $1 AND journey_id = $2 FOR UPDATE`,
		userID, journeyID)
	if err == sql.ErrNoRows {
		return progress.JourneyProgress{}, false, nil
	}
	if err != nil {
		return progress.JourneyProgress{}, false, errors.Wrap(err, "locking progress row")
	}
	return row.progress(), true, nil
}

// RepairPair recomputes the pair's aggregate from the ledger and corrects any
// drift, holding the aggregate row lock for the whole read-compute-write so a
// concurrent RecordCompletion can never be clobbered with a stale recompute.
// The audit entry commits in the same transaction as the correction.
func (repo progressRepository) RepairPair(ctx context.Context, userID, journeyID string, correctedAt time.Time) (progress.Report, error) {
	var report progress.Report

	err := runInTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		report = progress.Report{UserID: userID, JourneyID: journeyID}

		stored, found, err := lockProgress(ctx, tx, userID, journeyID)
		if err != nil {
			return err
		}
		comps, err := queryCompletions(ctx, tx, userID, journeyID)
		if err != nil {
			return err
		}

		if !found && len(comps) > 0 {
			// missing aggregate: there is no row to lock yet, so materialize
			// one (live writers serialize on it) and re-read the ledger under
			// the lock before recomputing.
			if _, err = tx.ExecContext(ctx,
				`INSERT INTO journey_progress (user_id, journey_id, status, total_points, started_at)
				 VALUES ($1, $2, $3, 0, $4)
				 ON CONFLICT (user_id, journey_id) DO NOTHING`,
				userID, journeyID, progress.StatusInProgress, correctedAt); err != nil {
				return errors.Wrap(err, "materializing aggregate row")
			}
			if _, _, err = lockProgress(ctx, tx, userID, journeyID); err != nil {
				return err
			}
			if comps, err = queryCompletions(ctx, tx, userID, journeyID); err != nil {
				return err
			}
			if len(comps) == 0 {
				// a concurrent reset emptied the ledger; drop the placeholder
				_, err = tx.ExecContext(ctx,
					`DELETE FROM journey_progress WHERE user_id = $1 AND journey_id = $2`, userID, journeyID)
				return errors.Wrap(err, "removing placeholder row")
			}
		}

		steps, err := querySteps(ctx, tx, journeyID)
		if err != nil {
			return err
		}
		expected := progress.BuildProgress(userID, journeyID, steps, comps)

		plan, ok := progress.PlanRepair(stored, found, expected, len(comps) == 0)
		if !ok {
			return nil
		}

		if plan.Delete {
			if _, err = tx.ExecContext(ctx,
				`DELETE FROM journey_progress WHERE user_id = $1 AND journey_id = $2`,
				userID, journeyID); err != nil {
				return errors.Wrap(err, "deleting orphaned progress")
			}
		} else if err = upsertProgress(ctx, tx, plan.Expected); err != nil {
			return err
		}

		if _, err = insertAuditEntry(ctx, tx, progress.AuditEntry{
			UserID:      userID,
			JourneyID:   journeyID,
			Anomaly:     plan.Anomaly,
			Details:     plan.Details,
			CorrectedAt: correctedAt,
		}); err != nil {
			return err
		}

		report.Corrected = true
		report.Anomaly = plan.Anomaly
		report.Corrections = plan.Corrections
		return nil
	})
	if err != nil {
		return progress.Report{UserID: userID, JourneyID: journeyID}, err
	}
	return report, nil
}

func (repo progressRepository) QueryProgressKeys(ctx context.Context) ([]progress.ProgressKey, error) {
	var rows []struct {
		UserID    string `db:"user_id"`
		JourneyID string `db:"journey_id"`
	}
	// union so pairs orphaned on either side are visited by the sweep
	err := repo.db.SelectContext(ctx, &rows,
		`SELECT user_id, journey_id FROM journey_progress
		 UNION
		 SELECT DISTINCT user_id, journey_id FROM step_completion`)
	if err != nil {
		return nil, errors.Wrap(err, "querying progress keys")
	}
	keys := make([]progress.ProgressKey, 0, len(rows))
	for _, row := range rows {
		keys = append(keys, progress.ProgressKey{UserID: row.UserID, JourneyID: row.JourneyID})
	}
	return keys, nil
}

func (repo progressRepository) ResetPair(ctx context.Context, userID, journeyID string, archive bool) error {
	return runInTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		if archive {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO step_completion_archive (user_id, journey_id, step_id, completed_at, points_earned, quiz_score, method)
				 SELECT user_id, journey_id, step_id, completed_at, points_earned, quiz_score, method
				 FROM step_completion WHERE user_id = $1 AND journey_id = $2`,
				userID, journeyID)
			if err != nil {
				return errors.Wrap(err, "archiving completions")
			}
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM step_completion WHERE user_id = $1 AND journey_id = $2`,
			userID, journeyID); err != nil {
			return errors.Wrap(err, "deleting completions")
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM journey_progress WHERE user_id = $1 AND journey_id = $2`,
			userID, journeyID); err != nil {
			return errors.Wrap(err, "deleting progress")
		}
		return nil
	})
}

func insertAuditEntry(ctx context.Context, exec sqlx.ExecerContext, entry progress.AuditEntry) (progress.AuditEntry, error) {
	entry.ID = uuid.New().String()
	_, err := exec.ExecContext(ctx,
		`INSERT INTO repair_audit (id, user_id, journey_id, anomaly, details, corrected_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.UserID, entry.JourneyID, entry.Anomaly, entry.Details, entry.CorrectedAt)
	if err != nil {
		return progress.AuditEntry{}, errors.Wrap(err, "inserting audit entry")
	}
	return entry, nil
}

func (repo progressRepository) CreateAuditEntry(ctx context.Context, entry progress.AuditEntry) (progress.AuditEntry, error) {
	return insertAuditEntry(ctx, repo.db, entry)
}

func (repo progressRepository) QueryAuditEntries(ctx context.Context, userID, journeyID string) ([]progress.AuditEntry, error) {
	var rows []auditRow
	err := repo.db.SelectContext(ctx, &rows,
		`SELECT id, user_id, journey_id, anomaly, details, corrected_at
		 FROM repair_audit WHERE user_id = $1 AND journey_id = $2 ORDER BY corrected_at`,
		userID, journeyID)
	if err != nil {
		return nil, errors.Wrap(err, "querying audit entries")
	}
	entries := make([]progress.AuditEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, progress.AuditEntry{
			ID:          row.ID,
			UserID:      row.UserID,
			JourneyID:   row.JourneyID,
			Anomaly:     row.Anomaly,
			Details:     row.Details,
			CorrectedAt: row.CorrectedAt.UTC(),
		})
	}
	return entries, nil
}
