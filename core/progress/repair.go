package progress

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Anomaly kinds recorded in the repair audit log.
const (
	AnomalyAggregateDrift   = "aggregate_drift"
	AnomalyMissingAggregate = "missing_aggregate"
	AnomalyOrphanedProgress = "orphaned_progress"
	AuditResetForReplay     = "reset_for_replay"
)

// RepairPlan is the correction a repair pass must apply to one pair:
// either delete the stored aggregate or replace it with Expected.
type RepairPlan struct {
	Anomaly     string
	Details     string
	Corrections []string
	Delete      bool
	Expected    JourneyProgress
}

// PlanRepair compares the stored aggregate (storedFound reports whether a row
// exists) against the ledger-derived expectation and returns the correction to
// apply, if any. Pure; both repository implementations act on the plan inside
// the transaction that read its inputs, so the correction and its audit entry
// land atomically.
func PlanRepair(stored JourneyProgress, storedFound bool, expected JourneyProgress, ledgerEmpty bool) (RepairPlan, bool) {
	switch {
	case ledgerEmpty && !storedFound:
		return RepairPlan{}, false

	case ledgerEmpty:
		// an aggregate row with zero completions is an orphan; ledger wins
		return RepairPlan{
			Anomaly:     AnomalyOrphanedProgress,
			Details:     "progress row existed with no completions",
			Corrections: []string{AnomalyOrphanedProgress},
			Delete:      true,
		}, true

	case !storedFound:
		return RepairPlan{
			Anomaly:     AnomalyMissingAggregate,
			Details:     "completions existed with no progress row",
			Corrections: []string{AnomalyMissingAggregate},
			Expected:    expected,
		}, true

	default:
		diffs := DiffProgress(stored, expected)
		if len(diffs) == 0 {
			return RepairPlan{}, false
		}
		return RepairPlan{
			Anomaly:     AnomalyAggregateDrift,
			Details:     strings.Join(diffs, "; "),
			Corrections: diffs,
			Expected:    expected,
		}, true
	}
}

// Repair recomputes the aggregate from the completion ledger (the source of
// truth) and corrects any drift. The repository applies the correction under
// the same row lock RecordCompletion takes and writes the audit entry in the
// same transaction, so a live write can never be overwritten with a stale
// recompute and no correction ever lands without its audit event.
// Idempotent: with no intervening writes, a second run finds nothing.
func (svc *Service) Repair(ctx context.Context, userID, journeyID string) (Report, error) {
	report, err := svc.repo.RepairPair(ctx, userID, journeyID, svc.nowFn())
	if err != nil {
		return Report{UserID: userID, JourneyID: journeyID}, errors.Wrap(err, "repairing pair")
	}
	if report.Corrected {
		// corrections are never silent
		svc.logger.Warn(fmt.Sprintf("progress correction: %s %s/%s: %s",
			report.Anomaly, userID, journeyID, strings.Join(report.Corrections, "; ")))
	}
	return report, nil
}

// RepairAll sweeps every known (user, journey) pair. Pairs that fail to repair
// are logged and skipped; the sweep heals pre-existing drift under eventual
// consistency and never blocks the live validation path.
func (svc *Service) RepairAll(ctx context.Context) ([]Report, error) {
	keys, err := svc.repo.QueryProgressKeys(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "listing progress pairs")
	}

	reports := make([]Report, 0, len(keys))
	for _, key := range keys {
		report, err := svc.Repair(ctx, key.UserID, key.JourneyID)
		if err != nil {
			svc.logger.Error(fmt.Sprintf("repair sweep: %s/%s: %v", key.UserID, key.JourneyID, err), err)
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// ResetForReplay clears the pair's progress so the journey can be played
// again, returning the aggregate to not_started. Prior completions are
// archived (or deleted, per ProgressConfig.ResetRetention). Whether points
// accrued before the reset remain spendable is governed by
// ProgressConfig.ResetRetainsPoints and consumed by the reward gateway; the
// engine only records the history.
func (svc *Service) ResetForReplay(ctx context.Context, userID, journeyID string) (Snapshot, error) {
	archive := svc.conf.Progress.ResetRetention != "delete"
	if err := svc.repo.ResetPair(ctx, userID, journeyID, archive); err != nil {
		return Snapshot{}, errors.Wrap(err, "resetting progress")
	}
	svc.audit(ctx, userID, journeyID, AuditResetForReplay,
		fmt.Sprintf("retention=%s retains_points=%t", svc.conf.Progress.ResetRetention, svc.conf.Progress.ResetRetainsPoints))
	return NotStartedSnapshot(), nil
}

// audit records a correction; corrections are never silent.
func (svc *Service) audit(ctx context.Context, userID, journeyID, anomaly, details string) {
	entry := AuditEntry{
		UserID:      userID,
		JourneyID:   journeyID,
		Anomaly:     anomaly,
		Details:     details,
		CorrectedAt: svc.nowFn(),
	}
	if _, err := svc.repo.CreateAuditEntry(ctx, entry); err != nil {
		svc.logger.Error(fmt.Sprintf("recording audit entry: %v", err), err)
	}
	svc.logger.Warn(fmt.Sprintf("progress correction: %s %s/%s: %s", anomaly, userID, journeyID, details))
}

// DiffProgress lists the fields where the stored aggregate departs from the
// ledger-derived expectation.
func DiffProgress(stored, expected JourneyProgress) []string {
	var diffs []string
	if stored.TotalPoints != expected.TotalPoints {
		diffs = append(diffs, fmt.Sprintf("total_points %d -> %d", stored.TotalPoints, expected.TotalPoints))
	}
	if stored.Status != expected.Status {
		diffs = append(diffs, fmt.Sprintf("status %s -> %s", stored.Status, expected.Status))
	}
	if stored.CurrentStepOrder != expected.CurrentStepOrder {
		diffs = append(diffs, fmt.Sprintf("current_step_order %v -> %v",
			orderString(stored.CurrentStepOrder.Ptr()), orderString(expected.CurrentStepOrder.Ptr())))
	}
	if !stored.StartedAt.Equal(expected.StartedAt) {
		diffs = append(diffs, fmt.Sprintf("started_at %s -> %s", stored.StartedAt, expected.StartedAt))
	}
	if stored.CompletedAt.Valid != expected.CompletedAt.Valid ||
		(expected.CompletedAt.Valid && !stored.CompletedAt.Time.Equal(expected.CompletedAt.Time)) {
		diffs = append(diffs, "completed_at corrected")
	}
	return diffs
}

func orderString(v *int64) string {
	if v == nil {
		return "none"
	}
	return fmt.Sprintf("%d", *v)
}
