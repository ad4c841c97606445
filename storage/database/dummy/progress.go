package dummydb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wayquest/backend/core/progress"
)

type progressRepository struct {
	db *DB
}

var _ progress.Repository = (*progressRepository)(nil) // interface compliance check

func NewProgressRepository(db *DB) progress.Repository {
	return &progressRepository{db: db}
}

func (repo *progressRepository) queryCompletions(userID, journeyID string) []progress.StepCompletion {
	prefix := pairKey(userID, journeyID) + "/"
	comps := make([]progress.StepCompletion, 0)
	for key, c := range repo.db.completions {
		if strings.HasPrefix(key, prefix) {
			comps = append(comps, c)
		}
	}
	sort.Slice(comps, func(i, j int) bool { return comps[i].CompletedAt.Before(comps[j].CompletedAt) })
	return comps
}

func (repo *progressRepository) GetCompletion(_ context.Context, userID, journeyID, stepID string) (progress.StepCompletion, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if c, ok := repo.db.completions[completionKey(userID, journeyID, stepID)]; ok {
		return c, nil
	}
	return progress.StepCompletion{}, progress.ErrCompletionNotFound
}

func (repo *progressRepository) QueryCompletions(_ context.Context, userID, journeyID string) ([]progress.StepCompletion, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	return repo.queryCompletions(userID, journeyID), nil
}

func (repo *progressRepository) RecordCompletion(_ context.Context, c progress.StepCompletion) (progress.JourneyProgress, bool, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	key := completionKey(c.UserID, c.JourneyID, c.StepID)
	if _, ok := repo.db.completions[key]; ok {
		return progress.JourneyProgress{}, false, progress.ErrCompletionExists
	}
	repo.db.completions[key] = c

	prog := progress.BuildProgress(c.UserID, c.JourneyID, repo.db.steps[c.JourneyID], repo.queryCompletions(c.UserID, c.JourneyID))
	repo.db.progress[pairKey(c.UserID, c.JourneyID)] = prog
	return prog, prog.Status == progress.StatusCompleted, nil
}

func (repo *progressRepository) GetProgress(_ context.Context, userID, journeyID string) (progress.JourneyProgress, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if prog, ok := repo.db.progress[pairKey(userID, journeyID)]; ok {
		return prog, nil
	}
	return progress.JourneyProgress{}, progress.ErrProgressNotFound
}

// RepairPair mirrors the transactional repair of the Postgres repo: the
// read-compute-write and its audit entry all happen under the store lock.
func (repo *progressRepository) RepairPair(_ context.Context, userID, journeyID string, correctedAt time.Time) (progress.Report, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	report := progress.Report{UserID: userID, JourneyID: journeyID}

	comps := repo.queryCompletions(userID, journeyID)
	stored, found := repo.db.progress[pairKey(userID, journeyID)]
	expected := progress.BuildProgress(userID, journeyID, repo.db.steps[journeyID], comps)

	plan, ok := progress.PlanRepair(stored, found, expected, len(comps) == 0)
	if !ok {
		return report, nil
	}

	if plan.Delete {
		delete(repo.db.progress, pairKey(userID, journeyID))
	} else {
		repo.db.progress[pairKey(userID, journeyID)] = plan.Expected
	}
	repo.db.audit = append(repo.db.audit, progress.AuditEntry{
		ID:          uuid.New().String(),
		UserID:      userID,
		JourneyID:   journeyID,
		Anomaly:     plan.Anomaly,
		Details:     plan.Details,
		CorrectedAt: correctedAt,
	})

	report.Corrected = true
	report.Anomaly = plan.Anomaly
	report.Corrections = plan.Corrections
	return report, nil
}

func (repo *progressRepository) QueryProgressKeys(_ context.Context) ([]progress.ProgressKey, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	seen := make(map[string]progress.ProgressKey)
	for _, prog := range repo.db.progress {
		seen[pairKey(prog.UserID, prog.JourneyID)] = progress.ProgressKey{UserID: prog.UserID, JourneyID: prog.JourneyID}
	}
	for _, c := range repo.db.completions {
		seen[pairKey(c.UserID, c.JourneyID)] = progress.ProgressKey{UserID: c.UserID, JourneyID: c.JourneyID}
	}

	keys := make([]progress.ProgressKey, 0, len(seen))
	for _, key := range seen {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].UserID != keys[j].UserID {
			return keys[i].UserID < keys[j].UserID
		}
		return keys[i].JourneyID < keys[j].JourneyID
	})
	return keys, nil
}

func (repo *progressRepository) ResetPair(_ context.Context, userID, journeyID string, archive bool) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	prefix := pairKey(userID, journeyID) + "/"
	for key, c := range repo.db.completions {
		if strings.HasPrefix(key, prefix) {
			if archive {
				repo.db.archived = append(repo.db.archived, c)
			}
			delete(repo.db.completions, key)
		}
	}
	delete(repo.db.progress, pairKey(userID, journeyID))
	return nil
}

func (repo *progressRepository) CreateAuditEntry(_ context.Context, entry progress.AuditEntry) (progress.AuditEntry, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	entry.ID = uuid.New().String()
	repo.db.audit = append(repo.db.audit, entry)
	return entry, nil
}

func (repo *progressRepository) QueryAuditEntries(_ context.Context, userID, journeyID string) ([]progress.AuditEntry, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	entries := make([]progress.AuditEntry, 0)
	for _, e := range repo.db.audit {
		if e.UserID == userID && e.JourneyID == journeyID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}
