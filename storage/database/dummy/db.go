package dummydb

import (
	"sync"

	"github.com/wayquest/backend/core/journey"
	"github.com/wayquest/backend/core/progress"
)

type (
	// DB is an in-memory stand-in for the Postgres store, used by tests and
	// local development without a database.
	DB struct {
		sync.Mutex

		journeys    map[string]journey.Journey
		steps       map[string][]journey.Step       // by journey id, ordered
		questions   map[string][]journey.QuizQuestion // by step id
		completions map[string]progress.StepCompletion // by pairKey+stepID
		archived    []progress.StepCompletion
		progress    map[string]progress.JourneyProgress // by pairKey
		audit       []progress.AuditEntry
	}
)

func Open() (*DB, error) {
	db := &DB{
		journeys:    make(map[string]journey.Journey),
		steps:       make(map[string][]journey.Step),
		questions:   make(map[string][]journey.QuizQuestion),
		completions: make(map[string]progress.StepCompletion),
		progress:    make(map[string]progress.JourneyProgress),
	}
	return db, nil
}

func pairKey(userID, journeyID string) string { return userID + "/" + journeyID }

func completionKey(userID, journeyID, stepID string) string {
	return pairKey(userID, journeyID) + "/" + stepID
}

// AddJourney registers a journey definition with its steps and quizzes.
// Definition tables are authored elsewhere in production; tests seed them here.
func (db *DB) AddJourney(jny journey.Journey, steps []journey.Step, questions map[string][]journey.QuizQuestion) {
	db.Lock()
	defer db.Unlock()

	jny.StepCount = len(steps)
	db.journeys[jny.ID] = jny
	db.steps[jny.ID] = steps
	for stepID, qs := range questions {
		db.questions[stepID] = qs
	}
}

// CorruptProgress overwrites an aggregate row directly, bypassing the ledger.
// Test hook for drift scenarios.
func (db *DB) CorruptProgress(prog progress.JourneyProgress) {
	db.Lock()
	defer db.Unlock()
	db.progress[pairKey(prog.UserID, prog.JourneyID)] = prog
}

// DropProgress removes an aggregate row directly, leaving the ledger intact.
// Test hook for missing-aggregate scenarios.
func (db *DB) DropProgress(userID, journeyID string) {
	db.Lock()
	defer db.Unlock()
	delete(db.progress, pairKey(userID, journeyID))
}

// ArchivedCompletions returns completions moved aside by reset-for-replay.
func (db *DB) ArchivedCompletions() []progress.StepCompletion {
	db.Lock()
	defer db.Unlock()
	out := make([]progress.StepCompletion, len(db.archived))
	copy(out, db.archived)
	return out
}
