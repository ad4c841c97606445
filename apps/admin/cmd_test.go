package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/wayquest/backend/core"
	"github.com/wayquest/backend/core/journey"
	"github.com/wayquest/backend/core/progress"
	dummydb "github.com/wayquest/backend/storage/database/dummy"
)

type noopLogger struct{}

func (noopLogger) Enable(bool)                  {}
func (noopLogger) Debug(string, ...interface{}) {}
func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Warn(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}
func (noopLogger) Fatal(string, ...interface{}) {}

func setup(t *testing.T) (*commandLine, *progress.Service, *dummydb.DB, *bytes.Buffer) {
	t.Helper()

	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("setup() failed: %v", err)
	}
	anchor := journey.Coordinate{Lat: 48.8584, Lon: 2.2945}
	db.AddJourney(journey.Journey{ID: "jny1", Name: "Historic Paris"}, []journey.Step{
		{ID: "s1", JourneyID: "jny1", OrderIndex: 1, Coordinate: anchor, RadiusM: 50, Points: 10},
		{ID: "s2", JourneyID: "jny1", OrderIndex: 2, Coordinate: anchor, RadiusM: 50, Points: 10},
	}, nil)

	conf := &core.Config{
		Progress: core.ProgressConfig{
			MaxEvidenceAge:   5 * time.Minute,
			PassingThreshold: 0.5,
			BonusPolicy:      progress.BonusPolicyThreshold,
			ResetRetention:   "archive",
		},
	}
	journeySvc := journey.NewService(dummydb.NewJourneyRepository(db))
	svc := progress.NewService(dummydb.NewProgressRepository(db), journeySvc, nil, noopLogger{}, conf)

	out := &bytes.Buffer{}
	return &commandLine{progressSvc: svc, out: out}, svc, db, out
}

func completeStep(t *testing.T, svc *progress.Service, userID, stepID string) {
	t.Helper()
	coord := journey.Coordinate{Lat: 48.8584, Lon: 2.2945}
	_, err := svc.Submit(context.Background(), progress.SubmitStepCompletion{
		UserID:    userID,
		JourneyID: "jny1",
		StepID:    stepID,
		Evidence: progress.Evidence{
			Method:     progress.MethodGeofence,
			Coordinate: &coord,
			CapturedAt: time.Now().UTC(),
		},
	})
	if err != nil {
		t.Fatalf("completeStep() failed: %v", err)
	}
}

type cliTest struct {
	name    string
	args    []string // without program name
	wantErr error
	wantOut string
}

func Test_commandLine_run(t *testing.T) {
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "repair: no flags", args: []string{"repair"}, wantErr: errHelp},
		{name: "repair: missing journey", args: []string{"repair", "-user", "u1"}, wantErr: errHelp},
		{name: "reset: no flags", args: []string{"reset"}, wantErr: errHelp},
		{name: "repair consistent pair", args: []string{"repair", "-user", "u1", "-journey", "jny1"}, wantOut: "nothing to correct"},
		{name: "repairall empty", args: []string{"repairall"}, wantOut: "swept 0 pairs, corrected 0"},
		{name: "reset untouched pair", args: []string{"reset", "-user", "u1", "-journey", "jny1"}, wantOut: "status=not_started"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cli, _, _, out := setup(t)

			err := cli.run(append([]string{"admin"}, tt.args...))
			if err != tt.wantErr {
				t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantOut != "" && !strings.Contains(out.String(), tt.wantOut) {
				t.Errorf("cli.run() out = %q, want substring %q", out.String(), tt.wantOut)
			}
		})
	}
}

func Test_commandLine_repair(t *testing.T) {
	cli, svc, db, out := setup(t)

	completeStep(t, svc, "u1", "s1")
	db.CorruptProgress(progress.JourneyProgress{
		UserID:      "u1",
		JourneyID:   "jny1",
		Status:      progress.StatusInProgress,
		TotalPoints: 9999,
	})

	if err := cli.run([]string{"admin", "repair", "-user", "u1", "-journey", "jny1"}); err != nil {
		t.Fatalf("cli.run() failed: %v", err)
	}
	if !strings.Contains(out.String(), "corrected") {
		t.Errorf("cli.run() out = %q, want a correction", out.String())
	}

	snap, err := svc.GetSnapshot(context.Background(), "u1", "jny1")
	if err != nil {
		t.Fatalf("GetSnapshot() failed: %v", err)
	}
	if snap.TotalPoints != 10 {
		t.Errorf("total points = %d, want 10", snap.TotalPoints)
	}
}

func Test_commandLine_repairAll(t *testing.T) {
	cli, svc, db, out := setup(t)

	completeStep(t, svc, "u1", "s1")
	completeStep(t, svc, "u2", "s1")
	db.CorruptProgress(progress.JourneyProgress{
		UserID:      "u2",
		JourneyID:   "jny1",
		Status:      progress.StatusCompleted,
		TotalPoints: 500,
	})

	if err := cli.run([]string{"admin", "repairall"}); err != nil {
		t.Fatalf("cli.run() failed: %v", err)
	}
	if !strings.Contains(out.String(), "swept 2 pairs, corrected 1") {
		t.Errorf("cli.run() out = %q, want sweep summary", out.String())
	}
}

func Test_commandLine_reset(t *testing.T) {
	cli, svc, db, _ := setup(t)

	completeStep(t, svc, "u1", "s1")
	completeStep(t, svc, "u1", "s2")

	if err := cli.run([]string{"admin", "reset", "-user", "u1", "-journey", "jny1"}); err != nil {
		t.Fatalf("cli.run() failed: %v", err)
	}

	snap, err := svc.GetSnapshot(context.Background(), "u1", "jny1")
	if err != nil {
		t.Fatalf("GetSnapshot() failed: %v", err)
	}
	if snap.Status != progress.StatusNotStarted {
		t.Errorf("status = %s, want %s", snap.Status, progress.StatusNotStarted)
	}
	if got := len(db.ArchivedCompletions()); got != 2 {
		t.Errorf("archived completions = %d, want 2", got)
	}
}
