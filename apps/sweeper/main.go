package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"github.com/wayquest/backend/core"
	"github.com/wayquest/backend/core/journey"
	"github.com/wayquest/backend/core/progress"
	logsvc "github.com/wayquest/backend/services/logger"
	"github.com/wayquest/backend/storage/database"
)

// sweeper runs the periodic repair sweep. It operates under eventual
// consistency: it only heals pre-existing drift and never blocks the live
// validation path, so it is safe to run alongside API traffic.
func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "SWEEP : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	db, err := database.SetUp(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() { _ = db.Close() }()

	journeySvc := journey.NewService(database.NewJourneyRepository(db))
	progressSvc := progress.NewService(database.NewProgressRepository(db), journeySvc, nil /* events */, logger, conf)

	c := cron.New()
	_, err = c.AddFunc(conf.Progress.SweepSchedule, func() {
		reports, err := progressSvc.RepairAll(context.Background())
		if err != nil {
			logger.Error(fmt.Sprintf("repair sweep failed: %v", err), err)
			return
		}
		var corrected int
		for _, report := range reports {
			if report.Corrected {
				corrected++
			}
		}
		logger.Info(fmt.Sprintf("repair sweep done: %d pairs, %d corrected", len(reports), corrected))
	})
	if err != nil {
		logger.Fatal(fmt.Sprintf("invalid sweep schedule %q: %v", conf.Progress.SweepSchedule, err), err)
	}

	logger.Info(fmt.Sprintf("sweeper starting: schedule %q", conf.Progress.SweepSchedule))
	c.Start()
	defer c.Stop()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	sig := <-shutdown
	logger.Info(fmt.Sprintf("%v: sweeper stopping", sig))
}
