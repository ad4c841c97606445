package main

import (
	"fmt"
	"log"
	"os"

	"github.com/wayquest/backend/core"
	"github.com/wayquest/backend/core/journey"
	"github.com/wayquest/backend/core/progress"
	logsvc "github.com/wayquest/backend/services/logger"
	"github.com/wayquest/backend/storage/database"
)

// admin is the operator tool for the progression engine: it repairs drifted
// aggregates and resets journeys for replay. Not a visitor-facing surface.
func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
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

	cli := &commandLine{progressSvc: progressSvc, out: os.Stdout}
	if err := cli.run(os.Args); err != nil && err != errHelp {
		logger.Fatal(fmt.Sprintf("%v", err), err)
	}
}
