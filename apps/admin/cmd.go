package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/wayquest/backend/core/progress"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	progressSvc progress.ServiceInterface
	out         io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  repair -user USER_ID -journey JOURNEY_ID - recompute the pair's aggregate from the ledger and correct drift")
	fmt.Fprintln(cli.out, "  repairall - sweep every known (user, journey) pair")
	fmt.Fprintln(cli.out, "  reset -user USER_ID -journey JOURNEY_ID - reset the pair's progress for replay")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	repairCmd := flag.NewFlagSet("repair", flag.ExitOnError)
	repairUser := repairCmd.String("user", "", "The visitor's user id.")
	repairJourney := repairCmd.String("journey", "", "The journey id.")

	resetCmd := flag.NewFlagSet("reset", flag.ExitOnError)
	resetUser := resetCmd.String("user", "", "The visitor's user id.")
	resetJourney := resetCmd.String("journey", "", "The journey id.")

	ctx := context.Background()

	switch args[1] {
	case "repair":
		if err := repairCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *repairUser == "" || *repairJourney == "" {
			repairCmd.Usage()
			return errHelp
		}
		return cli.repair(ctx, *repairUser, *repairJourney)
	case "repairall":
		return cli.repairAll(ctx)
	case "reset":
		if err := resetCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetUser == "" || *resetJourney == "" {
			resetCmd.Usage()
			return errHelp
		}
		return cli.reset(ctx, *resetUser, *resetJourney)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) repair(ctx context.Context, userID, journeyID string) error {
	report, err := cli.progressSvc.Repair(ctx, userID, journeyID)
	if err != nil {
		return err
	}
	cli.printReport(report)
	return nil
}

func (cli *commandLine) repairAll(ctx context.Context) error {
	reports, err := cli.progressSvc.RepairAll(ctx)
	if err != nil {
		return err
	}
	var corrected int
	for _, report := range reports {
		if report.Corrected {
			corrected++
			cli.printReport(report)
		}
	}
	fmt.Fprintf(cli.out, "swept %d pairs, corrected %d\n", len(reports), corrected)
	return nil
}

func (cli *commandLine) reset(ctx context.Context, userID, journeyID string) error {
	snap, err := cli.progressSvc.ResetForReplay(ctx, userID, journeyID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "reset %s/%s: status=%s total_points=%d\n", userID, journeyID, snap.Status, snap.TotalPoints)
	return nil
}

func (cli *commandLine) printReport(report progress.Report) {
	if !report.Corrected {
		fmt.Fprintf(cli.out, "%s/%s: consistent, nothing to correct\n", report.UserID, report.JourneyID)
		return
	}
	fmt.Fprintf(cli.out, "%s/%s: corrected\n", report.UserID, report.JourneyID)
	for _, c := range report.Corrections {
		fmt.Fprintf(cli.out, "  - %s\n", c)
	}
}
