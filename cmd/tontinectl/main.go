package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

var version = "dev"

var (
	urlFlag = &cli.StringFlag{
		Name:    "url",
		Usage:   "tontine server base URL",
		Value:   "http://localhost:8080",
		EnvVars: []string{"TONTINE_URL"},
	}
	senderFlag = &cli.StringFlag{
		Name:    "sender",
		Usage:   "caller address sent as X-Tontine-Sender",
		EnvVars: []string{"TONTINE_SENDER"},
	}
)

func main() {
	app := cli.NewApp()

	app.Version = version
	app.Name = "tontinectl"
	app.Usage = "command line client for the tontine engine"
	app.Flags = []cli.Flag{urlFlag, senderFlag}
	app.Commands = append(
		app.Commands,
		stateCmd,
		configCmd,
		statsCmd,
		balanceCmd,
		instantiateCmd,
		startCmd,
		pauseCmd,
		resumeCmd,
		closeCmd,
		finalizeCmd,
		membersCmd,
		roundsCmd,
		depositCmd,
		distributeCmd,
		advanceCmd,
		scheduleCmd,
		scenarioCmd,
	)

	if err := app.Run(os.Args); err != nil {
		fmt.Println(fmt.Errorf("error: %v", err))
		os.Exit(1)
	}
}
