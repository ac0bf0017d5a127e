// Command onboard runs the first-run flow in a terminal: the welcome
// carousel, the privacy consent screen and phone verification.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

var version = "dev"

func prefsFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "prefs",
		Usage:   "path of the preferences database",
		EnvVars: []string{"PREFS_PATH"},
		Value:   "phoneauth-prefs.db",
	}
}

func main() {
	app := &cli.App{
		Name:    "onboard",
		Usage:   "first-run onboarding and phone verification",
		Version: version,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Show onboarding if needed, then verify a phone number",
				Action: runFlow,
				Flags: []cli.Flag{
					prefsFlag(),
					&cli.StringFlag{
						Name:  "env-file",
						Usage: "env file read before the environment",
						Value: ".env",
					},
				},
			},
			{
				Name:   "status",
				Usage:  "Print whether onboarding was completed",
				Action: status,
				Flags:  []cli.Flag{prefsFlag()},
			},
			{
				Name:   "reset",
				Usage:  "Clear the onboarding flag so the carousel shows again",
				Action: reset,
				Flags:  []cli.Flag{prefsFlag()},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
