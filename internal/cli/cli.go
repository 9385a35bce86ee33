// Package cli provides the command line interface of the orchestrator.
package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/deckhand-sh/deckhand/internal/cmd"
)

// Run handles the instantiation of the CLI application.
func Run(version string, args []string) {
	err := NewApp(version, time.Now()).Run(args)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// NewApp configures the CLI application.
func NewApp(version string, start time.Time) (app *cli.App) {
	app = cli.NewApp()
	app.Name = "deckhand"
	app.Version = version
	app.Usage = "Build, package and ship container deployments to remote hosts over SSH"
	app.EnableBashCompletion = true

	app.Flags = cli.FlagsByName{
		&cli.StringFlag{
			Name:    "internal-monitoring-listener-address",
			Aliases: []string{"m"},
			EnvVars: []string{"DECKHAND_INTERNAL_MONITORING_LISTENER_ADDRESS"},
			Usage:   "internal monitoring listener address",
		},
	}

	configFlag := &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		EnvVars: []string{"DECKHAND_CONFIG"},
		Usage:   "config `file`",
		Value:   "./config.yml",
	}

	redisURLFlag := &cli.StringFlag{
		Name:    "redis-url",
		EnvVars: []string{"DECKHAND_REDIS_URL"},
		Usage:   "redis `url` for an HA setup (format: redis[s]://[:password@]host[:port][/db-number][?option=value])",
	}

	webhookSecretTokenFlag := &cli.StringFlag{
		Name:    "webhook-secret-token",
		EnvVars: []string{"DECKHAND_WEBHOOK_SECRET_TOKEN"},
		Usage:   "`token` used to authenticate incoming push event requests",
	}

	app.Commands = cli.CommandsByName{
		{
			Name:   "deploy",
			Usage:  "run a single deployment from the local checkout and exit",
			Action: cmd.ExecWrapper(cmd.Deploy),
			Flags: cli.FlagsByName{
				configFlag,
				redisURLFlag,
				&cli.StringFlag{
					Name:    "target",
					Aliases: []string{"t"},
					EnvVars: []string{"DECKHAND_TARGET"},
					Usage:   "`name` of the target to deploy to (defaults to the first configured target)",
				},
				&cli.StringFlag{
					Name:    "ref",
					EnvVars: []string{"DECKHAND_REF"},
					Usage:   "branch `name` to derive the release tag from (defaults to the checked out branch)",
				},
				&cli.StringFlag{
					Name:    "revision",
					EnvVars: []string{"DECKHAND_REVISION"},
					Usage:   "`revision` to derive the release tag from (defaults to the checked out revision)",
				},
			},
		},
		{
			Name:   "serve",
			Usage:  "run the orchestrator in server mode, accepting push event triggers",
			Action: cmd.ExecWrapper(cmd.Serve),
			Flags: cli.FlagsByName{
				configFlag,
				redisURLFlag,
				webhookSecretTokenFlag,
			},
		},
		{
			Name:   "validate",
			Usage:  "validate the configuration file",
			Action: cmd.ExecWrapper(cmd.Validate),
			Flags: cli.FlagsByName{
				configFlag,
				redisURLFlag,
				webhookSecretTokenFlag,
			},
		},
		{
			Name:   "monitor",
			Usage:  "display the status of a running orchestrator",
			Action: cmd.ExecWrapper(cmd.Monitor),
		},
	}

	app.Metadata = map[string]interface{}{
		"startTime": start,
	}

	return
}
