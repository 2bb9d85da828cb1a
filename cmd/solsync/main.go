package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	app := &cli.App{
		Name:  "solsync",
		Usage: "Solana account synchronization and transfer preparation CLI",
		Description: `A command-line tool for managing and debugging the solsync service.

Use this CLI to register accounts, inspect derived operations, run one-shot
sync passes, prepare transfers, and debug Temporal schedules.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			// Account registration and inspection commands
			{
				Name:  "accounts",
				Usage: "Account registration and inspection commands",
				Subcommands: []*cli.Command{
					registerAccountCommand(),
					unregisterAccountCommand(),
					listAccountsCommand(),
					getAccountCommand(),
				},
			},
			// Derived operation commands
			{
				Name:  "operations",
				Usage: "Derived operation inspection and streaming commands",
				Subcommands: []*cli.Command{
					listOperationsCommand(),
					watchOperationsCommand(),
				},
			},
			// One-shot sync against the chain
			syncCommand(),
			// Transfer preparation commands
			{
				Name:  "prepare",
				Usage: "Transaction preparation commands",
				Subcommands: []*cli.Command{
					prepareTransferCommand(),
					prepareCreateTokenAccountCommand(),
				},
			},
			// Temporal inspection and management commands
			{
				Name:  "temporal",
				Usage: "Temporal inspection and management commands",
				Subcommands: []*cli.Command{
					listSchedulesCommand(),
					describeScheduleCommand(),
					pauseScheduleCommand(),
					resumeScheduleCommand(),
					deleteScheduleCommand(),
					reconcileCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:    "solana-rpc-url",
				Usage:   "Solana RPC endpoint",
				EnvVars: []string{"SOLANA_RPC_URL"},
				Value:   "https://api.mainnet-beta.solana.com",
			},
			&cli.StringFlag{
				Name:    "temporal-host",
				Usage:   "Temporal server address",
				EnvVars: []string{"TEMPORAL_HOST"},
				Value:   "localhost:7233",
			},
			&cli.StringFlag{
				Name:    "temporal-namespace",
				Usage:   "Temporal namespace",
				EnvVars: []string{"TEMPORAL_NAMESPACE"},
				Value:   "default",
			},
			&cli.StringFlag{
				Name:    "task-queue",
				Usage:   "Temporal task queue",
				EnvVars: []string{"TEMPORAL_TASK_QUEUE"},
				Value:   "solsync-account-sync",
			},
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
