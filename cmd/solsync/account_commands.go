package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/brojonat/solsync/service/db"
	"github.com/brojonat/solsync/service/ledger"
	"github.com/brojonat/solsync/service/temporal"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"
)

func registerAccountCommand() *cli.Command {
	return &cli.Command{
		Name:      "register",
		Usage:     "Register an account for continuous synchronization",
		ArgsUsage: "<address>",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:    "interval",
				Aliases: []string{"i"},
				Usage:   "Sync interval",
				Value:   30 * time.Second,
			},
			&cli.BoolFlag{
				Name:  "no-schedule",
				Usage: "Only record the account in the database, do not create a Temporal schedule",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: account address")
			}

			address := c.Args().First()
			if _, err := solanago.PublicKeyFromBase58(address); err != nil {
				return fmt.Errorf("invalid account address %q: %w", address, err)
			}

			interval := c.Duration("interval")

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			ctx := context.Background()
			if err := store.RegisterAccount(ctx, address, interval); err != nil {
				return fmt.Errorf("failed to register account: %w", err)
			}

			if !c.Bool("no-schedule") {
				scheduler, err := getScheduler(c)
				if err != nil {
					return err
				}
				defer scheduler.Close()

				if err := scheduler.UpsertAccountSchedule(ctx, address, interval); err != nil {
					return fmt.Errorf("failed to create sync schedule: %w", err)
				}
			}

			fmt.Printf("Registered %s (interval %v)\n", address, interval)
			return nil
		},
	}
}

func unregisterAccountCommand() *cli.Command {
	return &cli.Command{
		Name:      "unregister",
		Usage:     "Stop synchronizing an account",
		ArgsUsage: "<address>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "keep-schedule",
				Usage: "Only remove the database record, keep the Temporal schedule",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: account address")
			}

			address := c.Args().First()
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			ctx := context.Background()
			if err := store.UnregisterAccount(ctx, address); err != nil {
				return fmt.Errorf("failed to unregister account: %w", err)
			}

			if !c.Bool("keep-schedule") {
				scheduler, err := getScheduler(c)
				if err != nil {
					return err
				}
				defer scheduler.Close()

				if err := scheduler.DeleteAccountSchedule(ctx, address); err != nil {
					// The schedule may never have existed.
					fmt.Fprintf(os.Stderr, "warning: could not delete schedule: %v\n", err)
				}
			}

			fmt.Printf("Unregistered %s\n", address)
			return nil
		},
	}
}

func listAccountsCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Usage:   "List all tracked accounts",
		Aliases: []string{"ls"},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			accounts, err := store.ListTrackedAccounts(context.Background())
			if err != nil {
				return fmt.Errorf("failed to list accounts: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(accounts)
			}

			// Pretty table output
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ADDRESS\tSYNC INTERVAL\tREGISTERED")
			for _, account := range accounts {
				fmt.Fprintf(w, "%s\t%v\t%s\n",
					account.Address,
					account.SyncInterval,
					account.CreatedAt.Format(time.RFC3339),
				)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d accounts\n", len(accounts))
			return nil
		},
	}
}

func getAccountCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Show the last synchronized state of an account",
		ArgsUsage: "<address>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: account address")
			}

			address := c.Args().First()
			addr, err := solanago.PublicKeyFromBase58(address)
			if err != nil {
				return fmt.Errorf("invalid account address %q: %w", address, err)
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			account, err := store.GetAccount(context.Background(), ledger.AccountID(addr))
			if err != nil {
				return fmt.Errorf("failed to get account: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(account)
			}

			// Pretty output
			fmt.Printf("Account:           %s\n", account.ID)
			fmt.Printf("Balance:           %.9f SOL (%d lamports)\n", float64(account.Balance)/1e9, account.Balance)
			fmt.Printf("Spendable:         %d lamports\n", account.SpendableBalance)
			fmt.Printf("Block Height:      %d\n", account.BlockHeight)
			fmt.Printf("Operations:        %d\n", len(account.Operations))
			fmt.Printf("Token Accounts:    %d\n", len(account.SubAccounts))
			for _, sub := range account.SubAccounts {
				fmt.Printf("  %s  %d (%s, %d decimals)\n", sub.Symbol, sub.Balance, sub.Mint, sub.Decimals)
			}
			return nil
		},
	}
}

// Helper function to connect to the database
func getStore(c *cli.Context) (*db.Store, func(), error) {
	dbURL := c.String("database-url")
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		return nil, nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := db.NewStore(pool, nil)
	closer := func() { pool.Close() }

	return store, closer, nil
}

// Helper function to build a schedule-managing Temporal client
func getScheduler(c *cli.Context) (*temporal.Client, error) {
	return temporal.NewClient(
		c.String("temporal-host"),
		c.String("temporal-namespace"),
		c.String("task-queue"),
		nil,
	)
}

// Helper function to output JSON
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
