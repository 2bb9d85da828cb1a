package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/brojonat/solsync/service/chain"
	"github.com/brojonat/solsync/service/db"
	"github.com/brojonat/solsync/service/ledger"
	"github.com/brojonat/solsync/service/tokenlist"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/urfave/cli/v2"
)

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:      "sync",
		Usage:     "Run one sync pass for an account against the chain",
		ArgsUsage: "<address>",
		Description: `Fetch the current balance, token accounts, and transaction history for an
account, derive operations, and merge them with the persisted state.

By default the resulting snapshot is written back to the database. Use
--dry-run to print it without persisting.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Do not persist the snapshot",
			},
			&cli.BoolFlag{
				Name:  "fresh",
				Usage: "Ignore persisted state and re-derive the full window",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: account address")
			}

			address := c.Args().First()
			addr, err := solanago.PublicKeyFromBase58(address)
			if err != nil {
				return fmt.Errorf("invalid account address %q: %w", address, err)
			}

			reader := getChainReader(c)
			synchronizer := ledger.NewSynchronizer(reader, getTokenRegistry(), nil, nil)

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			ctx := context.Background()

			var prior *ledger.Account
			if !c.Bool("fresh") {
				prior, err = store.GetAccount(ctx, ledger.AccountID(addr))
				if err != nil && !errors.Is(err, db.ErrNotFound) {
					return fmt.Errorf("failed to load persisted state: %w", err)
				}
			}

			account, err := synchronizer.Sync(ctx, addr, prior)
			if err != nil {
				return fmt.Errorf("sync failed: %w", err)
			}

			if !c.Bool("dry-run") {
				if err := store.SaveAccountSnapshot(ctx, account); err != nil {
					return fmt.Errorf("failed to save snapshot: %w", err)
				}
			}

			if c.Bool("json") {
				return outputJSON(account)
			}

			fmt.Printf("Synchronized %s\n", account.ID)
			fmt.Printf("  Balance:        %d lamports (spendable %d)\n", account.Balance, account.SpendableBalance)
			fmt.Printf("  Block Height:   %d\n", account.BlockHeight)
			fmt.Printf("  Operations:     %d\n", len(account.Operations))
			fmt.Printf("  Token Accounts: %d\n", len(account.SubAccounts))
			for _, sub := range account.SubAccounts {
				fmt.Printf("    %s  balance=%d operations=%d\n", sub.Symbol, sub.Balance, len(sub.Operations))
			}
			if c.Bool("dry-run") {
				fmt.Fprintln(os.Stderr, "\n(dry run: snapshot not persisted)")
			}
			return nil
		},
	}
}

// Helper function to build a chain reader from the global RPC flag
func getChainReader(c *cli.Context) chain.Reader {
	endpoint := c.String("solana-rpc-url")
	return chain.NewClient(chain.NewRPCClient(endpoint), endpointLabel(endpoint), nil, nil)
}

// Helper function to build the token registry from the environment
func getTokenRegistry() *tokenlist.Registry {
	raw := os.Getenv("KNOWN_TOKEN_MINTS")
	if raw == "" {
		return tokenlist.Default()
	}
	registry, err := tokenlist.Parse(strings.Split(raw, ","))
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: ignoring malformed KNOWN_TOKEN_MINTS: %v\n", err)
		return tokenlist.Default()
	}
	return registry
}

// endpointLabel shortens an RPC URL to a stable metrics/label identifier.
func endpointLabel(endpoint string) string {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(endpoint, "https://"), "http://")
	if i := strings.IndexByte(trimmed, '/'); i >= 0 {
		trimmed = trimmed[:i]
	}
	return trimmed
}
