package main

import (
	"context"
	"fmt"
	"os"

	"github.com/brojonat/solsync/service/ledger"
	"github.com/brojonat/solsync/service/prepare"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/urfave/cli/v2"
)

func prepareTransferCommand() *cli.Command {
	return &cli.Command{
		Name:      "transfer",
		Usage:     "Validate and prepare a native or token transfer",
		ArgsUsage: "<sender-address>",
		Description: `Run the full preparation pipeline against the last synchronized state of
the sender: validate the intent, resolve the recipient, estimate fees, and
pack ancillary consolidation steps for token transfers.

The command never signs or submits anything; it prints the resulting
command descriptor, including any per-field errors and warnings.

Examples:
  solsync prepare transfer SENDER --recipient RECIPIENT --amount 1000000
  solsync prepare transfer SENDER --recipient RECIPIENT --all --sub-account "solana:SENDER+TOKENACCT"
  solsync prepare transfer SENDER --recipient RECIPIENT --amount 250000 --mint EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "recipient",
				Aliases:  []string{"r"},
				Usage:    "Recipient wallet address",
				Required: true,
			},
			&cli.Uint64Flag{
				Name:    "amount",
				Aliases: []string{"a"},
				Usage:   "Amount in base units (lamports or token units)",
			},
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Send the whole spendable balance",
			},
			&cli.StringFlag{
				Name:    "memo",
				Aliases: []string{"m"},
				Usage:   "Memo to attach to the transfer",
			},
			&cli.StringFlag{
				Name:  "sub-account",
				Usage: "Token sub-account ID to send from",
			},
			&cli.StringFlag{
				Name:  "mint",
				Usage: "Token mint to send from (alternative to --sub-account)",
			},
			&cli.BoolFlag{
				Name:  "sync",
				Usage: "Run a sync pass before preparing",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: sender address")
			}

			account, err := loadAccountForPrepare(c, c.Args().First())
			if err != nil {
				return err
			}

			intent := prepare.TransferIntent{
				Recipient:    c.String("recipient"),
				Amount:       c.Uint64("amount"),
				UseAllAmount: c.Bool("all"),
				Memo:         c.String("memo"),
				SubAccountID: c.String("sub-account"),
			}

			if mint := c.String("mint"); mint != "" {
				if intent.SubAccountID != "" {
					return fmt.Errorf("--mint and --sub-account are mutually exclusive")
				}
				sub := findSubAccountByMint(account, mint)
				if sub == nil {
					return fmt.Errorf("account holds no sub-account for mint %s", mint)
				}
				intent.SubAccountID = sub.ID
			}

			reader := getChainReader(c)
			preparer := prepare.NewPreparer(reader, nil, nil)

			descriptor, err := preparer.Prepare(context.Background(), account, intent)
			if err != nil {
				return fmt.Errorf("preparation failed: %w", err)
			}

			return printDescriptor(c, descriptor)
		},
	}
}

func prepareCreateTokenAccountCommand() *cli.Command {
	return &cli.Command{
		Name:      "create-token-account",
		Usage:     "Prepare an opt-in to a token (associated account creation)",
		ArgsUsage: "<owner-address>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "mint",
				Usage:    "Token mint to opt into",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "sync",
				Usage: "Run a sync pass before preparing",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: owner address")
			}

			mint, err := solanago.PublicKeyFromBase58(c.String("mint"))
			if err != nil {
				return fmt.Errorf("invalid mint %q: %w", c.String("mint"), err)
			}

			account, err := loadAccountForPrepare(c, c.Args().First())
			if err != nil {
				return err
			}

			reader := getChainReader(c)
			preparer := prepare.NewPreparer(reader, nil, nil)

			descriptor, err := preparer.PrepareCreateTokenAccount(context.Background(), account, mint)
			if err != nil {
				return fmt.Errorf("preparation failed: %w", err)
			}

			return printDescriptor(c, descriptor)
		},
	}
}

// loadAccountForPrepare loads the sender's state from the database,
// optionally refreshing it with a sync pass first.
func loadAccountForPrepare(c *cli.Context, address string) (*ledger.Account, error) {
	addr, err := solanago.PublicKeyFromBase58(address)
	if err != nil {
		return nil, fmt.Errorf("invalid account address %q: %w", address, err)
	}

	store, closer, err := getStore(c)
	if err != nil {
		return nil, err
	}
	defer closer()

	ctx := context.Background()
	account, err := store.GetAccount(ctx, ledger.AccountID(addr))

	if c.Bool("sync") {
		var prior *ledger.Account
		if err == nil {
			prior = account
		}
		synchronizer := newCLISynchronizer(c)
		account, err = synchronizer.Sync(ctx, addr, prior)
		if err != nil {
			return nil, fmt.Errorf("sync failed: %w", err)
		}
		if saveErr := store.SaveAccountSnapshot(ctx, account); saveErr != nil {
			fmt.Fprintf(os.Stderr, "warning: could not persist refreshed snapshot: %v\n", saveErr)
		}
		return account, nil
	}

	if err != nil {
		return nil, fmt.Errorf("no synchronized state for %s (run `solsync sync %s` first): %w", address, address, err)
	}
	return account, nil
}

func newCLISynchronizer(c *cli.Context) *ledger.Synchronizer {
	return ledger.NewSynchronizer(getChainReader(c), getTokenRegistry(), nil, nil)
}

func findSubAccountByMint(account *ledger.Account, mint string) *ledger.TokenSubAccount {
	for _, sub := range account.SubAccounts {
		if sub.Mint.String() == mint {
			return sub
		}
	}
	return nil
}

// descriptorOutput is the JSON shape printed for a prepared command. The
// error values in the descriptor do not marshal usefully, so they are
// flattened to strings.
type descriptorOutput struct {
	Valid    bool              `json:"valid"`
	Kind     string            `json:"kind,omitempty"`
	Command  prepare.Command   `json:"command,omitempty"`
	Fees     uint64            `json:"fees"`
	Errors   map[string]string `json:"errors,omitempty"`
	Warnings map[string]string `json:"warnings,omitempty"`
}

func printDescriptor(c *cli.Context, d *prepare.CommandDescriptor) error {
	out := descriptorOutput{
		Valid:    d.Valid(),
		Fees:     d.Fees,
		Errors:   flattenErrors(d.Errors),
		Warnings: flattenErrors(d.Warnings),
	}
	if d.Command != nil {
		out.Kind = d.Command.Kind()
		out.Command = d.Command
	}

	if c.Bool("json") {
		return outputJSON(out)
	}

	if out.Valid {
		fmt.Printf("Command:  %s\n", out.Kind)
		fmt.Printf("Fees:     %d lamports\n", out.Fees)
	} else {
		fmt.Println("Command:  (invalid)")
	}
	for field, msg := range out.Errors {
		fmt.Printf("Error:    %s: %s\n", field, msg)
	}
	for field, msg := range out.Warnings {
		fmt.Printf("Warning:  %s: %s\n", field, msg)
	}
	if out.Valid {
		fmt.Fprintln(os.Stderr, "\nUse --json for the full command payload.")
	}

	if !out.Valid {
		return cli.Exit("", 1)
	}
	return nil
}

func flattenErrors(m map[string]error) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for field, err := range m {
		out[field] = err.Error()
	}
	return out
}
