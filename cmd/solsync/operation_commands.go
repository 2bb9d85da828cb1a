package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/solsync/service/ledger"
	natspkg "github.com/brojonat/solsync/service/nats"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/itchyny/gojq"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/urfave/cli/v2"
)

func listOperationsCommand() *cli.Command {
	return &cli.Command{
		Name:      "list",
		Usage:     "List derived operations for an account",
		Aliases:   []string{"ls"},
		ArgsUsage: "<address>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of operations",
				Value:   50,
			},
			&cli.StringSliceFlag{
				Name:  "filter",
				Usage: "jq expression each operation must satisfy (can be repeated)",
			},
			&cli.StringFlag{
				Name:  "format",
				Usage: "Output format: json (default) or human",
				Value: "json",
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

			filters, err := compileJQFilters(c.StringSlice("filter"))
			if err != nil {
				return err
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			operations, err := store.ListOperations(context.Background(), ledger.AccountID(addr), int32(c.Int("limit")))
			if err != nil {
				return fmt.Errorf("failed to list operations: %w", err)
			}

			if len(filters) > 0 {
				filtered := make([]*ledger.Operation, 0, len(operations))
				for _, op := range operations {
					if matchesJQFilters(op, filters) {
						filtered = append(filtered, op)
					}
				}
				operations = filtered
			}

			// Default to JSON output (stdout = JSON)
			if c.String("format") == "json" {
				return outputJSON(operations)
			}

			if len(operations) == 0 {
				fmt.Println("No operations found")
				return nil
			}

			for i, op := range operations {
				if i > 0 {
					fmt.Println("────────────────────────────────────────────────────────────────────────")
				}
				printOperation(op)
			}

			fmt.Fprintf(os.Stderr, "\nTotal: %d operations\n", len(operations))
			return nil
		},
	}
}

func watchOperationsCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Stream operation events for an account from NATS",
		ArgsUsage: "<address>",
		Description: `Subscribe to real-time operation events published to NATS JetStream.

Events are published to the subject: ops.{account_address}

Example:
  solsync operations watch 4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T --filter '.kind == "IN"'`,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "filter",
				Usage: "jq expression each event must satisfy (can be repeated)",
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Usage:   "Stop after this long (0 = run until interrupted)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: account address")
			}

			address := c.Args().First()
			natsURL := c.String("nats-url")
			jsonOutput := c.Bool("json")

			filters, err := compileJQFilters(c.StringSlice("filter"))
			if err != nil {
				return err
			}

			nc, err := nats.Connect(natsURL)
			if err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("failed to create JetStream context: %w", err)
			}

			subject := fmt.Sprintf("ops.%s", address)

			ctx := context.Background()
			var cancel context.CancelFunc
			if timeout := c.Duration("timeout"); timeout > 0 {
				ctx, cancel = context.WithTimeout(ctx, timeout)
			} else {
				ctx, cancel = context.WithCancel(ctx)
			}
			defer cancel()

			cons, err := js.CreateOrUpdateConsumer(ctx, natspkg.StreamName, jetstream.ConsumerConfig{
				FilterSubject: subject,
				AckPolicy:     jetstream.AckExplicitPolicy,
			})
			if err != nil {
				return fmt.Errorf("failed to create consumer: %w", err)
			}

			if !jsonOutput {
				fmt.Fprintf(os.Stderr, "Watching %s", subject)
				for _, f := range c.StringSlice("filter") {
					fmt.Fprintf(os.Stderr, " [%s]", f)
				}
				fmt.Fprintln(os.Stderr)
			}

			received := 0
			consumeCtx, err := cons.Consume(func(msg jetstream.Msg) {
				defer msg.Ack()

				var event natspkg.OperationEvent
				if err := json.Unmarshal(msg.Data(), &event); err != nil {
					fmt.Fprintf(os.Stderr, "Error parsing event: %v\n", err)
					return
				}

				if !matchesJQFilters(&event, filters) {
					return
				}

				received++
				if jsonOutput {
					data, _ := json.Marshal(event)
					fmt.Println(string(data))
				} else {
					fmt.Printf("%s  %s  %-10s  value=%d fee=%d  %s\n",
						event.Date.Format(time.RFC3339),
						event.TxHash,
						event.Kind,
						event.Value,
						event.Fee,
						event.OperationID,
					)
				}
			})
			if err != nil {
				return fmt.Errorf("failed to consume: %w", err)
			}
			defer consumeCtx.Stop()

			// Wait for timeout or interrupt
			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			select {
			case <-ctx.Done():
			case <-sig:
			}

			if !jsonOutput {
				fmt.Fprintf(os.Stderr, "\nReceived %d events\n", received)
			}
			return nil
		},
	}
}

// compileJQFilters parses and compiles a list of jq expressions.
func compileJQFilters(exprs []string) ([]*gojq.Code, error) {
	compiled := make([]*gojq.Code, len(exprs))
	for i, expr := range exprs {
		query, err := gojq.Parse(expr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse jq filter %q: %w", expr, err)
		}
		compiled[i], err = gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq filter %q: %w", expr, err)
		}
	}
	return compiled, nil
}

// matchesJQFilters reports whether v, serialized to JSON, satisfies every
// compiled filter. Filters that error or return a falsy value fail.
func matchesJQFilters(v interface{}, filters []*gojq.Code) bool {
	if len(filters) == 0 {
		return true
	}

	// Round-trip through JSON so jq sees plain maps and numbers.
	data, err := json.Marshal(v)
	if err != nil {
		return false
	}
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return false
	}

	for _, code := range filters {
		iter := code.Run(doc)
		result, ok := iter.Next()
		if !ok {
			return false
		}
		if _, isErr := result.(error); isErr {
			return false
		}
		if !isTruthy(result) {
			return false
		}
	}
	return true
}

// isTruthy checks if a jq result value is truthy.
// In jq, false and null are falsy, everything else is truthy.
func isTruthy(v interface{}) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	// Everything else (numbers, strings, objects, arrays) is truthy
	return true
}

func printOperation(op *ledger.Operation) {
	fmt.Printf("ID:           %s\n", op.ID)
	fmt.Printf("Transaction:  %s\n", op.TxHash)
	fmt.Printf("Kind:         %s\n", op.Kind)
	fmt.Printf("Value:        %d\n", op.Value)
	fmt.Printf("Fee:          %d\n", op.Fee)
	fmt.Printf("Block Height: %d\n", op.BlockHeight)
	fmt.Printf("Date:         %s\n", op.Date.Format(time.RFC3339))
	if op.HasFailed {
		fmt.Printf("Status:       FAILED\n")
	}
	if op.Memo != nil && *op.Memo != "" {
		fmt.Printf("Memo:         %s\n", *op.Memo)
	}
}
