package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"
	"go.temporal.io/sdk/client"
)

func listSchedulesCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-schedules",
		Usage:   "List all Temporal schedules",
		Aliases: []string{"ls"},
		Action: func(c *cli.Context) error {
			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			ctx := context.Background()
			iter, err := temporalClient.ScheduleClient().List(ctx, client.ScheduleListOptions{
				PageSize: 100,
			})
			if err != nil {
				return fmt.Errorf("failed to list schedules: %w", err)
			}

			// Pretty table output
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SCHEDULE ID")
			count := 0
			for iter.HasNext() {
				schedule, err := iter.Next()
				if err != nil {
					return fmt.Errorf("failed to iterate schedules: %w", err)
				}
				fmt.Fprintf(w, "%s\n", schedule.ID)
				count++
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d schedules\n", count)
			return nil
		},
	}
}

func describeScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:      "describe-schedule",
		Usage:     "Describe a Temporal schedule",
		Aliases:   []string{"desc"},
		ArgsUsage: "<schedule-id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: schedule ID")
			}

			scheduleID := c.Args().First()
			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			ctx := context.Background()
			handle := temporalClient.ScheduleClient().GetHandle(ctx, scheduleID)
			desc, err := handle.Describe(ctx)
			if err != nil {
				return fmt.Errorf("failed to describe schedule: %w", err)
			}

			// Pretty output
			fmt.Printf("Schedule ID:    %s\n", scheduleID)
			fmt.Printf("State Note:     %s\n", desc.Schedule.State.Note)
			fmt.Printf("Paused:         %v\n", desc.Schedule.State.Paused)

			if action := desc.Schedule.Action; action != nil {
				if wa, ok := action.(*client.ScheduleWorkflowAction); ok {
					fmt.Printf("\nWorkflow:\n")
					fmt.Printf("  Workflow:     %s\n", wa.Workflow)
					fmt.Printf("  Task Queue:   %s\n", wa.TaskQueue)
					fmt.Printf("  Args:         %v\n", wa.Args)
				}
			}

			if len(desc.Schedule.Spec.Intervals) > 0 {
				fmt.Printf("\nSchedule Spec:\n")
				for i, interval := range desc.Schedule.Spec.Intervals {
					fmt.Printf("  Interval %d:   Every %v\n", i+1, interval.Every)
				}
			}

			fmt.Printf("\nRecent Actions: %d\n", len(desc.Info.RecentActions))
			if len(desc.Info.RecentActions) > 0 {
				lastAction := desc.Info.RecentActions[len(desc.Info.RecentActions)-1]
				fmt.Printf("Last Action:  %s\n", lastAction.ActualTime.Format(time.RFC3339))
			}

			return nil
		},
	}
}

func pauseScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:      "pause-schedule",
		Usage:     "Pause a Temporal schedule",
		Aliases:   []string{"pause"},
		ArgsUsage: "<schedule-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "note",
				Usage: "Note explaining why the schedule is paused",
				Value: "paused via solsync CLI",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: schedule ID")
			}

			scheduleID := c.Args().First()
			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			ctx := context.Background()
			handle := temporalClient.ScheduleClient().GetHandle(ctx, scheduleID)
			if err := handle.Pause(ctx, client.SchedulePauseOptions{Note: c.String("note")}); err != nil {
				return fmt.Errorf("failed to pause schedule: %w", err)
			}

			fmt.Printf("Paused schedule %s\n", scheduleID)
			return nil
		},
	}
}

func resumeScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:      "resume-schedule",
		Usage:     "Resume a paused Temporal schedule",
		Aliases:   []string{"resume"},
		ArgsUsage: "<schedule-id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: schedule ID")
			}

			scheduleID := c.Args().First()
			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			ctx := context.Background()
			handle := temporalClient.ScheduleClient().GetHandle(ctx, scheduleID)
			if err := handle.Unpause(ctx, client.ScheduleUnpauseOptions{Note: "resumed via solsync CLI"}); err != nil {
				return fmt.Errorf("failed to resume schedule: %w", err)
			}

			fmt.Printf("Resumed schedule %s\n", scheduleID)
			return nil
		},
	}
}

func deleteScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete-schedule",
		Usage:     "Delete a Temporal schedule",
		ArgsUsage: "<schedule-id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "force",
				Aliases: []string{"f"},
				Usage:   "Skip confirmation",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: schedule ID")
			}

			scheduleID := c.Args().First()

			if !c.Bool("force") {
				fmt.Printf("Delete schedule %s? [y/N]: ", scheduleID)
				var answer string
				fmt.Scanln(&answer)
				if strings.ToLower(answer) != "y" {
					fmt.Println("Aborted")
					return nil
				}
			}

			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			ctx := context.Background()
			handle := temporalClient.ScheduleClient().GetHandle(ctx, scheduleID)
			if err := handle.Delete(ctx); err != nil {
				return fmt.Errorf("failed to delete schedule: %w", err)
			}

			fmt.Printf("Deleted schedule %s\n", scheduleID)
			return nil
		},
	}
}

func reconcileCommand() *cli.Command {
	return &cli.Command{
		Name:  "reconcile",
		Usage: "Reconcile Temporal schedules with registered accounts",
		Description: `Compare the tracked accounts in the database with the existing sync
schedules, create schedules that are missing, and optionally delete
schedules whose accounts are no longer registered.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "delete-orphans",
				Usage: "Delete sync schedules for accounts that are no longer registered",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Print the plan without changing anything",
			},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			ctx := context.Background()
			accounts, err := store.ListTrackedAccounts(ctx)
			if err != nil {
				return fmt.Errorf("failed to list tracked accounts: %w", err)
			}

			scheduler, err := getScheduler(c)
			if err != nil {
				return err
			}
			defer scheduler.Close()

			// Collect existing sync schedules keyed by schedule ID.
			existing := make(map[string]bool)
			iter, err := scheduler.SDKClient().ScheduleClient().List(ctx, client.ScheduleListOptions{
				PageSize: 100,
			})
			if err != nil {
				return fmt.Errorf("failed to list schedules: %w", err)
			}
			for iter.HasNext() {
				schedule, err := iter.Next()
				if err != nil {
					return fmt.Errorf("failed to iterate schedules: %w", err)
				}
				if strings.HasPrefix(schedule.ID, "sync-account-") {
					existing[schedule.ID] = true
				}
			}

			wanted := make(map[string]bool)
			created := 0
			for _, account := range accounts {
				id := "sync-account-" + account.Address
				wanted[id] = true
				if existing[id] {
					continue
				}

				fmt.Printf("create  %s (interval %v)\n", id, account.SyncInterval)
				if c.Bool("dry-run") {
					continue
				}
				if err := scheduler.CreateAccountSchedule(ctx, account.Address, account.SyncInterval); err != nil {
					return fmt.Errorf("failed to create schedule for %s: %w", account.Address, err)
				}
				created++
			}

			deleted := 0
			if c.Bool("delete-orphans") {
				for id := range existing {
					if wanted[id] {
						continue
					}

					fmt.Printf("delete  %s\n", id)
					if c.Bool("dry-run") {
						continue
					}
					address := strings.TrimPrefix(id, "sync-account-")
					if err := scheduler.DeleteAccountSchedule(ctx, address); err != nil {
						return fmt.Errorf("failed to delete schedule %s: %w", id, err)
					}
					deleted++
				}
			}

			if c.Bool("dry-run") {
				fmt.Fprintln(os.Stderr, "\n(dry run: nothing changed)")
				return nil
			}

			fmt.Fprintf(os.Stderr, "\nReconciled: %d created, %d deleted, %d accounts tracked\n", created, deleted, len(accounts))
			return nil
		},
	}
}

// Helper function to connect the raw Temporal SDK client
func getTemporalClient(c *cli.Context) (client.Client, error) {
	temporalClient, err := client.Dial(client.Options{
		HostPort:  c.String("temporal-host"),
		Namespace: c.String("temporal-namespace"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to temporal at %s: %w", c.String("temporal-host"), err)
	}
	return temporalClient, nil
}
