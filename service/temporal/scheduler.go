package temporal

import (
	"context"
	"time"
)

// Scheduler manages Temporal schedules for account synchronization.
// Each tracked account gets its own schedule that triggers the
// SyncAccountWorkflow.
type Scheduler interface {
	// CreateAccountSchedule creates a new schedule for syncing an account.
	// The schedule will trigger the SyncAccountWorkflow on the given interval.
	CreateAccountSchedule(ctx context.Context, address string, interval time.Duration) error

	// UpsertAccountSchedule creates the schedule if it does not exist, or
	// updates its interval if it does.
	UpsertAccountSchedule(ctx context.Context, address string, interval time.Duration) error

	// DeleteAccountSchedule deletes the schedule for an account.
	// This stops the account from being synchronized.
	DeleteAccountSchedule(ctx context.Context, address string) error
}

// scheduleID returns the Temporal schedule ID for an account address.
func scheduleID(address string) string {
	return "sync-account-" + address
}
