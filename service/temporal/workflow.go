package temporal

import (
	"fmt"
	"time"

	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

// SyncAccountWorkflow is the Temporal workflow that keeps one Solana account
// synchronized. It is triggered by a per-account schedule at a configured
// interval (e.g., every 30 seconds).
//
// The workflow performs these steps:
// 1. Load the persisted account state (LoadAccountState activity)
// 2. Run a full sync pass against the chain (SynchronizeAccount activity)
// 3. Persist the new snapshot (SaveAccountState activity)
// 4. Publish newly derived operations to NATS (PublishOperations activity)
func SyncAccountWorkflow(ctx workflow.Context, input SyncAccountInput) (*SyncAccountResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("SyncAccountWorkflow started", "address", input.Address)

	result := &SyncAccountResult{
		Address:  input.Address,
		SyncTime: workflow.Now(ctx),
	}

	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 300 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	// Step 1: Load the last persisted state. A fresh address yields nil.
	var loadResult *LoadAccountStateResult
	err := workflow.ExecuteActivity(ctx, a.LoadAccountState, LoadAccountStateInput{Address: input.Address}).Get(ctx, &loadResult)
	if err != nil {
		errMsg := fmt.Sprintf("failed to load account state: %v", err)
		result.Error = &errMsg
		return result, fmt.Errorf("failed to load account state: %w", err)
	}

	// Step 2: Sync against the chain.
	syncInput := SynchronizeAccountInput{
		Address: input.Address,
		Prior:   loadResult.Account,
	}

	var syncResult *SynchronizeAccountResult
	err = workflow.ExecuteActivity(ctx, a.SynchronizeAccount, syncInput).Get(ctx, &syncResult)
	if err != nil {
		logger.Error("failed to synchronize account", "address", input.Address, "error", err)
		errMsg := fmt.Sprintf("failed to synchronize account: %v", err)
		result.Error = &errMsg
		return result, fmt.Errorf("failed to synchronize account: %w", err)
	}

	result.AccountID = syncResult.Account.ID
	result.BlockHeight = syncResult.Account.BlockHeight
	result.NewOperations = len(syncResult.NewOperations)

	logger.Info("synchronized account",
		"address", input.Address,
		"block_height", syncResult.Account.BlockHeight,
		"new_operations", len(syncResult.NewOperations),
	)

	// Step 3: Persist the snapshot.
	var saveResult *SaveAccountStateResult
	err = workflow.ExecuteActivity(ctx, a.SaveAccountState, SaveAccountStateInput{Account: syncResult.Account}).Get(ctx, &saveResult)
	if err != nil {
		logger.Error("failed to save account state", "address", input.Address, "error", err)
		errMsg := fmt.Sprintf("failed to save account state: %v", err)
		result.Error = &errMsg
		return result, fmt.Errorf("failed to save account state: %w", err)
	}

	// Step 4: Publish new operations. Nothing new means nothing to publish.
	if len(syncResult.NewOperations) == 0 {
		logger.Info("no new operations", "address", input.Address)
		return result, nil
	}

	publishInput := PublishOperationsInput{
		AccountAddress: input.Address,
		Operations:     syncResult.NewOperations,
	}

	var publishResult *PublishOperationsResult
	err = workflow.ExecuteActivity(ctx, a.PublishOperations, publishInput).Get(ctx, &publishResult)
	if err != nil {
		// The snapshot is already persisted so the next run will not
		// re-derive these operations. Surface the failure rather than
		// silently dropping the events.
		logger.Error("failed to publish operations", "address", input.Address, "error", err)
		errMsg := fmt.Sprintf("failed to publish operations: %v", err)
		result.Error = &errMsg
		return result, fmt.Errorf("failed to publish operations: %w", err)
	}

	result.Published = publishResult.Published

	logger.Info("SyncAccountWorkflow completed successfully",
		"address", input.Address,
		"new_operations", result.NewOperations,
		"published", result.Published,
	)

	return result, nil
}
