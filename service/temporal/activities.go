package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/solsync/service/db"
	"github.com/brojonat/solsync/service/ledger"
	"github.com/brojonat/solsync/service/metrics"
	natspkg "github.com/brojonat/solsync/service/nats"
	solanago "github.com/gagliardetto/solana-go"
)

// SyncAccountInput contains the input parameters for one account sync run.
type SyncAccountInput struct {
	Address string `json:"address"` // Base58 main account address
}

// SyncAccountResult summarizes one completed sync workflow run.
type SyncAccountResult struct {
	Address       string    `json:"address"`
	AccountID     string    `json:"account_id"`
	BlockHeight   uint64    `json:"block_height"`
	NewOperations int       `json:"new_operations"`
	Published     int       `json:"published"`
	SyncTime      time.Time `json:"sync_time"`
	Error         *string   `json:"error,omitempty"`
}

// LoadAccountStateInput contains parameters for the LoadAccountState activity.
type LoadAccountStateInput struct {
	Address string `json:"address"`
}

// LoadAccountStateResult contains the persisted account state, if any.
// Account is nil when the address has never been synchronized.
type LoadAccountStateResult struct {
	Account *ledger.Account `json:"account,omitempty"`
}

// SynchronizeAccountInput contains parameters for the SynchronizeAccount activity.
type SynchronizeAccountInput struct {
	Address string          `json:"address"`
	Prior   *ledger.Account `json:"prior,omitempty"`
}

// SynchronizeAccountResult contains the freshly synchronized snapshot plus
// the operations that were not present in the prior state.
type SynchronizeAccountResult struct {
	Account       *ledger.Account     `json:"account"`
	NewOperations []*ledger.Operation `json:"new_operations"`
}

// SaveAccountStateInput contains parameters for the SaveAccountState activity.
type SaveAccountStateInput struct {
	Account *ledger.Account `json:"account"`
}

// SaveAccountStateResult contains the result of persisting a snapshot.
type SaveAccountStateResult struct {
	Saved bool `json:"saved"`
}

// PublishOperationsInput contains parameters for the PublishOperations activity.
type PublishOperationsInput struct {
	AccountAddress string              `json:"account_address"`
	Operations     []*ledger.Operation `json:"operations"`
}

// PublishOperationsResult contains the result of publishing operation events.
type PublishOperationsResult struct {
	Published int `json:"published"`
}

// StoreInterface defines the database operations needed by activities.
// This allows for easy mocking in tests.
type StoreInterface interface {
	GetAccount(ctx context.Context, id string) (*ledger.Account, error)
	SaveAccountSnapshot(ctx context.Context, account *ledger.Account) error
}

// SynchronizerInterface defines the chain synchronization operation needed
// by activities. This allows for easy mocking in tests.
type SynchronizerInterface interface {
	Sync(ctx context.Context, address solanago.PublicKey, prior *ledger.Account) (*ledger.Account, error)
}

// PublisherInterface defines the NATS publishing operations needed by
// activities. This allows for easy mocking in tests.
type PublisherInterface interface {
	PublishOperationBatch(ctx context.Context, events []*natspkg.OperationEvent) error
}

// Activities holds the dependencies needed by Temporal activities.
// Following go-kit pattern, all dependencies are explicit.
type Activities struct {
	store        StoreInterface
	synchronizer SynchronizerInterface
	publisher    PublisherInterface
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
// If metrics is nil, no metrics will be recorded.
func NewActivities(
	store StoreInterface,
	synchronizer SynchronizerInterface,
	publisher PublisherInterface,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		store:        store,
		synchronizer: synchronizer,
		publisher:    publisher,
		metrics:      m,
		logger:       logger,
	}
}

// LoadAccountState loads the last persisted snapshot for an address.
// A missing snapshot is not an error: the first sync of an address starts
// from nothing.
func (a *Activities) LoadAccountState(ctx context.Context, input LoadAccountStateInput) (*LoadAccountStateResult, error) {
	start := time.Now()
	defer func() {
		if a.metrics != nil {
			a.metrics.RecordActivityDuration("LoadAccountState", input.Address, time.Since(start).Seconds())
		}
	}()

	addr, err := solanago.PublicKeyFromBase58(input.Address)
	if err != nil {
		a.logger.ErrorContext(ctx, "invalid account address",
			"address", input.Address,
			"error", err,
		)
		return nil, fmt.Errorf("invalid account address: %w", err)
	}

	account, err := a.store.GetAccount(ctx, ledger.AccountID(addr))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			a.logger.DebugContext(ctx, "no persisted state, starting fresh",
				"address", input.Address,
			)
			return &LoadAccountStateResult{}, nil
		}
		a.logger.ErrorContext(ctx, "failed to load account state",
			"address", input.Address,
			"error", err,
		)
		return nil, fmt.Errorf("failed to load account state: %w", err)
	}

	a.logger.DebugContext(ctx, "loaded account state",
		"address", input.Address,
		"block_height", account.BlockHeight,
		"operations", len(account.Operations),
		"sub_accounts", len(account.SubAccounts),
	)

	return &LoadAccountStateResult{Account: account}, nil
}

// SynchronizeAccount runs one full sync pass against the chain and returns
// the new snapshot along with the operations the prior state did not have.
func (a *Activities) SynchronizeAccount(ctx context.Context, input SynchronizeAccountInput) (*SynchronizeAccountResult, error) {
	start := time.Now()
	defer func() {
		if a.metrics != nil {
			a.metrics.RecordActivityDuration("SynchronizeAccount", input.Address, time.Since(start).Seconds())
		}
	}()

	addr, err := solanago.PublicKeyFromBase58(input.Address)
	if err != nil {
		a.logger.ErrorContext(ctx, "invalid account address",
			"address", input.Address,
			"error", err,
		)
		return nil, fmt.Errorf("invalid account address: %w", err)
	}

	account, err := a.synchronizer.Sync(ctx, addr, input.Prior)
	if err != nil {
		a.logger.ErrorContext(ctx, "sync pass failed",
			"address", input.Address,
			"error", err,
		)
		return nil, fmt.Errorf("sync pass failed: %w", err)
	}

	newOps := diffOperations(input.Prior, account)

	a.logger.InfoContext(ctx, "synchronized account",
		"address", input.Address,
		"block_height", account.BlockHeight,
		"new_operations", len(newOps),
	)

	return &SynchronizeAccountResult{
		Account:       account,
		NewOperations: newOps,
	}, nil
}

// SaveAccountState persists a synchronized snapshot.
func (a *Activities) SaveAccountState(ctx context.Context, input SaveAccountStateInput) (*SaveAccountStateResult, error) {
	address := ""
	if input.Account != nil {
		address = input.Account.Address.String()
	}

	start := time.Now()
	defer func() {
		if a.metrics != nil {
			a.metrics.RecordActivityDuration("SaveAccountState", address, time.Since(start).Seconds())
		}
	}()

	if input.Account == nil {
		return nil, fmt.Errorf("account snapshot is required")
	}

	if err := a.store.SaveAccountSnapshot(ctx, input.Account); err != nil {
		a.logger.ErrorContext(ctx, "failed to save account snapshot",
			"address", address,
			"error", err,
		)
		return nil, fmt.Errorf("failed to save account snapshot: %w", err)
	}

	a.logger.DebugContext(ctx, "saved account snapshot",
		"address", address,
		"operations", len(input.Account.Operations),
		"sub_accounts", len(input.Account.SubAccounts),
	)

	return &SaveAccountStateResult{Saved: true}, nil
}

// PublishOperations publishes operation events to NATS for real-time
// subscribers. Only operations new to this sync pass should be passed in;
// the subject stream retains them for replay.
func (a *Activities) PublishOperations(ctx context.Context, input PublishOperationsInput) (*PublishOperationsResult, error) {
	start := time.Now()
	defer func() {
		if a.metrics != nil {
			a.metrics.RecordActivityDuration("PublishOperations", input.AccountAddress, time.Since(start).Seconds())
		}
	}()

	if len(input.Operations) == 0 {
		return &PublishOperationsResult{}, nil
	}

	events := make([]*natspkg.OperationEvent, 0, len(input.Operations))
	for _, op := range input.Operations {
		events = append(events, natspkg.FromOperation(op, input.AccountAddress))
	}

	if err := a.publisher.PublishOperationBatch(ctx, events); err != nil {
		a.logger.ErrorContext(ctx, "failed to publish operation events",
			"address", input.AccountAddress,
			"count", len(events),
			"error", err,
		)
		return nil, fmt.Errorf("failed to publish operation events: %w", err)
	}

	a.logger.InfoContext(ctx, "published operation events",
		"address", input.AccountAddress,
		"count", len(events),
	)

	return &PublishOperationsResult{Published: len(events)}, nil
}

// diffOperations returns the operations in next (main account and
// sub-accounts) whose ids do not appear anywhere in prior.
func diffOperations(prior, next *ledger.Account) []*ledger.Operation {
	seen := make(map[string]bool)
	if prior != nil {
		for _, op := range prior.Operations {
			seen[op.ID] = true
		}
		for _, sub := range prior.SubAccounts {
			for _, op := range sub.Operations {
				seen[op.ID] = true
			}
		}
	}

	var fresh []*ledger.Operation
	for _, op := range next.Operations {
		if !seen[op.ID] {
			fresh = append(fresh, op)
		}
	}
	for _, sub := range next.SubAccounts {
		for _, op := range sub.Operations {
			if !seen[op.ID] {
				fresh = append(fresh, op)
			}
		}
	}
	return fresh
}
