package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brojonat/solsync/service/ledger"
	"github.com/brojonat/solsync/service/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Store provides database operations for the service. Account snapshots are
// written whole at the end of a sync pass; operations are append-only and
// deduplicated by id, which makes writing a re-synced history safe.
type Store struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewStore creates a new Store with the given database connection pool.
// m may be nil.
func NewStore(pool *pgxpool.Pool, m *metrics.Metrics) *Store {
	return &Store{
		pool:    pool,
		metrics: m,
	}
}

// TrackedAccount is an account registered for periodic synchronization.
type TrackedAccount struct {
	Address      string
	SyncInterval time.Duration
	CreatedAt    time.Time
}

func (s *Store) record(operation, table string, err error, start time.Time) {
	if s.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordDBQuery(operation, table, status, time.Since(start).Seconds())
}

// RegisterAccount adds an address to the set of tracked accounts. Registering
// an already-tracked address updates its sync interval.
func (s *Store) RegisterAccount(ctx context.Context, address string, syncInterval time.Duration) error {
	start := time.Now()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tracked_accounts (address, sync_interval_seconds)
		VALUES ($1, $2)
		ON CONFLICT (address) DO UPDATE SET sync_interval_seconds = EXCLUDED.sync_interval_seconds
	`, address, int64(syncInterval.Seconds()))
	s.record("insert", "tracked_accounts", err, start)
	if err != nil {
		return fmt.Errorf("failed to register account %s: %w", address, err)
	}
	return nil
}

// UnregisterAccount removes an address from the set of tracked accounts.
// Synced history is kept.
func (s *Store) UnregisterAccount(ctx context.Context, address string) error {
	start := time.Now()
	tag, err := s.pool.Exec(ctx, `DELETE FROM tracked_accounts WHERE address = $1`, address)
	s.record("delete", "tracked_accounts", err, start)
	if err != nil {
		return fmt.Errorf("failed to unregister account %s: %w", address, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTrackedAccounts returns all accounts registered for synchronization.
func (s *Store) ListTrackedAccounts(ctx context.Context) ([]*TrackedAccount, error) {
	start := time.Now()
	rows, err := s.pool.Query(ctx, `
		SELECT address, sync_interval_seconds, created_at
		FROM tracked_accounts
		ORDER BY created_at
	`)
	s.record("select", "tracked_accounts", err, start)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracked accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*TrackedAccount
	for rows.Next() {
		var acc TrackedAccount
		var intervalSeconds int64
		if err := rows.Scan(&acc.Address, &intervalSeconds, &acc.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tracked account: %w", err)
		}
		acc.SyncInterval = time.Duration(intervalSeconds) * time.Second
		accounts = append(accounts, &acc)
	}
	return accounts, rows.Err()
}

// SaveAccountSnapshot persists a whole account snapshot transactionally:
// the account row, its sub-account rows, and any operations not yet stored.
// Existing operations are left untouched, so re-running a sync pass is
// idempotent at the storage layer too.
func (s *Store) SaveAccountSnapshot(ctx context.Context, account *ledger.Account) error {
	start := time.Now()
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO accounts (id, address, balance, spendable_balance, block_height, synced_at)
			VALUES ($1, $2, $3, $4, $5, now())
			ON CONFLICT (id) DO UPDATE SET
				balance = EXCLUDED.balance,
				spendable_balance = EXCLUDED.spendable_balance,
				block_height = EXCLUDED.block_height,
				synced_at = now()
		`, account.ID, account.Address.String(), int64(account.Balance), int64(account.SpendableBalance), int64(account.BlockHeight))
		if err != nil {
			return fmt.Errorf("failed to upsert account %s: %w", account.ID, err)
		}

		if err := insertOperations(ctx, tx, account.Operations); err != nil {
			return err
		}

		for _, sub := range account.SubAccounts {
			_, err := tx.Exec(ctx, `
				INSERT INTO sub_accounts (id, parent_id, mint, token_account, symbol, decimals, balance, spendable_balance)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				ON CONFLICT (id) DO UPDATE SET
					balance = EXCLUDED.balance,
					spendable_balance = EXCLUDED.spendable_balance
			`, sub.ID, sub.ParentID, sub.Mint.String(), sub.TokenAccount.String(), sub.Symbol, int16(sub.Decimals), int64(sub.Balance), int64(sub.SpendableBalance))
			if err != nil {
				return fmt.Errorf("failed to upsert sub-account %s: %w", sub.ID, err)
			}
			if err := insertOperations(ctx, tx, sub.Operations); err != nil {
				return err
			}
		}
		return nil
	})
	s.record("upsert", "accounts", err, start)
	return err
}

func insertOperations(ctx context.Context, tx pgx.Tx, ops []*ledger.Operation) error {
	for _, op := range ops {
		_, err := tx.Exec(ctx, `
			INSERT INTO operations (id, account_id, tx_hash, kind, value, fee, senders, recipients, block_height, block_hash, date, has_failed, memo)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (id) DO NOTHING
		`, op.ID, op.AccountID, op.TxHash, string(op.Kind), op.Value, int64(op.Fee),
			op.Senders, op.Recipients, int64(op.BlockHeight), op.BlockHash, op.Date, op.HasFailed, op.Memo)
		if err != nil {
			return fmt.Errorf("failed to insert operation %s: %w", op.ID, err)
		}
	}
	return nil
}

// GetAccount loads an account snapshot with its sub-accounts and full
// operation histories, newest first. Returns ErrNotFound when the account
// has never been synced.
func (s *Store) GetAccount(ctx context.Context, id string) (*ledger.Account, error) {
	start := time.Now()
	account, err := s.getAccount(ctx, id)
	s.record("select", "accounts", err, start)
	return account, err
}

func (s *Store) getAccount(ctx context.Context, id string) (*ledger.Account, error) {
	var account ledger.Account
	var address string
	var balance, spendable, blockHeight int64
	err := s.pool.QueryRow(ctx, `
		SELECT id, address, balance, spendable_balance, block_height
		FROM accounts WHERE id = $1
	`, id).Scan(&account.ID, &address, &balance, &spendable, &blockHeight)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account %s: %w", id, err)
	}
	addr, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return nil, fmt.Errorf("corrupt address for account %s: %w", id, err)
	}
	account.Address = addr
	account.Balance = uint64(balance)
	account.SpendableBalance = uint64(spendable)
	account.BlockHeight = uint64(blockHeight)

	account.Operations, err = s.ListOperations(ctx, id, 0)
	if err != nil {
		return nil, err
	}

	subRows, err := s.pool.Query(ctx, `
		SELECT id, parent_id, mint, token_account, symbol, decimals, balance, spendable_balance
		FROM sub_accounts WHERE parent_id = $1
		ORDER BY id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load sub-accounts of %s: %w", id, err)
	}
	defer subRows.Close()

	for subRows.Next() {
		var sub ledger.TokenSubAccount
		var mint, tokenAccount string
		var decimals int16
		var subBalance, subSpendable int64
		if err := subRows.Scan(&sub.ID, &sub.ParentID, &mint, &tokenAccount, &sub.Symbol, &decimals, &subBalance, &subSpendable); err != nil {
			return nil, fmt.Errorf("failed to scan sub-account: %w", err)
		}
		if sub.Mint, err = solana.PublicKeyFromBase58(mint); err != nil {
			return nil, fmt.Errorf("corrupt mint for sub-account %s: %w", sub.ID, err)
		}
		if sub.TokenAccount, err = solana.PublicKeyFromBase58(tokenAccount); err != nil {
			return nil, fmt.Errorf("corrupt token account for sub-account %s: %w", sub.ID, err)
		}
		sub.Decimals = uint8(decimals)
		sub.Balance = uint64(subBalance)
		sub.SpendableBalance = uint64(subSpendable)
		if sub.Operations, err = s.ListOperations(ctx, sub.ID, 0); err != nil {
			return nil, err
		}
		account.SubAccounts = append(account.SubAccounts, &sub)
	}
	if err := subRows.Err(); err != nil {
		return nil, err
	}
	return &account, nil
}

// ListOperations returns the stored operations of one account (or
// sub-account), newest first. limit 0 means no limit.
func (s *Store) ListOperations(ctx context.Context, accountID string, limit int32) ([]*ledger.Operation, error) {
	query := `
		SELECT id, account_id, tx_hash, kind, value, fee, senders, recipients, block_height, block_hash, date, has_failed, memo
		FROM operations WHERE account_id = $1
		ORDER BY block_height DESC, date DESC, id
	`
	args := []any{accountID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	start := time.Now()
	rows, err := s.pool.Query(ctx, query, args...)
	s.record("select", "operations", err, start)
	if err != nil {
		return nil, fmt.Errorf("failed to list operations of %s: %w", accountID, err)
	}
	defer rows.Close()

	var ops []*ledger.Operation
	for rows.Next() {
		var op ledger.Operation
		var kind string
		var fee, blockHeight int64
		if err := rows.Scan(&op.ID, &op.AccountID, &op.TxHash, &kind, &op.Value, &fee,
			&op.Senders, &op.Recipients, &blockHeight, &op.BlockHash, &op.Date, &op.HasFailed, &op.Memo); err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		op.Kind = ledger.OperationKind(kind)
		op.Fee = uint64(fee)
		op.BlockHeight = uint64(blockHeight)
		ops = append(ops, &op)
	}
	return ops, rows.Err()
}
