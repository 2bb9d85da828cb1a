package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/solsync/service/chain"
	"github.com/brojonat/solsync/service/metrics"
	"github.com/brojonat/solsync/service/tokenlist"
	"github.com/gagliardetto/solana-go"
)

const (
	// syncSignatureWindow caps how far back one pass reaches when the
	// account has no synced history yet.
	syncSignatureWindow = 1000
	// syncBatchSize is how many transactions are fetched per chunk.
	syncBatchSize = 100
)

// Synchronizer rebuilds account snapshots from chain state. It holds no
// mutable state of its own; callers serialize passes per account.
type Synchronizer struct {
	chain   chain.Reader
	tokens  *tokenlist.Registry
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewSynchronizer creates a Synchronizer. tokens decides which mints get
// sub-accounts; m may be nil.
func NewSynchronizer(reader chain.Reader, tokens *tokenlist.Registry, m *metrics.Metrics, logger *slog.Logger) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	if tokens == nil {
		tokens = tokenlist.Default()
	}
	return &Synchronizer{
		chain:   reader,
		tokens:  tokens,
		logger:  logger,
		metrics: m,
	}
}

// Sync performs one synchronization pass for address and returns a fresh
// account snapshot. prior is the previous snapshot, or nil on the first pass;
// its operation history seeds the incremental signature fetch and is merged
// into the result. The prior snapshot is never mutated.
func (s *Synchronizer) Sync(ctx context.Context, address solana.PublicKey, prior *Account) (*Account, error) {
	start := time.Now()
	accountID := AccountID(address)

	acc, err := s.sync(ctx, address, accountID, prior)
	status := "success"
	if err != nil {
		status = "error"
	}
	if s.metrics != nil {
		s.metrics.RecordSyncPass(accountID, status, time.Since(start).Seconds())
	}
	return acc, err
}

func (s *Synchronizer) sync(ctx context.Context, address solana.PublicKey, accountID string, prior *Account) (*Account, error) {
	bal, err := s.chain.GetBalanceAndHeight(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch balance: %w", err)
	}
	fees, err := s.chain.GetFeeParams(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch fee parameters: %w", err)
	}

	// The spendable balance reserves one signature's fee; it never goes
	// negative.
	spendable := uint64(0)
	if bal.Lamports > fees.LamportsPerSignature {
		spendable = bal.Lamports - fees.LamportsPerSignature
	}

	subAccounts, err := s.syncSubAccounts(ctx, address, accountID, prior)
	if err != nil {
		return nil, err
	}

	var priorOps []*Operation
	if prior != nil {
		priorOps = prior.Operations
	}
	txs, err := s.fetchTransactions(ctx, address, LastSyncedSignature(priorOps))
	if err != nil {
		return nil, err
	}

	newOps := make([]*Operation, 0, len(txs))
	for _, tx := range txs {
		if op := DeriveMainOperation(tx, accountID, address); op != nil {
			newOps = append(newOps, op)
			if s.metrics != nil {
				s.metrics.RecordOperationsDerived(accountID, string(op.Kind), 1)
			}
		}
	}

	ops := MergeOperations(priorOps, newOps)

	s.logger.InfoContext(ctx, "sync pass complete",
		"account_id", accountID,
		"balance", bal.Lamports,
		"block_height", bal.BlockHeight,
		"new_operations", len(newOps),
		"total_operations", len(ops),
		"sub_accounts", len(subAccounts),
	)

	return &Account{
		ID:               accountID,
		Address:          address,
		Balance:          bal.Lamports,
		SpendableBalance: spendable,
		BlockHeight:      bal.BlockHeight,
		Operations:       ops,
		SubAccounts:      subAccounts,
	}, nil
}

// syncSubAccounts discovers the owner's token holdings and builds the next
// sub-account set. Only recognized mints held through the canonical
// associated token account become sub-accounts; everything else is ignored
// here and only surfaces through ancillary consolidation.
func (s *Synchronizer) syncSubAccounts(ctx context.Context, address solana.PublicKey, accountID string, prior *Account) ([]*TokenSubAccount, error) {
	onChain, err := s.chain.GetTokenAccountsByOwner(ctx, address, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch token accounts: %w", err)
	}

	byMint := make(map[solana.PublicKey][]*chain.TokenAccountInfo)
	var mints []solana.PublicKey
	for _, ta := range onChain {
		if _, ok := byMint[ta.Mint]; !ok {
			mints = append(mints, ta.Mint)
		}
		byMint[ta.Mint] = append(byMint[ta.Mint], ta)
	}

	var subs []*TokenSubAccount
	for _, mint := range mints {
		token, ok := s.tokens.Lookup(mint)
		if !ok {
			continue
		}
		ata, err := chain.DeriveAssociatedTokenAddress(address, mint)
		if err != nil {
			return nil, fmt.Errorf("failed to derive associated token address for mint %s: %w", mint, err)
		}
		var assoc *chain.TokenAccountInfo
		for _, ta := range byMint[mint] {
			if ta.Address.Equals(ata) {
				assoc = ta
				break
			}
		}
		if assoc == nil {
			// Held only through non-canonical accounts; no sub-account.
			continue
		}

		var priorSub *TokenSubAccount
		if prior != nil {
			priorSub = prior.FindSubAccountByMint(mint)
		}

		var priorSubOps []*Operation
		subID := SubAccountID(accountID, assoc.Address)
		if priorSub != nil {
			priorSubOps = priorSub.Operations
			subID = priorSub.ID
		}

		txs, err := s.fetchTransactions(ctx, assoc.Address, LastSyncedSignature(priorSubOps))
		if err != nil {
			return nil, err
		}
		newOps := make([]*Operation, 0, len(txs))
		for _, tx := range txs {
			if op := DeriveTokenOperation(tx, subID, assoc.Address); op != nil {
				newOps = append(newOps, op)
				if s.metrics != nil {
					s.metrics.RecordOperationsDerived(subID, string(op.Kind), 1)
				}
			}
		}

		subs = append(subs, &TokenSubAccount{
			ID:               subID,
			ParentID:         accountID,
			Mint:             mint,
			TokenAccount:     assoc.Address,
			Symbol:           token.Symbol,
			Decimals:         token.Decimals,
			Balance:          assoc.Amount,
			SpendableBalance: assoc.Amount,
			Operations:       MergeOperations(priorSubOps, newOps),
		})
	}
	return subs, nil
}

// fetchTransactions lists signatures for addr down to the until boundary and
// fetches the corresponding transactions in chunks. Unavailable or
// undecodable transactions are dropped from the result; a later pass picks
// them up again.
func (s *Synchronizer) fetchTransactions(ctx context.Context, addr solana.PublicKey, until *solana.Signature) ([]*chain.TransactionContext, error) {
	sigs, err := s.chain.GetSignatures(ctx, addr, until, syncSignatureWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch signatures for %s: %w", addr, err)
	}

	txs := make([]*chain.TransactionContext, 0, len(sigs))
	unavailable := 0
	failed := 0
	for off := 0; off < len(sigs); off += syncBatchSize {
		end := off + syncBatchSize
		if end > len(sigs) {
			end = len(sigs)
		}
		batch, err := s.chain.GetTransactions(ctx, sigs[off:end])
		if err != nil {
			return nil, fmt.Errorf("failed to fetch transactions for %s: %w", addr, err)
		}
		for _, tx := range batch {
			switch {
			case tx == nil:
				unavailable++
			case tx.Failed:
				// Transactions that errored during execution never make it
				// into the ledger history.
				failed++
			default:
				txs = append(txs, tx)
			}
		}
	}
	if unavailable > 0 {
		if s.metrics != nil {
			s.metrics.RecordTransactionsDropped(addr.String(), "unavailable", unavailable)
		}
		s.logger.DebugContext(ctx, "dropped unavailable transactions",
			"address", addr.String(),
			"count", unavailable,
		)
	}
	if failed > 0 {
		if s.metrics != nil {
			s.metrics.RecordTransactionsDropped(addr.String(), "failed", failed)
		}
		s.logger.DebugContext(ctx, "dropped failed transactions",
			"address", addr.String(),
			"count", failed,
		)
	}
	return txs, nil
}
