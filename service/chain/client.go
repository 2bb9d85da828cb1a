package chain

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/solsync/service/metrics"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
)

// tokenAccountDataSize is the byte size of an SPL token account, used when
// estimating the rent for creating an associated token account.
const tokenAccountDataSize = 165

// Reader is the chain-access contract the core consumes. Every entry point
// of the sync and preparation logic takes an explicit Reader; the core holds
// no ambient connection. Retry/backoff policy is the implementation's
// concern, not the caller's.
type Reader interface {
	// GetBalanceAndHeight returns the lamport balance of an account and the
	// slot the balance was observed at.
	GetBalanceAndHeight(ctx context.Context, addr solana.PublicKey) (*BalanceAndHeight, error)

	// GetFeeParams returns the current network fee parameters.
	GetFeeParams(ctx context.Context) (*FeeParams, error)

	// GetTokenAccountsByOwner lists the owner's SPL token accounts,
	// optionally restricted to one mint.
	GetTokenAccountsByOwner(ctx context.Context, owner solana.PublicKey, mint *solana.PublicKey) ([]*TokenAccountInfo, error)

	// GetSignatures lists transaction signatures involving addr, newest
	// first, stopping at until when given. Capped at limit.
	GetSignatures(ctx context.Context, addr solana.PublicKey, until *solana.Signature, limit int) ([]*SignatureInfo, error)

	// GetTransactions fetches the confirmed transactions for the given
	// signature infos. Entries may be nil when a transaction is not yet
	// available; callers must skip them.
	GetTransactions(ctx context.Context, sigs []*SignatureInfo) ([]*TransactionContext, error)

	// GetTokenAccount returns the token account at addr, or (nil, nil) when
	// the address does not hold an SPL token account.
	GetTokenAccount(ctx context.Context, addr solana.PublicKey) (*TokenAccountInfo, error)

	// AccountExists reports whether any account is funded at addr.
	AccountExists(ctx context.Context, addr solana.PublicKey) (bool, error)

	// GetAccountCreationRent returns the rent-exempt minimum for creating a
	// token account.
	GetAccountCreationRent(ctx context.Context) (uint64, error)

	// GetLatestBlockhash returns a recent blockhash for draft transactions.
	GetLatestBlockhash(ctx context.Context) (solana.Hash, error)
}

// RPCClient is the narrow slice of the Solana RPC surface the Client needs.
// It exists so tests can stub the RPC layer without hitting real nodes.
type RPCClient interface {
	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	GetFees(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetFeesResult, error)
	GetTokenAccountsByOwner(ctx context.Context, owner solana.PublicKey, conf *rpc.GetTokenAccountsConfig, opts *rpc.GetTokenAccountsOpts) (*rpc.GetTokenAccountsResult, error)
	GetSignaturesForAddress(ctx context.Context, address solana.PublicKey, opts *rpc.GetSignaturesForAddressOpts) ([]*rpc.TransactionSignature, error)
	GetTransaction(ctx context.Context, signature solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error)
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)
	GetMinimumBalanceForRentExemption(ctx context.Context, dataSize uint64, commitment rpc.CommitmentType) (uint64, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
}

// Client is the production Reader backed by a Solana RPC endpoint.
type Client struct {
	rpc      RPCClient
	logger   *slog.Logger
	metrics  *metrics.Metrics
	endpoint string // endpoint identifier for metrics labels
}

// NewClient creates a chain Reader over the given RPC client. The endpoint
// parameter only labels metrics. If m is nil, no metrics are recorded.
func NewClient(rpcClient RPCClient, endpoint string, m *metrics.Metrics, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		rpc:      rpcClient,
		logger:   logger,
		metrics:  m,
		endpoint: endpoint,
	}
}

func (c *Client) record(method string, err error, start time.Time) {
	if c.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordRPCCall(method, status, c.endpoint, time.Since(start).Seconds())
}

// GetBalanceAndHeight implements Reader.
func (c *Client) GetBalanceAndHeight(ctx context.Context, addr solana.PublicKey) (*BalanceAndHeight, error) {
	start := time.Now()
	out, err := c.rpc.GetBalance(ctx, addr, rpc.CommitmentFinalized)
	c.record("GetBalance", err, start)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance for %s: %w", addr, err)
	}
	return &BalanceAndHeight{
		Lamports:    out.Value,
		BlockHeight: out.Context.Slot,
	}, nil
}

// GetFeeParams implements Reader.
func (c *Client) GetFeeParams(ctx context.Context) (*FeeParams, error) {
	start := time.Now()
	out, err := c.rpc.GetFees(ctx, rpc.CommitmentFinalized)
	c.record("GetFees", err, start)
	if err != nil {
		return nil, fmt.Errorf("failed to get fee parameters: %w", err)
	}
	return &FeeParams{
		LamportsPerSignature: out.Value.FeeCalculator.LamportsPerSignature,
	}, nil
}

// GetTokenAccountsByOwner implements Reader. Accounts whose data fails to
// decode as an SPL token account are skipped, not fatal.
func (c *Client) GetTokenAccountsByOwner(ctx context.Context, owner solana.PublicKey, mint *solana.PublicKey) ([]*TokenAccountInfo, error) {
	conf := &rpc.GetTokenAccountsConfig{}
	if mint != nil {
		conf.Mint = mint
	} else {
		programID := solana.TokenProgramID
		conf.ProgramId = &programID
	}

	start := time.Now()
	out, err := c.rpc.GetTokenAccountsByOwner(ctx, owner, conf, &rpc.GetTokenAccountsOpts{
		Encoding: solana.EncodingBase64,
	})
	c.record("GetTokenAccountsByOwner", err, start)
	if err != nil {
		return nil, fmt.Errorf("failed to get token accounts for %s: %w", owner, err)
	}

	accounts := make([]*TokenAccountInfo, 0, len(out.Value))
	for _, raw := range out.Value {
		info, err := decodeTokenAccount(raw.Pubkey, raw.Account.Data.GetBinary())
		if err != nil {
			c.logger.WarnContext(ctx, "skipping undecodable token account",
				"address", raw.Pubkey.String(),
				"error", err,
			)
			continue
		}
		accounts = append(accounts, info)
	}
	return accounts, nil
}

// GetSignatures implements Reader.
func (c *Client) GetSignatures(ctx context.Context, addr solana.PublicKey, until *solana.Signature, limit int) ([]*SignatureInfo, error) {
	opts := &rpc.GetSignaturesForAddressOpts{
		Limit: &limit,
	}
	if until != nil {
		opts.Until = *until
	}

	start := time.Now()
	out, err := c.rpc.GetSignaturesForAddress(ctx, addr, opts)
	c.record("GetSignaturesForAddress", err, start)
	if err != nil {
		return nil, fmt.Errorf("failed to get signatures for %s: %w", addr, err)
	}

	infos := make([]*SignatureInfo, 0, len(out))
	for _, sig := range out {
		infos = append(infos, signatureToInfo(sig))
	}

	c.logger.DebugContext(ctx, "fetched signatures",
		"address", addr.String(),
		"count", len(infos),
	)
	return infos, nil
}

// GetTransactions implements Reader. The result is index-aligned with sigs;
// entries are nil when the transaction is unavailable or failed to decode.
// Later sync passes will naturally re-request those.
func (c *Client) GetTransactions(ctx context.Context, sigs []*SignatureInfo) ([]*TransactionContext, error) {
	maxVersion := uint64(0)
	txs := make([]*TransactionContext, len(sigs))
	for i, sig := range sigs {
		start := time.Now()
		out, err := c.rpc.GetTransaction(ctx, sig.Signature, &rpc.GetTransactionOpts{
			Encoding:                       solana.EncodingBase64,
			MaxSupportedTransactionVersion: &maxVersion,
		})
		c.record("GetTransaction", err, start)
		if err != nil {
			c.logger.WarnContext(ctx, "transaction not available, skipping",
				"signature", sig.Signature.String(),
				"error", err,
			)
			continue
		}

		txCtx, err := transactionToContext(sig, out)
		if err != nil {
			c.logger.WarnContext(ctx, "failed to decode transaction, skipping",
				"signature", sig.Signature.String(),
				"error", err,
			)
			continue
		}
		txs[i] = txCtx
	}
	return txs, nil
}

// GetTokenAccount implements Reader.
func (c *Client) GetTokenAccount(ctx context.Context, addr solana.PublicKey) (*TokenAccountInfo, error) {
	start := time.Now()
	out, err := c.rpc.GetAccountInfo(ctx, addr)
	c.record("GetAccountInfo", err, start)
	if err == rpc.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account info for %s: %w", addr, err)
	}
	if out.Value == nil {
		return nil, nil
	}
	owner := out.Value.Owner
	if !owner.Equals(solana.TokenProgramID) {
		return nil, nil
	}
	info, err := decodeTokenAccount(addr, out.Value.Data.GetBinary())
	if err != nil {
		return nil, nil
	}
	return info, nil
}

// AccountExists implements Reader.
func (c *Client) AccountExists(ctx context.Context, addr solana.PublicKey) (bool, error) {
	start := time.Now()
	out, err := c.rpc.GetAccountInfo(ctx, addr)
	c.record("GetAccountInfo", err, start)
	if err == rpc.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get account info for %s: %w", addr, err)
	}
	return out.Value != nil && out.Value.Lamports > 0, nil
}

// GetAccountCreationRent implements Reader.
func (c *Client) GetAccountCreationRent(ctx context.Context) (uint64, error) {
	start := time.Now()
	rent, err := c.rpc.GetMinimumBalanceForRentExemption(ctx, tokenAccountDataSize, rpc.CommitmentFinalized)
	c.record("GetMinimumBalanceForRentExemption", err, start)
	if err != nil {
		return 0, fmt.Errorf("failed to get rent-exempt minimum: %w", err)
	}
	return rent, nil
}

// GetLatestBlockhash implements Reader.
func (c *Client) GetLatestBlockhash(ctx context.Context) (solana.Hash, error) {
	start := time.Now()
	out, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	c.record("GetLatestBlockhash", err, start)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("failed to get latest blockhash: %w", err)
	}
	return out.Value.Blockhash, nil
}

// decodeTokenAccount decodes the 165-byte SPL token account layout.
func decodeTokenAccount(addr solana.PublicKey, data []byte) (*TokenAccountInfo, error) {
	var acc token.Account
	if err := bin.NewBinDecoder(data).Decode(&acc); err != nil {
		return nil, fmt.Errorf("failed to decode token account: %w", err)
	}
	return &TokenAccountInfo{
		Address:        addr,
		Mint:           acc.Mint,
		Owner:          acc.Owner,
		Amount:         acc.Amount,
		State:          TokenAccountState(acc.State),
		CloseAuthority: acc.CloseAuthority,
	}, nil
}
