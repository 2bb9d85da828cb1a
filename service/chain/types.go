package chain

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// BalanceAndHeight is a point-in-time snapshot of an account's lamport
// balance and the slot it was observed at.
type BalanceAndHeight struct {
	Lamports    uint64
	BlockHeight uint64
}

// FeeParams holds the network fee parameters used for cost accounting.
type FeeParams struct {
	LamportsPerSignature uint64
}

// TokenAccountState mirrors the on-chain SPL token account state field.
type TokenAccountState uint8

const (
	TokenAccountUninitialized TokenAccountState = iota
	TokenAccountInitialized
	TokenAccountFrozen
)

// TokenAccountInfo is a decoded SPL token account as observed on chain.
// Decimals live on the mint, not here; the token registry supplies them.
type TokenAccountInfo struct {
	Address        solana.PublicKey
	Mint           solana.PublicKey
	Owner          solana.PublicKey
	Amount         uint64
	State          TokenAccountState
	CloseAuthority *solana.PublicKey // nil when no close authority is set
}

// SignatureInfo is one entry of a signatures-for-address listing,
// newest first.
type SignatureInfo struct {
	Signature solana.Signature
	Slot      uint64
	BlockTime *time.Time // nil until the transaction is finalized
	Failed    bool
	Memo      *string
}

// Instruction is one top-level instruction of a confirmed transaction with
// its program id and account references resolved against the message keys.
type Instruction struct {
	ProgramID solana.PublicKey
	Accounts  []solana.PublicKey
	Data      []byte
}

// TokenBalance is a pre/post token balance entry of transaction metadata,
// keyed by the account's index in the message account keys.
type TokenBalance struct {
	AccountIndex uint16
	Mint         solana.PublicKey
	Amount       uint64
	Decimals     uint8
}

// TransactionContext is a confirmed transaction plus the execution metadata
// the ledger derivation needs. It is immutable once fetched; a sync pass
// builds operations from it and discards it.
type TransactionContext struct {
	Signature         solana.Signature
	Slot              uint64
	BlockTime         *time.Time // nil when the transaction is not finalized yet
	Failed            bool
	Memo              *string
	Fee               uint64
	RecentBlockhash   solana.Hash
	AccountKeys       []solana.PublicKey
	PreBalances       []uint64
	PostBalances      []uint64
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
	Instructions      []Instruction
}

// AccountIndex returns the position of addr in the transaction's account
// keys, or -1 when the account was not involved.
func (tx *TransactionContext) AccountIndex(addr solana.PublicKey) int {
	for i, key := range tx.AccountKeys {
		if key.Equals(addr) {
			return i
		}
	}
	return -1
}

// BalanceDelta returns the lamport delta of the account at index idx, or 0
// when the RPC node returned balance arrays shorter than the account keys.
func (tx *TransactionContext) BalanceDelta(idx int) int64 {
	if idx < 0 || idx >= len(tx.PreBalances) || idx >= len(tx.PostBalances) {
		return 0
	}
	return int64(tx.PostBalances[idx]) - int64(tx.PreBalances[idx])
}

// TokenBalanceDelta returns the token-amount delta of the account at index
// idx, and whether the account appears in the token balance metadata at all.
func (tx *TransactionContext) TokenBalanceDelta(idx int) (int64, bool) {
	pre, preOK := findTokenBalance(tx.PreTokenBalances, idx)
	post, postOK := findTokenBalance(tx.PostTokenBalances, idx)
	if !preOK && !postOK {
		return 0, false
	}
	return int64(post) - int64(pre), true
}

func findTokenBalance(balances []TokenBalance, idx int) (uint64, bool) {
	for _, b := range balances {
		if int(b.AccountIndex) == idx {
			return b.Amount, true
		}
	}
	return 0, false
}

// DeriveAssociatedTokenAddress returns the canonical associated token
// account address for (owner, mint). Deterministic, no I/O.
func DeriveAssociatedTokenAddress(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	return ata, err
}
