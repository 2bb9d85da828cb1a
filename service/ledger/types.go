// Package ledger derives a typed, append-only operation history from raw
// Solana transactions and keeps account state in sync with the chain.
package ledger

import (
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
)

// OperationKind is the closed taxonomy of ledger-visible effects an account
// can experience.
type OperationKind string

const (
	OperationIn         OperationKind = "IN"
	OperationOut        OperationKind = "OUT"
	OperationFees       OperationKind = "FEES"
	OperationNone       OperationKind = "NONE"
	OperationOptIn      OperationKind = "OPT_IN"
	OperationOptOut     OperationKind = "OPT_OUT"
	OperationDelegate   OperationKind = "DELEGATE"
	OperationUndelegate OperationKind = "UNDELEGATE"
)

// Operation is one ledger entry derived from a confirmed transaction.
// Operations are append-only: a re-sync may add entries, never mutate them.
//
// Value is signed only because account closures (OPT_OUT) report a negated
// amount; every other kind carries an unsigned magnitude with the sign
// implied by the kind.
type Operation struct {
	ID          string        `json:"id"`
	TxHash      string        `json:"tx_hash"`
	AccountID   string        `json:"account_id"`
	Kind        OperationKind `json:"kind"`
	Value       int64         `json:"value"`
	Fee         uint64        `json:"fee"`
	Senders     []string      `json:"senders"`
	Recipients  []string      `json:"recipients"`
	BlockHeight uint64        `json:"block_height"`
	BlockHash   string        `json:"block_hash"`
	Date        time.Time     `json:"date"`
	HasFailed   bool          `json:"has_failed"`
	Memo        *string       `json:"memo,omitempty"`
}

// OperationID builds the deterministic operation id. No history may contain
// two operations with the same id.
func OperationID(accountID, txHash string, kind OperationKind) string {
	return fmt.Sprintf("%s-%s-%s", accountID, txHash, kind)
}

// Account is the long-lived main account record. It is mutated only by the
// synchronizer, which replaces the whole snapshot at the end of a pass.
type Account struct {
	ID               string            `json:"id"`
	Address          solana.PublicKey  `json:"address"`
	Balance          uint64            `json:"balance"`
	SpendableBalance uint64            `json:"spendable_balance"`
	BlockHeight      uint64            `json:"block_height"`
	Operations       []*Operation      `json:"operations"` // newest first
	SubAccounts      []*TokenSubAccount `json:"sub_accounts"`
}

// TokenSubAccount is a fungible-token holding owned by an Account through
// its associated token account. One sub-account per mint per owner.
type TokenSubAccount struct {
	ID               string           `json:"id"`
	ParentID         string           `json:"parent_id"`
	Mint             solana.PublicKey `json:"mint"`
	TokenAccount     solana.PublicKey `json:"token_account"`
	Symbol           string           `json:"symbol"`
	Decimals         uint8            `json:"decimals"`
	Balance          uint64           `json:"balance"`
	SpendableBalance uint64           `json:"spendable_balance"`
	Operations       []*Operation     `json:"operations"` // newest first
}

// AccountID encodes the stable account id for a main address.
func AccountID(address solana.PublicKey) string {
	return "solana:" + address.String()
}

// SubAccountID encodes a sub-account id from the parent id and the
// associated token account address.
func SubAccountID(parentID string, tokenAccount solana.PublicKey) string {
	return parentID + "+" + tokenAccount.String()
}

// LastSyncedSignature returns the newest operation's transaction signature,
// used as the early-stop boundary for incremental signature fetches.
func LastSyncedSignature(ops []*Operation) *solana.Signature {
	if len(ops) == 0 {
		return nil
	}
	sig, err := solana.SignatureFromBase58(ops[0].TxHash)
	if err != nil {
		return nil
	}
	return &sig
}

// FindSubAccountByMint returns the sub-account holding mint, if any.
func (a *Account) FindSubAccountByMint(mint solana.PublicKey) *TokenSubAccount {
	for _, sub := range a.SubAccounts {
		if sub.Mint.Equals(mint) {
			return sub
		}
	}
	return nil
}

// FindSubAccountByID returns the sub-account with the given id, if any.
func (a *Account) FindSubAccountByID(id string) *TokenSubAccount {
	for _, sub := range a.SubAccounts {
		if sub.ID == id {
			return sub
		}
	}
	return nil
}
