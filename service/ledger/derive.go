package ledger

import (
	"github.com/brojonat/solsync/service/chain"
	"github.com/gagliardetto/solana-go"
)

// classifyAll runs the classifier over every top-level instruction.
func classifyAll(tx *chain.TransactionContext) []Descriptor {
	descs := make([]Descriptor, len(tx.Instructions))
	for i, ix := range tx.Instructions {
		descs[i] = Classify(ix)
	}
	return descs
}

// DeriveMainOperation builds the wallet account's operation for one confirmed
// transaction. It returns nil when the transaction is not finalized yet,
// failed during execution, or does not involve the account at all.
func DeriveMainOperation(tx *chain.TransactionContext, accountID string, address solana.PublicKey) *Operation {
	if tx.BlockTime == nil || tx.Failed {
		return nil
	}
	idx := tx.AccountIndex(address)
	if idx < 0 {
		return nil
	}

	delta := tx.BalanceDelta(idx)
	isFeePayer := idx == 0
	descs := classifyAll(tx)
	kind := ResolveMainKind(descs, isFeePayer, tx.Fee, delta)

	// The signature listing usually carries the memo already; fall back to
	// the memo instruction when it does not.
	memo := tx.Memo
	if memo == nil {
		memo = ExtractMemo(descs)
	}

	var senders, recipients []string
	for i, key := range tx.AccountKeys {
		d := tx.BalanceDelta(i)
		switch {
		case d < 0:
			// The fee payer is not a sender when its entire movement is
			// the fee.
			if i > 0 || uint64(-d) != tx.Fee {
				senders = append(senders, key.String())
			}
		case d > 0:
			recipients = append(recipients, key.String())
		}
	}

	var fee uint64
	if isFeePayer {
		fee = tx.Fee
	}
	value := delta
	if value < 0 {
		value = -value
	}
	value -= int64(fee)
	if kind == OperationOptOut {
		value = -value
	}

	return &Operation{
		ID:          OperationID(accountID, tx.Signature.String(), kind),
		TxHash:      tx.Signature.String(),
		AccountID:   accountID,
		Kind:        kind,
		Value:       value,
		Fee:         fee,
		Senders:     senders,
		Recipients:  recipients,
		BlockHeight: tx.Slot,
		BlockHash:   tx.RecentBlockhash.String(),
		Date:        *tx.BlockTime,
		HasFailed:   tx.Failed,
		Memo:        memo,
	}
}

// DeriveTokenOperation builds a token sub-account's operation for one
// confirmed transaction, observed through the associated token account's
// pre/post token balances. Token operations never carry a fee: the fee is
// accounted on the main account.
func DeriveTokenOperation(tx *chain.TransactionContext, subAccountID string, tokenAccount solana.PublicKey) *Operation {
	if tx.BlockTime == nil || tx.Failed {
		return nil
	}
	idx := tx.AccountIndex(tokenAccount)
	if idx < 0 {
		return nil
	}

	delta, _ := tx.TokenBalanceDelta(idx)
	descs := classifyAll(tx)
	kind := ResolveTokenKind(descs, delta)

	memo := tx.Memo
	if memo == nil {
		memo = ExtractMemo(descs)
	}

	// Senders and recipients come from token balance movements, but only for
	// accounts present in both the pre and post sets.
	var senders, recipients []string
	for i, key := range tx.AccountKeys {
		pre, preOK := tokenBalanceAt(tx.PreTokenBalances, i)
		post, postOK := tokenBalanceAt(tx.PostTokenBalances, i)
		if !preOK || !postOK {
			continue
		}
		d := int64(post) - int64(pre)
		switch {
		case d < 0:
			senders = append(senders, key.String())
		case d > 0:
			recipients = append(recipients, key.String())
		}
	}

	value := delta
	if value < 0 {
		value = -value
	}

	return &Operation{
		ID:          OperationID(subAccountID, tx.Signature.String(), kind),
		TxHash:      tx.Signature.String(),
		AccountID:   subAccountID,
		Kind:        kind,
		Value:       value,
		Fee:         0,
		Senders:     senders,
		Recipients:  recipients,
		BlockHeight: tx.Slot,
		BlockHash:   tx.RecentBlockhash.String(),
		Date:        *tx.BlockTime,
		HasFailed:   tx.Failed,
		Memo:        memo,
	}
}

func tokenBalanceAt(balances []chain.TokenBalance, idx int) (uint64, bool) {
	for _, b := range balances {
		if int(b.AccountIndex) == idx {
			return b.Amount, true
		}
	}
	return 0, false
}
