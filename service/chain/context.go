package chain

import (
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// signatureToInfo converts an RPC TransactionSignature to our domain
// SignatureInfo. Block time stays nil until the transaction is finalized.
func signatureToInfo(sig *rpc.TransactionSignature) *SignatureInfo {
	info := &SignatureInfo{
		Signature: sig.Signature,
		Slot:      sig.Slot,
		Failed:    sig.Err != nil,
		Memo:      sig.Memo,
	}
	if sig.BlockTime != nil {
		t := sig.BlockTime.Time()
		info.BlockTime = &t
	}
	return info
}

// transactionToContext combines a signature listing entry with the full
// transaction result into an immutable TransactionContext. Returns an error
// when the payload cannot be decoded; the caller treats that as "not yet
// available" and skips the transaction.
func transactionToContext(sig *SignatureInfo, result *rpc.GetTransactionResult) (*TransactionContext, error) {
	if result == nil || result.Meta == nil {
		return nil, fmt.Errorf("transaction metadata not available")
	}

	tx, err := result.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}
	msg := tx.Message

	txCtx := &TransactionContext{
		Signature:       sig.Signature,
		Slot:            sig.Slot,
		BlockTime:       sig.BlockTime,
		Failed:          sig.Failed || result.Meta.Err != nil,
		Memo:            sig.Memo,
		Fee:             result.Meta.Fee,
		RecentBlockhash: msg.RecentBlockhash,
		AccountKeys:     msg.AccountKeys,
		PreBalances:     result.Meta.PreBalances,
		PostBalances:    result.Meta.PostBalances,
	}

	txCtx.PreTokenBalances = tokenBalancesToDomain(result.Meta.PreTokenBalances)
	txCtx.PostTokenBalances = tokenBalancesToDomain(result.Meta.PostTokenBalances)

	for _, compiled := range msg.Instructions {
		ix, ok := resolveInstruction(compiled, msg.AccountKeys)
		if !ok {
			continue
		}
		txCtx.Instructions = append(txCtx.Instructions, ix)
	}

	return txCtx, nil
}

// resolveInstruction maps a compiled instruction's indexes back to account
// keys. Instructions with out-of-range indexes are dropped.
func resolveInstruction(compiled solana.CompiledInstruction, keys []solana.PublicKey) (Instruction, bool) {
	if int(compiled.ProgramIDIndex) >= len(keys) {
		return Instruction{}, false
	}
	ix := Instruction{
		ProgramID: keys[compiled.ProgramIDIndex],
		Data:      compiled.Data,
	}
	for _, accIdx := range compiled.Accounts {
		if int(accIdx) >= len(keys) {
			return Instruction{}, false
		}
		ix.Accounts = append(ix.Accounts, keys[accIdx])
	}
	return ix, true
}

func tokenBalancesToDomain(balances []rpc.TokenBalance) []TokenBalance {
	out := make([]TokenBalance, 0, len(balances))
	for _, b := range balances {
		if b.UiTokenAmount == nil {
			continue
		}
		amount, err := strconv.ParseUint(b.UiTokenAmount.Amount, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, TokenBalance{
			AccountIndex: b.AccountIndex,
			Mint:         b.Mint,
			Amount:       amount,
			Decimals:     b.UiTokenAmount.Decimals,
		})
	}
	return out
}
