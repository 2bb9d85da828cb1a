package prepare

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/brojonat/solsync/service/chain"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
)

// TransactionDraft is the size-budget oracle used while packing. Serialize
// reports chain.ErrTransactionTooLarge once the draft no longer fits on the
// wire; chain.Draft is the production implementation.
type TransactionDraft interface {
	Add(ix solana.Instruction)
	Serialize() ([]byte, error)
}

// consolidationSpec is what packing learned about the owner's holdings for
// one mint: the ordered ancillary operations that fit alongside the primary
// transfer, and the amount reachable in a single transaction.
type consolidationSpec struct {
	// TotalTransferable is the canonical account balance plus the packed
	// ancillary transfer amounts.
	TotalTransferable uint64
	Ops               []AncillaryTokenOperation
}

// candidateOp pairs a consolidation operation with the instruction that
// realizes it, so packing can measure before committing.
type candidateOp struct {
	op AncillaryTokenOperation
	ix solana.Instruction
}

// buildConsolidationSpec enumerates the owner's non-canonical token accounts
// for the mint, turns the actionable ones into consolidation candidates,
// orders them, and greedily packs them into a draft that already carries the
// requested transfer (and the recipient account creation, when needed).
func (p *Preparer) buildConsolidationSpec(
	ctx context.Context,
	owner, ownerTokenAccount, mint solana.PublicKey,
	recipient *TokenRecipientDescriptor,
	amount uint64,
	decimals uint8,
) (*consolidationSpec, error) {
	accounts, err := p.chain.GetTokenAccountsByOwner(ctx, owner, &mint)
	if err != nil {
		return nil, fmt.Errorf("failed to list token accounts for %s: %w", owner, err)
	}

	var canonicalBalance uint64
	var ancillary []*chain.TokenAccountInfo
	for _, acc := range accounts {
		if acc.Address.Equals(ownerTokenAccount) {
			canonicalBalance = acc.Amount
			continue
		}
		ancillary = append(ancillary, acc)
	}

	blockhash, err := p.chain.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch blockhash: %w", err)
	}
	draft := chain.NewDraft(owner, blockhash)
	draft.Add(token.NewTransferCheckedInstruction(
		amount, decimals,
		ownerTokenAccount, mint, recipient.TokenAccountAddress, owner,
		nil,
	).Build())
	if recipient.ShouldCreateAssociatedAccount {
		draft.Add(newCreateTokenAccountInstruction(owner, recipient.WalletAddress, mint))
	}

	candidates := consolidationCandidates(ancillary, owner, ownerTokenAccount, mint, decimals)
	ops, transferable, stopped := packAncillaryOps(draft, candidates)
	if stopped && p.metrics != nil {
		p.metrics.RecordPackingStop(owner.String())
	}
	if p.metrics != nil {
		p.metrics.RecordAncillaryOpsPacked(string(AncillaryTransfer), len(ops))
	}

	return &consolidationSpec{
		TotalTransferable: canonicalBalance + transferable,
		Ops:               ops,
	}, nil
}

// consolidationCandidates converts ancillary accounts into ordered candidate
// operations. Only initialized accounts are actionable. An account with a
// balance yields a transfer into the canonical account; an account whose
// close authority is the owner (or unset) additionally yields a close,
// whether or not a transfer was emitted. Transfers come first, largest
// amount first, so each transaction slot consumed buys the most transferable
// value; closes carry no value and go last.
func consolidationCandidates(ancillary []*chain.TokenAccountInfo, owner, ownerTokenAccount, mint solana.PublicKey, decimals uint8) []candidateOp {
	var candidates []candidateOp
	for _, acc := range ancillary {
		if acc.State != chain.TokenAccountInitialized {
			continue
		}
		if acc.Amount > 0 {
			candidates = append(candidates, candidateOp{
				op: AncillaryTokenOperation{
					Kind:               AncillaryTransfer,
					SourceTokenAccount: acc.Address,
					Amount:             acc.Amount,
				},
				ix: token.NewTransferCheckedInstruction(
					acc.Amount, decimals,
					acc.Address, mint, ownerTokenAccount, owner,
					nil,
				).Build(),
			})
		}
		if acc.CloseAuthority == nil || acc.CloseAuthority.Equals(owner) {
			candidates = append(candidates, candidateOp{
				op: AncillaryTokenOperation{
					Kind:         AncillaryClose,
					TokenAccount: acc.Address,
				},
				ix: token.NewCloseAccountInstruction(
					acc.Address, owner, owner,
					nil,
				).Build(),
			})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		ti, tj := candidates[i].op.Kind == AncillaryTransfer, candidates[j].op.Kind == AncillaryTransfer
		if ti != tj {
			return ti
		}
		if ti {
			return candidates[i].op.Amount > candidates[j].op.Amount
		}
		return false
	})
	return candidates
}

// packAncillaryOps folds ordered candidates into the draft. Each step either
// accepts the candidate or hits the size ceiling and stops packing for good:
// once one candidate fails to fit, no later one is tried, even if it would
// fit alone. The stop keeps packing deterministic; the draft is measurement
// scaffolding and is discarded afterwards.
func packAncillaryOps(draft TransactionDraft, candidates []candidateOp) (ops []AncillaryTokenOperation, transferable uint64, stopped bool) {
	for _, cand := range candidates {
		draft.Add(cand.ix)
		if _, err := draft.Serialize(); err != nil {
			if errors.Is(err, chain.ErrTransactionTooLarge) {
				return ops, transferable, true
			}
			// Any other serialization failure also ends packing; the
			// primary transfer is unaffected.
			return ops, transferable, true
		}
		ops = append(ops, cand.op)
		if cand.op.Kind == AncillaryTransfer {
			transferable += cand.op.Amount
		}
	}
	return ops, transferable, false
}
