package prepare

import (
	"fmt"

	"github.com/brojonat/solsync/service/chain"
	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
)

var memoProgramID = solana.MustPublicKeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")

// BuildDraft assembles the unsigned draft transaction realizing a prepared
// command. Signing happens externally: serialize the draft, collect the
// signature, then attach it with chain.AttachSignature.
func BuildDraft(cmd Command, blockhash solana.Hash) (*chain.Draft, error) {
	switch c := cmd.(type) {
	case TransferCommand:
		return buildTransfer(c, blockhash), nil
	case TokenTransferCommand:
		return buildTokenTransfer(c, blockhash), nil
	case CreateTokenAccountCommand:
		draft := chain.NewDraft(c.Owner, blockhash)
		draft.Add(newCreateTokenAccountInstruction(c.Owner, c.Owner, c.Mint))
		return draft, nil
	default:
		return nil, fmt.Errorf("unsupported command kind %q", cmd.Kind())
	}
}

func buildTransfer(c TransferCommand, blockhash solana.Hash) *chain.Draft {
	draft := chain.NewDraft(c.Sender, blockhash)
	draft.Add(system.NewTransferInstruction(c.Amount, c.Sender, c.Recipient).Build())
	if c.Memo != "" {
		draft.Add(newMemoInstruction(c.Memo))
	}
	return draft
}

func buildTokenTransfer(c TokenTransferCommand, blockhash solana.Hash) *chain.Draft {
	draft := chain.NewDraft(c.Owner, blockhash)

	// Consolidation first: ancillary balances land in the canonical account
	// before it is drained towards the recipient.
	for _, op := range c.AncillaryOps {
		switch op.Kind {
		case AncillaryTransfer:
			draft.Add(token.NewTransferCheckedInstruction(
				op.Amount, c.MintDecimals,
				op.SourceTokenAccount, c.Mint, c.OwnerTokenAccount, c.Owner,
				nil,
			).Build())
		case AncillaryClose:
			draft.Add(token.NewCloseAccountInstruction(
				op.TokenAccount, c.Owner, c.Owner,
				nil,
			).Build())
		}
	}

	if c.Recipient.ShouldCreateAssociatedAccount {
		draft.Add(newCreateTokenAccountInstruction(c.Owner, c.Recipient.WalletAddress, c.Mint))
	}

	draft.Add(token.NewTransferCheckedInstruction(
		c.Amount, c.MintDecimals,
		c.OwnerTokenAccount, c.Mint, c.Recipient.TokenAccountAddress, c.Owner,
		nil,
	).Build())

	if c.Memo != "" {
		draft.Add(newMemoInstruction(c.Memo))
	}
	return draft
}

// newCreateTokenAccountInstruction creates wallet's associated token account
// for mint, with payer funding the rent.
func newCreateTokenAccountInstruction(payer, wallet, mint solana.PublicKey) solana.Instruction {
	return associatedtokenaccount.NewCreateInstruction(payer, wallet, mint).Build()
}

// newMemoInstruction attaches a UTF-8 memo. The memo program takes no
// accounts; the text rides in the instruction data.
func newMemoInstruction(memo string) solana.Instruction {
	return solana.NewInstruction(memoProgramID, solana.AccountMetaSlice{}, []byte(memo))
}
