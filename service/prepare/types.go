package prepare

import "github.com/gagliardetto/solana-go"

// TransferIntent is what the user asked for, before any validation. A
// non-empty SubAccountID selects a token transfer from that sub-account;
// otherwise the intent is a native transfer from the main account.
type TransferIntent struct {
	Recipient    string
	Amount       uint64
	UseAllAmount bool
	Memo         string
	SubAccountID string
}

// Command is a validated, not-yet-signed intention to submit a transaction.
// The concrete types are TransferCommand, TokenTransferCommand and
// CreateTokenAccountCommand.
type Command interface {
	// Kind returns the command's stable wire label.
	Kind() string
}

// TransferCommand moves native lamports between wallet addresses.
type TransferCommand struct {
	Sender    solana.PublicKey
	Recipient solana.PublicKey
	Amount    uint64
	Memo      string
}

func (TransferCommand) Kind() string { return "transfer" }

// TokenRecipientDescriptor is a resolved token-transfer destination: the
// recipient's wallet, the token account the funds land in, and whether that
// token account still has to be created as part of the transfer.
type TokenRecipientDescriptor struct {
	WalletAddress                 solana.PublicKey
	TokenAccountAddress           solana.PublicKey
	ShouldCreateAssociatedAccount bool
}

// AncillaryOpKind distinguishes the two consolidation steps.
type AncillaryOpKind string

const (
	AncillaryTransfer AncillaryOpKind = "ancillary.token.transfer"
	AncillaryClose    AncillaryOpKind = "ancillary.token.close"
)

// AncillaryTokenOperation is one consolidation step against a non-canonical
// token account: either drain its balance into the canonical account, or
// close it to reclaim rent. Never user-facing on its own.
type AncillaryTokenOperation struct {
	Kind AncillaryOpKind

	// SourceTokenAccount and Amount are set for AncillaryTransfer.
	SourceTokenAccount solana.PublicKey
	Amount             uint64

	// TokenAccount is set for AncillaryClose.
	TokenAccount solana.PublicKey
}

// TokenTransferCommand moves fungible tokens from the owner's canonical
// associated token account, optionally consolidating ancillary accounts in
// the same transaction.
type TokenTransferCommand struct {
	Owner             solana.PublicKey
	OwnerTokenAccount solana.PublicKey
	Recipient         TokenRecipientDescriptor
	Amount            uint64
	Mint              solana.PublicKey
	MintDecimals      uint8
	AncillaryOps      []AncillaryTokenOperation
	Memo              string
}

func (TokenTransferCommand) Kind() string { return "token.transfer" }

// CreateTokenAccountCommand opts the owner into a token by creating its
// associated token account.
type CreateTokenAccountCommand struct {
	Owner solana.PublicKey
	Mint  solana.PublicKey
}

func (CreateTokenAccountCommand) Kind() string { return "token.createAssociated" }

// CommandDescriptor is the single outcome of preparation: either a valid
// command with optional fees and advisory warnings, or a set of per-field
// errors. It is immutable once produced.
type CommandDescriptor struct {
	Command  Command
	Fees     uint64
	Errors   map[string]error
	Warnings map[string]error
}

// Valid reports whether the descriptor carries an executable command.
func (d *CommandDescriptor) Valid() bool {
	return len(d.Errors) == 0 && d.Command != nil
}

func invalidDescriptor(errs map[string]error) *CommandDescriptor {
	return &CommandDescriptor{Errors: errs}
}
