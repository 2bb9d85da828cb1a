package prepare

import "errors"

// MaxMemoLength is the longest memo accepted on a transfer, in bytes.
const MaxMemoLength = 500

// Validation errors. These surface per-field inside an invalid
// CommandDescriptor and never cross the preparation boundary as Go errors;
// infrastructure failures (RPC errors) do.
var (
	ErrAmountRequired                = errors.New("amount is required")
	ErrRecipientRequired             = errors.New("recipient is required")
	ErrInvalidAddress                = errors.New("recipient is not a valid address")
	ErrDestinationIsAlsoSource       = errors.New("recipient is the sender")
	ErrAddressOffCurve               = errors.New("recipient is not on the ed25519 curve")
	ErrNotEnoughBalance              = errors.New("amount exceeds spendable balance")
	ErrNotEnoughBalanceForFees       = errors.New("balance does not cover fees")
	ErrMemoTooLong                   = errors.New("memo exceeds maximum length")
	ErrAmountNotTransferableInOneTx  = errors.New("amount is not transferable in one transaction")
	ErrTokenAccountHoldsAnotherToken = errors.New("recipient token account holds another token")
	ErrRecipientIsSenderTokenAccount = errors.New("recipient is the sender's own token account")
)

// Advisory warnings. Attached to valid descriptors; they inform, never block.
var (
	WarnRecipientNotFunded            = errors.New("recipient account is not funded")
	WarnRecipientAccountWillBeCreated = errors.New("recipient associated token account will be created")
	WarnAncillaryConsolidation        = errors.New("ancillary token accounts will be consolidated")
)
