package chain

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// MaxTransactionSize is the protocol's hard packet-size ceiling for one
// serialized transaction, signatures included.
const MaxTransactionSize = 1232

// ErrTransactionTooLarge signals that a draft no longer fits the protocol's
// packet-size ceiling. It is an expected control signal during consolidation
// packing, not a fault.
var ErrTransactionTooLarge = errors.New("serialized transaction exceeds maximum size")

// Draft is a not-yet-signed transaction under construction. It accumulates
// instructions and can report, at any point, whether the transaction still
// fits on the wire.
type Draft struct {
	payer        solana.PublicKey
	blockhash    solana.Hash
	instructions []solana.Instruction
}

// NewDraft starts a draft transaction paid for by payer.
func NewDraft(payer solana.PublicKey, blockhash solana.Hash) *Draft {
	return &Draft{
		payer:     payer,
		blockhash: blockhash,
	}
}

// Add appends an instruction to the draft.
func (d *Draft) Add(ix solana.Instruction) {
	d.instructions = append(d.instructions, ix)
}

// Build assembles the draft into an unsigned transaction.
func (d *Draft) Build() (*solana.Transaction, error) {
	return solana.NewTransaction(
		d.instructions,
		d.blockhash,
		solana.TransactionPayer(d.payer),
	)
}

// Serialize assembles the draft without signatures and returns the bytes it
// would occupy on the wire, accounting for the signature slots the message
// header requires. Returns ErrTransactionTooLarge past the packet ceiling.
func (d *Draft) Serialize() ([]byte, error) {
	tx, err := d.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to assemble draft: %w", err)
	}

	msgBytes, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize message: %w", err)
	}

	// One byte for the signature-count prefix, 64 bytes per required
	// signature, then the message itself.
	numSigs := int(tx.Message.Header.NumRequiredSignatures)
	size := 1 + numSigs*64 + len(msgBytes)
	if size > MaxTransactionSize {
		return nil, ErrTransactionTooLarge
	}
	return msgBytes, nil
}

// AttachSignature sets an externally produced signature on an assembled
// transaction. This is the pure half of the signing flow: any concurrency
// model (hardware wallet callback, future, channel) can drive it.
func AttachSignature(tx *solana.Transaction, signer solana.PublicKey, sig solana.Signature) error {
	numSigs := int(tx.Message.Header.NumRequiredSignatures)
	if len(tx.Message.AccountKeys) < numSigs {
		return fmt.Errorf("malformed message: %d signers, %d account keys", numSigs, len(tx.Message.AccountKeys))
	}
	if len(tx.Signatures) < numSigs {
		tx.Signatures = append(tx.Signatures, make([]solana.Signature, numSigs-len(tx.Signatures))...)
	}
	for i := 0; i < numSigs; i++ {
		if tx.Message.AccountKeys[i].Equals(signer) {
			tx.Signatures[i] = sig
			return nil
		}
	}
	return fmt.Errorf("address %s is not a required signer", signer)
}
