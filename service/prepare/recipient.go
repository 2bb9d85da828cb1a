package prepare

import (
	"context"
	"fmt"

	"github.com/brojonat/solsync/service/chain"
	"github.com/gagliardetto/solana-go"
)

// resolveTokenRecipient determines where a token transfer to recipient must
// land. Three outcomes:
//
//   - recipient is a plain wallet: the canonical associated token account is
//     derived; if it is not funded yet, the descriptor asks for its creation.
//   - recipient already is a token account for the right mint: used as-is.
//   - recipient is a token account for a different mint: validation error.
//
// Validation failures come back as the package's sentinel errors so the
// caller can map them to a field; anything else is an infrastructure failure.
func resolveTokenRecipient(ctx context.Context, reader chain.Reader, recipient, mint solana.PublicKey) (*TokenRecipientDescriptor, error) {
	tokenAcc, err := reader.GetTokenAccount(ctx, recipient)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect recipient %s: %w", recipient, err)
	}

	if tokenAcc == nil {
		if !recipient.IsOnCurve() {
			return nil, ErrAddressOffCurve
		}
		ata, err := chain.DeriveAssociatedTokenAddress(recipient, mint)
		if err != nil {
			return nil, fmt.Errorf("failed to derive associated token address: %w", err)
		}
		funded, err := reader.AccountExists(ctx, ata)
		if err != nil {
			return nil, fmt.Errorf("failed to check associated token account %s: %w", ata, err)
		}
		return &TokenRecipientDescriptor{
			WalletAddress:                 recipient,
			TokenAccountAddress:           ata,
			ShouldCreateAssociatedAccount: !funded,
		}, nil
	}

	if !tokenAcc.Mint.Equals(mint) {
		return nil, ErrTokenAccountHoldsAnotherToken
	}

	return &TokenRecipientDescriptor{
		WalletAddress:       tokenAcc.Owner,
		TokenAccountAddress: recipient,
	}, nil
}
