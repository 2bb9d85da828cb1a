package prepare

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/brojonat/solsync/service/chain"
	"github.com/brojonat/solsync/service/ledger"
	"github.com/brojonat/solsync/service/metrics"
	"github.com/gagliardetto/solana-go"
)

// Preparer validates transfer intents against live account state and turns
// them into command descriptors. It is stateless: every call re-reads the
// chain, so repeated preparation reflects current balances.
type Preparer struct {
	chain   chain.Reader
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewPreparer creates a Preparer. m may be nil.
func NewPreparer(reader chain.Reader, m *metrics.Metrics, logger *slog.Logger) *Preparer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Preparer{
		chain:   reader,
		logger:  logger,
		metrics: m,
	}
}

// Prepare validates intent against account and produces exactly one
// CommandDescriptor: valid with a command, fees and warnings, or invalid
// with per-field errors. Infrastructure failures (RPC) come back as a Go
// error instead; no descriptor is produced then.
func (p *Preparer) Prepare(ctx context.Context, account *ledger.Account, intent TransferIntent) (*CommandDescriptor, error) {
	desc, err := p.prepare(ctx, account, intent)
	if p.metrics != nil && err == nil {
		status := "invalid"
		kind := "unknown"
		if desc.Valid() {
			status = "valid"
			kind = desc.Command.Kind()
		}
		p.metrics.RecordCommandPrepared(kind, status)
	}
	return desc, err
}

func (p *Preparer) prepare(ctx context.Context, account *ledger.Account, intent TransferIntent) (*CommandDescriptor, error) {
	// Structural validation first: no chain calls are made for these.
	fieldErrs := map[string]error{}

	if !intent.UseAllAmount && intent.Amount == 0 {
		fieldErrs["amount"] = ErrAmountRequired
	}

	var recipient solana.PublicKey
	switch {
	case intent.Recipient == "":
		fieldErrs["recipient"] = ErrRecipientRequired
	case intent.Recipient == account.Address.String():
		fieldErrs["recipient"] = ErrDestinationIsAlsoSource
	default:
		pk, err := solana.PublicKeyFromBase58(intent.Recipient)
		if err != nil {
			fieldErrs["recipient"] = ErrInvalidAddress
		} else {
			recipient = pk
		}
	}

	if len(intent.Memo) > MaxMemoLength {
		fieldErrs["memo"] = ErrMemoTooLong
	}

	if len(fieldErrs) > 0 {
		return invalidDescriptor(fieldErrs), nil
	}

	feeParams, err := p.chain.GetFeeParams(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch fee parameters: %w", err)
	}

	var desc *CommandDescriptor
	if intent.SubAccountID != "" {
		sub := account.FindSubAccountByID(intent.SubAccountID)
		if sub == nil {
			return nil, fmt.Errorf("sub-account %q not found", intent.SubAccountID)
		}
		desc, err = p.prepareTokenTransfer(ctx, account, sub, recipient, intent)
	} else {
		desc, err = p.prepareTransfer(ctx, account, recipient, intent)
	}
	if err != nil {
		return nil, err
	}
	if !desc.Valid() {
		return desc, nil
	}

	// Cross-cutting affordability check against the on-chain balance: the
	// amount (native path) or the secondary fees (token path) plus the
	// network fee must be covered.
	switch cmd := desc.Command.(type) {
	case TransferCommand:
		if cmd.Amount+feeParams.LamportsPerSignature > account.Balance {
			return invalidDescriptor(map[string]error{"amount": ErrNotEnoughBalance}), nil
		}
	default:
		if feeParams.LamportsPerSignature+desc.Fees > account.Balance {
			return invalidDescriptor(map[string]error{"amount": ErrNotEnoughBalanceForFees}), nil
		}
	}

	return desc, nil
}

func (p *Preparer) prepareTransfer(ctx context.Context, account *ledger.Account, recipient solana.PublicKey, intent TransferIntent) (*CommandDescriptor, error) {
	amount := intent.Amount
	if intent.UseAllAmount {
		amount = account.SpendableBalance
	}
	if amount > account.SpendableBalance {
		return invalidDescriptor(map[string]error{"amount": ErrNotEnoughBalance}), nil
	}

	// Off-curve addresses can never hold a signable wallet.
	if !recipient.IsOnCurve() {
		return invalidDescriptor(map[string]error{"recipient": ErrAddressOffCurve}), nil
	}

	warnings := map[string]error{}
	funded, err := p.chain.AccountExists(ctx, recipient)
	if err != nil {
		return nil, fmt.Errorf("failed to check recipient %s: %w", recipient, err)
	}
	if !funded {
		warnings["recipient"] = WarnRecipientNotFunded
	}

	return &CommandDescriptor{
		Command: TransferCommand{
			Sender:    account.Address,
			Recipient: recipient,
			Amount:    amount,
			Memo:      intent.Memo,
		},
		Warnings: warnings,
	}, nil
}

func (p *Preparer) prepareTokenTransfer(ctx context.Context, account *ledger.Account, sub *ledger.TokenSubAccount, recipient solana.PublicKey, intent TransferIntent) (*CommandDescriptor, error) {
	// The canonical account balance is not the ceiling here: consolidation
	// can pull ancillary balances into the same transaction, so
	// affordability is judged against the consolidation spec's transferable
	// total further down.
	amount := intent.Amount

	if recipient.Equals(sub.TokenAccount) {
		return invalidDescriptor(map[string]error{"recipient": ErrRecipientIsSenderTokenAccount}), nil
	}

	recipientDesc, err := resolveTokenRecipient(ctx, p.chain, recipient, sub.Mint)
	if err != nil {
		switch {
		case errors.Is(err, ErrAddressOffCurve),
			errors.Is(err, ErrTokenAccountHoldsAnotherToken):
			return invalidDescriptor(map[string]error{"recipient": err}), nil
		default:
			return nil, err
		}
	}

	warnings := map[string]error{}
	var fees uint64
	if recipientDesc.ShouldCreateAssociatedAccount {
		fees, err = p.chain.GetAccountCreationRent(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to estimate account creation rent: %w", err)
		}
		warnings["recipientAssociatedTokenAccount"] = WarnRecipientAccountWillBeCreated

		funded, err := p.chain.AccountExists(ctx, recipient)
		if err != nil {
			return nil, fmt.Errorf("failed to check recipient %s: %w", recipient, err)
		}
		if !funded {
			warnings["recipient"] = WarnRecipientNotFunded
		}
	}

	spec, err := p.buildConsolidationSpec(ctx, account.Address, sub.TokenAccount, sub.Mint, recipientDesc, amount, sub.Decimals)
	if err != nil {
		return nil, err
	}

	if intent.UseAllAmount {
		amount = spec.TotalTransferable
	}
	if amount > spec.TotalTransferable {
		return invalidDescriptor(map[string]error{"amount": ErrAmountNotTransferableInOneTx}), nil
	}

	if len(spec.Ops) > 0 {
		warnings["ancillaryOps"] = WarnAncillaryConsolidation
	}

	return &CommandDescriptor{
		Command: TokenTransferCommand{
			Owner:             account.Address,
			OwnerTokenAccount: sub.TokenAccount,
			Recipient:         *recipientDesc,
			Amount:            amount,
			Mint:              sub.Mint,
			MintDecimals:      sub.Decimals,
			AncillaryOps:      spec.Ops,
			Memo:              intent.Memo,
		},
		Fees:     fees,
		Warnings: warnings,
	}, nil
}

// PrepareCreateTokenAccount validates an opt-in: creating the owner's
// associated token account for mint. The only check is affordability of the
// rent plus the network fee.
func (p *Preparer) PrepareCreateTokenAccount(ctx context.Context, account *ledger.Account, mint solana.PublicKey) (*CommandDescriptor, error) {
	rent, err := p.chain.GetAccountCreationRent(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to estimate account creation rent: %w", err)
	}
	feeParams, err := p.chain.GetFeeParams(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch fee parameters: %w", err)
	}
	if rent+feeParams.LamportsPerSignature > account.Balance {
		return invalidDescriptor(map[string]error{"amount": ErrNotEnoughBalanceForFees}), nil
	}
	return &CommandDescriptor{
		Command: CreateTokenAccountCommand{
			Owner: account.Address,
			Mint:  mint,
		},
		Fees: rent,
	}, nil
}
