package prepare

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/brojonat/solsync/service/chain"
	"github.com/brojonat/solsync/service/ledger"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockReader struct {
	mock.Mock
}

func (m *mockReader) GetBalanceAndHeight(ctx context.Context, addr solana.PublicKey) (*chain.BalanceAndHeight, error) {
	args := m.Called(ctx, addr)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*chain.BalanceAndHeight), args.Error(1)
}

func (m *mockReader) GetFeeParams(ctx context.Context) (*chain.FeeParams, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*chain.FeeParams), args.Error(1)
}

func (m *mockReader) GetTokenAccountsByOwner(ctx context.Context, owner solana.PublicKey, mint *solana.PublicKey) ([]*chain.TokenAccountInfo, error) {
	args := m.Called(ctx, owner, mint)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*chain.TokenAccountInfo), args.Error(1)
}

func (m *mockReader) GetSignatures(ctx context.Context, addr solana.PublicKey, until *solana.Signature, limit int) ([]*chain.SignatureInfo, error) {
	args := m.Called(ctx, addr, until, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*chain.SignatureInfo), args.Error(1)
}

func (m *mockReader) GetTransactions(ctx context.Context, sigs []*chain.SignatureInfo) ([]*chain.TransactionContext, error) {
	args := m.Called(ctx, sigs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*chain.TransactionContext), args.Error(1)
}

func (m *mockReader) GetTokenAccount(ctx context.Context, addr solana.PublicKey) (*chain.TokenAccountInfo, error) {
	args := m.Called(ctx, addr)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*chain.TokenAccountInfo), args.Error(1)
}

func (m *mockReader) AccountExists(ctx context.Context, addr solana.PublicKey) (bool, error) {
	args := m.Called(ctx, addr)
	return args.Bool(0), args.Error(1)
}

func (m *mockReader) GetAccountCreationRent(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *mockReader) GetLatestBlockhash(ctx context.Context) (solana.Hash, error) {
	args := m.Called(ctx)
	return args.Get(0).(solana.Hash), args.Error(1)
}

var (
	testOwner     = solana.MustPublicKeyFromBase58("4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T")
	testRecipient = solana.MustPublicKeyFromBase58("7UX2i7SucgLMQcfZ75s3VXmZZY4YRUyJN9X1RgfMoDUi")
	testMint      = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
)

// offCurveAddress is a program-derived address, guaranteed off the ed25519
// curve.
func offCurveAddress(t *testing.T) solana.PublicKey {
	t.Helper()
	ata, err := chain.DeriveAssociatedTokenAddress(testRecipient, testMint)
	require.NoError(t, err)
	return ata
}

func nativeAccount(balance, spendable uint64) *ledger.Account {
	return &ledger.Account{
		ID:               ledger.AccountID(testOwner),
		Address:          testOwner,
		Balance:          balance,
		SpendableBalance: spendable,
	}
}

func tokenAccount(t *testing.T, tokenBalance uint64) (*ledger.Account, *ledger.TokenSubAccount) {
	t.Helper()
	ata, err := chain.DeriveAssociatedTokenAddress(testOwner, testMint)
	require.NoError(t, err)
	acc := nativeAccount(10_000_000, 9_995_000)
	sub := &ledger.TokenSubAccount{
		ID:               ledger.SubAccountID(acc.ID, ata),
		ParentID:         acc.ID,
		Mint:             testMint,
		TokenAccount:     ata,
		Symbol:           "USDC",
		Decimals:         6,
		Balance:          tokenBalance,
		SpendableBalance: tokenBalance,
	}
	acc.SubAccounts = []*ledger.TokenSubAccount{sub}
	return acc, sub
}

func expectFeeParams(reader *mockReader) {
	reader.On("GetFeeParams", mock.Anything).
		Return(&chain.FeeParams{LamportsPerSignature: 5_000}, nil)
}

func TestPrepare_StructuralValidation(t *testing.T) {
	ctx := context.Background()

	t.Run("missing fields are reported together without chain calls", func(t *testing.T) {
		reader := new(mockReader)
		p := NewPreparer(reader, nil, nil)
		desc, err := p.Prepare(ctx, nativeAccount(1_000_000, 995_000), TransferIntent{
			Memo: strings.Repeat("x", MaxMemoLength+1),
		})
		require.NoError(t, err)
		assert.False(t, desc.Valid())
		assert.ErrorIs(t, desc.Errors["amount"], ErrAmountRequired)
		assert.ErrorIs(t, desc.Errors["recipient"], ErrRecipientRequired)
		assert.ErrorIs(t, desc.Errors["memo"], ErrMemoTooLong)
		reader.AssertExpectations(t)
	})

	t.Run("recipient equal to sender", func(t *testing.T) {
		p := NewPreparer(new(mockReader), nil, nil)
		desc, err := p.Prepare(ctx, nativeAccount(1_000_000, 995_000), TransferIntent{
			Recipient: testOwner.String(),
			Amount:    100,
		})
		require.NoError(t, err)
		assert.ErrorIs(t, desc.Errors["recipient"], ErrDestinationIsAlsoSource)
	})

	t.Run("malformed recipient address", func(t *testing.T) {
		p := NewPreparer(new(mockReader), nil, nil)
		desc, err := p.Prepare(ctx, nativeAccount(1_000_000, 995_000), TransferIntent{
			Recipient: "not-base58!",
			Amount:    100,
		})
		require.NoError(t, err)
		assert.ErrorIs(t, desc.Errors["recipient"], ErrInvalidAddress)
	})

	t.Run("use all amount needs no explicit amount", func(t *testing.T) {
		reader := new(mockReader)
		expectFeeParams(reader)
		reader.On("AccountExists", mock.Anything, testRecipient).Return(true, nil)
		p := NewPreparer(reader, nil, nil)
		desc, err := p.Prepare(ctx, nativeAccount(1_000_000, 995_000), TransferIntent{
			Recipient:    testRecipient.String(),
			UseAllAmount: true,
		})
		require.NoError(t, err)
		require.True(t, desc.Valid())
		cmd := desc.Command.(TransferCommand)
		assert.Equal(t, uint64(995_000), cmd.Amount)
	})
}

func TestPrepare_NativeTransfer(t *testing.T) {
	ctx := context.Background()

	t.Run("valid transfer", func(t *testing.T) {
		reader := new(mockReader)
		expectFeeParams(reader)
		reader.On("AccountExists", mock.Anything, testRecipient).Return(true, nil)
		p := NewPreparer(reader, nil, nil)
		desc, err := p.Prepare(ctx, nativeAccount(1_000_000, 995_000), TransferIntent{
			Recipient: testRecipient.String(),
			Amount:    500_000,
			Memo:      "rent",
		})
		require.NoError(t, err)
		require.True(t, desc.Valid())
		cmd := desc.Command.(TransferCommand)
		assert.Equal(t, testOwner, cmd.Sender)
		assert.Equal(t, testRecipient, cmd.Recipient)
		assert.Equal(t, uint64(500_000), cmd.Amount)
		assert.Equal(t, "rent", cmd.Memo)
		assert.Empty(t, desc.Warnings)
	})

	t.Run("amount of exactly balance minus fee succeeds", func(t *testing.T) {
		reader := new(mockReader)
		expectFeeParams(reader)
		reader.On("AccountExists", mock.Anything, testRecipient).Return(true, nil)
		p := NewPreparer(reader, nil, nil)
		desc, err := p.Prepare(ctx, nativeAccount(1_000_000, 995_000), TransferIntent{
			Recipient: testRecipient.String(),
			Amount:    995_000,
		})
		require.NoError(t, err)
		assert.True(t, desc.Valid())
	})

	t.Run("amount above spendable balance", func(t *testing.T) {
		reader := new(mockReader)
		expectFeeParams(reader)
		p := NewPreparer(reader, nil, nil)
		desc, err := p.Prepare(ctx, nativeAccount(1_000_000, 995_000), TransferIntent{
			Recipient: testRecipient.String(),
			Amount:    995_001,
		})
		require.NoError(t, err)
		assert.ErrorIs(t, desc.Errors["amount"], ErrNotEnoughBalance)
	})

	t.Run("off-curve recipient", func(t *testing.T) {
		reader := new(mockReader)
		expectFeeParams(reader)
		p := NewPreparer(reader, nil, nil)
		desc, err := p.Prepare(ctx, nativeAccount(1_000_000, 995_000), TransferIntent{
			Recipient: offCurveAddress(t).String(),
			Amount:    100,
		})
		require.NoError(t, err)
		assert.ErrorIs(t, desc.Errors["recipient"], ErrAddressOffCurve)
	})

	t.Run("unfunded recipient is a warning, not an error", func(t *testing.T) {
		reader := new(mockReader)
		expectFeeParams(reader)
		reader.On("AccountExists", mock.Anything, testRecipient).Return(false, nil)
		p := NewPreparer(reader, nil, nil)
		desc, err := p.Prepare(ctx, nativeAccount(1_000_000, 995_000), TransferIntent{
			Recipient: testRecipient.String(),
			Amount:    100,
		})
		require.NoError(t, err)
		require.True(t, desc.Valid())
		assert.ErrorIs(t, desc.Warnings["recipient"], WarnRecipientNotFunded)
	})

	t.Run("amount plus network fee must fit the balance", func(t *testing.T) {
		reader := new(mockReader)
		expectFeeParams(reader)
		reader.On("AccountExists", mock.Anything, testRecipient).Return(true, nil)
		p := NewPreparer(reader, nil, nil)
		// A stale spendable balance can admit an amount the live balance
		// cannot cover once the fee lands.
		desc, err := p.Prepare(ctx, nativeAccount(100_000, 99_000), TransferIntent{
			Recipient: testRecipient.String(),
			Amount:    96_000,
		})
		require.NoError(t, err)
		assert.ErrorIs(t, desc.Errors["amount"], ErrNotEnoughBalance)
	})

	t.Run("rpc failure is an error, not a descriptor", func(t *testing.T) {
		reader := new(mockReader)
		expectFeeParams(reader)
		reader.On("AccountExists", mock.Anything, testRecipient).
			Return(false, errors.New("rpc timeout"))
		p := NewPreparer(reader, nil, nil)
		desc, err := p.Prepare(ctx, nativeAccount(1_000_000, 995_000), TransferIntent{
			Recipient: testRecipient.String(),
			Amount:    100,
		})
		require.Error(t, err)
		assert.Nil(t, desc)
	})
}

func TestPrepare_TokenTransfer(t *testing.T) {
	ctx := context.Background()

	t.Run("transfer to a funded associated account", func(t *testing.T) {
		acc, sub := tokenAccount(t, 1_000_000)
		recipientATA, err := chain.DeriveAssociatedTokenAddress(testRecipient, testMint)
		require.NoError(t, err)

		reader := new(mockReader)
		expectFeeParams(reader)
		reader.On("GetTokenAccount", mock.Anything, testRecipient).
			Return(nil, nil)
		reader.On("AccountExists", mock.Anything, recipientATA).Return(true, nil)
		reader.On("GetTokenAccountsByOwner", mock.Anything, testOwner, &testMint).
			Return([]*chain.TokenAccountInfo{
				{Address: sub.TokenAccount, Mint: testMint, Owner: testOwner, Amount: 1_000_000, State: chain.TokenAccountInitialized},
			}, nil)
		reader.On("GetLatestBlockhash", mock.Anything).Return(solana.Hash{}, nil)

		p := NewPreparer(reader, nil, nil)
		desc, err := p.Prepare(ctx, acc, TransferIntent{
			Recipient:    testRecipient.String(),
			Amount:       250_000,
			SubAccountID: sub.ID,
		})
		require.NoError(t, err)
		require.True(t, desc.Valid())
		cmd := desc.Command.(TokenTransferCommand)
		assert.Equal(t, sub.TokenAccount, cmd.OwnerTokenAccount)
		assert.Equal(t, recipientATA, cmd.Recipient.TokenAccountAddress)
		assert.False(t, cmd.Recipient.ShouldCreateAssociatedAccount)
		assert.Equal(t, uint64(250_000), cmd.Amount)
		assert.Equal(t, uint64(0), desc.Fees)
		assert.Empty(t, cmd.AncillaryOps)
	})

	t.Run("recipient account creation adds rent and warnings", func(t *testing.T) {
		acc, sub := tokenAccount(t, 1_000_000)
		recipientATA, err := chain.DeriveAssociatedTokenAddress(testRecipient, testMint)
		require.NoError(t, err)

		reader := new(mockReader)
		expectFeeParams(reader)
		reader.On("GetTokenAccount", mock.Anything, testRecipient).Return(nil, nil)
		reader.On("AccountExists", mock.Anything, recipientATA).Return(false, nil)
		reader.On("AccountExists", mock.Anything, testRecipient).Return(false, nil)
		reader.On("GetAccountCreationRent", mock.Anything).Return(uint64(2_039_280), nil)
		reader.On("GetTokenAccountsByOwner", mock.Anything, testOwner, &testMint).
			Return([]*chain.TokenAccountInfo{
				{Address: sub.TokenAccount, Mint: testMint, Owner: testOwner, Amount: 1_000_000, State: chain.TokenAccountInitialized},
			}, nil)
		reader.On("GetLatestBlockhash", mock.Anything).Return(solana.Hash{}, nil)

		p := NewPreparer(reader, nil, nil)
		desc, err := p.Prepare(ctx, acc, TransferIntent{
			Recipient:    testRecipient.String(),
			Amount:       250_000,
			SubAccountID: sub.ID,
		})
		require.NoError(t, err)
		require.True(t, desc.Valid())
		assert.Equal(t, uint64(2_039_280), desc.Fees)
		assert.ErrorIs(t, desc.Warnings["recipientAssociatedTokenAccount"], WarnRecipientAccountWillBeCreated)
		assert.ErrorIs(t, desc.Warnings["recipient"], WarnRecipientNotFunded)
		cmd := desc.Command.(TokenTransferCommand)
		assert.True(t, cmd.Recipient.ShouldCreateAssociatedAccount)
	})

	t.Run("recipient is the sender's own token account", func(t *testing.T) {
		acc, sub := tokenAccount(t, 1_000_000)
		reader := new(mockReader)
		expectFeeParams(reader)
		p := NewPreparer(reader, nil, nil)
		desc, err := p.Prepare(ctx, acc, TransferIntent{
			Recipient:    sub.TokenAccount.String(),
			Amount:       100,
			SubAccountID: sub.ID,
		})
		require.NoError(t, err)
		assert.ErrorIs(t, desc.Errors["recipient"], ErrRecipientIsSenderTokenAccount)
	})

	t.Run("recipient token account holds another token", func(t *testing.T) {
		acc, sub := tokenAccount(t, 1_000_000)
		otherMint := solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
		reader := new(mockReader)
		expectFeeParams(reader)
		reader.On("GetTokenAccount", mock.Anything, testRecipient).
			Return(&chain.TokenAccountInfo{Address: testRecipient, Mint: otherMint, Owner: testOwner}, nil)
		p := NewPreparer(reader, nil, nil)
		desc, err := p.Prepare(ctx, acc, TransferIntent{
			Recipient:    testRecipient.String(),
			Amount:       100,
			SubAccountID: sub.ID,
		})
		require.NoError(t, err)
		assert.ErrorIs(t, desc.Errors["recipient"], ErrTokenAccountHoldsAnotherToken)
	})

	t.Run("amount beyond what one transaction can move", func(t *testing.T) {
		acc, sub := tokenAccount(t, 1_000_000)
		recipientATA, err := chain.DeriveAssociatedTokenAddress(testRecipient, testMint)
		require.NoError(t, err)

		reader := new(mockReader)
		expectFeeParams(reader)
		reader.On("GetTokenAccount", mock.Anything, testRecipient).Return(nil, nil)
		reader.On("AccountExists", mock.Anything, recipientATA).Return(true, nil)
		// The canonical account only holds part of the sub-account balance;
		// the rest sits in ancillary accounts that are not consolidatable.
		reader.On("GetTokenAccountsByOwner", mock.Anything, testOwner, &testMint).
			Return([]*chain.TokenAccountInfo{
				{Address: sub.TokenAccount, Mint: testMint, Owner: testOwner, Amount: 1_000_000, State: chain.TokenAccountInitialized},
				{Address: ancillaryAddress(1), Mint: testMint, Owner: testOwner, Amount: 4_000_000, State: chain.TokenAccountFrozen},
			}, nil)
		reader.On("GetLatestBlockhash", mock.Anything).Return(solana.Hash{}, nil)

		p := NewPreparer(reader, nil, nil)
		desc, err := p.Prepare(ctx, acc, TransferIntent{
			Recipient:    testRecipient.String(),
			Amount:       3_000_000,
			SubAccountID: sub.ID,
		})
		require.NoError(t, err)
		assert.ErrorIs(t, desc.Errors["amount"], ErrAmountNotTransferableInOneTx)
	})

	t.Run("ancillary accounts are consolidated into the transfer", func(t *testing.T) {
		// The sub-account spendable balance reflects only the canonical
		// account, the way synchronization records it; the ancillary holding
		// shows up solely through GetTokenAccountsByOwner.
		acc, sub := tokenAccount(t, 1_000_000)
		recipientATA, err := chain.DeriveAssociatedTokenAddress(testRecipient, testMint)
		require.NoError(t, err)

		reader := new(mockReader)
		expectFeeParams(reader)
		reader.On("GetTokenAccount", mock.Anything, testRecipient).Return(nil, nil)
		reader.On("AccountExists", mock.Anything, recipientATA).Return(true, nil)
		reader.On("GetTokenAccountsByOwner", mock.Anything, testOwner, &testMint).
			Return([]*chain.TokenAccountInfo{
				{Address: sub.TokenAccount, Mint: testMint, Owner: testOwner, Amount: 1_000_000, State: chain.TokenAccountInitialized},
				{Address: ancillaryAddress(1), Mint: testMint, Owner: testOwner, Amount: 2_000_000, State: chain.TokenAccountInitialized},
			}, nil)
		reader.On("GetLatestBlockhash", mock.Anything).Return(solana.Hash{}, nil)

		p := NewPreparer(reader, nil, nil)
		desc, err := p.Prepare(ctx, acc, TransferIntent{
			Recipient:    testRecipient.String(),
			Amount:       2_500_000,
			SubAccountID: sub.ID,
		})
		require.NoError(t, err)
		require.True(t, desc.Valid())
		assert.ErrorIs(t, desc.Warnings["ancillaryOps"], WarnAncillaryConsolidation)
		cmd := desc.Command.(TokenTransferCommand)
		require.Len(t, cmd.AncillaryOps, 2)
		assert.Equal(t, AncillaryTransfer, cmd.AncillaryOps[0].Kind)
		assert.Equal(t, uint64(2_000_000), cmd.AncillaryOps[0].Amount)
		assert.Equal(t, AncillaryClose, cmd.AncillaryOps[1].Kind)
	})

	t.Run("amount above the canonical balance draws on ancillary accounts", func(t *testing.T) {
		acc, sub := tokenAccount(t, 4_000_000)
		recipientATA, err := chain.DeriveAssociatedTokenAddress(testRecipient, testMint)
		require.NoError(t, err)

		reader := new(mockReader)
		expectFeeParams(reader)
		reader.On("GetTokenAccount", mock.Anything, testRecipient).Return(nil, nil)
		reader.On("AccountExists", mock.Anything, recipientATA).Return(true, nil)
		reader.On("GetTokenAccountsByOwner", mock.Anything, testOwner, &testMint).
			Return([]*chain.TokenAccountInfo{
				{Address: sub.TokenAccount, Mint: testMint, Owner: testOwner, Amount: 4_000_000, State: chain.TokenAccountInitialized},
				{Address: ancillaryAddress(1), Mint: testMint, Owner: testOwner, Amount: 2_500_000, State: chain.TokenAccountInitialized},
				{Address: ancillaryAddress(2), Mint: testMint, Owner: testOwner, Amount: 1_500_000, State: chain.TokenAccountInitialized},
			}, nil)
		reader.On("GetLatestBlockhash", mock.Anything).Return(solana.Hash{}, nil)

		p := NewPreparer(reader, nil, nil)
		desc, err := p.Prepare(ctx, acc, TransferIntent{
			Recipient:    testRecipient.String(),
			Amount:       7_000_000,
			SubAccountID: sub.ID,
		})
		require.NoError(t, err)
		require.True(t, desc.Valid())
		cmd := desc.Command.(TokenTransferCommand)
		assert.Equal(t, uint64(7_000_000), cmd.Amount)
		require.Len(t, cmd.AncillaryOps, 4)
		assert.Equal(t, AncillaryTransfer, cmd.AncillaryOps[0].Kind)
		assert.Equal(t, uint64(2_500_000), cmd.AncillaryOps[0].Amount)
		assert.Equal(t, AncillaryTransfer, cmd.AncillaryOps[1].Kind)
		assert.Equal(t, uint64(1_500_000), cmd.AncillaryOps[1].Amount)
		assert.Equal(t, AncillaryClose, cmd.AncillaryOps[2].Kind)
		assert.Equal(t, AncillaryClose, cmd.AncillaryOps[3].Kind)
	})

	t.Run("amount beyond the consolidated total", func(t *testing.T) {
		acc, sub := tokenAccount(t, 4_000_000)
		recipientATA, err := chain.DeriveAssociatedTokenAddress(testRecipient, testMint)
		require.NoError(t, err)

		reader := new(mockReader)
		expectFeeParams(reader)
		reader.On("GetTokenAccount", mock.Anything, testRecipient).Return(nil, nil)
		reader.On("AccountExists", mock.Anything, recipientATA).Return(true, nil)
		reader.On("GetTokenAccountsByOwner", mock.Anything, testOwner, &testMint).
			Return([]*chain.TokenAccountInfo{
				{Address: sub.TokenAccount, Mint: testMint, Owner: testOwner, Amount: 4_000_000, State: chain.TokenAccountInitialized},
				{Address: ancillaryAddress(1), Mint: testMint, Owner: testOwner, Amount: 2_500_000, State: chain.TokenAccountInitialized},
				{Address: ancillaryAddress(2), Mint: testMint, Owner: testOwner, Amount: 1_500_000, State: chain.TokenAccountInitialized},
			}, nil)
		reader.On("GetLatestBlockhash", mock.Anything).Return(solana.Hash{}, nil)

		p := NewPreparer(reader, nil, nil)
		desc, err := p.Prepare(ctx, acc, TransferIntent{
			Recipient:    testRecipient.String(),
			Amount:       9_000_000,
			SubAccountID: sub.ID,
		})
		require.NoError(t, err)
		assert.ErrorIs(t, desc.Errors["amount"], ErrAmountNotTransferableInOneTx)
	})

	t.Run("use all amount resolves to the consolidated total", func(t *testing.T) {
		acc, sub := tokenAccount(t, 1_000_000)
		recipientATA, err := chain.DeriveAssociatedTokenAddress(testRecipient, testMint)
		require.NoError(t, err)

		reader := new(mockReader)
		expectFeeParams(reader)
		reader.On("GetTokenAccount", mock.Anything, testRecipient).Return(nil, nil)
		reader.On("AccountExists", mock.Anything, recipientATA).Return(true, nil)
		reader.On("GetTokenAccountsByOwner", mock.Anything, testOwner, &testMint).
			Return([]*chain.TokenAccountInfo{
				{Address: sub.TokenAccount, Mint: testMint, Owner: testOwner, Amount: 1_000_000, State: chain.TokenAccountInitialized},
				{Address: ancillaryAddress(1), Mint: testMint, Owner: testOwner, Amount: 2_000_000, State: chain.TokenAccountInitialized},
			}, nil)
		reader.On("GetLatestBlockhash", mock.Anything).Return(solana.Hash{}, nil)

		p := NewPreparer(reader, nil, nil)
		desc, err := p.Prepare(ctx, acc, TransferIntent{
			Recipient:    testRecipient.String(),
			UseAllAmount: true,
			SubAccountID: sub.ID,
		})
		require.NoError(t, err)
		require.True(t, desc.Valid())
		cmd := desc.Command.(TokenTransferCommand)
		assert.Equal(t, uint64(3_000_000), cmd.Amount)
	})

	t.Run("rent plus network fee must fit the native balance", func(t *testing.T) {
		acc, sub := tokenAccount(t, 1_000_000)
		acc.Balance = 1_000_000
		recipientATA, err := chain.DeriveAssociatedTokenAddress(testRecipient, testMint)
		require.NoError(t, err)

		reader := new(mockReader)
		expectFeeParams(reader)
		reader.On("GetTokenAccount", mock.Anything, testRecipient).Return(nil, nil)
		reader.On("AccountExists", mock.Anything, recipientATA).Return(false, nil)
		reader.On("AccountExists", mock.Anything, testRecipient).Return(true, nil)
		reader.On("GetAccountCreationRent", mock.Anything).Return(uint64(2_039_280), nil)
		reader.On("GetTokenAccountsByOwner", mock.Anything, testOwner, &testMint).
			Return([]*chain.TokenAccountInfo{
				{Address: sub.TokenAccount, Mint: testMint, Owner: testOwner, Amount: 1_000_000, State: chain.TokenAccountInitialized},
			}, nil)
		reader.On("GetLatestBlockhash", mock.Anything).Return(solana.Hash{}, nil)

		p := NewPreparer(reader, nil, nil)
		desc, err := p.Prepare(ctx, acc, TransferIntent{
			Recipient:    testRecipient.String(),
			Amount:       100,
			SubAccountID: sub.ID,
		})
		require.NoError(t, err)
		assert.ErrorIs(t, desc.Errors["amount"], ErrNotEnoughBalanceForFees)
	})

	t.Run("unknown sub-account id", func(t *testing.T) {
		acc, _ := tokenAccount(t, 1_000_000)
		reader := new(mockReader)
		expectFeeParams(reader)
		p := NewPreparer(reader, nil, nil)
		_, err := p.Prepare(ctx, acc, TransferIntent{
			Recipient:    testRecipient.String(),
			Amount:       100,
			SubAccountID: "solana:nope+nope",
		})
		require.Error(t, err)
	})
}

func TestPrepareCreateTokenAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("affordable opt-in", func(t *testing.T) {
		reader := new(mockReader)
		expectFeeParams(reader)
		reader.On("GetAccountCreationRent", mock.Anything).Return(uint64(2_039_280), nil)
		p := NewPreparer(reader, nil, nil)
		desc, err := p.PrepareCreateTokenAccount(ctx, nativeAccount(10_000_000, 9_995_000), testMint)
		require.NoError(t, err)
		require.True(t, desc.Valid())
		cmd := desc.Command.(CreateTokenAccountCommand)
		assert.Equal(t, testOwner, cmd.Owner)
		assert.Equal(t, testMint, cmd.Mint)
		assert.Equal(t, uint64(2_039_280), desc.Fees)
	})

	t.Run("balance below rent and fee", func(t *testing.T) {
		reader := new(mockReader)
		expectFeeParams(reader)
		reader.On("GetAccountCreationRent", mock.Anything).Return(uint64(2_039_280), nil)
		p := NewPreparer(reader, nil, nil)
		desc, err := p.PrepareCreateTokenAccount(ctx, nativeAccount(2_000_000, 1_995_000), testMint)
		require.NoError(t, err)
		assert.ErrorIs(t, desc.Errors["amount"], ErrNotEnoughBalanceForFees)
	})
}

// ancillaryAddress builds a deterministic throwaway token account address.
func ancillaryAddress(b byte) solana.PublicKey {
	var key solana.PublicKey
	key[0] = b
	return key
}
