package temporal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brojonat/solsync/service/ledger"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"
)

const testWorkflowAddress = "4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T"

func workflowTestAccount(t *testing.T, opCount int) *ledger.Account {
	t.Helper()

	addr, err := solanago.PublicKeyFromBase58(testWorkflowAddress)
	require.NoError(t, err)

	account := &ledger.Account{
		ID:               ledger.AccountID(addr),
		Address:          addr,
		Balance:          2_000_000_000,
		SpendableBalance: 1_999_995_000,
		BlockHeight:      150_000_000,
	}

	for i := 0; i < opCount; i++ {
		txHash := string(rune('a'+i)) + "signature"
		account.Operations = append(account.Operations, &ledger.Operation{
			ID:          ledger.OperationID(account.ID, txHash, ledger.OperationIn),
			TxHash:      txHash,
			AccountID:   account.ID,
			Kind:        ledger.OperationIn,
			Value:       1_000_000,
			Fee:         5_000,
			BlockHeight: 150_000_000 - uint64(i),
			Date:        time.Now().Add(-time.Duration(i) * time.Minute),
		})
	}

	return account
}

func TestSyncAccountWorkflow(t *testing.T) {
	tests := []struct {
		name           string
		input          SyncAccountInput
		mockActivities func(loadMock, syncMock, saveMock, publishMock *testsuite.MockCallWrapper, account *ledger.Account)
		expectedError  bool
		validateResult func(*testing.T, *SyncAccountResult)
	}{
		{
			name:  "first sync publishes derived operations",
			input: SyncAccountInput{Address: testWorkflowAddress},
			mockActivities: func(loadMock, syncMock, saveMock, publishMock *testsuite.MockCallWrapper, account *ledger.Account) {
				// No persisted state yet
				loadMock.Return(&LoadAccountStateResult{}, nil)

				syncMock.Return(&SynchronizeAccountResult{
					Account:       account,
					NewOperations: account.Operations,
				}, nil)

				saveMock.Return(&SaveAccountStateResult{Saved: true}, nil)

				publishMock.Return(&PublishOperationsResult{Published: len(account.Operations)}, nil)
			},
			expectedError: false,
			validateResult: func(t *testing.T, result *SyncAccountResult) {
				assert.Equal(t, testWorkflowAddress, result.Address)
				assert.Equal(t, "solana:"+testWorkflowAddress, result.AccountID)
				assert.Equal(t, uint64(150_000_000), result.BlockHeight)
				assert.Equal(t, 2, result.NewOperations)
				assert.Equal(t, 2, result.Published)
				assert.Nil(t, result.Error)
			},
		},
		{
			name:  "no new operations skips publish",
			input: SyncAccountInput{Address: testWorkflowAddress},
			mockActivities: func(loadMock, syncMock, saveMock, publishMock *testsuite.MockCallWrapper, account *ledger.Account) {
				loadMock.Return(&LoadAccountStateResult{Account: account}, nil)

				syncMock.Return(&SynchronizeAccountResult{
					Account:       account,
					NewOperations: nil,
				}, nil)

				saveMock.Return(&SaveAccountStateResult{Saved: true}, nil)

				// PublishOperations should NOT be called
			},
			expectedError: false,
			validateResult: func(t *testing.T, result *SyncAccountResult) {
				assert.Equal(t, 0, result.NewOperations)
				assert.Equal(t, 0, result.Published)
				assert.Nil(t, result.Error)
			},
		},
		{
			name:  "synchronize fails",
			input: SyncAccountInput{Address: testWorkflowAddress},
			mockActivities: func(loadMock, syncMock, saveMock, publishMock *testsuite.MockCallWrapper, account *ledger.Account) {
				loadMock.Return(&LoadAccountStateResult{}, nil)

				syncMock.Return(nil, errors.New("solana RPC error"))

				// SaveAccountState and PublishOperations should NOT be called
			},
			expectedError: true,
			validateResult: func(t *testing.T, result *SyncAccountResult) {
				// The workflow records what it can before failing
			},
		},
		{
			name:  "save fails",
			input: SyncAccountInput{Address: testWorkflowAddress},
			mockActivities: func(loadMock, syncMock, saveMock, publishMock *testsuite.MockCallWrapper, account *ledger.Account) {
				loadMock.Return(&LoadAccountStateResult{}, nil)

				syncMock.Return(&SynchronizeAccountResult{
					Account:       account,
					NewOperations: account.Operations,
				}, nil)

				saveMock.Return(nil, errors.New("database error"))

				// PublishOperations should NOT be called
			},
			expectedError: true,
			validateResult: func(t *testing.T, result *SyncAccountResult) {},
		},
		{
			name:  "publish fails after snapshot is saved",
			input: SyncAccountInput{Address: testWorkflowAddress},
			mockActivities: func(loadMock, syncMock, saveMock, publishMock *testsuite.MockCallWrapper, account *ledger.Account) {
				loadMock.Return(&LoadAccountStateResult{}, nil)

				syncMock.Return(&SynchronizeAccountResult{
					Account:       account,
					NewOperations: account.Operations,
				}, nil)

				saveMock.Return(&SaveAccountStateResult{Saved: true}, nil)

				publishMock.Return(nil, errors.New("nats unavailable"))
			},
			expectedError: true,
			validateResult: func(t *testing.T, result *SyncAccountResult) {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Setup test environment
			testSuite := &testsuite.WorkflowTestSuite{}
			env := testSuite.NewTestWorkflowEnvironment()

			// Register activities first (before mocking)
			activities := &Activities{}
			env.RegisterActivity(activities.LoadAccountState)
			env.RegisterActivity(activities.SynchronizeAccount)
			env.RegisterActivity(activities.SaveAccountState)
			env.RegisterActivity(activities.PublishOperations)

			// Mock activities
			loadMock := env.OnActivity(activities.LoadAccountState, mock.Anything, mock.Anything)
			syncMock := env.OnActivity(activities.SynchronizeAccount, mock.Anything, mock.Anything)
			saveMock := env.OnActivity(activities.SaveAccountState, mock.Anything, mock.Anything)
			publishMock := env.OnActivity(activities.PublishOperations, mock.Anything, mock.Anything)

			account := workflowTestAccount(t, 2)
			tt.mockActivities(loadMock, syncMock, saveMock, publishMock, account)

			// Execute workflow
			env.ExecuteWorkflow(SyncAccountWorkflow, tt.input)

			if tt.expectedError {
				assert.Error(t, env.GetWorkflowError())

				var result SyncAccountResult
				env.GetWorkflowResult(&result)
				tt.validateResult(t, &result)
			} else {
				assert.NoError(t, env.GetWorkflowError())

				var result SyncAccountResult
				err := env.GetWorkflowResult(&result)
				assert.NoError(t, err)
				tt.validateResult(t, &result)
			}
		})
	}
}

func TestSyncAccountWorkflow_ActivityRetries(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	activities := &Activities{}
	env.RegisterActivity(activities.LoadAccountState)
	env.RegisterActivity(activities.SynchronizeAccount)
	env.RegisterActivity(activities.SaveAccountState)
	env.RegisterActivity(activities.PublishOperations)

	env.OnActivity(activities.LoadAccountState, mock.Anything, mock.Anything).
		Return(&LoadAccountStateResult{}, nil)

	account := workflowTestAccount(t, 1)

	// Fail twice, then succeed. The retry policy allows 3 attempts.
	attempts := 0
	env.OnActivity(activities.SynchronizeAccount, mock.Anything, mock.Anything).
		Return(func(ctx context.Context, input SynchronizeAccountInput) (*SynchronizeAccountResult, error) {
			attempts++
			if attempts < 3 {
				return nil, errors.New("transient rpc error")
			}
			return &SynchronizeAccountResult{
				Account:       account,
				NewOperations: account.Operations,
			}, nil
		})

	env.OnActivity(activities.SaveAccountState, mock.Anything, mock.Anything).
		Return(&SaveAccountStateResult{Saved: true}, nil)

	env.OnActivity(activities.PublishOperations, mock.Anything, mock.Anything).
		Return(&PublishOperationsResult{Published: 1}, nil)

	env.ExecuteWorkflow(SyncAccountWorkflow, SyncAccountInput{Address: testWorkflowAddress})

	assert.NoError(t, env.GetWorkflowError())
	assert.Equal(t, 3, attempts)

	var result SyncAccountResult
	err := env.GetWorkflowResult(&result)
	require.NoError(t, err)
	assert.Equal(t, 1, result.NewOperations)
	assert.Equal(t, 1, result.Published)
}
