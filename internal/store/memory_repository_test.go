package store

import (
	"context"
	"testing"
	"time"

	"github.com/pamilerinsimon03/WemaTrust/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ Repository = (*MemoryRepository)(nil)
	_ Repository = (*PostgresRepository)(nil)
)

func seededRepo(t *testing.T) *MemoryRepository {
	t.Helper()
	repo := NewMemoryRepository()
	ctx := context.Background()
	require.NoError(t, repo.CreateAccount(ctx, domain.Account{ID: "acc_1", Name: "User One", AccountNumber: "0123456789", Balance: 100000}))
	require.NoError(t, repo.CreateAccount(ctx, domain.Account{ID: "acc_2", Name: "User Two", AccountNumber: "9876543210", Balance: 50000}))
	return repo
}

func TestMemoryRepositoryDebitRejectsOverdraft(t *testing.T) {
	repo := seededRepo(t)
	ctx := context.Background()

	balance, err := repo.DebitAccount(ctx, "acc_1", 100001)
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, int64(100000), balance)

	balance, err = repo.DebitAccount(ctx, "acc_1", 5000)
	require.NoError(t, err)
	assert.Equal(t, int64(95000), balance)

	_, err = repo.DebitAccount(ctx, "missing", 1)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestMemoryRepositoryRejectsDuplicateAccountNumber(t *testing.T) {
	repo := seededRepo(t)
	err := repo.CreateAccount(context.Background(), domain.Account{ID: "acc_3", AccountNumber: "0123456789"})
	assert.ErrorIs(t, err, ErrAccountNumberTaken)
}

func TestMemoryRepositoryShadowLifecycle(t *testing.T) {
	repo := seededRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	entry := domain.ShadowEntry{ID: "sh_1", AccountID: "acc_2", TxnRef: "WT_A", Amount: 5000, Status: domain.ShadowPending, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, repo.SaveShadowEntry(ctx, entry))

	found, err := repo.FindShadowEntryByRef(ctx, "WT_A")
	require.NoError(t, err)
	assert.Equal(t, domain.ShadowPending, found.Status)

	entry.Status = domain.ShadowFailed
	require.NoError(t, repo.SaveShadowEntry(ctx, entry))
	account, err := repo.FindAccountByID(ctx, "acc_2")
	require.NoError(t, err)
	require.Len(t, account.ShadowEntries, 1)
	assert.Equal(t, domain.ShadowFailed, account.ShadowEntries[0].Status)

	balance, err := repo.SettleShadowEntry(ctx, "sh_1")
	require.NoError(t, err)
	assert.Equal(t, int64(55000), balance)

	_, err = repo.FindShadowEntryByRef(ctx, "WT_A")
	assert.ErrorIs(t, err, domain.ErrShadowEntryNotFound)
	_, err = repo.SettleShadowEntry(ctx, "sh_1")
	assert.ErrorIs(t, err, domain.ErrShadowEntryNotFound)
}

func TestMemoryRepositoryReturnsCopies(t *testing.T) {
	repo := seededRepo(t)
	ctx := context.Background()

	account, err := repo.FindAccountByNumber(ctx, "9876543210")
	require.NoError(t, err)
	account.Balance = 1

	again, err := repo.FindAccountByID(ctx, "acc_2")
	require.NoError(t, err)
	assert.Equal(t, int64(50000), again.Balance)
}

func TestMemoryRepositoryTransactionsNewestFirst(t *testing.T) {
	repo := seededRepo(t)
	ctx := context.Background()
	base := time.Now().UTC()

	require.NoError(t, repo.CreateTransaction(ctx, domain.Transaction{ID: "t1", TxnRef: "WT_A", UserID: "user1", CreatedAt: base}))
	require.NoError(t, repo.CreateTransaction(ctx, domain.Transaction{ID: "t2", TxnRef: "WT_B", UserID: "user1", CreatedAt: base.Add(time.Second)}))
	require.NoError(t, repo.CreateTransaction(ctx, domain.Transaction{ID: "t3", TxnRef: "WT_A", UserID: "user2", CreatedAt: base.Add(2 * time.Second)}))

	txs, err := repo.FindTransactionsByUserID(ctx, "user1")
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "t2", txs[0].ID)

	byRef, err := repo.FindTransactionsByRef(ctx, "WT_A")
	require.NoError(t, err)
	require.Len(t, byRef, 2)
	assert.Equal(t, "t1", byRef[0].ID)
	assert.Equal(t, "t3", byRef[1].ID)
}
