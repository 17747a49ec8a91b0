package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/pamilerinsimon03/WemaTrust/internal/domain"
	"github.com/pamilerinsimon03/WemaTrust/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	repo := store.NewMemoryRepository()
	ctx := context.Background()
	require.NoError(t, repo.CreateAccount(ctx, domain.Account{ID: "acc_1", Name: "User One", AccountNumber: "0123456789", Balance: 100000}))
	require.NoError(t, repo.CreateAccount(ctx, domain.Account{ID: "acc_2", Name: "User Two", AccountNumber: "9876543210", Balance: 50000}))
	require.NoError(t, repo.SaveUser(ctx, domain.User{ID: "user1", AccountID: "acc_1"}))
	require.NoError(t, repo.SaveUser(ctx, domain.User{ID: "user2", AccountID: "acc_2"}))
	require.NoError(t, repo.SaveUser(ctx, domain.User{ID: "admin", Roles: []string{"admin"}}))
	return New(repo)
}

func TestDebitInsufficientFundsLeavesBalance(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Debit(ctx, "acc_1", 100001)
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	acc, err := l.GetAccount(ctx, "acc_1")
	require.NoError(t, err)
	assert.Equal(t, int64(100000), acc.Balance)

	_, err = l.Debit(ctx, "acc_1", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidTransferAmount)
}

func TestConcurrentDebitsNeverGoNegative(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Debit(ctx, "acc_2", 3000); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
			}
		}()
	}
	wg.Wait()

	acc, err := l.GetAccount(ctx, "acc_2")
	require.NoError(t, err)
	assert.Equal(t, 16, succeeded)
	assert.Equal(t, int64(50000-16*3000), acc.Balance)
	assert.GreaterOrEqual(t, acc.Balance, int64(0))
}

func TestOpenShadowEntryRejectsDuplicatePending(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	entry, err := l.OpenShadowEntry(ctx, "acc_2", "WT_A", 5000)
	require.NoError(t, err)
	assert.Equal(t, domain.ShadowPending, entry.Status)

	_, err = l.OpenShadowEntry(ctx, "acc_2", "WT_A", 5000)
	require.ErrorIs(t, err, domain.ErrDuplicateReference)

	acc, err := l.GetAccount(ctx, "acc_2")
	require.NoError(t, err)
	assert.Len(t, acc.ShadowEntries, 1)
	assert.Equal(t, int64(50000), acc.Balance)
}

func TestFailedEntryReopensInPlace(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	opened, err := l.OpenShadowEntry(ctx, "acc_2", "WT_A", 5000)
	require.NoError(t, err)
	res, err := l.ResolveShadowEntry(ctx, "WT_A", domain.ShadowFailed)
	require.NoError(t, err)
	assert.Equal(t, domain.ShadowFailed, res.Entry.Status)
	assert.Equal(t, int64(50000), res.Balance)

	reopened, err := l.OpenShadowEntry(ctx, "acc_2", "WT_A", 5000)
	require.NoError(t, err)
	assert.Equal(t, opened.ID, reopened.ID)
	assert.Equal(t, domain.ShadowPending, reopened.Status)

	acc, err := l.GetAccount(ctx, "acc_2")
	require.NoError(t, err)
	assert.Len(t, acc.ShadowEntries, 1)
}

func TestResolveClearedCreditsAndRemoves(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.OpenShadowEntry(ctx, "acc_2", "WT_A", 5000)
	require.NoError(t, err)

	res, err := l.ResolveShadowEntry(ctx, "WT_A", domain.ShadowCleared)
	require.NoError(t, err)
	assert.Equal(t, domain.ShadowCleared, res.Entry.Status)
	assert.Equal(t, int64(55000), res.Balance)

	snap, err := l.Snapshot(ctx, "acc_2")
	require.NoError(t, err)
	assert.Empty(t, snap.ShadowEntries)
	assert.Equal(t, int64(0), snap.PendingTotal)

	_, err = l.ResolveShadowEntry(ctx, "WT_A", domain.ShadowCleared)
	assert.ErrorIs(t, err, domain.ErrShadowEntryNotFound)
}

func TestResolveRequiresPendingEntry(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.ResolveShadowEntry(ctx, "WT_MISSING", domain.ShadowFailed)
	assert.ErrorIs(t, err, domain.ErrShadowEntryNotFound)

	_, err = l.OpenShadowEntry(ctx, "acc_2", "WT_A", 5000)
	require.NoError(t, err)
	_, err = l.ResolveShadowEntry(ctx, "WT_A", domain.ShadowFailed)
	require.NoError(t, err)
	_, err = l.ResolveShadowEntry(ctx, "WT_A", domain.ShadowCleared)
	assert.ErrorIs(t, err, domain.ErrShadowEntryNotFound)

	_, err = l.ResolveShadowEntry(ctx, "WT_A", domain.ShadowPending)
	assert.ErrorIs(t, err, ErrInvalidOutcome)
}

func TestDiscardOnlyRemovesFailedEntries(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.OpenShadowEntry(ctx, "acc_2", "WT_A", 5000)
	require.NoError(t, err)
	assert.ErrorIs(t, l.DiscardShadowEntry(ctx, "WT_A"), domain.ErrShadowEntryNotFound)

	_, err = l.ResolveShadowEntry(ctx, "WT_A", domain.ShadowFailed)
	require.NoError(t, err)
	require.NoError(t, l.DiscardShadowEntry(ctx, "WT_A"))

	acc, err := l.GetAccount(ctx, "acc_2")
	require.NoError(t, err)
	assert.Empty(t, acc.ShadowEntries)
}

func TestAccountForUserAndOwner(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	acc, err := l.AccountForUser(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, "acc_1", acc.ID)

	_, err = l.AccountForUser(ctx, "admin")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	_, err = l.AccountForUser(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	owner, err := l.OwnerOf(ctx, "acc_2")
	require.NoError(t, err)
	assert.Equal(t, "user2", owner)
}

func TestAppendTransactionStampsRecord(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	tx, err := l.AppendTransaction(ctx, domain.Transaction{TxnRef: "WT_A", Type: domain.TransactionDebit, Amount: 5000, UserID: "user1", Status: domain.TransactionSuccess})
	require.NoError(t, err)
	assert.NotEmpty(t, tx.ID)
	assert.False(t, tx.CreatedAt.IsZero())

	txs, err := l.TransactionsForUser(ctx, "user1")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, tx.ID, txs[0].ID)

	_, err = l.TransactionsForUser(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}
