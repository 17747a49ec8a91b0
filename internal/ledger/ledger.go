/**
 * @description
 * ShadowLedger owns account balances and the provisional shadow entries held against
 * them while a transfer settles. Every mutation of an account runs under that account's
 * lock, so operations on one account are linearizable while different accounts proceed
 * in parallel. Values handed out are always copies.
 *
 * @dependencies
 * - internal/store: persistence backend (memory or PostgreSQL).
 * - github.com/google/uuid: entry and transaction ids.
 */

package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pamilerinsimon03/WemaTrust/internal/domain"
	"github.com/pamilerinsimon03/WemaTrust/internal/store"
)

var ErrInvalidOutcome = errors.New("shadow entry outcome must be cleared or failed")

// Resolution is the result of settling a pending shadow entry.
type Resolution struct {
	Entry   domain.ShadowEntry
	Balance int64
}

// Ledger is the ShadowLedger.
type Ledger struct {
	repo  store.Repository
	locks *keyedMutex
	now   func() time.Time
}

// New creates a ledger on top of the given repository.
func New(repo store.Repository) *Ledger {
	return &Ledger{
		repo:  repo,
		locks: newKeyedMutex(),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// GetAccount returns a copy of the account with its shadow entries.
func (l *Ledger) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	return l.repo.FindAccountByID(ctx, accountID)
}

func (l *Ledger) FindAccountByNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	if !domain.IsValidAccountNumber(accountNumber) {
		return nil, domain.ErrInvalidAccountNumber
	}
	return l.repo.FindAccountByNumber(ctx, accountNumber)
}

// AccountForUser resolves the user to account mapping.
func (l *Ledger) AccountForUser(ctx context.Context, userID string) (*domain.Account, error) {
	user, err := l.repo.FindUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.AccountID == "" {
		return nil, domain.ErrAccountNotFound
	}
	return l.repo.FindAccountByID(ctx, user.AccountID)
}

// OwnerOf returns the id of the user mapped to accountID, or "" when no user owns it.
func (l *Ledger) OwnerOf(ctx context.Context, accountID string) (string, error) {
	users, err := l.repo.ListUsers(ctx)
	if err != nil {
		return "", err
	}
	for _, u := range users {
		if u.AccountID == accountID {
			return u.ID, nil
		}
	}
	return "", nil
}

// Debit removes amount from the account's available balance.
func (l *Ledger) Debit(ctx context.Context, accountID string, amount int64) (*domain.Account, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidTransferAmount
	}
	unlock := l.locks.Lock(accountID)
	defer unlock()

	if _, err := l.repo.DebitAccount(ctx, accountID, amount); err != nil {
		return nil, err
	}
	return l.repo.FindAccountByID(ctx, accountID)
}

// Credit adds amount to the account's available balance.
func (l *Ledger) Credit(ctx context.Context, accountID string, amount int64) (*domain.Account, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidTransferAmount
	}
	unlock := l.locks.Lock(accountID)
	defer unlock()

	if _, err := l.repo.CreditAccount(ctx, accountID, amount); err != nil {
		return nil, err
	}
	return l.repo.FindAccountByID(ctx, accountID)
}

// OpenShadowEntry records a pending provisional credit for (accountID, txnRef).
// A failed entry for the same pair is moved back to pending in place.
func (l *Ledger) OpenShadowEntry(ctx context.Context, accountID, txnRef string, amount int64) (*domain.ShadowEntry, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidTransferAmount
	}
	unlock := l.locks.Lock(accountID)
	defer unlock()

	account, err := l.repo.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	now := l.now()
	entry, exists := account.ShadowEntryByRef(txnRef)
	switch {
	case exists && entry.Status == domain.ShadowPending:
		return nil, domain.ErrDuplicateReference
	case exists:
		entry.Status = domain.ShadowPending
		entry.Amount = amount
		entry.UpdatedAt = now
	default:
		entry = domain.ShadowEntry{
			ID:        uuid.NewString(),
			AccountID: accountID,
			TxnRef:    txnRef,
			Amount:    amount,
			Status:    domain.ShadowPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}

	if err := l.repo.SaveShadowEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("save shadow entry %s: %w", txnRef, err)
	}
	return &entry, nil
}

// ResolveShadowEntry settles the pending entry for txnRef.
// Cleared folds the amount into the balance and removes the entry; failed keeps it marked failed.
func (l *Ledger) ResolveShadowEntry(ctx context.Context, txnRef string, outcome domain.ShadowStatus) (*Resolution, error) {
	if outcome != domain.ShadowCleared && outcome != domain.ShadowFailed {
		return nil, ErrInvalidOutcome
	}

	found, err := l.repo.FindShadowEntryByRef(ctx, txnRef)
	if err != nil {
		return nil, err
	}
	unlock := l.locks.Lock(found.AccountID)
	defer unlock()

	account, err := l.repo.FindAccountByID(ctx, found.AccountID)
	if err != nil {
		return nil, err
	}
	entry, ok := account.ShadowEntryByRef(txnRef)
	if !ok || entry.Status != domain.ShadowPending {
		return nil, domain.ErrShadowEntryNotFound
	}

	entry.Status = outcome
	entry.UpdatedAt = l.now()

	if outcome == domain.ShadowCleared {
		balance, err := l.repo.SettleShadowEntry(ctx, entry.ID)
		if err != nil {
			return nil, fmt.Errorf("settle shadow entry %s: %w", txnRef, err)
		}
		return &Resolution{Entry: entry, Balance: balance}, nil
	}

	if err := l.repo.SaveShadowEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("fail shadow entry %s: %w", txnRef, err)
	}
	return &Resolution{Entry: entry, Balance: account.Balance}, nil
}

// DiscardShadowEntry removes a failed entry once nothing will retry it.
func (l *Ledger) DiscardShadowEntry(ctx context.Context, txnRef string) error {
	found, err := l.repo.FindShadowEntryByRef(ctx, txnRef)
	if err != nil {
		return err
	}
	unlock := l.locks.Lock(found.AccountID)
	defer unlock()

	account, err := l.repo.FindAccountByID(ctx, found.AccountID)
	if err != nil {
		return err
	}
	entry, ok := account.ShadowEntryByRef(txnRef)
	if !ok || entry.Status != domain.ShadowFailed {
		return domain.ErrShadowEntryNotFound
	}
	return l.repo.DeleteShadowEntry(ctx, entry.ID)
}

// AppendTransaction stamps and stores a ledger record. Records are never updated.
func (l *Ledger) AppendTransaction(ctx context.Context, tx domain.Transaction) (domain.Transaction, error) {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = l.now()
	}
	if err := l.repo.CreateTransaction(ctx, tx); err != nil {
		return domain.Transaction{}, fmt.Errorf("append %s transaction %s: %w", tx.Type, tx.TxnRef, err)
	}
	return tx, nil
}

func (l *Ledger) TransactionsForUser(ctx context.Context, userID string) ([]domain.Transaction, error) {
	if _, err := l.repo.FindUserByID(ctx, userID); err != nil {
		return nil, err
	}
	return l.repo.FindTransactionsByUserID(ctx, userID)
}

func (l *Ledger) TransactionsByRef(ctx context.Context, txnRef string) ([]domain.Transaction, error) {
	return l.repo.FindTransactionsByRef(ctx, txnRef)
}

// Snapshot returns the read model for an account.
func (l *Ledger) Snapshot(ctx context.Context, accountID string) (*domain.AccountSnapshot, error) {
	account, err := l.repo.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	entries := account.ShadowEntries
	if entries == nil {
		entries = []domain.ShadowEntry{}
	}
	return &domain.AccountSnapshot{
		AccountID:     account.ID,
		AccountNumber: account.AccountNumber,
		Name:          account.Name,
		BankID:        account.BankID,
		Balance:       account.Balance,
		PendingTotal:  account.PendingTotal(),
		ShadowEntries: entries,
	}, nil
}
