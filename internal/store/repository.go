/**
 * @description
 * This file defines the `Repository` interface, the contract for every persistence
 * operation the settlement service needs. The ledger, bank directory and coordinator
 * depend only on this interface, so the in-memory backend and the PostgreSQL backend
 * are interchangeable at the composition root.
 *
 * @dependencies
 * - context, errors: Standard Go libraries.
 * - internal/domain: For the service's domain models and sentinel errors.
 */

package store

import (
	"context"
	"errors"

	"github.com/pamilerinsimon03/WemaTrust/internal/domain"
)

var (
	ErrAccountNumberTaken = errors.New("account number already assigned")
)

// Repository defines the set of methods for interacting with the ledger store.
type Repository interface {
	// User methods
	FindUserByID(ctx context.Context, userID string) (*domain.User, error)
	SaveUser(ctx context.Context, user domain.User) error
	ListUsers(ctx context.Context) ([]domain.User, error)

	// Account methods. Returned accounts carry their shadow entries.
	CreateAccount(ctx context.Context, account domain.Account) error
	FindAccountByID(ctx context.Context, accountID string) (*domain.Account, error)
	FindAccountByNumber(ctx context.Context, accountNumber string) (*domain.Account, error)
	ListAccounts(ctx context.Context) ([]domain.Account, error)
	// DebitAccount fails with domain.ErrInsufficientFunds rather than going negative.
	DebitAccount(ctx context.Context, accountID string, amount int64) (int64, error)
	CreditAccount(ctx context.Context, accountID string, amount int64) (int64, error)

	// Shadow entry methods
	SaveShadowEntry(ctx context.Context, entry domain.ShadowEntry) error
	FindShadowEntryByRef(ctx context.Context, txnRef string) (*domain.ShadowEntry, error)
	DeleteShadowEntry(ctx context.Context, entryID string) error
	// SettleShadowEntry removes the entry and credits its amount in one step.
	SettleShadowEntry(ctx context.Context, entryID string) (int64, error)

	// Transaction methods
	CreateTransaction(ctx context.Context, tx domain.Transaction) error
	FindTransactionsByUserID(ctx context.Context, userID string) ([]domain.Transaction, error)
	FindTransactionsByRef(ctx context.Context, txnRef string) ([]domain.Transaction, error)

	// Partner bank methods
	FindPartnerBank(ctx context.Context, bankID string) (*domain.PartnerBank, error)
	ListPartnerBanks(ctx context.Context) ([]domain.PartnerBank, error)
	SavePartnerBank(ctx context.Context, bank domain.PartnerBank) error
}
