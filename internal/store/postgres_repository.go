/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains the schema bootstrap and all SQL queries for users, accounts, shadow
 * entries, ledger transactions and partner banks.
 *
 * @dependencies
 * - context, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pamilerinsimon03/WemaTrust/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	account_number CHAR(10) NOT NULL UNIQUE,
	bank_id TEXT NOT NULL DEFAULT '',
	balance BIGINT NOT NULL CHECK (balance >= 0)
);

CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	roles TEXT[] NOT NULL DEFAULT '{}',
	account_id TEXT REFERENCES accounts(id)
);

CREATE TABLE IF NOT EXISTS shadow_entries (
	id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL REFERENCES accounts(id),
	txn_ref TEXT NOT NULL,
	amount BIGINT NOT NULL CHECK (amount > 0),
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE (account_id, txn_ref)
);

CREATE TABLE IF NOT EXISTS ledger_transactions (
	id TEXT PRIMARY KEY,
	txn_ref TEXT NOT NULL,
	type TEXT NOT NULL,
	amount BIGINT NOT NULL,
	to_account TEXT NOT NULL,
	from_bank TEXT NOT NULL,
	status TEXT NOT NULL,
	note TEXT NOT NULL DEFAULT '',
	user_id TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS ledger_transactions_user_idx ON ledger_transactions (user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS ledger_transactions_ref_idx ON ledger_transactions (txn_ref);

CREATE TABLE IF NOT EXISTS partner_banks (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	status TEXT NOT NULL,
	historical_success_rate DOUBLE PRECISION NOT NULL
);
`

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// EnsureSchema creates the tables the repository needs when they do not exist yet.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, schema)
	return err
}

func (r *PostgresRepository) FindUserByID(ctx context.Context, userID string) (*domain.User, error) {
	var user domain.User
	var accountID *string
	query := `SELECT id, name, roles, account_id FROM users WHERE id = $1`
	err := r.db.QueryRow(ctx, query, userID).Scan(&user.ID, &user.Name, &user.Roles, &accountID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	if accountID != nil {
		user.AccountID = *accountID
	}
	return &user, nil
}

func (r *PostgresRepository) SaveUser(ctx context.Context, user domain.User) error {
	var accountID *string
	if user.AccountID != "" {
		accountID = &user.AccountID
	}
	roles := user.Roles
	if roles == nil {
		roles = []string{}
	}
	query := `
		INSERT INTO users (id, name, roles, account_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, roles = EXCLUDED.roles, account_id = EXCLUDED.account_id
	`
	_, err := r.db.Exec(ctx, query, user.ID, user.Name, roles, accountID)
	return err
}

func (r *PostgresRepository) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, roles, account_id FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var user domain.User
		var accountID *string
		if err := rows.Scan(&user.ID, &user.Name, &user.Roles, &accountID); err != nil {
			return nil, err
		}
		if accountID != nil {
			user.AccountID = *accountID
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// CreateAccount upserts the account row. Shadow entries are written separately.
func (r *PostgresRepository) CreateAccount(ctx context.Context, account domain.Account) error {
	query := `
		INSERT INTO accounts (id, name, account_number, bank_id, balance)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, bank_id = EXCLUDED.bank_id, balance = EXCLUDED.balance
	`
	_, err := r.db.Exec(ctx, query, account.ID, account.Name, account.AccountNumber, account.BankID, account.Balance)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAccountNumberTaken
		}
		return err
	}
	for _, entry := range account.ShadowEntries {
		if err := r.SaveShadowEntry(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

func (r *PostgresRepository) FindAccountByID(ctx context.Context, accountID string) (*domain.Account, error) {
	return r.findAccount(ctx, `SELECT id, name, account_number, bank_id, balance FROM accounts WHERE id = $1`, accountID)
}

func (r *PostgresRepository) FindAccountByNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	return r.findAccount(ctx, `SELECT id, name, account_number, bank_id, balance FROM accounts WHERE account_number = $1`, accountNumber)
}

func (r *PostgresRepository) findAccount(ctx context.Context, query string, arg string) (*domain.Account, error) {
	var account domain.Account
	err := r.db.QueryRow(ctx, query, arg).Scan(&account.ID, &account.Name, &account.AccountNumber, &account.BankID, &account.Balance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrAccountNotFound
		}
		return nil, err
	}
	entries, err := r.shadowEntriesForAccount(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	account.ShadowEntries = entries
	return &account, nil
}

func (r *PostgresRepository) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, account_number, bank_id, balance FROM accounts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	var accounts []domain.Account
	for rows.Next() {
		var account domain.Account
		if err := rows.Scan(&account.ID, &account.Name, &account.AccountNumber, &account.BankID, &account.Balance); err != nil {
			rows.Close()
			return nil, err
		}
		accounts = append(accounts, account)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range accounts {
		entries, err := r.shadowEntriesForAccount(ctx, accounts[i].ID)
		if err != nil {
			return nil, err
		}
		accounts[i].ShadowEntries = entries
	}
	return accounts, nil
}

// DebitAccount performs an atomic debit operation on an account.
func (r *PostgresRepository) DebitAccount(ctx context.Context, accountID string, amount int64) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var balance int64
	// Use FOR UPDATE to lock the row, preventing race conditions.
	err = tx.QueryRow(ctx, "SELECT balance FROM accounts WHERE id = $1 FOR UPDATE", accountID).Scan(&balance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, domain.ErrAccountNotFound
		}
		return 0, err
	}

	if balance < amount {
		return balance, domain.ErrInsufficientFunds
	}

	err = tx.QueryRow(ctx, "UPDATE accounts SET balance = balance - $1 WHERE id = $2 RETURNING balance", amount, accountID).Scan(&balance)
	if err != nil {
		return 0, err
	}

	return balance, tx.Commit(ctx)
}

// CreditAccount performs an atomic credit operation on an account.
func (r *PostgresRepository) CreditAccount(ctx context.Context, accountID string, amount int64) (int64, error) {
	var balance int64
	err := r.db.QueryRow(ctx, "UPDATE accounts SET balance = balance + $1 WHERE id = $2 RETURNING balance", amount, accountID).Scan(&balance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, domain.ErrAccountNotFound
		}
		return 0, err
	}
	return balance, nil
}

func (r *PostgresRepository) SaveShadowEntry(ctx context.Context, entry domain.ShadowEntry) error {
	query := `
		INSERT INTO shadow_entries (id, account_id, txn_ref, amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (account_id, txn_ref) DO UPDATE SET
			amount = EXCLUDED.amount,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.Exec(ctx, query, entry.ID, entry.AccountID, entry.TxnRef, entry.Amount, string(entry.Status), entry.CreatedAt, entry.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return domain.ErrAccountNotFound
		}
	}
	return err
}

func (r *PostgresRepository) FindShadowEntryByRef(ctx context.Context, txnRef string) (*domain.ShadowEntry, error) {
	var entry domain.ShadowEntry
	var status string
	query := `
		SELECT id, account_id, txn_ref, amount, status, created_at, updated_at
		FROM shadow_entries
		WHERE txn_ref = $1
		ORDER BY created_at
		LIMIT 1
	`
	err := r.db.QueryRow(ctx, query, txnRef).Scan(&entry.ID, &entry.AccountID, &entry.TxnRef, &entry.Amount, &status, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrShadowEntryNotFound
		}
		return nil, err
	}
	entry.Status = domain.ShadowStatus(status)
	return &entry, nil
}

func (r *PostgresRepository) DeleteShadowEntry(ctx context.Context, entryID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM shadow_entries WHERE id = $1`, entryID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrShadowEntryNotFound
	}
	return nil
}

// SettleShadowEntry deletes the entry and folds its amount into the account balance in one transaction.
func (r *PostgresRepository) SettleShadowEntry(ctx context.Context, entryID string) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var accountID string
	var amount int64
	err = tx.QueryRow(ctx, `DELETE FROM shadow_entries WHERE id = $1 RETURNING account_id, amount`, entryID).Scan(&accountID, &amount)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, domain.ErrShadowEntryNotFound
		}
		return 0, err
	}

	var balance int64
	err = tx.QueryRow(ctx, `UPDATE accounts SET balance = balance + $1 WHERE id = $2 RETURNING balance`, amount, accountID).Scan(&balance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, domain.ErrAccountNotFound
		}
		return 0, err
	}

	return balance, tx.Commit(ctx)
}

func (r *PostgresRepository) shadowEntriesForAccount(ctx context.Context, accountID string) ([]domain.ShadowEntry, error) {
	query := `
		SELECT id, account_id, txn_ref, amount, status, created_at, updated_at
		FROM shadow_entries
		WHERE account_id = $1
		ORDER BY created_at
	`
	rows, err := r.db.Query(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.ShadowEntry
	for rows.Next() {
		var entry domain.ShadowEntry
		var status string
		if err := rows.Scan(&entry.ID, &entry.AccountID, &entry.TxnRef, &entry.Amount, &status, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
			return nil, err
		}
		entry.Status = domain.ShadowStatus(status)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// CreateTransaction inserts a new ledger record.
func (r *PostgresRepository) CreateTransaction(ctx context.Context, tx domain.Transaction) error {
	query := `
		INSERT INTO ledger_transactions (id, txn_ref, type, amount, to_account, from_bank, status, note, user_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.Exec(ctx, query,
		tx.ID, tx.TxnRef, string(tx.Type), tx.Amount, tx.ToAccount, tx.FromBank,
		string(tx.Status), tx.Note, tx.UserID, tx.CreatedAt,
	)
	return err
}

func (r *PostgresRepository) FindTransactionsByUserID(ctx context.Context, userID string) ([]domain.Transaction, error) {
	return r.queryTransactions(ctx, `
		SELECT id, txn_ref, type, amount, to_account, from_bank, status, note, user_id, created_at
		FROM ledger_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
}

func (r *PostgresRepository) FindTransactionsByRef(ctx context.Context, txnRef string) ([]domain.Transaction, error) {
	return r.queryTransactions(ctx, `
		SELECT id, txn_ref, type, amount, to_account, from_bank, status, note, user_id, created_at
		FROM ledger_transactions
		WHERE txn_ref = $1
		ORDER BY created_at
	`, txnRef)
}

func (r *PostgresRepository) queryTransactions(ctx context.Context, query string, arg string) ([]domain.Transaction, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		var txType, status string
		if err := rows.Scan(&tx.ID, &tx.TxnRef, &txType, &tx.Amount, &tx.ToAccount, &tx.FromBank, &status, &tx.Note, &tx.UserID, &tx.CreatedAt); err != nil {
			return nil, err
		}
		tx.Type = domain.TransactionType(txType)
		tx.Status = domain.TransactionStatus(status)
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func (r *PostgresRepository) FindPartnerBank(ctx context.Context, bankID string) (*domain.PartnerBank, error) {
	var bank domain.PartnerBank
	var status string
	query := `SELECT id, name, status, historical_success_rate FROM partner_banks WHERE id = $1`
	err := r.db.QueryRow(ctx, query, bankID).Scan(&bank.ID, &bank.Name, &status, &bank.HistoricalSuccessRate)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrBankNotFound
		}
		return nil, err
	}
	bank.Status = domain.PartnerBankStatus(status)
	return &bank, nil
}

func (r *PostgresRepository) ListPartnerBanks(ctx context.Context) ([]domain.PartnerBank, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, status, historical_success_rate FROM partner_banks ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var banks []domain.PartnerBank
	for rows.Next() {
		var bank domain.PartnerBank
		var status string
		if err := rows.Scan(&bank.ID, &bank.Name, &status, &bank.HistoricalSuccessRate); err != nil {
			return nil, err
		}
		bank.Status = domain.PartnerBankStatus(status)
		banks = append(banks, bank)
	}
	return banks, rows.Err()
}

func (r *PostgresRepository) SavePartnerBank(ctx context.Context, bank domain.PartnerBank) error {
	query := `
		INSERT INTO partner_banks (id, name, status, historical_success_rate)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			historical_success_rate = EXCLUDED.historical_success_rate
	`
	_, err := r.db.Exec(ctx, query, bank.ID, bank.Name, string(bank.Status), bank.HistoricalSuccessRate)
	return err
}
