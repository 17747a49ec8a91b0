package store

import (
	"context"
	"sort"
	"sync"

	"github.com/pamilerinsimon03/WemaTrust/internal/domain"
)

// MemoryRepository is the default process-local backend. All reads return copies.
type MemoryRepository struct {
	mu           sync.RWMutex
	users        map[string]domain.User
	accounts     map[string]*domain.Account
	byNumber     map[string]string
	shadowByRef  map[string]string // txn_ref -> account id
	transactions map[string][]domain.Transaction
	banks        map[string]domain.PartnerBank
}

// NewMemoryRepository creates an empty in-memory store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:        make(map[string]domain.User),
		accounts:     make(map[string]*domain.Account),
		byNumber:     make(map[string]string),
		shadowByRef:  make(map[string]string),
		transactions: make(map[string][]domain.Transaction),
		banks:        make(map[string]domain.PartnerBank),
	}
}

func (r *MemoryRepository) FindUserByID(ctx context.Context, userID string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	u.Roles = append([]string(nil), u.Roles...)
	return &u, nil
}

func (r *MemoryRepository) SaveUser(ctx context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user.Roles = append([]string(nil), user.Roles...)
	r.users[user.ID] = user
	return nil
}

func (r *MemoryRepository) ListUsers(ctx context.Context) ([]domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepository) CreateAccount(ctx context.Context, account domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byNumber[account.AccountNumber]; ok && existing != account.ID {
		return ErrAccountNumberTaken
	}
	a := account.Clone()
	r.accounts[a.ID] = a
	r.byNumber[a.AccountNumber] = a.ID
	for _, e := range a.ShadowEntries {
		r.shadowByRef[e.TxnRef] = a.ID
	}
	return nil
}

func (r *MemoryRepository) FindAccountByID(ctx context.Context, accountID string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[accountID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return a.Clone(), nil
}

func (r *MemoryRepository) FindAccountByNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byNumber[accountNumber]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return r.accounts[id].Clone(), nil
}

func (r *MemoryRepository) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Account, 0, len(r.accounts))
	for _, a := range r.accounts {
		out = append(out, *a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepository) DebitAccount(ctx context.Context, accountID string, amount int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[accountID]
	if !ok {
		return 0, domain.ErrAccountNotFound
	}
	if a.Balance < amount {
		return a.Balance, domain.ErrInsufficientFunds
	}
	a.Balance -= amount
	return a.Balance, nil
}

func (r *MemoryRepository) CreditAccount(ctx context.Context, accountID string, amount int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[accountID]
	if !ok {
		return 0, domain.ErrAccountNotFound
	}
	a.Balance += amount
	return a.Balance, nil
}

func (r *MemoryRepository) SaveShadowEntry(ctx context.Context, entry domain.ShadowEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[entry.AccountID]
	if !ok {
		return domain.ErrAccountNotFound
	}
	for i := range a.ShadowEntries {
		if a.ShadowEntries[i].ID == entry.ID || a.ShadowEntries[i].TxnRef == entry.TxnRef {
			a.ShadowEntries[i] = entry
			r.shadowByRef[entry.TxnRef] = a.ID
			return nil
		}
	}
	a.ShadowEntries = append(a.ShadowEntries, entry)
	r.shadowByRef[entry.TxnRef] = a.ID
	return nil
}

func (r *MemoryRepository) FindShadowEntryByRef(ctx context.Context, txnRef string) (*domain.ShadowEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	accountID, ok := r.shadowByRef[txnRef]
	if !ok {
		return nil, domain.ErrShadowEntryNotFound
	}
	entry, ok := r.accounts[accountID].ShadowEntryByRef(txnRef)
	if !ok {
		return nil, domain.ErrShadowEntryNotFound
	}
	return &entry, nil
}

func (r *MemoryRepository) DeleteShadowEntry(ctx context.Context, entryID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _, err := r.removeShadowLocked(entryID)
	return err
}

func (r *MemoryRepository) SettleShadowEntry(ctx context.Context, entryID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, entry, err := r.removeShadowLocked(entryID)
	if err != nil {
		return 0, err
	}
	a.Balance += entry.Amount
	return a.Balance, nil
}

func (r *MemoryRepository) removeShadowLocked(entryID string) (*domain.Account, domain.ShadowEntry, error) {
	for _, a := range r.accounts {
		for i, e := range a.ShadowEntries {
			if e.ID != entryID {
				continue
			}
			a.ShadowEntries = append(a.ShadowEntries[:i], a.ShadowEntries[i+1:]...)
			delete(r.shadowByRef, e.TxnRef)
			return a, e, nil
		}
	}
	return nil, domain.ShadowEntry{}, domain.ErrShadowEntryNotFound
}

func (r *MemoryRepository) CreateTransaction(ctx context.Context, tx domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transactions[tx.UserID] = append(r.transactions[tx.UserID], tx)
	return nil
}

// FindTransactionsByUserID returns the user's records, newest first.
func (r *MemoryRepository) FindTransactionsByUserID(ctx context.Context, userID string) ([]domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src := r.transactions[userID]
	out := make([]domain.Transaction, len(src))
	copy(out, src)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) FindTransactionsByRef(ctx context.Context, txnRef string) ([]domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Transaction
	for _, txs := range r.transactions {
		for _, tx := range txs {
			if tx.TxnRef == txnRef {
				out = append(out, tx)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) FindPartnerBank(ctx context.Context, bankID string) (*domain.PartnerBank, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.banks[bankID]
	if !ok {
		return nil, domain.ErrBankNotFound
	}
	return &b, nil
}

func (r *MemoryRepository) ListPartnerBanks(ctx context.Context) ([]domain.PartnerBank, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.PartnerBank, 0, len(r.banks))
	for _, b := range r.banks {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepository) SavePartnerBank(ctx context.Context, bank domain.PartnerBank) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.banks[bank.ID] = bank
	return nil
}
