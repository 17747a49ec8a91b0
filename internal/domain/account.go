/**
 * @description
 * Ledger-side domain models: customer accounts, the provisional (shadow) entries held
 * against them while a transfer settles, and the user to account mapping.
 */

package domain

import "time"

// AccountNumberLength is the fixed width of a NUBAN account number.
const AccountNumberLength = 10

// ShadowStatus is the lifecycle state of a provisional credit.
type ShadowStatus string

const (
	ShadowPending ShadowStatus = "pending"
	ShadowCleared ShadowStatus = "cleared"
	ShadowFailed  ShadowStatus = "failed"
)

// Account is a customer ledger account. Balance is held in kobo and is never negative.
// BankID names the partner bank whose rail carries inward transfers to this account.
type Account struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	AccountNumber string        `json:"account_number"`
	BankID        string        `json:"bank_id"`
	Balance       int64         `json:"balance"`
	ShadowEntries []ShadowEntry `json:"shadow_entries"`
}

// ShadowEntry earmarks incoming funds for an account until settlement confirms them.
// At most one entry exists per (AccountID, TxnRef).
type ShadowEntry struct {
	ID        string       `json:"id"`
	AccountID string       `json:"account_id"`
	TxnRef    string       `json:"txn_ref"`
	Amount    int64        `json:"amount"`
	Status    ShadowStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// User maps a login identity to the account it owns. Admin users may have no account.
type User struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Roles     []string `json:"roles"`
	AccountID string   `json:"account_id,omitempty"`
}

// Clone returns a deep copy so callers never share the shadow slice with the ledger.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	cp := *a
	cp.ShadowEntries = make([]ShadowEntry, len(a.ShadowEntries))
	copy(cp.ShadowEntries, a.ShadowEntries)
	return &cp
}

// PendingTotal sums the amounts of entries still awaiting settlement.
func (a *Account) PendingTotal() int64 {
	var total int64
	for _, e := range a.ShadowEntries {
		if e.Status == ShadowPending {
			total += e.Amount
		}
	}
	return total
}

// ShadowEntryByRef returns the entry for txnRef, if any.
func (a *Account) ShadowEntryByRef(txnRef string) (ShadowEntry, bool) {
	for _, e := range a.ShadowEntries {
		if e.TxnRef == txnRef {
			return e, true
		}
	}
	return ShadowEntry{}, false
}

// AccountSnapshot is the read model returned to presentation layers.
type AccountSnapshot struct {
	AccountID     string        `json:"account_id"`
	AccountNumber string        `json:"account_number"`
	Name          string        `json:"name"`
	BankID        string        `json:"bank_id"`
	Balance       int64         `json:"balance"`
	PendingTotal  int64         `json:"pending_total"`
	ShadowEntries []ShadowEntry `json:"shadow_entries"`
}

// IsValidAccountNumber reports whether number is a 10-digit numeric string.
func IsValidAccountNumber(number string) bool {
	if len(number) != AccountNumberLength {
		return false
	}
	for _, r := range number {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
