/**
 * @description
 * Transaction records and the transfer request/response models used by the
 * TransferCoordinator. Transactions are append-only: a settlement attempt that clears
 * produces a new credit record rather than mutating the sender's debit.
 */

package domain

import "time"

type TransactionType string

const (
	TransactionDebit  TransactionType = "debit"
	TransactionCredit TransactionType = "credit"
)

type TransactionStatus string

const (
	TransactionPending TransactionStatus = "pending"
	TransactionSuccess TransactionStatus = "success"
	TransactionFailed  TransactionStatus = "failed"
)

// HomeBankName is the originating institution stamped on outward debits.
const HomeBankName = "WemaTrust"

// Transaction is a single ledger record owned by a user.
type Transaction struct {
	ID        string            `json:"id"`
	TxnRef    string            `json:"txn_ref"`
	Type      TransactionType   `json:"type"`
	Amount    int64             `json:"amount"`
	ToAccount string            `json:"to_account,omitempty"`
	FromBank  string            `json:"from_bank,omitempty"`
	Status    TransactionStatus `json:"status"`
	Note      string            `json:"note,omitempty"`
	UserID    string            `json:"user_id"`
	CreatedAt time.Time         `json:"created_at"`
}

// TransferRequest is the payload accepted by the coordinator.
// BankID optionally names the destination rail; when empty the recipient account's bank is used.
type TransferRequest struct {
	SenderUserID string `json:"sender_id"`
	ToAccount    string `json:"to_account"`
	Amount       int64  `json:"amount"`
	Note         string `json:"note"`
	BankID       string `json:"bank_id,omitempty"`
}

// TransferResult is returned as soon as the sender has been debited.
type TransferResult struct {
	TxnRef        string `json:"txn_ref"`
	Status        string `json:"status"`
	SenderBalance int64  `json:"sender_balance"`
}
