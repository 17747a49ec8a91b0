package domain

import (
	"encoding/json"
	"time"
)

// EventKind tags each member of the Event union.
type EventKind string

const (
	KindShadowCreated        EventKind = "shadow_created"
	KindShadowUpdated        EventKind = "shadow_updated"
	KindBalanceUpdated       EventKind = "balance_updated"
	KindNewTransaction       EventKind = "new_transaction"
	KindPartnerStatusChanged EventKind = "partner_status_changed"
)

// EventKinds lists every kind in declaration order.
var EventKinds = []EventKind{
	KindShadowCreated,
	KindShadowUpdated,
	KindBalanceUpdated,
	KindNewTransaction,
	KindPartnerStatusChanged,
}

// Event is the closed set of state-change notifications emitted by the core.
// Only the payload types in this file implement it.
type Event interface {
	Kind() EventKind
	isEvent()
}

// ShadowCreated is emitted when a pending provisional credit is opened.
type ShadowCreated struct {
	ShadowEntry
	UserID string `json:"user_id,omitempty"`
}

// ShadowUpdated is emitted on every later status change of a shadow entry.
type ShadowUpdated struct {
	ShadowEntry
	UserID string `json:"user_id,omitempty"`
}

// BalanceUpdated carries an account's available balance after a debit or credit.
type BalanceUpdated struct {
	AccountID string `json:"account_id"`
	UserID    string `json:"user_id,omitempty"`
	Balance   int64  `json:"balance"`
}

// NewTransaction is emitted once per appended ledger record.
type NewTransaction struct {
	Transaction
}

// PartnerStatusChanged is emitted when a partner bank's status changes.
type PartnerStatusChanged struct {
	PartnerBank
	Previous PartnerBankStatus `json:"previous_status,omitempty"`
}

func (ShadowCreated) Kind() EventKind        { return KindShadowCreated }
func (ShadowUpdated) Kind() EventKind        { return KindShadowUpdated }
func (BalanceUpdated) Kind() EventKind       { return KindBalanceUpdated }
func (NewTransaction) Kind() EventKind       { return KindNewTransaction }
func (PartnerStatusChanged) Kind() EventKind { return KindPartnerStatusChanged }

func (ShadowCreated) isEvent()        {}
func (ShadowUpdated) isEvent()        {}
func (BalanceUpdated) isEvent()       {}
func (NewTransaction) isEvent()       {}
func (PartnerStatusChanged) isEvent() {}

// Envelope is the wire form `{"type": ..., "data": ...}` sent to subscribers.
type Envelope struct {
	Seq        uint64    `json:"seq"`
	Type       EventKind `json:"type"`
	Data       Event     `json:"data"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventTxnRef returns the transaction reference an event belongs to, if it has one.
func EventTxnRef(e Event) string {
	switch ev := e.(type) {
	case ShadowCreated:
		return ev.TxnRef
	case ShadowUpdated:
		return ev.TxnRef
	case NewTransaction:
		return ev.TxnRef
	default:
		return ""
	}
}

// MarshalEnvelope encodes an envelope to JSON.
func MarshalEnvelope(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}
