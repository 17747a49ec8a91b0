package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEnvelopeWireShape(t *testing.T) {
	entry := ShadowEntry{ID: "sh_1", AccountID: "acc_2", TxnRef: "WT_1", Amount: 5000, Status: ShadowPending, CreatedAt: time.Unix(0, 0).UTC()}
	env := Envelope{Seq: 7, Type: KindShadowCreated, Data: ShadowCreated{ShadowEntry: entry, UserID: "user2"}}

	raw, err := MarshalEnvelope(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["type"] != "shadow_created" {
		t.Fatalf("expected type shadow_created, got %v", decoded["type"])
	}
	data, ok := decoded["data"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected object data, got %T", decoded["data"])
	}
	if data["txn_ref"] != "WT_1" || data["user_id"] != "user2" || data["status"] != "pending" {
		t.Fatalf("unexpected flattened payload: %v", data)
	}
}

func TestEventTxnRef(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		want  string
	}{
		{name: "shadow created", event: ShadowCreated{ShadowEntry: ShadowEntry{TxnRef: "A"}}, want: "A"},
		{name: "shadow updated", event: ShadowUpdated{ShadowEntry: ShadowEntry{TxnRef: "B"}}, want: "B"},
		{name: "transaction", event: NewTransaction{Transaction: Transaction{TxnRef: "C"}}, want: "C"},
		{name: "balance", event: BalanceUpdated{AccountID: "acc_1"}, want: ""},
		{name: "partner", event: PartnerStatusChanged{PartnerBank: PartnerBank{ID: "bank_a"}}, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EventTxnRef(tt.event); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestParseBankStatus(t *testing.T) {
	for _, raw := range []string{"up", " Slow ", "DOWN"} {
		if _, err := ParseBankStatus(raw); err != nil {
			t.Fatalf("expected %q to parse, got %v", raw, err)
		}
	}
	if _, err := ParseBankStatus("sideways"); err == nil {
		t.Fatal("expected invalid status to be rejected")
	}
}

func TestIsValidAccountNumber(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{input: "0123456789", want: true},
		{input: "012345678", want: false},
		{input: "01234567890", want: false},
		{input: "01234abc89", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := IsValidAccountNumber(tt.input); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestAccountCloneDoesNotShareShadowSlice(t *testing.T) {
	acc := &Account{ID: "acc_1", ShadowEntries: []ShadowEntry{{TxnRef: "A", Amount: 10, Status: ShadowPending}}}
	cp := acc.Clone()
	cp.ShadowEntries[0].Amount = 99
	if acc.ShadowEntries[0].Amount != 10 {
		t.Fatal("clone must not alias the shadow slice")
	}
	if acc.PendingTotal() != 10 {
		t.Fatalf("expected pending total 10, got %d", acc.PendingTotal())
	}
}
