package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/pamilerinsimon03/WemaTrust/internal/domain"
	"github.com/pamilerinsimon03/WemaTrust/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type accountsStub struct {
	byID   map[string]domain.Account
	byUser map[string]string
}

func (s accountsStub) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	acc, ok := s.byID[accountID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return &acc, nil
}

func (s accountsStub) AccountForUser(ctx context.Context, userID string) (*domain.Account, error) {
	id, ok := s.byUser[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return s.GetAccount(ctx, id)
}

type failingSender struct{}

func (failingSender) Send(ctx context.Context, n Notification) error { return errors.New("gateway down") }

func testAccounts() accountsStub {
	return accountsStub{
		byID: map[string]domain.Account{
			"acc_1": {ID: "acc_1", Name: "Ada Obi", Balance: 9500000},
			"acc_2": {ID: "acc_2", Name: "Tunde Bello", Balance: 5500000},
		},
		byUser: map[string]string{"user1": "acc_1", "user2": "acc_2"},
	}
}

func newTestNotifier(sender Sender) *Notifier {
	return NewNotifier(testAccounts(), sender, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestFormatNaira(t *testing.T) {
	cases := map[int64]string{
		0:          "₦0.00",
		5:          "₦0.05",
		125050:     "₦1,250.50",
		10000000:   "₦100,000.00",
		123456789:  "₦1,234,567.89",
		-250000:    "-₦2,500.00",
		9999999999: "₦99,999,999.99",
	}
	for kobo, want := range cases {
		assert.Equal(t, want, FormatNaira(kobo), "kobo=%d", kobo)
	}
}

func TestHandleRendersTransferLifecycle(t *testing.T) {
	n := newTestNotifier(nil)
	ctx := context.Background()
	entry := domain.ShadowEntry{AccountID: "acc_2", TxnRef: "WT_REF1", Amount: 500000, Status: domain.ShadowPending}

	n.Handle(ctx, domain.NewTransaction{Transaction: domain.Transaction{TxnRef: "WT_REF1", Type: domain.TransactionDebit, Amount: 500000, ToAccount: "9876543210", UserID: "user1"}})
	n.Handle(ctx, domain.ShadowCreated{ShadowEntry: entry, UserID: "user2"})
	entry.Status = domain.ShadowCleared
	n.Handle(ctx, domain.ShadowUpdated{ShadowEntry: entry, UserID: "user2"})

	got := n.Recent()
	require.Len(t, got, 3)
	assert.Equal(t, "Dear Ada Obi, your transfer of ₦5,000.00 to 9876543210 is pending. Ref: WT_REF1. WemaTrust", got[0].Message)
	assert.Equal(t, "user1", got[0].UserID)
	assert.Equal(t, TemplateIncomingTransferPending, got[1].Template)
	assert.Equal(t, "Dear Tunde Bello, your account has been credited with ₦5,000.00 from WemaTrust. Ref: WT_REF1. New balance: ₦55,000.00. WemaTrust", got[2].Message)
}

func TestHandleIgnoresCreditRecords(t *testing.T) {
	n := newTestNotifier(nil)
	n.Handle(context.Background(), domain.NewTransaction{Transaction: domain.Transaction{Type: domain.TransactionCredit, UserID: "user2"}})
	n.Handle(context.Background(), domain.BalanceUpdated{AccountID: "acc_2"})
	assert.Empty(t, n.Recent())
}

func TestHandleReportsFailureOncePerReference(t *testing.T) {
	n := newTestNotifier(nil)
	ctx := context.Background()
	failed := domain.ShadowUpdated{ShadowEntry: domain.ShadowEntry{AccountID: "acc_2", TxnRef: "WT_REF2", Amount: 100, Status: domain.ShadowFailed}, UserID: "user2"}

	for i := 0; i < 4; i++ {
		n.Handle(ctx, failed)
	}
	got := n.Recent()
	require.Len(t, got, 1)
	assert.Equal(t, TemplateIncomingTransferFailed, got[0].Template)
}

func TestHandleBankStatusBroadcast(t *testing.T) {
	n := newTestNotifier(nil)
	n.Handle(context.Background(), domain.PartnerStatusChanged{PartnerBank: domain.PartnerBank{ID: "bank_d", Name: "UBA", Status: domain.BankDown}, Previous: domain.BankSlow})

	got := n.Recent()
	require.Len(t, got, 1)
	assert.Equal(t, ChannelPush, got[0].Channel)
	assert.Empty(t, got[0].UserID)
	assert.Equal(t, "UBA is now DOWN. Transfers to this bank may be affected.", got[0].Message)
}

func TestFailedDeliveryIsNotRecorded(t *testing.T) {
	n := newTestNotifier(failingSender{})
	n.Handle(context.Background(), domain.PartnerStatusChanged{PartnerBank: domain.PartnerBank{ID: "bank_a", Status: domain.BankUp}})
	assert.Empty(t, n.Recent())
}

func TestRunFollowsBus(t *testing.T) {
	bus := events.NewBus(16, slog.New(slog.NewTextHandler(io.Discard, nil)))
	n := newTestNotifier(nil)

	done := make(chan error, 1)
	go func() { done <- n.Run(context.Background(), bus) }()
	require.Eventually(t, func() bool { return bus.SubscriberCount() == 1 }, time.Second, time.Millisecond)

	bus.Emit(domain.PartnerStatusChanged{PartnerBank: domain.PartnerBank{ID: "bank_c", Name: "Access Bank", Status: domain.BankSlow}})
	require.Eventually(t, func() bool { return len(n.Recent()) == 1 }, time.Second, time.Millisecond)

	bus.Close()
	require.NoError(t, <-done)
}
