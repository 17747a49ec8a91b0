/**
 * @description
 * SMS and push notification stub. The notifier follows the event bus, renders the
 * customer-facing message for transfer and bank status events and hands it to a Sender.
 * The default Sender only logs; no message leaves the process.
 *
 * @dependencies
 * - github.com/shopspring/decimal: kobo to naira formatting.
 * - internal/events: bus subscription.
 */
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pamilerinsimon03/WemaTrust/internal/domain"
	"github.com/pamilerinsimon03/WemaTrust/internal/events"
	"github.com/shopspring/decimal"
)

type Channel string

const (
	ChannelSMS  Channel = "sms"
	ChannelPush Channel = "push"
)

const (
	TemplateTransferPending         = "transfer_pending"
	TemplateIncomingTransferPending = "incoming_transfer_pending"
	TemplateIncomingTransferCleared = "incoming_transfer_cleared"
	TemplateIncomingTransferFailed  = "incoming_transfer_failed"
	TemplateBankStatusChange        = "bank_status_change"

	defaultHistorySize = 200
)

var templates = map[string]string{
	TemplateTransferPending:         "Dear %s, your transfer of %s to %s is pending. Ref: %s. WemaTrust",
	TemplateIncomingTransferPending: "Dear %s, you have an incoming transfer of %s from %s. Ref: %s. WemaTrust",
	TemplateIncomingTransferCleared: "Dear %s, your account has been credited with %s from %s. Ref: %s. New balance: %s. WemaTrust",
	TemplateIncomingTransferFailed:  "Dear %s, incoming transfer of %s from %s failed. Ref: %s. WemaTrust",
	TemplateBankStatusChange:        "%s is now %s. Transfers to this bank may be affected.",
}

// Notification is a rendered message addressed to a user, or broadcast when UserID is empty.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	Channel   Channel   `json:"channel"`
	Template  string    `json:"template"`
	Message   string    `json:"message"`
	TxnRef    string    `json:"txn_ref,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Sender delivers a rendered notification.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// LogSender writes notifications to the log instead of a gateway.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Send(ctx context.Context, n Notification) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("notification sent", "channel", n.Channel, "template", n.Template, "user_id", n.UserID, "txn_ref", n.TxnRef, "message", n.Message)
	return nil
}

// Accounts resolves the account details a message needs.
type Accounts interface {
	GetAccount(ctx context.Context, accountID string) (*domain.Account, error)
	AccountForUser(ctx context.Context, userID string) (*domain.Account, error)
}

type Notifier struct {
	accounts Accounts
	sender   Sender
	logger   *slog.Logger

	mu         sync.Mutex
	history    []Notification
	maxHistory int
	failedRefs map[string]struct{}
}

func NewNotifier(accounts Accounts, sender Sender, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	if sender == nil {
		sender = LogSender{Logger: logger}
	}
	return &Notifier{
		accounts:   accounts,
		sender:     sender,
		logger:     logger,
		maxHistory: defaultHistorySize,
		failedRefs: make(map[string]struct{}),
	}
}

// Run handles events from bus until ctx is cancelled or the bus is closed.
func (n *Notifier) Run(ctx context.Context, bus *events.Bus) error {
	sub := bus.Subscribe(
		domain.KindNewTransaction,
		domain.KindShadowCreated,
		domain.KindShadowUpdated,
		domain.KindPartnerStatusChanged,
	)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case env, ok := <-sub.C():
			if !ok {
				return nil
			}
			n.Handle(ctx, env.Data)
		}
	}
}

// Handle renders and sends the notification for one event, if it warrants one.
func (n *Notifier) Handle(ctx context.Context, event domain.Event) {
	switch ev := event.(type) {
	case domain.NewTransaction:
		if ev.Type != domain.TransactionDebit {
			return
		}
		n.send(ctx, ev.UserID, ChannelSMS, TemplateTransferPending, ev.TxnRef,
			accountHolder(n.userAccount(ctx, ev.UserID)), FormatNaira(ev.Amount), ev.ToAccount, ev.TxnRef)

	case domain.ShadowCreated:
		acc := n.account(ctx, ev.AccountID)
		n.send(ctx, ev.UserID, ChannelSMS, TemplateIncomingTransferPending, ev.TxnRef,
			accountHolder(acc), FormatNaira(ev.Amount), domain.HomeBankName, ev.TxnRef)

	case domain.ShadowUpdated:
		acc := n.account(ctx, ev.AccountID)
		switch ev.Status {
		case domain.ShadowCleared:
			n.mu.Lock()
			delete(n.failedRefs, ev.TxnRef)
			n.mu.Unlock()
			balance := "unavailable"
			if acc != nil {
				balance = FormatNaira(acc.Balance)
			}
			n.send(ctx, ev.UserID, ChannelSMS, TemplateIncomingTransferCleared, ev.TxnRef,
				accountHolder(acc), FormatNaira(ev.Amount), domain.HomeBankName, ev.TxnRef, balance)
		case domain.ShadowFailed:
			// A retried transfer fails more than once; customers hear about it once.
			n.mu.Lock()
			_, seen := n.failedRefs[ev.TxnRef]
			n.failedRefs[ev.TxnRef] = struct{}{}
			n.mu.Unlock()
			if seen {
				return
			}
			n.send(ctx, ev.UserID, ChannelSMS, TemplateIncomingTransferFailed, ev.TxnRef,
				accountHolder(acc), FormatNaira(ev.Amount), domain.HomeBankName, ev.TxnRef)
		}

	case domain.PartnerStatusChanged:
		name := ev.Name
		if name == "" {
			name = ev.ID
		}
		n.send(ctx, "", ChannelPush, TemplateBankStatusChange, "", name, string(ev.Status))
	}
}

// Recent returns the most recent notifications, oldest first.
func (n *Notifier) Recent() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.history...)
}

func (n *Notifier) send(ctx context.Context, userID string, ch Channel, template, txnRef string, args ...interface{}) {
	note := Notification{
		ID:        "notif_" + uuid.NewString(),
		UserID:    userID,
		Channel:   ch,
		Template:  template,
		Message:   fmt.Sprintf(templates[template], args...),
		TxnRef:    txnRef,
		CreatedAt: time.Now().UTC(),
	}
	if err := n.sender.Send(ctx, note); err != nil {
		n.logger.Warn("notification not delivered", "template", template, "user_id", userID, "error", err)
		return
	}

	n.mu.Lock()
	n.history = append(n.history, note)
	if len(n.history) > n.maxHistory {
		n.history = n.history[len(n.history)-n.maxHistory:]
	}
	n.mu.Unlock()
}

func (n *Notifier) account(ctx context.Context, accountID string) *domain.Account {
	if n.accounts == nil || accountID == "" {
		return nil
	}
	acc, err := n.accounts.GetAccount(ctx, accountID)
	if err != nil {
		n.logger.Warn("notification account lookup failed", "account_id", accountID, "error", err)
		return nil
	}
	return acc
}

func (n *Notifier) userAccount(ctx context.Context, userID string) *domain.Account {
	if n.accounts == nil || userID == "" {
		return nil
	}
	acc, err := n.accounts.AccountForUser(ctx, userID)
	if err != nil {
		n.logger.Warn("notification user lookup failed", "user_id", userID, "error", err)
		return nil
	}
	return acc
}

func accountHolder(acc *domain.Account) string {
	if acc == nil || strings.TrimSpace(acc.Name) == "" {
		return "Customer"
	}
	return acc.Name
}

var hundred = decimal.NewFromInt(100)

// FormatNaira renders a kobo amount as naira with thousands separators, e.g. ₦1,250.50.
func FormatNaira(kobo int64) string {
	amount := decimal.NewFromInt(kobo).Div(hundred)
	sign := ""
	if amount.IsNegative() {
		sign = "-"
		amount = amount.Abs()
	}
	fixed := amount.StringFixed(2)
	whole, frac := fixed[:len(fixed)-3], fixed[len(fixed)-2:]

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + "₦" + b.String() + "." + frac
}
