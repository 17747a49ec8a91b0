/**
 * @description
 * This file contains the core business logic exposed at the service boundary. The
 * `Service` struct is the TransferCoordinator: it validates a transfer, debits the
 * sender synchronously, records the debit and hands the recipient side to the
 * settlement engine. It also fronts the read models and the operator hooks.
 *
 * @dependencies
 * - context, errors, fmt, log/slog, strings, time: Standard Go libraries.
 * - github.com/google/uuid: For transaction reference generation.
 * - internal/domain, internal/engine, internal/events: core components.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pamilerinsimon03/WemaTrust/internal/domain"
	"github.com/pamilerinsimon03/WemaTrust/internal/engine"
	"github.com/pamilerinsimon03/WemaTrust/internal/events"
)

const (
	TxnRefPrefix           = "WT_"
	transferRateLimitScope = "transfer_submit"
)

// Ledger is the subset of the ShadowLedger the coordinator uses.
type Ledger interface {
	AccountForUser(ctx context.Context, userID string) (*domain.Account, error)
	FindAccountByNumber(ctx context.Context, accountNumber string) (*domain.Account, error)
	Debit(ctx context.Context, accountID string, amount int64) (*domain.Account, error)
	Credit(ctx context.Context, accountID string, amount int64) (*domain.Account, error)
	AppendTransaction(ctx context.Context, tx domain.Transaction) (domain.Transaction, error)
	Snapshot(ctx context.Context, accountID string) (*domain.AccountSnapshot, error)
	TransactionsForUser(ctx context.Context, userID string) ([]domain.Transaction, error)
	TransactionsByRef(ctx context.Context, txnRef string) ([]domain.Transaction, error)
}

// Settlement is the subset of the SettlementEngine the service drives.
type Settlement interface {
	Enqueue(ctx context.Context, job engine.Job) error
	SimulateBankOutage(ctx context.Context, bankID string, d time.Duration) error
	SimulateSystemIssue(ctx context.Context, d time.Duration) error
	UpdateConfig(u engine.ConfigUpdate) (engine.Config, error)
	Stats() engine.Stats
	Pending() []engine.Job
}

// BankDirectory is the subset of partner bank operations the service exposes.
type BankDirectory interface {
	Get(ctx context.Context, bankID string) (*domain.PartnerBank, error)
	List(ctx context.Context) ([]domain.PartnerBank, error)
	SetStatus(ctx context.Context, bankID string, status domain.PartnerBankStatus) (*domain.PartnerBank, error)
	SetSuccessRate(ctx context.Context, bankID string, rate float64) (*domain.PartnerBank, error)
}

// Service provides the boundary operations of the settlement network.
type Service struct {
	ledger     Ledger
	settlement Settlement
	banks      BankDirectory
	sink       events.Sink
	logger     *slog.Logger

	rateLimiter     RateLimiter
	transferLimit   int
	rateLimitWindow time.Duration
	newRef          func() string
}

// NewService creates a new service instance.
func NewService(l Ledger, settlement Settlement, banks BankDirectory, sink events.Sink, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		ledger:          l,
		settlement:      settlement,
		banks:           banks,
		sink:            sink,
		logger:          logger,
		rateLimitWindow: time.Minute,
		newRef:          NewTxnRef,
	}
}

// SetTransferRateLimiter enables per-sender submission limiting. A limit of zero disables it.
func (s *Service) SetTransferRateLimiter(limiter RateLimiter, perMinute int) {
	s.rateLimiter = limiter
	s.transferLimit = perMinute
}

// NewTxnRef returns a fresh transaction reference such as WT_3F2A....
func NewTxnRef() string {
	return TxnRefPrefix + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// SubmitTransfer validates and debits synchronously, then queues settlement of the
// recipient side. The returned reference identifies every later event for the transfer.
func (s *Service) SubmitTransfer(ctx context.Context, req domain.TransferRequest) (*domain.TransferResult, error) {
	req.SenderUserID = strings.TrimSpace(req.SenderUserID)
	req.ToAccount = strings.TrimSpace(req.ToAccount)
	req.Note = strings.TrimSpace(req.Note)

	switch {
	case req.SenderUserID == "":
		return nil, domain.ErrInvalidSender
	case req.Amount <= 0:
		return nil, domain.ErrInvalidTransferAmount
	case !domain.IsValidAccountNumber(req.ToAccount):
		return nil, domain.ErrInvalidAccountNumber
	}

	if err := s.checkRateLimit(ctx, req.SenderUserID); err != nil {
		return nil, err
	}

	sender, err := s.ledger.AccountForUser(ctx, req.SenderUserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) || errors.Is(err, domain.ErrAccountNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to find sender account: %w", err)
	}
	if req.Amount > sender.Balance {
		return nil, domain.ErrInsufficientFunds
	}

	recipient, err := s.ledger.FindAccountByNumber(ctx, req.ToAccount)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, domain.ErrRecipientNotFound
		}
		return nil, fmt.Errorf("failed to find recipient account: %w", err)
	}
	if recipient.ID == sender.ID {
		return nil, domain.ErrSelfTransfer
	}

	bankID := strings.TrimSpace(req.BankID)
	if bankID == "" {
		bankID = recipient.BankID
	}

	txnRef := s.newRef()
	debited, err := s.ledger.Debit(ctx, sender.ID, req.Amount)
	if err != nil {
		return nil, err
	}

	debit, err := s.ledger.AppendTransaction(ctx, domain.Transaction{
		TxnRef:    txnRef,
		Type:      domain.TransactionDebit,
		Amount:    req.Amount,
		ToAccount: req.ToAccount,
		FromBank:  domain.HomeBankName,
		Status:    domain.TransactionSuccess,
		Note:      req.Note,
		UserID:    req.SenderUserID,
	})
	s.sink.Emit(domain.BalanceUpdated{AccountID: sender.ID, UserID: req.SenderUserID, Balance: debited.Balance})
	if err != nil {
		s.logger.Error("debit transaction not recorded", "txn_ref", txnRef, "error", err)
	} else {
		s.sink.Emit(domain.NewTransaction{Transaction: debit})
	}

	err = s.settlement.Enqueue(ctx, engine.Job{
		TxnRef:          txnRef,
		Amount:          req.Amount,
		ToAccount:       req.ToAccount,
		FromBank:        bankID,
		Note:            req.Note,
		SenderAccountID: sender.ID,
		SenderUserID:    req.SenderUserID,
	})
	if err != nil {
		s.refund(ctx, sender.ID, req, txnRef, bankID)
		return nil, fmt.Errorf("failed to queue settlement for %s: %w", txnRef, err)
	}

	s.logger.Info("transfer submitted", "txn_ref", txnRef, "sender", req.SenderUserID, "to_account", req.ToAccount, "bank_id", bankID, "amount", req.Amount)
	return &domain.TransferResult{TxnRef: txnRef, Status: string(domain.TransactionPending), SenderBalance: debited.Balance}, nil
}

func (s *Service) checkRateLimit(ctx context.Context, senderID string) error {
	if s.rateLimiter == nil || s.transferLimit <= 0 {
		return nil
	}
	count, retryAfter, err := s.rateLimiter.ConsumeRateLimit(ctx, transferRateLimitScope, senderID, s.transferLimit, s.rateLimitWindow)
	if err != nil {
		s.logger.Warn("transfer rate limiter unavailable; allowing request", "sender", senderID, "error", err)
		return nil
	}
	if count > s.transferLimit {
		return &RateLimitError{RetryAfterSeconds: retryAfter}
	}
	return nil
}

// refund undoes the debit when the recipient side could not be queued.
func (s *Service) refund(ctx context.Context, accountID string, req domain.TransferRequest, txnRef, bankID string) {
	account, err := s.ledger.Credit(ctx, accountID, req.Amount)
	if err != nil {
		s.logger.Error("refund after enqueue failure did not apply", "txn_ref", txnRef, "error", err)
		return
	}
	credit, err := s.ledger.AppendTransaction(ctx, domain.Transaction{
		TxnRef:    txnRef,
		Type:      domain.TransactionCredit,
		Amount:    req.Amount,
		ToAccount: account.AccountNumber,
		FromBank:  bankID,
		Status:    domain.TransactionSuccess,
		Note:      engine.ReversalNote,
		UserID:    req.SenderUserID,
	})
	s.sink.Emit(domain.BalanceUpdated{AccountID: accountID, UserID: req.SenderUserID, Balance: account.Balance})
	if err == nil {
		s.sink.Emit(domain.NewTransaction{Transaction: credit})
	}
}

// GetAccountSnapshot returns the balance and shadow entries of an account.
func (s *Service) GetAccountSnapshot(ctx context.Context, accountID string) (*domain.AccountSnapshot, error) {
	return s.ledger.Snapshot(ctx, accountID)
}

// GetUserTransactions lists a user's ledger records, newest first.
func (s *Service) GetUserTransactions(ctx context.Context, userID string) ([]domain.Transaction, error) {
	return s.ledger.TransactionsForUser(ctx, userID)
}

// GetTransfer returns every ledger record that shares txnRef.
func (s *Service) GetTransfer(ctx context.Context, txnRef string) ([]domain.Transaction, error) {
	return s.ledger.TransactionsByRef(ctx, txnRef)
}

func (s *Service) GetBank(ctx context.Context, bankID string) (*domain.PartnerBank, error) {
	return s.banks.Get(ctx, bankID)
}

func (s *Service) ListBanks(ctx context.Context) ([]domain.PartnerBank, error) {
	return s.banks.List(ctx)
}

// SetBankStatus is the operator override of a partner bank's status.
func (s *Service) SetBankStatus(ctx context.Context, bankID string, status domain.PartnerBankStatus) (*domain.PartnerBank, error) {
	bank, err := s.banks.SetStatus(ctx, bankID, status)
	if err != nil {
		return nil, err
	}
	s.logger.Info("partner bank status set", "bank_id", bankID, "status", bank.Status)
	return bank, nil
}

func (s *Service) TriggerBankOutage(ctx context.Context, bankID string, d time.Duration) error {
	return s.settlement.SimulateBankOutage(ctx, bankID, d)
}

func (s *Service) TriggerSystemIssue(ctx context.Context, d time.Duration) error {
	return s.settlement.SimulateSystemIssue(ctx, d)
}

func (s *Service) UpdateSimulationConfig(u engine.ConfigUpdate) (engine.Config, error) {
	return s.settlement.UpdateConfig(u)
}

func (s *Service) PendingSettlements() []engine.Job {
	return s.settlement.Pending()
}

// BankHealth is one row of the monitoring view.
type BankHealth struct {
	ID                    string                   `json:"id"`
	Name                  string                   `json:"name"`
	Status                domain.PartnerBankStatus `json:"status"`
	HealthScore           int                      `json:"health_score"`
	HistoricalSuccessRate float64                  `json:"historical_success_rate"`
}

// OpsStats combines engine counters with partner bank health.
type OpsStats struct {
	Engine       engine.Stats                     `json:"engine"`
	Banks        []BankHealth                     `json:"banks"`
	StatusCounts map[domain.PartnerBankStatus]int `json:"status_counts"`
}

func (s *Service) Stats(ctx context.Context) (*OpsStats, error) {
	banks, err := s.banks.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list partner banks: %w", err)
	}
	out := &OpsStats{
		Engine:       s.settlement.Stats(),
		Banks:        make([]BankHealth, 0, len(banks)),
		StatusCounts: map[domain.PartnerBankStatus]int{domain.BankUp: 0, domain.BankSlow: 0, domain.BankDown: 0},
	}
	for _, b := range banks {
		out.Banks = append(out.Banks, BankHealth{
			ID:                    b.ID,
			Name:                  b.Name,
			Status:                b.Status,
			HealthScore:           b.Status.HealthScore(),
			HistoricalSuccessRate: b.HistoricalSuccessRate,
		})
		out.StatusCounts[b.Status]++
	}
	return out, nil
}

// PartnerStatusConsumer returns a consumer for externally classified bank status updates.
func (s *Service) PartnerStatusConsumer() *PartnerStatusConsumer {
	c := NewPartnerStatusConsumer(s.banks, s.logger)
	if o, ok := s.settlement.(OutageReporter); ok {
		c.WithOutages(o)
	}
	return c
}
