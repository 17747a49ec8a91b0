package bankdir

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/pamilerinsimon03/WemaTrust/internal/domain"
	"github.com/pamilerinsimon03/WemaTrust/internal/events"
	"github.com/pamilerinsimon03/WemaTrust/internal/store"
)

var (
	ErrInvalidSuccessRate = errors.New("historical success rate must be between 0 and 1")
	ErrMissingBankID      = errors.New("partner bank id is required")
)

// Directory tracks partner bank health. Unknown banks are treated as DOWN.
type Directory struct {
	mu   sync.Mutex
	repo store.Repository
	sink events.Sink
}

func New(repo store.Repository, sink events.Sink) *Directory {
	return &Directory{repo: repo, sink: sink}
}

// Register adds or replaces a partner bank without emitting an event.
func (d *Directory) Register(ctx context.Context, bank domain.PartnerBank) error {
	if strings.TrimSpace(bank.ID) == "" {
		return ErrMissingBankID
	}
	status, err := domain.ParseBankStatus(string(bank.Status))
	if err != nil {
		return err
	}
	if bank.HistoricalSuccessRate < 0 || bank.HistoricalSuccessRate > 1 {
		return ErrInvalidSuccessRate
	}
	bank.Status = status

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.repo.SavePartnerBank(ctx, bank)
}

func (d *Directory) Get(ctx context.Context, bankID string) (*domain.PartnerBank, error) {
	return d.repo.FindPartnerBank(ctx, bankID)
}

func (d *Directory) List(ctx context.Context) ([]domain.PartnerBank, error) {
	return d.repo.ListPartnerBanks(ctx)
}

// Status returns the bank's current status, or DOWN when it cannot be resolved.
func (d *Directory) Status(ctx context.Context, bankID string) domain.PartnerBankStatus {
	bank, err := d.repo.FindPartnerBank(ctx, bankID)
	if err != nil {
		return domain.BankDown
	}
	return bank.Status
}

// SetStatus changes the bank's status and emits partner_status_changed. Setting the
// current status is a no-op.
func (d *Directory) SetStatus(ctx context.Context, bankID string, status domain.PartnerBankStatus) (*domain.PartnerBank, error) {
	status, err := domain.ParseBankStatus(string(status))
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	bank, err := d.repo.FindPartnerBank(ctx, bankID)
	if err != nil {
		d.mu.Unlock()
		return nil, err
	}
	previous := bank.Status
	if previous == status {
		d.mu.Unlock()
		return bank, nil
	}
	bank.Status = status
	if err := d.repo.SavePartnerBank(ctx, *bank); err != nil {
		d.mu.Unlock()
		return nil, fmt.Errorf("save partner bank %s: %w", bankID, err)
	}
	// Emit while holding the lock so concurrent changes reach subscribers in apply order.
	if d.sink != nil {
		d.sink.Emit(domain.PartnerStatusChanged{PartnerBank: *bank, Previous: previous})
	}
	d.mu.Unlock()

	return bank, nil
}

// SetSuccessRate updates the historical success rate. No event is emitted.
func (d *Directory) SetSuccessRate(ctx context.Context, bankID string, rate float64) (*domain.PartnerBank, error) {
	if rate < 0 || rate > 1 {
		return nil, ErrInvalidSuccessRate
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	bank, err := d.repo.FindPartnerBank(ctx, bankID)
	if err != nil {
		return nil, err
	}
	bank.HistoricalSuccessRate = rate
	if err := d.repo.SavePartnerBank(ctx, *bank); err != nil {
		return nil, fmt.Errorf("save partner bank %s: %w", bankID, err)
	}
	return bank, nil
}
