/**
 * @description
 * Rule-based partner bank health classification. Each run folds the settlement engine's
 * observed per-bank success ratio into the bank's historical rate and maps the blended
 * score onto UP, SLOW or DOWN.
 *
 * @dependencies
 * - log/slog: structured logging.
 * - internal/engine: observation counters and outage state.
 */
package health

import (
	"context"
	"log/slog"
	"sort"

	"github.com/pamilerinsimon03/WemaTrust/internal/domain"
	"github.com/pamilerinsimon03/WemaTrust/internal/engine"
)

const (
	UpThreshold   = 0.9
	SlowThreshold = 0.6

	defaultMinAttempts    = 3
	defaultObservedWeight = 0.5
	defaultSmoothing      = 0.2
)

// Banks is the partner bank state the classifier reads and updates.
type Banks interface {
	List(ctx context.Context) ([]domain.PartnerBank, error)
	SetStatus(ctx context.Context, bankID string, status domain.PartnerBankStatus) (*domain.PartnerBank, error)
	SetSuccessRate(ctx context.Context, bankID string, rate float64) (*domain.PartnerBank, error)
}

// Observer supplies settlement outcomes gathered since the previous run.
type Observer interface {
	TakeObservations() map[string]engine.Observation
	OutageActive(bankID string) bool
}

// Decision records what one run concluded for one bank.
type Decision struct {
	BankID        string
	Previous      domain.PartnerBankStatus
	Status        domain.PartnerBankStatus
	Score         float64
	SuccessRate   float64
	Attempts      int
	Changed       bool
	SkippedOutage bool
}

type Classifier struct {
	banks    Banks
	observer Observer
	logger   *slog.Logger

	MinAttempts    int
	ObservedWeight float64
	Smoothing      float64
}

func NewClassifier(banks Banks, observer Observer, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		banks:          banks,
		observer:       observer,
		logger:         logger,
		MinAttempts:    defaultMinAttempts,
		ObservedWeight: defaultObservedWeight,
		Smoothing:      defaultSmoothing,
	}
}

// StatusForScore maps a blended success score onto a bank status.
func StatusForScore(score float64) domain.PartnerBankStatus {
	switch {
	case score >= UpThreshold:
		return domain.BankUp
	case score >= SlowThreshold:
		return domain.BankSlow
	default:
		return domain.BankDown
	}
}

// Classify runs one classification pass. Banks with fewer than MinAttempts observed
// attempts keep their status; observations below the threshold are discarded.
func (c *Classifier) Classify(ctx context.Context) ([]Decision, error) {
	banks, err := c.banks.List(ctx)
	if err != nil {
		return nil, err
	}
	observations := c.observer.TakeObservations()
	sort.Slice(banks, func(i, j int) bool { return banks[i].ID < banks[j].ID })

	var decisions []Decision
	for _, bank := range banks {
		obs, ok := observations[bank.ID]
		if !ok || obs.Attempts < c.MinAttempts {
			continue
		}
		observed := float64(obs.Successes) / float64(obs.Attempts)
		score := c.ObservedWeight*observed + (1-c.ObservedWeight)*bank.HistoricalSuccessRate
		rate := c.Smoothing*observed + (1-c.Smoothing)*bank.HistoricalSuccessRate

		d := Decision{
			BankID:      bank.ID,
			Previous:    bank.Status,
			Status:      StatusForScore(score),
			Score:       score,
			SuccessRate: rate,
			Attempts:    obs.Attempts,
		}

		if _, err := c.banks.SetSuccessRate(ctx, bank.ID, rate); err != nil {
			c.logger.Warn("health: success rate not updated", "bank_id", bank.ID, "error", err)
		}

		if d.Status != bank.Status {
			if c.observer.OutageActive(bank.ID) {
				d.SkippedOutage = true
				d.Status = bank.Status
			} else if _, err := c.banks.SetStatus(ctx, bank.ID, d.Status); err != nil {
				c.logger.Error("health: status not updated", "bank_id", bank.ID, "status", d.Status, "error", err)
				d.Status = bank.Status
			} else {
				d.Changed = true
				c.logger.Info("health: partner bank reclassified", "bank_id", bank.ID, "from", bank.Status, "to", d.Status, "score", score, "attempts", obs.Attempts)
			}
		}
		decisions = append(decisions, d)
	}
	return decisions, nil
}
