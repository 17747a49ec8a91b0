package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pamilerinsimon03/WemaTrust/internal/bankdir"
	"github.com/pamilerinsimon03/WemaTrust/internal/domain"
)

// PartnerStatusEvent is published by the external health feed on partner.status.updated.
type PartnerStatusEvent struct {
	BankID                string   `json:"bank_id"`
	Status                string   `json:"status"`
	HistoricalSuccessRate *float64 `json:"historical_success_rate,omitempty"`
}

// OutageReporter reports whether a simulated outage currently pins a bank's status.
type OutageReporter interface {
	OutageActive(bankID string) bool
}

type PartnerStatusConsumer struct {
	banks   BankDirectory
	outages OutageReporter
	logger  *slog.Logger
}

func NewPartnerStatusConsumer(banks BankDirectory, logger *slog.Logger) *PartnerStatusConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &PartnerStatusConsumer{banks: banks, logger: logger}
}

// WithOutages makes the consumer leave status untouched while a simulated outage is active.
func (c *PartnerStatusConsumer) WithOutages(o OutageReporter) *PartnerStatusConsumer {
	c.outages = o
	return c
}

func (c *PartnerStatusConsumer) HandleMessage(body []byte) bool {
	var event PartnerStatusEvent
	if err := json.Unmarshal(body, &event); err != nil {
		c.logger.Warn("partner-status-consumer: failed to unmarshal payload", "error", err)
		return true
	}

	event.BankID = strings.TrimSpace(event.BankID)
	if event.BankID == "" {
		c.logger.Warn("partner-status-consumer: missing bank id", "event", fmt.Sprintf("%+v", event))
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := c.processEvent(ctx, event); err != nil {
		c.logger.Error("partner-status-consumer: processing error", "bank_id", event.BankID, "error", err)
		return false
	}
	return true
}

func (c *PartnerStatusConsumer) processEvent(ctx context.Context, event PartnerStatusEvent) error {
	current, err := c.banks.Get(ctx, event.BankID)
	if err != nil {
		if errors.Is(err, domain.ErrBankNotFound) {
			c.logger.Info("partner-status-consumer: unknown bank; acknowledging", "bank_id", event.BankID)
			return nil
		}
		return fmt.Errorf("lookup bank: %w", err)
	}

	if event.HistoricalSuccessRate != nil {
		if _, err := c.banks.SetSuccessRate(ctx, event.BankID, *event.HistoricalSuccessRate); err != nil {
			if !errors.Is(err, bankdir.ErrInvalidSuccessRate) {
				return fmt.Errorf("update success rate: %w", err)
			}
			c.logger.Warn("partner-status-consumer: ignoring invalid success rate", "bank_id", event.BankID, "rate", *event.HistoricalSuccessRate)
		}
	}

	if strings.TrimSpace(event.Status) == "" {
		return nil
	}
	status, err := domain.ParseBankStatus(event.Status)
	if err != nil {
		c.logger.Warn("partner-status-consumer: ignoring invalid status", "bank_id", event.BankID, "status", event.Status)
		return nil
	}
	if status == current.Status {
		return nil
	}
	if c.outages != nil && c.outages.OutageActive(event.BankID) {
		c.logger.Info("partner-status-consumer: outage active; status update skipped", "bank_id", event.BankID, "status", status)
		return nil
	}

	if _, err := c.banks.SetStatus(ctx, event.BankID, status); err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	return nil
}
