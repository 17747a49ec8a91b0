package domain

import (
	"fmt"
	"strings"
)

// PartnerBankStatus is the coarse health signal for a counterparty rail.
type PartnerBankStatus string

const (
	BankUp   PartnerBankStatus = "UP"
	BankSlow PartnerBankStatus = "SLOW"
	BankDown PartnerBankStatus = "DOWN"
)

// PartnerBank is a simulated counterparty on the NIP rail.
type PartnerBank struct {
	ID                    string            `json:"id"`
	Name                  string            `json:"name"`
	Status                PartnerBankStatus `json:"status"`
	HistoricalSuccessRate float64           `json:"historical_success_rate"`
}

// ParseBankStatus normalizes user input ("up", " Slow ") into a PartnerBankStatus.
func ParseBankStatus(raw string) (PartnerBankStatus, error) {
	switch PartnerBankStatus(strings.ToUpper(strings.TrimSpace(raw))) {
	case BankUp:
		return BankUp, nil
	case BankSlow:
		return BankSlow, nil
	case BankDown:
		return BankDown, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidBankStatus, raw)
	}
}

// HealthScore maps a status onto the 0-100 score shown on the monitoring view.
func (s PartnerBankStatus) HealthScore() int {
	switch s {
	case BankUp:
		return 100
	case BankSlow:
		return 60
	case BankDown:
		return 0
	default:
		return 50
	}
}
