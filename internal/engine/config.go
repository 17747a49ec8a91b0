package engine

import (
	"errors"
	"math"
	"time"

	"github.com/pamilerinsimon03/WemaTrust/internal/domain"
)

const (
	DefaultBaseDelay     = 2 * time.Second
	DefaultJitterWindow  = time.Second
	DefaultFailureRate   = 0.1
	DefaultRetryAttempts = 3
	DefaultRetryDelay    = 5 * time.Second
	DefaultTickInterval  = time.Second
	DefaultCreditNote    = "NIP Inward"
	ReversalNote         = "NIP Reversal"

	// maxFailureRate caps the degraded failure probability during a system issue.
	maxFailureRate = 0.8
	// retryAttenuation scales the success probability once per retry attempt.
	retryAttenuation = 0.8
)

var ErrInvalidConfig = errors.New("invalid simulation config")

// Config tunes the simulated rail.
type Config struct {
	BaseDelay             time.Duration `json:"base_delay"`
	JitterWindow          time.Duration `json:"jitter_window"`
	FailureRate           float64       `json:"failure_rate"`
	RetryAttempts         int           `json:"retry_attempts"`
	RetryDelay            time.Duration `json:"retry_delay"`
	TickInterval          time.Duration `json:"tick_interval"`
	ReverseOnFinalFailure bool          `json:"reverse_on_final_failure"`
}

// DefaultConfig mirrors the production NIP simulation parameters.
func DefaultConfig() Config {
	return Config{
		BaseDelay:     DefaultBaseDelay,
		JitterWindow:  DefaultJitterWindow,
		FailureRate:   DefaultFailureRate,
		RetryAttempts: DefaultRetryAttempts,
		RetryDelay:    DefaultRetryDelay,
		TickInterval:  DefaultTickInterval,
	}
}

func (c Config) validate() error {
	switch {
	case c.BaseDelay < 0, c.JitterWindow < 0, c.RetryDelay < 0:
		return errors.Join(ErrInvalidConfig, errors.New("durations must not be negative"))
	case c.TickInterval <= 0:
		return errors.Join(ErrInvalidConfig, errors.New("tick interval must be positive"))
	case c.FailureRate < 0 || c.FailureRate > 1:
		return errors.Join(ErrInvalidConfig, errors.New("failure rate must be between 0 and 1"))
	case c.RetryAttempts < 0:
		return errors.Join(ErrInvalidConfig, errors.New("retry attempts must not be negative"))
	}
	return nil
}

// ConfigUpdate is a partial Config; nil fields are left unchanged.
type ConfigUpdate struct {
	BaseDelay             *time.Duration
	JitterWindow          *time.Duration
	FailureRate           *float64
	RetryAttempts         *int
	RetryDelay            *time.Duration
	TickInterval          *time.Duration
	ReverseOnFinalFailure *bool
}

func (c Config) apply(u ConfigUpdate) Config {
	if u.BaseDelay != nil {
		c.BaseDelay = *u.BaseDelay
	}
	if u.JitterWindow != nil {
		c.JitterWindow = *u.JitterWindow
	}
	if u.FailureRate != nil {
		c.FailureRate = *u.FailureRate
	}
	if u.RetryAttempts != nil {
		c.RetryAttempts = *u.RetryAttempts
	}
	if u.RetryDelay != nil {
		c.RetryDelay = *u.RetryDelay
	}
	if u.TickInterval != nil {
		c.TickInterval = *u.TickInterval
	}
	if u.ReverseOnFinalFailure != nil {
		c.ReverseOnFinalFailure = *u.ReverseOnFinalFailure
	}
	return c
}

// BaseSuccessRate is the per-status success probability of a first attempt.
func BaseSuccessRate(status domain.PartnerBankStatus) float64 {
	switch status {
	case domain.BankUp:
		return 0.95
	case domain.BankSlow:
		return 0.75
	default:
		return 0.25
	}
}

// SuccessProbability returns the chance that an attempt clears.
// failureScale multiplies the status failure rate (FailureRate/DefaultFailureRate, doubled
// during a system issue). Scaling up never pushes the rate past maxFailureRate unless the
// unscaled rate already does.
func SuccessProbability(status domain.PartnerBankStatus, retryCount int, failureScale float64) float64 {
	unscaled := 1 - BaseSuccessRate(status)
	failure := unscaled * failureScale
	if failureScale > 1 {
		failure = math.Min(failure, math.Max(maxFailureRate, unscaled))
	}
	failure = math.Min(math.Max(failure, 0), 1)
	return (1 - failure) * math.Pow(retryAttenuation, float64(retryCount))
}

// delayFor returns the settlement delay for a bank status. draw is uniform in [0,1).
func delayFor(status domain.PartnerBankStatus, base, jitter time.Duration, draw float64) time.Duration {
	mult := time.Duration(5)
	switch status {
	case domain.BankUp:
		mult = 1
	case domain.BankSlow:
		mult = 2
	}
	return mult*base + time.Duration(draw*float64(mult*jitter))
}
