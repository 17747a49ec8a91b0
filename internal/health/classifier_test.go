package health

import (
	"context"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/pamilerinsimon03/WemaTrust/internal/domain"
	"github.com/pamilerinsimon03/WemaTrust/internal/engine"
)

type banksStub struct {
	banks      map[string]domain.PartnerBank
	statusSets []string
}

func (s *banksStub) List(ctx context.Context) ([]domain.PartnerBank, error) {
	out := make([]domain.PartnerBank, 0, len(s.banks))
	for _, b := range s.banks {
		out = append(out, b)
	}
	return out, nil
}

func (s *banksStub) SetStatus(ctx context.Context, bankID string, status domain.PartnerBankStatus) (*domain.PartnerBank, error) {
	b := s.banks[bankID]
	b.Status = status
	s.banks[bankID] = b
	s.statusSets = append(s.statusSets, bankID)
	return &b, nil
}

func (s *banksStub) SetSuccessRate(ctx context.Context, bankID string, rate float64) (*domain.PartnerBank, error) {
	b := s.banks[bankID]
	b.HistoricalSuccessRate = rate
	s.banks[bankID] = b
	return &b, nil
}

type observerStub struct {
	observations map[string]engine.Observation
	outages      map[string]bool
	taken        int
}

func (o *observerStub) TakeObservations() map[string]engine.Observation {
	o.taken++
	out := o.observations
	o.observations = nil
	return out
}

func (o *observerStub) OutageActive(bankID string) bool { return o.outages[bankID] }

func newTestClassifier(banks *banksStub, obs *observerStub) *Classifier {
	return NewClassifier(banks, obs, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func seededBanks() *banksStub {
	return &banksStub{banks: map[string]domain.PartnerBank{
		"bank_a": {ID: "bank_a", Name: "Zenith Bank", Status: domain.BankUp, HistoricalSuccessRate: 0.98},
		"bank_c": {ID: "bank_c", Name: "Access Bank", Status: domain.BankSlow, HistoricalSuccessRate: 0.85},
		"bank_d": {ID: "bank_d", Name: "UBA", Status: domain.BankDown, HistoricalSuccessRate: 0.60},
	}}
}

func TestStatusForScore(t *testing.T) {
	cases := []struct {
		score float64
		want  domain.PartnerBankStatus
	}{
		{1, domain.BankUp},
		{0.9, domain.BankUp},
		{0.89, domain.BankSlow},
		{0.6, domain.BankSlow},
		{0.59, domain.BankDown},
		{0, domain.BankDown},
	}
	for _, tc := range cases {
		if got := StatusForScore(tc.score); got != tc.want {
			t.Fatalf("StatusForScore(%v) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

func TestClassifyDowngradesFailingBank(t *testing.T) {
	banks := seededBanks()
	obs := &observerStub{observations: map[string]engine.Observation{
		"bank_a": {Attempts: 10, Successes: 2},
	}}

	decisions, err := newTestClassifier(banks, obs).Classify(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(decisions) != 1 {
		t.Fatalf("expected one decision, got %d", len(decisions))
	}
	d := decisions[0]
	// score = 0.5*0.2 + 0.5*0.98
	if math.Abs(d.Score-0.59) > 1e-9 || d.Status != domain.BankDown || !d.Changed {
		t.Fatalf("unexpected decision %+v", d)
	}
	if got := banks.banks["bank_a"].Status; got != domain.BankDown {
		t.Fatalf("expected bank_a DOWN, got %s", got)
	}
	// rate = 0.2*0.2 + 0.8*0.98
	if got := banks.banks["bank_a"].HistoricalSuccessRate; math.Abs(got-0.824) > 1e-9 {
		t.Fatalf("expected smoothed success rate 0.824, got %v", got)
	}
}

func TestClassifyLeavesUnobservedBanksAlone(t *testing.T) {
	banks := seededBanks()
	obs := &observerStub{observations: map[string]engine.Observation{
		"bank_c": {Attempts: 2, Successes: 0},
	}}

	decisions, err := newTestClassifier(banks, obs).Classify(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(decisions) != 0 || len(banks.statusSets) != 0 {
		t.Fatalf("expected no changes, got decisions=%+v sets=%v", decisions, banks.statusSets)
	}
	if banks.banks["bank_d"].Status != domain.BankDown {
		t.Fatalf("expected bank_d to keep its seeded status")
	}
}

func TestClassifyDoesNotWriteUnchangedStatus(t *testing.T) {
	banks := seededBanks()
	obs := &observerStub{observations: map[string]engine.Observation{
		"bank_c": {Attempts: 20, Successes: 15},
	}}

	decisions, err := newTestClassifier(banks, obs).Classify(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(decisions) != 1 || decisions[0].Changed || decisions[0].Status != domain.BankSlow {
		t.Fatalf("unexpected decisions %+v", decisions)
	}
	if len(banks.statusSets) != 0 {
		t.Fatalf("expected no status writes, got %v", banks.statusSets)
	}
}

func TestClassifySkipsBanksUnderOutage(t *testing.T) {
	banks := seededBanks()
	obs := &observerStub{
		observations: map[string]engine.Observation{"bank_d": {Attempts: 10, Successes: 10}},
		outages:      map[string]bool{"bank_d": true},
	}

	decisions, err := newTestClassifier(banks, obs).Classify(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(decisions) != 1 || !decisions[0].SkippedOutage || decisions[0].Changed {
		t.Fatalf("unexpected decisions %+v", decisions)
	}
	if banks.banks["bank_d"].Status != domain.BankDown {
		t.Fatalf("expected outage to pin bank_d DOWN")
	}
}

func TestSchedulerRejectsInvalidSchedule(t *testing.T) {
	c := newTestClassifier(seededBanks(), &observerStub{})
	s := NewScheduler(c, slog.New(slog.NewTextHandler(io.Discard, nil)), "every now and then")
	if err := s.Start(); err == nil {
		t.Fatal("expected an invalid schedule to be rejected")
	}
}

func TestSchedulerRunConsumesObservations(t *testing.T) {
	obs := &observerStub{}
	s := NewScheduler(newTestClassifier(seededBanks(), obs), nil, "")
	s.run()
	if obs.taken != 1 {
		t.Fatalf("expected one observation take, got %d", obs.taken)
	}
	if s.schedule != DefaultSchedule {
		t.Fatalf("expected default schedule, got %q", s.schedule)
	}
}
