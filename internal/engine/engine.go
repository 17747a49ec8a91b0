/**
 * @description
 * The settlement engine simulates the NIP rail. Jobs wait in a FIFO queue that a
 * periodic tick drains one job at a time; each dequeued job waits a status-dependent
 * delay on its own timer and then resolves stochastically against the partner bank's
 * current status. Failures are retried after a delay until the attempt budget is spent.
 *
 * @dependencies
 * - log/slog: structured logging.
 * - internal/ledger: shadow entry and ledger record mutations.
 * - internal/events: event emission.
 */

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/pamilerinsimon03/WemaTrust/internal/domain"
	"github.com/pamilerinsimon03/WemaTrust/internal/events"
	"github.com/pamilerinsimon03/WemaTrust/internal/ledger"
)

var (
	ErrEngineStopped = errors.New("settlement engine is stopped")
	ErrInvalidJob    = errors.New("invalid settlement job")
)

// Ledger is the subset of the ShadowLedger the engine mutates.
type Ledger interface {
	FindAccountByNumber(ctx context.Context, accountNumber string) (*domain.Account, error)
	OwnerOf(ctx context.Context, accountID string) (string, error)
	Credit(ctx context.Context, accountID string, amount int64) (*domain.Account, error)
	OpenShadowEntry(ctx context.Context, accountID, txnRef string, amount int64) (*domain.ShadowEntry, error)
	ResolveShadowEntry(ctx context.Context, txnRef string, outcome domain.ShadowStatus) (*ledger.Resolution, error)
	DiscardShadowEntry(ctx context.Context, txnRef string) error
	AppendTransaction(ctx context.Context, tx domain.Transaction) (domain.Transaction, error)
}

// BankDirectory is the subset of partner bank state the engine reads and overrides.
type BankDirectory interface {
	Get(ctx context.Context, bankID string) (*domain.PartnerBank, error)
	Status(ctx context.Context, bankID string) domain.PartnerBankStatus
	SetStatus(ctx context.Context, bankID string, status domain.PartnerBankStatus) (*domain.PartnerBank, error)
}

// JobState is the position of a job in the settlement state machine.
type JobState string

const (
	JobQueued   JobState = "queued"
	JobDelaying JobState = "delaying"
	JobRetrying JobState = "retry_wait"
)

// Job is a unit of settlement work.
type Job struct {
	TxnRef             string    `json:"txn_ref"`
	Amount             int64     `json:"amount"`
	ToAccount          string    `json:"to_account"`
	FromBank           string    `json:"from_bank"`
	Note               string    `json:"note,omitempty"`
	SenderAccountID    string    `json:"sender_account_id,omitempty"`
	SenderUserID       string    `json:"sender_user_id,omitempty"`
	RecipientAccountID string    `json:"recipient_account_id"`
	RetryCount         int       `json:"retry_count"`
	State              JobState  `json:"state"`
	EnqueuedAt         time.Time `json:"enqueued_at"`
}

// Observation counts settlement attempts against one partner bank.
type Observation struct {
	Attempts  int `json:"attempts"`
	Successes int `json:"successes"`
}

// Stats is a point-in-time view of the engine.
type Stats struct {
	PendingCount      int      `json:"pending_count"`
	QueueLength       int      `json:"queue_length"`
	InFlight          int      `json:"in_flight"`
	Cleared           int      `json:"cleared"`
	FailedFinal       int      `json:"failed_final"`
	Retries           int      `json:"retries"`
	SystemIssueActive bool     `json:"system_issue_active"`
	Outages           []string `json:"outages"`
	Config            Config   `json:"config"`
}

type outage struct {
	original domain.PartnerBankStatus
	timer    timerID
}

type systemIssue struct {
	baseDelay   time.Duration
	failureRate float64
	timer       timerID
}

// Engine is the SettlementEngine.
type Engine struct {
	ledger Ledger
	banks  BankDirectory
	sink   events.Sink
	logger *slog.Logger
	timers *timerSet

	mu           sync.Mutex
	cfg          Config
	rng          *rand.Rand
	queue        []*Job
	jobs         map[string]*Job
	outages      map[string]*outage
	issue        *systemIssue
	observations map[string]*Observation
	cleared      int
	failedFinal  int
	retries      int
	running      bool
	stopped      bool
	cancel       context.CancelFunc
	loopDone     chan struct{}
	reconfigured chan struct{}
}

// Option customizes an Engine.
type Option func(*Engine)

// WithRand replaces the random source. The engine serializes access to it.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) { e.rng = r }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// New builds an engine. An invalid config is rejected.
func New(cfg Config, l Ledger, banks BankDirectory, sink events.Sink, opts ...Option) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = events.SinkFunc(func(domain.Event) {})
	}
	e := &Engine{
		ledger:       l,
		banks:        banks,
		sink:         sink,
		logger:       slog.Default(),
		timers:       newTimerSet(),
		cfg:          cfg,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		jobs:         make(map[string]*Job),
		outages:      make(map[string]*outage),
		observations: make(map[string]*Observation),
		reconfigured: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Start launches the dequeue loop in the background. The loop exits when ctx is
// cancelled or Stop is called.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return ErrEngineStopped
	}
	if e.running {
		e.mu.Unlock()
		return nil
	}
	loopCtx, cancel := context.WithCancel(ctx)
	e.running = true
	e.cancel = cancel
	e.loopDone = make(chan struct{})
	done := e.loopDone
	e.mu.Unlock()

	go e.loop(loopCtx, done)
	e.logger.Info("settlement engine started", "tick_interval", e.Config().TickInterval)
	return nil
}

func (e *Engine) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	timer := time.NewTimer(e.Config().TickInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.reconfigured:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-timer.C:
			e.Tick()
		}
		timer.Reset(e.Config().TickInterval)
	}
}

// Stop halts the tick loop, cancels every job and retry timer and restores any active
// outage or system-issue override. Queued jobs are abandoned with their entries pending.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	cancel, done := e.cancel, e.loopDone
	e.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	e.timers.Stop()
	e.logger.Info("settlement engine stopped")
}

// Enqueue opens the recipient's pending shadow entry, emits shadow_created and queues the job.
func (e *Engine) Enqueue(ctx context.Context, job Job) error {
	if job.TxnRef == "" || job.Amount <= 0 {
		return ErrInvalidJob
	}
	e.mu.Lock()
	stopped := e.stopped
	_, exists := e.jobs[job.TxnRef]
	e.mu.Unlock()
	if stopped {
		return ErrEngineStopped
	}
	if exists {
		return domain.ErrDuplicateReference
	}

	recipient, err := e.ledger.FindAccountByNumber(ctx, job.ToAccount)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return domain.ErrRecipientNotFound
		}
		return err
	}
	entry, err := e.ledger.OpenShadowEntry(ctx, recipient.ID, job.TxnRef, job.Amount)
	if err != nil {
		return err
	}
	owner := e.ownerOf(ctx, recipient.ID)

	job.RecipientAccountID = recipient.ID
	job.RetryCount = 0
	job.State = JobQueued
	job.EnqueuedAt = time.Now().UTC()

	e.mu.Lock()
	e.jobs[job.TxnRef] = &job
	e.queue = append(e.queue, &job)
	e.mu.Unlock()

	e.sink.Emit(domain.ShadowCreated{ShadowEntry: *entry, UserID: owner})
	e.logger.Info("settlement job queued", "txn_ref", job.TxnRef, "bank_id", job.FromBank, "amount", job.Amount)
	return nil
}

// Tick dequeues at most one job and starts its delay timer.
func (e *Engine) Tick() bool {
	e.mu.Lock()
	if e.stopped || len(e.queue) == 0 {
		e.mu.Unlock()
		return false
	}
	job := e.queue[0]
	e.queue[0] = nil
	e.queue = e.queue[1:]
	cfg := e.cfg
	e.mu.Unlock()

	status := e.banks.Status(context.Background(), job.FromBank)
	delay := delayFor(status, cfg.BaseDelay, cfg.JitterWindow, e.draw())

	e.mu.Lock()
	job.State = JobDelaying
	e.mu.Unlock()

	if _, ok := e.timers.AfterFunc(delay, false, func() { e.resolve(job) }); !ok {
		return false
	}
	e.logger.Debug("settlement delay scheduled", "txn_ref", job.TxnRef, "bank_status", status, "delay", delay)
	return true
}

// resolve draws the outcome using the bank status at resolution time.
func (e *Engine) resolve(job *Job) {
	ctx := context.Background()
	status := e.banks.Status(ctx, job.FromBank)

	e.mu.Lock()
	retry := job.RetryCount
	success := e.drawLocked(status, retry)
	obs, ok := e.observations[job.FromBank]
	if !ok {
		obs = &Observation{}
		e.observations[job.FromBank] = obs
	}
	obs.Attempts++
	if success {
		obs.Successes++
	}
	e.mu.Unlock()

	if success {
		e.settle(ctx, job)
		return
	}
	e.fail(ctx, job)
}

func (e *Engine) drawLocked(status domain.PartnerBankStatus, retry int) bool {
	if retry >= e.cfg.RetryAttempts {
		return false
	}
	p := SuccessProbability(status, retry, e.cfg.FailureRate/DefaultFailureRate)
	return e.rng.Float64() < p
}

func (e *Engine) settle(ctx context.Context, job *Job) {
	res, err := e.ledger.ResolveShadowEntry(ctx, job.TxnRef, domain.ShadowCleared)
	if err != nil {
		e.logger.Error("settlement clear failed, dropping job", "txn_ref", job.TxnRef, "error", err)
		e.finish(job, false)
		return
	}
	owner := e.ownerOf(ctx, job.RecipientAccountID)

	note := job.Note
	if note == "" {
		note = DefaultCreditNote
	}
	credit, err := e.ledger.AppendTransaction(ctx, domain.Transaction{
		TxnRef:    job.TxnRef,
		Type:      domain.TransactionCredit,
		Amount:    job.Amount,
		ToAccount: job.ToAccount,
		FromBank:  job.FromBank,
		Status:    domain.TransactionSuccess,
		Note:      note,
		UserID:    owner,
	})

	e.sink.Emit(domain.BalanceUpdated{AccountID: job.RecipientAccountID, UserID: owner, Balance: res.Balance})
	if err != nil {
		e.logger.Error("credit transaction not recorded", "txn_ref", job.TxnRef, "error", err)
	} else {
		e.sink.Emit(domain.NewTransaction{Transaction: credit})
	}
	e.sink.Emit(domain.ShadowUpdated{ShadowEntry: res.Entry, UserID: owner})

	e.finish(job, true)
	e.logger.Info("settlement cleared", "txn_ref", job.TxnRef, "retry_count", job.RetryCount)
}

func (e *Engine) fail(ctx context.Context, job *Job) {
	res, err := e.ledger.ResolveShadowEntry(ctx, job.TxnRef, domain.ShadowFailed)
	if err != nil {
		e.logger.Error("settlement failure not recorded, dropping job", "txn_ref", job.TxnRef, "error", err)
		e.finish(job, false)
		return
	}
	owner := e.ownerOf(ctx, job.RecipientAccountID)
	e.sink.Emit(domain.ShadowUpdated{ShadowEntry: res.Entry, UserID: owner})

	e.mu.Lock()
	next := job.RetryCount + 1
	retryable := next <= e.cfg.RetryAttempts
	retryDelay := e.cfg.RetryDelay
	reverse := e.cfg.ReverseOnFinalFailure
	if retryable {
		e.retries++
		job.State = JobRetrying
	}
	e.mu.Unlock()

	if retryable {
		e.logger.Info("settlement failed, retry scheduled", "txn_ref", job.TxnRef, "attempt", next, "retry_delay", retryDelay)
		e.timers.AfterFunc(retryDelay, false, func() { e.requeue(job, next) })
		return
	}

	e.finish(job, false)
	e.logger.Warn("settlement failed after final attempt", "txn_ref", job.TxnRef, "attempts", next)
	if reverse {
		e.reverse(ctx, job)
	}
}

func (e *Engine) requeue(job *Job, retryCount int) {
	ctx := context.Background()
	entry, err := e.ledger.OpenShadowEntry(ctx, job.RecipientAccountID, job.TxnRef, job.Amount)
	if err != nil {
		e.logger.Error("retry could not reopen shadow entry, dropping job", "txn_ref", job.TxnRef, "error", err)
		e.finish(job, false)
		return
	}
	e.sink.Emit(domain.ShadowUpdated{ShadowEntry: *entry, UserID: e.ownerOf(ctx, job.RecipientAccountID)})

	e.mu.Lock()
	job.RetryCount = retryCount
	job.State = JobQueued
	e.queue = append(e.queue, job)
	e.mu.Unlock()
}

// reverse returns the funds to the sender and removes the recipient's failed entry.
func (e *Engine) reverse(ctx context.Context, job *Job) {
	if job.SenderAccountID == "" {
		return
	}
	account, err := e.ledger.Credit(ctx, job.SenderAccountID, job.Amount)
	if err != nil {
		e.logger.Error("reversal credit failed", "txn_ref", job.TxnRef, "error", err)
		return
	}
	tx, err := e.ledger.AppendTransaction(ctx, domain.Transaction{
		TxnRef:    job.TxnRef,
		Type:      domain.TransactionCredit,
		Amount:    job.Amount,
		ToAccount: account.AccountNumber,
		FromBank:  job.FromBank,
		Status:    domain.TransactionSuccess,
		Note:      ReversalNote,
		UserID:    job.SenderUserID,
	})
	e.sink.Emit(domain.BalanceUpdated{AccountID: account.ID, UserID: job.SenderUserID, Balance: account.Balance})
	if err != nil {
		e.logger.Error("reversal transaction not recorded", "txn_ref", job.TxnRef, "error", err)
	} else {
		e.sink.Emit(domain.NewTransaction{Transaction: tx})
	}
	if err := e.ledger.DiscardShadowEntry(ctx, job.TxnRef); err != nil {
		e.logger.Warn("failed shadow entry not discarded", "txn_ref", job.TxnRef, "error", err)
	}
}

func (e *Engine) finish(job *Job, cleared bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.jobs, job.TxnRef)
	if cleared {
		e.cleared++
	} else {
		e.failedFinal++
	}
}

func (e *Engine) ownerOf(ctx context.Context, accountID string) string {
	owner, err := e.ledger.OwnerOf(ctx, accountID)
	if err != nil {
		e.logger.Warn("account owner lookup failed", "account_id", accountID, "error", err)
	}
	return owner
}

func (e *Engine) draw() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.Float64()
}

// SimulateBankOutage forces bankID DOWN for d, then restores the status it had before
// the first overlapping outage began.
func (e *Engine) SimulateBankOutage(ctx context.Context, bankID string, d time.Duration) error {
	if d <= 0 {
		return domain.ErrInvalidDuration
	}
	bank, err := e.banks.Get(ctx, bankID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return ErrEngineStopped
	}
	original := bank.Status
	if prev, ok := e.outages[bankID]; ok {
		original = prev.original
		e.timers.Cancel(prev.timer)
	}
	o := &outage{original: original}
	e.outages[bankID] = o
	e.mu.Unlock()

	if _, err := e.banks.SetStatus(ctx, bankID, domain.BankDown); err != nil {
		e.mu.Lock()
		if e.outages[bankID] == o {
			delete(e.outages, bankID)
		}
		e.mu.Unlock()
		return fmt.Errorf("force %s down: %w", bankID, err)
	}

	// The restore timer starts only once the bank is DOWN so it cannot fire first.
	e.mu.Lock()
	scheduled := true
	if e.outages[bankID] == o {
		o.timer, scheduled = e.timers.AfterFunc(d, true, func() { e.endOutage(bankID, o) })
	}
	e.mu.Unlock()
	if !scheduled {
		e.endOutage(bankID, o)
		return ErrEngineStopped
	}

	e.logger.Info("bank outage simulated", "bank_id", bankID, "duration", d, "restore_status", original)
	return nil
}

func (e *Engine) endOutage(bankID string, o *outage) {
	e.mu.Lock()
	if e.outages[bankID] != o {
		e.mu.Unlock()
		return
	}
	delete(e.outages, bankID)
	e.mu.Unlock()

	if _, err := e.banks.SetStatus(context.Background(), bankID, o.original); err != nil {
		e.logger.Error("bank outage restore failed", "bank_id", bankID, "error", err)
		return
	}
	e.logger.Info("bank outage resolved", "bank_id", bankID, "status", o.original)
}

// OutageActive reports whether a simulated outage currently overrides bankID.
func (e *Engine) OutageActive(bankID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.outages[bankID]
	return ok
}

// SimulateSystemIssue triples the base delay and doubles the failure rate (capped at 0.8)
// for every bank during d.
func (e *Engine) SimulateSystemIssue(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return domain.ErrInvalidDuration
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return ErrEngineStopped
	}

	if e.issue == nil {
		e.issue = &systemIssue{baseDelay: e.cfg.BaseDelay, failureRate: e.cfg.FailureRate}
		e.cfg.BaseDelay *= 3
		e.cfg.FailureRate = min(e.cfg.FailureRate*2, maxFailureRate)
	} else {
		e.timers.Cancel(e.issue.timer)
	}
	issue := e.issue
	issue.timer, _ = e.timers.AfterFunc(d, true, func() { e.endSystemIssue(issue) })
	e.logger.Info("system issue simulated", "duration", d, "base_delay", e.cfg.BaseDelay, "failure_rate", e.cfg.FailureRate)
	return nil
}

func (e *Engine) endSystemIssue(issue *systemIssue) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.issue != issue {
		return
	}
	e.cfg.BaseDelay = issue.baseDelay
	e.cfg.FailureRate = issue.failureRate
	e.issue = nil
	e.logger.Info("system issue resolved", "base_delay", e.cfg.BaseDelay, "failure_rate", e.cfg.FailureRate)
}

// Config returns the effective configuration, including any active system issue.
func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// UpdateConfig applies a partial update. Changes to the degraded fields during a system
// issue become the values restored when the issue ends.
func (e *Engine) UpdateConfig(u ConfigUpdate) (Config, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.cfg.apply(u)
	if err := next.validate(); err != nil {
		return e.cfg, err
	}
	if e.issue != nil {
		if u.BaseDelay != nil {
			e.issue.baseDelay = *u.BaseDelay
			next.BaseDelay = *u.BaseDelay * 3
		}
		if u.FailureRate != nil {
			e.issue.failureRate = *u.FailureRate
			next.FailureRate = min(*u.FailureRate*2, maxFailureRate)
		}
	}
	e.cfg = next

	select {
	case e.reconfigured <- struct{}{}:
	default:
	}
	e.logger.Info("simulation config updated", "base_delay", next.BaseDelay, "retry_attempts", next.RetryAttempts, "tick_interval", next.TickInterval)
	return next, nil
}

// Stats returns counters and the effective config.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	outages := make([]string, 0, len(e.outages))
	for id := range e.outages {
		outages = append(outages, id)
	}
	sort.Strings(outages)

	return Stats{
		PendingCount:      len(e.jobs),
		QueueLength:       len(e.queue),
		InFlight:          len(e.jobs) - len(e.queue),
		Cleared:           e.cleared,
		FailedFinal:       e.failedFinal,
		Retries:           e.retries,
		SystemIssueActive: e.issue != nil,
		Outages:           outages,
		Config:            e.cfg,
	}
}

// Pending returns copies of every job that has not reached a terminal state.
func (e *Engine) Pending() []Job {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Job, 0, len(e.jobs))
	for _, j := range e.jobs {
		out = append(out, *j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].EnqueuedAt.Before(out[k].EnqueuedAt) })
	return out
}

// TakeObservations returns per-bank attempt counts gathered since the previous call.
func (e *Engine) TakeObservations() map[string]Observation {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]Observation, len(e.observations))
	for bankID, o := range e.observations {
		out[bankID] = *o
	}
	e.observations = make(map[string]*Observation)
	return out
}
