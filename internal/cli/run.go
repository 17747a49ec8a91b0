package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"time"

	"github.com/pamilerinsimon03/WemaTrust/internal/domain"
	"github.com/pamilerinsimon03/WemaTrust/internal/engine"
	"github.com/pamilerinsimon03/WemaTrust/internal/network"
	"github.com/pamilerinsimon03/WemaTrust/internal/notify"
	"github.com/pamilerinsimon03/WemaTrust/internal/seed"
	"github.com/spf13/cobra"
)

type runOptions struct {
	from        string
	to          string
	amount      int64
	note        string
	bank        string
	seedFile    string
	baseDelay   time.Duration
	retryDelay  time.Duration
	retries     int
	failureRate float64
	reverse     bool
	randSeed    int64
	timeout     time.Duration
	verbose     bool
}

func newRunCmd() *cobra.Command {
	opts := runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Submit one transfer to an in-process network and follow it to settlement",
		Long: `Run builds a settlement network from the seed fixture, submits a single
transfer and prints every event for it until the recipient's shadow entry clears or fails.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransfer(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.from, "from", "user1", "Sender user id")
	cmd.Flags().StringVar(&opts.to, "to", "9876543210", "Recipient account number")
	cmd.Flags().Int64Var(&opts.amount, "amount", 250000, "Amount in kobo")
	cmd.Flags().StringVar(&opts.note, "note", "simctl transfer", "Transfer narration")
	cmd.Flags().StringVar(&opts.bank, "bank", "", "Partner bank id (defaults to the recipient's bank)")
	cmd.Flags().StringVar(&opts.seedFile, "seed-file", "", "Seed fixture YAML (defaults to the embedded fixture)")
	cmd.Flags().DurationVar(&opts.baseDelay, "base-delay", 500*time.Millisecond, "Base settlement delay")
	cmd.Flags().DurationVar(&opts.retryDelay, "retry-delay", 250*time.Millisecond, "Delay before a retry")
	cmd.Flags().IntVar(&opts.retries, "retries", engine.DefaultRetryAttempts, "Retry attempts after the first failure")
	cmd.Flags().Float64Var(&opts.failureRate, "failure-rate", engine.DefaultFailureRate, "Failure rate scale in [0,1]")
	cmd.Flags().BoolVar(&opts.reverse, "reverse", false, "Refund the sender when settlement finally fails")
	cmd.Flags().Int64Var(&opts.randSeed, "rand-seed", 0, "Seed for the settlement draws (0 uses the clock)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", time.Minute, "Give up waiting after this long")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log engine activity to stderr")
	return cmd
}

func runTransfer(ctx context.Context, out io.Writer, opts runOptions) error {
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if opts.verbose {
		logger = slog.Default()
	}
	fixture, err := seed.Load(opts.seedFile)
	if err != nil {
		return err
	}
	randSeed := opts.randSeed
	if randSeed == 0 {
		randSeed = time.Now().UnixNano()
	}

	cfg := engine.DefaultConfig()
	cfg.BaseDelay = opts.baseDelay
	cfg.JitterWindow = opts.baseDelay / 2
	cfg.RetryDelay = opts.retryDelay
	cfg.RetryAttempts = opts.retries
	cfg.FailureRate = opts.failureRate
	cfg.ReverseOnFinalFailure = opts.reverse
	cfg.TickInterval = 10 * time.Millisecond

	sim, err := network.Build(ctx, network.Options{
		Fixture: fixture,
		Engine:  cfg,
		Rand:    rand.New(rand.NewSource(randSeed)),
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	defer sim.Close()

	sub := sim.Bus.Subscribe()
	defer sub.Close()

	if err := sim.Start(ctx); err != nil {
		return err
	}

	res, err := sim.Service.SubmitTransfer(ctx, domain.TransferRequest{
		SenderUserID: opts.from,
		ToAccount:    opts.to,
		Amount:       opts.amount,
		Note:         opts.note,
		BankID:       opts.bank,
	})
	if err != nil {
		return fmt.Errorf("submit transfer: %w", err)
	}
	fmt.Fprintf(out, "submitted %s amount=%s sender_balance=%s\n", res.TxnRef, notify.FormatNaira(opts.amount), notify.FormatNaira(res.SenderBalance))

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("transfer %s did not settle: %w", res.TxnRef, ctx.Err())
		case env, ok := <-sub.C():
			if !ok {
				return fmt.Errorf("event bus closed before %s settled", res.TxnRef)
			}
			if ref := domain.EventTxnRef(env.Data); ref != "" && ref != res.TxnRef {
				continue
			}
			fmt.Fprintf(out, "#%d %s %s\n", env.Seq, env.Type, describe(env.Data))

			switch ev := env.Data.(type) {
			case domain.ShadowUpdated:
				if ev.Status == domain.ShadowCleared {
					return summarize(ctx, out, sim, res.TxnRef, ev.Status)
				}
				if ev.Status != domain.ShadowFailed {
					continue
				}
				// Every attempt emits one failed update; the last one is final.
				failures++
				if failures > cfg.RetryAttempts && !cfg.ReverseOnFinalFailure {
					return summarize(ctx, out, sim, res.TxnRef, ev.Status)
				}
			case domain.NewTransaction:
				if ev.Note == engine.ReversalNote {
					return summarize(ctx, out, sim, res.TxnRef, domain.ShadowFailed)
				}
			}
		}
	}
}

func describe(event domain.Event) string {
	switch ev := event.(type) {
	case domain.ShadowCreated:
		return fmt.Sprintf("account=%s amount=%s status=%s", ev.AccountID, notify.FormatNaira(ev.Amount), ev.Status)
	case domain.ShadowUpdated:
		return fmt.Sprintf("account=%s amount=%s status=%s", ev.AccountID, notify.FormatNaira(ev.Amount), ev.Status)
	case domain.BalanceUpdated:
		return fmt.Sprintf("account=%s balance=%s", ev.AccountID, notify.FormatNaira(ev.Balance))
	case domain.NewTransaction:
		return fmt.Sprintf("user=%s type=%s amount=%s status=%s note=%q", ev.UserID, ev.Type, notify.FormatNaira(ev.Amount), ev.Status, ev.Note)
	case domain.PartnerStatusChanged:
		return fmt.Sprintf("bank=%s %s->%s", ev.ID, ev.Previous, ev.Status)
	default:
		return ""
	}
}

func summarize(ctx context.Context, out io.Writer, sim *network.Network, txnRef string, outcome domain.ShadowStatus) error {
	stats := sim.Engine.Stats()
	fmt.Fprintf(out, "%s %s after %d retries\n", txnRef, outcome, stats.Retries)
	accounts, err := sim.Repository.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}
	for _, acc := range accounts {
		fmt.Fprintf(out, "  %s %s balance=%s pending=%s\n", acc.ID, acc.Name, notify.FormatNaira(acc.Balance), notify.FormatNaira(acc.PendingTotal()))
	}
	return nil
}
