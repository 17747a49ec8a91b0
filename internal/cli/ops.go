package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/pamilerinsimon03/WemaTrust/internal/api"
	"github.com/pamilerinsimon03/WemaTrust/internal/domain"
	"github.com/pamilerinsimon03/WemaTrust/pkg/simclient"
	"github.com/spf13/cobra"
)

const defaultOpsSubject = "simctl"

type opsFlags struct {
	server  string
	secret  string
	subject string
}

func (f *opsFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.server, "server", envOr("WEMATRUST_URL", "http://localhost:8080"), "Simulator base URL")
	cmd.Flags().StringVar(&f.secret, "secret", os.Getenv("OPS_JWT_SECRET"), "Secret used to sign the ops token")
	cmd.Flags().StringVar(&f.subject, "subject", defaultOpsSubject, "Operator name recorded in the token")
}

// client signs a short-lived ops token when a secret is set; otherwise requests go unauthenticated.
func (f *opsFlags) client() (*simclient.Client, error) {
	token := ""
	if f.secret != "" {
		var err error
		token, err = api.IssueOpsToken(f.secret, f.subject, 5*time.Minute)
		if err != nil {
			return nil, fmt.Errorf("sign ops token: %w", err)
		}
	}
	return simclient.NewClient(f.server, token), nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newOutageCmd() *cobra.Command {
	var (
		flags    opsFlags
		duration time.Duration
	)
	cmd := &cobra.Command{
		Use:   "outage [bank-id]",
		Short: "Force a partner bank DOWN for a while",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}
			if err := c.TriggerOutage(cmd.Context(), args[0], duration); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "outage started: %s down for %s\n", args[0], duration)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().DurationVarP(&duration, "duration", "d", 30*time.Second, "Outage duration")
	return cmd
}

func newSystemIssueCmd() *cobra.Command {
	var (
		flags    opsFlags
		duration time.Duration
	)
	cmd := &cobra.Command{
		Use:   "system-issue",
		Short: "Raise the settlement failure rate for a while",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}
			if err := c.TriggerSystemIssue(cmd.Context(), duration); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "system issue started for %s\n", duration)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().DurationVarP(&duration, "duration", "d", 30*time.Second, "System issue duration")
	return cmd
}

func newBankStatusCmd() *cobra.Command {
	var flags opsFlags
	cmd := &cobra.Command{
		Use:   "bank-status [bank-id] [UP|SLOW|DOWN]",
		Short: "Override a partner bank's status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := domain.ParseBankStatus(args[1])
			if err != nil {
				return err
			}
			c, err := flags.client()
			if err != nil {
				return err
			}
			bank, err := c.SetBankStatus(cmd.Context(), args[0], status)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s) is now %s\n", bank.ID, bank.Name, bank.Status)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newBanksCmd() *cobra.Command {
	var flags opsFlags
	cmd := &cobra.Command{
		Use:   "banks",
		Short: "List partner banks and their health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}
			banks, err := c.ListBanks(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tSCORE\tSUCCESS RATE")
			for _, b := range banks {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%.2f\n", b.ID, b.Name, b.Status, b.Status.HealthScore(), b.HistoricalSuccessRate)
			}
			return tw.Flush()
		},
	}
	flags.register(cmd)
	return cmd
}

func newTokenCmd() *cobra.Command {
	var (
		secret  string
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a signed ops token for use with curl",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return fmt.Errorf("--secret or OPS_JWT_SECRET is required")
			}
			token, err := api.IssueOpsToken(secret, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("OPS_JWT_SECRET"), "Signing secret")
	cmd.Flags().StringVar(&subject, "subject", defaultOpsSubject, "Operator name")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	return cmd
}
