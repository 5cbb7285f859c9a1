package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"telegram-ai-consult/internal/config"
	"telegram-ai-consult/internal/infra/logging"
	"telegram-ai-consult/internal/usecase"
)

func statusCmd(flags *rootFlags) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a user's entitlement and payment history",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(userID) == "" {
				return fmt.Errorf("--user is required")
			}
			cfg, err := config.Load(flags.configPath, flags.dev)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			return runStatus(ctx, cmd.OutOrStdout(), cfg, userID)
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "user id (Telegram id)")
	return cmd
}

func runStatus(ctx context.Context, out io.Writer, cfg *config.Config, userID string) error {
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	st, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	catalog, err := buildCatalog(cfg)
	if err != nil {
		return err
	}
	payUC, err := buildPayments(cfg, st, catalog, logger)
	if err != nil {
		return err
	}
	return printStatus(ctx, out, payUC, userID, time.Now())
}

func printStatus(ctx context.Context, out io.Writer, payUC usecase.PaymentUseCase, userID string, now time.Time) error {
	ent, err := payUC.Entitlement(ctx, userID)
	if err != nil {
		return err
	}
	history, err := payUC.History(ctx, userID)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "User:        %s\n", userID)
	if ent.Active {
		fmt.Fprintf(out, "Entitlement: ACTIVE until %s (%s left)\n",
			ent.ExpiresAt.Format(time.RFC3339), ent.Remaining(now).Round(time.Second))
	} else {
		fmt.Fprintln(out, "Entitlement: none")
	}
	if len(history) == 0 {
		fmt.Fprintln(out, "No payments.")
		return nil
	}

	fmt.Fprintln(out)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CONFIRMED\tMETHOD\tINVOICE\tAMOUNT\tDURATION\tLABEL")
	for _, r := range history {
		inv := "-"
		if r.InvoiceID != 0 {
			inv = fmt.Sprint(r.InvoiceID)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ConfirmedAt.Format(time.RFC3339), r.Method, inv, r.Amount.StringFixed(2), r.Duration, r.Label)
	}
	return tw.Flush()
}
