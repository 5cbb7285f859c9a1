package main

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"telegram-ai-consult/internal/config"
	payAdapters "telegram-ai-consult/internal/infra/adapters/payment"
)

// signCmd prints a correctly signed result notice, for replaying a gateway
// callback against a running server by hand.
func signCmd(flags *rootFlags) *cobra.Command {
	var (
		invoiceID int64
		outSum    string
		baseURL   string
	)
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Print a signed Robokassa result notice for an invoice",
		RunE: func(cmd *cobra.Command, args []string) error {
			if invoiceID <= 0 || strings.TrimSpace(outSum) == "" {
				return fmt.Errorf("--inv and --sum are required")
			}
			cfg, err := config.Load(flags.configPath, flags.dev)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), signedNoticeURL(cfg, baseURL, invoiceID, outSum))
			return nil
		},
	}
	cmd.Flags().Int64Var(&invoiceID, "inv", 0, "invoice id (InvId)")
	cmd.Flags().StringVar(&outSum, "sum", "", "amount exactly as the gateway would send it (OutSum)")
	cmd.Flags().StringVar(&baseURL, "url", "http://localhost:8080", "server base URL")
	return cmd
}

func signedNoticeURL(cfg *config.Config, baseURL string, invoiceID int64, outSum string) string {
	q := url.Values{}
	q.Set("OutSum", outSum)
	q.Set("InvId", strconv.FormatInt(invoiceID, 10))
	q.Set("SignatureValue", payAdapters.CallbackSignature(outSum, invoiceID, cfg.Payment.Robokassa.PasswordIn))
	return strings.TrimRight(baseURL, "/") + cfg.Payment.Robokassa.ResultPath + "?" + q.Encode()
}
