// File: cmd/app/main.go
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set via -ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

type rootFlags struct {
	configPath string
	dev        bool
}

func main() {
	flags := &rootFlags{}
	rootCmd := &cobra.Command{
		Use:           "consult",
		Short:         "Paid time-boxed AI consultation bot with Robokassa payments",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "config.yaml", "path to YAML config file")
	rootCmd.PersistentFlags().BoolVar(&flags.dev, "dev", false, "developer mode: console logs, unredacted values")

	rootCmd.AddCommand(serveCmd(flags))
	rootCmd.AddCommand(signCmd(flags))
	rootCmd.AddCommand(statusCmd(flags))
	rootCmd.AddCommand(tokenCmd(flags))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
