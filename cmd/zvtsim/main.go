package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "zvtsim",
		Short: "ZVT payment terminal client and simulator",
		Long: `zvtsim speaks the ZVT point-of-sale protocol from both ends: as the
ECR-side client driving a payment terminal, and as a terminal simulator
test rigs can run transactions against.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newClientCmd())
	rootCmd.AddCommand(newSimulatorCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
