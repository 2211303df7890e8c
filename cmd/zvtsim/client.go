package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/payterm/zvtsim/internal/capture"
	"github.com/payterm/zvtsim/internal/client"
	"github.com/payterm/zvtsim/internal/config"
	"github.com/payterm/zvtsim/internal/logging"
	"github.com/payterm/zvtsim/internal/zvt/response"
)

type clientFlags struct {
	configPath   string
	host         string
	port         int
	transport    string
	serialDevice string
	baudRate     int
	password     string
	logLevel     string
	tracePath    string
	// skipRegister runs the operation on an unregistered session.
	skipRegister bool
}

func newClientCmd() *cobra.Command {
	flags := &clientFlags{}

	cmd := &cobra.Command{
		Use:   "client",
		Short: "ECR-side terminal operations",
		Long: `Drive a payment terminal (real or simulated) as the ECR.

Each subcommand opens a connection, registers with the terminal, runs
one operation and prints the structured result. Connection settings come
from the config file and can be overridden per invocation with flags.`,
		Example: `  # Authorize 12.50 EUR against a local simulator
  zvtsim client authorize --amount 1250

  # Reverse receipt 17 on a terminal at 192.168.1.50
  zvtsim client reversal --host 192.168.1.50 --receipt 17

  # Run the end-of-day batch over a serial line
  zvtsim client end-of-day --transport serial --serial-device /dev/ttyUSB0`,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "client config file (YAML)")
	pf.StringVar(&flags.host, "host", "", "terminal host (overrides config)")
	pf.IntVar(&flags.port, "port", 0, "terminal port (overrides config)")
	pf.StringVar(&flags.transport, "transport", "", "transport: tcp or serial")
	pf.StringVar(&flags.serialDevice, "serial-device", "", "serial device path")
	pf.IntVar(&flags.baudRate, "baud-rate", 0, "serial baud rate")
	pf.StringVar(&flags.password, "password", "", "terminal password (6 digits)")
	pf.StringVar(&flags.logLevel, "log-level", "", "silent, error, info, verbose or debug")
	pf.StringVar(&flags.tracePath, "trace-pcap", "", "write wire traffic to a pcap file")
	pf.BoolVar(&flags.skipRegister, "skip-register", false, "do not register before the operation")

	var amount int64
	var receipt uint32

	addTransactionCmd := func(use, short string, run func(*client.Engine) (*response.TransactionResult, error)) {
		sub := &cobra.Command{
			Use:   use,
			Short: short,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withEngine(flags, func(e *client.Engine) error {
					result, err := run(e)
					if err != nil {
						return err
					}
					printResult(result)
					return nil
				})
			},
		}
		sub.Flags().Int64Var(&amount, "amount", 0, "amount in cents")
		sub.Flags().Uint32Var(&receipt, "receipt", 0, "receipt number of the referenced transaction")
		cmd.AddCommand(sub)
	}

	addTransactionCmd("register", "Register with the terminal", func(e *client.Engine) (*response.TransactionResult, error) {
		// withEngine already registered unless --skip-register was given.
		if flags.skipRegister {
			return e.Register()
		}
		return &response.TransactionResult{Success: true, ResultMessage: "registered"}, nil
	})
	addTransactionCmd("authorize", "Run a payment authorization", func(e *client.Engine) (*response.TransactionResult, error) {
		return e.Authorize(amount)
	})
	addTransactionCmd("refund", "Refund an amount", func(e *client.Engine) (*response.TransactionResult, error) {
		return e.Refund(amount)
	})
	addTransactionCmd("reversal", "Reverse a transaction by receipt number", func(e *client.Engine) (*response.TransactionResult, error) {
		return e.Reversal(receipt)
	})
	addTransactionCmd("preauth", "Reserve an amount (pre-authorization)", func(e *client.Engine) (*response.TransactionResult, error) {
		return e.PreAuthorize(amount)
	})
	addTransactionCmd("booktotal", "Book the final amount of a pre-authorization", func(e *client.Engine) (*response.TransactionResult, error) {
		return e.BookTotal(receipt, amount)
	})
	addTransactionCmd("partial-reversal", "Release part of a pre-authorized amount", func(e *client.Engine) (*response.TransactionResult, error) {
		return e.PartialReversal(receipt, amount)
	})
	addTransactionCmd("repeat-receipt", "Resend the last receipt", func(e *client.Engine) (*response.TransactionResult, error) {
		return e.RepeatReceipt()
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "end-of-day",
		Short: "Run the end-of-day batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(flags, func(e *client.Engine) error {
				result, err := e.EndOfDay()
				if err != nil {
					return err
				}
				fmt.Printf("success: %v (%s)\n", result.Success, result.ResultMessage)
				fmt.Printf("batch total: %d.%02d\n", result.TotalCents/100, result.TotalCents%100)
				for _, line := range result.ReceiptLines {
					fmt.Printf("  | %s\n", line)
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "diagnosis",
		Short: "Probe the terminal's host connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(flags, func(e *client.Engine) error {
				result, err := e.Diagnosis()
				if err != nil {
					return err
				}
				fmt.Printf("success: %v (%s)\n", result.Success, result.ResultMessage)
				fmt.Printf("terminal: %s  date: %s  time: %s\n", result.TerminalID, result.Date, result.Time)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Query the terminal status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(flags, func(e *client.Engine) error {
				result, err := e.StatusEnquiry()
				if err != nil {
					return err
				}
				fmt.Printf("success: %v (%s)  terminal: %s\n", result.Success, result.ResultMessage, result.TerminalID)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "logoff",
		Short: "Log off from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(flags, func(e *client.Engine) error {
				if err := e.LogOff(); err != nil {
					return err
				}
				fmt.Println("logged off")
				return nil
			})
		},
	})

	return cmd
}

// withEngine loads the configuration, connects, registers (unless
// suppressed), runs op and tears the session down.
func withEngine(flags *clientFlags, op func(*client.Engine) error) error {
	cfg, err := loadClientConfig(flags)
	if err != nil {
		return err
	}

	level := logging.LogLevelInfo
	if cfg.LogLevel != "" {
		if level, err = logging.ParseLevel(cfg.LogLevel); err != nil {
			return err
		}
	}
	logger, err := logging.NewLogger(level, cfg.LogFile)
	if err != nil {
		return err
	}

	var tracer *capture.Tracer
	if cfg.TracePath != "" {
		if tracer, err = capture.NewTracer(cfg.TracePath); err != nil {
			return err
		}
		defer tracer.Close()
	}

	e := client.NewEngine(cfg,
		client.WithLogger(logger),
		client.WithTracer(tracer),
		client.WithCallbacks(client.Callbacks{
			OnIntermediateStatus: func(s response.IntermediateStatus) {
				fmt.Fprintf(os.Stderr, "terminal: %s\n", s.Message)
			},
			OnPrintLine: func(l response.PrintLine) {
				fmt.Printf("  | %s\n", l.Text)
			},
		}),
	)

	if err := e.Connect(context.Background()); err != nil {
		return err
	}
	defer e.Disconnect()

	if !flags.skipRegister {
		if _, err := e.Register(); err != nil {
			return fmt.Errorf("register: %w", err)
		}
	}
	return op(e)
}

func loadClientConfig(flags *clientFlags) (config.ClientConfig, error) {
	cfg, err := config.LoadClient(flags.configPath)
	if err != nil {
		return cfg, err
	}

	if flags.host != "" {
		cfg.Host = flags.host
	}
	if flags.port != 0 {
		cfg.Port = flags.port
	}
	if flags.transport != "" {
		cfg.Transport = config.TransportType(flags.transport)
	}
	if flags.serialDevice != "" {
		cfg.SerialDevice = flags.serialDevice
	}
	if flags.baudRate != 0 {
		cfg.BaudRate = flags.baudRate
	}
	if flags.password != "" {
		cfg.Password = flags.password
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	if flags.tracePath != "" {
		cfg.TracePath = flags.tracePath
	}
	return cfg, cfg.Validate()
}

func printResult(result *response.TransactionResult) {
	fmt.Printf("success: %v (%s)\n", result.Success, result.ResultMessage)
	if result.AmountCents > 0 {
		fmt.Printf("amount: %d.%02d\n", result.AmountCents/100, result.AmountCents%100)
	}
	if result.TraceNumber > 0 {
		fmt.Printf("trace: %06d  receipt: %04d\n", result.TraceNumber, result.ReceiptNumber)
	}
	if result.TerminalID != "" {
		fmt.Printf("terminal: %s\n", result.TerminalID)
	}
	if result.Card != nil {
		fmt.Printf("card: %s %s (expiry %s)\n", result.Card.CardName, result.Card.MaskedPAN, result.Card.ExpiryDate)
	}
	for _, line := range result.ReceiptLines {
		fmt.Printf("  | %s\n", line)
	}
}
