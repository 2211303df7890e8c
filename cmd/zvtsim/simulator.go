package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/payterm/zvtsim/internal/capture"
	"github.com/payterm/zvtsim/internal/config"
	"github.com/payterm/zvtsim/internal/logging"
	"github.com/payterm/zvtsim/internal/simulator"
)

type simulatorFlags struct {
	configPath  string
	listenIP    string
	listenPort  int
	controlAddr string
	logLevel    string
	tracePath   string
}

func newSimulatorCmd() *cobra.Command {
	flags := &simulatorFlags{}

	cmd := &cobra.Command{
		Use:   "simulator",
		Short: "Run the terminal simulator",
		Long: `Run a ZVT payment terminal simulator that ECR clients can connect to.

The simulator answers the full command set (registration, payments,
reversals, end of day, diagnosis) with realistic response sequences and
keeps an in-memory batch of transactions. Error and delay injection is
set in the config file or changed at runtime through the HTTP control
plane when --control-addr is given.

Press Ctrl+C to stop the simulator gracefully.`,
		Example: `  # Listen on the standard ZVT port
  zvtsim simulator

  # Enable the HTTP control plane
  zvtsim simulator --control-addr 127.0.0.1:8080

  # Record all wire traffic
  zvtsim simulator --trace-pcap terminal.pcap`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulator(flags)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.configPath, "config", "c", "", "simulator config file (YAML)")
	f.StringVar(&flags.listenIP, "listen-ip", "", "listen address (overrides config)")
	f.IntVar(&flags.listenPort, "listen-port", 0, "listen port (overrides config)")
	f.StringVar(&flags.controlAddr, "control-addr", "", "HTTP control plane bind address")
	f.StringVar(&flags.logLevel, "log-level", "", "silent, error, info, verbose or debug")
	f.StringVar(&flags.tracePath, "trace-pcap", "", "write wire traffic to a pcap file")

	return cmd
}

func runSimulator(flags *simulatorFlags) error {
	cfg, err := config.LoadSimulator(flags.configPath)
	if err != nil {
		return err
	}
	if flags.listenIP != "" {
		cfg.ListenIP = flags.listenIP
	}
	if flags.listenPort != 0 {
		cfg.ListenPort = flags.listenPort
	}
	if flags.controlAddr != "" {
		cfg.ControlAddr = flags.controlAddr
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	if flags.tracePath != "" {
		cfg.TracePath = flags.tracePath
	}
	if err := cfg.Validate(); err != nil {
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
	}

	engine := simulator.NewEngine(cfg,
		simulator.WithLogger(logger),
		simulator.WithTracer(tracer),
	)
	if err := engine.Start(); err != nil {
		return err
	}
	fmt.Printf("terminal simulator listening on %s\n", engine.Addr())
	if addr := engine.ControlAddr(); addr != "" {
		fmt.Printf("control plane on http://%s\n", addr)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	fmt.Println("shutting down")
	return engine.Stop()
}
