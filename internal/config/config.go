package config

// Configuration loading and validation for zvtsim

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TransportType selects how the client reaches the terminal.
type TransportType string

const (
	TransportTCP    TransportType = "tcp"
	TransportSerial TransportType = "serial"
)

// ClientConfig configures the ECR-side engine.
type ClientConfig struct {
	Transport TransportType `yaml:"transport" json:"transport"`

	// TCP transport
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`

	// Serial transport
	SerialDevice string `yaml:"serial_device,omitempty" json:"serial_device"`
	BaudRate     int    `yaml:"baud_rate,omitempty" json:"baud_rate"`

	ConnectTimeoutMs int `yaml:"connect_timeout_ms" json:"connect_timeout_ms"`
	ReadTimeoutMs    int `yaml:"read_timeout_ms" json:"read_timeout_ms"`

	Password    string `yaml:"password" json:"password"`
	Currency    int    `yaml:"currency" json:"currency"`
	ConfigByte  byte   `yaml:"config_byte" json:"config_byte"`
	AutoAck     bool   `yaml:"auto_ack" json:"auto_ack"`
	CodePage    string `yaml:"code_page,omitempty" json:"code_page"` // "cp437" (default) or "cp1252"
	TracePath   string `yaml:"trace_pcap,omitempty" json:"trace_pcap"`
	LogLevel    string `yaml:"log_level,omitempty" json:"log_level"`
	LogFile     string `yaml:"log_file,omitempty" json:"log_file"`
	PaymentType byte   `yaml:"payment_type" json:"payment_type"`
}

// CardConfig is the simulated card the terminal reports.
type CardConfig struct {
	PAN        string `yaml:"pan" json:"pan"`
	CardType   byte   `yaml:"card_type" json:"card_type"`
	CardName   string `yaml:"card_name" json:"card_name"`
	ExpiryYYMM string `yaml:"expiry_yymm" json:"expiry_yymm"`
	AIDHex     string `yaml:"aid_hex,omitempty" json:"aid_hex"`
}

// FaultsConfig is the simulator's injectable error/delay behavior.
type FaultsConfig struct {
	// ErrorCode, when non-zero, is returned instead of a successful
	// Status Information on transaction commands.
	ErrorCode byte `yaml:"error_code" json:"error_code"`
	// ErrorEveryN injects the error on every Nth transaction only;
	// zero with a non-zero ErrorCode means every transaction.
	ErrorEveryN int `yaml:"error_every_n" json:"error_every_n"`
	// ResponseDelayMs sleeps before every outgoing packet.
	ResponseDelayMs int `yaml:"response_delay_ms" json:"response_delay_ms"`
	// DropCompletion suppresses the final Completion packet so client
	// read-loop timeout handling can be exercised.
	DropCompletion bool `yaml:"drop_completion" json:"drop_completion"`
	// CloseAfterAck tears the connection down right after the ACK.
	CloseAfterAck bool `yaml:"close_after_ack" json:"close_after_ack"`
}

// SimulatorConfig configures the terminal simulator.
type SimulatorConfig struct {
	ListenIP   string `yaml:"listen_ip" json:"listen_ip"`
	ListenPort int    `yaml:"listen_port" json:"listen_port"`

	// ControlAddr is the HTTP control plane bind address; empty
	// disables the control API.
	ControlAddr string `yaml:"control_addr,omitempty" json:"control_addr"`

	TerminalID string       `yaml:"terminal_id" json:"terminal_id"`
	VuNumber   string       `yaml:"vu_number" json:"vu_number"`
	Card       CardConfig   `yaml:"card" json:"card"`
	Faults     FaultsConfig `yaml:"faults" json:"faults"`

	TracePath string `yaml:"trace_pcap,omitempty" json:"trace_pcap"`
	LogLevel  string `yaml:"log_level,omitempty" json:"log_level"`
	LogFile   string `yaml:"log_file,omitempty" json:"log_file"`
}

// DefaultClient returns a client config with usable defaults.
func DefaultClient() ClientConfig {
	return ClientConfig{
		Transport:        TransportTCP,
		Host:             "127.0.0.1",
		Port:             20007,
		BaudRate:         9600,
		ConnectTimeoutMs: 5000,
		ReadTimeoutMs:    3000,
		Password:         "000000",
		Currency:         978,
		ConfigByte:       0x8E, // intermediate statuses, ECR receipts, print lines
		AutoAck:          true,
		CodePage:         "cp437",
		PaymentType:      0x40,
	}
}

// DefaultSimulator returns a simulator config with usable defaults.
func DefaultSimulator() SimulatorConfig {
	return SimulatorConfig{
		ListenIP:   "0.0.0.0",
		ListenPort: 20007,
		TerminalID: "52520001",
		VuNumber:   "000000000052520",
		Card: CardConfig{
			PAN:        "6763890000001230",
			CardType:   0x05,
			CardName:   "girocard",
			ExpiryYYMM: "2912",
			AIDHex:     "A000000359101002",
		},
	}
}

// LoadClient reads a client config file, layering it over the defaults.
func LoadClient(path string) (ClientConfig, error) {
	cfg := DefaultClient()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadSimulator reads a simulator config file, layering it over the
// defaults.
func LoadSimulator(path string) (SimulatorConfig, error) {
	cfg := DefaultSimulator()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the client config for inconsistencies.
func (c ClientConfig) Validate() error {
	switch c.Transport {
	case TransportTCP:
		if c.Host == "" {
			return fmt.Errorf("tcp transport requires a host")
		}
		if c.Port <= 0 || c.Port > 65535 {
			return fmt.Errorf("invalid port %d", c.Port)
		}
	case TransportSerial:
		if c.SerialDevice == "" {
			return fmt.Errorf("serial transport requires a serial_device")
		}
	default:
		return fmt.Errorf("unknown transport %q (want tcp or serial)", c.Transport)
	}

	switch c.CodePage {
	case "", "cp437", "cp1252":
	default:
		return fmt.Errorf("unknown code_page %q (want cp437 or cp1252)", c.CodePage)
	}

	if len(c.Password) != 6 {
		return fmt.Errorf("password must be 6 digits")
	}
	return nil
}

// Validate checks the simulator config for inconsistencies.
func (c SimulatorConfig) Validate() error {
	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return fmt.Errorf("invalid listen_port %d", c.ListenPort)
	}
	if len(c.TerminalID) != 8 {
		return fmt.Errorf("terminal_id must be 8 digits")
	}
	if len(c.VuNumber) > 15 {
		return fmt.Errorf("vu_number exceeds 15 characters")
	}
	if c.Faults.ErrorEveryN < 0 || c.Faults.ResponseDelayMs < 0 {
		return fmt.Errorf("fault counters must not be negative")
	}
	return nil
}
