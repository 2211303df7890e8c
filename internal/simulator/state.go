package simulator

import (
	"sync"

	"github.com/payterm/zvtsim/internal/config"
)

// State is the terminal state shared by every TCP session and the HTTP
// control plane. Counter allocation takes the read side of the lock so
// concurrent sessions can allocate in parallel; config mutation and
// reset take the write side, which keeps a reset exclusive with any
// in-flight allocation.
type State struct {
	mu sync.RWMutex

	cfg        config.SimulatorConfig
	registered bool
	// ecrConfig is the config byte the ECR announced at registration.
	ecrConfig byte
	currency  int

	counterMu sync.Mutex
	trace     uint32
	receipt   uint32
	turnover  uint32
}

// NewState creates terminal state from the given configuration.
func NewState(cfg config.SimulatorConfig) *State {
	return &State{cfg: cfg, currency: 978}
}

// Config returns a consistent snapshot of the configuration. Handlers
// take one snapshot per response sequence so a concurrent control-plane
// update cannot change the rules mid-sequence.
func (s *State) Config() config.SimulatorConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// SetConfig replaces the whole configuration.
func (s *State) SetConfig(cfg config.SimulatorConfig) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

// SetFaults replaces the fault policy only.
func (s *State) SetFaults(f config.FaultsConfig) {
	s.mu.Lock()
	s.cfg.Faults = f
	s.mu.Unlock()
}

// SetCard replaces the simulated card only.
func (s *State) SetCard(c config.CardConfig) {
	s.mu.Lock()
	s.cfg.Card = c
	s.mu.Unlock()
}

// Register records a successful ECR registration.
func (s *State) Register(configByte byte, currency int) {
	s.mu.Lock()
	s.registered = true
	s.ecrConfig = configByte
	if currency > 0 {
		s.currency = currency
	}
	s.mu.Unlock()
}

// LogOff clears the registration flag.
func (s *State) LogOff() {
	s.mu.Lock()
	s.registered = false
	s.mu.Unlock()
}

// Registered reports whether an ECR has registered on this terminal.
func (s *State) Registered() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registered
}

// ECRConfig returns the config byte announced at registration along with
// the negotiated currency.
func (s *State) ECRConfig() (byte, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ecrConfig, s.currency
}

// NextNumbers allocates the next trace, receipt and turnover numbers in
// one step. Numbers start at 1 and are never reused within a run; the
// receipt number stays inside its 4-digit field and the trace and
// turnover numbers inside their 6-digit fields by wrapping back to 1.
func (s *State) NextNumbers() (trace, receipt, turnover uint32) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	s.counterMu.Lock()
	defer s.counterMu.Unlock()

	s.trace = wrapCounter(s.trace+1, 999999)
	s.receipt = wrapCounter(s.receipt+1, 9999)
	s.turnover = wrapCounter(s.turnover+1, 999999)
	return s.trace, s.receipt, s.turnover
}

// NextTrace allocates only a trace number. Administrative sequences such
// as End of Day consume a trace but no receipt or turnover number.
func (s *State) NextTrace() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	s.counterMu.Lock()
	defer s.counterMu.Unlock()

	s.trace = wrapCounter(s.trace+1, 999999)
	return s.trace
}

func wrapCounter(n, max uint32) uint32 {
	if n > max {
		return 1
	}
	return n
}

// Counters returns the current counter values without allocating.
func (s *State) Counters() (trace, receipt, turnover uint32) {
	s.counterMu.Lock()
	defer s.counterMu.Unlock()
	return s.trace, s.receipt, s.turnover
}

/// Reset returns the terminal to its power-on state: counters to zero,
// registration cleared. It holds the write lock for the duration, so no
// session can allocate a number while the reset runs.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counterMu.Lock()
	s.trace = 0
	s.receipt = 0
	s.turnover = 0
	s.counterMu.Unlock()

	s.registered = false
	s.ecrConfig = 0
	s.currency = 978
}
