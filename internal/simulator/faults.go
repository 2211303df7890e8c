package simulator

import (
	"sync"
	"time"

	"github.com/payterm/zvtsim/internal/config"
)

// faultAction is the injected behavior resolved for one transaction.
type faultAction struct {
	// errorCode, when non-zero, replaces the successful Status
	// Information with the configured error.
	errorCode byte
	delay     time.Duration
	// dropCompletion suppresses the final Completion packet.
	dropCompletion bool
	// closeAfterAck tears the connection down right after the ACK.
	closeAfterAck bool
}

// faultClock counts transaction attempts across all sessions so an
// every-Nth error policy fires at the same cadence no matter which
// connection carries the traffic.
type faultClock struct {
	mu       sync.Mutex
	attempts int
}

// next resolves the action for the upcoming transaction attempt under
// the given policy snapshot.
func (fc *faultClock) next(f config.FaultsConfig) faultAction {
	fc.mu.Lock()
	fc.attempts++
	count := fc.attempts
	fc.mu.Unlock()

	action := faultAction{
		delay:          time.Duration(f.ResponseDelayMs) * time.Millisecond,
		dropCompletion: f.DropCompletion,
		closeAfterAck:  f.CloseAfterAck,
	}
	if f.ErrorCode != 0 {
		if f.ErrorEveryN <= 1 || count%f.ErrorEveryN == 0 {
			action.errorCode = f.ErrorCode
		}
	}
	return action
}

// reset restarts the attempt count, so every-Nth policies behave
// deterministically after a control-plane reset.
func (fc *faultClock) reset() {
	fc.mu.Lock()
	fc.attempts = 0
	fc.mu.Unlock()
}
