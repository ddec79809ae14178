package chat

import (
	"fmt"
	"time"
)

// WaitState describes how long a user has been waiting for a reply.
type WaitState int

const (
	WaitNormal WaitState = iota
	WaitSlow
	WaitVerySlow
	WaitTimeoutWarning
)

// Thresholds between wait states.
const (
	SlowAfter           = 10 * time.Second
	VerySlowAfter       = 30 * time.Second
	TimeoutWarningAfter = 60 * time.Second
)

// ClassifyWait maps the time since a request was sent to a wait state.
func ClassifyWait(elapsed time.Duration) WaitState {
	switch {
	case elapsed >= TimeoutWarningAfter:
		return WaitTimeoutWarning
	case elapsed >= VerySlowAfter:
		return WaitVerySlow
	case elapsed >= SlowAfter:
		return WaitSlow
	default:
		return WaitNormal
	}
}

func (s WaitState) String() string {
	switch s {
	case WaitSlow:
		return "slow"
	case WaitVerySlow:
		return "very_slow"
	case WaitTimeoutWarning:
		return "timeout_warning"
	default:
		return "normal"
	}
}

// MarshalText encodes the state by name for JSON responses.
func (s WaitState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name produced by MarshalText.
func (s *WaitState) UnmarshalText(text []byte) error {
	for _, state := range []WaitState{WaitNormal, WaitSlow, WaitVerySlow, WaitTimeoutWarning} {
		if state.String() == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown wait state %q", text)
}
