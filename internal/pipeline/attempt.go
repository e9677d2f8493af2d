package pipeline

// State is a step of the per-record retry state machine.
type State int

const (
	// StateAttempt issues a generation call.
	StateAttempt State = iota
	// StateSuccess ends the machine with a parsed result.
	StateSuccess
	// StateRetryWithFallback switches to the fallback model and retries
	// immediately.
	StateRetryWithFallback
	// StateRetryWithBackoff waits on the backoff schedule, then retries on
	// the fallback model.
	StateRetryWithBackoff
	// StateExhausted ends the machine without a result.
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateAttempt:
		return "attempt"
	case StateSuccess:
		return "success"
	case StateRetryWithFallback:
		return "retry_with_fallback"
	case StateRetryWithBackoff:
		return "retry_with_backoff"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// nextState decides what follows attempt (1-based) given its outcome. The
// first failure on the primary model moves to the fallback without waiting;
// later failures back off. Nothing follows attempt maxAttempts.
func nextState(attempt, maxAttempts int, usingFallback bool, err error) State {
	switch {
	case err == nil:
		return StateSuccess
	case attempt >= maxAttempts:
		return StateExhausted
	case !usingFallback:
		return StateRetryWithFallback
	default:
		return StateRetryWithBackoff
	}
}
