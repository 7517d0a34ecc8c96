package repositories

import (
	"fmt"
	"strings"
)

// CounterErrorCode classifies why a counter increment was refused.
type CounterErrorCode string

const (
	CounterErrorUnknown      CounterErrorCode = "counter_unknown"
	CounterErrorInvalidInput CounterErrorCode = "counter_invalid_input"
)

// CounterError reports a refused increment on a named sequence such as the order number counter.
type CounterError struct {
	Counter string
	Code    CounterErrorCode
	Reason  string
	Err     error
}

func (e *CounterError) Error() string {
	if e == nil {
		return ""
	}
	reason := e.Reason
	if reason == "" {
		reason = string(e.Code)
	}
	if e.Counter == "" {
		return "counter: " + reason
	}
	return fmt.Sprintf("counter %q: %s", e.Counter, reason)
}

func (e *CounterError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NormalizeCounterRequest trims the counter id and defaults a zero step to one. Both stores call it
// before opening a transaction.
func NormalizeCounterRequest(counterID string, step int64) (string, int64, error) {
	id := strings.TrimSpace(counterID)
	if id == "" {
		return "", 0, &CounterError{Code: CounterErrorInvalidInput, Reason: "counter id is required"}
	}
	if step < 0 {
		return "", 0, &CounterError{Counter: id, Code: CounterErrorInvalidInput, Reason: fmt.Sprintf("step must be positive, got %d", step)}
	}
	if step == 0 {
		step = 1
	}
	return id, step, nil
}
