package domain

import (
	"errors"
	"time"
)

// ErrorKind classifies exchange failures beyond their retry behavior.
type ErrorKind string

const (
	KindGeneric           ErrorKind = "generic"
	KindAuth              ErrorKind = "auth"
	KindAbort             ErrorKind = "abort"
	KindInsufficientFunds ErrorKind = "insufficientFunds"
)

// DefaultRetryBudget is the attempt budget used when an adapter marks an
// error retryable without choosing a count.
const DefaultRetryBudget = 10

// ExchangeError is a classified failure returned by an exchange adapter.
// Classification happens once, at the adapter boundary, so every caller
// gets uniform resilience from the retry wrapper.
type ExchangeError struct {
	Op   string    // operation that failed ("getTicker", "buy", ...)
	Kind ErrorKind // semantic class, KindGeneric when unknown
	Err  error     // underlying error

	// Retry is the remaining attempt budget the wrapper may spend on
	// this error. Zero means not retryable.
	Retry int

	// Transient marks rate-limit style conditions the wrapper retries
	// indefinitely without consuming the attempt budget.
	Transient bool

	// Backoff optionally delays the next attempt of a transient error.
	Backoff time.Duration
}

func (e *ExchangeError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}

// NewExchangeError wraps err as a generic, non-retryable exchange error.
func NewExchangeError(op string, err error) *ExchangeError {
	return &ExchangeError{Op: op, Kind: KindGeneric, Err: err}
}

// NewRetryableError wraps err with an attempt budget. budget <= 0 selects
// DefaultRetryBudget.
func NewRetryableError(op string, err error, budget int) *ExchangeError {
	if budget <= 0 {
		budget = DefaultRetryBudget
	}
	return &ExchangeError{Op: op, Kind: KindGeneric, Err: err, Retry: budget}
}

// NewTransientError wraps err as an indefinitely-retryable condition,
// optionally delayed by backoff before the next attempt.
func NewTransientError(op string, err error, backoff time.Duration) *ExchangeError {
	return &ExchangeError{Op: op, Kind: KindGeneric, Err: err, Transient: true, Backoff: backoff}
}

// NewAuthError wraps err as a credential or permission failure. Not
// retryable: bad credentials stay bad.
func NewAuthError(op string, err error) *ExchangeError {
	return &ExchangeError{Op: op, Kind: KindAuth, Err: err}
}

// NewInsufficientFundsError wraps err as an insufficient-funds rejection.
func NewInsufficientFundsError(op string, err error) *ExchangeError {
	return &ExchangeError{Op: op, Kind: KindInsufficientFunds, Err: err}
}

// RetryBudget returns the attempt budget attached to err, zero when none.
func RetryBudget(err error) int {
	var ee *ExchangeError
	if errors.As(err, &ee) {
		return ee.Retry
	}
	return 0
}

// IsTransient reports whether err is a transient condition the retry
// wrapper should absorb without consuming its budget.
func IsTransient(err error) bool {
	var ee *ExchangeError
	if errors.As(err, &ee) {
		return ee.Transient
	}
	return false
}

// BackoffDelay returns the delay a transient error asks for, zero when
// the scheduler should pick one.
func BackoffDelay(err error) time.Duration {
	var ee *ExchangeError
	if errors.As(err, &ee) {
		return ee.Backoff
	}
	return 0
}

// IsAuth reports whether err is a classified credential failure.
func IsAuth(err error) bool {
	var ee *ExchangeError
	if errors.As(err, &ee) {
		return ee.Kind == KindAuth
	}
	return false
}

// IsInsufficientFunds reports whether err is a classified
// insufficient-funds rejection.
func IsInsufficientFunds(err error) bool {
	var ee *ExchangeError
	if errors.As(err, &ee) {
		return ee.Kind == KindInsufficientFunds
	}
	return false
}

// ConfigError represents a construction-time policy or configuration
// failure. It is surfaced synchronously, before any order is placed.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

var (
	// ErrNotTradable is returned when the adapter cannot place orders.
	ErrNotTradable = errors.New("exchange is not tradable")

	// ErrUnknownMarket is returned when the configured pair is not listed.
	ErrUnknownMarket = errors.New("unknown market pair")

	// ErrMissingCredentials is returned when private mode lacks a
	// credential the capability record requires.
	ErrMissingCredentials = errors.New("missing credentials")

	// ErrOrderCompleted is returned for mutations on a completed order.
	ErrOrderCompleted = errors.New("order already completed")

	// ErrNotPrivate is returned when a trading call reaches a broker that
	// was configured without credentials.
	ErrNotPrivate = errors.New("broker is not in private mode")

	// ErrNotSynced is returned when an order is created before the first
	// successful broker sync.
	ErrNotSynced = errors.New("broker has not synced yet")
)
