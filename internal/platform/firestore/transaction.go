package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
)

const defaultTxTimeout = 30 * time.Second

// TxFunc is the unit of work executed inside a Firestore transaction.
type TxFunc func(ctx context.Context, tx *firestore.Transaction) error

type txSettings struct {
	maxAttempts int
	timeout     time.Duration
	readOnly    bool
}

// TxOption tunes transaction execution.
type TxOption func(*txSettings)

// WithMaxAttempts bounds the number of commit attempts.
func WithMaxAttempts(attempts int) TxOption {
	return func(s *txSettings) {
		if attempts > 0 {
			s.maxAttempts = attempts
		}
	}
}

// WithTimeout bounds the total transaction duration.
func WithTimeout(timeout time.Duration) TxOption {
	return func(s *txSettings) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithReadOnly runs the transaction in read-only mode.
func WithReadOnly() TxOption {
	return func(s *txSettings) {
		s.readOnly = true
	}
}

// RunTransaction wraps client.RunTransaction with timeout and attempt limits.
func RunTransaction(ctx context.Context, client *firestore.Client, fn TxFunc, opts ...TxOption) error {
	if client == nil {
		return errors.New("firestore: client is required")
	}
	if fn == nil {
		return errors.New("firestore: transaction func is required")
	}

	settings := txSettings{timeout: defaultTxTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(&settings)
		}
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if settings.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, settings.timeout)
		defer cancel()
	}

	var txOpts []firestore.TransactionOption
	if settings.maxAttempts > 0 {
		txOpts = append(txOpts, firestore.MaxAttempts(settings.maxAttempts))
	}
	if settings.readOnly {
		txOpts = append(txOpts, firestore.ReadOnly)
	}

	err := client.RunTransaction(runCtx, func(txCtx context.Context, tx *firestore.Transaction) error {
		return fn(txCtx, tx)
	}, txOpts...)
	if err != nil {
		return WrapError("transaction", err)
	}
	return nil
}
