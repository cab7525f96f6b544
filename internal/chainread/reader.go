// Package chainread defines the contract-read collaborator: point-in-time
// "read this view function at this block" queries the ledgers use to
// enrich events with current on-chain parameters. The implementation
// lives outside this engine; handlers only depend on the interface.
package chainread

import (
	"context"
	"errors"
	"fmt"
	"math/big"
)

// Value is a decoded contract return value. Exactly one field is set,
// matching the ABI return type of the function that was read.
type Value struct {
	Big    *big.Int
	Uint64 uint64
	Int64  int64
	Text   string
	Bool   bool
}

// Query addresses one view-function read.
type Query struct {
	ChainID  int64
	Contract string
	Function string
	Args     []any

	// BlockHeight pins the read to a historical block; zero means latest.
	BlockHeight uint64
}

// Reader answers point-in-time contract reads. Failures are classified by
// Retryable: transient RPC problems propagate for upstream retry, anything
// else is treated as a logic error by the calling handler.
type Reader interface {
	Read(ctx context.Context, q Query) (Value, error)
}

// retryableError marks transient infrastructure failures.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// AsRetryable wraps err so that Retryable reports true for it.
func AsRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// Retryable reports whether err is a transient infrastructure failure
// that the event source should retry, as opposed to a logic error.
func Retryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

// readBig is the common shape of most position/token reads.
func readBig(ctx context.Context, r Reader, chainID int64, contract, fn string, args ...any) (*big.Int, error) {
	v, err := r.Read(ctx, Query{ChainID: chainID, Contract: contract, Function: fn, Args: args})
	if err != nil {
		return nil, fmt.Errorf("read %s.%s: %w", contract, fn, err)
	}
	if v.Big == nil {
		return nil, fmt.Errorf("read %s.%s: non-numeric return", contract, fn)
	}
	return v.Big, nil
}

func readUint64(ctx context.Context, r Reader, chainID int64, contract, fn string, args ...any) (uint64, error) {
	v, err := r.Read(ctx, Query{ChainID: chainID, Contract: contract, Function: fn, Args: args})
	if err != nil {
		return 0, fmt.Errorf("read %s.%s: %w", contract, fn, err)
	}
	if v.Big != nil {
		return v.Big.Uint64(), nil
	}
	return v.Uint64, nil
}

func readInt64(ctx context.Context, r Reader, chainID int64, contract, fn string, args ...any) (int64, error) {
	v, err := r.Read(ctx, Query{ChainID: chainID, Contract: contract, Function: fn, Args: args})
	if err != nil {
		return 0, fmt.Errorf("read %s.%s: %w", contract, fn, err)
	}
	if v.Big != nil {
		return v.Big.Int64(), nil
	}
	return v.Int64, nil
}

func readText(ctx context.Context, r Reader, chainID int64, contract, fn string, args ...any) (string, error) {
	v, err := r.Read(ctx, Query{ChainID: chainID, Contract: contract, Function: fn, Args: args})
	if err != nil {
		return "", fmt.Errorf("read %s.%s: %w", contract, fn, err)
	}
	return v.Text, nil
}
