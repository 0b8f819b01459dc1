// Package failure maps raw ledger, wallet and network errors onto a closed taxonomy and
// decides which failures may be retried.
package failure

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/ZilDuck/solana-card-market/internal/ledger"
)

type Kind string

const (
	NetworkUnavailable Kind = "NetworkUnavailable"
	Timeout            Kind = "Timeout"
	InsufficientFunds  Kind = "InsufficientFunds"
	UserRejected       Kind = "UserRejected"
	LedgerCongested    Kind = "LedgerCongested"
	StaleState         Kind = "StaleState"
	Unknown            Kind = "Unknown"
)

type Retry int

const (
	RetryNever Retry = iota
	RetryNow
	RetryAfterResync
)

func (r Retry) String() string {
	switch r {
	case RetryNow:
		return "retry"
	case RetryAfterResync:
		return "resync then retry"
	default:
		return "no retry"
	}
}

// Failure is a classified post-submission error. Raw is kept unmodified.
type Failure struct {
	Kind  Kind
	Retry Retry
	Raw   error
}

func (f *Failure) Error() string {
	if f.Raw == nil {
		return string(f.Kind)
	}
	if f.Kind == Unknown {
		return f.Raw.Error()
	}
	return string(f.Kind) + ": " + f.Raw.Error()
}

func (f *Failure) Unwrap() error {
	return f.Raw
}

func (f *Failure) Retryable() bool {
	return f.Retry == RetryNow
}

func (f *Failure) NeedsResync() bool {
	return f.Retry == RetryAfterResync
}

func retryFor(k Kind) Retry {
	switch k {
	case NetworkUnavailable, Timeout, LedgerCongested:
		return RetryNow
	case StaleState:
		return RetryAfterResync
	default:
		return RetryNever
	}
}

type rule struct {
	kind     Kind
	patterns []string
}

// Order matters: wallet rejection and funds are checked before the transport rules, since
// a simulated failure message often carries both.
var rules = []rule{
	{UserRejected, []string{"user rejected", "rejected the request", "code 4001", "transaction was not signed", "signature request denied"}},
	{InsufficientFunds, []string{"insufficient lamports", "insufficient funds", "insufficientfunds", "attempt to debit an account but found no record of a prior credit"}},
	{StaleState, []string{"listingnotactive", "accountnotinitialized", "already in use", "accountalreadyinuse", "escrowmismatch", "account not found"}},
	{LedgerCongested, []string{"status code: 429", "too many requests", "rate limit", "node is behind", "node is unhealthy", "service unavailable"}},
	{Timeout, []string{"timeout", "timed out", "deadline exceeded", "block height exceeded", "blockhash not found"}},
	{NetworkUnavailable, []string{"connection refused", "connection reset", "no such host", "network is unreachable", "failed to fetch", ": eof"}},
}

// Classify maps err onto a Failure. A nil error yields nil; an error that is already a
// Failure is returned as is.
func Classify(err error) *Failure {
	if err == nil {
		return nil
	}

	var f *Failure
	if errors.As(err, &f) {
		return f
	}

	kind := classify(err)

	return &Failure{Kind: kind, Retry: retryFor(kind), Raw: err}
}

func classify(err error) Kind {
	var pe *ledger.ProgramError
	if errors.As(err, &pe) {
		switch pe.Code {
		case ledger.CodeListingNotActive, ledger.CodeAccountNotInitialized, ledger.CodeAccountInUse, ledger.CodeEscrowMismatch:
			return StaleState
		case ledger.CodeTokenInsufficient:
			return InsufficientFunds
		}
	}

	switch {
	case errors.Is(err, ledger.ErrTransactionNotSigned):
		return UserRejected
	case errors.Is(err, ledger.ErrAccountNotFound):
		return StaleState
	case errors.Is(err, ledger.ErrConfirmationTimeout), errors.Is(err, context.DeadlineExceeded):
		return Timeout
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return NetworkUnavailable
	}

	msg := strings.ToLower(err.Error())
	for _, r := range rules {
		for _, p := range r.patterns {
			if strings.Contains(msg, p) {
				return r.kind
			}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return Timeout
		}
		return NetworkUnavailable
	}

	return Unknown
}
