package engine

import (
	"errors"

	"github.com/roach88/ledgerbox/internal/auth"
	"github.com/roach88/ledgerbox/internal/bounded"
	"github.com/roach88/ledgerbox/internal/programs"
	"github.com/roach88/ledgerbox/internal/store"
)

var (
	// ErrUnknownProgram is returned when a transaction names a program the
	// registry does not hold.
	ErrUnknownProgram = errors.New("unknown program")

	// ErrProgramMismatch is returned when a transaction names a program
	// other than the one owning the account.
	ErrProgramMismatch = errors.New("account belongs to another program")

	// ErrAccountNotFound and ErrAccountExists alias the store sentinels so
	// callers need not import the store.
	ErrAccountNotFound = store.ErrAccountNotFound
	ErrAccountExists   = store.ErrAccountExists

	// ErrDuplicateTx is returned for a transaction whose signer and nonce
	// are already in the log. Duplicates are rejected without logging.
	ErrDuplicateTx = store.ErrDuplicateTx

	// ErrStopped is returned by Submit once the engine stops accepting work.
	ErrStopped = errors.New("engine stopped")
)

// Error codes recorded on failed receipts for host-level failures. Program
// failures use the bounded.Code values.
const (
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeUnknownProgram  = "UNKNOWN_PROGRAM"
	CodeUnknownAction   = "UNKNOWN_ACTION"
	CodeAccountNotFound = "ACCOUNT_NOT_FOUND"
	CodeAccountExists   = "ACCOUNT_EXISTS"
	CodeProgramMismatch = "PROGRAM_MISMATCH"
)

// ErrorCode maps a transaction failure to the code stored in the log.
// Returns "" for errors that are not transaction failures: those abort the
// call instead of producing a failed receipt.
func ErrorCode(err error) string {
	if code := bounded.CodeOf(err); code != "" {
		return string(code)
	}
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrUnknownProgram):
		return CodeUnknownProgram
	case errors.Is(err, programs.ErrUnknownAction):
		return CodeUnknownAction
	case errors.Is(err, ErrAccountNotFound):
		return CodeAccountNotFound
	case errors.Is(err, ErrAccountExists):
		return CodeAccountExists
	case errors.Is(err, ErrProgramMismatch):
		return CodeProgramMismatch
	}
	return ""
}
