package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/roach88/ledgerbox/internal/auth"
	"github.com/roach88/ledgerbox/internal/ir"
	"github.com/roach88/ledgerbox/internal/store"
)

// ReplayResult summarizes a determinism audit.
type ReplayResult struct {
	Transactions int        `json:"transactions"`
	Accounts     int        `json:"accounts"`
	Mismatches   []Mismatch `json:"mismatches"`
}

// OK reports whether replay reproduced the live state exactly.
func (r ReplayResult) OK() bool {
	return len(r.Mismatches) == 0
}

// Mismatch is one divergence between the live state and the replay.
// Seq is 0 for account-level divergences.
type Mismatch struct {
	Seq     int64  `json:"seq,omitempty"`
	Account string `json:"account,omitempty"`
	Reason  string `json:"reason"`
}

// Replay re-executes the whole transaction log against a fresh in-memory
// store, feeding back the recorded seq and timestamp of every transaction,
// then compares each account's bytes with the live data.
//
// Signatures are not re-verified: the log only holds transactions that
// passed verification. Failed transactions are replayed too and must fail
// with the same code.
//
// Replay holds the writer lock for its duration.
func (e *Engine) Replay(ctx context.Context) (ReplayResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	res := ReplayResult{Mismatches: []Mismatch{}}

	records, err := e.store.ReadTransactions(ctx, store.LogFilter{})
	if err != nil {
		return res, fmt.Errorf("read log: %w", err)
	}

	scratch, err := store.Open(":memory:")
	if err != nil {
		return res, fmt.Errorf("open replay store: %w", err)
	}
	defer scratch.Close()

	replayer := New(scratch, e.programs)
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		stx := auth.SignedTx{Tx: rec.Tx, Signer: rec.Signer, Signature: rec.Signature}

		// Initialize pins the recorded address, and the recorded policy in
		// case the live engine ran with a different default.
		var address string
		if rec.Tx.Action == InitializeAction {
			if a, ok := rec.Result["address"].(ir.String); ok {
				address = string(a)
			}
			if p, ok := rec.Result["policy"].(ir.String); ok {
				replayer.policy = auth.Policy(p)
			}
		}

		got, err := replayer.apply(ctx, stx, rec.Seq, rec.Timestamp, address)
		if err != nil {
			return res, fmt.Errorf("replay seq %d: %w", rec.Seq, err)
		}
		res.Transactions++

		switch {
		case got.Status != rec.Status || got.ErrorCode != rec.ErrorCode:
			res.Mismatches = append(res.Mismatches, Mismatch{
				Seq:     rec.Seq,
				Account: got.Account,
				Reason: fmt.Sprintf("status %s %s, recorded %s %s",
					got.Status, got.ErrorCode, rec.Status, rec.ErrorCode),
			})
		case got.TxID != rec.ID:
			res.Mismatches = append(res.Mismatches, Mismatch{
				Seq:     rec.Seq,
				Account: got.Account,
				Reason:  fmt.Sprintf("transaction id %s, recorded %s", got.TxID, rec.ID),
			})
		}
	}

	accounts, err := e.store.ListAccounts(ctx, "")
	if err != nil {
		return res, fmt.Errorf("list accounts: %w", err)
	}
	for _, acct := range accounts {
		_, live, err := e.store.LoadAccount(ctx, acct.Address)
		if err != nil {
			return res, err
		}
		_, replayed, err := scratch.LoadAccount(ctx, acct.Address)
		if errors.Is(err, store.ErrAccountNotFound) {
			res.Mismatches = append(res.Mismatches, Mismatch{Account: acct.Address, Reason: "account not recreated by replay"})
			continue
		}
		if err != nil {
			return res, err
		}
		if !bytes.Equal(live, replayed) {
			res.Mismatches = append(res.Mismatches, Mismatch{Account: acct.Address, Reason: "account data differs"})
		}
	}
	res.Accounts = len(accounts)

	e.log.Infow("replay complete",
		"transactions", res.Transactions,
		"accounts", res.Accounts,
		"mismatches", len(res.Mismatches),
	)
	return res, nil
}
