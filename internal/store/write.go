package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/roach88/ledgerbox/internal/ir"
)

// TxRecord is one row of the transaction log.
type TxRecord struct {
	ID        string
	Seq       int64
	Tx        ir.Tx
	Signer    string
	Signature string
	Status    ir.Status
	Result    ir.Object
	ErrorCode string
	Error     string
	Timestamp int64
}

// CreateAccount allocates an account holding data and logs the creating
// transaction, atomically. len(data) must equal acct.Size.
// Returns ErrAccountExists if the address is taken.
func (s *Store) CreateAccount(ctx context.Context, acct ir.Account, data []byte, rec TxRecord) error {
	if len(data) != acct.Size {
		return fmt.Errorf("create account %s: %d bytes for size %d: %w", acct.Address, len(data), acct.Size, ErrSizeMismatch)
	}

	return s.withTx(ctx, "create account", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO accounts
			(address, program, authority, policy, size, data, created_seq, updated_seq)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			acct.Address,
			acct.Program,
			acct.Authority,
			acct.Policy,
			acct.Size,
			data,
			rec.Seq,
			rec.Seq,
		)
		if isPrimaryKeyConflict(err) {
			return fmt.Errorf("%s: %w", acct.Address, ErrAccountExists)
		}
		if err != nil {
			return err
		}
		return insertTx(ctx, tx, rec)
	})
}

// CommitExecution replaces the account's data, logs the transaction and
// appends its event (if any) in one SQL transaction. data must be exactly
// the size allocated at creation; the buffer is never resized.
func (s *Store) CommitExecution(ctx context.Context, address string, data []byte, rec TxRecord, ev *ir.Event) error {
	return s.withTx(ctx, "commit execution", func(tx *sql.Tx) error {
		var size int
		err := tx.QueryRowContext(ctx, `SELECT size FROM accounts WHERE address = ?`, address).Scan(&size)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%s: %w", address, ErrAccountNotFound)
		}
		if err != nil {
			return err
		}
		if len(data) != size {
			return fmt.Errorf("%s: %d bytes for size %d: %w", address, len(data), size, ErrSizeMismatch)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE accounts SET data = ?, updated_seq = ? WHERE address = ?
		`, data, rec.Seq, address); err != nil {
			return err
		}
		if err := insertTx(ctx, tx, rec); err != nil {
			return err
		}
		if ev != nil {
			return insertEvent(ctx, tx, *ev)
		}
		return nil
	})
}

// RecordFailure logs a transaction that did not commit. No account changes.
func (s *Store) RecordFailure(ctx context.Context, rec TxRecord) error {
	return s.withTx(ctx, "record failure", func(tx *sql.Tx) error {
		return insertTx(ctx, tx, rec)
	})
}

func (s *Store) withTx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin tx: %w", op, err)
	}
	defer tx.Rollback() // No-op if committed

	if err := fn(tx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}

func insertTx(ctx context.Context, tx *sql.Tx, rec TxRecord) error {
	argsJSON, err := marshalObject(rec.Tx.Args)
	if err != nil {
		return err
	}
	resultJSON, err := marshalObject(rec.Result)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transactions
		(id, seq, program, account, action, args, nonce, signer, signature,
		 status, result, error_code, error, timestamp, engine_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID,
		rec.Seq,
		rec.Tx.Program,
		rec.Tx.Account,
		rec.Tx.Action,
		argsJSON,
		rec.Tx.Nonce,
		rec.Signer,
		rec.Signature,
		string(rec.Status),
		resultJSON,
		rec.ErrorCode,
		rec.Error,
		rec.Timestamp,
		ir.EngineVersion,
	)
	if isNonceConflict(err) {
		return fmt.Errorf("signer %s nonce %d: %w", rec.Signer, rec.Tx.Nonce, ErrDuplicateTx)
	}
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, ev ir.Event) error {
	payloadJSON, err := marshalObject(ev.Payload)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO events (seq, id, tx_id, program, account, name, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ev.Seq, ev.ID, ev.TxID, ev.Program, ev.Account, ev.Name, payloadJSON)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func isPrimaryKeyConflict(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func isNonceConflict(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
		return strings.Contains(se.Error(), "transactions.nonce")
	}
	return false
}
