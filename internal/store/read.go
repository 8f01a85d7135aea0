package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/ledgerbox/internal/ir"
)

// LoadAccount returns the account metadata and a copy of its data.
// Returns ErrAccountNotFound if no account has the address.
func (s *Store) LoadAccount(ctx context.Context, address string) (ir.Account, []byte, error) {
	var acct ir.Account
	var data []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT address, program, authority, policy, size, created_seq, data
		FROM accounts
		WHERE address = ?
	`, address).Scan(&acct.Address, &acct.Program, &acct.Authority, &acct.Policy, &acct.Size, &acct.CreatedAt, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Account{}, nil, fmt.Errorf("load account %s: %w", address, ErrAccountNotFound)
	}
	if err != nil {
		return ir.Account{}, nil, fmt.Errorf("load account %s: %w", address, err)
	}
	return acct, data, nil
}

// ListAccounts returns accounts ordered by creation. An empty program
// lists every account.
func (s *Store) ListAccounts(ctx context.Context, program string) ([]ir.Account, error) {
	query := `SELECT address, program, authority, policy, size, created_seq FROM accounts`
	var args []any
	if program != "" {
		query += ` WHERE program = ?`
		args = append(args, program)
	}
	query += ` ORDER BY created_seq ASC, address COLLATE BINARY ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	accounts := []ir.Account{}
	for rows.Next() {
		var a ir.Account
		if err := rows.Scan(&a.Address, &a.Program, &a.Authority, &a.Policy, &a.Size, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return accounts, nil
}

// LogFilter narrows transaction and event reads. Zero values match
// everything.
type LogFilter struct {
	Account  string
	Program  string
	AfterSeq int64
	Limit    int
}

func (f LogFilter) where() (string, []any) {
	var clauses []string
	var args []any
	if f.Account != "" {
		clauses = append(clauses, "account = ?")
		args = append(args, f.Account)
	}
	if f.Program != "" {
		clauses = append(clauses, "program = ?")
		args = append(args, f.Program)
	}
	if f.AfterSeq > 0 {
		clauses = append(clauses, "seq > ?")
		args = append(args, f.AfterSeq)
	}

	sqlText := ""
	if len(clauses) > 0 {
		sqlText = " WHERE " + strings.Join(clauses, " AND ")
	}
	sqlText += " ORDER BY seq ASC"
	if f.Limit > 0 {
		sqlText += " LIMIT ?"
		args = append(args, f.Limit)
	}
	return sqlText, args
}

// ReadTransactions returns logged transactions in seq order.
// Returns an empty slice (not nil) if none match.
func (s *Store) ReadTransactions(ctx context.Context, f LogFilter) ([]TxRecord, error) {
	where, args := f.where()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, program, account, action, args, nonce, signer, signature,
		       status, result, error_code, error, timestamp
		FROM transactions`+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	records := []TxRecord{}
	for rows.Next() {
		rec, err := scanTx(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return records, nil
}

// ReadTransaction returns the logged transaction with the given id.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadTransaction(ctx context.Context, id string) (TxRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, seq, program, account, action, args, nonce, signer, signature,
		       status, result, error_code, error, timestamp
		FROM transactions
		WHERE id = ?
	`, id)
	return scanTx(row)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTx(row scanner) (TxRecord, error) {
	var rec TxRecord
	var argsJSON, resultJSON, status string
	err := row.Scan(
		&rec.ID,
		&rec.Seq,
		&rec.Tx.Program,
		&rec.Tx.Account,
		&rec.Tx.Action,
		&argsJSON,
		&rec.Tx.Nonce,
		&rec.Signer,
		&rec.Signature,
		&status,
		&resultJSON,
		&rec.ErrorCode,
		&rec.Error,
		&rec.Timestamp,
	)
	if err != nil {
		return TxRecord{}, fmt.Errorf("scan transaction: %w", err)
	}
	rec.Status = ir.Status(status)

	if rec.Tx.Args, err = unmarshalObject(argsJSON); err != nil {
		return TxRecord{}, fmt.Errorf("transaction %s args: %w", rec.ID, err)
	}
	if rec.Result, err = unmarshalObject(resultJSON); err != nil {
		return TxRecord{}, fmt.Errorf("transaction %s result: %w", rec.ID, err)
	}
	return rec, nil
}

// ReadEvents returns logged events in seq order.
// Returns an empty slice (not nil) if none match.
func (s *Store) ReadEvents(ctx context.Context, f LogFilter) ([]ir.Event, error) {
	where, args := f.where()
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, tx_id, program, account, name, payload
		FROM events`+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []ir.Event{}
	for rows.Next() {
		var ev ir.Event
		var payloadJSON string
		if err := rows.Scan(&ev.Seq, &ev.ID, &ev.TxID, &ev.Program, &ev.Account, &ev.Name, &payloadJSON); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if ev.Payload, err = unmarshalObject(payloadJSON); err != nil {
			return nil, fmt.Errorf("event %s payload: %w", ev.ID, err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
