package store

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/roach88/ledgerbox/internal/ir"
)

// createTestStore opens a fresh database in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testAccount(address string, size int) ir.Account {
	return ir.Account{
		Address:   address,
		Program:   "deepfake",
		Authority: "alice",
		Policy:    "owner",
		Size:      size,
	}
}

func testRecord(id string, seq int64, account, action string, status ir.Status) TxRecord {
	return TxRecord{
		ID:  id,
		Seq: seq,
		Tx: ir.Tx{
			Program: "deepfake",
			Account: account,
			Action:  action,
			Args:    ir.Object{"image_hash": ir.String("h")},
			Nonce:   seq,
		},
		Signer:    "alice",
		Signature: "sig",
		Status:    status,
		Timestamp: 1700000000 + seq,
	}
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	for _, table := range []string{"accounts", "transactions", "events"} {
		var name string
		err := s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found: %v", table, err)
		}
	}

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("user_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, currentSchemaVersion)
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	var mode string
	if err := s.db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}

	var fk int
	if err := s.db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("foreign_keys: %v", err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys = %d, want 1", fk)
	}
}

func TestOpen_Memory(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.CreateAccount(ctx, testAccount("a", 4), make([]byte, 4), testRecord("tx1", 1, "a", "initialize", ir.StatusOK)); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if _, _, err := s.LoadAccount(ctx, "a"); err != nil {
		t.Fatalf("LoadAccount: %v", err)
	}
}

func TestCreateAndLoadAccount(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	err := s.CreateAccount(ctx, testAccount("acct-1", 8), data, testRecord("tx1", 1, "acct-1", "initialize", ir.StatusOK))
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	acct, got, err := s.LoadAccount(ctx, "acct-1")
	if err != nil {
		t.Fatalf("LoadAccount: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("data = %v, want %v", got, data)
	}
	if acct.Program != "deepfake" || acct.Authority != "alice" || acct.Policy != "owner" || acct.Size != 8 || acct.CreatedAt != 1 {
		t.Errorf("unexpected account: %+v", acct)
	}
}

func TestCreateAccount_Exists(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.CreateAccount(ctx, testAccount("a", 4), make([]byte, 4), testRecord("tx1", 1, "a", "initialize", ir.StatusOK)); err != nil {
		t.Fatalf("first CreateAccount: %v", err)
	}
	err := s.CreateAccount(ctx, testAccount("a", 4), make([]byte, 4), testRecord("tx2", 2, "a", "initialize", ir.StatusOK))
	if !errors.Is(err, ErrAccountExists) {
		t.Fatalf("err = %v, want ErrAccountExists", err)
	}

	// The rejected creation must not leave a log entry behind.
	txs, err := s.ReadTransactions(ctx, LogFilter{})
	if err != nil {
		t.Fatalf("ReadTransactions: %v", err)
	}
	if len(txs) != 1 {
		t.Errorf("got %d transactions, want 1", len(txs))
	}
}

func TestCreateAccount_SizeMismatch(t *testing.T) {
	s := createTestStore(t)
	err := s.CreateAccount(context.Background(), testAccount("a", 8), make([]byte, 4), testRecord("tx1", 1, "a", "initialize", ir.StatusOK))
	if !errors.Is(err, ErrSizeMismatch) {
		t.Fatalf("err = %v, want ErrSizeMismatch", err)
	}
}

func TestLoadAccount_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, _, err := s.LoadAccount(context.Background(), "missing")
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("err = %v, want ErrAccountNotFound", err)
	}
}

func TestCommitExecution(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.CreateAccount(ctx, testAccount("a", 4), make([]byte, 4), testRecord("tx1", 1, "a", "initialize", ir.StatusOK)); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	rec := testRecord("tx2", 2, "a", "store_image", ir.StatusOK)
	rec.Result = ir.Object{"image_hash": ir.String("h")}
	ev := &ir.Event{
		Seq:     2,
		ID:      "ev2",
		TxID:    "tx2",
		Program: "deepfake",
		Account: "a",
		Name:    "ImageAdded",
		Payload: ir.Object{"image_hash": ir.String("h"), "deepfake_value": ir.Int(1)},
	}
	if err := s.CommitExecution(ctx, "a", []byte{9, 9, 9, 9}, rec, ev); err != nil {
		t.Fatalf("CommitExecution: %v", err)
	}

	_, data, err := s.LoadAccount(ctx, "a")
	if err != nil {
		t.Fatalf("LoadAccount: %v", err)
	}
	if !bytes.Equal(data, []byte{9, 9, 9, 9}) {
		t.Errorf("data = %v", data)
	}

	events, err := s.ReadEvents(ctx, LogFilter{Account: "a"})
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	if len(events) != 1 || events[0].Name != "ImageAdded" || events[0].Payload["deepfake_value"] != ir.Int(1) {
		t.Errorf("unexpected events: %+v", events)
	}

	got, err := s.ReadTransaction(ctx, "tx2")
	if err != nil {
		t.Fatalf("ReadTransaction: %v", err)
	}
	if got.Status != ir.StatusOK || got.Tx.Args["image_hash"] != ir.String("h") || got.Result["image_hash"] != ir.String("h") {
		t.Errorf("unexpected transaction: %+v", got)
	}
}

func TestCommitExecution_SizeMismatchIsAtomic(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	orig := []byte{1, 2, 3, 4}
	if err := s.CreateAccount(ctx, testAccount("a", 4), orig, testRecord("tx1", 1, "a", "initialize", ir.StatusOK)); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	err := s.CommitExecution(ctx, "a", []byte{1, 2, 3, 4, 5}, testRecord("tx2", 2, "a", "store_image", ir.StatusOK), nil)
	if !errors.Is(err, ErrSizeMismatch) {
		t.Fatalf("err = %v, want ErrSizeMismatch", err)
	}

	_, data, err := s.LoadAccount(ctx, "a")
	if err != nil {
		t.Fatalf("LoadAccount: %v", err)
	}
	if !bytes.Equal(data, orig) {
		t.Errorf("data changed to %v", data)
	}
	if _, err := s.ReadTransaction(ctx, "tx2"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("tx2 should not be logged, err = %v", err)
	}
}

func TestCommitExecution_UnknownAccount(t *testing.T) {
	s := createTestStore(t)
	err := s.CommitExecution(context.Background(), "nope", []byte{1}, testRecord("tx1", 1, "nope", "x", ir.StatusOK), nil)
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("err = %v, want ErrAccountNotFound", err)
	}
}

func TestRecordFailure(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rec := testRecord("tx1", 1, "a", "store_image", ir.StatusFailed)
	rec.ErrorCode = "INVALID_VALUE"
	rec.Error = "deepfake_value: 4 is not one of 1, 2, 3"
	if err := s.RecordFailure(ctx, rec); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}

	got, err := s.ReadTransaction(ctx, "tx1")
	if err != nil {
		t.Fatalf("ReadTransaction: %v", err)
	}
	if got.Status != ir.StatusFailed || got.ErrorCode != "INVALID_VALUE" || got.Error != rec.Error {
		t.Errorf("unexpected record: %+v", got)
	}
}

func TestRecordFailure_DuplicateNonce(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.RecordFailure(ctx, testRecord("tx1", 1, "a", "x", ir.StatusFailed)); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}

	has, err := s.HasNonce(ctx, "alice", 1)
	if err != nil || !has {
		t.Errorf("HasNonce(alice, 1) = %v, %v; want true", has, err)
	}
	has, err = s.HasNonce(ctx, "bob", 1)
	if err != nil || has {
		t.Errorf("HasNonce(bob, 1) = %v, %v; want false", has, err)
	}

	// Same signer and nonce at a later seq.
	dup := testRecord("tx2", 2, "a", "x", ir.StatusFailed)
	dup.Tx.Nonce = 1
	if err := s.RecordFailure(ctx, dup); !errors.Is(err, ErrDuplicateTx) {
		t.Fatalf("err = %v, want ErrDuplicateTx", err)
	}

	// Another signer may reuse the nonce.
	other := testRecord("tx3", 3, "a", "x", ir.StatusFailed)
	other.Tx.Nonce = 1
	other.Signer = "bob"
	if err := s.RecordFailure(ctx, other); err != nil {
		t.Fatalf("RecordFailure(bob): %v", err)
	}
}

func TestReadTransactions_FilterAndOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, rec := range []TxRecord{
		testRecord("t3", 3, "b", "x", ir.StatusFailed),
		testRecord("t1", 1, "a", "x", ir.StatusFailed),
		testRecord("t2", 2, "a", "x", ir.StatusFailed),
	} {
		if err := s.RecordFailure(ctx, rec); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
	}

	all, err := s.ReadTransactions(ctx, LogFilter{})
	if err != nil {
		t.Fatalf("ReadTransactions: %v", err)
	}
	if len(all) != 3 || all[0].ID != "t1" || all[1].ID != "t2" || all[2].ID != "t3" {
		t.Errorf("unexpected order: %+v", all)
	}

	forA, err := s.ReadTransactions(ctx, LogFilter{Account: "a", AfterSeq: 1})
	if err != nil {
		t.Fatalf("ReadTransactions: %v", err)
	}
	if len(forA) != 1 || forA[0].ID != "t2" {
		t.Errorf("unexpected filtered result: %+v", forA)
	}

	limited, err := s.ReadTransactions(ctx, LogFilter{Limit: 2})
	if err != nil {
		t.Fatalf("ReadTransactions: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("limit ignored: %d rows", len(limited))
	}

	seq, err := s.MaxSeq(ctx)
	if err != nil {
		t.Fatalf("MaxSeq: %v", err)
	}
	if seq != 3 {
		t.Errorf("MaxSeq = %d, want 3", seq)
	}
}

func TestReadEmpty(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	txs, err := s.ReadTransactions(ctx, LogFilter{})
	if err != nil || txs == nil || len(txs) != 0 {
		t.Errorf("ReadTransactions = %v, %v; want empty non-nil", txs, err)
	}
	events, err := s.ReadEvents(ctx, LogFilter{})
	if err != nil || events == nil || len(events) != 0 {
		t.Errorf("ReadEvents = %v, %v; want empty non-nil", events, err)
	}
	accounts, err := s.ListAccounts(ctx, "")
	if err != nil || accounts == nil || len(accounts) != 0 {
		t.Errorf("ListAccounts = %v, %v; want empty non-nil", accounts, err)
	}
	seq, err := s.MaxSeq(ctx)
	if err != nil || seq != 0 {
		t.Errorf("MaxSeq = %d, %v; want 0", seq, err)
	}
}

func TestListAccounts(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	a := testAccount("a", 4)
	b := testAccount("b", 4)
	b.Program = "posts"
	if err := s.CreateAccount(ctx, a, make([]byte, 4), testRecord("t1", 1, "a", "initialize", ir.StatusOK)); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateAccount(ctx, b, make([]byte, 4), testRecord("t2", 2, "b", "initialize", ir.StatusOK)); err != nil {
		t.Fatal(err)
	}

	all, err := s.ListAccounts(ctx, "")
	if err != nil {
		t.Fatalf("ListAccounts: %v", err)
	}
	if len(all) != 2 || all[0].Address != "a" || all[1].Address != "b" {
		t.Errorf("unexpected accounts: %+v", all)
	}

	posts, err := s.ListAccounts(ctx, "posts")
	if err != nil {
		t.Fatalf("ListAccounts: %v", err)
	}
	if len(posts) != 1 || posts[0].Address != "b" {
		t.Errorf("unexpected filtered accounts: %+v", posts)
	}
}

func TestMarshalObject(t *testing.T) {
	s, err := marshalObject(nil)
	if err != nil || s != "{}" {
		t.Errorf("marshalObject(nil) = %q, %v", s, err)
	}

	s, err = marshalObject(ir.Object{"b": ir.Int(9007199254740993), "a": ir.String("x")})
	if err != nil {
		t.Fatal(err)
	}
	if s != `{"a":"x","b":9007199254740993}` {
		t.Errorf("marshalObject = %s", s)
	}

	obj, err := unmarshalObject(s)
	if err != nil {
		t.Fatal(err)
	}
	if obj["b"] != ir.Int(9007199254740993) {
		t.Errorf("large integer lost precision: %v", obj["b"])
	}

	if _, err := unmarshalObject(`{"f":1.5}`); err == nil {
		t.Error("expected float to be rejected")
	}
}
