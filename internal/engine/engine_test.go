package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledgerbox/internal/auth"
	"github.com/roach88/ledgerbox/internal/bounded"
	"github.com/roach88/ledgerbox/internal/ir"
	"github.com/roach88/ledgerbox/internal/programs"
	"github.com/roach88/ledgerbox/internal/store"
	"github.com/roach88/ledgerbox/internal/testutil"
)

// setupTestEngine creates an engine over a temp database with a
// deterministic wall clock and sequential addresses.
func setupTestEngine(t *testing.T, opts ...Option) (*Engine, *store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	base := []Option{
		WithTimeSource(testutil.NewDeterministicClock(0).Now),
		WithAddressGenerator(testutil.NewSequentialAddresses("")),
	}
	return New(s, programs.Default(), append(base, opts...)...), s
}

func initialize(t *testing.T, e *Engine, program, signer string, args ir.Object) ir.Receipt {
	t.Helper()
	stx := testutil.MustSign(t, ir.Tx{Program: program, Action: InitializeAction, Args: args}, signer)
	r, err := e.Initialize(context.Background(), stx)
	require.NoError(t, err)
	require.True(t, r.OK(), "initialize failed: %s %s", r.ErrorCode, r.Error)
	return r
}

func execute(t *testing.T, e *Engine, signer string, tx ir.Tx) ir.Receipt {
	t.Helper()
	r, err := e.Execute(context.Background(), testutil.MustSign(t, tx, signer))
	require.NoError(t, err)
	return r
}

func storeImage(account, hash string, value int64) ir.Tx {
	return ir.Tx{
		Program: "deepfake",
		Account: account,
		Action:  "store_image",
		Args:    ir.Object{"image_hash": ir.String(hash), "deepfake_value": ir.Int(value)},
	}
}

func createPost(account, content string) ir.Tx {
	return ir.Tx{
		Program: "posts",
		Account: account,
		Action:  "create_post",
		Args: ir.Object{
			"ipfs_hash":  ir.String("Qm123"),
			"image_hash": ir.String("img"),
			"content":    ir.String(content),
			"world_id":   ir.String("world"),
		},
	}
}

func loadData(t *testing.T, s *store.Store, address string) []byte {
	t.Helper()
	_, data, err := s.LoadAccount(context.Background(), address)
	require.NoError(t, err)
	return data
}

func TestInitialize_GeneratedAddress(t *testing.T) {
	e, s := setupTestEngine(t)

	r := initialize(t, e, "deepfake", "alice", nil)
	assert.Equal(t, "acct-1", r.Account)
	assert.Equal(t, int64(1), r.Seq)
	assert.Equal(t, ir.Int(programs.Deepfake{}.Layout().Size()), r.Result["size"])
	assert.Equal(t, ir.String("owner"), r.Result["policy"])

	acct, err := e.Account(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, "deepfake", acct.Program)
	assert.Equal(t, testutil.Signer("alice"), acct.Authority)
	assert.Equal(t, "owner", acct.Policy)
	assert.Equal(t, 77016, acct.Size)
	assert.Len(t, loadData(t, s, "acct-1"), 77016)
}

func TestInitialize_ExplicitAddressAndPolicy(t *testing.T) {
	e, _ := setupTestEngine(t)

	stx := testutil.MustSign(t, ir.Tx{
		Program: "posts",
		Account: "feed",
		Action:  InitializeAction,
		Args:    ir.Object{"policy": ir.String("open")},
	}, "alice")
	r, err := e.Initialize(context.Background(), stx)
	require.NoError(t, err)
	require.True(t, r.OK())
	assert.Equal(t, "feed", r.Account)

	acct, err := e.Account(context.Background(), "feed")
	require.NoError(t, err)
	assert.Equal(t, "open", acct.Policy)

	v, err := e.View(context.Background(), "feed", "stats", nil)
	require.NoError(t, err)
	assert.Equal(t, ir.Int(1), v.(ir.Object)["next_post_id"])
	assert.Equal(t, ir.Int(0), v.(ir.Object)["count"])
}

func TestInitialize_DefaultPolicyOption(t *testing.T) {
	e, _ := setupTestEngine(t, WithDefaultPolicy(auth.PolicyOpen))
	r := initialize(t, e, "originality", "alice", nil)
	assert.Equal(t, ir.String("open"), r.Result["policy"])
}

func TestInitialize_Failures(t *testing.T) {
	tests := []struct {
		name string
		tx   ir.Tx
		code string
	}{
		{
			name: "unknown program",
			tx:   ir.Tx{Program: "nope", Action: InitializeAction},
			code: CodeUnknownProgram,
		},
		{
			name: "bad policy",
			tx:   ir.Tx{Program: "posts", Action: InitializeAction, Args: ir.Object{"policy": ir.String("anyone")}},
			code: string(bounded.CodeInvalidValue),
		},
		{
			name: "policy wrong type",
			tx:   ir.Tx{Program: "posts", Action: InitializeAction, Args: ir.Object{"policy": ir.Int(1)}},
			code: string(bounded.CodeInvalidValue),
		},
		{
			name: "unknown argument",
			tx:   ir.Tx{Program: "posts", Action: InitializeAction, Args: ir.Object{"capacity": ir.Int(5)}},
			code: string(bounded.CodeInvalidValue),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, s := setupTestEngine(t)
			r := execute(t, e, "alice", tt.tx)
			assert.False(t, r.OK())
			assert.Equal(t, tt.code, r.ErrorCode)
			assert.NotEmpty(t, r.Error)

			accounts, err := s.ListAccounts(context.Background(), "")
			require.NoError(t, err)
			assert.Empty(t, accounts)

			logged, err := s.ReadTransactions(context.Background(), store.LogFilter{})
			require.NoError(t, err)
			require.Len(t, logged, 1)
			assert.Equal(t, ir.StatusFailed, logged[0].Status)
		})
	}
}

func TestInitialize_AccountExists(t *testing.T) {
	e, _ := setupTestEngine(t)
	tx := ir.Tx{Program: "deepfake", Account: "images", Action: InitializeAction}

	first := execute(t, e, "alice", tx)
	require.True(t, first.OK())

	second := execute(t, e, "bob", tx)
	assert.False(t, second.OK())
	assert.Equal(t, CodeAccountExists, second.ErrorCode)

	acct, err := e.Account(context.Background(), "images")
	require.NoError(t, err)
	assert.Equal(t, testutil.Signer("alice"), acct.Authority)
}

func TestInitialize_RequiresInitializeAction(t *testing.T) {
	e, _ := setupTestEngine(t)
	stx := testutil.MustSign(t, storeImage("a", "h", 1), "alice")
	_, err := e.Initialize(context.Background(), stx)
	require.Error(t, err)
}

func TestExecute_StoreImageAndView(t *testing.T) {
	e, _ := setupTestEngine(t)
	initialize(t, e, "deepfake", "alice", nil)

	r := execute(t, e, "alice", storeImage("acct-1", "hash-a", 2))
	require.True(t, r.OK())
	assert.Equal(t, int64(2), r.Seq)
	assert.Equal(t, testutil.DefaultEpoch+1, r.Timestamp)

	require.NotNil(t, r.Event)
	assert.Equal(t, "ImageAdded", r.Event.Name)
	assert.Equal(t, r.TxID, r.Event.TxID)
	assert.Equal(t, r.Seq, r.Event.Seq)
	assert.Equal(t, ir.Int(testutil.DefaultEpoch+1), r.Event.Payload["timestamp"])
	assert.Len(t, r.Event.ID, 64)

	ctx := context.Background()
	v, err := e.View(ctx, "acct-1", "get_deepfake_value", ir.Object{"image_hash": ir.String("hash-a")})
	require.NoError(t, err)
	assert.Equal(t, ir.Int(2), v)

	v, err = e.View(ctx, "acct-1", "get_image_timestamp", ir.Object{"image_hash": ir.String("hash-a")})
	require.NoError(t, err)
	assert.Equal(t, ir.Int(testutil.DefaultEpoch+1), v)

	_, err = e.View(ctx, "acct-1", "get_deepfake_value", ir.Object{"image_hash": ir.String("missing")})
	assert.True(t, bounded.IsNotFound(err))
}

func TestExecute_EventIsLogged(t *testing.T) {
	e, s := setupTestEngine(t)
	initialize(t, e, "originality", "alice", nil)

	r := execute(t, e, "alice", ir.Tx{
		Program: "originality",
		Account: "acct-1",
		Action:  "store_originality",
		Args:    ir.Object{"image_hash": ir.String("h"), "originality": ir.Bool(true)},
	})
	require.True(t, r.OK())

	events, err := s.ReadEvents(context.Background(), store.LogFilter{Account: "acct-1"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, *r.Event, events[0])
}

func TestExecute_BadSignatureIsNotLogged(t *testing.T) {
	e, s := setupTestEngine(t)
	initialize(t, e, "deepfake", "alice", nil)

	stx := testutil.MustSign(t, storeImage("acct-1", "h", 1), "alice")
	stx.Tx.Args["deepfake_value"] = ir.Int(3)

	_, err := e.Execute(context.Background(), stx)
	require.ErrorIs(t, err, auth.ErrBadSignature)

	logged, err := s.ReadTransactions(context.Background(), store.LogFilter{})
	require.NoError(t, err)
	assert.Len(t, logged, 1, "only the initialize transaction is logged")
}

func TestExecute_DenormalizedArgsAreRejected(t *testing.T) {
	e, s := setupTestEngine(t)
	initialize(t, e, "posts", "alice", nil)

	stx := testutil.MustSign(t, createPost("acct-1", "caf\u00e9"), "alice")
	// Canonically equal, so the signature alone would still verify.
	stx.Tx.Args = createPost("acct-1", "cafe\u0301").Args

	_, err := e.Execute(context.Background(), stx)
	require.ErrorIs(t, err, auth.ErrBadSignature)
	assert.ErrorIs(t, err, ir.ErrNotNormalized)

	logged, err := s.ReadTransactions(context.Background(), store.LogFilter{})
	require.NoError(t, err)
	assert.Len(t, logged, 1)
	assert.Equal(t, int64(1), e.Clock().Current())
}

func TestExecute_DuplicateIsRejected(t *testing.T) {
	e, s := setupTestEngine(t)
	initialize(t, e, "posts", "alice", nil)
	ctx := context.Background()

	stx := testutil.MustSign(t, createPost("acct-1", "once"), "alice")
	r, err := e.Execute(ctx, stx)
	require.NoError(t, err)
	require.True(t, r.OK())

	_, err = e.Execute(ctx, stx)
	require.ErrorIs(t, err, ErrDuplicateTx)
	assert.Equal(t, "", ErrorCode(err))

	stats, err := e.View(ctx, "acct-1", "stats", nil)
	require.NoError(t, err)
	assert.Equal(t, ir.Int(2), stats.(ir.Object)["next_post_id"])
	assert.Equal(t, ir.Int(1), stats.(ir.Object)["count"])

	// A failed transaction burns its nonce too.
	bad := testutil.MustSign(t, ir.Tx{Program: "posts", Account: "acct-1", Action: "create_post", Args: ir.Object{}}, "alice")
	r, err = e.Execute(ctx, bad)
	require.NoError(t, err)
	require.False(t, r.OK())
	_, err = e.Execute(ctx, bad)
	require.ErrorIs(t, err, ErrDuplicateTx)

	logged, err := s.ReadTransactions(ctx, store.LogFilter{})
	require.NoError(t, err)
	assert.Len(t, logged, 3)

	next := execute(t, e, "alice", createPost("acct-1", "twice"))
	assert.Equal(t, int64(4), next.Seq, "rejected duplicates take no seq")
}

func TestExecute_SameNonceOtherSigner(t *testing.T) {
	e, _ := setupTestEngine(t)
	initialize(t, e, "posts", "alice", ir.Object{"policy": ir.String("open")})

	tx := createPost("acct-1", "hi")
	tx.Nonce = 7
	assert.True(t, execute(t, e, "alice", tx).OK())
	assert.True(t, execute(t, e, "bob", tx).OK())
}

func TestExecute_AbortTakesNoSeq(t *testing.T) {
	e, s := setupTestEngine(t)
	initialize(t, e, "deepfake", "alice", nil)
	before := loadData(t, s, "acct-1")

	// Committing the event now fails after the program ran.
	_, err := s.DB().Exec(`DROP TABLE events`)
	require.NoError(t, err)

	_, err = e.Execute(context.Background(), testutil.MustSign(t, storeImage("acct-1", "h", 1), "alice"))
	require.Error(t, err)
	assert.Equal(t, "", ErrorCode(err))
	assert.Equal(t, int64(1), e.Clock().Current())
	assert.Equal(t, before, loadData(t, s, "acct-1"))

	r := execute(t, e, "alice", storeImage("acct-1", "h", 9))
	assert.Equal(t, int64(2), r.Seq)
}

func TestExecute_OwnerPolicyRejectsOtherSigner(t *testing.T) {
	e, s := setupTestEngine(t)
	initialize(t, e, "deepfake", "alice", nil)
	before := loadData(t, s, "acct-1")

	r := execute(t, e, "bob", storeImage("acct-1", "h", 1))
	assert.False(t, r.OK())
	assert.Equal(t, CodeUnauthorized, r.ErrorCode)
	assert.Equal(t, before, loadData(t, s, "acct-1"))
}

func TestExecute_OpenPolicyAdmitsAnySigner(t *testing.T) {
	e, _ := setupTestEngine(t)
	initialize(t, e, "posts", "alice", ir.Object{"policy": ir.String("open")})

	r := execute(t, e, "bob", createPost("acct-1", "hello"))
	require.True(t, r.OK())
	assert.Equal(t, ir.String(testutil.Signer("bob")), r.Result["user_address"])
}

func TestExecute_FailuresLeaveDataUnchanged(t *testing.T) {
	tests := []struct {
		name string
		tx   ir.Tx
		code string
	}{
		{"invalid deepfake value", storeImage("acct-1", "h", 4), string(bounded.CodeInvalidValue)},
		{"deepfake value out of u8 range", storeImage("acct-1", "h", 300), string(bounded.CodeInvalidValue)},
		{"hash too large", storeImage("acct-1", strings.Repeat("h", 65), 1), string(bounded.CodeFieldTooLarge)},
		{"unknown action", ir.Tx{Program: "deepfake", Account: "acct-1", Action: "delete_image"}, CodeUnknownAction},
		{"program mismatch", createPost("acct-1", "x"), CodeProgramMismatch},
		{"account not found", storeImage("nowhere", "h", 1), CodeAccountNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, s := setupTestEngine(t)
			initialize(t, e, "deepfake", "alice", nil)
			require.True(t, execute(t, e, "alice", storeImage("acct-1", "seed", 1)).OK())
			before := loadData(t, s, "acct-1")

			r := execute(t, e, "alice", tt.tx)
			assert.False(t, r.OK())
			assert.Equal(t, tt.code, r.ErrorCode)
			assert.Nil(t, r.Event)
			assert.Equal(t, before, loadData(t, s, "acct-1"))

			logged, err := s.ReadTransaction(context.Background(), r.TxID)
			require.NoError(t, err)
			assert.Equal(t, ir.StatusFailed, logged.Status)
			assert.Equal(t, tt.code, logged.ErrorCode)
		})
	}
}

func TestExecute_LedgerIDsSurviveFailures(t *testing.T) {
	e, _ := setupTestEngine(t)
	initialize(t, e, "posts", "alice", nil)

	ids := []ir.Value{}
	for _, content := range []string{"one", "two", strings.Repeat("x", 281), "three"} {
		r := execute(t, e, "alice", createPost("acct-1", content))
		if r.OK() {
			ids = append(ids, r.Result["post_id"])
		} else {
			assert.Equal(t, string(bounded.CodeFieldTooLarge), r.ErrorCode)
		}
	}
	assert.Equal(t, []ir.Value{ir.Int(1), ir.Int(2), ir.Int(3)}, ids)

	v, err := e.View(context.Background(), "acct-1", "get_posts_descending", ir.Object{"limit": ir.Int(2)})
	require.NoError(t, err)
	arr := v.(ir.Array)
	require.Len(t, arr, 2)
	assert.Equal(t, ir.Int(3), arr[0].(ir.Object)["post_id"])
	assert.Equal(t, ir.Int(2), arr[1].(ir.Object)["post_id"])
}

func TestExecute_SeqIsMonotonic(t *testing.T) {
	e, _ := setupTestEngine(t)
	initialize(t, e, "deepfake", "alice", nil)

	var last int64 = 1
	for i := 0; i < 5; i++ {
		value := int64(1 + i%4) // 4 fails
		r := execute(t, e, "alice", storeImage("acct-1", fmt.Sprintf("h%d", i), value))
		assert.Greater(t, r.Seq, last)
		last = r.Seq
	}
	assert.Equal(t, int64(6), e.Clock().Current())
}

func TestExecute_CancelledContext(t *testing.T) {
	e, _ := setupTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Execute(ctx, testutil.MustSign(t, storeImage("a", "h", 1), "alice"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestView_Errors(t *testing.T) {
	e, _ := setupTestEngine(t)
	initialize(t, e, "deepfake", "alice", nil)
	ctx := context.Background()

	_, err := e.View(ctx, "missing", "stats", nil)
	assert.ErrorIs(t, err, ErrAccountNotFound)

	_, err = e.View(ctx, "acct-1", "store_image", nil)
	assert.ErrorIs(t, err, programs.ErrUnknownAction)
}

func TestOpen_ResumesClock(t *testing.T) {
	e, s := setupTestEngine(t)
	initialize(t, e, "deepfake", "alice", nil)
	execute(t, e, "alice", storeImage("acct-1", "h", 1))
	execute(t, e, "alice", storeImage("acct-1", "h", 9))

	resumed, err := Open(context.Background(), s, programs.Default())
	require.NoError(t, err)
	assert.Equal(t, int64(3), resumed.Clock().Current())

	r := execute(t, resumed, "alice", storeImage("acct-1", "h2", 1))
	assert.Equal(t, int64(4), r.Seq)
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{bounded.NewCapacityExceeded("ImageStore", 1000), "CAPACITY_EXCEEDED"},
		{fmt.Errorf("wrapped: %w", bounded.NewNotFound("PostStore", "7")), "NOT_FOUND"},
		{fmt.Errorf("x: %w", auth.ErrUnauthorized), CodeUnauthorized},
		{fmt.Errorf("x: %w", ErrAccountNotFound), CodeAccountNotFound},
		{fmt.Errorf("x: %w", programs.ErrUnknownAction), CodeUnknownAction},
		{errors.New("disk on fire"), ""},
		{context.Canceled, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorCode(tt.err), "ErrorCode(%v)", tt.err)
	}
}

func TestRunAndSubmit(t *testing.T) {
	e, _ := setupTestEngine(t)
	initialize(t, e, "deepfake", "alice", nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	for i := 1; i <= 3; i++ {
		r, err := e.Submit(context.Background(), testutil.MustSign(t, storeImage("acct-1", fmt.Sprintf("h%d", i), 1), "alice"))
		require.NoError(t, err)
		assert.True(t, r.OK())
		assert.Equal(t, int64(i+1), r.Seq)
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	_, err := e.Submit(context.Background(), testutil.MustSign(t, storeImage("acct-1", "late", 1), "alice"))
	assert.ErrorIs(t, err, ErrStopped)
}

func TestRun_Stop(t *testing.T) {
	e, _ := setupTestEngine(t)

	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background()) }()

	e.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestSubscribe(t *testing.T) {
	e, _ := setupTestEngine(t)
	initialize(t, e, "deepfake", "alice", nil)

	events, cancel := e.Subscribe()
	r := execute(t, e, "alice", storeImage("acct-1", "h", 3))

	select {
	case ev := <-events:
		assert.Equal(t, *r.Event, ev)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}

	cancel()
	_, open := <-events
	assert.False(t, open, "channel closes on cancel")
	cancel() // idempotent
}

func TestSubscribe_FailedTransactionsDoNotNotify(t *testing.T) {
	e, _ := setupTestEngine(t)
	initialize(t, e, "deepfake", "alice", nil)

	events, cancel := e.Subscribe()
	defer cancel()
	execute(t, e, "alice", storeImage("acct-1", "h", 7))
	assert.Len(t, events, 0)
}

func TestSubscribe_SlowSubscriberDrops(t *testing.T) {
	e, _ := setupTestEngine(t, WithSubscriberBuffer(1))
	initialize(t, e, "deepfake", "alice", nil)

	events, cancel := e.Subscribe()
	defer cancel()

	first := execute(t, e, "alice", storeImage("acct-1", "a", 1))
	second := execute(t, e, "alice", storeImage("acct-1", "b", 1))
	require.True(t, first.OK())
	require.True(t, second.OK(), "a full subscriber never blocks the writer")

	require.Len(t, events, 1)
	ev := <-events
	assert.Equal(t, first.Seq, ev.Seq)
}

func TestStop_ClosesSubscribers(t *testing.T) {
	e, _ := setupTestEngine(t)
	events, _ := e.Subscribe()
	e.Stop()
	_, open := <-events
	assert.False(t, open)

	late, _ := e.Subscribe()
	_, open = <-late
	assert.False(t, open, "subscribing after Stop yields a closed channel")
}
