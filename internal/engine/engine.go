package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/ledgerbox/internal/auth"
	"github.com/roach88/ledgerbox/internal/bounded"
	"github.com/roach88/ledgerbox/internal/ir"
	"github.com/roach88/ledgerbox/internal/programs"
	"github.com/roach88/ledgerbox/internal/store"
)

// InitializeAction is the reserved action that allocates a new account.
const InitializeAction = "initialize"

// Engine verifies, authorizes, executes and records transactions.
//
// Thread-safety model:
//   - Execute, Initialize, Submit, View, Subscribe: safe from any goroutine
//   - Run: must be called from exactly one goroutine
//
// Mutations are serialized by mu; View reads straight from the store.
type Engine struct {
	mu       sync.Mutex
	store    *store.Store
	programs *programs.Registry
	clock    *Clock
	now      TimeSource
	addrs    AddressGenerator
	policy   auth.Policy
	log      *zap.SugaredLogger
	queue    *submitQueue
	notifier *notifier

	subscriberBuffer int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Default: zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		e.log = l.Sugar()
	}
}

// WithClock sets the logical clock.
func WithClock(c *Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithTimeSource sets the wall clock used for transaction timestamps.
// Default: time.Now.
func WithTimeSource(now TimeSource) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithAddressGenerator sets the generator for accounts initialized without
// an address. Default: UUIDv7Generator.
func WithAddressGenerator(g AddressGenerator) Option {
	return func(e *Engine) {
		e.addrs = g
	}
}

// WithDefaultPolicy sets the write policy for accounts initialized without
// an explicit policy argument. Default: auth.PolicyOwner.
func WithDefaultPolicy(p auth.Policy) Option {
	return func(e *Engine) {
		e.policy = p
	}
}

// WithSubscriberBuffer sets the channel capacity of each subscriber.
// Default: DefaultSubscriberBuffer.
func WithSubscriberBuffer(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.subscriberBuffer = n
		}
	}
}

// New creates an engine over s and reg with a clock starting at 0.
// Use Open to resume the clock from an existing log.
func New(s *store.Store, reg *programs.Registry, opts ...Option) *Engine {
	e := &Engine{
		store:            s,
		programs:         reg,
		clock:            NewClock(),
		now:              time.Now,
		addrs:            UUIDv7Generator{},
		policy:           auth.PolicyOwner,
		log:              zap.NewNop().Sugar(),
		queue:            newSubmitQueue(),
		subscriberBuffer: DefaultSubscriberBuffer,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.notifier = newNotifier(e.subscriberBuffer, e.log)
	return e
}

// Open creates an engine whose clock resumes after the highest seq in the
// transaction log. A WithClock option overrides the resumed clock.
func Open(ctx context.Context, s *store.Store, reg *programs.Registry, opts ...Option) (*Engine, error) {
	last, err := s.MaxSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("resume clock: %w", err)
	}
	return New(s, reg, append([]Option{WithClock(NewClockAt(last))}, opts...)...), nil
}

// Clock returns the engine's logical clock.
func (e *Engine) Clock() *Clock {
	return e.clock
}

// Initialize allocates an account for stx.Tx.Program. The signer becomes
// the account authority. The transaction's action must be InitializeAction;
// its only accepted argument is "policy" ("owner" or "open"). An empty
// account address is filled from the address generator.
func (e *Engine) Initialize(ctx context.Context, stx auth.SignedTx) (ir.Receipt, error) {
	if stx.Tx.Action != InitializeAction {
		return ir.Receipt{}, fmt.Errorf("initialize: action is %q, want %q", stx.Tx.Action, InitializeAction)
	}
	return e.Execute(ctx, stx)
}

// Execute verifies and applies a signed transaction.
//
// A transaction that reaches the program and fails (capacity, validation,
// authorization, unknown account) is logged with an error code and returned
// as a failed receipt with a nil error. A non-nil error means nothing was
// logged: bad signature, a signer/nonce pair already in the log
// (ErrDuplicateTx), cancellation or a storage failure. Only logged
// transactions take a seq, so the log has no gaps.
func (e *Engine) Execute(ctx context.Context, stx auth.SignedTx) (ir.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return ir.Receipt{}, err
	}
	if err := auth.Verify(stx); err != nil {
		e.log.Debugw("rejected transaction",
			"signer", stx.Signer,
			"program", stx.Tx.Program,
			"action", stx.Tx.Action,
			"error", err,
		)
		return ir.Receipt{}, fmt.Errorf("verify transaction: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	seen, err := e.store.HasNonce(ctx, stx.Signer, stx.Tx.Nonce)
	if err != nil {
		return ir.Receipt{}, err
	}
	if seen {
		e.log.Debugw("rejected duplicate transaction",
			"signer", stx.Signer,
			"nonce", stx.Tx.Nonce,
			"action", stx.Tx.Action,
		)
		return ir.Receipt{}, fmt.Errorf("nonce %d: %w", stx.Tx.Nonce, ErrDuplicateTx)
	}

	seq := e.clock.Current() + 1
	r, err := e.apply(ctx, stx, seq, e.now().Unix(), "")
	if err != nil {
		return ir.Receipt{}, err
	}
	e.clock.Next()
	return r, nil
}

// apply runs a verified transaction at the given seq and timestamp. address
// pins the account address of an initialize transaction (used by replay).
// Caller must hold mu.
func (e *Engine) apply(ctx context.Context, stx auth.SignedTx, seq, ts int64, address string) (ir.Receipt, error) {
	txID, err := ir.TxID(stx.Tx, stx.Signer, seq)
	if err != nil {
		return ir.Receipt{}, err
	}
	rec := store.TxRecord{
		ID:        txID,
		Seq:       seq,
		Tx:        stx.Tx,
		Signer:    stx.Signer,
		Signature: stx.Signature,
		Timestamp: ts,
	}

	var receipt ir.Receipt
	if stx.Tx.Action == InitializeAction {
		receipt, err = e.initialize(ctx, rec, address)
	} else {
		receipt, err = e.execute(ctx, rec)
	}
	if err == nil {
		return receipt, nil
	}

	code := ErrorCode(err)
	if code == "" {
		e.log.Errorw("transaction aborted",
			"tx_id", txID,
			"seq", seq,
			"program", stx.Tx.Program,
			"action", stx.Tx.Action,
			"error", err,
		)
		return ir.Receipt{}, err
	}
	return e.fail(ctx, rec, code, err)
}

func (e *Engine) initialize(ctx context.Context, rec store.TxRecord, address string) (ir.Receipt, error) {
	tx := rec.Tx
	prog, ok := e.programs.Get(tx.Program)
	if !ok {
		return ir.Receipt{}, fmt.Errorf("%q: %w", tx.Program, ErrUnknownProgram)
	}
	policy, err := e.initPolicy(tx.Args)
	if err != nil {
		return ir.Receipt{}, err
	}

	if address == "" {
		address = tx.Account
	}
	if address == "" {
		address = e.addrs.Generate()
	}

	data, err := prog.Init()
	if err != nil {
		return ir.Receipt{}, fmt.Errorf("init %s store: %w", prog.Name(), err)
	}
	acct := ir.Account{
		Address:   address,
		Program:   prog.Name(),
		Authority: rec.Signer,
		Policy:    string(policy),
		Size:      prog.Layout().Size(),
		CreatedAt: rec.Seq,
	}

	rec.Status = ir.StatusOK
	rec.Result = ir.Object{
		"address": ir.String(address),
		"policy":  ir.String(string(policy)),
		"size":    ir.Int(acct.Size),
	}
	if err := e.store.CreateAccount(ctx, acct, data, rec); err != nil {
		return ir.Receipt{}, err
	}

	e.log.Infow("account initialized",
		"address", address,
		"program", acct.Program,
		"policy", acct.Policy,
		"size", acct.Size,
		"seq", rec.Seq,
	)

	r := receiptFor(rec)
	r.Account = address
	return r, nil
}

func (e *Engine) initPolicy(args ir.Object) (auth.Policy, error) {
	for _, k := range args.SortedKeys() {
		if k != "policy" {
			return "", bounded.NewInvalidValue(k, "unknown argument")
		}
	}
	v, ok := args["policy"]
	if !ok {
		return e.policy, nil
	}
	s, ok := v.(ir.String)
	if !ok {
		return "", bounded.NewInvalidValue("policy", fmt.Sprintf("expected string, got %s", ir.TypeName(v)))
	}
	p, err := auth.ParsePolicy(string(s))
	if err != nil {
		return "", bounded.NewInvalidValue("policy", err.Error())
	}
	return p, nil
}

func (e *Engine) execute(ctx context.Context, rec store.TxRecord) (ir.Receipt, error) {
	tx := rec.Tx
	acct, data, err := e.store.LoadAccount(ctx, tx.Account)
	if err != nil {
		return ir.Receipt{}, err
	}
	if acct.Program != tx.Program {
		return ir.Receipt{}, fmt.Errorf("account %s is a %s store, not %s: %w", acct.Address, acct.Program, tx.Program, ErrProgramMismatch)
	}
	prog, ok := e.programs.Get(acct.Program)
	if !ok {
		return ir.Receipt{}, fmt.Errorf("%q: %w", acct.Program, ErrUnknownProgram)
	}
	if err := auth.Policy(acct.Policy).Authorize(acct.Authority, rec.Signer); err != nil {
		return ir.Receipt{}, err
	}

	out, err := prog.Execute(ctx, data, programs.Call{
		Action:    tx.Action,
		Args:      tx.Args,
		Signer:    rec.Signer,
		Timestamp: rec.Timestamp,
	})
	if err != nil {
		return ir.Receipt{}, err
	}

	rec.Status = ir.StatusOK
	rec.Result = out.Payload

	var ev *ir.Event
	if out.Event != "" {
		id, err := ir.EventID(rec.ID, out.Event, out.Payload, rec.Seq)
		if err != nil {
			return ir.Receipt{}, err
		}
		ev = &ir.Event{
			Seq:     rec.Seq,
			ID:      id,
			TxID:    rec.ID,
			Program: acct.Program,
			Account: acct.Address,
			Name:    out.Event,
			Payload: out.Payload,
		}
	}

	if err := e.store.CommitExecution(ctx, acct.Address, out.Data, rec, ev); err != nil {
		return ir.Receipt{}, err
	}

	e.log.Infow("transaction committed",
		"tx_id", rec.ID,
		"seq", rec.Seq,
		"program", acct.Program,
		"account", acct.Address,
		"action", tx.Action,
	)

	r := receiptFor(rec)
	if ev != nil {
		e.notifier.publish(*ev)
		r.Event = ev
	}
	return r, nil
}

// fail logs a transaction that did not commit.
func (e *Engine) fail(ctx context.Context, rec store.TxRecord, code string, cause error) (ir.Receipt, error) {
	rec.Status = ir.StatusFailed
	rec.Result = nil
	rec.ErrorCode = code
	rec.Error = cause.Error()

	if err := e.store.RecordFailure(ctx, rec); err != nil {
		return ir.Receipt{}, fmt.Errorf("record failed transaction %s: %w", rec.ID, err)
	}

	e.log.Infow("transaction failed",
		"tx_id", rec.ID,
		"seq", rec.Seq,
		"program", rec.Tx.Program,
		"account", rec.Tx.Account,
		"action", rec.Tx.Action,
		"code", code,
		"error", rec.Error,
	)
	return receiptFor(rec), nil
}

func receiptFor(rec store.TxRecord) ir.Receipt {
	return ir.Receipt{
		TxID:      rec.ID,
		Seq:       rec.Seq,
		Program:   rec.Tx.Program,
		Account:   rec.Tx.Account,
		Action:    rec.Tx.Action,
		Signer:    rec.Signer,
		Status:    rec.Status,
		Result:    rec.Result,
		ErrorCode: rec.ErrorCode,
		Error:     rec.Error,
		Timestamp: rec.Timestamp,
	}
}

// View runs a read-only query against an account. No authorization.
func (e *Engine) View(ctx context.Context, address, query string, args ir.Object) (ir.Value, error) {
	acct, data, err := e.store.LoadAccount(ctx, address)
	if err != nil {
		return nil, err
	}
	prog, ok := e.programs.Get(acct.Program)
	if !ok {
		return nil, fmt.Errorf("%q: %w", acct.Program, ErrUnknownProgram)
	}
	v, err := prog.View(data, query, args)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", acct.Program, query, err)
	}
	return v, nil
}

// Account returns the metadata of the account at address.
func (e *Engine) Account(ctx context.Context, address string) (ir.Account, error) {
	acct, _, err := e.store.LoadAccount(ctx, address)
	return acct, err
}

// Submit hands stx to the Run loop and waits for its receipt.
// Returns ErrStopped if the engine no longer accepts work.
func (e *Engine) Submit(ctx context.Context, stx auth.SignedTx) (ir.Receipt, error) {
	s := submission{tx: stx, result: make(chan submitResult, 1)}
	if !e.queue.Enqueue(s) {
		return ir.Receipt{}, ErrStopped
	}
	select {
	case <-ctx.Done():
		return ir.Receipt{}, ctx.Err()
	case r := <-s.result:
		return r.receipt, r.err
	}
}

// Run executes submitted transactions in FIFO order until ctx is cancelled
// or Stop is called. Must be called from exactly one goroutine.
//
// A failed submission does not stop the loop: its error goes back to the
// submitter.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info("engine starting")

	for {
		if s, ok := e.queue.TryDequeue(); ok {
			receipt, err := e.Execute(ctx, s.tx)
			s.result <- submitResult{receipt: receipt, err: err}
			continue
		}

		select {
		case <-ctx.Done():
			e.log.Infow("engine stopping", "reason", "context cancelled")
			drain(e.queue.Close())
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel closes with the queue; a closed queue has
			// already handed its pending submissions back.
			if e.queue.Closed() {
				e.log.Infow("engine stopping", "reason", "stopped")
				return nil
			}
		}
	}
}

// Stop closes the submission queue, fails waiting submissions with
// ErrStopped and closes every subscriber channel.
func (e *Engine) Stop() {
	drain(e.queue.Close())
	e.notifier.close()
}

func drain(pending []submission) {
	for _, s := range pending {
		s.result <- submitResult{err: ErrStopped}
	}
}
