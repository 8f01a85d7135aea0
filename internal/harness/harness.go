package harness

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/ledgerbox/internal/auth"
	"github.com/roach88/ledgerbox/internal/engine"
	"github.com/roach88/ledgerbox/internal/ir"
	"github.com/roach88/ledgerbox/internal/programs"
	"github.com/roach88/ledgerbox/internal/store"
	"github.com/roach88/ledgerbox/internal/testutil"
)

// DefaultSigner is the signer of steps that name none.
const DefaultSigner = "alice"

// Harness executes scenario steps against one engine.
type Harness struct {
	store    *store.Store
	engine   *engine.Engine
	signer   string
	nonce    int64
	programs map[string]string // account address -> program
	signers  map[string]string // public key -> signer name
	events   <-chan ir.Event   // subscription opened before the first step
}

// Run executes a scenario in a fresh in-memory database and returns the
// result. opts are applied after the harness's deterministic clock and
// address generator; use them to pass a logger.
//
// Transactions go through the engine's queued writer (Run/Submit), and
// every receipt is checked against a subscription to committed events.
//
// A returned error means the scenario could not run (storage failure,
// unconvertible arguments). Failed expectations and assertions are
// reported in Result.Errors instead.
func Run(ctx context.Context, scenario *Scenario, opts ...engine.Option) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	base := []engine.Option{
		engine.WithTimeSource(testutil.NewDeterministicClock(0).Now),
		engine.WithAddressGenerator(testutil.NewSequentialAddresses("")),
	}
	eng := engine.New(st, programs.Default(), append(base, opts...)...)
	events, unsubscribe := eng.Subscribe()

	// The writer loop outlives ctx; Stop ends it.
	loop := make(chan error, 1)
	go func() { loop <- eng.Run(context.WithoutCancel(ctx)) }()
	defer func() {
		unsubscribe()
		eng.Stop()
		<-loop
	}()

	h := &Harness{
		store:    st,
		engine:   eng,
		signer:   scenario.Signer,
		programs: make(map[string]string),
		signers:  make(map[string]string),
		events:   events,
	}
	if h.signer == "" {
		h.signer = DefaultSigner
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.runStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	for _, msg := range EvaluateAssertions(ctx, h, result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) runStep(ctx context.Context, i int, step Step, result *Result) error {
	switch step.Kind() {
	case StepInit:
		return h.runInit(ctx, i, step, result)
	case StepInvoke:
		return h.runInvoke(ctx, i, step, result)
	default:
		return h.runView(ctx, i, step, result)
	}
}

func (h *Harness) runInit(ctx context.Context, i int, step Step, result *Result) error {
	var args ir.Object
	if step.Policy != "" {
		args = ir.Object{"policy": ir.String(step.Policy)}
	}
	tx := ir.Tx{
		Program: step.Init,
		Account: step.Account,
		Action:  engine.InitializeAction,
		Args:    args,
	}
	r, err := h.submit(ctx, step, tx)
	if err != nil {
		return err
	}
	if r.OK() {
		h.programs[r.Account] = step.Init
	}
	h.recordTx(step, tx, r, result)
	h.checkTx(i, step, r, result)
	h.checkNotification(i, r, result)
	return nil
}

func (h *Harness) runInvoke(ctx context.Context, i int, step Step, result *Result) error {
	args, err := toObject(step.Args)
	if err != nil {
		return fmt.Errorf("args: %w", err)
	}
	program := step.Program
	if program == "" {
		program = h.programs[step.Account]
	}
	tx := ir.Tx{
		Program: program,
		Account: step.Account,
		Action:  step.Invoke,
		Args:    args,
	}
	r, err := h.submit(ctx, step, tx)
	if err != nil {
		return err
	}
	h.recordTx(step, tx, r, result)
	h.checkTx(i, step, r, result)
	h.checkNotification(i, r, result)
	return nil
}

func (h *Harness) runView(ctx context.Context, i int, step Step, result *Result) error {
	args, err := toObject(step.Args)
	if err != nil {
		return fmt.Errorf("args: %w", err)
	}
	entry := TraceEntry{
		Step:    StepView,
		Program: h.programs[step.Account],
		Account: step.Account,
		Action:  step.View,
		Args:    args,
	}

	v, err := h.engine.View(ctx, step.Account, step.View, args)
	if err != nil {
		code := engine.ErrorCode(err)
		if code == "" {
			return fmt.Errorf("view %s: %w", step.View, err)
		}
		entry.Code = code
	} else {
		entry.Result = h.redact(v)
	}
	result.Trace = append(result.Trace, entry)

	label := fmt.Sprintf("steps[%d] view %s", i, step.View)
	e := step.Expect
	if e == nil {
		if entry.Code != "" {
			result.AddError(fmt.Sprintf("%s: expected success, got %s: %v", label, entry.Code, err))
		}
		return nil
	}
	if entry.Code != e.Code {
		result.AddError(fmt.Sprintf("%s: expected code %q, got %q", label, e.Code, entry.Code))
		return nil
	}
	if e.Value != nil {
		if msg := h.matchExact(v, e.Value); msg != "" {
			result.AddError(fmt.Sprintf("%s: %s", label, msg))
		}
	}
	if e.Result != nil {
		if msg := h.matchSubset(v, e.Result); msg != "" {
			result.AddError(fmt.Sprintf("%s: %s", label, msg))
		}
	}
	return nil
}

// submit signs tx as the step's signer with the next nonce and hands it to
// the writer loop.
func (h *Harness) submit(ctx context.Context, step Step, tx ir.Tx) (ir.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return ir.Receipt{}, err
	}
	name := h.signerName(step)
	h.nonce++
	tx.Nonce = h.nonce

	stx, err := auth.Sign(tx, testutil.Key(name))
	if err != nil {
		return ir.Receipt{}, err
	}
	return h.engine.Submit(ctx, stx)
}

// checkNotification matches the subscription against the receipt. The
// writer publishes before it answers Submit, so a committed event is
// already buffered when the receipt arrives.
func (h *Harness) checkNotification(i int, r ir.Receipt, result *Result) {
	label := fmt.Sprintf("steps[%d] %s", i, r.Action)
	select {
	case ev, ok := <-h.events:
		switch {
		case !ok:
			result.AddError(fmt.Sprintf("%s: subscription closed", label))
		case r.Event == nil:
			result.AddError(fmt.Sprintf("%s: notified %s at seq %d for a transaction without event", label, ev.Name, ev.Seq))
		case ev.ID != r.Event.ID || ev.Seq != r.Event.Seq:
			result.AddError(fmt.Sprintf("%s: notified %s at seq %d, receipt has %s at seq %d",
				label, ev.Name, ev.Seq, r.Event.Name, r.Event.Seq))
		}
	default:
		if r.Event != nil {
			result.AddError(fmt.Sprintf("%s: event %s was not delivered to subscribers", label, r.Event.Name))
		}
	}
}

func (h *Harness) signerName(step Step) string {
	name := step.As
	if name == "" {
		name = h.signer
	}
	h.signers[testutil.Signer(name)] = name
	return name
}

func (h *Harness) recordTx(step Step, tx ir.Tx, r ir.Receipt, result *Result) {
	entry := TraceEntry{
		Seq:     r.Seq,
		Step:    step.Kind(),
		Program: tx.Program,
		Account: r.Account,
		Action:  tx.Action,
		Signer:  h.signers[r.Signer],
		Args:    tx.Args,
		Status:  string(r.Status),
		Code:    r.ErrorCode,
	}
	if len(r.Result) > 0 {
		entry.Result = h.redact(r.Result)
	}
	if r.Event != nil {
		entry.Event = r.Event.Name
	}
	result.Trace = append(result.Trace, entry)
}

// checkTx compares a receipt with the step's expect clause. A step without
// one must commit.
func (h *Harness) checkTx(i int, step Step, r ir.Receipt, result *Result) {
	label := fmt.Sprintf("steps[%d] %s %s", i, step.Kind(), r.Action)
	e := step.Expect
	if e == nil {
		if !r.OK() {
			result.AddError(fmt.Sprintf("%s: expected ok, got %s: %s", label, r.ErrorCode, r.Error))
		}
		return
	}
	if e.Status != "" && string(r.Status) != e.Status {
		result.AddError(fmt.Sprintf("%s: expected status %s, got %s (%s)", label, e.Status, r.Status, r.Error))
	}
	if e.Code != "" && r.ErrorCode != e.Code {
		result.AddError(fmt.Sprintf("%s: expected code %q, got %q", label, e.Code, r.ErrorCode))
	}
	if e.Event != "" {
		got := ""
		if r.Event != nil {
			got = r.Event.Name
		}
		if got != e.Event {
			result.AddError(fmt.Sprintf("%s: expected event %q, got %q", label, e.Event, got))
		}
	}
	if e.Result != nil {
		if msg := h.matchSubset(r.Result, e.Result); msg != "" {
			result.AddError(fmt.Sprintf("%s: %s", label, msg))
		}
	}
}

// expand converts YAML data to a Value, replacing "@name" strings with the
// named signer's public key.
func (h *Harness) expand(v any) (ir.Value, error) {
	val, err := ir.FromGo(v)
	if err != nil {
		return nil, err
	}
	return mapStrings(val, func(s string) string {
		if name, ok := strings.CutPrefix(s, "@"); ok && name != "" {
			key := testutil.Signer(name)
			h.signers[key] = name
			return key
		}
		return s
	}), nil
}

// redact replaces known signer keys with "@name".
func (h *Harness) redact(v ir.Value) ir.Value {
	return mapStrings(v, func(s string) string {
		if name, ok := h.signers[s]; ok {
			return "@" + name
		}
		return s
	})
}

func mapStrings(v ir.Value, fn func(string) string) ir.Value {
	switch val := v.(type) {
	case ir.String:
		return ir.String(fn(string(val)))
	case ir.Array:
		out := make(ir.Array, len(val))
		for i, elem := range val {
			out[i] = mapStrings(elem, fn)
		}
		return out
	case ir.Object:
		out := make(ir.Object, len(val))
		for k, elem := range val {
			out[k] = mapStrings(elem, fn)
		}
		return out
	default:
		return v
	}
}

func (h *Harness) matchExact(got ir.Value, want any) string {
	exp, err := h.expand(want)
	if err != nil {
		return fmt.Sprintf("bad expected value: %v", err)
	}
	if !equalValues(got, exp) {
		return fmt.Sprintf("expected %s, got %s", render(exp), render(got))
	}
	return ""
}

// matchSubset checks that every field of want is present in got with an
// equal value. Extra fields in got are ignored.
func (h *Harness) matchSubset(got ir.Value, want map[string]any) string {
	obj, ok := got.(ir.Object)
	if !ok {
		return fmt.Sprintf("expected object result, got %s", render(got))
	}
	keys := make([]string, 0, len(want))
	for k := range want {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		exp, err := h.expand(want[k])
		if err != nil {
			return fmt.Sprintf("bad expected value for %s: %v", k, err)
		}
		actual, present := obj[k]
		if !present {
			return fmt.Sprintf("result field %s missing", k)
		}
		if !equalValues(actual, exp) {
			return fmt.Sprintf("result field %s: expected %s, got %s", k, render(exp), render(actual))
		}
	}
	return ""
}

func equalValues(a, b ir.Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ca, errA := ir.MarshalCanonical(a)
	cb, errB := ir.MarshalCanonical(b)
	return errA == nil && errB == nil && bytes.Equal(ca, cb)
}

func render(v ir.Value) string {
	if v == nil {
		return "nothing"
	}
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func toObject(args map[string]any) (ir.Object, error) {
	if args == nil {
		return ir.Object{}, nil
	}
	v, err := ir.FromGo(args)
	if err != nil {
		return nil, err
	}
	return v.(ir.Object), nil
}
