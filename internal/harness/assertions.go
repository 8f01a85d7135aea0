package harness

import (
	"context"
	"fmt"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes the trace to help debug the failure.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEntry
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, entry := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s %s", i+1, entry.Step, entry.Account, entry.Action)
			if entry.Status != "" {
				fmt.Fprintf(&buf, " %s", entry.Status)
			}
			if entry.Code != "" {
				fmt.Fprintf(&buf, " %s", entry.Code)
			}
			if entry.Event != "" {
				fmt.Fprintf(&buf, " -> %s", entry.Event)
			}
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns one message per
// failure.
func EvaluateAssertions(ctx context.Context, h *Harness, result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertEventCount:
			err = assertEventCount(result, a)
		case AssertEventOrder:
			err = assertEventOrder(result, a)
		case AssertFinalState:
			err = h.assertFinalState(ctx, a)
		case AssertReplay:
			err = h.assertReplay(ctx)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

// assertEventCount checks that the event appears exactly Count times.
func assertEventCount(result *Result, a Assertion) error {
	count := 0
	for _, name := range result.Events() {
		if name == a.Event {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertEventCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, a.Event),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertEventOrder checks that the events occur in the given order.
// Intervening events are allowed.
func assertEventOrder(result *Result, a Assertion) error {
	events := result.Events()
	next := 0
	for _, name := range events {
		if next < len(a.Events) && name == a.Events[next] {
			next++
		}
	}
	if next < len(a.Events) {
		return &AssertionError{
			Type:     AssertEventOrder,
			Expected: fmt.Sprintf("events in order: %v", a.Events),
			Actual:   fmt.Sprintf("%v (missing %s)", events, a.Events[next]),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertFinalState runs a query after all steps and compares the result.
func (h *Harness) assertFinalState(ctx context.Context, a Assertion) error {
	args, err := toObject(a.Args)
	if err != nil {
		return fmt.Errorf("final_state args: %w", err)
	}
	v, err := h.engine.View(ctx, a.Account, a.Query, args)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s on %s", a.Query, a.Account),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}

	var msg string
	if a.Value != nil {
		msg = h.matchExact(v, a.Value)
	}
	if msg == "" && len(a.Expect) > 0 {
		msg = h.matchSubset(v, a.Expect)
	}
	if msg != "" {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s on %s to match", a.Query, a.Account),
			Actual:   msg,
		}
	}
	return nil
}

// assertReplay re-executes the log and requires identical state.
func (h *Harness) assertReplay(ctx context.Context) error {
	res, err := h.engine.Replay(ctx)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	if !res.OK() {
		reasons := make([]string, len(res.Mismatches))
		for i, m := range res.Mismatches {
			reasons[i] = fmt.Sprintf("seq=%d account=%s: %s", m.Seq, m.Account, m.Reason)
		}
		return &AssertionError{
			Type:     AssertReplay,
			Expected: "replay reproduces every account",
			Actual:   strings.Join(reasons, "; "),
		}
	}
	return nil
}
