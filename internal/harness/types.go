package harness

import "github.com/roach88/ledgerbox/internal/ir"

// TraceEntry records one executed step.
type TraceEntry struct {
	// Seq is the transaction's logical time; 0 for views.
	Seq     int64
	Step    string
	Program string
	Account string
	Action  string

	// Signer is the signer name, not the key.
	Signer string
	Args   ir.Object

	// Status and Code describe transactions; views carry only Code on error.
	Status string
	Code   string

	// Result is the transaction result, or the value a view returned.
	Result ir.Value
	Event  string
}

// Object renders the entry for golden comparison, omitting empty fields.
func (e TraceEntry) Object() ir.Object {
	obj := ir.Object{
		"step":    ir.String(e.Step),
		"account": ir.String(e.Account),
		"action":  ir.String(e.Action),
	}
	if e.Seq != 0 {
		obj["seq"] = ir.Int(e.Seq)
	}
	if e.Program != "" {
		obj["program"] = ir.String(e.Program)
	}
	if e.Signer != "" {
		obj["signer"] = ir.String(e.Signer)
	}
	if len(e.Args) > 0 {
		obj["args"] = e.Args
	}
	if e.Status != "" {
		obj["status"] = ir.String(e.Status)
	}
	if e.Code != "" {
		obj["code"] = ir.String(e.Code)
	}
	if e.Result != nil {
		obj["result"] = e.Result
	}
	if e.Event != "" {
		obj["event"] = ir.String(e.Event)
	}
	return obj
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true if every expect clause and assertion held.
	Pass bool `json:"pass"`

	Trace []TraceEntry `json:"-"`

	// Errors lists failed expectations and assertions. Empty if Pass.
	Errors []string `json:"errors"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEntry{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Events returns the names of events in the trace, in order.
func (r *Result) Events() []string {
	var names []string
	for _, e := range r.Trace {
		if e.Event != "" {
			names = append(names, e.Event)
		}
	}
	return names
}
