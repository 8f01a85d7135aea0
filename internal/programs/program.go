package programs

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/roach88/ledgerbox/internal/bounded"
	"github.com/roach88/ledgerbox/internal/ir"
	"github.com/roach88/ledgerbox/internal/layout"
)

// ErrUnknownAction is returned for an action or query name the program does
// not declare.
var ErrUnknownAction = errors.New("unknown action")

// Call is one write against a program's store.
type Call struct {
	Action string
	Args   ir.Object

	// Signer is the hex public key that signed the transaction.
	Signer string

	// Timestamp is the host clock reading in unix seconds.
	Timestamp int64
}

// Outcome is the result of a successful write.
type Outcome struct {
	// Data is the re-encoded store, exactly Layout().Size() bytes.
	Data []byte

	// Event is the notification name; Payload its fields.
	Event   string
	Payload ir.Object
}

// Program is a bounded store exposed through named actions and queries.
//
// Execute never modifies data: on success it returns a new buffer, on
// failure it returns an error and the caller keeps the old bytes.
type Program interface {
	Name() string
	Layout() layout.Store
	Actions() []ir.ActionSig
	Init() ([]byte, error)
	Execute(ctx context.Context, data []byte, call Call) (Outcome, error)
	View(data []byte, query string, args ir.Object) (ir.Value, error)
}

// Registry maps program names to programs.
type Registry struct {
	programs map[string]Program
}

// NewRegistry returns a registry holding ps. Duplicate names panic.
func NewRegistry(ps ...Program) *Registry {
	r := &Registry{programs: make(map[string]Program, len(ps))}
	for _, p := range ps {
		if _, dup := r.programs[p.Name()]; dup {
			panic(fmt.Sprintf("programs: duplicate program %q", p.Name()))
		}
		r.programs[p.Name()] = p
	}
	return r
}

// Default returns the registry of the built-in programs.
func Default() *Registry {
	return NewRegistry(Posts{}, Deepfake{}, Originality{})
}

// Get returns the program with the given name.
func (r *Registry) Get(name string) (Program, bool) {
	p, ok := r.programs[name]
	return p, ok
}

// Names returns the registered program names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.programs))
	for name := range r.programs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// lookupSig finds a declared signature of the given kind and checks args
// against it.
func lookupSig(p Program, name string, kind ir.ActionKind, args ir.Object) (ir.ActionSig, error) {
	for _, sig := range p.Actions() {
		if sig.Name != name || sig.Kind != kind {
			continue
		}
		if errs := sig.CheckArgs(args); len(errs) > 0 {
			return sig, bounded.NewInvalidValue(errs[0].Field, errs[0].Message)
		}
		return sig, nil
	}
	return ir.ActionSig{}, fmt.Errorf("%s %q on program %q: %w", kind, name, p.Name(), ErrUnknownAction)
}

// encodeNew serializes a store into a fresh buffer.
func encodeNew(size int, encode func([]byte) error) ([]byte, error) {
	buf := make([]byte, size)
	if err := encode(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// statsValue describes occupancy of a store.
func statsValue(s layout.Store, count int, extra ir.Object) ir.Object {
	obj := ir.Object{
		"store":       ir.String(s.Name),
		"count":       ir.Int(count),
		"capacity":    ir.Int(s.Capacity),
		"record_size": ir.Int(s.Record.Size()),
		"store_size":  ir.Int(s.Size()),
	}
	for k, v := range extra {
		obj[k] = v
	}
	return obj
}
