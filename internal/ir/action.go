package ir

import "fmt"

// ValidTypes defines the allowed type strings for action and query
// arguments. There is no "float".
var ValidTypes = map[string]bool{
	"string": true,
	"int":    true,
	"bool":   true,
	"array":  true,
	"object": true,
}

// ActionKind distinguishes writes from reads.
type ActionKind string

const (
	KindAction ActionKind = "action"
	KindQuery  ActionKind = "query"
)

// ActionSig is the signature of a program action or query.
type ActionSig struct {
	Name string     `json:"name"`
	Kind ActionKind `json:"kind"`
	Args []NamedArg `json:"args"`

	// Emits names the event a successful action produces. Empty for queries.
	Emits string `json:"emits,omitempty"`
}

// NamedArg is a named, typed argument.
type NamedArg struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ValidationError represents a validation error with field path and message.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the signature itself. Returns all errors rather than
// stopping at the first.
func (a *ActionSig) Validate() []ValidationError {
	var errs []ValidationError

	if a.Name == "" {
		errs = append(errs, ValidationError{Field: "name", Message: "name is required"})
	}
	switch a.Kind {
	case KindAction:
		if a.Emits == "" {
			errs = append(errs, ValidationError{Field: "emits", Message: "actions must name the event they emit"})
		}
	case KindQuery:
		if a.Emits != "" {
			errs = append(errs, ValidationError{Field: "emits", Message: "queries do not emit events"})
		}
	default:
		errs = append(errs, ValidationError{Field: "kind", Message: fmt.Sprintf("invalid kind %q", a.Kind)})
	}

	seen := make(map[string]bool)
	for i, arg := range a.Args {
		if seen[arg.Name] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("args[%d].name", i),
				Message: fmt.Sprintf("duplicate arg %q", arg.Name),
			})
		}
		seen[arg.Name] = true
		if !ValidTypes[arg.Type] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("args[%d].type", i),
				Message: fmt.Sprintf("invalid type %q for arg %q, must be one of: string, int, bool, array, object", arg.Type, arg.Name),
			})
		}
	}

	return errs
}

// CheckArgs verifies that args carries exactly the declared arguments with
// their declared types. Returns all mismatches.
func (a *ActionSig) CheckArgs(args Object) []ValidationError {
	var errs []ValidationError
	declared := make(map[string]bool, len(a.Args))
	for _, arg := range a.Args {
		declared[arg.Name] = true
		v, ok := args[arg.Name]
		if !ok {
			errs = append(errs, ValidationError{Field: arg.Name, Message: "missing argument"})
			continue
		}
		if got := TypeName(v); got != arg.Type {
			errs = append(errs, ValidationError{
				Field:   arg.Name,
				Message: fmt.Sprintf("expected %s, got %s", arg.Type, got),
			})
		}
	}
	for _, k := range args.SortedKeys() {
		if !declared[k] {
			errs = append(errs, ValidationError{Field: k, Message: "unknown argument"})
		}
	}
	return errs
}
