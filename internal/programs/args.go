package programs

import (
	"fmt"

	"github.com/roach88/ledgerbox/internal/bounded"
	"github.com/roach88/ledgerbox/internal/ir"
)

func argString(args ir.Object, name string) (string, error) {
	v, ok := args[name].(ir.String)
	if !ok {
		return "", bounded.NewInvalidValue(name, "expected string")
	}
	return string(v), nil
}

func argBool(args ir.Object, name string) (bool, error) {
	v, ok := args[name].(ir.Bool)
	if !ok {
		return false, bounded.NewInvalidValue(name, "expected bool")
	}
	return bool(v), nil
}

// argInt reads an integer argument and checks it lies in [lo, hi].
func argInt(args ir.Object, name string, lo, hi int64) (int64, error) {
	v, ok := args[name].(ir.Int)
	if !ok {
		return 0, bounded.NewInvalidValue(name, "expected int")
	}
	n := int64(v)
	if n < lo || n > hi {
		return 0, bounded.NewInvalidValue(name, fmt.Sprintf("%d out of range [%d, %d]", n, lo, hi))
	}
	return n, nil
}
