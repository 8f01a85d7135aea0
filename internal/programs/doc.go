// Package programs instantiates the bounded stores as named programs:
// a post ledger and two keyed image stores.
package programs
