package cli

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/ledgerbox/internal/auth"
	"github.com/roach88/ledgerbox/internal/engine"
	"github.com/roach88/ledgerbox/internal/ir"
)

// KeyEnv names the environment variable holding the default signer seed.
const KeyEnv = "LEDGERBOX_KEY"

// SignOptions holds the flags shared by commands that sign transactions.
type SignOptions struct {
	*RootOptions
	Key   string // hex ed25519 seed
	Nonce int64
}

func (o *SignOptions) bindFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.Key, "key", "", "hex-encoded 32-byte ed25519 seed (default $"+KeyEnv+")")
	cmd.Flags().Int64Var(&o.Nonce, "nonce", 0, "transaction nonce (default: current unix nanoseconds)")
}

func (o *SignOptions) signingKey() (ed25519.PrivateKey, error) {
	seed := o.Key
	if seed == "" {
		seed = os.Getenv(KeyEnv)
	}
	if seed == "" {
		return nil, NewExitError(ExitCommandError, "a signing key is required (--key or $"+KeyEnv+")")
	}
	key, err := auth.KeyFromSeed(seed)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid --key", err)
	}
	return key, nil
}

// submit signs tx and executes it against the configured database.
func (o *SignOptions) submit(ctx context.Context, cmd *cobra.Command, tx ir.Tx, resolve func(*engine.Engine, *ir.Tx)) error {
	key, err := o.signingKey()
	if err != nil {
		return err
	}
	tx.Nonce = o.Nonce
	if tx.Nonce == 0 {
		tx.Nonce = time.Now().UnixNano()
	}

	eng, closeFn, err := o.openEngine(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	if resolve != nil {
		resolve(eng, &tx)
	}

	stx, err := auth.Sign(tx, key)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to sign transaction", err)
	}
	r, err := eng.Execute(ctx, stx)
	if errors.Is(err, engine.ErrDuplicateTx) {
		return WrapExitError(ExitFailure, fmt.Sprintf("nonce %d was already used by this signer", tx.Nonce), err)
	}
	if err != nil {
		return WrapExitError(ExitFailure, "transaction aborted", err)
	}

	out := o.formatter(cmd)
	if !r.OK() {
		if err := out.Error(r.ErrorCode, r.Error, receiptOutput(r)); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("transaction failed: %s", r.ErrorCode))
	}
	return out.Success(receiptOutput(r))
}

// receiptOutput renders a receipt for the CLI.
type receiptOutput ir.Receipt

func (r receiptOutput) WriteText(w io.Writer) {
	fmt.Fprintf(w, "%s %s seq=%d status=%s\n", r.Action, r.Account, r.Seq, r.Status)
	fmt.Fprintf(w, "  tx: %s\n", r.TxID)
	if r.ErrorCode != "" {
		fmt.Fprintf(w, "  error: %s: %s\n", r.ErrorCode, r.Error)
	}
	if len(r.Result) > 0 {
		fmt.Fprintf(w, "  result: %s\n", renderValue(r.Result))
	}
	if r.Event != nil {
		fmt.Fprintf(w, "  event: %s %s\n", r.Event.Name, r.Event.ID)
	}
}

// InitOptions holds flags for the init command.
type InitOptions struct {
	SignOptions
	Account string
	Policy  string
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{SignOptions: SignOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "init <program>",
		Short: "Allocate and initialize an account for a program",
		Long: `Allocate an account of the program's full store size and reset its
bookkeeping. The signer becomes the account authority.

Examples:
  ledgerbox init posts --key $SEED
  ledgerbox init deepfake --account images --policy open --key $SEED`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			tx := ir.Tx{
				Program: args[0],
				Account: opts.Account,
				Action:  engine.InitializeAction,
			}
			if opts.Policy != "" {
				tx.Args = ir.Object{"policy": ir.String(opts.Policy)}
			}
			return opts.submit(cmd.Context(), cmd, tx, nil)
		},
	}

	opts.bindFlags(cmd)
	cmd.Flags().StringVar(&opts.Account, "account", "", "account address (default: generated UUIDv7)")
	cmd.Flags().StringVar(&opts.Policy, "policy", "", "write policy: owner or open (default from config)")

	return cmd
}

// InvokeOptions holds flags for the invoke command.
type InvokeOptions struct {
	SignOptions
	Args    string
	Program string
}

// NewInvokeCommand creates the invoke command.
func NewInvokeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InvokeOptions{SignOptions: SignOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "invoke <account> <action>",
		Short: "Sign and execute a write against an account",
		Long: `Sign and execute a write against an account.

Failed writes are still logged and exit with status 1.

Example:
  ledgerbox invoke feed create_post --key $SEED \
    --args '{"ipfs_hash":"Qm1","image_hash":"img","content":"hi","world_id":"w"}'`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := ir.ParseObject([]byte(opts.Args))
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --args JSON", err)
			}
			tx := ir.Tx{
				Program: opts.Program,
				Account: args[0],
				Action:  args[1],
				Args:    parsed,
			}
			return opts.submit(cmd.Context(), cmd, tx, func(eng *engine.Engine, tx *ir.Tx) {
				if tx.Program != "" {
					return
				}
				// The program is part of the signed message; look it up
				// when not given. A missing account is logged as
				// ACCOUNT_NOT_FOUND by the engine.
				if acct, err := eng.Account(cmd.Context(), tx.Account); err == nil {
					tx.Program = acct.Program
				}
			})
		},
	}

	opts.bindFlags(cmd)
	cmd.Flags().StringVar(&opts.Args, "args", "{}", "action arguments as JSON")
	cmd.Flags().StringVar(&opts.Program, "program", "", "program name (default: the account's program)")

	return cmd
}
