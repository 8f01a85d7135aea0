package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/ledgerbox/internal/engine"
	"github.com/roach88/ledgerbox/internal/ir"
	"github.com/roach88/ledgerbox/internal/store"
)

// renderValue formats a value as canonical JSON for text output.
func renderValue(v ir.Value) string {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// ViewOptions holds flags for the view command.
type ViewOptions struct {
	*RootOptions
	Args string
}

// NewViewCommand creates the view command.
func NewViewCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ViewOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "view <account> <query>",
		Short: "Run a read-only query against an account",
		Long: `Run a read-only query against an account. Queries need no signature.

Examples:
  ledgerbox view feed get_posts_descending --args '{"limit":5}'
  ledgerbox view images get_deepfake_value --args '{"image_hash":"h1"}'
  ledgerbox view feed stats`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := ir.ParseObject([]byte(opts.Args))
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --args JSON", err)
			}

			eng, closeFn, err := opts.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			out := opts.formatter(cmd)
			v, err := eng.View(cmd.Context(), args[0], args[1], parsed)
			if err != nil {
				code := engine.ErrorCode(err)
				if code == "" {
					return WrapExitError(ExitCommandError, "query failed", err)
				}
				if err := out.Error(code, err.Error(), nil); err != nil {
					return err
				}
				return NewExitError(ExitFailure, fmt.Sprintf("query failed: %s", code))
			}
			if opts.Format == "json" {
				return out.Success(v)
			}
			return out.Success(renderValue(v))
		},
	}

	cmd.Flags().StringVar(&opts.Args, "args", "{}", "query arguments as JSON")

	return cmd
}

// EventsOptions holds flags for the events command.
type EventsOptions struct {
	*RootOptions
	Account string
	Program string
	After   int64
	Limit   int
}

type eventList []ir.Event

func (l eventList) WriteText(w io.Writer) {
	if len(l) == 0 {
		fmt.Fprintln(w, "No events.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tACCOUNT\tEVENT\tPAYLOAD")
	for _, ev := range l {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", ev.Seq, ev.Account, ev.Name, renderValue(ev.Payload))
	}
	tw.Flush()
}

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EventsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List emitted events in seq order",
		Long: `List events emitted by committed writes, oldest first.

Examples:
  ledgerbox events --account feed
  ledgerbox events --program deepfake --after 10 --limit 20`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Open(opts.database())
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open database", err)
			}
			defer st.Close()

			events, err := st.ReadEvents(cmd.Context(), store.LogFilter{
				Account:  opts.Account,
				Program:  opts.Program,
				AfterSeq: opts.After,
				Limit:    opts.Limit,
			})
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read events", err)
			}
			return opts.formatter(cmd).Success(eventList(events))
		},
	}

	cmd.Flags().StringVar(&opts.Account, "account", "", "only events of this account")
	cmd.Flags().StringVar(&opts.Program, "program", "", "only events of this program")
	cmd.Flags().Int64Var(&opts.After, "after", 0, "only events with seq greater than this")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of events (0 = all)")

	return cmd
}

// AccountsOptions holds flags for the accounts command.
type AccountsOptions struct {
	*RootOptions
	Program string
}

type accountList []ir.Account

func (l accountList) WriteText(w io.Writer) {
	if len(l) == 0 {
		fmt.Fprintln(w, "No accounts.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ADDRESS\tPROGRAM\tPOLICY\tSIZE\tCREATED\tAUTHORITY")
	for _, a := range l {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n", a.Address, a.Program, a.Policy, a.Size, a.CreatedAt, a.Authority)
	}
	tw.Flush()
}

// NewAccountsCommand creates the accounts command.
func NewAccountsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AccountsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "accounts",
		Short:         "List allocated accounts",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Open(opts.database())
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open database", err)
			}
			defer st.Close()

			accounts, err := st.ListAccounts(cmd.Context(), opts.Program)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to list accounts", err)
			}
			return opts.formatter(cmd).Success(accountList(accounts))
		},
	}

	cmd.Flags().StringVar(&opts.Program, "program", "", "only accounts of this program")

	return cmd
}
