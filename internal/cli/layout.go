package cli

import (
	"encoding/hex"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/roach88/ledgerbox/internal/layout"
	"github.com/roach88/ledgerbox/internal/programs"
)

// LayoutOptions holds flags for the layout command.
type LayoutOptions struct {
	*RootOptions
	Budget string // e.g. "64KiB"; empty means no check
}

// FieldInfo describes one record field.
type FieldInfo struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Width      int    `json:"width"`
	MaxContent int    `json:"max_content,omitempty"`
}

// StoreInfo describes the fixed layout of one program's store.
type StoreInfo struct {
	Program       string      `json:"program"`
	Store         string      `json:"store"`
	Discriminator string      `json:"discriminator"`
	Bookkeeping   []FieldInfo `json:"bookkeeping"`
	Record        []FieldInfo `json:"record"`
	RecordSize    int         `json:"record_size"`
	Capacity      int         `json:"capacity"`
	StoreSize     int         `json:"store_size"`
}

type layoutList []StoreInfo

func (l layoutList) WriteText(w io.Writer) {
	for i, s := range l {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s (%s, discriminator %s)\n", s.Program, s.Store, s.Discriminator)
		fmt.Fprintf(w, "  capacity:    %s records of %d bytes\n", humanize.Comma(int64(s.Capacity)), s.RecordSize)
		fmt.Fprintf(w, "  store size:  %s bytes (%s)\n", humanize.Comma(int64(s.StoreSize)), humanize.IBytes(uint64(s.StoreSize)))

		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "  SECTION\tFIELD\tKIND\tWIDTH")
		fmt.Fprintf(tw, "  header\tdiscriminator\tbytes\t%d\n", layout.HeaderSize)
		for _, f := range s.Bookkeeping {
			fmt.Fprintf(tw, "  bookkeeping\t%s\t%s\t%d\n", f.Name, f.Kind, f.Width)
		}
		fmt.Fprintf(tw, "  records\tcount\tu32\t%d\n", layout.LengthPrefixSize)
		for _, f := range s.Record {
			fmt.Fprintf(tw, "  record\t%s\t%s\t%d\n", f.Name, f.Kind, f.Width)
		}
		tw.Flush()
	}
}

func describeStore(program string, s layout.Store) StoreInfo {
	d := s.Discriminator()
	info := StoreInfo{
		Program:       program,
		Store:         s.Name,
		Discriminator: hex.EncodeToString(d[:]),
		Bookkeeping:   describeFields(s.Bookkeeping),
		Record:        describeFields(s.Record.Fields),
		RecordSize:    s.Record.Size(),
		Capacity:      s.Capacity,
		StoreSize:     s.Size(),
	}
	return info
}

func describeFields(fields []layout.Field) []FieldInfo {
	out := make([]FieldInfo, len(fields))
	for i, f := range fields {
		out[i] = FieldInfo{Name: f.Name, Kind: f.Kind.String(), Width: f.Width}
		if f.Kind == layout.KindString {
			out[i].MaxContent = f.MaxContent()
		}
	}
	return out
}

// NewLayoutCommand creates the layout command.
func NewLayoutCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LayoutOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "layout [program...]",
		Short: "Show the fixed store layout of programs",
		Long: `Show the byte layout of each program's store: header, bookkeeping,
record fields and the total size allocated at initialization.

With --budget, exits 1 if any listed store is larger than the budget.

Examples:
  ledgerbox layout
  ledgerbox layout posts --format json
  ledgerbox layout --budget 64KiB`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := programs.Default()
			names := args
			if len(names) == 0 {
				names = reg.Names()
			}

			var budget uint64
			if opts.Budget != "" {
				b, err := humanize.ParseBytes(opts.Budget)
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid --budget", err)
				}
				budget = b
			}

			infos := make(layoutList, 0, len(names))
			var over []string
			for _, name := range names {
				p, ok := reg.Get(name)
				if !ok {
					return NewExitError(ExitCommandError, fmt.Sprintf("unknown program %q (have %v)", name, reg.Names()))
				}
				info := describeStore(name, p.Layout())
				infos = append(infos, info)
				if budget > 0 && uint64(info.StoreSize) > budget {
					over = append(over, fmt.Sprintf("%s (%s)", name, humanize.IBytes(uint64(info.StoreSize))))
				}
			}

			if err := opts.formatter(cmd).Success(infos); err != nil {
				return err
			}
			if len(over) > 0 {
				return NewExitError(ExitFailure, fmt.Sprintf("stores exceed budget of %s: %v", humanize.IBytes(budget), over))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Budget, "budget", "", "maximum store size, e.g. 64KiB or 100kB")

	return cmd
}
