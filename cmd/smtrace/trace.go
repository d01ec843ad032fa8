package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gopherjs/smtrace/internal/document"
	"github.com/gopherjs/smtrace/internal/errorList"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// parsePosition parses a 1-based "LINE:COLUMN" pair into 0-based values.
func parsePosition(s string) (line, column int, err error) {
	l, c, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid position %q: want LINE:COLUMN", s)
	}
	line, err = strconv.Atoi(strings.TrimSpace(l))
	if err != nil || line < 1 {
		return 0, 0, fmt.Errorf("invalid line in position %q: want a positive integer", s)
	}
	column, err = strconv.Atoi(strings.TrimSpace(c))
	if err != nil || column < 1 {
		return 0, 0, fmt.Errorf("invalid column in position %q: want a positive integer", s)
	}
	return line - 1, column - 1, nil
}

// formatResult renders one answer as "QUERY<tab>POSITION".
func formatResult(query string, p document.Position, found bool) string {
	if !found {
		return query + "\tnot found"
	}
	return query + "\t" + p.String()
}

func (a *app) traceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trace MAPFILE LINE:COLUMN...",
		Short: "Print the original position of each generated position",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := document.Load(args[0], a.cache)
			if err != nil {
				return err
			}
			c := d.Mappings.NewCursor()
			var errs errorList.ErrorList
			for _, query := range args[1:] {
				line, column, err := parsePosition(query)
				if err != nil {
					errs = errs.Append(err)
					continue
				}
				p, found := d.TraceCursor(c, line, column)
				fmt.Fprintln(a.out, formatResult(query, p, found))
			}
			return errs.ErrOrNil()
		},
	}
}

type dumpOptions struct {
	resolve bool
	line    int
}

func (o *dumpOptions) bind(fs *pflag.FlagSet) {
	fs.BoolVarP(&o.resolve, "resolve", "r", false, "print source file and name instead of raw indices")
	fs.IntVarP(&o.line, "line", "l", 0, "only print this 1-based generated line")
}

func (a *app) dumpCmd() *cobra.Command {
	opts := &dumpOptions{}
	cmd := &cobra.Command{
		Use:   "dump MAPFILE",
		Short: "Print the decoded segments of every generated line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := document.Load(args[0], a.cache)
			if err != nil {
				return err
			}
			return a.dump(d, opts)
		},
	}
	opts.bind(cmd.Flags())
	return cmd
}

func (a *app) dump(d *document.Document, opts *dumpOptions) error {
	if opts.line < 0 || opts.line > d.Mappings.LineCount() {
		return fmt.Errorf("line %d is out of range 1..%d", opts.line, d.Mappings.LineCount())
	}
	for line, segments := range d.Mappings.Lines() {
		if opts.line != 0 && line != opts.line-1 {
			continue
		}
		parts := make([]string, 0, len(segments))
		for _, s := range segments {
			if opts.resolve {
				parts = append(parts, fmt.Sprintf("%d=%s", s.GeneratedColumn+1, d.Resolve(s)))
			} else {
				parts = append(parts, s.String())
			}
		}
		fmt.Fprintf(a.out, "%d:\t%s\n", line+1, strings.Join(parts, " "))
	}
	return nil
}
