package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gopherjs/smtrace/internal/document"
	"github.com/gopherjs/smtrace/internal/errorList"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// batchQuery is one line of a query file.
type batchQuery struct {
	lineNo  int
	mapFile string
	pos     string
	line    int
	column  int
}

// readQueries parses "MAPFILE LINE:COLUMN" lines. Empty lines and lines
// starting with '#' are skipped. Relative map paths are resolved against dir.
func readQueries(r io.Reader, dir string) ([]batchQuery, error) {
	var (
		queries []batchQuery
		errs    errorList.ErrorList
	)
	sc := bufio.NewScanner(r)
	for lineNo := 1; sc.Scan(); lineNo++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) != 2 {
			errs = errs.Append(fmt.Errorf("line %d: want MAPFILE LINE:COLUMN, got %q", lineNo, text))
			continue
		}
		line, column, err := parsePosition(fields[1])
		if err != nil {
			errs = errs.Append(fmt.Errorf("line %d: %w", lineNo, err))
			continue
		}
		mapFile := fields[0]
		if !filepath.IsAbs(mapFile) {
			mapFile = filepath.Join(dir, mapFile)
		}
		queries = append(queries, batchQuery{lineNo: lineNo, mapFile: mapFile, pos: fields[1], line: line, column: column})
	}
	if err := sc.Err(); err != nil {
		errs = errs.Append(err)
	}
	return queries, errs.ErrOrNil()
}

// runBatch answers all queries and returns the output lines in query order.
// Queries against the same map are answered by one goroutine with its own
// cursor, different maps are processed concurrently by up to workers
// goroutines.
func (a *app) runBatch(ctx context.Context, queries []batchQuery, workers int) ([]string, error) {
	groups := map[string][]int{}
	var order []string
	for i, q := range queries {
		if _, ok := groups[q.mapFile]; !ok {
			order = append(order, q.mapFile)
		}
		groups[q.mapFile] = append(groups[q.mapFile], i)
	}

	results := make([]string, len(queries))
	var (
		mu   sync.Mutex
		errs errorList.ErrorList
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for _, mapFile := range order {
		mapFile, indices := mapFile, groups[mapFile]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			d, err := document.Load(mapFile, a.cache)
			if err != nil {
				// A broken map only fails its own queries.
				log.Warningf("Skipping %d queries: %v", len(indices), err)
				mu.Lock()
				errs = errs.Append(err)
				mu.Unlock()
				for _, i := range indices {
					results[i] = filepath.Base(mapFile) + " " + formatResult(queries[i].pos, document.Position{}, false) + " (failed to load)"
				}
				return nil
			}
			c := d.Mappings.NewCursor()
			for _, i := range indices {
				q := queries[i]
				p, found := d.TraceCursor(c, q.line, q.column)
				results[i] = filepath.Base(mapFile) + " " + formatResult(q.pos, p, found)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, errs.ErrOrNil()
}

func (a *app) batchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "batch QUERYFILE",
		Short: "Answer queries listed in a file, one \"MAPFILE LINE:COLUMN\" per line",
		Long: `batch reads queries of the form "MAPFILE LINE:COLUMN" from QUERYFILE ("-" for
standard input) and prints one result per query in input order. Relative map
paths are resolved against the query file's directory. Different maps are
processed concurrently, bounded by the "workers" setting.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				r   io.Reader = os.Stdin
				dir           = "."
			)
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r, dir = f, filepath.Dir(args[0])
			}

			queries, parseErr := readQueries(r, dir)
			results, err := a.runBatch(cmd.Context(), queries, a.cfg.Workers)
			for _, line := range results {
				fmt.Fprintln(a.out, line)
			}
			var errs errorList.ErrorList
			errs = errs.Append(parseErr).Append(err)
			if len(errs) > 1 {
				log.Errorf("Batch failures:\n%s", errs.Details())
			}
			return errs.Trim(10).ErrOrNil()
		},
	}
}
