package main

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/gopherjs/smtrace/internal/document"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func (a *app) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch MAPFILE [LINE:COLUMN...]",
		Short: "Decode a source map again whenever it changes",
		Long: `watch decodes MAPFILE, prints its statistics and the answers to the given
queries, then does so again every time the file is written or replaced, until
interrupted.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := filepath.Clean(args[0])
			positions := args[1:]
			for _, p := range positions {
				if _, _, err := parsePosition(p); err != nil {
					return err
				}
			}

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return fmt.Errorf("failed to start watcher: %w", err)
			}
			defer watcher.Close()
			// Build tools often replace the file, so watch its directory.
			if err := watcher.Add(filepath.Dir(path)); err != nil {
				return fmt.Errorf("failed to watch %s: %w", path, err)
			}

			a.reload(path, positions)
			ctx := cmd.Context()
			for {
				select {
				case <-ctx.Done():
					return nil
				case ev, ok := <-watcher.Events:
					if !ok {
						return nil
					}
					if filepath.Clean(ev.Name) != path || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
						continue
					}
					log.Debugf("Change detected: %s.", ev)
					a.reload(path, positions)
				case err, ok := <-watcher.Errors:
					if !ok {
						return nil
					}
					log.Warningf("Watcher error: %v", err)
				}
			}
		},
	}
}

// reload decodes the map at path and prints the answers to positions. Failures
// are logged, the watch goes on.
func (a *app) reload(path string, positions []string) {
	// The cache would only fill up with stale versions of the file.
	d, err := document.Load(path, nil)
	if err != nil {
		log.Warningf("Failed to load %s: %v", path, err)
		return
	}
	log.Infof("Loaded %s: %d lines, %d segments.", path, d.Mappings.LineCount(), d.Mappings.SegmentCount())
	c := d.Mappings.NewCursor()
	for _, pos := range positions {
		line, column, _ := parsePosition(pos)
		p, found := d.TraceCursor(c, line, column)
		fmt.Fprintln(a.out, formatResult(pos, p, found))
	}
}
