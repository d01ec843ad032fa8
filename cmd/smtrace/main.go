// Command smtrace maps positions in generated code back to original sources
// using source map files.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/gopherjs/smtrace/internal/cache"
	"github.com/gopherjs/smtrace/internal/config"
	"github.com/gopherjs/smtrace/internal/experiments"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// cacheVersion must change whenever the serialized form of a decoded map does.
const cacheVersion = "smtrace-map-1"

// app holds state shared by all subcommands, set up before any of them runs.
type app struct {
	cfg   config.Config
	cache *cache.MapCache
	out   io.Writer
}

type rootOptions struct {
	configPath string
	verbose    bool
	useCache   bool
}

func (o *rootOptions) bind(fs *pflag.FlagSet) {
	fs.StringVar(&o.configPath, "config", "", "YAML configuration file")
	fs.BoolVarP(&o.verbose, "verbose", "v", false, "log debug messages")
	fs.BoolVar(&o.useCache, "cache", false, "keep decoded mappings in the on-disk cache (overrides cache.enabled)")
}

// setup loads the configuration and prepares logging and caching.
func (a *app) setup(fs *pflag.FlagSet, o *rootOptions) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if fs.Changed("cache") {
		cfg.Cache.Enabled = o.useCache
	}
	a.cfg = cfg

	log.SetLevel(cfg.Level())
	if o.verbose {
		log.SetLevel(log.DebugLevel)
	}
	if enabled := experiments.Env.Enabled(); len(enabled) > 0 {
		log.Infof("Experiments enabled: %v.", enabled)
	}

	a.cache = nil
	if cfg.Cache.Enabled && !experiments.Env.NoCache {
		a.cache = &cache.MapCache{Dir: cfg.Cache.Dir, Version: cacheVersion}
		log.Debugf("Using %s.", a.cache)
	}
	return nil
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "smtrace",
		Short: "Trace generated code positions back to their original sources",
		Long: `smtrace reads source map (revision 3) files and answers which original
source position a line and column of generated code comes from.

Lines and columns given on the command line and in query files are 1-based.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.Flags(), opts)
		},
	}
	opts.bind(root.PersistentFlags())

	root.AddCommand(
		a.traceCmd(),
		a.dumpCmd(),
		a.batchCmd(),
		a.watchCmd(),
		a.serveCmd(),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
