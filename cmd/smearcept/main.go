// Command smearcept applies configured detector smearing to simulated
// events and builds, stores and inverts response matrices.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/banshee-data/smearceptance/internal/config"
	"github.com/banshee-data/smearceptance/internal/eventio"
	"github.com/banshee-data/smearceptance/internal/monitoring"
	"github.com/banshee-data/smearceptance/internal/registry"
	"github.com/banshee-data/smearceptance/internal/responsedb"
	"github.com/banshee-data/smearceptance/internal/smear"
	"github.com/banshee-data/smearceptance/internal/timeutil"
	"github.com/banshee-data/smearceptance/internal/version"
)

func main() {
	if err := newRootCmd(os.Stdin, os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

// app carries the flags shared by every subcommand and the resolved run
// configuration.
type app struct {
	in          io.Reader
	out, errOut io.Writer

	configPath   string
	smearcepters string
	name         string
	plugins      []string
	seed         uint64
	dbPath       string
	logLevel     string

	cfg   *config.RunConfig
	clock timeutil.Clock
}

func newRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	a := &app{in: in, out: out, errOut: errOut, clock: timeutil.RealClock{}}
	root := &cobra.Command{
		Use:   "smearcept",
		Short: "Fast detector smearing and SVD unfolding for neutrino event samples",
		Long: `smearcept turns simulated neutrino interactions into reconstructed
objects using configured acceptance, efficiency and resolution stages, and
builds response matrices that can be inverted with a truncated SVD.`,
		Version:           version.String(),
		SilenceUsage:      true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return a.setup(cmd) },
	}
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "run configuration (.json, .yaml or .yml)")
	pf.StringVarP(&a.smearcepters, "smearcepters", "s", "", "smearcepter configuration (.yaml or .xml)")
	pf.StringVarP(&a.name, "name", "n", "", "smearcepter to use when several are configured")
	pf.StringSliceVar(&a.plugins, "plugin", nil, "Go plugin exporting "+registry.PluginSymbol+" (repeatable)")
	pf.Uint64Var(&a.seed, "seed", config.DefaultSeed, "run seed")
	pf.StringVar(&a.dbPath, "db", config.DefaultDBPath, "response database path")
	pf.StringVar(&a.logLevel, "log-level", config.DefaultLogLevel, "quiet, ops, diag or trace")

	root.AddCommand(a.newRunCmd(), a.newResponseCmd(), a.newUnfoldCmd(), a.newListCmd())
	return root
}

// setup loads the run configuration and applies explicitly set flags on
// top of it.
func (a *app) setup(cmd *cobra.Command) error {
	if a.configPath != "" {
		cfg, err := config.LoadRunConfig(a.configPath)
		if err != nil {
			return err
		}
		a.cfg = cfg
	} else {
		a.cfg = config.EmptyRunConfig()
		if err := a.cfg.ApplyEnv(); err != nil {
			return err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("smearcepters") {
		a.cfg.Smearcepters = &a.smearcepters
	}
	if flags.Changed("name") {
		a.cfg.Smearcepter = &a.name
	}
	if flags.Changed("plugin") {
		a.cfg.Plugins = append(a.cfg.Plugins, a.plugins...)
	}
	if flags.Changed("seed") {
		a.cfg.Seed = &a.seed
	}
	if flags.Changed("db") {
		a.cfg.DBPath = &a.dbPath
	}
	if flags.Changed("log-level") {
		a.cfg.LogLevel = &a.logLevel
	}
	if err := a.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	monitoring.ConfigureStreams(a.cfg.GetLogLevel().Writers(a.errOut))
	return nil
}

// registry builds every configured smearcepter, loading plugins first so
// their types are known to the configuration.
func (a *app) registry() (*registry.Registry, error) {
	path := a.cfg.GetSmearcepters()
	if path == "" {
		return nil, errors.New("no smearcepter configuration: pass --smearcepters or set smearcepters in --config")
	}
	reg := registry.New(smear.NewBuilder(a.cfg.GetSeed(), filepath.Dir(path)))
	for _, p := range a.cfg.Plugins {
		if err := reg.LoadPlugin(p); err != nil {
			return nil, err
		}
	}
	if err := reg.LoadFile(path); err != nil {
		return nil, err
	}
	return reg, nil
}

// component returns the selected smearcepter, or the only one configured.
func (a *app) component() (smear.Component, error) {
	reg, err := a.registry()
	if err != nil {
		return nil, err
	}
	name := a.cfg.GetSmearcepter()
	if name == "" {
		list := reg.List()
		if len(list) != 1 {
			return nil, fmt.Errorf("%d smearcepters configured, choose one with --name", len(list))
		}
		name = list[0].Name
	}
	return reg.Get(name)
}

func (a *app) openDB() (*responsedb.DB, error) {
	db, err := responsedb.Open(a.cfg.GetDBPath())
	if err != nil {
		return nil, err
	}
	db.SetClock(a.clock)
	return db, nil
}

// forEachEvent decodes the JSON-lines file at path ("-" for stdin) and
// calls fn for every event.
func (a *app) forEachEvent(path string, fn func(*eventio.Event) error) (int, error) {
	var r io.Reader = a.in
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return 0, fmt.Errorf("open events: %w", err)
		}
		defer f.Close()
		r = f
	}
	er := eventio.NewReader(r)
	n := 0
	for {
		ev, err := er.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		if err := fn(ev); err != nil {
			return n, fmt.Errorf("event %d: %w", ev.ID, err)
		}
		n++
	}
}
