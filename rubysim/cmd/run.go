package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/sarchlab/rubysim/coherence"
	"github.com/sarchlab/rubysim/coherence/sequencer"
	"github.com/sarchlab/rubysim/datarecording"
	"github.com/sarchlab/rubysim/mem"
	"github.com/sarchlab/rubysim/monitoring"
	"github.com/sarchlab/rubysim/ruby"
	"github.com/sarchlab/rubysim/sim/hooking"
	"github.com/sarchlab/rubysim/tester"
	"github.com/spf13/cobra"
)

type runFlags struct {
	config  string
	envFile string

	protocol string
	memType  string
	network  string
	topology string
	numCPUs  int
	numDirs  int
	seed     int64
	debug    bool

	ops    int
	lines  int
	window int

	db          string
	transitions bool

	monitor     bool
	monitorPort int
	openBrowser bool
}

func newRunCmd() *cobra.Command {
	run, _ := newRunCmdWithFlags()
	return run
}

func newRunCmdWithFlags() (*cobra.Command, *runFlags) {
	f := &runFlags{}

	run := &cobra.Command{
		Use:   "run",
		Short: "Run the random tester on a system.",
		Long: `Options are read from the defaults, then the YAML file given ` +
			`by --config, then RUBYSIM_* variables from the .env file and the ` +
			`environment, and finally the flags.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			o, err := resolveOptions(cmd, f, os.LookupEnv)
			if err != nil {
				return err
			}

			return runTester(cmd.OutOrStdout(), o, f)
		},
	}

	flags := run.Flags()
	flags.StringVar(&f.config, "config", "", "YAML file with system options")
	flags.StringVar(&f.envFile, "env-file", ".env",
		"file with RUBYSIM_* variables, skipped if missing")
	flags.StringVar(&f.protocol, "protocol", "", "coherence protocol")
	flags.StringVar(&f.memType, "mem-type", "", "memory model")
	flags.StringVar(&f.network, "network", "", "network class")
	flags.StringVar(&f.topology, "topology", "", "network topology")
	flags.IntVar(&f.numCPUs, "num-cpus", 0, "number of cores")
	flags.IntVar(&f.numDirs, "num-dirs", 0, "number of directories")
	flags.Int64Var(&f.seed, "seed", 0, "random seed of the system and the tester")
	flags.BoolVar(&f.debug, "debug", false, "print every message")
	flags.IntVar(&f.ops, "ops", tester.DefaultConfig().OpsPerCore,
		"accesses per core")
	flags.IntVar(&f.lines, "lines", tester.DefaultConfig().Lines,
		"number of cache lines the tester touches")
	flags.IntVar(&f.window, "window", tester.DefaultConfig().Window,
		"accesses each core keeps in flight")
	flags.StringVar(&f.db, "db", "",
		"record messages and transactions to this SQLite file (without suffix)")
	flags.BoolVar(&f.transitions, "record-transitions", false,
		"also record every protocol transition")
	flags.BoolVar(&f.monitor, "monitor", false, "serve the web monitor")
	flags.IntVar(&f.monitorPort, "monitor-port", 0, "port of the web monitor")
	flags.BoolVar(&f.openBrowser, "open-browser", false,
		"open the web monitor in a browser")

	return run, f
}

type lookupEnv func(key string) (string, bool)

// resolveOptions layers the defaults, the config file, the environment and
// the flags that were set.
func resolveOptions(
	cmd *cobra.Command,
	f *runFlags,
	lookup lookupEnv,
) (ruby.Options, error) {
	o := ruby.DefaultOptions()

	if f.config != "" {
		var err error

		o, err = ruby.LoadOptions(f.config)
		if err != nil {
			return o, err
		}
	}

	env, err := readEnv(f.envFile, lookup)
	if err != nil {
		return o, err
	}

	if err := ruby.ApplyEnv(&o, env); err != nil {
		return o, err
	}

	applyFlags(cmd, f, &o)

	return o, nil
}

// readEnv reads the .env file and lets the process environment override it.
// Only the variables the options understand are taken from the process
// environment.
func readEnv(path string, lookup lookupEnv) (map[string]string, error) {
	env := map[string]string{}

	if path != "" {
		fileEnv, err := godotenv.Read(path)

		switch {
		case err == nil:
			env = fileEnv
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, coherence.NewConfigurationError("env-file",
				fmt.Sprintf("cannot read %s", path), err)
		}
	}

	for _, name := range ruby.EnvNames() {
		if v, ok := lookup(name); ok {
			env[name] = v
		}
	}

	return env, nil
}

func applyFlags(cmd *cobra.Command, f *runFlags, o *ruby.Options) {
	changed := cmd.Flags().Changed

	if changed("protocol") {
		o.Protocol = f.protocol
	}

	if changed("mem-type") {
		o.MemType = f.memType
	}

	if changed("network") {
		o.NetworkClass = f.network
	}

	if changed("topology") {
		o.Topology = f.topology
	}

	if changed("num-cpus") {
		o.NumCPUs = f.numCPUs
	}

	if changed("num-dirs") {
		o.NumDirs = f.numDirs
	}

	if changed("seed") {
		o.RandomSeed = f.seed
	}

	if changed("debug") {
		o.Debug = f.debug
	}
}

func runTester(out io.Writer, o ruby.Options, f *runFlags) error {
	sys, err := ruby.CreateSystem(
		o, ruby.DefaultProtocolRegistry(), mem.DefaultRegistry())
	if err != nil {
		return err
	}

	cfg := tester.DefaultConfig()
	cfg.Seed = o.RandomSeed
	cfg.OpsPerCore = f.ops
	cfg.Lines = f.lines
	cfg.Window = f.window

	t, err := tester.New(sys, cfg)
	if err != nil {
		return err
	}

	var recorder *datarecording.Recorder
	if f.db != "" {
		recorder = datarecording.Attach(
			datarecording.New(f.db), sys, f.transitions)
	}

	if f.monitor {
		m := startMonitor(sys, f, uint64(cfg.OpsPerCore*o.NumCPUs))
		defer m.StopServer()
	}

	report, runErr := t.Run()
	stats := sys.Stats()

	if recorder != nil {
		recorder.RecordSummary(stats)
	}

	printReport(out, report, stats, runErr)

	return runErr
}

func startMonitor(
	sys *ruby.System,
	f *runFlags,
	total uint64,
) *monitoring.Monitor {
	m := monitoring.NewMonitor().
		WithPortNumber(f.monitorPort).
		WithBrowser(f.openBrowser)

	m.RegisterEngine(sys.Engine())

	for _, c := range sys.Caches() {
		m.RegisterComponent(c)
	}

	for _, d := range sys.Directories() {
		m.RegisterComponent(d)
	}

	m.RegisterComponent(sys.Network())
	m.RegisterStats(func() any { return sys.Stats() })
	m.RegisterLineInspector(func(addr uint64) any {
		return struct {
			States  map[coherence.ControllerID]coherence.State
			History []coherence.MsgRecord
		}{
			States:  sys.LineStates(addr),
			History: sys.LineHistory(addr),
		}
	})

	bar := m.CreateProgressBar("Accesses", total)
	progress := hooking.HookFunc(func(ctx hooking.HookCtx) {
		switch ctx.Pos {
		case sequencer.HookPosTxnIssue:
			bar.IncrementInProgress(1)
		case sequencer.HookPosTxnComplete:
			bar.MoveInProgressToFinished(1)
		}
	})

	for i := 0; i < sys.Options().NumCPUs; i++ {
		sys.Sequencer(i).AcceptHook(progress)
	}

	m.StartServer()

	return m
}
