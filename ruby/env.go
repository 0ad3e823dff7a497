package ruby

import (
	"sort"
	"strconv"
	"strings"

	"github.com/sarchlab/rubysim/coherence"
)

// EnvPrefix starts the names of the environment variables that override
// options.
const EnvPrefix = "RUBYSIM_"

type envSetter func(o *Options, value string) error

func setString(field func(o *Options) *string) envSetter {
	return func(o *Options, value string) error {
		*field(o) = value
		return nil
	}
}

func setInt(field func(o *Options) *int) envSetter {
	return func(o *Options, value string) error {
		v, err := strconv.Atoi(value)
		if err != nil {
			return err
		}

		*field(o) = v

		return nil
	}
}

func setBool(field func(o *Options) *bool) envSetter {
	return func(o *Options, value string) error {
		v, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}

		*field(o) = v

		return nil
	}
}

var envSetters = map[string]envSetter{
	"PROTOCOL":   setString(func(o *Options) *string { return &o.Protocol }),
	"CLOCK_RATE": setString(func(o *Options) *string { return &o.ClockRate }),
	"NETWORK":    setString(func(o *Options) *string { return &o.NetworkClass }),
	"TOPOLOGY":   setString(func(o *Options) *string { return &o.Topology }),
	"MEM_TYPE":   setString(func(o *Options) *string { return &o.MemType }),

	"NUM_CPUS":        setInt(func(o *Options) *int { return &o.NumCPUs }),
	"NUM_DIRS":        setInt(func(o *Options) *int { return &o.NumDirs }),
	"CACHE_LINE_SIZE": setInt(func(o *Options) *int { return &o.CacheLineSize }),
	"NUMA_HIGH_BIT":   setInt(func(o *Options) *int { return &o.NUMAHighBit }),
	"PORTS":           setInt(func(o *Options) *int { return &o.Ports }),
	"RECYCLE_LATENCY": setInt(func(o *Options) *int { return &o.RecycleLatency }),
	"L1_LINES":        setInt(func(o *Options) *int { return &o.L1Lines }),
	"MAX_OUTSTANDING": setInt(func(o *Options) *int { return &o.MaxOutstanding }),
	"MESH_ROWS":       setInt(func(o *Options) *int { return &o.MeshRows }),
	"LINK_LATENCY":    setInt(func(o *Options) *int { return &o.LinkLatency }),
	"LINK_CAPACITY":   setInt(func(o *Options) *int { return &o.LinkCapacity }),
	"LINK_BANDWIDTH":  setInt(func(o *Options) *int { return &o.LinkBandwidth }),
	"ROUTER_LATENCY":  setInt(func(o *Options) *int { return &o.RouterLatency }),
	"MEM_LATENCY":     setInt(func(o *Options) *int { return &o.MemLatency }),
	"MEM_BANKS":       setInt(func(o *Options) *int { return &o.MemBanks }),
	"HISTORY_DEPTH":   setInt(func(o *Options) *int { return &o.HistoryDepth }),

	"FAULT_MODEL": setBool(func(o *Options) *bool { return &o.FaultModel }),
	"DEBUG":       setBool(func(o *Options) *bool { return &o.Debug }),

	"RANDOM_SEED": func(o *Options, value string) error {
		v, err := strconv.ParseInt(value, 0, 64)
		if err != nil {
			return err
		}

		o.RandomSeed = v

		return nil
	},
	"MEM_SIZE": func(o *Options, value string) error {
		s, err := ParseSize(value)
		if err != nil {
			return err
		}

		o.PhysMem = []AddrRange{{Start: 0, Size: s}}

		return nil
	},
}

// EnvNames lists the environment variables ApplyEnv understands.
func EnvNames() []string {
	names := make([]string, 0, len(envSetters))
	for k := range envSetters {
		names = append(names, EnvPrefix+k)
	}

	sort.Strings(names)

	return names
}

// ApplyEnv overrides options with RUBYSIM_* variables. Other variables are
// ignored; unknown RUBYSIM_* variables and malformed values are
// configuration errors.
func ApplyEnv(o *Options, env map[string]string) error {
	keys := make([]string, 0, len(env))
	for k := range env {
		if strings.HasPrefix(k, EnvPrefix) {
			keys = append(keys, k)
		}
	}

	sort.Strings(keys)

	for _, k := range keys {
		setter, ok := envSetters[strings.TrimPrefix(k, EnvPrefix)]
		if !ok {
			return coherence.NewConfigurationError(k, "unknown variable", nil)
		}

		if err := setter(o, strings.TrimSpace(env[k])); err != nil {
			return coherence.NewConfigurationError(k, "", err)
		}
	}

	return nil
}
