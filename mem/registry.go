package mem

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/sarchlab/rubysim/coherence"
)

// Constructor creates a backing memory from a config.
type Constructor func(cfg Config) (Backing, error)

type registryEntry struct {
	name        string
	description string
	ctor        Constructor
}

// Registry maps memory-controller names to constructors. A registry is built
// once at startup and handed to whoever needs a lookup.
type Registry struct {
	entries     map[string]registryEntry
	aliases     map[string]string
	defaultName string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]registryEntry),
		aliases: make(map[string]string),
	}
}

// DefaultRegistry creates a registry holding the built-in memories.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.MustRegister("IdealMemory",
		"fixed latency, unlimited bandwidth", NewIdealMemory)
	r.MustRegister("BankedMemory",
		"interleaved banks, one access per bank at a time", NewBankedMemory)
	r.MustAlias("ideal", "IdealMemory")
	r.MustAlias("banked", "BankedMemory")
	r.MustAlias("SimpleMemory", "IdealMemory")

	if err := r.SetDefault("IdealMemory"); err != nil {
		panic(err)
	}

	return r
}

// Register adds a constructor under a canonical name.
func (r *Registry) Register(name, description string, ctor Constructor) error {
	if name == "" {
		return fmt.Errorf("memory type name cannot be empty")
	}

	if r.taken(name) {
		return fmt.Errorf("memory type %q already registered", name)
	}

	r.entries[name] = registryEntry{
		name:        name,
		description: description,
		ctor:        ctor,
	}

	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(name, description string, ctor Constructor) {
	if err := r.Register(name, description, ctor); err != nil {
		panic(err)
	}
}

// Alias makes alias resolve to the registered canonical name.
func (r *Registry) Alias(alias, canonical string) error {
	if _, ok := r.entries[canonical]; !ok {
		return fmt.Errorf("alias %q targets unknown memory type %q",
			alias, canonical)
	}

	if r.taken(alias) {
		return fmt.Errorf("memory type %q already registered", alias)
	}

	r.aliases[alias] = canonical

	return nil
}

// MustAlias is like Alias but panics on error.
func (r *Registry) MustAlias(alias, canonical string) {
	if err := r.Alias(alias, canonical); err != nil {
		panic(err)
	}
}

// SetDefault selects the type used when no name is given.
func (r *Registry) SetDefault(name string) error {
	canonical, err := r.canonical(name)
	if err != nil {
		return err
	}

	r.defaultName = canonical

	return nil
}

func (r *Registry) taken(name string) bool {
	_, isEntry := r.entries[name]
	_, isAlias := r.aliases[name]

	return isEntry || isAlias
}

func (r *Registry) canonical(name string) (string, error) {
	if name == "" {
		if r.defaultName == "" {
			return "", coherence.NewConfigurationError(
				"mem-type", "no memory type given and no default", nil)
		}

		return r.defaultName, nil
	}

	if target, ok := r.aliases[name]; ok {
		return target, nil
	}

	if _, ok := r.entries[name]; ok {
		return name, nil
	}

	return "", coherence.NewConfigurationError("mem-type",
		fmt.Sprintf("unknown memory type %q, known types: %v",
			name, r.Names()), nil)
}

// Resolve returns the canonical name and the constructor for name, which may
// be an alias or empty for the default. Unknown names yield a
// *coherence.ConfigurationError.
func (r *Registry) Resolve(name string) (string, Constructor, error) {
	canonical, err := r.canonical(name)
	if err != nil {
		return "", nil, err
	}

	return canonical, r.entries[canonical].ctor, nil
}

// Names returns the canonical names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}

	sort.Strings(names)

	return names
}

// Describe writes one line per registered type with its aliases.
func (r *Registry) Describe(w io.Writer) error {
	for _, name := range r.Names() {
		var aliases []string

		for alias, target := range r.aliases {
			if target == name {
				aliases = append(aliases, alias)
			}
		}

		sort.Strings(aliases)

		marker := " "
		if name == r.defaultName {
			marker = "*"
		}

		_, err := fmt.Fprintf(w, "%s %-14s %-24s %s\n", marker, name,
			"["+strings.Join(aliases, ", ")+"]", r.entries[name].description)
		if err != nil {
			return err
		}
	}

	return nil
}
