// Package tester drives a system with a seeded random workload and checks
// every value it observes.
//
// Each line of the tested region is split into words owned by one core each,
// plus a counter word that every core increments atomically. A core's loads
// of its own words must see its latest store. Loads of other words must
// never go back in time. At the end, memory must hold the last store of
// every owner and the sum of the increments.
package tester

import (
	"fmt"
	"math/rand"

	"github.com/sarchlab/rubysim/coherence"
	"github.com/sarchlab/rubysim/ruby"
)

// Config sets up a workload.
type Config struct {
	Seed       int64
	OpsPerCore int
	Lines      int
	BaseAddr   uint64

	// Window is the number of accesses a core keeps in flight.
	Window int

	// LoadRatio and StoreRatio are the shares of loads and stores. The rest
	// are atomic increments.
	LoadRatio  float64
	StoreRatio float64
}

// DefaultConfig returns a small, store-heavy workload.
func DefaultConfig() Config {
	return Config{
		Seed:       1,
		OpsPerCore: 200,
		Lines:      4,
		Window:     4,
		LoadRatio:  0.5,
		StoreRatio: 0.3,
	}
}

// RunReport summarizes a workload run.
type RunReport struct {
	Loads   uint64
	Stores  uint64
	Atomics uint64
	Checked uint64
	Cycles  uint64
}

// CheckError reports a value that no coherent memory could return.
type CheckError struct {
	Core     int
	Addr     uint64
	Got      uint64
	Expected string
}

func (e *CheckError) Error() string {
	return fmt.Sprintf("core %d read 0x%x from 0x%x, expected %s",
		e.Core, e.Got, e.Addr, e.Expected)
}

type wordKey struct {
	line int
	word int
}

type core struct {
	id       int
	rng      *rand.Rand
	issued   int
	inFlight int

	// lastStored is what this core last wrote to each of its words.
	lastStored map[int]uint64

	// lastSeen is the highest value this core observed in each word.
	lastSeen map[wordKey]uint64
}

// Tester runs a workload on a system.
type Tester struct {
	sys      *ruby.System
	cfg      Config
	words    int
	lineSize uint64
	cores    []*core
	counters []uint64
	report   RunReport
	err      error
}

// New creates a tester for a system.
func New(sys *ruby.System, cfg Config) (*Tester, error) {
	o := sys.Options()
	words := o.CacheLineSize / coherence.WordSize

	if o.NumCPUs > words-1 {
		return nil, fmt.Errorf(
			"%d cores need more than %d words per line", o.NumCPUs, words)
	}

	if cfg.Lines <= 0 || cfg.OpsPerCore < 0 || cfg.Window <= 0 {
		return nil, fmt.Errorf("lines and window must be positive")
	}

	if cfg.LoadRatio < 0 || cfg.StoreRatio < 0 ||
		cfg.LoadRatio+cfg.StoreRatio > 1 {
		return nil, fmt.Errorf("load and store ratios must add up to at most 1")
	}

	last := cfg.BaseAddr + uint64(cfg.Lines*o.CacheLineSize) - 1
	if cfg.BaseAddr%uint64(o.CacheLineSize) != 0 ||
		!o.InPhysMem(cfg.BaseAddr) || !o.InPhysMem(last) {
		return nil, fmt.Errorf("tested region 0x%x-0x%x is not usable",
			cfg.BaseAddr, last)
	}

	t := &Tester{
		sys:      sys,
		cfg:      cfg,
		words:    words,
		lineSize: uint64(o.CacheLineSize),
		counters: make([]uint64, cfg.Lines),
	}

	t.cfg.Window = min(cfg.Window, o.MaxOutstanding)

	for i := 0; i < o.NumCPUs; i++ {
		t.cores = append(t.cores, &core{
			id:         i,
			rng:        rand.New(rand.NewSource(cfg.Seed*1000003 + int64(i))),
			lastStored: make(map[int]uint64),
			lastSeen:   make(map[wordKey]uint64),
		})
	}

	return t, nil
}

func (t *Tester) addr(line, word int) uint64 {
	return t.cfg.BaseAddr + uint64(line)*t.lineSize +
		uint64(word)*coherence.WordSize
}

func (t *Tester) counterWord() int {
	return t.words - 1
}

// Run issues the workload, simulates until it finishes, and checks the final
// memory image.
func (t *Tester) Run() (RunReport, error) {
	for _, c := range t.cores {
		for c.inFlight < t.cfg.Window && c.issued < t.cfg.OpsPerCore {
			t.issueNext(c)
		}
	}

	if err := t.sys.Run(); err != nil {
		return t.report, err
	}

	t.report.Cycles = uint64(t.sys.Engine().CurrentTime())

	if t.err != nil {
		return t.report, t.err
	}

	return t.report, t.verify()
}

func (t *Tester) issueNext(c *core) {
	if t.err != nil {
		return
	}

	line := c.rng.Intn(t.cfg.Lines)
	dice := c.rng.Float64()

	switch {
	case dice < t.cfg.LoadRatio:
		t.issueLoad(c, line, c.rng.Intn(t.words))
	case dice < t.cfg.LoadRatio+t.cfg.StoreRatio:
		t.issueStore(c, line)
	default:
		t.issueAtomic(c, line)
	}
}

func (t *Tester) issue(
	c *core,
	addr uint64,
	kind coherence.AccessKind,
	value uint64,
	done func(txn *coherence.Transaction),
) {
	txn, err := t.sys.Issue(c.id, addr, kind, value)
	if err != nil {
		t.err = err
		return
	}

	c.issued++
	c.inFlight++

	txn.OnComplete(func(txn *coherence.Transaction) {
		c.inFlight--
		done(txn)

		if c.issued < t.cfg.OpsPerCore {
			t.issueNext(c)
		}
	})
}

func (t *Tester) issueStore(c *core, line int) {
	t.report.Stores++

	value := uint64(c.id+1)<<32 | uint64(c.issued+1)
	c.lastStored[line] = value

	t.issue(c, t.addr(line, c.id), coherence.AccessStore, value,
		func(*coherence.Transaction) {})
}

func (t *Tester) issueAtomic(c *core, line int) {
	t.report.Atomics++
	t.counters[line]++

	t.issue(c, t.addr(line, t.counterWord()), coherence.AccessAtomic, 1,
		func(txn *coherence.Transaction) {
			t.observe(c, wordKey{line, t.counterWord()}, txn.Result+1)
		})
}

func (t *Tester) issueLoad(c *core, line, word int) {
	t.report.Loads++

	if word == c.id {
		expected := c.lastStored[line]

		t.issue(c, t.addr(line, word), coherence.AccessLoad, 0,
			func(txn *coherence.Transaction) {
				t.report.Checked++

				if txn.Result != expected {
					t.fail(c, txn, fmt.Sprintf("own store 0x%x", expected))
				}
			})

		return
	}

	t.issue(c, t.addr(line, word), coherence.AccessLoad, 0,
		func(txn *coherence.Transaction) {
			t.observe(c, wordKey{line, word}, txn.Result)
		})
}

// observe checks that a core never sees a word go back to an older value.
// Stores of a core and the counter only grow.
func (t *Tester) observe(c *core, key wordKey, value uint64) {
	t.report.Checked++

	if value < c.lastSeen[key] {
		t.fail(c, &coherence.Transaction{
			Addr:   t.addr(key.line, key.word),
			Result: value,
		}, fmt.Sprintf("at least 0x%x", c.lastSeen[key]))

		return
	}

	c.lastSeen[key] = value
}

func (t *Tester) fail(c *core, txn *coherence.Transaction, expected string) {
	if t.err != nil {
		return
	}

	t.err = &CheckError{
		Core:     c.id,
		Addr:     txn.Addr,
		Got:      txn.Result,
		Expected: expected,
	}
}

func (t *Tester) verify() error {
	for line := 0; line < t.cfg.Lines; line++ {
		for _, c := range t.cores {
			if err := t.expectWord(line, c.id, c.lastStored[line]); err != nil {
				return err
			}
		}

		if err := t.expectWord(line, t.counterWord(),
			t.counters[line]); err != nil {
			return err
		}
	}

	return nil
}

func (t *Tester) expectWord(line, word int, expected uint64) error {
	addr := t.addr(line, word)

	got, err := t.sys.ReadWord(addr)
	if err != nil {
		return err
	}

	if got != expected {
		return &CheckError{
			Core:     -1,
			Addr:     addr,
			Got:      got,
			Expected: fmt.Sprintf("0x%x in memory", expected),
		}
	}

	return nil
}
