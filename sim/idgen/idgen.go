// Package idgen provides ID generators for simulation objects.
package idgen

import (
	"strconv"
	"sync/atomic"

	"github.com/rs/xid"
)

// Generator produces unique identifiers.
type Generator interface {
	Generate() uint64
}

// New returns a sequential generator whose first emitted ID is 1. Sequential
// IDs keep simulations reproducible.
func New() Generator {
	return &sequentialGenerator{}
}

type sequentialGenerator struct {
	next uint64
}

func (g *sequentialGenerator) Generate() uint64 {
	return atomic.AddUint64(&g.next, 1)
}

// StringGenerator produces unique string identifiers.
type StringGenerator interface {
	Generate() string
}

// NewSequentialString returns a generator of decimal IDs.
func NewSequentialString() StringGenerator {
	return &sequentialStringGenerator{}
}

type sequentialStringGenerator struct {
	sequentialGenerator
}

func (g *sequentialStringGenerator) Generate() string {
	return strconv.FormatUint(g.sequentialGenerator.Generate(), 10)
}

// NewParallelString returns a generator that is safe to use from many
// goroutines without coordination. The IDs are not deterministic.
func NewParallelString() StringGenerator {
	return parallelStringGenerator{}
}

type parallelStringGenerator struct{}

func (parallelStringGenerator) Generate() string {
	return xid.New().String()
}
