package cmd

import (
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"
	"github.com/sarchlab/rubysim/coherence"
	"github.com/sarchlab/rubysim/ruby"
	"github.com/sarchlab/rubysim/tester"
)

var (
	headColor = color.New(color.Bold, color.FgCyan)
	passColor = color.New(color.Bold, color.FgGreen)
	failColor = color.New(color.Bold, color.FgRed)
)

func printReport(
	w io.Writer,
	report tester.RunReport,
	stats ruby.Stats,
	runErr error,
) {
	headColor.Fprintf(w, "%s on %s memory\n", stats.Protocol, stats.MemType)

	fmt.Fprintf(w, "  cycles:        %d (%.3gs)\n", stats.Cycles, float64(stats.Seconds))
	fmt.Fprintf(w, "  accesses:      %d loads, %d stores, %d atomics\n",
		report.Loads, report.Stores, report.Atomics)
	fmt.Fprintf(w, "  checked:       %d values\n", report.Checked)
	fmt.Fprintf(w, "  latency:       %.2f avg, %d max cycles\n",
		stats.AvgLatency, stats.MaxLatency)
	fmt.Fprintf(w, "  retries:       %d\n", stats.Retries)
	fmt.Fprintf(w, "  transitions:   %d distinct\n", stats.DistinctTransitions)
	fmt.Fprintf(w, "  link stalls:   %d\n", stats.Network.Stalls)

	if stats.Network.Faults > 0 {
		fmt.Fprintf(w, "  faults:        %d\n", stats.Network.Faults)
	}

	printMsgCounts(w, stats.Network.Delivered)

	for i, c := range stats.Caches {
		fmt.Fprintf(w, "  L1Cache[%d]:    %d hits, %d misses, %d nacks\n",
			i, c.Hits, c.Misses, c.Nacks)
	}

	for i, d := range stats.Directories {
		fmt.Fprintf(w, "  Directory[%d]:  %d reads, %d writes, %d nacks\n",
			i, d.MemReads, d.MemWrites, d.Nacks)
	}

	if runErr != nil {
		failColor.Fprintf(w, "FAIL: %v\n", runErr)
		return
	}

	passColor.Fprintln(w, "PASS")
}

func printMsgCounts(w io.Writer, counts map[coherence.MsgType]uint64) {
	types := make([]coherence.MsgType, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}

	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	fmt.Fprint(w, "  messages:     ")

	for _, t := range types {
		fmt.Fprintf(w, " %s=%d", t, counts[t])
	}

	fmt.Fprintln(w)
}
