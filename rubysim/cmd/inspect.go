package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/sarchlab/rubysim/datarecording"
	"github.com/spf13/cobra"
)

type reportFlags struct {
	db          string
	slowest     int
	line        string
	lineSize    uint64
	transitions bool
}

func newReportCmd() *cobra.Command {
	f := &reportFlags{}

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize a run recorded with run --db.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printRecordedRun(cmd.Context(), cmd.OutOrStdout(), f)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.db, "db", "", "the recorded SQLite file")
	flags.IntVar(&f.slowest, "slowest", 5,
		"list this many of the slowest transactions")
	flags.StringVar(&f.line, "line", "",
		"list every transaction on the line holding this address")
	flags.Uint64Var(&f.lineSize, "line-size", 64, "cache line size in bytes")
	flags.BoolVar(&f.transitions, "transitions", false,
		"count the recorded protocol transitions")

	if err := cmd.MarkFlagRequired("db"); err != nil {
		panic(err)
	}

	return cmd
}

func printRecordedRun(ctx context.Context, w io.Writer, f *reportFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}

	r, err := datarecording.OpenRun(f.db)
	if err != nil {
		return fmt.Errorf("cannot open recorded run: %w", err)
	}
	defer r.Close()

	summary, err := r.Summary(ctx)
	if err != nil {
		return err
	}

	headColor.Fprintf(w, "Run recorded in %s\n", f.db)

	for _, e := range summary {
		fmt.Fprintf(w, "  %-22s %g\n", e.Name+":", e.Value)
	}

	kinds, err := r.KindStats(ctx)
	if err != nil {
		return err
	}

	headColor.Fprintln(w, "Transactions")

	for _, k := range kinds {
		fmt.Fprintf(w, "  %-8s %6d txns, %8.2f avg, %6d max cycles, %d retries\n",
			k.Kind, k.Count, k.AvgLatency, k.MaxLatency, k.Retries)
	}

	types, err := r.MsgTypeStats(ctx)
	if err != nil {
		return err
	}

	headColor.Fprintln(w, "Messages")

	for _, t := range types {
		fmt.Fprintf(w, "  %-12s %6d delivered, %6.2f avg cycles in flight\n",
			t.Type, t.Count, t.AvgLatency)
	}

	if f.slowest > 0 {
		slowest, err := r.SlowestTxns(ctx, f.slowest)
		if err != nil {
			return err
		}

		headColor.Fprintln(w, "Slowest")
		printTxns(w, slowest)
	}

	if f.line != "" {
		addr, err := strconv.ParseUint(f.line, 0, 64)
		if err != nil {
			return fmt.Errorf("bad line address %q: %w", f.line, err)
		}

		txns, err := r.LineTxns(ctx, addr, f.lineSize)
		if err != nil {
			return err
		}

		headColor.Fprintf(w, "Line 0x%x\n", addr&^(f.lineSize-1))
		printTxns(w, txns)
	}

	if f.transitions {
		return printTransitionCounts(ctx, w, r)
	}

	return nil
}

func printTxns(w io.Writer, txns []datarecording.TxnEntry) {
	for _, t := range txns {
		fmt.Fprintf(w,
			"  #%-6d core %-3d %-6s 0x%-10x cycles %d-%d (%d), %d retries\n",
			t.ID, t.Core, t.Kind, t.Addr, t.IssueCycle, t.CompleteCycle,
			t.CompleteCycle-t.IssueCycle, t.Retries)
	}
}

func printTransitionCounts(
	ctx context.Context,
	w io.Writer,
	r *datarecording.RunReader,
) error {
	counts, err := r.TransitionCounts(ctx)
	if err != nil {
		return err
	}

	headColor.Fprintln(w, "Transitions")

	if len(counts) == 0 {
		fmt.Fprintln(w, "  none recorded, run with --record-transitions")
		return nil
	}

	for _, c := range counts {
		fmt.Fprintf(w, "  %-10s %-6s --%s--> %-6s %d\n",
			c.Machine, c.FromState, c.Event, c.ToState, c.Count)
	}

	return nil
}
