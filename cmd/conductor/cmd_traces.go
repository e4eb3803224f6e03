package main

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"conductor/internal/store"

	"github.com/spf13/cobra"
)

var (
	tracesLimit  int
	tracesTurnID string
	tracesStats  bool
)

// tracesCmd lists recorded turns
var tracesCmd = &cobra.Command{
	Use:   "traces",
	Short: "List recent turn traces from the trace store",
	RunE:  runTraces,
}

func init() {
	tracesCmd.Flags().IntVarP(&tracesLimit, "limit", "n", 20, "Number of traces to show")
	tracesCmd.Flags().StringVar(&tracesTurnID, "client-turn", "", "Only show traces for this client_turn_id")
	tracesCmd.Flags().BoolVar(&tracesStats, "stats", false, "Show counts per HTTP status instead")
}

func runTraces(cmd *cobra.Command, args []string) error {
	ts, err := store.OpenTraceStore(cfg.Store.TraceDB)
	if err != nil {
		return err
	}
	defer ts.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if tracesStats {
		counts, err := ts.StatusCounts(ctx)
		if err != nil {
			return err
		}
		statuses := make([]int, 0, len(counts))
		for s := range counts {
			statuses = append(statuses, s)
		}
		sort.Ints(statuses)
		for _, s := range statuses {
			fmt.Fprintf(out, "%d\t%d\n", s, counts[s])
		}
		return nil
	}

	var rows []store.TurnTrace
	if tracesTurnID != "" {
		rows, err = ts.ForClientTurn(ctx, tracesTurnID)
	} else {
		rows, err = ts.Recent(ctx, tracesLimit)
	}
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintln(out, "No traces recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tREQUEST\tTURN\tSTATUS\tROUTING\tTOOL\tASSEMBLY\tBLOCKS\tMS")
	for _, r := range rows {
		status := fmt.Sprint(r.HTTPStatus)
		if r.ErrorCode != "" {
			status += " " + r.ErrorCode
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%d\t%d\n",
			r.CreatedAt.Format("2006-01-02 15:04:05"), r.RequestID, r.ClientTurnID, status,
			r.Routing, r.Tool, r.Assembly, r.BlockCount, r.DurationMs)
	}
	return tw.Flush()
}
