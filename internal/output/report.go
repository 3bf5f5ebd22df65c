package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/frolic/frolicsim/internal/budget"
	"github.com/frolic/frolicsim/internal/scheduler"
	"github.com/frolic/frolicsim/internal/stats"
)

// topGamesShown caps the per-game section of the text report.
const topGamesShown = 10

// Summary is everything a finished run reports.
type Summary struct {
	RunID          string           `json:"run_id"`
	Run            scheduler.Result `json:"run"`
	Stats          stats.Snapshot   `json:"stats"`
	Budget         *budget.Report   `json:"budget,omitempty"`
	ReconcileError string           `json:"reconcile_error,omitempty"`
}

// PrintReport outputs a human-readable summary report. Failed submissions,
// unresolved attempts, and incomplete reconciliation get separate sections.
func PrintReport(w io.Writer, sum Summary) {
	run, st := sum.Run, sum.Stats

	fmt.Fprintln(w, "\n--- Run Results ---")
	fmt.Fprintf(w, "Run ID:            %s\n", sum.RunID)
	fmt.Fprintf(w, "Policy:            %s\n", run.Policy)
	fmt.Fprintf(w, "Stop Reason:       %s\n", run.StopReason)
	fmt.Fprintf(w, "Duration:          %s\n", run.Duration)
	if run.Waves > 0 {
		fmt.Fprintf(w, "Waves Completed:   %d\n", run.Waves)
	}
	fmt.Fprintf(w, "Launched:          %d\n", run.Launched)
	if run.Abandoned > 0 {
		fmt.Fprintf(w, "Abandoned:         %d (still in flight at drain timeout)\n", run.Abandoned)
	}

	fmt.Fprintln(w, "\nPlays:")
	fmt.Fprintf(w, "  Total:           %d\n", st.TotalPlays)
	fmt.Fprintf(w, "  Accepted:        %d\n", st.SuccessfulSubmissions)
	fmt.Fprintf(w, "  Results Checked: %d\n", st.ResultsChecked)
	fmt.Fprintf(w, "  Winners:         %d\n", st.Winners)
	fmt.Fprintf(w, "  Losers:          %d\n", st.Losers)
	fmt.Fprintf(w, "  Win Rate:        %.1f%%\n", st.WinRatePct)
	fmt.Fprintf(w, "  Coupons Awarded: %d\n", st.CouponsAwarded)

	fmt.Fprintln(w, "\nSubmit Latency:")
	fmt.Fprintf(w, "  Min:             %s\n", st.MinLatency)
	fmt.Fprintf(w, "  Max:             %s\n", st.MaxLatency)
	fmt.Fprintf(w, "  Mean:            %s\n", st.MeanLatency)
	fmt.Fprintf(w, "  P50:             %s\n", st.P50Latency)
	fmt.Fprintf(w, "  P90:             %s\n", st.P90Latency)
	fmt.Fprintf(w, "  P99:             %s\n", st.P99Latency)

	fmt.Fprintf(w, "\nFailed Submissions: %d\n", st.FailedSubmissions)
	writeRejections(w, st.Rejections)

	fmt.Fprintf(w, "\nUnresolved Attempts: %d\n", st.Unresolved)
	if st.Pending > 0 {
		fmt.Fprintf(w, "  Pending (abandoned mid-attempt): %d\n", st.Pending)
	}

	if top := st.TopGames(topGamesShown); len(top) > 0 {
		fmt.Fprintf(w, "\nTop Games (of %d):\n", len(st.GamesPlayed))
		for i, g := range top {
			fmt.Fprintf(w, "  %2d. %-36s %d\n", i+1, g.GameID, g.Plays)
		}
	}

	writeBudget(w, sum)
}

func writeRejections(w io.Writer, rejections map[string]int64) {
	if len(rejections) == 0 {
		return
	}
	kinds := make([]string, 0, len(rejections))
	for kind := range rejections {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool {
		if rejections[kinds[i]] != rejections[kinds[j]] {
			return rejections[kinds[i]] > rejections[kinds[j]]
		}
		return kinds[i] < kinds[j]
	})
	for _, kind := range kinds {
		fmt.Fprintf(w, "  %-24s %d\n", kind, rejections[kind])
	}
}

func writeBudget(w io.Writer, sum Summary) {
	fmt.Fprintln(w, "\nBudget Reconciliation:")
	if sum.Budget == nil {
		if sum.ReconcileError != "" {
			fmt.Fprintf(w, "  FAILED: %s\n", sum.ReconcileError)
		} else {
			fmt.Fprintln(w, "  Skipped")
		}
		return
	}
	rep := sum.Budget
	if len(rep.Rows) == 0 {
		fmt.Fprintln(w, "  No budgets recorded")
		return
	}

	fmt.Fprintf(w, "  %-24s %-24s %12s %12s %12s %9s\n", "GAME", "BRAND", "INITIAL", "FINAL", "CONSUMED", "PCT")
	for _, row := range rep.Rows {
		final := "-"
		consumed, pct := "-", "-"
		if row.Reconciled {
			final = fmt.Sprintf("%d", *row.Final)
			consumed = fmt.Sprintf("%d", row.Consumed)
			pct = fmt.Sprintf("%.1f%%", row.ConsumedPct)
		}
		flag := ""
		if row.Violation {
			flag = "  VIOLATION: final exceeds initial"
		}
		fmt.Fprintf(w, "  %-24s %-24s %12d %12s %12s %9s%s\n",
			label(row.GameName, row.GameID), label(row.BrandName, row.BrandID), row.Initial, final, consumed, pct, flag)
	}
	fmt.Fprintf(w, "  Total consumed: %d of %d\n", rep.TotalConsumed, rep.TotalInitial)
	if rep.Violations > 0 {
		fmt.Fprintf(w, "  Violations:     %d\n", rep.Violations)
	}
	if !rep.Complete() {
		fmt.Fprintf(w, "  INCOMPLETE: %d of %d pairs not reconciled\n", rep.Unreconciled, len(rep.Rows))
		if sum.ReconcileError != "" {
			fmt.Fprintf(w, "  Error: %s\n", sum.ReconcileError)
		}
	}
}

// label prefers a display name and falls back to the id.
func label(name, id string) string {
	if name == "" {
		return id
	}
	return name
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, sum Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(sum)
}
