package usecase

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"AffineNews/internal/domain"
)

// FormatBatchReport renders a per-paper summary table with totals.
func FormatBatchReport(report domain.BatchReport) string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PAPER\tSTATUS\tINSERTED\tSKIPPED\tFAILED\tELAPSED")
	for _, r := range report.Results {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n",
			r.PaperURL, r.Status, r.Inserted, r.Skipped, len(r.Errors), r.Elapsed.Round(time.Millisecond))
	}
	for _, f := range report.Failed {
		fmt.Fprintf(w, "%s\t%s\t-\t-\t-\t-\n", f.Key, "aborted")
	}
	inserted, skipped, failed := report.Totals()
	fmt.Fprintf(w, "TOTAL\t\t%d\t%d\t%d\t%s\n", inserted, skipped, failed, report.Elapsed.Round(time.Millisecond))
	_ = w.Flush()
	fmt.Fprintf(&b, "success rate: %.1f%%\n", report.SuccessRate()*100)
	return b.String()
}
