package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dukerupert/cleanround/internal/lifecycle"
	"github.com/dukerupert/cleanround/internal/model"
	"github.com/dukerupert/cleanround/internal/store"
)

var (
	reportThreshold float64
	reportJSON      bool
)

var reportCmd = &cobra.Command{
	Use:   "report ACTIVITY_ID",
	Short: "Print the pass-rate evaluation of an activity",
	Long: `Print the pass-rate evaluation of an activity. Closed activities are
evaluated against the threshold frozen when they were closed; otherwise
--threshold is used, falling back to the organisation's threshold.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var id int64
		if _, err := fmt.Sscan(args[0], &id); err != nil {
			return fmt.Errorf("invalid activity id %q", args[0])
		}
		e, err := setup()
		if err != nil {
			return err
		}
		defer e.Close()

		a, err := store.NewActivityStore(e.db).GetByID(id)
		if err != nil {
			return err
		}
		if a == nil {
			return fmt.Errorf("activity %d not found", id)
		}
		threshold := reportThreshold
		if !cmd.Flags().Changed("threshold") {
			org, err := store.NewOrgStore(e.db).GetByID(a.OrgID)
			if err != nil {
				return err
			}
			if org == nil {
				return fmt.Errorf("organisation %d not found", a.OrgID)
			}
			threshold = org.PassThreshold
		}

		// The operator reads as an admin of the activity's organisation.
		actor := lifecycle.Actor{OrgID: a.OrgID, Role: model.RoleAdmin}
		engine := lifecycle.NewEngine(store.NewLifecycle(e.db), nil, e.logger)
		ev, err := engine.Report(cmd.Context(), actor, a.ID, threshold)
		if err != nil {
			return err
		}
		if reportJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(ev)
		}
		printReport(cmd.OutOrStdout(), a, ev)
		return nil
	},
}

func printReport(w io.Writer, a *model.Activity, ev lifecycle.Evaluation) {
	fmt.Fprintf(w, "%s (#%d, %s)\n", a.Name, a.ID, a.Status)
	fmt.Fprintf(w, "  tasks:       %d\n", ev.Total)
	fmt.Fprintf(w, "  passed:      %d\n", ev.Passed)
	fmt.Fprintf(w, "  failed:      %d\n", ev.Failed)
	fmt.Fprintf(w, "  uninspected: %d\n", ev.Uninspected)
	fmt.Fprintf(w, "  cancelled:   %d\n", ev.Cancelled)
	if ev.PassRate == nil {
		fmt.Fprintf(w, "  pass rate:   n/a (threshold %g%%)\n", ev.Threshold)
	} else {
		fmt.Fprintf(w, "  pass rate:   %.1f%% (threshold %g%%)\n", *ev.PassRate, ev.Threshold)
	}
	fmt.Fprintf(w, "  outcome:     %s\n", ev.Outcome)
}

func init() {
	reportCmd.Flags().Float64Var(&reportThreshold, "threshold", 0, "pass threshold percentage")
	reportCmd.Flags().BoolVar(&reportJSON, "json", false, "print JSON")
	RootCmd.AddCommand(reportCmd)
}
