package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/pfs-cli/internal/model"
	"github.com/sells-group/pfs-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect fill run history",
	Long:  "Commands for listing and viewing recorded fill passes and their per-field outcomes.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List fill runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		tmpl, _ := cmd.Flags().GetString("template")
		snapshot, _ := cmd.Flags().GetString("snapshot")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListFillRuns(ctx, store.RunFilter{
			Status:     model.RunStatus(status),
			TemplateID: tmpl,
			SnapshotID: snapshot,
			Limit:      limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a run and its per-field outcomes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetFillRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(os.Stdout, run)
		}
		all, _ := cmd.Flags().GetBool("all")
		formatRunDetail(os.Stdout, run, all)
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by status (complete, warnings, zero_filled, structural)")
	runsListCmd.Flags().String("template", "", "filter by template id")
	runsListCmd.Flags().String("snapshot", "", "filter by snapshot id")
	runsListCmd.Flags().Int("limit", 20, "max runs to list")

	runsShowCmd.Flags().Bool("json", false, "print the run as JSON")
	runsShowCmd.Flags().Bool("all", false, "list filled and blank outcomes too")

	runsCmd.AddCommand(runsListCmd, runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}

func formatRunsList(w io.Writer, runs []model.FillRun) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTEMPLATE\tEDITION\tSTATUS\tFILLED\tBLANK\tMISSING\tFAILED\tCREATED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			shortID(r.ID), r.TemplateID, r.Edition, r.Status,
			r.Filled, r.Blank, r.Missing, r.Failed,
			r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	tw.Flush()
}

// formatRunDetail prints a run header and its outcomes. Unless all is set
// only outcomes that were not applied are listed.
func formatRunDetail(w io.Writer, r *model.FillRun, all bool) {
	fmt.Fprintf(w, "Run:       %s\n", r.ID)
	fmt.Fprintf(w, "Template:  %s\n", r.TemplateID)
	fmt.Fprintf(w, "Edition:   %s\n", r.Edition)
	if r.SnapshotID != "" {
		fmt.Fprintf(w, "Snapshot:  %s\n", r.SnapshotID)
	}
	fmt.Fprintf(w, "Status:    %s\n", r.Status)
	fmt.Fprintf(w, "Counts:    %d filled, %d blank, %d missing, %d failed\n", r.Filled, r.Blank, r.Missing, r.Failed)
	fmt.Fprintf(w, "Created:   %s\n", r.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	if r.Error != "" {
		fmt.Fprintf(w, "Error:     %s\n", r.Error)
	}

	var shown []model.FillOutcome
	for _, o := range r.Outcomes {
		if all || (o.Status != model.StatusFilled && o.Status != model.StatusBlank) {
			shown = append(shown, o)
		}
	}
	if len(shown) == 0 {
		return
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FIELD\tSTATUS\tVALUE\tDETAIL")
	for _, o := range shown {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", o.FieldName, o.Status, dash(o.Value), dash(o.Detail))
	}
	tw.Flush()
}
