package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/pfs-cli/internal/dataset"
	"github.com/sells-group/pfs-cli/internal/model"
	"github.com/sells-group/pfs-cli/internal/store"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Store and inspect financial data snapshots",
}

// -- snapshot save --

var snapshotSaveCmd = &cobra.Command{
	Use:   "save <data-file>",
	Short: "Store a data file as a new snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		data, err := dataset.Load(args[0])
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		owner, _ := cmd.Flags().GetString("owner")
		label, _ := cmd.Flags().GetString("label")
		snap := &model.Snapshot{Owner: owner, Label: label, Data: *data}
		if err := st.SaveSnapshot(ctx, snap); err != nil {
			return eris.Wrap(err, "snapshot save")
		}
		fmt.Fprintln(os.Stdout, snap.ID)
		return nil
	},
}

// -- snapshot list --

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		owner, _ := cmd.Flags().GetString("owner")
		limit, _ := cmd.Flags().GetInt("limit")
		snaps, err := st.ListSnapshots(ctx, store.SnapshotFilter{Owner: owner, Limit: limit})
		if err != nil {
			return eris.Wrap(err, "snapshot list")
		}
		if len(snaps) == 0 {
			fmt.Fprintln(os.Stderr, "No snapshots found.")
			return nil
		}
		formatSnapshotList(os.Stdout, snaps)
		return nil
	},
}

// -- snapshot show --

var snapshotShowCmd = &cobra.Command{
	Use:   "show <snapshot-id>",
	Short: "Print a snapshot as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		snap, err := st.GetSnapshot(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "snapshot show")
		}
		return writeJSON(os.Stdout, snap)
	},
}

func init() {
	snapshotSaveCmd.Flags().String("owner", "", "snapshot owner")
	snapshotSaveCmd.Flags().String("label", "", "free-form label")
	snapshotListCmd.Flags().String("owner", "", "filter by owner")
	snapshotListCmd.Flags().Int("limit", 20, "max snapshots to list")

	snapshotCmd.AddCommand(snapshotSaveCmd, snapshotListCmd, snapshotShowCmd)
	rootCmd.AddCommand(snapshotCmd)
}

func formatSnapshotList(w io.Writer, snaps []model.Snapshot) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tOWNER\tLABEL\tPROPERTIES\tSCHEDULES\tCREATED")
	for _, s := range snaps {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
			shortID(s.ID), dash(s.Owner), dash(s.Label),
			len(s.Data.Properties), len(s.Data.Schedules),
			s.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	tw.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
