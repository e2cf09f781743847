package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/pfs-cli/internal/audit"
	"github.com/sells-group/pfs-cli/internal/document"
	"github.com/sells-group/pfs-cli/internal/mapping"
	"github.com/sells-group/pfs-cli/internal/model"
)

var (
	inspectEdition string
	inspectJSON    bool
)

// -- fields --

var fieldsCmd = &cobra.Command{
	Use:   "fields <template>",
	Short: "List a template's fields and reconcile them against an edition",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := newFillEnv(cfg, "")
		if err != nil {
			return err
		}
		defer env.Close()

		tmpl, err := env.Templates.Resolve(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		form, err := document.DetectCodec(tmpl.Bytes).Decode(tmpl.Bytes)
		if err != nil {
			return err
		}

		edition := firstNonEmpty(inspectEdition, tmpl.Edition, cfg.Fill.DefaultEdition)
		table, err := env.Rules.Table(edition)
		if err != nil {
			return err
		}

		recon := audit.Reconcile(table.Names(), form.Names())
		if inspectJSON {
			return writeJSON(os.Stdout, map[string]any{
				"template":       args[0],
				"edition":        edition,
				"fields":         len(form.Names()),
				"reconciliation": recon,
			})
		}
		formatFields(os.Stdout, form, table)
		fmt.Fprintf(os.Stderr, "%d fields, %d mappings without a field, %d fields without a mapping (%s)\n",
			form.Len(), len(recon.UnmatchedMappings), len(recon.UnmappedFields), edition)
		return nil
	},
}

// -- tables --

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List editions, or dump one edition's rendered mapping table",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := newFillEnv(cfg, "")
		if err != nil {
			return err
		}
		defer env.Close()

		if inspectEdition == "" {
			formatEditions(os.Stdout, env.Rules)
			return nil
		}
		table, err := env.Rules.Table(inspectEdition)
		if err != nil {
			return err
		}
		if inspectJSON {
			return writeJSON(os.Stdout, table.Mappings())
		}
		formatTable(os.Stdout, table)
		return nil
	},
}

func init() {
	fieldsCmd.Flags().StringVar(&inspectEdition, "edition", "", "mapping edition to reconcile against")
	fieldsCmd.Flags().BoolVar(&inspectJSON, "json", false, "print the reconciliation as JSON")
	tablesCmd.Flags().StringVar(&inspectEdition, "edition", "", "edition to dump")
	tablesCmd.Flags().BoolVar(&inspectJSON, "json", false, "print mappings as JSON")
	rootCmd.AddCommand(fieldsCmd, tablesCmd)
}

func formatFields(w io.Writer, form *document.Form, table *mapping.Table) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FIELD\tWIDGET\tREAD-ONLY\tMAPPED\tKEY")
	for _, f := range form.Fields() {
		key := "-"
		mapped := "no"
		if m, ok := table.ByName(f.Name()); ok {
			key, mapped = m.Key, "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\n", f.Name(), document.Probe(f).Kind, f.IsReadOnly(), mapped, key)
	}
	tw.Flush()
}

func formatEditions(w io.Writer, rs *mapping.RuleSet) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "rule set %s, %d rules\n", rs.Version, rs.Rules())
	fmt.Fprintln(tw, "EDITION\tSTYLE\tINDEX\tMAPPINGS\tTITLE")
	for _, ed := range rs.Editions() {
		n := "-"
		if t, err := rs.Table(ed.ID); err == nil {
			n = strconv.Itoa(t.Len())
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", ed.ID, ed.Convention.Style, ed.Convention.Index, n, ed.Title)
	}
	tw.Flush()
}

func formatTable(w io.Writer, t *mapping.Table) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FIELD\tSOURCE\tTYPE\tREFERENCE")
	for _, m := range t.Mappings() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.OutputFieldName, m.DataSource, m.FieldType, reference(m))
	}
	tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// reference describes where a mapping reads its value.
func reference(m model.FieldMapping) string {
	var ref string
	switch m.DataSource {
	case model.SourceDirect:
		ref = m.DataPath
	case model.SourceCalculated:
		ref = m.CalculateName
	case model.SourceSchedule:
		ref = fmt.Sprintf("%s[%d].%s", m.ScheduleID, m.ScheduleIndex, m.ScheduleField)
	case model.SourceProperty:
		ref = fmt.Sprintf("properties[%d].%s", m.PropertyIndex, m.PropertyField)
	}
	if m.TransformName != "" {
		ref += " | " + m.TransformName
	}
	return ref
}
