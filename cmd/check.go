package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/retell-relay/internal/relay"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify Salesforce credentials and Lead picklists",
	Long:  "Authenticates with Salesforce, runs a one-row Lead query and lists the picklist values and custom fields the relay maps onto.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("check"); err != nil {
			return err
		}
		ctx := cmd.Context()

		env, err := initRelay(ctx, cfg, relayOptions{})
		if err != nil {
			return err
		}
		defer env.Close()

		d, err := env.Service.Diagnose(ctx)
		if err != nil {
			return eris.Wrap(err, "check")
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(d)
		}
		formatDiagnostics(cmd.OutOrStdout(), d)
		return nil
	},
}

func formatDiagnostics(w io.Writer, d *relay.Diagnostics) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Instance:\t%s\n", d.Connection.InstanceURL)
	fmt.Fprintf(tw, "Lead query:\tok (%d row)\n", d.Connection.LeadsSeen)
	fmt.Fprintf(tw, "Statuses:\t%s\n", joinOrNone(d.Fields.Picklists.Statuses))
	fmt.Fprintf(tw, "Damage types:\t%s\n", joinOrNone(d.Fields.Picklists.DamageTypes))
	fmt.Fprintf(tw, "Damage amounts:\t%s\n", joinOrNone(d.Fields.Picklists.DamageAmounts))
	_ = tw.Flush()

	if len(d.Fields.CustomFields) == 0 {
		return
	}
	fmt.Fprintf(w, "\nCustom fields (%d):\n", len(d.Fields.CustomFields))
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tLABEL\tTYPE")
	for _, f := range d.Fields.CustomFields {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", f.Name, f.Label, f.Type)
	}
	_ = tw.Flush()
}

func joinOrNone(values []string) string {
	if len(values) == 0 {
		return "(none)"
	}
	return strings.Join(values, ", ")
}

func init() {
	checkCmd.Flags().Bool("json", false, "print the report as JSON")
	rootCmd.AddCommand(checkCmd)
}
