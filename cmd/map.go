package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/retell-relay/internal/model"
	"github.com/sells-group/retell-relay/internal/relay"
)

var mapCmd = &cobra.Command{
	Use:   "map [payload.json]",
	Short: "Dry-run a webhook payload through extraction, validation and mapping",
	Long: `Reads a Retell webhook payload from a file (or stdin when no file or "-" is given)
and prints the extracted fields and the Salesforce values they map to. No lead is created.
With --offline the values come from the mapping rules instead of the CRM picklists.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		offline, _ := cmd.Flags().GetBool("offline")
		mode := "check"
		if offline {
			mode = "map"
		}
		if err := cfg.Validate(mode); err != nil {
			return err
		}

		path := "-"
		if len(args) == 1 {
			path = args[0]
		}
		payload, err := readPayload(cmd.InOrStdin(), path)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		env, err := initRelay(ctx, cfg, relayOptions{Offline: offline})
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Service.Prepare(ctx, payload)
		if err != nil {
			return eris.Wrap(err, "map")
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}
		formatMapping(cmd.OutOrStdout(), res)
		return nil
	},
}

// readPayload decodes a JSON object from path, or from stdin for "-".
func readPayload(stdin io.Reader, path string) (map[string]any, error) {
	var raw []byte
	var err error
	if path == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "map: read %s", path)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, eris.Wrap(err, "map: parse payload")
	}
	if payload == nil {
		return nil, eris.New("map: payload must be a JSON object")
	}
	return payload, nil
}

func formatMapping(w io.Writer, res *relay.Result) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Payload shape:\t%s\n", res.Shape)
	for _, f := range model.CanonicalFields {
		fmt.Fprintf(tw, "%s:\t%s\n", f, res.Lead.Value(f))
	}
	fmt.Fprintln(tw, "\t")
	fmt.Fprintf(tw, "Status:\t%s\n", orNull(res.Mapped.Status))
	fmt.Fprintf(tw, "Damage type:\t%s\n", orNull(res.Mapped.DamageType))
	fmt.Fprintf(tw, "Damage amount:\t%s\n", orNull(res.Mapped.DamageAmount))
	_ = tw.Flush()
}

func orNull(s string) string {
	if s == "" {
		return "(null)"
	}
	return s
}

func init() {
	mapCmd.Flags().Bool("offline", false, "map against the rule set values instead of CRM picklists")
	mapCmd.Flags().Bool("json", false, "print the result as JSON")
	rootCmd.AddCommand(mapCmd)
}
