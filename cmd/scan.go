package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/nx-scanner/internal/ticket"
)

var scanRecord bool

var scanCmd = &cobra.Command{
	Use:   "scan <payload>",
	Short: "Parse and validate a single ticket payload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res := ticket.Parse(args[0])

		out := map[string]any{
			"kind":   res.Kind,
			"valid":  res.Valid(),
			"errors": res.Errors,
			"parsed": res.FieldMap(),
		}

		if scanRecord {
			led, st, err := initLedger(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			receipt, err := led.Record(cmd.Context(), res.Raw, res.FieldMap())
			if err != nil {
				return err
			}
			out["receipt"] = receipt
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return err
		}

		if !res.Valid() {
			fmt.Fprintln(os.Stderr, "Payload is invalid.")
		}
		return nil
	},
}

func init() {
	scanCmd.Flags().BoolVar(&scanRecord, "record", false, "record the scan in the ledger")
	rootCmd.AddCommand(scanCmd)
}
