package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	scansListJSON   bool
	scansExportPath string
	scansExportFmt  string
)

var scansCmd = &cobra.Command{
	Use:   "scans",
	Short: "Inspect and manage the scan ledger",
}

var scansListCmd = &cobra.Command{
	Use:   "list",
	Short: "List today's scans, most recent activity first",
	RunE: func(cmd *cobra.Command, args []string) error {
		led, st, err := initLedger(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		records, err := led.ListToday(cmd.Context())
		if err != nil {
			return err
		}

		if scansListJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(records)
		}

		if len(records) == 0 {
			fmt.Fprintln(os.Stderr, "No scans today.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tCOUNT\tFIRST SEEN\tLAST SEEN")
		for _, rec := range records {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n",
				rec.Key, rec.Count,
				rec.FirstSeen.Format("15:04:05"),
				rec.LastSeen.Format("15:04:05"))
		}
		return w.Flush()
	},
}

var scansClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every record in the ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		led, st, err := initLedger(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		n, err := led.ClearAll(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d scans.\n", n)
		return nil
	},
}

var scansExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export today's scans to a file",
	RunE: func(cmd *cobra.Command, args []string) error {
		led, st, err := initLedger(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		records, err := led.ListToday(cmd.Context())
		if err != nil {
			return err
		}

		var data []byte
		switch scansExportFmt {
		case "json":
			data, err = json.MarshalIndent(records, "", "  ")
		case "yaml":
			data, err = yaml.Marshal(records)
		default:
			return eris.Errorf("unsupported export format: %s", scansExportFmt)
		}
		if err != nil {
			return eris.Wrap(err, "marshal scans")
		}

		if scansExportPath == "" || scansExportPath == "-" {
			_, err = os.Stdout.Write(data)
			return err
		}
		if err := os.WriteFile(scansExportPath, data, 0644); err != nil {
			return eris.Wrap(err, "write export file")
		}
		fmt.Printf("Exported %d scans to %s.\n", len(records), scansExportPath)
		return nil
	},
}

func init() {
	scansListCmd.Flags().BoolVar(&scansListJSON, "json", false, "output as JSON")
	scansExportCmd.Flags().StringVar(&scansExportPath, "out", "-", "output file (- for stdout)")
	scansExportCmd.Flags().StringVar(&scansExportFmt, "format", "json", "export format: json or yaml")

	scansCmd.AddCommand(scansListCmd)
	scansCmd.AddCommand(scansClearCmd)
	scansCmd.AddCommand(scansExportCmd)
	rootCmd.AddCommand(scansCmd)
}
