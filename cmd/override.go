package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/tier-cli/internal/override"
)

var (
	overrideBatchID string
	overrideDryRun  bool
	overrideFormat  string
)

var overrideCmd = &cobra.Command{
	Use:   "override <file.csv|file.xlsx>",
	Short: "Import operator-supplied tiers",
	Long:  "Reads crn,tier[,protect_score,change_score] rows and writes them as calculations. Re-importing the same file writes nothing new.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		path := args[0]

		data, err := os.ReadFile(path)
		if err != nil {
			return eris.Wrap(err, "read override file")
		}
		parsed, err := override.Parse(path, data)
		if err != nil {
			return err
		}
		if overrideDryRun {
			return render(cmd.OutOrStdout(), overrideFormat, parsed)
		}

		if err := cfg.Validate("store"); err != nil {
			return err
		}
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		metrics, mp, err := initMetrics()
		if err != nil {
			return err
		}
		if mp != nil {
			defer mp.Shutdown(ctx) //nolint:errcheck
		}

		batchID := overrideBatchID
		if batchID == "" {
			batchID = override.BatchID(data)
		}
		res, err := override.NewImporter(st, metrics).Import(ctx, parsed, batchID)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), overrideFormat, res)
	},
}

func init() {
	overrideCmd.Flags().StringVar(&overrideBatchID, "batch-id", "", "batch identifier (default: hash of file content)")
	overrideCmd.Flags().BoolVar(&overrideDryRun, "dry-run", false, "parse and print rows without writing")
	overrideCmd.Flags().StringVarP(&overrideFormat, "output", "o", "json", "output format: json or yaml")
	rootCmd.AddCommand(overrideCmd)
}
