package main

import (
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/tier-cli/internal/model"
)

var (
	showHistory     bool
	showLimit       int
	showCalculation string
	showFormat      string
)

var showCmd = &cobra.Command{
	Use:   "show <crn>",
	Short: "Show the stored tier for a subject",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("store"); err != nil {
			return err
		}
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		crn := args[0]
		var out any
		switch {
		case showCalculation != "":
			id, err := uuid.Parse(showCalculation)
			if err != nil {
				return eris.Wrap(err, "parse calculation id")
			}
			calc, err := st.GetCalculation(ctx, crn, id)
			if err != nil {
				return err
			}
			if calc == nil {
				return eris.Errorf("calculation %s not found for %s", id, crn)
			}
			out = calc
		case showHistory:
			calcs, err := st.ListCalculations(ctx, crn, showLimit)
			if err != nil {
				return err
			}
			out = calcs
		default:
			calc, err := st.LatestCalculation(ctx, crn)
			if err != nil {
				return err
			}
			if calc == nil {
				return eris.Errorf("no tier calculated for %s", crn)
			}
			out = latestView(calc)
		}
		return render(cmd.OutOrStdout(), showFormat, out)
	},
}

type tierView struct {
	Tier        string                 `json:"tier"`
	Calculation *model.TierCalculation `json:"calculation"`
}

func latestView(c *model.TierCalculation) tierView {
	return tierView{Tier: c.Tier().String(), Calculation: c}
}

func init() {
	showCmd.Flags().BoolVar(&showHistory, "history", false, "list calculation history, newest first")
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "history entries to list")
	showCmd.Flags().StringVar(&showCalculation, "calculation", "", "show one calculation by id")
	showCmd.Flags().StringVarP(&showFormat, "output", "o", "json", "output format: json or yaml")
	rootCmd.AddCommand(showCmd)
}
