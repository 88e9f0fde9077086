package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/shine/go-controller/internal/report"
)

// #region inspect
func (a *app) inspectCmd() *cobra.Command {
	var (
		limit    int
		runID    string
		pipeline string
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show run history and pipeline phase logs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := a.openStore(a.cfg.Store.Path)
			if err != nil {
				return err
			}
			if db == nil {
				return goerr.New("run history is disabled; set store.path or SHINE_DB")
			}
			defer db.Close()

			w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			defer w.Flush()

			switch {
			case pipeline != "":
				entries, err := db.ListPhases(pipeline)
				if err != nil {
					return err
				}
				fmt.Fprintln(w, "GAME\tPATTERN\tPHASE\tSTATUS\tEXIT\tDURATION")
				for _, e := range entries {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n", e.Game, e.Pattern, e.Phase, e.Status, e.ExitCode, e.Duration)
				}
			case runID != "":
				rec, err := db.GetRun(runID)
				if err != nil {
					return err
				}
				if err := report.WriteSummary(w, rec.Env, rec.Summary); err != nil {
					return err
				}
				fmt.Fprintln(w, "\nEPISODE\tREWARD\tLENGTH\tSHIELD")
				for i, o := range rec.Outcomes {
					fmt.Fprintf(w, "%d\t%.2f\t%d\t%d\n", i, o.Reward, o.Length, o.ShieldActivations)
				}
			default:
				runs, err := db.ListRuns(limit)
				if err != nil {
					return err
				}
				fmt.Fprintln(w, "RUN\tENV\tEPISODES\tMEAN REWARD\tSUCCESS\tCREATED")
				for _, r := range runs {
					fmt.Fprintf(w, "%s\t%s\t%d\t%.2f\t%.2f%%\t%s\n", r.RunID, r.Env, r.Summary.Episodes,
						r.Summary.MeanReward, r.Summary.SuccessRate*100, r.CreatedAt.Format("2006-01-02 15:04:05"))
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to list")
	cmd.Flags().StringVar(&runID, "run", "", "show the episodes of one run")
	cmd.Flags().StringVar(&pipeline, "pipeline", "", "show the phase log of one pipeline run")
	return cmd
}

// #endregion
