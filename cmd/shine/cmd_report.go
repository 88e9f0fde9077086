package main

import (
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/shine/go-controller/internal/eval"
	"github.com/danielpatrickdp/shine/go-controller/internal/replay"
	"github.com/danielpatrickdp/shine/go-controller/internal/report"
	"github.com/danielpatrickdp/shine/go-controller/internal/shieldtest"
)

// reportCmd re-renders the statistics and figure of a recorded run, either
// from a JSON fixture or from run history.
func (a *app) reportCmd() *cobra.Command {
	var (
		fixture   string
		runID     string
		outputDir string
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print statistics and plot a recorded run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (fixture == "") == (runID == "") {
				return goerr.New("exactly one of --fixture or --run is required")
			}
			if !cmd.Flags().Changed("output-dir") {
				outputDir = a.cfg.Eval.OutputDir
			}

			var run eval.RunConfig
			var res eval.Results
			if fixture != "" {
				f, err := replay.LoadFixture(fixture)
				if err != nil {
					return err
				}
				run = eval.RunConfig{Env: f.Env, ModelPath: f.ModelPath, Episodes: len(f.Episodes)}
				res = f.ToResults()
			} else {
				db, err := a.openStore(a.cfg.Store.Path)
				if err != nil {
					return err
				}
				if db == nil {
					return goerr.New("run history is disabled; set store.path or SHINE_DB")
				}
				defer db.Close()
				rec, err := db.GetRun(runID)
				if err != nil {
					return err
				}
				run = eval.RunConfig{Env: rec.Env, ModelPath: rec.ModelPath, Episodes: len(rec.Outcomes)}
				res = rec.Results()
			}

			_, err := shieldtest.New(nil, shieldtest.WithOutput(a.stdout), shieldtest.WithLogger(a.logger)).
				Report(shieldtest.Request{Run: run, OutputDir: outputDir}, res)
			return err
		},
	}
	cmd.Flags().StringVar(&fixture, "fixture", "", "JSON fixture written by evaluate --export")
	cmd.Flags().StringVar(&runID, "run", "", "run id from the history database")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "directory for the performance figure")
	return cmd
}

// plotCmd renders a grouped bar chart, either one of the built-in charts or
// a YAML definition.
func (a *app) plotCmd() *cobra.Command {
	var (
		chart string
		file  string
		out   string
	)
	cmd := &cobra.Command{
		Use:   "plot",
		Short: "Render a grouped bar chart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				c   *report.BarChart
				err error
			)
			if file != "" {
				c, err = report.LoadBarChart(file)
			} else {
				c, err = report.BuiltinBarChart(chart)
			}
			if err != nil {
				return err
			}
			if out == "" {
				name := chart
				if file != "" {
					name = trimExt(filepath.Base(file))
				}
				out = filepath.Join(a.cfg.Eval.OutputDir, name+".png")
			}
			if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
				return goerr.Wrap(err, "failed to create output directory")
			}
			if err := c.Save(out); err != nil {
				return err
			}
			a.console.Success("Chart saved as %s", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&chart, "chart", "clean-performance", "built-in chart name")
	cmd.Flags().StringVar(&file, "file", "", "chart definition (YAML); overrides --chart")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output image (png, svg or pdf)")
	return cmd
}

func trimExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}
