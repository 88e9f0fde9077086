package report

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/danielpatrickdp/shine/go-controller/internal/eval"
)

const (
	figureWidth   = 15 * vg.Inch
	figureHeight  = 10 * vg.Inch
	histogramBins = 20
)

var lineColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}

// FigureFileName is the image name written for env.
func FigureFileName(env string) string {
	return strings.ToLower(env) + "_shielded_agent_performance.png"
}

// #region figure
// PerformanceFigure renders the per-episode panels of one evaluation run on a
// 2x2 grid: rewards and lengths on top, shield activations below when any
// were recorded.
type PerformanceFigure struct {
	env              string
	activationPanels func(env string, activations []int) ([]*plot.Plot, error)
}

// NewPerformanceFigure creates a figure for env.
func NewPerformanceFigure(env string) *PerformanceFigure {
	return &PerformanceFigure{
		env:              env,
		activationPanels: activationPanels,
	}
}

// Panels builds the plots in grid order (row-major).
func (f *PerformanceFigure) Panels(res eval.Results) ([]*plot.Plot, error) {
	rewards, err := linePanel(
		fmt.Sprintf("%s Rewards per Episode", f.env), "Total Reward", "Rewards", floatXYs(res.Rewards))
	if err != nil {
		return nil, err
	}
	lengths, err := linePanel(
		fmt.Sprintf("%s Episode Lengths", f.env), "Steps", "Episode Lengths", intXYs(res.Lengths))
	if err != nil {
		return nil, err
	}
	panels := []*plot.Plot{rewards, lengths}

	if !anyPositive(res.ShieldActivations) {
		return panels, nil
	}
	extra, err := f.activationPanels(f.env, res.ShieldActivations)
	if err != nil {
		return nil, err
	}
	return append(panels, extra...), nil
}

// Save draws the figure and writes it to dir/FigureFileName(env).
func (f *PerformanceFigure) Save(res eval.Results, dir string) (string, error) {
	panels, err := f.Panels(res)
	if err != nil {
		return "", err
	}

	img := vgimg.New(figureWidth, figureHeight)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows:      2,
		Cols:      2,
		PadX:      vg.Millimeter * 4,
		PadY:      vg.Millimeter * 4,
		PadTop:    vg.Millimeter * 2,
		PadBottom: vg.Millimeter * 2,
		PadLeft:   vg.Millimeter * 2,
		PadRight:  vg.Millimeter * 2,
	}
	for i, p := range panels {
		p.Draw(tiles.At(dc, i%tiles.Cols, i/tiles.Cols))
	}

	path := filepath.Join(dir, FigureFileName(f.env))
	out, err := os.Create(path)
	if err != nil {
		return "", goerr.Wrap(err, "failed to create figure file", goerr.V("path", path))
	}
	defer out.Close()

	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(out); err != nil {
		return "", goerr.Wrap(err, "failed to encode figure", goerr.V("path", path))
	}
	return path, nil
}

// #endregion figure

// #region panels
func linePanel(title, yLabel, legend string, xys plotter.XYs) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Episode"
	p.Y.Label.Text = yLabel

	line, err := plotter.NewLine(xys)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build line", goerr.V("title", title))
	}
	line.LineStyle.Color = lineColor
	p.Add(line)
	p.Legend.Add(legend, line)
	p.Legend.Top = true
	return p, nil
}

func activationPanels(env string, activations []int) ([]*plot.Plot, error) {
	curve, err := linePanel(
		fmt.Sprintf("%s Shield Activations per Episode", env), "Number of Activations",
		"Shield Activations", intXYs(activations))
	if err != nil {
		return nil, err
	}

	values := make(plotter.Values, len(activations))
	for i, a := range activations {
		values[i] = float64(a)
	}
	hist, err := plotter.NewHist(values, histogramBins)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build activation histogram")
	}
	hist.FillColor = lineColor

	dist := plot.New()
	dist.Title.Text = fmt.Sprintf("%s Shield Activation Distribution", env)
	dist.X.Label.Text = "Number of Activations"
	dist.Y.Label.Text = "Frequency"
	dist.Add(hist)

	return []*plot.Plot{curve, dist}, nil
}

func floatXYs(ys []float64) plotter.XYs {
	xys := make(plotter.XYs, len(ys))
	for i, y := range ys {
		xys[i].X = float64(i)
		xys[i].Y = y
	}
	return xys
}

func intXYs(ys []int) plotter.XYs {
	xys := make(plotter.XYs, len(ys))
	for i, y := range ys {
		xys[i].X = float64(i)
		xys[i].Y = float64(y)
	}
	return xys
}

func anyPositive(xs []int) bool {
	for _, x := range xs {
		if x > 0 {
			return true
		}
	}
	return false
}

// #endregion panels
