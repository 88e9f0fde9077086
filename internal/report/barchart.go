package report

import (
	"embed"
	"fmt"
	"image/color"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gopkg.in/yaml.v3"
)

//go:embed charts/*.yaml
var builtinCharts embed.FS

var (
	barWidth     = vg.Points(18)
	chartWidth   = 10 * vg.Inch
	chartHeight  = 6 * vg.Inch
	labelPadding = vg.Points(3)
)

var namedColors = map[string]color.RGBA{
	"red":    {R: 214, G: 39, B: 40, A: 255},
	"orange": {R: 255, G: 127, B: 14, A: 255},
	"blue":   {R: 31, G: 119, B: 180, A: 255},
	"green":  {R: 44, G: 160, B: 44, A: 255},
	"purple": {R: 148, G: 103, B: 189, A: 255},
	"gray":   {R: 127, G: 127, B: 127, A: 255},
}

// #region types
// BarSeries is one group member drawn at every category.
type BarSeries struct {
	Label  string    `yaml:"label"`
	Color  string    `yaml:"color"`
	Values []float64 `yaml:"values"`
}

// BarChart is a grouped bar chart comparing series across categories.
type BarChart struct {
	Title      string      `yaml:"title"`
	XLabel     string      `yaml:"x_label"`
	YLabel     string      `yaml:"y_label"`
	Categories []string    `yaml:"categories"`
	Series     []BarSeries `yaml:"series"`
}

// #endregion types

// #region load
// LoadBarChart reads a chart definition from a YAML file.
func LoadBarChart(path string) (*BarChart, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read chart", goerr.V("path", path))
	}
	return parseBarChart(data, path)
}

// BuiltinBarChart returns one of the embedded charts by name.
func BuiltinBarChart(name string) (*BarChart, error) {
	data, err := builtinCharts.ReadFile(path.Join("charts", name+".yaml"))
	if err != nil {
		return nil, goerr.Wrap(err, "unknown built-in chart", goerr.V("name", name),
			goerr.V("available", BuiltinBarChartNames()))
	}
	return parseBarChart(data, name)
}

// BuiltinBarChartNames lists the embedded chart names.
func BuiltinBarChartNames() []string {
	entries, err := builtinCharts.ReadDir("charts")
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}

func parseBarChart(data []byte, source string) (*BarChart, error) {
	var c BarChart
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, goerr.Wrap(err, "failed to parse chart", goerr.V("source", source))
	}
	if err := c.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid chart", goerr.V("source", source))
	}
	return &c, nil
}

// Validate checks that every series has one value per category.
func (c *BarChart) Validate() error {
	if len(c.Categories) == 0 {
		return goerr.New("chart has no categories")
	}
	if len(c.Series) == 0 {
		return goerr.New("chart has no series")
	}
	for _, s := range c.Series {
		if len(s.Values) != len(c.Categories) {
			return goerr.New("series length does not match categories",
				goerr.V("series", s.Label), goerr.V("values", len(s.Values)), goerr.V("categories", len(c.Categories)))
		}
		if _, err := parseColor(s.Color); err != nil {
			return err
		}
	}
	return nil
}

// #endregion load

// #region render
// Plot builds the grouped bar plot with each bar annotated by its value.
func (c *BarChart) Plot() (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = c.Title
	p.X.Label.Text = c.XLabel
	p.Y.Label.Text = c.YLabel
	p.Legend.Top = true

	n := len(c.Series)
	for i, s := range c.Series {
		bars, err := plotter.NewBarChart(plotter.Values(s.Values), barWidth)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to build bars", goerr.V("series", s.Label))
		}
		fill, _ := parseColor(s.Color)
		bars.Color = fill
		bars.LineStyle.Width = 0
		offset := vg.Length(float64(i)-float64(n-1)/2) * barWidth
		bars.Offset = offset

		labels, err := valueLabels(s.Values)
		if err != nil {
			return nil, err
		}
		labels.Offset = vg.Point{X: offset - barWidth/4, Y: labelPadding}

		p.Add(bars, labels)
		p.Legend.Add(s.Label, bars)
	}
	p.NominalX(c.Categories...)
	return p, nil
}

// Save renders the chart to file; the format follows the file extension.
func (c *BarChart) Save(file string) error {
	p, err := c.Plot()
	if err != nil {
		return err
	}
	if err := p.Save(chartWidth, chartHeight, file); err != nil {
		return goerr.Wrap(err, "failed to save chart", goerr.V("file", file))
	}
	return nil
}

func valueLabels(values []float64) (*plotter.Labels, error) {
	xyl := plotter.XYLabels{
		XYs:    make(plotter.XYs, len(values)),
		Labels: make([]string, len(values)),
	}
	for i, v := range values {
		xyl.XYs[i].X = float64(i)
		xyl.XYs[i].Y = v
		xyl.Labels[i] = fmt.Sprintf("%.2f", v)
	}
	labels, err := plotter.NewLabels(xyl)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build value labels")
	}
	return labels, nil
}

func parseColor(s string) (color.RGBA, error) {
	if c, ok := namedColors[strings.ToLower(s)]; ok {
		return c, nil
	}
	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 6 {
		return color.RGBA{}, goerr.New("unsupported color", goerr.V("color", s))
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, goerr.Wrap(err, "unsupported color", goerr.V("color", s))
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}

// #endregion render
