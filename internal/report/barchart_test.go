package report_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/shine/go-controller/internal/report"
)

func TestBuiltinBarCharts(t *testing.T) {
	assert.Equal(t, []string{"action-distribution", "clean-performance"}, report.BuiltinBarChartNames())

	c, err := report.BuiltinBarChart("clean-performance")
	require.NoError(t, err)
	assert.Equal(t, []string{"Pong", "Breakout"}, c.Categories)
	require.Len(t, c.Series, 4)
	assert.Equal(t, "SHINE (Reported)", c.Series[2].Label)
	assert.Equal(t, []float64{0.734, 25.35}, c.Series[2].Values)

	a, err := report.BuiltinBarChart("action-distribution")
	require.NoError(t, err)
	assert.Len(t, a.Categories, 4)

	_, err = report.BuiltinBarChart("nope")
	assert.Error(t, err)
}

func TestLoadBarChart_Validation(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte(`
title: t
categories: [A, B]
series:
  - label: s
    color: red
    values: [1]
`), 0o644))
	_, err := report.LoadBarChart(bad)
	assert.Error(t, err)

	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte(`
title: t
categories: [A, B]
series:
  - label: s
    color: "#102030"
    values: [1, 2]
`), 0o644))
	c, err := report.LoadBarChart(good)
	require.NoError(t, err)
	assert.Equal(t, "t", c.Title)
}

func TestParseColor(t *testing.T) {
	c, err := report.ParseColor("#102030")
	require.NoError(t, err)
	assert.Equal(t, uint8(0x10), c.R)
	assert.Equal(t, uint8(0x20), c.G)
	assert.Equal(t, uint8(0x30), c.B)

	_, err = report.ParseColor("chartreuse-ish")
	assert.Error(t, err)
}

func TestBarChart_Save(t *testing.T) {
	c, err := report.BuiltinBarChart("clean-performance")
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "clean.png")
	require.NoError(t, c.Save(out))
	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}
