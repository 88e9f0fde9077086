package report

import "gonum.org/v1/plot"

// SetActivationPanels swaps the builder used for the shield activation row.
func (f *PerformanceFigure) SetActivationPanels(fn func(env string, activations []int) ([]*plot.Plot, error)) {
	f.activationPanels = fn
}

var ParseColor = parseColor
