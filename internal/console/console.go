// Package console prints the human-facing status lines of a pipeline run.
// Structured logs go through zap; this is what an operator watches.
package console

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

const bannerWidth = 50

// #region styles
type styles struct {
	header  lipgloss.Style
	banner  lipgloss.Style
	success lipgloss.Style
	failure lipgloss.Style
	muted   lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		header:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4")),
		banner:  r.NewStyle().Bold(true),
		success: r.NewStyle().Foreground(lipgloss.Color("#04B575")),
		failure: r.NewStyle().Foreground(lipgloss.Color("#FF5F87")).Bold(true),
		muted:   r.NewStyle().Foreground(lipgloss.Color("#626262")),
	}
}

// #endregion styles

// Printer writes styled status lines to w. Colors are dropped automatically
// when w is not a terminal.
type Printer struct {
	mu       sync.Mutex
	w        io.Writer
	styles   styles
	progress progress.Model
}

// New creates a Printer writing to w.
func New(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		w:        w,
		styles:   newStyles(r),
		progress: progress.New(progress.WithDefaultGradient(), progress.WithWidth(40), progress.WithoutPercentage()),
	}
}

// Discard returns a Printer that writes nothing.
func Discard() *Printer {
	return New(io.Discard)
}

func (p *Printer) println(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, s)
}

// Header prints "=== title ===" preceded by a blank line.
func (p *Printer) Header(title string) {
	p.println("\n" + p.styles.header.Render("=== "+title+" ==="))
}

// Banner prints title framed by two rules of '='.
func (p *Printer) Banner(title string) {
	rule := strings.Repeat("=", bannerWidth)
	p.println("\n" + p.styles.banner.Render(rule+"\n"+title+"\n"+rule))
}

// Success prints a check-marked line.
func (p *Printer) Success(format string, args ...any) {
	p.println(p.styles.success.Render("✓ " + fmt.Sprintf(format, args...)))
}

// Failure prints a cross-marked line.
func (p *Printer) Failure(format string, args ...any) {
	p.println(p.styles.failure.Render("✗ " + fmt.Sprintf(format, args...)))
}

// Info prints a plain line.
func (p *Printer) Info(format string, args ...any) {
	p.println(fmt.Sprintf(format, args...))
}

// Muted prints a dimmed line.
func (p *Printer) Muted(format string, args ...any) {
	p.println(p.styles.muted.Render(fmt.Sprintf(format, args...)))
}

// Progress redraws a progress bar for done of total steps on the current
// line and ends the line once done reaches total.
func (p *Printer) Progress(label string, done, total int) {
	if total <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	bar := p.progress.ViewAs(float64(done) / float64(total))
	fmt.Fprintf(p.w, "\r%s %s %d/%d", bar, label, done, total)
	if done >= total {
		fmt.Fprintln(p.w)
	}
}
