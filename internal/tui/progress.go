package tui

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/vvka-141/fanload/pkg/fanload"
)

const barWidth = 40

// Progress reports files processed against an expected total. On a terminal
// the line is redrawn in place; otherwise a line is printed at every tenth.
// Safe for concurrent use.
type Progress struct {
	mu       sync.Mutex
	out      io.Writer
	bar      progress.Model
	live     bool
	total    int
	done     int
	failed   int
	lastStep int
}

// NewProgress creates a reporter for total files. A zero total renders counts only.
func NewProgress(out io.Writer, total int) *Progress {
	return &Progress{
		out:   out,
		bar:   progress.New(progress.WithDefaultGradient(), progress.WithWidth(barWidth)),
		live:  isTerminal(out),
		total: total,
	}
}

// Advance records one file with its final status.
func (p *Progress) Advance(status fanload.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done++
	if status == fanload.StatusFailed {
		p.failed++
	}

	if p.live {
		fmt.Fprintf(p.out, "\r%s", p.line())
		return
	}
	step := p.step()
	if step != p.lastStep {
		p.lastStep = step
		fmt.Fprintln(p.out, p.line())
	}
}

// Finish terminates the live line.
func (p *Progress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.live && p.done > 0 {
		fmt.Fprintln(p.out)
	}
}

func (p *Progress) percent() float64 {
	if p.total <= 0 {
		return 0
	}
	return min(float64(p.done)/float64(p.total), 1)
}

func (p *Progress) step() int {
	if p.total <= 0 {
		return p.done
	}
	return int(p.percent() * 10)
}

func (p *Progress) line() string {
	counts := fmt.Sprintf("%d files", p.done)
	if p.total > 0 {
		counts = fmt.Sprintf("%d/%d files", p.done, p.total)
	}
	if p.failed > 0 {
		counts += fmt.Sprintf(", %d failed", p.failed)
	}
	if p.total <= 0 {
		return counts
	}
	return p.bar.ViewAs(p.percent()) + " " + counts
}
