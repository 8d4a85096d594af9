package utils

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"
)

// Progress represents a progress bar using mpb. It is safe for use by
// concurrent workers.
type Progress struct {
	container *mpb.Progress
	bar       *mpb.Bar
	enabled   bool

	mu          sync.Mutex
	description string
}

var descLength = 24

// NewProgress creates a new progress bar with the given total count
func NewProgress(total int, enabled bool) *Progress {
	p := &Progress{
		enabled: enabled && isTerminal(),
	}

	if p.enabled {
		// Add space before progress bar
		fmt.Fprintln(os.Stderr)

		// Create mpb container that outputs to stderr
		p.container = mpb.New(
			mpb.WithOutput(os.Stderr),
			mpb.WithWidth(64),
			mpb.WithRefreshRate(100*time.Millisecond),
		)

		// Create progress bar with decorators including dynamic description
		p.bar = p.container.New(int64(total),
			mpb.BarStyle().Lbound("[").Filler("█").Tip("█").Padding("░").Rbound("]"),
			mpb.PrependDecorators(
				decor.Any(func(decor.Statistics) string {
					desc := p.Description()
					if len(desc) > descLength {
						return desc[:descLength-2] + ".."
					}
					return desc
				}, decor.WC{W: descLength, C: decor.DindentRight}),
				decor.Name("  "),
				decor.CountersNoUnit("%d/%d", decor.WC{C: decor.DindentRight}),
			),
			mpb.AppendDecorators(
				decor.Percentage(),
			),
		)
	}

	return p
}

// Enabled reports whether the bar is drawn
func (p *Progress) Enabled() bool {
	return p.enabled
}

// Description returns the label shown next to the bar
func (p *Progress) Description() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.description
}

// Increment advances the bar by one and updates its label
func (p *Progress) Increment(description string) {
	if !p.enabled || p.bar == nil {
		return
	}

	p.mu.Lock()
	p.description = description
	p.mu.Unlock()

	p.bar.Increment()
}

// Finish completes the progress bar and shuts down the container
func (p *Progress) Finish() {
	if !p.enabled || p.container == nil {
		return
	}

	// A bar that did not reach its total is aborted so Wait returns
	if !p.bar.Completed() {
		p.bar.Abort(false)
	}

	// Wait for the progress bar to finish and shutdown
	p.container.Wait()

	// Add space after progress bar
	fmt.Fprintln(os.Stderr)
}

// isTerminal checks if stderr is a terminal (TTY)
func isTerminal() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}
