package progress

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"

	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/usecase"
)

// SpinnerProgress shows the running stage of an operation next to a spinner
type SpinnerProgress struct {
	spinner *spinner.Spinner
	out     io.Writer

	stage      string
	stageStart time.Time
	done       []completedStage
}

type completedStage struct {
	name     string
	duration time.Duration
}

// NewSpinnerProgress creates a spinner writing to stderr
func NewSpinnerProgress() *SpinnerProgress {
	return newSpinnerProgress(os.Stderr)
}

func newSpinnerProgress(out io.Writer) *SpinnerProgress {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(out))
	s.HideCursor = false
	return &SpinnerProgress{spinner: s, out: out}
}

var _ usecase.ProgressSink = (*SpinnerProgress)(nil)

// OnProgress handles progress events
func (p *SpinnerProgress) OnProgress(ctx context.Context, event usecase.ProgressEvent) {
	if event.Stage != p.stage {
		p.completeStage()
		p.stage = event.Stage
		p.stageStart = time.Now()
	}

	if event.Spinner {
		p.spinner.Suffix = " " + p.suffix(event.Message)
		if !p.spinner.Active() {
			p.spinner.Start()
		}
	} else if p.spinner.Active() {
		p.spinner.Stop()
	}
}

// Stop halts the spinner once the operation returned
func (p *SpinnerProgress) Stop() {
	p.completeStage()
	if p.spinner.Active() {
		p.spinner.Stop()
	}
}

// Info prints an info message
func (p *SpinnerProgress) Info(message string) {
	p.pause(func() { color.New(color.FgCyan).Fprintln(p.out, message) })
}

// Error prints an error message
func (p *SpinnerProgress) Error(message string) {
	p.pause(func() { color.New(color.FgRed).Fprintln(p.out, message) })
}

func (p *SpinnerProgress) pause(fn func()) {
	wasActive := p.spinner.Active()
	if wasActive {
		p.spinner.Stop()
	}
	fn()
	if wasActive {
		p.spinner.Start()
	}
}

func (p *SpinnerProgress) completeStage() {
	if p.stage == "" {
		return
	}
	p.done = append(p.done, completedStage{name: p.stage, duration: time.Since(p.stageStart)})
	p.stage = ""
}

// suffix renders finished stages followed by the running one
func (p *SpinnerProgress) suffix(message string) string {
	var display string
	for _, s := range p.done {
		display += fmt.Sprintf("%s %s (%s) → ", color.GreenString("✓"), s.name, s.duration.Round(time.Millisecond))
	}
	return display + fmt.Sprintf("%s %s", color.YellowString("●"), message)
}

// NopProgress discards progress events, used with --json and in non-interactive runs
type NopProgress = usecase.NopProgress

// NewNopProgress creates a no-op progress sink
func NewNopProgress() NopProgress {
	return NopProgress{}
}
