package progress

import (
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"

	"github.com/flashlab/termscp/internal/constants"
	"github.com/flashlab/termscp/internal/events"
)

// Bar renders a single-line byte progress bar, suited to one-file
// payloads where a per-entry breakdown adds nothing.
type Bar struct {
	out  io.Writer
	bar  *progressbar.ProgressBar
	name string
}

// NewBar creates a single-line reporter writing to out.
func NewBar(out io.Writer) *Bar {
	return &Bar{out: out}
}

// Start initializes the bar for a payload of total bytes.
func (b *Bar) Start(name string, total int64) {
	b.name = name
	b.bar = progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(name),
		progressbar.OptionSetWriter(b.out),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(50),
		progressbar.OptionThrottle(constants.ProgressThrottleInterval),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(b.out, "\n")
		}),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// Update moves the bar to the sampled byte count.
func (b *Bar) Update(ev *events.ProgressEvent) {
	if b.bar == nil {
		return
	}
	_ = b.bar.Set64(ev.Transferred)
}

// Finish completes the bar, or leaves it mid-flight with a failure line.
func (b *Bar) Finish(err error) {
	if b.bar == nil {
		return
	}
	if err == nil {
		_ = b.bar.Finish()
		return
	}
	_ = b.bar.Exit()
	fmt.Fprintf(b.out, "\n✗ %s: %v\n", b.name, err)
}
