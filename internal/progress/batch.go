package progress

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"

	"github.com/flashlab/termscp/internal/constants"
	"github.com/flashlab/termscp/internal/events"
	"github.com/flashlab/termscp/internal/util/fmtutil"
)

// BatchBar renders directory and batch payloads with mpb: one bar for
// the whole payload and one for the entry currently streaming, plus a
// check line per finished entry. Off a terminal the bars are dropped
// and only the summary lines are printed.
type BatchBar struct {
	out        io.Writer
	progress   *mpb.Progress
	isTerminal bool

	name        string
	total       int64
	started     time.Time
	overall     *mpb.Bar
	entry       *mpb.Bar
	entryName   string
	lastPartial float64
	lastRate    float64
	transferred int64
}

// NewBatchBar creates a batch reporter writing to out. Progress bars
// render only when out is a terminal.
func NewBatchBar(out io.Writer) *BatchBar {
	b := &BatchBar{out: out}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b.isTerminal = true
		enableANSIOnWindows(f)
	}
	return b
}

// Start initializes the payload bar.
func (b *BatchBar) Start(name string, total int64) {
	b.name = name
	b.total = total
	b.started = time.Now()

	if !b.isTerminal {
		fmt.Fprintf(b.out, "Transferring %s (%s)\n", name, fmtutil.FormatSize(total))
		return
	}

	b.progress = mpb.New(
		mpb.WithOutput(b.out),
		mpb.WithRefreshRate(constants.BatchUIRefreshRate),
		mpb.WithWidth(100),
	)
	b.overall = b.progress.New(total,
		barStyle(),
		mpb.PrependDecorators(
			decor.Name(name, decor.WCSyncSpaceR),
		),
		mpb.AppendDecorators(
			decor.CountersKibiByte("% .1f / % .1f", decor.WCSyncSpace),
			decor.Name("  "),
			decor.Percentage(decor.WCSyncSpace),
			decor.Name("  "),
			decor.AverageSpeed(decor.SizeB1024(0), "% .1f", decor.WCSyncSpace),
			decor.Name("  ETA "),
			decor.AverageETA(decor.ET_STYLE_GO),
		),
	)
}

// Update moves both bars, swapping the entry bar when a new entry
// starts streaming.
func (b *BatchBar) Update(ev *events.ProgressEvent) {
	b.transferred = ev.Transferred
	b.lastRate = ev.Rate

	if ev.Name != "" && ev.Name != b.entryName {
		b.finishEntry()
		b.entryName = ev.Name
		if b.isTerminal && b.progress != nil {
			b.entry = b.progress.New(100,
				barStyle(),
				mpb.PrependDecorators(
					decor.Name(fmtutil.TruncatePath(ev.Name, 2), decor.WCSyncSpaceR),
				),
				mpb.AppendDecorators(
					decor.Percentage(decor.WCSyncSpace),
				),
				mpb.BarRemoveOnComplete(),
			)
		}
	}
	b.lastPartial = ev.Partial

	if b.overall != nil {
		b.overall.SetCurrent(ev.Transferred)
	}
	if b.entry != nil {
		b.entry.SetCurrent(int64(ev.Partial * 100))
	}
}

// Finish settles the bars and prints the payload summary line.
func (b *BatchBar) Finish(err error) {
	if err == nil {
		b.finishEntry()
	}

	if b.isTerminal && b.progress != nil {
		if err == nil {
			if b.overall != nil {
				b.overall.SetCurrent(b.total)
				b.overall.SetTotal(b.total, true)
			}
		} else {
			if b.entry != nil {
				b.entry.Abort(true)
			}
			if b.overall != nil {
				b.overall.Abort(false)
			}
		}
		b.progress.Write([]byte(b.summary(err)))
		b.progress.Wait()
		return
	}
	fmt.Fprint(b.out, b.summary(err))
}

// finishEntry settles the bar of the entry that just finished. The
// check line is printed only when the entry was seen completing, so a
// half-streamed entry never gets one.
func (b *BatchBar) finishEntry() {
	if b.entryName == "" {
		return
	}
	complete := b.lastPartial >= 0.999
	if b.entry != nil {
		if complete {
			b.entry.SetCurrent(100)
		} else {
			b.entry.Abort(true)
		}
		b.entry = nil
	}
	if complete {
		line := fmt.Sprintf("✓ %s\n", b.entryName)
		if b.isTerminal && b.progress != nil {
			b.progress.Write([]byte(line))
		} else {
			fmt.Fprint(b.out, line)
		}
	}
	b.entryName = ""
	b.lastPartial = 0
}

func (b *BatchBar) summary(err error) string {
	if err != nil {
		return fmt.Sprintf("✗ %s: %v\n", b.name, err)
	}
	return fmt.Sprintf("✓ %s (%s in %s, %s)\n",
		b.name,
		fmtutil.FormatSize(b.total),
		fmtutil.FormatDuration(time.Since(b.started).Round(time.Second)),
		fmtutil.FormatRate(b.lastRate))
}

func barStyle() mpb.BarStyleComposer {
	return mpb.BarStyle().
		Lbound("[").
		Filler("█").
		Tip("█").
		Padding("░").
		Rbound("]")
}
