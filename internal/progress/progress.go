// Package progress renders transfer progress on the terminal. Reporters
// are fed from the event bus by a Consumer, so the engine never knows
// whether anything is watching.
package progress

import (
	"context"
	"errors"

	"github.com/flashlab/termscp/internal/events"
)

// Reporter renders the progress of a single transfer.
type Reporter interface {
	// Start begins rendering a payload of the given aggregate size.
	Start(name string, total int64)

	// Update renders one progress sample.
	Update(ev *events.ProgressEvent)

	// Finish completes rendering. err reports failure or cancellation;
	// nil means the payload transferred fully.
	Finish(err error)
}

// Quiet is a reporter that renders nothing.
type Quiet struct{}

// NewQuiet creates a no-op reporter for --quiet runs.
func NewQuiet() *Quiet {
	return &Quiet{}
}

func (*Quiet) Start(name string, total int64)  {}
func (*Quiet) Update(ev *events.ProgressEvent) {}
func (*Quiet) Finish(err error)                {}

// Consumer pumps the events of one transfer from the bus into a
// Reporter. It subscribes on construction, so events published after
// NewConsumer are never missed; Run it on its own goroutine alongside
// a single engine invocation and it returns when the transfer reaches
// a terminal state.
type Consumer struct {
	bus *events.EventBus
	rep Reporter

	progressCh  <-chan events.Event
	startedCh   <-chan events.Event
	completedCh <-chan events.Event
	failedCh    <-chan events.Event
	cancelledCh <-chan events.Event
}

// NewConsumer wires a reporter to the bus.
func NewConsumer(bus *events.EventBus, rep Reporter) *Consumer {
	return &Consumer{
		bus:         bus,
		rep:         rep,
		progressCh:  bus.Subscribe(events.EventProgress),
		startedCh:   bus.Subscribe(events.EventTransferStarted),
		completedCh: bus.Subscribe(events.EventTransferCompleted),
		failedCh:    bus.Subscribe(events.EventTransferFailed),
		cancelledCh: bus.Subscribe(events.EventTransferCancelled),
	}
}

// Run renders events until the transfer completes, fails or is
// cancelled, or until the context is done. On context cancellation any
// already-queued events are still applied, so a caller may cancel
// right after the engine returns without losing the final frame.
func (c *Consumer) Run(ctx context.Context) {
	progressCh := c.progressCh
	startedCh := c.startedCh
	completedCh := c.completedCh
	failedCh := c.failedCh
	cancelledCh := c.cancelledCh
	defer func() {
		c.bus.Unsubscribe(events.EventProgress, progressCh)
		c.bus.Unsubscribe(events.EventTransferStarted, startedCh)
		c.bus.Unsubscribe(events.EventTransferCompleted, completedCh)
		c.bus.Unsubscribe(events.EventTransferFailed, failedCh)
		c.bus.Unsubscribe(events.EventTransferCancelled, cancelledCh)
	}()

	for {
		select {
		case <-ctx.Done():
			c.settle(startedCh, progressCh, completedCh, failedCh, cancelledCh)
			return
		case ev, ok := <-startedCh:
			if !ok {
				return
			}
			if te, good := ev.(*events.TransferEvent); good {
				c.rep.Start(te.Name, te.Size)
			}
		case ev, ok := <-progressCh:
			if !ok {
				return
			}
			if pe, good := ev.(*events.ProgressEvent); good {
				c.rep.Update(pe)
			}
		case _, ok := <-completedCh:
			if !ok {
				return
			}
			c.drainPending(startedCh, progressCh)
			c.rep.Finish(nil)
			return
		case ev, ok := <-failedCh:
			if !ok {
				return
			}
			c.drainPending(startedCh, progressCh)
			c.rep.Finish(transferErr(ev, "transfer failed"))
			return
		case ev, ok := <-cancelledCh:
			if !ok {
				return
			}
			c.drainPending(startedCh, progressCh)
			c.rep.Finish(transferErr(ev, "transfer cancelled"))
			return
		}
	}
}

// settle consumes whatever was queued before shutdown. A terminal event
// published just ahead of the cancellation still finishes the reporter;
// with nothing terminal queued the reporter is left open.
func (c *Consumer) settle(started, progress, completed, failed, cancelled <-chan events.Event) {
	c.drainPending(started, progress)
	select {
	case _, ok := <-completed:
		if ok {
			c.rep.Finish(nil)
		}
	case ev, ok := <-failed:
		if ok {
			c.rep.Finish(transferErr(ev, "transfer failed"))
		}
	case ev, ok := <-cancelled:
		if ok {
			c.rep.Finish(transferErr(ev, "transfer cancelled"))
		}
	default:
	}
}

func transferErr(ev events.Event, fallback string) error {
	if te, ok := ev.(*events.TransferEvent); ok && te.Error != nil {
		return te.Error
	}
	return errors.New(fallback)
}

// drainPending applies start and progress events queued behind the
// terminal event so the final frame is accurate.
func (c *Consumer) drainPending(started, progress <-chan events.Event) {
	for {
		select {
		case ev, ok := <-started:
			if !ok {
				started = nil
				continue
			}
			if te, good := ev.(*events.TransferEvent); good {
				c.rep.Start(te.Name, te.Size)
			}
		case ev, ok := <-progress:
			if !ok {
				progress = nil
				continue
			}
			if pe, good := ev.(*events.ProgressEvent); good {
				c.rep.Update(pe)
			}
		default:
			return
		}
	}
}
