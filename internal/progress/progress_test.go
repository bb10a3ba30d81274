package progress

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/flashlab/termscp/internal/events"
)

// recordingReporter captures reporter calls for assertions.
type recordingReporter struct {
	startName  string
	startTotal int64
	updates    []*events.ProgressEvent
	finished   bool
	finishErr  error
}

func (r *recordingReporter) Start(name string, total int64) {
	r.startName = name
	r.startTotal = total
}

func (r *recordingReporter) Update(ev *events.ProgressEvent) {
	r.updates = append(r.updates, ev)
}

func (r *recordingReporter) Finish(err error) {
	r.finished = true
	r.finishErr = err
}

func runConsumer(t *testing.T, bus *events.EventBus, rec *recordingReporter) (run func(), wait func()) {
	t.Helper()
	c := NewConsumer(bus, rec)
	done := make(chan struct{})
	run = func() {
		go func() {
			c.Run(context.Background())
			close(done)
		}()
	}
	wait = func() { <-done }
	return run, wait
}

func TestConsumerRendersLifecycle(t *testing.T) {
	bus := events.NewEventBus(64)
	rec := &recordingReporter{}
	run, wait := runConsumer(t, bus, rec)

	bus.PublishTransfer(events.EventTransferStarted, "task-1", events.DirectionSend, "report.txt", 35, nil)
	bus.PublishProgress("task-1", "report.txt", 0.5, 0.5, 17, 35, 100)
	bus.PublishProgress("task-1", "report.txt", 1.0, 1.0, 35, 35, 120)
	bus.PublishTransfer(events.EventTransferCompleted, "task-1", events.DirectionSend, "report.txt", 35, nil)

	run()
	wait()

	if rec.startName != "report.txt" || rec.startTotal != 35 {
		t.Errorf("Start(%q, %d), want (report.txt, 35)", rec.startName, rec.startTotal)
	}
	if len(rec.updates) != 2 {
		t.Errorf("got %d updates, want 2", len(rec.updates))
	}
	if !rec.finished || rec.finishErr != nil {
		t.Errorf("finished=%v err=%v, want clean finish", rec.finished, rec.finishErr)
	}
}

func TestConsumerFailurePassesError(t *testing.T) {
	bus := events.NewEventBus(64)
	rec := &recordingReporter{}
	run, wait := runConsumer(t, bus, rec)

	boom := errors.New("stream interrupted")
	bus.PublishTransfer(events.EventTransferStarted, "task-2", events.DirectionRecv, "big.bin", 100, nil)
	bus.PublishTransfer(events.EventTransferFailed, "task-2", events.DirectionRecv, "big.bin", 100, boom)

	run()
	wait()

	if !errors.Is(rec.finishErr, boom) {
		t.Errorf("finish error = %v, want %v", rec.finishErr, boom)
	}
}

func TestConsumerCancelledSynthesizesError(t *testing.T) {
	bus := events.NewEventBus(64)
	rec := &recordingReporter{}
	run, wait := runConsumer(t, bus, rec)

	bus.PublishTransfer(events.EventTransferCancelled, "task-3", events.DirectionSend, "big.bin", 100, nil)

	run()
	wait()

	if rec.finishErr == nil || !strings.Contains(rec.finishErr.Error(), "cancelled") {
		t.Errorf("finish error = %v, want a cancellation error", rec.finishErr)
	}
}

func TestConsumerContextCancel(t *testing.T) {
	bus := events.NewEventBus(8)
	rec := &recordingReporter{}
	c := NewConsumer(bus, rec)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	if rec.finished {
		t.Error("Finish called on context cancel")
	}
}

func TestConsumerSettlesQueuedEventsOnCancel(t *testing.T) {
	bus := events.NewEventBus(64)
	rec := &recordingReporter{}
	c := NewConsumer(bus, rec)

	bus.PublishTransfer(events.EventTransferStarted, "task-1", events.DirectionSend, "a.bin", 10, nil)
	bus.PublishProgress("task-1", "a.bin", 1.0, 1.0, 10, 10, 50)
	bus.PublishTransfer(events.EventTransferCompleted, "task-1", events.DirectionSend, "a.bin", 10, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.Run(ctx)

	if rec.startName != "a.bin" {
		t.Errorf("startName = %q, want a.bin", rec.startName)
	}
	if !rec.finished {
		t.Fatal("queued terminal event not applied on cancel")
	}
	if rec.finishErr != nil {
		t.Errorf("finishErr = %v, want nil", rec.finishErr)
	}
}

func TestBatchBarNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	b := NewBatchBar(&buf)

	b.Start("docs", 100)
	b.Update(&events.ProgressEvent{Name: "a.txt", Partial: 0.5, Transferred: 25})
	b.Update(&events.ProgressEvent{Name: "a.txt", Partial: 1.0, Transferred: 50})
	b.Update(&events.ProgressEvent{Name: "b.txt", Partial: 1.0, Transferred: 100})
	b.Finish(nil)

	out := buf.String()
	for _, want := range []string{"Transferring docs", "✓ a.txt", "✓ b.txt", "✓ docs"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestBatchBarFailureSkipsCheckLine(t *testing.T) {
	var buf bytes.Buffer
	b := NewBatchBar(&buf)

	b.Start("docs", 100)
	b.Update(&events.ProgressEvent{Name: "c.txt", Partial: 0.4, Transferred: 40})
	b.Finish(errors.New("remote gone"))

	out := buf.String()
	if strings.Contains(out, "✓ c.txt") {
		t.Errorf("half-streamed entry got a check line:\n%s", out)
	}
	if !strings.Contains(out, "✗ docs: remote gone") {
		t.Errorf("output missing failure summary:\n%s", out)
	}
}

func TestBarLifecycle(t *testing.T) {
	var buf bytes.Buffer
	b := NewBar(&buf)

	b.Start("one.bin", 10)
	b.Update(&events.ProgressEvent{Transferred: 5})
	b.Finish(nil)
	if buf.Len() == 0 {
		t.Error("bar rendered nothing")
	}

	buf.Reset()
	b.Start("two.bin", 10)
	b.Finish(errors.New("no space"))
	if !strings.Contains(buf.String(), "✗ two.bin: no space") {
		t.Errorf("output missing failure line:\n%s", buf.String())
	}
}

func TestQuietRendersNothing(t *testing.T) {
	q := NewQuiet()
	q.Start("x", 1)
	q.Update(&events.ProgressEvent{})
	q.Finish(errors.New("ignored"))
}
