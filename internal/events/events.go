package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/flashlab/termscp/internal/constants"
)

// EventType defines the types of events that can be emitted
type EventType string

const (
	EventLog      EventType = "log"
	EventAlert    EventType = "alert"
	EventProgress EventType = "progress"

	// Transfer lifecycle events
	EventTransferStarted   EventType = "transfer_started"   // Bytes started moving
	EventTransferCompleted EventType = "transfer_completed" // Payload fully transferred
	EventTransferFailed    EventType = "transfer_failed"    // Failed with error
	EventTransferCancelled EventType = "transfer_cancelled" // Aborted by user

	// Session lifecycle events
	EventSessionConnected    EventType = "session_connected"
	EventSessionDisconnected EventType = "session_disconnected"
)

// LogLevel defines log severity levels
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Direction identifies which way bytes are moving.
type Direction string

const (
	DirectionSend Direction = "send" // local -> remote
	DirectionRecv Direction = "recv" // remote -> local
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common event fields
type BaseEvent struct {
	EventType EventType
	Time      time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// LogEvent represents an activity log line
type LogEvent struct {
	BaseEvent
	Level   LogLevel
	Message string
	Error   error
}

// AlertEvent represents a user-visible alert. Per-file transfer errors
// surface as alerts without unwinding the rest of the batch.
type AlertEvent struct {
	BaseEvent
	Level   LogLevel
	Message string
}

// ProgressEvent carries the dual progress counters for UI rendering.
// Full covers the whole payload, Partial the entry currently streaming.
type ProgressEvent struct {
	BaseEvent
	TaskID      string
	Name        string // Display name of the current entry
	Full        float64
	Partial     float64
	Transferred int64
	Total       int64
	Rate        float64 // bytes/sec
}

// TransferEvent represents transfer lifecycle transitions
type TransferEvent struct {
	BaseEvent
	TaskID    string
	Direction Direction
	Name      string // Display name (top-level entry)
	Size      int64  // Aggregate payload size in bytes
	Error     error  // Set for EventTransferFailed
}

// SessionEvent represents connection lifecycle transitions
type SessionEvent struct {
	BaseEvent
	SessionID string
	Remote    string // Provider description, e.g. "s3://bucket/prefix"
	Error     error
}

// EventBus manages event subscriptions and publishing
type EventBus struct {
	subscribers   map[EventType][]chan Event
	all           []chan Event // Subscribers to all events
	mu            sync.RWMutex
	bufferSize    int
	closed        bool
	droppedEvents atomic.Int64 // Count of dropped events due to full buffers
}

// NewEventBus creates a new event bus with specified buffer size
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = constants.EventBusDefaultBuffer
	}
	return &EventBus{
		subscribers: make(map[EventType][]chan Event),
		all:         make([]chan Event, 0),
		bufferSize:  bufferSize,
	}
}

// Subscribe creates a subscription to a specific event type
func (eb *EventBus) Subscribe(eventType EventType) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.subscribers[eventType] = append(eb.subscribers[eventType], ch)
	return ch
}

// SubscribeAll creates a subscription to all events
func (eb *EventBus) SubscribeAll() <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.all = append(eb.all, ch)
	return ch
}

// Publish sends an event to all subscribers. Never blocks: a subscriber
// with a full buffer loses the event, and the drop is counted.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}

	for _, ch := range eb.subscribers[event.Type()] {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}

	for _, ch := range eb.all {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}
}

// Close shuts down the event bus and closes all channels
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	eb.closed = true

	for _, channels := range eb.subscribers {
		for _, ch := range channels {
			close(ch)
		}
	}

	for _, ch := range eb.all {
		close(ch)
	}
}

// PublishLog is a convenience method for publishing log events
func (eb *EventBus) PublishLog(level LogLevel, message string, err error) {
	eb.Publish(&LogEvent{
		BaseEvent: BaseEvent{
			EventType: EventLog,
			Time:      time.Now(),
		},
		Level:   level,
		Message: message,
		Error:   err,
	})
}

// PublishAlert is a convenience method for publishing alert events
func (eb *EventBus) PublishAlert(level LogLevel, message string) {
	eb.Publish(&AlertEvent{
		BaseEvent: BaseEvent{
			EventType: EventAlert,
			Time:      time.Now(),
		},
		Level:   level,
		Message: message,
	})
}

// PublishProgress is a convenience method for publishing progress events
func (eb *EventBus) PublishProgress(taskID, name string, full, partial float64, transferred, total int64, rate float64) {
	eb.Publish(&ProgressEvent{
		BaseEvent: BaseEvent{
			EventType: EventProgress,
			Time:      time.Now(),
		},
		TaskID:      taskID,
		Name:        name,
		Full:        full,
		Partial:     partial,
		Transferred: transferred,
		Total:       total,
		Rate:        rate,
	})
}

// PublishTransfer is a convenience method for publishing transfer lifecycle events
func (eb *EventBus) PublishTransfer(eventType EventType, taskID string, direction Direction, name string, size int64, err error) {
	eb.Publish(&TransferEvent{
		BaseEvent: BaseEvent{
			EventType: eventType,
			Time:      time.Now(),
		},
		TaskID:    taskID,
		Direction: direction,
		Name:      name,
		Size:      size,
		Error:     err,
	})
}

// PublishSession is a convenience method for publishing session lifecycle events
func (eb *EventBus) PublishSession(eventType EventType, sessionID, remote string, err error) {
	eb.Publish(&SessionEvent{
		BaseEvent: BaseEvent{
			EventType: eventType,
			Time:      time.Now(),
		},
		SessionID: sessionID,
		Remote:    remote,
		Error:     err,
	})
}

// Unsubscribe removes a subscription channel from a specific event type
// This prevents memory leaks from abandoned subscriptions
func (eb *EventBus) Unsubscribe(eventType EventType, ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	subscribers := eb.subscribers[eventType]
	for i, subCh := range subscribers {
		if subCh == ch {
			subscribers[i] = subscribers[len(subscribers)-1]
			eb.subscribers[eventType] = subscribers[:len(subscribers)-1]
			break
		}
	}
}

// UnsubscribeAll removes a subscription channel from all event types
// Use this when cleaning up a subscriber that subscribed to multiple event types
func (eb *EventBus) UnsubscribeAll(ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	for eventType, subscribers := range eb.subscribers {
		for i, subCh := range subscribers {
			if subCh == ch {
				subscribers[i] = subscribers[len(subscribers)-1]
				eb.subscribers[eventType] = subscribers[:len(subscribers)-1]
				break
			}
		}
	}

	for i, subCh := range eb.all {
		if subCh == ch {
			eb.all[i] = eb.all[len(eb.all)-1]
			eb.all = eb.all[:len(eb.all)-1]
			break
		}
	}
}

// GetDroppedEventCount returns the total number of events dropped due to full buffers
func (eb *EventBus) GetDroppedEventCount() int64 {
	return eb.droppedEvents.Load()
}

// ResetDroppedEventCount resets the dropped event counter to zero
func (eb *EventBus) ResetDroppedEventCount() int64 {
	return eb.droppedEvents.Swap(0)
}
