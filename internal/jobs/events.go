package jobs

import (
	"sync"
	"time"

	"video-converter/internal/domain"
)

// EventType classifies messages emitted during batch execution.
type EventType string

const (
	EventTypeStatus   EventType = "status"
	EventTypeProgress EventType = "progress"
	EventTypeLog      EventType = "log"
	EventTypeJobError EventType = "job_error"
	EventTypeComplete EventType = "complete"
	EventTypeError    EventType = "error"
	EventTypeSource   EventType = "source"
)

// Event is a sequenced payload consumed by UI subscribers.
type Event struct {
	Seq       int64              `json:"seq"`
	Timestamp time.Time          `json:"timestamp"`
	BatchID   string             `json:"batchId,omitempty"`
	Type      EventType          `json:"type"`
	Status    domain.BatchStatus `json:"status,omitempty"`
	Message   string             `json:"message,omitempty"`
	Percent   float64            `json:"percent,omitempty"`
	Index     int                `json:"index,omitempty"`
	Total     int                `json:"total,omitempty"`
	File      string             `json:"file,omitempty"`
	Files     []string           `json:"files,omitempty"`
	Command   string             `json:"command,omitempty"`
	Args      []string           `json:"args,omitempty"`
	ExitCode  int                `json:"exitCode,omitempty"`
	Stdout    string             `json:"stdout,omitempty"`
	Stderr    string             `json:"stderr,omitempty"`
	ZeroJobs  bool               `json:"zeroJobs,omitempty"`
	Succeeded int                `json:"succeeded,omitempty"`
	Failed    int                `json:"failed,omitempty"`
}

// EventBus is the queue between the batch goroutine and the UI: it keeps
// recent events and serves incremental reads by sequence.
type EventBus struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []Event
}

// NewEventBus creates a bounded in-memory event buffer.
func NewEventBus(maxEvents int) *EventBus {
	if maxEvents <= 0 {
		maxEvents = 500
	}

	return &EventBus{
		maxEvents: maxEvents,
		events:    make([]Event, 0, maxEvents),
	}
}

// Publish appends one event and assigns sequence and timestamp.
func (b *EventBus) Publish(event Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}

	return event
}

// Since returns events with sequence strictly greater than seq.
func (b *EventBus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.events) == 0 {
		return nil
	}

	out := make([]Event, 0, len(b.events))
	for _, event := range b.events {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}

// LastSeq returns the sequence of the newest published event.
func (b *EventBus) LastSeq() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nextSeq
}
