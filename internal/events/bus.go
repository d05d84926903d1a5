// Package events fans out work item change notifications to subscribers such
// as the SSE and websocket streams.
package events

import (
	"sync"
	"time"

	"github.com/zulandar/coursereel/internal/item"
)

// Type identifies what produced a change.
type Type string

const (
	ItemCreated       Type = "item.created"
	ItemUpdated       Type = "item.updated"
	ItemDeleted       Type = "item.deleted"
	PipelineStarted   Type = "pipeline.started"
	PipelineProgress  Type = "pipeline.progress"
	PipelineSucceeded Type = "pipeline.succeeded"
	PipelineFailed    Type = "pipeline.failed"
	ReviewRequested   Type = "review.requested"
	ReviewApplied     Type = "review.applied"
	ItemReopened      Type = "item.reopened"
)

// Event is a single change notification carrying a copy of the item.
type Event struct {
	Type      Type           `json:"type"`
	ItemID    string         `json:"itemId"`
	Timestamp time.Time      `json:"timestamp"`
	Item      *item.WorkItem `json:"item,omitempty"`
}

// Bus is a non-blocking pub/sub bus. Slow subscribers drop events.
type Bus struct {
	mu          sync.RWMutex
	subscribers []chan Event
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe returns a channel that receives events.
func (b *Bus) Subscribe() chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, 100)
	b.subscribers = append(b.subscribers, ch)
	return ch
}

// Unsubscribe removes and closes a subscriber channel.
func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subscribers {
		if sub == ch {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			close(ch)
			return
		}
	}
}

// Publish delivers the event to every subscriber without blocking.
func (b *Bus) Publish(evt Event) {
	if b == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
		}
	}
}
