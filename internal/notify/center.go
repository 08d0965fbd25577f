package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haloclinic/patient-realtime/internal/events"
)

// Record is one ephemeral, UI-facing notification. Records live in memory
// for the current session only; there is no persistence.
type Record struct {
	ID        string
	Event     string
	Title     string
	Message   string
	Payload   events.Payload
	CreatedAt time.Time
	Read      bool
}

// Center holds the session's notification records and the unread counter.
// The counter only ever decreases through an explicit read action.
type Center struct {
	mu      sync.Mutex
	limit   int
	records []Record
	unread  int
}

// NewCenter creates a center keeping at most limit records.
func NewCenter(limit int) *Center {
	if limit <= 0 {
		limit = 200
	}
	return &Center{limit: limit}
}

// Add creates a record for an event and increments the unread counter by
// exactly one. The oldest record is evicted once the history limit is hit.
func (c *Center) Add(event, title, message string, payload events.Payload) Record {
	rec := Record{
		ID:        uuid.NewString(),
		Event:     event,
		Title:     title,
		Message:   message,
		Payload:   payload,
		CreatedAt: time.Now(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.records = append(c.records, rec)
	if len(c.records) > c.limit {
		// Eviction does not touch the unread counter: only explicit read
		// actions may decrease it.
		c.records = c.records[1:]
	}
	c.unread++
	return rec
}

// Records returns the current records, newest first.
func (c *Center) Records() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Record, len(c.records))
	for i, rec := range c.records {
		out[len(c.records)-1-i] = rec
	}
	return out
}

// UnreadCount returns the number of unread records.
func (c *Center) UnreadCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unread
}

// MarkRead marks a single record read by id, tolerating absence.
func (c *Center) MarkRead(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.records {
		if c.records[i].ID == id && !c.records[i].Read {
			c.records[i].Read = true
			c.unread--
			return
		}
	}
}

// MarkAllRead marks every record read and resets the unread counter.
func (c *Center) MarkAllRead() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.records {
		c.records[i].Read = true
	}
	c.unread = 0
}

// Clear drops every record and resets the unread counter.
func (c *Center) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.records = nil
	c.unread = 0
}
