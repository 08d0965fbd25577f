package notify

import (
	"sync"

	"github.com/haloclinic/patient-realtime/internal/events"
)

// Modal holds the single medic-acceptance modal state. At most one record is
// visible at a time: each new acceptance overwrites the previous one rather
// than queueing behind it.
type Modal struct {
	mu      sync.Mutex
	payload events.MedicPayload
	visible bool
}

// Set overwrites the modal with the latest acceptance payload and marks it
// visible.
func (m *Modal) Set(payload events.MedicPayload) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payload = payload
	m.visible = true
}

// Current returns the most recent acceptance payload and whether the modal
// is visible.
func (m *Modal) Current() (events.MedicPayload, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.payload, m.visible
}

// Dismiss hides the modal. The payload is cleared so a stale acceptance can
// never resurface.
func (m *Modal) Dismiss() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payload = events.MedicPayload{}
	m.visible = false
}
