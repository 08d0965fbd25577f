package notify

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haloclinic/patient-realtime/internal/events"
)

func TestCenterAddAndOrdering(t *testing.T) {
	center := NewCenter(10)

	center.Add(events.MedicAssigned, "Medic Assigned", "first", events.UnknownPayload{})
	center.Add(events.MedicArrived, "Medic Arrived", "second", events.UnknownPayload{})

	records := center.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "second", records[0].Message, "records come back newest first")
	assert.Equal(t, "first", records[1].Message)
	assert.Equal(t, 2, center.UnreadCount())
}

func TestCenterHistoryLimitKeepsCounter(t *testing.T) {
	center := NewCenter(3)

	for i := 0; i < 5; i++ {
		center.Add(events.Notification, "Notification", fmt.Sprintf("msg-%d", i), events.UnknownPayload{})
	}

	records := center.Records()
	require.Len(t, records, 3)
	assert.Equal(t, "msg-4", records[0].Message)

	// Eviction never decrements the unread counter.
	assert.Equal(t, 5, center.UnreadCount())
}

func TestCenterMarkRead(t *testing.T) {
	center := NewCenter(10)

	rec := center.Add(events.MedicAssigned, "Medic Assigned", "msg", events.UnknownPayload{})
	center.Add(events.MedicArrived, "Medic Arrived", "msg", events.UnknownPayload{})

	center.MarkRead(rec.ID)
	assert.Equal(t, 1, center.UnreadCount())

	// Marking the same record twice, or an unknown id, changes nothing.
	center.MarkRead(rec.ID)
	center.MarkRead("no-such-id")
	assert.Equal(t, 1, center.UnreadCount())

	center.MarkAllRead()
	assert.Equal(t, 0, center.UnreadCount())
}

func TestCenterClear(t *testing.T) {
	center := NewCenter(10)
	center.Add(events.MedicAssigned, "Medic Assigned", "msg", events.UnknownPayload{})

	center.Clear()
	assert.Empty(t, center.Records())
	assert.Equal(t, 0, center.UnreadCount())
}
