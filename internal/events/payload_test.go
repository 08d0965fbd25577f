package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMedicEvents(t *testing.T) {
	raw := json.RawMessage(`{"request_id": 7, "medic_name": "Dr. A", "eta": "10 min"}`)

	payload := Decode(MedicAssigned, raw)
	medic, ok := payload.(MedicPayload)
	require.True(t, ok)
	assert.Equal(t, MedicAssigned, medic.EventName())
	assert.Equal(t, int64(7), medic.RequestID)
	assert.Equal(t, "Dr. A", medic.MedicName)
	assert.Equal(t, "10 min", medic.ETA)

	// The same variant serves the whole medic lifecycle.
	accepted, ok := Decode(ServiceRequestAccepted, raw).(MedicPayload)
	require.True(t, ok)
	assert.Equal(t, ServiceRequestAccepted, accepted.EventName())
}

func TestDecodePayment(t *testing.T) {
	raw := json.RawMessage(`{"amount": 3500.5, "payment_method": "mpesa", "reference": "TX1"}`)

	payment, ok := Decode(PaymentProcessed, raw).(PaymentPayload)
	require.True(t, ok)
	assert.Equal(t, 3500.5, payment.Amount)
	assert.Equal(t, "mpesa", payment.PaymentMethod)
	assert.Equal(t, "TX1", payment.Reference)
}

func TestDecodeLabRequest(t *testing.T) {
	raw := json.RawMessage(`{"request_id": 7, "medic_name": "Dr. B", "total_amount": 1500, "payment_method": "mpesa", "test_names": ["CBC"]}`)

	lab, ok := Decode(LabRequestCreated, raw).(LabRequestPayload)
	require.True(t, ok)
	assert.Equal(t, int64(7), lab.RequestID)
	assert.Equal(t, "Dr. B", lab.MedicName)
	assert.Equal(t, float64(1500), lab.TotalAmount)
	assert.Equal(t, []string{"CBC"}, lab.TestNames)
}

func TestDecodeLocation(t *testing.T) {
	raw := json.RawMessage(`{"latitude": -1.2921, "longitude": 36.8219}`)

	loc, ok := Decode(MedicLocationUpdate, raw).(LocationPayload)
	require.True(t, ok)
	assert.Equal(t, -1.2921, loc.Latitude)
	assert.Equal(t, 36.8219, loc.Longitude)
}

func TestDecodeMissingFieldsKeepZeroValues(t *testing.T) {
	medic, ok := Decode(MedicArrived, json.RawMessage(`{}`)).(MedicPayload)
	require.True(t, ok)
	assert.Empty(t, medic.MedicName)
	assert.Zero(t, medic.RequestID)

	// A nil payload decodes the same way.
	medic, ok = Decode(MedicArrived, nil).(MedicPayload)
	require.True(t, ok)
	assert.Empty(t, medic.MedicName)
}

func TestDecodeUnknownEventFallsBack(t *testing.T) {
	raw := json.RawMessage(`{"anything": true}`)

	unknown, ok := Decode("server.added_later", raw).(UnknownPayload)
	require.True(t, ok)
	assert.Equal(t, "server.added_later", unknown.EventName())
	assert.JSONEq(t, `{"anything": true}`, string(unknown.Raw))
}

func TestDecodeMalformedDataFallsBack(t *testing.T) {
	raw := json.RawMessage(`not json`)

	unknown, ok := Decode(MedicAssigned, raw).(UnknownPayload)
	require.True(t, ok)
	assert.Equal(t, MedicAssigned, unknown.Event)
}

func TestDomainListIsStable(t *testing.T) {
	domain := Domain()
	assert.Contains(t, domain, MedicAssigned)
	assert.Contains(t, domain, LabResultsReady)
	assert.Contains(t, domain, Notification)
	assert.NotContains(t, domain, Connect, "transport events are not domain events")
	assert.NotContains(t, domain, Ping, "control events are not domain events")
}
