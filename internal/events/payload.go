package events

import (
	"encoding/json"
)

// Payload is the decoded form of a domain event's data. Each variant maps to
// one event name; Unknown covers events the server added after this client
// shipped. Handlers that need typed access call Decode; handlers that only
// forward bytes keep the raw frame.
type Payload interface {
	EventName() string
}

// MedicPayload carries the medic-centric lifecycle events
// (medic.assigned, medic.arrived, medic.completed, treatment.started,
// service.completed, service_request.accepted/declined/cancelled).
type MedicPayload struct {
	Event       string  `json:"-"`
	RequestID   int64   `json:"request_id"`
	MedicName   string  `json:"medic_name"`
	MedicID     int64   `json:"medic_id"`
	ETA         string  `json:"eta"`
	TotalAmount float64 `json:"total_amount"`
	Reason      string  `json:"reason"`
}

func (p MedicPayload) EventName() string { return p.Event }

// PaymentPayload carries payment.processed.
type PaymentPayload struct {
	RequestID     int64   `json:"request_id"`
	Amount        float64 `json:"amount"`
	PaymentMethod string  `json:"payment_method"`
	Reference     string  `json:"reference"`
}

func (p PaymentPayload) EventName() string { return PaymentProcessed }

// LabRequestPayload carries lab_request.created and lab_results.ready.
type LabRequestPayload struct {
	Event         string   `json:"-"`
	RequestID     int64    `json:"request_id"`
	MedicName     string   `json:"medic_name"`
	TotalAmount   float64  `json:"total_amount"`
	PaymentMethod string   `json:"payment_method"`
	TestNames     []string `json:"test_names"`
}

func (p LabRequestPayload) EventName() string { return p.Event }

// LocationPayload carries medic.location_update.
type LocationPayload struct {
	RequestID int64   `json:"request_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Heading   float64 `json:"heading"`
}

func (p LocationPayload) EventName() string { return MedicLocationUpdate }

// GenericPayload carries the catch-all notification event.
type GenericPayload struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

func (p GenericPayload) EventName() string { return Notification }

// UnknownPayload is the forward-compatibility fallback: an event name this
// client does not recognize, or a frame whose data failed to decode.
type UnknownPayload struct {
	Event string
	Raw   json.RawMessage
}

func (p UnknownPayload) EventName() string { return p.Event }

// Decode maps a raw frame to its typed payload variant. Missing fields keep
// their zero values; malformed data degrades to UnknownPayload rather than
// returning an error, because the orchestrator must stay available whatever
// the server sends.
func Decode(name string, raw json.RawMessage) Payload {
	switch name {
	case MedicAssigned, MedicArrived, MedicCompleted, TreatmentStarted,
		ServiceCompleted, ReviewRequested, ServiceRequestAccepted,
		ServiceRequestDeclined, ServiceRequestCancelled:
		var p MedicPayload
		if err := unmarshal(raw, &p); err != nil {
			return UnknownPayload{Event: name, Raw: raw}
		}
		p.Event = name
		return p

	case PaymentProcessed:
		var p PaymentPayload
		if err := unmarshal(raw, &p); err != nil {
			return UnknownPayload{Event: name, Raw: raw}
		}
		return p

	case LabRequestCreated, LabResultsReady:
		var p LabRequestPayload
		if err := unmarshal(raw, &p); err != nil {
			return UnknownPayload{Event: name, Raw: raw}
		}
		p.Event = name
		return p

	case MedicLocationUpdate:
		var p LocationPayload
		if err := unmarshal(raw, &p); err != nil {
			return UnknownPayload{Event: name, Raw: raw}
		}
		return p

	case Notification:
		var p GenericPayload
		if err := unmarshal(raw, &p); err != nil {
			return UnknownPayload{Event: name, Raw: raw}
		}
		return p
	}

	return UnknownPayload{Event: name, Raw: raw}
}

func unmarshal(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}
