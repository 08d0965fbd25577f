package events

import (
	"encoding/json"
)

// Transport-level event names. These are synthesized locally by the
// connection client and never arrive from the server as frames.
const (
	Connect      = "connect"
	Connected    = "connected"
	Disconnect   = "disconnect"
	ConnectError = "connect_error"
	Error        = "error"
)

// Domain event names. String literals are a stable contract with the
// marketplace server and must not be changed independently.
const (
	MedicAssigned           = "medic.assigned"
	MedicArrived            = "medic.arrived"
	MedicCompleted          = "medic.completed"
	MedicLocationUpdate     = "medic.location_update"
	PaymentProcessed        = "payment.processed"
	ReviewRequested         = "review.requested"
	ServiceRequestAccepted  = "service_request.accepted"
	ServiceRequestDeclined  = "service_request.declined"
	ServiceRequestCancelled = "service_request.cancelled"
	TreatmentStarted        = "treatment.started"
	ServiceCompleted        = "service.completed"
	LabRequestCreated       = "lab_request.created"
	LabResultsReady         = "lab_results.ready"
	Notification            = "notification"
)

// Outbound control event names.
const (
	SubscribeChannels   = "subscribe"
	UnsubscribeChannels = "unsubscribe"
	Ping                = "ping"
	Pong                = "pong"
)

// Domain returns every server-pushed domain event name, in the order the
// orchestrator registers them.
func Domain() []string {
	return []string{
		MedicAssigned,
		MedicArrived,
		MedicCompleted,
		MedicLocationUpdate,
		PaymentProcessed,
		ReviewRequested,
		ServiceRequestAccepted,
		ServiceRequestDeclined,
		ServiceRequestCancelled,
		TreatmentStarted,
		ServiceCompleted,
		LabRequestCreated,
		LabResultsReady,
		Notification,
	}
}

// Event is a single wire frame. Data is passed through verbatim; the
// connection client never interprets it.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}
