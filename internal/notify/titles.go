package notify

import (
	"fmt"

	"github.com/haloclinic/patient-realtime/internal/events"
)

// describe synthesizes the user-facing title and message for a domain event.
// Payload fields are read defensively: a missing medic name or amount falls
// back to a generic phrasing rather than an empty string.
func describe(event string, payload events.Payload) (string, string) {
	switch event {
	case events.MedicAssigned:
		return "Medic Assigned", fmt.Sprintf("%s has been assigned to your request", medicName(payload))

	case events.MedicArrived:
		return "Medic Arrived", fmt.Sprintf("%s has arrived at your location", medicName(payload))

	case events.TreatmentStarted:
		return "Treatment Started", fmt.Sprintf("%s has started your treatment", medicName(payload))

	case events.MedicCompleted, events.ServiceCompleted:
		return "Service Completed", "Your service is complete. Thank you for using the app"

	case events.PaymentProcessed:
		if p, ok := payload.(events.PaymentPayload); ok && p.Amount > 0 {
			return "Payment Processed", fmt.Sprintf("Your payment of %.2f via %s was processed", p.Amount, paymentMethod(p.PaymentMethod))
		}
		return "Payment Processed", "Your payment was processed"

	case events.ReviewRequested:
		return "Review Requested", "Please rate your recent service"

	case events.ServiceRequestAccepted:
		return "Request Accepted", fmt.Sprintf("%s accepted your request", medicName(payload))

	case events.ServiceRequestDeclined:
		return "Request Declined", "Your request was declined. You can request another medic"

	case events.ServiceRequestCancelled:
		return "Request Cancelled", "Your request was cancelled"

	case events.LabRequestCreated:
		if p, ok := payload.(events.LabRequestPayload); ok && p.TotalAmount > 0 {
			return "Lab Tests Requested", fmt.Sprintf("%s requested lab tests totalling %.2f", medicNameOf(p.MedicName), p.TotalAmount)
		}
		return "Lab Tests Requested", "Your medic requested lab tests"

	case events.LabResultsReady:
		return "Lab Results Ready", "Your lab results are ready to view"

	case events.Notification:
		if p, ok := payload.(events.GenericPayload); ok && p.Title != "" {
			return p.Title, p.Message
		}
		return "Notification", "You have a new notification"
	}

	return "Notification", "You have a new notification"
}

func medicName(payload events.Payload) string {
	if p, ok := payload.(events.MedicPayload); ok {
		return medicNameOf(p.MedicName)
	}
	return "Your medic"
}

func medicNameOf(name string) string {
	if name == "" {
		return "Your medic"
	}
	return name
}

func paymentMethod(method string) string {
	if method == "" {
		return "your payment method"
	}
	return method
}
