package notify

// Presenter schedules an OS-level local notification. Its internals are out
// of scope here; failures are logged and never block the in-memory record or
// the unread counter.
type Presenter interface {
	Present(record Record) error
}

// Prompter asks the user a blocking yes/no question, used for the lab
// request consent flow. Implementations run on the UI side.
type Prompter interface {
	ConfirmLabRequest(medicName string, totalAmount float64, paymentMethod string) bool
}

// Navigator expresses a navigation intent toward the payment/consent screen.
type Navigator interface {
	OpenLabPayment(requestID int64)
}

// NopPresenter discards notifications. Used when the OS notification
// permission was denied or in headless runs.
type NopPresenter struct{}

func (NopPresenter) Present(Record) error { return nil }
