package license

import (
	"encoding/json"
	"net/http"
)

// OutcomeStatus tags the variant of a verification Outcome.
type OutcomeStatus string

const (
	OutcomeActive  OutcomeStatus = "active"
	OutcomeExpired OutcomeStatus = "expired"
	OutcomeBanned  OutcomeStatus = "banned"
	OutcomeInvalid OutcomeStatus = "invalid"
	OutcomeError   OutcomeStatus = "error"
)

// Fixed messages carried by the message-bearing variants.
const (
	MessageBanned   = "License has been banned"
	MessageNotFound = "Key not found"
	MessageError    = "Server Configuration Error"
)

// ValidOutcomeStatuses returns every outcome variant.
func ValidOutcomeStatuses() []OutcomeStatus {
	return []OutcomeStatus{OutcomeActive, OutcomeExpired, OutcomeBanned, OutcomeInvalid, OutcomeError}
}

// Outcome is the result of verifying one key. Only the fields belonging to
// Status are meaningful; MarshalJSON emits exactly those.
type Outcome struct {
	Status     OutcomeStatus
	Expires    string
	HardwareID *string
	Message    string
}

// Active builds the outcome for a valid, unexpired, active record.
func Active(r *Record) Outcome {
	return Outcome{Status: OutcomeActive, Expires: r.Expiry, HardwareID: r.HardwareID}
}

// Expired builds the outcome for a record past its expiry.
func Expired(r *Record) Outcome {
	return Outcome{Status: OutcomeExpired, Expires: r.Expiry}
}

// Banned builds the outcome for a record whose status is not active.
func Banned() Outcome {
	return Outcome{Status: OutcomeBanned, Message: MessageBanned}
}

// Invalid builds the outcome for an unknown key.
func Invalid() Outcome {
	return Outcome{Status: OutcomeInvalid, Message: MessageNotFound}
}

// Failed builds the outcome for a store failure.
func Failed() Outcome {
	return Outcome{Status: OutcomeError, Message: MessageError}
}

// HTTPStatus maps the outcome to the status code the HTTP layer responds with.
func (o Outcome) HTTPStatus() int {
	if o.Status == OutcomeError {
		return http.StatusInternalServerError
	}
	return http.StatusOK
}

type activeBody struct {
	Status     OutcomeStatus `json:"status"`
	Expires    string        `json:"expires"`
	HardwareID *string       `json:"hardware_id"`
}

type expiredBody struct {
	Status  OutcomeStatus `json:"status"`
	Expires string        `json:"expires"`
}

type messageBody struct {
	Status  OutcomeStatus `json:"status"`
	Message string        `json:"message"`
}

// MarshalJSON renders the variant-specific response body.
func (o Outcome) MarshalJSON() ([]byte, error) {
	switch o.Status {
	case OutcomeActive:
		return json.Marshal(activeBody{Status: o.Status, Expires: o.Expires, HardwareID: o.HardwareID})
	case OutcomeExpired:
		return json.Marshal(expiredBody{Status: o.Status, Expires: o.Expires})
	default:
		return json.Marshal(messageBody{Status: o.Status, Message: o.Message})
	}
}

// UnmarshalJSON accepts any of the variant bodies. It is used by the CLI and tests.
func (o *Outcome) UnmarshalJSON(data []byte) error {
	var raw struct {
		Status     OutcomeStatus `json:"status"`
		Expires    string        `json:"expires"`
		HardwareID *string       `json:"hardware_id"`
		Message    string        `json:"message"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*o = Outcome{Status: raw.Status, Expires: raw.Expires, HardwareID: raw.HardwareID, Message: raw.Message}
	return nil
}
