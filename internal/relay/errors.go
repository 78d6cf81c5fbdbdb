package relay

import (
	"fmt"
	"strings"
)

// Validation failure reasons.
const (
	ReasonMissingFields = "missing_fields"
	ReasonInvalidEmail  = "invalid_email"
	ReasonInvalidPhone  = "invalid_phone"
)

// ExtractionError means no known container held the analysis data.
type ExtractionError struct {
	Tried []string
}

func (e *ExtractionError) Error() string {
	return "relay: webhook payload did not contain the expected Retell AI data structure (tried " +
		strings.Join(e.Tried, ", ") + ")"
}

// ValidationError lists every field that failed validation.
type ValidationError struct {
	Reason        string
	MissingFields []string
	Value         string
}

func (e *ValidationError) Error() string {
	switch e.Reason {
	case ReasonInvalidEmail:
		return "relay: invalid email format"
	case ReasonInvalidPhone:
		return "relay: invalid phone number format"
	default:
		return "relay: missing required fields: " + strings.Join(e.MissingFields, ", ")
	}
}

// SubmissionError is returned when the CRM refuses a lead.
type SubmissionError struct {
	StatusCode int
	Detail     string
	// Unauthorized is set when the CRM still answered 401 after the session
	// was renewed.
	Unauthorized bool
	Err          error
}

func (e *SubmissionError) Error() string {
	if e.Unauthorized {
		return "relay: failed to push data to Salesforce: still unauthorized after re-authentication"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("relay: failed to push data to Salesforce: status %d: %s", e.StatusCode, e.Detail)
	}
	return "relay: failed to push data to Salesforce: " + e.Detail
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}
