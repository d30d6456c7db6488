package agentgate

import (
	"errors"
	"fmt"
)

// Error is the typed error returned across package boundaries. Code is a
// stable machine-readable identifier; Message is human-readable.
type Error struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Stable error codes.
const (
	ErrCodeMalformedReference      = "malformed_reference"
	ErrCodeUnsupportedChain        = "unsupported_chain"
	ErrCodeIdentityNotFound        = "identity_not_found"
	ErrCodeRegistrationUnreachable = "registration_unreachable"
	ErrCodeBackreferenceMissing    = "backreference_missing"
	ErrCodeNoEngineEndpoint        = "no_engine_endpoint"
	ErrCodePaymentRequired         = "payment_required"
	ErrCodePaymentProofInvalid     = "payment_proof_invalid"
	ErrCodeUnrecognizedPayload     = "unrecognized_payload_format"
	ErrCodeSessionNotFound         = "session_not_found"
	ErrCodeConnection              = "connection_error"
)

// NewError creates a new typed error.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf creates a new typed error with a formatted message.
func Errorf(code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf returns the stable code of err if it is (or wraps) an *Error,
// and "" otherwise.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
