package people

import (
	"errors"
	"net/http"
)

const (
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeInputError        = "INPUT_ERROR"
	CodeConsentRequired   = "CONSENT_REQUIRED"
	CodeNotFound          = "NOT_FOUND"
	CodeTransactionFailed = "TRANSACTION_FAILED"
)

// Error is an application-layer error that can be mapped to an HTTP response.
type Error struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" {
		msg = e.Code
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsCode reports whether err is an *Error with the given code.
func IsCode(err error, code string) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Code == code
}

// Unauthorized is returned by callers that find the session lacks the needed privilege.
func Unauthorized() *Error {
	return &Error{Status: http.StatusUnauthorized, Code: CodeUnauthorized, Message: "unauthorized"}
}

func inputError(message string, details map[string]any) *Error {
	return &Error{Status: http.StatusBadRequest, Code: CodeInputError, Message: message, Details: details}
}

func consentRequired() *Error {
	return &Error{
		Status:  http.StatusPaymentRequired,
		Code:    CodeConsentRequired,
		Message: "Paper publications have not been enabled for this person",
	}
}

func notFound(err error) *Error {
	return &Error{Status: http.StatusNotFound, Code: CodeNotFound, Message: "person not found", Err: err}
}

func transactionFailed(err error) error {
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Status: http.StatusInternalServerError, Code: CodeTransactionFailed, Message: "transaction failed", Err: err}
}
