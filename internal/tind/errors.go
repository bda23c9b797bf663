package tind

import (
	"errors"
	"fmt"
)

// AuthenticationError means the catalog rejected the supplied credentials.
// It is fatal for the whole run: retrying other barcodes with the same
// credentials cannot succeed.
type AuthenticationError struct {
	Reason string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

// NewAuthenticationError creates an AuthenticationError with the given reason.
func NewAuthenticationError(reason string) *AuthenticationError {
	return &AuthenticationError{Reason: reason}
}

// IsAuthenticationError reports whether err is an AuthenticationError (even when wrapped).
func IsAuthenticationError(err error) bool {
	var authErr *AuthenticationError
	return errors.As(err, &authErr)
}

// LookupError means the catalog has no record for a barcode. It is
// recoverable per barcode: the run records a diagnostic and moves on.
type LookupError struct {
	Barcode string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("barcode %s not found in catalog", e.Barcode)
}

// NewLookupError creates a LookupError for the given barcode.
func NewLookupError(barcode string) *LookupError {
	return &LookupError{Barcode: barcode}
}

// IsLookupError reports whether err is a LookupError (even when wrapped).
func IsLookupError(err error) bool {
	var lookupErr *LookupError
	return errors.As(err, &lookupErr)
}

// TransientNetworkError means a request was still failing after the bounded
// retries were spent. It is recoverable per barcode.
type TransientNetworkError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *TransientNetworkError) Error() string {
	return fmt.Sprintf("request to %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *TransientNetworkError) Unwrap() error {
	return e.Err
}

// NewTransientNetworkError creates a TransientNetworkError wrapping the last failure.
func NewTransientNetworkError(url string, attempts int, err error) *TransientNetworkError {
	return &TransientNetworkError{URL: url, Attempts: attempts, Err: err}
}

// IsTransientNetworkError reports whether err is a TransientNetworkError (even when wrapped).
func IsTransientNetworkError(err error) bool {
	var netErr *TransientNetworkError
	return errors.As(err, &netErr)
}

// ServiceError means the catalog answered in a shape we cannot use: a
// missing SAML hand-off form, a record count that does not match the data,
// an unparseable holdings page. Fatal: the problem is on the service side,
// not with a particular barcode or with the credentials.
type ServiceError struct {
	Message string
}

func (e *ServiceError) Error() string {
	return e.Message
}

// NewServiceError creates a ServiceError with a formatted message.
func NewServiceError(format string, args ...any) *ServiceError {
	return &ServiceError{Message: fmt.Sprintf(format, args...)}
}

// IsServiceError reports whether err is a ServiceError (even when wrapped).
func IsServiceError(err error) bool {
	var svcErr *ServiceError
	return errors.As(err, &svcErr)
}
