package types

import (
	"errors"
	"fmt"
)

// ErrorType groups error codes by the stage that produced them
type ErrorType string

const (
	ErrorTypeField          ErrorType = "field"
	ErrorTypeEncode         ErrorType = "encode"
	ErrorTypePack           ErrorType = "pack"
	ErrorTypeDecode         ErrorType = "decode"
	ErrorTypeResolve        ErrorType = "resolve"
	ErrorTypeValidation     ErrorType = "validation"
	ErrorTypeAuthentication ErrorType = "authentication"
	ErrorTypeInternal       ErrorType = "internal"
)

// ZeroNetError represents a structured error raised while building, encoding,
// decoding or resolving emergency data
type ZeroNetError struct {
	Type    ErrorType              `json:"type"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *ZeroNetError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *ZeroNetError) Unwrap() error {
	return e.Cause
}

// WithDetail attaches a detail value and returns the same error
func (e *ZeroNetError) WithDetail(key string, value interface{}) *ZeroNetError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewFieldError creates a profile validation error
func NewFieldError(code, message string) *ZeroNetError {
	return &ZeroNetError{Type: ErrorTypeField, Code: code, Message: message}
}

// NewEncodeError creates an encoding error
func NewEncodeError(code, message string, details map[string]interface{}) *ZeroNetError {
	return &ZeroNetError{Type: ErrorTypeEncode, Code: code, Message: message, Details: details}
}

// NewPackError creates a transport encoding error
func NewPackError(code, message string, cause error) *ZeroNetError {
	return &ZeroNetError{Type: ErrorTypePack, Code: code, Message: message, Cause: cause}
}

// NewDecodeError creates a payload decoding or verification error
func NewDecodeError(code, message string) *ZeroNetError {
	return &ZeroNetError{Type: ErrorTypeDecode, Code: code, Message: message}
}

// NewResolveError creates a legacy lookup error
func NewResolveError(code, message string, cause error) *ZeroNetError {
	return &ZeroNetError{Type: ErrorTypeResolve, Code: code, Message: message, Cause: cause}
}

// NewValidationError creates a request validation error
func NewValidationError(code, message string, details map[string]interface{}) *ZeroNetError {
	return &ZeroNetError{Type: ErrorTypeValidation, Code: code, Message: message, Details: details}
}

// NewAuthenticationError creates an authentication error
func NewAuthenticationError(code, message string) *ZeroNetError {
	return &ZeroNetError{Type: ErrorTypeAuthentication, Code: code, Message: message}
}

// NewInternalError creates a new internal error
func NewInternalError(code, message string, cause error) *ZeroNetError {
	return &ZeroNetError{Type: ErrorTypeInternal, Code: code, Message: message, Cause: cause}
}

// CodeOf returns the code of the first ZeroNetError in err's chain, or "" if none
func CodeOf(err error) string {
	var zerr *ZeroNetError
	if errors.As(err, &zerr) {
		return zerr.Code
	}
	return ""
}

// IsCode reports whether err carries the given code
func IsCode(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}

// Error codes
const (
	ErrCodeMissingWallet      = "MISSING_WALLET"
	ErrCodeInvalidWallet      = "INVALID_WALLET"
	ErrCodeInvalidBloodGroup  = "INVALID_BLOOD_GROUP"
	ErrCodeTooLarge           = "TOO_LARGE"
	ErrCodeInvalidEncoding    = "INVALID_ENCODING"
	ErrCodeUnsupportedVersion = "UNSUPPORTED_VERSION"
	ErrCodeMalformedPayload   = "MALFORMED_PAYLOAD"
	ErrCodeTamperDetected     = "TAMPER_DETECTED"
	ErrCodeExpired            = "EXPIRED"
	ErrCodeFutureTimestamp    = "FUTURE_TIMESTAMP"
	ErrCodeNetworkUnavailable = "NETWORK_UNAVAILABLE"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeInvalidInput       = "INVALID_INPUT"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeInternalError      = "INTERNAL_ERROR"
)
