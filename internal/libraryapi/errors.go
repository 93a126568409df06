package libraryapi

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed library API call
type ErrorKind string

const (
	KindRemoteRejection ErrorKind = "remote_rejection"
	KindTimeout         ErrorKind = "timeout"
	KindTransport       ErrorKind = "transport"
	KindDecode          ErrorKind = "decode"
)

// Sentinels for errors.Is; every *RequestError matches the one for its kind.
var (
	ErrRemoteRejection = errors.New("remote rejection")
	ErrTimeout         = errors.New("request timed out")
	ErrTransport       = errors.New("transport failure")
	ErrDecode          = errors.New("malformed response")
)

// ErrResponseTooLarge is wrapped in a decode failure when a body exceeds MaxResponseSize
var ErrResponseTooLarge = errors.New("response too large")

// TimeoutMessage is shown to the user when a call exceeds the client deadline
const TimeoutMessage = "Request timed out. Please check your connection and try again."

// fallbackConnectionMessage is used for failures that are not *RequestError
const fallbackConnectionMessage = "Network error. Please check your connection and try again."

// RequestError is a normalized failure of a library API call.
// Message is safe to show to the user.
type RequestError struct {
	Kind       ErrorKind
	Operation  string
	StatusCode int
	Message    string
	Err        error
}

func (e *RequestError) Error() string {
	return e.Message
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrTimeout) and friends match on kind
func (e *RequestError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindRemoteRejection:
		return ErrRemoteRejection
	case KindTimeout:
		return ErrTimeout
	case KindTransport:
		return ErrTransport
	case KindDecode:
		return ErrDecode
	default:
		return nil
	}
}

func rejectionError(op string, status int, message string) *RequestError {
	if message == "" {
		message = fmt.Sprintf("HTTP error, status %d", status)
	}
	return &RequestError{Kind: KindRemoteRejection, Operation: op, StatusCode: status, Message: message}
}

func timeoutError(op string, cause error) *RequestError {
	return &RequestError{Kind: KindTimeout, Operation: op, Message: TimeoutMessage, Err: cause}
}

func transportError(op string, cause error) *RequestError {
	return &RequestError{Kind: KindTransport, Operation: op, Message: cause.Error(), Err: cause}
}

func decodeError(op string, status int, cause error) *RequestError {
	return &RequestError{
		Kind:       KindDecode,
		Operation:  op,
		StatusCode: status,
		Message:    fmt.Sprintf("Unexpected response from the library service: %v", cause),
		Err:        cause,
	}
}

// KindOf returns the kind of a library API failure, or "" if err is not one
func KindOf(err error) ErrorKind {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Kind
	}
	return ""
}

// UserMessage returns the text to show the user for a failed call
func UserMessage(err error) string {
	var reqErr *RequestError
	if errors.As(err, &reqErr) && reqErr.Message != "" {
		return reqErr.Message
	}
	return fallbackConnectionMessage
}
