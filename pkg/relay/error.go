package relay

import (
	"fmt"
	"net/http"
)

type ErrorKind string

const (
	// the upstream answered with a non-success status
	KindUpstream ErrorKind = "upstream"
	// no upstream response could be obtained
	KindTransport ErrorKind = "transport"
	// the inbound request was rejected before any outbound call
	KindInput ErrorKind = "input"
)

// TransportErrorStatus is returned to the caller when the upstream could not be reached.
const TransportErrorStatus = http.StatusBadRequest

type Error struct {
	Kind        ErrorKind `json:"kind"`
	Status      int       `json:"status"`
	Message     string    `json:"message"`
	ContentType string    `json:"-"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error (%d): %s", e.Kind, e.Status, e.Message)
}

func UpstreamError(status int, body []byte, contentType string) *Error {
	message := string(body)
	if len(body) == 0 {
		message = http.StatusText(status)
		contentType = ""
	}
	return &Error{
		Kind:        KindUpstream,
		Status:      status,
		Message:     message,
		ContentType: contentType,
	}
}

func TransportError(err error) *Error {
	message := "upstream unreachable"
	if err != nil && err.Error() != "" {
		message = err.Error()
	}
	return &Error{
		Kind:    KindTransport,
		Status:  TransportErrorStatus,
		Message: message,
	}
}

func InputError(format string, args ...any) *Error {
	return &Error{
		Kind:    KindInput,
		Status:  http.StatusBadRequest,
		Message: fmt.Sprintf(format, args...),
	}
}
