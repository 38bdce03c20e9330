package daemon

import "fmt"

// TransportError means the request never got a response: the daemon is
// unreachable, the endpoint is malformed, or the call timed out.
type TransportError struct {
	Operation string // "submit", "query_status" or "health"
	Endpoint  string // Daemon base address the call was addressed to
	Err       error  // Underlying error, if any
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s against %s: %v", e.Operation, e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) ErrorType() string {
	return "transport"
}

// DaemonStatusError means the daemon answered with a non-2xx status.
type DaemonStatusError struct {
	Operation  string
	StatusCode int
	Body       string // Response body, truncated, for logs
}

func (e *DaemonStatusError) Error() string {
	return fmt.Sprintf("daemon error: %d", e.StatusCode)
}

func (e *DaemonStatusError) ErrorType() string {
	return "daemon_status"
}

// MalformedResponseError means the daemon answered but the body is not the
// expected JSON payload.
type MalformedResponseError struct {
	Operation string
	Err       error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed daemon response during %s: %v", e.Operation, e.Err)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

func (e *MalformedResponseError) ErrorType() string {
	return "malformed_response"
}

// InvalidRequestError rejects a job request before anything is sent.
type InvalidRequestError struct {
	Field  string
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid job request: %s %s", e.Field, e.Reason)
}

func (e *InvalidRequestError) ErrorType() string {
	return "invalid_request"
}
