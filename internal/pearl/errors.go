package pearl

import (
	"errors"
	"strings"
)

var (
	// ErrConnectionFailure covers transport failures (timeout, refused, aborted) and non-2xx responses.
	ErrConnectionFailure = errors.New("connection failure")
	// ErrDeviceRejected means the device answered with a well-formed envelope whose status is not "ok".
	ErrDeviceRejected = errors.New("device rejected request")
	// ErrFeatureDisabled is returned by the legacy metadata path when metadata support is off.
	ErrFeatureDisabled = errors.New("feature disabled")
	// ErrBadRequest means the request could not be built (empty path, unsupported method).
	ErrBadRequest = errors.New("bad request")
)

// RequestError describes a failed device call. Match its class with errors.Is against the
// sentinels above; the underlying transport error (if any) is reachable via errors.Unwrap.
type RequestError struct {
	Kind   error
	Method string
	URL    string
	Reason string
	Code   int // HTTP status of a non-2xx response
	Err    error
}

func (e *RequestError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Method != "" || e.URL != "" {
		b.WriteString(": ")
		b.WriteString(strings.TrimSpace(e.Method + " " + e.URL))
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	return b.String()
}

func (e *RequestError) Is(target error) bool { return target == e.Kind }

func (e *RequestError) Unwrap() error { return e.Err }
