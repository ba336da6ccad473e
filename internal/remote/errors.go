package remote

import (
	"errors"
	"fmt"
)

// NetworkError reports a transport failure: the request never produced an
// HTTP response.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// UpstreamError reports a non-2xx response or a 2xx body with
// success:false. Message is the text extracted from the body.
type UpstreamError struct {
	Op      string
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %s (HTTP %d)", e.Op, e.Message, e.Status)
}

// FormatError reports a response that could not be interpreted: an
// unexpected content type or an undecodable body.
type FormatError struct {
	Op          string
	ContentType string
	Message     string
	Err         error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *FormatError) Unwrap() error { return e.Err }

// UserMessage returns the text to show a person for err. Upstream errors
// yield exactly the server's message.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var upErr *UpstreamError
	if errors.As(err, &upErr) {
		return upErr.Message
	}
	var fmtErr *FormatError
	if errors.As(err, &fmtErr) {
		return fmtErr.Message
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return "Network error: " + rootMessage(netErr.Err)
	}
	return err.Error()
}

func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

// IsStatus reports whether err is an UpstreamError with the given status.
func IsStatus(err error, status int) bool {
	var upErr *UpstreamError
	return errors.As(err, &upErr) && upErr.Status == status
}
