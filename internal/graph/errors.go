package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error is an error object returned by the Graph API.
type Error struct {
	Status  int    `json:"-"`
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
	Subcode int    `json:"error_subcode"`
	TraceID string `json:"fbtrace_id"`
}

func (e *Error) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("graph %s (code %d, HTTP %d): %s", e.Type, e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("graph error (HTTP %d): %s", e.Status, e.Message)
}

// Graph error codes that mean the caller should slow down.
const (
	codeAppRateLimit  = 4
	codeUserRateLimit = 17
	codePageRateLimit = 32
	codeCustomLimit   = 613
	codeTokenExpired  = 190
)

// IsRateLimit reports whether the API asked the caller to back off.
func (e *Error) IsRateLimit() bool {
	switch e.Code {
	case codeAppRateLimit, codeUserRateLimit, codePageRateLimit, codeCustomLimit:
		return true
	}
	return e.Status == http.StatusTooManyRequests
}

// IsTokenError reports whether the access token was rejected.
func IsTokenError(err error) bool {
	var ge *Error
	if !errors.As(err, &ge) {
		return false
	}
	return ge.Code == codeTokenExpired || ge.Status == http.StatusUnauthorized
}

// parseError extracts the Graph error envelope from a failed response.
func parseError(status int, body []byte) *Error {
	var env struct {
		Error *Error `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err != nil || env.Error == nil {
		msg := string(body)
		if msg == "" {
			msg = http.StatusText(status)
		}
		return &Error{Status: status, Message: msg}
	}
	env.Error.Status = status
	return env.Error
}
