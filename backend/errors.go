package backend

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	errs "github.com/jrsteele09/go-auth-starter/internal/errors"
)

// APIError is a non-2xx answer from the backend. Message is suitable for
// showing to the user.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("backend error %d: %s", e.Status, e.Message)
}

// Is maps well known backend error codes onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case errs.ErrInvalidCredentials:
		return e.Code == "invalid_credentials" || e.Code == "invalid_grant"
	case errs.ErrNotFound:
		// single-object read matched no row; a 404 is a missing table
		return e.Code == "PGRST116" && e.Status == http.StatusNotAcceptable
	case errs.ErrSessionExpired:
		return e.Code == "session_not_found" || e.Code == "refresh_token_not_found" ||
			e.Code == "refresh_token_already_used" || e.Code == "session_expired"
	}
	return false
}

// errorBody covers the auth API (both the old error/error_description and
// the newer error_code/msg shapes) and the row API's code/message shape.
type errorBody struct {
	Code             json.RawMessage `json:"code"`
	ErrorCode        string          `json:"error_code"`
	Msg              string          `json:"msg"`
	Message          string          `json:"message"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		apiErr.Message = strings.TrimSpace(string(body))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(status)
		}
		return apiErr
	}

	apiErr.Code = firstNonEmpty(eb.ErrorCode, rawCode(eb.Code), eb.Error)
	apiErr.Message = firstNonEmpty(eb.Msg, eb.ErrorDescription, eb.Message, eb.Error, http.StatusText(status))
	return apiErr
}

// rawCode accepts both string codes ("PGRST116") and the auth API's numeric
// status echo, which carries no information and is dropped.
func rawCode(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	if _, err := strconv.Atoi(string(raw)); err == nil {
		return ""
	}
	return string(raw)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
