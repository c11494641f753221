package pos

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ConfigurationError is returned at construction time when required
// credentials are absent. It is not recoverable at runtime.
type ConfigurationError struct {
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("pos client misconfigured: missing %s", strings.Join(e.Missing, ", "))
}

// AuthenticationError lists the reason every configured secret was rejected.
type AuthenticationError struct {
	Attempts []string
}

func (e *AuthenticationError) Error() string {
	if len(e.Attempts) == 1 {
		return "authentication failed: " + e.Attempts[0]
	}
	return fmt.Sprintf("authentication failed after %d attempts: %s", len(e.Attempts), strings.Join(e.Attempts, "; "))
}

// APIError is a failed resource call. Status is zero for transport failures.
type APIError struct {
	Resource string
	Status   int
	Message  string
	Err      error
}

func (e *APIError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: vendor returned %d: %s", e.Resource, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Resource, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Message returns the human readable reason carried by err, unwrapping the
// client's typed errors so route handlers can surface vendor text verbatim.
func Message(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

type vendorErrorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Errors  []struct {
		Message string `json:"message"`
		Field   string `json:"field"`
	} `json:"errors"`
}

// vendorMessage extracts a readable reason from a vendor error body, which
// may be {message}, {errors:[{message}]} or plain text.
func vendorMessage(status int, body []byte) string {
	var parsed vendorErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		if len(parsed.Errors) > 0 {
			msgs := make([]string, 0, len(parsed.Errors))
			for _, e := range parsed.Errors {
				if e.Message != "" {
					msgs = append(msgs, e.Message)
				}
			}
			if len(msgs) > 0 {
				return strings.Join(msgs, "; ")
			}
		}
		if parsed.Error != "" {
			return parsed.Error
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		if len(text) > 512 {
			text = text[:512]
		}
		return text
	}
	if statusText := http.StatusText(status); statusText != "" {
		return statusText
	}
	return fmt.Sprintf("status %d", status)
}
