package graphapi

import "fmt"

// APIError is the error object the Graph API embeds in a response body.
// It is returned even when the transport status is 200.
type APIError struct {
	Code    int    `json:"code"`
	Subcode int    `json:"error_subcode"`
	Type    string `json:"type"`
	Message string `json:"message"`
	TraceID string `json:"fbtrace_id"`
}

func (e *APIError) Error() string {
	if e.Subcode != 0 {
		return fmt.Sprintf("graph api error %d/%d (%s): %s", e.Code, e.Subcode, e.Type, e.Message)
	}
	return fmt.Sprintf("graph api error %d (%s): %s", e.Code, e.Type, e.Message)
}

// StatusError is a non-2xx response without a decodable error object.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("graph api returned status %d: %s", e.StatusCode, e.Body)
}
