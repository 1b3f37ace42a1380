// Package types holds the JSON envelopes shared by every endpoint.
package types

// SuccessEnvelope wraps any 2xx payload under a "data" key.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// ListEnvelope is the success payload for cursor-paginated collections.
// NextCursor is empty on the last page.
type ListEnvelope struct {
	Items      any    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// APIError is the public face of a coded error: the stable code, the
// message safe to show a client, and optional structured details.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorEnvelope wraps every non-2xx response.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
