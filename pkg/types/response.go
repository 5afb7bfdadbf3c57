package types

// SuccessEnvelope wraps every 2xx payload so clients always unwrap "data".
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the public error shape. Details only carries field-level
// validation messages; other codes never expose internals.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorEnvelope mirrors SuccessEnvelope for the error branch.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// NewErrorEnvelope builds the wire form for a rejected request.
func NewErrorEnvelope(code, message string, details any) ErrorEnvelope {
	return ErrorEnvelope{Error: APIError{Code: code, Message: message, Details: details}}
}
