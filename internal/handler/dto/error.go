package dto

// ErrorDetail carries a machine-readable code plus a human message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse is the envelope for all API errors.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}
