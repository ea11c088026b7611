package protocol

const (
	ErrorTypeInvalidRequest = "invalid_request_error"
	ErrorTypeAPI            = "api_error"
)

// ErrorBody is the inner object of an error payload.
type ErrorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ErrorPayload is returned as a JSON body before streaming starts and as the
// data of a terminal error frame after.
type ErrorPayload struct {
	Type  string    `json:"type"`
	Error ErrorBody `json:"error"`
}

func NewError(errType, message string) ErrorPayload {
	return ErrorPayload{Type: "error", Error: ErrorBody{Type: errType, Message: message}}
}
