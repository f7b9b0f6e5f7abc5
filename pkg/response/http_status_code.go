package response

const (
	ErrCodeSuccess      = 20001 // Success
	ErrCodeParamInvalid = 40001 // Request body or params invalid
	ErrCodeUnauthorized = 40101 // Missing or invalid token
	ErrCodeNotFound     = 40401 // Resource not found
	ErrCodeRateLimited  = 42901 // Too many requests
	ErrCodeInternal     = 50001 // Internal server error
)

// message
var msg = map[int]string{
	ErrCodeSuccess:      "success",
	ErrCodeParamInvalid: "invalid request",
	ErrCodeUnauthorized: "unauthorized",
	ErrCodeNotFound:     "not found",
	ErrCodeRateLimited:  "rate limit exceeded",
	ErrCodeInternal:     "internal server error",
}

// Msg returns the default message for a response code.
func Msg(code int) string {
	return msg[code]
}
