package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response is the JSON body every API endpoint answers with.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func SuccessResponse(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{
		Code:    ErrCodeSuccess,
		Message: Msg(ErrCodeSuccess),
		Data:    data,
	})
}

// ErrorResponse aborts the request. An empty message falls back to the
// code's default.
func ErrorResponse(c *gin.Context, status, code int, message string) {
	if message == "" {
		message = Msg(code)
	}
	c.AbortWithStatusJSON(status, Response{Code: code, Message: message})
}

func BadRequest(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusBadRequest, ErrCodeParamInvalid, message)
}

func Unauthorized(c *gin.Context) {
	ErrorResponse(c, http.StatusUnauthorized, ErrCodeUnauthorized, "")
}

func NotFound(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusNotFound, ErrCodeNotFound, message)
}

func InternalError(c *gin.Context) {
	ErrorResponse(c, http.StatusInternalServerError, ErrCodeInternal, "")
}
