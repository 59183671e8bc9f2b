// Package response writes the JSON envelope shared by the chat REST routes
// and the pre-upgrade rejections of the websocket endpoint.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Karthikchakala/HospitalManagement/pkg/log"
)

// Envelope codes for failures that are not relay wire codes.
const (
	CodeBadRequest   = "BAD_REQUEST"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeNotFound     = "NOT_FOUND"
	CodeInternal     = "INTERNAL_ERROR"
)

// Envelope is the body of every REST response.
type Envelope struct {
	Success bool     `json:"success"`
	Data    any      `json:"data,omitempty"`
	Error   *Problem `json:"error,omitempty"`
}

type Problem struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Envelope{Success: true, Data: data})
}

// Fail writes an error envelope and aborts the remaining handlers, so
// middleware can return right after calling it.
func Fail(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, Envelope{Error: &Problem{Code: code, Message: message}})
}

func BadRequest(c *gin.Context, message string) {
	Fail(c, http.StatusBadRequest, CodeBadRequest, message)
}

func Unauthorized(c *gin.Context, message string) {
	Fail(c, http.StatusUnauthorized, CodeUnauthorized, message)
}

func Forbidden(c *gin.Context, message string) {
	Fail(c, http.StatusForbidden, CodeForbidden, message)
}

func NotFound(c *gin.Context, message string) {
	Fail(c, http.StatusNotFound, CodeNotFound, message)
}

// Internal logs err on the request logger and answers 500 with message
// only; store errors never reach the client.
func Internal(c *gin.Context, err error, message string) {
	l := log.Ctx(c.Request.Context())
	l.Error().Err(err).Msg(message)
	Fail(c, http.StatusInternalServerError, CodeInternal, message)
}
