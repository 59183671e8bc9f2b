package log

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const headerRequestID = "X-Request-ID"

// GinMiddleware gives each request an id, reusing X-Request-ID when the
// caller sends one, and puts a logger carrying it into the request context.
// Websocket connections inherit that logger, so their events share the
// handshake's request id.
//
// The route template is logged instead of the raw path, which keeps the
// ?token= of websocket upgrades out of the logs. Upgrades are logged when the
// handshake returns, not when the connection closes.
func GinMiddleware(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		reqID := c.GetHeader(headerRequestID)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		upgrade := websocket.IsWebSocketUpgrade(c.Request)

		child := logger.With().
			Str(FieldRequestID, reqID).
			Str(FieldMethod, c.Request.Method).
			Str(FieldRoute, route).
			Str(FieldClientIP, c.ClientIP()).
			Logger()

		c.Header(headerRequestID, reqID)
		c.Request = c.Request.WithContext(WithLogger(c.Request.Context(), child))

		c.Next()

		status := c.Writer.Status()
		var evt *zerolog.Event
		switch {
		case status >= 500:
			evt = child.Error()
		case status >= 400:
			evt = child.Warn()
		default:
			evt = child.Info()
		}
		evt = evt.Int(FieldStatus, status).
			Int64(FieldLatency, time.Since(start).Milliseconds())
		if upgrade {
			evt = evt.Bool(FieldUpgrade, true)
		}

		// Set by the auth middleware during c.Next().
		if s := c.GetString(FieldUserID); s != "" {
			evt = evt.Str(FieldUserID, s)
		}
		if s := c.GetString(FieldRole); s != "" {
			evt = evt.Str(FieldRole, s)
		}

		evt.Msg("request completed")
	}
}
