package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Karthikchakala/HospitalManagement/chat-service/internal/hub"
	"github.com/Karthikchakala/HospitalManagement/pkg/log"
	"github.com/Karthikchakala/HospitalManagement/pkg/middleware"
)

// NewRouter builds the gin engine with the websocket endpoint, the REST
// routes and a health check. rest and auth may be nil when no JWT secret
// is configured.
func NewRouter(logger zerolog.Logger, h *hub.Hub, ws *WSHandler, rest *HTTPHandler, auth *middleware.AuthMiddleware) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(log.GinMiddleware(logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "chat-service",
			"clients": h.ClientCount(),
		})
	})

	ws.RegisterRoutes(r)
	if rest != nil && auth != nil {
		rest.RegisterRoutes(r, auth)
	}
	return r
}
