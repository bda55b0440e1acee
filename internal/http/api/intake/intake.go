package intake

import (
	"github.com/formsentry/formsentry/internal/http/api/intake/handlers"
	"github.com/gin-gonic/gin"
)

// RegisterIntakeRoutes registers the public submission intake endpoints.
func RegisterIntakeRoutes(r *gin.Engine, formsHandler *handlers.FormsHandler) {
	if r == nil || formsHandler == nil {
		return
	}
	r.GET("/healthz", handlers.Health)
	r.POST("/forms", formsHandler.Submit)
}
