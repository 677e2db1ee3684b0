package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Registrar is implemented by every handler in this package.
type Registrar interface {
	RegisterRoutes(router *gin.RouterGroup)
}

// Mount registers the handlers under /api.
func Mount(engine *gin.Engine, handlers ...Registrar) {
	api := engine.Group("/api")
	for _, h := range handlers {
		h.RegisterRoutes(api)
	}
	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})
}
