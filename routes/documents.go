package routes

import (
	"errors"
	"net/http"

	"dd-copilot/internal/logger"
	"dd-copilot/services"
	"dd-copilot/utils"

	"github.com/gin-gonic/gin"
)

// SetupDocumentRoutes exposes the persisted normalized artifacts read-only
func SetupDocumentRoutes(router *gin.Engine, store services.DocumentStore) {
	documents := router.Group("/documents")
	{
		documents.GET("", func(c *gin.Context) {
			names, err := store.List(c.Request.Context())
			if err != nil {
				logger.Error("Listing documents failed", "error", err)
				utils.RespondWithInternalError(c, "Failed to list documents", nil)
				return
			}
			c.JSON(http.StatusOK, gin.H{"documents": names})
		})

		documents.GET("/:name", func(c *gin.Context) {
			doc, err := store.Load(c.Request.Context(), c.Param("name"))
			if errors.Is(err, services.ErrDocumentNotFound) {
				utils.RespondWithNotFound(c, "Document not found")
				return
			}
			if err != nil {
				logger.Error("Loading document failed", "name", c.Param("name"), "error", err)
				utils.RespondWithInternalError(c, "Failed to load document", nil)
				return
			}
			c.JSON(http.StatusOK, doc)
		})
	}
}
