package routes

import (
	"net/http"

	"dd-copilot/models"
	"dd-copilot/utils"

	"github.com/gin-gonic/gin"
)

// SetupCopilotRoutes registers the question answering, KPI, red flag and
// export endpoints. They return fixed placeholder payloads.
func SetupCopilotRoutes(router *gin.Engine) {
	router.POST("/ask", handleAsk)
	router.GET("/kpis", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"kpis": gin.H{}})
	})
	router.GET("/flags", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"flags": []string{}})
	})
	router.POST("/export", handleExport)
}

func handleAsk(c *gin.Context) {
	var req models.AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondWithBadRequest(c, "question is required", err.Error())
		return
	}

	c.JSON(http.StatusOK, models.AskResponse{
		Answer:   "This is a placeholder answer.",
		Evidence: []models.Citation{},
		Metrics:  map[string]any{},
		RedFlags: []string{},
	})
}

func handleExport(c *gin.Context) {
	var req models.ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondWithBadRequest(c, "type must be one of memo, csv, xlsx", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "queued", "type": req.Type})
}
