package routes

import (
	"errors"
	"net/http"
	"path/filepath"

	"dd-copilot/internal/logger"
	"dd-copilot/internal/queue"
	"dd-copilot/middleware"
	"dd-copilot/models"
	"dd-copilot/services"
	"dd-copilot/utils"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
)

// TaskEnqueuer is satisfied by *asynq.Client
type TaskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// SetupIngestRoutes registers /ingest and /ingest/async. enqueuer may be nil,
// in which case the async route answers 503.
func SetupIngestRoutes(router *gin.Engine, ingest *services.IngestService, enqueuer TaskEnqueuer) {
	router.POST("/ingest", HandleIngest(ingest))
	router.POST("/ingest/async", HandleAsyncIngest(ingest, enqueuer))
}

// HandleIngest saves the upload, extracts, normalizes and persists it
func HandleIngest(ingest *services.IngestService) gin.HandlerFunc {
	return func(c *gin.Context) {
		file, header, err := c.Request.FormFile("file")
		if err != nil {
			respondUploadError(c, err)
			return
		}
		defer file.Close()

		result, err := ingest.Ingest(c.Request.Context(), header.Filename, file)
		if errors.Is(err, services.ErrInvalidFilename) {
			utils.RespondWithBadRequest(c, "Uploaded file has no usable name", gin.H{"filename": header.Filename})
			return
		}
		if err != nil {
			logger.Error("Ingest failed", "doc", header.Filename, "request_id", middleware.GetRequestID(c), "error", err)
			utils.RespondWithInternalError(c, "Failed to ingest document", nil)
			return
		}

		c.JSON(http.StatusOK, models.IngestResponse{
			Status:      result.Document.Status,
			Doc:         result.Document.Doc,
			TablesCount: len(result.Document.Tables),
			ADEJSON:     filepath.Base(result.Location),
		})
	}
}

// HandleAsyncIngest saves the upload and queues the rest of the pipeline
func HandleAsyncIngest(ingest *services.IngestService, enqueuer TaskEnqueuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if enqueuer == nil {
			utils.RespondWithServiceUnavailable(c, "Async ingestion requires DDC_REDIS_URL")
			return
		}

		file, header, err := c.Request.FormFile("file")
		if err != nil {
			respondUploadError(c, err)
			return
		}
		defer file.Close()

		savedPath, err := ingest.SaveUpload(header.Filename, file)
		if errors.Is(err, services.ErrInvalidFilename) {
			utils.RespondWithBadRequest(c, "Uploaded file has no usable name", gin.H{"filename": header.Filename})
			return
		}
		if err != nil {
			logger.Error("Saving upload failed", "doc", header.Filename, "error", err)
			utils.RespondWithInternalError(c, "Failed to save upload", nil)
			return
		}

		doc := filepath.Base(savedPath)
		task, err := queue.NewIngestTask(doc, savedPath, middleware.GetRequestID(c))
		if err != nil {
			utils.RespondWithError(c, http.StatusInternalServerError, "queue_error", "Failed to create processing task", nil)
			return
		}

		info, err := enqueuer.Enqueue(task)
		if err != nil {
			logger.Error("Enqueue failed", "doc", doc, "error", err)
			utils.RespondWithError(c, http.StatusInternalServerError, "queue_error", "Failed to enqueue processing task", nil)
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"status":  "queued",
			"doc":     doc,
			"task_id": info.ID,
		})
	}
}

func respondUploadError(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		utils.RespondWithError(c, http.StatusRequestEntityTooLarge, "file_too_large",
			"File size exceeds maximum limit", gin.H{"max_size": tooLarge.Limit})
		return
	}
	utils.RespondWithError(c, http.StatusBadRequest, "no_file", "No file provided in form field \"file\"", nil)
}
