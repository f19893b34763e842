package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/atlashq/atlas/internal/queue"
	"github.com/atlashq/atlas/internal/queue/repository"
	"github.com/atlashq/atlas/pkg/logging"
)

type Handler struct {
	manager *queue.Manager
	logger  logging.Logger
}

func NewHandler(manager *queue.Manager, logger logging.Logger) *Handler {
	return &Handler{
		manager: manager,
		logger:  logger,
	}
}

type enqueueRequest struct {
	TaskID   string                 `json:"task_id"`
	TaskType string                 `json:"task_type" binding:"required"`
	TaskData map[string]interface{} `json:"task_data"`
	Priority int                    `json:"priority"`
}

func (h *Handler) EnqueueTask(c *gin.Context) {
	var req enqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	taskID, err := h.manager.EnqueueTask(req.TaskID, req.TaskType, req.TaskData, req.Priority)
	if errors.Is(err, repository.ErrDuplicateTask) {
		// Idempotent producers treat a duplicate as already accepted
		c.JSON(http.StatusConflict, gin.H{"task_id": req.TaskID, "error": err.Error()})
		return
	}
	if err != nil {
		h.logger.Errorf("[EnqueueTask] Failed to enqueue: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"task_id": taskID})
}

func (h *Handler) GetTask(c *gin.Context) {
	taskID := c.Param("id")

	task, err := h.manager.GetTask(taskID)
	if errors.Is(err, repository.ErrTaskNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.logger.Errorf("[GetTask] Error retrieving task %s: %v", taskID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, task)
}

func (h *Handler) RetryTask(c *gin.Context) {
	h.transition(c, h.manager.RetryFailedTask, "retry")
}

func (h *Handler) EscalateTask(c *gin.Context) {
	h.transition(c, h.manager.EscalateToDeadLetter, "dead-letter")
}

func (h *Handler) RetryDeadLetterTask(c *gin.Context) {
	h.transition(c, h.manager.RetryDeadLetterTask, "dead-letter retry")
}

func (h *Handler) transition(c *gin.Context, op func(string) error, action string) {
	taskID := c.Param("id")

	err := op(taskID)
	switch {
	case errors.Is(err, repository.ErrTaskNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, repository.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		h.logger.Errorf("[%s] Failed for task %s: %v", action, taskID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"task_id": taskID, "action": action})
	}
}

func (h *Handler) GetQueueHealth(c *gin.Context) {
	health, err := h.manager.GetQueueHealth()
	if err != nil {
		h.logger.Errorf("[GetQueueHealth] %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	httpStatus := http.StatusOK
	if !health.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}
	c.JSON(httpStatus, health)
}

func (h *Handler) GetQueueStats(c *gin.Context) {
	stats, err := h.manager.GetQueueStats()
	if err != nil {
		h.logger.Errorf("[GetQueueStats] %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) GetBreakerStatus(c *gin.Context) {
	workerID := c.Param("worker_id")
	c.JSON(http.StatusOK, h.manager.GetCircuitBreakerStatus(workerID))
}

func (h *Handler) ResetBreaker(c *gin.Context) {
	workerID := c.Param("worker_id")
	h.manager.ResetCircuitBreaker(workerID)
	c.JSON(http.StatusOK, h.manager.GetCircuitBreakerStatus(workerID))
}
