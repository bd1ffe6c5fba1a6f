package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tavola/printbridge/internal/core"
	"github.com/tavola/printbridge/internal/db"
)

type CreateJobRequest struct {
	TenantID     int64  `json:"tenant_id" binding:"required"`
	RestaurantID int64  `json:"restaurant_id" binding:"required"`
	Role         string `json:"role" binding:"required"`
	PayloadType  string `json:"payload_type"`
	Payload      string `json:"payload" binding:"required"`
	DeviceID     *int64 `json:"device_id"`
	OrderID      *int64 `json:"order_id"`
}

type ListJobsQuery struct {
	TenantID     int64  `form:"tenant_id" binding:"required"`
	RestaurantID int64  `form:"restaurant_id" binding:"required"`
	Status       string `form:"status"`
	Role         string `form:"role"`
	DeviceID     int64  `form:"device_id"`
	Limit        int    `form:"limit" binding:"max=100"`
	Offset       int    `form:"offset"`
}

type ScopedQuery struct {
	TenantID     int64 `form:"tenant_id" binding:"required"`
	RestaurantID int64 `form:"restaurant_id" binding:"required"`
}

type JobResponse struct {
	ID           int64     `json:"id"`
	TenantID     int64     `json:"tenant_id"`
	RestaurantID int64     `json:"restaurant_id"`
	OrderID      *int64    `json:"order_id,omitempty"`
	DeviceID     *int64    `json:"device_id,omitempty"`
	Role         string    `json:"role"`
	PayloadType  string    `json:"payload_type"`
	Payload      string    `json:"payload"`
	Status       string    `json:"status"`
	TargetIP     string    `json:"target_ip,omitempty"`
	TargetPort   int       `json:"target_port,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Attempts     int       `json:"attempts"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type ReclaimRequest struct {
	TimeoutMinutes int `json:"timeout_minutes" binding:"required"`
}

type PurgeRequest struct {
	OlderThanDays int `json:"older_than_days" binding:"required"`
}

type JobHandler struct {
	dispatcher *core.Dispatcher
}

func NewJobHandler(dispatcher *core.Dispatcher) *JobHandler {
	return &JobHandler{dispatcher: dispatcher}
}

func (h *JobHandler) CreateJob(c *gin.Context) {
	var req CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	job, err := h.dispatcher.CreateJob(c.Request.Context(), core.CreateJobParams{
		TenantID:     req.TenantID,
		RestaurantID: req.RestaurantID,
		Role:         core.Role(req.Role),
		PayloadType:  req.PayloadType,
		Payload:      req.Payload,
		DeviceID:     req.DeviceID,
		OrderID:      req.OrderID,
	})
	if err != nil {
		writeCoreError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"job_id": job.ID})
}

func (h *JobHandler) ListJobs(c *gin.Context) {
	var query ListJobsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	if query.Limit <= 0 {
		query.Limit = 50
	}

	jobs, err := db.Jobs.ListJobs(c.Request.Context(), db.JobFilter{
		TenantID:     query.TenantID,
		RestaurantID: query.RestaurantID,
		Status:       query.Status,
		Role:         query.Role,
		DeviceID:     query.DeviceID,
		Limit:        query.Limit,
		Offset:       query.Offset,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to list jobs",
		})
		return
	}

	responses := make([]JobResponse, 0, len(jobs))
	for _, job := range jobs {
		responses = append(responses, jobToResponse(job))
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":   responses,
		"limit":  query.Limit,
		"offset": query.Offset,
		"count":  len(responses),
	})
}

func (h *JobHandler) GetJob(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_id",
			Message: "Invalid job id",
		})
		return
	}

	var query ScopedQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	job, err := db.Jobs.GetJobByID(c.Request.Context(), query.TenantID, query.RestaurantID, id)
	if err != nil {
		writeCoreError(c, err)
		return
	}

	c.JSON(http.StatusOK, jobToResponse(job))
}

func (h *JobHandler) GetJobStats(c *gin.Context) {
	var query ScopedQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	counts, err := db.Jobs.CountByStatus(c.Request.Context(), query.TenantID, query.RestaurantID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to count jobs",
		})
		return
	}

	var total int64
	for _, n := range counts {
		total += n
	}

	c.JSON(http.StatusOK, gin.H{
		"pending":  counts[string(core.JobStatusPending)],
		"printing": counts[string(core.JobStatusPrinting)],
		"done":     counts[string(core.JobStatusDone)],
		"failed":   counts[string(core.JobStatusFailed)],
		"total":    total,
	})
}

// ReclaimStale is the maintenance sweep for jobs abandoned mid-print. The
// reclaimed count is the observable output; losing jobs silently is the worst
// failure mode this system has.
func (h *JobHandler) ReclaimStale(c *gin.Context) {
	var req ReclaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	timeout := time.Duration(req.TimeoutMinutes) * time.Minute
	count, err := h.dispatcher.ReclaimStale(c.Request.Context(), timeout)
	if err != nil {
		if errors.Is(err, core.ErrValidation) {
			writeCoreError(c, err)
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "reclaim_error",
			Message: "Failed to reclaim stale jobs",
		})
		return
	}

	recordAudit(c, &db.AuditLog{
		Action:     "reclaim_stale",
		EntityType: "job",
		IPAddress:  c.ClientIP(),
	})

	c.JSON(http.StatusOK, gin.H{"reclaimed_count": count})
}

func (h *JobHandler) PurgeJobs(c *gin.Context) {
	var req PurgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	purged, err := h.dispatcher.PurgeTerminal(c.Request.Context(), time.Duration(req.OlderThanDays)*24*time.Hour)
	if err != nil {
		writeCoreError(c, err)
		return
	}

	recordAudit(c, &db.AuditLog{
		Action:     "purge_jobs",
		EntityType: "job",
		IPAddress:  c.ClientIP(),
	})

	c.JSON(http.StatusOK, gin.H{"purged_count": purged})
}

func jobToResponse(job *db.PrintJob) JobResponse {
	return JobResponse{
		ID:           job.ID,
		TenantID:     job.TenantID,
		RestaurantID: job.RestaurantID,
		OrderID:      job.OrderID,
		DeviceID:     job.DeviceID,
		Role:         job.Role,
		PayloadType:  job.PayloadType,
		Payload:      job.Payload,
		Status:       job.Status,
		TargetIP:     job.TargetIP,
		TargetPort:   job.TargetPort,
		ErrorMessage: job.ErrorMessage,
		Attempts:     job.Attempts,
		CreatedAt:    job.CreatedAt,
		UpdatedAt:    job.UpdatedAt,
	}
}

func (h *JobHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/jobs", h.ListJobs)
	r.POST("/jobs", h.CreateJob)
	r.GET("/jobs/stats", h.GetJobStats)
	r.GET("/jobs/:id", h.GetJob)
	r.POST("/maintenance/reclaim", h.ReclaimStale)
	r.POST("/maintenance/purge", h.PurgeJobs)
}
