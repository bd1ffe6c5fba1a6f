package handlers

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tavola/printbridge/internal/api/middleware"
	"github.com/tavola/printbridge/internal/core"
	"github.com/tavola/printbridge/internal/db"
)

type RegisterDeviceRequest struct {
	TenantID     int64  `json:"tenant_id" binding:"required"`
	RestaurantID int64  `json:"restaurant_id" binding:"required"`
	Name         string `json:"name" binding:"required"`
	Role         string `json:"role" binding:"required"`
	PrinterIP    string `json:"printer_ip"`
	PrinterPort  int    `json:"printer_port"`
}

type RegisterDeviceResponse struct {
	DeviceID int64  `json:"device_id"`
	Token    string `json:"token"`
}

type AckRequest struct {
	JobID        int64  `json:"job_id" binding:"required"`
	Success      *bool  `json:"success" binding:"required"`
	ErrorMessage string `json:"error_message"`
}

type BridgeJob struct {
	JobID       int64  `json:"job_id"`
	Role        string `json:"role"`
	PayloadType string `json:"payload_type"`
	Payload     string `json:"payload"`
	TargetIP    string `json:"target_ip"`
	TargetPort  int    `json:"target_port"`
	OrderID     *int64 `json:"order_id,omitempty"`
	Attempts    int    `json:"attempts"`
}

type PollResponse struct {
	Jobs  []BridgeJob `json:"jobs"`
	Count int         `json:"count"`
}

type BridgeHandler struct {
	registry   *core.Registry
	dispatcher *core.Dispatcher
}

func NewBridgeHandler(registry *core.Registry, dispatcher *core.Dispatcher) *BridgeHandler {
	return &BridgeHandler{
		registry:   registry,
		dispatcher: dispatcher,
	}
}

// Register issues a device identity and its token. The token is returned
// exactly once; it is never part of any later device representation.
func (h *BridgeHandler) Register(c *gin.Context) {
	var req RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	device, err := h.registry.Register(c.Request.Context(), core.RegisterParams{
		TenantID:     req.TenantID,
		RestaurantID: req.RestaurantID,
		Name:         req.Name,
		Role:         core.Role(req.Role),
		PrinterIP:    req.PrinterIP,
		PrinterPort:  req.PrinterPort,
	})
	if err != nil {
		writeCoreError(c, err)
		return
	}

	recordAudit(c, &db.AuditLog{
		Action:     "register_device",
		EntityType: "device",
		EntityID:   device.ID,
		IPAddress:  c.ClientIP(),
	})

	c.JSON(http.StatusCreated, RegisterDeviceResponse{
		DeviceID: device.ID,
		Token:    device.Token,
	})
}

// Poll claims the next batch of eligible jobs for the calling device. A poll
// with nothing to do returns an empty list; a lost claim race is not an error.
func (h *BridgeHandler) Poll(c *gin.Context) {
	device := middleware.DeviceFromContext(c)

	jobs, err := h.dispatcher.Claim(c.Request.Context(), device)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "claim_error",
			Message: "Failed to claim jobs",
		})
		return
	}

	resp := PollResponse{Jobs: make([]BridgeJob, 0, len(jobs))}
	for _, job := range jobs {
		resp.Jobs = append(resp.Jobs, BridgeJob{
			JobID:       job.ID,
			Role:        job.Role,
			PayloadType: job.PayloadType,
			Payload:     job.Payload,
			TargetIP:    job.TargetIP,
			TargetPort:  job.TargetPort,
			OrderID:     job.OrderID,
			Attempts:    job.Attempts,
		})
	}
	resp.Count = len(resp.Jobs)

	c.JSON(http.StatusOK, resp)
}

func (h *BridgeHandler) Ack(c *gin.Context) {
	device := middleware.DeviceFromContext(c)

	var req AckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	var err error
	if *req.Success {
		err = h.dispatcher.AckSuccess(c.Request.Context(), device, req.JobID)
	} else {
		err = h.dispatcher.AckFailure(c.Request.Context(), device, req.JobID, req.ErrorMessage)
	}
	if err != nil {
		writeCoreError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *BridgeHandler) Heartbeat(c *gin.Context) {
	device := middleware.DeviceFromContext(c)

	if err := h.registry.Heartbeat(c.Request.Context(), device.ID); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "heartbeat_error",
			Message: "Failed to record heartbeat",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *BridgeHandler) RegisterRoutes(r *gin.Engine, deviceAuth gin.HandlerFunc) {
	bridge := r.Group("/api/bridge")
	bridge.POST("/register", h.Register)

	authed := bridge.Group("")
	authed.Use(deviceAuth)
	authed.POST("/poll", h.Poll)
	authed.POST("/ack", h.Ack)
	authed.POST("/heartbeat", h.Heartbeat)
}

func writeCoreError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, core.ErrValidation):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
	case errors.Is(err, core.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: err.Error(),
		})
	case errors.Is(err, core.ErrConflict):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "conflict",
			Message: err.Error(),
		})
	case errors.Is(err, core.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "unauthorized",
		})
	case errors.Is(err, sql.ErrNoRows):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "resource not found",
		})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Internal server error",
		})
	}
}
