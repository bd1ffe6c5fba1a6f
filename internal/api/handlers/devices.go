package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/tavola/printbridge/internal/core"
	"github.com/tavola/printbridge/internal/db"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// recordAudit writes an audit entry; a write failure never fails the request.
func recordAudit(c *gin.Context, entry *db.AuditLog) {
	if err := db.Audit.CreateAuditLog(c.Request.Context(), entry); err != nil {
		log.Warn().Err(err).Str("action", entry.Action).Msg("failed to write audit log")
	}
}

type DeviceResponse struct {
	ID               int64      `json:"id"`
	TenantID         int64      `json:"tenant_id"`
	RestaurantID     int64      `json:"restaurant_id"`
	Name             string     `json:"name"`
	Role             string     `json:"role"`
	PrinterIP        string     `json:"printer_ip"`
	PrinterPort      int        `json:"printer_port"`
	IsActive         bool       `json:"is_active"`
	IsConnected      bool       `json:"is_connected"`
	LastSeenAt       *time.Time `json:"last_seen_at"`
	LastErrorMessage string     `json:"last_error_message,omitempty"`
	LastErrorAt      *time.Time `json:"last_error_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type UpdateDeviceRequest struct {
	Name        string `json:"name" binding:"required"`
	Role        string `json:"role" binding:"required"`
	PrinterIP   string `json:"printer_ip"`
	PrinterPort int    `json:"printer_port"`
}

type DeviceHandler struct {
	registry *core.Registry
}

func NewDeviceHandler(registry *core.Registry) *DeviceHandler {
	return &DeviceHandler{registry: registry}
}

func (h *DeviceHandler) ListDevices(c *gin.Context) {
	var query ScopedQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	devices, err := db.Devices.ListDevices(c.Request.Context(), query.TenantID, query.RestaurantID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to list devices",
		})
		return
	}

	now := time.Now().UTC()
	responses := make([]DeviceResponse, 0, len(devices))
	for _, d := range devices {
		responses = append(responses, deviceToResponse(d, now))
	}

	c.JSON(http.StatusOK, gin.H{"devices": responses})
}

func (h *DeviceHandler) GetDevice(c *gin.Context) {
	device, ok := h.scopedDevice(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, deviceToResponse(device, time.Now().UTC()))
}

// UpdateDevice changes the device record only. Jobs already assigned keep the
// target address they were dispatched with.
func (h *DeviceHandler) UpdateDevice(c *gin.Context) {
	device, ok := h.scopedDevice(c)
	if !ok {
		return
	}

	var req UpdateDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}
	if !core.ValidRole(core.Role(req.Role)) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid role",
		})
		return
	}

	device.Name = req.Name
	device.Role = req.Role
	device.PrinterIP = req.PrinterIP
	if req.PrinterPort > 0 {
		device.PrinterPort = req.PrinterPort
	}

	if err := db.Devices.UpdateDevice(c.Request.Context(), device); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "Device not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to update device",
		})
		return
	}

	c.JSON(http.StatusOK, deviceToResponse(device, time.Now().UTC()))
}

func (h *DeviceHandler) ActivateDevice(c *gin.Context) {
	h.setActive(c, true, "activate_device")
}

func (h *DeviceHandler) DeactivateDevice(c *gin.Context) {
	h.setActive(c, false, "deactivate_device")
}

func (h *DeviceHandler) setActive(c *gin.Context, active bool, action string) {
	id, ok := deviceID(c)
	if !ok {
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

	if err := h.registry.SetActive(c.Request.Context(), query.TenantID, query.RestaurantID, id, active); err != nil {
		writeCoreError(c, err)
		return
	}

	recordAudit(c, &db.AuditLog{
		Action:     action,
		EntityType: "device",
		EntityID:   id,
		IPAddress:  c.ClientIP(),
	})

	c.JSON(http.StatusOK, gin.H{"id": id, "is_active": active})
}

func (h *DeviceHandler) GetDeviceCounters(c *gin.Context) {
	device, ok := h.scopedDevice(c)
	if !ok {
		return
	}

	days := 30
	if v := c.Query("days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > 365 {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "validation_error",
				Message: "days must be between 1 and 365",
			})
			return
		}
		days = parsed
	}

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -days)
	counters, err := db.Counters.GetCounters(c.Request.Context(), device.ID, from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to load counters",
		})
		return
	}

	var total int64
	for _, counter := range counters {
		total += counter.Count
	}

	c.JSON(http.StatusOK, gin.H{
		"device_id": device.ID,
		"counters":  counters,
		"total":     total,
		"days":      days,
	})
}

// scopedDevice loads the device on the :id route and verifies it belongs to
// the tenant and restaurant in the query. Out-of-scope lookups read as absent.
func (h *DeviceHandler) scopedDevice(c *gin.Context) (*db.Device, bool) {
	id, ok := deviceID(c)
	if !ok {
		return nil, false
	}
	var query ScopedQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return nil, false
	}

	device, err := db.Devices.GetDeviceByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "Device not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to load device",
		})
		return nil, false
	}
	if device.TenantID != query.TenantID || device.RestaurantID != query.RestaurantID {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "Device not found"})
		return nil, false
	}
	return device, true
}

func deviceID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_id",
			Message: "Invalid device id",
		})
		return 0, false
	}
	return id, true
}

func deviceToResponse(d *db.Device, now time.Time) DeviceResponse {
	return DeviceResponse{
		ID:               d.ID,
		TenantID:         d.TenantID,
		RestaurantID:     d.RestaurantID,
		Name:             d.Name,
		Role:             d.Role,
		PrinterIP:        d.PrinterIP,
		PrinterPort:      d.PrinterPort,
		IsActive:         d.IsActive,
		IsConnected:      core.IsConnected(d.LastSeenAt, now),
		LastSeenAt:       d.LastSeenAt,
		LastErrorMessage: d.LastErrorMessage,
		LastErrorAt:      d.LastErrorAt,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

func (h *DeviceHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/devices", h.ListDevices)
	r.GET("/devices/:id", h.GetDevice)
	r.PUT("/devices/:id", h.UpdateDevice)
	r.POST("/devices/:id/activate", h.ActivateDevice)
	r.POST("/devices/:id/deactivate", h.DeactivateDevice)
	r.GET("/devices/:id/counters", h.GetDeviceCounters)
}
