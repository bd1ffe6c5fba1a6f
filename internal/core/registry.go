package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tavola/printbridge/internal/db"
	"github.com/tavola/printbridge/internal/utils"
)

// Registry owns device identity, authentication tokens and connectivity state.
type Registry struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewRegistry(database *sql.DB, logger zerolog.Logger) *Registry {
	return &Registry{db: database, log: logger}
}

type RegisterParams struct {
	TenantID     int64
	RestaurantID int64
	Name         string
	Role         Role
	PrinterIP    string
	PrinterPort  int
}

func (r *Registry) Register(ctx context.Context, params RegisterParams) (*db.Device, error) {
	if params.TenantID <= 0 || params.RestaurantID <= 0 {
		return nil, fmt.Errorf("%w: tenant and restaurant are required", ErrValidation)
	}
	if params.Name == "" {
		return nil, fmt.Errorf("%w: device name is required", ErrValidation)
	}
	if !ValidRole(params.Role) {
		return nil, fmt.Errorf("%w: invalid role %q", ErrValidation, params.Role)
	}

	port := params.PrinterPort
	if port == 0 {
		port = 9100
	}

	device := &db.Device{
		TenantID:     params.TenantID,
		RestaurantID: params.RestaurantID,
		Name:         params.Name,
		Role:         string(params.Role),
		Token:        utils.NewDeviceToken(),
		PrinterIP:    params.PrinterIP,
		PrinterPort:  port,
		IsActive:     true,
	}

	if err := db.Devices.CreateDevice(ctx, device); err != nil {
		return nil, err
	}

	r.log.Info().
		Int64("device_id", device.ID).
		Int64("tenant_id", device.TenantID).
		Int64("restaurant_id", device.RestaurantID).
		Str("role", device.Role).
		Msg("device registered")

	return device, nil
}

// Authenticate resolves an active device by token. Inactive devices do not
// resolve even with a valid token, so disabling a device revokes it at once.
func (r *Registry) Authenticate(ctx context.Context, token string) (*db.Device, error) {
	if len(token) != utils.DeviceTokenLength {
		return nil, ErrUnauthorized
	}
	device, err := db.Devices.GetActiveDeviceByToken(ctx, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	return device, nil
}

func (r *Registry) Heartbeat(ctx context.Context, deviceID int64) error {
	return db.Devices.UpdateLastSeen(ctx, deviceID, time.Now().UTC())
}

// RecordError stores the device's latest failure for observability. It does
// not change is_active or job eligibility.
func (r *Registry) RecordError(ctx context.Context, deviceID int64, message string) error {
	return db.Devices.UpdateError(ctx, deviceID, message, time.Now().UTC())
}

func (r *Registry) SetActive(ctx context.Context, tenantID, restaurantID, deviceID int64, active bool) error {
	err := db.Devices.SetActive(ctx, tenantID, restaurantID, deviceID, active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	r.log.Info().Int64("device_id", deviceID).Bool("active", active).Msg("device activation changed")
	return nil
}
