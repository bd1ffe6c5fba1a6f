package core

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tavola/printbridge/internal/db"
	"github.com/tavola/printbridge/internal/utils"
)

func setupTestDB(t *testing.T) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bridge.db")
	require.NoError(t, db.Init(db.Config{Path: path}))
	t.Cleanup(func() { db.Close() })
}

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(db.GetDB(), zerolog.Nop())
}

func TestRegister(t *testing.T) {
	setupTestDB(t)
	registry := testRegistry(t)
	ctx := context.Background()

	device, err := registry.Register(ctx, RegisterParams{
		TenantID:     1,
		RestaurantID: 10,
		Name:         "kitchen-1",
		Role:         RoleKitchen,
		PrinterIP:    "192.168.1.50",
	})
	require.NoError(t, err)
	assert.NotZero(t, device.ID)
	assert.Len(t, device.Token, utils.DeviceTokenLength)
	assert.Equal(t, 9100, device.PrinterPort)
	assert.True(t, device.IsActive)
}

func TestRegisterValidation(t *testing.T) {
	setupTestDB(t)
	registry := testRegistry(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		params RegisterParams
	}{
		{"missing tenant", RegisterParams{RestaurantID: 10, Name: "p", Role: RoleKitchen}},
		{"missing restaurant", RegisterParams{TenantID: 1, Name: "p", Role: RoleKitchen}},
		{"missing name", RegisterParams{TenantID: 1, RestaurantID: 10, Role: RoleKitchen}},
		{"invalid role", RegisterParams{TenantID: 1, RestaurantID: 10, Name: "p", Role: Role("laser")}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := registry.Register(ctx, tc.params)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestTokenNeverSerialized(t *testing.T) {
	setupTestDB(t)
	registry := testRegistry(t)

	device, err := registry.Register(context.Background(), RegisterParams{
		TenantID: 1, RestaurantID: 10, Name: "kitchen-1", Role: RoleKitchen,
	})
	require.NoError(t, err)

	data, err := json.Marshal(device)
	require.NoError(t, err)
	assert.NotContains(t, string(data), device.Token)
}

func TestAuthenticate(t *testing.T) {
	setupTestDB(t)
	registry := testRegistry(t)
	ctx := context.Background()

	device, err := registry.Register(ctx, RegisterParams{
		TenantID: 1, RestaurantID: 10, Name: "kitchen-1", Role: RoleKitchen,
	})
	require.NoError(t, err)

	resolved, err := registry.Authenticate(ctx, device.Token)
	require.NoError(t, err)
	assert.Equal(t, device.ID, resolved.ID)

	_, err = registry.Authenticate(ctx, utils.NewDeviceToken())
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = registry.Authenticate(ctx, "short")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthenticateInactiveDevice(t *testing.T) {
	setupTestDB(t)
	registry := testRegistry(t)
	ctx := context.Background()

	device, err := registry.Register(ctx, RegisterParams{
		TenantID: 1, RestaurantID: 10, Name: "kitchen-1", Role: RoleKitchen,
	})
	require.NoError(t, err)

	require.NoError(t, registry.SetActive(ctx, 1, 10, device.ID, false))

	// Deactivation revokes the token immediately.
	_, err = registry.Authenticate(ctx, device.Token)
	assert.ErrorIs(t, err, ErrUnauthorized)

	require.NoError(t, registry.SetActive(ctx, 1, 10, device.ID, true))
	_, err = registry.Authenticate(ctx, device.Token)
	assert.NoError(t, err)
}

func TestSetActiveScoping(t *testing.T) {
	setupTestDB(t)
	registry := testRegistry(t)
	ctx := context.Background()

	device, err := registry.Register(ctx, RegisterParams{
		TenantID: 1, RestaurantID: 10, Name: "kitchen-1", Role: RoleKitchen,
	})
	require.NoError(t, err)

	err = registry.SetActive(ctx, 2, 10, device.ID, false)
	assert.ErrorIs(t, err, ErrNotFound)

	resolved, err := registry.Authenticate(ctx, device.Token)
	require.NoError(t, err)
	assert.True(t, resolved.IsActive)
}

func TestHeartbeat(t *testing.T) {
	setupTestDB(t)
	registry := testRegistry(t)
	ctx := context.Background()

	device, err := registry.Register(ctx, RegisterParams{
		TenantID: 1, RestaurantID: 10, Name: "kitchen-1", Role: RoleKitchen,
	})
	require.NoError(t, err)
	assert.Nil(t, device.LastSeenAt)

	require.NoError(t, registry.Heartbeat(ctx, device.ID))

	refreshed, err := db.Devices.GetDeviceByID(ctx, device.ID)
	require.NoError(t, err)
	require.NotNil(t, refreshed.LastSeenAt)
	assert.True(t, IsConnected(refreshed.LastSeenAt, time.Now().UTC()))
}

func TestRecordError(t *testing.T) {
	setupTestDB(t)
	registry := testRegistry(t)
	ctx := context.Background()

	device, err := registry.Register(ctx, RegisterParams{
		TenantID: 1, RestaurantID: 10, Name: "kitchen-1", Role: RoleKitchen,
	})
	require.NoError(t, err)

	require.NoError(t, registry.RecordError(ctx, device.ID, "paper jam"))

	refreshed, err := db.Devices.GetDeviceByID(ctx, device.ID)
	require.NoError(t, err)
	assert.Equal(t, "paper jam", refreshed.LastErrorMessage)
	require.NotNil(t, refreshed.LastErrorAt)
	// An error report does not deactivate the device.
	assert.True(t, refreshed.IsActive)
}
