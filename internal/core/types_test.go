package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tavola/printbridge/internal/db"
)

func TestValidRole(t *testing.T) {
	assert.True(t, ValidRole(RoleKitchen))
	assert.True(t, ValidRole(RoleReceipt))
	assert.True(t, ValidRole(RoleBar))
	assert.True(t, ValidRole(RoleGeneral))
	assert.False(t, ValidRole(Role("")))
	assert.False(t, ValidRole(Role("laser")))
}

func TestTerminalStatus(t *testing.T) {
	assert.True(t, TerminalStatus(JobStatusDone))
	assert.True(t, TerminalStatus(JobStatusFailed))
	assert.False(t, TerminalStatus(JobStatusPending))
	assert.False(t, TerminalStatus(JobStatusPrinting))
}

func TestIsConnected(t *testing.T) {
	now := time.Now().UTC()

	recent := now.Add(-30 * time.Second)
	stale := now.Add(-3 * time.Minute)
	boundary := now.Add(-ConnectWindow)

	assert.True(t, IsConnected(&recent, now))
	assert.False(t, IsConnected(&stale, now))
	assert.False(t, IsConnected(&boundary, now))
	assert.False(t, IsConnected(nil, now))
}

func TestEligible(t *testing.T) {
	device := func(role string) *db.Device {
		return &db.Device{ID: 7, TenantID: 1, RestaurantID: 10, Role: role, IsActive: true}
	}
	job := func(role string) *db.PrintJob {
		return &db.PrintJob{ID: 100, TenantID: 1, RestaurantID: 10, Role: role, Status: "pending"}
	}

	t.Run("matching role", func(t *testing.T) {
		assert.True(t, Eligible(job("kitchen"), device("kitchen")))
	})

	t.Run("mismatched role", func(t *testing.T) {
		assert.False(t, Eligible(job("bar"), device("kitchen")))
	})

	t.Run("general device sees any role", func(t *testing.T) {
		assert.True(t, Eligible(job("kitchen"), device("general")))
		assert.True(t, Eligible(job("bar"), device("general")))
	})

	t.Run("general job visible to any device", func(t *testing.T) {
		assert.True(t, Eligible(job("general"), device("kitchen")))
		assert.True(t, Eligible(job("general"), device("receipt")))
	})

	t.Run("tenant mismatch", func(t *testing.T) {
		j := job("kitchen")
		j.TenantID = 2
		assert.False(t, Eligible(j, device("kitchen")))
	})

	t.Run("restaurant mismatch", func(t *testing.T) {
		j := job("kitchen")
		j.RestaurantID = 11
		assert.False(t, Eligible(j, device("kitchen")))
	})

	t.Run("targeted job only visible to target", func(t *testing.T) {
		target := int64(7)
		j := job("bar")
		j.DeviceID = &target
		// Targeting overrides role matching entirely.
		assert.True(t, Eligible(j, device("kitchen")))

		other := int64(8)
		j.DeviceID = &other
		assert.False(t, Eligible(j, device("kitchen")))
		assert.False(t, Eligible(j, device("general")))
	})

	t.Run("inactive device", func(t *testing.T) {
		d := device("kitchen")
		d.IsActive = false
		assert.False(t, Eligible(job("kitchen"), d))
	})

	t.Run("non-pending job", func(t *testing.T) {
		j := job("kitchen")
		j.Status = "printing"
		assert.False(t, Eligible(j, device("kitchen")))
	})
}
