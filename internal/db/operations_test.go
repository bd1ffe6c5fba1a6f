package db

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bridge.db")
	require.NoError(t, Init(Config{Path: path}))
	t.Cleanup(func() { Close() })
}

func testDevice(t *testing.T, tenantID, restaurantID int64, name, role, token string) *Device {
	t.Helper()
	d := &Device{
		TenantID:     tenantID,
		RestaurantID: restaurantID,
		Name:         name,
		Role:         role,
		Token:        token,
		PrinterIP:    "192.168.1.50",
		PrinterPort:  9100,
		IsActive:     true,
	}
	require.NoError(t, Devices.CreateDevice(context.Background(), d))
	return d
}

func testJob(t *testing.T, tenantID, restaurantID int64, role string) *PrintJob {
	t.Helper()
	j := &PrintJob{
		TenantID:     tenantID,
		RestaurantID: restaurantID,
		Role:         role,
		PayloadType:  "text",
		Payload:      "ticket",
	}
	require.NoError(t, Jobs.CreateJob(context.Background(), j))
	return j
}

func TestDeviceCRUD(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	d := testDevice(t, 1, 10, "kitchen-1", "kitchen", "tok-kitchen-1")
	require.NotZero(t, d.ID)

	got, err := Devices.GetDeviceByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "kitchen-1", got.Name)
	assert.Nil(t, got.LastSeenAt)

	got.Name = "kitchen-main"
	got.PrinterIP = "10.0.0.5"
	require.NoError(t, Devices.UpdateDevice(ctx, got))

	got, err = Devices.GetDeviceByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "kitchen-main", got.Name)
	assert.Equal(t, "10.0.0.5", got.PrinterIP)

	// Update scoped to the wrong tenant touches nothing.
	got.TenantID = 99
	assert.ErrorIs(t, Devices.UpdateDevice(ctx, got), sql.ErrNoRows)
}

func TestGetActiveDeviceByToken(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	d := testDevice(t, 1, 10, "kitchen-1", "kitchen", "tok-kitchen-1")

	got, err := Devices.GetActiveDeviceByToken(ctx, "tok-kitchen-1")
	require.NoError(t, err)
	assert.Equal(t, d.ID, got.ID)

	_, err = Devices.GetActiveDeviceByToken(ctx, "tok-unknown")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	require.NoError(t, Devices.SetActive(ctx, 1, 10, d.ID, false))
	_, err = Devices.GetActiveDeviceByToken(ctx, "tok-kitchen-1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestListDevicesScoped(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	testDevice(t, 1, 10, "kitchen-1", "kitchen", "tok-1")
	testDevice(t, 1, 10, "bar-1", "bar", "tok-2")
	testDevice(t, 1, 11, "kitchen-2", "kitchen", "tok-3")
	testDevice(t, 2, 10, "kitchen-3", "kitchen", "tok-4")

	devices, err := Devices.ListDevices(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, devices, 2)
	// Ordered by name.
	assert.Equal(t, "bar-1", devices[0].Name)
	assert.Equal(t, "kitchen-1", devices[1].Name)
}

func TestJobFilters(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	testJob(t, 1, 10, "kitchen")
	testJob(t, 1, 10, "bar")
	testJob(t, 1, 11, "kitchen")
	testJob(t, 2, 10, "kitchen")

	jobs, err := Jobs.ListJobs(ctx, JobFilter{TenantID: 1, RestaurantID: 10})
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	jobs, err = Jobs.ListJobs(ctx, JobFilter{TenantID: 1, RestaurantID: 10, Role: "bar"})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "bar", jobs[0].Role)

	jobs, err = Jobs.ListJobs(ctx, JobFilter{TenantID: 1, RestaurantID: 10, Status: "done"})
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestPendingJobsOrdering(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	first := testJob(t, 1, 10, "kitchen")
	second := testJob(t, 1, 10, "kitchen")

	jobs, err := Jobs.PendingJobs(ctx, 1, 10, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, first.ID, jobs[0].ID)
	assert.Equal(t, second.ID, jobs[1].ID)
}

func TestCountByStatus(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	testJob(t, 1, 10, "kitchen")
	testJob(t, 1, 10, "kitchen")

	counts, err := Jobs.CountByStatus(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts["pending"])
}

func TestGetJobByIDScoped(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	j := testJob(t, 1, 10, "kitchen")

	_, err := Jobs.GetJobByID(ctx, 1, 10, j.ID)
	require.NoError(t, err)

	_, err = Jobs.GetJobByID(ctx, 2, 10, j.ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	_, err = Jobs.GetJobByID(ctx, 1, 11, j.ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestSettings(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	_, err := Settings.GetSetting(ctx, "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	require.NoError(t, Settings.SetSetting(ctx, "jwt_secret", "abc", false))
	s, err := Settings.GetSetting(ctx, "jwt_secret")
	require.NoError(t, err)
	assert.Equal(t, "abc", s.Value)

	// Upsert overwrites.
	require.NoError(t, Settings.SetSetting(ctx, "jwt_secret", "def", false))
	s, err = Settings.GetSetting(ctx, "jwt_secret")
	require.NoError(t, err)
	assert.Equal(t, "def", s.Value)
}

func TestWebhookEventFilter(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, Webhooks.CreateWebhook(ctx, &Webhook{
		Name: "ops", URL: "http://example.com/hook",
		EventsJSON: `["job.done","job.failed"]`, Enabled: true,
	}))
	require.NoError(t, Webhooks.CreateWebhook(ctx, &Webhook{
		Name: "disabled", URL: "http://example.com/hook2",
		EventsJSON: `["job.done"]`, Enabled: false,
	}))

	hooks, err := Webhooks.ListActiveWebhooksForEvent(ctx, "job.done")
	require.NoError(t, err)
	require.Len(t, hooks, 1)
	assert.Equal(t, "ops", hooks[0].Name)

	hooks, err = Webhooks.ListActiveWebhooksForEvent(ctx, "job.reclaimed")
	require.NoError(t, err)
	assert.Empty(t, hooks)
}

func TestDailyCounterUpsert(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	d := testDevice(t, 1, 10, "kitchen-1", "kitchen", "tok-1")
	now := time.Now().UTC()

	require.NoError(t, Counters.IncrementDailyCounter(ctx, d.ID, now))
	require.NoError(t, Counters.IncrementDailyCounter(ctx, d.ID, now))

	counters, err := Counters.GetCounters(ctx, d.ID, now.AddDate(0, 0, -1), now.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, counters, 1)
	assert.Equal(t, int64(2), counters[0].Count)
}

func TestGetCountersCorruptDate(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	d := testDevice(t, 1, 10, "kitchen-1", "kitchen", "tok-1")

	_, err := GetDB().ExecContext(ctx,
		"INSERT INTO print_counters (device_id, date, count) VALUES (?, ?, ?)",
		d.ID, "2026-13-45", 3)
	require.NoError(t, err)

	from, _ := time.Parse("2006-01-02", "2026-01-01")
	to, _ := time.Parse("2006-01-02", "2027-01-01")
	_, err = Counters.GetCounters(ctx, d.ID, from, to)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse counter date")
}
