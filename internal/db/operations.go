package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

type DeviceOperations struct{}

func (o *DeviceOperations) CreateDevice(ctx context.Context, d *Device) error {
	now := time.Now().UTC()
	result, err := GetDB().ExecContext(ctx, InsertDevice,
		d.TenantID, d.RestaurantID, d.Name, d.Role, d.Token,
		d.PrinterIP, d.PrinterPort, d.IsActive, now, now)
	if err != nil {
		return fmt.Errorf("failed to create device: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get device id: %w", err)
	}
	d.ID = id
	d.CreatedAt = now
	d.UpdatedAt = now
	return nil
}

func (o *DeviceOperations) GetDeviceByID(ctx context.Context, id int64) (*Device, error) {
	return scanDevice(GetDB().QueryRowContext(ctx, GetDeviceByID, id))
}

func (o *DeviceOperations) GetActiveDeviceByToken(ctx context.Context, token string) (*Device, error) {
	return scanDevice(GetDB().QueryRowContext(ctx, GetActiveDeviceByToken, token))
}

func (o *DeviceOperations) ListDevices(ctx context.Context, tenantID, restaurantID int64) ([]*Device, error) {
	rows, err := GetDB().QueryContext(ctx, ListDevices, tenantID, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer rows.Close()

	var devices []*Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

func (o *DeviceOperations) UpdateDevice(ctx context.Context, d *Device) error {
	result, err := GetDB().ExecContext(ctx, UpdateDevice,
		d.Name, d.Role, d.PrinterIP, d.PrinterPort, time.Now().UTC(),
		d.ID, d.TenantID, d.RestaurantID)
	if err != nil {
		return fmt.Errorf("failed to update device: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (o *DeviceOperations) UpdateLastSeen(ctx context.Context, id int64, seenAt time.Time) error {
	_, err := GetDB().ExecContext(ctx, UpdateDeviceLastSeen, seenAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update device last seen: %w", err)
	}
	return nil
}

func (o *DeviceOperations) UpdateError(ctx context.Context, id int64, message string, errorAt time.Time) error {
	_, err := GetDB().ExecContext(ctx, UpdateDeviceError, message, errorAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update device error: %w", err)
	}
	return nil
}

func (o *DeviceOperations) SetActive(ctx context.Context, tenantID, restaurantID, id int64, active bool) error {
	result, err := GetDB().ExecContext(ctx, SetDeviceActive, active, time.Now().UTC(), id, tenantID, restaurantID)
	if err != nil {
		return fmt.Errorf("failed to set device active: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDevice(row rowScanner) (*Device, error) {
	d := &Device{}
	err := row.Scan(
		&d.ID, &d.TenantID, &d.RestaurantID, &d.Name, &d.Role, &d.Token,
		&d.PrinterIP, &d.PrinterPort, &d.IsActive, &d.LastSeenAt,
		&d.LastErrorMessage, &d.LastErrorAt, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to scan device: %w", err)
	}
	return d, nil
}

type JobOperations struct{}

func (o *JobOperations) CreateJob(ctx context.Context, j *PrintJob) error {
	now := time.Now().UTC()
	result, err := GetDB().ExecContext(ctx, InsertJob,
		j.TenantID, j.RestaurantID, j.OrderID, j.DeviceID,
		j.Role, j.PayloadType, j.Payload, now, now)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get job id: %w", err)
	}
	j.ID = id
	j.Status = "pending"
	j.CreatedAt = now
	j.UpdatedAt = now
	return nil
}

func (o *JobOperations) GetJobByID(ctx context.Context, tenantID, restaurantID, id int64) (*PrintJob, error) {
	return scanJob(GetDB().QueryRowContext(ctx, GetJobByID, id, tenantID, restaurantID))
}

func (o *JobOperations) PendingJobs(ctx context.Context, tenantID, restaurantID int64, limit int) ([]*PrintJob, error) {
	rows, err := GetDB().QueryContext(ctx, PendingJobsForRestaurant, tenantID, restaurantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending jobs: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (o *JobOperations) ListJobs(ctx context.Context, filter JobFilter) ([]*PrintJob, error) {
	conditions := []string{"tenant_id = ?", "restaurant_id = ?"}
	args := []interface{}{filter.TenantID, filter.RestaurantID}

	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Role != "" {
		conditions = append(conditions, "role = ?")
		args = append(args, filter.Role)
	}
	if filter.DeviceID > 0 {
		conditions = append(conditions, "device_id = ?")
		args = append(args, filter.DeviceID)
	}

	query := "SELECT id, tenant_id, restaurant_id, order_id, device_id, role, payload_type, payload, status, target_ip, target_port, error_message, attempts, created_at, updated_at FROM print_jobs"
	query += " WHERE " + strings.Join(conditions, " AND ")
	query += " ORDER BY created_at DESC, id DESC"

	limit := 100
	if filter.Limit > 0 && filter.Limit <= 100 {
		limit = filter.Limit
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := GetDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (o *JobOperations) CountByStatus(ctx context.Context, tenantID, restaurantID int64) (map[string]int64, error) {
	rows, err := GetDB().QueryContext(ctx, CountJobsByStatus, tenantID, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan job count: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func (o *JobOperations) StaleJobs(ctx context.Context, cutoff time.Time) ([]*PrintJob, error) {
	rows, err := GetDB().QueryContext(ctx, StaleJobIDs, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query stale jobs: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (o *JobOperations) PurgeTerminal(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := GetDB().ExecContext(ctx, PurgeTerminalJobs, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge jobs: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected, nil
}

func scanJob(row rowScanner) (*PrintJob, error) {
	j := &PrintJob{}
	err := row.Scan(
		&j.ID, &j.TenantID, &j.RestaurantID, &j.OrderID, &j.DeviceID,
		&j.Role, &j.PayloadType, &j.Payload, &j.Status,
		&j.TargetIP, &j.TargetPort, &j.ErrorMessage, &j.Attempts,
		&j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}
	return j, nil
}

func scanJobs(rows *sql.Rows) ([]*PrintJob, error) {
	var jobs []*PrintJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

type WebhookOperations struct{}

func (o *WebhookOperations) CreateWebhook(ctx context.Context, w *Webhook) error {
	result, err := GetDB().ExecContext(ctx, InsertWebhook,
		w.Name, w.URL, w.Secret, w.EventsJSON, w.Enabled)
	if err != nil {
		return fmt.Errorf("failed to create webhook: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get webhook id: %w", err)
	}
	w.ID = id
	return nil
}

func (o *WebhookOperations) GetWebhookByID(ctx context.Context, id int64) (*Webhook, error) {
	w := &Webhook{}
	err := GetDB().QueryRowContext(ctx, GetWebhookByID, id).Scan(
		&w.ID, &w.Name, &w.URL, &w.Secret, &w.EventsJSON, &w.Enabled, &w.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get webhook: %w", err)
	}
	return w, nil
}

func (o *WebhookOperations) ListWebhooks(ctx context.Context) ([]*Webhook, error) {
	return o.queryWebhooks(ctx, ListWebhooks)
}

func (o *WebhookOperations) ListActiveWebhooksForEvent(ctx context.Context, event string) ([]*Webhook, error) {
	pattern := "%\"" + event + "\"%"
	return o.queryWebhooks(ctx, ListWebhooksForEvent, pattern)
}

func (o *WebhookOperations) queryWebhooks(ctx context.Context, query string, args ...interface{}) ([]*Webhook, error) {
	rows, err := GetDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhooks: %w", err)
	}
	defer rows.Close()

	var webhooks []*Webhook
	for rows.Next() {
		w := &Webhook{}
		if err := rows.Scan(
			&w.ID, &w.Name, &w.URL, &w.Secret, &w.EventsJSON, &w.Enabled, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan webhook: %w", err)
		}
		webhooks = append(webhooks, w)
	}
	return webhooks, rows.Err()
}

func (o *WebhookOperations) UpdateWebhook(ctx context.Context, w *Webhook) error {
	_, err := GetDB().ExecContext(ctx, UpdateWebhook,
		w.Name, w.URL, w.Secret, w.EventsJSON, w.Enabled, w.ID)
	if err != nil {
		return fmt.Errorf("failed to update webhook: %w", err)
	}
	return nil
}

func (o *WebhookOperations) DeleteWebhook(ctx context.Context, id int64) error {
	_, err := GetDB().ExecContext(ctx, DeleteWebhook, id)
	if err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}
	return nil
}

type SettingsOperations struct{}

func (o *SettingsOperations) GetSetting(ctx context.Context, key string) (*Setting, error) {
	s := &Setting{Key: key}
	err := GetDB().QueryRowContext(ctx, GetSetting, key).Scan(&s.Value, &s.Encrypted)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get setting: %w", err)
	}
	return s, nil
}

func (o *SettingsOperations) SetSetting(ctx context.Context, key, value string, encrypted bool) error {
	_, err := GetDB().ExecContext(ctx, SetSetting, key, value, encrypted, value, encrypted)
	if err != nil {
		return fmt.Errorf("failed to set setting: %w", err)
	}
	return nil
}

func (o *SettingsOperations) DeleteSetting(ctx context.Context, key string) error {
	_, err := GetDB().ExecContext(ctx, DeleteSetting, key)
	if err != nil {
		return fmt.Errorf("failed to delete setting: %w", err)
	}
	return nil
}

type AuditOperations struct{}

func (o *AuditOperations) CreateAuditLog(ctx context.Context, log *AuditLog) error {
	result, err := GetDB().ExecContext(ctx, InsertAuditLog,
		log.Action, log.EntityType, log.EntityID, log.DetailsJSON, log.IPAddress)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get audit log id: %w", err)
	}
	log.ID = id
	return nil
}

func (o *AuditOperations) ListAuditLogs(ctx context.Context, limit, offset int) ([]*AuditLog, error) {
	rows, err := GetDB().QueryContext(ctx, ListAuditLog, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	var logs []*AuditLog
	for rows.Next() {
		log := &AuditLog{}
		if err := rows.Scan(
			&log.ID, &log.Action, &log.EntityType, &log.EntityID,
			&log.DetailsJSON, &log.IPAddress, &log.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

type CounterOperations struct{}

func (o *CounterOperations) IncrementDailyCounter(ctx context.Context, deviceID int64, date time.Time) error {
	dateStr := date.Format("2006-01-02")
	_, err := GetDB().ExecContext(ctx, InsertPrintCounter, deviceID, dateStr, 1, 1)
	if err != nil {
		return fmt.Errorf("failed to increment daily counter: %w", err)
	}
	return nil
}

func (o *CounterOperations) GetCounters(ctx context.Context, deviceID int64, from, to time.Time) ([]*PrintCounter, error) {
	fromStr := from.Format("2006-01-02")
	toStr := to.Format("2006-01-02")
	rows, err := GetDB().QueryContext(ctx, GetPrintCountersByDateRange, deviceID, fromStr, toStr)
	if err != nil {
		return nil, fmt.Errorf("failed to get counters: %w", err)
	}
	defer rows.Close()

	var counters []*PrintCounter
	for rows.Next() {
		c := &PrintCounter{}
		var dateStr string
		if err := rows.Scan(&c.ID, &c.DeviceID, &dateStr, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan counter: %w", err)
		}
		c.Date, err = time.Parse("2006-01-02", dateStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse counter date %q: %w", dateStr, err)
		}
		counters = append(counters, c)
	}
	return counters, rows.Err()
}

var (
	Devices  = &DeviceOperations{}
	Jobs     = &JobOperations{}
	Webhooks = &WebhookOperations{}
	Settings = &SettingsOperations{}
	Audit    = &AuditOperations{}
	Counters = &CounterOperations{}
)
