package db

const (
	InsertDevice = `
		INSERT INTO devices (tenant_id, restaurant_id, name, role, token, printer_ip, printer_port, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	GetDeviceByID = `
		SELECT id, tenant_id, restaurant_id, name, role, token, printer_ip, printer_port, is_active, last_seen_at, last_error_message, last_error_at, created_at, updated_at
		FROM devices WHERE id = ?
	`

	GetActiveDeviceByToken = `
		SELECT id, tenant_id, restaurant_id, name, role, token, printer_ip, printer_port, is_active, last_seen_at, last_error_message, last_error_at, created_at, updated_at
		FROM devices WHERE token = ? AND is_active = 1
	`

	ListDevices = `
		SELECT id, tenant_id, restaurant_id, name, role, token, printer_ip, printer_port, is_active, last_seen_at, last_error_message, last_error_at, created_at, updated_at
		FROM devices WHERE tenant_id = ? AND restaurant_id = ? ORDER BY name ASC
	`

	UpdateDevice = `
		UPDATE devices SET name = ?, role = ?, printer_ip = ?, printer_port = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ? AND restaurant_id = ?
	`

	UpdateDeviceLastSeen = `
		UPDATE devices SET last_seen_at = ? WHERE id = ?
	`

	UpdateDeviceError = `
		UPDATE devices SET last_error_message = ?, last_error_at = ? WHERE id = ?
	`

	SetDeviceActive = `
		UPDATE devices SET is_active = ?, updated_at = ? WHERE id = ? AND tenant_id = ? AND restaurant_id = ?
	`
)

const (
	InsertJob = `
		INSERT INTO print_jobs (tenant_id, restaurant_id, order_id, device_id, role, payload_type, payload, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 'pending', ?, ?)
	`

	GetJobByID = `
		SELECT id, tenant_id, restaurant_id, order_id, device_id, role, payload_type, payload, status, target_ip, target_port, error_message, attempts, created_at, updated_at
		FROM print_jobs WHERE id = ? AND tenant_id = ? AND restaurant_id = ?
	`

	PendingJobsForRestaurant = `
		SELECT id, tenant_id, restaurant_id, order_id, device_id, role, payload_type, payload, status, target_ip, target_port, error_message, attempts, created_at, updated_at
		FROM print_jobs WHERE tenant_id = ? AND restaurant_id = ? AND status = 'pending'
		ORDER BY created_at ASC, id ASC LIMIT ?
	`

	ClaimCandidateJobs = `
		SELECT id, tenant_id, restaurant_id, order_id, device_id, role, payload_type, payload, status, target_ip, target_port, error_message, attempts, created_at, updated_at
		FROM print_jobs WHERE tenant_id = ? AND restaurant_id = ? AND status = 'pending'
		AND (device_id IS NULL OR device_id = ?)
		AND (device_id IS NOT NULL OR ? = 'general' OR role = ? OR role = 'general')
		ORDER BY created_at ASC, id ASC LIMIT ?
	`

	ClaimJob = `
		UPDATE print_jobs SET status = 'printing', device_id = ?, target_ip = ?, target_port = ?, updated_at = ?
		WHERE id = ? AND status = 'pending'
	`

	AckJobDone = `
		UPDATE print_jobs SET status = 'done', error_message = '', updated_at = ?
		WHERE id = ? AND device_id = ? AND status = 'printing'
	`

	AckJobFailed = `
		UPDATE print_jobs SET status = 'failed', error_message = ?, updated_at = ?
		WHERE id = ? AND device_id = ? AND status = 'printing'
	`

	StaleJobIDs = `
		SELECT id, tenant_id, restaurant_id, order_id, device_id, role, payload_type, payload, status, target_ip, target_port, error_message, attempts, created_at, updated_at
		FROM print_jobs WHERE status = 'printing' AND updated_at < ?
	`

	RequeueStaleJob = `
		UPDATE print_jobs SET status = 'pending', device_id = NULL, target_ip = '', target_port = 0, error_message = ?, attempts = attempts + 1, updated_at = ?
		WHERE id = ? AND status = 'printing'
	`

	CountJobsByStatus = `
		SELECT status, COUNT(*) FROM print_jobs WHERE tenant_id = ? AND restaurant_id = ? GROUP BY status
	`

	PurgeTerminalJobs = `
		DELETE FROM print_jobs WHERE status IN ('done', 'failed') AND updated_at < ?
	`
)

const (
	InsertWebhook = `
		INSERT INTO webhooks (name, url, secret, events_json, enabled)
		VALUES (?, ?, ?, ?, ?)
	`

	GetWebhookByID = `
		SELECT id, name, url, secret, events_json, enabled, created_at
		FROM webhooks WHERE id = ?
	`

	ListWebhooks = `
		SELECT id, name, url, secret, events_json, enabled, created_at
		FROM webhooks ORDER BY name ASC
	`

	ListWebhooksForEvent = `
		SELECT id, name, url, secret, events_json, enabled, created_at
		FROM webhooks WHERE enabled = 1 AND events_json LIKE ?
	`

	UpdateWebhook = `
		UPDATE webhooks SET name = ?, url = ?, secret = ?, events_json = ?, enabled = ? WHERE id = ?
	`

	DeleteWebhook = `DELETE FROM webhooks WHERE id = ?`
)

const (
	GetSetting = `SELECT value, encrypted FROM settings WHERE key = ?`

	SetSetting = `
		INSERT INTO settings (key, value, encrypted, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = ?, encrypted = ?, updated_at = CURRENT_TIMESTAMP
	`

	DeleteSetting = `DELETE FROM settings WHERE key = ?`
)

const (
	InsertAuditLog = `
		INSERT INTO audit_log (action, entity_type, entity_id, details_json, ip_address)
		VALUES (?, ?, ?, ?, ?)
	`

	ListAuditLog = `
		SELECT id, action, entity_type, entity_id, details_json, ip_address, created_at
		FROM audit_log ORDER BY created_at DESC LIMIT ? OFFSET ?
	`
)

const (
	InsertPrintCounter = `
		INSERT INTO print_counters (device_id, date, count)
		VALUES (?, ?, ?)
		ON CONFLICT(device_id, date) DO UPDATE SET count = count + ?
	`

	GetPrintCountersByDateRange = `
		SELECT id, device_id, date, count
		FROM print_counters WHERE device_id = ? AND date >= ? AND date <= ? ORDER BY date ASC
	`
)
