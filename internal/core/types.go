package core

import (
	"time"

	"github.com/tavola/printbridge/internal/db"
)

type Role string

const (
	RoleKitchen Role = "kitchen"
	RoleReceipt Role = "receipt"
	RoleBar     Role = "bar"
	// RoleGeneral is a wildcard on both sides: a general device picks up
	// jobs of any role, and a general job is visible to every device.
	RoleGeneral Role = "general"
)

func ValidRole(r Role) bool {
	switch r {
	case RoleKitchen, RoleReceipt, RoleBar, RoleGeneral:
		return true
	}
	return false
}

type JobStatus string

const (
	JobStatusPending  JobStatus = "pending"
	JobStatusPrinting JobStatus = "printing"
	JobStatusDone     JobStatus = "done"
	JobStatusFailed   JobStatus = "failed"
)

func TerminalStatus(s JobStatus) bool {
	return s == JobStatusDone || s == JobStatusFailed
}

// ConnectWindow is the liveness window for derived device connectivity.
// A device whose last_seen_at is older than this reports disconnected.
const ConnectWindow = 2 * time.Minute

// IsConnected derives connectivity from last_seen_at; it is never stored.
func IsConnected(lastSeenAt *time.Time, now time.Time) bool {
	if lastSeenAt == nil {
		return false
	}
	return now.Sub(*lastSeenAt) < ConnectWindow
}

// Eligible reports whether a pending job may be dispatched to a device.
// Visibility rules:
//   - the job and device must belong to the same tenant and restaurant
//   - a job addressed to a specific device is visible only to that device
//   - a general device sees jobs of any role
//   - otherwise the roles must match, or the job itself is general
func Eligible(job *db.PrintJob, device *db.Device) bool {
	if !device.IsActive {
		return false
	}
	if job.TenantID != device.TenantID || job.RestaurantID != device.RestaurantID {
		return false
	}
	if JobStatus(job.Status) != JobStatusPending {
		return false
	}
	if job.DeviceID != nil {
		return *job.DeviceID == device.ID
	}
	if Role(device.Role) == RoleGeneral {
		return true
	}
	return job.Role == device.Role || Role(job.Role) == RoleGeneral
}
