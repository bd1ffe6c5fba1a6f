package db

import (
	"time"
)

type Device struct {
	ID               int64      `json:"id"`
	TenantID         int64      `json:"tenant_id"`
	RestaurantID     int64      `json:"restaurant_id"`
	Name             string     `json:"name"`
	Role             string     `json:"role"`
	Token            string     `json:"-"`
	PrinterIP        string     `json:"printer_ip"`
	PrinterPort      int        `json:"printer_port"`
	IsActive         bool       `json:"is_active"`
	LastSeenAt       *time.Time `json:"last_seen_at"`
	LastErrorMessage string     `json:"last_error_message,omitempty"`
	LastErrorAt      *time.Time `json:"last_error_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type PrintJob struct {
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

type Webhook struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	URL        string    `json:"url"`
	Secret     string    `json:"secret,omitempty"`
	EventsJSON string    `json:"events_json"`
	Enabled    bool      `json:"enabled"`
	CreatedAt  time.Time `json:"created_at"`
}

type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	Encrypted bool      `json:"encrypted"`
	UpdatedAt time.Time `json:"updated_at"`
}

type AuditLog struct {
	ID          int64     `json:"id"`
	Action      string    `json:"action"`
	EntityType  string    `json:"entity_type"`
	EntityID    int64     `json:"entity_id"`
	DetailsJSON string    `json:"details_json"`
	IPAddress   string    `json:"ip_address"`
	CreatedAt   time.Time `json:"created_at"`
}

type PrintCounter struct {
	ID       int64     `json:"id"`
	DeviceID int64     `json:"device_id"`
	Date     time.Time `json:"date"`
	Count    int64     `json:"count"`
}

type JobFilter struct {
	TenantID     int64
	RestaurantID int64
	Status       string
	Role         string
	DeviceID     int64
	Limit        int
	Offset       int
}
