package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MemoryUsage is the parsed view of a router's RAM accounting.
type MemoryUsage struct {
	TotalKB    int64 `json:"totalKB"`
	FreeKB     int64 `json:"freeKB"`
	UsedKB     int64 `json:"usedKB"`
	Percentage int   `json:"percentage"`
}

// DiskUsage is the parsed view of `df -h /`, with the original strings
// preserved for display (spec section 3).
type DiskUsage struct {
	TotalBytes int64  `json:"totalBytes"`
	FreeBytes  int64  `json:"freeBytes"`
	UsedBytes  int64  `json:"usedBytes"`
	Percentage int    `json:"percentage"`
	TotalRaw   string `json:"totalRaw"`
	UsedRaw    string `json:"usedRaw"`
	FreeRaw    string `json:"freeRaw"`
}

// InterfaceStatus is the link-state of a NetworkInterface entry.
type InterfaceStatus string

const (
	InterfaceUp   InterfaceStatus = "up"
	InterfaceDown InterfaceStatus = "down"
)

// NetworkInterface is one row of the ifconfig/ip-link block parse.
type NetworkInterface struct {
	Name    string          `json:"name"`
	IPv4    string          `json:"ipv4,omitempty"`
	MAC     string          `json:"mac,omitempty"`
	RXBytes int64           `json:"rxBytes"`
	TXBytes int64           `json:"txBytes"`
	Status  InterfaceStatus `json:"status"`
}

// NetworkInterfaces is a GORM-serialisable ordered sequence of interfaces.
type NetworkInterfaces []NetworkInterface

// Metric is one telemetry capture for a Router (spec section 3).
type Metric struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	RouterID uuid.UUID `gorm:"type:uuid;not null;index" json:"routerId"`

	Timestamp time.Time `gorm:"index" json:"timestamp"`
	Uptime    string    `json:"uptime"`
	CPULoad   float64   `json:"cpuLoad"`

	MemoryUsage MemoryUsage `gorm:"embedded;embeddedPrefix:mem_" json:"memoryUsage"`
	DiskUsage   DiskUsage   `gorm:"embedded;embeddedPrefix:disk_" json:"diskUsage"`

	NetworkInterfaces NetworkInterfaces `gorm:"serializer:json" json:"networkInterfaces"`
	WirelessClients   int               `json:"wirelessClients"`

	// Error, when non-empty, marks this as a sentinel metric (spec section 4.5):
	// all numeric fields are zero and this string explains why.
	Error string `json:"error,omitempty"`
}

// BeforeCreate mints an ID and clamps the timestamp to "now" at the latest,
// enforcing the "never in the future" invariant (spec section 3).
func (m *Metric) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	if now := time.Now().UTC(); m.Timestamp.After(now) {
		m.Timestamp = now
	}
	return nil
}

// TableName overrides the default pluralisation.
func (Metric) TableName() string {
	return "metrics"
}

// SentinelMetric builds the structurally-complete, all-zero Metric the
// Collector returns when a Router cannot be reached or shelled into
// (spec section 4.5 steps 1-2).
func SentinelMetric(routerID uuid.UUID, reason string) *Metric {
	return &Metric{
		ID:                uuid.New(),
		RouterID:          routerID,
		Timestamp:         time.Now().UTC(),
		NetworkInterfaces: NetworkInterfaces{},
		Error:             reason,
	}
}

// ComputePercentage implements round(used/total*100) with total<=0 => 0,
// matching the Memory percentage invariant (spec section 3).
func ComputePercentage(used, total int64) int {
	if total <= 0 {
		return 0
	}
	return int((float64(used)/float64(total))*100 + 0.5)
}
