package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RouterStatus is the observed reachability state of a Router.
type RouterStatus string

const (
	RouterStatusUnknown RouterStatus = "unknown"
	RouterStatusOnline  RouterStatus = "online"
	RouterStatusOffline RouterStatus = "offline"
)

const (
	DefaultSSHPort              = 22
	DefaultMetricsRetentionDays = 30
	MinMetricsRetentionDays     = 1
	MaxMetricsRetentionDays     = 365
)

// Router is a monitored embedded device reachable over SSH.
type Router struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"not null;uniqueIndex" json:"name"`
	IPAddress string    `gorm:"not null;uniqueIndex" json:"ipAddress"`
	Hostname  string    `json:"hostname"`
	MAC       string    `gorm:"column:mac_address;uniqueIndex:,where:mac_address <> ''" json:"macAddress,omitempty"`
	SSHPort   int       `gorm:"default:22" json:"port"`

	Username string `json:"username"`
	// CredentialKey references the secret stored in the vault (C10); the
	// Router row itself never carries password or key material.
	CredentialKey string `json:"-"`

	// No gorm "default" tag: GORM's create path substitutes the column
	// default for any zero Go value, which would silently turn an explicit
	// monitoringEnabled=false back into true.
	MonitoringEnabled    bool `json:"monitoringEnabled"`
	MetricsRetentionDays int  `gorm:"default:30" json:"metricsRetentionDays"`

	Status   RouterStatus `gorm:"default:unknown" json:"status"`
	LastSeen *time.Time   `json:"lastSeen,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BeforeCreate mints an ID, normalises the MAC and fills in defaults.
func (r *Router) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Status == "" {
		r.Status = RouterStatusUnknown
	}
	if r.SSHPort == 0 {
		r.SSHPort = DefaultSSHPort
	}
	if r.MetricsRetentionDays == 0 {
		r.MetricsRetentionDays = DefaultMetricsRetentionDays
	}
	if r.MAC != "" {
		r.MAC = NormalizeMAC(r.MAC)
	}
	return nil
}

// BeforeUpdate keeps the MAC normalised on partial updates too.
func (r *Router) BeforeUpdate(tx *gorm.DB) error {
	if r.MAC != "" {
		r.MAC = NormalizeMAC(r.MAC)
	}
	return nil
}

// TableName overrides the default pluralisation, matching teacher convention.
func (Router) TableName() string {
	return "routers"
}

// NormalizeMAC lower-cases a colon-form MAC address for uniqueness comparisons.
func NormalizeMAC(mac string) string {
	return strings.ToLower(strings.TrimSpace(mac))
}

// MarkOnline transitions Router.status per the state machine in spec section 4 —
// never back to unknown once online/offline has been observed.
func (r *Router) MarkOnline(now time.Time) {
	r.Status = RouterStatusOnline
	r.LastSeen = &now
}

// MarkOffline records an explicit failed probe.
func (r *Router) MarkOffline() {
	r.Status = RouterStatusOffline
}
