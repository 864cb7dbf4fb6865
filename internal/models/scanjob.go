package models

import "time"

// ScanJobStatus is the state machine spec section 4 fixes: pending -> running
// -> {completed, error}, terminal states absorbing.
type ScanJobStatus string

const (
	ScanJobPending   ScanJobStatus = "pending"
	ScanJobRunning   ScanJobStatus = "running"
	ScanJobCompleted ScanJobStatus = "completed"
	ScanJobError     ScanJobStatus = "error"
)

// ScanResult is the terminal payload of a ScanJob.
type ScanResult struct {
	Devices     []DiscoveredDevice `json:"devices"`
	PartialScan bool               `json:"partialScan"`
}

// ScanJob tracks one in-flight or completed subnet scan (spec section 3, 4.6).
type ScanJob struct {
	ID           string        `json:"jobId"`
	SubnetPrefix string        `json:"subnet"`
	Status       ScanJobStatus `json:"status"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
	Progress     int           `json:"progress"`
	Message      string        `json:"message"`
	Result       ScanResult    `json:"-"`
	Error        string        `json:"error,omitempty"`

	// credentials used to fingerprint candidate hosts; never serialised.
	Username string `json:"-"`
	Password string `json:"-"`
}

// DevicesFound mirrors the HTTP response's derived devicesFound field
// (spec section 6) without storing a redundant counter on the job itself.
func (j *ScanJob) DevicesFound() int {
	return len(j.Result.Devices)
}

// IsTerminal reports whether the job has reached an absorbing state.
func (j *ScanJob) IsTerminal() bool {
	return j.Status == ScanJobCompleted || j.Status == ScanJobError
}

// EligibleForEviction reports whether the job's last update is old enough
// for the registry's background sweep to discard it (spec section 3, 4.6).
func (j *ScanJob) EligibleForEviction(now time.Time, maxAge time.Duration) bool {
	return now.Sub(j.UpdatedAt) > maxAge
}

// NormalizeSubnetPrefix accepts a subnet with or without a trailing dot
// and returns the canonical trailing-dot form (spec section 6).
func NormalizeSubnetPrefix(subnet string) string {
	if subnet == "" {
		return subnet
	}
	if subnet[len(subnet)-1] != '.' {
		return subnet + "."
	}
	return subnet
}
