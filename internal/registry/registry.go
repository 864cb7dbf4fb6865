// Package registry implements the Job Registry component: an in-memory
// keyed store of ScanJobs with a background eviction sweep. It is the only
// shared mutable state in the core (spec section 5) and must be safe for
// concurrent create/update/get.
package registry

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/routerdiscovery/engine/internal/models"
)

const (
	evictionAge   = 30 * time.Minute
	sweepInterval = 5 * time.Minute
)

// Patch merges into an existing ScanJob's mutable fields; zero values are
// left untouched so callers only pass what's changing.
type Patch struct {
	Status   *models.ScanJobStatus
	Progress *int
	Message  *string
	Result   *models.ScanResult
	Error    *string
}

// Registry is the Job Registry, grounded on the teacher's
// ScannerService.scans map + cleanupExpiredScans ticker.
type Registry struct {
	mu           sync.RWMutex
	jobs         map[string]*models.ScanJob
	shutdownChan chan struct{}
	closeOnce    sync.Once
}

// New constructs a Registry and starts its background eviction sweep.
func New() *Registry {
	r := &Registry{
		jobs:         make(map[string]*models.ScanJob),
		shutdownChan: make(chan struct{}),
	}
	go r.sweepLoop()
	return r
}

// Create mints a new pending ScanJob and stores it (spec section 4.6).
func (r *Registry) Create(subnet, username, password string) *models.ScanJob {
	now := time.Now().UTC()
	job := &models.ScanJob{
		ID:           newJobID(),
		SubnetPrefix: models.NormalizeSubnetPrefix(subnet),
		Status:       models.ScanJobPending,
		CreatedAt:    now,
		UpdatedAt:    now,
		Progress:     0,
		Username:     username,
		Password:     password,
	}
	r.mu.Lock()
	r.jobs[job.ID] = job
	r.mu.Unlock()
	return job
}

// Get returns a copy of the job, or false if it doesn't exist (including
// because it was evicted).
func (r *Registry) Get(jobID string) (models.ScanJob, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return models.ScanJob{}, false
	}
	return *job, true
}

// Update atomically merges patch into the job identified by jobID, bumping
// its last-update timestamp. Progress never moves backwards (spec section
// 3's monotonicity invariant).
func (r *Registry) Update(jobID string, patch Patch) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return false
	}
	if patch.Status != nil {
		job.Status = *patch.Status
	}
	if patch.Progress != nil && *patch.Progress > job.Progress {
		job.Progress = *patch.Progress
	}
	if patch.Message != nil {
		job.Message = *patch.Message
	}
	if patch.Result != nil {
		job.Result = *patch.Result
	}
	if patch.Error != nil {
		job.Error = *patch.Error
	}
	job.UpdatedAt = time.Now().UTC()
	return true
}

// Start marks a pending job running; re-starting a non-pending job is a
// no-op (spec section 4.6).
func (r *Registry) Start(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok || job.Status != models.ScanJobPending {
		return false
	}
	job.Status = models.ScanJobRunning
	job.UpdatedAt = time.Now().UTC()
	return true
}

// Shutdown stops the background sweep goroutine. Idempotent.
func (r *Registry) Shutdown() {
	r.closeOnce.Do(func() { close(r.shutdownChan) })
}

func (r *Registry) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.shutdownChan:
			return
		case <-ticker.C:
			r.evictStale()
		}
	}
}

func (r *Registry) evictStale() {
	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, job := range r.jobs {
		if job.EligibleForEviction(now, evictionAge) {
			log.Printf("[Registry] evicting stale scan job %s (last update %s)", id, job.UpdatedAt)
			delete(r.jobs, id)
		}
	}
}

func newJobID() string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("scan_%d_%s", time.Now().UnixMilli(), hex.EncodeToString(buf))
}
