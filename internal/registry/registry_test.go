package registry

import (
	"testing"

	"github.com/routerdiscovery/engine/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestRegistry_CreateAndGet(t *testing.T) {
	r := New()
	defer r.Shutdown()

	job := r.Create("192.168.1", "root", "secret")
	assert.Equal(t, models.ScanJobPending, job.Status)
	assert.Equal(t, "192.168.1.", job.SubnetPrefix)
	assert.Contains(t, job.ID, "scan_")

	got, ok := r.Get(job.ID)
	assert.True(t, ok)
	assert.Equal(t, job.ID, got.ID)
}

func TestRegistry_Get_Missing(t *testing.T) {
	r := New()
	defer r.Shutdown()

	_, ok := r.Get("scan_nonexistent")
	assert.False(t, ok)
}

func TestRegistry_Start(t *testing.T) {
	r := New()
	defer r.Shutdown()

	job := r.Create("192.168.1", "root", "secret")
	assert.True(t, r.Start(job.ID))

	got, _ := r.Get(job.ID)
	assert.Equal(t, models.ScanJobRunning, got.Status)

	// starting again is a no-op once not pending
	assert.False(t, r.Start(job.ID))
}

func TestRegistry_Update_ProgressMonotonic(t *testing.T) {
	r := New()
	defer r.Shutdown()

	job := r.Create("192.168.1", "root", "secret")
	high, low := 50, 10

	assert.True(t, r.Update(job.ID, Patch{Progress: &high}))
	got, _ := r.Get(job.ID)
	assert.Equal(t, 50, got.Progress)

	// a lower progress value must never move the counter backwards
	r.Update(job.ID, Patch{Progress: &low})
	got, _ = r.Get(job.ID)
	assert.Equal(t, 50, got.Progress)
}

func TestRegistry_Update_Missing(t *testing.T) {
	r := New()
	defer r.Shutdown()

	progress := 10
	assert.False(t, r.Update("scan_nonexistent", Patch{Progress: &progress}))
}

func TestRegistry_Update_TerminalFields(t *testing.T) {
	r := New()
	defer r.Shutdown()

	job := r.Create("192.168.1", "root", "secret")
	status := models.ScanJobCompleted
	message := "Scan complete"
	result := models.ScanResult{Devices: []models.DiscoveredDevice{{IPAddress: "192.168.1.1"}}}

	r.Update(job.ID, Patch{Status: &status, Message: &message, Result: &result})

	got, _ := r.Get(job.ID)
	assert.Equal(t, models.ScanJobCompleted, got.Status)
	assert.Equal(t, "Scan complete", got.Message)
	assert.Equal(t, 1, got.DevicesFound())
}
