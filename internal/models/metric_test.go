package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestMetric_BeforeCreate_ClampsFutureTimestamp(t *testing.T) {
	future := time.Now().UTC().Add(1 * time.Hour)
	m := &Metric{Timestamp: future}
	assert.NoError(t, m.BeforeCreate(nil))
	assert.NotEmpty(t, m.ID)
	assert.False(t, m.Timestamp.After(time.Now().UTC()))
}

func TestMetric_BeforeCreate_FillsZeroTimestamp(t *testing.T) {
	m := &Metric{}
	assert.NoError(t, m.BeforeCreate(nil))
	assert.False(t, m.Timestamp.IsZero())
}

func TestSentinelMetric(t *testing.T) {
	routerID := uuid.New()
	m := SentinelMetric(routerID, "Device not reachable")
	assert.Equal(t, routerID, m.RouterID)
	assert.Equal(t, "Device not reachable", m.Error)
	assert.Empty(t, m.NetworkInterfaces)
}

func TestComputePercentage(t *testing.T) {
	assert.Equal(t, 0, ComputePercentage(10, 0))
	assert.Equal(t, 0, ComputePercentage(10, -5))
	assert.Equal(t, 50, ComputePercentage(50, 100))
	assert.Equal(t, 100, ComputePercentage(100, 100))
	assert.Equal(t, 33, ComputePercentage(1, 3))
}
