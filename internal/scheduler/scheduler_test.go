package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveInterval_ByLabel(t *testing.T) {
	label, cronStr, ok := ResolveInterval("HOURLY")
	assert.True(t, ok)
	assert.Equal(t, Hourly, label)
	assert.Equal(t, "0 * * * *", cronStr)
}

func TestResolveInterval_ByCronString(t *testing.T) {
	label, cronStr, ok := ResolveInterval("*/15 * * * *")
	assert.True(t, ok)
	assert.Equal(t, Every15Minutes, label)
	assert.Equal(t, "*/15 * * * *", cronStr)
}

func TestResolveInterval_Unknown(t *testing.T) {
	_, _, ok := ResolveInterval("not-a-real-interval")
	assert.False(t, ok)
}

func TestScheduler_StartStopReconfigure(t *testing.T) {
	s := New(nil, nil)
	assert.False(t, s.IsRunning())

	assert.NoError(t, s.Start(Every5Minutes))
	assert.True(t, s.IsRunning())
	assert.Equal(t, Every5Minutes, s.CurrentInterval())

	assert.NoError(t, s.Reconfigure(Hourly))
	assert.Equal(t, Hourly, s.CurrentInterval())

	s.Stop(context.Background())
	assert.False(t, s.IsRunning())
}
