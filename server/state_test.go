package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunStateString(t *testing.T) {
	assert.Equal(t, "uninitialized", Uninitialized.String())
	assert.Equal(t, "initializing", Initializing.String())
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "stopping", Stopping.String())
	assert.Equal(t, "stopped", Stopped.String())
	assert.Equal(t, "unknown", RunState(42).String())
}

func TestHealthStateString(t *testing.T) {
	assert.Equal(t, "ok", HealthOk.String())
	assert.Equal(t, "failed during initialization", HealthFailedInit.String())
	assert.Equal(t, "failed while running", HealthFailedRun.String())
	assert.Equal(t, "unknown", HealthState(42).String())
}
