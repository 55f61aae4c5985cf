package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/trustplatform/trustrun/internal/ioimage"
)

func TestRecordCycleAccumulatesMinMaxMean(t *testing.T) {
	r := NewRegistry()
	r.RecordCycle(10 * time.Millisecond)
	r.RecordCycle(30 * time.Millisecond)
	r.RecordCycle(20 * time.Millisecond)

	snap := r.Snapshot()
	assert.EqualValues(t, 3, snap.Count)
	assert.Equal(t, 10*time.Millisecond, snap.Min)
	assert.Equal(t, 30*time.Millisecond, snap.Max)
	assert.Equal(t, 20*time.Millisecond, snap.Mean())
}

func TestResetClearsStatsOnly(t *testing.T) {
	r := NewRegistry()
	r.RecordCycle(5 * time.Millisecond)
	r.Publish(ioimage.DriverStatus{Driver: "modbus-tcp", Health: ioimage.HealthOk})

	r.Reset()

	assert.EqualValues(t, 0, r.Snapshot().Count)
	assert.Contains(t, r.DriverStatuses(), "modbus-tcp")
}

func TestPublishTracksMostRecentStatusPerDriver(t *testing.T) {
	r := NewRegistry()
	r.Publish(ioimage.DriverStatus{Driver: "modbus-tcp", Health: ioimage.HealthOk})
	r.Publish(ioimage.DriverStatus{Driver: "modbus-tcp", Health: ioimage.HealthFaulted})

	statuses := r.DriverStatuses()
	assert.Equal(t, ioimage.HealthFaulted, statuses["modbus-tcp"].Health)
}

func TestMeanIsZeroWithNoSamples(t *testing.T) {
	var s CycleStats
	assert.Equal(t, time.Duration(0), s.Mean())
}
