package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trustplatform/trustrun/internal/control"
)

func TestSplitAddrUnixPrefix(t *testing.T) {
	network, address := splitAddr("unix:/var/run/trustrun.sock")
	assert.Equal(t, "unix", network)
	assert.Equal(t, "/var/run/trustrun.sock", address)
}

func TestSplitAddrDefaultsToTCP(t *testing.T) {
	network, address := splitAddr("127.0.0.1:9100")
	assert.Equal(t, "tcp", network)
	assert.Equal(t, "127.0.0.1:9100", address)
}

func TestRemarshalRoundTripsMetadataSnapshot(t *testing.T) {
	body := map[string]interface{}{
		"state":       "Running",
		"cycle_count": float64(42),
	}
	var snap control.MetadataSnapshot
	assert.NoError(t, remarshal(body, &snap))
	assert.Equal(t, "Running", snap.State)
	assert.EqualValues(t, 42, snap.CycleCount)
}

func TestStateColorPassesThroughUnknownState(t *testing.T) {
	assert.Equal(t, "Boot", stateColor("Boot"))
}
