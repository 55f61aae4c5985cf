package control

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustplatform/trustrun/internal/bytecode"
	"github.com/trustplatform/trustrun/internal/eval"
	"github.com/trustplatform/trustrun/internal/metrics"
	"github.com/trustplatform/trustrun/internal/runtime"
	"github.com/trustplatform/trustrun/internal/scheduler"
	"github.com/trustplatform/trustrun/internal/trustlog"
	"github.com/trustplatform/trustrun/internal/value"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	reg := value.NewTypeRegistry()
	reg.Seal()
	rt, err := runtime.New(runtime.Config{
		Registry: reg,
		Program:  eval.NewProgram(),
		Profile:  value.DefaultProfile(),
	})
	require.NoError(t, err)
	rt.Storage.DeclareGlobal("counter", value.Int(value.KindS32, 7), false)

	runner := scheduler.NewRunner(scheduler.Config{
		Runtime:       rt,
		Clock:         scheduler.NewManualClock(),
		CommandBuffer: 4,
	})

	strings := bytecode.NewStringTable()
	session := NewDebugSession(strings)

	return NewServer(runner, metrics.NewRegistry(), session, trustlog.Discard, "secret")
}

func TestMetadataSnapshotReportsState(t *testing.T) {
	s := newTestServer(t)
	resp := s.Handle(context.Background(), Request{Type: ReqMetadataSnapshot}, "local", false)

	assert.True(t, resp.OK)
	snap, ok := resp.Body.(MetadataSnapshot)
	require.True(t, ok)
	assert.Equal(t, "Boot", snap.State)
}

func TestTCPRequestWithoutTokenIsRejected(t *testing.T) {
	s := newTestServer(t)
	resp := s.Handle(context.Background(), Request{Type: ReqMetadataSnapshot}, "1.2.3.4", true)

	assert.False(t, resp.OK)
	assert.Contains(t, resp.Error, "auth token")
}

func TestTCPRequestWithValidTokenSucceeds(t *testing.T) {
	s := newTestServer(t)
	resp := s.Handle(context.Background(), Request{Type: ReqMetadataSnapshot, AuthToken: "secret"}, "1.2.3.4", true)

	assert.True(t, resp.OK)
}

func TestVariableWriteAppliesThroughMeshApply(t *testing.T) {
	s := newTestServer(t)
	req := Request{
		Type:   ReqVariableWrite,
		Names:  []string{"counter"},
		Values: []RequestValue{{Kind: "DINT", Value: 42}},
	}
	resp := s.Handle(context.Background(), req, "local", false)
	assert.True(t, resp.OK)
}

func TestUnknownRequestTypeReturnsError(t *testing.T) {
	s := newTestServer(t)
	resp := s.Handle(context.Background(), Request{Type: "bogus"}, "local", false)
	assert.False(t, resp.OK)
}

func TestBreakpointSetRejectsUnknownFile(t *testing.T) {
	s := newTestServer(t)
	resp := s.Handle(context.Background(), Request{Type: ReqBreakpointSet, File: "missing.st", Line: 1, Column: 1}, "local", false)
	assert.False(t, resp.OK)
}

func TestRateLimiterBlocksBurstExceeded(t *testing.T) {
	l := NewLimiter(1, 1)
	assert.True(t, l.Allow("1.2.3.4"))
	assert.False(t, l.Allow("1.2.3.4"))
	assert.True(t, l.Allow("5.6.7.8"), "a different address has its own bucket")
}

func TestRateLimiterDisabledAlwaysAllows(t *testing.T) {
	l := NewLimiter(0, 0)
	for i := 0; i < 10; i++ {
		assert.True(t, l.Allow("1.2.3.4"))
	}
}
