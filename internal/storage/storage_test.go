package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustplatform/trustrun/internal/value"
)

func newTestRegistry() *value.TypeRegistry {
	reg := value.NewTypeRegistry()
	reg.Seal()
	return reg
}

func TestGlobalReadWriteRoundTrip(t *testing.T) {
	s := New(newTestRegistry())
	s.DeclareGlobal("c", value.Int(value.KindS16, 0), false)

	ref := s.RefForGlobal("c")
	require.NoError(t, s.WriteByRef(ref, value.Int(value.KindS16, 3)))
	got, err := s.ReadByRef(ref)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.AsInt())
}

func TestFrameStackStrictNesting(t *testing.T) {
	s := New(newTestRegistry())
	f1 := s.PushFrame("A")
	f2 := s.PushFrame("B")
	assert.NotEqual(t, f1.ID, f2.ID)

	popped, err := s.PopFrame()
	require.NoError(t, err)
	assert.Equal(t, f2.ID, popped.ID)

	popped, err = s.PopFrame()
	require.NoError(t, err)
	assert.Equal(t, f1.ID, popped.ID)

	_, err = s.PopFrame()
	require.Error(t, err)
}

func TestRefToPoppedFrameLocalFails(t *testing.T) {
	s := New(newTestRegistry())
	fr := s.PushFrame("A")
	s.SetLocal(fr, "x", value.Int(value.KindS16, 1))
	ref := s.RefForLocal(fr, "x")

	_, err := s.PopFrame()
	require.NoError(t, err)

	_, err = s.ReadByRef(ref)
	require.Error(t, err)
}

func TestRevertRollsBackJournal(t *testing.T) {
	s := New(newTestRegistry())
	s.DeclareGlobal("g", value.Int(value.KindS32, 1), false)

	snap := s.Snapshot()
	require.NoError(t, s.SetGlobal("g", value.Int(value.KindS32, 99)))
	v, _ := s.GetGlobal("g")
	assert.Equal(t, int64(99), v.AsInt())

	s.Revert(snap)
	v, _ = s.GetGlobal("g")
	assert.Equal(t, int64(1), v.AsInt())
}

func TestInstanceFieldRevertOnFault(t *testing.T) {
	s := New(newTestRegistry())
	id := s.CreateInstance(1, map[string]value.Value{"x": value.Int(value.KindS16, 0)})

	snap := s.Snapshot()
	require.NoError(t, s.SetInstanceField(id, "x", value.Int(value.KindS16, 42)))
	s.Revert(snap)

	got, err := s.GetInstanceField(id, "x")
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.AsInt())
}
