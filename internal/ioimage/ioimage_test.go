package ioimage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustplatform/trustrun/internal/storage"
	"github.com/trustplatform/trustrun/internal/value"
)

func newRegistry(t *testing.T) (*value.TypeRegistry, value.TypeID) {
	t.Helper()
	reg := value.NewTypeRegistry()
	bo, err := reg.Register(value.TypeDescriptor{Name: "BOOL", Kind: value.TypePrimitive, Primitive: value.KindBool})
	require.NoError(t, err)
	reg.Seal()
	return reg, bo
}

func TestParseIoAddressBitForm(t *testing.T) {
	a, err := ParseIoAddress("%IX0.3")
	require.NoError(t, err)
	assert.Equal(t, AreaInput, a.Area)
	assert.Equal(t, SizeBit, a.Size)
	assert.EqualValues(t, 0, a.Byte)
	assert.Equal(t, 3, a.Bit)
	assert.Equal(t, "%IX0.3", a.String())
}

func TestParseIoAddressImplicitBit(t *testing.T) {
	a, err := ParseIoAddress("%Q0.3")
	require.NoError(t, err)
	assert.Equal(t, SizeBit, a.Size)
	assert.Equal(t, 3, a.Bit)
}

func TestParseIoAddressWildcard(t *testing.T) {
	a, err := ParseIoAddress("%M*")
	require.NoError(t, err)
	assert.True(t, a.Wildcard)
	assert.Equal(t, AreaMemory, a.Area)
}

func TestParseIoAddressWord(t *testing.T) {
	a, err := ParseIoAddress("%QW4")
	require.NoError(t, err)
	assert.Equal(t, SizeWord, a.Size)
	assert.EqualValues(t, 4, a.Byte)
	assert.Equal(t, -1, a.Bit)
}

func TestParseIoAddressRejectsMissingPercent(t *testing.T) {
	_, err := ParseIoAddress("IX0.3")
	require.Error(t, err)
}

// Scenario 6: a driver writes inputs[0] = 0b0000_1000; after read_inputs a
// BOOL global bound to %IX0.3 reads TRUE. Writing FALSE to a %QX0.3-bound
// global clears bit 3 of outputs[0] after write_outputs.
func TestBitMappingRoundTrip(t *testing.T) {
	reg, bo := newRegistry(t)
	st := storage.New(reg)
	st.DeclareGlobal("in_bit", value.Bool(false), false)
	st.DeclareGlobal("out_bit", value.Bool(true), false)

	img := NewProcessImage(1, 1, 0)
	img.Output[0] = 0xFF

	inAddr, err := ParseIoAddress("%IX0.3")
	require.NoError(t, err)
	outAddr, err := ParseIoAddress("%QX0.3")
	require.NoError(t, err)

	bindings := []Binding{
		{Addr: inAddr, Ref: st.RefForGlobal("in_bit"), Type: bo},
		{Addr: outAddr, Ref: st.RefForGlobal("out_bit"), Type: bo},
	}

	img.Input[0] = 0b0000_1000
	require.NoError(t, ReadInputs(img, bindings, reg, value.DefaultProfile(), st))
	got, err := st.ReadByRef(st.RefForGlobal("in_bit"))
	require.NoError(t, err)
	assert.True(t, got.AsBool())

	require.NoError(t, st.WriteByRef(st.RefForGlobal("out_bit"), value.Bool(false)))
	require.NoError(t, WriteOutputs(img, bindings, st))
	assert.Equal(t, byte(0), img.Output[0]&(1<<3))
	assert.Equal(t, byte(0xF7), img.Output[0])
}

func TestValidateBindingsReportsUnresolvedWildcards(t *testing.T) {
	ref := &value.Reference{Name: "dangling"}
	err := ValidateBindings([]Binding{{Addr: IoAddress{Wildcard: true}, Ref: ref}})
	require.Error(t, err)
	var uw *UnresolvedWildcardError
	require.ErrorAs(t, err, &uw)
	assert.Contains(t, uw.Names, "dangling")
}

func TestValidateBindingsAcceptsResolved(t *testing.T) {
	addr, err := ParseIoAddress("%IB0")
	require.NoError(t, err)
	err = ValidateBindings([]Binding{{Addr: addr, Ref: &value.Reference{Name: "x"}}})
	assert.NoError(t, err)
}

func TestExpandBindingArray(t *testing.T) {
	reg := value.NewTypeRegistry()
	usint, err := reg.Register(value.TypeDescriptor{Name: "USINT", Kind: value.TypePrimitive, Primitive: value.KindU8})
	require.NoError(t, err)
	arr, err := reg.Register(value.TypeDescriptor{
		Name: "ARR3", Kind: value.TypeArray, ElemType: usint, Bounds: [][2]int64{{0, 2}},
	})
	require.NoError(t, err)
	reg.Seal()

	addr, err := ParseIoAddress("%IB0")
	require.NoError(t, err)
	base := &value.Reference{Name: "arr"}
	bindings, err := ExpandBinding(reg, base, arr, addr)
	require.NoError(t, err)
	require.Len(t, bindings, 3)
	assert.EqualValues(t, 0, bindings[0].Addr.Byte)
	assert.EqualValues(t, 1, bindings[1].Addr.Byte)
	assert.EqualValues(t, 2, bindings[2].Addr.Byte)
}

func TestExpandBindingStructHonorsRelativeAddressOverride(t *testing.T) {
	reg := value.NewTypeRegistry()
	usint, err := reg.Register(value.TypeDescriptor{Name: "USINT", Kind: value.TypePrimitive, Primitive: value.KindU8})
	require.NoError(t, err)
	uint16T, err := reg.Register(value.TypeDescriptor{Name: "UINT", Kind: value.TypePrimitive, Primitive: value.KindU16})
	require.NoError(t, err)
	st, err := reg.Register(value.TypeDescriptor{
		Name: "REC", Kind: value.TypeStruct,
		Fields: []value.FieldDecl{
			{Name: "a", Type: usint, RelativeAddress: -1},
			{Name: "b", Type: uint16T, RelativeAddress: 4},
		},
	})
	require.NoError(t, err)
	reg.Seal()

	addr, err := ParseIoAddress("%IB0")
	require.NoError(t, err)
	base := &value.Reference{Name: "rec"}
	bindings, err := ExpandBinding(reg, base, st, addr)
	require.NoError(t, err)
	require.Len(t, bindings, 2)
	assert.EqualValues(t, 0, bindings[0].Addr.Byte)
	assert.EqualValues(t, 4, bindings[1].Addr.Byte)
}

func TestDriverLoopClassifiesErrorsByPolicy(t *testing.T) {
	img := NewProcessImage(1, 1, 0)
	sink := &collectingSink{}

	ok := &fakeDriver{name: "ok"}
	warn := &fakeDriver{name: "warn", err: assertErr{}}
	ignore := &fakeDriver{name: "ignore", err: assertErr{}}

	err := RunDriverReads(context.Background(), img, []RegisteredDriver{
		{Driver: ok, Policy: PolicyFault},
		{Driver: warn, Policy: PolicyWarn},
		{Driver: ignore, Policy: PolicyIgnore},
	}, sink)
	require.NoError(t, err)
	require.Len(t, sink.statuses, 3)
	assert.Equal(t, HealthOk, sink.statuses[0].Health)
	assert.Equal(t, HealthDegraded, sink.statuses[1].Health)
	assert.Equal(t, HealthOk, sink.statuses[2].Health)
}

func TestDriverLoopFaultPolicyEscalates(t *testing.T) {
	img := NewProcessImage(1, 1, 0)
	faulting := &fakeDriver{name: "bus", err: assertErr{}}
	err := RunDriverReads(context.Background(), img, []RegisteredDriver{{Driver: faulting, Policy: PolicyFault}}, nil)
	require.Error(t, err)
	var f *value.Fault
	require.ErrorAs(t, err, &f)
	assert.Equal(t, value.FaultIoDriver, f.Kind)
}

type fakeDriver struct {
	name string
	err  error
}

func (d *fakeDriver) Name() string                                       { return d.name }
func (d *fakeDriver) ReadInputs(ctx context.Context, buf []byte) error   { return d.err }
func (d *fakeDriver) WriteOutputs(ctx context.Context, buf []byte) error { return d.err }

type collectingSink struct {
	statuses []DriverStatus
}

func (s *collectingSink) Publish(st DriverStatus) { s.statuses = append(s.statuses, st) }

type assertErr struct{}

func (assertErr) Error() string { return "driver failure" }
