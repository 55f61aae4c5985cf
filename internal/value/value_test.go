package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intType(reg *TypeRegistry, name string, k Kind) TypeID {
	id, err := reg.Register(TypeDescriptor{Name: name, Kind: TypePrimitive, Primitive: k})
	if err != nil {
		panic(err)
	}
	return id
}

func TestDefaultValueCoerceRoundTrip(t *testing.T) {
	reg := NewTypeRegistry()
	intID := intType(reg, "INT", KindS16)
	reg.Seal()

	def, err := DefaultValue(reg, intID, DefaultProfile())
	require.NoError(t, err)
	assert.Equal(t, int64(0), def.AsInt())

	coerced, err := Coerce(reg, def, intID)
	require.NoError(t, err)
	assert.Equal(t, def.Kind, coerced.Kind)
	assert.Equal(t, def.AsInt(), coerced.AsInt())

	v := Int(KindS16, 7)
	same, err := Coerce(reg, v, intID)
	require.NoError(t, err)
	assert.Equal(t, v.AsInt(), same.AsInt())
}

func TestCoerceWideningAndNarrowingRejected(t *testing.T) {
	reg := NewTypeRegistry()
	dint := intType(reg, "DINT", KindS32)
	sint := intType(reg, "SINT", KindS8)
	reg.Seal()

	v := Int(KindS8, 5)
	widened, err := Coerce(reg, v, dint)
	require.NoError(t, err)
	assert.Equal(t, KindS32, widened.Kind)
	assert.Equal(t, int64(5), widened.AsInt())

	wide := Int(KindS32, 500)
	_, err = Coerce(reg, wide, sint)
	require.Error(t, err)
	var f *Fault
	require.ErrorAs(t, err, &f)
	assert.Equal(t, FaultTypeMismatch, f.Kind)
}

func TestIndexOutOfBoundsLeavesArrayUnchanged(t *testing.T) {
	reg := NewTypeRegistry()
	intID := intType(reg, "INT", KindS16)
	arrID, err := reg.Register(TypeDescriptor{
		Kind:     TypeArray,
		ElemType: intID,
		Bounds:   [][2]int64{{0, 2}},
	})
	require.NoError(t, err)
	reg.Seal()

	arr, err := DefaultValue(reg, arrID, DefaultProfile())
	require.NoError(t, err)

	_, ok := arr.WithElem(5, Int(KindS16, 9))
	assert.False(t, ok)
	assert.Len(t, arr.Elems(), 3)
}

func TestBinaryOperatorOverflow(t *testing.T) {
	a := Int(KindS8, 120)
	b := Int(KindS8, 10)
	_, err := ApplyBinary(OpAdd, a, b)
	require.Error(t, err)
	var f *Fault
	require.ErrorAs(t, err, &f)
	assert.Equal(t, FaultOverflow, f.Kind)
}

func TestDivisionByZero(t *testing.T) {
	a := Int(KindS32, 10)
	b := Int(KindS32, 0)
	_, err := ApplyBinary(OpDiv, a, b)
	require.Error(t, err)
	var f *Fault
	require.ErrorAs(t, err, &f)
	assert.Equal(t, FaultDivisionByZero, f.Kind)
}

func TestNaNComparisonIsFalse(t *testing.T) {
	nan := Real(KindF64, nan())
	eq, err := ApplyBinary(OpEq, nan, nan)
	require.NoError(t, err)
	assert.False(t, eq.AsBool())

	ne, err := ApplyBinary(OpNe, nan, nan)
	require.NoError(t, err)
	assert.True(t, ne.AsBool())
}

func nan() float64 {
	var zero float64
	return zero / zero
}

func TestPartialBitAccess(t *testing.T) {
	// Global in AT %IX0.3 : BOOL; driver writes inputs[0] = 0b0000_1000.
	byteVal := Uint(KindB8, 0b0000_1000)
	bit, err := ReadPartial(byteVal, PartialBit, 3)
	require.NoError(t, err)
	assert.True(t, bit.AsBool())

	cleared, err := WritePartial(byteVal, PartialBit, 3, Bool(false))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), cleared.AsUint())
}
