package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apx-embedded/goapx/internal/apx"
)

func TestParseInitValueUnsigned(t *testing.T) {
	attr, err := ParsePortAttributes("=255")
	require.NoError(t, err)
	assert.Equal(t, uint64(255), attr.InitValue)

	attr, err = ParsePortAttributes("=0xFFFF")
	require.NoError(t, err)
	assert.Equal(t, uint64(0xFFFF), attr.InitValue)
}

func TestParseInitValueSigned(t *testing.T) {
	attr, err := ParsePortAttributes("=-1")
	require.NoError(t, err)
	assert.Equal(t, int64(-1), attr.InitValue)
}

func TestParseInitValueString(t *testing.T) {
	attr, err := ParsePortAttributes(`="InvalidName"`)
	require.NoError(t, err)
	assert.Equal(t, "InvalidName", attr.InitValue)
}

func TestParseInitValueList(t *testing.T) {
	attr, err := ParsePortAttributes("={0xFFFF, 0}")
	require.NoError(t, err)
	require.IsType(t, []interface{}{}, attr.InitValue)
	list := attr.InitValue.([]interface{})
	require.Len(t, list, 2)
	assert.Equal(t, uint64(0xFFFF), list[0])
	assert.Equal(t, uint64(0), list[1])
}

func TestParseInitValueNestedList(t *testing.T) {
	attr, err := ParsePortAttributes("={{0xFFFF,0},{0xFFFF,0}}")
	require.NoError(t, err)
	list := attr.InitValue.([]interface{})
	require.Len(t, list, 2)
	inner := list[0].([]interface{})
	require.Len(t, inner, 2)
	assert.Equal(t, uint64(0xFFFF), inner[0])
}

func TestParseEmptyInitList(t *testing.T) {
	attr, err := ParsePortAttributes("={}")
	require.NoError(t, err)
	assert.Len(t, attr.InitValue.([]interface{}), 0)
}

func TestParseParameterAttribute(t *testing.T) {
	attr, err := ParsePortAttributes("P")
	require.NoError(t, err)
	assert.True(t, attr.IsParameter)
	assert.False(t, attr.IsQueued)
}

func TestParseQueuedAttribute(t *testing.T) {
	attr, err := ParsePortAttributes("Q[10]")
	require.NoError(t, err)
	assert.True(t, attr.IsQueued)
	assert.Equal(t, uint32(10), attr.QueueLength)
}

func TestParseQueueLengthZero(t *testing.T) {
	_, err := ParsePortAttributes("Q[0]")
	assert.True(t, apx.IsCode(err, apx.ErrValueRange))
}

func TestParseCombinedPortAttributes(t *testing.T) {
	attr, err := ParsePortAttributes("=7, P")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), attr.InitValue)
	assert.True(t, attr.IsParameter)
}

func TestParseInvalidPortAttribute(t *testing.T) {
	_, err := ParsePortAttributes("=1, X")
	require.Error(t, err)
	assert.True(t, apx.IsCode(err, apx.ErrInvalidAttribute))
	var e *apx.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, 4, e.Position)
}

func TestParseValueTable(t *testing.T) {
	attr, err := ParseTypeAttributes(`VT(0xFE00,0xFEFF,"Error")`)
	require.NoError(t, err)
	require.Len(t, attr.Computations, 1)
	vt, ok := attr.Computations[0].(*ValueTable)
	require.True(t, ok)
	assert.Equal(t, int64(0xFE00), vt.Lower)
	assert.Equal(t, int64(0xFEFF), vt.Upper)
	assert.Equal(t, []string{"Error"}, vt.Values)
}

func TestParseRationalScaling(t *testing.T) {
	attr, err := ParseTypeAttributes(`RS(0,0xFDFF,0,1,64,"km/h")`)
	require.NoError(t, err)
	require.Len(t, attr.Computations, 1)
	rs, ok := attr.Computations[0].(*RationalScaling)
	require.True(t, ok)
	assert.Equal(t, int64(0), rs.Lower)
	assert.Equal(t, int64(0xFDFF), rs.Upper)
	assert.Equal(t, float64(0), rs.Offset)
	assert.Equal(t, int32(1), rs.Numerator)
	assert.Equal(t, int32(64), rs.Denominator)
	assert.Equal(t, "km/h", rs.Unit)
}

func TestParseComputationList(t *testing.T) {
	attr, err := ParseTypeAttributes(
		`VT(0xFE00,0xFEFF,"Error"),VT(0xFF00,0xFFFF,"NotAvailable"),RS(0,0xFDFF,0,1,64,"km/h")`)
	require.NoError(t, err)
	require.Len(t, attr.Computations, 3)
	_, ok := attr.Computations[0].(*ValueTable)
	assert.True(t, ok)
	_, ok = attr.Computations[1].(*ValueTable)
	assert.True(t, ok)
	_, ok = attr.Computations[2].(*RationalScaling)
	assert.True(t, ok)
}

func TestTypeAttributesOnPortRejected(t *testing.T) {
	_, err := ParsePortAttributes(`VT(0,1,"a")`)
	assert.True(t, apx.IsCode(err, apx.ErrInvalidAttribute))
}

func TestPortAttributesOnTypeRejected(t *testing.T) {
	_, err := ParseTypeAttributes("=7")
	assert.True(t, apx.IsCode(err, apx.ErrInvalidAttribute))
}

func TestValueTableRangeCheck(t *testing.T) {
	elem, err := ParseSignature("C")
	require.NoError(t, err)

	attr, err := ParseTypeAttributes(`VT(0,255,"x")`)
	require.NoError(t, err)
	assert.NoError(t, attr.CheckRanges(elem))

	attr, err = ParseTypeAttributes(`VT(0,256,"x")`)
	require.NoError(t, err)
	assert.True(t, apx.IsCode(attr.CheckRanges(elem), apx.ErrValueRange))
}

func TestValueTableOverlapCheck(t *testing.T) {
	elem, err := ParseSignature("S")
	require.NoError(t, err)

	attr, err := ParseTypeAttributes(`VT(0,10,"a"),VT(5,20,"b")`)
	require.NoError(t, err)
	assert.True(t, apx.IsCode(attr.CheckRanges(elem), apx.ErrValueRange))
}
