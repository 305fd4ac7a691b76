package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apx-embedded/goapx/internal/apx"
)

func TestParseScalarSignatures(t *testing.T) {
	cases := []struct {
		signature string
		typeCode  apx.TypeCode
	}{
		{"C", apx.TypeCodeUint8},
		{"S", apx.TypeCodeUint16},
		{"L", apx.TypeCodeUint32},
		{"Q", apx.TypeCodeUint64},
		{"c", apx.TypeCodeInt8},
		{"s", apx.TypeCodeInt16},
		{"l", apx.TypeCodeInt32},
		{"q", apx.TypeCodeInt64},
		{"a", apx.TypeCodeChar},
		{"A", apx.TypeCodeChar8},
		{"u", apx.TypeCodeChar16},
		{"U", apx.TypeCodeChar32},
		{"b", apx.TypeCodeBool},
		{"B", apx.TypeCodeByte},
	}
	for _, tc := range cases {
		elem, err := ParseSignature(tc.signature)
		require.NoError(t, err, tc.signature)
		assert.Equal(t, tc.typeCode, elem.TypeCode, tc.signature)
		assert.False(t, elem.IsArray())
		assert.Nil(t, elem.Limits)
	}
}

func TestParseScalarWithLimits(t *testing.T) {
	elem, err := ParseSignature("C(0,7)")
	require.NoError(t, err)
	require.NotNil(t, elem.Limits)
	assert.Equal(t, uint64(0), elem.Limits.LowerU)
	assert.Equal(t, uint64(7), elem.Limits.UpperU)

	elem, err = ParseSignature("c(-10,10)")
	require.NoError(t, err)
	require.NotNil(t, elem.Limits)
	assert.Equal(t, int64(-10), elem.Limits.LowerI)
	assert.Equal(t, int64(10), elem.Limits.UpperI)

	elem, err = ParseSignature("S(0xFE00,0xFEFF)")
	require.NoError(t, err)
	require.NotNil(t, elem.Limits)
	assert.Equal(t, uint64(0xFE00), elem.Limits.LowerU)
	assert.Equal(t, uint64(0xFEFF), elem.Limits.UpperU)
}

func TestParseArray(t *testing.T) {
	elem, err := ParseSignature("C[10]")
	require.NoError(t, err)
	assert.Equal(t, uint32(10), elem.ArrayLen)
	assert.False(t, elem.IsDynamicArray)

	elem, err = ParseSignature("C[100*]")
	require.NoError(t, err)
	assert.Equal(t, uint32(100), elem.ArrayLen)
	assert.True(t, elem.IsDynamicArray)

	elem, err = ParseSignature("C(0,7)[10]")
	require.NoError(t, err)
	assert.Equal(t, uint32(10), elem.ArrayLen)
	require.NotNil(t, elem.Limits)
}

func TestParseString(t *testing.T) {
	elem, err := ParseSignature("A[21]")
	require.NoError(t, err)
	assert.Equal(t, apx.TypeCodeChar8, elem.TypeCode)
	assert.Equal(t, uint32(21), elem.ArrayLen)
}

func TestCharTypesRejectLimits(t *testing.T) {
	_, err := ParseSignature("a(0,1)")
	assert.Error(t, err)
	_, err = ParseSignature("A(0,1)[10]")
	assert.Error(t, err)
}

func TestParseRecord(t *testing.T) {
	elem, err := ParseSignature(`{"Id"S"Value"C}`)
	require.NoError(t, err)
	assert.Equal(t, apx.TypeCodeRecord, elem.TypeCode)
	require.Len(t, elem.Elements, 2)
	assert.Equal(t, "Id", elem.Elements[0].Name)
	assert.Equal(t, apx.TypeCodeUint16, elem.Elements[0].TypeCode)
	assert.Equal(t, "Value", elem.Elements[1].Name)
	assert.Equal(t, apx.TypeCodeUint8, elem.Elements[1].TypeCode)
}

func TestParseRecordArray(t *testing.T) {
	elem, err := ParseSignature(`{"Id"S"Value"C}[2]`)
	require.NoError(t, err)
	assert.Equal(t, apx.TypeCodeRecord, elem.TypeCode)
	assert.Equal(t, uint32(2), elem.ArrayLen)
}

func TestParseNestedRecord(t *testing.T) {
	elem, err := ParseSignature(`{"Inner"{"X"C"Y"C}"Z"S}`)
	require.NoError(t, err)
	require.Len(t, elem.Elements, 2)
	inner := elem.Elements[0]
	assert.Equal(t, apx.TypeCodeRecord, inner.TypeCode)
	require.Len(t, inner.Elements, 2)
}

func TestParseEmptyRecord(t *testing.T) {
	_, err := ParseSignature("{}")
	assert.True(t, apx.IsCode(err, apx.ErrEmptyRecord))
}

func TestParseUnmatchedBrace(t *testing.T) {
	_, err := ParseSignature(`{"Id"S`)
	assert.True(t, apx.IsCode(err, apx.ErrUnmatchedBrace))
}

func TestParseTypeReferenceByID(t *testing.T) {
	elem, err := ParseSignature("T[0]")
	require.NoError(t, err)
	assert.Equal(t, apx.TypeCodeRefID, elem.TypeCode)
	assert.Equal(t, uint32(0), elem.TypeRefID)
}

func TestParseTypeReferenceByName(t *testing.T) {
	elem, err := ParseSignature(`T["Velocity_T"]`)
	require.NoError(t, err)
	assert.Equal(t, apx.TypeCodeRefName, elem.TypeCode)
	assert.Equal(t, "Velocity_T", elem.TypeRefName)
}

func TestParseTypeReferenceWithArray(t *testing.T) {
	elem, err := ParseSignature("T[1][4]")
	require.NoError(t, err)
	assert.Equal(t, apx.TypeCodeRefID, elem.TypeCode)
	assert.Equal(t, uint32(1), elem.TypeRefID)
	assert.Equal(t, uint32(4), elem.ArrayLen)
}

func TestParseTypeReferenceRejectsLimits(t *testing.T) {
	_, err := ParseSignature("T[0](0,3)")
	assert.Error(t, err)
}

func TestParseTypeReferenceMissingBracket(t *testing.T) {
	_, err := ParseSignature("T0]")
	assert.True(t, apx.IsCode(err, apx.ErrExpectedBracket))
}

func TestParseStrayCharacters(t *testing.T) {
	_, err := ParseSignature("C!")
	require.Error(t, err)
	assert.True(t, apx.IsCode(err, apx.ErrStrayCharactersAfterParse))
	var e *apx.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, 1, e.Position)
}

func TestSignatureRoundTrip(t *testing.T) {
	// canonical(parse(s)) is a fixed point of parse-then-print
	signatures := []string{
		"C",
		"C(0,7)",
		"C(0,7)[10]",
		"c(-100,100)",
		"S[4]",
		"A[21]",
		"C[100*]",
		`{"Id"S"Value"C}`,
		`{"Id"S"Value"C}[2]`,
		`{"Inner"{"X"C"Y"C}"Z"S}`,
	}
	for _, s := range signatures {
		elem, err := ParseSignature(s)
		require.NoError(t, err, s)
		canonical := elem.String(false)
		elem2, err := ParseSignature(canonical)
		require.NoError(t, err, canonical)
		assert.Equal(t, canonical, elem2.String(false), s)
	}
}

func TestNormalizedDynamicArrayString(t *testing.T) {
	elem, err := ParseSignature("C[100*]")
	require.NoError(t, err)
	assert.Equal(t, "C[100*]", elem.String(false))
	assert.Equal(t, "C[*]", elem.String(true))
}

func TestPackedSizes(t *testing.T) {
	cases := []struct {
		signature string
		size      int
	}{
		{"C", 1},
		{"S", 2},
		{"L", 4},
		{"Q", 8},
		{"b", 1},
		{"B", 1},
		{"C[10]", 10},
		{"S[4]", 8},
		{"A[21]", 21},
		{"C[100*]", 101},     // 1 length byte + 100
		{"S[1000*]", 2002},   // 2 length bytes + 2000
		{`{"Id"S"Value"C}`, 3},
		{`{"Id"S"Value"C}[2]`, 6},
	}
	for _, tc := range cases {
		elem, err := ParseSignature(tc.signature)
		require.NoError(t, err, tc.signature)
		size, err := elem.PackedSize()
		require.NoError(t, err, tc.signature)
		assert.Equal(t, tc.size, size, tc.signature)
	}
}
