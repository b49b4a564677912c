package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefinitionsLayout(t *testing.T) {
	d := Definitions{
		VersionMajor: 0x01020304,
		VersionMinor: 0x04050607,
		Dialect:      DefaultDialect,
		PayloadType:  PayloadXML,
		Payload:      []byte("hello"),
	}
	b, err := EncodeDefinitions(d)
	require.NoError(t, err)

	require.Len(t, b, 51)
	assert.Equal(t, []byte{4, 3, 2, 1}, b[0:4])
	assert.Equal(t, []byte{7, 6, 5, 4}, b[4:8])
	assert.Equal(t, append([]byte("common"), make([]byte, 26)...), b[8:40])
	assert.Equal(t, []byte{2, 0}, b[40:42])
	assert.Equal(t, []byte{5, 0, 0, 0}, b[42:46])
	assert.Equal(t, []byte("hello"), b[46:51])
}

func TestDefinitionsRoundTrip(t *testing.T) {
	blocks := []Definitions{
		DefaultDefinitions(),
		{VersionMajor: 1, VersionMinor: 0, Dialect: "ardupilotmega", PayloadType: PayloadURLs,
			Payload: []byte("http://example.com/a.xml,http://example.com/b.xml")},
		{VersionMajor: 2, Dialect: "minimal", PayloadType: PayloadXML, Payload: []byte("<mavlink/>")},
		// size zero is valid for any type
		{VersionMajor: 2, Dialect: "common", PayloadType: PayloadXML},
	}

	for _, d := range blocks {
		b, err := EncodeDefinitions(d)
		require.NoError(t, err)

		// Trailing bytes belong to the first entry and must not be consumed
		got, n, err := DecodeDefinitions(append(b, 0xaa, 0xbb))
		require.NoError(t, err)
		assert.Equal(t, len(b), n)
		assert.Equal(t, d, got)
	}
}

func TestDefinitionsInvalid(t *testing.T) {
	_, err := EncodeDefinitions(Definitions{PayloadType: PayloadNone, Payload: []byte("x")})
	assert.Error(t, err)

	_, err = EncodeDefinitions(Definitions{PayloadType: 9})
	assert.Error(t, err)

	valid, err := EncodeDefinitions(DefaultDefinitions())
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"short fixed part", func(b []byte) []byte { return b[:DefinitionSize-1] }},
		{"unknown payload type", func(b []byte) []byte { b[40] = 9; return b }},
		{"none with size", func(b []byte) []byte { b[42] = 3; return append(b, 1, 2, 3) }},
		{"payload past end", func(b []byte) []byte { b[40] = byte(PayloadXML); b[42] = 10; return append(b, 1, 2) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := tt.mutate(append([]byte(nil), valid...))
			_, _, err := DecodeDefinitions(b)
			var fe *FormatError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, "definitions", fe.Section)
		})
	}
}

func TestParsePayloadType(t *testing.T) {
	for in, want := range map[string]PayloadType{"": PayloadNone, "none": PayloadNone, "URLs": PayloadURLs, "xml": PayloadXML} {
		got, err := ParsePayloadType(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParsePayloadType("json")
	assert.Error(t, err)
}
