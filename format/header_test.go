package format

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlags(t *testing.T) {
	tests := []struct {
		flags          Flags
		mavlinkOnly    bool
		notTimestamped bool
		str            string
	}{
		{0, false, false, "0"},
		{FlagMavlinkOnly, true, false, "MAVLINK_ONLY"},
		{FlagNotTimestamped, false, true, "NOT_TIMESTAMPED"},
		{FlagMavlinkOnly | FlagNotTimestamped, true, true, "MAVLINK_ONLY|NOT_TIMESTAMPED"},
		{0x8001, true, false, "MAVLINK_ONLY|0x8000"},
	}

	for _, tt := range tests {
		t.Run(tt.str, func(t *testing.T) {
			assert.Equal(t, tt.mavlinkOnly, tt.flags.MavlinkOnly())
			assert.Equal(t, tt.notTimestamped, tt.flags.NotTimestamped())
			assert.Equal(t, tt.str, tt.flags.String())
		})
	}
}

func TestHeaderLayout(t *testing.T) {
	h := FileHeader{
		UUID:             uuid.UUID{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15},
		TimestampUs:      16,
		SrcApplicationID: "app",
		FormatVersion:    1,
		Flags:            FlagMavlinkOnly | FlagNotTimestamped,
	}
	b := EncodeHeader(h)

	assert.Equal(t, []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}, b[0:16])
	assert.Equal(t, []byte{16, 0, 0, 0, 0, 0, 0, 0}, b[16:24])
	assert.Equal(t, append([]byte("app"), make([]byte, 29)...), b[24:56])
	assert.Equal(t, []byte{1, 0, 0, 0}, b[56:60])
	assert.Equal(t, []byte{3, 0}, b[60:62])
}

func TestHeaderRoundTrip(t *testing.T) {
	headers := []FileHeader{
		{},
		{UUID: uuid.New(), TimestampUs: 1<<63 + 5, SrcApplicationID: "mavlog", FormatVersion: CurrentFormatVersion},
		{UUID: uuid.New(), SrcApplicationID: "exactly-thirty-two-bytes-long-id", Flags: FlagMavlinkOnly},
		{UUID: uuid.New(), FormatVersion: FormatVersionCustom, Flags: FlagNotTimestamped},
	}

	for _, h := range headers {
		b := EncodeHeader(h)
		got, err := DecodeHeader(b[:])
		require.NoError(t, err)
		assert.Equal(t, h, got)
	}
}

func TestDecodeHeaderShort(t *testing.T) {
	b := EncodeHeader(FileHeader{UUID: uuid.New()})
	for _, n := range []int{0, 1, HeaderSize - 1} {
		_, err := DecodeHeader(b[:n])
		var fe *FormatError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, "header", fe.Section)
		assert.ErrorIs(t, err, ErrShortBuffer)
	}
}

func TestHeaderUnknownVersionReported(t *testing.T) {
	b := EncodeHeader(FileHeader{FormatVersion: 7})
	h, err := DecodeHeader(b[:])
	require.NoError(t, err)
	assert.False(t, h.KnownVersion())
	assert.True(t, FileHeader{FormatVersion: 0}.KnownVersion())
	assert.True(t, FileHeader{FormatVersion: 1}.KnownVersion())
}

func TestTruncateText(t *testing.T) {
	long := "0123456789012345678901234567890123456789"
	assert.Equal(t, long[:32], TruncateText(long))

	// 31 ASCII bytes followed by a two byte rune must not split the rune
	s := long[:31] + "é"
	assert.Equal(t, long[:31], TruncateText(s))

	b := EncodeHeader(FileHeader{SrcApplicationID: s})
	h, err := DecodeHeader(b[:])
	require.NoError(t, err)
	assert.Equal(t, long[:31], h.SrcApplicationID)
}
