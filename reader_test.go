// FILE: lixenwraith/mavlog/reader_test.go
package mavlog

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lixenwraith/mavlog/format"
	"github.com/lixenwraith/mavlog/frame"
)

// Timestamp of the synthetic TEXT files. Its bytes are not entry types, which
// keeps the byte-wise recovery counts below exact.
const textTimestamp = 0x4141414141414141

// Start of a realistic flight, in microseconds since the epoch
const flightStartUs = 1_700_000_000_123_456

// buildFile encodes a complete file and returns it with each entry's offset
func buildFile(t *testing.T, header format.FileHeader, entries []format.Entry) ([]byte, []int64) {
	t.Helper()
	hb := format.EncodeHeader(header)
	b := append([]byte(nil), hb[:]...)

	defs, err := format.EncodeDefinitions(format.DefaultDefinitions())
	require.NoError(t, err)
	b = append(b, defs...)

	shape := format.NewShape(header.Flags, nil)
	var offsets []int64
	for _, e := range entries {
		offsets = append(offsets, int64(len(b)))
		b, err = shape.Append(b, e)
		require.NoError(t, err)
	}
	return b, offsets
}

// textFile builds a flags 0 file of n TEXT entries of 26 bytes each
func textFile(t *testing.T, n int) ([]byte, []int64) {
	t.Helper()
	var entries []format.Entry
	for i := 0; i < n; i++ {
		entries = append(entries, format.Entry{
			Type:        format.EntryText,
			TimestampUs: textTimestamp,
			Payload:     []byte(fmt.Sprintf("entry-number-%02d", i)),
		})
	}
	return buildFile(t, format.FileHeader{UUID: uuid.New(), FormatVersion: format.CurrentFormatVersion}, entries)
}

func writeTemp(t *testing.T, name string, b []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, b, 0644))
	return path
}

func texts(entries []Entry) []string {
	var out []string
	for _, e := range entries {
		out = append(out, string(e.Payload))
	}
	return out
}

func TestReaderOffsets(t *testing.T) {
	b, offsets := textFile(t, 3)
	entries, errs, r := readFile(t, writeTemp(t, "log.mav", b))
	assert.Empty(t, errs)
	assert.Nil(t, r.TruncatedTail())
	require.Len(t, entries, 3)
	for i, e := range entries {
		assert.Equal(t, offsets[i], e.Offset)
		assert.Equal(t, uint64(textTimestamp), e.TimestampUs)
	}
	assert.Equal(t, ReadStats{Entries: 3}, r.Stats())
}

func TestReaderLenientRecovery(t *testing.T) {
	b, offsets := textFile(t, 5)
	// Overwrite the whole third entry
	for i := offsets[2]; i < offsets[3]; i++ {
		b[i] = 0x55
	}
	path := writeTemp(t, "log.mav", b)

	entries, errs, r := readFile(t, path)
	assert.Equal(t, []string{"entry-number-00", "entry-number-01", "entry-number-03", "entry-number-04"}, texts(entries))
	assert.Nil(t, r.TruncatedTail())

	require.Len(t, errs, int(offsets[3]-offsets[2]))
	for i, err := range errs {
		var ee *EntryError
		require.ErrorAs(t, err, &ee)
		assert.Equal(t, offsets[2]+int64(i), ee.Offset, "one byte per error")
		assert.Equal(t, []byte{0x55}, ee.Raw)
		assert.Equal(t, path, ee.Path)
		assert.ErrorIs(t, err, format.ErrUnknownEntryType)
		assert.True(t, IsRecoverable(err))
	}
	assert.Equal(t, uint64(len(errs)), r.Stats().CorruptBytes)
}

func TestReaderStrictPolicy(t *testing.T) {
	b, offsets := textFile(t, 5)
	for i := offsets[2]; i < offsets[3]; i++ {
		b[i] = 0x55
	}
	path := writeTemp(t, "log.mav", b)

	r, err := OpenFile(path, WithPolicy(PolicyStrict))
	require.NoError(t, err)
	defer r.Close()

	for i := 0; i < 2; i++ {
		_, err := r.Next()
		require.NoError(t, err)
	}

	_, err = r.Next()
	var ce *CorruptionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, offsets[2], ce.Offset)
	assert.False(t, IsRecoverable(err))

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestReaderTruncatedTail(t *testing.T) {
	b, offsets := textFile(t, 5)
	b = b[:len(b)-5]

	entries, errs, r := readFile(t, writeTemp(t, "log.mav", b))
	assert.Empty(t, errs, "a partial final entry is not corruption")
	assert.Len(t, entries, 4)

	tail := r.TruncatedTail()
	require.NotNil(t, tail)
	assert.Equal(t, offsets[4], tail.Offset)
	assert.Equal(t, len(b)-int(offsets[4]), tail.Length)

	// Strict readers accept a truncated tail too
	entries, errs, r = readFile(t, writeTemp(t, "log.mav", b), WithPolicy(PolicyStrict))
	assert.Empty(t, errs)
	assert.Len(t, entries, 4)
	assert.NotNil(t, r.TruncatedTail())
}

func TestReaderTruncatedTailSingleByte(t *testing.T) {
	b, _ := textFile(t, 2)
	b = append(b, byte(format.EntryText))

	entries, errs, r := readFile(t, writeTemp(t, "log.mav", b))
	assert.Empty(t, errs)
	assert.Len(t, entries, 2)
	require.NotNil(t, r.TruncatedTail())
	assert.Equal(t, 1, r.TruncatedTail().Length)
}

func TestReaderDeclaredSizePastGoodEntries(t *testing.T) {
	b, offsets := textFile(t, 5)
	// A size running past later complete entries is corruption, not a tail
	binary.LittleEndian.PutUint16(b[offsets[1]+9:], 0x7f7f)
	path := writeTemp(t, "log.mav", b)

	entries, errs, r := readFile(t, path)
	assert.Nil(t, r.TruncatedTail())
	assert.Equal(t, []string{"entry-number-00", "entry-number-02", "entry-number-03", "entry-number-04"}, texts(entries))
	require.Len(t, errs, int(offsets[2]-offsets[1]))
	assert.ErrorIs(t, errs[0], format.ErrShortBuffer)

	r, err := OpenFile(path, WithPolicy(PolicyStrict))
	require.NoError(t, err)
	defer r.Close()
	_, err = r.Next()
	require.NoError(t, err)
	_, err = r.Next()
	var ce *CorruptionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, offsets[1], ce.Offset)
}

func TestReaderMavlinkOnlyRecovery(t *testing.T) {
	logger, dir := createTestLogger(t, func(cfg *Config) {
		cfg.MavlinkOnly = true
		cfg.NotTimestamped = true
	})
	for i := 0; i < 5; i++ {
		require.NoError(t, logger.Log(heartbeat(t, byte(i)), 0))
	}
	require.NoError(t, logger.Close())

	path := filepath.Join(dir, "log.mav")
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, b, format.PreambleSize+5*21)

	// Corrupt the third frame
	start := format.PreambleSize + 2*21
	for i := start; i < start+21; i++ {
		b[i] = 0x55
	}
	require.NoError(t, os.WriteFile(path, b, 0644))

	entries, errs, r := readFile(t, path)
	assert.Len(t, errs, 21)
	assert.Nil(t, r.TruncatedTail())
	var seqs []byte
	for _, e := range entries {
		seqs = append(seqs, heartbeatSeq(t, e.Payload))
	}
	assert.Equal(t, []byte{0, 1, 3, 4}, seqs)

	// Cut into the last frame
	require.NoError(t, os.WriteFile(path, b[:len(b)-3], 0644))
	entries, _, r = readFile(t, path)
	assert.Len(t, entries, 3)
	require.NotNil(t, r.TruncatedTail())
	assert.Equal(t, int64(format.PreambleSize+4*21), r.TruncatedTail().Offset)
	assert.Equal(t, 18, r.TruncatedTail().Length)
}

func TestReaderHeaderErrors(t *testing.T) {
	valid, _ := textFile(t, 1)

	badType := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint16(badType[format.HeaderSize+40:], 9)

	longPayload := append([]byte(nil), valid[:format.PreambleSize]...)
	binary.LittleEndian.PutUint16(longPayload[format.HeaderSize+40:], uint16(format.PayloadXML))
	binary.LittleEndian.PutUint32(longPayload[format.HeaderSize+42:], 100)
	longPayload = append(longPayload, "<mavlink>"...)

	hugePayload := append([]byte(nil), longPayload...)
	binary.LittleEndian.PutUint32(hugePayload[format.HeaderSize+42:], 1<<31)

	tests := []struct {
		name    string
		data    []byte
		section string
	}{
		{"empty file", nil, "header"},
		{"short header", valid[:40], "header"},
		{"header only", valid[:format.HeaderSize], "definitions"},
		{"short definitions", valid[:format.HeaderSize+10], "definitions"},
		{"unknown payload type", badType, "definitions"},
		{"payload past end", longPayload, "definitions"},
		{"payload over limit", hugePayload, "definitions"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := OpenFile(writeTemp(t, "log.mav", tt.data))
			var fe *format.FormatError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.section, fe.Section)
		})
	}
}

func TestReaderMissingFile(t *testing.T) {
	_, err := OpenFile(filepath.Join(t.TempDir(), "nope.mav"))
	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReaderUnknownVersion(t *testing.T) {
	b, _ := buildFile(t, format.FileHeader{FormatVersion: 9, Flags: 0x0100}, []format.Entry{
		{Type: format.EntryRaw, Payload: []byte{1, 2, 3}},
	})

	entries, errs, r := readFile(t, writeTemp(t, "future.mav", b))
	assert.Empty(t, errs)
	assert.Len(t, entries, 1)
	assert.False(t, r.Header().KnownVersion())
	assert.Equal(t, format.Flags(0x0100), r.Header().Flags.Unknown())
}

func TestReaderWindowRefill(t *testing.T) {
	logger, dir := createTestLogger(t, func(cfg *Config) {
		cfg.SyncOnWrite = false
	})

	const n = 8000
	for i := 0; i < n; i++ {
		require.NoError(t, logger.LogText(fmt.Sprintf("message %05d", i), uint64(i)))
	}
	require.NoError(t, logger.Close())

	path := filepath.Join(dir, "log.mav")
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(2*(11+65535)), "file must exceed the read window")

	entries, errs, r := readFile(t, path)
	assert.Empty(t, errs)
	assert.Nil(t, r.TruncatedTail())
	require.Len(t, entries, n)
	for i, e := range entries {
		if !assert.Equal(t, fmt.Sprintf("message %05d", i), string(e.Payload)) {
			break
		}
		assert.Equal(t, uint64(i), e.TimestampUs)
	}
}

func TestReaderAllStops(t *testing.T) {
	b, _ := textFile(t, 5)
	r, err := OpenFile(writeTemp(t, "log.mav", b))
	require.NoError(t, err)
	defer r.Close()

	count := 0
	for range r.All() {
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)

	e, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "entry-number-02", string(e.Payload))
}

func TestNewReaderTlog(t *testing.T) {
	layout := format.NewTlogLayout(nil)
	var b []byte
	var err error
	for i := 0; i < 3; i++ {
		b, err = layout.Append(b, format.Entry{Type: format.EntryMavlink, TimestampUs: uint64(i), Payload: heartbeat(t, byte(i))})
		require.NoError(t, err)
	}

	r, err := NewReader("memory", bytes.NewReader(b), KindTlog)
	require.NoError(t, err)

	var seqs []byte
	for e, err := range r.All() {
		require.NoError(t, err)
		assert.Equal(t, "memory", e.Path)
		seqs = append(seqs, heartbeatSeq(t, e.Payload))
	}
	assert.Equal(t, []byte{0, 1, 2}, seqs)
	assert.Nil(t, r.TruncatedTail())
	assert.NoError(t, r.Close())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindTlog, KindOf("/data/flight.tlog"))
	assert.Equal(t, KindTlog, KindOf("flight.tlog.3"))
	assert.Equal(t, KindTlog, KindOf("FLIGHT.TLOG"))
	assert.Equal(t, KindMav, KindOf("log.mav"))
	assert.Equal(t, KindMav, KindOf("log.mav.0"))
	assert.Equal(t, KindMav, KindOf("log_2026-10-18T12:00:00.000.bin.12"))
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("STRICT")
	require.NoError(t, err)
	assert.Equal(t, PolicyStrict, p)
	assert.Equal(t, "strict", p.String())

	p, err = ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyLenient, p)

	_, err = ParsePolicy("panic")
	assert.Error(t, err)
}

// logEntries writes entries through a Logger and returns the file bytes and
// the offset of every entry
func logEntries(t *testing.T, modify func(*Config), entries []format.Entry) ([]byte, []int64) {
	t.Helper()
	logger, dir := createTestLogger(t, modify)
	for _, e := range entries {
		require.NoError(t, logger.LogEntry(e))
	}
	require.NoError(t, logger.Close())

	path := filepath.Join(dir, "log.mav")
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	read, errs, _ := readFile(t, path)
	require.Empty(t, errs)
	require.Len(t, read, len(entries))

	var offsets []int64
	for _, e := range read {
		offsets = append(offsets, e.Offset)
	}
	return b, offsets
}

func payloads(entries []Entry) [][]byte {
	var out [][]byte
	for _, e := range entries {
		out = append(out, e.Payload)
	}
	return out
}

func TestReaderTruncatedAtEveryByte(t *testing.T) {
	mavlink := func(t *testing.T, i int) format.Entry {
		return format.Entry{Type: format.EntryMavlink, Payload: heartbeat(t, byte(i))}
	}
	tests := []struct {
		name   string
		modify func(*Config)
		entry  func(t *testing.T, i int) format.Entry
	}{
		{"heartbeat", nil, mavlink},
		{
			name:  "raw zeros",
			entry: func(t *testing.T, i int) format.Entry { return format.Entry{Type: format.EntryRaw, Payload: make([]byte, 40)} },
		},
		{
			name: "text",
			entry: func(t *testing.T, i int) format.Entry {
				return format.Entry{Type: format.EntryText, Payload: []byte(fmt.Sprintf("GPS fix acquired, %d satellites", 6+i))}
			},
		},
		{"heartbeat mavlink only", func(cfg *Config) { cfg.MavlinkOnly = true }, mavlink},
		{"heartbeat untimestamped", func(cfg *Config) { cfg.NotTimestamped = true }, mavlink},
		{
			name: "heartbeat bare",
			modify: func(cfg *Config) {
				cfg.MavlinkOnly = true
				cfg.NotTimestamped = true
			},
			entry: mavlink,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var entries []format.Entry
			for i := 0; i < 4; i++ {
				e := tt.entry(t, i)
				e.TimestampUs = flightStartUs + uint64(i)*20_000
				entries = append(entries, e)
			}
			b, offsets := logEntries(t, tt.modify, entries)
			last := offsets[3]

			var want [][]byte
			for _, e := range entries[:3] {
				want = append(want, e.Payload)
			}

			for cut := 1; cut < len(b)-int(last); cut++ {
				path := writeTemp(t, "log.mav", b[:int(last)+cut])
				for _, policy := range []Policy{PolicyLenient, PolicyStrict} {
					read, errs, r := readFile(t, path, WithPolicy(policy))
					require.Empty(t, errs, "cut %d, %s", cut, policy)
					require.Equal(t, want, payloads(read), "cut %d, %s", cut, policy)

					tail := r.TruncatedTail()
					require.NotNil(t, tail, "cut %d, %s", cut, policy)
					assert.Equal(t, last, tail.Offset, "cut %d", cut)
					assert.Equal(t, cut, tail.Length, "cut %d", cut)
				}
			}
		})
	}
}

// filler returns n random bytes that can start neither an entry nor a frame
func filler(rng *rand.Rand, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		for {
			c := byte(rng.Intn(256))
			if c > byte(format.EntryText) && c != frame.MagicV1 && c != frame.MagicV2 {
				b[i] = c
				break
			}
		}
	}
	return b
}

func TestReaderRandomCorruption(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		mixed  bool
	}{
		{"mixed entries", nil, true},
		{"bare frames", func(cfg *Config) {
			cfg.MavlinkOnly = true
			cfg.NotTimestamped = true
		}, false},
	}

	for _, tt := range tests {
		for seed := int64(1); seed <= 8; seed++ {
			t.Run(fmt.Sprintf("%s/seed-%d", tt.name, seed), func(t *testing.T) {
				rng := rand.New(rand.NewSource(seed))

				const n = 12
				var entries []format.Entry
				for i := 0; i < n; i++ {
					e := format.Entry{Type: format.EntryMavlink, TimestampUs: flightStartUs + uint64(rng.Intn(1<<30)), Payload: heartbeat(t, byte(i))}
					if tt.mixed {
						switch i % 3 {
						case 1:
							e = format.Entry{Type: format.EntryText, TimestampUs: e.TimestampUs, Payload: []byte(fmt.Sprintf("waypoint %d reached", i))}
						case 2:
							raw := make([]byte, 1+rng.Intn(48))
							rng.Read(raw)
							e = format.Entry{Type: format.EntryRaw, TimestampUs: e.TimestampUs, Payload: raw}
						}
					}
					entries = append(entries, e)
				}
				b, offsets := logEntries(t, tt.modify, entries)

				damaged := 1 + rng.Intn(n-2)
				start, end := offsets[damaged], offsets[damaged+1]
				copy(b[start:end], filler(rng, int(end-start)))
				path := writeTemp(t, "log.mav", b)

				var want [][]byte
				for i, e := range entries {
					if i != damaged {
						want = append(want, e.Payload)
					}
				}

				read, errs, r := readFile(t, path)
				assert.Equal(t, want, payloads(read))
				assert.Nil(t, r.TruncatedTail())
				require.Len(t, errs, int(end-start))
				for i, err := range errs {
					var ee *EntryError
					require.ErrorAs(t, err, &ee)
					assert.Equal(t, start+int64(i), ee.Offset)
				}

				_, errs, _ = readFile(t, path, WithPolicy(PolicyStrict))
				require.Len(t, errs, 1)
				var ce *CorruptionError
				require.ErrorAs(t, errs[0], &ce)
				assert.Equal(t, start, ce.Offset)
			})
		}
	}
}

func TestReaderDialectFromDefinitions(t *testing.T) {
	bad := heartbeat(t, 1)
	bad[len(bad)-1] ^= 0xff

	// Written without validation, so the broken checksum reaches the file
	logger, dir := createTestLogger(t, nil, WithDecoder(nil))
	require.NoError(t, logger.Log(heartbeat(t, 0), flightStartUs))
	require.NoError(t, logger.Log(bad, flightStartUs+1))
	require.NoError(t, logger.Close())
	path := filepath.Join(dir, "log.mav")

	entries, errs, r := readFile(t, path)
	assert.Equal(t, "common", r.Definitions().Dialect)
	require.NotEmpty(t, errs)
	var ee *EntryError
	require.ErrorAs(t, errs[0], &ee)
	assert.Equal(t, int64(format.PreambleSize+entrySize), ee.Offset)
	assert.ErrorIs(t, errs[0], format.ErrInvalidMessage)
	var messages int
	for _, e := range entries {
		if e.Type == format.EntryMavlink {
			messages++
		}
	}
	assert.Equal(t, 1, messages)

	// A framing-only decoder accepts the broken checksum
	entries, errs, _ = readFile(t, path, WithDecoder(frame.NewDecoder()))
	assert.Empty(t, errs)
	assert.Len(t, entries, 2)
}
