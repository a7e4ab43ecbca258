package audio

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildWAV 按录音端的布局合成一个最小 WAV 文件。
func buildWAV(sampleRate uint32, channels, bits uint16, dataBytes int) []byte {
	var buf bytes.Buffer
	data := make([]byte, dataBytes)

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataBytes))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, channels)
	binary.Write(&buf, binary.LittleEndian, sampleRate)
	binary.Write(&buf, binary.LittleEndian, sampleRate*uint32(channels)*uint32(bits)/8)
	binary.Write(&buf, binary.LittleEndian, channels*bits/8)
	binary.Write(&buf, binary.LittleEndian, bits)

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataBytes))
	buf.Write(data)
	return buf.Bytes()
}

func TestParseHeaderRecorderLayout(t *testing.T) {
	// 16kHz 单声道 16-bit，1 秒音频 = 32000 字节
	wav := buildWAV(16000, 1, 16, 32000)

	info, err := ParseHeader(bytes.NewReader(wav))
	require.NoError(t, err)
	assert.Equal(t, uint16(1), info.AudioFormat)
	assert.Equal(t, uint16(1), info.Channels)
	assert.Equal(t, uint32(16000), info.SampleRate)
	assert.Equal(t, uint16(16), info.BitsPerSample)
	assert.Equal(t, uint32(32000), info.DataBytes)
	assert.Equal(t, time.Second, info.Duration())
}

func TestParseHeaderSkipsUnknownChunks(t *testing.T) {
	wav := buildWAV(16000, 1, 16, 3200)
	// 在 fmt 和 data 之间插入一个 LIST 块
	var withList bytes.Buffer
	withList.Write(wav[:36])
	withList.WriteString("LIST")
	binary.Write(&withList, binary.LittleEndian, uint32(4))
	withList.WriteString("INFO")
	withList.Write(wav[36:])

	info, err := ParseHeader(bytes.NewReader(withList.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, uint32(3200), info.DataBytes)
}

func TestParseHeaderRejectsNonWAV(t *testing.T) {
	_, err := ParseHeader(bytes.NewReader([]byte("OggS this is not riff data")))
	assert.ErrorIs(t, err, ErrNotWAV)

	_, err = ParseHeader(bytes.NewReader([]byte("RIF")))
	assert.ErrorIs(t, err, ErrNotWAV)

	// RIFF 但不是 WAVE
	bad := append([]byte("RIFF"), 0, 0, 0, 0)
	bad = append(bad, []byte("AVI ")...)
	_, err = ParseHeader(bytes.NewReader(bad))
	assert.ErrorIs(t, err, ErrNotWAV)
}

func TestParseHeaderTruncatedFile(t *testing.T) {
	wav := buildWAV(16000, 1, 16, 3200)

	// 只有 RIFF 头没有任何块
	_, err := ParseHeader(bytes.NewReader(wav[:12]))
	assert.ErrorIs(t, err, ErrNotWAV)

	// fmt 块中途截断
	_, err = ParseHeader(bytes.NewReader(wav[:24]))
	assert.ErrorIs(t, err, ErrNotWAV)
}

func TestReadInfoFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.wav")
	require.NoError(t, os.WriteFile(path, buildWAV(16000, 1, 16, 16000), 0o644))

	info, err := ReadInfo(path)
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, info.Duration())

	_, err = ReadInfo(filepath.Join(t.TempDir(), "missing.wav"))
	assert.Error(t, err)
}

func TestDurationZeroByteRate(t *testing.T) {
	assert.Equal(t, time.Duration(0), Info{}.Duration())
}
