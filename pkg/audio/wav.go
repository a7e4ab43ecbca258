// Package audio 提供对录音文件的 WAV 头部检查。
// 录音端产出 16kHz 单声道 16-bit PCM、带标准 44 字节 RIFF 头的 WAV 文件，
// 这里在转写之前做一次廉价的健全性检查并估算时长。
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// ErrNotWAV 表示文件不是可识别的 RIFF/WAVE 文件。
var ErrNotWAV = errors.New("not a wav file")

// Info 是从 WAV 头部读出的音频参数。
type Info struct {
	AudioFormat   uint16 // 1 = PCM
	Channels      uint16
	SampleRate    uint32
	BitsPerSample uint16
	DataBytes     uint32
}

// Duration 根据数据块大小估算音频时长。
func (i Info) Duration() time.Duration {
	byteRate := uint64(i.SampleRate) * uint64(i.Channels) * uint64(i.BitsPerSample) / 8
	if byteRate == 0 {
		return 0
	}
	seconds := float64(i.DataBytes) / float64(byteRate)
	return time.Duration(seconds * float64(time.Second))
}

// ReadInfo 打开文件并解析 WAV 头部。
func ReadInfo(path string) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer f.Close()
	return ParseHeader(f)
}

// ParseHeader 解析 RIFF/fmt/data 块。fmt 块按录音端写出的 16 字节 PCM 布局读取，
// data 之前出现的其他块会被跳过。
func ParseHeader(r io.Reader) (*Info, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, fmt.Errorf("%w: header too short", ErrNotWAV)
	}
	if !bytes.Equal(riff[0:4], []byte("RIFF")) || !bytes.Equal(riff[8:12], []byte("WAVE")) {
		return nil, ErrNotWAV
	}

	info := &Info{}
	haveFmt := false
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			return nil, fmt.Errorf("%w: missing data chunk", ErrNotWAV)
		}
		chunkID := string(chunk[0:4])
		chunkSize := binary.LittleEndian.Uint32(chunk[4:8])

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return nil, fmt.Errorf("%w: fmt chunk too short", ErrNotWAV)
			}
			var fmtBody [16]byte
			if _, err := io.ReadFull(r, fmtBody[:]); err != nil {
				return nil, fmt.Errorf("%w: truncated fmt chunk", ErrNotWAV)
			}
			info.AudioFormat = binary.LittleEndian.Uint16(fmtBody[0:2])
			info.Channels = binary.LittleEndian.Uint16(fmtBody[2:4])
			info.SampleRate = binary.LittleEndian.Uint32(fmtBody[4:8])
			info.BitsPerSample = binary.LittleEndian.Uint16(fmtBody[14:16])
			// 跳过扩展字段
			if chunkSize > 16 {
				if _, err := io.CopyN(io.Discard, r, int64(chunkSize-16)); err != nil {
					return nil, fmt.Errorf("%w: truncated fmt chunk", ErrNotWAV)
				}
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, fmt.Errorf("%w: data chunk before fmt", ErrNotWAV)
			}
			info.DataBytes = chunkSize
			return info, nil
		default:
			if _, err := io.CopyN(io.Discard, r, int64(chunkSize)); err != nil {
				return nil, fmt.Errorf("%w: truncated chunk %q", ErrNotWAV, chunkID)
			}
		}
	}
}
