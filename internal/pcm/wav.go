// Package pcm wraps raw 16-bit little-endian PCM in a WAV container and back.
package pcm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

const headerSize = 44

var ErrNotWAV = errors.New("not a PCM WAV stream")

// Format describes interleaved signed PCM samples.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// Linear16 is 16-bit PCM at the given rate and channel count.
func Linear16(sampleRate, channels int) Format {
	return Format{SampleRate: sampleRate, Channels: channels, BitsPerSample: 16}
}

// FrameSize is the number of bytes per sample across all channels.
func (f Format) FrameSize() int {
	return f.Channels * f.BitsPerSample / 8
}

// Duration reports how long n bytes of audio last.
func (f Format) Duration(n int) time.Duration {
	frame := f.FrameSize()
	if frame <= 0 || f.SampleRate <= 0 {
		return 0
	}
	frames := n / frame
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

// EncodeWAV prefixes samples with a canonical 44-byte RIFF header. A trailing
// partial frame is dropped.
func EncodeWAV(samples []byte, f Format) []byte {
	if frame := f.FrameSize(); frame > 0 {
		samples = samples[:len(samples)-len(samples)%frame]
	}
	dataSize := len(samples)

	buf := bytes.NewBuffer(make([]byte, 0, headerSize+dataSize))
	buf.WriteString("RIFF")
	writeUint32(buf, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	writeUint32(buf, 16)
	writeUint16(buf, 1) // PCM
	writeUint16(buf, uint16(f.Channels))
	writeUint32(buf, uint32(f.SampleRate))
	writeUint32(buf, uint32(f.SampleRate*f.FrameSize()))
	writeUint16(buf, uint16(f.FrameSize()))
	writeUint16(buf, uint16(f.BitsPerSample))

	buf.WriteString("data")
	writeUint32(buf, uint32(dataSize))
	buf.Write(samples)
	return buf.Bytes()
}

// DecodeWAV returns the format and sample bytes of a PCM WAV stream. Chunks
// other than "fmt " and "data" are skipped.
func DecodeWAV(data []byte) (Format, []byte, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Format{}, nil, ErrNotWAV
	}

	var (
		format    Format
		sawFormat bool
	)
	offset := 12
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		end := body + size
		if size < 0 || end > len(data) {
			if id == "data" {
				// Streams written before their length was known report a bogus size.
				end = len(data)
			} else {
				return Format{}, nil, fmt.Errorf("%w: truncated %q chunk", ErrNotWAV, id)
			}
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return Format{}, nil, fmt.Errorf("%w: short fmt chunk", ErrNotWAV)
			}
			if tag := binary.LittleEndian.Uint16(data[body:]); tag != 1 {
				return Format{}, nil, fmt.Errorf("%w: unsupported format tag %d", ErrNotWAV, tag)
			}
			format = Format{
				Channels:      int(binary.LittleEndian.Uint16(data[body+2:])),
				SampleRate:    int(binary.LittleEndian.Uint32(data[body+4:])),
				BitsPerSample: int(binary.LittleEndian.Uint16(data[body+14:])),
			}
			sawFormat = true
		case "data":
			if !sawFormat {
				return Format{}, nil, fmt.Errorf("%w: data before fmt chunk", ErrNotWAV)
			}
			return format, data[body:end], nil
		}

		offset = end + size%2
	}
	return Format{}, nil, fmt.Errorf("%w: missing data chunk", ErrNotWAV)
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	_ = binary.Write(buf, binary.LittleEndian, v)
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	_ = binary.Write(buf, binary.LittleEndian, v)
}
