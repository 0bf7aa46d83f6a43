package utils

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// WAVFormat describes interleaved little-endian PCM
type WAVFormat struct {
	Channels      int
	SampleRate    int
	BitsPerSample int
}

// DefaultSpeechFormat is mono 16-bit PCM at 24kHz
var DefaultSpeechFormat = WAVFormat{Channels: 1, SampleRate: 24000, BitsPerSample: 16}

func (f WAVFormat) bytesPerSecond() int {
	return f.SampleRate * f.Channels * f.BitsPerSample / 8
}

// Duration returns the playback length of n bytes of PCM in this format
func (f WAVFormat) Duration(n int) time.Duration {
	bps := f.bytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(bps)
}

// EncodeWAV wraps raw PCM samples in a canonical 44-byte RIFF/WAVE header
func EncodeWAV(pcm []byte, format WAVFormat) []byte {
	blockAlign := format.Channels * format.BitsPerSample / 8

	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(&buf, binary.LittleEndian, uint16(format.Channels))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(format.SampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(format.bytesPerSecond()))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(format.BitsPerSample))

	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}

// DecodeWAV returns the PCM payload and format of a RIFF/WAVE file. Input without a
// RIFF header is treated as raw PCM in fallback format.
func DecodeWAV(data []byte, fallback WAVFormat) ([]byte, WAVFormat, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" {
		return data, fallback, nil
	}
	if string(data[8:12]) != "WAVE" {
		return nil, fallback, errors.New("RIFF container is not WAVE")
	}

	format := fallback
	haveFormat := false
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		end := body + size
		if end > len(data) {
			end = len(data)
		}

		switch id {
		case "fmt ":
			if end-body < 16 {
				return nil, fallback, errors.New("truncated fmt chunk")
			}
			if tag := binary.LittleEndian.Uint16(data[body : body+2]); tag != 1 {
				return nil, fallback, fmt.Errorf("unsupported WAV encoding %d", tag)
			}
			format.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			format.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			format.BitsPerSample = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			haveFormat = true
		case "data":
			if !haveFormat {
				return nil, fallback, errors.New("data chunk before fmt chunk")
			}
			return data[body:end], format, nil
		}

		// chunks are word aligned
		pos = body + size + size%2
	}

	return nil, fallback, errors.New("no data chunk in WAV")
}
