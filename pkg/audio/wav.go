package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrInvalidWAV is returned by [DecodeWAV] for input that is not 16-bit PCM WAV.
var ErrInvalidWAV = errors.New("audio: invalid wav")

const wavHeaderSize = 44

// EncodeWAV wraps 16-bit little-endian PCM in a canonical 44-byte RIFF/WAVE
// header.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	channels = max(channels, 1)
	dataSize := uint32(len(pcm))
	byteRate := uint32(sampleRate * channels * BytesPerSample)
	blockAlign := uint16(channels * BytesPerSample)

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+len(pcm)))
	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, 36+dataSize)
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(buf, binary.LittleEndian, byteRate)
	_ = binary.Write(buf, binary.LittleEndian, blockAlign)
	_ = binary.Write(buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, dataSize)
	buf.Write(pcm)
	return buf.Bytes()
}

// DecodeWAV parses a 16-bit PCM WAV file and returns its samples and format.
// Chunks other than "fmt " and "data" are skipped.
func DecodeWAV(data []byte) ([]byte, Format, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, Format{}, fmt.Errorf("%w: missing RIFF/WAVE header", ErrInvalidWAV)
	}

	var (
		format  Format
		haveFmt bool
	)
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if size < 0 || body+size > len(data) {
			// Some writers leave the data size unset when streaming.
			size = len(data) - body
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, Format{}, fmt.Errorf("%w: short fmt chunk", ErrInvalidWAV)
			}
			if tag := binary.LittleEndian.Uint16(data[body:]); tag != 1 {
				return nil, Format{}, fmt.Errorf("%w: unsupported format tag %d", ErrInvalidWAV, tag)
			}
			format.Channels = int(binary.LittleEndian.Uint16(data[body+2:]))
			format.SampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
			if bits := binary.LittleEndian.Uint16(data[body+14:]); bits != 16 {
				return nil, Format{}, fmt.Errorf("%w: unsupported bit depth %d", ErrInvalidWAV, bits)
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, Format{}, fmt.Errorf("%w: data chunk before fmt chunk", ErrInvalidWAV)
			}
			return data[body : body+size], format, nil
		}

		off = body + size + size%2
	}
	return nil, Format{}, fmt.Errorf("%w: no data chunk", ErrInvalidWAV)
}
