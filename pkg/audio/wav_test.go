package audio_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/MrWong99/wakepipe/pkg/audio"
)

func TestEncodeWAV_Header(t *testing.T) {
	t.Parallel()

	pcm := samplesToBytes([]int16{1, 2, 3, 4})
	wav := audio.EncodeWAV(pcm, 16000, 1)

	if len(wav) != 44+len(pcm) {
		t.Fatalf("len = %d, want %d", len(wav), 44+len(pcm))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" || string(wav[36:40]) != "data" {
		t.Errorf("unexpected chunk ids: %q %q %q", wav[0:4], wav[8:12], wav[36:40])
	}
	if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != 16000 {
		t.Errorf("sample rate = %d, want 16000", rate)
	}
	if !bytes.Equal(wav[44:], pcm) {
		t.Error("payload differs from input PCM")
	}
}

func TestDecodeWAV_SkipsUnknownChunks(t *testing.T) {
	t.Parallel()

	pcm := samplesToBytes([]int16{10, -10, 20})
	wav := audio.EncodeWAV(pcm, 8000, 2)

	// Insert a LIST chunk between fmt and data.
	var patched bytes.Buffer
	patched.Write(wav[:36])
	patched.WriteString("LIST")
	_ = binary.Write(&patched, binary.LittleEndian, uint32(3))
	patched.Write([]byte{'a', 'b', 'c', 0})
	patched.Write(wav[36:])

	got, format, err := audio.DecodeWAV(patched.Bytes())
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if format.SampleRate != 8000 || format.Channels != 2 {
		t.Errorf("format = %s, want 8000Hz/2ch", format)
	}
	if !bytes.Equal(got, pcm) {
		t.Errorf("pcm = %v, want %v", got, pcm)
	}
}

func TestDecodeWAV_Invalid(t *testing.T) {
	t.Parallel()

	for _, data := range [][]byte{nil, []byte("RIFF0000AVIX"), []byte("RIFF\x04\x00\x00\x00WAVE")} {
		if _, _, err := audio.DecodeWAV(data); !errors.Is(err, audio.ErrInvalidWAV) {
			t.Errorf("DecodeWAV(%q) err = %v, want ErrInvalidWAV", data, err)
		}
	}
}
