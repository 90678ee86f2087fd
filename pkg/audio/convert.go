package audio

import (
	"fmt"
	"log/slog"
	"sync"
)

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch", f.SampleRate, f.Channels)
}

// Normalizer converts raw device PCM into the pipeline's mono format. The
// first mismatch is logged once; misaligned buffers are dropped.
// Create one per stream; not designed for shared use across goroutines.
type Normalizer struct {
	// SampleRate is the pipeline rate frames are resampled to.
	SampleRate int

	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Normalize converts pcm captured in format from to mono at n.SampleRate.
// When the input already matches, pcm is returned unchanged.
func (n *Normalizer) Normalize(pcm []byte, from Format) []byte {
	channels := max(from.Channels, 1)
	if len(pcm)%(2*channels) != 0 {
		n.warnedCorrupt.Do(func() {
			slog.Warn("audio normalizer: misaligned PCM buffer, dropping",
				"bytes", len(pcm),
				"format", from.String(),
			)
		})
		return nil
	}

	if from.SampleRate == n.SampleRate && channels == 1 {
		return pcm
	}

	n.warnedMismatch.Do(func() {
		slog.Info("audio normalizer: converting",
			"from", from.String(),
			"to", Format{SampleRate: n.SampleRate, Channels: 1}.String(),
		)
	})

	// Downmix first so only one channel has to be resampled.
	if channels > 1 {
		pcm = DownmixToMono(pcm, channels)
	}
	if from.SampleRate != n.SampleRate {
		pcm = ResampleMono16(pcm, from.SampleRate, n.SampleRate)
	}
	return pcm
}

// DownmixToMono averages interleaved 16-bit channels into one.
func DownmixToMono(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	stride := channels * 2
	frames := len(pcm) / stride
	out := make([]byte, frames*2)
	for i := range frames {
		var sum int32
		for c := range channels {
			off := i*stride + c*2
			sum += int32(int16(uint16(pcm[off]) | uint16(pcm[off+1])<<8))
		}
		avg := clamp16(sum / int32(channels))
		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// ResampleMono16 resamples mono 16-bit PCM with linear interpolation.
func ResampleMono16(pcm []byte, fromRate, toRate int) []byte {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 {
		return pcm
	}
	inSamples := len(pcm) / 2
	if inSamples == 0 {
		return nil
	}
	outSamples := int(int64(inSamples) * int64(toRate) / int64(fromRate))
	out := make([]byte, outSamples*2)
	ratio := float64(fromRate) / float64(toRate)

	for i := range outSamples {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)

		s0 := sampleAt(pcm, idx)
		s1 := s0
		if idx+1 < inSamples {
			s1 = sampleAt(pcm, idx+1)
		}
		v := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

func sampleAt(pcm []byte, i int) int16 {
	return int16(uint16(pcm[i*2]) | uint16(pcm[i*2+1])<<8)
}

func clamp16(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
