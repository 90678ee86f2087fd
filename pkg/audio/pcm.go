package audio

import (
	"math"
	"time"
)

// BytesPerSample is the width of one 16-bit PCM sample.
const BytesPerSample = 2

// PCMDuration returns how much audio n bytes of 16-bit PCM represent.
func PCMDuration(n, sampleRate, channels int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	channels = max(channels, 1)
	samples := n / (BytesPerSample * channels)
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

// FrameBytes returns the size in bytes of one frame of the given duration.
func FrameBytes(frame time.Duration, sampleRate, channels int) int {
	samples := int(int64(sampleRate) * int64(frame) / int64(time.Second))
	return samples * max(channels, 1) * BytesPerSample
}

// RMS returns the root-mean-square amplitude of 16-bit PCM in raw sample
// units (0–32768).
func RMS(pcm []byte) float64 {
	n := len(pcm) / BytesPerSample
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		s := float64(sampleAt(pcm, i))
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}

// NormalizedRMS returns [RMS] scaled into [0, 1].
func NormalizedRMS(pcm []byte) float64 {
	return RMS(pcm) / 32768.0
}

// ToFloat32 converts 16-bit PCM into float32 samples in [-1, 1]. Multi-channel
// input is averaged to mono.
func ToFloat32(pcm []byte, channels int) []float32 {
	if channels > 1 {
		pcm = DownmixToMono(pcm, channels)
	}
	n := len(pcm) / BytesPerSample
	out := make([]float32, n)
	for i := range n {
		out[i] = float32(sampleAt(pcm, i)) / 32768.0
	}
	return out
}
