// Package audio provides the sample-level building blocks shared by the
// capture, segmentation, and transcription stages: fixed-size mono float32
// frames, PCM conversion helpers, and duration math.
//
// All audio in the pipeline is mono float32 normalised to [-1.0, 1.0] at a
// single configured sample rate (16 kHz by default, matching both the Silero
// VAD window and the whisper.cpp input format).
package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// Frame is one fixed-length block of mono float32 samples as delivered by a
// capture source. A Frame is owned by the recorder from the moment it is read
// until its samples have been copied into the pre-roll ring or the utterance
// buffer; capture sources may reuse the backing array afterwards.
type Frame []float32

// Duration returns the playback duration of the frame at the given sample rate.
func (f Frame) Duration(sampleRate int) time.Duration {
	return SamplesDuration(len(f), sampleRate)
}

// SamplesDuration returns the playback duration of n mono samples at rate Hz.
func SamplesDuration(n, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(rate))
}

// DurationSamples returns the number of mono samples covering d at rate Hz.
func DurationSamples(d time.Duration, rate int) int {
	if d <= 0 || rate <= 0 {
		return 0
	}
	return int(int64(d) * int64(rate) / int64(time.Second))
}

// PCMToFloat32 converts 16-bit signed little-endian PCM audio to float32
// samples normalised to the range [-1.0, 1.0]. The input length must be
// even (two bytes per sample); any trailing odd byte is silently ignored.
func PCMToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		samples[i] = float32(sample) / 32768.0
	}
	return samples
}

// AppendPCMToFloat32 converts 16-bit signed little-endian PCM into dst,
// reusing dst's backing array when it has sufficient capacity. Used on the
// per-frame capture path to avoid one allocation per block.
func AppendPCMToFloat32(dst []float32, pcm []byte) []float32 {
	n := len(pcm) / 2
	if cap(dst) < n {
		dst = make([]float32, n)
	}
	dst = dst[:n]
	for i := 0; i < n; i++ {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		dst[i] = float32(sample) / 32768.0
	}
	return dst
}

// RMS returns the root-mean-square level of the samples, in the same
// normalised [0, 1] scale as the sample values. Returns 0 for an empty slice.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
