// Package audio holds the PCM plumbing shared by capture, wake word detection,
// transcription and playback: the [Clip] container, sample conversions, WAV
// encoding and a speaker-backed [Player].
package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// DefaultSampleRate is the capture rate used by the microphone, the peripheral
// link and the wake word model.
const DefaultSampleRate = 16000

// Clip is a mono signed 16-bit PCM recording.
type Clip struct {
	Samples    []int16
	SampleRate int
}

// Duration returns the playback length of c.
func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.SampleRate)
}

// Empty reports whether c holds no samples.
func (c Clip) Empty() bool { return len(c.Samples) == 0 }

// Bytes returns the samples as little-endian bytes.
func (c Clip) Bytes() []byte { return Int16ToBytes(c.Samples) }

// Float32 returns the samples scaled to [-1, 1).
func (c Clip) Float32() []float32 { return Int16ToFloat32(c.Samples) }

// ClipFromBytes interprets b as little-endian int16 mono PCM. A trailing odd
// byte is ignored.
func ClipFromBytes(b []byte, sampleRate int) Clip {
	return Clip{Samples: BytesToInt16(b), SampleRate: sampleRate}
}

// Int16ToBytes encodes samples as little-endian bytes.
func Int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// BytesToInt16 decodes little-endian bytes. A trailing odd byte is ignored.
func BytesToInt16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}

// Int16ToFloat32 scales samples to [-1, 1).
func Int16ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768
	}
	return out
}

// Float32ToInt16 converts normalised samples back to int16, clamping values
// outside [-1, 1].
func Float32ToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, f := range samples {
		v := f * 32767
		switch {
		case v > 32767:
			v = 32767
		case v < -32768:
			v = -32768
		}
		out[i] = int16(v)
	}
	return out
}

// Resample converts c to dstRate with linear interpolation.
func Resample(c Clip, dstRate int) Clip {
	if c.SampleRate <= 0 || dstRate <= 0 || c.SampleRate == dstRate || len(c.Samples) < 2 {
		return c
	}
	n := int(int64(len(c.Samples)) * int64(dstRate) / int64(c.SampleRate))
	out := make([]int16, n)
	ratio := float64(c.SampleRate) / float64(dstRate)
	last := len(c.Samples) - 1
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		s0 := c.Samples[idx]
		s1 := s0
		if idx < last {
			s1 = c.Samples[idx+1]
		}
		out[i] = int16(float64(s0)*(1-frac) + float64(s1)*frac)
	}
	return Clip{Samples: out, SampleRate: dstRate}
}

// DownmixInterleaved averages interleaved channels into mono.
func DownmixInterleaved(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]int16, frames)
	for i := range frames {
		var sum int32
		for ch := range channels {
			sum += int32(samples[i*channels+ch])
		}
		out[i] = int16(sum / int32(channels))
	}
	return out
}

// RMS returns the root mean square of the normalised samples.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var acc float64
	for _, s := range samples {
		f := float64(s) / 32768
		acc += f * f
	}
	return math.Sqrt(acc / float64(len(samples)))
}
