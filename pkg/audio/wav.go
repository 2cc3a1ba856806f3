package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrInvalidWAV is returned by [DecodeWAV] for input that is not a RIFF/WAVE
// stream.
var ErrInvalidWAV = errors.New("audio: invalid wav")

// EncodeWAV renders c as a 16-bit mono PCM WAV file.
func EncodeWAV(c Clip) ([]byte, error) {
	rate := c.SampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	ws := &seekBuffer{}
	enc := wav.NewEncoder(ws, rate, 16, 1, 1)
	data := make([]int, len(c.Samples))
	for i, s := range c.Samples {
		data[i] = int(s)
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("audio: encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("audio: finalise wav: %w", err)
	}
	return ws.buf, nil
}

// DecodeWAV parses a PCM WAV file into a mono clip at its native rate.
// Multi-channel input is downmixed; other bit depths are rescaled to 16 bits.
func DecodeWAV(b []byte) (Clip, error) {
	dec := wav.NewDecoder(bytes.NewReader(b))
	if !dec.IsValidFile() {
		return Clip{}, ErrInvalidWAV
	}
	pb, err := dec.FullPCMBuffer()
	if err != nil {
		return Clip{}, fmt.Errorf("audio: decode wav: %w", err)
	}
	if pb == nil || len(pb.Data) == 0 {
		return Clip{}, fmt.Errorf("audio: decode wav: %w", io.ErrUnexpectedEOF)
	}

	depth := int(dec.BitDepth)
	if depth == 0 {
		depth = 16
	}
	samples := make([]int16, len(pb.Data))
	for i, v := range pb.Data {
		samples[i] = rescale(v, depth)
	}

	channels, rate := 1, int(dec.SampleRate)
	if pb.Format != nil {
		if pb.Format.NumChannels > 0 {
			channels = pb.Format.NumChannels
		}
		if pb.Format.SampleRate > 0 {
			rate = pb.Format.SampleRate
		}
	}
	return Clip{Samples: DownmixInterleaved(samples, channels), SampleRate: rate}, nil
}

func rescale(v, depth int) int16 {
	switch {
	case depth == 16:
		return int16(v)
	case depth == 8:
		return int16((v - 128) << 8)
	case depth > 16:
		return int16(v >> (depth - 16))
	default:
		return int16(v << (16 - depth))
	}
}

// seekBuffer is an in-memory io.WriteSeeker; the wav encoder seeks back to
// patch chunk sizes on Close.
type seekBuffer struct {
	buf []byte
	pos int
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	if need := s.pos + len(p); need > len(s.buf) {
		s.buf = append(s.buf, make([]byte, need-len(s.buf))...)
	}
	n := copy(s.buf[s.pos:], p)
	s.pos += n
	return n, nil
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(s.pos) + offset
	case io.SeekEnd:
		abs = int64(len(s.buf)) + offset
	default:
		return 0, fmt.Errorf("audio: seek: invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("audio: seek: negative position %d", abs)
	}
	s.pos = int(abs)
	return abs, nil
}
