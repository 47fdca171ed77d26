package audio

import (
	"fmt"
	"math"
)

// Frame is an encoded audio frame ready for the outbound realtime channel
type Frame struct {
	Data     []byte // 16-bit signed PCM, little-endian, mono
	MIMEType string // e.g. "audio/pcm;rate=16000"
}

// EncodeFrame quantizes a buffer of floating-point mono samples into the
// 16-bit little-endian PCM wire format and tags it with its MIME type.
// Input samples are expected in [-1, 1]; values outside are clamped.
func EncodeFrame(samples []float32, sampleRate int) Frame {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		v := int16(s * 32767)
		data[i*2] = byte(v)
		data[i*2+1] = byte(v >> 8)
	}

	return Frame{
		Data:     data,
		MIMEType: fmt.Sprintf("audio/pcm;rate=%d", sampleRate),
	}
}

// DecodePCM16 converts 16-bit little-endian PCM bytes back to float samples.
// Returns an error if the byte count is odd.
func DecodePCM16(data []byte) ([]float32, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("PCM data length must be even (16-bit samples), got %d", len(data))
	}

	samples := make([]float32, len(data)/2)
	for i := range samples {
		v := int16(data[i*2]) | int16(data[i*2+1])<<8
		samples[i] = float32(v) / 32768.0
	}
	return samples, nil
}

// PCM16Duration returns the playback duration in seconds of a 16-bit mono
// PCM buffer at the given sample rate.
func PCM16Duration(data []byte, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(len(data)/2) / float64(sampleRate)
}

// RMS calculates the root mean square energy of a frame of samples
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}

	return math.Sqrt(sum / float64(len(samples)))
}

// Volume maps an RMS energy value to a normalized 0-1 volume using a fixed
// gain factor. Computed once per frame and fanned out to the UI observable
// and the watchdog activity check.
func Volume(rms, gain float64) float64 {
	v := rms * gain
	if v > 1.0 {
		return 1.0
	}
	if v < 0.0 {
		return 0.0
	}
	return v
}
