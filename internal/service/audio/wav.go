package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// ContentTypeWAV is the MIME type of encoded clips.
const ContentTypeWAV = "audio/wav"

const wavHeaderSize = 44

// ErrUnsupportedFormat is returned for WAV data that is not 16-bit PCM.
var ErrUnsupportedFormat = errors.New("unsupported wav format")

// EncodeWAV wraps mono PCM16 samples in a canonical 44-byte WAV header.
func EncodeWAV(samples []int16, sampleRate int) []byte {
	dataLen := len(samples) * 2
	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+dataLen))

	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))           // chunk size
	_ = binary.Write(buf, binary.LittleEndian, uint16(1))            // PCM
	_ = binary.Write(buf, binary.LittleEndian, uint16(1))            // channels
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate))   // sample rate
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate*2)) // byte rate
	_ = binary.Write(buf, binary.LittleEndian, uint16(2))            // block align
	_ = binary.Write(buf, binary.LittleEndian, uint16(16))           // bits per sample

	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, uint32(dataLen))
	_ = binary.Write(buf, binary.LittleEndian, samples)

	return buf.Bytes()
}

// WrapPCM wraps raw little-endian PCM16 mono bytes as WAV.
func WrapPCM(pcm []byte, sampleRate int) []byte {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return EncodeWAV(samples, sampleRate)
}

// DecodeWAV parses a PCM16 WAV file and returns mono samples. Multi-channel
// input is downmixed by averaging. Unknown chunks are skipped.
func DecodeWAV(data []byte) ([]int16, int, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("%w: not a RIFF/WAVE file", ErrUnsupportedFormat)
	}

	var (
		format, channels, bits uint16
		sampleRate             uint32
		haveFmt                bool
	)

	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if size < 0 || body+size > len(data) {
			// Streams written before the length was known often carry a bogus data size.
			size = len(data) - body
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, fmt.Errorf("%w: short fmt chunk", ErrUnsupportedFormat)
			}
			format = binary.LittleEndian.Uint16(data[body : body+2])
			channels = binary.LittleEndian.Uint16(data[body+2 : body+4])
			sampleRate = binary.LittleEndian.Uint32(data[body+4 : body+8])
			bits = binary.LittleEndian.Uint16(data[body+14 : body+16])
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, 0, fmt.Errorf("%w: data before fmt", ErrUnsupportedFormat)
			}
			if format != 1 || bits != 16 || channels == 0 {
				return nil, 0, fmt.Errorf("%w: format=%d bits=%d channels=%d", ErrUnsupportedFormat, format, bits, channels)
			}
			return downmix(data[body:body+size], int(channels)), int(sampleRate), nil
		}

		pos = body + size + size%2
	}
	return nil, 0, fmt.Errorf("%w: no data chunk", ErrUnsupportedFormat)
}

func downmix(pcm []byte, channels int) []int16 {
	frames := len(pcm) / (2 * channels)
	out := make([]int16, frames)
	for i := 0; i < frames; i++ {
		var sum int
		for c := 0; c < channels; c++ {
			off := (i*channels + c) * 2
			sum += int(int16(binary.LittleEndian.Uint16(pcm[off:])))
		}
		out[i] = int16(sum / channels)
	}
	return out
}

// WAVDurationMs returns the duration of a WAV clip, or 0 if it cannot be parsed.
func WAVDurationMs(data []byte) int64 {
	samples, rate, err := DecodeWAV(data)
	if err != nil {
		return 0
	}
	return SamplesDuration(len(samples), rate).Milliseconds()
}
