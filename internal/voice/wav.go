package voice

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Discord voice runs at 48 kHz; capture is decoded to mono.
const (
	sampleRate      = 48000
	captureChannels = 1
)

// buildWAV prefixes PCM with a RIFF/WAVE header.
func buildWAV(pcm []byte, sampleRate, channels, bitsPerSample int) []byte {
	byteRate := uint32(sampleRate * channels * bitsPerSample / 8)
	blockAlign := uint16(channels * bitsPerSample / 8)
	dataLen := uint32(len(pcm))

	buf := bytes.NewBuffer(make([]byte, 0, 44+len(pcm)))
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36)+dataLen)
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint16(channels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, byteRate)
	binary.Write(buf, binary.LittleEndian, blockAlign)
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, dataLen)
	buf.Write(pcm)
	return buf.Bytes()
}

// wavAudio is decoded 16-bit PCM.
type wavAudio struct {
	SampleRate int
	Channels   int
	Samples    []int16 // interleaved
}

var errNotWAV = errors.New("not a PCM16 WAV file")

// parseWAV walks the RIFF chunks and returns the fmt and data contents.
// Only uncompressed 16-bit PCM is accepted.
func parseWAV(b []byte) (wavAudio, error) {
	if len(b) < 12 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return wavAudio{}, errNotWAV
	}
	var out wavAudio
	var haveFmt bool
	pos := 12
	for pos+8 <= len(b) {
		id := string(b[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(b[pos+4 : pos+8]))
		body := pos + 8
		if size < 0 || body+size > len(b) {
			size = len(b) - body
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return wavAudio{}, fmt.Errorf("%w: short fmt chunk", errNotWAV)
			}
			format := binary.LittleEndian.Uint16(b[body:])
			out.Channels = int(binary.LittleEndian.Uint16(b[body+2:]))
			out.SampleRate = int(binary.LittleEndian.Uint32(b[body+4:]))
			bits := binary.LittleEndian.Uint16(b[body+14:])
			if (format != 1 && format != 0xFFFE) || bits != 16 {
				return wavAudio{}, fmt.Errorf("%w: format %d with %d bits", errNotWAV, format, bits)
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return wavAudio{}, fmt.Errorf("%w: data before fmt", errNotWAV)
			}
			out.Samples = pcmToSamples(b[body : body+size])
			if out.Channels <= 0 || out.SampleRate <= 0 {
				return wavAudio{}, fmt.Errorf("%w: bad header", errNotWAV)
			}
			return out, nil
		}
		pos = body + size + size%2
	}
	return wavAudio{}, fmt.Errorf("%w: no data chunk", errNotWAV)
}

func pcmToSamples(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

func samplesToPCM(s []int16) []byte {
	out := make([]byte, len(s)*2)
	for i, v := range s {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// toStereo48k converts audio to interleaved stereo at 48 kHz using linear
// interpolation. Mono is duplicated; extra channels beyond two are dropped.
func toStereo48k(a wavAudio) []int16 {
	frames := len(a.Samples) / a.Channels
	if frames == 0 {
		return nil
	}
	left := make([]float64, frames)
	right := make([]float64, frames)
	for i := 0; i < frames; i++ {
		l := a.Samples[i*a.Channels]
		r := l
		if a.Channels > 1 {
			r = a.Samples[i*a.Channels+1]
		}
		left[i], right[i] = float64(l), float64(r)
	}
	outFrames := frames
	if a.SampleRate != sampleRate {
		outFrames = int(int64(frames) * sampleRate / int64(a.SampleRate))
	}
	out := make([]int16, outFrames*2)
	ratio := float64(a.SampleRate) / sampleRate
	for i := 0; i < outFrames; i++ {
		src := float64(i) * ratio
		j := int(src)
		frac := src - float64(j)
		k := j + 1
		if k >= frames {
			k = frames - 1
		}
		out[i*2] = int16(left[j] + (left[k]-left[j])*frac)
		out[i*2+1] = int16(right[j] + (right[k]-right[j])*frac)
	}
	return out
}
