package voice

// opusDecoder turns one opus packet into mono PCM samples.
type opusDecoder interface {
	Decode(data []byte) ([]int16, error)
}

// opusEncoder turns one 20 ms stereo PCM frame into an opus packet.
type opusEncoder interface {
	Encode(pcm []int16) ([]byte, error)
}

const (
	playbackChannels = 2
	// samples per channel in one 20 ms frame at 48 kHz
	frameSamples = sampleRate / 50
)
