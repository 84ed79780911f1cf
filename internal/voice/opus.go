//go:build opus

package voice

import "github.com/hraban/opus"

// maxOpusFrame is 120 ms at 48 kHz, the longest frame opus allows.
const maxOpusFrame = 5760

type hrabanDecoder struct {
	d   *opus.Decoder
	buf []int16
}

func newOpusDecoder() (opusDecoder, error) {
	d, err := opus.NewDecoder(sampleRate, captureChannels)
	if err != nil {
		return nil, err
	}
	return &hrabanDecoder{d: d, buf: make([]int16, maxOpusFrame*captureChannels)}, nil
}

func (h *hrabanDecoder) Decode(data []byte) ([]int16, error) {
	n, err := h.d.Decode(data, h.buf)
	if err != nil {
		return nil, err
	}
	return append([]int16(nil), h.buf[:n*captureChannels]...), nil
}

type hrabanEncoder struct {
	e   *opus.Encoder
	buf []byte
}

func newOpusEncoder() (opusEncoder, error) {
	e, err := opus.NewEncoder(sampleRate, playbackChannels, opus.AppVoIP)
	if err != nil {
		return nil, err
	}
	return &hrabanEncoder{e: e, buf: make([]byte, 4000)}, nil
}

func (h *hrabanEncoder) Encode(pcm []int16) ([]byte, error) {
	n, err := h.e.Encode(pcm, h.buf)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), h.buf[:n]...), nil
}
