package voice

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/discord-voice-lab/voiceturn/internal/logging"
)

// sendTimeout bounds how long one opus packet may wait for the voice
// connection's sender.
const sendTimeout = 2 * time.Second

var errPlayerClosed = errors.New("player closed")

// DiscordPlayer plays WAV files into a voice connection.
type DiscordPlayer struct {
	send       chan<- []byte
	speaking   func(bool) error
	newEncoder func() (opusEncoder, error)

	closeOnce sync.Once
	done      chan struct{}
}

func NewDiscordPlayer(vc *discordgo.VoiceConnection) *DiscordPlayer {
	p := &DiscordPlayer{newEncoder: newOpusEncoder, done: make(chan struct{})}
	if vc != nil {
		p.send = vc.OpusSend
		p.speaking = vc.Speaking
	}
	return p
}

// Play implements Player. The file is decoded and encoded up front so that
// format errors are returned synchronously; sending happens on its own
// goroutine and ends with onFinished.
func (p *DiscordPlayer) Play(path string, onFinished func(error)) error {
	if p.send == nil {
		return fmt.Errorf("player: voice connection has no send channel")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("player: %w", err)
	}
	audio, err := parseWAV(b)
	if err != nil {
		return fmt.Errorf("player: %s: %w", path, err)
	}
	enc, err := p.newEncoder()
	if err != nil {
		return fmt.Errorf("player: %w", err)
	}
	packets, err := encodeFrames(enc, toStereo48k(audio))
	if err != nil {
		return fmt.Errorf("player: encode %s: %w", path, err)
	}
	go func() {
		onFinished(p.sendPackets(packets))
	}()
	return nil
}

func (p *DiscordPlayer) sendPackets(packets [][]byte) error {
	if p.speaking != nil {
		if err := p.speaking(true); err != nil {
			logging.Debugw("player: speaking(true) failed", "err", err)
		}
		defer func() {
			if err := p.speaking(false); err != nil {
				logging.Debugw("player: speaking(false) failed", "err", err)
			}
		}()
	}
	timer := time.NewTimer(sendTimeout)
	defer timer.Stop()
	for i, pkt := range packets {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(sendTimeout)
		select {
		case p.send <- pkt:
		case <-p.done:
			return errPlayerClosed
		case <-timer.C:
			return fmt.Errorf("player: send stalled at packet %d of %d", i+1, len(packets))
		}
	}
	return nil
}

// Close aborts any playback in progress.
func (p *DiscordPlayer) Close() error {
	p.closeOnce.Do(func() { close(p.done) })
	return nil
}

// encodeFrames splits interleaved stereo PCM into 20 ms frames, padding the
// last one with silence.
func encodeFrames(enc opusEncoder, pcm []int16) ([][]byte, error) {
	const frameLen = frameSamples * playbackChannels
	var out [][]byte
	for start := 0; start < len(pcm); start += frameLen {
		frame := pcm[start:min(start+frameLen, len(pcm))]
		if len(frame) < frameLen {
			padded := make([]int16, frameLen)
			copy(padded, frame)
			frame = padded
		}
		pkt, err := enc.Encode(frame)
		if err != nil {
			return nil, err
		}
		out = append(out, pkt)
	}
	return out, nil
}
