package voice

import (
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/discord-voice-lab/voiceturn/internal/logging"
)

// DiscordCapture adapts a discordgo voice connection to Capture. One reader
// goroutine drains OpusRecv for the lifetime of the connection; packets are
// decoded per SSRC and forwarded only while a sink is attached.
type DiscordCapture struct {
	vc         *discordgo.VoiceConnection
	origin     time.Time
	now        func() time.Time
	newDecoder func() (opusDecoder, error)

	mu        sync.Mutex
	sink      FrameSink
	ssrcUsers map[uint32]string
	allow     map[string]struct{}
	decoders  map[uint32]opusDecoder

	readerOnce sync.Once
	closeOnce  sync.Once
	done       chan struct{}
}

// NewDiscordCapture registers a speaking-update handler on vc. Frame
// timestamps are seconds since origin.
func NewDiscordCapture(vc *discordgo.VoiceConnection, origin time.Time, allowedUsers []string) *DiscordCapture {
	c := newDiscordCapture(vc, origin, newOpusDecoder)
	c.SetAllowedUsers(allowedUsers)
	if vc != nil {
		vc.AddHandler(func(_ *discordgo.VoiceConnection, su *discordgo.VoiceSpeakingUpdate) {
			c.mapSpeaker(uint32(su.SSRC), su.UserID)
		})
	}
	return c
}

func newDiscordCapture(vc *discordgo.VoiceConnection, origin time.Time, dec func() (opusDecoder, error)) *DiscordCapture {
	return &DiscordCapture{
		vc:         vc,
		origin:     origin,
		now:        time.Now,
		newDecoder: dec,
		ssrcUsers:  make(map[uint32]string),
		allow:      make(map[string]struct{}),
		decoders:   make(map[uint32]opusDecoder),
		done:       make(chan struct{}),
	}
}

// SetAllowedUsers restricts capture to the given user IDs. An empty list
// accepts everyone.
func (c *DiscordCapture) SetAllowedUsers(ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.allow = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			c.allow[id] = struct{}{}
		}
	}
	logging.Infow("capture: allowed users set", "count", len(c.allow))
}

func (c *DiscordCapture) mapSpeaker(ssrc uint32, userID string) {
	c.mu.Lock()
	c.ssrcUsers[ssrc] = userID
	c.mu.Unlock()
	logging.Infow("capture: mapped SSRC to user", "ssrc", ssrc, "user.id", userID)
}

// StartCapture attaches sink. The reader goroutine starts on first use.
func (c *DiscordCapture) StartCapture(sink FrameSink) error {
	select {
	case <-c.done:
		return ErrCaptureClosed
	default:
	}
	c.mu.Lock()
	c.sink = sink
	c.mu.Unlock()
	c.readerOnce.Do(func() {
		if c.vc != nil && c.vc.OpusRecv != nil {
			go c.readLoop(c.vc.OpusRecv)
		}
	})
	return nil
}

// StopCapture detaches the sink; packets are discarded until the next
// StartCapture.
func (c *DiscordCapture) StopCapture() error {
	c.mu.Lock()
	c.sink = nil
	c.mu.Unlock()
	return nil
}

func (c *DiscordCapture) IsConnected() bool {
	select {
	case <-c.done:
		return false
	default:
	}
	if c.vc == nil {
		return false
	}
	c.vc.RLock()
	defer c.vc.RUnlock()
	return c.vc.Ready
}

// Close stops the reader goroutine.
func (c *DiscordCapture) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *DiscordCapture) readLoop(recv <-chan *discordgo.Packet) {
	logging.Infow("capture: reader started")
	defer logging.Infow("capture: reader stopped")
	for {
		select {
		case <-c.done:
			return
		case pkt, ok := <-recv:
			if !ok {
				return
			}
			if pkt == nil {
				continue
			}
			c.handlePacket(pkt.SSRC, pkt.Opus)
		}
	}
}

// handlePacket decodes one opus packet and forwards it as an AudioFrame.
func (c *DiscordCapture) handlePacket(ssrc uint32, payload []byte) {
	at := c.now().Sub(c.origin).Seconds()
	c.mu.Lock()
	sink := c.sink
	if sink == nil {
		c.mu.Unlock()
		return
	}
	uid := c.ssrcUsers[ssrc]
	if len(c.allow) > 0 && uid != "" {
		if _, ok := c.allow[uid]; !ok {
			c.mu.Unlock()
			return
		}
	}
	dec, err := c.decoderFor(ssrc)
	c.mu.Unlock()
	if err != nil {
		logging.Errorw("capture: opus decoder unavailable", "ssrc", ssrc, "err", err)
		return
	}

	pcm, err := dec.Decode(payload)
	if err != nil {
		logging.Debugw("capture: opus decode error", "ssrc", ssrc, "err", err)
		return
	}
	if len(pcm) == 0 {
		return
	}
	speaker := uid
	if speaker == "" {
		speaker = "ssrc:" + strconv.FormatUint(uint64(ssrc), 10)
	}
	sink.HandleFrame(AudioFrame{Timestamp: at, SpeakerID: speaker, Payload: samplesToPCM(pcm)})
}

// decoderFor returns the SSRC's decoder. Caller holds c.mu.
func (c *DiscordCapture) decoderFor(ssrc uint32) (opusDecoder, error) {
	if d, ok := c.decoders[ssrc]; ok {
		return d, nil
	}
	d, err := c.newDecoder()
	if err != nil {
		return nil, err
	}
	c.decoders[ssrc] = d
	return d, nil
}
