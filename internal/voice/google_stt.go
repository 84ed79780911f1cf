package voice

import (
	"context"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	gax "github.com/googleapis/gax-go/v2"

	"github.com/discord-voice-lab/voiceturn/internal/logging"
)

// recognizer is the subset of the Cloud Speech client used here.
type recognizer interface {
	Recognize(ctx context.Context, req *speechpb.RecognizeRequest, opts ...gax.CallOption) (*speechpb.RecognizeResponse, error)
}

// GoogleTranscriber sends utterances to Cloud Speech-to-Text as LINEAR16.
type GoogleTranscriber struct {
	client   recognizer
	closer   func() error
	language string
}

// NewGoogleTranscriber uses application default credentials.
func NewGoogleTranscriber(ctx context.Context, language string) (*GoogleTranscriber, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}
	if language == "" {
		language = "en-US"
	}
	return &GoogleTranscriber{client: c, closer: c.Close, language: language}, nil
}

func (g *GoogleTranscriber) Close() error {
	if g.closer == nil {
		return nil
	}
	return g.closer()
}

func (g *GoogleTranscriber) Transcribe(ctx context.Context, u Utterance) (Transcription, error) {
	resp, err := g.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz:            sampleRate,
			AudioChannelCount:          captureChannels,
			LanguageCode:               g.language,
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: u.Audio},
		},
	})
	if err != nil {
		return Transcription{}, fmt.Errorf("google stt: %w", err)
	}
	var parts []string
	for _, r := range resp.GetResults() {
		if alts := r.GetAlternatives(); len(alts) > 0 {
			if t := strings.TrimSpace(alts[0].GetTranscript()); t != "" {
				parts = append(parts, t)
			}
		}
	}
	logging.Debugw("google stt: recognized", "speaker_id", u.SpeakerID, "results", len(resp.GetResults()))
	return Transcription{Text: strings.Join(parts, " "), Timestamp: u.StartAt}, nil
}
