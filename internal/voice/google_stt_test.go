package voice

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/speech/apiv1/speechpb"
	gax "github.com/googleapis/gax-go/v2"
)

type fakeRecognizer struct {
	req  *speechpb.RecognizeRequest
	resp *speechpb.RecognizeResponse
	err  error
}

func (f *fakeRecognizer) Recognize(_ context.Context, req *speechpb.RecognizeRequest, _ ...gax.CallOption) (*speechpb.RecognizeResponse, error) {
	f.req = req
	return f.resp, f.err
}

func alt(text string) *speechpb.SpeechRecognitionResult {
	return &speechpb.SpeechRecognitionResult{
		Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: text}},
	}
}

func TestGoogleTranscriberJoinsResults(t *testing.T) {
	rec := &fakeRecognizer{resp: &speechpb.RecognizeResponse{
		Results: []*speechpb.SpeechRecognitionResult{alt(" hello "), alt(""), alt("world")},
	}}
	g := &GoogleTranscriber{client: rec, language: "en-GB"}
	res, err := g.Transcribe(context.Background(), Utterance{SpeakerID: "A", StartAt: 2, Audio: []byte{0, 0}})
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "hello world" || res.Timestamp != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	cfg := rec.req.GetConfig()
	if cfg.GetSampleRateHertz() != sampleRate || cfg.GetLanguageCode() != "en-GB" || cfg.GetEncoding() != speechpb.RecognitionConfig_LINEAR16 {
		t.Fatalf("unexpected config: %v", cfg)
	}
	if g.Close() != nil {
		t.Fatal("Close without a client should succeed")
	}
}

func TestGoogleTranscriberError(t *testing.T) {
	g := &GoogleTranscriber{client: &fakeRecognizer{err: errors.New("quota")}}
	if _, err := g.Transcribe(context.Background(), Utterance{}); err == nil {
		t.Fatal("expected error")
	}
}
