package voice

import "context"

// FrameSink receives captured frames. The Segmenter implements it.
type FrameSink interface {
	HandleFrame(f AudioFrame)
}

// Capture is the platform-level audio capture handle for one call.
type Capture interface {
	StartCapture(sink FrameSink) error
	StopCapture() error
	IsConnected() bool
}

// Transcription is the result of a successful transcription job.
type Transcription struct {
	Text      string
	Timestamp float64
}

// Transcriber turns one utterance into text. Implementations block and are
// run on the worker pool.
type Transcriber interface {
	Transcribe(ctx context.Context, u Utterance) (Transcription, error)
}

// Generator produces a reply for a finished transcript.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Synthesizer renders text to an audio file and returns its path.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (string, error)
}

// Player plays one audio file. onFinished must be called exactly once when
// playback ends, including on failure after Play returned nil.
type Player interface {
	Play(path string, onFinished func(error)) error
}

// SessionSink accepts finalized sessions from the Segmenter.
type SessionSink interface {
	Submit(ctx context.Context, s *RecordingSession) error
}

// Responder is the downstream side of the Dispatcher.
type Responder interface {
	Respond(ctx context.Context, t Transcript)
	RespondError(ctx context.Context, cause error)
}

// TranscriptSink receives every published transcript (best-effort).
type TranscriptSink interface {
	PublishTranscript(ctx context.Context, t Transcript) error
}
