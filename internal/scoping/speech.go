package scoping

import "context"

// SpeechInput captures one spoken utterance per activation.
type SpeechInput interface {
	// Available reports whether voice capture is possible at all.
	Available() bool
	// Capture returns the recognised text, or ok=false if capture ended
	// without a result.
	Capture(ctx context.Context) (text string, ok bool)
}

// SpeechOutput reads assistant text aloud.
type SpeechOutput interface {
	Speak(ctx context.Context, text string) error
}

// Voice settings used by speech output.
const (
	SpeechRate   = 0.8
	SpeechPitch  = 1.0
	SpeechVolume = 0.8
)

// NoopSpeechInput is used when voice capture is unavailable.
type NoopSpeechInput struct{}

func (NoopSpeechInput) Available() bool { return false }
func (NoopSpeechInput) Capture(context.Context) (string, bool) { return "", false }

// NoopSpeechOutput discards speech.
type NoopSpeechOutput struct{}

func (NoopSpeechOutput) Speak(context.Context, string) error { return nil }
