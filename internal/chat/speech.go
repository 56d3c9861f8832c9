package chat

import (
	"context"
	"sync"
	"time"
)

// maxListenDuration bounds one voice activation.
const maxListenDuration = 30 * time.Second

type voiceResult struct {
	text string
	ok   bool
}

// wsSpeechInput relays speech recognition performed by the browser. Capture
// asks the peer to start listening and waits for a voice_result or voice_end
// frame, which the read loop hands over through deliver.
type wsSpeechInput struct {
	peer *Peer

	mu      sync.Mutex
	pending chan voiceResult
}

func newWSSpeechInput(p *Peer) *wsSpeechInput {
	return &wsSpeechInput{peer: p}
}

func (in *wsSpeechInput) Available() bool { return true }

// Capture performs one activation. A second activation while one is pending
// ends immediately without a result.
func (in *wsSpeechInput) Capture(ctx context.Context) (string, bool) {
	in.mu.Lock()
	if in.pending != nil {
		in.mu.Unlock()
		return "", false
	}
	ch := make(chan voiceResult, 1)
	in.pending = ch
	in.mu.Unlock()

	defer func() {
		in.mu.Lock()
		if in.pending == ch {
			in.pending = nil
		}
		in.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, maxListenDuration)
	defer cancel()

	if err := in.peer.Send(ctx, listenFrame(true)); err != nil {
		return "", false
	}

	select {
	case res := <-ch:
		return res.text, res.ok
	case <-ctx.Done():
		return "", false
	}
}

// listening reports whether an activation is pending.
func (in *wsSpeechInput) listening() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.pending != nil
}

// deliver completes the pending activation. It reports false when nothing
// was listening.
func (in *wsSpeechInput) deliver(text string, ok bool) bool {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.pending == nil {
		return false
	}
	in.pending <- voiceResult{text: text, ok: ok}
	in.pending = nil
	return true
}

// wsSpeechOutput asks the peer to read assistant replies aloud.
type wsSpeechOutput struct {
	peer *Peer
}

func (out wsSpeechOutput) Speak(ctx context.Context, text string) error {
	return out.peer.Send(ctx, speakFrame(text))
}
