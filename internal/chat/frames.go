package chat

import (
	"github.com/niranjanbala/agency-10x/internal/domain"
	"github.com/niranjanbala/agency-10x/internal/scoping"
)

// Client frame types.
const (
	frameHello       = "hello"
	frameMessage     = "message"
	frameReset       = "reset"
	frameVoiceToggle = "voice_toggle"
	frameVoiceResult = "voice_result"
	frameVoiceEnd    = "voice_end"
)

// Server frame and SSE event types.
const (
	eventAck        = "ack"
	eventMessage    = "message"
	eventAssessment = "assessment"
	eventSchedule   = "schedule"
	eventDone       = "done"
	eventError      = "error"
	eventSpeak      = "speak"
	eventListen     = "listen"
	eventDraft      = "draft"
	eventState      = "state"
)

// clientFrame is a websocket message from the browser.
type clientFrame struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// serverFrame is a websocket message to the browser. The same payloads are
// used as SSE event data, minus the type.
type serverFrame struct {
	Type          string             `json:"type,omitempty"`
	Text          string             `json:"text,omitempty"`
	Message       *domain.Message    `json:"message,omitempty"`
	Assessment    *domain.Assessment `json:"assessment,omitempty"`
	SchedulingURL string             `json:"scheduling_url,omitempty"`
	State         *stateResponse     `json:"state,omitempty"`
	Error         string             `json:"error,omitempty"`
	Code          string             `json:"code,omitempty"`
	Active        *bool              `json:"active,omitempty"`
	Rate          float64            `json:"rate,omitempty"`
	Pitch         float64            `json:"pitch,omitempty"`
	Volume        float64            `json:"volume,omitempty"`
}

// stateResponse is the conversation as rendered to the client.
type stateResponse struct {
	scoping.Snapshot
	SessionID     string `json:"session_id"`
	SchedulingURL string `json:"scheduling_url,omitempty"`
}

func listenFrame(active bool) serverFrame {
	return serverFrame{Type: eventListen, Active: &active}
}

func speakFrame(text string) serverFrame {
	return serverFrame{
		Type:   eventSpeak,
		Text:   text,
		Rate:   scoping.SpeechRate,
		Pitch:  scoping.SpeechPitch,
		Volume: scoping.SpeechVolume,
	}
}
