package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/voxmcp/voxmcp/internal/errs"
	"github.com/voxmcp/voxmcp/internal/listen"
	"github.com/voxmcp/voxmcp/internal/registry"
	"github.com/voxmcp/voxmcp/internal/speech"
	"github.com/voxmcp/voxmcp/internal/voice"
)

// EmptyInput is the input shape for tools that take no arguments.
type EmptyInput struct{}

// --- speak ---------------------------------------------------------------

type SpeakInput struct {
	AgentName string  `json:"agent_name" jsonschema:"the calling agent's name, used for voice assignment and the session-name invariant"`
	Text      string  `json:"text" jsonschema:"the text to speak"`
	Speed     float64 `json:"speed,omitempty" jsonschema:"playback speed multiplier, default 1.0"`
	Block     bool    `json:"block,omitempty" jsonschema:"wait for audio playback to finish before returning"`
}

type SpeakOutput struct {
	Success      bool   `json:"success"`
	Voice        string `json:"voice,omitempty"`
	AutoAssigned bool   `json:"auto_assigned,omitempty"`
	Queued       bool   `json:"queued,omitempty"`
	DurationMS   int64  `json:"duration_ms,omitempty"`
	SynthesisMS  int64  `json:"synthesis_ms,omitempty"`
	Error        string `json:"error,omitempty"`
	Message      string `json:"message,omitempty"`
	SessionName  string `json:"session_name,omitempty"`
	SessionVoice string `json:"session_voice,omitempty"`
}

func (d *Dispatcher) handleSpeak(ctx context.Context, req *mcp.CallToolRequest, in SpeakInput) (*mcp.CallToolResult, SpeakOutput, error) {
	speed := in.Speed
	if speed <= 0 {
		speed = 1.0
	}
	outcome, err := d.State.Speech.Speak(ctx, in.AgentName, in.Text, speed, in.Block)
	return nil, speakOutputFrom(outcome, err), nil
}

func speakOutputFrom(outcome speech.Outcome, err error) SpeakOutput {
	out := SpeakOutput{
		Success:      outcome.Success,
		Voice:        outcome.Voice,
		AutoAssigned: outcome.AutoAssigned,
		Queued:       outcome.Queued,
		DurationMS:   outcome.DurationMS,
		SynthesisMS:  outcome.SynthesisMS,
		SessionName:  outcome.SessionName,
		SessionVoice: outcome.SessionVoice,
	}
	if d, ok := errs.As(err); ok {
		out.Error = string(d.Kind)
		out.Message = d.Message
	}
	return out
}

// --- listen ----------------------------------------------------------------

type ListenInput struct {
	Timeout          *float64 `json:"timeout,omitempty" jsonschema:"seconds to wait for speech before giving up; omit for the default of 15, 0 means return timeout immediately"`
	SilenceThreshold *float64 `json:"silence_threshold,omitempty" jsonschema:"seconds of trailing silence that ends an utterance; omit for the default of 1.5"`
	Prompt           string   `json:"prompt,omitempty" jsonschema:"optional text to speak before listening"`
}

type ListenOutput struct {
	Success         bool    `json:"success"`
	Text            string  `json:"text,omitempty"`
	Confidence      float64 `json:"confidence,omitempty"`
	DurationMS      int64   `json:"duration_ms,omitempty"`
	TranscriptionMS int64   `json:"transcription_ms,omitempty"`
	NudgeSpoken     bool    `json:"nudge_spoken,omitempty"`
	Error           string  `json:"error,omitempty"`
	Message         string  `json:"message,omitempty"`
}

func secs(f float64) time.Duration { return time.Duration(f * float64(time.Second)) }

func (d *Dispatcher) handleListen(ctx context.Context, req *mcp.CallToolRequest, in ListenInput) (*mcp.CallToolResult, ListenOutput, error) {
	if in.Prompt != "" {
		name := d.State.SessionName()
		if name == "" {
			name = "default"
		}
		if _, err := d.State.Speech.Speak(ctx, name, in.Prompt, 1.0, true); err != nil {
			logrus.WithError(err).Warn("dispatcher: listen prompt failed, listening anyway")
		}
	}

	timeout := 15 * time.Second
	if in.Timeout != nil {
		timeout = secs(*in.Timeout)
	}
	silence := 1500 * time.Millisecond
	if in.SilenceThreshold != nil {
		silence = secs(*in.SilenceThreshold)
	}

	cancel := d.State.NewCancelToken()
	outcome, err := d.State.Listen.Listen(ctx, cancel, timeout, silence, false)
	return nil, listenOutputFrom(outcome, err), nil
}

func listenOutputFrom(outcome listen.Outcome, err error) ListenOutput {
	out := ListenOutput{
		Success:         err == nil,
		Text:            outcome.Text,
		Confidence:      outcome.Confidence,
		DurationMS:      outcome.DurationMS,
		TranscriptionMS: outcome.TranscriptionMS,
	}
	if d, ok := errs.As(err); ok {
		out.Error = string(d.Kind)
		out.Message = d.Message
	}
	return out
}

// --- speak_then_listen -------------------------------------------------

type SpeakThenListenInput struct {
	AgentName        string   `json:"agent_name" jsonschema:"the calling agent's name"`
	Text             string   `json:"text" jsonschema:"the prompt to speak before listening"`
	Speed            float64  `json:"speed,omitempty"`
	Timeout          *float64 `json:"timeout,omitempty"`
	SilenceThreshold *float64 `json:"silence_threshold,omitempty"`
}

type SpeakThenListenOutput struct {
	Speak  SpeakOutput  `json:"speak"`
	Listen ListenOutput `json:"listen"`
}

// nudgePhrase is spoken once when the listen half of speak_then_listen
// times out without hearing anything, so the caller isn't left waiting on
// silence that already ended.
const nudgePhrase = "I'm still here whenever you're ready."

func (d *Dispatcher) handleSpeakThenListen(ctx context.Context, req *mcp.CallToolRequest, in SpeakThenListenInput) (*mcp.CallToolResult, SpeakThenListenOutput, error) {
	speed := in.Speed
	if speed <= 0 {
		speed = 1.0
	}
	speakOutcome, speakErr := d.State.Speech.Speak(ctx, in.AgentName, in.Text, speed, true)
	speakOut := speakOutputFrom(speakOutcome, speakErr)

	timeout := 15 * time.Second
	if in.Timeout != nil {
		timeout = secs(*in.Timeout)
	}
	silence := 1500 * time.Millisecond
	if in.SilenceThreshold != nil {
		silence = secs(*in.SilenceThreshold)
	}

	cancel := d.State.NewCancelToken()
	listenOutcome, listenErr := d.State.Listen.Listen(ctx, cancel, timeout, silence, false)
	listenOut := listenOutputFrom(listenOutcome, listenErr)

	// speak_then_listen never retries listen itself; a timeout just gets
	// one spoken nudge so the caller knows the window closed.
	if dErr, ok := errs.As(listenErr); ok && dErr.Kind == errs.KindTimeout {
		if _, nudgeErr := d.State.Speech.Speak(ctx, in.AgentName, nudgePhrase, 1.0, true); nudgeErr == nil {
			listenOut.NudgeSpoken = true
		}
	}

	return nil, SpeakThenListenOutput{Speak: speakOut, Listen: listenOut}, nil
}

// --- mute / unmute -------------------------------------------------------

type MuteOutput struct {
	Success bool `json:"success"`
	Muted   bool `json:"muted"`
}

func (d *Dispatcher) handleMute(ctx context.Context, req *mcp.CallToolRequest, in EmptyInput) (*mcp.CallToolResult, MuteOutput, error) {
	d.State.Speech.SetMuted(true)
	return nil, MuteOutput{Success: true, Muted: true}, nil
}

func (d *Dispatcher) handleUnmute(ctx context.Context, req *mcp.CallToolRequest, in EmptyInput) (*mcp.CallToolResult, MuteOutput, error) {
	d.State.Speech.SetMuted(false)
	return nil, MuteOutput{Success: true, Muted: false}, nil
}

// --- stop -----------------------------------------------------------------

type StopOutput struct {
	Success         bool `json:"success"`
	StoppedPlayback bool `json:"stopped_playback"`
	DrainedQueued   int  `json:"drained_queued"`
	CancelledListen bool `json:"cancelled_listen"`
}

func (d *Dispatcher) handleStop(ctx context.Context, req *mcp.CallToolRequest, in EmptyInput) (*mcp.CallToolResult, StopOutput, error) {
	stoppedPlayback, drained := d.State.Speech.Stop()
	cancelledListen := d.State.CancelListen()
	return nil, StopOutput{
		Success:         true,
		StoppedPlayback: stoppedPlayback,
		DrainedQueued:   drained,
		CancelledListen: cancelledListen,
	}, nil
}

// --- set_voice --------------------------------------------------------

type SetVoiceInput struct {
	AgentName string `json:"agent_name" jsonschema:"which agent's binding to change"`
	VoiceID   string `json:"voice_id" jsonschema:"a catalogue voice id, see list_voices"`
}

type SetVoiceOutput struct {
	Success      bool   `json:"success"`
	Name         string `json:"name,omitempty"`
	Voice        string `json:"voice,omitempty"`
	PreviousName string `json:"previous_name,omitempty"`
	Error        string `json:"error,omitempty"`
	Message      string `json:"message,omitempty"`
}

func (d *Dispatcher) handleSetVoice(ctx context.Context, req *mcp.CallToolRequest, in SetVoiceInput) (*mcp.CallToolResult, SetVoiceOutput, error) {
	if err := d.State.Voices.Set(in.AgentName, in.VoiceID); err != nil {
		if dErr, ok := errs.As(err); ok {
			return nil, SetVoiceOutput{Error: string(dErr.Kind), Message: dErr.Message}, nil
		}
		return nil, SetVoiceOutput{}, err
	}

	var previousName string
	if currentName := d.State.SessionName(); currentName != "" && currentName != in.AgentName {
		if _, err := d.State.Sessions.Rename(d.State.SelfPID, in.AgentName); err != nil {
			if occErr, ok := err.(*registry.ErrNameOccupied); ok {
				return nil, SetVoiceOutput{
					Error:   string(errs.KindNameOccupied),
					Message: fmt.Sprintf("name %q is occupied (voice %q)", occErr.Name, occErr.VoiceID),
				}, nil
			}
			return nil, SetVoiceOutput{}, err
		}
		previousName = currentName
	}

	if _, err := d.State.Sessions.SetVoice(d.State.SelfPID, in.VoiceID); err != nil {
		logrus.WithError(err).Warn("dispatcher: publishing set_voice to session registry failed")
	}

	return nil, SetVoiceOutput{
		Success:      true,
		Name:         in.AgentName,
		Voice:        in.VoiceID,
		PreviousName: previousName,
	}, nil
}

// --- get_voice_registry --------------------------------------------------

type GetVoiceRegistryOutput struct {
	Registry       map[string]string `json:"registry"`
	AvailablePool  []string          `json:"available_pool"`
	TotalAssigned  int               `json:"total_assigned"`
	TotalAvailable int               `json:"total_available"`
}

func (d *Dispatcher) handleGetVoiceRegistry(ctx context.Context, req *mcp.CallToolRequest, in EmptyInput) (*mcp.CallToolResult, GetVoiceRegistryOutput, error) {
	snap := d.State.Voices.Snapshot()
	return nil, GetVoiceRegistryOutput{
		Registry:       snap.Map,
		AvailablePool:  snap.AvailablePool,
		TotalAssigned:  snap.TotalAssigned,
		TotalAvailable: snap.TotalAvailable,
	}, nil
}

// --- list_voices -----------------------------------------------------

type VoiceInfo struct {
	ID     string `json:"id"`
	Gender string `json:"gender"`
	Accent string `json:"accent"`
}

type ListVoicesOutput struct {
	Voices []VoiceInfo `json:"voices"`
}

func (d *Dispatcher) handleListVoices(ctx context.Context, req *mcp.CallToolRequest, in EmptyInput) (*mcp.CallToolResult, ListVoicesOutput, error) {
	out := ListVoicesOutput{Voices: make([]VoiceInfo, 0, len(voice.Catalogue))}
	for _, v := range voice.Catalogue {
		out.Voices = append(out.Voices, VoiceInfo{ID: v.ID, Gender: string(v.Gender), Accent: v.Lang})
	}
	return nil, out, nil
}

// --- status -----------------------------------------------------------

type SessionInfo struct {
	Name  string `json:"name,omitempty"`
	Voice string `json:"voice,omitempty"`
	Port  int    `json:"port,omitempty"`
	PID   int    `json:"pid,omitempty"`
}

type WakeWordInfo struct {
	Enabled   bool   `json:"enabled"`
	Listening bool   `json:"listening"`
	Model     string `json:"model,omitempty"`
}

type StatusOutput struct {
	TTS          bool          `json:"tts"`
	STT          bool          `json:"stt"`
	VAD          bool          `json:"vad"`
	Muted        bool          `json:"muted"`
	UptimeS      float64       `json:"uptime_s"`
	RegistrySize int           `json:"registry_size"`
	QueueDepth   int           `json:"queue_depth"`
	Session      SessionInfo   `json:"session"`
	WakeWord     *WakeWordInfo `json:"wake_word,omitempty"`
}

func (d *Dispatcher) handleStatus(ctx context.Context, req *mcp.CallToolRequest, in EmptyInput) (*mcp.CallToolResult, StatusOutput, error) {
	return nil, d.State.Status(), nil
}

// --- wake_enable / wake_disable -----------------------------------------

type WakeToggleOutput struct {
	Success   bool `json:"success"`
	Listening bool `json:"listening"`
}

func (d *Dispatcher) handleWakeEnable(ctx context.Context, req *mcp.CallToolRequest, in EmptyInput) (*mcp.CallToolResult, WakeToggleOutput, error) {
	if d.State.WakeWord == nil {
		return nil, WakeToggleOutput{Success: false}, nil
	}
	d.State.WakeWord.Enable(context.Background())
	return nil, WakeToggleOutput{Success: true, Listening: true}, nil
}

func (d *Dispatcher) handleWakeDisable(ctx context.Context, req *mcp.CallToolRequest, in EmptyInput) (*mcp.CallToolResult, WakeToggleOutput, error) {
	if d.State.WakeWord == nil {
		return nil, WakeToggleOutput{Success: true}, nil
	}
	d.State.WakeWord.Disable()
	return nil, WakeToggleOutput{Success: true, Listening: false}, nil
}
