// Package dispatcher wires every pipeline into a single ServerState
// aggregate and exposes it to MCP tool calls over stdio and to the HTTP
// side-channel. Startup/shutdown sequencing and the stale-session sweep
// timer live in cmd/voxmcp.
package dispatcher

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/voxmcp/voxmcp/internal/listen"
	"github.com/voxmcp/voxmcp/internal/registry"
	"github.com/voxmcp/voxmcp/internal/speech"
	"github.com/voxmcp/voxmcp/internal/voice"
	"github.com/voxmcp/voxmcp/internal/wakeword"
)

// EngineStatus records which engine adapters loaded successfully at
// startup (missing TTS or STT degrades, it does not abort).
type EngineStatus struct {
	TTSReady bool
	STTReady bool
	VADReady bool
}

// ServerState is the single process-global aggregate every tool handler
// and HTTP route reads and mutates. No pipeline holds a second,
// independent copy of mute/registry/queue state; they all reach it
// through this struct.
type ServerState struct {
	Started       time.Time
	SelfPID       int
	WakeWordModel string
	EngineStatus  EngineStatus

	Voices   *voice.Registry
	Speech   *speech.Pipeline
	Listen   *listen.Pipeline
	Sessions *registry.Store
	WakeWord *wakeword.Listener

	cancelMu sync.Mutex
	cancelCh chan struct{}
}

// SessionName reports this process's own registered name, or "" if it has
// not yet registered.
func (s *ServerState) SessionName() string {
	entry, ok := s.selfEntry()
	if !ok {
		return ""
	}
	return entry.Name
}

func (s *ServerState) selfEntry() (registry.Entry, bool) {
	for _, e := range s.snapshot() {
		if e.PID == s.SelfPID {
			return e, true
		}
	}
	return registry.Entry{}, false
}

func (s *ServerState) snapshot() []registry.Entry {
	entries, err := s.Sessions.Snapshot()
	if err != nil {
		logrus.WithError(err).Warn("dispatcher: session snapshot failed")
		return nil
	}
	return entries
}

// Uptime is the duration since this process's ServerState was constructed.
func (s *ServerState) Uptime() time.Duration {
	return time.Since(s.Started)
}

// NewCancelToken registers a fresh cancel channel for the in-flight
// listen. Whichever source trips it first (stop, a cancellation
// notification, or timeout) is observed identically by the listen
// pipeline.
func (s *ServerState) NewCancelToken() <-chan struct{} {
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	ch := make(chan struct{})
	s.cancelCh = ch
	return ch
}

// CancelListen trips the current listen's cancel token, if one is in
// flight and not already tripped. Returns whether it actually cancelled
// anything (used by the stop tool's cancelled_listen field).
func (s *ServerState) CancelListen() bool {
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	if s.cancelCh == nil {
		return false
	}
	select {
	case <-s.cancelCh:
		return false
	default:
		close(s.cancelCh)
		return true
	}
}

// Status aggregates the status tool payload.
func (s *ServerState) Status() StatusOutput {
	entry, _ := s.selfEntry()
	out := StatusOutput{
		TTS:          s.EngineStatus.TTSReady,
		STT:          s.EngineStatus.STTReady,
		VAD:          s.EngineStatus.VADReady,
		Muted:        s.Speech.Muted(),
		UptimeS:      s.Uptime().Seconds(),
		RegistrySize: len(s.snapshot()),
		QueueDepth:   s.Speech.Queue.Depth(),
		Session: SessionInfo{
			Name: entry.Name,
			Voice: entry.VoiceID,
			Port: entry.Port,
			PID:  entry.PID,
		},
	}
	if s.WakeWord != nil {
		out.WakeWord = &WakeWordInfo{
			Enabled:   s.WakeWord.Running(),
			Listening: s.WakeWord.State() == wakeword.Listening,
			Model:     s.WakeWordModel,
		}
	}
	return out
}
