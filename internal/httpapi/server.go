// Package httpapi implements the per-process loopback HTTP
// side-channel: GET /status, POST /listen, POST /speak, POST /session,
// plus the POST /inject route the wake-word listener's routing delivers
// to on a sibling process. The terminal-multiplexer write itself stays
// an external shell wrapper; /inject only invokes it.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"os/exec"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/voxmcp/voxmcp/internal/dispatcher"
	"github.com/voxmcp/voxmcp/internal/errs"
)

// Server is the HTTP side-channel for one voxmcp process.
type Server struct {
	State      *dispatcher.ServerState
	InjectCmd  string // external tmux-wrapper binary; empty disables /inject
	httpServer *http.Server
}

// NewServer builds a Server bound to 127.0.0.1:port. injectCmd is the
// configured external wrapper invoked as `injectCmd <tmux_session> <text>`
// to actually deliver text into the terminal multiplexer.
func NewServer(state *dispatcher.ServerState, port int, injectCmd string) *Server {
	s := &Server{State: state, InjectCmd: injectCmd}

	r := mux.NewRouter()
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/listen", s.handleListen).Methods(http.MethodPost)
	r.HandleFunc("/speak", s.handleSpeak).Methods(http.MethodPost)
	r.HandleFunc("/session", s.handleSession).Methods(http.MethodPost)
	r.HandleFunc("/inject", s.handleInject).Methods(http.MethodPost)

	s.httpServer = &http.Server{
		Addr:              "127.0.0.1:" + strconv.Itoa(port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Serve runs the side-channel until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}()

	logrus.WithField("addr", s.httpServer.Addr).Info("httpapi: side-channel listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.State.Status())
}

type listenRequest struct {
	Timeout          *float64 `json:"timeout,omitempty"`
	SilenceThreshold *float64 `json:"silence_threshold,omitempty"`
}

// handleListen mirrors the listen tool but skips the ready-cue prelude:
// this request already arrived over the network, there is no "about to
// start speaking into your mic" moment to announce.
func (s *Server) handleListen(w http.ResponseWriter, r *http.Request) {
	var req listenRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	timeout := 15 * time.Second
	if req.Timeout != nil {
		timeout = secondsToDuration(*req.Timeout)
	}
	silence := 1500 * time.Millisecond
	if req.SilenceThreshold != nil {
		silence = secondsToDuration(*req.SilenceThreshold)
	}

	cancel := s.State.NewCancelToken()
	outcome, err := s.State.Listen.Listen(r.Context(), cancel, timeout, silence, true)

	resp := map[string]any{
		"success":          err == nil,
		"text":             outcome.Text,
		"confidence":       outcome.Confidence,
		"duration_ms":      outcome.DurationMS,
		"transcription_ms": outcome.TranscriptionMS,
	}
	if d, ok := errs.As(err); ok {
		resp["error"] = string(d.Kind)
		resp["message"] = d.Message
	}
	writeJSON(w, http.StatusOK, resp)
}

type speakRequest struct {
	AgentName string  `json:"agent_name"`
	Text      string  `json:"text"`
	Speed     float64 `json:"speed,omitempty"`
	Block     bool    `json:"block,omitempty"`
}

func (s *Server) handleSpeak(w http.ResponseWriter, r *http.Request) {
	var req speakRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}
	speed := req.Speed
	if speed <= 0 {
		speed = 1.0
	}
	outcome, err := s.State.Speech.Speak(r.Context(), req.AgentName, req.Text, speed, req.Block)

	resp := map[string]any{
		"success":       outcome.Success,
		"voice":         outcome.Voice,
		"auto_assigned": outcome.AutoAssigned,
		"queued":        outcome.Queued,
		"duration_ms":   outcome.DurationMS,
		"synthesis_ms":  outcome.SynthesisMS,
	}
	if d, ok := errs.As(err); ok {
		resp["error"] = string(d.Kind)
		resp["message"] = d.Message
	}
	writeJSON(w, http.StatusOK, resp)
}

type sessionRequest struct {
	SessionID string `json:"session_id"`
}

// handleSession receives the logical session id from the editor's
// session-start hook, triggering the sibling-adoption path.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		http.Error(w, "missing session_id", http.StatusBadRequest)
		return
	}
	entry, err := s.State.Sessions.AttachSessionID(s.State.SelfPID, req.SessionID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

type injectRequest struct {
	Text string `json:"text"`
}

// handleInject is the receiving end of the wake-word listener's routed
// delivery on a sibling process: it shells out to the configured
// external wrapper that actually writes into this process's bound
// terminal multiplexer session.
func (s *Server) handleInject(w http.ResponseWriter, r *http.Request) {
	var req injectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}
	if s.InjectCmd == "" {
		http.Error(w, "injection not configured", http.StatusServiceUnavailable)
		return
	}

	cmd := exec.CommandContext(r.Context(), s.InjectCmd, s.selfTmuxSession(), req.Text)
	if err := cmd.Run(); err != nil {
		logrus.WithError(err).Warn("httpapi: inject wrapper failed")
		http.Error(w, "injection failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) selfTmuxSession() string {
	entries, err := s.State.Sessions.Snapshot()
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if e.PID == s.State.SelfPID {
			return e.TmuxSession
		}
	}
	return ""
}

func secondsToDuration(f float64) time.Duration { return time.Duration(f * float64(time.Second)) }
