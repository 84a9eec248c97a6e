// Command voxmcp is the long-running per-editor-session voice process:
// it loads configuration, builds the engine adapters, joins
// the shared voice and session registries, starts the speech and listen
// pipelines plus the HTTP side-channel and optional wake-word listener,
// then serves the MCP tool surface over stdio until the parent drops the
// pipe or a signal arrives.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/voxmcp/voxmcp/internal/config"
	"github.com/voxmcp/voxmcp/internal/dispatcher"
	"github.com/voxmcp/voxmcp/internal/httpapi"
	"github.com/voxmcp/voxmcp/internal/listen"
	"github.com/voxmcp/voxmcp/internal/mic"
	"github.com/voxmcp/voxmcp/internal/registry"
	"github.com/voxmcp/voxmcp/internal/speech"
	"github.com/voxmcp/voxmcp/internal/voice"
	"github.com/voxmcp/voxmcp/internal/wakeword"
	"github.com/voxmcp/voxmcp/pkg/capture"
	"github.com/voxmcp/voxmcp/pkg/synth"
	"github.com/voxmcp/voxmcp/pkg/transcribe"
	"github.com/voxmcp/voxmcp/pkg/vad"
	"github.com/voxmcp/voxmcp/pkg/wake"
)

const (
	voiceRegistrySaveInterval = 60 * time.Second
	sessionSweepInterval      = 60 * time.Second
)

func main() {
	logLevel := flag.String("log-level", "", "debug|info|warn|error (overrides LOG_LEVEL)")
	stateDirFlag := flag.String("state-dir", "", "overrides the default per-user state directory")
	flag.Parse()

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	configureLogLevel(*logLevel)

	stateDir := *stateDirFlag
	if stateDir == "" {
		stateDir = config.StateDir()
	}

	cfg, err := config.Load(stateDir)
	if err != nil {
		logrus.WithError(err).Fatal("voxmcp: loading config")
	}
	if logrus.IsLevelEnabled(logrus.DebugLevel) {
		if rendered, err := config.MarshalYAML(cfg); err == nil {
			logrus.Debugf("voxmcp: effective config:\n%s", rendered)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	eng, status := buildEngines(cfg)
	if !status.TTSReady && !status.STTReady {
		logrus.Fatal("voxmcp: neither synthesis nor transcription engine is available, aborting")
	}

	voices := voice.New(filepath.Join(stateDir, "voice_registry.json"))
	voices.Load()
	voices.Seed(cfg.VoiceRegistrySeed)
	if cfg.DefaultVoice != "" {
		voices.Seed(map[string]string{"default": cfg.DefaultVoice})
	}
	voices.StartPersistTimer(voiceRegistrySaveInterval, ctx.Done())

	sessions := registry.New(filepath.Join(stateDir, "sessions.json"), cfg.HTTPBasePort)
	sessions.SetPing(httpapi.Ping)

	preferredName := cfg.LastVoiceName
	if preferredName == "" {
		preferredName = cfg.MainAgent
	}
	selfPID := os.Getpid()
	tmuxSession := resolveTmuxSession()

	selfEntry, err := sessions.Register(preferredName, selfPID, tmuxSession, voice.ReconcileIdentity)
	if err != nil {
		// Session-registry errors during register are fatal at startup:
		// the process cannot operate without an identity.
		logrus.WithError(err).WithField("state_dir", stateDir).Fatal("voxmcp: registering session identity")
	}
	logrus.WithFields(logrus.Fields{
		"name": selfEntry.Name, "voice": selfEntry.VoiceID, "port": selfEntry.Port,
	}).Info("voxmcp: session registered")

	// Keep the in-process voice registry aligned with the session identity
	// the reconciliation just decided, so speak(selfEntry.Name) resolves to
	// the same voice the session registry published.
	if err := voices.Set(selfEntry.Name, selfEntry.VoiceID); err != nil {
		logrus.WithError(err).Warn("voxmcp: binding session voice failed")
	}

	if selfEntry.Name != cfg.LastVoiceName {
		cfg.LastVoiceName = selfEntry.Name
		if err := config.Save(stateDir, cfg); err != nil {
			logrus.WithError(err).Warn("voxmcp: saving last_voice_name failed")
		}
	}

	arbiter := mic.New()
	sink, err := speech.NewSink()
	if err != nil {
		logrus.WithError(err).Warn("voxmcp: no playback binary found, speak will fail at playback")
		sink = speech.NewDegradedSink()
	}

	queue := speech.NewQueue()
	worker := speech.NewWorker(queue, eng.synth, sink)

	state := &dispatcher.ServerState{
		Started:       time.Now(),
		SelfPID:       selfPID,
		WakeWordModel: cfg.Engines.WakeWord,
		EngineStatus: dispatcher.EngineStatus{
			TTSReady: status.TTSReady,
			STTReady: status.STTReady,
			VADReady: status.VADReady,
		},
		Voices:   voices,
		Sessions: sessions,
	}

	state.Speech = speech.NewPipeline(ctx, voices, sink, worker, queue, state.SessionName)

	var wakeListener *wakeword.Listener
	if eng.wake != nil && eng.captureOK {
		wakeListener = wakeword.New(arbiter, eng.device, eng.wake, eng.vad, eng.transcribe,
			sessions, httpapi.NewInjector(), cfg.WakeWord.Threshold)
		wakeListener.ReadyCue = sink.Cue
		state.WakeWord = wakeListener
	}

	state.Listen = listen.NewPipeline(arbiter, eng.device, eng.vad, eng.transcribe, wakeListenerYielder(wakeListener), state.Speech.Muted)
	state.Listen.ReadyCue = sink.Cue
	state.Listen.VADThreshold = cfg.STT.VADThreshold

	if wakeListener != nil && cfg.WakeWord.Enabled {
		wakeListener.Enable(ctx)
	}

	httpSrv := httpapi.NewServer(state, selfEntry.Port, os.Getenv("VOXMCP_INJECT_CMD"))
	go func() {
		if err := httpSrv.Serve(ctx); err != nil {
			logrus.WithError(err).Error("voxmcp: http side-channel stopped")
		}
	}()

	go runSweepTimer(ctx, sessions)

	d := dispatcher.New(state)

	logrus.Info("voxmcp: ready, serving tool calls over stdio")
	runErr := d.Run(ctx)

	shutdown(voices, sessions, selfPID, wakeListener)
	if runErr != nil && ctx.Err() == nil {
		logrus.WithError(runErr).Error("voxmcp: dispatcher stopped with error")
		os.Exit(1)
	}
}

// wakeListenerYielder adapts a possibly-nil *wakeword.Listener to
// listen.Yielder; a nil wake-word listener simply never yields anything.
func wakeListenerYielder(l *wakeword.Listener) listen.Yielder {
	if l == nil {
		return nil
	}
	return l
}

func runSweepTimer(ctx context.Context, sessions *registry.Store) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sessions.Sweep(ctx); err != nil {
				logrus.WithError(err).Warn("voxmcp: stale-session sweep failed")
			}
		}
	}
}

func shutdown(voices *voice.Registry, sessions *registry.Store, selfPID int, wakeListener *wakeword.Listener) {
	logrus.Info("voxmcp: shutting down")
	if wakeListener != nil {
		wakeListener.Disable()
	}
	if err := voices.Save(); err != nil {
		logrus.WithError(err).Warn("voxmcp: saving voice registry failed")
	}
	if err := sessions.Unregister(selfPID); err != nil {
		logrus.WithError(err).Warn("voxmcp: unregistering session failed")
	}
}

func configureLogLevel(flagValue string) {
	level := flagValue
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	switch strings.ToLower(level) {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "warn", "warning":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}
}

// resolveTmuxSession reports the tmux session name hosting this process,
// if any. The shell wrapper that sets it is external; the session name is
// ambient environment this process can read directly.
func resolveTmuxSession() string {
	return os.Getenv("TMUX_SESSION")
}

// engines bundles every adapter built at startup plus which ones loaded
// successfully, for EngineStatus and for deciding whether the wake-word
// listener can run at all.
type engines struct {
	synth     synth.Synthesizer
	transcribe transcribe.Transcriber
	vad       vad.Detector
	wake      wake.Detector
	device    capture.Device
	captureOK bool
}

type engineStatus struct {
	TTSReady bool
	STTReady bool
	VADReady bool
}

// buildEngines constructs every engine adapter with failure toleration:
// a missing synthesis or transcription binary degrades to
// a fake backend rather than aborting; only both missing together is
// fatal (checked by the caller). VAD always has a working implementation
// since go-webrtcvad is a pure dependency, not an external binary; the
// wake-word adapter and the capture device are the two collaborators
// whose absence (logged as a warning) disables the wake-word listener.
// Without a capture device, listen also runs on a silent fake device and
// times out.
func buildEngines(cfg config.Config) (engines, engineStatus) {
	var e engines
	var status engineStatus

	if cfg.Engines.Synthesis != "" {
		if s, err := synth.NewSubprocess(cfg.Engines.Synthesis); err == nil {
			e.synth = s
			status.TTSReady = true
		} else {
			logrus.WithError(err).Warn("voxmcp: synthesis engine unavailable, degrading")
		}
	}
	if e.synth == nil {
		fake := synth.NewFake()
		fake.SetReady(false)
		e.synth = fake
	}

	if cfg.Engines.Transcription != "" {
		if t, err := transcribe.NewSubprocess(cfg.Engines.Transcription, ""); err == nil {
			e.transcribe = t
			status.STTReady = true
		} else {
			logrus.WithError(err).Warn("voxmcp: transcription engine unavailable, degrading")
		}
	}
	if e.transcribe == nil {
		fake := transcribe.NewFake()
		fake.SetReady(false)
		e.transcribe = fake
	}

	if v, err := vad.NewWebRTC(2); err == nil {
		e.vad = v
		status.VADReady = true
	} else {
		logrus.WithError(err).Warn("voxmcp: webrtc vad unavailable, falling back to fake detector")
		e.vad = vad.NewFake()
	}

	if cfg.Engines.WakeWord != "" {
		if w, err := wake.NewSubprocess(cfg.Engines.WakeWord); err == nil {
			e.wake = w
		} else {
			logrus.WithError(err).Warn("voxmcp: wake-word engine unavailable, wake-word listener disabled")
		}
	}

	if cfg.Engines.Capture != "" {
		if dev, err := capture.NewSubprocess(cfg.Engines.Capture); err == nil {
			e.device = dev
			e.captureOK = true
		} else {
			logrus.WithError(err).Warn("voxmcp: capture engine unavailable, wake-word listener disabled; listen will time out with no audio")
		}
	}
	if e.device == nil {
		e.device = capture.NewFakeDevice()
	}

	return e, status
}
