package vad

import (
	"encoding/binary"

	webrtcvad "github.com/baabaaox/go-webrtcvad"
	"github.com/sirupsen/logrus"
)

// webrtcFrameSamples is the largest WebRTC-VAD-legal frame length at
// 16kHz (30ms); FrameSize (512) doesn't divide evenly into a legal
// length, so WebRTC only scores the leading window and the
// state-machine hysteresis above this adapter absorbs the difference.
const webrtcFrameSamples = 480

// WebRTC wraps Google's WebRTC VAD in the adapter contract's
// pass-a-context-carry shape. It reports a raw per-frame probability;
// the WaitingForSpeech / Recording / Finalising hysteresis lives in the
// listen pipeline.
type WebRTC struct {
	inst       webrtcvad.VadInst
	mode       int
	sampleRate int
	frameBytes []byte
}

// NewWebRTC initializes a WebRTC VAD instance at the given aggressiveness
// mode (0-3, higher = stricter about classifying audio as speech).
func NewWebRTC(mode int) (*WebRTC, error) {
	if mode < 0 || mode > 3 {
		mode = 2
	}
	inst := webrtcvad.Create()
	if err := webrtcvad.Init(inst); err != nil {
		return nil, err
	}
	if err := webrtcvad.SetMode(inst, mode); err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"mode": mode, "sample_rate": 16000}).Info("vad: webrtc engine initialized")
	return &WebRTC{
		inst:       inst,
		mode:       mode,
		sampleRate: 16000,
		frameBytes: make([]byte, webrtcFrameSamples*2),
	}, nil
}

func (w *WebRTC) Process(frame []float32, carry []float32) (float64, []float32, error) {
	for i := 0; i < webrtcFrameSamples && i < len(frame); i++ {
		sample := clampInt16(frame[i])
		binary.LittleEndian.PutUint16(w.frameBytes[i*2:], uint16(sample))
	}

	isVoice, err := webrtcvad.Process(w.inst, w.sampleRate, w.frameBytes, webrtcFrameSamples)
	if err != nil {
		return 0, nil, err
	}

	newCarry := make([]float32, CarrySize)
	if len(frame) >= CarrySize {
		copy(newCarry, frame[len(frame)-CarrySize:])
	}

	if isVoice {
		return 1.0, newCarry, nil
	}
	return 0.0, newCarry, nil
}

func clampInt16(sample float32) int16 {
	scaled := sample * 32767
	if scaled > 32767 {
		return 32767
	}
	if scaled < -32768 {
		return -32768
	}
	return int16(scaled)
}

func (w *WebRTC) Ready() bool { return w.inst != nil }

func (w *WebRTC) Close() error {
	if w.inst != nil {
		webrtcvad.Free(w.inst)
		w.inst = nil
	}
	return nil
}
