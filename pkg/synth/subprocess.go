package synth

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"

	"github.com/sirupsen/logrus"
)

// Subprocess shells out to an external synthesis engine binary for
// every call: resolve the binary once via exec.LookPath at
// construction, then spawn one short-lived process per request, feeding
// it a small JSON request on stdin and reading a JSON header followed by
// raw little-endian float32 PCM on stdout.
type Subprocess struct {
	binPath string
}

type subprocessRequest struct {
	VoiceID string  `json:"voice_id"`
	Text    string  `json:"text"`
	Speed   float64 `json:"speed"`
}

type subprocessHeader struct {
	SampleRate int    `json:"sample_rate"`
	Error      string `json:"error,omitempty"`
}

// NewSubprocess resolves binPath via exec.LookPath. A missing binary is
// not fatal here; the caller decides whether a degraded synthesis
// engine aborts startup.
func NewSubprocess(binPath string) (*Subprocess, error) {
	resolved, err := exec.LookPath(binPath)
	if err != nil {
		return nil, fmt.Errorf("synth: engine binary %q not found: %w", binPath, err)
	}
	logrus.WithField("bin", resolved).Info("synth: subprocess engine resolved")
	return &Subprocess{binPath: resolved}, nil
}

func (s *Subprocess) Synthesize(ctx context.Context, voiceID, text string, speed float64) (Result, error) {
	if text == "" {
		return Result{}, ErrEmptyText
	}

	reqBody, err := json.Marshal(subprocessRequest{VoiceID: voiceID, Text: text, Speed: speed})
	if err != nil {
		return Result{}, err
	}

	cmd := exec.CommandContext(ctx, s.binPath, "--stdin-json")
	cmd.Stdin = bytes.NewReader(reqBody)

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	if err := cmd.Run(); err != nil {
		logrus.WithFields(logrus.Fields{"error": err, "stderr": errBuf.String()}).Error("synth: subprocess failed")
		return Result{}, fmt.Errorf("synth: engine failed: %w", err)
	}

	return parseSubprocessOutput(outBuf.Bytes())
}

func parseSubprocessOutput(out []byte) (Result, error) {
	nl := bytes.IndexByte(out, '\n')
	if nl < 0 {
		return Result{}, fmt.Errorf("synth: malformed engine output: no header line")
	}
	var header subprocessHeader
	if err := json.Unmarshal(out[:nl], &header); err != nil {
		return Result{}, fmt.Errorf("synth: malformed engine header: %w", err)
	}
	if header.Error != "" {
		return Result{}, fmt.Errorf("synth: engine error: %s", header.Error)
	}

	raw := out[nl+1:]
	if len(raw)%4 != 0 {
		return Result{}, fmt.Errorf("synth: pcm payload not aligned to float32")
	}
	pcm := make([]float32, len(raw)/4)
	for i := range pcm {
		bits := binary.LittleEndian.Uint32(raw[i*4:])
		pcm[i] = math.Float32frombits(bits)
	}
	return Result{PCM: pcm, SampleRate: header.SampleRate}, nil
}

func (s *Subprocess) Ready() bool { return s.binPath != "" }

func (s *Subprocess) Close() error { return nil }
