package transcribe

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

// Subprocess adapts a faster-whisper-style engine: resolve the engine
// binary once, then for every call spawn it fresh with the PCM on stdin
// and parse a single-line JSON response from stdout.
type Subprocess struct {
	binPath  string
	language string
}

type subprocessResponse struct {
	Text       string  `json:"text"`
	AvgLogProb float64 `json:"avg_logprob"`
	Error      string  `json:"error,omitempty"`
}

// NewSubprocess resolves binPath via exec.LookPath.
func NewSubprocess(binPath, language string) (*Subprocess, error) {
	resolved, err := exec.LookPath(binPath)
	if err != nil {
		return nil, fmt.Errorf("transcribe: engine binary %q not found: %w", binPath, err)
	}
	if language == "" {
		language = "auto"
	}
	logrus.WithFields(logrus.Fields{"bin": resolved, "language": language}).Info("transcribe: subprocess engine resolved")
	return &Subprocess{binPath: resolved, language: language}, nil
}

func (s *Subprocess) Transcribe(ctx context.Context, pcm []float32, sampleRate int) (Result, error) {
	raw := make([]byte, len(pcm)*4)
	for i, sample := range pcm {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(sample))
	}

	cmd := exec.CommandContext(ctx, s.binPath, "--sample-rate", fmt.Sprint(sampleRate), "--language", s.language)
	cmd.Stdin = bytes.NewReader(raw)

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	if err := cmd.Run(); err != nil {
		logrus.WithFields(logrus.Fields{"error": err, "stderr": errBuf.String()}).Error("transcribe: subprocess failed")
		return Result{}, fmt.Errorf("transcribe: engine failed: %w", err)
	}

	var resp subprocessResponse
	if err := json.Unmarshal(bytes.TrimSpace(outBuf.Bytes()), &resp); err != nil {
		return Result{}, fmt.Errorf("transcribe: malformed engine response: %w", err)
	}
	if resp.Error != "" {
		return Result{}, fmt.Errorf("transcribe: engine error: %s", resp.Error)
	}
	return Result{Text: resp.Text, AvgLogProb: resp.AvgLogProb}, nil
}

func (s *Subprocess) Ready() bool { return s.binPath != "" }

func (s *Subprocess) Close() error { return nil }
