package wake

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/sirupsen/logrus"
)

// Subprocess adapts an external wake-word scoring engine, the same
// spawn-per-call-over-stdio shape pkg/synth and pkg/transcribe use for
// their real adapters: resolve the binary once, then for every frame
// spawn it fresh with the raw int16 samples on stdin and parse a
// single-line JSON map of model id to score from stdout.
type Subprocess struct {
	binPath string
}

type subprocessScores map[string]float64

// NewSubprocess resolves binPath via exec.LookPath. A missing binary is
// not fatal; whether a degraded wake-word engine disables only that
// feature is decided by the caller.
func NewSubprocess(binPath string) (*Subprocess, error) {
	resolved, err := exec.LookPath(binPath)
	if err != nil {
		return nil, fmt.Errorf("wake: engine binary %q not found: %w", binPath, err)
	}
	logrus.WithField("bin", resolved).Info("wake: subprocess engine resolved")
	return &Subprocess{binPath: resolved}, nil
}

func (s *Subprocess) Score(frame []int16) (map[string]float64, error) {
	if len(frame) != FrameSamples {
		return nil, fmt.Errorf("wake: subprocess expects %d-sample frames, got %d", FrameSamples, len(frame))
	}
	raw := make([]byte, len(frame)*2)
	for i, sample := range frame {
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(sample))
	}

	cmd := exec.Command(s.binPath, "--score-stdin")
	cmd.Stdin = bytes.NewReader(raw)

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	if err := cmd.Run(); err != nil {
		logrus.WithFields(logrus.Fields{"error": err, "stderr": errBuf.String()}).Error("wake: subprocess failed")
		return nil, fmt.Errorf("wake: engine failed: %w", err)
	}

	var scores subprocessScores
	if err := json.Unmarshal(bytes.TrimSpace(outBuf.Bytes()), &scores); err != nil {
		return nil, fmt.Errorf("wake: malformed engine response: %w", err)
	}
	return scores, nil
}

func (s *Subprocess) Ready() bool { return s.binPath != "" }

func (s *Subprocess) Close() error { return nil }
