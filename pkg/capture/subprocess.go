package capture

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os/exec"
	"sync"

	"github.com/sirupsen/logrus"
)

// Subprocess shells out to an external capture engine binary, the same
// external-engine-over-stdio shape pkg/synth and pkg/transcribe use for
// their real adapters: resolve the binary once via exec.LookPath, then
// spawn one long-lived process per opened stream that writes raw
// little-endian samples (float32 or int16, selected by --format) to
// stdout continuously until the stream is closed.
type Subprocess struct {
	binPath string
}

// NewSubprocess resolves binPath via exec.LookPath. A missing binary is
// not fatal here; the caller decides whether a degraded capture engine
// aborts startup.
func NewSubprocess(binPath string) (*Subprocess, error) {
	resolved, err := exec.LookPath(binPath)
	if err != nil {
		return nil, fmt.Errorf("capture: engine binary %q not found: %w", binPath, err)
	}
	logrus.WithField("bin", resolved).Info("capture: subprocess engine resolved")
	return &Subprocess{binPath: resolved}, nil
}

func (d *Subprocess) OpenFloatStream(frameSize int) (FloatStream, error) {
	cmd, stdout, err := d.start("float32")
	if err != nil {
		return nil, err
	}
	return &subprocessFloatStream{cmd: cmd, r: bufio.NewReaderSize(stdout, frameSize*4), frameSize: frameSize}, nil
}

func (d *Subprocess) OpenInt16Stream(frameSize int) (Int16Stream, error) {
	cmd, stdout, err := d.start("int16")
	if err != nil {
		return nil, err
	}
	return &subprocessInt16Stream{cmd: cmd, r: bufio.NewReaderSize(stdout, frameSize*2), frameSize: frameSize}, nil
}

func (d *Subprocess) start(format string) (*exec.Cmd, io.ReadCloser, error) {
	cmd := exec.Command(d.binPath, "--sample-rate", "16000", "--format", format)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("capture: starting engine: %w", err)
	}
	return cmd, stdout, nil
}

type subprocessFloatStream struct {
	cmd       *exec.Cmd
	r         *bufio.Reader
	frameSize int
	mu        sync.Mutex
	closed    bool
}

func (s *subprocessFloatStream) Read(ctx context.Context) ([]float32, error) {
	raw := make([]byte, s.frameSize*4)
	if _, err := io.ReadFull(s.r, raw); err != nil {
		return nil, fmt.Errorf("capture: reading float frame: %w", err)
	}
	frame := make([]float32, s.frameSize)
	for i := range frame {
		frame[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return frame, nil
}

func (s *subprocessFloatStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return killAndWait(s.cmd)
}

type subprocessInt16Stream struct {
	cmd       *exec.Cmd
	r         *bufio.Reader
	frameSize int
	mu        sync.Mutex
	closed    bool
}

func (s *subprocessInt16Stream) Read(ctx context.Context) ([]int16, error) {
	raw := make([]byte, s.frameSize*2)
	if _, err := io.ReadFull(s.r, raw); err != nil {
		return nil, fmt.Errorf("capture: reading int16 frame: %w", err)
	}
	frame := make([]int16, s.frameSize)
	for i := range frame {
		frame[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	return frame, nil
}

func (s *subprocessInt16Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return killAndWait(s.cmd)
}

func killAndWait(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	_ = cmd.Process.Kill()
	_ = cmd.Wait()
	return nil
}
