package speech

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/voxmcp/voxmcp/internal/audiolock"
)

// Sink serialises a PCM buffer to a temporary WAV file and hands it to a
// playback subprocess, holding the cross-process audio lock for the
// subprocess's lifetime. The playback binary is resolved once via
// exec.LookPath at construction.
type Sink struct {
	lock    *audiolock.Lock
	playBin string
	playArg func(wavPath string) []string

	mu      sync.Mutex
	current *exec.Cmd
}

// NewSink picks the first available OS playback binary (aplay on Linux,
// afplay on macOS, ffplay as a portable fallback) and wires it to the
// well-known cross-process audio lock path.
func NewSink() (*Sink, error) {
	candidates := []struct {
		bin  string
		args func(string) []string
	}{
		{"aplay", func(p string) []string { return []string{p} }},
		{"afplay", func(p string) []string { return []string{p} }},
		{"ffplay", func(p string) []string { return []string{"-nodisp", "-autoexit", "-loglevel", "quiet", p} }},
	}

	for _, c := range candidates {
		if resolved, err := exec.LookPath(c.bin); err == nil {
			logrus.WithField("bin", resolved).Info("speech: playback binary resolved")
			return &Sink{
				lock:    audiolock.New(audiolock.DefaultPath()),
				playBin: resolved,
				playArg: c.args,
			}, nil
		}
	}
	return nil, fmt.Errorf("speech: no playback binary found (tried aplay, afplay, ffplay)")
}

// NewDegradedSink builds a Sink with no resolved playback binary: Play
// still takes the audio lock (so lock invariants hold even in this state)
// but always fails with a clear error, instead of the process aborting at
// startup over a missing playback binary.
func NewDegradedSink() *Sink {
	return &Sink{lock: audiolock.New(audiolock.DefaultPath())}
}

// Play writes pcm as a 16-bit PCM WAV file and runs the playback
// subprocess to completion, holding the cross-process audio lock for the
// duration. ctx cancellation kills the subprocess; the `stop` tool goes
// through Stop instead.
func (s *Sink) Play(ctx context.Context, pcm []float32, sampleRate int) error {
	path, err := writeWAV(pcm, sampleRate)
	if err != nil {
		return err
	}
	defer os.Remove(path)

	if err := s.lock.Acquire(ctx); err != nil {
		return fmt.Errorf("speech: acquiring audio lock: %w", err)
	}
	defer func() { _ = s.lock.Release() }()

	if s.playBin == "" || s.playArg == nil {
		return fmt.Errorf("speech: no playback binary available")
	}

	cmd := exec.CommandContext(ctx, s.playBin, s.playArg(path)...)
	s.mu.Lock()
	s.current = cmd
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.current = nil
		s.mu.Unlock()
	}()

	return cmd.Run()
}

// cueSampleRate, cueDuration, and cueFrequency define the short ready
// beep played before a capture starts: a single pure tone, not routed
// through the synthesis engine.
const (
	cueSampleRate = 16000
	cueDuration   = 150 * time.Millisecond
	cueFrequency  = 880.0
)

// Cue plays the ready tone through this sink, taking the audio lock like
// any other playback.
func (s *Sink) Cue(ctx context.Context) error {
	n := int(float64(cueSampleRate) * cueDuration.Seconds())
	pcm := make([]float32, n)
	for i := range pcm {
		t := float64(i) / float64(cueSampleRate)
		pcm[i] = float32(0.2 * math.Sin(2*math.Pi*cueFrequency*t))
	}
	return s.Play(ctx, pcm, cueSampleRate)
}

// Stop kills the in-flight playback subprocess, if any (used by the `stop`
// tool). No-op if nothing is currently playing.
func (s *Sink) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || s.current.Process == nil {
		return false
	}
	_ = s.current.Process.Kill()
	return true
}

func writeWAV(pcm []float32, sampleRate int) (string, error) {
	f, err := os.CreateTemp("", "voxmcp-*.wav")
	if err != nil {
		return "", err
	}
	defer f.Close()

	const bitsPerSample = 16
	const numChannels = 1
	byteRate := sampleRate * numChannels * bitsPerSample / 8
	blockAlign := numChannels * bitsPerSample / 8
	dataSize := len(pcm) * 2

	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+dataSize))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:24], uint16(numChannels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], bitsPerSample)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(dataSize))

	if _, err := f.Write(header); err != nil {
		return "", err
	}

	buf := make([]byte, dataSize)
	for i, sample := range pcm {
		clamped := clampFloat(sample)
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(int16(clamped*32767)))
	}
	if _, err := f.Write(buf); err != nil {
		return "", err
	}
	return f.Name(), nil
}

func clampFloat(f float32) float32 {
	if f > 1 {
		return 1
	}
	if f < -1 {
		return -1
	}
	return f
}
