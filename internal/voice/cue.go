package voice

import (
	"encoding/binary"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// Cue plays the short earcons that bracket a recording: a rising tone when
// capture starts and a falling one when it stops. Cue failures are never
// surfaced; a missing player must not block recording.
type Cue struct {
	player string
	logger *zap.Logger

	once      sync.Once
	startPath string
	stopPath  string
}

func NewCue(player string, logger *zap.Logger) *Cue {
	if player == "" {
		player = "ffplay"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cue{player: player, logger: logger}
}

// RecordingStarted plays the rising cue without blocking the caller.
func (c *Cue) RecordingStarted() {
	c.play(func() string { return c.startPath })
}

// RecordingStopped plays the falling cue without blocking the caller.
func (c *Cue) RecordingStopped() {
	c.play(func() string { return c.stopPath })
}

func (c *Cue) play(path func() string) {
	c.once.Do(c.render)
	p := path()
	if p == "" {
		return
	}
	go func() {
		cmd := exec.Command(c.player, "-nodisp", "-autoexit", "-loglevel", "quiet", p)
		if err := cmd.Run(); err != nil {
			c.logger.Debug("cue playback failed", zap.Error(err))
		}
	}()
}

// render writes both cue tones to the temp directory once, lazily.
func (c *Cue) render() {
	dir := os.TempDir()
	start := filepath.Join(dir, "sori-cue-start.wav")
	stop := filepath.Join(dir, "sori-cue-stop.wav")

	if err := os.WriteFile(start, renderTone(523.25, 783.99, 350), 0o644); err != nil {
		c.logger.Debug("cue render failed", zap.Error(err))
	} else {
		c.startPath = start
	}
	if err := os.WriteFile(stop, renderTone(783.99, 523.25, 350), 0o644); err != nil {
		c.logger.Debug("cue render failed", zap.Error(err))
	} else {
		c.stopPath = stop
	}
}

const cueSampleRate = 22050

// renderTone produces a mono 16-bit WAV sweeping linearly between two
// pitches, with a short fade at both ends to avoid clicks.
func renderTone(fromHz, toHz float64, durationMillis int) []byte {
	n := cueSampleRate * durationMillis / 1000
	fade := cueSampleRate / 50 // 20ms

	pcm := make([]byte, 0, n*2)
	phase := 0.0
	for i := 0; i < n; i++ {
		t := float64(i) / float64(n)
		freq := fromHz + (toHz-fromHz)*t
		phase += 2 * math.Pi * freq / cueSampleRate

		gain := 0.4
		if i < fade {
			gain *= float64(i) / float64(fade)
		}
		if n-i < fade {
			gain *= float64(n-i) / float64(fade)
		}

		sample := int16(math.Sin(phase) * gain * math.MaxInt16)
		pcm = binary.LittleEndian.AppendUint16(pcm, uint16(sample))
	}
	return wrapWAV(pcm, cueSampleRate)
}

// wrapWAV prepends a canonical 44-byte RIFF header for mono PCM16 data.
func wrapWAV(pcm []byte, sampleRate int) []byte {
	out := make([]byte, 0, 44+len(pcm))
	out = append(out, "RIFF"...)
	out = binary.LittleEndian.AppendUint32(out, uint32(36+len(pcm)))
	out = append(out, "WAVE"...)
	out = append(out, "fmt "...)
	out = binary.LittleEndian.AppendUint32(out, 16)
	out = binary.LittleEndian.AppendUint16(out, 1) // PCM
	out = binary.LittleEndian.AppendUint16(out, 1) // mono
	out = binary.LittleEndian.AppendUint32(out, uint32(sampleRate))
	out = binary.LittleEndian.AppendUint32(out, uint32(sampleRate*2)) // byte rate
	out = binary.LittleEndian.AppendUint16(out, 2)                    // block align
	out = binary.LittleEndian.AppendUint16(out, 16)                   // bits per sample
	out = append(out, "data"...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(pcm)))
	out = append(out, pcm...)
	return out
}
