// Package speech turns assistant replies into audio and plays them, keeping
// a short-lived on-disk cache so replaying a response does not re-synthesize.
package speech

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sapie-ai/sori/internal/api"
)

// ErrPlaybackBusy is returned when Play is called while audio is already
// playing and the caller did not ask to interrupt it.
var ErrPlaybackBusy = errors.New("playback already in progress")

// DefaultCacheTTL bounds how long synthesized audio stays reusable.
const DefaultCacheTTL = 5 * time.Minute

// Synthesizer converts text to encoded audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req api.SynthesizeRequest) ([]byte, error)
}

// Config wires a Service.
type Config struct {
	Synthesizer Synthesizer
	Player      string // player binary, default "ffplay"
	Voice       string
	Speed       float64
	Format      string
	CacheTTL    time.Duration
	CacheDir    string
	Logger      *zap.Logger
}

type cacheEntry struct {
	path      string
	createdAt time.Time
}

// Service synthesizes and plays assistant speech. Entries are keyed by the
// spoken text, so the same reply never hits the synthesis endpoint twice
// within the TTL.
type Service struct {
	synth  Synthesizer
	player string
	voice  string
	speed  float64
	format string
	ttl    time.Duration
	dir    string
	logger *zap.Logger
	now    func() time.Time
	// playerArgs builds the player argument list for a cached file;
	// swapped out in tests.
	playerArgs func(path string) []string

	mu      sync.Mutex
	entries map[string]cacheEntry
	playing bool
	current *exec.Cmd
}

func NewService(cfg Config) *Service {
	if cfg.Player == "" {
		cfg.Player = "ffplay"
	}
	if cfg.Voice == "" {
		cfg.Voice = "alloy"
	}
	if cfg.Speed <= 0 {
		cfg.Speed = 1.0
	}
	if cfg.Format == "" {
		cfg.Format = "mp3"
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(os.TempDir(), "sori-speech")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Service{
		synth:   cfg.Synthesizer,
		player:  cfg.Player,
		voice:   cfg.Voice,
		speed:   cfg.Speed,
		format:  cfg.Format,
		ttl:     cfg.CacheTTL,
		dir:     cfg.CacheDir,
		logger:  cfg.Logger,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
		playerArgs: func(path string) []string {
			return []string{"-nodisp", "-autoexit", "-loglevel", "quiet", path}
		},
	}
}

// Playing reports whether audio is currently being played.
func (s *Service) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// PreSynthesize warms the cache for text about to be spoken. Calling it for
// text with a fresh cache entry is free: no network request is made.
func (s *Service) PreSynthesize(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	key := cacheKey(text)

	s.mu.Lock()
	entry, ok := s.entries[key]
	fresh := ok && s.now().Sub(entry.createdAt) < s.ttl
	s.mu.Unlock()
	if fresh {
		return nil
	}

	audio, err := s.synth.Synthesize(ctx, api.SynthesizeRequest{
		Text:   text,
		Voice:  s.voice,
		Speed:  s.speed,
		Format: s.format,
	})
	if err != nil {
		return fmt.Errorf("speech synthesis error: %w", err)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create speech cache dir: %w", err)
	}
	path := filepath.Join(s.dir, key+"."+s.format)
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		return fmt.Errorf("failed to write speech cache entry: %w", err)
	}

	s.mu.Lock()
	s.entries[key] = cacheEntry{path: path, createdAt: s.now()}
	s.mu.Unlock()
	return nil
}

// Play speaks the text, synthesizing first if the cache has no fresh entry.
// When audio is already playing, force=false refuses with ErrPlaybackBusy
// and force=true stops the current playback first.
func (s *Service) Play(ctx context.Context, text string, force bool) error {
	if text == "" {
		return nil
	}

	s.mu.Lock()
	if s.playing {
		if !force {
			s.mu.Unlock()
			return ErrPlaybackBusy
		}
		s.stopLocked()
	}
	s.mu.Unlock()

	if err := s.PreSynthesize(ctx, text); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.entries[cacheKey(text)]

	cmd := exec.Command(s.player, s.playerArgs(entry.path)...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start audio player: %w", err)
	}
	s.playing = true
	s.current = cmd
	go func() {
		if err := cmd.Wait(); err != nil {
			s.logger.Debug("playback ended with error", zap.Error(err))
		}
		s.mu.Lock()
		if s.current == cmd {
			s.playing = false
			s.current = nil
		}
		s.mu.Unlock()
	}()
	return nil
}

// Stop interrupts the current playback, if any.
func (s *Service) Stop() {
	s.mu.Lock()
	s.stopLocked()
	s.mu.Unlock()
}

func (s *Service) stopLocked() {
	if s.current != nil && s.current.Process != nil {
		_ = s.current.Process.Kill()
	}
	s.playing = false
	s.current = nil
}

// SweepExpired drops cache entries past the TTL and removes their files.
// The TUI runs it on a timer.
func (s *Service) SweepExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	cutoff := s.now().Add(-s.ttl)
	for key, entry := range s.entries {
		if entry.createdAt.Before(cutoff) {
			if err := os.Remove(entry.path); err != nil && !errors.Is(err, os.ErrNotExist) {
				s.logger.Debug("failed to remove expired speech file", zap.Error(err))
			}
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:8])
}
