package speech

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/sapie-ai/sori/internal/api"
)

type countingSynth struct {
	calls int
	err   error
	last  api.SynthesizeRequest
}

func (c *countingSynth) Synthesize(_ context.Context, req api.SynthesizeRequest) ([]byte, error) {
	c.calls++
	c.last = req
	if c.err != nil {
		return nil, c.err
	}
	return []byte("fake-audio"), nil
}

func newTestService(t *testing.T, synth Synthesizer) *Service {
	t.Helper()
	return NewService(Config{
		Synthesizer: synth,
		Player:      "true", // exits immediately, plays nothing
		CacheDir:    t.TempDir(),
	})
}

func TestPreSynthesizeCachesByText(t *testing.T) {
	synth := &countingSynth{}
	svc := newTestService(t, synth)

	if err := svc.PreSynthesize(context.Background(), "안녕하세요"); err != nil {
		t.Fatalf("presynthesize: %v", err)
	}
	if err := svc.PreSynthesize(context.Background(), "안녕하세요"); err != nil {
		t.Fatalf("presynthesize: %v", err)
	}
	if synth.calls != 1 {
		t.Errorf("synthesizer called %d times, want 1", synth.calls)
	}

	if err := svc.PreSynthesize(context.Background(), "다른 문장"); err != nil {
		t.Fatalf("presynthesize: %v", err)
	}
	if synth.calls != 2 {
		t.Errorf("synthesizer called %d times, want 2", synth.calls)
	}
}

func TestPreSynthesizeSendsConfiguredVoice(t *testing.T) {
	synth := &countingSynth{}
	svc := newTestService(t, synth)

	if err := svc.PreSynthesize(context.Background(), "테스트"); err != nil {
		t.Fatal(err)
	}
	if synth.last.Voice != "alloy" || synth.last.Speed != 1.0 || synth.last.Format != "mp3" {
		t.Errorf("unexpected request: %+v", synth.last)
	}
}

func TestPreSynthesizeEmptyTextIsNoOp(t *testing.T) {
	synth := &countingSynth{}
	svc := newTestService(t, synth)
	if err := svc.PreSynthesize(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	if synth.calls != 0 {
		t.Errorf("synthesizer called %d times, want 0", synth.calls)
	}
}

func TestPlaySurfacesSynthesisError(t *testing.T) {
	synth := &countingSynth{err: errors.New("voice model unavailable")}
	svc := newTestService(t, synth)

	err := svc.Play(context.Background(), "오류", false)
	if err == nil {
		t.Fatal("expected error")
	}
	if svc.Playing() {
		t.Error("should not be playing after failed synthesis")
	}
}

func TestPlayRefusesWhileBusy(t *testing.T) {
	synth := &countingSynth{}
	svc := newTestService(t, synth)
	// "sleep" keeps the player alive long enough to observe the busy state.
	svc.player = "sleep"
	svc.playerArgs = func(string) []string { return []string{"5"} }

	if err := svc.Play(context.Background(), "첫 번째", false); err != nil {
		t.Fatalf("play: %v", err)
	}
	if !svc.Playing() {
		t.Fatal("expected playing state")
	}
	if err := svc.Play(context.Background(), "두 번째", false); !errors.Is(err, ErrPlaybackBusy) {
		t.Fatalf("err = %v, want ErrPlaybackBusy", err)
	}

	// force interrupts the running playback.
	if err := svc.Play(context.Background(), "세 번째", true); err != nil {
		t.Fatalf("forced play: %v", err)
	}
	svc.Stop()
}

func TestSweepExpiredRemovesOldEntries(t *testing.T) {
	synth := &countingSynth{}
	svc := newTestService(t, synth)

	if err := svc.PreSynthesize(context.Background(), "오래된 응답"); err != nil {
		t.Fatal(err)
	}
	var path string
	for _, e := range svc.entries {
		path = e.path
	}

	// Move the clock past the TTL.
	svc.now = func() time.Time { return time.Now().Add(DefaultCacheTTL + time.Second) }

	if removed := svc.SweepExpired(); removed != 1 {
		t.Errorf("removed %d entries, want 1", removed)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expired file still present: %v", err)
	}

	// An expired entry forces re-synthesis.
	before := synth.calls
	if err := svc.PreSynthesize(context.Background(), "오래된 응답"); err != nil {
		t.Fatal(err)
	}
	if synth.calls != before+1 {
		t.Errorf("expected re-synthesis after sweep")
	}
}
