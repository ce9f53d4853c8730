package voice

import (
	"testing"
	"time"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestDoubleTapStartsRecording(t *testing.T) {
	g := NewGesture(ModeDoubleTap, 0, 0)

	if got := g.KeyDown(t0, false); got != IntentNone {
		t.Fatalf("first tap intent = %v, want none", got)
	}
	if !g.WaitingForSecondTap() {
		t.Error("expected waiting state after first tap")
	}
	if got := g.KeyDown(t0.Add(200*time.Millisecond), false); got != IntentStart {
		t.Fatalf("second tap intent = %v, want start", got)
	}
	if !g.Recording() {
		t.Error("expected recording state")
	}
}

func TestDoubleTapStopsRecording(t *testing.T) {
	g := NewGesture(ModeDoubleTap, 0, 0)
	g.KeyDown(t0, false)
	g.KeyDown(t0.Add(100*time.Millisecond), false)

	later := t0.Add(5 * time.Second)
	if got := g.KeyDown(later, false); got != IntentNone {
		t.Fatalf("first stop tap intent = %v, want none", got)
	}
	if got := g.KeyDown(later.Add(300*time.Millisecond), false); got != IntentStop {
		t.Fatalf("second stop tap intent = %v, want stop", got)
	}
	if g.Recording() {
		t.Error("expected idle after stop")
	}
}

func TestSlowSecondTapDoesNotStart(t *testing.T) {
	g := NewGesture(ModeDoubleTap, 450*time.Millisecond, 0)
	g.KeyDown(t0, false)

	// Exactly past the window.
	if got := g.KeyDown(t0.Add(451*time.Millisecond), false); got != IntentNone {
		t.Fatalf("intent = %v, want none", got)
	}
	if g.Recording() {
		t.Error("should not be recording")
	}
	// The slow press re-armed the window, so a quick follow-up completes.
	if got := g.KeyDown(t0.Add(700*time.Millisecond), false); got != IntentStart {
		t.Fatalf("intent = %v, want start", got)
	}
}

func TestTapWindowExpiresOnTick(t *testing.T) {
	g := NewGesture(ModeDoubleTap, 450*time.Millisecond, 0)
	g.KeyDown(t0, false)

	g.Tick(t0.Add(500 * time.Millisecond))
	if g.WaitingForSecondTap() {
		t.Error("window should have expired")
	}
	if g.State() != StateIdle {
		t.Errorf("state = %v, want idle", g.State())
	}
}

func TestRepeatPressesIgnored(t *testing.T) {
	g := NewGesture(ModeDoubleTap, 0, 0)
	g.KeyDown(t0, false)
	if got := g.KeyDown(t0.Add(50*time.Millisecond), true); got != IntentNone {
		t.Fatalf("repeat intent = %v, want none", got)
	}
	// The repeat did not consume the second tap.
	if got := g.KeyDown(t0.Add(100*time.Millisecond), false); got != IntentStart {
		t.Fatalf("intent = %v, want start", got)
	}
}

func TestBlurResetsArmedTap(t *testing.T) {
	g := NewGesture(ModeDoubleTap, 0, 0)
	g.KeyDown(t0, false)
	g.Blur()

	if g.WaitingForSecondTap() {
		t.Error("blur should disarm the tap")
	}
	// The next press is a fresh first tap.
	if got := g.KeyDown(t0.Add(100*time.Millisecond), false); got != IntentNone {
		t.Fatalf("intent = %v, want none", got)
	}
}

func TestBlurStopsRecording(t *testing.T) {
	g := NewGesture(ModeDoubleTap, 0, 0)
	g.KeyDown(t0, false)
	g.KeyDown(t0.Add(100*time.Millisecond), false)

	if got := g.Blur(); got != IntentStop {
		t.Fatalf("blur intent = %v, want stop", got)
	}
	if g.State() != StateIdle {
		t.Fatalf("state after blur = %v, want idle", g.State())
	}
}

func TestBlurWhileIdleEmitsNothing(t *testing.T) {
	g := NewGesture(ModeDoubleTap, 0, 0)

	if got := g.Blur(); got != IntentNone {
		t.Fatalf("blur intent = %v, want none", got)
	}
}

func TestHoldStartsAfterThreshold(t *testing.T) {
	g := NewGesture(ModeHold, 0, 2*time.Second)

	if got := g.KeyDown(t0, false); got != IntentNone {
		t.Fatalf("key down intent = %v, want none", got)
	}
	if got := g.Tick(t0.Add(time.Second)); got != IntentNone {
		t.Fatalf("early tick intent = %v, want none", got)
	}
	if got := g.Tick(t0.Add(2 * time.Second)); got != IntentStart {
		t.Fatalf("threshold tick intent = %v, want start", got)
	}
	if !g.Recording() {
		t.Error("expected recording state")
	}
}

func TestHoldReleaseBeforeThresholdAborts(t *testing.T) {
	g := NewGesture(ModeHold, 0, 2*time.Second)
	g.KeyDown(t0, false)

	if got := g.KeyUp(t0.Add(500 * time.Millisecond)); got != IntentNone {
		t.Fatalf("early release intent = %v, want none", got)
	}
	if g.State() != StateIdle {
		t.Errorf("state = %v, want idle", g.State())
	}
	// The next hold starts over from zero.
	g.KeyDown(t0.Add(time.Second), false)
	if got := g.Tick(t0.Add(2 * time.Second)); got != IntentNone {
		t.Fatalf("intent = %v, want none before full hold", got)
	}
}

func TestHoldReleaseWhileRecordingStops(t *testing.T) {
	g := NewGesture(ModeHold, 0, 2*time.Second)
	g.KeyDown(t0, false)
	g.Tick(t0.Add(2 * time.Second))

	if got := g.KeyUp(t0.Add(5 * time.Second)); got != IntentStop {
		t.Fatalf("release intent = %v, want stop", got)
	}
	if g.Recording() {
		t.Error("expected idle after release")
	}
}

func TestHoldProgress(t *testing.T) {
	g := NewGesture(ModeHold, 0, 2*time.Second)
	if got := g.Progress(t0); got != 0 {
		t.Errorf("idle progress = %d, want 0", got)
	}
	g.KeyDown(t0, false)
	if got := g.Progress(t0.Add(time.Second)); got != 50 {
		t.Errorf("halfway progress = %d, want 50", got)
	}
	g.Tick(t0.Add(2 * time.Second))
	if got := g.Progress(t0.Add(3 * time.Second)); got != 100 {
		t.Errorf("recording progress = %d, want 100", got)
	}
}
