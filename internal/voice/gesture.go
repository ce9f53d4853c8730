// Package voice covers the push-to-talk surface: the spacebar gesture
// machine, microphone capture, and the audible recording cues.
package voice

import "time"

// GestureMode selects how the spacebar maps to recording.
type GestureMode int

const (
	// ModeDoubleTap toggles recording on a quick double press.
	ModeDoubleTap GestureMode = iota
	// ModeHold records while the key is held past the threshold.
	ModeHold
)

// GestureState is the observable phase of the gesture machine.
type GestureState int

const (
	StateIdle GestureState = iota
	StateWaitingForSecondTap
	StateHolding
	StateRecording
)

// Intent is the action a key event resolved to.
type Intent int

const (
	IntentNone Intent = iota
	IntentStart
	IntentStop
)

const (
	// DefaultDoubleTapThreshold is the longest gap between two presses
	// that still counts as a double tap.
	DefaultDoubleTapThreshold = 450 * time.Millisecond
	// DefaultHoldDuration is how long the key must stay down in hold
	// mode before recording starts.
	DefaultHoldDuration = 2 * time.Second
)

// Gesture interprets raw spacebar events against wall-clock timestamps
// supplied by the caller, so it is deterministic under test. It never does
// any I/O itself; callers act on the returned Intent.
type Gesture struct {
	mode         GestureMode
	tapThreshold time.Duration
	holdDuration time.Duration

	state GestureState
	// tapArmed is set after a first tap while recording, where the state
	// still reads StateRecording.
	tapArmed  bool
	deadline  time.Time
	holdStart time.Time
	keyDown   bool
}

// NewGesture builds a machine for the given mode. Non-positive thresholds
// fall back to the defaults.
func NewGesture(mode GestureMode, tapThreshold, holdDuration time.Duration) *Gesture {
	if tapThreshold <= 0 {
		tapThreshold = DefaultDoubleTapThreshold
	}
	if holdDuration <= 0 {
		holdDuration = DefaultHoldDuration
	}
	return &Gesture{
		mode:         mode,
		tapThreshold: tapThreshold,
		holdDuration: holdDuration,
	}
}

// Mode returns the configured gesture mode.
func (g *Gesture) Mode() GestureMode { return g.mode }

// State returns the current phase.
func (g *Gesture) State() GestureState { return g.state }

// Recording reports whether the machine considers a capture in flight.
func (g *Gesture) Recording() bool { return g.state == StateRecording }

// WaitingForSecondTap reports whether a first tap is armed and the machine
// is inside the double-tap window.
func (g *Gesture) WaitingForSecondTap() bool {
	return g.state == StateWaitingForSecondTap || g.tapArmed
}

// KeyDown feeds a spacebar press. Auto-repeat presses from a held key are
// flagged by the terminal and ignored here.
func (g *Gesture) KeyDown(now time.Time, repeat bool) Intent {
	if repeat {
		return IntentNone
	}
	switch g.mode {
	case ModeHold:
		// Terminals without release events send only presses; the keyDown
		// latch keeps phantom re-presses from restarting the hold.
		if g.keyDown {
			return IntentNone
		}
		g.keyDown = true
		return g.holdKeyDown(now)
	default:
		return g.tapKeyDown(now)
	}
}

// KeyUp feeds a spacebar release. Only meaningful in hold mode; terminals
// that cannot report releases simply never call it.
func (g *Gesture) KeyUp(now time.Time) Intent {
	if !g.keyDown {
		return IntentNone
	}
	g.keyDown = false

	if g.mode != ModeHold {
		return IntentNone
	}
	switch g.state {
	case StateHolding:
		// Released before the threshold: not a record gesture.
		g.state = StateIdle
		return IntentNone
	case StateRecording:
		g.state = StateIdle
		return IntentStop
	}
	return IntentNone
}

// Tick advances time-dependent transitions. Callers run it on a short timer
// whenever the machine is not idle.
func (g *Gesture) Tick(now time.Time) Intent {
	switch {
	case g.state == StateWaitingForSecondTap && now.After(g.deadline):
		g.state = StateIdle
	case g.tapArmed && now.After(g.deadline):
		g.tapArmed = false
	case g.mode == ModeHold && g.state == StateHolding:
		if now.Sub(g.holdStart) >= g.holdDuration {
			g.state = StateRecording
			return IntentStart
		}
	}
	return IntentNone
}

// Blur forces the machine back to idle when the input surface loses focus,
// so a stray tap before switching away cannot pair with one after coming
// back. An in-flight recording must not keep the microphone open with nobody
// watching, so blurring mid-recording stops it.
func (g *Gesture) Blur() Intent {
	g.tapArmed = false
	g.keyDown = false
	wasRecording := g.state == StateRecording
	g.state = StateIdle
	if wasRecording {
		return IntentStop
	}
	return IntentNone
}

// Reset forces the machine back to idle, recording included. Used when the
// capture layer failed to start and the machine's view is stale.
func (g *Gesture) Reset() {
	g.state = StateIdle
	g.tapArmed = false
	g.keyDown = false
}

// Active reports whether the machine needs Tick calls to make progress.
func (g *Gesture) Active() bool {
	return g.state == StateWaitingForSecondTap || g.state == StateHolding || g.tapArmed
}

// Progress reports hold completion as 0..100 while in hold mode. Outside
// StateHolding it is 0, or 100 once recording.
func (g *Gesture) Progress(now time.Time) int {
	switch g.state {
	case StateRecording:
		return 100
	case StateHolding:
		elapsed := now.Sub(g.holdStart)
		if elapsed >= g.holdDuration {
			return 100
		}
		return int(elapsed * 100 / g.holdDuration)
	}
	return 0
}

func (g *Gesture) tapKeyDown(now time.Time) Intent {
	switch g.state {
	case StateIdle:
		g.state = StateWaitingForSecondTap
		g.deadline = now.Add(g.tapThreshold)
	case StateWaitingForSecondTap:
		if now.After(g.deadline) {
			// Too slow: this press re-arms instead of completing.
			g.deadline = now.Add(g.tapThreshold)
			return IntentNone
		}
		g.state = StateRecording
		return IntentStart
	case StateRecording:
		if g.tapArmed {
			if now.After(g.deadline) {
				g.deadline = now.Add(g.tapThreshold)
				return IntentNone
			}
			g.tapArmed = false
			g.state = StateIdle
			return IntentStop
		}
		g.tapArmed = true
		g.deadline = now.Add(g.tapThreshold)
	}
	return IntentNone
}

func (g *Gesture) holdKeyDown(now time.Time) Intent {
	if g.state == StateIdle {
		g.state = StateHolding
		g.holdStart = now
	}
	return IntentNone
}
