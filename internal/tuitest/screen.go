package tuitest

import (
	"regexp"
	"strings"
)

// Capture is the recorded terminal session, split into the successive
// full-screen renders the program drew.
type Capture struct {
	Raw     []byte
	Screens []string
}

var (
	clearPattern = regexp.MustCompile(`\x1b\[[0-9;]*J`)
	csiPattern   = regexp.MustCompile(`\x1b\[[0-9;?]*[A-Za-z]`)
	oscPattern   = regexp.MustCompile(`\x1b\][^\x07]*(\x07|\x1b\\)`)
)

func newCapture(raw []byte) *Capture {
	cleaned := strings.ReplaceAll(string(raw), "\r", "")
	screens := make([]string, 0, 8)
	for _, segment := range clearPattern.Split(cleaned, -1) {
		plain := normalize(stripANSI(segment))
		if plain == "" {
			continue
		}
		screens = append(screens, plain)
	}
	if len(screens) == 0 && len(cleaned) > 0 {
		screens = append(screens, normalize(stripANSI(cleaned)))
	}
	return &Capture{Raw: raw, Screens: screens}
}

// LastScreen returns the final render, empty when nothing was drawn.
func (c *Capture) LastScreen() string {
	if c == nil || len(c.Screens) == 0 {
		return ""
	}
	return c.Screens[len(c.Screens)-1]
}

// Contains reports whether any captured screen includes the text.
func (c *Capture) Contains(text string) bool {
	if c == nil {
		return false
	}
	for _, screen := range c.Screens {
		if strings.Contains(screen, text) {
			return true
		}
	}
	return false
}

func stripANSI(s string) string {
	s = oscPattern.ReplaceAllString(s, "")
	s = csiPattern.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "\x0f", "")
	s = strings.ReplaceAll(s, "\x0e", "")
	return s
}

func normalize(s string) string {
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " ")
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	return strings.Join(lines, "\n")
}
