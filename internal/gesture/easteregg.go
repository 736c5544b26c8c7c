package gesture

import (
	"time"

	"golang.org/x/time/rate"
)

// Easter egg timing.
const (
	EasterEggCooldown = 5 * time.Second
	EasterEggDisplay  = 5 * time.Second
)

var easterEggPattern = FingerState{Thumb: 0, Index: 0, Middle: 1, Ring: 0, Pinky: 0}

// IsEasterEgg reports whether fs is exactly a lone extended middle finger.
func IsEasterEgg(fs FingerState) bool {
	return fs == easterEggPattern
}

// EasterEggMatcher raises notify for matching finger states, at most once per
// cooldown window.
type EasterEggMatcher struct {
	limiter *rate.Limiter
	notify  func(FingerState, time.Time)
}

// NewEasterEggMatcher creates a matcher with the given cooldown. notify runs
// synchronously on the goroutine calling Observe.
func NewEasterEggMatcher(cooldown time.Duration, notify func(FingerState, time.Time)) *EasterEggMatcher {
	return &EasterEggMatcher{
		limiter: rate.NewLimiter(rate.Every(cooldown), 1),
		notify:  notify,
	}
}

// Observe checks fs at time now and reports whether a notification fired.
func (m *EasterEggMatcher) Observe(fs *FingerState, now time.Time) bool {
	if fs == nil || !IsEasterEgg(*fs) {
		return false
	}

	if !m.limiter.AllowN(now, 1) {
		return false
	}
	if m.notify != nil {
		m.notify(*fs, now)
	}
	return true
}
