package antispam

import (
	"strings"
	"time"

	cache "github.com/go-pkgz/expirable-cache/v3"
)

// maxFingerprints caps the per-subject fingerprint history, FIFO eviction.
const maxFingerprints = 20

// fingerprintLen is the max fingerprint length in runes.
const fingerprintLen = 100

// Activity is the per-subject rolling state used by stateful rules.
type Activity struct {
	SubjectID    string    `json:"subject_id"`
	MessageCount int       `json:"message_count"`
	LastMessage  time.Time `json:"last_message"`
	Warnings     int       `json:"warnings"`
	Muted        bool      `json:"muted"`
	MutedUntil   time.Time `json:"muted_until,omitempty"`
	Banned       bool      `json:"banned"`

	fingerprints []string    // last maxFingerprints normalized messages
	rateWindow   []time.Time // timestamps within the trailing rate window
}

// newTracker makes the LRU-bounded subject store. No TTL: mute and ban flags
// must survive idle periods, eviction happens only on capacity pressure.
func newTracker(maxSubjects int) cache.Cache[string, *Activity] {
	return cache.NewCache[string, *Activity]().WithMaxKeys(maxSubjects)
}

// getOrCreate returns the tracked activity for a subject, creating it lazily.
// Caller must hold the detector lock.
func (d *Detector) getOrCreate(subject string) *Activity {
	if act, ok := d.activity.Get(subject); ok {
		return act
	}
	act := &Activity{SubjectID: subject}
	d.activity.Set(subject, act, 0)
	return act
}

// fingerprint normalizes message text for duplicate detection: lowercase,
// collapsed whitespace, truncated to fingerprintLen runes.
func fingerprint(text string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(text), " "))
	if runes := []rune(normalized); len(runes) > fingerprintLen {
		return string(runes[:fingerprintLen])
	}
	return normalized
}

// pushFingerprint appends a fingerprint to the subject history, evicting the
// oldest entry beyond the cap.
func (a *Activity) pushFingerprint(fp string) {
	a.fingerprints = append(a.fingerprints, fp)
	if len(a.fingerprints) > maxFingerprints {
		a.fingerprints = a.fingerprints[1:]
	}
}

// countFingerprint counts occurrences of fp in the subject history. The count
// reflects prior history only, the current message is appended after rule
// evaluation.
func (a *Activity) countFingerprint(fp string) int {
	count := 0
	for _, h := range a.fingerprints {
		if h == fp {
			count++
		}
	}
	return count
}

// sweepRateWindow drops window entries older than the cutoff and returns the
// number of live entries left.
func (a *Activity) sweepRateWindow(cutoff time.Time) int {
	live := a.rateWindow[:0]
	for _, ts := range a.rateWindow {
		if ts.After(cutoff) {
			live = append(live, ts)
		}
	}
	a.rateWindow = live
	return len(live)
}
