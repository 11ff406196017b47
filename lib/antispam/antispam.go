// Package antispam implements a rule-based spam detector for WhatsApp chat
// messages. A detector keeps a registry of named rules and per-subject rolling
// state (message rate, duplicate fingerprints, mute/ban flags) and classifies
// each message into a structured verdict with an aggregated score and the most
// severe recommended action across all triggered rules.
package antispam

import (
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"

	cache "github.com/go-pkgz/expirable-cache/v3"
	waProto "go.mau.fi/whatsmeow/binary/proto"

	"github.com/wamod/wa-guard/lib/wamsg"
)

// spamThreshold is the aggregated score at which the verdict becomes spam.
const spamThreshold = 50

// per-rule score contributions
const (
	scoreRateLimit = 40
	scoreDuplicate = 35
	scoreFlood     = 25
	scorePattern   = 50
	scoreFreePat   = 30 // free-standing pattern list, outside the registry
	scoreCustom    = 50 // default for custom rules without explicit score
)

// rateWindow is the trailing window for the rate-limit rule.
const rateWindow = time.Minute

// Params is a set of parameters for Detector. Zero values are replaced with
// defaults by NewDetector.
type Params struct {
	MaxMessagesPerMinute int                                                     // rate-limit threshold, default 20
	MaxDuplicates        int                                                     // duplicate threshold, default 3
	MinMessageDelay      time.Duration                                           // flood threshold, default 500ms
	SpamPatterns         []*regexp.Regexp                                        // free-standing patterns, each match adds a fixed score
	Whitelist            []string                                                // subjects never classified as spam
	MaxTrackedSubjects   int                                                     // LRU bound for subject trackers, default 10000
	OnSpamDetected       func(subject string, msg *waProto.Message, res Result) // optional, invoked on positive verdicts
}

// Result is the immutable verdict of one classification pass.
type Result struct {
	IsSpam bool     `json:"is_spam"`
	Rules  []string `json:"rules"`
	Score  int      `json:"score"`
	Action Action   `json:"action"`
	Reason string   `json:"reason"`
}

// Detector is a rule-based spam detector, thread-safe.
type Detector struct {
	params    Params
	rules     map[string]*Rule
	order     []string // rule ids in insertion order, defines evaluation order
	activity  cache.Cache[string, *Activity]
	whitelist map[string]struct{}
	nowFn     func() time.Time
	lock      sync.Mutex
}

// NewDetector makes a new Detector with the default rule set.
func NewDetector(params Params) *Detector {
	if params.MaxMessagesPerMinute <= 0 {
		params.MaxMessagesPerMinute = 20
	}
	if params.MaxDuplicates <= 0 {
		params.MaxDuplicates = 3
	}
	if params.MinMessageDelay <= 0 {
		params.MinMessageDelay = 500 * time.Millisecond
	}
	if params.MaxTrackedSubjects <= 0 {
		params.MaxTrackedSubjects = 10000
	}

	res := &Detector{
		params:    params,
		rules:     map[string]*Rule{},
		activity:  newTracker(params.MaxTrackedSubjects),
		whitelist: map[string]struct{}{},
		nowFn:     time.Now,
	}
	for _, subject := range params.Whitelist {
		res.whitelist[subject] = struct{}{}
	}

	res.AddRule(Rule{ID: "rate_limit", Name: "Rate Limit", Kind: KindRateLimit, Enabled: true,
		Action: ActionWarn, RateLimit: &RateLimitParams{MaxPerMinute: params.MaxMessagesPerMinute}})
	res.AddRule(Rule{ID: "duplicate", Name: "Duplicate Detection", Kind: KindDuplicate, Enabled: true,
		Action: ActionWarn, Duplicate: &DuplicateParams{MaxDuplicates: params.MaxDuplicates}})
	res.AddRule(Rule{ID: "flood", Name: "Flood Protection", Kind: KindFlood, Enabled: true,
		Action: ActionIgnore, Flood: &FloodParams{MinDelay: params.MinMessageDelay}})
	return res
}

// Check classifies a message from the given subject. It never fails: any
// message shape degrades to an empty-signal verdict. The callback, if set and
// the verdict is positive, is invoked after internal state is updated.
func (d *Detector) Check(subject string, msg *waProto.Message) Result {
	res, notify := d.check(subject, msg)
	if notify != nil {
		invokeCallback(notify, subject, msg, res)
	}
	return res
}

// check runs one classification pass under the lock and returns the verdict
// plus the callback to invoke, nil if none.
func (d *Detector) check(subject string, msg *waProto.Message) (Result, func(string, *waProto.Message, Result)) {
	d.lock.Lock()
	defer d.lock.Unlock()

	if _, ok := d.whitelist[subject]; ok {
		return Result{IsSpam: false, Rules: []string{}, Score: 0, Action: ActionIgnore}, nil
	}

	now := d.nowFn()
	act := d.getOrCreate(subject)

	// hard short-circuits skip rule evaluation and tracker mutation entirely
	if act.Banned {
		return Result{IsSpam: true, Rules: []string{"banned"}, Score: 100, Action: ActionDelete, Reason: "subject is banned"}, nil
	}
	if act.Muted && act.MutedUntil.After(now) {
		return Result{IsSpam: true, Rules: []string{"muted"}, Score: 100, Action: ActionDelete, Reason: "subject is muted"}, nil
	}

	text := wamsg.Text(msg)
	triggered := []string{}
	reasons := []string{}
	totalScore := 0
	action := ActionIgnore

	for _, id := range d.order {
		rule := d.rules[id]
		if !rule.Enabled {
			continue
		}
		hit, score, reason := d.evalRule(rule, subject, text, act, now)
		if !hit {
			continue
		}
		triggered = append(triggered, rule.ID)
		totalScore += score
		reasons = append(reasons, reason)
		if rule.Action.Severity() > action.Severity() {
			action = rule.Action
		}
	}

	// free-standing pattern list, independent of the rule registry
	for _, pattern := range d.params.SpamPatterns {
		if pattern.MatchString(text) {
			triggered = append(triggered, "pattern")
			totalScore += scoreFreePat
			reasons = append(reasons, "matches spam pattern")
		}
	}

	// every non-short-circuited check updates the tracker, spam or not.
	// the fingerprint is appended after rule evaluation, so a message is
	// never compared against itself.
	act.MessageCount++
	act.LastMessage = now
	act.pushFingerprint(fingerprint(text))

	if totalScore > 100 {
		totalScore = 100
	}
	res := Result{
		IsSpam: totalScore >= spamThreshold,
		Rules:  triggered,
		Score:  totalScore,
		Action: action,
		Reason: strings.Join(reasons, "; "),
	}
	if res.IsSpam {
		act.Warnings++
		return res, d.params.OnSpamDetected
	}
	return res, nil
}

// evalRule evaluates a single rule against one message. The switch over rule
// kinds is exhaustive, unknown kinds and missing parameter blocks never
// trigger.
func (d *Detector) evalRule(rule *Rule, subject, text string, act *Activity, now time.Time) (hit bool, score int, reason string) {
	switch rule.Kind {
	case KindRateLimit:
		if rule.RateLimit == nil {
			return false, 0, ""
		}
		maxPerMinute := rule.RateLimit.MaxPerMinute
		if maxPerMinute <= 0 { // unset threshold falls back to the detector default
			maxPerMinute = d.params.MaxMessagesPerMinute
		}
		recent := act.sweepRateWindow(now.Add(-rateWindow))
		act.rateWindow = append(act.rateWindow, now) // the window grows by one live entry per checked message
		if recent >= maxPerMinute {
			return true, scoreRateLimit, fmt.Sprintf("rate limit exceeded (%d/%d per minute)", recent, maxPerMinute)
		}
	case KindDuplicate:
		if rule.Duplicate == nil {
			return false, 0, ""
		}
		maxDuplicates := rule.Duplicate.MaxDuplicates
		if maxDuplicates <= 0 {
			maxDuplicates = d.params.MaxDuplicates
		}
		if count := act.countFingerprint(fingerprint(text)); count >= maxDuplicates {
			return true, scoreDuplicate, fmt.Sprintf("duplicate message (%d times)", count)
		}
	case KindFlood:
		if rule.Flood == nil {
			return false, 0, ""
		}
		minDelay := rule.Flood.MinDelay
		if minDelay <= 0 {
			minDelay = d.params.MinMessageDelay
		}
		// never triggers on the subject's very first observed message
		if !act.LastMessage.IsZero() && now.Sub(act.LastMessage) < minDelay {
			return true, scoreFlood, fmt.Sprintf("message flood (%v delay)", now.Sub(act.LastMessage))
		}
	case KindPattern:
		if rule.Pattern == nil {
			return false, 0, ""
		}
		for _, pattern := range rule.Pattern.Patterns {
			if pattern.MatchString(text) {
				return true, scorePattern, "matches spam pattern"
			}
		}
	case KindCustom:
		if rule.Custom == nil || rule.Custom.Check == nil {
			return false, 0, ""
		}
		if ok, details := rule.Custom.Check(subject, text); ok {
			customScore := rule.Custom.Score
			if customScore <= 0 {
				customScore = scoreCustom
			}
			return true, customScore, details
		}
	default:
		return false, 0, ""
	}
	return false, 0, ""
}

// invokeCallback calls the host callback, a panicking callback must not abort
// the classification.
func invokeCallback(cb func(string, *waProto.Message, Result), subject string, msg *waProto.Message, res Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[WARN] spam callback panic for %s: %v", subject, r)
		}
	}()
	cb(subject, msg, res)
}

// Mute mutes a subject for the given duration.
func (d *Detector) Mute(subject string, duration time.Duration) {
	d.lock.Lock()
	defer d.lock.Unlock()
	act := d.getOrCreate(subject)
	act.Muted = true
	act.MutedUntil = d.nowFn().Add(duration)
}

// Unmute clears the mute flag of a subject, no-op for unknown subjects.
func (d *Detector) Unmute(subject string) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if act, ok := d.activity.Get(subject); ok {
		act.Muted = false
		act.MutedUntil = time.Time{}
	}
}

// Ban bans a subject until Unban is called.
func (d *Detector) Ban(subject string) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.getOrCreate(subject).Banned = true
}

// Unban clears the ban flag of a subject, no-op for unknown subjects.
func (d *Detector) Unban(subject string) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if act, ok := d.activity.Get(subject); ok {
		act.Banned = false
	}
}

// AddToWhitelist adds a subject to the allowlist.
func (d *Detector) AddToWhitelist(subject string) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.whitelist[subject] = struct{}{}
}

// RemoveFromWhitelist removes a subject from the allowlist.
func (d *Detector) RemoveFromWhitelist(subject string) {
	d.lock.Lock()
	defer d.lock.Unlock()
	delete(d.whitelist, subject)
}

// Activity returns a copy of the tracked state for a subject and true if the
// subject has been observed.
func (d *Detector) Activity(subject string) (Activity, bool) {
	d.lock.Lock()
	defer d.lock.Unlock()
	act, ok := d.activity.Get(subject)
	if !ok {
		return Activity{}, false
	}
	return *act, true
}

// ResetActivity drops all tracked state for a subject.
func (d *Detector) ResetActivity(subject string) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.activity.Invalidate(subject)
}

// Stats is a summary of the detector state.
type Stats struct {
	TotalSubjects  int `json:"total_subjects"`
	MutedSubjects  int `json:"muted_subjects"`
	BannedSubjects int `json:"banned_subjects"`
	TotalWarnings  int `json:"total_warnings"`
}

// Stats returns aggregate counters over all tracked subjects.
func (d *Detector) Stats() Stats {
	d.lock.Lock()
	defer d.lock.Unlock()
	res := Stats{}
	for _, subject := range d.activity.Keys() {
		act, ok := d.activity.Get(subject)
		if !ok {
			continue
		}
		res.TotalSubjects++
		if act.Muted {
			res.MutedSubjects++
		}
		if act.Banned {
			res.BannedSubjects++
		}
		res.TotalWarnings += act.Warnings
	}
	return res
}

// Clear drops all tracked subjects.
func (d *Detector) Clear() {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.activity.Purge()
}
