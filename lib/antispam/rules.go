package antispam

import (
	"regexp"
	"time"
)

// Action is a recommended response to a detection, ordered by severity.
type Action string

// possible actions, least to most severe
const (
	ActionIgnore Action = "ignore"
	ActionWarn   Action = "warn"
	ActionDelete Action = "delete"
	ActionMute   Action = "mute"
	ActionKick   Action = "kick"
	ActionBan    Action = "ban"
)

// Severity returns the rank of the action in the total severity order.
// Unknown actions rank lowest.
func (a Action) Severity() int {
	switch a {
	case ActionIgnore:
		return 0
	case ActionWarn:
		return 1
	case ActionDelete:
		return 2
	case ActionMute:
		return 3
	case ActionKick:
		return 4
	case ActionBan:
		return 5
	}
	return 0
}

// RuleKind is a closed set of rule types the detector evaluates.
type RuleKind string

// rule kinds
const (
	KindRateLimit RuleKind = "rate_limit"
	KindDuplicate RuleKind = "duplicate"
	KindFlood     RuleKind = "flood"
	KindPattern   RuleKind = "pattern"
	KindCustom    RuleKind = "custom"
)

// CheckFunc is a custom rule check. It gets the subject id and the extracted
// message text and reports if the rule triggered with human-readable details.
type CheckFunc func(subject, text string) (triggered bool, details string)

// Rule is a single named detection rule. Each kind carries its own typed
// parameters; a rule with an unknown kind or a missing parameters block never
// triggers.
type Rule struct {
	ID       string        `yaml:"id"`
	Name     string        `yaml:"name"`
	Kind     RuleKind      `yaml:"kind"`
	Enabled  bool          `yaml:"enabled"`
	Action   Action        `yaml:"action"`
	Duration time.Duration `yaml:"duration,omitempty"` // mute/ban duration for the action, if applicable

	RateLimit *RateLimitParams `yaml:"rate_limit,omitempty"`
	Duplicate *DuplicateParams `yaml:"duplicate,omitempty"`
	Flood     *FloodParams     `yaml:"flood,omitempty"`
	Pattern   *PatternParams   `yaml:"pattern,omitempty"`
	Custom    *CustomParams    `yaml:"-"`
}

// RateLimitParams configures a rate_limit rule.
type RateLimitParams struct {
	MaxPerMinute int `yaml:"max_per_minute"`
}

// DuplicateParams configures a duplicate rule.
type DuplicateParams struct {
	MaxDuplicates int `yaml:"max_duplicates"`
}

// FloodParams configures a flood rule.
type FloodParams struct {
	MinDelay time.Duration `yaml:"min_delay"`
}

// PatternParams configures a pattern rule.
type PatternParams struct {
	Patterns []*regexp.Regexp `yaml:"-"`
}

// CustomParams configures a custom rule.
type CustomParams struct {
	Score int // score contribution on trigger, 50 if not set
	Check CheckFunc
}

// AddRule inserts a rule or replaces an existing one with the same id.
// A replaced rule keeps its original evaluation position.
func (d *Detector) AddRule(rule Rule) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if _, ok := d.rules[rule.ID]; !ok {
		d.order = append(d.order, rule.ID)
	}
	d.rules[rule.ID] = &rule
}

// RemoveRule removes a rule by id, returns true if the rule existed.
func (d *Detector) RemoveRule(id string) bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	if _, ok := d.rules[id]; !ok {
		return false
	}
	delete(d.rules, id)
	for i, rid := range d.order {
		if rid == id {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	return true
}

// ToggleRule enables or disables a rule, no-op if the rule is absent.
func (d *Detector) ToggleRule(id string, enabled bool) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if rule, ok := d.rules[id]; ok {
		rule.Enabled = enabled
	}
}

// Rules returns a snapshot of all rules in evaluation order.
func (d *Detector) Rules() []Rule {
	d.lock.Lock()
	defer d.lock.Unlock()
	res := make([]Rule, 0, len(d.order))
	for _, id := range d.order {
		res = append(res, *d.rules[id])
	}
	return res
}
