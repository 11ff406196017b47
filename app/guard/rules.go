package guard

import (
	"fmt"
	"log"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wamod/wa-guard/lib/antispam"
)

// ruleConfig is the yaml shape of a single rule definition.
type ruleConfig struct {
	ID      string            `yaml:"id"`
	Name    string            `yaml:"name"`
	Kind    antispam.RuleKind `yaml:"kind"`
	Enabled *bool             `yaml:"enabled"` // nil means enabled
	Action  antispam.Action   `yaml:"action"`

	MaxPerMinute  int      `yaml:"max_per_minute,omitempty"`
	MaxDuplicates int      `yaml:"max_duplicates,omitempty"`
	MinDelay      string   `yaml:"min_delay,omitempty"` // duration string, like 500ms
	Patterns      []string `yaml:"patterns,omitempty"`
	Script        string   `yaml:"script,omitempty"` // lua checker name for custom rules
	Score         int      `yaml:"score,omitempty"`
}

// rulesConfig is the top-level yaml rules file.
type rulesConfig struct {
	Rules []ruleConfig `yaml:"rules"`
}

// loadRules parses the yaml rules file and registers every rule, replacing
// rules with matching ids.
func (g *Guard) loadRules(path string) error {
	data, err := os.ReadFile(path) //nolint gosec // path is controlled by the app
	if err != nil {
		return fmt.Errorf("failed to read rules file %s: %w", path, err)
	}
	var conf rulesConfig
	if err := yaml.Unmarshal(data, &conf); err != nil {
		return fmt.Errorf("failed to parse rules file %s: %w", path, err)
	}

	for _, rc := range conf.Rules {
		rule, err := g.makeRule(rc)
		if err != nil {
			return fmt.Errorf("rule %q: %w", rc.ID, err)
		}
		g.spam.AddRule(rule)
	}
	log.Printf("[DEBUG] loaded %d rules from %s", len(conf.Rules), path)
	return nil
}

// makeRule converts a yaml rule definition into a registry rule.
func (g *Guard) makeRule(rc ruleConfig) (antispam.Rule, error) {
	if rc.ID == "" {
		return antispam.Rule{}, fmt.Errorf("rule id is required")
	}
	rule := antispam.Rule{ID: rc.ID, Name: rc.Name, Kind: rc.Kind, Enabled: true, Action: rc.Action}
	if rc.Enabled != nil {
		rule.Enabled = *rc.Enabled
	}
	if rule.Action == "" {
		rule.Action = antispam.ActionWarn
	}

	switch rc.Kind {
	case antispam.KindRateLimit:
		rule.RateLimit = &antispam.RateLimitParams{MaxPerMinute: rc.MaxPerMinute}
	case antispam.KindDuplicate:
		rule.Duplicate = &antispam.DuplicateParams{MaxDuplicates: rc.MaxDuplicates}
	case antispam.KindFlood:
		delay := time.Duration(0)
		if rc.MinDelay != "" {
			var err error
			if delay, err = time.ParseDuration(rc.MinDelay); err != nil {
				return antispam.Rule{}, fmt.Errorf("can't parse min_delay %q: %w", rc.MinDelay, err)
			}
		}
		rule.Flood = &antispam.FloodParams{MinDelay: delay}
	case antispam.KindPattern:
		patterns := make([]*regexp.Regexp, 0, len(rc.Patterns))
		for _, p := range rc.Patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return antispam.Rule{}, fmt.Errorf("can't compile pattern %q: %w", p, err)
			}
			patterns = append(patterns, re)
		}
		rule.Pattern = &antispam.PatternParams{Patterns: patterns}
	case antispam.KindCustom:
		if g.lua == nil {
			return antispam.Rule{}, fmt.Errorf("custom rule needs lua plugins enabled")
		}
		check, err := g.lua.GetCheck(rc.Script)
		if err != nil {
			return antispam.Rule{}, err
		}
		rule.Custom = &antispam.CustomParams{Score: rc.Score, Check: check}
	default:
		return antispam.Rule{}, fmt.Errorf("unknown rule kind %q", rc.Kind)
	}
	return rule, nil
}
