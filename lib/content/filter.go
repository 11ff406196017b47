package content

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	waProto "go.mau.fi/whatsmeow/binary/proto"

	"github.com/wamod/wa-guard/lib/wamsg"
)

// FilterParams configures a Filter. Zero values disable the corresponding
// check.
type FilterParams struct {
	BlockLinks        bool             // reject any message with links
	BlockedDomains    []string         // reject links whose domain contains any of these
	BlockPhoneNumbers bool             // reject messages with phone numbers
	BlockEmails       bool             // reject messages with email addresses
	SensitiveKeywords []string         // always reported as violations when present
	MaxMessageLength  int              // reject longer messages, 0 disables
	CustomPatterns    []*regexp.Regexp // reject on any match
}

// FilterResult is the outcome of one filter pass.
type FilterResult struct {
	Allowed       bool     `json:"allowed"`
	BlockedReason string   `json:"blocked_reason,omitempty"` // first violation, empty if allowed
	Violations    []string `json:"violations"`
}

// Filter applies a block policy over content analysis results. It composes a
// Detector internally, thread-safe.
type Filter struct {
	params   FilterParams
	detector *Detector
	lock     sync.RWMutex
}

// NewFilter makes a filter with the given policy.
func NewFilter(params FilterParams) *Filter {
	return &Filter{params: params, detector: NewDetector(params.SensitiveKeywords)}
}

// Check analyzes a message and evaluates the block policy against it.
func (f *Filter) Check(msg *waProto.Message) FilterResult {
	f.lock.RLock()
	params := f.params
	f.lock.RUnlock()

	analysis := f.detector.Analyze(msg)
	violations := []string{}

	if params.BlockLinks && analysis.HasLinks {
		violations = append(violations, "links are not allowed")
	}

	if len(params.BlockedDomains) > 0 && analysis.HasLinks {
		blocked := []string{}
		for _, link := range analysis.Links {
			for _, domain := range params.BlockedDomains {
				if strings.Contains(strings.ToLower(link.Domain), strings.ToLower(domain)) {
					blocked = append(blocked, link.Domain)
					break
				}
			}
		}
		if len(blocked) > 0 {
			violations = append(violations, "blocked domains: "+strings.Join(blocked, ", "))
		}
	}

	if params.BlockPhoneNumbers && analysis.HasPhoneNumbers {
		violations = append(violations, "phone numbers are not allowed")
	}

	if params.BlockEmails && analysis.HasEmails {
		violations = append(violations, "email addresses are not allowed")
	}

	if analysis.HasSensitiveContent {
		violations = append(violations, "sensitive content detected: "+strings.Join(analysis.SensitiveKeywords, ", "))
	}

	if params.MaxMessageLength > 0 && analysis.TextLength > params.MaxMessageLength {
		violations = append(violations, fmt.Sprintf("message too long (%d/%d)", analysis.TextLength, params.MaxMessageLength))
	}

	text := wamsg.Text(msg)
	for i, pattern := range params.CustomPatterns {
		if pattern.MatchString(text) {
			violations = append(violations, fmt.Sprintf("custom pattern #%d matched", i+1))
		}
	}

	res := FilterResult{Allowed: len(violations) == 0, Violations: violations}
	if !res.Allowed {
		res.BlockedReason = violations[0]
	}
	return res
}

// Analyze exposes the content analysis of the composed detector.
func (f *Filter) Analyze(msg *waProto.Message) Result {
	return f.detector.Analyze(msg)
}

// UpdateParams replaces the filter policy. The sensitive keyword list of the
// composed detector is updated as well.
func (f *Filter) UpdateParams(params FilterParams) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.params = params
	f.detector.SetSensitiveKeywords(params.SensitiveKeywords)
}
