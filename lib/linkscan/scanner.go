// Package linkscan implements a URL safety scanner: domain reputation,
// phishing heuristics, shortener resolution and risk scoring. Scanning never
// fails, malformed input degrades to a maximal-risk verdict.
package linkscan

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// RiskLevel is a named risk band derived from the numeric score.
type RiskLevel string

// risk bands, in ascending order
const (
	RiskSafe     RiskLevel = "safe"
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// riskLevel maps a numeric score to its band. Bands partition [0,100]
// without gaps.
func riskLevel(score int) RiskLevel {
	switch {
	case score < 15:
		return RiskSafe
	case score < 30:
		return RiskLow
	case score < 50:
		return RiskMedium
	case score < 75:
		return RiskHigh
	}
	return RiskCritical
}

// risk score contributions
const (
	riskNoHTTPS          = 15
	riskIPAddress        = 25
	riskShortener        = 15
	riskSuspiciousTLD    = 20
	riskMaliciousDomain  = 50
	riskSuspiciousPath   = 20
	riskMaliciousPattern = 40
	riskUnresolved       = 10
)

// unsafeThreshold is the score at which a URL is no longer considered safe.
const unsafeThreshold = 30

// Params is a set of parameters for Scanner. Zero values are replaced with
// defaults by NewScanner, redirect resolution and phishing detection are on
// unless explicitly disabled.
type Params struct {
	NoFollowRedirects   bool          // do not resolve shortener redirects
	NoPhishingDetection bool          // skip phishing heuristics
	MaxRedirects        int           // redirect hops to follow, default 5
	Timeout             time.Duration // per-hop timeout, default 5s
	MaliciousDomains    []string      // extra domains treated as known malicious
	SafeDomains         []string      // extra domains treated as trusted
	UserAgent           string        // user-agent for redirect requests, default "Mozilla/5.0"
	HTTPClient          HTTPClient    // client for redirect requests, must not auto-follow
}

// Details carries the per-signal breakdown of a scan.
type Details struct {
	IsShortener       bool   `json:"is_shortener"`
	FinalURL          string `json:"final_url,omitempty"`
	Domain            string `json:"domain"`
	IsHTTPS           bool   `json:"is_https"`
	HasIPAddress      bool   `json:"has_ip_address"`
	HasSuspiciousPath bool   `json:"has_suspicious_path"`
	IsKnownMalicious  bool   `json:"is_known_malicious"`
	PhishingScore     int    `json:"phishing_score"`
}

// Result is the immutable verdict of one scan.
type Result struct {
	URL       string    `json:"url"`
	Safe      bool      `json:"safe"`
	RiskLevel RiskLevel `json:"risk_level"`
	RiskScore int       `json:"risk_score"` // 0-100
	Threats   []string  `json:"threats"`
	Details   Details   `json:"details"`
	ScannedAt time.Time `json:"scanned_at"`
}

// Scanner checks URLs for safety threats, thread-safe. The lock guards the
// domain sets only, redirect resolution runs with no lock held.
type Scanner struct {
	params           Params
	maliciousDomains map[string]struct{}
	safeDomains      map[string]struct{}
	nowFn            func() time.Time
	lock             sync.RWMutex
}

// NewScanner makes a scanner with the merged trusted and caller-supplied safe
// domain sets.
func NewScanner(params Params) *Scanner {
	if params.MaxRedirects <= 0 {
		params.MaxRedirects = 5
	}
	if params.Timeout <= 0 {
		params.Timeout = 5 * time.Second
	}
	if params.UserAgent == "" {
		params.UserAgent = "Mozilla/5.0"
	}
	if params.HTTPClient == nil {
		params.HTTPClient = &http.Client{
			CheckRedirect: func(_ *http.Request, _ []*http.Request) error { return http.ErrUseLastResponse },
		}
	}

	res := &Scanner{
		params:           params,
		maliciousDomains: map[string]struct{}{},
		safeDomains:      map[string]struct{}{},
		nowFn:            time.Now,
	}
	for _, d := range params.MaliciousDomains {
		res.maliciousDomains[strings.ToLower(d)] = struct{}{}
	}
	for _, d := range trustedDomains {
		res.safeDomains[d] = struct{}{}
	}
	for _, d := range params.SafeDomains {
		res.safeDomains[strings.ToLower(d)] = struct{}{}
	}
	return res
}

// Scan checks a single URL and returns a structured verdict. It never returns
// an error, malformed input yields a maximal-risk verdict.
func (s *Scanner) Scan(ctx context.Context, rawURL string) Result {
	return s.scan(ctx, rawURL, 0)
}

// ScanMultiple scans all URLs concurrently, one goroutine per URL, and
// returns verdicts in input order.
func (s *Scanner) ScanMultiple(ctx context.Context, urls []string) []Result {
	res := make([]Result, len(urls))
	var eg errgroup.Group
	for i, u := range urls {
		eg.Go(func() error {
			res[i] = s.scan(ctx, u, 0)
			return nil
		})
	}
	_ = eg.Wait() // scans never fail
	return res
}

// scan is the recursive scan implementation, depth guards against redirect
// chains that keep landing on shorteners.
func (s *Scanner) scan(ctx context.Context, rawURL string, depth int) Result {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Hostname() == "" {
		return Result{
			URL:       rawURL,
			Safe:      false,
			RiskLevel: RiskCritical,
			RiskScore: 100,
			Threats:   []string{"invalid URL format"},
			ScannedAt: s.nowFn(),
		}
	}

	domain := strings.ToLower(parsed.Hostname())
	isHTTPS := parsed.Scheme == "https"
	_, isShortener := urlShorteners[domain]
	hasIP := reIPAddress.MatchString(domain)

	// all domain-set decisions happen under the read lock, redirect
	// resolution below runs with no lock held
	s.lock.RLock()
	safe := s.domainSafe(domain)
	_, knownMalicious := s.maliciousDomains[domain]
	phishing := 0
	if !s.params.NoPhishingDetection {
		phishing = s.phishingScore(rawURL, domain)
	}
	s.lock.RUnlock()

	// trusted domains short-circuit with a zero-risk verdict
	if safe {
		return Result{
			URL:       rawURL,
			Safe:      true,
			RiskLevel: RiskSafe,
			RiskScore: 0,
			Threats:   []string{},
			Details:   Details{IsShortener: isShortener, Domain: domain, IsHTTPS: isHTTPS},
			ScannedAt: s.nowFn(),
		}
	}

	threats := []string{}
	riskScore := 0

	if !isHTTPS {
		threats = append(threats, "no HTTPS encryption")
		riskScore += riskNoHTTPS
	}
	if hasIP {
		threats = append(threats, "uses IP address instead of domain name")
		riskScore += riskIPAddress
	}
	if isShortener {
		threats = append(threats, "URL shortener (may hide malicious destination)")
		riskScore += riskShortener
	}
	if suspiciousTLD(domain) {
		threats = append(threats, "suspicious top-level domain")
		riskScore += riskSuspiciousTLD
	}
	if knownMalicious {
		threats = append(threats, "known malicious domain")
		riskScore += riskMaliciousDomain
	}
	pathAndQuery := parsed.Path
	if parsed.RawQuery != "" {
		pathAndQuery += "?" + parsed.RawQuery
	}
	pathSuspicious := suspiciousPath(pathAndQuery)
	if pathSuspicious {
		threats = append(threats, "suspicious URL path pattern")
		riskScore += riskSuspiciousPath
	}

	if phishing >= 50 {
		threats = append(threats, "phishing indicators detected")
		add := phishing / 2
		if add > 30 {
			add = 30
		}
		riskScore += add
	}

	maliciousPattern := false
	for _, pattern := range maliciousPatterns {
		if pattern.MatchString(rawURL) {
			maliciousPattern = true
			break
		}
	}
	if maliciousPattern {
		threats = append(threats, "matches known malicious pattern")
		riskScore += riskMaliciousPattern
	}

	// resolve shorteners and rescan the destination. risk accumulated from
	// the shortener hop itself is kept even when the final URL is safe.
	finalURL := ""
	if !s.params.NoFollowRedirects && isShortener && depth < s.params.MaxRedirects {
		resolved, rerr := s.resolveRedirects(ctx, rawURL)
		if rerr != nil {
			threats = append(threats, "failed to resolve URL shortener")
			riskScore += riskUnresolved
		} else if resolved != "" && resolved != rawURL {
			finalURL = resolved
			finalResult := s.scan(ctx, resolved, depth+1)
			if !finalResult.Safe {
				for _, t := range finalResult.Threats {
					threats = append(threats, "[final URL] "+t)
				}
				if finalResult.RiskScore > riskScore {
					riskScore = finalResult.RiskScore
				}
			}
		}
	}

	if riskScore > 100 {
		riskScore = 100
	}
	return Result{
		URL:       rawURL,
		Safe:      riskScore < unsafeThreshold,
		RiskLevel: riskLevel(riskScore),
		RiskScore: riskScore,
		Threats:   threats,
		Details: Details{
			IsShortener:       isShortener,
			FinalURL:          finalURL,
			Domain:            domain,
			IsHTTPS:           isHTTPS,
			HasIPAddress:      hasIP,
			HasSuspiciousPath: pathSuspicious,
			IsKnownMalicious:  knownMalicious,
			PhishingScore:     phishing,
		},
		ScannedAt: s.nowFn(),
	}
}

// QuickCheck runs the static checks only, no network access.
func (s *Scanner) QuickCheck(rawURL string) (suspicious bool, reasons []string) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	reasons = []string{}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Hostname() == "" {
		return true, []string{"invalid URL"}
	}
	domain := strings.ToLower(parsed.Hostname())

	if parsed.Scheme != "https" {
		reasons = append(reasons, "no HTTPS")
	}
	if reIPAddress.MatchString(domain) {
		reasons = append(reasons, "IP address")
	}
	if _, ok := urlShorteners[domain]; ok {
		reasons = append(reasons, "URL shortener")
	}
	if suspiciousTLD(domain) {
		reasons = append(reasons, "suspicious TLD")
	}
	if _, ok := s.maliciousDomains[domain]; ok {
		reasons = append(reasons, "known malicious")
	}
	return len(reasons) > 0, reasons
}

// domainSafe reports if the domain equals or is a subdomain of any safe
// domain. Caller must hold the lock.
func (s *Scanner) domainSafe(domain string) bool {
	if _, ok := s.safeDomains[domain]; ok {
		return true
	}
	for trusted := range s.safeDomains {
		if strings.HasSuffix(domain, "."+trusted) {
			return true
		}
	}
	return false
}

// AddMaliciousDomain adds a domain to the malicious set.
func (s *Scanner) AddMaliciousDomain(domain string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.maliciousDomains[strings.ToLower(domain)] = struct{}{}
}

// RemoveMaliciousDomain removes a domain from the malicious set.
func (s *Scanner) RemoveMaliciousDomain(domain string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.maliciousDomains, strings.ToLower(domain))
}

// AddSafeDomain adds a domain to the safe set.
func (s *Scanner) AddSafeDomain(domain string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.safeDomains[strings.ToLower(domain)] = struct{}{}
}

// RemoveSafeDomain removes a domain from the safe set.
func (s *Scanner) RemoveSafeDomain(domain string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.safeDomains, strings.ToLower(domain))
}

// IsTrustedDomain reports if a domain is in the built-in trusted set.
func IsTrustedDomain(domain string) bool {
	domain = strings.ToLower(domain)
	for _, t := range trustedDomains {
		if domain == t {
			return true
		}
	}
	return false
}

// IsShortener reports if a URL points at a known shortening service.
func IsShortener(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	_, ok := urlShorteners[strings.ToLower(parsed.Hostname())]
	return ok
}

// ExtractDomain returns the lowercase hostname of a URL, empty string for
// unparsable input.
func ExtractDomain(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}
