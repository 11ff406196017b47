package linkscan

import "strings"

// phishingScore computes the heuristic phishing score of a URL, 0-100.
// Caller must hold the scanner lock for the safe-domain lookup.
func (s *Scanner) phishingScore(rawURL, domain string) int {
	score := 0
	lowerURL := strings.ToLower(rawURL)
	lowerDomain := strings.ToLower(domain)

	_, domainTrusted := s.safeDomains[domain]
	for _, keyword := range phishingKeywords {
		// brand name inside a non-trusted domain, like google.malicious.com
		if strings.Contains(lowerDomain, keyword) && !domainTrusted {
			score += 20
		}
		// brand name anywhere in the full URL
		if strings.Contains(lowerURL, keyword) {
			score += 5
		}
	}

	for _, lookalikes := range lookalikeDomains {
		for _, lookalike := range lookalikes {
			if strings.Contains(lowerDomain, lookalike) {
				score += 40
			}
		}
	}

	// excess subdomain depth beyond two levels
	if extra := strings.Count(domain, ".") - 1 - 2; extra > 0 {
		score += 10 * extra
	}

	// @ before the query string, classic credential disguise
	beforeQuery, _, _ := strings.Cut(rawURL, "?")
	if strings.Contains(beforeQuery, "@") {
		score += 30
	}

	// percent-encoded characters inside the domain itself
	if rePercentEnc.MatchString(domain) {
		score += 20
	}

	if score > 100 {
		score = 100
	}
	return score
}

// suspiciousPath reports if the path and query match known phishing shapes.
func suspiciousPath(pathAndQuery string) bool {
	for _, pattern := range suspiciousPathPatterns {
		if pattern.MatchString(pathAndQuery) {
			return true
		}
	}
	return false
}

// suspiciousTLD reports if the domain uses a high-abuse top-level domain.
func suspiciousTLD(domain string) bool {
	for _, tld := range suspiciousTLDs {
		if strings.HasSuffix(domain, tld) {
			return true
		}
	}
	return false
}
