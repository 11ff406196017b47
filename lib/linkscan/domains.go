package linkscan

import "regexp"

// urlShorteners are domains known to host URL shortening services.
var urlShorteners = map[string]struct{}{
	"bit.ly": {}, "bitly.com": {}, "tinyurl.com": {}, "goo.gl": {}, "t.co": {},
	"ow.ly": {}, "is.gd": {}, "buff.ly": {}, "j.mp": {}, "rb.gy": {},
	"cutt.ly": {}, "short.link": {}, "tiny.cc": {}, "v.gd": {}, "clck.ru": {},
	"s.id": {}, "shorturl.at": {}, "rebrand.ly": {}, "bl.ink": {}, "soo.gd": {},
}

// suspiciousTLDs are cheap or free top-level domains with a high abuse rate.
var suspiciousTLDs = []string{
	".tk", ".ml", ".ga", ".cf", ".gq", ".xyz", ".top",
	".work", ".click", ".link", ".info", ".biz", ".cc",
}

// maliciousPatterns match URL shapes typical for credential phishing.
var maliciousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)phish`),
	regexp.MustCompile(`(?i)scam`),
	regexp.MustCompile(`(?i)fake.*login`),
	regexp.MustCompile(`(?i)secure.*update`),
	regexp.MustCompile(`(?i)account.*verify`),
	regexp.MustCompile(`(?i)password.*reset.*urgent`),
	regexp.MustCompile(`(?i)suspended.*account`),
	regexp.MustCompile(`(?i)banking.*security`),
}

// suspiciousPathPatterns match path and query shapes typical for phishing
// landing pages.
var suspiciousPathPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)/login/`),
	regexp.MustCompile(`(?i)/signin/`),
	regexp.MustCompile(`(?i)/verify/`),
	regexp.MustCompile(`(?i)/secure/`),
	regexp.MustCompile(`(?i)/account/`),
	regexp.MustCompile(`(?i)\.php\?.*(?:user|pass|login|token)`),
	regexp.MustCompile(`(?i)/wp-(?:admin|login)`),
	regexp.MustCompile(`(?i)/administrator`),
}

// trustedDomains always short-circuit to a safe verdict, including subdomains.
var trustedDomains = []string{
	"google.com", "facebook.com", "instagram.com", "twitter.com",
	"youtube.com", "linkedin.com", "github.com", "microsoft.com",
	"apple.com", "amazon.com", "whatsapp.com", "telegram.org",
	"wikipedia.org", "reddit.com", "stackoverflow.com",
}

// phishingKeywords are brand and credential words scored when found in the
// domain or the full URL of non-trusted destinations.
var phishingKeywords = []string{
	"login", "signin", "verify", "secure", "account", "update",
	"confirm", "password", "credential", "bank", "paypal",
	"apple", "google", "microsoft", "facebook", "instagram",
}

// lookalikeDomains maps genuine brands to common typosquat spellings.
var lookalikeDomains = map[string][]string{
	"google":    {"g00gle", "googie", "go0gle", "goog1e"},
	"facebook":  {"faceb00k", "facebok", "faceboook"},
	"microsoft": {"micr0soft", "mircosoft", "microsft"},
	"apple":     {"app1e", "appie", "aple"},
	"paypal":    {"paypa1", "paypai", "paypaI"},
}

var reIPAddress = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}$`)
var rePercentEnc = regexp.MustCompile(`(?i)%[0-9a-f]{2}`)
