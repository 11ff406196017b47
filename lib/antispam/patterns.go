package antispam

import "regexp"

// CommonSpamPatterns is a convenience set of free-standing patterns catching
// frequent spam shapes. Pass it (or a subset) via Params.SpamPatterns.
var CommonSpamPatterns = []*regexp.Regexp{
	// shouting, 20+ chars of caps and spaces
	regexp.MustCompile(`[A-Z\s]{20,}`),
	// emoji flood
	regexp.MustCompile(`(?:[\x{1F600}-\x{1F64F}]\s*){10,}`),
	// promotional keywords
	regexp.MustCompile(`(?i)(?:free|gratis|promo|discount|sale|bonus|win|winner|jackpot|lottery|claim)`),
	// link shorteners commonly used to mask spam destinations
	regexp.MustCompile(`(?i)(?:bit\.ly|tinyurl|goo\.gl|t\.co|rb\.gy)`),
	// money and crypto scams
	regexp.MustCompile(`(?i)(?:bitcoin|crypto|invest|trading|profit|earn money|make money|income)`),
}
