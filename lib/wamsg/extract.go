package wamsg

import (
	"regexp"
	"strings"

	"github.com/forPelevin/gomoji"
)

// LinkKind classifies an extracted link by its destination.
type LinkKind string

// link kinds, classification order is social -> image -> video -> file -> website
const (
	LinkSocial  LinkKind = "social"
	LinkImage   LinkKind = "image"
	LinkVideo   LinkKind = "video"
	LinkFile    LinkKind = "file"
	LinkWebsite LinkKind = "website"
)

// Link is a single URL extracted from message text.
type Link struct {
	URL     string   `json:"url"`
	Domain  string   `json:"domain"`
	IsHTTPS bool     `json:"is_https"`
	Kind    LinkKind `json:"kind"`
}

// Phone is a phone number extracted from message text. Formatting is a
// best-effort heuristic biased to Indonesian numbers, malformed input is
// passed through as-is.
type Phone struct {
	Raw         string `json:"raw"`
	Formatted   string `json:"formatted"`
	CountryCode string `json:"country_code,omitempty"`
}

var (
	reURL    = regexp.MustCompile(`https?://(?:www\.)?[-a-zA-Z0-9@:%._+~#=]{1,256}\.[a-zA-Z0-9()]{1,6}\b(?:[-a-zA-Z0-9()@:%_+.~#?&/=]*)`)
	reDomain = regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?([a-zA-Z0-9-]+(?:\.[a-zA-Z0-9-]+)+)`)
	rePhone  = regexp.MustCompile(`(?:\+62|62|0)(?:[0-9]{2,3}[-\s.]?)?[0-9]{3,4}[-\s.]?[0-9]{3,4}(?:[-\s.]?[0-9]{1,4})?|(?:\+[0-9]{1,3}[-\s.]?)?\(?[0-9]{1,4}\)?[-\s.]?[0-9]{1,4}[-\s.]?[0-9]{1,9}`)
	reEmail  = regexp.MustCompile(`(?i)[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	reTag    = regexp.MustCompile(`#[a-zA-Z0-9_\x{0600}-\x{06FF}]+`)

	reSocial   = regexp.MustCompile(`(?i)(?:facebook|fb|instagram|twitter|tiktok|youtube|linkedin|whatsapp|telegram|discord)\.(?:com|me|tv|gg)`)
	reImageURL = regexp.MustCompile(`(?i)\.(?:jpg|jpeg|png|gif|webp|bmp|svg)(?:\?.*)?$`)
	reVideoURL = regexp.MustCompile(`(?i)\.(?:mp4|avi|mov|wmv|flv|webm|mkv)(?:\?.*)?$`)
	reFileURL  = regexp.MustCompile(`(?i)\.(?:pdf|doc|docx|xls|xlsx|ppt|pptx|zip|rar|7z|tar|gz)(?:\?.*)?$`)

	reDigits = regexp.MustCompile(`[^0-9]`)
)

// Links extracts all URLs from the text and classifies each one.
func Links(text string) []Link {
	matches := reURL.FindAllString(text, -1)
	res := make([]Link, 0, len(matches))
	for _, u := range matches {
		domain := ""
		if m := reDomain.FindStringSubmatch(u); m != nil {
			domain = m[1]
		}
		kind := LinkWebsite
		switch {
		case reSocial.MatchString(u):
			kind = LinkSocial
		case reImageURL.MatchString(u):
			kind = LinkImage
		case reVideoURL.MatchString(u):
			kind = LinkVideo
		case reFileURL.MatchString(u):
			kind = LinkFile
		}
		res = append(res, Link{URL: u, Domain: domain, IsHTTPS: strings.HasPrefix(u, "https"), Kind: kind})
	}
	return res
}

// Phones extracts phone numbers from the text. Numbers starting with 62 keep
// the country code, numbers with a leading zero are reinterpreted as local
// Indonesian numbers.
func Phones(text string) []Phone {
	matches := rePhone.FindAllString(text, -1)
	res := make([]Phone, 0, len(matches))
	for _, raw := range matches {
		digits := reDigits.ReplaceAllString(raw, "")
		p := Phone{Raw: raw, Formatted: raw}
		switch {
		case strings.HasPrefix(digits, "62"):
			p.CountryCode = "+62"
			p.Formatted = "+62 " + digits[2:]
		case strings.HasPrefix(digits, "0"):
			p.CountryCode = "+62"
			p.Formatted = "+62 " + digits[1:]
		}
		res = append(res, p)
	}
	return res
}

// Emails extracts all email addresses from the text.
func Emails(text string) []string {
	return reEmail.FindAllString(text, -1)
}

// Hashtags extracts all hashtags from the text, without the leading #.
func Hashtags(text string) []string {
	matches := reTag.FindAllString(text, -1)
	res := make([]string, 0, len(matches))
	for _, m := range matches {
		res = append(res, strings.TrimPrefix(m, "#"))
	}
	return res
}

// Emojis returns all emoji characters found in the text, left to right.
func Emojis(text string) []string {
	found := gomoji.CollectAll(text)
	res := make([]string, 0, len(found))
	for _, e := range found {
		res = append(res, e.Character)
	}
	return res
}

// HasLinks is a quick check for URLs in the text.
func HasLinks(text string) bool { return reURL.MatchString(text) }

// HasPhones is a quick check for phone numbers in the text.
func HasPhones(text string) bool { return rePhone.MatchString(text) }

// HasEmails is a quick check for email addresses in the text.
func HasEmails(text string) bool { return reEmail.MatchString(text) }
