// Package content provides feature extraction and policy filtering over
// WhatsApp messages: links, phone numbers, emails, mentions, hashtags, emojis,
// media types and sensitive keywords.
package content

import (
	"strings"
	"sync"

	waProto "go.mau.fi/whatsmeow/binary/proto"

	"github.com/wamod/wa-guard/lib/wamsg"
)

// Result is the immutable outcome of one analysis pass.
type Result struct {
	HasMedia            bool            `json:"has_media"`
	MediaType           wamsg.MediaKind `json:"media_type,omitempty"`
	HasLinks            bool            `json:"has_links"`
	Links               []wamsg.Link    `json:"links"`
	HasPhoneNumbers     bool            `json:"has_phone_numbers"`
	PhoneNumbers        []wamsg.Phone   `json:"phone_numbers"`
	HasEmails           bool            `json:"has_emails"`
	Emails              []string        `json:"emails"`
	HasMentions         bool            `json:"has_mentions"`
	Mentions            []string        `json:"mentions"`
	HasHashtags         bool            `json:"has_hashtags"`
	Hashtags            []string        `json:"hashtags"`
	HasEmojis           bool            `json:"has_emojis"`
	Emojis              []string        `json:"emojis"`
	HasSensitiveContent bool            `json:"has_sensitive_content"`
	SensitiveKeywords   []string        `json:"sensitive_keywords"`
	MessageType         string          `json:"message_type"`
	TextLength          int             `json:"text_length"`
	WordCount           int             `json:"word_count"`
}

// Detector extracts content signals from messages, thread-safe.
type Detector struct {
	sensitiveKeywords []string
	lock              sync.RWMutex
}

// NewDetector makes a detector with the given sensitive keywords.
func NewDetector(sensitiveKeywords []string) *Detector {
	return &Detector{sensitiveKeywords: append([]string(nil), sensitiveKeywords...)}
}

// Analyze extracts all content signals from a message. A message without text
// yields empty signal lists, never an error.
func (d *Detector) Analyze(msg *waProto.Message) Result {
	text := wamsg.Text(msg)
	mediaType := wamsg.MediaType(msg)

	links := wamsg.Links(text)
	phones := wamsg.Phones(text)
	emails := wamsg.Emails(text)
	mentions := wamsg.Mentions(msg)
	hashtags := wamsg.Hashtags(text)
	emojis := wamsg.Emojis(text)
	sensitive := d.Sensitive(text)

	return Result{
		HasMedia:            mediaType != wamsg.MediaNone,
		MediaType:           mediaType,
		HasLinks:            len(links) > 0,
		Links:               links,
		HasPhoneNumbers:     len(phones) > 0,
		PhoneNumbers:        phones,
		HasEmails:           len(emails) > 0,
		Emails:              emails,
		HasMentions:         len(mentions) > 0,
		Mentions:            mentions,
		HasHashtags:         len(hashtags) > 0,
		Hashtags:            hashtags,
		HasEmojis:           len(emojis) > 0,
		Emojis:              emojis,
		HasSensitiveContent: len(sensitive) > 0,
		SensitiveKeywords:   sensitive,
		MessageType:         wamsg.MessageType(msg),
		TextLength:          len([]rune(text)),
		WordCount:           len(strings.Fields(text)),
	}
}

// Sensitive returns the configured keywords present in the text,
// case-insensitive substring match.
func (d *Detector) Sensitive(text string) []string {
	d.lock.RLock()
	defer d.lock.RUnlock()
	lower := strings.ToLower(text)
	res := []string{}
	for _, keyword := range d.sensitiveKeywords {
		if strings.Contains(lower, strings.ToLower(keyword)) {
			res = append(res, keyword)
		}
	}
	return res
}

// AddSensitiveKeywords appends keywords to the sensitive list.
func (d *Detector) AddSensitiveKeywords(keywords ...string) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.sensitiveKeywords = append(d.sensitiveKeywords, keywords...)
}

// SetSensitiveKeywords replaces the sensitive list.
func (d *Detector) SetSensitiveKeywords(keywords []string) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.sensitiveKeywords = append([]string(nil), keywords...)
}
