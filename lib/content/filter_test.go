package content

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilter_Allowed(t *testing.T) {
	f := NewFilter(FilterParams{BlockLinks: true, BlockEmails: true})

	res := f.Check(textMsg("just a normal chat message"))
	assert.True(t, res.Allowed)
	assert.Empty(t, res.BlockedReason)
	assert.Empty(t, res.Violations)
}

func TestFilter_BlockLinks(t *testing.T) {
	f := NewFilter(FilterParams{BlockLinks: true})

	res := f.Check(textMsg("check https://example.com out"))
	assert.False(t, res.Allowed)
	assert.Equal(t, "links are not allowed", res.BlockedReason)

	res = f.Check(textMsg("no links here"))
	assert.True(t, res.Allowed)
}

func TestFilter_BlockedDomains(t *testing.T) {
	f := NewFilter(FilterParams{BlockedDomains: []string{"badsite.com", "evil.org"}})

	res := f.Check(textMsg("go to https://sub.badsite.com/page and https://fine.example.com"))
	assert.False(t, res.Allowed)
	require.Len(t, res.Violations, 1)
	assert.Contains(t, res.Violations[0], "blocked domains:")
	assert.Contains(t, res.Violations[0], "sub.badsite.com")

	res = f.Check(textMsg("only https://fine.example.com"))
	assert.True(t, res.Allowed)
}

func TestFilter_BlockPhonesAndEmails(t *testing.T) {
	f := NewFilter(FilterParams{BlockPhoneNumbers: true, BlockEmails: true})

	res := f.Check(textMsg("call 08123456789"))
	assert.False(t, res.Allowed)
	assert.Equal(t, "phone numbers are not allowed", res.BlockedReason)

	res = f.Check(textMsg("mail me at people@example.org"))
	assert.False(t, res.Allowed)
	assert.Contains(t, res.Violations, "email addresses are not allowed")
}

func TestFilter_SensitiveKeywords(t *testing.T) {
	f := NewFilter(FilterParams{SensitiveKeywords: []string{"password", "pin"}})

	res := f.Check(textMsg("my password and PIN are written down"))
	assert.False(t, res.Allowed)
	require.Len(t, res.Violations, 1)
	assert.Equal(t, "sensitive content detected: password, pin", res.Violations[0])
}

func TestFilter_MaxLength(t *testing.T) {
	f := NewFilter(FilterParams{MaxMessageLength: 10})

	res := f.Check(textMsg("this message is clearly too long"))
	assert.False(t, res.Allowed)
	assert.Contains(t, res.BlockedReason, "message too long (32/10)")

	res = f.Check(textMsg("short"))
	assert.True(t, res.Allowed)
}

func TestFilter_CustomPatterns(t *testing.T) {
	f := NewFilter(FilterParams{CustomPatterns: []*regexp.Regexp{
		regexp.MustCompile(`(?i)promo`),
		regexp.MustCompile(`\bjudi\b`),
	}})

	res := f.Check(textMsg("PROMO besar, ayo judi online"))
	assert.False(t, res.Allowed)
	assert.Equal(t, []string{"custom pattern #1 matched", "custom pattern #2 matched"}, res.Violations)
	assert.Equal(t, "custom pattern #1 matched", res.BlockedReason)
}

func TestFilter_MultipleViolationsOrder(t *testing.T) {
	f := NewFilter(FilterParams{
		BlockLinks:        true,
		BlockEmails:       true,
		SensitiveKeywords: []string{"secret"},
	})

	res := f.Check(textMsg("secret dump at https://example.com mail admin@example.com"))
	assert.False(t, res.Allowed)
	assert.Equal(t, []string{
		"links are not allowed",
		"email addresses are not allowed",
		"sensitive content detected: secret",
	}, res.Violations)
	assert.Equal(t, "links are not allowed", res.BlockedReason)
}

func TestFilter_UpdateParams(t *testing.T) {
	f := NewFilter(FilterParams{BlockLinks: true})

	res := f.Check(textMsg("see https://example.com"))
	assert.False(t, res.Allowed)

	f.UpdateParams(FilterParams{SensitiveKeywords: []string{"rahasia"}})
	res = f.Check(textMsg("see https://example.com"))
	assert.True(t, res.Allowed, "link blocking dropped by the new policy")

	res = f.Check(textMsg("ini rahasia"))
	assert.False(t, res.Allowed)
	assert.Contains(t, res.BlockedReason, "sensitive content detected")
}
