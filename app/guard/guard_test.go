package guard

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	waProto "go.mau.fi/whatsmeow/binary/proto"
	"google.golang.org/protobuf/proto"

	"github.com/wamod/wa-guard/lib/antispam"
	"github.com/wamod/wa-guard/lib/content"
)

func textMsg(s string) *waProto.Message {
	return &waProto.Message{Conversation: proto.String(s)}
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestGuard_CleanMessage(t *testing.T) {
	g, err := New(Params{})
	require.NoError(t, err)

	v := g.CheckMessage(context.Background(), "user1", textMsg("hello there"))
	assert.False(t, v.Blocked)
	assert.Empty(t, v.Reasons)
	assert.Equal(t, "user1", v.Subject)
	assert.False(t, v.Spam.IsSpam)
	assert.True(t, v.Content.Allowed)
	assert.Empty(t, v.Links)
}

func TestGuard_SpamPatternFromFile(t *testing.T) {
	patterns := writeFile(t, t.TempDir(), "patterns.txt", `
# promo junk
(?i)buy now
(?i)limited offer
`)
	g, err := New(Params{PatternsFile: patterns})
	require.NoError(t, err)

	v := g.CheckMessage(context.Background(), "user1", textMsg("BUY NOW, limited offer!!!"))
	assert.True(t, v.Blocked)
	assert.True(t, v.Spam.IsSpam)
	assert.Contains(t, v.Spam.Rules, "file_patterns")
	require.NotEmpty(t, v.Reasons)
	assert.Contains(t, v.Reasons[0], "spam:")
}

func TestGuard_ContentBlocked(t *testing.T) {
	keywords := writeFile(t, t.TempDir(), "keywords.txt", "password\npin\n")
	g, err := New(Params{KeywordsFile: keywords})
	require.NoError(t, err)

	v := g.CheckMessage(context.Background(), "user1", textMsg("my password is 1234 wait no"))
	assert.True(t, v.Blocked)
	assert.False(t, v.Content.Allowed)
	assert.Contains(t, v.Reasons[0], "content: sensitive content detected")
}

func TestGuard_LinkScanning(t *testing.T) {
	g, err := New(Params{ScanLinks: true})
	require.NoError(t, err)

	v := g.CheckMessage(context.Background(), "user1", textMsg("visit http://192.168.0.1/login/ now"))
	assert.True(t, v.Blocked)
	require.Len(t, v.Links, 1)
	assert.False(t, v.Links[0].Safe)
	assert.Contains(t, v.Reasons[0], "link: http://192.168.0.1/login/")

	v = g.CheckMessage(context.Background(), "user2", textMsg("docs at https://github.com/golang/go"))
	assert.False(t, v.Blocked)
	require.Len(t, v.Links, 1)
	assert.True(t, v.Links[0].Safe)
}

func TestGuard_ScanLinksDisabled(t *testing.T) {
	g, err := New(Params{})
	require.NoError(t, err)

	v := g.CheckMessage(context.Background(), "user1", textMsg("visit http://192.168.0.1/login/ now"))
	assert.False(t, v.Blocked)
	assert.Empty(t, v.Links)
}

func TestGuard_DetectionLog(t *testing.T) {
	log := &bytes.Buffer{}
	g, err := New(Params{
		Filter:    content.FilterParams{SensitiveKeywords: []string{"secret"}},
		LogWriter: log,
	})
	require.NoError(t, err)

	g.CheckMessage(context.Background(), "user1", textMsg("all clean"))
	assert.Zero(t, log.Len(), "clean messages are not logged")

	g.CheckMessage(context.Background(), "user2", textMsg("the secret plan"))
	require.NotZero(t, log.Len())

	var rec Verdict
	require.NoError(t, json.Unmarshal(log.Bytes(), &rec))
	assert.Equal(t, "user2", rec.Subject)
	assert.True(t, rec.Blocked)
}

func TestGuard_MaliciousDomainsFile(t *testing.T) {
	domains := writeFile(t, t.TempDir(), "domains.txt", "evil.example\nbad.example\n")
	g, err := New(Params{MaliciousDomainsFile: domains, ScanLinks: true})
	require.NoError(t, err)

	v := g.CheckMessage(context.Background(), "user1", textMsg("see https://evil.example/page"))
	assert.True(t, v.Blocked)
	require.Len(t, v.Links, 1)
	assert.Contains(t, v.Links[0].Threats, "known malicious domain")
}

func TestGuard_SafeDomainsFile(t *testing.T) {
	safe := writeFile(t, t.TempDir(), "safe.txt", "internal.example\n")
	g, err := New(Params{SafeDomainsFile: safe, ScanLinks: true})
	require.NoError(t, err)

	v := g.CheckMessage(context.Background(), "user1", textMsg("see http://app.internal.example/login/"))
	assert.False(t, v.Blocked)
	require.Len(t, v.Links, 1)
	assert.True(t, v.Links[0].Safe)
	assert.Equal(t, 0, v.Links[0].RiskScore)
}

func TestGuard_RulesFile(t *testing.T) {
	rules := writeFile(t, t.TempDir(), "rules.yml", `
rules:
  - id: promo
    name: Promo Spam
    kind: pattern
    action: delete
    patterns: ["(?i)promo", "(?i)diskon"]
  - id: flood
    kind: flood
    enabled: false
`)
	g, err := New(Params{RulesFile: rules})
	require.NoError(t, err)

	v := g.CheckMessage(context.Background(), "user1", textMsg("PROMO spesial hari ini"))
	assert.True(t, v.Blocked)
	assert.Contains(t, v.Spam.Rules, "promo")
	assert.Equal(t, antispam.ActionDelete, v.Spam.Action)

	// the builtin flood rule was replaced with a disabled one
	v = g.CheckMessage(context.Background(), "user2", textMsg("one"))
	v = g.CheckMessage(context.Background(), "user2", textMsg("two"))
	assert.NotContains(t, v.Spam.Rules, "flood")
}

func TestGuard_RulesFileDefaultThresholds(t *testing.T) {
	rules := writeFile(t, t.TempDir(), "rules.yml", `
rules:
  - id: rate_limit
    kind: rate_limit
  - id: duplicate
    kind: duplicate
`)
	g, err := New(Params{RulesFile: rules})
	require.NoError(t, err)

	// rules without explicit thresholds use the engine defaults, a subject's
	// first message must never trip them
	v := g.CheckMessage(context.Background(), "user1", textMsg("halo semua"))
	assert.False(t, v.Blocked)
	assert.Empty(t, v.Spam.Rules)
	assert.Equal(t, 0, v.Spam.Score)
}

func TestGuard_RulesFileCustomLua(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "shouty.lua", `
function check(req)
  if req.text == string.upper(req.text) and #req.text > 5 then
    return true, "all caps"
  end
  return false, ""
end
`)
	rules := writeFile(t, dir, "rules.yml", `
rules:
  - id: shouty
    kind: custom
    action: warn
    script: shouty
    score: 60
`)
	g, err := New(Params{RulesFile: rules, LuaPluginsDir: dir})
	require.NoError(t, err)
	defer g.Close()

	v := g.CheckMessage(context.Background(), "user1", textMsg("STOP SHOUTING PLEASE"))
	assert.True(t, v.Blocked)
	assert.Contains(t, v.Spam.Rules, "shouty")
	assert.Equal(t, 60, v.Spam.Score)
}

func TestGuard_RulesFileErrors(t *testing.T) {
	tests := []struct {
		name string
		yml  string
		err  string
	}{
		{"missing id", "rules:\n  - kind: flood\n", "rule id is required"},
		{"unknown kind", "rules:\n  - id: x\n    kind: wat\n", "unknown rule kind"},
		{"bad pattern", "rules:\n  - id: x\n    kind: pattern\n    patterns: [\"(\"]\n", "can't compile pattern"},
		{"bad delay", "rules:\n  - id: x\n    kind: flood\n    min_delay: fast\n", "can't parse min_delay"},
		{"custom without lua", "rules:\n  - id: x\n    kind: custom\n    script: nope\n", "custom rule needs lua"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules := writeFile(t, t.TempDir(), "rules.yml", tt.yml)
			_, err := New(Params{RulesFile: rules})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.err)
		})
	}
}

func TestGuard_ReloadAggregatesErrors(t *testing.T) {
	dir := t.TempDir()
	keywords := writeFile(t, dir, "keywords.txt", "rahasia\n")
	g, err := New(Params{
		KeywordsFile: keywords,
		PatternsFile: filepath.Join(dir, "missing-patterns.txt"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "patterns:")
	assert.Nil(t, g)
}

func TestGuard_Watch(t *testing.T) {
	dir := t.TempDir()
	keywords := writeFile(t, dir, "keywords.txt", "alpha\n")
	g, err := New(Params{KeywordsFile: keywords})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { g.Watch(ctx); close(done) }()
	time.Sleep(100 * time.Millisecond) // let the watcher start

	v := g.CheckMessage(ctx, "user1", textMsg("mentions beta word"))
	assert.False(t, v.Blocked)

	require.NoError(t, os.WriteFile(keywords, []byte("alpha\nbeta\n"), 0o600))
	assert.Eventually(t, func() bool {
		return !g.CheckMessage(ctx, "user2", textMsg("mentions beta word")).Content.Allowed
	}, 2*time.Second, 50*time.Millisecond, "keywords should reload after file change")

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestGuard_EngineAccessors(t *testing.T) {
	g, err := New(Params{})
	require.NoError(t, err)

	g.Spam().Ban("bad-user")
	v := g.CheckMessage(context.Background(), "bad-user", textMsg("hi"))
	assert.True(t, v.Blocked)
	assert.Equal(t, []string{"banned"}, v.Spam.Rules)

	assert.NotNil(t, g.Filter())
	assert.NotNil(t, g.Scanner())
}
