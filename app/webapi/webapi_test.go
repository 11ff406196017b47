package webapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-pkgz/routegroup"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wamod/wa-guard/app/guard"
	"github.com/wamod/wa-guard/lib/antispam"
	"github.com/wamod/wa-guard/lib/content"
)

func newTestServer(t *testing.T, params guard.Params) (*httptest.Server, *guard.Guard) {
	t.Helper()
	g, err := guard.New(params)
	require.NoError(t, err)

	srv := NewServer(Config{Version: "test", Guard: g})
	router := routegroup.New(http.NewServeMux())
	srv.routes(router)

	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)
	return ts, g
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, into any) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, into), "body: %s", string(data))
}

func TestServer_Check(t *testing.T) {
	ts, _ := newTestServer(t, guard.Params{
		Filter: content.FilterParams{SensitiveKeywords: []string{"secret"}},
	})

	resp := postJSON(t, ts.URL+"/check", map[string]string{"subject": "user1", "text": "hello there"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var verdict guard.Verdict
	decodeBody(t, resp, &verdict)
	assert.False(t, verdict.Blocked)
	assert.Equal(t, "user1", verdict.Subject)

	resp = postJSON(t, ts.URL+"/check", map[string]string{"subject": "user2", "text": "the secret plan"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &verdict)
	assert.True(t, verdict.Blocked)
	assert.False(t, verdict.Content.Allowed)
}

func TestServer_CheckBadRequest(t *testing.T) {
	ts, _ := newTestServer(t, guard.Params{})

	resp, err := http.Post(ts.URL+"/check", "application/json", bytes.NewReader([]byte("not json")))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_Analyze(t *testing.T) {
	ts, _ := newTestServer(t, guard.Params{})

	resp := postJSON(t, ts.URL+"/analyze", map[string]string{
		"subject": "user1", "text": "see https://example.com and mail admin@example.com"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res content.Result
	decodeBody(t, resp, &res)
	assert.True(t, res.HasLinks)
	assert.True(t, res.HasEmails)
	assert.Equal(t, "text", res.MessageType)
}

func TestServer_Filter(t *testing.T) {
	ts, _ := newTestServer(t, guard.Params{
		Filter: content.FilterParams{BlockLinks: true},
	})

	resp := postJSON(t, ts.URL+"/filter", map[string]string{"text": "go to https://example.com"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res content.FilterResult
	decodeBody(t, resp, &res)
	assert.False(t, res.Allowed)
	assert.Equal(t, "links are not allowed", res.BlockedReason)
}

func TestServer_Scan(t *testing.T) {
	ts, _ := newTestServer(t, guard.Params{})

	resp := postJSON(t, ts.URL+"/scan", map[string]string{"url": "http://192.168.0.1/login/"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res struct {
		Safe      bool     `json:"safe"`
		RiskScore int      `json:"risk_score"`
		Threats   []string `json:"threats"`
	}
	decodeBody(t, resp, &res)
	assert.False(t, res.Safe)
	assert.Equal(t, 60, res.RiskScore)
	assert.Len(t, res.Threats, 3)
}

func TestServer_ScanBatch(t *testing.T) {
	ts, _ := newTestServer(t, guard.Params{})

	resp := postJSON(t, ts.URL+"/scan/batch", map[string][]string{
		"urls": {"https://google.com", "not-a-url"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res struct {
		Results []struct {
			URL  string `json:"url"`
			Safe bool   `json:"safe"`
		} `json:"results"`
	}
	decodeBody(t, resp, &res)
	require.Len(t, res.Results, 2)
	assert.True(t, res.Results[0].Safe)
	assert.False(t, res.Results[1].Safe)
}

func TestServer_QuickCheck(t *testing.T) {
	ts, _ := newTestServer(t, guard.Params{})

	resp, err := http.Get(ts.URL + "/quickcheck?url=http://bit.ly/abc")
	require.NoError(t, err)
	var res struct {
		Suspicious bool     `json:"suspicious"`
		Reasons    []string `json:"reasons"`
	}
	decodeBody(t, resp, &res)
	assert.True(t, res.Suspicious)
	assert.Contains(t, res.Reasons, "URL shortener")

	resp, err = http.Get(ts.URL + "/quickcheck")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_UserManagement(t *testing.T) {
	ts, g := newTestServer(t, guard.Params{})

	resp := postJSON(t, ts.URL+"/users/ban", map[string]string{"subject": "bad-user"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	var verdict guard.Verdict
	resp = postJSON(t, ts.URL+"/check", map[string]string{"subject": "bad-user", "text": "hi"})
	decodeBody(t, resp, &verdict)
	assert.True(t, verdict.Blocked)
	assert.Equal(t, []string{"banned"}, verdict.Spam.Rules)

	resp = postJSON(t, ts.URL+"/users/unban", map[string]string{"subject": "bad-user"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/check", map[string]string{"subject": "bad-user", "text": "hi again"})
	decodeBody(t, resp, &verdict)
	assert.False(t, verdict.Blocked)

	resp = postJSON(t, ts.URL+"/users/mute", map[string]string{"subject": "noisy", "duration": "30m"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	act, ok := g.Spam().Activity("noisy")
	require.True(t, ok)
	assert.True(t, act.Muted)

	resp = postJSON(t, ts.URL+"/users/whitelist", map[string]string{"subject": "vip"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	resp = postJSON(t, ts.URL+"/check", map[string]string{"subject": "vip", "text": "hey"})
	decodeBody(t, resp, &verdict)
	assert.Equal(t, 0, verdict.Spam.Score)

	resp = postJSON(t, ts.URL+"/users/reset", map[string]string{"subject": "bad-user"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	_, ok = g.Spam().Activity("bad-user")
	assert.False(t, ok)

	resp = postJSON(t, ts.URL+"/users/ban", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestServer_Activity(t *testing.T) {
	ts, g := newTestServer(t, guard.Params{})
	g.Spam().Check("user1", nil)

	resp, err := http.Get(ts.URL + "/users/activity?subject=user1")
	require.NoError(t, err)
	var act antispam.Activity
	decodeBody(t, resp, &act)
	assert.Equal(t, "user1", act.SubjectID)
	assert.Equal(t, 1, act.MessageCount)

	resp, err = http.Get(ts.URL + "/users/activity?subject=unknown")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/users/activity")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_Stats(t *testing.T) {
	ts, g := newTestServer(t, guard.Params{})
	g.Spam().Check("user1", nil)
	g.Spam().Ban("user2")

	resp, err := http.Get(ts.URL + "/stats")
	require.NoError(t, err)
	var stats antispam.Stats
	decodeBody(t, resp, &stats)
	assert.Equal(t, 2, stats.TotalSubjects)
	assert.Equal(t, 1, stats.BannedSubjects)
}

func TestServer_Reload(t *testing.T) {
	ts, _ := newTestServer(t, guard.Params{})

	req, err := http.NewRequest(http.MethodPut, ts.URL+"/reload", http.NoBody)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	var res map[string]any
	decodeBody(t, resp, &res)
	assert.Equal(t, true, res["reloaded"])
}
