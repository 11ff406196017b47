package lua

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestChecker_LoadScript(t *testing.T) {
	c := NewChecker()
	defer c.Close()

	script := writeScript(t, t.TempDir(), "shouting.lua", `
function check(req)
  if req.text == string.upper(req.text) and #req.text > 5 then
    return true, "message is all caps"
  end
  return false, ""
end
`)
	require.NoError(t, c.LoadScript(script))
	assert.Equal(t, []string{"shouting"}, c.Names())

	check, err := c.GetCheck("shouting")
	require.NoError(t, err)

	triggered, details := check("user1", "STOP SHOUTING")
	assert.True(t, triggered)
	assert.Equal(t, "message is all caps", details)

	triggered, _ = check("user1", "normal message")
	assert.False(t, triggered)
}

func TestChecker_SubjectAccess(t *testing.T) {
	c := NewChecker()
	defer c.Close()

	script := writeScript(t, t.TempDir(), "target.lua", `
function check(req)
  if req.subject == "628000@s.whatsapp.net" then
    return true, "watched subject " .. req.subject
  end
  return false, ""
end
`)
	require.NoError(t, c.LoadScript(script))

	check, err := c.GetCheck("target")
	require.NoError(t, err)

	triggered, details := check("628000@s.whatsapp.net", "hi")
	assert.True(t, triggered)
	assert.Equal(t, "watched subject 628000@s.whatsapp.net", details)

	triggered, _ = check("someone-else", "hi")
	assert.False(t, triggered)
}

func TestChecker_MissingCheckFunction(t *testing.T) {
	c := NewChecker()
	defer c.Close()

	script := writeScript(t, t.TempDir(), "broken.lua", `local x = 1`)
	err := c.LoadScript(script)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must define a 'check' function")
}

func TestChecker_LoadDirectory(t *testing.T) {
	c := NewChecker()
	defer c.Close()

	dir := t.TempDir()
	writeScript(t, dir, "one.lua", `function check(req) return false, "" end`)
	writeScript(t, dir, "two.lua", `function check(req) return true, "always" end`)
	writeScript(t, dir, "notes.txt", `not a script`)

	require.NoError(t, c.LoadDirectory(dir))
	assert.ElementsMatch(t, []string{"one", "two"}, c.Names())
}

func TestChecker_GetCheckUnknown(t *testing.T) {
	c := NewChecker()
	defer c.Close()

	_, err := c.GetCheck("nope")
	assert.Error(t, err)
}

func TestChecker_ScriptError(t *testing.T) {
	c := NewChecker()
	defer c.Close()

	script := writeScript(t, t.TempDir(), "faulty.lua", `
function check(req)
  error("boom")
end
`)
	require.NoError(t, c.LoadScript(script))

	check, err := c.GetCheck("faulty")
	require.NoError(t, err)

	triggered, details := check("user1", "hi")
	assert.False(t, triggered, "script errors never trigger the rule")
	assert.Contains(t, details, "error executing lua checker")
}
