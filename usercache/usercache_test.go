package usercache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func testLogger() *logrus.Logger { return logrus.New() }

func TestLoadAndLookup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.txt")
	content := "someuser\tSome User <someuser@example.com>\nalice\tAlice Smith <alice@example.com>\n"
	assert.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	c := New(testLogger(), path)
	assert.NoError(t, c.Load())
	assert.Equal(t, "Some User <someuser@example.com>", c.Lookup("someuser"))
	assert.Equal(t, "Alice Smith <alice@example.com>", c.Lookup("alice"))
}

func TestLookupMissingFallsBack(t *testing.T) {
	c := New(testLogger(), filepath.Join(t.TempDir(), "missing.txt"))
	assert.NoError(t, c.Load())
	assert.Equal(t, "bob <bob@b>", c.Lookup("bob"))
}

func TestLoadMissingFileIsNotError(t *testing.T) {
	c := New(testLogger(), filepath.Join(t.TempDir(), "nope.txt"))
	assert.NoError(t, c.Load())
	assert.Empty(t, c.users)
}

func TestLoadSkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.txt")
	assert.NoError(t, os.WriteFile(path, []byte("malformed-no-tab\nok\tOK User <ok@example.com>\n"), 0o644))

	c := New(testLogger(), path)
	assert.NoError(t, c.Load())
	assert.Equal(t, "OK User <ok@example.com>", c.Lookup("ok"))
}
