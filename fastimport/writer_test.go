package fastimport

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriteCommitSequence(t *testing.T) {
	var buf bytes.Buffer
	fw := &Writer{}
	fw.SetWriter(&buf)

	assert.NoError(t, fw.WriteCommit("refs/remotes/p4/master"))
	assert.NoError(t, fw.WriteMark(1))
	assert.NoError(t, fw.WriteCommitter("<someuser@example.com>", 1289238991, "+0000"))
	assert.NoError(t, fw.WriteDataDelimited("Test\n", "EOT"))
	assert.NoError(t, fw.WriteFrom("P"))
	assert.NoError(t, fw.WriteFileModify(ModeRegular, "file.py", []byte("some text\n")))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "commit refs/remotes/p4/master\nmark :1\n"))
	assert.Contains(t, out, "committer <someuser@example.com> 1289238991 +0000\n")
	assert.Contains(t, out, "data <<EOT\nTest\n\nEOT\n")
	assert.Contains(t, out, "from P\n")
	assert.Contains(t, out, "M 644 inline file.py\ndata 10\nsome text\n\n")
}

func TestWriteFileDelete(t *testing.T) {
	var buf bytes.Buffer
	fw := &Writer{}
	fw.SetWriter(&buf)
	assert.NoError(t, fw.WriteFileDelete("old/path.txt"))
	assert.Equal(t, "D old/path.txt\n", buf.String())
}

func TestWriteNote(t *testing.T) {
	var buf bytes.Buffer
	fw := &Writer{}
	fw.SetWriter(&buf)
	assert.NoError(t, fw.WriteNote(1, `[depot-paths = "//depot/": change = 33255]`))
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "N inline :1\ndata "))
	assert.Contains(t, out, `[depot-paths = "//depot/": change = 33255]`)
}

func TestWriteTag(t *testing.T) {
	var buf bytes.Buffer
	fw := &Writer{}
	fw.SetWriter(&buf)
	assert.NoError(t, fw.WriteTag("tag_master_REL1", "refs/remotes/p4/master", "<alice@example.com>", 100, "+0000", "REL1\n"))
	out := buf.String()
	assert.Contains(t, out, "tag tag_master_REL1\n")
	assert.Contains(t, out, "from refs/remotes/p4/master\n")
	assert.Contains(t, out, "tagger <alice@example.com> 100 +0000\n")
}

func TestWriteCheckpointAndReset(t *testing.T) {
	var buf bytes.Buffer
	fw := &Writer{}
	fw.SetWriter(&buf)
	assert.NoError(t, fw.WriteCheckpoint())
	assert.NoError(t, fw.WriteReset("refs/heads/p4/dev", "refs/heads/p4/master"))
	assert.Equal(t, "checkpoint\nreset refs/heads/p4/dev\nfrom refs/heads/p4/master\n", buf.String())
}

// capWriter counts the largest single Write call it ever receives, to
// verify chunkedWrite never exceeds chunkThreshold.
type capWriter struct {
	maxLen int
}

func (c *capWriter) Write(p []byte) (int, error) {
	if len(p) > c.maxLen {
		c.maxLen = len(p)
	}
	return len(p), nil
}

func TestChunkedWriteRespectsThreshold(t *testing.T) {
	cw := &capWriter{}
	fw := &Writer{}
	fw.SetWriter(cw)

	big := make([]byte, chunkThreshold*2+17)
	assert.NoError(t, fw.WriteData(big))
	assert.LessOrEqual(t, cw.maxLen, chunkThreshold)
}
