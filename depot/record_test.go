package depot

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeTaggedStreamStat(t *testing.T) {
	stream := "" +
		"... code stat\n" +
		"... depotFile //depot/main/file.txt\n" +
		"... rev 3\n" +
		"... action edit\n" +
		"\n" +
		"... code stat\n" +
		"... depotFile //depot/main/other.txt\n" +
		"... rev 1\n" +
		"\n"
	records, err := decodeTaggedStream(bufio.NewReader(strings.NewReader(stream)))
	assert.NoError(t, err)
	assert.Equal(t, 2, len(records))
	assert.Equal(t, CodeStat, records[0].Code)
	v, ok := records[0].Get("depotFile")
	assert.True(t, ok)
	assert.Equal(t, "//depot/main/file.txt", v)
	assert.Equal(t, 3, records[0].Int("rev"))
	assert.Equal(t, 1, records[1].Int("rev"))
}

func TestDecodeTaggedStreamError(t *testing.T) {
	stream := "" +
		"... code error\n" +
		"... data no such file(s).\n" +
		"\n"
	records, err := decodeTaggedStream(bufio.NewReader(strings.NewReader(stream)))
	assert.NoError(t, err)
	rec := FindError(records)
	assert.NotNil(t, rec)
	assert.Equal(t, "no such file(s).", rec.ErrorMessage())
}

func TestDecodeTaggedStreamPlainError(t *testing.T) {
	stream := "error: Connect to server failed.\n"
	records, err := decodeTaggedStream(bufio.NewReader(strings.NewReader(stream)))
	assert.NoError(t, err)
	rec := FindError(records)
	assert.NotNil(t, rec)
	assert.Equal(t, "Connect to server failed.", rec.ErrorMessage())
}

func TestSyntheticExitRecord(t *testing.T) {
	rec := syntheticExitRecord(1)
	assert.Equal(t, CodeExitCode, rec.Code)
	v, ok := rec.Get("exitCode")
	assert.True(t, ok)
	assert.Equal(t, "1", v)
}
