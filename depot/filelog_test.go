package depot

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rcowham/p4gitbridge/config"
)

func TestFilelogParsesRevisions(t *testing.T) {
	exe := fakeP4(t, `echo '... code stat'
echo '... depotFile //depot/main/a.txt'
echo '... rev0 5'
echo '... change0 120'
echo '... action0 integrate'
echo '... rev1 4'
echo '... change1 90'
echo '... action1 edit'
echo
`)
	c := NewClient(testLogger(), config.ConnectionSettings{}, "", exe)
	entries, err := Filelog(c, "//depot/main/a.txt", 5, 2)
	assert.NoError(t, err)
	assert.Equal(t, 2, len(entries))
	assert.Equal(t, 120, entries[0].Change)
	assert.Equal(t, "integrate", entries[0].Action)
	assert.Equal(t, 90, entries[1].Change)
}
