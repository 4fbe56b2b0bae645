package labelengine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/rcowham/p4gitbridge/config"
	"github.com/rcowham/p4gitbridge/depot"
)

func fakeP4(t *testing.T, script string) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-p4.sh")
	assert.NoError(t, os.WriteFile(path, []byte("#!/bin/bash\n"+script), 0o755))
	return path
}

// TestDiscoverResolvesLabelAndStripsDepotRoot covers §4.7's discovery
// paragraph end to end: list labels, read the view, list the label's
// files, strip the depot prefix, and index by the newest changelist
// touched.
func TestDiscoverResolvesLabelAndStripsDepotRoot(t *testing.T) {
	exe := fakeP4(t, `
args="$*"
case "$args" in
  *labels*)
    echo '... code stat'
    echo '... label REL1'
    echo '... Owner labelowner'
    echo
    ;;
  *"label -o"*)
    echo '... code stat'
    echo '... View0 //depot/main/...'
    echo
    ;;
  *files*)
    echo '... code stat'
    echo '... depotFile //depot/main/a.txt'
    echo '... rev 2'
    echo '... action edit'
    echo '... type text'
    echo '... change 42'
    echo
    ;;
esac
`)
	client := depot.NewClient(logrus.New(), config.ConnectionSettings{}, "", exe)
	byChange, err := Discover(logrus.New(), client, []string{"//depot/main/..."}, "//depot/main", nil)
	assert.NoError(t, err)
	assert.Len(t, byChange[42], 1)
	label := byChange[42][0]
	assert.Equal(t, "REL1", label.Name)
	assert.Equal(t, 2, label.Revisions["a.txt"])
}
