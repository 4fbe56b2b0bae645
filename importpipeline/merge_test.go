package importpipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rcowham/p4gitbridge/depot"
)

func TestIsMergeCommitMajorityIntegrations(t *testing.T) {
	files := []depot.FileAction{
		{Action: "integrate"},
		{Action: "branch"},
		{Action: "edit"},
	}
	assert.True(t, IsMergeCommit(files))
}

func TestIsMergeCommitMinorityIntegrations(t *testing.T) {
	files := []depot.FileAction{
		{Action: "integrate"},
		{Action: "edit"},
		{Action: "edit"},
	}
	assert.False(t, IsMergeCommit(files))
}

func TestIsMergeCommitEmpty(t *testing.T) {
	assert.False(t, IsMergeCommit(nil))
}

func TestIsMergeCommitExactlyHalf(t *testing.T) {
	files := []depot.FileAction{
		{Action: "integrate"},
		{Action: "edit"},
	}
	assert.False(t, IsMergeCommit(files))
}
