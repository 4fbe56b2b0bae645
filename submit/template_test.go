package submit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const sampleTemplate = `Change:	new
Client:	alice-client
User:	alice
Status:	new
Description:
	<enter description here>

Files:
	//depot/main/a.go	# edit
	//depot/other/b.go	# edit
`

func TestSpliceDescriptionReplacesPlaceholder(t *testing.T) {
	out := SpliceDescription(sampleTemplate, "Fix the thing\nSecond line")
	assert.Contains(t, out, "\tFix the thing")
	assert.Contains(t, out, "\tSecond line")
	assert.NotContains(t, out, "<enter description here>")
}

func TestFilterFilesSectionKeepsOnlyActivePath(t *testing.T) {
	out := FilterFilesSection(sampleTemplate, "//depot/main/")
	assert.Contains(t, out, "//depot/main/a.go")
	assert.NotContains(t, out, "//depot/other/b.go")
}

func TestPrepareSubmitTemplateComposesBoth(t *testing.T) {
	out := PrepareSubmitTemplate(sampleTemplate, "A message", "//depot/main/")
	assert.Contains(t, out, "\tA message")
	assert.NotContains(t, out, "//depot/other/b.go")
}
