package labelengine

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func testLogger() *logrus.Logger { return logrus.New() }

func fullLabel() Label {
	return Label{
		Name:  "REL1",
		Owner: "labelowner",
		Revisions: map[string]int{
			"main/a.txt": 1,
			"main/b.txt": 1,
			"main/c.txt": 1,
		},
		NewestChange: 42,
	}
}

// TestFullMatchTags is S6's "tagged" half: every label file is under the
// committed branch, so the tag is emitted regardless of fuzzyTags.
func TestFullMatchTags(t *testing.T) {
	byChange := map[int][]Label{42: {fullLabel()}}
	e := NewEngine(testLogger(), byChange, false, nil)

	tags := e.TagsFor(42, "main", true, "someuser")
	assert.Len(t, tags, 1)
	assert.Equal(t, "tag_main_REL1", tags[0].Name)
}

// TestMismatchWithoutFuzzyIsDropped is S6: the branch only touches 3 of 5
// label files (here: 1 of 3), so without fuzzyTags no tag is emitted.
func TestMismatchWithoutFuzzyIsDropped(t *testing.T) {
	label := fullLabel()
	label.Revisions = map[string]int{
		"main/a.txt": 1,
		"other/b.txt": 1,
		"other/c.txt": 1,
	}
	byChange := map[int][]Label{42: {label}}
	e := NewEngine(testLogger(), byChange, false, nil)

	tags := e.TagsFor(42, "main", true, "someuser")
	assert.Empty(t, tags)
}

// TestMismatchWithFuzzyTagsStillEmits is S6's "fuzzyTags" branch: a partial
// match (here: 1 of 2) still qualifies because fuzzyTags is enabled.
func TestMismatchWithFuzzyTagsStillEmits(t *testing.T) {
	label := fullLabel()
	label.Revisions = map[string]int{
		"main/a.txt":  1,
		"other/b.txt": 1,
	}
	byChange := map[int][]Label{42: {label}}
	e := NewEngine(testLogger(), byChange, true, nil)

	tags := e.TagsFor(42, "main", true, "someuser")
	assert.Len(t, tags, 1)
	assert.Equal(t, "tag_main_REL1", tags[0].Name)
}

// TestNoBranchDetectionNamesWithoutBranch covers the branch-detection-off
// naming rule (§4.7 step 2 "else tag_<label>"): the single destination
// branch trivially covers every label file.
func TestNoBranchDetectionNamesWithoutBranch(t *testing.T) {
	byChange := map[int][]Label{42: {fullLabel()}}
	e := NewEngine(testLogger(), byChange, false, nil)

	tags := e.TagsFor(42, "", false, "someuser")
	assert.Len(t, tags, 1)
	assert.Equal(t, "tag_REL1", tags[0].Name)
}

// TestNoLabelAtChangeReturnsNothing covers the common case of a changelist
// with no associated label.
func TestNoLabelAtChangeReturnsNothing(t *testing.T) {
	e := NewEngine(testLogger(), nil, false, nil)
	assert.Empty(t, e.TagsFor(7, "main", true, "someuser"))
}

// TestTaggerPrefersAuthorLookup is §9 open question 2's preserved quirk:
// a successful lookup keyed on the changelist author wins even though it
// may not match the label's own owner.
func TestTaggerPrefersAuthorLookup(t *testing.T) {
	byChange := map[int][]Label{42: {fullLabel()}}
	users := func(user string) (string, bool) {
		if user == "someuser" {
			return "Some User <someuser@example.com>", true
		}
		return "", false
	}
	e := NewEngine(testLogger(), byChange, false, users)

	tags := e.TagsFor(42, "main", true, "someuser")
	assert.Len(t, tags, 1)
	assert.Equal(t, "Some User <someuser@example.com>", tags[0].NameEmail)
}

// TestTaggerFallsBackToLabelOwner covers the cache-miss half of the same
// quirk: the label's own owner field is only used once the author lookup
// misses.
func TestTaggerFallsBackToLabelOwner(t *testing.T) {
	byChange := map[int][]Label{42: {fullLabel()}}
	users := func(user string) (string, bool) { return "", false }
	e := NewEngine(testLogger(), byChange, false, users)

	tags := e.TagsFor(42, "main", true, "someuser")
	assert.Len(t, tags, 1)
	assert.Equal(t, "labelowner <labelowner@b>", tags[0].NameEmail)
}
