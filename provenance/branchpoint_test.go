package provenance

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/rcowham/p4gitbridge/dvcs"
)

// fakeDriver is a minimal in-memory dvcs.Driver double (§9 "constructor-
// injected interfaces" instead of dynamic class substitution).
type fakeDriver struct {
	refs      map[string]string // ref -> oid
	parents   map[string]string // oid -> first parent oid
	notes     map[string]string // oid -> note text
	configAll map[string][]string
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		refs:      map[string]string{},
		parents:   map[string]string{},
		notes:     map[string]string{},
		configAll: map[string][]string{},
	}
}

func (f *fakeDriver) RevParse(ref string) (string, bool) {
	if oid, ok := f.refs[ref]; ok {
		return oid, true
	}
	if strings.Contains(ref, "~") {
		parts := strings.SplitN(ref, "~", 2)
		oid, ok := f.refs[parts[0]]
		if !ok {
			oid, ok = f.resolveOid(parts[0])
			if !ok {
				return "", false
			}
		}
		var n int
		fmt.Sscanf(parts[1], "%d", &n)
		for i := 0; i < n; i++ {
			var ok bool
			oid, ok = f.parents[oid]
			if !ok {
				return "", false
			}
		}
		return oid, true
	}
	return f.resolveOid(ref)
}

func (f *fakeDriver) resolveOid(s string) (string, bool) {
	if _, ok := f.parents[s]; ok {
		return s, true
	}
	for _, oid := range f.refs {
		if oid == s {
			return s, true
		}
	}
	if _, ok := f.notes[s]; ok {
		return s, true
	}
	return "", false
}

func (f *fakeDriver) SymbolicRef(ref string) (string, error)             { return "", nil }
func (f *fakeDriver) RevList(ref string, maxCount int) ([]string, error) { return nil, nil }
func (f *fakeDriver) CatFile(oid string) ([]byte, error)                 { return nil, nil }
func (f *fakeDriver) DiffTree(from, to string, r, c bool) ([]dvcs.DiffEntry, error) {
	return nil, nil
}
func (f *fakeDriver) FormatPatch(commit string) ([]byte, error) { return nil, nil }
func (f *fakeDriver) NotesShow(notesRef, commit string) (string, bool) {
	text, ok := f.notes[commit]
	return text, ok
}
func (f *fakeDriver) NotesAdd(notesRef, commit, text string) error {
	f.notes[commit] = text
	return nil
}
func (f *fakeDriver) UpdateRef(ref, oid string) error { f.refs[ref] = oid; return nil }
func (f *fakeDriver) ConfigGet(key string) (string, bool) {
	v := f.configAll[key]
	if len(v) == 0 {
		return "", false
	}
	return v[0], true
}
func (f *fakeDriver) ConfigGetAll(key string) []string { return f.configAll[key] }
func (f *fakeDriver) FetchOrigin() error               { return nil }
func (f *fakeDriver) BranchExists(branch string) bool  { _, ok := f.refs[branch]; return ok }
func (f *fakeDriver) ListRefs(prefix string) ([]string, error) {
	var out []string
	for ref := range f.refs {
		if strings.HasPrefix(ref, prefix) {
			out = append(out, ref)
		}
	}
	return out, nil
}

func testLogger() *logrus.Logger { return logrus.New() }

func TestFindUpstreamBranchPointMatch(t *testing.T) {
	d := newFakeDriver()
	d.refs["refs/remotes/p4/master"] = "c1"
	d.notes["c1"] = `[depot-paths = "//depot/": change = 10]`
	d.refs["HEAD"] = "c1"

	bp := FindUpstreamBranchPoint(testLogger(), d, "refs/remotes/p4/", "HEAD")
	assert.Equal(t, "refs/remotes/p4/master", bp.Ref)
	assert.Equal(t, 10, bp.Settings.Change)
}

func TestFindUpstreamBranchPointNoMatch(t *testing.T) {
	d := newFakeDriver()
	d.refs["refs/remotes/p4/master"] = "c1"
	d.notes["c1"] = `[depot-paths = "//depot/main/": change = 10]`
	d.refs["HEAD"] = "c2"
	d.notes["c2"] = `[depot-paths = "//depot/other/": change = 5]`

	bp := FindUpstreamBranchPoint(testLogger(), d, "refs/remotes/p4/", "HEAD")
	assert.Equal(t, "", bp.Ref)
	assert.Equal(t, 5, bp.Settings.Change)
}

func TestFindUpstreamBranchPointWalksParents(t *testing.T) {
	d := newFakeDriver()
	d.refs["refs/remotes/p4/master"] = "c1"
	d.notes["c1"] = `[depot-paths = "//depot/": change = 10]`
	d.refs["HEAD"] = "c3"
	d.parents["c3"] = "c2"
	d.parents["c2"] = "c1"

	bp := FindUpstreamBranchPoint(testLogger(), d, "refs/remotes/p4/", "HEAD")
	assert.Equal(t, "refs/remotes/p4/master", bp.Ref)
	assert.Equal(t, 10, bp.Settings.Change)
}

func TestCalculateLastImportedChangelist(t *testing.T) {
	d := newFakeDriver()
	d.refs["refs/remotes/p4/master"] = "c1"
	d.notes["c1"] = `[depot-paths = "//depot/main/,//depot/lib/": change = 10]`
	d.refs["refs/remotes/p4/dev"] = "c2"
	d.notes["c2"] = `[depot-paths = "//depot/main/,//depot/other/": change = 15]`

	maxChange, common := CalculateLastImportedChangelist(testLogger(), d, "refs/remotes/p4/")
	assert.Equal(t, 15, maxChange)
	assert.Equal(t, []string{"//depot/main/"}, common)
}

func TestIntersectPrefixEmpty(t *testing.T) {
	assert.Nil(t, intersectPrefix(nil))
}
