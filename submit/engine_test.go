package submit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/rcowham/p4gitbridge/config"
	"github.com/rcowham/p4gitbridge/depot"
	"github.com/rcowham/p4gitbridge/dvcs"
)

type fakeSubmitDriver struct {
	diff       []dvcs.DiffEntry
	notesAdded map[string]string
}

func (f *fakeSubmitDriver) RevParse(string) (string, bool)     { return "", false }
func (f *fakeSubmitDriver) SymbolicRef(string) (string, error) { return "", nil }
func (f *fakeSubmitDriver) RevList(string, int) ([]string, error) {
	return nil, nil
}
func (f *fakeSubmitDriver) CatFile(string) ([]byte, error) { return nil, nil }
func (f *fakeSubmitDriver) DiffTree(string, string, bool, bool) ([]dvcs.DiffEntry, error) {
	return f.diff, nil
}
func (f *fakeSubmitDriver) FormatPatch(string) ([]byte, error) {
	return []byte("diff --git a/a.go b/a.go\n"), nil
}
func (f *fakeSubmitDriver) NotesShow(string, string) (string, bool) { return "", false }
func (f *fakeSubmitDriver) NotesAdd(notesRef, commit, text string) error {
	if f.notesAdded == nil {
		f.notesAdded = map[string]string{}
	}
	f.notesAdded[commit] = text
	return nil
}
func (f *fakeSubmitDriver) UpdateRef(string, string) error   { return nil }
func (f *fakeSubmitDriver) ConfigGet(string) (string, bool)  { return "", false }
func (f *fakeSubmitDriver) ConfigGetAll(string) []string     { return nil }
func (f *fakeSubmitDriver) FetchOrigin() error                { return nil }
func (f *fakeSubmitDriver) BranchExists(string) bool         { return false }
func (f *fakeSubmitDriver) ListRefs(string) ([]string, error) { return nil, nil }

// fakeP4Script builds a fake depot CLI that answers `change -o` with a
// template and `submit -i`/`shelve -r -i` with a success line, echoing its
// stdin to a sidecar file so the test can assert on exactly what the
// engine wrote to the template.
func fakeP4Script(t *testing.T, capturePath string) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-p4.sh")
	body := `#!/bin/bash
cat > ` + capturePath + `.last 2>/dev/null
case "$*" in
  *"change -o"*)
    cat <<'EOF'
Change:	new
Client:	alice-client
User:	alice
Status:	new
Description:
	<enter description here>

Files:
	//depot/main/a.go	# edit
EOF
    ;;
  *"submit -i"*)
    echo "Change 42 submitted."
    ;;
  *"shelve -r -i"*)
    echo "Change 42 shelved."
    ;;
  *)
    ;;
esac
exit 0
`
	assert.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

func noOpGitApply(string, []byte, bool) error { return nil }

func TestEngineSubmitHappyPath(t *testing.T) {
	capture := filepath.Join(t.TempDir(), "capture")
	exe := fakeP4Script(t, capture)
	client := depot.NewClient(logrus.New(), config.ConnectionSettings{}, "", exe)
	driver := &fakeSubmitDriver{diff: []dvcs.DiffEntry{
		{Status: 'M', Src: "a.go", SrcMode: "100644", DstMode: "100644"},
	}}

	var editorCalled bool
	editor := func(path string) error {
		editorCalled = true
		data, err := os.ReadFile(path)
		assert.NoError(t, err)
		assert.Contains(t, string(data), submitSeparator)
		return os.WriteFile(path, data, 0o644)
	}

	e := New(logrus.New(), client, driver, t.TempDir(), true, editor, noOpGitApply, func() bool { return true })
	cl, err := e.Submit("abc123", "//depot/main/", "a message")
	assert.NoError(t, err)
	assert.Equal(t, 42, cl)
	assert.True(t, editorCalled)
	assert.Contains(t, driver.notesAdded["abc123"], "change = 42")
}

func TestEngineSubmitAbortsOnClassifyError(t *testing.T) {
	capture := filepath.Join(t.TempDir(), "capture")
	exe := fakeP4Script(t, capture)
	client := depot.NewClient(logrus.New(), config.ConnectionSettings{}, "", exe)
	driver := &fakeSubmitDriver{diff: []dvcs.DiffEntry{
		{Status: 'T', Src: "weird"},
	}}

	e := New(logrus.New(), client, driver, t.TempDir(), true, nil, noOpGitApply, nil)
	_, err := e.Submit("abc123", "//depot/main/", "a message")
	assert.Error(t, err)
}

func TestEngineSubmitNonInteractiveAbortsOnPatchFailure(t *testing.T) {
	capture := filepath.Join(t.TempDir(), "capture")
	exe := fakeP4Script(t, capture)
	client := depot.NewClient(logrus.New(), config.ConnectionSettings{}, "", exe)
	driver := &fakeSubmitDriver{diff: []dvcs.DiffEntry{
		{Status: 'M', Src: "a.go", SrcMode: "100644", DstMode: "100644"},
	}}

	failingApply := func(string, []byte, bool) error { return assert.AnError }
	e := New(logrus.New(), client, driver, t.TempDir(), false, nil, failingApply, nil)
	_, err := e.Submit("abc123", "//depot/main/", "a message")
	assert.Error(t, err)
}

func TestEngineShelveReusesExistingChangelist(t *testing.T) {
	capture := filepath.Join(t.TempDir(), "capture")
	exe := fakeP4Script(t, capture)
	client := depot.NewClient(logrus.New(), config.ConnectionSettings{}, "", exe)
	driver := &fakeSubmitDriver{diff: []dvcs.DiffEntry{
		{Status: 'A', Src: "new.go", SrcMode: "000000", DstMode: "100644"},
	}}

	e := New(logrus.New(), client, driver, t.TempDir(), false, nil, noOpGitApply, nil)
	cl, err := e.Shelve("abc123", "//depot/main/", "a message", 99)
	assert.NoError(t, err)
	assert.Equal(t, 99, cl)
}
