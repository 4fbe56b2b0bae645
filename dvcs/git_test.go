package dvcs

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func runCmd(t *testing.T, dir string, args ...string) string {
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=Test", "GIT_AUTHOR_EMAIL=test@example.com",
		"GIT_COMMITTER_NAME=Test", "GIT_COMMITTER_EMAIL=test@example.com")
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("%v: %v: %s", args, err, out)
	}
	return string(out)
}

func setupRepo(t *testing.T) string {
	dir := t.TempDir()
	runCmd(t, dir, "git", "init", "-q", "-b", "main")
	if err := os.WriteFile(filepath.Join(dir, "file.txt"), []byte("hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	runCmd(t, dir, "git", "add", "file.txt")
	runCmd(t, dir, "git", "commit", "-q", "-m", "initial")
	return dir
}

func testLogger() *logrus.Logger {
	return logrus.New()
}

func TestGitDriverRevParseAndBranchExists(t *testing.T) {
	dir := setupRepo(t)
	d := NewGitDriver(testLogger(), dir, "")
	assert.True(t, d.BranchExists("main"))
	oid, ok := d.RevParse("main")
	assert.True(t, ok)
	assert.Equal(t, 40, len(oid))

	_, ok = d.RevParse("does-not-exist")
	assert.False(t, ok)
}

func TestGitDriverSymbolicRef(t *testing.T) {
	dir := setupRepo(t)
	d := NewGitDriver(testLogger(), dir, "")
	branch, err := d.SymbolicRef("HEAD")
	assert.NoError(t, err)
	assert.Equal(t, "main", branch)
}

func TestGitDriverRevList(t *testing.T) {
	dir := setupRepo(t)
	if err := os.WriteFile(filepath.Join(dir, "file.txt"), []byte("hello\nworld\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	runCmd(t, dir, "git", "commit", "-q", "-am", "second")

	d := NewGitDriver(testLogger(), dir, "")
	oids, err := d.RevList("HEAD", 0)
	assert.NoError(t, err)
	assert.Equal(t, 2, len(oids))
}

func TestGitDriverDiffTree(t *testing.T) {
	dir := setupRepo(t)
	if err := os.WriteFile(filepath.Join(dir, "file.txt"), []byte("hello\nworld\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	runCmd(t, dir, "git", "commit", "-q", "-am", "second")

	d := NewGitDriver(testLogger(), dir, "")
	entries, err := d.DiffTree("HEAD^", "HEAD", true, true)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(entries))
	assert.Equal(t, byte('M'), entries[0].Status)
	assert.Equal(t, "file.txt", entries[0].Src)
}

func TestGitDriverNotes(t *testing.T) {
	dir := setupRepo(t)
	d := NewGitDriver(testLogger(), dir, "")
	oid, _ := d.RevParse("HEAD")

	_, ok := d.NotesShow("refs/notes/git-p4", oid)
	assert.False(t, ok)

	err := d.NotesAdd("refs/notes/git-p4", oid, `[depot-paths = "//depot/": change = 1]`)
	assert.NoError(t, err)

	text, ok := d.NotesShow("refs/notes/git-p4", oid)
	assert.True(t, ok)
	assert.Contains(t, text, "depot-paths")
}

func TestGitDriverConfig(t *testing.T) {
	dir := setupRepo(t)
	runCmd(t, dir, "git", "config", "git-p4.user", "alice")
	runCmd(t, dir, "git", "config", "--add", "git-p4.branchList", "b1:main")
	runCmd(t, dir, "git", "config", "--add", "git-p4.branchList", "b2:b1")

	d := NewGitDriver(testLogger(), dir, "")
	v, ok := d.ConfigGet("git-p4.user")
	assert.True(t, ok)
	assert.Equal(t, "alice", v)

	all := d.ConfigGetAll("git-p4.branchList")
	assert.Equal(t, []string{"b1:main", "b2:b1"}, all)

	_, ok = d.ConfigGet("git-p4.missing")
	assert.False(t, ok)
}

func TestGitDriverListRefs(t *testing.T) {
	dir := setupRepo(t)
	oid, _ := NewGitDriver(testLogger(), dir, "").RevParse("main")
	runCmd(t, dir, "git", "update-ref", "refs/remotes/p4/master", oid)
	runCmd(t, dir, "git", "update-ref", "refs/remotes/p4/dev", oid)

	d := NewGitDriver(testLogger(), dir, "")
	refs, err := d.ListRefs("refs/remotes/p4/")
	assert.NoError(t, err)
	assert.ElementsMatch(t, []string{"refs/remotes/p4/master", "refs/remotes/p4/dev"}, refs)
}

func TestParseDiffTreeEntryRename(t *testing.T) {
	entry, ok := parseDiffTreeEntry(":100644 100644 abc123 def456 R100\told.txt\tnew.txt")
	assert.True(t, ok)
	assert.Equal(t, byte('R'), entry.Status)
	assert.Equal(t, "old.txt", entry.Src)
	assert.Equal(t, "new.txt", entry.Dst)
}

func TestIsExecChanged(t *testing.T) {
	e := DiffEntry{SrcMode: "100644", DstMode: "100755"}
	assert.True(t, e.IsExecChanged())
	e2 := DiffEntry{SrcMode: "100755", DstMode: "100755"}
	assert.False(t, e2.IsExecChanged())
}
