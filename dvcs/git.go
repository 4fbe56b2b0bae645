package dvcs

import (
	"bytes"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// GitDriver is the real Driver implementation, shelling out to the `git`
// binary exactly as git-p4.py's read_pipe/read_pipe_lines/subprocess calls
// do, one child process per call.
type GitDriver struct {
	logger *logrus.Logger
	exe    string
	dir    string
}

// NewGitDriver builds a GitDriver rooted at dir (the working tree/worktree
// git commands run in). exe is normally "git".
func NewGitDriver(logger *logrus.Logger, dir string, exe string) *GitDriver {
	if exe == "" {
		exe = "git"
	}
	return &GitDriver{logger: logger, exe: exe, dir: dir}
}

func (g *GitDriver) run(args ...string) (string, error) {
	g.logger.Debugf("dvcs: git %s", strings.Join(args, " "))
	cmd := exec.Command(g.exe, args...)
	cmd.Dir = g.dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		return stdout.String(), fmt.Errorf("git %s: %v: %s", strings.Join(args, " "), err, stderr.String())
	}
	return stdout.String(), nil
}

func (g *GitDriver) runIgnoreError(args ...string) string {
	out, err := g.run(args...)
	if err != nil {
		return ""
	}
	return out
}

func (g *GitDriver) BranchExists(branch string) bool {
	cmd := exec.Command(g.exe, "rev-parse", branch)
	cmd.Dir = g.dir
	cmd.Stdout, cmd.Stderr = nil, nil
	return cmd.Run() == nil
}

func (g *GitDriver) RevParse(ref string) (string, bool) {
	if !g.BranchExists(ref) {
		return "", false
	}
	out, err := g.run("rev-parse", ref)
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(out), true
}

func (g *GitDriver) SymbolicRef(ref string) (string, error) {
	out, err := g.run("symbolic-ref", "-q", ref)
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(strings.TrimSpace(out), "refs/heads/"), nil
}

func (g *GitDriver) RevList(ref string, maxCount int) ([]string, error) {
	args := []string{"rev-list"}
	if maxCount > 0 {
		args = append(args, fmt.Sprintf("--max-count=%d", maxCount))
	}
	args = append(args, ref)
	out, err := g.run(args...)
	if err != nil {
		return nil, err
	}
	var oids []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			oids = append(oids, line)
		}
	}
	return oids, nil
}

func (g *GitDriver) CatFile(oid string) ([]byte, error) {
	out, err := g.run("cat-file", "commit", oid)
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}

// diffTreePattern mirrors git-p4.py's diffTreePattern regex for one
// `git diff-tree --raw` line.
var diffTreePattern = regexp.MustCompile(`:(\d+) (\d+) (\w+) (\w+) ([A-Z])(\d+)?\t(.*?)(\t(.*))?$`)

func parseDiffTreeEntry(line string) (DiffEntry, bool) {
	m := diffTreePattern.FindStringSubmatch(line)
	if m == nil {
		return DiffEntry{}, false
	}
	return DiffEntry{
		SrcMode:     m[1],
		DstMode:     m[2],
		SrcSHA1:     m[3],
		DstSHA1:     m[4],
		Status:      m[5][0],
		StatusScore: m[6],
		Src:         m[7],
		Dst:         m[9],
	}, true
}

func (g *GitDriver) DiffTree(from, to string, detectRename, detectCopy bool) ([]DiffEntry, error) {
	args := []string{"diff-tree", "-r"}
	if detectRename {
		args = append(args, "-M")
	}
	if detectCopy {
		args = append(args, "-C")
	}
	args = append(args, from, to)
	out, err := g.run(args...)
	if err != nil {
		return nil, err
	}
	var entries []DiffEntry
	for _, line := range strings.Split(out, "\n") {
		if line == "" || !strings.HasPrefix(line, ":") {
			continue
		}
		if entry, ok := parseDiffTreeEntry(line); ok {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func (g *GitDriver) FormatPatch(commit string) ([]byte, error) {
	out, err := g.run("format-patch", "-1", "--stdout", commit)
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}

func (g *GitDriver) NotesShow(notesRef, commit string) (string, bool) {
	out, err := g.run("notes", "--ref="+notesRef, "show", commit)
	if err != nil {
		return "", false
	}
	return out, true
}

func (g *GitDriver) NotesAdd(notesRef, commit, text string) error {
	_, err := g.run("notes", "--ref="+notesRef, "add", "-f", "-m", text, commit)
	return err
}

func (g *GitDriver) UpdateRef(ref, oid string) error {
	_, err := g.run("update-ref", ref, oid)
	return err
}

func (g *GitDriver) ConfigGet(key string) (string, bool) {
	out := g.runIgnoreError("config", key)
	out = strings.TrimSpace(out)
	if out == "" {
		return "", false
	}
	return out, true
}

func (g *GitDriver) ConfigGetAll(key string) []string {
	out := g.runIgnoreError("config", "--get-all", key)
	out = strings.TrimSpace(out)
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}

func (g *GitDriver) ListRefs(prefix string) ([]string, error) {
	out, err := g.run("for-each-ref", "--format=%(refname)", prefix)
	if err != nil {
		return nil, err
	}
	var refs []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			refs = append(refs, line)
		}
	}
	return refs, nil
}

func (g *GitDriver) FetchOrigin() error {
	_, err := g.run("fetch", "origin")
	return err
}

// extractLogMessageFromCommit strips the header lines (author/committer/
// etc.) from `git cat-file commit` output, returning the message body,
// mirroring extractLogMessageFromGitCommit.
func extractLogMessageFromCommit(raw []byte) string {
	lines := strings.Split(string(raw), "\n")
	i := 0
	for ; i < len(lines); i++ {
		if lines[i] == "" {
			i++
			break
		}
	}
	return strings.Join(lines[i:], "\n")
}

// parseIntOrZero is a small helper for callers decoding numeric note
// fields (e.g. "change") without propagating a strconv error for an
// optional field.
func parseIntOrZero(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}
