// Package dvcs is the DVCS-side driver contract (§6 "DVCS driver"): content
// queries and ref mutation, each invoked as a child process with text
// stdout. The import pipeline, submit engine, and label engine depend only
// on the Driver interface, never on exec.Command directly, so tests can
// substitute a fake implementation (§9 "replace dynamic class substitution
// in tests with constructor-injected interfaces").
package dvcs

import "fmt"

// DiffEntry is one parsed `git diff-tree` raw-format line (§4.5 step 1
// "DIFF"), grounded on git-p4.py's parseDiffTreeEntry.
type DiffEntry struct {
	SrcMode     string
	DstMode     string
	SrcSHA1     string
	DstSHA1     string
	Status      byte // A, M, D, R, C (T, U, X, B are fatal, §4.5)
	StatusScore string
	Src         string
	Dst         string // only set for R/C
}

// IsExecChanged reports whether the exec bit differs between src and dst
// mode strings (mode ends "755" vs not), mirroring isModeExecChanged.
func (d DiffEntry) IsExecChanged() bool {
	return isModeExec(d.SrcMode) != isModeExec(d.DstMode)
}

func isModeExec(mode string) bool {
	return len(mode) >= 3 && mode[len(mode)-3:] == "755"
}

// Driver is the contract an external DVCS driver process satisfies. Every
// method is a distinct child-process invocation (§9 "replace child-process
// control flow with iterators + explicit flush/checkpoint" — each call here
// is one complete invocation rather than a long-lived interactive session).
type Driver interface {
	// RevParse resolves ref to a full object id; ok is false if ref does
	// not exist (gitBranchExists + rev-parse).
	RevParse(ref string) (oid string, ok bool)

	// SymbolicRef resolves a symbolic ref (e.g. "HEAD") to the branch name
	// it points at, stripped of its ref-namespace prefix.
	SymbolicRef(ref string) (branch string, err error)

	// RevList lists commit oids reachable from ref, nearest first, bounded
	// by maxCount (0 = unbounded). Used by the branch-point bisection walk.
	RevList(ref string, maxCount int) ([]string, error)

	// CatFile returns the raw object content for a commit oid.
	CatFile(oid string) ([]byte, error)

	// DiffTree returns the parsed raw diff-tree entries between from and to,
	// with rename/copy detection enabled per detectRename/detectCopy.
	DiffTree(from, to string, detectRename, detectCopy bool) ([]DiffEntry, error)

	// FormatPatch returns a single commit's patch text (mbox format) for
	// the submit engine's APPLY step.
	FormatPatch(commit string) ([]byte, error)

	// NotesShow returns the provenance note text attached to commit under
	// the given notes ref, or ok=false if no note exists.
	NotesShow(notesRef, commit string) (text string, ok bool)

	// NotesAdd attaches (overwriting) a note under notesRef to commit.
	NotesAdd(notesRef, commit, text string) error

	// UpdateRef points ref at oid, creating or moving a branch/tag.
	UpdateRef(ref, oid string) error

	// ConfigGet returns a single git-config value and whether it was set.
	ConfigGet(key string) (string, bool)

	// ConfigGetAll returns every value of a (possibly multi-valued)
	// git-config key.
	ConfigGetAll(key string) []string

	// FetchOrigin runs `git fetch origin` ahead of an incremental sync.
	FetchOrigin() error

	// BranchExists reports whether a local or remote-tracking branch ref
	// resolves (gitBranchExists).
	BranchExists(branch string) bool

	// ListRefs lists full ref names under prefix (e.g. "refs/remotes/p4/"),
	// used to enumerate import branches (p4BranchesInGit).
	ListRefs(prefix string) ([]string, error)
}

// ErrRefNotFound names the condition of a ref that does not resolve, e.g. a
// missing upstream branch (§6 "128 for configuration failures such as
// missing upstream"). GitDriver's methods do not return it: RevParse reports
// a missing ref through its ok result.
var ErrRefNotFound = fmt.Errorf("dvcs: ref not found")
