package submit

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/rcowham/p4gitbridge/depot"
	"github.com/rcowham/p4gitbridge/dvcs"
	"github.com/rcowham/p4gitbridge/provenance"
)

// Editor invokes the user's editor on the submit template file at path.
type Editor func(path string) error

// GitApply applies (or, when checkOnly, merely validates) a patch against
// the depot client workspace at dir.
type GitApply func(dir string, patch []byte, checkOnly bool) error

// Confirm is consulted when the submit template's mtime is unchanged
// after the editor exits (§4.5 step 4 "requires explicit y/a
// confirmation"); it returns true to proceed, false to abort.
type Confirm func() bool

var submittedPattern = regexp.MustCompile(`Change (\d+) submitted`)
var createdPattern = regexp.MustCompile(`Change (\d+) created`)

const submitSeparator = "######## everything below this line is just the diff #######"

// Engine drives the DIFF -> APPLY -> EDIT-OR-ADD -> EXEC-BITS -> EDITOR ->
// SUBMIT -> NOTE state machine for one commit (§4.5).
type Engine struct {
	logger       *logrus.Logger
	client       *depot.Client
	driver       dvcs.Driver
	workspaceDir string
	interactive  bool
	editor       Editor
	gitApply     GitApply
	confirm      Confirm
}

// New builds an Engine. editor/gitApply/confirm may be nil to fall back to
// DefaultEditor/DefaultGitApply and an always-proceed confirmation.
func New(logger *logrus.Logger, client *depot.Client, driver dvcs.Driver, workspaceDir string, interactive bool, editor Editor, gitApply GitApply, confirm Confirm) *Engine {
	if editor == nil {
		editor = DefaultEditor
	}
	if gitApply == nil {
		gitApply = DefaultGitApply
	}
	if confirm == nil {
		confirm = func() bool { return true }
	}
	return &Engine{
		logger: logger, client: client, driver: driver,
		workspaceDir: workspaceDir, interactive: interactive,
		editor: editor, gitApply: gitApply, confirm: confirm,
	}
}

// DefaultEditor shells out to $P4EDITOR, falling back to $EDITOR, falling
// back to "vi" (§4.5 step 4 "configurable env var, else platform
// default"), grounded on git-p4.py's submit().
func DefaultEditor(path string) error {
	bin := os.Getenv("P4EDITOR")
	if bin == "" {
		bin = os.Getenv("EDITOR")
	}
	if bin == "" {
		bin = "vi"
	}
	cmd := exec.Command(bin, path)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	return cmd.Run()
}

// DefaultGitApply applies a patch via `git apply`, whitespace-tolerant per
// §4.5 step 2, grounded on git-p4.py's applyPatch.
func DefaultGitApply(dir string, patch []byte, checkOnly bool) error {
	args := []string{"apply", "--ignore-whitespace", "--ignore-space-change"}
	if checkOnly {
		args = append(args, "--check")
	}
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Stdin = bytes.NewReader(patch)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("git apply failed: %v: %s", err, stderr.String())
	}
	return nil
}

// Submit runs the full state machine for commit against depotPath,
// returning the depot changelist number it was submitted as.
func (e *Engine) Submit(commit, depotPath, message string) (int, error) {
	return e.run(commit, depotPath, message, 0, false)
}

// Shelve runs the state machine for commit, issuing `shelve -r -i` instead
// of `submit -i` against existingCL (0 to create a new pending
// changelist), and on failure reverts plus deletes the changelist if this
// call created it (§4.5 "Shelve mode differs").
func (e *Engine) Shelve(commit, depotPath, message string, existingCL int) (int, error) {
	return e.run(commit, depotPath, message, existingCL, true)
}

func (e *Engine) run(commit, depotPath, message string, existingCL int, shelve bool) (int, error) {
	entries, err := e.driver.DiffTree(commit+"^", commit, true, true)
	if err != nil {
		return 0, fmt.Errorf("submit: diff-tree %s: %w", commit, err)
	}

	cs := NewChangeSet()
	if err := cs.Classify(entries); err != nil {
		return 0, err
	}

	cl := existingCL
	createdChangelist := false
	if shelve && cl == 0 {
		n, err := e.createPendingChangelist(message)
		if err != nil {
			return 0, err
		}
		cl, createdChangelist = n, true
	}

	if err := e.applyChanges(cs, commit, cl); err != nil {
		e.abort(cs, cl, createdChangelist)
		return 0, err
	}

	template, err := e.fetchTemplate(cl)
	if err != nil {
		e.abort(cs, cl, createdChangelist)
		return 0, err
	}
	prepared := PrepareSubmitTemplate(template, message, depotPath)

	patch, err := e.driver.FormatPatch(commit)
	if err != nil {
		e.abort(cs, cl, createdChangelist)
		return 0, err
	}

	edited, err := e.runEditor(prepared, string(patch))
	if err != nil {
		e.abort(cs, cl, createdChangelist)
		return 0, err
	}

	var changelist int
	if shelve {
		changelist, err = e.shelveCommit(edited, cl)
	} else {
		changelist, err = e.submitCommit(edited)
	}
	if err != nil {
		e.abort(cs, cl, createdChangelist)
		return 0, err
	}

	note := provenance.BuildNote(provenance.Settings{DepotPaths: []string{depotPath}, Change: changelist})
	if err := e.driver.NotesAdd(provenance.NotesRef, commit, note); err != nil {
		e.logger.Warnf("submit: failed to attach provenance note to %s: %v", commit, err)
	}
	return changelist, nil
}

// applyChanges is steps 2-4: open edits, apply the patch, then add/delete
// files and reopen exec-bit changes.
func (e *Engine) applyChanges(cs *ChangeSet, commit string, cl int) error {
	for dst, src := range cs.IntegrationSources {
		if _, err := e.client.Run(clArgs(cl, "integrate", src, dst), false); err != nil {
			return err
		}
	}
	for f := range cs.EditedFiles {
		if _, err := e.client.Run(clArgs(cl, "edit", f), false); err != nil {
			return err
		}
	}

	patch, err := e.driver.FormatPatch(commit)
	if err != nil {
		return err
	}
	if err := e.gitApply(e.workspaceDir, patch, true); err != nil {
		if !e.interactive {
			return fmt.Errorf("submit: patch failed to apply and not interactive: %w", err)
		}
		if !e.confirm() {
			return fmt.Errorf("submit: patch apply rejected by user: %w", err)
		}
	}
	if err := e.gitApply(e.workspaceDir, patch, false); err != nil {
		return err
	}

	for f := range cs.FilesToAdd {
		if _, err := e.client.Run(clArgs(cl, "add", "-f", f), false); err != nil {
			return err
		}
		if cs.EditedFiles[f] {
			if _, err := e.client.Run(clArgs(cl, "edit", f), false); err != nil {
				return err
			}
		}
	}
	for f := range cs.FilesToDelete {
		e.client.Run(clArgs(cl, "revert", f), true) //nolint:errcheck
		if _, err := e.client.Run(clArgs(cl, "delete", f), false); err != nil {
			return err
		}
	}
	for f, mode := range cs.ExecBitChanges {
		if _, err := e.client.Run([]string{"reopen", "-t", p4TypeForExecMode(mode), f}, false); err != nil {
			return err
		}
	}
	return nil
}

// clArgs inserts a "-c <cl>" pair ahead of a command's own arguments when
// cl is set, used for shelve's pending-changelist-scoped commands.
func clArgs(cl int, cmd string, rest ...string) []string {
	args := []string{cmd}
	if cl != 0 {
		args = append(args, "-c", strconv.Itoa(cl))
	}
	return append(args, rest...)
}

func (e *Engine) fetchTemplate(cl int) (string, error) {
	args := []string{"change", "-o"}
	if cl != 0 {
		args = append(args, strconv.Itoa(cl))
	}
	return e.client.Run(args, false)
}

func (e *Engine) createPendingChangelist(message string) (int, error) {
	template, err := e.fetchTemplate(0)
	if err != nil {
		return 0, err
	}
	spliced := SpliceDescription(template, message)
	out, err := e.client.Read([]string{"change", "-i"}, []byte(spliced), false)
	if err != nil {
		return 0, err
	}
	m := createdPattern.FindStringSubmatch(out)
	if m == nil {
		return 0, fmt.Errorf("submit: couldn't get changelist number from 'change -i'")
	}
	n, _ := strconv.Atoi(m[1])
	return n, nil
}

// runEditor writes the prepared template plus a reference diff to a temp
// file, invokes the editor (when interactive), and returns the message
// with the diff section stripped back off (§4.5 step 4).
func (e *Engine) runEditor(template, diff string) (string, error) {
	f, err := os.CreateTemp("", "p4gitbridge-submit-*")
	if err != nil {
		return "", err
	}
	path := f.Name()
	defer os.Remove(path)

	content := template + "\n" + submitSeparator + "\n" + diff
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return "", err
	}
	f.Close()

	if e.interactive {
		before, err := os.Stat(path)
		if err != nil {
			return "", err
		}
		if err := e.editor(path); err != nil {
			return "", err
		}
		after, err := os.Stat(path)
		if err != nil {
			return "", err
		}
		if !after.ModTime().After(before.ModTime()) {
			if !e.confirm() {
				return "", fmt.Errorf("submit: aborted, submit template unchanged")
			}
		}
	}

	edited, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	text := string(edited)
	if idx := indexOf(text, submitSeparator); idx >= 0 {
		text = text[:idx]
	}
	return text, nil
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func (e *Engine) submitCommit(template string) (int, error) {
	out, err := e.client.Read([]string{"submit", "-i"}, []byte(template), false)
	if err != nil {
		return 0, err
	}
	m := submittedPattern.FindStringSubmatch(out)
	if m == nil {
		return 0, fmt.Errorf("submit: couldn't get changelist number from 'submit'")
	}
	n, _ := strconv.Atoi(m[1])
	return n, nil
}

func (e *Engine) shelveCommit(template string, cl int) (int, error) {
	args := clArgs(cl, "shelve", "-r", "-i")
	if _, err := e.client.Read(args, []byte(template), false); err != nil {
		return 0, err
	}
	return cl, nil
}

// abort reverts every file the ChangeSet opened (RevertOnFailure, one
// `revert <file>` per file) and, for shelve calls that created their own
// pending changelist, deletes it with `change -d <cl>`.
func (e *Engine) abort(cs *ChangeSet, cl int, createdChangelist bool) {
	if err := RevertOnFailure(e.client, cs, e.workspaceDir); err != nil {
		e.logger.Warnf("submit: revert-on-failure: %v", err)
	}
	if createdChangelist && cl != 0 {
		if _, err := e.client.Run([]string{"change", "-d", strconv.Itoa(cl)}, true); err != nil {
			e.logger.Warnf("submit: failed to delete pending changelist %d: %v", cl, err)
		}
	}
}
