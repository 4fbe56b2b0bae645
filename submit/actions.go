// Package submit drives one DVCS commit through the depot submit/shelve
// state machine (§4.5): diff classification, patch application, per-action
// depot commands, the submit template editor, and the provenance note.
package submit

import (
	"fmt"

	"github.com/rcowham/p4gitbridge/dvcs"
)

// ChangeSet is the pure classification of a commit's diff-tree entries
// into the depot-side actions the engine must take (§4.5 step 3), built
// without any side effect so it can be tested independently of a real
// depot or DVCS process (§9 "pure-function state passing").
type ChangeSet struct {
	EditedFiles        map[string]bool
	FilesToAdd         map[string]bool
	FilesToDelete      map[string]bool
	ExecBitChanges     map[string]string // path -> new mode, reopened with the matching p4 type
	IntegrationSources map[string]string // dest path -> source path, for R/C actions
}

// NewChangeSet builds an empty ChangeSet.
func NewChangeSet() *ChangeSet {
	return &ChangeSet{
		EditedFiles:        map[string]bool{},
		FilesToAdd:         map[string]bool{},
		FilesToDelete:      map[string]bool{},
		ExecBitChanges:     map[string]string{},
		IntegrationSources: map[string]string{},
	}
}

// Classify folds diff-tree entries into the ChangeSet, grounded on
// git-p4.py's getChangedFiles. T, U, X, B are fatal (§4.5 step 1
// "unknown statuses ... are fatal").
func (cs *ChangeSet) Classify(entries []dvcs.DiffEntry) error {
	for _, d := range entries {
		switch d.Status {
		case 'M':
			if d.IsExecChanged() {
				cs.ExecBitChanges[d.Src] = d.DstMode
			}
			cs.EditedFiles[d.Src] = true
		case 'A':
			cs.FilesToAdd[d.Src] = true
			cs.ExecBitChanges[d.Src] = d.DstMode
			delete(cs.FilesToDelete, d.Src)
		case 'D':
			cs.FilesToDelete[d.Src] = true
			delete(cs.FilesToAdd, d.Src)
			delete(cs.EditedFiles, d.Src)
		case 'R':
			cs.EditedFiles[d.Dst] = true
			cs.IntegrationSources[d.Dst] = d.Src
			cs.FilesToDelete[d.Src] = true
		case 'C':
			cs.EditedFiles[d.Dst] = true
			cs.IntegrationSources[d.Dst] = d.Src
		default:
			return fmt.Errorf("submit: unsupported diff status %q for %s", string(d.Status), d.Src)
		}
	}
	return nil
}

// p4TypeForExecMode maps a destination file mode to the depot type used
// to reopen a file whose exec bit changed (§4.5 step 3 "M ... queue a
// reopen of the type"). This is a deliberate simplification of
// setP4ExecBit, which toggles "+x" onto whatever type the file already
// has; preserving every existing modifier would need an extra `p4 fstat`
// round-trip this engine does not otherwise make.
func p4TypeForExecMode(mode string) string {
	if len(mode) >= 3 && mode[len(mode)-3:] == "755" {
		return "text+x"
	}
	return "text"
}
