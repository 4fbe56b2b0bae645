package submit

import (
	"os"
	"path/filepath"

	"github.com/rcowham/p4gitbridge/depot"
)

// RevertOnFailure restores the depot client workspace after an aborted
// commit: every file opened for edit, add, integrate, or delete is
// reverted, and files created locally for `add` are removed from disk
// (§4.5 "Revert-on-failure restores the workspace").
func RevertOnFailure(client *depot.Client, cs *ChangeSet, workspaceDir string) error {
	opened := map[string]bool{}
	for f := range cs.EditedFiles {
		opened[f] = true
	}
	for f := range cs.FilesToAdd {
		opened[f] = true
	}
	for f := range cs.FilesToDelete {
		opened[f] = true
	}
	for dst := range cs.IntegrationSources {
		opened[dst] = true
	}

	var firstErr error
	for f := range opened {
		if _, err := client.Run([]string{"revert", f}, true); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for f := range cs.FilesToAdd {
		path := filepath.Join(workspaceDir, f)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
