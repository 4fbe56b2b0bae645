package importpipeline

import "github.com/rcowham/p4gitbridge/depot"

// IsMergeCommit reports whether strictly more than half of files' actions
// are integrations (branch or integrate), the merge-detection heuristic of
// §4.4 "Merge detection".
func IsMergeCommit(files []depot.FileAction) bool {
	if len(files) == 0 {
		return false
	}
	integrations := 0
	for _, f := range files {
		if f.IsIntegration() {
			integrations++
		}
	}
	return integrations*2 > len(files)
}
