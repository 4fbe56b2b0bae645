package importpipeline

import (
	"strings"

	"github.com/rcowham/p4gitbridge/depot"
)

// PartitionFiles groups a changelist's files by destination branch,
// matching each file's depot path (relative to the depot root) against
// every known branch's own prefix segment. The match is guarded by a
// trailing "/" (or an exact match) so a branch named "foo/4.2" never
// swallows a sibling "foo/4.2-beta" (§4.4 step 3).
func PartitionFiles(files []depot.FileAction, knownBranches map[string]string) map[string][]depot.FileAction {
	out := map[string][]depot.FileAction{}
	for _, f := range files {
		branch := matchBranch(f.DepotPath, knownBranches)
		if branch == "" {
			continue
		}
		out[branch] = append(out[branch], f)
	}
	return out
}

func matchBranch(depotPath string, knownBranches map[string]string) string {
	var best string
	for branch := range knownBranches {
		if pathInBranch(depotPath, branch) && len(branch) > len(best) {
			best = branch
		}
	}
	return best
}

// pathInBranch reports whether depotPath's branch-relative segment is
// exactly branch, or is nested under branch via a "/" boundary.
func pathInBranch(depotPath, branch string) bool {
	idx := strings.Index(depotPath, branch)
	if idx < 0 {
		return false
	}
	rest := depotPath[idx+len(branch):]
	return rest == "" || strings.HasPrefix(rest, "/")
}

// RelativePath strips a file's longest matching branch prefix (or the
// common depot root, when keepRepoPath is set) to produce the path used
// in the fast-import M/D command (§4.4 "Fast-import emission").
func RelativePath(depotPath, branch string, depotRoot string, keepRepoPath bool) string {
	if keepRepoPath {
		return strings.TrimPrefix(strings.TrimPrefix(depotPath, depotRoot), "/")
	}
	idx := strings.Index(depotPath, branch)
	if idx < 0 {
		return strings.TrimPrefix(depotPath, "/")
	}
	rel := depotPath[idx+len(branch):]
	return strings.TrimPrefix(rel, "/")
}
