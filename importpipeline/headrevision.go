package importpipeline

import (
	"fmt"

	"github.com/rcowham/p4gitbridge/depot"
)

// ImportHeadRevision implements the fresh-clone path (§4.4 "Head-revision
// path"): when no prior provenance exists, list every file at revSpec
// (e.g. "123" or "now") and synthesize a single changelist whose time is
// the maximum time across the listing, then import it through the normal
// per-changelist algorithm.
func (p *Pipeline) ImportHeadRevision(revSpec string, user string) error {
	files, err := depot.Files(p.client, p.depotPaths, "@"+revSpec)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("importpipeline: no files found at revision %s", revSpec)
	}
	for i := range files {
		if files[i].Action == "" {
			files[i].Action = "add"
		}
	}
	ch := depot.Change{
		Number:      0,
		User:        user,
		Time:        depot.MaxTime(files),
		Description: fmt.Sprintf("Initial import at revision %s", revSpec),
		Files:       files,
	}
	return p.ImportChangelist(ch)
}
