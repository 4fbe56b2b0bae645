package filter

import "os"

// NewScratchDir creates the content filter's scratch directory once per
// run (§5 "Shared-resource policy ... created once per run and removed on
// cleanup, including on the fatal-error path").
func NewScratchDir(baseDir string) (string, error) {
	return os.MkdirTemp(baseDir, "p4gitbridge-filter-*")
}

// CleanupScratchDir removes the scratch directory; safe to call even if
// dir was never created (e.g. no content filter configured).
func CleanupScratchDir(dir string) error {
	if dir == "" {
		return nil
	}
	return os.RemoveAll(dir)
}
