package importpipeline

import (
	"fmt"
	"strings"

	"github.com/rcowham/p4gitbridge/depot"
	"github.com/rcowham/p4gitbridge/fastimport"
	"github.com/rcowham/p4gitbridge/filereader"
	"github.com/rcowham/p4gitbridge/provenance"
)

// commitChangelist emits one fast-import commit for (branch, files) plus
// its companion provenance-note commit (§4.4 "Fast-import emission"),
// records the mark against changeListCommits, and fetches file content
// through the Reader.
func (p *Pipeline) commitChangelist(ch depot.Change, branch string, files []depot.FileAction, parentRef string, hasParent bool, mergeParentRef string) (int, error) {
	entries := make([]filereader.Entry, 0, len(files))
	for _, f := range files {
		entries = append(entries, filereader.Entry{DepotPath: f.DepotPath, Rev: f.Rev, Action: f.Action, FileType: f.Type})
	}
	results, err := p.reader.FetchAll(entries)
	if err != nil {
		return 0, err
	}

	commitMark, noteMark := p.nextMarks()
	ref := p.branchRef(branch)
	nameEmail := p.users.Lookup(ch.User)

	if err := p.writer.WriteCommit(ref); err != nil {
		return 0, err
	}
	if err := p.writer.WriteMark(commitMark); err != nil {
		return 0, err
	}
	if err := p.writer.WriteCommitter(nameEmail, ch.Time, "+0000"); err != nil {
		return 0, err
	}
	if err := p.writer.WriteDataDelimited(ch.Description, "EOT"); err != nil {
		return 0, err
	}
	if err := p.writer.Blank(); err != nil {
		return 0, err
	}
	if hasParent && parentRef != "" {
		if err := p.writer.WriteFrom(parentRef); err != nil {
			return 0, err
		}
	}
	if mergeParentRef != "" {
		if err := p.writer.WriteMerge(mergeParentRef); err != nil {
			return 0, err
		}
	}

	depotRoot := ""
	if len(p.depotPaths) > 0 {
		depotRoot = strings.TrimSuffix(p.depotPaths[0], "...")
	}
	for _, res := range results {
		relPath := RelativePath(res.Entry.DepotPath, branch, depotRoot, p.cfg.KeepRepoPath)
		if res.Entry.Action == "delete" {
			if err := p.writer.WriteFileDelete(relPath); err != nil {
				return 0, err
			}
			continue
		}
		if res.Excluded {
			continue
		}
		mode := fastimport.ModeRegular
		switch {
		case res.IsSymlink:
			mode = fastimport.ModeSymlink
		case res.IsExec:
			mode = fastimport.ModeExecutable
		}
		if err := p.writer.WriteFileModify(mode, relPath, res.Content); err != nil {
			return 0, err
		}
	}
	if err := p.writer.Blank(); err != nil {
		return 0, err
	}

	if err := p.writeProvenanceNote(ch, branch, nameEmail, commitMark, noteMark); err != nil {
		return 0, err
	}

	if p.changeListCommits[branch] == nil {
		p.changeListCommits[branch] = map[int]int{}
	}
	p.changeListCommits[branch][ch.Number] = commitMark
	return commitMark, nil
}

// writeProvenanceNote emits the companion notes-ref commit, chained from
// the previous note commit so the notes history stays linear (§4.4
// "ordered so the note can from the previous note").
func (p *Pipeline) writeProvenanceNote(ch depot.Change, branch, nameEmail string, commitMark, noteMark int) error {
	noteDepotPaths := p.depotPaths
	if branch != "" && p.cfg.DetectBranches {
		noteDepotPaths = []string{joinDepotPrefix(p.depotPaths, branch) + "/"}
	}
	note := provenance.BuildNote(provenance.Settings{DepotPaths: noteDepotPaths, Change: ch.Number})

	if err := p.writer.WriteCommit(provenance.NotesRef); err != nil {
		return err
	}
	if err := p.writer.WriteMark(noteMark); err != nil {
		return err
	}
	if err := p.writer.WriteCommitter(nameEmail, ch.Time, "+0000"); err != nil {
		return err
	}
	if err := p.writer.WriteData([]byte("Note added by git-p4 import\n")); err != nil {
		return err
	}
	if p.lastNoteMark != 0 {
		if err := p.writer.WriteFrom(fmt.Sprintf(":%d", p.lastNoteMark)); err != nil {
			return err
		}
	}
	if err := p.writer.WriteNote(commitMark, note); err != nil {
		return err
	}
	if err := p.writer.Blank(); err != nil {
		return err
	}
	p.lastNoteMark = noteMark
	return nil
}
