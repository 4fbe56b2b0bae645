// Package fastimport is a hand-rolled writer for the DVCS fast-import
// stream protocol (§6 "Fast-import protocol"): commit, mark, committer,
// data, from, merge, M, D, N, tag, tagger, checkpoint, reset. The teacher
// only consumed this protocol (via a reader library); this system produces
// it, so the writer is modeled directly on journal.go's text-emission
// style rather than on a borrowed reader API.
package fastimport

import (
	"fmt"
	"io"
)

// FileMode is the fast-import file mode token for an `M` command.
type FileMode string

const (
	ModeRegular    FileMode = "644"
	ModeExecutable FileMode = "755"
	ModeSymlink    FileMode = "120000"
)

// Writer emits fast-import commands to an underlying stream, chunking any
// single write over chunkThreshold bytes (§6 "Writes larger than 10 MiB...
// are chunked to work around a legacy platform bug", SUPPLEMENTED FEATURES
// item 5, generalizing git-p4.py's LargeFileWriter).
type Writer struct {
	w io.Writer
}

// SetWriter points the Writer at w, mirroring journal.Journal.SetWriter.
func (fw *Writer) SetWriter(w io.Writer) {
	fw.w = w
}

// chunkThreshold is the write-chunking boundary (§6's "10 MiB").
const chunkThreshold = 10 * 1024 * 1024

// chunkedWrite writes p to the underlying stream in chunks no larger than
// chunkThreshold, so no single underlying Write call ever exceeds it.
func (fw *Writer) chunkedWrite(p []byte) error {
	for len(p) > 0 {
		n := len(p)
		if n > chunkThreshold {
			n = chunkThreshold
		}
		if _, err := fw.w.Write(p[:n]); err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

func (fw *Writer) printf(format string, args ...interface{}) error {
	return fw.chunkedWrite([]byte(fmt.Sprintf(format, args...)))
}

// WriteCommit emits `commit <ref>`.
func (fw *Writer) WriteCommit(ref string) error {
	return fw.printf("commit %s\n", ref)
}

// WriteMark emits `mark :<id>`.
func (fw *Writer) WriteMark(id int) error {
	return fw.printf("mark :%d\n", id)
}

// WriteCommitter emits `committer <name-and-email> <epoch> <tz>`. nameEmail
// is the already-formatted "Name <email>" (or "<email>") string resolved by
// the user cache.
func (fw *Writer) WriteCommitter(nameEmail string, epoch int64, tz string) error {
	return fw.printf("committer %s %d %s\n", nameEmail, epoch, tz)
}

// WriteTagger emits `tagger <name-and-email> <epoch> <tz>`, used for label
// tag commits (§4.7).
func (fw *Writer) WriteTagger(nameEmail string, epoch int64, tz string) error {
	return fw.printf("tagger %s %d %s\n", nameEmail, epoch, tz)
}

// WriteDataDelimited emits a `data <<EOT ... EOT` block, used for commit
// messages (§6). A blank line always separates text from the delimiter,
// regardless of whether text already ends in "\n" (§8 S1, mirroring
// git-p4.py's unconditional `self.gitStream.write("\nEOT\n\n")`); delim
// defaults to "EOT" and must not occur as a line of text.
func (fw *Writer) WriteDataDelimited(text string, delim string) error {
	if delim == "" {
		delim = "EOT"
	}
	if err := fw.printf("data <<%s\n", delim); err != nil {
		return err
	}
	if err := fw.chunkedWrite([]byte(text)); err != nil {
		return err
	}
	if err := fw.chunkedWrite([]byte("\n")); err != nil {
		return err
	}
	return fw.printf("%s\n", delim)
}

// WriteData emits a sized `data <len>` block followed by raw bytes, used
// for file content and note bodies.
func (fw *Writer) WriteData(content []byte) error {
	if err := fw.printf("data %d\n", len(content)); err != nil {
		return err
	}
	if err := fw.chunkedWrite(content); err != nil {
		return err
	}
	return fw.chunkedWrite([]byte("\n"))
}

// WriteFrom emits `from <commit-ish>`.
func (fw *Writer) WriteFrom(ref string) error {
	return fw.printf("from %s\n", ref)
}

// WriteMerge emits `merge <commit-ish>`.
func (fw *Writer) WriteMerge(ref string) error {
	return fw.printf("merge %s\n", ref)
}

// WriteFileModify emits `M <mode> inline <path>` followed by the sized data
// block for the file's content.
func (fw *Writer) WriteFileModify(mode FileMode, path string, content []byte) error {
	if err := fw.printf("M %s inline %s\n", mode, path); err != nil {
		return err
	}
	return fw.WriteData(content)
}

// WriteFileDelete emits `D <path>`.
func (fw *Writer) WriteFileDelete(path string) error {
	return fw.printf("D %s\n", path)
}

// WriteNote emits `N inline :<commitMark>` followed by the sized data block
// for the provenance note text.
func (fw *Writer) WriteNote(commitMark int, text string) error {
	if err := fw.printf("N inline :%d\n", commitMark); err != nil {
		return err
	}
	return fw.WriteData([]byte(text))
}

// WriteTag emits an annotated tag record: `tag <name>`,
// `from <commit-ish>`, tagger line, and a delimited data block (§4.7).
func (fw *Writer) WriteTag(name string, fromRef string, nameEmail string, epoch int64, tz string, message string) error {
	if err := fw.printf("tag %s\n", name); err != nil {
		return err
	}
	if err := fw.WriteFrom(fromRef); err != nil {
		return err
	}
	if err := fw.WriteTagger(nameEmail, epoch, tz); err != nil {
		return err
	}
	return fw.WriteDataDelimited(message, "EOT")
}

// WriteCheckpoint emits `checkpoint`, forcing the DVCS driver to flush and
// make recent marks addressable before a branch-parent or merge-parent
// lookup (§4.4 step 3d).
func (fw *Writer) WriteCheckpoint() error {
	return fw.printf("checkpoint\n")
}

// WriteReset emits `reset <ref>` optionally `from <commit-ish>`.
func (fw *Writer) WriteReset(ref string, from string) error {
	if err := fw.printf("reset %s\n", ref); err != nil {
		return err
	}
	if from != "" {
		return fw.WriteFrom(from)
	}
	return nil
}

// Blank emits a single newline, used to separate commit records.
func (fw *Writer) Blank() error {
	return fw.chunkedWrite([]byte("\n"))
}
