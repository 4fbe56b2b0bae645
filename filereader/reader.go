// Package filereader streams file content from the depot for the import
// pipeline, applying client-spec filtering and the type-driven content
// transforms of §4.1/§4.3.
package filereader

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/alitto/pond"
	"github.com/h2non/filetype"
	"github.com/sirupsen/logrus"

	"github.com/rcowham/p4gitbridge/config"
	"github.com/rcowham/p4gitbridge/depot"
)

// Entry is one file the import pipeline wants content for.
type Entry struct {
	DepotPath string
	Rev       int
	Action    string // "delete" entries are excluded from the fetch (§4.3)
	FileType  string
}

// Result is the content (or exclusion reason) for one Entry.
type Result struct {
	Entry     Entry
	Content   []byte
	Excluded  bool // excluded by client spec: present in commit, no content
	IsSymlink bool
	IsExec    bool
}

// progressChunk is the rate limit for progress reporting: at most one line
// per 100 KiB per file (§4.3).
const progressChunk = 100 * 1024

// Reader fetches file content through a depot.Client, filtering by client
// spec and applying the type-driven transforms.
type Reader struct {
	logger     *logrus.Logger
	client     *depot.Client
	clientSpec []config.ClientSpecEntry
	charset    string
	pool       *pond.WorkerPool
}

// New builds a Reader. concurrency bounds the worker pool used to fetch
// files in parallel, mirroring the teacher's blob-save pond pool.
func New(logger *logrus.Logger, client *depot.Client, clientSpec []config.ClientSpecEntry, concurrency int) *Reader {
	return NewWithCharset(logger, client, clientSpec, "", concurrency)
}

// NewWithCharset is New plus a legacy charset (an IANA name) applied to
// plain "text" file content before it reaches the fast-import stream
// (§4.1, §9 SUPPLEMENTED FEATURES). Pass "" to skip transcoding entirely,
// matching New's behavior.
func NewWithCharset(logger *logrus.Logger, client *depot.Client, clientSpec []config.ClientSpecEntry, charset string, concurrency int) *Reader {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Reader{
		logger:     logger,
		client:     client,
		clientSpec: clientSpec,
		charset:    charset,
		pool:       pond.New(concurrency, 0, pond.MinWorkers(concurrency)),
	}
}

// FetchAll fetches content for every entry concurrently, preserving input
// order in the returned slice.
func (r *Reader) FetchAll(entries []Entry) ([]Result, error) {
	results := make([]Result, len(entries))
	errs := make([]error, len(entries))
	var wg sync.WaitGroup

	for i, e := range entries {
		i, e := i, e
		wg.Add(1)
		r.pool.Submit(func() {
			defer wg.Done()
			res, err := r.fetchOne(e)
			results[i] = res
			errs[i] = err
		})
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

func (r *Reader) fetchOne(e Entry) (Result, error) {
	if e.Action == "delete" {
		return Result{Entry: e, Excluded: false}, nil
	}
	if !config.MatchClientSpec(r.clientSpec, e.DepotPath) {
		return Result{Entry: e, Excluded: true}, nil
	}
	if IsAppleType(e.FileType) {
		r.logger.Warnf("filereader: skipping apple-type file %s", e.DepotPath)
		return Result{Entry: e, Excluded: true}, nil
	}

	isSymlink := IsSymlinkType(e.FileType)
	isExec := IsExecType(e.FileType)

	var content []byte
	var err error
	switch {
	case IsUTF16Type(e.FileType):
		content, err = r.fetchViaTempFile(e)
	case strings.HasPrefix(e.FileType, "binary") || strings.HasPrefix(e.FileType, "ubinary"):
		content, err = r.fetchBinary(e)
	default:
		content, err = r.fetchInline(e)
	}
	if err != nil {
		return Result{}, err
	}

	if isSymlink {
		content = []byte(strings.TrimSuffix(string(content), "\n"))
	} else {
		if r.charset != "" && IsPlainTextType(e.FileType) {
			transcoded, err := TranscodeToUTF8(r.charset, content)
			if err != nil {
				r.logger.Warnf("filereader: %s: %v, keeping original bytes", e.DepotPath, err)
			} else {
				content = transcoded
			}
		}
		content = MaskKeywords(e.FileType, content)
		if runtime.GOOS == "windows" && !looksBinary(content) {
			content = CollapseCRLF(content)
		}
	}

	return Result{Entry: e, Content: content, IsSymlink: isSymlink, IsExec: isExec}, nil
}

// fetchInline streams a text/normal file via the depot's tagged print
// command, aggregating chunk records until a non-chunk record appears
// (§4.3).
func (r *Reader) fetchInline(e Entry) ([]byte, error) {
	records, err := r.client.List([]string{"print", "-q", depotRevSpec(e)}, nil, false)
	if err != nil {
		return nil, err
	}
	var content strings.Builder
	var reported int
	for _, rec := range records {
		switch rec.Code {
		case depot.CodeText, "unicode", "utf16", "binary":
			data, _ := rec.Get("data")
			content.WriteString(data)
			if content.Len()-reported >= progressChunk {
				reported = content.Len()
				r.logger.Debugf("filereader: %s ... %d bytes", e.DepotPath, content.Len())
			}
		}
	}
	return []byte(content.String()), nil
}

// fetchBinary is identical to fetchInline except files outside the image
// extension allowlist have their content discarded (§4.1).
func (r *Reader) fetchBinary(e Entry) ([]byte, error) {
	if !IsImageExtension(e.DepotPath) {
		return []byte{}, nil
	}
	content, err := r.fetchInline(e)
	if err != nil {
		return nil, err
	}
	if !filetype.IsImage(content) && len(content) > 0 {
		r.logger.Debugf("filereader: %s has image extension but non-image content, keeping as fetched", e.DepotPath)
	}
	return content, nil
}

// fetchViaTempFile asks the depot to write UTF-16 content to a temp file
// rather than streaming it through the tagged pipe, avoiding transcoding
// (§4.1).
func (r *Reader) fetchViaTempFile(e Entry) ([]byte, error) {
	tmp, err := os.CreateTemp("", "p4gitbridge-utf16-*")
	if err != nil {
		return nil, err
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := r.client.Write([]string{"print", "-q", "-o", tmpPath, depotRevSpec(e)}, nil, false); err != nil {
		return nil, err
	}
	content, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil, err
	}
	if len(content) > 0 && !HasUTF16BOM(content) {
		r.logger.Warnf("filereader: %s: utf16 content has no byte-order mark, committing as fetched", e.DepotPath)
	}
	return content, nil
}

func depotRevSpec(e Entry) string {
	return fmt.Sprintf("%s#%d", depot.EscapePath(e.DepotPath), e.Rev)
}

// looksBinary is a light heuristic gate before collapsing CRLF on
// CRLF-native hosts, so symlink/UTF-16 content (already handled
// separately) and genuinely binary bytes are never rewritten.
func looksBinary(content []byte) bool {
	for _, b := range content {
		if b == 0 {
			return true
		}
	}
	return false
}
