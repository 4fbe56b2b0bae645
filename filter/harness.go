// Package filter runs the three optional user-supplied transform hooks
// (§4.6): the tree filter (batch path rename/drop), the message filter
// (per-commit description rewrite), and the content filter (per-file
// content rewrite through a scratch directory).
package filter

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/alitto/pond"
	"github.com/google/shlex"
	"github.com/sirupsen/logrus"
)

// NoDataSentinel is returned for a file whose content filter raised an
// exception; the pipeline writes a diagnostic and continues rather than
// aborting (§4.6, §7 "Filter error").
const NoDataSentinel = "no data"

// Harness runs the configured filter commands. A zero-value field means
// that hook is disabled and its Run* method is a no-op passthrough.
type Harness struct {
	logger       *logrus.Logger
	treeCmd      string
	messageCmd   string
	contentCmd   string
	scratchDir   string
	errorLogPath string
	pool         *pond.WorkerPool
}

// New builds a Harness. concurrency bounds the content-filter worker pool,
// mirroring the teacher's blob-fetch pond pool in `filereader`.
func New(logger *logrus.Logger, treeCmd, messageCmd, contentCmd, scratchDir, errorLogPath string, concurrency int) *Harness {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Harness{
		logger: logger, treeCmd: treeCmd, messageCmd: messageCmd, contentCmd: contentCmd,
		scratchDir: scratchDir, errorLogPath: errorLogPath,
		pool: pond.New(concurrency, 0, pond.MinWorkers(concurrency)),
	}
}

// runFilter splits cmd with shell-word semantics and runs it with stdin
// piped in, returning stdout. A non-zero exit or split failure is the
// caller's problem to treat as fatal (path/message filters) or logged
// (content filter).
func runFilter(cmd string, stdin []byte, env []string) (string, error) {
	args, err := shlex.Split(cmd)
	if err != nil || len(args) == 0 {
		return "", fmt.Errorf("filter: invalid command %q: %v", cmd, err)
	}
	c := exec.Command(args[0], args[1:]...)
	c.Stdin = bytes.NewReader(stdin)
	c.Env = append(os.Environ(), env...)
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr
	if err := c.Run(); err != nil {
		return "", fmt.Errorf("filter command %q failed: %v: %s", cmd, err, stderr.String())
	}
	return stdout.String(), nil
}

// RunTreeFilter renames or drops paths for one changelist in a single
// batch invocation: empty output lines drop the file, non-empty lines
// rename it (§4.6 "Tree filter"). It fails if the filter changes the line
// count.
func (h *Harness) RunTreeFilter(paths []string) ([]string, error) {
	if h.treeCmd == "" {
		return paths, nil
	}
	input := strings.Join(paths, "\n")
	out, err := runFilter(h.treeCmd, []byte(input), nil)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	if len(lines) != len(paths) {
		return nil, fmt.Errorf("filter: tree filter changed line count (%d in, %d out)", len(paths), len(lines))
	}
	return lines, nil
}

// RunMessageFilter rewrites a commit message (§4.6 "Message filter").
func (h *Harness) RunMessageFilter(message string) (string, error) {
	if h.messageCmd == "" {
		return message, nil
	}
	return runFilter(h.messageCmd, []byte(message), nil)
}

// RunContentFilter rewrites one file's content through the scratch
// directory (§4.6 "Content filter"). On any failure the scratch file is
// removed, a diagnostic is appended to the error log, and NoDataSentinel
// is returned rather than an error, so the pipeline can continue (§7
// "Filter error ... logged ... file is skipped").
func (h *Harness) RunContentFilter(relPath string, content []byte) string {
	if h.contentCmd == "" {
		return string(content)
	}
	out, err := h.filterOneFile(relPath, content)
	if err != nil {
		h.logError(relPath, err)
		return NoDataSentinel
	}
	return out
}

// RunContentFilterAll runs RunContentFilter over every entry concurrently,
// preserving input order (mirrors filereader.Reader.FetchAll's pond-backed
// fan-out for the same per-file-blocking-command shape).
func (h *Harness) RunContentFilterAll(relPaths []string, contents [][]byte) []string {
	results := make([]string, len(relPaths))
	var wg sync.WaitGroup
	for i := range relPaths {
		i := i
		wg.Add(1)
		h.pool.Submit(func() {
			defer wg.Done()
			results[i] = h.RunContentFilter(relPaths[i], contents[i])
		})
	}
	wg.Wait()
	return results
}

func (h *Harness) filterOneFile(relPath string, content []byte) (string, error) {
	scratchPath := filepath.Join(h.scratchDir, filepath.Base(relPath))
	if err := os.WriteFile(scratchPath, content, 0o644); err != nil {
		return "", err
	}
	defer os.Remove(scratchPath)

	env := []string{"GIT_DIR=" + h.scratchDir}
	out, err := runFilter(h.contentCmd, []byte(scratchPath), env)
	if err != nil {
		return "", err
	}

	rewritten, err := os.ReadFile(scratchPath)
	if err != nil {
		return "", err
	}
	_ = out // the content filter's own stdout is conventionally empty; content comes from the rewritten scratch file
	return string(rewritten), nil
}

func (h *Harness) logError(relPath string, cause error) {
	if h.errorLogPath == "" {
		return
	}
	f, err := os.OpenFile(h.errorLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		h.logger.Warnf("filter: could not open error log %s: %v", h.errorLogPath, err)
		return
	}
	defer f.Close()
	fmt.Fprintf(f, "content filter failed for %s: %v\n", relPath, cause)
}
