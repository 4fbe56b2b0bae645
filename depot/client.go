package depot

import (
	"bufio"
	"bytes"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rcowham/p4gitbridge/config"
)

// metaCharReplacer escapes the depot's path metacharacters so a literal
// filename containing them survives command-line quoting, matching
// git-p4.py's escapeStringP4Only/escapeStringP4 pair (§1 "escapes path
// metacharacters").
var metaCharReplacer = strings.NewReplacer(
	"%", "%25",
	"@", "%40",
	"#", "%23",
	"*", "%2A",
)

// EscapePath escapes a depot path's reserved characters for use as a depot
// CLI argument.
func EscapePath(path string) string {
	return metaCharReplacer.Replace(path)
}

// Client wraps the depot CLI. A Client is built once per command invocation
// from resolved ConnectionSettings; it holds no mutable state beyond its
// logger, matching the teacher's "no package-global state" convention.
type Client struct {
	logger   *logrus.Logger
	exe      string
	settings config.ConnectionSettings
	cwd      string
}

// NewClient builds a depot Client. exe is normally "p4"; it is a parameter
// so tests can point at a fake executable.
func NewClient(logger *logrus.Logger, settings config.ConnectionSettings, cwd string, exe string) *Client {
	if exe == "" {
		exe = "p4"
	}
	return &Client{logger: logger, exe: exe, settings: settings, cwd: cwd}
}

// buildArgs prepends the connection-settings flags (-u/-P/-p/-H/-c/-d) ahead
// of the caller's command arguments, mirroring P4Helper.p4_build_cmd.
func (c *Client) buildArgs(args []string) []string {
	prefix := make([]string, 0, len(args)+10)
	if c.settings.User != "" {
		prefix = append(prefix, "-u", c.settings.User)
	}
	if c.settings.Password != "" {
		prefix = append(prefix, "-P", c.settings.Password)
	}
	if c.settings.Port != "" {
		prefix = append(prefix, "-p", c.settings.Port)
	}
	if c.settings.Host != "" {
		prefix = append(prefix, "-H", c.settings.Host)
	}
	if c.settings.Client != "" {
		prefix = append(prefix, "-c", c.settings.Client)
	}
	if c.cwd != "" {
		prefix = append(prefix, "-d", c.cwd)
	}
	return append(prefix, args...)
}

// List spawns the depot CLI in tagged-output mode (`-ztag`) and decodes the
// record stream (§6 "Depot CLI contract"). A record with code=error is
// fatal unless ignoreError is set; a non-zero process exit appends a
// synthetic exitCode record and is also returned as an error unless
// ignoreError is set.
func (c *Client) List(args []string, stdin []byte, ignoreError bool) ([]Record, error) {
	fullArgs := append([]string{"-ztag"}, c.buildArgs(args)...)
	c.logger.Debugf("depot: p4 %s", strings.Join(fullArgs, " "))

	cmd := exec.Command(c.exe, fullArgs...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	runErr := cmd.Run()
	records, _ := decodeTaggedStream(bufio.NewReader(&stdout))

	if rec := FindError(records); rec != nil && !ignoreError {
		return records, errorf(*rec)
	}

	if runErr != nil {
		exitCode := 1
		if ee, ok := runErr.(*exec.ExitError); ok {
			exitCode = ee.ExitCode()
		}
		records = append(records, syntheticExitRecord(exitCode))
		if !ignoreError {
			return records, fmt.Errorf("depot command failed (exit %d): %s", exitCode, stderr.String())
		}
	}
	return records, nil
}

// Run executes an untagged depot command and returns its raw stdout text,
// used for submit/shelve templates (§6 "Untagged mode").
func (c *Client) Run(args []string, ignoreError bool) (string, error) {
	fullArgs := c.buildArgs(args)
	c.logger.Debugf("depot: p4 %s", strings.Join(fullArgs, " "))

	cmd := exec.Command(c.exe, fullArgs...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil && !ignoreError {
		return stdout.String(), fmt.Errorf("depot command failed: %v: %s", err, stderr.String())
	}
	return stdout.String(), nil
}

// Read pipes data into the depot command's stdin and returns its stdout
// text, used for patch piping (e.g. submitting an edited change form).
func (c *Client) Read(args []string, data []byte, ignoreError bool) (string, error) {
	fullArgs := c.buildArgs(args)
	c.logger.Debugf("depot: p4 %s", strings.Join(fullArgs, " "))

	cmd := exec.Command(c.exe, fullArgs...)
	cmd.Stdin = bytes.NewReader(data)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil && !ignoreError {
		return stdout.String(), fmt.Errorf("depot command failed: %v: %s", err, stderr.String())
	}
	return stdout.String(), nil
}

// Write streams data to the depot command's stdin, discarding stdout; used
// when only the command's side effect (and exit code) matters.
func (c *Client) Write(args []string, data []byte, ignoreError bool) error {
	_, err := c.Read(args, data, ignoreError)
	return err
}

// StreamLines runs an untagged command and returns its stdout split into
// lines, trimmed of trailing newlines, mirroring read_pipe_lines.
func (c *Client) StreamLines(args []string) ([]string, error) {
	out, err := c.Run(args, false)
	if err != nil {
		return nil, err
	}
	var lines []string
	sc := bufio.NewScanner(strings.NewReader(out))
	sc.Buffer(make([]byte, 64*1024), 10*1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines, nil
}
