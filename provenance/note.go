// Package provenance implements the settings-note store: a key/value
// record attached to each imported commit, used to locate the upstream
// branch point and the last imported changelist for incremental re-import
// (§4.2).
package provenance

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// NotesRef is the dedicated ref every provenance note is attached under.
const NotesRef = "refs/notes/git-p4"

// Settings is a parsed provenance note (§4.2 "Recognized keys": depot-paths,
// change, options).
type Settings struct {
	DepotPaths []string
	Change     int
	Options    []string
	Raw        map[string]string // every key seen, including unrecognized ones
}

// HasDepotPaths reports whether this settings record carries a depot-paths
// key (used by the branch-point walk to know when it has found a usable
// ancestor note).
func (s Settings) HasDepotPaths() bool {
	return len(s.DepotPaths) > 0
}

// JoinedDepotPaths is the comma-joined depot-paths string used as the
// reverse-index key in FindUpstreamBranchPoint.
func (s Settings) JoinedDepotPaths() string {
	return strings.Join(s.DepotPaths, ",")
}

var notePattern = regexp.MustCompile(`^\s*\[(.*)\]\s*$`)

// ParseNote parses a provenance note body of the form
// `[depot-paths = "//depot/": change = 33255]` (§ GLOSSARY "Provenance
// note"), grounded on extractSettingsFromNotes's regex + `:`-split +
// `=`-split + quote-strip sequence.
func ParseNote(text string) Settings {
	settings := Settings{Raw: map[string]string{}}
	m := notePattern.FindStringSubmatch(text)
	if m == nil {
		return settings
	}
	for _, assignment := range strings.Split(m[1], ":") {
		parts := strings.SplitN(assignment, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		if strings.HasPrefix(val, `"`) && strings.HasSuffix(val, `"`) && len(val) >= 2 {
			val = val[1 : len(val)-1]
		}
		settings.Raw[key] = val
	}

	paths, ok := settings.Raw["depot-paths"]
	if !ok {
		paths = settings.Raw["depot-path"]
	}
	if paths != "" {
		settings.DepotPaths = strings.Split(paths, ",")
	}
	if change, ok := settings.Raw["change"]; ok {
		if n, err := strconv.Atoi(strings.TrimSpace(change)); err == nil {
			settings.Change = n
		}
	}
	if opts, ok := settings.Raw["options"]; ok && opts != "" {
		settings.Options = strings.Fields(opts)
	}
	return settings
}

// BuildNote renders a Settings record back into note-body text, quoting
// depot-paths as a comma-joined string.
func BuildNote(s Settings) string {
	parts := []string{fmt.Sprintf(`depot-paths = %q`, s.JoinedDepotPaths())}
	parts = append(parts, fmt.Sprintf("change = %d", s.Change))
	if len(s.Options) > 0 {
		parts = append(parts, fmt.Sprintf("options = %s", strings.Join(s.Options, " ")))
	}
	return "[" + strings.Join(parts, ": ") + "]"
}
