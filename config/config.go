// Package config loads project-level settings for p4gitbridge (the yaml
// config file) and resolves the DVCS-side `git-p4.*` settings that the depot
// adapter needs to build its command prefix.
package config

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	yaml "gopkg.in/yaml.v2"
)

const DefaultDepot = "import"
const DefaultBranch = "main"
const DefaultUserCacheFile = ".gitp4-usercache.txt"
const DefaultErrorLog = "git-p4-errors"
const DefaultDumpFile = "git-p4-dump"

// BranchMapping maps a DVCS branch short-name to its source-branch short-name,
// either via a regex-matched prefix (as derived from depot branch specs) or
// an explicit destination:source pair from git-p4.branchList.
type BranchMapping struct {
	Name   string `yaml:"name"`   // regex matched against a candidate branch name
	Prefix string `yaml:"prefix"` // source branch short-name for every matching branch
}

// ClientSpecEntry is one (depot-prefix, signed-length) pair from a client
// spec view. Entries are sorted by descending absolute length so the most
// specific prefix is tried first; positive length means include, negative
// means exclude.
type ClientSpecEntry struct {
	Prefix string
	Length int
}

// RegexpTypeMap is a parsed depot typemap override entry (text vs binary).
type RegexpTypeMap struct {
	Binary bool
	RePath *regexp.Regexp
}

// FilterCommands holds the three optional filter harness hooks (§4.6).
type FilterCommands struct {
	Tree    string `yaml:"tree_filter"`
	Message string `yaml:"message_filter"`
	Content string `yaml:"content_filter"`
}

// Config is the project-level yaml configuration file.
type Config struct {
	ImportDepot    string          `yaml:"import_depot"`
	ImportPath     string          `yaml:"import_path"`
	DefaultBranch  string          `yaml:"default_branch"`
	BranchMappings []BranchMapping `yaml:"branch_mappings"`
	BranchList     []string        `yaml:"branch_list"` // git-p4.branchList entries, "dest:source"
	TypeMaps       []string        `yaml:"typemaps"`
	ReTypeMaps     []RegexpTypeMap `yaml:"-"`

	DetectBranches    bool `yaml:"detect_branches"`
	DetectRename      bool `yaml:"detect_rename"`
	DetectCopy        bool `yaml:"detect_copy"`
	ImportIntoRemotes bool `yaml:"import_into_remotes"`
	UseClientSpec     bool `yaml:"use_client_spec"`
	AllowSubmit       bool `yaml:"allow_submit"`
	SyncFromOrigin    bool `yaml:"sync_from_origin"`
	FuzzyTags         bool `yaml:"fuzzy_tags"`
	KeepRepoPath      bool `yaml:"keep_repo_path"`

	ClientSpecLines []string          `yaml:"client_spec"`
	ClientSpec      []ClientSpecEntry `yaml:"-"`

	Filters       FilterCommands `yaml:"filters"`
	UserCacheFile string         `yaml:"user_cache_file"`
	ErrorLogPath  string         `yaml:"error_log"`
	DumpFile      string         `yaml:"dump_file"`

	// LegacyCharset is an IANA encoding name (e.g. "iso-8859-1") applied to
	// plain "text" file content before import. Empty skips transcoding;
	// "unicode"/"utf16" files are never transcoded since the depot server
	// already handles them (§4.1).
	LegacyCharset string `yaml:"legacy_charset"`
}

// Unmarshal parses yaml config content, applying defaults first.
func Unmarshal(content []byte) (*Config, error) {
	cfg := &Config{
		ImportDepot:   DefaultDepot,
		DefaultBranch: DefaultBranch,
		UserCacheFile: DefaultUserCacheFile,
		ErrorLogPath:  DefaultErrorLog,
		ReTypeMaps:    make([]RegexpTypeMap, 0),
	}
	if err := yaml.Unmarshal(content, cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %v. make sure to use 'single quotes' around strings with special characters (like match patterns)", err.Error())
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFile loads and parses a yaml config file.
func LoadConfigFile(filename string) (*Config, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to load %v: %v", filename, err.Error())
	}
	cfg, err := LoadConfigString(content)
	if err != nil {
		return nil, fmt.Errorf("failed to load %v: %v", filename, err.Error())
	}
	return cfg, nil
}

// LoadConfigString parses config content already read into memory.
func LoadConfigString(content []byte) (*Config, error) {
	return Unmarshal(content)
}

func (c *Config) validate() error {
	for _, m := range c.BranchMappings {
		if _, err := regexp.Compile(m.Name); err != nil {
			return fmt.Errorf("failed to parse '%s' as a regex", m.Name)
		}
	}
	for _, m := range c.TypeMaps {
		parts := strings.Fields(m)
		if len(parts) != 2 {
			return fmt.Errorf("failed to split '%s' on a space", m)
		}
		ftype, reStr := parts[0], parts[1]
		if !strings.Contains(ftype, "binary") && !strings.Contains(ftype, "text") {
			return fmt.Errorf("typemaps must contain either 'binary' or 'text' in first part: %s", m)
		}
		reStr = strings.ReplaceAll(reStr, "...", ".*") + "$"
		rePath, err := regexp.Compile(reStr)
		if err != nil {
			return fmt.Errorf("failed to parse '%s' as a regex", reStr)
		}
		c.ReTypeMaps = append(c.ReTypeMaps, RegexpTypeMap{Binary: strings.Contains(ftype, "binary"), RePath: rePath})
	}
	entries, err := ParseClientSpec(c.ClientSpecLines)
	if err != nil {
		return err
	}
	c.ClientSpec = entries
	return nil
}

// ParseClientSpec turns client-spec view lines ("//depot/foo/..." or
// "-//depot/bar/...") into entries sorted by descending prefix length, so the
// longest (most specific) prefix is matched first (§3 Client spec entry).
func ParseClientSpec(lines []string) ([]ClientSpecEntry, error) {
	entries := make([]ClientSpecEntry, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		exclude := strings.HasPrefix(line, "-")
		prefix := strings.TrimPrefix(line, "-")
		prefix = strings.TrimSuffix(prefix, "...")
		length := len(prefix)
		if exclude {
			length = -length
		}
		entries = append(entries, ClientSpecEntry{Prefix: prefix, Length: length})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return abs(entries[i].Length) > abs(entries[j].Length)
	})
	return entries, nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// MatchClientSpec returns whether depotPath is included by the client spec.
// The first (longest) prefix match wins. An empty spec includes everything;
// a non-empty spec with no match excludes the path (§4.3).
func MatchClientSpec(entries []ClientSpecEntry, depotPath string) bool {
	if len(entries) == 0 {
		return true
	}
	for _, e := range entries {
		if strings.HasPrefix(depotPath, e.Prefix) {
			return e.Length > 0
		}
	}
	return false
}

// ParseBranchList parses git-p4.branchList entries of the form "dest:source"
// into a dest->source map consumed by the branchmap package.
func ParseBranchList(entries []string) (map[string]string, error) {
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		parts := strings.SplitN(e, ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid branch_list entry %q, expected dest:source", e)
		}
		out[parts[0]] = parts[1]
	}
	return out, nil
}

// ConnectionSettings is the subset of git-p4.* keys the depot client adapter
// needs to build its command prefix (§4.1).
type ConnectionSettings struct {
	User     string
	Password string
	Port     string
	Host     string
	Client   string
	Cwd      string
}

// ConfigSource reads DVCS config keys, e.g. backed by `git config`. The DVCS
// driver exposes these lookups as ConfigGet/ConfigGetAll, so callers wrap it
// in a small adapter (driverConfigSource in main.go); config never imports
// the driver, avoiding a cycle.
type ConfigSource interface {
	Get(key string) (string, bool)
	GetAll(key string) []string
}

// LoadConnectionSettings resolves git-p4.user/password/port/host/client from
// a ConfigSource, defaulting any unset field to "".
func LoadConnectionSettings(src ConfigSource) ConnectionSettings {
	get := func(key string) string {
		if v, ok := src.Get(key); ok {
			return v
		}
		return ""
	}
	return ConnectionSettings{
		User:     get("git-p4.user"),
		Password: get("git-p4.password"),
		Port:     get("git-p4.port"),
		Host:     get("git-p4.host"),
		Client:   get("git-p4.client"),
	}
}

// BoolSetting reads a git-p4.* boolean key, defaulting to def if unset or
// unparsable.
func BoolSetting(src ConfigSource, key string, def bool) bool {
	v, ok := src.Get(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
