// p4gitbridge is the top-level command dispatcher for the depot<->DVCS
// bridge: it loads the project config, builds the depot and DVCS
// adapters, and drives the import pipeline or the submit engine for
// whichever subcommand was invoked (§6 "Commands and exits").
package main

import (
	"fmt"
	"io"
	_ "net/http/pprof" // profiling only
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/pkg/profile"
	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/perforce/p4prometheus/version"

	"github.com/rcowham/p4gitbridge/branchmap"
	"github.com/rcowham/p4gitbridge/config"
	"github.com/rcowham/p4gitbridge/depot"
	"github.com/rcowham/p4gitbridge/dvcs"
	"github.com/rcowham/p4gitbridge/fastimport"
	"github.com/rcowham/p4gitbridge/filereader"
	"github.com/rcowham/p4gitbridge/filter"
	"github.com/rcowham/p4gitbridge/importpipeline"
	"github.com/rcowham/p4gitbridge/labelengine"
	"github.com/rcowham/p4gitbridge/provenance"
	"github.com/rcowham/p4gitbridge/submit"
	"github.com/rcowham/p4gitbridge/usercache"
)

// exitConfig is the exit code for a configuration failure (§6 "128 for
// configuration failures such as missing upstream").
const exitConfig = 128

// exitFatal is the exit code for any other unrecovered error.
const exitFatal = 1

// driverConfigSource adapts a dvcs.Driver's ConfigGet/ConfigGetAll methods
// to config.ConfigSource, so config never has to import dvcs.
type driverConfigSource struct{ driver dvcs.Driver }

func (d driverConfigSource) Get(key string) (string, bool) { return d.driver.ConfigGet(key) }
func (d driverConfigSource) GetAll(key string) []string     { return d.driver.ConfigGetAll(key) }

func main() {
	app := kingpin.New("p4gitbridge", "Bidirectional bridge between a Perforce-style depot and a git-style DVCS.")
	app.Version(version.Print("p4gitbridge"))
	app.HelpFlag.Short('h')

	configFile := app.Flag("config", "Project config file.").Default("p4gitbridge.yaml").Short('c').String()
	verbose := app.Flag("verbose", "Enable debug logging.").Short('v').Bool()
	gitDir := app.Flag("git-dir", "Path to the DVCS working tree.").Default(".").String()
	p4exe := app.Flag("p4", "Depot CLI executable.").Default("p4").String()
	gitexe := app.Flag("git", "DVCS driver executable.").Default("git").String()
	cpuProfile := app.Flag("cpuprofile", "Write a CPU profile for this run.").Bool()

	cloneCmd := app.Command("clone", "Import depot paths into a new DVCS repository.")
	clonePaths := cloneCmd.Arg("depot-path", "Depot path(s) to import, e.g. //depot/main/...").Required().Strings()
	cloneBranch := cloneCmd.Flag("branch", "Destination branch short-name for a single-path clone.").Default(config.DefaultBranch).String()

	syncCmd := app.Command("sync", "Import changelists submitted since the last import.")

	submitCmd := app.Command("submit", "Submit pending DVCS commits to the depot as changelists.")
	commitCmd := app.Command("commit", "Alias for submit.")
	shelveCmd := app.Command("shelve", "Shelve pending DVCS commits instead of submitting them.")
	submitUpstream := submitCmd.Flag("upstream", "Upstream ref to submit commits from (exclusive).").String()
	shelveUpstream := shelveCmd.Flag("upstream", "Upstream ref to shelve commits from (exclusive).").String()
	commitUpstream := commitCmd.Flag("upstream", "Upstream ref to submit commits from (exclusive).").String()

	branchesCmd := app.Command("branches", "List known import branches and their last-imported changelist.")

	rollbackCmd := app.Command("rollback", "Reset an import branch back to its last-known-good provenance note.")
	rollbackBranch := rollbackCmd.Arg("branch", "Import branch short-name to roll back.").Required().String()
	rollbackTo := rollbackCmd.Arg("change", "Changelist number to roll back to.").Required().Int()

	rebaseCmd := app.Command("rebase", "Sync, then report the import branch the current branch is based on.")

	debugCmd := app.Command("debug", "Print import-state diagnostics: known branches, provenance heads, config.")

	cmdName := kingpin.MustParse(app.Parse(os.Args[1:]))

	if *cpuProfile {
		defer profile.Start(profile.CPUProfile).Stop()
	}

	logger := logrus.New()
	logger.Level = logrus.InfoLevel
	if *verbose {
		logger.Level = logrus.DebugLevel
	}
	logger.Infof("%v", version.Print("p4gitbridge"))

	cfg, err := config.LoadConfigFile(*configFile)
	if err != nil {
		logger.Errorf("config: %v", err)
		os.Exit(exitConfig)
	}

	driver := dvcs.NewGitDriver(logger, *gitDir, *gitexe)
	settings := config.LoadConnectionSettings(driverConfigSource{driver})
	client := depot.NewClient(logger, settings, *gitDir, *p4exe)
	cfg.FuzzyTags = config.BoolSetting(driverConfigSource{driver}, "git-p4.fuzzyTags", cfg.FuzzyTags)
	cfg.DetectBranches = config.BoolSetting(driverConfigSource{driver}, "git-p4.detectBranches", cfg.DetectBranches)
	if branchList := driver.ConfigGetAll("git-p4.branchList"); len(branchList) > 0 {
		cfg.BranchList = branchList
	}

	branchRefPrefix := "refs/heads"
	if cfg.ImportIntoRemotes {
		branchRefPrefix = "refs/remotes/p4"
	}

	switch cmdName {
	case cloneCmd.FullCommand():
		err = runImport(logger, cfg, client, driver, branchRefPrefix, *clonePaths, *cloneBranch, true)
	case syncCmd.FullCommand():
		err = runImport(logger, cfg, client, driver, branchRefPrefix, nil, cfg.DefaultBranch, false)
	case submitCmd.FullCommand():
		err = runSubmit(logger, cfg, client, driver, *gitDir, branchRefPrefix, *submitUpstream, false)
	case commitCmd.FullCommand():
		err = runSubmit(logger, cfg, client, driver, *gitDir, branchRefPrefix, *commitUpstream, false)
	case shelveCmd.FullCommand():
		err = runSubmit(logger, cfg, client, driver, *gitDir, branchRefPrefix, *shelveUpstream, true)
	case branchesCmd.FullCommand():
		err = runBranches(logger, driver, branchRefPrefix)
	case rollbackCmd.FullCommand():
		err = runRollback(logger, driver, branchRefPrefix, *rollbackBranch, *rollbackTo)
	case rebaseCmd.FullCommand():
		err = runRebase(logger, cfg, client, driver, branchRefPrefix)
	case debugCmd.FullCommand():
		err = runDebug(logger, cfg, driver, branchRefPrefix)
	}

	if err != nil {
		logger.Error(err)
		os.Exit(exitFatal)
	}
}

// userCacheFilename resolves the user cache file under $HOME, falling
// back to cfg.UserCacheFile verbatim if it is already absolute.
func userCacheFilename(cfg *config.Config) string {
	if filepath.IsAbs(cfg.UserCacheFile) {
		return cfg.UserCacheFile
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return cfg.UserCacheFile
	}
	return filepath.Join(home, cfg.UserCacheFile)
}

// buildFilterHarness constructs the optional filter harness from the
// project config, or nil when none of the three hooks are configured.
func buildFilterHarness(logger *logrus.Logger, cfg *config.Config) (*filter.Harness, string, error) {
	if cfg.Filters.Tree == "" && cfg.Filters.Message == "" && cfg.Filters.Content == "" {
		return nil, "", nil
	}
	scratchDir := ""
	if cfg.Filters.Content != "" {
		dir, err := filter.NewScratchDir("")
		if err != nil {
			return nil, "", fmt.Errorf("filter: creating scratch dir: %w", err)
		}
		scratchDir = dir
	}
	h := filter.New(logger, cfg.Filters.Tree, cfg.Filters.Message, cfg.Filters.Content, scratchDir, cfg.ErrorLogPath, 4)
	return h, scratchDir, nil
}

// startFastImport launches `git fast-import` against gitDir, wired to the
// fast-import Writer's stdin (§6 "Fast-import protocol: emitted as a byte
// stream on the child's stdin").
func startFastImport(logger *logrus.Logger, gitExe, gitDir string) (*exec.Cmd, io.WriteCloser, error) {
	cmd := exec.Command(gitExe, "fast-import", "--quiet", "--force")
	cmd.Dir = gitDir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, err
	}
	logger.Debugf("main: started %s fast-import in %s", gitExe, gitDir)
	return cmd, stdin, nil
}

// runImport drives §4.4's per-changelist algorithm over every changelist
// from the resume point (or revision 0 for a fresh clone) through HEAD,
// emitting a fast-import stream piped directly into a `git fast-import`
// child process.
func runImport(logger *logrus.Logger, cfg *config.Config, client *depot.Client, driver dvcs.Driver, branchRefPrefix string, depotPaths []string, branch string, fresh bool) error {
	if len(depotPaths) == 0 {
		_, paths := provenance.CalculateLastImportedChangelist(logger, driver, branchRefPrefix)
		if len(paths) == 0 {
			return fmt.Errorf("runImport: no prior import found; pass depot paths to clone first")
		}
		depotPaths = paths
	}

	users := usercache.New(logger, userCacheFilename(cfg))
	if err := users.Load(); err != nil {
		return fmt.Errorf("runImport: loading user cache: %w", err)
	}
	if err := users.RefreshFromDepot(client); err != nil {
		logger.Warnf("runImport: could not refresh user cache from depot: %v", err)
	}

	harness, scratchDir, err := buildFilterHarness(logger, cfg)
	if err != nil {
		return err
	}
	defer filter.CleanupScratchDir(scratchDir)

	branchList := mustParseBranchList(cfg.BranchList)
	candidates := make([]string, 0, len(branchList))
	for dest := range branchList {
		candidates = append(candidates, dest)
	}
	knownBranches := branchmap.Resolve(logger, cfg.BranchMappings, branchList, candidates)

	depotRoot := ""
	if len(depotPaths) > 0 {
		depotRoot = trimDots(depotPaths[0])
	}
	var treeFilter labelengine.TreeFilter
	if harness != nil {
		treeFilter = harness.RunTreeFilter
	}
	labelsByChange, err := labelengine.Discover(logger, client, depotPaths, depotRoot, treeFilter)
	if err != nil {
		logger.Warnf("runImport: label discovery failed, continuing without tags: %v", err)
		labelsByChange = nil
	}
	labels := labelengine.NewEngine(logger, labelsByChange, cfg.FuzzyTags, users.LookupOK)

	reader := filereader.NewWithCharset(logger, client, cfg.ClientSpec, cfg.LegacyCharset, 8)

	gitExe := "git"
	cmd, stdin, err := startFastImport(logger, gitExe, ".")
	if err != nil {
		return fmt.Errorf("runImport: starting fast-import: %w", err)
	}
	w := &fastimport.Writer{}
	w.SetWriter(stdin)

	changes, err := depot.Changes(client, depotPaths)
	if err != nil {
		stdin.Close()
		return fmt.Errorf("runImport: listing changes: %w", err)
	}
	sort.Ints(changes) // depot.Changes returns newest-first; §4.4 replays oldest-first

	if !fresh {
		bp := provenance.FindUpstreamBranchPoint(logger, driver, branchRefPrefix, branchRefPrefix+"/"+branch)
		filtered := changes[:0]
		for _, c := range changes {
			if c > bp.Settings.Change {
				filtered = append(filtered, c)
			}
		}
		changes = filtered
	}

	pipeline := importpipeline.New(logger, cfg, client, driver, w, users, reader, labels,
		branchRefPrefix, depotPaths, knownBranches)

	if fresh && len(changes) == 0 {
		if err := pipeline.ImportHeadRevision("now", "unknown"); err != nil {
			stdin.Close()
			return err
		}
	}
	for _, number := range changes {
		ch, err := depot.Describe(client, number)
		if err != nil {
			stdin.Close()
			return fmt.Errorf("runImport: describe %d: %w", number, err)
		}
		if harness != nil {
			if msg, err := harness.RunMessageFilter(ch.Description); err == nil {
				ch.Description = msg
			} else {
				logger.Warnf("runImport: message filter failed for change %d: %v", number, err)
			}
		}
		if err := pipeline.ImportChangelist(ch); err != nil {
			stdin.Close()
			return fmt.Errorf("runImport: change %d: %w", number, err)
		}
	}

	if err := stdin.Close(); err != nil {
		return err
	}
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("runImport: git fast-import failed: %w", err)
	}
	logger.Infof("runImport: imported %d changelist(s)", len(changes))
	return nil
}

func mustParseBranchList(entries []string) map[string]string {
	m, err := config.ParseBranchList(entries)
	if err != nil {
		return map[string]string{}
	}
	return m
}

func trimDots(depotPath string) string {
	for len(depotPath) > 0 && (depotPath[len(depotPath)-1] == '.' || depotPath[len(depotPath)-1] == '/') {
		depotPath = depotPath[:len(depotPath)-1]
	}
	return depotPath
}

// runSubmit drives §4.5's submit/shelve state machine over every commit
// between the resolved upstream branch point and HEAD, oldest first.
func runSubmit(logger *logrus.Logger, cfg *config.Config, client *depot.Client, driver dvcs.Driver, gitDir, branchRefPrefix, upstream string, shelve bool) error {
	if !cfg.AllowSubmit {
		return fmt.Errorf("runSubmit: git-p4.allowSubmit is false")
	}
	head, ok := driver.RevParse("HEAD")
	if !ok {
		return fmt.Errorf("runSubmit: HEAD does not resolve")
	}
	if upstream == "" {
		bp := provenance.FindUpstreamBranchPoint(logger, driver, branchRefPrefix, head)
		if bp.Ref == "" {
			return fmt.Errorf("runSubmit: could not find upstream branch point for HEAD")
		}
		upstream = bp.Ref
	}

	commits, err := commitsBetween(driver, upstream, head)
	if err != nil {
		return err
	}
	if len(commits) == 0 {
		logger.Infof("runSubmit: nothing to submit, HEAD matches %s", upstream)
		return nil
	}

	depotPath := depotPathForUpstream(driver, upstream)
	engine := submit.New(logger, client, driver, gitDir, true, nil, nil, nil)

	for _, commit := range commits {
		message, err := commitMessage(driver, commit)
		if err != nil {
			return err
		}
		var changelist int
		if shelve {
			changelist, err = engine.Shelve(commit, depotPath, message, 0)
		} else {
			changelist, err = engine.Submit(commit, depotPath, message)
		}
		if err != nil {
			return fmt.Errorf("runSubmit: commit %s: %w", commit, err)
		}
		logger.Infof("runSubmit: commit %s -> change %d", commit, changelist)
	}
	return nil
}

// commitsBetween lists commits reachable from head but not from upstream,
// oldest first, the order §4.5 replays them onto the depot in.
func commitsBetween(driver dvcs.Driver, upstream, head string) ([]string, error) {
	all, err := driver.RevList(head, 0)
	if err != nil {
		return nil, fmt.Errorf("commitsBetween: rev-list %s: %w", head, err)
	}
	upstreamOid, _ := driver.RevParse(upstream)
	var out []string
	for _, oid := range all {
		if oid == upstreamOid {
			break
		}
		out = append(out, oid)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func commitMessage(driver dvcs.Driver, commit string) (string, error) {
	raw, err := driver.CatFile(commit)
	if err != nil {
		return "", err
	}
	return extractLogMessage(string(raw)), nil
}

// extractLogMessage strips a raw commit object's header down to its
// message body (the blank line separating header fields from the
// message), grounded on git-p4.py's extractLogMessageFromGitCommit.
func extractLogMessage(raw string) string {
	for i := 0; i < len(raw)-1; i++ {
		if raw[i] == '\n' && raw[i+1] == '\n' {
			return raw[i+2:]
		}
	}
	return raw
}

func depotPathForUpstream(driver dvcs.Driver, upstream string) string {
	oid, ok := driver.RevParse(upstream)
	if !ok {
		return ""
	}
	text, ok := driver.NotesShow(provenance.NotesRef, oid)
	if !ok {
		return ""
	}
	settings := provenance.ParseNote(text)
	if len(settings.DepotPaths) == 0 {
		return ""
	}
	return settings.DepotPaths[0]
}

func runBranches(logger *logrus.Logger, driver dvcs.Driver, branchRefPrefix string) error {
	refs, err := driver.ListRefs(branchRefPrefix)
	if err != nil {
		return err
	}
	sort.Strings(refs)
	for _, ref := range refs {
		oid, ok := driver.RevParse(ref)
		if !ok {
			continue
		}
		text, ok := driver.NotesShow(provenance.NotesRef, oid)
		change := 0
		if ok {
			change = provenance.ParseNote(text).Change
		}
		fmt.Printf("%s\tchange %d\n", ref, change)
	}
	return nil
}

// runRollback resets an import branch's ref back to the commit whose
// provenance note carries toChange, discarding anything imported after it
// (recovery path for a depot-side changelist rollback, §6 "rollback").
func runRollback(logger *logrus.Logger, driver dvcs.Driver, branchRefPrefix, branch string, toChange int) error {
	ref := branchRefPrefix + "/" + branch
	oid, ok := provenance.BisectForChange(driver, ref, toChange)
	if !ok {
		return fmt.Errorf("runRollback: no commit on %s carries change %d", ref, toChange)
	}
	if err := driver.UpdateRef(ref, oid); err != nil {
		return err
	}
	logger.Infof("runRollback: %s now at %s (change %d)", ref, oid, toChange)
	return nil
}

// runRebase syncs new changelists, then resolves the import branch HEAD is
// based on and logs it (§6 "rebase"). It does not run the rebase itself:
// no rebase command is issued, through the DVCS driver or otherwise.
func runRebase(logger *logrus.Logger, cfg *config.Config, client *depot.Client, driver dvcs.Driver, branchRefPrefix string) error {
	if err := driver.FetchOrigin(); err != nil {
		logger.Warnf("runRebase: fetch origin failed, continuing: %v", err)
	}
	if err := runImport(logger, cfg, client, driver, branchRefPrefix, nil, cfg.DefaultBranch, false); err != nil {
		return err
	}
	head, ok := driver.RevParse("HEAD")
	if !ok {
		return fmt.Errorf("runRebase: HEAD does not resolve")
	}
	bp := provenance.FindUpstreamBranchPoint(logger, driver, branchRefPrefix, head)
	if bp.Ref == "" {
		return fmt.Errorf("runRebase: could not find upstream branch point for HEAD")
	}
	logger.Infof("runRebase: synced; rebase onto %s is left to the DVCS driver's own rebase command", bp.Ref)
	return nil
}

// runDebug prints the diagnostics §6's "debug" command promises: resolved
// config, known import branches, and each branch's last-imported change.
func runDebug(logger *logrus.Logger, cfg *config.Config, driver dvcs.Driver, branchRefPrefix string) error {
	fmt.Printf("default branch:     %s\n", cfg.DefaultBranch)
	fmt.Printf("detect branches:    %v\n", cfg.DetectBranches)
	fmt.Printf("import into remotes: %v\n", cfg.ImportIntoRemotes)
	fmt.Printf("fuzzy tags:         %v\n", cfg.FuzzyTags)
	maxChange, paths := provenance.CalculateLastImportedChangelist(logger, driver, branchRefPrefix)
	fmt.Printf("last imported change: %d\n", maxChange)
	fmt.Printf("common depot paths:  %v\n", paths)
	return runBranches(logger, driver, branchRefPrefix)
}
