// Package importpipeline drives the per-changelist import algorithm
// (§4.4): it partitions a changelist's files by branch, resolves branch
// and merge parents, and emits the corresponding fast-import commands. It
// holds the run's mutable state explicitly (knownBranches,
// createdBranches, changeListCommits, initialParents, markCounter) rather
// than accumulating it on a long-lived object shared with unrelated
// concerns (§9 "replace object-attribute accumulation with pure-function
// state passing" — each step below takes and returns the pieces of state
// it actually touches).
package importpipeline

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rcowham/p4gitbridge/config"
	"github.com/rcowham/p4gitbridge/depot"
	"github.com/rcowham/p4gitbridge/dvcs"
	"github.com/rcowham/p4gitbridge/fastimport"
	"github.com/rcowham/p4gitbridge/filereader"
	"github.com/rcowham/p4gitbridge/labelengine"
	"github.com/rcowham/p4gitbridge/provenance"
	"github.com/rcowham/p4gitbridge/usercache"
)

// Pipeline is the import run's state, built once per invocation and driven
// one changelist at a time via ImportChangelist.
type Pipeline struct {
	logger *logrus.Logger
	cfg    *config.Config
	client *depot.Client
	driver dvcs.Driver
	writer *fastimport.Writer
	users  *usercache.Cache
	reader *filereader.Reader
	labels *labelengine.Engine

	branchRefPrefix string // e.g. "refs/remotes/p4" or "refs/heads"
	depotPaths      []string

	knownBranches     map[string]string         // dest branch -> source branch
	createdBranches   map[string]bool           // dest branch -> has received a commit this run
	changeListCommits map[string]map[int]int    // branch -> change -> commit mark
	initialParents    map[string]string         // branch -> parent ref (mark or sha) for its first commit
	markCounter       int
	lastNoteMark      int // previous notes-ref commit's mark, 0 if none yet
}

// New builds a Pipeline. knownBranches is normally branchmap.Resolve's
// output; it may be empty when branch detection is off, in which case
// every changelist commits to cfg.DefaultBranch.
func New(
	logger *logrus.Logger,
	cfg *config.Config,
	client *depot.Client,
	driver dvcs.Driver,
	writer *fastimport.Writer,
	users *usercache.Cache,
	reader *filereader.Reader,
	labels *labelengine.Engine,
	branchRefPrefix string,
	depotPaths []string,
	knownBranches map[string]string,
) *Pipeline {
	if knownBranches == nil {
		knownBranches = map[string]string{}
	}
	return &Pipeline{
		logger:            logger,
		cfg:               cfg,
		client:            client,
		driver:            driver,
		writer:            writer,
		users:             users,
		reader:            reader,
		labels:            labels,
		branchRefPrefix:   branchRefPrefix,
		depotPaths:        depotPaths,
		knownBranches:     knownBranches,
		createdBranches:   map[string]bool{},
		changeListCommits: map[string]map[int]int{},
		initialParents:    map[string]string{},
		markCounter:       1,
	}
}

// branchRef renders a branch short-name to its full ref.
func (p *Pipeline) branchRef(branch string) string {
	return p.branchRefPrefix + "/" + branch
}

// nextMarks consumes the two marks a changelist's commit requires: the
// commit mark and its companion note mark (§4.4 "markCounter").
func (p *Pipeline) nextMarks() (commitMark, noteMark int) {
	commitMark = p.markCounter
	noteMark = p.markCounter + 1
	p.markCounter += 2
	return
}

// ImportChangelist runs the per-changelist algorithm (§4.4 steps 1-3) for
// one already-fetched depot.Change.
func (p *Pipeline) ImportChangelist(ch depot.Change) error {
	if !p.cfg.DetectBranches {
		return p.importSingleBranch(ch, p.cfg.DefaultBranch, p.depotPaths)
	}

	partitions := PartitionFiles(ch.Files, p.knownBranches)
	if len(partitions) == 0 {
		p.logger.Debugf("importpipeline: change %d touches no known branch, skipping", ch.Number)
		return nil
	}
	for _, branch := range sortedKeys(partitions) {
		if err := p.importBranchPartition(ch, branch, partitions[branch]); err != nil {
			return fmt.Errorf("importpipeline: change %d branch %s: %w", ch.Number, branch, err)
		}
	}
	return nil
}

// importSingleBranch is step 2: branch detection off, commit directly on
// cfg.DefaultBranch with depotPaths as the prefix set.
func (p *Pipeline) importSingleBranch(ch depot.Change, branch string, depotPaths []string) error {
	parent, hasParent := p.initialParents[branch]
	if p.createdBranches[branch] {
		parent, hasParent = p.branchRef(branch), true
	}

	commitMark, err := p.commitChangelist(ch, branch, ch.Files, parent, hasParent, "")
	if err != nil {
		return err
	}
	p.createdBranches[branch] = true

	return p.emitTags(ch, branch, commitMark, false)
}

// emitTags resolves any labels touching this changelist through the label
// engine and writes a fast-import tag record for each one that qualifies
// (§4.7 steps 2-3), pointing at the commit mark just written.
func (p *Pipeline) emitTags(ch depot.Change, branch string, commitMark int, branchDetection bool) error {
	if p.labels == nil {
		return nil
	}
	fromRef := fmt.Sprintf(":%d", commitMark)
	labelBranch := branch
	if !branchDetection {
		labelBranch = "" // single destination: TagsFor counts every label file as covered
	}
	for _, tag := range p.labels.TagsFor(ch.Number, labelBranch, branchDetection, ch.User) {
		if err := p.writer.WriteTag(tag.Name, fromRef, tag.NameEmail, ch.Time, "+0000", tag.Name); err != nil {
			return err
		}
	}
	return nil
}

// importBranchPartition is step 3: branch detection on, for one
// (branch, files) partition of a single changelist.
func (p *Pipeline) importBranchPartition(ch depot.Change, branch string, files []depot.FileAction) error {
	var parentRef string
	var hasParent bool

	if !p.createdBranches[branch] {
		if err := p.establishBranchPoint(ch, branch); err != nil {
			return err
		}
		// Step 3e: the new branch's first commit starts from a clean tree;
		// the recorded lineage parent only colours history, it is never
		// the commit's own `from`.
		parentRef, hasParent = "", false
	} else {
		parentRef, hasParent = p.branchRef(branch), true
	}

	mergeParent := ""
	if IsMergeCommit(files) {
		if ref, ok := p.resolveMergeParent(branch, files); ok {
			mergeParent = ref
		}
	}

	commitMark, err := p.commitChangelist(ch, branch, files, parentRef, hasParent, mergeParent)
	if err != nil {
		return err
	}
	p.createdBranches[branch] = true
	return p.emitTags(ch, branch, commitMark, true)
}

// establishBranchPoint implements step 3's sub-steps a-d: look up the
// source branch, find the most recent source changelist before this one,
// checkpoint, and bisect the source branch's history for the matching
// commit, recording it as the new branch's initialParent.
func (p *Pipeline) establishBranchPoint(ch depot.Change, branch string) error {
	source, ok := p.knownBranches[branch]
	if !ok || source == "" {
		p.logger.Debugf("importpipeline: branch %s has no known source, starting with no lineage parent", branch)
		return nil
	}

	sourceDepotPath := joinDepotPrefix(p.depotPaths, source)
	sourceChange, found, err := depot.LatestChangeAtOrBefore(p.client, sourceDepotPath, ch.Number-1)
	if err != nil {
		return err
	}
	if !found {
		p.logger.Debugf("importpipeline: no prior changelist on source branch %s before %d", source, ch.Number)
		return nil
	}

	if err := p.writer.WriteCheckpoint(); err != nil {
		return err
	}

	if oid, ok := p.lookupCommitForChange(source, sourceChange); ok {
		p.initialParents[branch] = oid
	}
	return nil
}

// lookupCommitForChange finds the commit on branch's ref whose provenance
// note carries targetChange, preferring a mark produced earlier in this
// same run before falling back to a bisect of the existing ref (§4.4 step
// 3c, reused by merge-parent resolution).
func (p *Pipeline) lookupCommitForChange(branch string, targetChange int) (string, bool) {
	if marks, ok := p.changeListCommits[branch]; ok {
		if mark, ok := marks[targetChange]; ok {
			return fmt.Sprintf(":%d", mark), true
		}
	}
	ref := p.branchRef(branch)
	if !p.driver.BranchExists(ref) {
		return "", false
	}
	return provenance.BisectForChange(p.driver, ref, targetChange)
}

// resolveMergeParent implements getMergeParentCommit: find the single
// source branch (if any) whose integration into this changelist carries
// the highest source changelist, then resolve it to a commit-ish.
func (p *Pipeline) resolveMergeParent(branch string, files []depot.FileAction) (string, bool) {
	bestChange := map[string]int{}
	for _, f := range files {
		if !f.IsIntegration() || f.FromFile == "" {
			continue
		}
		sourceBranch := p.branchForDepotPath(f.FromFile)
		if sourceBranch == "" || sourceBranch == branch {
			continue
		}
		change := f.FromRev
		if entries, err := depot.Filelog(p.client, f.FromFile, f.FromRev, 2); err == nil && len(entries) > 0 {
			change = entries[0].Change
		}
		if change > bestChange[sourceBranch] {
			bestChange[sourceBranch] = change
		}
	}
	if len(bestChange) == 0 {
		return "", false
	}
	if len(bestChange) > 1 {
		p.logger.Errorf("importpipeline: conflicting merge source branches for %s: %v", branch, bestChange)
	}

	var winner string
	var winnerChange int
	for b, c := range bestChange {
		if c > winnerChange || winner == "" {
			winner, winnerChange = b, c
		}
	}
	return p.lookupCommitForChange(winner, winnerChange)
}

// branchForDepotPath finds the known destination branch whose source
// prefix matches a depot path's own branch segment, used to name the
// source side of an integration.
func (p *Pipeline) branchForDepotPath(depotPath string) string {
	for dest, source := range p.knownBranches {
		if strings.HasPrefix(depotPath, joinDepotPrefix(p.depotPaths, source)) {
			return dest
		}
	}
	return ""
}

func joinDepotPrefix(depotPaths []string, branch string) string {
	if len(depotPaths) == 0 {
		return branch
	}
	base := strings.TrimSuffix(depotPaths[0], "...")
	return strings.TrimSuffix(base, "/") + "/" + branch
}

func sortedKeys(m map[string][]depot.FileAction) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}
