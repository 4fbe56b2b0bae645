// Package labelengine implements the label/tag engine (§4.7): it discovers
// depot labels touching the configured import paths, resolves each one to
// a revision map and the newest changelist it touches, and — once that
// changelist has been committed — decides whether the label's file set is
// fully covered by the committed branch closely enough to emit a fast-import
// annotated tag.
package labelengine

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rcowham/p4gitbridge/depot"
)

// Label is a discovered depot label, resolved to the revisions it names
// under the configured import paths (§3 "Label").
type Label struct {
	Name         string
	Owner        string
	Description  string
	View         []string
	Revisions    map[string]int // relative path (depot root stripped) -> revision
	NewestChange int
}

// TreeFilter transforms a batch of depot paths the way the filter
// harness's tree filter does (§4.6): same-length output, empty entries
// drop the file, non-empty entries rename it. Discover passes nil when no
// tree filter is configured.
type TreeFilter func(paths []string) ([]string, error)

// Discover lists every label touching depotPaths, resolves its view and
// file set, applies treeFilter to the resulting paths, and indexes the
// result by the newest changelist the label touches (§4.7 "Index labels by
// that changelist").
func Discover(logger *logrus.Logger, client *depot.Client, depotPaths []string, depotRoot string, treeFilter TreeFilter) (map[int][]Label, error) {
	seen := map[string]bool{}
	var specs []depot.LabelSpec
	for _, p := range depotPaths {
		found, err := depot.Labels(client, p)
		if err != nil {
			return nil, fmt.Errorf("labelengine: listing labels for %s: %w", p, err)
		}
		for _, l := range found {
			if seen[l.Name] {
				continue
			}
			seen[l.Name] = true
			specs = append(specs, l)
		}
	}

	byChange := map[int][]Label{}
	for _, spec := range specs {
		label, ok, err := resolveLabel(logger, client, depotPaths, depotRoot, treeFilter, spec)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		byChange[label.NewestChange] = append(byChange[label.NewestChange], label)
	}
	return byChange, nil
}

func resolveLabel(logger *logrus.Logger, client *depot.Client, depotPaths []string, depotRoot string, treeFilter TreeFilter, spec depot.LabelSpec) (Label, bool, error) {
	view, err := depot.LabelView(client, spec.Name)
	if err != nil {
		logger.Warnf("labelengine: label %s: failed to read view: %v", spec.Name, err)
		return Label{}, false, nil
	}
	files, err := depot.LabelFiles(client, depotPaths, spec.Name)
	if err != nil {
		logger.Warnf("labelengine: label %s: failed to list files: %v", spec.Name, err)
		return Label{}, false, nil
	}
	if len(files) == 0 {
		return Label{}, false, nil
	}

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.DepotPath
	}
	if treeFilter != nil {
		filtered, err := treeFilter(paths)
		if err != nil {
			return Label{}, false, fmt.Errorf("labelengine: label %s: tree filter: %w", spec.Name, err)
		}
		paths = filtered
	}

	revisions := map[string]int{}
	var newest int
	for i, f := range files {
		target := paths[i]
		if target == "" {
			continue // dropped by the tree filter
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(target, depotRoot), "/")
		revisions[rel] = f.Rev
		if f.Change > newest {
			newest = f.Change
		}
	}
	if len(revisions) == 0 {
		return Label{}, false, nil
	}

	return Label{
		Name:         spec.Name,
		Owner:        spec.Owner,
		Description:  spec.Description,
		View:         view,
		Revisions:    revisions,
		NewestChange: newest,
	}, true, nil
}

// UserLookup resolves a depot user to a "Name <email>" string and reports
// whether the lookup actually found a cached user, as opposed to returning
// the synthetic "<user> <user@b>" fallback. usercache.Cache.LookupOK
// satisfies this.
type UserLookup func(user string) (nameEmail string, found bool)

// Engine decides, per committed changelist, which of its labels (if any)
// qualify for a tag and renders the tag record.
type Engine struct {
	logger   *logrus.Logger
	byChange map[int][]Label
	fuzzy    bool
	users    UserLookup
}

// NewEngine builds an Engine over labels discovered by Discover. fuzzyTags
// mirrors git-p4.branchList-adjacent config key git-p4.fuzzyTags (§4.7 step
// 2 "or fuzzyTags is enabled").
func NewEngine(logger *logrus.Logger, byChange map[int][]Label, fuzzyTags bool, users UserLookup) *Engine {
	if byChange == nil {
		byChange = map[int][]Label{}
	}
	return &Engine{logger: logger, byChange: byChange, fuzzy: fuzzyTags, users: users}
}

// Tag is one qualifying label ready to be emitted as a fast-import tag
// record.
type Tag struct {
	Name     string // fast-import tag name: tag_<branch>_<label> or tag_<label>
	NameEmail string
}

// TagsFor evaluates every label indexed under change against the branch
// that change was just committed to, per §4.7 steps 1-3. branch is "" when
// branch detection is off, in which case every label's revisions trivially
// match (there is only one destination). authorUser is the changelist's
// author, used for the deliberately-preserved tagger-lookup quirk noted in
// §9 open question 2: the owner lookup actually keys off the author's user
// id, not the label's own owner field, and the label owner's name is only
// used when that lookup misses.
func (e *Engine) TagsFor(change int, branch string, branchDetection bool, authorUser string) []Tag {
	labels := e.byChange[change]
	if len(labels) == 0 {
		return nil
	}
	var out []Tag
	for _, label := range labels {
		total := len(label.Revisions)
		matched := 0
		for path := range label.Revisions {
			if branch == "" || pathInBranch(path, branch) {
				matched++
			}
		}
		if matched != total {
			if !e.fuzzy {
				e.logger.Warnf("labelengine: label %s mismatch at change %d: %d/%d files in branch %q, not tagging", label.Name, change, matched, total, branch)
				continue
			}
			e.logger.Debugf("labelengine: label %s partial match (%d/%d) at change %d, tagging anyway (fuzzyTags)", label.Name, matched, total, change)
		}

		name := "tag_" + label.Name
		if branchDetection {
			name = "tag_" + branch + "_" + label.Name
		}
		out = append(out, Tag{Name: name, NameEmail: e.taggerFor(label, authorUser)})
	}
	return out
}

// taggerFor is §9 open question 2's preserved quirk: the lookup key is the
// change's author, not the label's owner, so a successful lookup can name
// someone other than the label's actual owner. Only a cache miss falls
// back to the label's own owner field.
func (e *Engine) taggerFor(label Label, authorUser string) string {
	if e.users != nil {
		if nameEmail, found := e.users(authorUser); found {
			return nameEmail
		}
	}
	return fmt.Sprintf("%s <%s@b>", label.Owner, label.Owner)
}

// pathInBranch reports whether a depot-root-relative path falls under
// branch, guarded by a "/" boundary so a branch named "foo/4.2" never
// matches a sibling "foo/4.2-beta" (§4.4's same sibling-prefix guard,
// reused here for the label intersection in §4.7 step 1).
func pathInBranch(path, branch string) bool {
	if path == branch {
		return true
	}
	return strings.HasPrefix(path, branch+"/")
}
