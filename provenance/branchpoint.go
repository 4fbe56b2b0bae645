package provenance

import (
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rcowham/p4gitbridge/dvcs"
)

// maxAncestorWalk bounds the first-parent walk in FindUpstreamBranchPoint,
// matching extractLastSettingsFromNotes's `while parent < 65535` cap.
const maxAncestorWalk = 65535

// BranchPoint is the result of FindUpstreamBranchPoint: the matching import
// branch ref (empty if none matched) plus the settings found at head.
type BranchPoint struct {
	Ref      string
	Settings Settings
}

// extractLastSettingsFromNotes walks a commit's first-parent chain looking
// for the nearest ancestor with a depot-paths-bearing note, capped at
// maxAncestorWalk ancestors (§4.2 step 3).
func extractLastSettingsFromNotes(driver dvcs.Driver, head string) Settings {
	var last Settings
	for parent := 0; parent < maxAncestorWalk; parent++ {
		ref := head
		if parent > 0 {
			ref = head + "~" + strconv.Itoa(parent)
		}
		oid, ok := driver.RevParse(ref)
		if !ok {
			break
		}
		text, ok := driver.NotesShow(NotesRef, oid)
		if !ok {
			continue
		}
		settings := ParseNote(text)
		last = settings
		if settings.HasDepotPaths() {
			return settings
		}
	}
	return last
}

// FindUpstreamBranchPoint enumerates import branches under branchPrefix,
// indexes them by their tip's joined depot-paths, and matches head's own
// settings against that index (§4.2 steps 1-3).
func FindUpstreamBranchPoint(logger *logrus.Logger, driver dvcs.Driver, branchPrefix string, head string) BranchPoint {
	refs, err := driver.ListRefs(branchPrefix)
	if err != nil {
		logger.Warnf("provenance: failed to list import branches under %s: %v", branchPrefix, err)
		refs = nil
	}

	branchByDepotPath := map[string]string{}
	for _, ref := range refs {
		if strings.HasSuffix(ref, "/HEAD") {
			continue
		}
		oid, ok := driver.RevParse(ref)
		if !ok {
			continue
		}
		settings := extractLastSettingsFromNotes(driver, oid)
		if !settings.HasDepotPaths() {
			continue
		}
		key := settings.JoinedDepotPaths()
		if existing, ok := branchByDepotPath[key]; ok {
			logger.Warnf("provenance: depot-path %s already covered by branch %s", key, existing)
		}
		branchByDepotPath[key] = ref
	}

	headOid, ok := driver.RevParse(head)
	if !ok {
		return BranchPoint{}
	}
	settings := extractLastSettingsFromNotes(driver, headOid)
	if settings.HasDepotPaths() {
		if ref, ok := branchByDepotPath[settings.JoinedDepotPaths()]; ok {
			return BranchPoint{Ref: ref, Settings: settings}
		}
	}
	return BranchPoint{Settings: settings}
}

// CalculateLastImportedChangelist folds over every import branch's tip
// settings, taking the maximum change and the elementwise intersection of
// all observed depot-paths lists reduced to their common prefix sequence
// (§4.2 "calculateLastImportedChangelist").
func CalculateLastImportedChangelist(logger *logrus.Logger, driver dvcs.Driver, branchPrefix string) (maxChange int, commonPaths []string) {
	refs, err := driver.ListRefs(branchPrefix)
	if err != nil {
		logger.Warnf("provenance: failed to list import branches under %s: %v", branchPrefix, err)
		return 0, nil
	}

	var allPaths [][]string
	for _, ref := range refs {
		if strings.HasSuffix(ref, "/HEAD") {
			continue
		}
		oid, ok := driver.RevParse(ref)
		if !ok {
			continue
		}
		settings := extractLastSettingsFromNotes(driver, oid)
		if settings.Change > maxChange {
			maxChange = settings.Change
		}
		if settings.HasDepotPaths() {
			allPaths = append(allPaths, settings.DepotPaths)
		}
	}
	return maxChange, intersectPrefix(allPaths)
}

// BisectForChange performs a straight bisect (§4.4 step 3c "straight
// bisect using rev-list") over every commit RevList reports for ref,
// reversed to oldest first (commits reached through merge parents are
// included, not only the first-parent chain), to find the
// commit whose provenance note carries targetChange, relying on the
// invariant that commits on an import branch are created in increasing
// changelist order.
func BisectForChange(driver dvcs.Driver, ref string, targetChange int) (string, bool) {
	oids, err := driver.RevList(ref, 0)
	if err != nil || len(oids) == 0 {
		return "", false
	}
	for i, j := 0, len(oids)-1; i < j; i, j = i+1, j-1 {
		oids[i], oids[j] = oids[j], oids[i]
	}

	lo, hi := 0, len(oids)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		text, ok := driver.NotesShow(NotesRef, oids[mid])
		if !ok {
			hi = mid - 1
			continue
		}
		settings := ParseNote(text)
		switch {
		case settings.Change == targetChange:
			return oids[mid], true
		case settings.Change < targetChange:
			lo = mid + 1
		default:
			hi = mid - 1
		}
	}
	return "", false
}

// intersectPrefix reduces a set of depot-paths lists to their common
// leading-element prefix sequence.
func intersectPrefix(lists [][]string) []string {
	if len(lists) == 0 {
		return nil
	}
	shortest := lists[0]
	for _, l := range lists[1:] {
		if len(l) < len(shortest) {
			shortest = l
		}
	}
	var common []string
	for i := range shortest {
		val := lists[0][i]
		match := true
		for _, l := range lists {
			if l[i] != val {
				match = false
				break
			}
		}
		if !match {
			break
		}
		common = append(common, val)
	}
	return common
}
