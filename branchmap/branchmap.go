// Package branchmap resolves configured branch mappings (regex-derived or
// explicit dest:source pairs) into the destination->source map the import
// pipeline's knownBranches state needs (§3 "Branch mapping").
package branchmap

import (
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rcowham/p4gitbridge/config"
)

// Resolve builds the destination->source map from config.BranchMappings
// (regex Name matched against candidates, mapped to Prefix as the source)
// and explicit config.BranchList dest:source entries, enforcing unique
// destinations and rejecting nested destinations (§3 invariants).
//
// candidates is the set of branch short-names discovered from the depot
// (or DVCS refs) that regex mappings are matched against; explicit
// branchList entries are taken as-is without needing a candidate match.
func Resolve(logger *logrus.Logger, mappings []config.BranchMapping, branchList map[string]string, candidates []string) map[string]string {
	known := map[string]string{}

	for _, m := range mappings {
		re, err := regexp.Compile(m.Name)
		if err != nil {
			logger.Warnf("branchmap: skipping invalid pattern %q: %v", m.Name, err)
			continue
		}
		for _, cand := range candidates {
			if re.MatchString(cand) {
				addMapping(logger, known, cand, m.Prefix)
			}
		}
	}

	// Explicit branchList entries are applied after regex mappings, in
	// sorted destination order. A destination already mapped by a pattern
	// to a different source keeps the pattern's mapping; the explicit entry
	// is dropped with a warning.
	destOrder := make([]string, 0, len(branchList))
	for dest := range branchList {
		destOrder = append(destOrder, dest)
	}
	sort.Strings(destOrder)
	for _, dest := range destOrder {
		addMapping(logger, known, dest, branchList[dest])
	}

	rejectNested(logger, known)
	return known
}

func addMapping(logger *logrus.Logger, known map[string]string, dest, source string) {
	if existing, ok := known[dest]; ok && existing != source {
		logger.Warnf("branchmap: destination %q already mapped to %q, ignoring duplicate mapping to %q", dest, existing, source)
		return
	}
	known[dest] = source
}

// rejectNested drops any destination that is a sub-path of another
// destination (§3 "nested mappings ... rejected with a warning and the
// conflicting entry dropped", §9 Open Question #4 "Branch prefix
// disjointness").
func rejectNested(logger *logrus.Logger, known map[string]string) {
	dests := make([]string, 0, len(known))
	for d := range known {
		dests = append(dests, d)
	}
	for _, a := range dests {
		for _, b := range dests {
			if a == b {
				continue
			}
			if strings.HasPrefix(a, b+"/") {
				logger.Warnf("branchmap: destination %q is nested under %q, dropping %q", a, b, a)
				delete(known, a)
			}
		}
	}
}
