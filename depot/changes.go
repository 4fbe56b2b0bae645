package depot

import (
	"fmt"
	"strconv"
	"strings"
)

// FileAction is one file entry within a changelist description or a files
// listing (§3, §4.4).
type FileAction struct {
	DepotPath string
	Rev       int
	Action    string // add, edit, delete, branch, integrate, move/add, move/delete, ...
	Type      string
	FromFile  string // set for branch/integrate/move actions
	FromRev   int
	Time      int64 // populated by Files; zero from Describe (use Change.Time instead)
	Change    int   // populated by Files (the changelist that produced this revision)
}

// IsIntegration reports whether the action carries provenance from another
// depot path, per the merge-detection rule (§4.4 "Merge detection").
func (f FileAction) IsIntegration() bool {
	return f.Action == "branch" || f.Action == "integrate"
}

// Change is a depot changelist, either fetched via "describe" or synthesized
// for the head-revision fresh-clone path (§4.4).
type Change struct {
	Number      int
	User        string
	Client      string
	Time        int64
	Description string
	Files       []FileAction
}

// Describe fetches the full file list and metadata for a submitted
// changelist, grounded on google-sge-monorepo's p4lib.Describe field
// mapping (depotFile/action/type/rev/fromFile/fromRev) adapted to this
// package's tagged Record decoding.
func Describe(client *Client, change int) (Change, error) {
	records, err := client.List([]string{"describe", "-s", strconv.Itoa(change)}, nil, false)
	if err != nil {
		return Change{}, err
	}
	for _, rec := range records {
		if rec.Code != CodeStat {
			continue
		}
		return changeFromRecord(rec), nil
	}
	return Change{}, fmt.Errorf("depot: describe %d returned no stat record", change)
}

func changeFromRecord(rec Record) Change {
	ch := Change{
		Number:      rec.Int("change"),
		User:        mustGet(rec, "user"),
		Client:      mustGet(rec, "client"),
		Time:        int64(rec.Int("time")),
		Description: mustGet(rec, "desc"),
	}
	for i := 0; ; i++ {
		depotFile, ok := rec.Get(fmt.Sprintf("depotFile%d", i))
		if !ok {
			break
		}
		fa := FileAction{
			DepotPath: depotFile,
			Rev:       rec.Int(fmt.Sprintf("rev%d", i)),
			Action:    mustGet(rec, fmt.Sprintf("action%d", i)),
			Type:      mustGet(rec, fmt.Sprintf("type%d", i)),
		}
		if from, ok := rec.Get(fmt.Sprintf("fromFile%d", i)); ok {
			fa.FromFile = from
			fa.FromRev = rec.Int(fmt.Sprintf("fromRev%d", i))
		}
		ch.Files = append(ch.Files, fa)
	}
	return ch
}

func mustGet(rec Record, key string) string {
	v, _ := rec.Get(key)
	return v
}

// Changes lists submitted changelist numbers under the given depot paths, in
// descending order, via "p4 changes -s submitted".
func Changes(client *Client, depotPaths []string) ([]int, error) {
	args := append([]string{"changes", "-s", "submitted"}, depotPaths...)
	records, err := client.List(args, nil, false)
	if err != nil {
		return nil, err
	}
	var out []int
	for _, rec := range records {
		if rec.Code != CodeStat {
			continue
		}
		out = append(out, rec.Int("change"))
	}
	return out, nil
}

// LatestChangeAtOrBefore returns the highest submitted changelist number
// touching depotPath at or before atOrBefore, used by the branch-point
// bisection to find "the most recent source changelist at or before
// thisChange-1" (§4.4 step 3b).
func LatestChangeAtOrBefore(client *Client, depotPath string, atOrBefore int) (int, bool, error) {
	spec := fmt.Sprintf("%s@<=%d", EscapePath(depotPath), atOrBefore)
	records, err := client.List([]string{"changes", "-s", "submitted", "-m1", spec}, nil, true)
	if err != nil {
		return 0, false, err
	}
	for _, rec := range records {
		if rec.Code == CodeStat {
			return rec.Int("change"), true, nil
		}
	}
	return 0, false, nil
}

// Files lists every file at the given revision specifier (e.g. "@123" or
// "@now"), used for the head-revision fresh-clone path (§4.4).
func Files(client *Client, depotPaths []string, revSpec string) ([]FileAction, error) {
	args := []string{"files"}
	for _, p := range depotPaths {
		if revSpec != "" && !strings.Contains(p, "@") && !strings.Contains(p, "#") {
			p = EscapePath(p) + revSpec
		}
		args = append(args, p)
	}
	records, err := client.List(args, nil, false)
	if err != nil {
		return nil, err
	}
	var out []FileAction
	for _, rec := range records {
		if rec.Code != CodeStat {
			continue
		}
		depotFile, _ := rec.Get("depotFile")
		action, _ := rec.Get("action")
		typ, _ := rec.Get("type")
		out = append(out, FileAction{
			DepotPath: depotFile,
			Rev:       rec.Int("rev"),
			Action:    action,
			Type:      typ,
			Time:      int64(rec.Int("time")),
			Change:    rec.Int("change"),
		})
	}
	return out, nil
}

// MaxTime returns the highest Time field among a Files listing, used to
// synthesize a changelist time for the head-revision fresh-clone path
// (§4.4 "Head-revision path").
func MaxTime(files []FileAction) int64 {
	var max int64
	for _, f := range files {
		if f.Time > max {
			max = f.Time
		}
	}
	return max
}
