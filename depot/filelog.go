package depot

import (
	"fmt"
	"strconv"
)

// FilelogEntry is one revision record from "p4 filelog", newest first. This
// is a deliberate simplification of the depot's nested per-revision
// integration records (§9's SUPPLEMENTED FEATURES note): it captures the
// revision/changelist/action a given revision was submitted with, which is
// all the merge-parent walk in importpipeline needs — the fuller nested
// "how0,0 / file0,0 / srev0,0" integration-history sub-records are not
// parsed, since no example in the pack consumes filelog to that depth.
type FilelogEntry struct {
	Rev    int
	Change int
	Action string
}

// Filelog returns up to max revision entries for depotPath at or before
// rev, newest first, used by the merge-detection walk to look "at most two
// entries deep" into a file's depot history (§4.4 "Merge detection").
func Filelog(client *Client, depotPath string, rev int, max int) ([]FilelogEntry, error) {
	spec := fmt.Sprintf("%s#%d", EscapePath(depotPath), rev)
	records, err := client.List([]string{"filelog", "-m", strconv.Itoa(max), spec}, nil, false)
	if err != nil {
		return nil, err
	}
	var out []FilelogEntry
	for _, rec := range records {
		if rec.Code != CodeStat {
			continue
		}
		for i := 0; ; i++ {
			changeKey := fmt.Sprintf("change%d", i)
			change, ok := rec.Get(changeKey)
			if !ok {
				break
			}
			n, _ := strconv.Atoi(change)
			out = append(out, FilelogEntry{
				Rev:    rec.Int(fmt.Sprintf("rev%d", i)),
				Change: n,
				Action: mustGet(rec, fmt.Sprintf("action%d", i)),
			})
			if len(out) >= max {
				return out, nil
			}
		}
	}
	return out, nil
}
