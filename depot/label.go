package depot

import (
	"fmt"
)

// LabelSpec is one entry from "p4 labels": the metadata needed to decide
// which revisions it covers, before its file list has been resolved
// (§3 "Label").
type LabelSpec struct {
	Name        string
	Owner       string
	Description string
	View        []string
}

// Labels lists every label whose view touches depotPath, via "p4 labels
// depotPath", used by the label/tag engine to discover candidate labels
// for a set of import paths (§4.7).
func Labels(client *Client, depotPath string) ([]LabelSpec, error) {
	args := []string{"labels"}
	if depotPath != "" {
		args = append(args, EscapePath(depotPath))
	}
	records, err := client.List(args, nil, false)
	if err != nil {
		return nil, err
	}
	var out []LabelSpec
	for _, rec := range records {
		if rec.Code != CodeStat {
			continue
		}
		name, ok := rec.Get("label")
		if !ok {
			continue
		}
		owner, _ := rec.Get("Owner")
		desc, _ := rec.Get("Description")
		out = append(out, LabelSpec{Name: name, Owner: owner, Description: desc})
	}
	return out, nil
}

// LabelView fetches a label's view patterns via "p4 label -o", used to
// scope the "p4 files ...@label" query to the label's own view rather than
// the whole depot.
func LabelView(client *Client, name string) ([]string, error) {
	records, err := client.List([]string{"label", "-o", name}, nil, false)
	if err != nil {
		return nil, err
	}
	var view []string
	for _, rec := range records {
		if rec.Code != CodeStat {
			continue
		}
		for i := 0; ; i++ {
			v, ok := rec.Get(fmt.Sprintf("View%d", i))
			if !ok {
				break
			}
			view = append(view, v)
		}
	}
	return view, nil
}

// LabelFiles lists the files (and their revisions) a label resolves to via
// "p4 files //...@label" scoped to depotPaths, the "named set of file
// revisions as of some changelist" a Label is defined to be (§3 "Label").
func LabelFiles(client *Client, depotPaths []string, label string) ([]FileAction, error) {
	revSpec := "@" + label
	return Files(client, depotPaths, revSpec)
}
