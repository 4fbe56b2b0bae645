package submit

import "strings"

// SpliceDescription replaces a depot change template's Description: block
// with message, each line indented by a tab, mirroring
// P4Submit.prepareLogMessage.
func SpliceDescription(template, message string) string {
	lines := strings.Split(template, "\n")
	var out []string
	inDescription := false
	spliced := false
	for _, line := range lines {
		if strings.HasPrefix(line, "Description:") {
			out = append(out, line)
			for _, m := range strings.Split(strings.TrimRight(message, "\n"), "\n") {
				out = append(out, "\t"+m)
			}
			inDescription = true
			spliced = true
			continue
		}
		if inDescription {
			if strings.HasPrefix(line, "\t") || line == "" {
				continue // drop the template's own placeholder description lines
			}
			inDescription = false
		}
		out = append(out, line)
	}
	if !spliced {
		return template
	}
	return strings.Join(out, "\n")
}

// FilterFilesSection drops any Files: entry whose depot path does not lie
// under depotPath, mirroring prepareSubmitTemplate's active-path filter.
func FilterFilesSection(template, depotPath string) string {
	lines := strings.Split(template, "\n")
	var out []string
	inFiles := false
	for _, line := range lines {
		if strings.HasPrefix(line, "Files:") {
			inFiles = true
			out = append(out, line)
			continue
		}
		if inFiles {
			if !strings.HasPrefix(line, "\t") {
				inFiles = false
				out = append(out, line)
				continue
			}
			path := strings.TrimPrefix(line, "\t")
			if tab := strings.IndexByte(path, '\t'); tab >= 0 {
				path = path[:tab]
			}
			if hash := strings.IndexByte(path, '#'); hash >= 0 {
				path = path[:hash]
			}
			if !strings.HasPrefix(path, depotPath) {
				continue
			}
			out = append(out, line)
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// PrepareSubmitTemplate composes SpliceDescription and FilterFilesSection,
// the two transforms the EDITOR step applies before writing the template
// to disk (§4.5 step 4).
func PrepareSubmitTemplate(template, message, depotPath string) string {
	return FilterFilesSection(SpliceDescription(template, message), depotPath)
}
