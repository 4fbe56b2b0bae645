package filereader

import (
	"regexp"
	"strings"
)

// imageExtensions is the allowlist of binary extensions whose content is
// actually fetched; every other binary file's content is replaced with the
// empty byte string (§4.1, a deliberate source-preserved behavior).
var imageExtensions = map[string]bool{
	"jpg": true, "jpeg": true, "gif": true, "png": true,
	"bmp": true, "ico": true, "tif": true, "tiff": true,
}

// IsImageExtension reports whether path's extension is in the fetched
// binary allowlist.
func IsImageExtension(path string) bool {
	ext := path
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		ext = path[i+1:]
	} else {
		return false
	}
	return imageExtensions[strings.ToLower(ext)]
}

var execTypePattern = regexp.MustCompile(`^[cku]?x|\+.*x`)

// IsExecType reports whether a depot file type is executable: it matches
// `^[cku]?x` or contains `+` followed, anywhere later, by `x` (so "text+x"
// and "binary+kx" both count) (§4.1 "Type classification"), grounded on
// git-p4.py's isP4Exec.
func IsExecType(fileType string) bool {
	return execTypePattern.MatchString(fileType)
}

// IsSymlinkType reports whether fileType is the literal "symlink" type
// (possibly with modifiers, e.g. "symlink+F").
func IsSymlinkType(fileType string) bool {
	return strings.HasPrefix(fileType, "symlink")
}

// IsAppleType reports whether fileType is the "apple" type, skipped with a
// warning per §4.1.
func IsAppleType(fileType string) bool {
	return strings.HasPrefix(fileType, "apple")
}

// IsUTF16Type reports whether fileType is utf16 (fetched via a temp file to
// avoid transcoding, §4.1).
func IsUTF16Type(fileType string) bool {
	return strings.HasPrefix(fileType, "utf16")
}

// keywordPatterns matches each expanded RCS keyword by name. MaskKeywords
// applies Id/Header for +ko types, and all of them (adding Author, Date,
// DateTime, Change, File, Revision) for +k / ktext / kxtext types.
var keywordPatterns = map[string]*regexp.Regexp{
	"Id":       regexp.MustCompile(`(?i)\$Id:[^$\n]*\$`),
	"Header":   regexp.MustCompile(`(?i)\$Header:[^$\n]*\$`),
	"Author":   regexp.MustCompile(`(?i)\$Author:[^$\n]*\$`),
	"Date":     regexp.MustCompile(`(?i)\$Date:[^$\n]*\$`),
	"DateTime": regexp.MustCompile(`(?i)\$DateTime:[^$\n]*\$`),
	"Change":   regexp.MustCompile(`(?i)\$Change:[^$\n]*\$`),
	"File":     regexp.MustCompile(`(?i)\$File:[^$\n]*\$`),
	"Revision": regexp.MustCompile(`(?i)\$Revision:[^$\n]*\$`),
}

// MaskKeywords un-expands RCS-style keyword expansions per the file type's
// modifier (§4.1):
//   - "+ko": Id and Header only.
//   - "+k" (or legacy "ktext"/"kxtext"): Id, Header, plus Author, Date,
//     DateTime, Change, File, Revision.
//
// Types with neither modifier are returned unchanged.
func MaskKeywords(fileType string, content []byte) []byte {
	full := strings.Contains(fileType, "+k") && !strings.Contains(fileType, "+ko") ||
		fileType == "ktext" || fileType == "kxtext"
	onlyIDHeader := strings.Contains(fileType, "+ko") || full

	if !onlyIDHeader {
		return content
	}

	out := keywordPatterns["Id"].ReplaceAll(content, []byte("$Id$"))
	out = keywordPatterns["Header"].ReplaceAll(out, []byte("$Header$"))
	if full {
		out = keywordPatterns["Author"].ReplaceAll(out, []byte("$Author$"))
		out = keywordPatterns["Date"].ReplaceAll(out, []byte("$Date$"))
		out = keywordPatterns["DateTime"].ReplaceAll(out, []byte("$DateTime$"))
		out = keywordPatterns["Change"].ReplaceAll(out, []byte("$Change$"))
		out = keywordPatterns["File"].ReplaceAll(out, []byte("$File$"))
		out = keywordPatterns["Revision"].ReplaceAll(out, []byte("$Revision$"))
	}
	return out
}

// CollapseCRLF collapses "\r\n" to "\n", used on CRLF-native hosts for text
// files (§4.1).
func CollapseCRLF(content []byte) []byte {
	return []byte(strings.ReplaceAll(string(content), "\r\n", "\n"))
}
