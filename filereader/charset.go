package filereader

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// HasUTF16BOM sniffs whether content begins with a UTF-16 byte-order mark,
// via golang.org/x/text/encoding/unicode's own BOM-detecting decoder rather
// than inspecting the leading bytes by hand. It does not transcode content:
// the depot's temp-file fetch path (§4.1) already hands back the exact
// bytes to commit, so this is a sanity check logged by the caller, not a
// conversion step — git-p4.py trusts the server-written file outright, and
// this Go port adds the check rather than re-deriving endianness itself.
func HasUTF16BOM(content []byte) bool {
	_, _, err := transform.Bytes(unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder(), content)
	return err == nil
}

// TranscodeToUTF8 re-encodes content from a legacy charset (an IANA name
// such as "iso-8859-1" or "shift_jis") to UTF-8. It is applied only to
// plain "text" files: "unicode" and "utf16" types are already transcoded
// by the depot server itself (§4.1), so forcing a second conversion on
// them would corrupt the content.
//
// Grounded on reposurgeon's use of golang.org/x/text/encoding/ianaindex to
// resolve a configured legacy codeset by name before converting blob
// content during import.
func TranscodeToUTF8(charset string, content []byte) ([]byte, error) {
	if charset == "" {
		return content, nil
	}
	enc, err := ianaindex.IANA.Encoding(charset)
	if err != nil {
		return nil, fmt.Errorf("filereader: unknown legacy charset %q: %w", charset, err)
	}
	if enc == nil {
		return content, nil
	}
	var buf bytes.Buffer
	w := transform.NewWriter(&buf, enc.NewDecoder())
	if _, err := w.Write(content); err != nil {
		return nil, fmt.Errorf("filereader: transcoding from %q: %w", charset, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("filereader: transcoding from %q: %w", charset, err)
	}
	return buf.Bytes(), nil
}

// IsPlainTextType reports whether fileType is a plain "text" type (not
// "unicode"/"utf16", which the depot server already transcodes, and not
// "binary" or "symlink") eligible for legacy charset transcoding.
func IsPlainTextType(fileType string) bool {
	return strings.HasPrefix(fileType, "text") || fileType == "ktext" || fileType == "kxtext"
}
