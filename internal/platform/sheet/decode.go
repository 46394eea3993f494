package sheet

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Decode turns a raw export into NFC-normalized UTF-8 text.
//
// Exports from the hospital's Windows machines arrive as CP949 (a superset of
// EUC-KR); sheets saved on macOS arrive as UTF-8 with decomposed Hangul. Both
// end up as the composed form the layout anchors are written in.
func Decode(raw []byte) (string, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if utf8.Valid(raw) {
		return norm.NFC.String(string(raw)), nil
	}

	out, _, err := transform.Bytes(korean.EUCKR.NewDecoder(), raw)
	if err != nil {
		return "", fmt.Errorf("decode cp949: %w", err)
	}
	return norm.NFC.String(string(out)), nil
}
