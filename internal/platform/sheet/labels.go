package sheet

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DoctorCode is the single-letter attending-doctor classification used on
// the legacy sheets.
type DoctorCode string

const (
	DoctorC DoctorCode = "C"
	DoctorJ DoctorCode = "J"
)

// PatientType distinguishes admitted patients from outpatients.
type PatientType string

const (
	Inpatient  PatientType = "INPATIENT"
	Outpatient PatientType = "OUTPATIENT"
)

// DefaultTreatmentCode is assigned when a manual-therapy cell carries no
// parenthesized treatment list.
const DefaultTreatmentCode = "도수"

// treatmentCategories is matched by substring, first hit wins.
var treatmentCategories = []string{"온열", "림프", "신경", "페인", "통증"}

var (
	doctorTagRe   = regexp.MustCompile(`\(\s*([CcJj])\s*\)`)
	parenGroupRe  = regexp.MustCompile(`\(([^)]*)\)`)
	admissionRe   = regexp.MustCompile(`입원|\d{3,4}호`)
	minutesTagRe  = regexp.MustCompile(`(\d+)\s*분`)
	chartNumberRe = regexp.MustCompile(`^(\d{4,6})(?:\D|$)`)
)

// TreatmentCell is the decoded content of a manual-therapy booking cell.
type TreatmentCell struct {
	Name   string     `json:"name"`
	Codes  []string   `json:"codes"`
	Doctor DoctorCode `json:"doctor,omitempty"`
}

// ParseTreatmentCell splits a manual-therapy cell such as "C 김영희(온열/림프)"
// into the patient name and the treatment category codes.
func ParseTreatmentCell(text string) TreatmentCell {
	s := strings.TrimSpace(text)

	var out TreatmentCell
	if rest, code, ok := stripDoctorMarker(s); ok {
		s = rest
		out.Doctor = code
	}

	if loc := parenGroupRe.FindStringSubmatchIndex(s); loc != nil {
		inner := s[loc[2]:loc[3]]
		out.Codes = treatmentCodes(inner)
		s = s[:loc[0]] + s[loc[1]:]
	}
	if len(out.Codes) == 0 {
		out.Codes = []string{DefaultTreatmentCode}
	}

	out.Name = trimTrailingDigits(s)
	return out
}

// stripDoctorMarker removes a leading "C" or "J" that precedes whitespace or
// a non-ASCII rune. "Cho" is left alone; "C김영희" and "j 김영희" are not.
func stripDoctorMarker(s string) (string, DoctorCode, bool) {
	if len(s) < 2 {
		return s, "", false
	}
	var code DoctorCode
	switch s[0] {
	case 'C', 'c':
		code = DoctorC
	case 'J', 'j':
		code = DoctorJ
	default:
		return s, "", false
	}
	next, _ := utf8.DecodeRuneInString(s[1:])
	if !unicode.IsSpace(next) && next < utf8.RuneSelf {
		return s, "", false
	}
	return strings.TrimSpace(s[1:]), code, true
}

func treatmentCodes(inner string) []string {
	var codes []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(inner, "/") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		code := part
		for _, cat := range treatmentCategories {
			if strings.Contains(part, cat) {
				code = cat
				break
			}
		}
		if !seen[code] {
			seen[code] = true
			codes = append(codes, code)
		}
	}
	return codes
}

func trimTrailingDigits(s string) string {
	return strings.TrimSpace(strings.TrimRightFunc(s, func(r rune) bool {
		return unicode.IsDigit(r) || unicode.IsSpace(r)
	}))
}

// ClassifyDoctorCode returns the doctor letter carried by a cell, defaulting
// to C when none is present.
func ClassifyDoctorCode(cell string) DoctorCode {
	code, _ := DoctorCodeFromTag(cell)
	return code
}

// DoctorCodeFromTag is ClassifyDoctorCode that also reports whether a tag was
// actually found. A "(C)"/"(J)" tag on any line wins; a cell holding only the
// bare letter counts too.
func DoctorCodeFromTag(cell string) (DoctorCode, bool) {
	if m := doctorTagRe.FindStringSubmatch(cell); m != nil {
		return DoctorCode(strings.ToUpper(m[1])), true
	}
	switch strings.ToUpper(strings.TrimSpace(cell)) {
	case "C":
		return DoctorC, true
	case "J":
		return DoctorJ, true
	}
	return DoctorC, false
}

// ClassifyPatientType marks text carrying an admission word or a ward room
// tag ("301호") as inpatient.
func ClassifyPatientType(text string) PatientType {
	if admissionRe.MatchString(text) {
		return Inpatient
	}
	return Outpatient
}

// durationMinutes returns the first "<N>분" tag in text, or def.
func durationMinutes(text string, def int) int {
	m := minutesTagRe.FindStringSubmatch(text)
	if m == nil {
		return def
	}
	n := 0
	for _, r := range m[1] {
		n = n*10 + int(r-'0')
	}
	if n <= 0 {
		return def
	}
	return n
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
