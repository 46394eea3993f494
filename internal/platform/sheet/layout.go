package sheet

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	// "2.10(화)" style day header. The leading guard keeps "2026.2.10(" from
	// being read as a month.day pair in the middle of a full date.
	dateHeaderRe = regexp.MustCompile(`(?:^|[^\d.])(\d{1,2})\.(\d{1,2})\s*\(`)

	// 2026-02-10, 2026.2.10, 2026/02/10, 2026년 2월 10일
	fullDateRe = regexp.MustCompile(`(\d{4})\s*[.\-/년]\s*(\d{1,2})\s*[.\-/월]\s*(\d{1,2})`)

	koreanDayRe  = regexp.MustCompile(`(\d{1,2})\s*월\s*(\d{1,2})\s*일`)
	numericDayRe = regexp.MustCompile(`(\d{1,2})\s*[./]\s*(\d{1,2})`)

	// Continuation markers in manual-therapy sheets: the booking above keeps
	// the therapist for another half hour.
	continuationRe = regexp.MustCompile(`^(IN|---+|W\d)`)

	machineLabelRe = regexp.MustCompile(`^\d+$`)
)

const (
	remarksPrefix     = "비고"
	therapistAnchor   = "치료사"
	nameTypeAnchor    = "이름/유형"
	timeHeader        = "시간"
	machineMarker     = "FALSE"
	directorSentinel  = "병원장님"
	maxTherapistCols  = 3
	therapistSpanCols = 4
)

// isTerminator reports whether row ends the table that started above it.
func isTerminator(row Row) bool {
	if row.Blank() {
		return true
	}
	if strings.HasPrefix(strings.TrimSpace(row.Cell(0)), remarksPrefix) {
		return true
	}
	return dateHeaderRe.MatchString(row.Joined())
}

// tableEnd returns the index of the first terminating row at or after start,
// or len(rows). extra adds layout-specific terminators.
func tableEnd(rows []Row, start int, extra func(Row) bool) int {
	for i := start; i < len(rows); i++ {
		if isTerminator(rows[i]) {
			return i
		}
		if extra != nil && extra(rows[i]) {
			return i
		}
	}
	return len(rows)
}

// rowTime resolves the start time of a data row from its block-local time
// column, falling back to the first column.
func rowTime(row Row, timeCol int) (string, bool) {
	if t, ok := NormalizeTime(row.Cell(timeCol)); ok {
		return t, true
	}
	if timeCol != 0 {
		return NormalizeTime(row.Cell(0))
	}
	return "", false
}

// splitLines breaks a multi-line cell into trimmed, non-empty lines.
func splitLines(cell string) []string {
	var lines []string
	for _, l := range strings.Split(cell, "\n") {
		l = strings.TrimSpace(l)
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

type dayRef struct {
	year, month, day int
	col              int
}

// parseDayCell reads a date out of a header cell in any of the shapes the
// sheets use. year is 0 when the cell carries none.
func parseDayCell(cell string) (dayRef, bool) {
	if m := fullDateRe.FindStringSubmatch(cell); m != nil {
		return dayRef{year: atoi(m[1]), month: atoi(m[2]), day: atoi(m[3])}, true
	}
	if m := koreanDayRe.FindStringSubmatch(cell); m != nil {
		return dayRef{month: atoi(m[1]), day: atoi(m[2])}, true
	}
	if m := numericDayRe.FindStringSubmatch(cell); m != nil {
		return dayRef{month: atoi(m[1]), day: atoi(m[2])}, true
	}
	return dayRef{}, false
}
