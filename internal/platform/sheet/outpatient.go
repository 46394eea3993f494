package sheet

import (
	"strings"
)

// Outpatient tuples are four cells wide, starting at the "이름/유형" column.
const (
	opName = iota
	opDoctor
	opPhone
	opNotes
	opWidth
)

// DetectOutpatient finds the outpatient day blocks of a sheet. Every
// "이름/유형" cell opens one block; its date sits in the row above, within the
// block's four columns.
func DetectOutpatient(rows []Row, target Target) []DayBlock {
	blocks, _ := detectOutpatient(rows, target)
	return blocks
}

func detectOutpatient(rows []Row, target Target) ([]DayBlock, []Outcome) {
	var (
		blocks   []DayBlock
		outcomes []Outcome
	)

	for i, row := range rows {
		if i == 0 {
			continue
		}
		anchors := nameTypeCols(row)
		for _, c := range anchors {
			above := rows[i-1]
			var (
				day   dayRef
				found bool
			)
			for k := c; k < c+opWidth; k++ {
				if day, found = parseDayCell(above.Cell(k)); found {
					day.col = k
					break
				}
			}
			if !found {
				continue
			}

			year := day.year
			if year == 0 {
				year = target.Year
			}
			date, ok := target.date(year, day.month, day.day)
			if !ok {
				outcomes = append(outcomes, skipped(SkipOutOfMonth, i-1, day.col, above.Cell(day.col)))
				continue
			}

			blocks = append(blocks, DayBlock{
				Convention: ConventionOutpatient,
				Date:       date,
				HeaderRow:  i,
				FirstRow:   i + 1,
				TimeCol:    outpatientTimeCol(row, c, anchors),
				Columns:    []ResourceColumn{{Col: c}},
			})
		}
	}

	return blocks, outcomes
}

func nameTypeCols(row Row) []int {
	var cols []int
	for c, cell := range row {
		if strings.TrimSpace(cell) == nameTypeAnchor {
			cols = append(cols, c)
		}
	}
	return cols
}

// outpatientTimeCol picks the time column for the block anchored at c. The
// column just left of the anchor is used unless it belongs to another block's
// tuple; then the nearest unclaimed "시간" header to the left, then column 0.
func outpatientTimeCol(header Row, c int, anchors []int) int {
	claimed := func(col int) bool {
		for _, a := range anchors {
			if a != c && col >= a && col < a+opWidth {
				return true
			}
		}
		return false
	}
	if c > 0 && !claimed(c-1) {
		return c - 1
	}
	for k := c - 1; k >= 0; k-- {
		if strings.TrimSpace(header.Cell(k)) == timeHeader && !claimed(k) {
			return k
		}
	}
	return 0
}

func hasNameTypeCell(row Row) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) == nameTypeAnchor {
			return true
		}
	}
	return false
}

// ExtractOutpatient returns every outpatient appointment in block then row
// order. A row without its own time label inherits the last one seen in the
// same block.
func ExtractOutpatient(rows []Row, target Target) ([]OutpatientSlot, Report) {
	report := newReport()
	blocks, outcomes := detectOutpatient(rows, target)
	for _, o := range outcomes {
		report.add(o)
	}

	var slots []OutpatientSlot
	for _, b := range blocks {
		c := b.Columns[0].Col
		end := tableEnd(rows, b.FirstRow, hasNameTypeCell)

		var last string
		for r := b.FirstRow; r < end; r++ {
			row := rows[r]
			if t, ok := rowTime(row, b.TimeCol); ok {
				last = t
			}

			raw := strings.TrimSpace(row.Cell(c + opName))
			if raw == "" {
				continue
			}
			if last == "" {
				report.add(skipped(SkipNoTime, r, c, raw))
				continue
			}

			name, visitType := raw, ""
			if i := strings.Index(raw, "/"); i >= 0 {
				name = strings.TrimSpace(raw[:i])
				visitType = strings.TrimSpace(raw[i+1:])
			}

			switch {
			case strings.Contains(raw, directorSentinel):
				report.add(skipped(SkipPlaceholder, r, c, raw))
				continue
			case isTimeLabel(name):
				report.add(skipped(SkipTimeLabelAsName, r, c, raw))
				continue
			case runeLen(name) < 2:
				report.add(skipped(SkipShortName, r, c, raw))
				continue
			}

			slots = append(slots, OutpatientSlot{
				Date:        b.Date,
				Column:      c,
				StartTime:   last,
				PatientName: name,
				VisitType:   visitType,
				DoctorCode:  ClassifyDoctorCode(row.Cell(c + opDoctor)),
				Phone:       strings.TrimSpace(row.Cell(c + opPhone)),
				Notes:       strings.TrimSpace(row.Cell(c + opNotes)),
			})
			report.add(emitted())
		}
	}
	return slots, report
}

func isTimeLabel(s string) bool {
	_, ok := NormalizeTime(s)
	return ok
}
