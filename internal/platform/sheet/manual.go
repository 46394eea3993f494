package sheet

import (
	"strings"
)

// DetectManual finds the manual-therapy day blocks of a sheet. The anchor row
// starts with "치료사" and carries full dates; the row beneath lists the
// therapists working that day. Only therapists known to lookup become
// resource columns.
func DetectManual(rows []Row, target Target, lookup TherapistLookup) []DayBlock {
	blocks, _ := detectManual(rows, target, lookup)
	return blocks
}

func detectManual(rows []Row, target Target, lookup TherapistLookup) ([]DayBlock, []Outcome) {
	var (
		blocks   []DayBlock
		outcomes []Outcome
	)

	for i, row := range rows {
		if !strings.HasPrefix(strings.TrimSpace(row.Cell(0)), therapistAnchor) {
			continue
		}

		var days []dayRef
		for c := 1; c < len(row); c++ {
			m := fullDateRe.FindStringSubmatch(row[c])
			if m == nil {
				continue
			}
			days = append(days, dayRef{year: atoi(m[1]), month: atoi(m[2]), day: atoi(m[3]), col: c})
		}

		var names Row
		if i+1 < len(rows) {
			names = rows[i+1]
		}

		for k, day := range days {
			date, ok := target.date(day.year, day.month, day.day)
			if !ok {
				outcomes = append(outcomes, skipped(SkipOutOfMonth, i, day.col, row.Cell(day.col)))
				continue
			}

			spanEnd := day.col + therapistSpanCols
			if k+1 < len(days) && days[k+1].col < spanEnd {
				spanEnd = days[k+1].col
			}

			var cols []ResourceColumn
			for c := day.col; c < spanEnd && len(cols) < maxTherapistCols; c++ {
				name := strings.TrimSpace(names.Cell(c))
				if name == "" {
					continue
				}
				var (
					id    string
					found bool
				)
				if lookup != nil {
					id, found = lookup.Lookup(name)
				}
				if !found {
					outcomes = append(outcomes, skipped(SkipUnresolvedTherapist, i+1, c, name))
					continue
				}
				cols = append(cols, ResourceColumn{Col: c, TherapistID: id, TherapistName: name})
			}
			if len(cols) == 0 {
				continue
			}

			blocks = append(blocks, DayBlock{
				Convention: ConventionManual,
				Date:       date,
				HeaderRow:  i,
				FirstRow:   i + 2,
				TimeCol:    0,
				Columns:    cols,
			})
		}
	}

	return blocks, outcomes
}

// ExtractManual returns every manual-therapy booking in block, row, column
// order. A booking lasts 30 minutes plus 30 for each continuation marker
// directly beneath it in the same column.
func ExtractManual(rows []Row, target Target, lookup TherapistLookup) ([]ManualSlot, Report) {
	report := newReport()
	blocks, outcomes := detectManual(rows, target, lookup)
	for _, o := range outcomes {
		report.add(o)
	}

	var slots []ManualSlot
	for _, b := range blocks {
		end := tableEnd(rows, b.FirstRow, nil)
		for r := b.FirstRow; r < end; r++ {
			row := rows[r]
			start, hasTime := rowTime(row, b.TimeCol)

			for _, col := range b.Columns {
				raw := strings.TrimSpace(row.Cell(col.Col))
				if raw == "" || continuationRe.MatchString(raw) {
					continue
				}
				if !hasTime {
					report.add(skipped(SkipNoTime, r, col.Col, raw))
					continue
				}

				cell := ParseTreatmentCell(raw)
				if runeLen(cell.Name) < 2 {
					report.add(skipped(SkipShortName, r, col.Col, raw))
					continue
				}

				slots = append(slots, ManualSlot{
					Date:           b.Date,
					TherapistID:    col.TherapistID,
					TherapistName:  col.TherapistName,
					StartTime:      start,
					Duration:       30 + 30*continuationRows(rows, r+1, end, col.Col),
					PatientName:    cell.Name,
					TreatmentCodes: cell.Codes,
					DoctorCode:     cell.Doctor,
					PatientType:    ClassifyPatientType(raw),
				})
				report.add(emitted())
			}
		}
	}
	return slots, report
}

// continuationRows counts consecutive rows from start whose cell in col is a
// continuation marker.
func continuationRows(rows []Row, start, end, col int) int {
	n := 0
	for r := start; r < end; r++ {
		if !continuationRe.MatchString(strings.TrimSpace(rows[r].Cell(col))) {
			break
		}
		n++
	}
	return n
}
