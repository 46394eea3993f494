package sheet

import (
	"strings"
)

// DetectRF finds the RF-therapy day blocks of a sheet.
//
// A header row carries day labels like "2.10(화)". The row beneath it carries
// one FALSE marker per day followed by the machine number columns of that
// day. Markers and day labels are paired strictly by order, left to right.
func DetectRF(rows []Row, target Target) []DayBlock {
	blocks, _ := detectRF(rows, target)
	return blocks
}

func detectRF(rows []Row, target Target) ([]DayBlock, []Outcome) {
	var (
		blocks   []DayBlock
		outcomes []Outcome
	)

	for i, row := range rows {
		if !dateHeaderRe.MatchString(row.Joined()) {
			continue
		}

		var days []dayRef
		for c, cell := range row {
			for _, m := range dateHeaderRe.FindAllStringSubmatch(cell, -1) {
				days = append(days, dayRef{month: atoi(m[1]), day: atoi(m[2]), col: c})
			}
		}
		if i+1 >= len(rows) {
			continue
		}

		markers := rows[i+1]
		next := 0
		for c := 0; c < len(markers) && next < len(days); c++ {
			if !strings.EqualFold(strings.TrimSpace(markers[c]), machineMarker) {
				continue
			}
			day := days[next]
			next++

			var cols []ResourceColumn
			for k := c + 1; k < len(markers); k++ {
				label := strings.TrimSpace(markers[k])
				if !machineLabelRe.MatchString(label) {
					break
				}
				cols = append(cols, ResourceColumn{Col: k, Machine: atoi(label)})
			}

			date, ok := target.date(target.Year, day.month, day.day)
			if !ok {
				outcomes = append(outcomes, skipped(SkipOutOfMonth, i, day.col, rows[i].Cell(day.col)))
				continue
			}
			if len(cols) == 0 {
				continue
			}
			blocks = append(blocks, DayBlock{
				Convention: ConventionRF,
				Date:       date,
				HeaderRow:  i,
				FirstRow:   i + 2,
				TimeCol:    c,
				Columns:    cols,
			})
		}
	}

	return blocks, outcomes
}

// ExtractRF returns every RF booking of the target month in block, row,
// column order. Rows without a readable time label are skipped.
func ExtractRF(rows []Row, target Target) ([]RFSlot, Report) {
	report := newReport()
	blocks, outcomes := detectRF(rows, target)
	for _, o := range outcomes {
		report.add(o)
	}

	var slots []RFSlot
	for _, b := range blocks {
		end := tableEnd(rows, b.FirstRow, nil)
		for r := b.FirstRow; r < end; r++ {
			row := rows[r]
			start, hasTime := rowTime(row, b.TimeCol)

			for _, col := range b.Columns {
				raw := row.Cell(col.Col)
				if strings.TrimSpace(raw) == "" {
					continue
				}
				if !hasTime {
					report.add(skipped(SkipNoTime, r, col.Col, raw))
					continue
				}
				slot, reason, ok := parseRFCell(raw)
				if !ok {
					report.add(skipped(reason, r, col.Col, raw))
					continue
				}
				slot.Date = b.Date
				slot.MachineNum = col.Machine
				slot.StartTime = start
				slots = append(slots, slot)
				report.add(emitted())
			}
		}
	}
	return slots, report
}

// parseRFCell decodes a "chart number / name line" booking cell:
//
//	123456
//	홍길동(C) 60분
func parseRFCell(raw string) (RFSlot, SkipReason, bool) {
	lines := splitLines(raw)
	if len(lines) < 2 {
		return RFSlot{}, SkipShortCell, false
	}

	m := chartNumberRe.FindStringSubmatch(lines[0])
	if m == nil {
		return RFSlot{}, SkipBadChartNumber, false
	}

	name := rfPatientName(lines[1])
	if runeLen(name) < 2 {
		return RFSlot{}, SkipShortName, false
	}

	text := strings.Join(lines, "\n")
	return RFSlot{
		ChartNumber: m[1],
		PatientName: name,
		DoctorCode:  ClassifyDoctorCode(text),
		Duration:    durationMinutes(text, 60),
		PatientType: ClassifyPatientType(text),
	}, "", true
}

func rfPatientName(line string) string {
	s := doctorTagRe.ReplaceAllString(line, " ")
	s = minutesTagRe.ReplaceAllString(s, " ")
	if i := strings.IndexByte(s, '('); i >= 0 {
		s = s[:i]
	}
	return trimTrailingDigits(s)
}
