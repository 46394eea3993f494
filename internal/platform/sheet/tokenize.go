package sheet

import "strings"

// Row is one line of a tokenized sheet. Rows are ragged: no column count is
// enforced and every lookup goes through Cell.
type Row []string

// Cell returns the cell at index i, or "" when the row is too short.
func (r Row) Cell(i int) string {
	if i < 0 || i >= len(r) {
		return ""
	}
	return r[i]
}

// Blank reports whether every cell of the row is empty after trimming.
func (r Row) Blank() bool {
	for _, c := range r {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// Joined returns the row's cells joined with a single space.
func (r Row) Joined() string {
	return strings.Join(r, " ")
}

// Tokenize splits comma-delimited text into rows of cells.
//
// Quoted cells may contain commas, literal newlines and doubled quotes ("").
// Rows are never padded or validated against a header; a row with fewer cells
// than its neighbours is kept as-is.
func Tokenize(content string) []Row {
	return TokenizeDelimited(content, ',')
}

// TokenizeDelimited is Tokenize with a different cell separator, such as a
// tab for .tsv exports.
func TokenizeDelimited(content string, delim byte) []Row {
	var (
		rows     []Row
		row      Row
		cell     strings.Builder
		inQuotes bool
	)

	endCell := func() {
		row = append(row, cell.String())
		cell.Reset()
	}
	endRow := func() {
		endCell()
		rows = append(rows, row)
		row = nil
	}

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if inQuotes {
			if ch == '"' {
				if i+1 < len(content) && content[i+1] == '"' {
					cell.WriteByte('"')
					i++
					continue
				}
				inQuotes = false
				continue
			}
			cell.WriteByte(ch)
			continue
		}

		switch {
		case ch == '"':
			inQuotes = true
		case ch == delim:
			endCell()
		case ch == '\n':
			endRow()
		case ch == '\r' && i+1 < len(content) && content[i+1] == '\n':
			endRow()
			i++
		default:
			cell.WriteByte(ch)
		}
	}

	if cell.Len() > 0 || len(row) > 0 {
		endRow()
	}

	return rows
}
