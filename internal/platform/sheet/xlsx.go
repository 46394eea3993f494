package sheet

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/unicode/norm"
)

var zipMagic = []byte("PK\x03\x04")

// ReadWorkbook reads one worksheet of an .xlsx workbook into rows. An empty
// sheet name selects the first worksheet. Merged regions keep their value in
// the top-left cell only, which is how the delimited exports look too.
func ReadWorkbook(r io.Reader, sheet string) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		names := f.GetSheetList()
		if len(names) == 0 {
			return nil, fmt.Errorf("open workbook: no worksheets")
		}
		sheet = names[0]
	}

	cells, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}

	rows := make([]Row, len(cells))
	for i, cols := range cells {
		row := make(Row, len(cols))
		for j, v := range cols {
			row[j] = norm.NFC.String(strings.ReplaceAll(v, "\r\n", "\n"))
		}
		rows[i] = row
	}
	return rows, nil
}

// LoadRows turns an uploaded file into rows, reading it as a workbook when
// the name or content says so and as delimited text otherwise. Failures wrap
// ErrUnreadableFile.
func LoadRows(name string, raw []byte, sheet string) ([]Row, error) {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == ".xlsx" || ext == ".xlsm" || bytes.HasPrefix(raw, zipMagic) {
		rows, err := ReadWorkbook(bytes.NewReader(raw), sheet)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnreadableFile, err)
		}
		return rows, nil
	}

	text, err := Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadableFile, err)
	}
	return TokenizeDelimited(text, delimiterFor(ext)), nil
}

func delimiterFor(ext string) byte {
	if ext == ".tsv" {
		return '\t'
	}
	return ','
}
