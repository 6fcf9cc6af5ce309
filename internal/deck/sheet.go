package deck

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// SheetFormat selects the spreadsheet flavour [ParseSheet] reads.
type SheetFormat string

const (
	FormatXLSX SheetFormat = "xlsx"
	FormatCSV  SheetFormat = "csv"
)

// FormatOf guesses the sheet format from a file name.
func FormatOf(name string) (SheetFormat, error) {
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("deck: unsupported sheet extension %q", ext)
	}
}

// SheetOptions controls [ParseSheet].
type SheetOptions struct {
	// Set identifies the resulting deck.
	Set SetMeta

	// Sheet names the worksheet of an xlsx file. Empty uses the first one.
	Sheet string
}

// column positions, resolved from the header row or defaulted.
type columns struct {
	id, spanish, english, difficulty, image int
}

var defaultColumns = columns{id: -1, spanish: 0, english: 1, difficulty: 2, image: 3}

var headerAliases = map[string]string{
	"id":         "id",
	"spanish":    "spanish",
	"español":    "spanish",
	"espanol":    "spanish",
	"es":         "spanish",
	"english":    "english",
	"inglés":     "english",
	"ingles":     "english",
	"en":         "english",
	"difficulty": "difficulty",
	"dificultad": "difficulty",
	"image_url":  "image",
	"image":      "image",
	"imagen":     "image",
}

// ParseSheet builds a deck from a spreadsheet, one card per row. A first
// row naming the columns (spanish, english, id, difficulty, image_url, or
// their Spanish names) is honoured; without one the columns are spanish,
// english, difficulty, image_url. Blank rows are skipped. The result is
// validated like a YAML deck.
func ParseSheet(r io.Reader, format SheetFormat, opts SheetOptions) (*Deck, error) {
	var (
		rows [][]string
		err  error
	)
	switch format {
	case FormatXLSX:
		rows, err = readXLSX(r, opts.Sheet)
	case FormatCSV:
		rows, err = readCSV(r)
	default:
		return nil, fmt.Errorf("deck: unsupported sheet format %q", format)
	}
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.New("deck: sheet has no rows")
	}

	cols, hasHeader := headerColumns(rows[0])
	if hasHeader {
		rows = rows[1:]
	}

	d := &Deck{Set: opts.Set}
	var errs []error
	for i, row := range rows {
		line := i + 1
		if hasHeader {
			line++
		}
		if blank(row) {
			continue
		}
		c := CardDef{
			ID:       cell(row, cols.id),
			Spanish:  cell(row, cols.spanish),
			English:  cell(row, cols.english),
			ImageURL: cell(row, cols.image),
		}
		if v := cell(row, cols.difficulty); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("row %d: difficulty %q is not a number", line, v))
				continue
			}
			c.Difficulty = n
		}
		d.Cards = append(d.Cards, c)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("deck: parse sheet: %w", errors.Join(errs...))
	}
	if err := Validate(d); err != nil {
		return nil, err
	}
	return d, nil
}

func readXLSX(r io.Reader, sheet string) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("deck: open xlsx: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.New("deck: xlsx has no worksheets")
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("deck: read sheet %q: %w", sheet, err)
	}
	return rows, nil
}

func readCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("deck: read csv: %w", err)
	}
	return rows, nil
}

// headerColumns resolves column positions from row when it names at least
// the spanish and english columns.
func headerColumns(row []string) (columns, bool) {
	cols := columns{id: -1, spanish: -1, english: -1, difficulty: -1, image: -1}
	for i, h := range row {
		switch headerAliases[strings.ToLower(strings.TrimSpace(h))] {
		case "id":
			cols.id = i
		case "spanish":
			cols.spanish = i
		case "english":
			cols.english = i
		case "difficulty":
			cols.difficulty = i
		case "image":
			cols.image = i
		}
	}
	if cols.spanish < 0 || cols.english < 0 {
		return defaultColumns, false
	}
	return cols, true
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
