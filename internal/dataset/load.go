package dataset

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Format is a supported source encoding.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// LoadOptions tunes Load.
type LoadOptions struct {
	// Sheet selects a worksheet; empty means the first sheet.
	Sheet  string
	Logger *slog.Logger
}

// DetectFormat maps a file extension to a Format.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		return FormatXLSX, nil
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".xls":
		return "", &ParseError{Source: path, Reason: "legacy .xls workbooks are not supported, save the file as .xlsx"}
	default:
		return "", &ParseError{Source: path, Reason: fmt.Sprintf("unsupported file format %q", filepath.Ext(path))}
	}
}

// Load reads the source at path into a Table. The first non-blank row is
// the header. Fully blank rows are skipped. The source is never modified.
func Load(path string, opts LoadOptions) (*Table, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}
	if err != nil {
		return nil, &ParseError{Source: path, Reason: "cannot access file", Err: err}
	}
	if info.IsDir() {
		return nil, &ParseError{Source: path, Reason: "path is a directory"}
	}

	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	var (
		records [][]string
		sheet   string
	)
	switch format {
	case FormatXLSX:
		records, sheet, err = readXLSX(path, opts.Sheet)
	case FormatCSV:
		records, err = readCSV(path)
	}
	if err != nil {
		return nil, err
	}

	t, err := buildTable(path, records)
	if err != nil {
		return nil, err
	}
	t.sheet = sheet

	logger.Info("Dataset loaded",
		slog.String("source", path),
		slog.String("format", string(format)),
		slog.String("sheet", sheet),
		slog.Int("rows", t.Len()),
		slog.Int("columns", t.Width()))
	return t, nil
}

func readXLSX(path, sheet string) ([][]string, string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, "", &ParseError{Source: path, Reason: "cannot open workbook", Err: err}
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, "", &ParseError{Source: path, Reason: "workbook has no sheets"}
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, "", &ParseError{Source: path, Reason: fmt.Sprintf("cannot read sheet %q", sheet), Err: err}
	}
	return rows, sheet, nil
}

func readCSV(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &ParseError{Source: path, Reason: "cannot open file", Err: err}
	}
	defer file.Close()

	br := bufio.NewReader(file)
	if bom, err := br.Peek(3); err == nil && bytes.Equal(bom, []byte{0xEF, 0xBB, 0xBF}) {
		_, _ = br.Discard(3)
	}

	r := csv.NewReader(br)
	r.FieldsPerRecord = -1
	var records [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			pe := &ParseError{Source: path, Reason: "malformed CSV", Err: err}
			var csvErr *csv.ParseError
			if errors.As(err, &csvErr) {
				pe.Row = csvErr.Line
			}
			return nil, pe
		}
		records = append(records, rec)
	}
	return records, nil
}

// buildTable turns raw records into typed columns. Records may be ragged
// because spreadsheet readers trim trailing blank cells.
func buildTable(source string, records [][]string) (*Table, error) {
	headerRow := -1
	for i, rec := range records {
		if !blank(rec) {
			headerRow = i
			break
		}
	}
	if headerRow < 0 {
		return nil, &ParseError{Source: source, Reason: "no header row found"}
	}

	header := trimTrailingBlank(records[headerRow])
	width := len(header)
	names := make([]string, width)
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			letter, err := excelize.ColumnNumberToName(i + 1)
			if err != nil {
				return nil, &ParseError{Source: source, Row: headerRow + 1, Reason: "too many columns", Err: err}
			}
			name = letter
		}
		names[i] = name
	}

	cells := make([][]Cell, width)
	for i, rec := range records[headerRow+1:] {
		if blank(rec) {
			continue
		}
		rowNum := headerRow + i + 2
		if len(rec) > width && !blank(rec[width:]) {
			return nil, &ParseError{
				Source: source,
				Row:    rowNum,
				Reason: "row has " + strconv.Itoa(len(trimTrailingBlank(rec))) + " values but the header has " + strconv.Itoa(width) + " columns",
			}
		}
		for c := 0; c < width; c++ {
			var raw string
			if c < len(rec) {
				raw = rec[c]
			}
			cells[c] = append(cells[c], NewCell(raw))
		}
	}

	if len(cells) == 0 || len(cells[0]) == 0 {
		return nil, fmt.Errorf("%w: %s has a header row but no data rows", ErrEmptyDataset, source)
	}

	columns := make([]*Column, width)
	for i := range names {
		columns[i] = NewColumn(names[i], cells[i])
	}
	return NewTable(source, columns...)
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func trimTrailingBlank(rec []string) []string {
	end := len(rec)
	for end > 0 && strings.TrimSpace(rec[end-1]) == "" {
		end--
	}
	return rec[:end]
}

// FromRecords builds a table from in-memory records using the same header
// and shape rules as Load.
func FromRecords(source string, records [][]string) (*Table, error) {
	return buildTable(source, records)
}
