package report

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	ErrUnreadable    = errors.New("file is neither a readable xlsx nor csv")
	ErrMissingColumn = errors.New("column 'registration_number' not found in file")
)

// registrationColumns are the accepted header names after normalization, in
// order of preference.
var registrationColumns = []string{"registration_number", "reg_no", "registration_no", "student_id"}

// NormalizeHeader folds case, strips diacritics and turns spaces into underscores.
func NormalizeHeader(h string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	h, _, _ = transform.String(t, h)
	h = cases.Fold().String(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	return strings.Join(strings.Fields(h), "_")
}

// ReadRegistrationNumbers extracts unique, non-blank registration numbers from
// an xlsx or csv upload, in file order. The format is picked from the filename
// and the zip signature; csv is the fallback.
func ReadRegistrationNumbers(data []byte, filename string) ([]string, error) {
	var (
		rows [][]string
		err  error
	)
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == ".xlsx" || ext == ".xlsm" || bytes.HasPrefix(data, []byte("PK\x03\x04")) {
		rows, err = xlsxRows(data)
	} else {
		rows, err = csvRows(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if len(rows) == 0 {
		return nil, ErrMissingColumn
	}

	col := -1
	headers := map[string]int{}
	for i, h := range rows[0] {
		if _, seen := headers[NormalizeHeader(h)]; !seen {
			headers[NormalizeHeader(h)] = i
		}
	}
	for _, name := range registrationColumns {
		if i, ok := headers[name]; ok {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, ErrMissingColumn
	}

	seen := map[string]bool{}
	out := []string{}
	for _, row := range rows[1:] {
		if col >= len(row) {
			continue
		}
		v := strings.TrimSpace(row[col])
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out, nil
}

func xlsxRows(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	return f.GetRows(sheets[0])
}

func csvRows(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, rec)
	}
	return rows, nil
}
