package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"rollcall/internal/model"
)

const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var studentHeader = []string{"Registration No", "Name", "Department", "Year", "Email", "Phone", "Face Enrolled", "Created At"}

// StudentsWorkbook exports the student directory as a single-sheet workbook.
func StudentsWorkbook(students []model.Student) ([]byte, error) {
	rows := make([][]string, 0, len(students))
	for _, s := range students {
		enrolled := "no"
		if s.FaceEnrolled() {
			enrolled = "yes"
		}
		rows = append(rows, []string{s.RegNo, s.Name, s.Department, s.Year, s.Email, s.Phone, enrolled, s.CreatedAt.Format("2006-01-02")})
	}
	return workbook("Students", studentHeader, rows)
}

// AttendanceWorkbook exports report rows.
func AttendanceWorkbook(rows []Row) ([]byte, error) {
	cells := make([][]string, 0, len(rows))
	for _, r := range rows {
		cells = append(cells, r.cells())
	}
	return workbook("Attendance", attendanceHeader, cells)
}

func workbook(sheet string, header []string, rows [][]string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}
	if err := setRow(f, sheet, 1, header); err != nil {
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"6366F1"}},
	})
	if err != nil {
		return nil, err
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(sheet, "A1", last, bold); err != nil {
		return nil, err
	}
	for i, r := range rows {
		if err := setRow(f, sheet, i+2, r); err != nil {
			return nil, err
		}
	}
	lastCol, _ := excelize.ColumnNumberToName(len(header))
	if err := f.SetColWidth(sheet, "A", lastCol, 18); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func setRow(f *excelize.File, sheet string, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	vals := make([]any, len(values))
	for i, v := range values {
		vals[i] = v
	}
	return f.SetSheetRow(sheet, cell, &vals)
}
