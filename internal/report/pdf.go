package report

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"

	"rollcall/internal/model"
)

// AttendancePDF renders the range report. from and to may be empty.
func AttendancePDF(rows []Row, from, to string, generated time.Time) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	title(pdf, "Attendance Report")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, "Generated: "+generated.Format("January 02, 2006 at 03:04 PM"), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Total Records: %d", len(rows)), "", 1, "L", false, 0, "")
	if from != "" {
		pdf.CellFormat(0, 6, "From: "+from, "", 1, "L", false, 0, "")
	}
	if to != "" {
		pdf.CellFormat(0, 6, "To: "+to, "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	if len(rows) == 0 {
		pdf.CellFormat(0, 8, "No attendance records found.", "", 1, "L", false, 0, "")
		return output(pdf)
	}
	widths := []float64{35, 50, 35, 25, 20, 25}
	tableHeader(pdf, attendanceHeader, widths, [3]int{99, 102, 241})
	pdf.SetFont("Helvetica", "", 9)
	for _, r := range rows {
		for i, c := range r.cells() {
			pdf.CellFormat(widths[i], 7, tr(c), "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)
	}
	return output(pdf)
}

// StudentPDF renders one student's attendance history.
func StudentPDF(st model.Student, records []model.AttendanceRecord, loc *time.Location, generated time.Time) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	title(pdf, "Student Attendance Report")
	pdf.SetFont("Helvetica", "", 10)
	info := [][2]string{
		{"Name", st.Name},
		{"Registration No", st.RegNo},
		{"Department", st.Department},
		{"Enrollment Date", st.CreatedAt.In(loc).Format("2006-01-02")},
		{"Total Attendance", fmt.Sprintf("%d days", len(records))},
		{"Report Generated", generated.Format("January 02, 2006")},
	}
	for _, kv := range info {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(40, 6, kv[0]+":", "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.CellFormat(0, 6, tr(kv[1]), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	if len(records) > 0 {
		widths := []float64{60, 60, 60}
		tableHeader(pdf, []string{"Date", "Time", "Method"}, widths, [3]int{16, 185, 129})
		pdf.SetFont("Helvetica", "", 10)
		for _, r := range Rows(records, loc) {
			for i, c := range []string{r.Date, r.Time, r.Method} {
				pdf.CellFormat(widths[i], 7, c, "1", 0, "C", false, 0, "")
			}
			pdf.Ln(-1)
		}
	}
	return output(pdf)
}

func title(pdf *fpdf.Fpdf, text string) {
	pdf.SetFont("Helvetica", "B", 18)
	pdf.SetTextColor(30, 41, 59)
	pdf.CellFormat(0, 12, text, "", 1, "C", false, 0, "")
	pdf.SetTextColor(0, 0, 0)
	pdf.Ln(2)
}

func tableHeader(pdf *fpdf.Fpdf, header []string, widths []float64, rgb [3]int) {
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(rgb[0], rgb[1], rgb[2])
	pdf.SetTextColor(255, 255, 255)
	for i, h := range header {
		pdf.CellFormat(widths[i], 8, h, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetTextColor(0, 0, 0)
}

func output(pdf *fpdf.Fpdf) ([]byte, error) {
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
