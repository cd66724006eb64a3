// Package report turns attendance rows into spreadsheet and PDF documents and
// reads registration numbers back out of uploaded spreadsheets.
package report

import (
	"time"

	"rollcall/internal/model"
)

// Row is one line of the attendance report as an admin sees it.
type Row struct {
	RegNo      string `json:"registration_number"`
	Name       string `json:"name"`
	Department string `json:"department"`
	Date       string `json:"date"`
	Time       string `json:"time"`
	Method     string `json:"method"`
}

// Rows converts stored records, rendering times in loc.
func Rows(records []model.AttendanceRecord, loc *time.Location) []Row {
	if loc == nil {
		loc = time.Local
	}
	out := make([]Row, 0, len(records))
	for _, r := range records {
		out = append(out, Row{
			RegNo:      r.RegNo,
			Name:       r.Name,
			Department: r.Department,
			Date:       r.Date,
			Time:       r.Timestamp.In(loc).Format("15:04:05"),
			Method:     string(r.Method),
		})
	}
	return out
}

var attendanceHeader = []string{"Registration No", "Name", "Department", "Date", "Time", "Method"}

func (r Row) cells() []string {
	return []string{r.RegNo, r.Name, r.Department, r.Date, r.Time, r.Method}
}
