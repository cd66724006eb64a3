// Package analytics aggregates attendance rows into dashboard series.
package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"rollcall/internal/model"
	"rollcall/internal/store"
)

const dateLayout = "2006-01-02"

// Series is a chart-ready list of labels with one count each, oldest first.
type Series struct {
	Labels []string `json:"labels"`
	Data   []int    `json:"data"`
}

type Summary struct {
	TotalStudents int     `json:"total_students"`
	TotalRecords  int     `json:"total_attendance_records"`
	Today         int     `json:"today_attendance"`
	WorkingDays   int     `json:"total_working_days"`
	AverageDaily  float64 `json:"average_daily_attendance"`
}

type StudentPercentage struct {
	RegNo      string  `json:"registration_number"`
	Name       string  `json:"name"`
	Count      int     `json:"attendance_count"`
	TotalDays  int     `json:"total_days"`
	Percentage float64 `json:"percentage"`
}

// workingDays is the set of dates with at least one attendance row.
func workingDays(records []model.AttendanceRecord) map[string]struct{} {
	days := map[string]struct{}{}
	for _, r := range records {
		if r.Date != "" {
			days[r.Date] = struct{}{}
		}
	}
	return days
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// Summarize computes the headline numbers. today is a YYYY-MM-DD date.
func Summarize(students int, records []model.AttendanceRecord, today string) Summary {
	s := Summary{TotalStudents: students, TotalRecords: len(records)}
	for _, r := range records {
		if r.Date == today {
			s.Today++
		}
	}
	s.WorkingDays = len(workingDays(records))
	if s.WorkingDays > 0 {
		s.AverageDaily = round2(float64(len(records)) / float64(s.WorkingDays))
	}
	return s
}

// bucket groups rows by key and keeps the newest n keys, returned oldest first.
func bucket(records []model.AttendanceRecord, n int, key func(time.Time) string) Series {
	counts := map[string]int{}
	for _, r := range records {
		d, err := time.Parse(dateLayout, r.Date)
		if err != nil {
			continue
		}
		counts[key(d)]++
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if n > 0 && len(keys) > n {
		keys = keys[len(keys)-n:]
	}
	out := Series{Labels: keys, Data: make([]int, len(keys))}
	for i, k := range keys {
		out.Data[i] = counts[k]
	}
	return out
}

// Daily counts rows per date for the last n dates that have attendance.
func Daily(records []model.AttendanceRecord, n int) Series {
	return bucket(records, n, func(t time.Time) string { return t.Format(dateLayout) })
}

// Weekly counts rows per ISO week, labelled YYYY-Www.
func Weekly(records []model.AttendanceRecord, n int) Series {
	return bucket(records, n, func(t time.Time) string {
		y, w := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", y, w)
	})
}

// Monthly counts rows per calendar month, labelled YYYY-MM.
func Monthly(records []model.AttendanceRecord, n int) Series {
	return bucket(records, n, func(t time.Time) string { return t.Format("2006-01") })
}

// Percentages reports each student's attendance against the number of working
// days. With no attendance at all every student is at zero out of one day.
func Percentages(students []model.Student, records []model.AttendanceRecord) []StudentPercentage {
	total := len(workingDays(records))
	if total == 0 {
		total = 1
	}
	counts := map[string]int{}
	for _, r := range records {
		counts[r.RegNo]++
	}
	out := make([]StudentPercentage, 0, len(students))
	for _, st := range students {
		c := counts[st.RegNo]
		out = append(out, StudentPercentage{
			RegNo:      st.RegNo,
			Name:       st.Name,
			Count:      c,
			TotalDays:  total,
			Percentage: round2(float64(c) / float64(total) * 100),
		})
	}
	return out
}

type StudentLister interface {
	List(ctx context.Context, f store.StudentFilter) ([]model.Student, error)
	Count(ctx context.Context) (int, error)
}

type RecordLister interface {
	List(ctx context.Context, f store.AttendanceFilter) ([]model.AttendanceRecord, error)
}

// Service loads rows from the store and feeds the aggregators.
type Service struct {
	students StudentLister
	records  RecordLister
	today    func() string
}

// NewService builds the service; today returns the current local date.
func NewService(students StudentLister, records RecordLister, today func() string) *Service {
	return &Service{students: students, records: records, today: today}
}

func (s *Service) all(ctx context.Context) ([]model.AttendanceRecord, error) {
	return s.records.List(ctx, store.AttendanceFilter{})
}

func (s *Service) Summary(ctx context.Context) (Summary, error) {
	n, err := s.students.Count(ctx)
	if err != nil {
		return Summary{}, err
	}
	recs, err := s.all(ctx)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(n, recs, s.today()), nil
}

func (s *Service) Daily(ctx context.Context, days int) (Series, error) {
	recs, err := s.all(ctx)
	if err != nil {
		return Series{}, err
	}
	return Daily(recs, days), nil
}

func (s *Service) Weekly(ctx context.Context, weeks int) (Series, error) {
	recs, err := s.all(ctx)
	if err != nil {
		return Series{}, err
	}
	return Weekly(recs, weeks), nil
}

func (s *Service) Monthly(ctx context.Context) (Series, error) {
	recs, err := s.all(ctx)
	if err != nil {
		return Series{}, err
	}
	return Monthly(recs, 6), nil
}

func (s *Service) Students(ctx context.Context) ([]StudentPercentage, error) {
	students, err := s.students.List(ctx, store.StudentFilter{})
	if err != nil {
		return nil, err
	}
	recs, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	return Percentages(students, recs), nil
}
