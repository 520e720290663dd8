// Package analyze turns a gradebook CSV export into a per-student score
// report: average scores, pass/review predictions, and the list of weak
// topics that seeds study guide generation.
package analyze

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Required gradebook columns. Optional columns (Subject, First Name,
// Last Name) enrich the report when present.
const (
	colStudentID  = "External Student ID"
	colAssessment = "Assessment Name"
	colScore      = "Percent Correct (teacher scored)"
	colSubject    = "Subject"
	colFirstName  = "First Name"
	colLastName   = "Last Name"
)

// WeakThreshold is the percent score below which an assessment counts as
// a weak topic, and at or above which the average predicts a pass.
const WeakThreshold = 70.0

// DefaultSubject is used when the export carries no Subject column.
const DefaultSubject = "General Studies"

// ErrNoData means the CSV parsed but contained no scorable quiz or
// assessment rows.
var ErrNoData = errors.New("analyze: no scorable assessment rows")

// Report is the analyzed gradebook.
type Report struct {
	Subject     string    `json:"subject"`
	Assessments []string  `json:"assessments"` // every assessment seen, sorted
	Students    []Student `json:"students"`    // sorted by ID
}

// Student is one student's aggregated results.
type Student struct {
	ID         string             `json:"id"`
	Name       string             `json:"name,omitempty"` // "First Last" when name columns exist
	Scores     map[string]float64 `json:"scores"`         // assessment name -> mean percent
	Average    float64            `json:"average"`        // mean of assessment means, 1 decimal
	Prediction string             `json:"prediction"`     // "Pass" or "Review"
	WeakTopics []string           `json:"weak_topics"`    // assessments averaging under threshold
}

// Student returns the summary for id, or nil.
func (r *Report) Student(id string) *Student {
	id = normalizeID(id)
	for i := range r.Students {
		if r.Students[i].ID == id {
			return &r.Students[i]
		}
	}
	return nil
}

// Analyze reads a gradebook CSV and aggregates it. Rows are kept when
// the assessment name mentions "quiz" or "assessment" and the score
// parses as a number; everything else is skipped silently, matching how
// teachers' exports mix in homework and attendance rows.
func Analyze(r io.Reader) (*Report, error) {
	cr := csv.NewReader(r)
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("analyze: empty csv")
	}

	cols, err := indexHeader(records[0])
	if err != nil {
		return nil, err
	}

	type cell struct {
		sum float64
		n   int
	}
	scores := map[string]map[string]*cell{} // student -> assessment -> scores
	names := map[string]string{}
	assessments := map[string]bool{}
	subject := ""

	for _, row := range records[1:] {
		if subject == "" {
			if v := cols.get(row, colSubject); strings.TrimSpace(v) != "" {
				subject = strings.TrimSpace(v)
			}
		}

		assessment := strings.TrimSpace(cols.get(row, colAssessment))
		if !isScorable(assessment) {
			continue
		}
		score, ok := parseScore(cols.get(row, colScore))
		if !ok {
			continue
		}
		id := normalizeID(cols.get(row, colStudentID))
		if id == "" {
			continue
		}

		if scores[id] == nil {
			scores[id] = map[string]*cell{}
		}
		c := scores[id][assessment]
		if c == nil {
			c = &cell{}
			scores[id][assessment] = c
		}
		c.sum += score
		c.n++
		assessments[assessment] = true

		if names[id] == "" {
			first := strings.TrimSpace(cols.get(row, colFirstName))
			last := strings.TrimSpace(cols.get(row, colLastName))
			if first != "" && last != "" {
				names[id] = first + " " + last
			}
		}
	}

	if len(scores) == 0 {
		return nil, ErrNoData
	}
	if subject == "" {
		subject = DefaultSubject
	}

	report := &Report{Subject: subject}
	for a := range assessments {
		report.Assessments = append(report.Assessments, a)
	}
	sort.Strings(report.Assessments)

	for id, byAssessment := range scores {
		st := Student{ID: id, Name: names[id], Scores: map[string]float64{}}
		var total float64
		for a, c := range byAssessment {
			mean := c.sum / float64(c.n)
			st.Scores[a] = mean
			total += mean
			if mean < WeakThreshold {
				st.WeakTopics = append(st.WeakTopics, a)
			}
		}
		sort.Strings(st.WeakTopics)

		avg := total / float64(len(byAssessment))
		st.Prediction = "Review"
		if avg >= WeakThreshold {
			st.Prediction = "Pass"
		}
		st.Average = math.Round(avg*10) / 10
		report.Students = append(report.Students, st)
	}
	sort.Slice(report.Students, func(i, j int) bool {
		return report.Students[i].ID < report.Students[j].ID
	})
	return report, nil
}

// header maps column names to their index.
type header map[string]int

func (h header) get(row []string, name string) string {
	i, ok := h[name]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

func indexHeader(row []string) (header, error) {
	h := header{}
	for i, name := range row {
		name = strings.TrimSpace(strings.TrimPrefix(name, "﻿"))
		if _, seen := h[name]; !seen {
			h[name] = i
		}
	}
	var missing []string
	for _, required := range []string{colStudentID, colAssessment, colScore} {
		if _, ok := h[required]; !ok {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("analyze: csv missing required columns: %s", strings.Join(missing, ", "))
	}
	return h, nil
}

// isScorable keeps quiz and assessment rows, dropping homework and the
// like.
func isScorable(assessment string) bool {
	lower := strings.ToLower(assessment)
	return strings.Contains(lower, "quiz") || strings.Contains(lower, "assessment")
}

// parseScore reads a percent value, tolerating a % suffix.
func parseScore(s string) (float64, bool) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// normalizeID canonicalizes student ids so "12345", "12345.0" and
// " 12345 " all address the same student, matching the integer cast the
// gradebook UI applies.
func normalizeID(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil && v == math.Trunc(v) && !math.IsInf(v, 0) {
		return strconv.FormatInt(int64(v), 10)
	}
	return s
}
