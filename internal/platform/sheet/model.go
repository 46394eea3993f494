package sheet

import (
	"fmt"
	"time"
)

// Convention names one of the supported sheet layouts.
type Convention string

const (
	ConventionAuto       Convention = "auto"
	ConventionRF         Convention = "rf"
	ConventionManual     Convention = "manual"
	ConventionOutpatient Convention = "outpatient"
)

// Target is the calendar month an extraction is scoped to. A zero Year means
// "take the year from the sheet", which only the manual-therapy layout can do.
type Target struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
}

// Validate rejects months outside 1..12 and implausible years.
func (t Target) Validate() error {
	if t.Month < time.January || t.Month > time.December {
		return fmt.Errorf("%w: month %d", ErrInvalidTarget, t.Month)
	}
	if t.Year != 0 && (t.Year < 2000 || t.Year > 2100) {
		return fmt.Errorf("%w: year %d", ErrInvalidTarget, t.Year)
	}
	return nil
}

// date formats a calendar date as YYYY-MM-DD, reporting false for dates that
// do not exist (Feb 30) or fall outside the target.
func (t Target) date(year, month, day int) (string, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return "", false
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if d.Day() != day || int(d.Month()) != month {
		return "", false
	}
	if d.Month() != t.Month {
		return "", false
	}
	if t.Year != 0 && d.Year() != t.Year {
		return "", false
	}
	return d.Format("2006-01-02"), true
}

// ResourceColumn is one bookable column of a day block.
type ResourceColumn struct {
	Col           int    `json:"col"`
	Machine       int    `json:"machine,omitempty"`
	TherapistID   string `json:"therapist_id,omitempty"`
	TherapistName string `json:"therapist_name,omitempty"`
}

// DayBlock is the set of resource columns belonging to one calendar date.
// Data rows start at FirstRow and run until the table terminates.
type DayBlock struct {
	Convention Convention       `json:"convention"`
	Date       string           `json:"date"`
	HeaderRow  int              `json:"header_row"`
	FirstRow   int              `json:"first_row"`
	TimeCol    int              `json:"time_col"`
	Columns    []ResourceColumn `json:"columns"`
}

// RFSlot is one RF-therapy machine booking.
type RFSlot struct {
	Date        string      `json:"date"`
	MachineNum  int         `json:"machine_num"`
	StartTime   string      `json:"start_time"`
	Duration    int         `json:"duration"`
	ChartNumber string      `json:"chart_number"`
	PatientName string      `json:"patient_name"`
	DoctorCode  DoctorCode  `json:"doctor_code"`
	PatientType PatientType `json:"patient_type"`
}

// ManualSlot is one manual-therapy booking with a therapist.
type ManualSlot struct {
	Date           string      `json:"date"`
	TherapistID    string      `json:"therapist_id"`
	TherapistName  string      `json:"therapist_name"`
	StartTime      string      `json:"start_time"`
	Duration       int         `json:"duration"`
	PatientName    string      `json:"patient_name"`
	TreatmentCodes []string    `json:"treatment_codes"`
	DoctorCode     DoctorCode  `json:"doctor_code,omitempty"`
	PatientType    PatientType `json:"patient_type"`
}

// OutpatientSlot is one outpatient appointment row.
type OutpatientSlot struct {
	Date        string     `json:"date"`
	Column      int        `json:"column"`
	StartTime   string     `json:"start_time"`
	PatientName string     `json:"patient_name"`
	VisitType   string     `json:"visit_type,omitempty"`
	DoctorCode  DoctorCode `json:"doctor_code"`
	Phone       string     `json:"phone,omitempty"`
	Notes       string     `json:"notes,omitempty"`
}

// TherapistLookup resolves a therapist display name to an identifier.
type TherapistLookup interface {
	Lookup(name string) (id string, ok bool)
}

// TherapistMap is a TherapistLookup backed by a plain map keyed by display
// name.
type TherapistMap map[string]string

func (m TherapistMap) Lookup(name string) (string, bool) {
	id, ok := m[name]
	return id, ok
}
