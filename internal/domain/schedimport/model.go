package schedimport

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrImportNotFound   = errors.New("import not found")
	ErrDuplicateBooking = errors.New("booking already exists for slot")
	ErrEmptyFile        = errors.New("uploaded file is empty")
	ErrInvalidRequest   = errors.New("invalid import request")
)

// BookingKind is the resource family a booking belongs to.
type BookingKind string

const (
	KindRF         BookingKind = "rf"
	KindManual     BookingKind = "manual"
	KindOutpatient BookingKind = "outpatient"
)

// Booking maps to the schedule_booking table. SlotDate is YYYY-MM-DD and
// StartTime is HH:MM, exactly as the sheet engine emits them. SlotRef is empty
// except for outpatient rows, where several patients share a doctor and time.
type Booking struct {
	ID             uuid.UUID   `db:"id" json:"id"`
	Kind           BookingKind `db:"kind" json:"kind"`
	ResourceID     uuid.UUID   `db:"resource_id" json:"resource_id"`
	SlotDate       string      `db:"slot_date" json:"slot_date"`
	StartTime      string      `db:"start_time" json:"start_time"`
	SlotRef        string      `db:"slot_ref" json:"slot_ref,omitempty"`
	DurationMin    int         `db:"duration_min" json:"duration_min"`
	PatientName    string      `db:"patient_name" json:"patient_name"`
	PatientID      *uuid.UUID  `db:"patient_id" json:"patient_id,omitempty"`
	ChartNumber    *string     `db:"chart_number" json:"chart_number,omitempty"`
	DoctorCode     *string     `db:"doctor_code" json:"doctor_code,omitempty"`
	TreatmentCodes []string    `db:"treatment_codes" json:"treatment_codes,omitempty"`
	VisitType      *string     `db:"visit_type" json:"visit_type,omitempty"`
	Phone          *string     `db:"phone" json:"phone,omitempty"`
	Notes          *string     `db:"notes" json:"notes,omitempty"`
	PatientType    *string     `db:"patient_type" json:"patient_type,omitempty"`
	ImportID       *uuid.UUID  `db:"import_id" json:"import_id,omitempty"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
	DeletedAt      *time.Time  `db:"deleted_at" json:"deleted_at,omitempty"`
}

// Key identifies the slot a booking occupies; two live bookings never share
// one.
func (b *Booking) Key() string {
	return fmt.Sprintf("%s|%s|%s|%s|%s", b.Kind, b.ResourceID, b.SlotDate, b.StartTime, b.SlotRef)
}

type ImportStatus string

const (
	StatusProcessing ImportStatus = "PROCESSING"
	StatusSuccess    ImportStatus = "SUCCESS"
	StatusPartial    ImportStatus = "PARTIAL"
	StatusFailed     ImportStatus = "FAILED"
)

// ImportStats counts what happened to the slots of one file.
type ImportStats struct {
	Parsed     int `json:"parsed"`
	Created    int `json:"created"`
	Existing   int `json:"existing"`
	Unresolved int `json:"unresolved"`
	Dropped    int `json:"dropped"`
	Failed     int `json:"failed"`
}

// Import maps to the schedule_import table.
type Import struct {
	ID           uuid.UUID    `db:"id" json:"id"`
	FileName     string       `db:"file_name" json:"file_name"`
	FileHash     string       `db:"file_hash" json:"file_hash"`
	Convention   string       `db:"convention" json:"convention"`
	TargetYear   int          `db:"target_year" json:"target_year"`
	TargetMonth  int          `db:"target_month" json:"target_month"`
	Status       ImportStatus `db:"status" json:"status"`
	Stats        ImportStats  `db:"stats" json:"stats"`
	ErrorMessage *string      `db:"error_message" json:"error_message,omitempty"`
	StartedAt    time.Time    `db:"started_at" json:"started_at"`
	FinishedAt   *time.Time   `db:"finished_at" json:"finished_at,omitempty"`
}

// Reasons recorded for rows that did not become bookings, on top of the
// sheet engine's own skip reasons.
const (
	ReasonUnresolvedRoom   = "unresolved-room"
	ReasonUnresolvedDoctor = "unresolved-doctor"
	ReasonBadTherapistID   = "bad-therapist-id"
	ReasonSinkFailed       = "sink-failed"
)

// ImportError maps to schedule_import_error. Row and Col are 1-based, as a
// spreadsheet shows them.
type ImportError struct {
	ID        uuid.UUID `db:"id" json:"id"`
	ImportID  uuid.UUID `db:"import_id" json:"import_id"`
	Reason    string    `db:"reason" json:"reason"`
	Row       int       `db:"row_index" json:"row"`
	Col       int       `db:"col_index" json:"col"`
	Raw       *string   `db:"raw_cell" json:"raw,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
