package schedimport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ybsk00/hospital-ops-suit-sub002/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

func connFor(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

const dateLayout = "2006-01-02"

// =========== Booking Repository ===========

type bookingRepoPG struct{ pool *pgxpool.Pool }

func NewBookingRepoPG(pool *pgxpool.Pool) BookingRepository { return &bookingRepoPG{pool: pool} }

func (r *bookingRepoPG) conn(ctx context.Context) queryable { return connFor(ctx, r.pool) }

const bookingCols = `id, kind, resource_id, slot_date, start_time, slot_ref, duration_min, patient_name,
	patient_id, chart_number, doctor_code, treatment_codes, visit_type, phone, notes,
	patient_type, import_id, created_at, deleted_at`

func (r *bookingRepoPG) scanBooking(row pgx.Row) (*Booking, error) {
	var (
		b    Booking
		date time.Time
	)
	err := row.Scan(&b.ID, &b.Kind, &b.ResourceID, &date, &b.StartTime, &b.SlotRef, &b.DurationMin, &b.PatientName,
		&b.PatientID, &b.ChartNumber, &b.DoctorCode, &b.TreatmentCodes, &b.VisitType, &b.Phone, &b.Notes,
		&b.PatientType, &b.ImportID, &b.CreatedAt, &b.DeletedAt)
	if err != nil {
		return nil, err
	}
	b.SlotDate = date.Format(dateLayout)
	return &b, nil
}

func (r *bookingRepoPG) ExistsActive(ctx context.Context, b *Booking) (bool, error) {
	day, err := time.Parse(dateLayout, b.SlotDate)
	if err != nil {
		return false, fmt.Errorf("invalid slot date %q: %w", b.SlotDate, err)
	}
	var exists bool
	err = r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM schedule_booking
			WHERE kind = $1 AND resource_id = $2 AND slot_date = $3 AND start_time = $4
				AND slot_ref = $5 AND deleted_at IS NULL)`,
		b.Kind, b.ResourceID, day, b.StartTime, b.SlotRef).Scan(&exists)
	return exists, err
}

func (r *bookingRepoPG) Create(ctx context.Context, b *Booking) error {
	day, err := time.Parse(dateLayout, b.SlotDate)
	if err != nil {
		return fmt.Errorf("invalid slot date %q: %w", b.SlotDate, err)
	}
	b.ID = uuid.New()
	codes := b.TreatmentCodes
	if codes == nil {
		codes = []string{}
	}
	err = r.conn(ctx).QueryRow(ctx, `
		INSERT INTO schedule_booking (id, kind, resource_id, slot_date, start_time, slot_ref, duration_min,
			patient_name, patient_id, chart_number, doctor_code, treatment_codes, visit_type,
			phone, notes, patient_type, import_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		RETURNING created_at`,
		b.ID, b.Kind, b.ResourceID, day, b.StartTime, b.SlotRef, b.DurationMin,
		b.PatientName, b.PatientID, b.ChartNumber, b.DoctorCode, codes, b.VisitType,
		b.Phone, b.Notes, b.PatientType, b.ImportID).Scan(&b.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateBooking
	}
	return err
}

func (r *bookingRepoPG) ListByImport(ctx context.Context, importID uuid.UUID, limit, offset int) ([]*Booking, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM schedule_booking WHERE import_id = $1`, importID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+bookingCols+` FROM schedule_booking
		WHERE import_id = $1 ORDER BY slot_date, start_time, kind LIMIT $2 OFFSET $3`, importID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Booking
	for rows.Next() {
		b, err := r.scanBooking(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, b)
	}
	return items, total, rows.Err()
}

// =========== Patient Repository ===========

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository { return &patientRepoPG{pool: pool} }

func (r *patientRepoPG) conn(ctx context.Context) queryable { return connFor(ctx, r.pool) }

func (r *patientRepoPG) findOne(ctx context.Context, sql string, arg string) (*uuid.UUID, error) {
	var id uuid.UUID
	err := r.conn(ctx).QueryRow(ctx, sql, arg).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func (r *patientRepoPG) FindByChartNumber(ctx context.Context, chartNumber string) (*uuid.UUID, error) {
	return r.findOne(ctx, `SELECT id FROM patient WHERE chart_number = $1 AND deleted_at IS NULL`, chartNumber)
}

// FindByName prefers an exact match, then the shortest name containing the
// label, then the longest name contained in it. Names shorter than two
// characters never match by containment.
func (r *patientRepoPG) FindByName(ctx context.Context, name string) (*uuid.UUID, error) {
	return r.findOne(ctx, `
		SELECT id FROM patient
		WHERE deleted_at IS NULL AND (
			name = $1
			OR (char_length($1) >= 2 AND strpos(name, $1) > 0)
			OR (char_length(name) >= 2 AND strpos($1, name) > 0))
		ORDER BY (name = $1) DESC, (strpos(name, $1) > 0) DESC,
			CASE WHEN strpos(name, $1) > 0 THEN char_length(name) ELSE -char_length(name) END,
			created_at
		LIMIT 1`, name)
}

// =========== Resource Repository ===========

type resourceRepoPG struct{ pool *pgxpool.Pool }

func NewResourceRepoPG(pool *pgxpool.Pool) ResourceRepository { return &resourceRepoPG{pool: pool} }

func (r *resourceRepoPG) conn(ctx context.Context) queryable { return connFor(ctx, r.pool) }

func (r *resourceRepoPG) findID(ctx context.Context, sql string, arg interface{}) (uuid.UUID, bool, error) {
	var id uuid.UUID
	err := r.conn(ctx).QueryRow(ctx, sql, arg).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	return id, true, nil
}

func (r *resourceRepoPG) RoomByMachine(ctx context.Context, machine int) (uuid.UUID, bool, error) {
	return r.findID(ctx, `SELECT id FROM rf_room WHERE machine_number = $1 AND active`, machine)
}

func (r *resourceRepoPG) DoctorByCode(ctx context.Context, code string) (uuid.UUID, bool, error) {
	return r.findID(ctx, `SELECT id FROM doctor WHERE code = $1 AND active`, code)
}

func (r *resourceRepoPG) Therapists(ctx context.Context) (map[string]uuid.UUID, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT name, id FROM therapist WHERE active`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]uuid.UUID)
	for rows.Next() {
		var (
			name string
			id   uuid.UUID
		)
		if err := rows.Scan(&name, &id); err != nil {
			return nil, err
		}
		out[name] = id
	}
	return out, rows.Err()
}

// =========== Import Repository ===========

type importRepoPG struct{ pool *pgxpool.Pool }

func NewImportRepoPG(pool *pgxpool.Pool) ImportRepository { return &importRepoPG{pool: pool} }

func (r *importRepoPG) conn(ctx context.Context) queryable { return connFor(ctx, r.pool) }

const importCols = `id, file_name, file_hash, convention, target_year, target_month, status,
	stats, error_message, started_at, finished_at`

func (r *importRepoPG) scanImport(row pgx.Row) (*Import, error) {
	var (
		imp   Import
		stats []byte
	)
	err := row.Scan(&imp.ID, &imp.FileName, &imp.FileHash, &imp.Convention, &imp.TargetYear, &imp.TargetMonth,
		&imp.Status, &stats, &imp.ErrorMessage, &imp.StartedAt, &imp.FinishedAt)
	if err != nil {
		return nil, err
	}
	if len(stats) > 0 {
		if err := json.Unmarshal(stats, &imp.Stats); err != nil {
			return nil, fmt.Errorf("decode import stats: %w", err)
		}
	}
	return &imp, nil
}

func (r *importRepoPG) Create(ctx context.Context, imp *Import) error {
	imp.ID = uuid.New()
	stats, err := json.Marshal(imp.Stats)
	if err != nil {
		return fmt.Errorf("encode import stats: %w", err)
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO schedule_import (id, file_name, file_hash, convention, target_year, target_month, status, stats)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING started_at`,
		imp.ID, imp.FileName, imp.FileHash, imp.Convention, imp.TargetYear, imp.TargetMonth,
		imp.Status, stats).Scan(&imp.StartedAt)
}

func (r *importRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Import, error) {
	imp, err := r.scanImport(r.conn(ctx).QueryRow(ctx, `SELECT `+importCols+` FROM schedule_import WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrImportNotFound
	}
	return imp, err
}

func (r *importRepoPG) FindSucceeded(ctx context.Context, hash, convention string, year, month int) (*Import, error) {
	imp, err := r.scanImport(r.conn(ctx).QueryRow(ctx, `SELECT `+importCols+` FROM schedule_import
		WHERE file_hash = $1 AND convention = $2 AND target_year = $3 AND target_month = $4 AND status = $5
		ORDER BY started_at DESC LIMIT 1`,
		hash, convention, year, month, StatusSuccess))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return imp, err
}

func (r *importRepoPG) Finish(ctx context.Context, imp *Import) error {
	stats, err := json.Marshal(imp.Stats)
	if err != nil {
		return fmt.Errorf("encode import stats: %w", err)
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE schedule_import SET status = $2, stats = $3, error_message = $4, finished_at = $5
		WHERE id = $1`,
		imp.ID, imp.Status, stats, imp.ErrorMessage, imp.FinishedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrImportNotFound
	}
	return nil
}

func (r *importRepoPG) List(ctx context.Context, limit, offset int) ([]*Import, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM schedule_import`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+importCols+` FROM schedule_import
		ORDER BY started_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Import
	for rows.Next() {
		imp, err := r.scanImport(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, imp)
	}
	return items, total, rows.Err()
}

// AddErrors writes all rows in one batch.
func (r *importRepoPG) AddErrors(ctx context.Context, importID uuid.UUID, errs []*ImportError) error {
	if len(errs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range errs {
		e.ID = uuid.New()
		e.ImportID = importID
		batch.Queue(`
			INSERT INTO schedule_import_error (id, import_id, reason, row_index, col_index, raw_cell)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			e.ID, e.ImportID, e.Reason, e.Row, e.Col, e.Raw)
	}
	br := r.conn(ctx).SendBatch(ctx, batch)
	defer br.Close()
	for range errs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert import error: %w", err)
		}
	}
	return nil
}

func (r *importRepoPG) ListErrors(ctx context.Context, importID uuid.UUID) ([]*ImportError, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, import_id, reason, row_index, col_index, raw_cell, created_at
		FROM schedule_import_error WHERE import_id = $1 ORDER BY row_index, col_index`, importID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*ImportError
	for rows.Next() {
		var e ImportError
		if err := rows.Scan(&e.ID, &e.ImportID, &e.Reason, &e.Row, &e.Col, &e.Raw, &e.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &e)
	}
	return items, rows.Err()
}
