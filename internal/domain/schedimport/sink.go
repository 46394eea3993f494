package schedimport

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ybsk00/hospital-ops-suit-sub002/internal/platform/lock"
)

// PutResult says what Sink.Put did with a booking.
type PutResult string

const (
	PutCreated  PutResult = "created"
	PutExisting PutResult = "existing"
)

// Sink writes bookings so that re-running an import never duplicates a slot.
// The lookup and insert for one slot run under a lock on the slot key; the
// partial unique index on schedule_booking backs it up.
type Sink struct {
	bookings BookingRepository
	patients PatientRepository
	locker   lock.KeyLocker
}

func NewSink(bookings BookingRepository, patients PatientRepository, locker lock.KeyLocker) *Sink {
	return &Sink{bookings: bookings, patients: patients, locker: locker}
}

// Put creates b unless an active booking already holds its slot. When b has
// no patient id one is looked up by chart number, then by name; a miss leaves
// it unlinked.
func (s *Sink) Put(ctx context.Context, b *Booking) (PutResult, error) {
	key := b.Key()
	unlock, err := s.locker.Lock(ctx, key)
	if err != nil {
		return "", fmt.Errorf("lock slot %s: %w", key, err)
	}
	defer unlock()

	exists, err := s.bookings.ExistsActive(ctx, b)
	if err != nil {
		return "", fmt.Errorf("check slot %s: %w", key, err)
	}
	if exists {
		return PutExisting, nil
	}

	if b.PatientID == nil {
		id, err := s.resolvePatient(ctx, b)
		if err != nil {
			return "", fmt.Errorf("resolve patient %q: %w", b.PatientName, err)
		}
		b.PatientID = id
	}

	if err := s.bookings.Create(ctx, b); err != nil {
		if errors.Is(err, ErrDuplicateBooking) {
			return PutExisting, nil
		}
		return "", fmt.Errorf("create booking %s: %w", key, err)
	}
	return PutCreated, nil
}

func (s *Sink) resolvePatient(ctx context.Context, b *Booking) (*uuid.UUID, error) {
	if b.ChartNumber != nil {
		id, err := s.patients.FindByChartNumber(ctx, *b.ChartNumber)
		if err != nil || id != nil {
			return id, err
		}
	}
	return s.patients.FindByName(ctx, b.PatientName)
}
