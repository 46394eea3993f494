package schedimport

import (
	"context"

	"github.com/google/uuid"
)

type BookingRepository interface {
	// ExistsActive reports whether a non-deleted booking occupies b's slot.
	ExistsActive(ctx context.Context, b *Booking) (bool, error)
	// Create inserts b, returning ErrDuplicateBooking if the slot was taken
	// concurrently.
	Create(ctx context.Context, b *Booking) error
	ListByImport(ctx context.Context, importID uuid.UUID, limit, offset int) ([]*Booking, int, error)
}

// PatientRepository lookups return a nil id, not an error, when nothing
// matches.
type PatientRepository interface {
	FindByChartNumber(ctx context.Context, chartNumber string) (*uuid.UUID, error)
	FindByName(ctx context.Context, name string) (*uuid.UUID, error)
}

type ResourceRepository interface {
	RoomByMachine(ctx context.Context, machine int) (uuid.UUID, bool, error)
	DoctorByCode(ctx context.Context, code string) (uuid.UUID, bool, error)
	Therapists(ctx context.Context) (map[string]uuid.UUID, error)
}

type ImportRepository interface {
	Create(ctx context.Context, imp *Import) error
	GetByID(ctx context.Context, id uuid.UUID) (*Import, error)
	// FindSucceeded returns the latest SUCCESS import of the same file for the
	// same convention and month, or nil.
	FindSucceeded(ctx context.Context, hash, convention string, year, month int) (*Import, error)
	Finish(ctx context.Context, imp *Import) error
	List(ctx context.Context, limit, offset int) ([]*Import, int, error)
	AddErrors(ctx context.Context, importID uuid.UUID, errs []*ImportError) error
	ListErrors(ctx context.Context, importID uuid.UUID) ([]*ImportError, error)
}
