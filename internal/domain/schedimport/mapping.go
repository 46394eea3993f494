package schedimport

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ybsk00/hospital-ops-suit-sub002/internal/platform/sheet"
)

// resolver caches resource lookups for the lifetime of one import.
type resolver struct {
	resources ResourceRepository
	rooms     map[int]uuid.UUID
	doctors   map[string]uuid.UUID
}

func newResolver(resources ResourceRepository) *resolver {
	return &resolver{
		resources: resources,
		rooms:     make(map[int]uuid.UUID),
		doctors:   make(map[string]uuid.UUID),
	}
}

func (r *resolver) room(ctx context.Context, machine int) (uuid.UUID, bool, error) {
	if id, ok := r.rooms[machine]; ok {
		return id, id != uuid.Nil, nil
	}
	id, ok, err := r.resources.RoomByMachine(ctx, machine)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("lookup rf room %d: %w", machine, err)
	}
	r.rooms[machine] = id
	return id, ok, nil
}

func (r *resolver) doctor(ctx context.Context, code sheet.DoctorCode) (uuid.UUID, bool, error) {
	if id, ok := r.doctors[string(code)]; ok {
		return id, id != uuid.Nil, nil
	}
	id, ok, err := r.resources.DoctorByCode(ctx, string(code))
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("lookup doctor %s: %w", code, err)
	}
	r.doctors[string(code)] = id
	return id, ok, nil
}

// toBookings turns the slots of res into bookings. Slots whose resource cannot
// be resolved come back as import errors instead; a lookup failure aborts.
func toBookings(ctx context.Context, res *sheet.Result, rv *resolver) ([]*Booking, []*ImportError, error) {
	var (
		out        []*Booking
		unresolved []*ImportError
	)

	for _, s := range res.RF {
		id, ok, err := rv.room(ctx, s.MachineNum)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			unresolved = append(unresolved, slotError(ReasonUnresolvedRoom,
				fmt.Sprintf("machine %d %s %s %s", s.MachineNum, s.Date, s.StartTime, s.PatientName)))
			continue
		}
		out = append(out, &Booking{
			Kind:        KindRF,
			ResourceID:  id,
			SlotDate:    s.Date,
			StartTime:   s.StartTime,
			DurationMin: s.Duration,
			PatientName: s.PatientName,
			ChartNumber: strPtr(s.ChartNumber),
			DoctorCode:  strPtr(string(s.DoctorCode)),
			PatientType: strPtr(string(s.PatientType)),
		})
	}

	for _, s := range res.Manual {
		id, err := uuid.Parse(s.TherapistID)
		if err != nil {
			unresolved = append(unresolved, slotError(ReasonBadTherapistID,
				fmt.Sprintf("%s (%s) %s %s", s.TherapistName, s.TherapistID, s.Date, s.StartTime)))
			continue
		}
		out = append(out, &Booking{
			Kind:           KindManual,
			ResourceID:     id,
			SlotDate:       s.Date,
			StartTime:      s.StartTime,
			DurationMin:    s.Duration,
			PatientName:    s.PatientName,
			DoctorCode:     strPtr(string(s.DoctorCode)),
			TreatmentCodes: s.TreatmentCodes,
			PatientType:    strPtr(string(s.PatientType)),
		})
	}

	for _, s := range res.Outpatient {
		id, ok, err := rv.doctor(ctx, s.DoctorCode)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			unresolved = append(unresolved, slotError(ReasonUnresolvedDoctor,
				fmt.Sprintf("doctor %s %s %s %s", s.DoctorCode, s.Date, s.StartTime, s.PatientName)))
			continue
		}
		out = append(out, &Booking{
			Kind:        KindOutpatient,
			ResourceID:  id,
			SlotDate:    s.Date,
			StartTime:   s.StartTime,
			SlotRef:     s.PatientName,
			PatientName: s.PatientName,
			DoctorCode:  strPtr(string(s.DoctorCode)),
			VisitType:   strPtr(s.VisitType),
			Phone:       strPtr(s.Phone),
			Notes:       strPtr(s.Notes),
		})
	}

	return out, unresolved, nil
}

// skipErrors converts the extractor's skips, which use zero-based positions.
func skipErrors(skips []sheet.Skip) []*ImportError {
	out := make([]*ImportError, 0, len(skips))
	for _, s := range skips {
		out = append(out, &ImportError{
			Reason: string(s.Reason),
			Row:    s.Row + 1,
			Col:    s.Col + 1,
			Raw:    strPtr(s.Raw),
		})
	}
	return out
}

// slotError records a failure that concerns a slot rather than a cell; its
// position is left at zero.
func slotError(reason, raw string) *ImportError {
	return &ImportError{Reason: reason, Raw: strPtr(raw)}
}
