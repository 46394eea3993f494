package schedimport

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ybsk00/hospital-ops-suit-sub002/internal/platform/lock"
	"github.com/ybsk00/hospital-ops-suit-sub002/internal/platform/sheet"
)

// -- Mock Repositories --

type mockBookingRepo struct {
	mu       sync.Mutex
	bookings map[string]*Booking
}

func newMockBookingRepo() *mockBookingRepo {
	return &mockBookingRepo{bookings: make(map[string]*Booking)}
}

func (m *mockBookingRepo) ExistsActive(_ context.Context, b *Booking) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.bookings[b.Key()]
	return ok, nil
}

func (m *mockBookingRepo) Create(_ context.Context, b *Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bookings[b.Key()]; ok {
		return ErrDuplicateBooking
	}
	b.ID = uuid.New()
	b.CreatedAt = time.Now()
	m.bookings[b.Key()] = b
	return nil
}

func (m *mockBookingRepo) ListByImport(_ context.Context, importID uuid.UUID, limit, offset int) ([]*Booking, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*Booking
	for _, b := range m.bookings {
		if b.ImportID != nil && *b.ImportID == importID {
			result = append(result, b)
		}
	}
	return result, len(result), nil
}

func (m *mockBookingRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bookings)
}

func (m *mockBookingRepo) all() []*Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Booking, 0, len(m.bookings))
	for _, b := range m.bookings {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

type mockPatientRepo struct {
	byChart map[string]uuid.UUID
	byName  map[string]uuid.UUID
}

func (m *mockPatientRepo) FindByChartNumber(_ context.Context, chartNumber string) (*uuid.UUID, error) {
	if id, ok := m.byChart[chartNumber]; ok {
		return &id, nil
	}
	return nil, nil
}

func (m *mockPatientRepo) FindByName(_ context.Context, name string) (*uuid.UUID, error) {
	for n, id := range m.byName {
		if strings.Contains(n, name) || strings.Contains(name, n) {
			id := id
			return &id, nil
		}
	}
	return nil, nil
}

type mockResourceRepo struct {
	rooms      map[int]uuid.UUID
	doctors    map[string]uuid.UUID
	therapists map[string]uuid.UUID
	roomCalls  int
}

func (m *mockResourceRepo) RoomByMachine(_ context.Context, machine int) (uuid.UUID, bool, error) {
	m.roomCalls++
	id, ok := m.rooms[machine]
	return id, ok, nil
}

func (m *mockResourceRepo) DoctorByCode(_ context.Context, code string) (uuid.UUID, bool, error) {
	id, ok := m.doctors[code]
	return id, ok, nil
}

func (m *mockResourceRepo) Therapists(_ context.Context) (map[string]uuid.UUID, error) {
	return m.therapists, nil
}

type mockImportRepo struct {
	imports map[uuid.UUID]*Import
	errors  map[uuid.UUID][]*ImportError
	order   []uuid.UUID
}

func newMockImportRepo() *mockImportRepo {
	return &mockImportRepo{
		imports: make(map[uuid.UUID]*Import),
		errors:  make(map[uuid.UUID][]*ImportError),
	}
}

func (m *mockImportRepo) Create(_ context.Context, imp *Import) error {
	imp.ID = uuid.New()
	imp.StartedAt = time.Now()
	cp := *imp
	m.imports[imp.ID] = &cp
	m.order = append(m.order, imp.ID)
	return nil
}

func (m *mockImportRepo) GetByID(_ context.Context, id uuid.UUID) (*Import, error) {
	imp, ok := m.imports[id]
	if !ok {
		return nil, ErrImportNotFound
	}
	return imp, nil
}

func (m *mockImportRepo) FindSucceeded(_ context.Context, hash, convention string, year, month int) (*Import, error) {
	for i := len(m.order) - 1; i >= 0; i-- {
		imp := m.imports[m.order[i]]
		if imp.FileHash == hash && imp.Convention == convention && imp.TargetYear == year &&
			imp.TargetMonth == month && imp.Status == StatusSuccess {
			return imp, nil
		}
	}
	return nil, nil
}

func (m *mockImportRepo) Finish(_ context.Context, imp *Import) error {
	if _, ok := m.imports[imp.ID]; !ok {
		return ErrImportNotFound
	}
	cp := *imp
	m.imports[imp.ID] = &cp
	return nil
}

func (m *mockImportRepo) List(_ context.Context, limit, offset int) ([]*Import, int, error) {
	var result []*Import
	for _, id := range m.order {
		result = append(result, m.imports[id])
	}
	return result, len(result), nil
}

func (m *mockImportRepo) AddErrors(_ context.Context, importID uuid.UUID, errs []*ImportError) error {
	for _, e := range errs {
		e.ID = uuid.New()
		e.ImportID = importID
	}
	m.errors[importID] = append(m.errors[importID], errs...)
	return nil
}

func (m *mockImportRepo) ListErrors(_ context.Context, importID uuid.UUID) ([]*ImportError, error) {
	return m.errors[importID], nil
}

// -- Fixtures --

const rfSheet = "2.10(화)\n" +
	"FALSE,1,2\n" +
	"\"9:00~\n9:30\",\"123456\n홍길동(C) 60분\",\"234567\n김영희(J)\"\n"

var (
	room1 = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	room2 = uuid.MustParse("00000000-0000-0000-0000-000000000002")
)

type testEnv struct {
	svc       *Service
	bookings  *mockBookingRepo
	patients  *mockPatientRepo
	resources *mockResourceRepo
	imports   *mockImportRepo
}

func newTestEnv() *testEnv {
	env := &testEnv{
		bookings: newMockBookingRepo(),
		patients: &mockPatientRepo{byChart: map[string]uuid.UUID{}, byName: map[string]uuid.UUID{}},
		resources: &mockResourceRepo{
			rooms:      map[int]uuid.UUID{1: room1, 2: room2},
			doctors:    map[string]uuid.UUID{"C": uuid.New(), "J": uuid.New()},
			therapists: map[string]uuid.UUID{},
		},
		imports: newMockImportRepo(),
	}
	sink := NewSink(env.bookings, env.patients, lock.NewMemoryLocker())
	env.svc = NewService(env.imports, env.bookings, env.resources, sink, nil, zerolog.Nop())
	return env
}

func rfRequest() *ImportRequest {
	return &ImportRequest{
		FileName:   "rf-2026-02.csv",
		Content:    []byte(rfSheet),
		Convention: sheet.ConventionRF,
		Target:     sheet.Target{Year: 2026, Month: time.February},
	}
}

// -- Import --

func TestService_Import_RF(t *testing.T) {
	env := newTestEnv()
	chartPatient := uuid.New()
	env.patients.byChart["123456"] = chartPatient

	res, err := env.svc.Import(context.Background(), rfRequest())
	if err != nil {
		t.Fatalf("Import() error: %v", err)
	}
	if res.Duplicate {
		t.Fatal("first import reported as duplicate")
	}

	want := ImportStats{Parsed: 2, Created: 2}
	if res.Import.Stats != want {
		t.Errorf("stats = %+v, want %+v", res.Import.Stats, want)
	}
	if res.Import.Status != StatusSuccess || res.Import.FinishedAt == nil {
		t.Errorf("unexpected final state: %+v", res.Import)
	}

	got := env.bookings.all()
	if len(got) != 2 {
		t.Fatalf("expected 2 bookings, got %d", len(got))
	}
	first := got[0]
	if first.ResourceID != room1 || first.SlotDate != "2026-02-10" || first.StartTime != "09:00" || first.DurationMin != 60 {
		t.Errorf("unexpected first booking: %+v", first)
	}
	if first.PatientID == nil || *first.PatientID != chartPatient {
		t.Errorf("expected patient linked by chart number, got %v", first.PatientID)
	}
	if first.ImportID == nil || *first.ImportID != res.Import.ID {
		t.Errorf("expected booking to reference the import")
	}
	if got[1].PatientID != nil {
		t.Errorf("expected unmatched patient to stay unlinked, got %v", got[1].PatientID)
	}

	stored, _ := env.imports.GetByID(context.Background(), res.Import.ID)
	if stored.Status != StatusSuccess {
		t.Errorf("stored status = %s, want SUCCESS", stored.Status)
	}
}

func TestService_Import_Idempotent(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	first, err := env.svc.Import(ctx, rfRequest())
	if err != nil {
		t.Fatalf("first Import() error: %v", err)
	}

	again, err := env.svc.Import(ctx, rfRequest())
	if err != nil {
		t.Fatalf("second Import() error: %v", err)
	}
	if !again.Duplicate || again.Import.ID != first.Import.ID {
		t.Errorf("expected second run to return the first import, got %+v", again)
	}

	req := rfRequest()
	req.Force = true
	forced, err := env.svc.Import(ctx, req)
	if err != nil {
		t.Fatalf("forced Import() error: %v", err)
	}
	if forced.Duplicate || forced.Import.ID == first.Import.ID {
		t.Error("forced run should create a new import record")
	}
	if forced.Import.Stats.Created != 0 || forced.Import.Stats.Existing != 2 {
		t.Errorf("forced run stats = %+v, want 0 created / 2 existing", forced.Import.Stats)
	}
	if n := env.bookings.count(); n != 2 {
		t.Errorf("expected 2 bookings after re-run, got %d", n)
	}
}

func TestService_Import_UnresolvedRoom(t *testing.T) {
	env := newTestEnv()
	delete(env.resources.rooms, 2)

	res, err := env.svc.Import(context.Background(), rfRequest())
	if err != nil {
		t.Fatalf("Import() error: %v", err)
	}
	if res.Import.Stats.Created != 1 || res.Import.Stats.Unresolved != 1 {
		t.Errorf("unexpected stats: %+v", res.Import.Stats)
	}

	errs, err := env.svc.ListErrors(context.Background(), res.Import.ID)
	if err != nil {
		t.Fatalf("ListErrors() error: %v", err)
	}
	if len(errs) != 1 || errs[0].Reason != ReasonUnresolvedRoom {
		t.Errorf("expected one unresolved-room error, got %+v", errs)
	}
}

func TestService_Import_CachesRoomLookups(t *testing.T) {
	env := newTestEnv()
	content := "2.10(화)\n" +
		"FALSE,1\n" +
		"9:00,\"111111\n홍길동\"\n" +
		"10:00,\"222222\n김영희\"\n" +
		"11:00,\"333333\n이철수\"\n"
	req := rfRequest()
	req.Content = []byte(content)

	res, err := env.svc.Import(context.Background(), req)
	if err != nil {
		t.Fatalf("Import() error: %v", err)
	}
	if res.Import.Stats.Created != 3 {
		t.Errorf("expected 3 created, got %+v", res.Import.Stats)
	}
	if env.resources.roomCalls != 1 {
		t.Errorf("expected 1 room lookup, got %d", env.resources.roomCalls)
	}
}

func TestService_Import_Manual(t *testing.T) {
	env := newTestEnv()
	kim, lee, park := uuid.New(), uuid.New(), uuid.New()
	env.resources.therapists = map[string]uuid.UUID{"김치료": kim, "이치료": lee, "박치료": park}

	content := "치료사,2026-02-10,,,2026-02-11,,\n" +
		",김치료,이치료,미등록,박치료,,\n" +
		"9:00,홍길동(온열/림프),C 김영희,,최민수,,\n" +
		"9:30,IN,,,,,\n"
	res, err := env.svc.Import(context.Background(), &ImportRequest{
		FileName: "manual.csv",
		Content:  []byte(content),
		Target:   sheet.Target{Month: time.February},
	})
	if err != nil {
		t.Fatalf("Import() error: %v", err)
	}
	if res.Import.Convention != string(sheet.ConventionManual) {
		t.Errorf("expected detected manual convention, got %s", res.Import.Convention)
	}
	if res.Import.Stats.Created != 3 || res.Import.Stats.Dropped != 1 {
		t.Errorf("unexpected stats: %+v", res.Import.Stats)
	}

	var hong *Booking
	for _, b := range env.bookings.all() {
		if b.PatientName == "홍길동" {
			hong = b
		}
	}
	if hong == nil {
		t.Fatal("missing booking for 홍길동")
	}
	if hong.Kind != KindManual || hong.ResourceID != kim || hong.DurationMin != 60 {
		t.Errorf("unexpected manual booking: %+v", hong)
	}
	if len(hong.TreatmentCodes) != 2 || hong.TreatmentCodes[0] != "온열" {
		t.Errorf("unexpected treatment codes: %v", hong.TreatmentCodes)
	}
}

func TestService_Import_OutpatientSharedSlot(t *testing.T) {
	env := newTestEnv()
	content := ",2.10(화),,,\n" +
		"시간,이름/유형,원장,연락처,메모\n" +
		"9:00,홍길동/초진,C,010-1234-5678,\n" +
		",김영희/재진,C,,\n"
	req := &ImportRequest{
		FileName:   "opd.csv",
		Content:    []byte(content),
		Convention: sheet.ConventionOutpatient,
		Target:     sheet.Target{Year: 2026, Month: time.February},
	}

	res, err := env.svc.Import(context.Background(), req)
	if err != nil {
		t.Fatalf("Import() error: %v", err)
	}
	if res.Import.Stats.Created != 2 {
		t.Errorf("expected both patients booked at 09:00, got %+v", res.Import.Stats)
	}
	for _, b := range env.bookings.all() {
		if b.Kind != KindOutpatient || b.StartTime != "09:00" || b.ResourceID != env.resources.doctors["C"] {
			t.Errorf("unexpected outpatient booking: %+v", b)
		}
	}
}

func TestService_Import_UnreadableFile(t *testing.T) {
	env := newTestEnv()
	req := rfRequest()
	req.FileName = "rf.xlsx"
	req.Content = []byte("PK\x03\x04garbage")

	_, err := env.svc.Import(context.Background(), req)
	if !errors.Is(err, sheet.ErrUnreadableFile) {
		t.Fatalf("expected ErrUnreadableFile, got %v", err)
	}

	items, _, _ := env.svc.ListImports(context.Background(), 20, 0)
	if len(items) != 1 {
		t.Fatalf("expected the failed import to be recorded, got %d", len(items))
	}
	if items[0].Status != StatusFailed || items[0].ErrorMessage == nil {
		t.Errorf("expected FAILED with message, got %+v", items[0])
	}
}

func TestService_Import_Validation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	req := rfRequest()
	req.Content = nil
	if _, err := env.svc.Import(ctx, req); !errors.Is(err, ErrEmptyFile) {
		t.Errorf("expected ErrEmptyFile, got %v", err)
	}

	req = rfRequest()
	req.Target.Month = 13
	if _, err := env.svc.Import(ctx, req); !errors.Is(err, sheet.ErrInvalidTarget) {
		t.Errorf("expected ErrInvalidTarget, got %v", err)
	}

	req = rfRequest()
	req.Target.Year = 0
	if _, err := env.svc.Import(ctx, req); !errors.Is(err, sheet.ErrInvalidTarget) {
		t.Errorf("expected ErrInvalidTarget for rf without year, got %v", err)
	}
}

func TestService_Preview(t *testing.T) {
	env := newTestEnv()
	res, err := env.svc.Preview(context.Background(), rfRequest())
	if err != nil {
		t.Fatalf("Preview() error: %v", err)
	}
	if res.Convention != sheet.ConventionRF || len(res.RF) != 2 {
		t.Errorf("unexpected preview: %+v", res)
	}
	if env.bookings.count() != 0 || len(env.imports.order) != 0 {
		t.Error("preview must not write")
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		stats ImportStats
		want  ImportStatus
	}{
		{ImportStats{Created: 3}, StatusSuccess},
		{ImportStats{}, StatusSuccess},
		{ImportStats{Created: 1, Failed: 1}, StatusPartial},
		{ImportStats{Failed: 2}, StatusFailed},
	}
	for _, tt := range tests {
		if got := statusFor(tt.stats); got != tt.want {
			t.Errorf("statusFor(%+v) = %s, want %s", tt.stats, got, tt.want)
		}
	}
}

// -- Sink --

func TestSink_ConcurrentPuts(t *testing.T) {
	repo := newMockBookingRepo()
	sink := NewSink(repo, &mockPatientRepo{}, lock.NewMemoryLocker())

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = map[PutResult]int{}
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b := &Booking{Kind: KindRF, ResourceID: room1, SlotDate: "2026-02-10", StartTime: "09:00", PatientName: "홍길동"}
			res, err := sink.Put(context.Background(), b)
			if err != nil {
				t.Errorf("Put() error: %v", err)
				return
			}
			mu.Lock()
			results[res]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if results[PutCreated] != 1 || results[PutExisting] != 9 {
		t.Errorf("expected 1 created and 9 existing, got %v", results)
	}
	if repo.count() != 1 {
		t.Errorf("expected 1 stored booking, got %d", repo.count())
	}
}

type racingBookingRepo struct{ *mockBookingRepo }

func (r racingBookingRepo) ExistsActive(context.Context, *Booking) (bool, error) { return false, nil }

func TestSink_InsertConflictIsExisting(t *testing.T) {
	repo := racingBookingRepo{newMockBookingRepo()}
	sink := NewSink(repo, &mockPatientRepo{}, lock.NewMemoryLocker())
	b := func() *Booking {
		return &Booking{Kind: KindRF, ResourceID: room1, SlotDate: "2026-02-10", StartTime: "09:00"}
	}

	if res, err := sink.Put(context.Background(), b()); err != nil || res != PutCreated {
		t.Fatalf("first Put() = %s, %v", res, err)
	}
	if res, err := sink.Put(context.Background(), b()); err != nil || res != PutExisting {
		t.Errorf("second Put() = %s, %v; want existing", res, err)
	}
}

func TestSink_ResolvesPatientByName(t *testing.T) {
	pid := uuid.New()
	patients := &mockPatientRepo{byChart: map[string]uuid.UUID{}, byName: map[string]uuid.UUID{"홍길동": pid}}
	sink := NewSink(newMockBookingRepo(), patients, lock.NewMemoryLocker())

	chart := "999999"
	b := &Booking{Kind: KindRF, ResourceID: room1, SlotDate: "2026-02-10", StartTime: "09:00",
		PatientName: "홍길동", ChartNumber: &chart}
	if _, err := sink.Put(context.Background(), b); err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	if b.PatientID == nil || *b.PatientID != pid {
		t.Errorf("expected name fallback to link %s, got %v", pid, b.PatientID)
	}
}

func TestSink_LockTimeout(t *testing.T) {
	locker := lock.NewMemoryLocker()
	sink := NewSink(newMockBookingRepo(), &mockPatientRepo{}, locker)
	b := &Booking{Kind: KindRF, ResourceID: room1, SlotDate: "2026-02-10", StartTime: "09:00"}

	unlock, err := locker.Lock(context.Background(), b.Key())
	if err != nil {
		t.Fatalf("Lock() error: %v", err)
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := sink.Put(ctx, b); !errors.Is(err, lock.ErrLockTimeout) {
		t.Errorf("expected ErrLockTimeout, got %v", err)
	}
}
