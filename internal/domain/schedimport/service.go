package schedimport

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ybsk00/hospital-ops-suit-sub002/internal/platform/sheet"
)

// TxFunc runs fn in a transaction. db.WithTx bound to a pool satisfies it.
type TxFunc func(ctx context.Context, fn func(ctx context.Context) error) error

func noTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

// ImportRequest is one uploaded file plus the month it covers.
type ImportRequest struct {
	FileName   string
	Content    []byte
	Sheet      string
	Convention sheet.Convention
	Target     sheet.Target
	// Force re-runs a file that already imported successfully.
	Force bool
}

// ImportResult is the outcome of Service.Import. Duplicate is set when the
// file had already been imported and Import is that earlier run.
type ImportResult struct {
	Import    *Import       `json:"import"`
	Duplicate bool          `json:"duplicate"`
	Result    *sheet.Result `json:"-"`
}

type Service struct {
	imports   ImportRepository
	bookings  BookingRepository
	resources ResourceRepository
	sink      *Sink
	inTx      TxFunc
	logger    zerolog.Logger
}

func NewService(imports ImportRepository, bookings BookingRepository, resources ResourceRepository, sink *Sink, inTx TxFunc, logger zerolog.Logger) *Service {
	if inTx == nil {
		inTx = noTx
	}
	return &Service{
		imports:   imports,
		bookings:  bookings,
		resources: resources,
		sink:      sink,
		inTx:      inTx,
		logger:    logger.With().Str("component", "schedimport").Logger(),
	}
}

func validateRequest(req *ImportRequest) error {
	if len(req.Content) == 0 {
		return ErrEmptyFile
	}
	if req.FileName == "" {
		return fmt.Errorf("%w: file name is required", ErrInvalidRequest)
	}
	return req.Target.Validate()
}

func resolveConvention(rows []sheet.Row, conv sheet.Convention) sheet.Convention {
	if conv != "" && conv != sheet.ConventionAuto {
		return conv
	}
	if detected, ok := sheet.DetectConvention(rows); ok {
		return detected
	}
	return sheet.ConventionAuto
}

func (s *Service) therapists(ctx context.Context, conv sheet.Convention) (sheet.TherapistLookup, error) {
	if conv != sheet.ConventionManual {
		return sheet.TherapistMap(nil), nil
	}
	byName, err := s.resources.Therapists(ctx)
	if err != nil {
		return nil, fmt.Errorf("load therapists: %w", err)
	}
	lookup := make(sheet.TherapistMap, len(byName))
	for name, id := range byName {
		lookup[name] = id.String()
	}
	return lookup, nil
}

func (s *Service) parse(ctx context.Context, rows []sheet.Row, conv sheet.Convention, target sheet.Target) (*sheet.Result, error) {
	lookup, err := s.therapists(ctx, conv)
	if err != nil {
		return nil, err
	}
	return sheet.Parse(rows, sheet.Options{Convention: conv, Target: target, Therapists: lookup})
}

// Preview parses the file without writing anything.
func (s *Service) Preview(ctx context.Context, req *ImportRequest) (*sheet.Result, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	rows, err := sheet.LoadRows(req.FileName, req.Content, req.Sheet)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", req.FileName, err)
	}
	return s.parse(ctx, rows, resolveConvention(rows, req.Convention), req.Target)
}

// Import parses the file and puts every slot through the sink. A file whose
// bytes, convention and month match an earlier successful import is not
// processed again unless req.Force is set.
func (s *Service) Import(ctx context.Context, req *ImportRequest) (*ImportResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	sum := sha256.Sum256(req.Content)
	hash := hex.EncodeToString(sum[:])

	rows, loadErr := sheet.LoadRows(req.FileName, req.Content, req.Sheet)
	conv := req.Convention
	if loadErr == nil {
		conv = resolveConvention(rows, conv)
	}

	if !req.Force {
		prior, err := s.imports.FindSucceeded(ctx, hash, string(conv), req.Target.Year, int(req.Target.Month))
		if err != nil {
			return nil, fmt.Errorf("check previous imports: %w", err)
		}
		if prior != nil {
			s.logger.Info().
				Str("file", req.FileName).
				Str("previous_import_id", prior.ID.String()).
				Msg("file already imported, skipping")
			return &ImportResult{Import: prior, Duplicate: true}, nil
		}
	}

	imp := &Import{
		FileName:    req.FileName,
		FileHash:    hash,
		Convention:  string(conv),
		TargetYear:  req.Target.Year,
		TargetMonth: int(req.Target.Month),
		Status:      StatusProcessing,
	}
	if err := s.imports.Create(ctx, imp); err != nil {
		return nil, fmt.Errorf("create import record: %w", err)
	}
	log := s.logger.With().
		Str("import_id", imp.ID.String()).
		Str("file", req.FileName).
		Str("convention", string(conv)).
		Logger()

	if loadErr != nil {
		err := fmt.Errorf("load %s: %w", req.FileName, loadErr)
		s.fail(ctx, log, imp, err)
		return nil, err
	}

	parsed, err := s.parse(ctx, rows, conv, req.Target)
	if err != nil {
		s.fail(ctx, log, imp, err)
		return nil, err
	}

	errs := skipErrors(parsed.Report.Skips)
	for _, e := range errs {
		log.Debug().Str("reason", e.Reason).Int("row", e.Row).Int("col", e.Col).Msg("cell skipped")
	}
	bookings, unresolved, err := toBookings(ctx, parsed, newResolver(s.resources))
	if err != nil {
		s.fail(ctx, log, imp, err)
		return nil, err
	}
	errs = append(errs, unresolved...)

	stats := ImportStats{
		Parsed:     parsed.SlotCount(),
		Dropped:    parsed.Report.SkipCount(),
		Unresolved: len(unresolved),
	}
	for _, b := range bookings {
		b.ImportID = &imp.ID
		res, err := s.sink.Put(ctx, b)
		if err != nil {
			stats.Failed++
			errs = append(errs, slotError(ReasonSinkFailed, err.Error()))
			log.Warn().Err(err).Str("slot", b.Key()).Msg("booking not written")
			continue
		}
		switch res {
		case PutCreated:
			stats.Created++
		case PutExisting:
			stats.Existing++
		}
	}

	imp.Stats = stats
	imp.Status = statusFor(stats)
	if err := s.finish(ctx, imp, errs); err != nil {
		return nil, err
	}

	log.Info().
		Str("status", string(imp.Status)).
		Int("parsed", stats.Parsed).
		Int("created", stats.Created).
		Int("existing", stats.Existing).
		Int("unresolved", stats.Unresolved).
		Int("dropped", stats.Dropped).
		Int("failed", stats.Failed).
		Msg("import finished")

	return &ImportResult{Import: imp, Result: parsed}, nil
}

func statusFor(stats ImportStats) ImportStatus {
	switch {
	case stats.Failed == 0:
		return StatusSuccess
	case stats.Created+stats.Existing > 0:
		return StatusPartial
	default:
		return StatusFailed
	}
}

// finish records the errors and final state of imp. It runs even when the
// caller's context has been cancelled so the record never stays PROCESSING.
func (s *Service) finish(ctx context.Context, imp *Import, errs []*ImportError) error {
	ctx = context.WithoutCancel(ctx)
	now := time.Now().UTC()
	imp.FinishedAt = &now
	err := s.inTx(ctx, func(ctx context.Context) error {
		if err := s.imports.AddErrors(ctx, imp.ID, errs); err != nil {
			return err
		}
		return s.imports.Finish(ctx, imp)
	})
	if err != nil {
		return fmt.Errorf("finish import %s: %w", imp.ID, err)
	}
	return nil
}

func (s *Service) fail(ctx context.Context, log zerolog.Logger, imp *Import, cause error) {
	msg := cause.Error()
	imp.Status = StatusFailed
	imp.ErrorMessage = &msg
	if err := s.finish(ctx, imp, nil); err != nil {
		log.Error().Err(err).Msg("failed to record import failure")
	}
	log.Error().Err(cause).Msg("import failed")
}

func (s *Service) GetImport(ctx context.Context, id uuid.UUID) (*Import, error) {
	return s.imports.GetByID(ctx, id)
}

func (s *Service) ListImports(ctx context.Context, limit, offset int) ([]*Import, int, error) {
	return s.imports.List(ctx, limit, offset)
}

func (s *Service) ListErrors(ctx context.Context, importID uuid.UUID) ([]*ImportError, error) {
	if _, err := s.imports.GetByID(ctx, importID); err != nil {
		return nil, err
	}
	return s.imports.ListErrors(ctx, importID)
}

func (s *Service) ListBookings(ctx context.Context, importID uuid.UUID, limit, offset int) ([]*Booking, int, error) {
	if _, err := s.imports.GetByID(ctx, importID); err != nil {
		return nil, 0, err
	}
	return s.bookings.ListByImport(ctx, importID, limit, offset)
}
