package sheet

import (
	"fmt"
	"strings"
)

// ParseConvention maps a user-supplied name to a Convention. The empty string
// means auto-detection.
func ParseConvention(s string) (Convention, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return ConventionAuto, nil
	case "rf":
		return ConventionRF, nil
	case "manual", "manual-therapy", "dosu":
		return ConventionManual, nil
	case "outpatient", "opd":
		return ConventionOutpatient, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownConvention, s)
}

// DetectConvention guesses the layout of a sheet from its anchors. Manual
// therapy is probed first since its anchor is the most specific.
func DetectConvention(rows []Row) (Convention, bool) {
	for _, row := range rows {
		if strings.HasPrefix(strings.TrimSpace(row.Cell(0)), therapistAnchor) {
			return ConventionManual, true
		}
	}
	for _, row := range rows {
		if hasNameTypeCell(row) {
			return ConventionOutpatient, true
		}
	}
	for i, row := range rows {
		if i+1 >= len(rows) || !dateHeaderRe.MatchString(row.Joined()) {
			continue
		}
		for _, cell := range rows[i+1] {
			if strings.EqualFold(strings.TrimSpace(cell), machineMarker) {
				return ConventionRF, true
			}
		}
	}
	return "", false
}

// Options controls a single Parse call.
type Options struct {
	Convention Convention
	Target     Target
	Therapists TherapistLookup
}

// Result is the output of Parse. Exactly one of the slot slices is populated,
// matching Convention.
type Result struct {
	Convention Convention       `json:"convention"`
	Target     Target           `json:"target"`
	Blocks     []DayBlock       `json:"blocks"`
	RF         []RFSlot         `json:"rf,omitempty"`
	Manual     []ManualSlot     `json:"manual,omitempty"`
	Outpatient []OutpatientSlot `json:"outpatient,omitempty"`
	Report     Report           `json:"report"`
}

// SlotCount returns the number of extracted slots.
func (r *Result) SlotCount() int {
	return len(r.RF) + len(r.Manual) + len(r.Outpatient)
}

// Parse extracts the slots of rows under the given options. A sheet whose
// layout matches no convention yields an empty result rather than an error;
// only invalid options are rejected.
func Parse(rows []Row, opts Options) (*Result, error) {
	if err := opts.Target.Validate(); err != nil {
		return nil, err
	}

	conv := opts.Convention
	if conv == "" || conv == ConventionAuto {
		detected, ok := DetectConvention(rows)
		if !ok {
			return &Result{Convention: ConventionAuto, Target: opts.Target, Report: newReport()}, nil
		}
		conv = detected
	}

	if conv != ConventionManual && opts.Target.Year == 0 {
		return nil, fmt.Errorf("%w: %s sheets need a year", ErrInvalidTarget, conv)
	}

	res := &Result{Convention: conv, Target: opts.Target}
	switch conv {
	case ConventionRF:
		res.Blocks = DetectRF(rows, opts.Target)
		res.RF, res.Report = ExtractRF(rows, opts.Target)
	case ConventionManual:
		res.Blocks = DetectManual(rows, opts.Target, opts.Therapists)
		res.Manual, res.Report = ExtractManual(rows, opts.Target, opts.Therapists)
	case ConventionOutpatient:
		res.Blocks = DetectOutpatient(rows, opts.Target)
		res.Outpatient, res.Report = ExtractOutpatient(rows, opts.Target)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownConvention, conv)
	}
	return res, nil
}
