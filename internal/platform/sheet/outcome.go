package sheet

import "errors"

var (
	ErrUnknownConvention = errors.New("sheet: unknown convention")
	ErrInvalidTarget     = errors.New("sheet: invalid target month")
	ErrUnreadableFile    = errors.New("sheet: unreadable file")
)

// SkipReason says why a candidate cell or column produced no slot.
type SkipReason string

const (
	SkipShortCell           SkipReason = "short-cell"
	SkipBadChartNumber      SkipReason = "bad-chart-number"
	SkipShortName           SkipReason = "short-name"
	SkipPlaceholder         SkipReason = "placeholder"
	SkipTimeLabelAsName     SkipReason = "time-label-as-name"
	SkipNoTime              SkipReason = "no-time"
	SkipUnresolvedTherapist SkipReason = "unresolved-therapist"
	SkipOutOfMonth          SkipReason = "out-of-month"
)

// Skip records one dropped candidate with its position in the sheet.
// Row and Col are zero-based.
type Skip struct {
	Reason SkipReason `json:"reason"`
	Row    int        `json:"row"`
	Col    int        `json:"col"`
	Raw    string     `json:"raw,omitempty"`
}

// Outcome is the result of interpreting one candidate: either a slot was
// emitted or the candidate was skipped for a reason.
type Outcome struct {
	Emitted bool
	Skip    Skip
}

func emitted() Outcome { return Outcome{Emitted: true} }

func skipped(reason SkipReason, row, col int, raw string) Outcome {
	return Outcome{Skip: Skip{Reason: reason, Row: row, Col: col, Raw: raw}}
}

// Report aggregates the outcomes of one extraction.
type Report struct {
	Emitted int                `json:"emitted"`
	Skipped map[SkipReason]int `json:"skipped"`
	Skips   []Skip             `json:"skips"`
}

func newReport() Report {
	return Report{Skipped: make(map[SkipReason]int)}
}

func (r *Report) add(o Outcome) {
	if o.Emitted {
		r.Emitted++
		return
	}
	if r.Skipped == nil {
		r.Skipped = make(map[SkipReason]int)
	}
	r.Skipped[o.Skip.Reason]++
	r.Skips = append(r.Skips, o.Skip)
}

// SkipCount returns the total number of skipped candidates.
func (r Report) SkipCount() int {
	return len(r.Skips)
}
