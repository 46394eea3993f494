package sheet

import (
	"testing"
)

var feb2026 = Target{Year: 2026, Month: 2}

func TestExtractRF_SingleBooking(t *testing.T) {
	rows := Tokenize("2.10(화)\nFALSE,1,2\n\"9:00~\n9:30\",\"123456\n홍길동(C) 60분\",\n")

	slots, report := ExtractRF(rows, feb2026)
	if len(slots) != 1 {
		t.Fatalf("expected 1 slot, got %d (%+v)", len(slots), report)
	}

	want := RFSlot{
		Date:        "2026-02-10",
		MachineNum:  1,
		StartTime:   "09:00",
		Duration:    60,
		ChartNumber: "123456",
		PatientName: "홍길동",
		DoctorCode:  DoctorC,
		PatientType: Outpatient,
	}
	if slots[0] != want {
		t.Errorf("got %+v, want %+v", slots[0], want)
	}
	if report.Emitted != 1 || report.SkipCount() != 0 {
		t.Errorf("unexpected report: %+v", report)
	}
}

func TestDetectRF_MachineColumns(t *testing.T) {
	rows := Tokenize("2.10(화),,,2.11(수)\nFALSE,1,2,FALSE,1,2,3\n")

	blocks := DetectRF(rows, feb2026)
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(blocks))
	}
	if blocks[0].Date != "2026-02-10" || len(blocks[0].Columns) != 2 {
		t.Errorf("unexpected first block: %+v", blocks[0])
	}
	if blocks[1].Date != "2026-02-11" || len(blocks[1].Columns) != 3 {
		t.Errorf("unexpected second block: %+v", blocks[1])
	}
	if blocks[1].TimeCol != 3 || blocks[1].Columns[0].Col != 4 || blocks[1].Columns[2].Machine != 3 {
		t.Errorf("unexpected second block layout: %+v", blocks[1])
	}
	if blocks[0].FirstRow != 2 {
		t.Errorf("expected data to start at row 2, got %d", blocks[0].FirstRow)
	}
}

func TestExtractRF_MonthFilter(t *testing.T) {
	content := "1.31(토),,,2.1(일)\n" +
		"FALSE,1,2,FALSE,1,2\n" +
		"9:00,\"111111\n김철수\",,9:00,\"222222\n이영희\",\n"
	rows := Tokenize(content)

	slots, report := ExtractRF(rows, feb2026)
	if len(slots) != 1 {
		t.Fatalf("expected 1 slot, got %d", len(slots))
	}
	s := slots[0]
	if s.Date != "2026-02-01" || s.MachineNum != 1 || s.ChartNumber != "222222" || s.PatientName != "이영희" {
		t.Errorf("unexpected slot: %+v", s)
	}
	if report.Skipped[SkipOutOfMonth] != 1 {
		t.Errorf("expected 1 out-of-month skip, got %d", report.Skipped[SkipOutOfMonth])
	}
}

func TestExtractRF_CellGates(t *testing.T) {
	content := "2.10(화)\n" +
		"FALSE,1,2,3,4,5\n" +
		"10:00,\"환자\n홍길동\",\"12\n홍길동\",123456,\"1234\n김\",\"1234\n박민수(J) 30분\"\n"
	rows := Tokenize(content)

	slots, report := ExtractRF(rows, feb2026)
	if len(slots) != 1 {
		t.Fatalf("expected 1 slot, got %d (%+v)", len(slots), report.Skips)
	}
	s := slots[0]
	if s.ChartNumber != "1234" || s.PatientName != "박민수" || s.DoctorCode != DoctorJ || s.Duration != 30 || s.MachineNum != 5 {
		t.Errorf("unexpected slot: %+v", s)
	}
	if report.Skipped[SkipBadChartNumber] != 2 {
		t.Errorf("expected 2 bad chart number skips, got %d", report.Skipped[SkipBadChartNumber])
	}
	if report.Skipped[SkipShortCell] != 1 {
		t.Errorf("expected 1 short cell skip, got %d", report.Skipped[SkipShortCell])
	}
	if report.Skipped[SkipShortName] != 1 {
		t.Errorf("expected 1 short name skip, got %d", report.Skipped[SkipShortName])
	}
	for _, sk := range report.Skips {
		if sk.Row != 2 {
			t.Errorf("expected skip on row 2, got %+v", sk)
		}
	}
}

func TestExtractRF_RowWithoutTimeSkipped(t *testing.T) {
	content := "2.10(화)\n" +
		"FALSE,1\n" +
		"점심,\"123456\n홍길동\"\n" +
		"13:00,\"654321\n김영희\"\n"
	rows := Tokenize(content)

	slots, report := ExtractRF(rows, feb2026)
	if len(slots) != 1 || slots[0].ChartNumber != "654321" || slots[0].StartTime != "13:00" {
		t.Fatalf("unexpected slots: %+v", slots)
	}
	if report.Skipped[SkipNoTime] != 1 {
		t.Errorf("expected 1 no-time skip, got %d", report.Skipped[SkipNoTime])
	}
}

func TestExtractRF_Terminators(t *testing.T) {
	tests := []struct {
		name       string
		terminator string
	}{
		{"blank row", ",,"},
		{"remarks row", "비고,장비 점검"},
		{"next date header", "2.11(수)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := "2.10(화)\n" +
				"FALSE,1\n" +
				"9:00,\"123456\n홍길동\"\n" +
				tt.terminator + "\n" +
				"10:00,\"654321\n김영희\"\n"
			slots, _ := ExtractRF(Tokenize(content), feb2026)
			if len(slots) != 1 || slots[0].ChartNumber != "123456" {
				t.Errorf("expected only the booking above the terminator, got %+v", slots)
			}
		})
	}
}

func TestExtractRF_OrderAcrossBlocks(t *testing.T) {
	content := "2.10(화),,,2.11(수)\n" +
		"FALSE,1,2,FALSE,1\n" +
		"9:00,\"100001\n가나다\",\"100002\n라마바\",9:00,\"100003\n사아자\"\n" +
		"10:00,\"100004\n차카타\",,10:00,\n"
	slots, _ := ExtractRF(Tokenize(content), feb2026)

	want := []string{"100001", "100002", "100004", "100003"}
	if len(slots) != len(want) {
		t.Fatalf("expected %d slots, got %d", len(want), len(slots))
	}
	for i, chart := range want {
		if slots[i].ChartNumber != chart {
			t.Errorf("slot %d: expected chart %s, got %s", i, chart, slots[i].ChartNumber)
		}
	}
}

func TestExtractRF_InpatientTag(t *testing.T) {
	rows := Tokenize("2.10(화)\nFALSE,1\n9:00,\"123456\n홍길동 502호\"\n")
	slots, _ := ExtractRF(rows, feb2026)
	if len(slots) != 1 {
		t.Fatalf("expected 1 slot, got %d", len(slots))
	}
	if slots[0].PatientType != Inpatient {
		t.Errorf("expected INPATIENT, got %s", slots[0].PatientType)
	}
}

func TestExtractRF_NoAnchors(t *testing.T) {
	slots, report := ExtractRF(Tokenize("a,b\nc,d\n"), feb2026)
	if len(slots) != 0 || report.Emitted != 0 || report.SkipCount() != 0 {
		t.Errorf("expected empty output, got %+v %+v", slots, report)
	}
}
