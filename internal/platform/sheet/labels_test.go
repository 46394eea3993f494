package sheet

import (
	"reflect"
	"testing"
)

func TestNormalizeTime(t *testing.T) {
	tests := []struct {
		label  string
		want   string
		wantOK bool
	}{
		{"9:00~\n9:30", "09:00", true},
		{"09:30", "09:30", true},
		{"  14:05 접수", "14:05", true},
		{"오후 01:00", "13:00", true},
		{"오후 12:30", "12:30", true},
		{"오전 12:00", "00:00", true},
		{"오전 9:15", "09:15", true},
		{"진료 오후3:00", "15:00", true},
		{"foo", "", false},
		{"", "", false},
		{"25:00", "", false},
		{"9:75", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, ok := NormalizeTime(tt.label)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("NormalizeTime(%q) = (%q, %v), want (%q, %v)", tt.label, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestParseTreatmentCell(t *testing.T) {
	tests := []struct {
		text string
		want TreatmentCell
	}{
		{"김영희", TreatmentCell{Name: "김영희", Codes: []string{"도수"}}},
		{"김영희(온열/림프)", TreatmentCell{Name: "김영희", Codes: []string{"온열", "림프"}}},
		{"C 김영희(신경치료)", TreatmentCell{Name: "김영희", Codes: []string{"신경"}, Doctor: DoctorC}},
		{"j김영희", TreatmentCell{Name: "김영희", Codes: []string{"도수"}, Doctor: DoctorJ}},
		{"김영희(페인/도침)", TreatmentCell{Name: "김영희", Codes: []string{"페인", "도침"}}},
		{"김영희(통증/통증)", TreatmentCell{Name: "김영희", Codes: []string{"통증"}}},
		{"김영희 2", TreatmentCell{Name: "김영희", Codes: []string{"도수"}}},
		{"김영희12", TreatmentCell{Name: "김영희", Codes: []string{"도수"}}},
		{"Cho 민수", TreatmentCell{Name: "Cho 민수", Codes: []string{"도수"}}},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := ParseTreatmentCell(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseTreatmentCell(%q) = %+v, want %+v", tt.text, got, tt.want)
			}
		})
	}
}

func TestClassifyDoctorCode(t *testing.T) {
	tests := []struct {
		cell    string
		want    DoctorCode
		wantTag bool
	}{
		{"홍길동(C)", DoctorC, true},
		{"123456\n홍길동(J) 30분", DoctorJ, true},
		{"(j)", DoctorJ, true},
		{"J", DoctorJ, true},
		{" c ", DoctorC, true},
		{"홍길동", DoctorC, false},
		{"", DoctorC, false},
	}

	for _, tt := range tests {
		t.Run(tt.cell, func(t *testing.T) {
			if got := ClassifyDoctorCode(tt.cell); got != tt.want {
				t.Errorf("ClassifyDoctorCode(%q) = %q, want %q", tt.cell, got, tt.want)
			}
			_, tagged := DoctorCodeFromTag(tt.cell)
			if tagged != tt.wantTag {
				t.Errorf("DoctorCodeFromTag(%q) tagged = %v, want %v", tt.cell, tagged, tt.wantTag)
			}
		})
	}
}

func TestClassifyPatientType(t *testing.T) {
	if got := ClassifyPatientType("123456\n홍길동 301호"); got != Inpatient {
		t.Errorf("expected INPATIENT for ward tag, got %s", got)
	}
	if got := ClassifyPatientType("홍길동 입원"); got != Inpatient {
		t.Errorf("expected INPATIENT for admission word, got %s", got)
	}
	if got := ClassifyPatientType("123456\n홍길동(C)"); got != Outpatient {
		t.Errorf("expected OUTPATIENT, got %s", got)
	}
}

func TestDurationMinutes(t *testing.T) {
	if got := durationMinutes("홍길동(C) 40분", 60); got != 40 {
		t.Errorf("expected 40, got %d", got)
	}
	if got := durationMinutes("홍길동", 60); got != 60 {
		t.Errorf("expected default 60, got %d", got)
	}
	if got := durationMinutes("0분", 60); got != 60 {
		t.Errorf("expected default for zero minutes, got %d", got)
	}
}
