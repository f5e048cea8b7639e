package models

import "testing"

func TestParseManualClass(t *testing.T) {
	tests := []struct {
		in   string
		want ManualClass
		ok   bool
	}{
		{"Paper", ClassPaper, true},
		{"plastic", ClassPlastic, true},
		{"  OTHER ", ClassOther, true},
		{"none", ClassNone, true},
		{"", "", false},
		{"Glass", "", false},
		{"Track", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseManualClass(tt.in)
			if got != tt.want || ok != tt.ok {
				t.Errorf("ParseManualClass(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestResultRecordLabelled(t *testing.T) {
	cases := map[string]bool{
		"":      false,
		"-":     false,
		"Paper": true,
	}
	for trueClass, want := range cases {
		if got := (ResultRecord{TrueClass: trueClass}).Labelled(); got != want {
			t.Errorf("Labelled() with trueClass %q = %v, want %v", trueClass, got, want)
		}
	}
}

func TestPredictionHasResultID(t *testing.T) {
	if (PredictionResult{}).HasResultID() {
		t.Error("Expected no result id on an empty prediction")
	}
	if !(PredictionResult{InsertedID: "17"}).HasResultID() {
		t.Error("Expected result id to be reported")
	}
}
