package retrieval

import "testing"

func TestDetectIdentifiers(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{"What feeds pump P-101?", true},
		{"compliance with IEC 61511", true},
		{"24VDC solenoid valve", true},
		{"ASME B31.3 piping", true},
		{"partial oxidation of methane", false},
	}
	for _, tt := range tests {
		if got := detectIdentifiers(tt.query); got != tt.want {
			t.Errorf("detectIdentifiers(%q) = %v, want %v", tt.query, got, tt.want)
		}
	}
}

func TestFTSQuery(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"", ""},
		{"?!", ""},
		{"syngas", `"syngas"`},
		{"the reformer (R-101)", `"the reformer R 101" OR "reformer" OR "101"`},
		{"is it", `"is it"`},
	}
	for _, tt := range tests {
		if got := ftsQuery(tt.query); got != tt.want {
			t.Errorf("ftsQuery(%q) = %q, want %q", tt.query, got, tt.want)
		}
	}
}

func TestSignificantTermsDeduplicates(t *testing.T) {
	got := significantTerms("Pump pump PUMP feeds the boiler")
	if len(got) != 3 || got[0] != "pump" || got[1] != "feeds" || got[2] != "boiler" {
		t.Fatalf("unexpected terms %q", got)
	}
}
